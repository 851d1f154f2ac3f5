package kafka_client

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/confluentinc/confluent-kafka-go/kafka"
	"github.com/spacesedan/sentiharvest/internal/models"
)

// ResultMessage is the JSON value published for every stored record.
type ResultMessage struct {
	Kind      string                 `json:"kind"`
	ID        string                 `json:"id"`
	ItemID    string                 `json:"item_id,omitempty"`
	Unit      string                 `json:"unit"`
	CreatedAt time.Time              `json:"created_utc"`
	Score     int                    `json:"score"`
	Sentiment models.SentimentResult `json:"sentiment"`
}

// ResultsPublisher streams scored records to a topic. Each batch is written in
// one Kafka transaction keyed by record id.
type ResultsPublisher struct {
	producer *kafka.Producer
	topic    string
}

func NewResultsPublisher(ctx context.Context, cfg KafkaConfig) (*ResultsPublisher, error) {
	slog.Info("[KafkaClient] Initializing Kafka Producer...",
		slog.String("broker", cfg.Broker),
		slog.String("topic", cfg.Topic))

	p, err := kafka.NewProducer(&kafka.ConfigMap{
		"bootstrap.servers":                     cfg.Broker,
		"security.protocol":                     "PLAINTEXT",
		"api.version.request":                   "true",
		"enable.idempotence":                    true,
		"acks":                                  "all",
		"max.in.flight.requests.per.connection": 1,
		"transactional.id":                      cfg.TransactionID,
		"go.delivery.reports":                   false,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create producer: %w", err)
	}

	if err := p.InitTransactions(ctx); err != nil {
		p.Close()
		return nil, fmt.Errorf("failed to init transactions: %w", err)
	}

	slog.Info("[KafkaClient] Kafka Producer initialized successfully")
	return &ResultsPublisher{producer: p, topic: cfg.Topic}, nil
}

func (rp *ResultsPublisher) Name() string { return "kafka" }

func (rp *ResultsPublisher) PublishItems(ctx context.Context, items []models.Item) error {
	msgs := make([]*kafka.Message, 0, len(items))
	for _, item := range items {
		msg, err := EncodeItem(rp.topic, item)
		if err != nil {
			return err
		}
		msgs = append(msgs, msg)
	}
	return rp.publish(ctx, msgs)
}

func (rp *ResultsPublisher) PublishReplies(ctx context.Context, replies []models.Reply) error {
	msgs := make([]*kafka.Message, 0, len(replies))
	for _, reply := range replies {
		msg, err := EncodeReply(rp.topic, reply)
		if err != nil {
			return err
		}
		msgs = append(msgs, msg)
	}
	return rp.publish(ctx, msgs)
}

func (rp *ResultsPublisher) publish(ctx context.Context, msgs []*kafka.Message) error {
	if len(msgs) == 0 {
		return nil
	}

	if err := rp.producer.BeginTransaction(); err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	for _, msg := range msgs {
		var err error
		for i := 0; i < MAX_RETRIES; i++ {
			if err = rp.producer.Produce(msg, nil); err == nil {
				break
			}
			slog.Warn("[KafkaClient] Failed to produce message, retrying...",
				slog.Int("attempt", i+1),
				slog.String("error", err.Error()))
			time.Sleep(RETRY_DELAY)
		}
		if err != nil {
			if abortErr := rp.producer.AbortTransaction(ctx); abortErr != nil {
				return fmt.Errorf("failed to abort transaction after produce error: %w", abortErr)
			}
			return fmt.Errorf("failed to produce message: %w", err)
		}
	}

	var commitErr error
	for i := 0; i < MAX_RETRIES; i++ {
		if commitErr = rp.producer.CommitTransaction(ctx); commitErr == nil {
			break
		}
		slog.Warn("[KafkaClient] Failed to commit transaction, retrying...",
			slog.Int("attempt", i+1),
			slog.String("error", commitErr.Error()))
	}
	if commitErr != nil {
		if abortErr := rp.producer.AbortTransaction(ctx); abortErr != nil {
			slog.Error("[KafkaClient] Failed to abort transaction", slog.String("error", abortErr.Error()))
		}
		return fmt.Errorf("failed to commit transaction after %d retries: %w", MAX_RETRIES, commitErr)
	}

	slog.Info("[KafkaClient] Published results transactionally",
		slog.String("topic", rp.topic),
		slog.Int("count", len(msgs)))
	return nil
}

func (rp *ResultsPublisher) Close() {
	slog.Info("[KafkaClient] Shutting down Kafka producer...")
	if remaining := rp.producer.Flush(int(FLUSH_TIMEOUT / time.Millisecond)); remaining > 0 {
		slog.Warn("[KafkaClient] Not all messages were delivered before shutdown",
			slog.Int("remaining", remaining))
	}
	rp.producer.Close()
	slog.Info("[KafkaClient] Kafka producer shut down")
}

func EncodeItem(topic string, item models.Item) (*kafka.Message, error) {
	return encode(topic, ResultMessage{
		Kind:      MESSAGE_KIND_ITEM,
		ID:        item.ID,
		Unit:      item.Unit,
		CreatedAt: item.CreatedAt,
		Score:     item.Score,
		Sentiment: item.SentimentResult,
	})
}

func EncodeReply(topic string, reply models.Reply) (*kafka.Message, error) {
	return encode(topic, ResultMessage{
		Kind:      MESSAGE_KIND_REPLY,
		ID:        reply.ID,
		ItemID:    reply.ItemID,
		Unit:      reply.Unit,
		CreatedAt: reply.CreatedAt,
		Score:     reply.Score,
		Sentiment: reply.SentimentResult,
	})
}

func encode(topic string, m ResultMessage) (*kafka.Message, error) {
	value, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s %s: %w", m.Kind, m.ID, err)
	}
	return &kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &topic, Partition: kafka.PartitionAny},
		Key:            []byte(m.Kind + ":" + m.ID),
		Value:          value,
		Headers:        []kafka.Header{{Key: "unit", Value: []byte(m.Unit)}},
	}, nil
}
