package kafka_client

import "github.com/spacesedan/sentiharvest/config"

type KafkaConfig struct {
	Broker        string
	Topic         string
	TransactionID string
}

func NewKafkaConfig(cfg *config.Config) KafkaConfig {
	topic := cfg.KafkaResultsTopic
	if topic == "" {
		topic = KAFKA_TOPIC_SENTIMENT_RESULTS
	}
	return KafkaConfig{
		Broker:        cfg.KafkaBroker,
		Topic:         topic,
		TransactionID: TRANSACTION_ID,
	}
}
