package db

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/spacesedan/sentiharvest/internal/models"
	"github.com/spacesedan/sentiharvest/internal/utils"
)

const (
	DYNAMO_MAX_BATCH_SIZE = 25
	DYNAMO_MAX_RETRIES    = 3
	DYNAMO_RETRY_BACKOFF  = 500 * time.Millisecond

	DYNAMO_PK_ITEM  = "item#"
	DYNAMO_PK_REPLY = "reply#"
)

type BatchWriter interface {
	BatchWriteItem(ctx context.Context, params *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error)
}

// DynamoMirror copies stored records into a single DynamoDB table keyed by "pk".
// SQLite stays the source of truth; the mirror is best effort.
type DynamoMirror struct {
	client  BatchWriter
	table   string
	backoff time.Duration
}

func NewDynamoMirror(client BatchWriter, table string) *DynamoMirror {
	return &DynamoMirror{client: client, table: table, backoff: DYNAMO_RETRY_BACKOFF}
}

func (m *DynamoMirror) Name() string { return "dynamodb" }

func (m *DynamoMirror) PublishItems(ctx context.Context, items []models.Item) error {
	requests := make([]types.WriteRequest, 0, len(items))
	for _, item := range items {
		av, err := attributevalue.MarshalMap(item)
		if err != nil {
			return fmt.Errorf("failed to marshal item %s: %w", item.ID, err)
		}
		av["pk"] = &types.AttributeValueMemberS{Value: DYNAMO_PK_ITEM + item.ID}
		requests = append(requests, types.WriteRequest{PutRequest: &types.PutRequest{Item: av}})
	}
	return m.write(ctx, requests)
}

func (m *DynamoMirror) PublishReplies(ctx context.Context, replies []models.Reply) error {
	requests := make([]types.WriteRequest, 0, len(replies))
	for _, reply := range replies {
		av, err := attributevalue.MarshalMap(reply)
		if err != nil {
			return fmt.Errorf("failed to marshal reply %s: %w", reply.ID, err)
		}
		av["pk"] = &types.AttributeValueMemberS{Value: DYNAMO_PK_REPLY + reply.ID}
		requests = append(requests, types.WriteRequest{PutRequest: &types.PutRequest{Item: av}})
	}
	return m.write(ctx, requests)
}

func (m *DynamoMirror) write(ctx context.Context, requests []types.WriteRequest) error {
	for _, batch := range utils.Chunk(requests, DYNAMO_MAX_BATCH_SIZE) {
		if err := ctx.Err(); err != nil {
			slog.Warn("[DynamoDB] context canceled")
			return err
		}

		out, err := m.client.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{
			RequestItems: map[string][]types.WriteRequest{m.table: batch},
		})
		if err != nil {
			return fmt.Errorf("failed to batch write to %s: %w", m.table, err)
		}

		retryCount := 0
		backoff := m.backoff
		for len(out.UnprocessedItems) > 0 && retryCount < DYNAMO_MAX_RETRIES {
			time.Sleep(backoff)
			backoff *= 2
			slog.Warn("[DynamoDB] Retrying unprocessed items...",
				slog.Int("retry_attempt", retryCount+1),
				slog.Int("remaining_items", len(out.UnprocessedItems[m.table])))

			out, err = m.client.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{
				RequestItems: out.UnprocessedItems,
			})
			if err != nil {
				return fmt.Errorf("failed to retry batch write: %w", err)
			}
			retryCount++
		}

		if remaining := len(out.UnprocessedItems[m.table]); remaining > 0 {
			return fmt.Errorf("%d records not written to %s after retries", remaining, m.table)
		}
	}

	slog.Info("[DynamoDB] Mirrored records",
		slog.String("table", m.table),
		slog.Int("count", len(requests)))
	return nil
}
