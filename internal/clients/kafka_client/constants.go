package kafka_client

import "time"

const (
	KAFKA_TOPIC_SENTIMENT_RESULTS = "sentiment-results"

	MESSAGE_KIND_ITEM  = "item"
	MESSAGE_KIND_REPLY = "reply"
)

const (
	MAX_RETRIES    = 3
	RETRY_DELAY    = 2 * time.Second
	FLUSH_TIMEOUT  = 5 * time.Second
	TRANSACTION_ID = "sentiharvest-results-1"
)
