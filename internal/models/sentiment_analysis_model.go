package models

const (
	LABEL_POSITIVE = "Positive"
	LABEL_NEUTRAL  = "Neutral"
	LABEL_NEGATIVE = "Negative"

	BUCKET_VERY_POSITIVE = "Very Positive"
	BUCKET_POSITIVE      = LABEL_POSITIVE
	BUCKET_NEUTRAL       = LABEL_NEUTRAL
	BUCKET_NEGATIVE      = LABEL_NEGATIVE
	BUCKET_VERY_NEGATIVE = "Very Negative"
)

// BucketOrder lists buckets from most negative to most positive, the order
// charts and summaries present them in.
var BucketOrder = []string{
	BUCKET_VERY_NEGATIVE,
	BUCKET_NEGATIVE,
	BUCKET_NEUTRAL,
	BUCKET_POSITIVE,
	BUCKET_VERY_POSITIVE,
}

// SentimentResult is always derived from the owning record's text and is
// recomputed whenever that text is scored again.
type SentimentResult struct {
	Positive   float64 `json:"positive" dynamodbav:"positive"`
	Neutral    float64 `json:"neutral" dynamodbav:"neutral"`
	Negative   float64 `json:"negative" dynamodbav:"negative"`
	Compound   float64 `json:"compound" dynamodbav:"compound"`
	Label      string  `json:"sentiment" dynamodbav:"sentiment"`
	Bucket     string  `json:"sentiment_bucket" dynamodbav:"sentiment_bucket"`
	TextLength int     `json:"text_length" dynamodbav:"text_length"`
}

// NeutralSentiment is the fixed result for empty or whitespace-only text.
func NeutralSentiment() SentimentResult {
	return SentimentResult{
		Positive:   0,
		Neutral:    1,
		Negative:   0,
		Compound:   0,
		Label:      LABEL_NEUTRAL,
		Bucket:     BUCKET_NEUTRAL,
		TextLength: 0,
	}
}

type SentimentSummary struct {
	Total         int     `json:"total"`
	PositiveCount int     `json:"positive_count"`
	NeutralCount  int     `json:"neutral_count"`
	NegativeCount int     `json:"negative_count"`
	PositivePct   float64 `json:"positive_pct"`
	NeutralPct    float64 `json:"neutral_pct"`
	NegativePct   float64 `json:"negative_pct"`
	AvgCompound   float64 `json:"avg_compound"`
	AvgScore      float64 `json:"avg_score"`
}
