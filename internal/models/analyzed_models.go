package models

import "time"

const DELETED_AUTHOR = "[deleted]"

// Item is a top-level post from a source unit together with its sentiment.
type Item struct {
	ID          string    `json:"post_id" dynamodbav:"post_id"`
	Unit        string    `json:"subreddit" dynamodbav:"subreddit"`
	Title       string    `json:"title" dynamodbav:"title"`
	Body        string    `json:"text" dynamodbav:"text"`
	FullText    string    `json:"full_text" dynamodbav:"full_text"`
	Author      string    `json:"author" dynamodbav:"author"`
	CreatedAt   time.Time `json:"created_utc" dynamodbav:"created_utc"`
	Score       int       `json:"score" dynamodbav:"score"`
	UpvoteRatio float64   `json:"upvote_ratio" dynamodbav:"upvote_ratio"`
	NumReplies  int       `json:"num_comments" dynamodbav:"num_comments"`
	URL         string    `json:"url" dynamodbav:"url"`
	Permalink   string    `json:"permalink" dynamodbav:"permalink"`
	Provenance  string    `json:"source" dynamodbav:"source"`
	FetchedAt   time.Time `json:"fetched_at" dynamodbav:"fetched_at"`
	UpdatedAt   time.Time `json:"updated_at,omitempty" dynamodbav:"updated_at,omitempty"`
	SentimentResult
}

// Reply is a comment attached to an Item. ItemID is not enforced as a foreign
// key; replies may outlive the item rows they point at.
type Reply struct {
	ID        string    `json:"comment_id" dynamodbav:"comment_id"`
	ItemID    string    `json:"post_id" dynamodbav:"post_id"`
	Unit      string    `json:"subreddit" dynamodbav:"subreddit"`
	Author    string    `json:"author" dynamodbav:"author"`
	Body      string    `json:"body" dynamodbav:"body"`
	Score     int       `json:"score" dynamodbav:"score"`
	CreatedAt time.Time `json:"created_utc" dynamodbav:"created_utc"`
	Permalink string    `json:"permalink" dynamodbav:"permalink"`
	Depth     int       `json:"depth" dynamodbav:"depth"`
	FetchedAt time.Time `json:"fetched_at" dynamodbav:"fetched_at"`
	UpdatedAt time.Time `json:"updated_at,omitempty" dynamodbav:"updated_at,omitempty"`
	SentimentResult
}

// ItemIDs returns the external ids of items in order.
func ItemIDs(items []Item) []string {
	ids := make([]string, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ID)
	}
	return ids
}
