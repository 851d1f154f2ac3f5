package models

import "encoding/json"

const (
	REDDIT_KIND_POST      = "t3"
	REDDIT_KIND_COMMENT   = "t1"
	REDDIT_KIND_SUBREDDIT = "t5"
	REDDIT_KIND_MORE      = "more"
	REDDIT_KIND_LISTING   = "Listing"
)

type RedditThing struct {
	Kind string          `json:"kind"`
	Data json.RawMessage `json:"data"`
}

type RedditListing struct {
	Kind string            `json:"kind"`
	Data RedditListingData `json:"data"`
}

type RedditListingData struct {
	After    string        `json:"after"`
	Children []RedditThing `json:"children"`
}

type RedditPostData struct {
	ID          string  `json:"id"`
	Subreddit   string  `json:"subreddit"`
	Author      string  `json:"author"`
	Title       string  `json:"title"`
	Selftext    string  `json:"selftext"`
	Score       int     `json:"score"`
	UpvoteRatio float64 `json:"upvote_ratio"`
	NumComments int     `json:"num_comments"`
	CreatedUTC  float64 `json:"created_utc"`
	URL         string  `json:"url"`
	Permalink   string  `json:"permalink"`
}

// RedditCommentData.Replies is either an empty string or a nested listing.
type RedditCommentData struct {
	ID         string          `json:"id"`
	Author     string          `json:"author"`
	Body       string          `json:"body"`
	Score      int             `json:"score"`
	CreatedUTC float64         `json:"created_utc"`
	Permalink  string          `json:"permalink"`
	Depth      int             `json:"depth"`
	Replies    json.RawMessage `json:"replies"`
}

type RedditSubredditData struct {
	DisplayName string `json:"display_name"`
	Subscribers int    `json:"subscribers"`
}
