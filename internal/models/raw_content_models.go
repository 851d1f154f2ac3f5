package models

import "time"

// RawItem is a post as returned by the upstream source, before filtering and scoring.
type RawItem struct {
	ID          string
	Title       string
	Body        string
	Author      string
	CreatedAt   time.Time
	Score       int
	UpvoteRatio float64
	NumComments int
	URL         string
	Permalink   string // path relative to the site root, e.g. /r/nyc/comments/abc/...
}

// RawReply is one node of a reply tree. Placeholder nodes standing in for
// truncated branches have IsMore set and carry no content.
type RawReply struct {
	ID        string
	Author    string
	Body      string
	Score     int
	CreatedAt time.Time
	Permalink string
	Depth     int
	IsMore    bool
	Children  []RawReply
}
