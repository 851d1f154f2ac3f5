package fetcher

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/jonboulle/clockwork"
	"github.com/spacesedan/sentiharvest/config"
	"github.com/spacesedan/sentiharvest/internal/models"
)

const (
	PROVENANCE_NEW = "new"
	PROVENANCE_HOT = "hot"
	PROVENANCE_TOP = "top"

	PERMALINK_BASE = "https://reddit.com"
)

type Fetcher struct {
	source        Source
	replies       ReplySource
	minTextLength int
	clock         clockwork.Clock
}

func NewFetcher(cfg *config.Config, source Source, clock clockwork.Clock) *Fetcher {
	f := &Fetcher{
		source:        source,
		minTextLength: cfg.MinTextLength,
		clock:         clock,
	}
	if rs, ok := source.(ReplySource); ok {
		f.replies = rs
	}
	return f
}

func (f *Fetcher) SupportsReplies() bool {
	return f.replies != nil
}

func (f *Fetcher) CheckUnit(ctx context.Context, unit string) error {
	return f.source.CheckUnit(ctx, unit)
}

// FetchItems merges the new, hot and top listings of unit. Upstream failures are
// logged and reported as an empty result.
func (f *Fetcher) FetchItems(ctx context.Context, unit string, limit int, rangeFilter string) []models.Item {
	items, err := f.FetchItemsStrict(ctx, unit, limit, rangeFilter)
	if err != nil {
		return nil
	}
	return items
}

// FetchItemsStrict is FetchItems with the upstream error returned to the caller.
// No partial result is returned on error.
func (f *Fetcher) FetchItemsStrict(ctx context.Context, unit string, limit int, rangeFilter string) ([]models.Item, error) {
	per := limit / 3

	listings := []struct {
		name string
		list func() ([]models.RawItem, error)
	}{
		{PROVENANCE_NEW, func() ([]models.RawItem, error) { return f.source.ListByRecency(ctx, unit, per) }},
		{PROVENANCE_HOT, func() ([]models.RawItem, error) { return f.source.ListByRank(ctx, unit, per) }},
		{PROVENANCE_TOP, func() ([]models.RawItem, error) { return f.source.ListTopInRange(ctx, unit, rangeFilter, per) }},
	}

	fetchedAt := f.clock.Now().UTC()
	seen := make(map[string]struct{})
	var items []models.Item

	for _, listing := range listings {
		raws, err := listing.list()
		if err != nil {
			slog.Error("[Fetcher] Failed to fetch listing",
				slog.String("unit", unit),
				slog.String("listing", listing.name),
				slog.String("error", err.Error()))
			return nil, fmt.Errorf("failed to fetch %s listing for %s: %w", listing.name, unit, err)
		}

		for _, raw := range raws {
			if raw.ID == "" {
				continue
			}
			if _, dup := seen[raw.ID]; dup {
				continue
			}
			seen[raw.ID] = struct{}{}

			text := raw.Body
			if text == "" {
				text = raw.Title
			}
			if utf8.RuneCountInString(text) < f.minTextLength {
				continue
			}

			items = append(items, newItem(raw, unit, listing.name, fetchedAt))
		}
	}

	slog.Info("[Fetcher] Fetched items",
		slog.String("unit", unit),
		slog.Int("unique", len(seen)),
		slog.Int("kept", len(items)))
	return items, nil
}

// FetchReplies collects up to maxPerItem replies for each item, highest score
// first. Items whose replies cannot be fetched are logged and skipped. The ids
// of items whose reply tree was read are returned alongside, in input order.
func (f *Fetcher) FetchReplies(ctx context.Context, items []models.Item, maxPerItem int, sortOrder string, minLength int) ([]models.Reply, []string) {
	if f.replies == nil || len(items) == 0 || maxPerItem <= 0 {
		return nil, nil
	}

	fetchedAt := f.clock.Now().UTC()
	var replies []models.Reply
	var fetched []string

	for _, item := range items {
		if item.ID == "" {
			continue
		}

		tree, err := f.replies.FetchReplies(ctx, item.ID, sortOrder)
		if err != nil {
			slog.Warn("[Fetcher] Failed to fetch replies",
				slog.String("unit", item.Unit),
				slog.String("item_id", item.ID),
				slog.String("error", err.Error()))
			continue
		}
		fetched = append(fetched, item.ID)

		flat := Flatten(tree)
		slices.SortStableFunc(flat, func(a, b models.RawReply) int {
			return cmp.Compare(b.Score, a.Score)
		})

		taken := 0
		for _, raw := range flat {
			if taken >= maxPerItem {
				break
			}
			if utf8.RuneCountInString(strings.TrimSpace(raw.Body)) < minLength {
				continue
			}
			replies = append(replies, newReply(raw, item, fetchedAt))
			taken++
		}
	}

	slog.Info("[Fetcher] Fetched replies",
		slog.Int("items", len(items)),
		slog.Int("fetched", len(fetched)),
		slog.Int("replies", len(replies)))
	return replies, fetched
}

// Flatten walks a reply tree depth first. Truncated-branch placeholders are
// dropped rather than expanded.
func Flatten(tree []models.RawReply) []models.RawReply {
	var out []models.RawReply
	var walk func(nodes []models.RawReply)
	walk = func(nodes []models.RawReply) {
		for _, node := range nodes {
			if node.IsMore {
				continue
			}
			children := node.Children
			node.Children = nil
			out = append(out, node)
			walk(children)
		}
	}
	walk(tree)
	return out
}

func newItem(raw models.RawItem, unit, provenance string, fetchedAt time.Time) models.Item {
	fullText := raw.Title
	if raw.Body != "" {
		fullText = raw.Title + ". " + raw.Body
	}

	return models.Item{
		ID:          raw.ID,
		Unit:        unit,
		Title:       raw.Title,
		Body:        raw.Body,
		FullText:    fullText,
		Author:      authorOrDeleted(raw.Author),
		CreatedAt:   raw.CreatedAt.UTC(),
		Score:       raw.Score,
		UpvoteRatio: raw.UpvoteRatio,
		NumReplies:  raw.NumComments,
		URL:         raw.URL,
		Permalink:   Permalink(raw.Permalink),
		Provenance:  provenance,
		FetchedAt:   fetchedAt,
	}
}

func newReply(raw models.RawReply, item models.Item, fetchedAt time.Time) models.Reply {
	return models.Reply{
		ID:        raw.ID,
		ItemID:    item.ID,
		Unit:      item.Unit,
		Author:    authorOrDeleted(raw.Author),
		Body:      raw.Body,
		Score:     raw.Score,
		CreatedAt: raw.CreatedAt.UTC(),
		Permalink: Permalink(raw.Permalink),
		Depth:     raw.Depth,
		FetchedAt: fetchedAt,
	}
}

// Permalink turns a site-relative path into an absolute link.
func Permalink(path string) string {
	if path == "" || strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return PERMALINK_BASE + path
}

func authorOrDeleted(author string) string {
	if author == "" {
		return models.DELETED_AUTHOR
	}
	return author
}
