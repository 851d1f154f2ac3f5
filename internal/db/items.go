package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/spacesedan/sentiharvest/internal/models"
)

const upsertItemSQL = `
INSERT INTO items (
	id, unit, title, body, full_text, author, created_utc, score, upvote_ratio,
	num_comments, url, permalink, source, fetched_at,
	sentiment_positive, sentiment_neutral, sentiment_negative, sentiment_compound,
	sentiment, sentiment_bucket, text_length, first_seen_at, updated_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	unit = excluded.unit,
	title = excluded.title,
	body = excluded.body,
	full_text = excluded.full_text,
	author = excluded.author,
	score = excluded.score,
	upvote_ratio = excluded.upvote_ratio,
	num_comments = excluded.num_comments,
	url = excluded.url,
	permalink = excluded.permalink,
	source = excluded.source,
	fetched_at = excluded.fetched_at,
	sentiment_positive = excluded.sentiment_positive,
	sentiment_neutral = excluded.sentiment_neutral,
	sentiment_negative = excluded.sentiment_negative,
	sentiment_compound = excluded.sentiment_compound,
	sentiment = excluded.sentiment,
	sentiment_bucket = excluded.sentiment_bucket,
	text_length = excluded.text_length,
	first_seen_at = COALESCE(items.first_seen_at, excluded.first_seen_at),
	updated_at = excluded.updated_at
`

const selectItemSQL = `
SELECT id, unit, COALESCE(title, ''), COALESCE(body, ''), COALESCE(full_text, ''),
	COALESCE(NULLIF(author, ''), '[deleted]'), COALESCE(created_utc, 0), COALESCE(score, 0),
	COALESCE(upvote_ratio, 0), COALESCE(num_comments, 0), COALESCE(url, ''), COALESCE(permalink, ''),
	COALESCE(source, ''), COALESCE(fetched_at, 0),
	COALESCE(sentiment_positive, 0), COALESCE(sentiment_neutral, 1), COALESCE(sentiment_negative, 0),
	COALESCE(sentiment_compound, 0), COALESCE(NULLIF(sentiment, ''), 'Neutral'),
	COALESCE(NULLIF(sentiment_bucket, ''), NULLIF(sentiment, ''), 'Neutral'),
	COALESCE(text_length, 0), COALESCE(updated_at, 0)
FROM items`

// UpsertItems inserts new items and overwrites every mutable field of known
// ones. The first-seen timestamp of an existing row is kept.
func (s *Store) UpsertItems(ctx context.Context, items []models.Item) (int, error) {
	written, err := s.WriteItems(ctx, items)
	return len(written), err
}

// WriteItems upserts like UpsertItems and returns the rows actually written,
// in input order.
func (s *Store) WriteItems(ctx context.Context, items []models.Item) ([]models.Item, error) {
	now := s.clock.Now().Unix()

	written, err := s.upsertRows(ctx, "item", upsertItemSQL, len(items), func(i int) (string, []any, error) {
		item := items[i]
		if strings.TrimSpace(item.ID) == "" {
			return item.ID, nil, fmt.Errorf("%w: empty id", ErrInvalidRecord)
		}
		if strings.TrimSpace(item.Unit) == "" {
			return item.ID, nil, fmt.Errorf("%w: empty unit", ErrInvalidRecord)
		}

		sr := sentimentDefaults(item.SentimentResult)
		return item.ID, []any{
			item.ID, item.Unit, item.Title, item.Body, item.FullText, authorOrDeleted(item.Author),
			toUnix(item.CreatedAt), item.Score, item.UpvoteRatio, item.NumReplies, item.URL,
			item.Permalink, item.Provenance, toUnix(item.FetchedAt),
			sr.Positive, sr.Neutral, sr.Negative, sr.Compound,
			sr.Label, sr.Bucket, sr.TextLength, now, now,
		}, nil
	})
	if err != nil {
		return nil, err
	}
	return pick(items, written), nil
}

// QueryItems returns items newest first. unit "" selects all units and
// sinceDays <= 0 selects all time.
func (s *Store) QueryItems(ctx context.Context, unit string, sinceDays int) ([]models.Item, error) {
	where, args := s.windowClause(unit, sinceDays)

	rows, err := s.db.QueryContext(ctx, selectItemSQL+where+" ORDER BY created_utc DESC, id", args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query items: %w", err)
	}
	defer rows.Close()

	var items []models.Item
	for rows.Next() {
		var (
			item                      models.Item
			created, fetched, updated int64
		)
		if err := rows.Scan(
			&item.ID, &item.Unit, &item.Title, &item.Body, &item.FullText, &item.Author,
			&created, &item.Score, &item.UpvoteRatio, &item.NumReplies, &item.URL, &item.Permalink,
			&item.Provenance, &fetched,
			&item.Positive, &item.Neutral, &item.Negative, &item.Compound,
			&item.Label, &item.Bucket, &item.TextLength, &updated,
		); err != nil {
			return nil, fmt.Errorf("failed to scan item: %w", err)
		}
		item.CreatedAt = fromUnix(created)
		item.FetchedAt = fromUnix(fetched)
		item.UpdatedAt = fromUnix(updated)
		items = append(items, item)
	}
	return items, rows.Err()
}
