package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/spacesedan/sentiharvest/internal/models"
)

const upsertReplySQL = `
INSERT INTO replies (
	id, item_id, unit, author, body, score, created_utc, permalink, depth, fetched_at,
	sentiment_positive, sentiment_neutral, sentiment_negative, sentiment_compound,
	sentiment, sentiment_bucket, text_length, first_seen_at, updated_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	item_id = excluded.item_id,
	unit = excluded.unit,
	author = excluded.author,
	body = excluded.body,
	score = excluded.score,
	permalink = excluded.permalink,
	depth = excluded.depth,
	fetched_at = excluded.fetched_at,
	sentiment_positive = excluded.sentiment_positive,
	sentiment_neutral = excluded.sentiment_neutral,
	sentiment_negative = excluded.sentiment_negative,
	sentiment_compound = excluded.sentiment_compound,
	sentiment = excluded.sentiment,
	sentiment_bucket = excluded.sentiment_bucket,
	text_length = excluded.text_length,
	first_seen_at = COALESCE(replies.first_seen_at, excluded.first_seen_at),
	updated_at = excluded.updated_at
`

const selectReplySQL = `
SELECT id, COALESCE(item_id, ''), unit, COALESCE(NULLIF(author, ''), '[deleted]'), COALESCE(body, ''),
	COALESCE(score, 0), COALESCE(created_utc, 0), COALESCE(permalink, ''), COALESCE(depth, 0),
	COALESCE(fetched_at, 0),
	COALESCE(sentiment_positive, 0), COALESCE(sentiment_neutral, 1), COALESCE(sentiment_negative, 0),
	COALESCE(sentiment_compound, 0), COALESCE(NULLIF(sentiment, ''), 'Neutral'),
	COALESCE(NULLIF(sentiment_bucket, ''), NULLIF(sentiment, ''), 'Neutral'),
	COALESCE(text_length, 0), COALESCE(updated_at, 0)
FROM replies`

// UpsertReplies mirrors UpsertItems. The parent item need not exist.
func (s *Store) UpsertReplies(ctx context.Context, replies []models.Reply) (int, error) {
	written, err := s.WriteReplies(ctx, replies)
	return len(written), err
}

// WriteReplies upserts like UpsertReplies and returns the rows actually written,
// in input order.
func (s *Store) WriteReplies(ctx context.Context, replies []models.Reply) ([]models.Reply, error) {
	now := s.clock.Now().Unix()

	written, err := s.upsertRows(ctx, "reply", upsertReplySQL, len(replies), func(i int) (string, []any, error) {
		reply := replies[i]
		if strings.TrimSpace(reply.ID) == "" {
			return reply.ID, nil, fmt.Errorf("%w: empty id", ErrInvalidRecord)
		}
		if strings.TrimSpace(reply.Unit) == "" {
			return reply.ID, nil, fmt.Errorf("%w: empty unit", ErrInvalidRecord)
		}

		sr := sentimentDefaults(reply.SentimentResult)
		return reply.ID, []any{
			reply.ID, reply.ItemID, reply.Unit, authorOrDeleted(reply.Author), reply.Body, reply.Score,
			toUnix(reply.CreatedAt), reply.Permalink, reply.Depth, toUnix(reply.FetchedAt),
			sr.Positive, sr.Neutral, sr.Negative, sr.Compound,
			sr.Label, sr.Bucket, sr.TextLength, now, now,
		}, nil
	})
	if err != nil {
		return nil, err
	}
	return pick(replies, written), nil
}

func (s *Store) QueryReplies(ctx context.Context, unit string, sinceDays int) ([]models.Reply, error) {
	where, args := s.windowClause(unit, sinceDays)

	rows, err := s.db.QueryContext(ctx, selectReplySQL+where+" ORDER BY created_utc DESC, id", args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query replies: %w", err)
	}
	defer rows.Close()

	var replies []models.Reply
	for rows.Next() {
		var (
			reply                     models.Reply
			created, fetched, updated int64
		)
		if err := rows.Scan(
			&reply.ID, &reply.ItemID, &reply.Unit, &reply.Author, &reply.Body, &reply.Score,
			&created, &reply.Permalink, &reply.Depth, &fetched,
			&reply.Positive, &reply.Neutral, &reply.Negative, &reply.Compound,
			&reply.Label, &reply.Bucket, &reply.TextLength, &updated,
		); err != nil {
			return nil, fmt.Errorf("failed to scan reply: %w", err)
		}
		reply.CreatedAt = fromUnix(created)
		reply.FetchedAt = fromUnix(fetched)
		reply.UpdatedAt = fromUnix(updated)
		replies = append(replies, reply)
	}
	return replies, rows.Err()
}
