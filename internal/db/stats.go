package db

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"time"

	"github.com/spacesedan/sentiharvest/internal/models"
)

type Stats struct {
	TotalItems    int
	TotalReplies  int
	EarliestItem  *time.Time
	LatestItem    *time.Time
	DistinctUnits int
}

func (s *Store) Stats(ctx context.Context) (Stats, error) {
	var (
		st               Stats
		earliest, latest sql.NullInt64
	)

	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), MIN(created_utc), MAX(created_utc), COUNT(DISTINCT unit) FROM items`,
	).Scan(&st.TotalItems, &earliest, &latest, &st.DistinctUnits)
	if err != nil {
		return Stats{}, fmt.Errorf("failed to read item stats: %w", err)
	}

	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM replies`).Scan(&st.TotalReplies); err != nil {
		return Stats{}, fmt.Errorf("failed to read reply stats: %w", err)
	}

	if earliest.Valid {
		t := fromUnix(earliest.Int64)
		st.EarliestItem = &t
	}
	if latest.Valid {
		t := fromUnix(latest.Int64)
		st.LatestItem = &t
	}
	return st, nil
}

// SentimentSummary aggregates item labels for one unit, or all units when unit is "".
func (s *Store) SentimentSummary(ctx context.Context, unit string) (models.SentimentSummary, error) {
	where, args := s.windowClause(unit, 0)

	var (
		sum                   models.SentimentSummary
		avgCompound, avgScore sql.NullFloat64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
			COALESCE(SUM(CASE WHEN sentiment = 'Positive' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN sentiment = 'Negative' THEN 1 ELSE 0 END), 0),
			AVG(sentiment_compound),
			AVG(score)
		FROM items`+where, args...,
	).Scan(&sum.Total, &sum.PositiveCount, &sum.NegativeCount, &avgCompound, &avgScore)
	if err != nil {
		return models.SentimentSummary{}, fmt.Errorf("failed to summarize sentiment: %w", err)
	}

	if sum.Total == 0 {
		return models.SentimentSummary{}, nil
	}

	sum.NeutralCount = sum.Total - sum.PositiveCount - sum.NegativeCount
	sum.PositivePct = percent(sum.PositiveCount, sum.Total)
	sum.NeutralPct = percent(sum.NeutralCount, sum.Total)
	sum.NegativePct = percent(sum.NegativeCount, sum.Total)
	sum.AvgCompound = math.Round(avgCompound.Float64*1000) / 1000
	sum.AvgScore = math.Round(avgScore.Float64*10) / 10
	return sum, nil
}

func percent(n, total int) float64 {
	return math.Round(float64(n)/float64(total)*1000) / 10
}
