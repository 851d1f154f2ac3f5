package db

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/spacesedan/sentiharvest/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var storeNow = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T) (*Store, *clockwork.FakeClock) {
	t.Helper()
	clock := clockwork.NewFakeClockAt(storeNow)
	s, err := Open(filepath.Join(t.TempDir(), "test.db"), clock)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s, clock
}

func testItem(id, unit string, score int, created time.Time) models.Item {
	return models.Item{
		ID:         id,
		Unit:       unit,
		Title:      "Title " + id,
		Body:       "Body " + id,
		FullText:   "Title " + id + ". Body " + id,
		Author:     "author",
		CreatedAt:  created,
		Score:      score,
		Provenance: "new",
		FetchedAt:  storeNow,
		SentimentResult: models.SentimentResult{
			Positive: 0.5, Neutral: 0.5, Compound: 0.4,
			Label: models.LABEL_POSITIVE, Bucket: models.BUCKET_POSITIVE, TextLength: 12,
		},
	}
}

func TestUpsertItems_Empty(t *testing.T) {
	s, _ := newTestStore(t)
	n, err := s.UpsertItems(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	n, err = s.UpsertReplies(context.Background(), []models.Reply{})
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestUpsertItems_LatestWins(t *testing.T) {
	s, clock := newTestStore(t)
	ctx := context.Background()
	created := storeNow.Add(-time.Hour)

	n, err := s.UpsertItems(ctx, []models.Item{testItem("p1", "nyc", 10, created)})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	clock.Advance(2 * time.Hour)
	updated := testItem("p1", "nyc", 55, created)
	updated.SentimentResult = models.SentimentResult{
		Negative: 0.7, Neutral: 0.3, Compound: -0.8,
		Label: models.LABEL_NEGATIVE, Bucket: models.BUCKET_VERY_NEGATIVE,
	}
	n, err = s.UpsertItems(ctx, []models.Item{updated})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	items, err := s.QueryItems(ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, 55, items[0].Score)
	assert.Equal(t, -0.8, items[0].Compound)
	assert.Equal(t, models.BUCKET_VERY_NEGATIVE, items[0].Bucket)
	assert.Equal(t, created, items[0].CreatedAt)
	assert.Equal(t, storeNow.Add(2*time.Hour), items[0].UpdatedAt)

	var firstSeen, updatedAt int64
	require.NoError(t, s.db.QueryRow(`SELECT first_seen_at, updated_at FROM items WHERE id = 'p1'`).Scan(&firstSeen, &updatedAt))
	assert.Equal(t, storeNow.Unix(), firstSeen)
	assert.Equal(t, storeNow.Add(2*time.Hour).Unix(), updatedAt)
}

func TestUpsertItems_SkipsBadRows(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	_, err := s.db.Exec(`CREATE TRIGGER reject_boom BEFORE INSERT ON items
		WHEN NEW.title = 'boom' BEGIN SELECT RAISE(ABORT, 'rejected'); END`)
	require.NoError(t, err)

	bad := testItem("p2", "nyc", 1, storeNow)
	bad.Title = "boom"
	items := []models.Item{
		testItem("p1", "nyc", 1, storeNow),
		{ID: "", Unit: "nyc"},
		bad,
		{ID: "p3"},
		testItem("p4", "nyc", 1, storeNow),
	}

	n, err := s.UpsertItems(ctx, items)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	stored, err := s.QueryItems(ctx, "", 0)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"p1", "p4"}, models.ItemIDs(stored))
}

func TestWriteItems_ReturnsOnlyWrittenRows(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	written, err := s.WriteItems(ctx, []models.Item{
		testItem("p1", "nyc", 1, storeNow),
		{ID: "p2"},
		testItem("p3", "nyc", 1, storeNow),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"p1", "p3"}, models.ItemIDs(written))

	replies, err := s.WriteReplies(ctx, []models.Reply{
		{ID: "", ItemID: "p1", Unit: "nyc"},
		{ID: "r1", ItemID: "p1", Unit: "nyc", Body: "a reply"},
	})
	require.NoError(t, err)
	require.Len(t, replies, 1)
	assert.Equal(t, "r1", replies[0].ID)
}

func TestUpsertItems_Defaults(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	_, err := s.UpsertItems(ctx, []models.Item{{ID: "p1", Unit: "nyc", CreatedAt: storeNow}})
	require.NoError(t, err)

	items, err := s.QueryItems(ctx, "nyc", 0)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, models.DELETED_AUTHOR, items[0].Author)
	assert.Equal(t, models.LABEL_NEUTRAL, items[0].Label)
	assert.Equal(t, models.BUCKET_NEUTRAL, items[0].Bucket)
}

func TestQueryItems_WindowAndUnit(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	_, err := s.UpsertItems(ctx, []models.Item{
		testItem("recent", "nyc", 1, storeNow.Add(-24*time.Hour)),
		testItem("boundary", "nyc", 1, storeNow.Add(-3*24*time.Hour)),
		testItem("old", "nyc", 1, storeNow.Add(-10*24*time.Hour)),
		testItem("paris", "paris", 1, storeNow.Add(-time.Hour)),
	})
	require.NoError(t, err)

	items, err := s.QueryItems(ctx, "nyc", 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"recent", "boundary"}, models.ItemIDs(items))

	items, err = s.QueryItems(ctx, "", 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"paris", "recent", "boundary"}, models.ItemIDs(items))

	items, err = s.QueryItems(ctx, "nyc", 0)
	require.NoError(t, err)
	assert.Len(t, items, 3)

	items, err = s.QueryItems(ctx, "tokyo", 0)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestUpsertReplies_OrphansAllowed(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	replies := []models.Reply{
		{ID: "c1", ItemID: "missing-parent", Unit: "nyc", Body: "hello there", Score: 4, Depth: 1,
			CreatedAt: storeNow.Add(-time.Hour), FetchedAt: storeNow,
			SentimentResult: models.SentimentResult{Neutral: 1, Label: models.LABEL_NEUTRAL}},
		{ID: "c2", Unit: ""},
	}
	n, err := s.UpsertReplies(ctx, replies)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	replies[0].Score = 9
	_, err = s.UpsertReplies(ctx, replies[:1])
	require.NoError(t, err)

	got, err := s.QueryReplies(ctx, "nyc", 7)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "missing-parent", got[0].ItemID)
	assert.Equal(t, 9, got[0].Score)
	assert.Equal(t, 1, got[0].Depth)
	assert.Equal(t, models.BUCKET_NEUTRAL, got[0].Bucket)
	assert.Equal(t, models.DELETED_AUTHOR, got[0].Author)
}

func TestStats(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	st, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, Stats{}, st)

	early := storeNow.Add(-48 * time.Hour)
	_, err = s.UpsertItems(ctx, []models.Item{
		testItem("p1", "nyc", 1, early),
		testItem("p2", "paris", 1, storeNow),
		testItem("p3", "paris", 1, storeNow.Add(-time.Hour)),
	})
	require.NoError(t, err)
	_, err = s.UpsertReplies(ctx, []models.Reply{{ID: "c1", ItemID: "p1", Unit: "nyc"}})
	require.NoError(t, err)

	st, err = s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, st.TotalItems)
	assert.Equal(t, 1, st.TotalReplies)
	assert.Equal(t, 2, st.DistinctUnits)
	require.NotNil(t, st.EarliestItem)
	require.NotNil(t, st.LatestItem)
	assert.Equal(t, early, *st.EarliestItem)
	assert.Equal(t, storeNow, *st.LatestItem)
}

func TestSentimentSummary(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	neg := testItem("p2", "nyc", 30, storeNow)
	neg.Label, neg.Compound = models.LABEL_NEGATIVE, -0.5
	neutral := testItem("p3", "nyc", 0, storeNow)
	neutral.Label, neutral.Compound = models.LABEL_NEUTRAL, 0
	_, err := s.UpsertItems(ctx, []models.Item{testItem("p1", "nyc", 10, storeNow), neg, neutral,
		testItem("p4", "paris", 100, storeNow)})
	require.NoError(t, err)

	sum, err := s.SentimentSummary(ctx, "nyc")
	require.NoError(t, err)
	assert.Equal(t, 3, sum.Total)
	assert.Equal(t, 1, sum.PositiveCount)
	assert.Equal(t, 1, sum.NegativeCount)
	assert.Equal(t, 1, sum.NeutralCount)
	assert.Equal(t, 33.3, sum.PositivePct)
	assert.Equal(t, -0.033, sum.AvgCompound)
	assert.Equal(t, 13.3, sum.AvgScore)

	empty, err := s.SentimentSummary(ctx, "tokyo")
	require.NoError(t, err)
	assert.Equal(t, models.SentimentSummary{}, empty)
}

func TestOpen_MigratesLegacySchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "legacy.db")

	legacy, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	_, err = legacy.Exec(`
		CREATE TABLE items (
			id TEXT PRIMARY KEY, unit TEXT NOT NULL, title TEXT, body TEXT, full_text TEXT,
			author TEXT, created_utc INTEGER, score INTEGER, upvote_ratio REAL, num_comments INTEGER,
			url TEXT, permalink TEXT, source TEXT, fetched_at INTEGER,
			sentiment_positive REAL, sentiment_neutral REAL, sentiment_negative REAL,
			sentiment_compound REAL, sentiment TEXT, text_length INTEGER
		);
		INSERT INTO items (id, unit, title, created_utc, score, sentiment, sentiment_compound)
		VALUES ('old1', 'nyc', 'legacy row', 1741600000, 3, 'Negative', -0.4);
	`)
	require.NoError(t, err)
	require.NoError(t, legacy.Close())

	s, err := Open(path, clockwork.NewFakeClockAt(storeNow))
	require.NoError(t, err)
	defer s.Close()

	items, err := s.QueryItems(context.Background(), "", 0)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, models.LABEL_NEGATIVE, items[0].Label)
	assert.Equal(t, models.BUCKET_NEGATIVE, items[0].Bucket)
	assert.Equal(t, models.DELETED_AUTHOR, items[0].Author)
	assert.True(t, items[0].UpdatedAt.IsZero())

	n, err := s.UpsertItems(context.Background(), []models.Item{testItem("old1", "nyc", 8, storeNow)})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	var firstSeen int64
	require.NoError(t, s.db.QueryRow(`SELECT first_seen_at FROM items WHERE id = 'old1'`).Scan(&firstSeen))
	assert.Equal(t, storeNow.Unix(), firstSeen)
}
