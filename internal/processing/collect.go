package processing

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/spacesedan/sentiharvest/config"
	"github.com/spacesedan/sentiharvest/internal/models"
	"github.com/spacesedan/sentiharvest/internal/sentiment"
)

const (
	STATUS_OK     = "ok"
	STATUS_EMPTY  = "empty"
	STATUS_FAILED = "failed"
)

// ItemFetcher is satisfied by *fetcher.Fetcher.
type ItemFetcher interface {
	CheckUnit(ctx context.Context, unit string) error
	FetchItemsStrict(ctx context.Context, unit string, limit int, rangeFilter string) ([]models.Item, error)
	SupportsReplies() bool
	FetchReplies(ctx context.Context, items []models.Item, maxPerItem int, sortOrder string, minLength int) ([]models.Reply, []string)
}

// Scorer is satisfied by *sentiment.Classifier.
type Scorer interface {
	ScoreItems(items []models.Item) []models.Item
	ScoreReplies(replies []models.Reply) []models.Reply
}

// ItemStore is satisfied by *db.Store. Both methods return the rows written.
type ItemStore interface {
	WriteItems(ctx context.Context, items []models.Item) ([]models.Item, error)
	WriteReplies(ctx context.Context, replies []models.Reply) ([]models.Reply, error)
}

// Sink receives the records the store wrote. Sink failures never affect
// stored counts.
type Sink interface {
	Name() string
	PublishItems(ctx context.Context, items []models.Item) error
	PublishReplies(ctx context.Context, replies []models.Reply) error
}

// ReplyTracker remembers items whose replies were harvested recently.
type ReplyTracker interface {
	FilterUnharvested(ctx context.Context, itemIDs []string) ([]string, error)
	MarkHarvested(ctx context.Context, itemIDs []string) error
}

type UnitResult struct {
	Name          string
	Key           string
	ItemsStored   int
	RepliesStored int
	Status        string
	Err           error
	Duration      time.Duration
}

type RunSummary struct {
	RunID         string
	Started       time.Time
	Duration      time.Duration
	Units         []UnitResult
	ItemsStored   int
	RepliesStored int
	FailedUnits   int
}

type Collector struct {
	fetcher    ItemFetcher
	classifier Scorer
	store      ItemStore
	sinks      []Sink
	tracker    ReplyTracker
	clock      clockwork.Clock

	maxItems       int
	rangeFilter    string
	fetchReplies   bool
	maxReplies     int
	replySort      string
	minReplyLength int
}

type CollectorOption func(*Collector)

func WithSinks(sinks ...Sink) CollectorOption {
	return func(c *Collector) { c.sinks = append(c.sinks, sinks...) }
}

func WithReplyTracker(tracker ReplyTracker) CollectorOption {
	return func(c *Collector) { c.tracker = tracker }
}

func NewCollector(cfg *config.Config, fetcher ItemFetcher, classifier Scorer, store ItemStore, clock clockwork.Clock, opts ...CollectorOption) *Collector {
	c := &Collector{
		fetcher:        fetcher,
		classifier:     classifier,
		store:          store,
		clock:          clock,
		maxItems:       cfg.MaxPostsPerFetch,
		rangeFilter:    cfg.FetchTimeFilter,
		fetchReplies:   cfg.FetchComments,
		maxReplies:     cfg.MaxCommentsPerPost,
		replySort:      cfg.CommentSort,
		minReplyLength: cfg.MinCommentLength,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CollectOne runs connect-check, fetch, classify and store for one unit, then
// the same for replies when enabled. It never panics or returns an error; the
// outcome is reported in the result.
func (c *Collector) CollectOne(ctx context.Context, unit config.SourceUnit) (result UnitResult) {
	start := c.clock.Now()
	result = UnitResult{Name: unit.Name, Key: unit.Key, Status: STATUS_OK}

	defer func() {
		if r := recover(); r != nil {
			slog.Error("[Collector] Recovered from panic",
				slog.String("unit", unit.Name),
				slog.String("key", unit.Key),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())))
			result.Status = STATUS_FAILED
			result.Err = fmt.Errorf("panic collecting %s: %v", unit.Key, r)
		}
		result.Duration = c.clock.Since(start)
	}()

	slog.Info("[Collector] Collecting unit", slog.String("unit", unit.Name), slog.String("key", unit.Key))

	if err := c.fetcher.CheckUnit(ctx, unit.Key); err != nil {
		return c.fail(result, "connect-check", err)
	}

	items, err := c.fetcher.FetchItemsStrict(ctx, unit.Key, c.maxItems, c.rangeFilter)
	if err != nil {
		return c.fail(result, "fetch-items", err)
	}
	if len(items) == 0 {
		slog.Info("[Collector] No items found", slog.String("unit", unit.Name))
		result.Status = STATUS_EMPTY
		return result
	}

	scored := c.classifier.ScoreItems(items)
	logSentiment(unit, "items", sentiment.Summarize(sentiment.ItemResults(scored)))

	stored, err := c.store.WriteItems(ctx, scored)
	if err != nil {
		return c.fail(result, "store-items", err)
	}
	result.ItemsStored = len(stored)
	if len(stored) == 0 {
		slog.Warn("[Collector] No items stored", slog.String("unit", unit.Name))
		result.Status = STATUS_EMPTY
		return result
	}
	c.publishItems(ctx, unit, stored)

	if !c.fetchReplies || !c.fetcher.SupportsReplies() {
		return result
	}

	targets := c.replyTargets(ctx, unit, stored)
	if len(targets) == 0 {
		return result
	}

	replies, fetched := c.fetcher.FetchReplies(ctx, targets, c.maxReplies, c.replySort, c.minReplyLength)
	c.markHarvested(ctx, unit, fetched)
	if len(replies) == 0 {
		return result
	}

	scoredReplies := c.classifier.ScoreReplies(replies)
	logSentiment(unit, "replies", sentiment.Summarize(sentiment.ReplyResults(scoredReplies)))

	storedReplies, err := c.store.WriteReplies(ctx, scoredReplies)
	if err != nil {
		return c.fail(result, "store-replies", err)
	}
	result.RepliesStored = len(storedReplies)
	if len(storedReplies) > 0 {
		c.publishReplies(ctx, unit, storedReplies)
	}

	slog.Info("[Collector] Unit complete",
		slog.String("unit", unit.Name),
		slog.Int("items", result.ItemsStored),
		slog.Int("replies", result.RepliesStored))
	return result
}

// CollectAll processes units one at a time. Cancellation is honoured between
// units only.
func (c *Collector) CollectAll(ctx context.Context, units []config.SourceUnit) RunSummary {
	summary := RunSummary{
		RunID:   uuid.NewString(),
		Started: c.clock.Now(),
	}

	slog.Info("[Collector] Starting run",
		slog.String("run_id", summary.RunID),
		slog.Int("units", len(units)))

	for _, unit := range units {
		if err := ctx.Err(); err != nil {
			slog.Warn("[Collector] Run cancelled, skipping remaining units",
				slog.String("run_id", summary.RunID),
				slog.String("next_unit", unit.Name))
			break
		}

		res := c.CollectOne(ctx, unit)
		summary.Units = append(summary.Units, res)
		summary.ItemsStored += res.ItemsStored
		summary.RepliesStored += res.RepliesStored
		if res.Status == STATUS_FAILED {
			summary.FailedUnits++
		}
	}

	summary.Duration = c.clock.Since(summary.Started)
	summary.Log()
	return summary
}

func (s RunSummary) Log() {
	for _, u := range s.Units {
		attrs := []any{
			slog.String("run_id", s.RunID),
			slog.String("unit", u.Name),
			slog.String("status", u.Status),
			slog.Int("items", u.ItemsStored),
			slog.Int("replies", u.RepliesStored),
		}
		if u.Err != nil {
			attrs = append(attrs, slog.String("error", u.Err.Error()))
		}
		slog.Info("[Collector] Unit result", attrs...)
	}

	slog.Info("[Collector] Run complete",
		slog.String("run_id", s.RunID),
		slog.Int("units", len(s.Units)),
		slog.Int("failed_units", s.FailedUnits),
		slog.Int("items_stored", s.ItemsStored),
		slog.Int("replies_stored", s.RepliesStored),
		slog.Duration("duration", s.Duration))
}

func (c *Collector) fail(result UnitResult, stage string, err error) UnitResult {
	slog.Error("[Collector] Unit failed",
		slog.String("unit", result.Name),
		slog.String("key", result.Key),
		slog.String("stage", stage),
		slog.String("error", err.Error()))
	result.Status = STATUS_FAILED
	result.Err = fmt.Errorf("%s: %w", stage, err)
	return result
}

// replyTargets drops items still inside their reply cooldown. Tracker errors
// fall back to every item.
func (c *Collector) replyTargets(ctx context.Context, unit config.SourceUnit, items []models.Item) []models.Item {
	if c.tracker == nil {
		return items
	}

	pending, err := c.tracker.FilterUnharvested(ctx, models.ItemIDs(items))
	if err != nil {
		slog.Warn("[Collector] Reply cooldown lookup failed, fetching all replies",
			slog.String("unit", unit.Name),
			slog.String("error", err.Error()))
		return items
	}

	keep := make(map[string]struct{}, len(pending))
	for _, id := range pending {
		keep[id] = struct{}{}
	}

	targets := make([]models.Item, 0, len(pending))
	for _, item := range items {
		if _, ok := keep[item.ID]; ok {
			targets = append(targets, item)
		}
	}

	if skipped := len(items) - len(targets); skipped > 0 {
		slog.Info("[Collector] Skipping replies inside cooldown",
			slog.String("unit", unit.Name),
			slog.Int("skipped", skipped))
	}
	return targets
}

// markHarvested starts the cooldown only for items whose reply tree was read,
// so a failed fetch is retried on the next run.
func (c *Collector) markHarvested(ctx context.Context, unit config.SourceUnit, itemIDs []string) {
	if c.tracker == nil || len(itemIDs) == 0 {
		return
	}
	if err := c.tracker.MarkHarvested(ctx, itemIDs); err != nil {
		slog.Warn("[Collector] Failed to record reply cooldown",
			slog.String("unit", unit.Name),
			slog.String("error", err.Error()))
	}
}

func (c *Collector) publishItems(ctx context.Context, unit config.SourceUnit, items []models.Item) {
	for _, sink := range c.sinks {
		if err := sink.PublishItems(ctx, items); err != nil {
			slog.Warn("[Collector] Sink failed",
				slog.String("sink", sink.Name()),
				slog.String("unit", unit.Name),
				slog.String("error", err.Error()))
		}
	}
}

func (c *Collector) publishReplies(ctx context.Context, unit config.SourceUnit, replies []models.Reply) {
	for _, sink := range c.sinks {
		if err := sink.PublishReplies(ctx, replies); err != nil {
			slog.Warn("[Collector] Sink failed",
				slog.String("sink", sink.Name()),
				slog.String("unit", unit.Name),
				slog.String("error", err.Error()))
		}
	}
}

func logSentiment(unit config.SourceUnit, kind string, s models.SentimentSummary) {
	slog.Info("[Collector] Sentiment breakdown",
		slog.String("unit", unit.Name),
		slog.String("kind", kind),
		slog.Int("total", s.Total),
		slog.Float64("positive_pct", s.PositivePct),
		slog.Float64("neutral_pct", s.NeutralPct),
		slog.Float64("negative_pct", s.NegativePct),
		slog.Float64("avg_compound", s.AvgCompound))
}
