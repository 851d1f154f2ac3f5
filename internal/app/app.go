package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/jonboulle/clockwork"
	"github.com/spacesedan/sentiharvest/config"
	"github.com/spacesedan/sentiharvest/internal/clients"
	"github.com/spacesedan/sentiharvest/internal/clients/kafka_client"
	"github.com/spacesedan/sentiharvest/internal/db"
	"github.com/spacesedan/sentiharvest/internal/fetcher"
	"github.com/spacesedan/sentiharvest/internal/logging"
	"github.com/spacesedan/sentiharvest/internal/processing"
	"github.com/spacesedan/sentiharvest/internal/sentiment"
)

// App owns everything both commands share: config, store, collector and the
// optional sinks.
type App struct {
	Config    *config.Config
	Store     *db.Store
	Collector *processing.Collector

	closers []func()
}

// LoadConfig reads the .env file for APP_ENV, installs the logger and returns
// the validated config.
func LoadConfig() (*config.Config, error) {
	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "dev"
	}
	config.LoadEnv(env)

	cfg, err := config.Load()
	if err != nil {
		logging.InitLogger("info")
		return nil, err
	}
	logging.InitLogger(cfg.LogLevel)
	return cfg, nil
}

// New wires the pipeline. Only the store is mandatory; sinks and the reply
// tracker that fail to connect are logged and left out.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	clock := clockwork.NewRealClock()

	store, err := db.Open(cfg.DBPath, clock)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	a := &App{Config: cfg, Store: store}
	a.closers = append(a.closers, func() {
		if err := store.Close(); err != nil {
			slog.Error("[App] Failed to close store", slog.String("error", err.Error()))
		}
	})

	var opts []processing.CollectorOption

	if cfg.KafkaBroker != "" {
		publisher, err := kafka_client.NewResultsPublisher(ctx, kafka_client.NewKafkaConfig(cfg))
		if err != nil {
			slog.Warn("[App] Kafka sink disabled", slog.String("error", err.Error()))
		} else {
			opts = append(opts, processing.WithSinks(publisher))
			a.closers = append(a.closers, publisher.Close)
		}
	}

	if cfg.DynamoDBTable != "" {
		client, err := clients.NewDynamoDBClient(ctx, cfg)
		if err != nil {
			slog.Warn("[App] DynamoDB mirror disabled", slog.String("error", err.Error()))
		} else {
			opts = append(opts, processing.WithSinks(db.NewDynamoMirror(client, cfg.DynamoDBTable)))
		}
	}

	if cfg.ValkeyAddress != "" {
		tracker, err := clients.NewValkeyClient(ctx, cfg)
		if err != nil {
			slog.Warn("[App] Reply cooldown disabled", slog.String("error", err.Error()))
		} else {
			opts = append(opts, processing.WithReplyTracker(tracker))
			a.closers = append(a.closers, tracker.Close)
		}
	}

	source := clients.NewRedditClient(cfg)
	f := fetcher.NewFetcher(cfg, source, clock)
	classifier := sentiment.NewClassifier(cfg)
	a.Collector = processing.NewCollector(cfg, f, classifier, store, clock, opts...)

	slog.Info("[App] Pipeline ready",
		slog.Any("units", cfg.UnitNames()),
		slog.String("db_path", cfg.DBPath),
		slog.Bool("replies", cfg.FetchComments && f.SupportsReplies()))
	return a, nil
}

// Close releases resources in reverse order of creation.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// LogStoreStats prints what the store holds after a run.
func (a *App) LogStoreStats(ctx context.Context) {
	st, err := a.Store.Stats(ctx)
	if err != nil {
		slog.Warn("[App] Failed to read store stats", slog.String("error", err.Error()))
		return
	}

	attrs := []any{
		slog.Int("items", st.TotalItems),
		slog.Int("replies", st.TotalReplies),
		slog.Int("units", st.DistinctUnits),
	}
	if st.EarliestItem != nil && st.LatestItem != nil {
		attrs = append(attrs,
			slog.Time("earliest", *st.EarliestItem),
			slog.Time("latest", *st.LatestItem))
	}
	slog.Info("[App] Store totals", attrs...)

	for _, unit := range a.Config.Units {
		sum, err := a.Store.SentimentSummary(ctx, unit.Key)
		if err != nil {
			slog.Warn("[App] Failed to summarize unit", slog.String("unit", unit.Name), slog.String("error", err.Error()))
			continue
		}
		slog.Info("[App] Unit sentiment",
			slog.String("unit", unit.Name),
			slog.Int("items", sum.Total),
			slog.Float64("positive_pct", sum.PositivePct),
			slog.Float64("neutral_pct", sum.NeutralPct),
			slog.Float64("negative_pct", sum.NegativePct),
			slog.Float64("avg_compound", sum.AvgCompound),
			slog.Float64("avg_score", sum.AvgScore))
	}
}
