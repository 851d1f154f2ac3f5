package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spacesedan/sentiharvest/internal/app"
)

func main() {
	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Error("Invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		slog.Error("Failed to start", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer a.Close()

	summary := a.Collector.CollectAll(ctx, cfg.Units)
	slog.Info("Collection finished",
		slog.String("run_id", summary.RunID),
		slog.Int("items_stored", summary.ItemsStored),
		slog.Int("replies_stored", summary.RepliesStored),
		slog.Int("failed_units", summary.FailedUnits))

	a.LogStoreStats(context.Background())
}
