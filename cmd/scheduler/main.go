package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spacesedan/sentiharvest/internal/app"
	"github.com/spacesedan/sentiharvest/internal/scheduler"
)

func main() {
	runNow := flag.Bool("now", true, "run a collection immediately on start")
	flag.Parse()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Error("Invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	a, err := app.New(context.Background(), cfg)
	if err != nil {
		slog.Error("Failed to start", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer a.Close()

	s := scheduler.New(cfg, a.Collector)
	if err := s.Start(*runNow); err != nil {
		slog.Error("Failed to start scheduler", slog.String("error", err.Error()))
		os.Exit(1)
	}

	stopChan := make(chan os.Signal, 1)
	signal.Notify(stopChan, os.Interrupt, syscall.SIGTERM)
	<-stopChan

	slog.Info("Shutting down scheduler, waiting for any in-flight run...")
	s.Stop()
	a.LogStoreStats(context.Background())
}
