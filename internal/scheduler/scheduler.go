package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spacesedan/sentiharvest/config"
	"github.com/spacesedan/sentiharvest/internal/processing"
)

var ErrAlreadyRunning = errors.New("scheduler already running")

// Runner is satisfied by *processing.Collector.
type Runner interface {
	CollectAll(ctx context.Context, units []config.SourceUnit) processing.RunSummary
}

// Scheduler runs a full collection across all units every interval. At most
// one run executes at a time; ticks that land on an in-flight run are skipped.
type Scheduler struct {
	runner   Runner
	units    []config.SourceUnit
	interval time.Duration

	mu      sync.Mutex
	cron    *cron.Cron
	entryID cron.EntryID
	// immediate tracks the run started by the current Start. Each Start gets
	// its own group so a Stop still waiting never overlaps a new Add.
	immediate *sync.WaitGroup

	inFlight atomic.Bool
}

func New(cfg *config.Config, runner Runner) *Scheduler {
	return &Scheduler{
		runner:   runner,
		units:    cfg.Units,
		interval: cfg.CollectionInterval(),
	}
}

// Start arms the interval timer. With runImmediately a first run begins in the
// background right away.
func (s *Scheduler) Start(runImmediately bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron != nil {
		return ErrAlreadyRunning
	}

	logger := cronLogger{}
	c := cron.New(cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)))
	s.entryID = c.Schedule(cron.Every(s.interval), cron.FuncJob(func() {
		s.RunAll(context.Background())
	}))
	c.Start()
	s.cron = c
	wg := &sync.WaitGroup{}
	s.immediate = wg

	slog.Info("[Scheduler] Started",
		slog.Duration("interval", s.interval),
		slog.Int("units", len(s.units)),
		slog.Bool("run_immediately", runImmediately))

	if runImmediately {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.RunAll(context.Background())
		}()
	}
	return nil
}

// Stop cancels the timer and waits for an in-flight run to finish. It does not
// interrupt that run. Stopping an idle scheduler is a no-op.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	c, entryID, wg := s.cron, s.entryID, s.immediate
	s.cron, s.immediate = nil, nil
	s.mu.Unlock()

	if c == nil {
		return
	}

	c.Remove(entryID)
	<-c.Stop().Done()
	wg.Wait()

	slog.Info("[Scheduler] Stopped")
}

func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cron != nil
}

// RunAll collects every configured unit once. It reports false without running
// when another run is in progress.
func (s *Scheduler) RunAll(ctx context.Context) (processing.RunSummary, bool) {
	if !s.inFlight.CompareAndSwap(false, true) {
		slog.Warn("[Scheduler] Previous run still in progress, skipping")
		return processing.RunSummary{}, false
	}
	defer s.inFlight.Store(false)

	slog.Info("[Scheduler] Running collection", slog.Int("units", len(s.units)))
	summary := s.runner.CollectAll(ctx, s.units)

	if s.Running() {
		slog.Info("[Scheduler] Next run scheduled", slog.Time("at", time.Now().Add(s.interval)))
	}
	return summary, true
}

// cronLogger routes cron's own messages into slog.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...any) {
	slog.Debug("[Scheduler] cron: "+msg, keysAndValues...)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...any) {
	slog.Error("[Scheduler] cron: "+msg, append([]any{slog.String("error", err.Error())}, keysAndValues...)...)
}
