package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"
)

// Scheduler fires RunCycle on a cron spec and once at start.
type Scheduler struct {
	cron   *cron.Cron
	orch   *Orchestrator
	spec   string
	logger *slog.Logger
	wg     sync.WaitGroup
}

func NewScheduler(orch *Orchestrator, spec string, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	cl := cronLogger{logger: logger}
	return &Scheduler{
		cron:   cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl))),
		orch:   orch,
		spec:   spec,
		logger: logger,
	}
}

func (s *Scheduler) Start(ctx context.Context) error {
	if _, err := s.cron.AddFunc(s.spec, func() { s.tick(ctx) }); err != nil {
		return fmt.Errorf("cron.AddFunc %q: %w", s.spec, err)
	}
	s.cron.Start()
	s.logger.Info("scheduler.started", "spec", s.spec)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.tick(ctx)
	}()
	return nil
}

func (s *Scheduler) tick(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if _, err := s.orch.RunCycle(ctx); err != nil && !IsCycleInProgress(err) {
		s.logger.Error("scheduler.cycle_failed", "error", err)
	}
}

// Stop stops scheduling and waits for a running cycle, or for ctx.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	waited := make(chan struct{})
	go func() {
		<-done.Done()
		s.wg.Wait()
		close(waited)
	}()
	select {
	case <-waited:
		s.logger.Info("scheduler.stopped")
	case <-ctx.Done():
		s.logger.Warn("scheduler.stop_timeout", "error", ctx.Err())
	}
}

type cronLogger struct{ logger *slog.Logger }

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("cron."+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("cron."+msg, append([]any{"error", err}, keysAndValues...)...)
}
