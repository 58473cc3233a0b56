// Package orchestrator runs polling cycles: sources in, ingestion jobs out.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/joseph-ayodele/casting-aggregator/constants"
	"github.com/joseph-ayodele/casting-aggregator/internal/common"
	"github.com/joseph-ayodele/casting-aggregator/internal/entity"
	"github.com/joseph-ayodele/casting-aggregator/internal/sources"
)

// ErrCycleInProgress is returned when a cycle is requested while another runs.
var ErrCycleInProgress = fmt.Errorf("%w: a polling cycle is already running", common.ErrConflict)

// SourceStore is the source bookkeeping a cycle needs. repository.SourceRepository satisfies it.
type SourceStore interface {
	ListEnabled(ctx context.Context, limit int) ([]entity.Source, error)
	MarkPolled(ctx context.Context, id string, at time.Time) error
	RecordError(ctx context.Context, id string, msg string) error
}

type Poller interface {
	Poll(ctx context.Context, src entity.Source) ([]entity.RawContentItem, sources.Stats, error)
}

type Enqueuer interface {
	Enqueue(ctx context.Context, v any) (string, error)
}

// SourceError is one source that failed during a cycle.
type SourceError struct {
	SourceID string               `json:"source_id"`
	Kind     constants.SourceKind `json:"kind"`
	Locator  string               `json:"locator"`
	Error    string               `json:"error"`
}

// CycleSummary reports what one cycle did.
type CycleSummary struct {
	ID               string        `json:"id"`
	Trigger          string        `json:"trigger"`
	ProcessedSources int           `json:"processed_sources"`
	QueuedItems      int           `json:"queued_items"`
	SkippedItems     int           `json:"skipped_items"`
	Errors           []SourceError `json:"errors"`
	StartedAt        time.Time     `json:"started_at"`
	FinishedAt       time.Time     `json:"finished_at"`
}

type Config struct {
	MaxSourcesPerCycle int
	Concurrency        int
}

type Orchestrator struct {
	sources   SourceStore
	poller    Poller
	ingestion Enqueuer
	cfg       Config
	now       func() time.Time
	logger    *slog.Logger

	running sync.Mutex

	mu   sync.RWMutex
	last *CycleSummary
}

func New(store SourceStore, poller Poller, ingestion Enqueuer, cfg Config, logger *slog.Logger) *Orchestrator {
	if cfg.MaxSourcesPerCycle <= 0 {
		cfg.MaxSourcesPerCycle = 25
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		sources:   store,
		poller:    poller,
		ingestion: ingestion,
		cfg:       cfg,
		now:       time.Now,
		logger:    logger,
	}
}

// WithClock replaces the time source; tests only.
func (o *Orchestrator) WithClock(now func() time.Time) *Orchestrator {
	o.now = now
	return o
}

// RunCycle polls up to MaxSourcesPerCycle enabled sources, stalest first, and
// enqueues what passes the poller gate. A failing source is recorded and the
// cycle carries on; only failing to list sources fails the cycle.
func (o *Orchestrator) RunCycle(ctx context.Context) (CycleSummary, error) {
	return o.run(ctx, "scheduled")
}

// TriggerManualRun runs a cycle synchronously for operator tooling.
func (o *Orchestrator) TriggerManualRun(ctx context.Context) (CycleSummary, error) {
	return o.run(ctx, "manual")
}

// Last returns the summary of the most recent finished cycle.
func (o *Orchestrator) Last() (CycleSummary, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.last == nil {
		return CycleSummary{}, false
	}
	return *o.last, true
}

func (o *Orchestrator) run(ctx context.Context, trigger string) (CycleSummary, error) {
	if !o.running.TryLock() {
		o.logger.Warn("cycle.skipped", "trigger", trigger, "reason", "in_progress")
		return CycleSummary{}, ErrCycleInProgress
	}
	defer o.running.Unlock()

	sum := CycleSummary{
		ID:        uuid.NewString(),
		Trigger:   trigger,
		StartedAt: o.now().UTC(),
		Errors:    []SourceError{},
	}
	log := o.logger.With("cycle_id", sum.ID, "trigger", trigger)
	log.Info("cycle.start", "max_sources", o.cfg.MaxSourcesPerCycle)

	srcs, err := o.sources.ListEnabled(ctx, o.cfg.MaxSourcesPerCycle)
	if err != nil {
		log.Error("cycle.list_sources_failed", "error", err)
		return sum, fmt.Errorf("list sources: %w", err)
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.Concurrency)
	for _, src := range srcs {
		src := src // per-iteration copy (go.mod targets Go 1.21 loop semantics)
		g.Go(func() error {
			queued, skipped, err := o.pollSource(gctx, src, log)
			mu.Lock()
			defer mu.Unlock()
			sum.ProcessedSources++
			sum.QueuedItems += queued
			sum.SkippedItems += skipped
			if err != nil {
				sum.Errors = append(sum.Errors, SourceError{
					SourceID: src.ID,
					Kind:     src.Kind,
					Locator:  src.Locator,
					Error:    err.Error(),
				})
			}
			return nil
		})
	}
	_ = g.Wait()

	sum.FinishedAt = o.now().UTC()
	o.mu.Lock()
	last := sum
	o.last = &last
	o.mu.Unlock()

	log.Info("cycle.done",
		"sources", sum.ProcessedSources,
		"queued", sum.QueuedItems,
		"skipped", sum.SkippedItems,
		"errors", len(sum.Errors),
		"elapsed_ms", sum.FinishedAt.Sub(sum.StartedAt).Milliseconds(),
	)
	if err := ctx.Err(); err != nil {
		return sum, err
	}
	return sum, nil
}

// pollSource advances the watermark only when every emitted item was enqueued.
func (o *Orchestrator) pollSource(ctx context.Context, src entity.Source, log *slog.Logger) (queued, skipped int, err error) {
	log = log.With("source_id", src.ID, "kind", src.Kind)
	polledAt := o.now().UTC()

	items, st, err := o.poller.Poll(ctx, src)
	skipped = st.Skipped()
	if err == nil {
		for _, item := range items {
			if _, err = o.ingestion.Enqueue(ctx, item); err != nil {
				err = fmt.Errorf("enqueue %s: %w", item.SourceURL, err)
				skipped += len(items) - queued
				break
			}
			queued++
		}
	}

	if err != nil {
		log.Warn("cycle.source_failed", "error", err, "queued", queued)
		if rerr := o.sources.RecordError(context.WithoutCancel(ctx), src.ID, err.Error()); rerr != nil {
			log.Error("cycle.record_error_failed", "error", rerr)
		}
		return queued, skipped, err
	}
	if merr := o.sources.MarkPolled(ctx, src.ID, polledAt); merr != nil {
		log.Error("cycle.mark_polled_failed", "error", merr)
		return queued, skipped, fmt.Errorf("mark polled: %w", merr)
	}
	return queued, skipped, nil
}

// IsCycleInProgress reports whether err came from an overlapping run.
func IsCycleInProgress(err error) bool {
	return errors.Is(err, ErrCycleInProgress)
}
