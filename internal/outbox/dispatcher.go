package outbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/joseph-ayodele/casting-aggregator/constants"
	"github.com/joseph-ayodele/casting-aggregator/internal/entity"
)

// Store is the slice of repository.OutboxRepository the dispatcher uses.
type Store interface {
	Claim(ctx context.Context, now time.Time, lease time.Duration, limit int) ([]entity.OutboxEntry, error)
	MarkProcessed(ctx context.Context, id string, at time.Time) error
	Reschedule(ctx context.Context, id string, attempts int, next time.Time, lastErr string) error
	MarkDead(ctx context.Context, e entity.OutboxEntry, lastErr string, at time.Time) error
}

// DefaultRoutes sends every created record to search indexing and alerting.
func DefaultRoutes() map[string][]string {
	return map[string][]string{
		constants.EventCastingCallCreated: {constants.DestinationIndexing, constants.DestinationAlerting},
	}
}

var errNoRoute = errors.New("no route for event type")

// Config tunes the dispatcher. Zero values select the defaults.
type Config struct {
	MaxAttempts int           // default 5
	BackoffBase time.Duration // default 30s
	BackoffMax  time.Duration // default 1h
	Batch       int           // default 50
	Lease       time.Duration // default 2m
	Interval    time.Duration // default 5s
}

func (c *Config) defaults() {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 5
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = 30 * time.Second
	}
	if c.BackoffMax <= 0 {
		c.BackoffMax = time.Hour
	}
	if c.Batch <= 0 {
		c.Batch = 50
	}
	if c.Lease <= 0 {
		c.Lease = 2 * time.Minute
	}
	if c.Interval <= 0 {
		c.Interval = 5 * time.Second
	}
}

// Summary counts what one pass did.
type Summary struct {
	Processed   int
	Rescheduled int
	Dead        int
}

// Dispatcher delivers pending outbox entries at least once.
type Dispatcher struct {
	store     Store
	publisher Publisher
	routes    map[string][]string
	cfg       Config
	logger    *slog.Logger
	now       func() time.Time
}

func NewDispatcher(store Store, publisher Publisher, routes map[string][]string, cfg Config, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	if routes == nil {
		routes = DefaultRoutes()
	}
	cfg.defaults()
	return &Dispatcher{
		store:     store,
		publisher: publisher,
		routes:    routes,
		cfg:       cfg,
		logger:    logger,
		now:       time.Now,
	}
}

// WithClock replaces the time source; used by tests.
func (d *Dispatcher) WithClock(now func() time.Time) *Dispatcher {
	d.now = now
	return d
}

// Run dispatches every Interval until ctx is done.
func (d *Dispatcher) Run(ctx context.Context) {
	t := time.NewTicker(d.cfg.Interval)
	defer t.Stop()
	for {
		if _, err := d.RunOnce(ctx); err != nil && ctx.Err() == nil {
			d.logger.Error("outbox.dispatch_failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}

// RunOnce claims one batch of due entries and delivers them.
func (d *Dispatcher) RunOnce(ctx context.Context) (Summary, error) {
	var sum Summary
	entries, err := d.store.Claim(ctx, d.now(), d.cfg.Lease, d.cfg.Batch)
	if err != nil {
		return sum, fmt.Errorf("claim outbox: %w", err)
	}
	for _, e := range entries {
		switch d.deliver(ctx, e) {
		case resultProcessed:
			sum.Processed++
		case resultRescheduled:
			sum.Rescheduled++
		case resultDead:
			sum.Dead++
		}
	}
	if len(entries) > 0 {
		d.logger.Info("outbox.dispatched",
			"claimed", len(entries),
			"processed", sum.Processed,
			"rescheduled", sum.Rescheduled,
			"dead", sum.Dead,
		)
	}
	return sum, nil
}

type result int

const (
	resultNone result = iota
	resultProcessed
	resultRescheduled
	resultDead
)

// deliver publishes to every destination of the event. Any failure retries
// the whole entry, so consumers must tolerate duplicates.
func (d *Dispatcher) deliver(ctx context.Context, e entity.OutboxEntry) result {
	log := d.logger.With("outbox_id", e.ID, "event_type", e.EventType, "aggregate_id", e.AggregateID)

	err := d.publish(ctx, e)
	now := d.now()
	if err == nil {
		if merr := d.store.MarkProcessed(ctx, e.ID, now); merr != nil {
			log.Error("outbox.mark_processed_failed", "error", merr)
			return resultNone
		}
		return resultProcessed
	}

	attempts := e.Attempts + 1
	if errors.Is(err, errNoRoute) || attempts >= d.cfg.MaxAttempts {
		e.Attempts = attempts
		if merr := d.store.MarkDead(ctx, e, err.Error(), now); merr != nil {
			log.Error("outbox.mark_dead_failed", "error", merr, "cause", err)
			return resultNone
		}
		log.Warn("outbox.dead", "attempts", attempts, "error", err)
		return resultDead
	}

	next := now.Add(d.Backoff(attempts))
	if merr := d.store.Reschedule(ctx, e.ID, attempts, next, err.Error()); merr != nil {
		log.Error("outbox.reschedule_failed", "error", merr, "cause", err)
		return resultNone
	}
	log.Warn("outbox.rescheduled", "attempts", attempts, "next_run_at", next, "error", err)
	return resultRescheduled
}

func (d *Dispatcher) publish(ctx context.Context, e entity.OutboxEntry) error {
	dests, ok := d.routes[e.EventType]
	if !ok || len(dests) == 0 {
		return fmt.Errorf("%w %q", errNoRoute, e.EventType)
	}
	msg := Message{Key: e.AggregateID, EventType: e.EventType, Payload: e.Payload}
	for _, dest := range dests {
		if err := d.publisher.Publish(ctx, dest, msg); err != nil {
			return fmt.Errorf("publish to %s: %w", dest, err)
		}
	}
	return nil
}

// Backoff returns base * 2^(attempts-1), capped at BackoffMax.
func (d *Dispatcher) Backoff(attempts int) time.Duration {
	b := d.cfg.BackoffBase
	for i := 1; i < attempts; i++ {
		b *= 2
		if b >= d.cfg.BackoffMax {
			return d.cfg.BackoffMax
		}
	}
	return b
}
