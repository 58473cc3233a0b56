// Package queue runs durable, database-backed work queues.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/joseph-ayodele/casting-aggregator/internal/entity"
)

// Store is the persistence a queue needs. repository.JobRepository satisfies it.
type Store interface {
	Enqueue(ctx context.Context, queue string, payload json.RawMessage, runAt time.Time) (string, error)
	Claim(ctx context.Context, queue string, now time.Time, lease time.Duration, limit int) ([]entity.Job, error)
	Ack(ctx context.Context, id string) error
	Retry(ctx context.Context, id string, next time.Time, lastErr string) error
	DeadLetter(ctx context.Context, job entity.Job, lastErr string, at time.Time) (entity.DeadLetter, error)
	Depth(ctx context.Context, queue string) (int, error)
}

// Queue is the producer side of one named queue.
type Queue struct {
	name  string
	store Store
	now   func() time.Time
}

func New(name string, store Store) *Queue {
	return &Queue{name: name, store: store, now: time.Now}
}

func (q *Queue) Name() string { return q.name }

// Enqueue JSON-encodes v and makes it runnable immediately.
func (q *Queue) Enqueue(ctx context.Context, v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode %s job: %w", q.name, err)
	}
	return q.store.Enqueue(ctx, q.name, b, q.now())
}

func (q *Queue) Depth(ctx context.Context) (int, error) {
	return q.store.Depth(ctx, q.name)
}

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying; the job is dead-lettered at once.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

func IsPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}
