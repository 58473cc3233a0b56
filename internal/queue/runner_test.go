package queue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/casting-aggregator/internal/entity"
	"github.com/joseph-ayodele/casting-aggregator/internal/repository"
	"github.com/joseph-ayodele/casting-aggregator/internal/repository/repotest"
)

type steppingClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *steppingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *steppingClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordingArchiver struct {
	mu      sync.Mutex
	letters []entity.DeadLetter
}

func (a *recordingArchiver) Archive(_ context.Context, dl entity.DeadLetter) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.letters = append(a.letters, dl)
	return nil
}

func setup(t *testing.T) (*repository.Store, repository.JobRepository, repository.DeadLetterRepository) {
	store := repotest.NewSQLite(t)
	return store, repository.NewJobRepository(store, nil), repository.NewDeadLetterRepository(store, nil)
}

func TestRunnerAcksSuccessfulJobs(t *testing.T) {
	ctx := context.Background()
	_, jobs, _ := setup(t)
	q := New("ingestion", jobs)

	_, err := q.Enqueue(ctx, map[string]string{"text": "hello"})
	require.NoError(t, err)

	var seen atomic.Int32
	r := NewRunner("ingestion", jobs, func(_ context.Context, job entity.Job) error {
		require.JSONEq(t, `{"text":"hello"}`, string(job.Payload))
		seen.Add(1)
		return nil
	}, repotest.Logger(), WithClock(func() time.Time { return time.Now().Add(time.Second) }))

	n, err := r.RunOnce(ctx, 10)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.EqualValues(t, 1, seen.Load())

	depth, err := q.Depth(ctx)
	require.NoError(t, err)
	require.Zero(t, depth)
}

func TestRunnerRetriesThenDeadLetters(t *testing.T) {
	ctx := context.Background()
	_, jobs, dls := setup(t)
	clock := &steppingClock{now: time.Now().UTC().Add(time.Second)}
	arch := &recordingArchiver{}

	q := New("validation", jobs)
	_, err := q.Enqueue(ctx, map[string]int{"n": 1})
	require.NoError(t, err)

	var calls atomic.Int32
	r := NewRunner("validation", jobs, func(context.Context, entity.Job) error {
		calls.Add(1)
		return errors.New("db unavailable")
	}, repotest.Logger(),
		WithClock(clock.Now),
		WithMaxAttempts(3),
		WithRetryBase(time.Second),
		WithArchiver(arch),
	)

	for i := 0; i < 5; i++ {
		_, err := r.RunOnce(ctx, 10)
		require.NoError(t, err)
		clock.Advance(time.Hour)
	}

	require.EqualValues(t, 3, calls.Load())
	letters, err := dls.List(ctx, 10)
	require.NoError(t, err)
	require.Len(t, letters, 1)
	require.Equal(t, "validation", letters[0].Stage)
	require.Equal(t, 3, letters[0].Attempts)
	require.Equal(t, "db unavailable", letters[0].Error)
	require.Len(t, arch.letters, 1)

	depth, err := q.Depth(ctx)
	require.NoError(t, err)
	require.Zero(t, depth)
}

func TestRunnerPermanentErrorSkipsRetry(t *testing.T) {
	ctx := context.Background()
	_, jobs, dls := setup(t)
	_, err := New("ingestion", jobs).Enqueue(ctx, "x")
	require.NoError(t, err)

	r := NewRunner("ingestion", jobs, func(context.Context, entity.Job) error {
		return Permanent(errors.New("schema violation"))
	}, repotest.Logger(), WithClock(func() time.Time { return time.Now().Add(time.Second) }))

	_, err = r.RunOnce(ctx, 10)
	require.NoError(t, err)

	n, err := dls.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestRunnerStartShutdown(t *testing.T) {
	ctx := context.Background()
	_, jobs, _ := setup(t)
	q := New("ingestion", jobs)
	for i := 0; i < 3; i++ {
		_, err := q.Enqueue(ctx, i)
		require.NoError(t, err)
	}

	var done atomic.Int32
	r := NewRunner("ingestion", jobs, func(context.Context, entity.Job) error {
		done.Add(1)
		return nil
	}, repotest.Logger(),
		WithWorkers(1),
		WithPollInterval(10*time.Millisecond),
		WithClock(func() time.Time { return time.Now().Add(time.Second) }),
	)
	r.Start(ctx)
	require.Eventually(t, func() bool { return done.Load() == 3 }, 5*time.Second, 10*time.Millisecond)

	sctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	r.Shutdown(sctx)
}

func TestBackoffIsCapped(t *testing.T) {
	r := NewRunner("q", nil, nil, nil, WithRetryBase(time.Minute))
	require.Equal(t, time.Minute, r.backoff(1))
	require.Equal(t, 2*time.Minute, r.backoff(2))
	require.Equal(t, 4*time.Minute, r.backoff(3))
	require.Equal(t, time.Hour, r.backoff(20))
}

func TestPermanent(t *testing.T) {
	base := errors.New("bad")
	require.Nil(t, Permanent(nil))
	require.True(t, IsPermanent(Permanent(base)))
	require.ErrorIs(t, Permanent(base), base)
	require.False(t, IsPermanent(base))
}
