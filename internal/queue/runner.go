package queue

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/joseph-ayodele/casting-aggregator/internal/entity"
)

// Handler processes one job. A nil return acks the job.
type Handler func(ctx context.Context, job entity.Job) error

// Archiver receives dead letters after they are stored, e.g. to copy them off-box.
type Archiver interface {
	Archive(ctx context.Context, dl entity.DeadLetter) error
}

// Runner consumes one queue with a fixed pool of workers.
type Runner struct {
	queue    string
	store    Store
	handler  Handler
	logger   *slog.Logger
	archiver Archiver
	now      func() time.Time

	workers     int
	poll        time.Duration
	timeout     time.Duration
	lease       time.Duration
	maxAttempts int
	retryBase   time.Duration
	retryMax    time.Duration

	wg     sync.WaitGroup
	once   sync.Once
	mu     sync.Mutex
	cancel context.CancelFunc
}

type Option func(*Runner)

func WithWorkers(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.workers = n
		}
	}
}

func WithPollInterval(d time.Duration) Option {
	return func(r *Runner) {
		if d > 0 {
			r.poll = d
		}
	}
}

func WithProcessTimeout(d time.Duration) Option {
	return func(r *Runner) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithLease sets how long a claimed job is hidden from other workers.
// It must exceed the process timeout.
func WithLease(d time.Duration) Option {
	return func(r *Runner) {
		if d > 0 {
			r.lease = d
		}
	}
}

func WithMaxAttempts(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.maxAttempts = n
		}
	}
}

func WithRetryBase(d time.Duration) Option {
	return func(r *Runner) {
		if d > 0 {
			r.retryBase = d
		}
	}
}

func WithArchiver(a Archiver) Option {
	return func(r *Runner) { r.archiver = a }
}

func WithClock(now func() time.Time) Option {
	return func(r *Runner) {
		if now != nil {
			r.now = now
		}
	}
}

func NewRunner(queue string, store Store, handler Handler, logger *slog.Logger, opts ...Option) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Runner{
		queue:       queue,
		store:       store,
		handler:     handler,
		logger:      logger.With("queue", queue),
		now:         time.Now,
		workers:     4,
		poll:        time.Second,
		timeout:     2 * time.Minute,
		lease:       5 * time.Minute,
		maxAttempts: 5,
		retryBase:   10 * time.Second,
		retryMax:    time.Hour,
	}
	for _, o := range opts {
		o(r)
	}
	if r.lease <= r.timeout {
		r.lease = r.timeout + time.Minute
	}
	return r
}

// Start launches the workers. It is a no-op after the first call.
func (r *Runner) Start(ctx context.Context) {
	r.once.Do(func() {
		ctx, cancel := context.WithCancel(ctx)
		r.mu.Lock()
		r.cancel = cancel
		r.mu.Unlock()
		for i := 0; i < r.workers; i++ {
			r.wg.Add(1)
			go func(workerID int) {
				defer r.wg.Done()
				r.logger.Info("worker started", "worker_id", workerID)
				r.loop(ctx, workerID)
				r.logger.Info("worker stopped", "worker_id", workerID)
			}(i + 1)
		}
	})
}

func (r *Runner) loop(ctx context.Context, workerID int) {
	for {
		if ctx.Err() != nil {
			return
		}
		n, err := r.claimAndProcess(ctx, 1)
		if err != nil {
			r.logger.Error("claim failed", "worker_id", workerID, "error", err)
		}
		if n > 0 {
			continue
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(r.poll):
		}
	}
}

// RunOnce claims up to limit due jobs and processes them sequentially.
// It returns how many jobs were handled.
func (r *Runner) RunOnce(ctx context.Context, limit int) (int, error) {
	return r.claimAndProcess(ctx, limit)
}

// Drain calls RunOnce until no due job is left or ctx ends.
func (r *Runner) Drain(ctx context.Context) (int, error) {
	total := 0
	for ctx.Err() == nil {
		n, err := r.claimAndProcess(ctx, r.workers)
		total += n
		if err != nil || n == 0 {
			return total, err
		}
	}
	return total, ctx.Err()
}

func (r *Runner) claimAndProcess(ctx context.Context, limit int) (int, error) {
	jobs, err := r.store.Claim(ctx, r.queue, r.now(), r.lease, limit)
	if err != nil {
		return 0, err
	}
	for _, job := range jobs {
		r.process(ctx, job)
	}
	return len(jobs), nil
}

func (r *Runner) process(ctx context.Context, job entity.Job) {
	// in-flight jobs finish on shutdown, bounded by the process timeout
	jctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
	defer cancel()

	start := time.Now()
	err := r.handler(jctx, job)
	log := r.logger.With("job_id", job.ID, "attempt", job.Attempts, "elapsed_ms", time.Since(start).Milliseconds())

	if err == nil {
		if aerr := r.store.Ack(jctx, job.ID); aerr != nil {
			log.Error("ack failed", "error", aerr)
			return
		}
		log.Debug("job done")
		return
	}

	if IsPermanent(err) || job.Attempts >= r.maxAttempts {
		dl, derr := r.store.DeadLetter(jctx, job, err.Error(), r.now())
		if derr != nil {
			log.Error("dead-letter failed", "error", derr, "cause", err)
			return
		}
		log.Warn("job dead-lettered", "error", err, "permanent", IsPermanent(err))
		if r.archiver != nil {
			if aerr := r.archiver.Archive(jctx, dl); aerr != nil {
				log.Warn("dead letter archive failed", "dead_letter_id", dl.ID, "error", aerr)
			}
		}
		return
	}

	next := r.now().Add(r.backoff(job.Attempts))
	if rerr := r.store.Retry(jctx, job.ID, next, err.Error()); rerr != nil {
		log.Error("retry scheduling failed", "error", rerr, "cause", err)
		return
	}
	log.Warn("job failed, will retry", "error", err, "next_run_at", next)
}

func (r *Runner) backoff(attempts int) time.Duration {
	d := r.retryBase
	for i := 1; i < attempts && d < r.retryMax; i++ {
		d *= 2
	}
	if d > r.retryMax {
		d = r.retryMax
	}
	return d
}

// Shutdown stops claiming and waits for in-flight jobs or ctx, whichever comes first.
func (r *Runner) Shutdown(ctx context.Context) {
	r.mu.Lock()
	cancel := r.cancel
	r.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()

	done := make(chan struct{})
	go func() { defer close(done); r.wg.Wait() }()

	select {
	case <-ctx.Done():
		r.logger.Warn("shutdown interrupted by context")
	case <-done:
		r.logger.Info("queue drained, shutdown complete")
	}
}
