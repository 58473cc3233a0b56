package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/casting-aggregator/constants"
	"github.com/joseph-ayodele/casting-aggregator/internal/entity"
)

const jobsTable = "jobs"

var jobColumns = []string{
	"id", "queue", "payload", "status", "attempts",
	"next_run_at", "locked_until", "last_error", "created_at", "updated_at",
}

type JobRepository interface {
	Enqueue(ctx context.Context, queue string, payload json.RawMessage, runAt time.Time) (string, error)
	// Claim leases up to limit runnable jobs of queue: pending ones that are due,
	// and running ones whose lease expired. Attempts is incremented on claim.
	Claim(ctx context.Context, queue string, now time.Time, lease time.Duration, limit int) ([]entity.Job, error)
	Ack(ctx context.Context, id string) error
	Retry(ctx context.Context, id string, next time.Time, lastErr string) error
	// DeadLetter removes the job and records it in dead_letters atomically.
	DeadLetter(ctx context.Context, job entity.Job, lastErr string, at time.Time) (entity.DeadLetter, error)
	Depth(ctx context.Context, queue string) (int, error)
}

type jobRepo struct {
	s   *Store
	log *slog.Logger
}

func NewJobRepository(s *Store, log *slog.Logger) JobRepository {
	if log == nil {
		log = s.logger
	}
	return &jobRepo{s: s, log: log}
}

func (r *jobRepo) Enqueue(ctx context.Context, queue string, payload json.RawMessage, runAt time.Time) (string, error) {
	return enqueueJob(ctx, r.s, r.s.db, queue, payload, runAt)
}

func enqueueJob(ctx context.Context, s *Store, q querier, queue string, payload json.RawMessage, runAt time.Time) (string, error) {
	id := uuid.NewString()
	now := time.Now().UTC()
	_, err := execQ(ctx, q, s.sql().Insert(jobsTable).
		Columns(jobColumns...).
		Values(id, queue, []byte(payload), string(constants.JobStatusPending), 0,
			runAt.UTC(), nil, nil, now, now))
	if err != nil {
		return "", fmt.Errorf("enqueue %s job: %w", queue, err)
	}
	return id, nil
}

func (r *jobRepo) runnable(queue string, now time.Time) *entsql.Predicate {
	return entsql.And(
		entsql.EQ("queue", queue),
		entsql.Or(
			entsql.And(
				entsql.EQ("status", string(constants.JobStatusPending)),
				entsql.LTE("next_run_at", now),
			),
			entsql.And(
				entsql.EQ("status", string(constants.JobStatusRunning)),
				entsql.LTE("locked_until", now),
			),
		),
	)
}

func (r *jobRepo) Claim(ctx context.Context, queue string, now time.Time, lease time.Duration, limit int) ([]entity.Job, error) {
	now = now.UTC()
	candidates, err := r.query(ctx, r.s.sql().Select(jobColumns...).
		From(r.s.sql().Table(jobsTable)).
		Where(r.runnable(queue, now)).
		OrderBy("next_run_at").
		Limit(limit))
	if err != nil {
		return nil, err
	}

	until := now.Add(lease)
	claimed := make([]entity.Job, 0, len(candidates))
	for _, j := range candidates {
		res, err := execQ(ctx, r.s.db, r.s.sql().Update(jobsTable).
			Set("status", string(constants.JobStatusRunning)).
			Set("locked_until", until).
			Set("updated_at", now).
			Add("attempts", 1).
			Where(entsql.And(entsql.EQ("id", j.ID), r.runnable(queue, now))))
		if err != nil {
			return claimed, fmt.Errorf("claim job %s: %w", j.ID, err)
		}
		if n, _ := res.RowsAffected(); n != 1 {
			continue // another worker won
		}
		j.Status = constants.JobStatusRunning
		j.Attempts++
		j.LockedUntil = &until
		claimed = append(claimed, j)
	}
	return claimed, nil
}

func (r *jobRepo) Ack(ctx context.Context, id string) error {
	if _, err := execQ(ctx, r.s.db, r.s.sql().Delete(jobsTable).Where(entsql.EQ("id", id))); err != nil {
		return fmt.Errorf("ack job %s: %w", id, err)
	}
	return nil
}

func (r *jobRepo) Retry(ctx context.Context, id string, next time.Time, lastErr string) error {
	_, err := execQ(ctx, r.s.db, r.s.sql().Update(jobsTable).
		Set("status", string(constants.JobStatusPending)).
		Set("next_run_at", next.UTC()).
		Set("locked_until", nil).
		Set("last_error", lastErr).
		Set("updated_at", time.Now().UTC()).
		Where(entsql.EQ("id", id)))
	if err != nil {
		return fmt.Errorf("retry job %s: %w", id, err)
	}
	return nil
}

func (r *jobRepo) DeadLetter(ctx context.Context, job entity.Job, lastErr string, at time.Time) (entity.DeadLetter, error) {
	dl := entity.DeadLetter{
		ID:       uuid.NewString(),
		Stage:    job.Queue,
		SourceID: job.ID,
		Payload:  job.Payload,
		Error:    lastErr,
		Attempts: job.Attempts,
		FailedAt: at.UTC(),
	}
	err := r.s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := execQ(ctx, tx, r.s.sql().Delete(jobsTable).Where(entsql.EQ("id", job.ID))); err != nil {
			return fmt.Errorf("delete job: %w", err)
		}
		return insertDeadLetter(ctx, r.s, tx, dl)
	})
	if err != nil {
		return entity.DeadLetter{}, fmt.Errorf("dead-letter job %s: %w", job.ID, err)
	}
	r.log.Warn("job dead-lettered", "job_id", job.ID, "queue", job.Queue, "attempts", job.Attempts, "error", lastErr)
	return dl, nil
}

func (r *jobRepo) Depth(ctx context.Context, queue string) (int, error) {
	return countQ(ctx, r.s.db, r.s.sql().Select(entsql.Count("*")).
		From(r.s.sql().Table(jobsTable)).
		Where(entsql.EQ("queue", queue)))
}

func (r *jobRepo) query(ctx context.Context, sel *entsql.Selector) ([]entity.Job, error) {
	rows, err := queryQ(ctx, r.s.db, sel)
	if err != nil {
		return nil, fmt.Errorf("query jobs: %w", err)
	}
	defer rows.Close()

	var out []entity.Job
	for rows.Next() {
		var (
			j       entity.Job
			payload []byte
			status  string
			locked  sql.NullTime
			lastErr sql.NullString
		)
		if err := rows.Scan(&j.ID, &j.Queue, &payload, &status, &j.Attempts,
			&j.NextRunAt, &locked, &lastErr, &j.CreatedAt, &j.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		j.Payload = payload
		j.Status = constants.JobStatus(status)
		j.LockedUntil = timePtr(locked)
		j.LastError = strPtr(lastErr)
		out = append(out, j)
	}
	return out, rows.Err()
}
