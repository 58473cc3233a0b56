package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/casting-aggregator/constants"
	"github.com/joseph-ayodele/casting-aggregator/internal/entity"
)

const outboxTable = "outbox"

var outboxColumns = []string{
	"id", "aggregate_id", "event_type", "payload", "status",
	"attempts", "next_run_at", "last_error", "created_at", "processed_at",
}

type OutboxRepository interface {
	// Claim leases up to limit due pending entries by pushing their next_run_at
	// forward by lease. A crashed dispatcher's claims become due again.
	Claim(ctx context.Context, now time.Time, lease time.Duration, limit int) ([]entity.OutboxEntry, error)
	MarkProcessed(ctx context.Context, id string, at time.Time) error
	Reschedule(ctx context.Context, id string, attempts int, next time.Time, lastErr string) error
	// MarkDead sets status=dead and writes the dead letter in the same transaction.
	MarkDead(ctx context.Context, e entity.OutboxEntry, lastErr string, at time.Time) error
	Get(ctx context.Context, id string) (*entity.OutboxEntry, error)
	Counts(ctx context.Context) (map[constants.OutboxStatus]int, error)
}

type outboxRepo struct {
	s   *Store
	log *slog.Logger
}

func NewOutboxRepository(s *Store, log *slog.Logger) OutboxRepository {
	if log == nil {
		log = s.logger
	}
	return &outboxRepo{s: s, log: log}
}

func insertOutbox(ctx context.Context, s *Store, q querier, e entity.OutboxEntry) error {
	if e.Status == "" {
		e.Status = constants.OutboxStatusPending
	}
	_, err := execQ(ctx, q, s.sql().Insert(outboxTable).
		Columns(outboxColumns...).
		Values(e.ID, e.AggregateID, e.EventType, []byte(e.Payload), string(e.Status),
			e.Attempts, utc(e.NextRunAt), nullString(e.LastError), utc(e.CreatedAt), nullTime(e.ProcessedAt)))
	if err != nil {
		return fmt.Errorf("insert outbox entry: %w", err)
	}
	return nil
}

func (r *outboxRepo) selectEntries() *entsql.Selector {
	return r.s.sql().Select(outboxColumns...).From(r.s.sql().Table(outboxTable))
}

func (r *outboxRepo) Claim(ctx context.Context, now time.Time, lease time.Duration, limit int) ([]entity.OutboxEntry, error) {
	now = now.UTC()
	due, err := r.query(ctx, r.selectEntries().
		Where(entsql.And(
			entsql.EQ("status", string(constants.OutboxStatusPending)),
			entsql.LTE("next_run_at", now),
		)).
		OrderBy("next_run_at").
		Limit(limit))
	if err != nil {
		return nil, err
	}

	claimed := due[:0]
	leaseUntil := now.Add(lease)
	for _, e := range due {
		res, err := execQ(ctx, r.s.db, r.s.sql().Update(outboxTable).
			Set("next_run_at", leaseUntil).
			Where(entsql.And(
				entsql.EQ("id", e.ID),
				entsql.EQ("status", string(constants.OutboxStatusPending)),
				entsql.LTE("next_run_at", now),
			)))
		if err != nil {
			return claimed, fmt.Errorf("claim outbox entry %s: %w", e.ID, err)
		}
		if n, _ := res.RowsAffected(); n == 1 {
			e.NextRunAt = leaseUntil
			claimed = append(claimed, e)
		}
	}
	return claimed, nil
}

func (r *outboxRepo) MarkProcessed(ctx context.Context, id string, at time.Time) error {
	_, err := execQ(ctx, r.s.db, r.s.sql().Update(outboxTable).
		Set("status", string(constants.OutboxStatusProcessed)).
		Set("processed_at", at.UTC()).
		Where(entsql.EQ("id", id)))
	if err != nil {
		return fmt.Errorf("mark outbox processed: %w", err)
	}
	return nil
}

func (r *outboxRepo) Reschedule(ctx context.Context, id string, attempts int, next time.Time, lastErr string) error {
	_, err := execQ(ctx, r.s.db, r.s.sql().Update(outboxTable).
		Set("attempts", attempts).
		Set("next_run_at", next.UTC()).
		Set("last_error", lastErr).
		Where(entsql.And(
			entsql.EQ("id", id),
			entsql.EQ("status", string(constants.OutboxStatusPending)),
		)))
	if err != nil {
		return fmt.Errorf("reschedule outbox entry: %w", err)
	}
	return nil
}

func (r *outboxRepo) MarkDead(ctx context.Context, e entity.OutboxEntry, lastErr string, at time.Time) error {
	return r.s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := execQ(ctx, tx, r.s.sql().Update(outboxTable).
			Set("status", string(constants.OutboxStatusDead)).
			Set("attempts", e.Attempts).
			Set("last_error", lastErr).
			Where(entsql.EQ("id", e.ID))); err != nil {
			return fmt.Errorf("mark outbox dead: %w", err)
		}
		return insertDeadLetter(ctx, r.s, tx, entity.DeadLetter{
			ID:       uuid.NewString(),
			Stage:    constants.StageOutbox,
			SourceID: e.ID,
			Payload:  e.Payload,
			Error:    lastErr,
			Attempts: e.Attempts,
			FailedAt: at,
		})
	})
}

func (r *outboxRepo) Get(ctx context.Context, id string) (*entity.OutboxEntry, error) {
	entries, err := r.query(ctx, r.selectEntries().Where(entsql.EQ("id", id)).Limit(1))
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, notFound("outbox entry", id)
	}
	return &entries[0], nil
}

func (r *outboxRepo) Counts(ctx context.Context) (map[constants.OutboxStatus]int, error) {
	rows, err := queryQ(ctx, r.s.db, r.s.sql().Select("status", entsql.Count("*")).
		From(r.s.sql().Table(outboxTable)).
		GroupBy("status"))
	if err != nil {
		return nil, fmt.Errorf("count outbox: %w", err)
	}
	defer rows.Close()
	out := make(map[constants.OutboxStatus]int)
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		out[constants.OutboxStatus(status)] = n
	}
	return out, rows.Err()
}

func (r *outboxRepo) query(ctx context.Context, sel *entsql.Selector) ([]entity.OutboxEntry, error) {
	rows, err := queryQ(ctx, r.s.db, sel)
	if err != nil {
		return nil, fmt.Errorf("query outbox: %w", err)
	}
	defer rows.Close()

	var out []entity.OutboxEntry
	for rows.Next() {
		var (
			e         entity.OutboxEntry
			payload   []byte
			status    string
			lastErr   sql.NullString
			processed sql.NullTime
		)
		if err := rows.Scan(&e.ID, &e.AggregateID, &e.EventType, &payload, &status,
			&e.Attempts, &e.NextRunAt, &lastErr, &e.CreatedAt, &processed); err != nil {
			return nil, fmt.Errorf("scan outbox: %w", err)
		}
		e.Payload = payload
		e.Status = constants.OutboxStatus(status)
		e.LastError = strPtr(lastErr)
		e.ProcessedAt = timePtr(processed)
		out = append(out, e)
	}
	return out, rows.Err()
}
