package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sort"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/casting-aggregator/constants"
	"github.com/joseph-ayodele/casting-aggregator/internal/entity"
)

const (
	sourcesTable   = "sources"
	seenItemsTable = "seen_items"
)

var sourceColumns = []string{
	"id", "kind", "locator", "name", "enabled",
	"last_processed_at", "error_count", "last_error", "created_at", "updated_at",
}

type SourceRepository interface {
	// Upsert registers a source, keyed by (kind, locator). The stored row is returned.
	Upsert(ctx context.Context, kind constants.SourceKind, locator, name string, enabled bool) (*entity.Source, error)
	Get(ctx context.Context, id string) (*entity.Source, error)
	List(ctx context.Context) ([]entity.Source, error)
	// ListEnabled returns enabled sources, never-polled first, then stalest watermark first.
	ListEnabled(ctx context.Context, limit int) ([]entity.Source, error)
	MarkPolled(ctx context.Context, id string, at time.Time) error
	RecordError(ctx context.Context, id string, msg string) error
	// MarkSeen records key for source; firstTime is false when it was already recorded.
	MarkSeen(ctx context.Context, sourceID, key string, at time.Time) (firstTime bool, err error)
}

type sourceRepo struct {
	s   *Store
	log *slog.Logger
}

func NewSourceRepository(s *Store, log *slog.Logger) SourceRepository {
	if log == nil {
		log = s.logger
	}
	return &sourceRepo{s: s, log: log}
}

func (r *sourceRepo) selectSources() *entsql.Selector {
	return r.s.sql().Select(sourceColumns...).From(r.s.sql().Table(sourcesTable))
}

func (r *sourceRepo) Upsert(ctx context.Context, kind constants.SourceKind, locator, name string, enabled bool) (*entity.Source, error) {
	now := time.Now().UTC()
	_, err := execQ(ctx, r.s.db, r.s.sql().Insert(sourcesTable).
		Columns(sourceColumns...).
		Values(uuid.NewString(), string(kind), locator, name, enabled, nil, 0, nil, now, now).
		OnConflict(
			entsql.ConflictColumns("kind", "locator"),
			entsql.ResolveWith(func(u *entsql.UpdateSet) {
				u.SetExcluded("name")
				u.SetExcluded("enabled")
				u.SetExcluded("updated_at")
			}),
		))
	if err != nil {
		return nil, fmt.Errorf("upsert source: %w", err)
	}
	srcs, err := r.query(ctx, r.selectSources().
		Where(entsql.And(entsql.EQ("kind", string(kind)), entsql.EQ("locator", locator))).
		Limit(1))
	if err != nil {
		return nil, err
	}
	if len(srcs) == 0 {
		return nil, notFound("source", locator)
	}
	r.log.Info("source registered", "source_id", srcs[0].ID, "kind", kind, "locator", locator)
	return &srcs[0], nil
}

func (r *sourceRepo) Get(ctx context.Context, id string) (*entity.Source, error) {
	srcs, err := r.query(ctx, r.selectSources().Where(entsql.EQ("id", id)).Limit(1))
	if err != nil {
		return nil, err
	}
	if len(srcs) == 0 {
		return nil, notFound("source", id)
	}
	return &srcs[0], nil
}

func (r *sourceRepo) List(ctx context.Context) ([]entity.Source, error) {
	return r.query(ctx, r.selectSources().OrderBy("kind", "name"))
}

func (r *sourceRepo) ListEnabled(ctx context.Context, limit int) ([]entity.Source, error) {
	srcs, err := r.query(ctx, r.selectSources().Where(entsql.EQ("enabled", true)))
	if err != nil {
		return nil, err
	}
	// NULL ordering differs between dialects, so order here.
	sort.SliceStable(srcs, func(i, j int) bool {
		a, b := srcs[i].LastProcessedAt, srcs[j].LastProcessedAt
		switch {
		case a == nil && b == nil:
			return srcs[i].CreatedAt.Before(srcs[j].CreatedAt)
		case a == nil:
			return true
		case b == nil:
			return false
		}
		return a.Before(*b)
	})
	if limit > 0 && len(srcs) > limit {
		srcs = srcs[:limit]
	}
	return srcs, nil
}

func (r *sourceRepo) MarkPolled(ctx context.Context, id string, at time.Time) error {
	_, err := execQ(ctx, r.s.db, r.s.sql().Update(sourcesTable).
		Set("last_processed_at", at.UTC()).
		Set("updated_at", time.Now().UTC()).
		Where(entsql.EQ("id", id)))
	if err != nil {
		return fmt.Errorf("mark source polled: %w", err)
	}
	return nil
}

func (r *sourceRepo) RecordError(ctx context.Context, id string, msg string) error {
	_, err := execQ(ctx, r.s.db, r.s.sql().Update(sourcesTable).
		Add("error_count", 1).
		Set("last_error", msg).
		Set("updated_at", time.Now().UTC()).
		Where(entsql.EQ("id", id)))
	if err != nil {
		return fmt.Errorf("record source error: %w", err)
	}
	return nil
}

func (r *sourceRepo) MarkSeen(ctx context.Context, sourceID, key string, at time.Time) (bool, error) {
	res, err := execQ(ctx, r.s.db, r.s.sql().Insert(seenItemsTable).
		Columns("source_id", "item_key", "seen_at").
		Values(sourceID, key, at.UTC()).
		OnConflict(entsql.ConflictColumns("source_id", "item_key"), entsql.DoNothing()))
	if err != nil {
		return false, fmt.Errorf("mark seen: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark seen: %w", err)
	}
	return n == 1, nil
}

func (r *sourceRepo) query(ctx context.Context, sel *entsql.Selector) ([]entity.Source, error) {
	rows, err := queryQ(ctx, r.s.db, sel)
	if err != nil {
		return nil, fmt.Errorf("query sources: %w", err)
	}
	defer rows.Close()

	var out []entity.Source
	for rows.Next() {
		var (
			src     entity.Source
			kind    string
			last    sql.NullTime
			lastErr sql.NullString
		)
		if err := rows.Scan(&src.ID, &kind, &src.Locator, &src.Name, &src.Enabled,
			&last, &src.ErrorCount, &lastErr, &src.CreatedAt, &src.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan source: %w", err)
		}
		src.Kind = constants.SourceKind(kind)
		src.LastProcessedAt = timePtr(last)
		src.LastError = strPtr(lastErr)
		out = append(out, src)
	}
	return out, rows.Err()
}
