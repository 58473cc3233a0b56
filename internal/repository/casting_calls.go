package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	entsql "entgo.io/ent/dialect/sql"

	"github.com/joseph-ayodele/casting-aggregator/constants"
	"github.com/joseph-ayodele/casting-aggregator/internal/common"
	"github.com/joseph-ayodele/casting-aggregator/internal/entity"
)

const castingCallsTable = "casting_calls"

var castingCallColumns = []string{
	"id", "title", "description", "company", "location",
	"compensation", "requirements", "deadline", "contact_info", "project_type",
	"source_id", "source_url", "content_hash", "status", "is_aggregated",
	"created_at", "updated_at",
}

type CastingCallRepository interface {
	// FindByHash returns common.ErrNotFound when no record has the hash.
	FindByHash(ctx context.Context, hash string) (*entity.CastingCallRecord, error)
	// CreateWithOutbox inserts the record and its outbox entry in one transaction.
	// created is false when a record with the same content hash already exists;
	// in that case nothing is written and existingID names the winner.
	CreateWithOutbox(ctx context.Context, rec entity.CastingCallRecord, entry entity.OutboxEntry) (created bool, existingID string, err error)
	Get(ctx context.Context, id string) (*entity.CastingCallRecord, error)
	List(ctx context.Context, status constants.RecordStatus, limit int) ([]entity.CastingCallRecord, error)
	UpdateStatus(ctx context.Context, id string, status constants.RecordStatus) error
	Count(ctx context.Context) (int, error)
}

type castingCallRepo struct {
	s   *Store
	log *slog.Logger
}

func NewCastingCallRepository(s *Store, log *slog.Logger) CastingCallRepository {
	if log == nil {
		log = s.logger
	}
	return &castingCallRepo{s: s, log: log}
}

func (r *castingCallRepo) selectRecords() *entsql.Selector {
	return r.s.sql().Select(castingCallColumns...).From(r.s.sql().Table(castingCallsTable))
}

func (r *castingCallRepo) FindByHash(ctx context.Context, hash string) (*entity.CastingCallRecord, error) {
	return r.one(ctx, r.s.db, r.selectRecords().Where(entsql.EQ("content_hash", hash)).Limit(1))
}

func (r *castingCallRepo) Get(ctx context.Context, id string) (*entity.CastingCallRecord, error) {
	return r.one(ctx, r.s.db, r.selectRecords().Where(entsql.EQ("id", id)).Limit(1))
}

func (r *castingCallRepo) one(ctx context.Context, q querier, sel *entsql.Selector) (*entity.CastingCallRecord, error) {
	recs, err := r.query(ctx, q, sel)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, common.ErrNotFound
	}
	return &recs[0], nil
}

func (r *castingCallRepo) List(ctx context.Context, status constants.RecordStatus, limit int) ([]entity.CastingCallRecord, error) {
	sel := r.selectRecords().OrderBy(entsql.Desc("created_at"))
	if status != "" {
		sel = sel.Where(entsql.EQ("status", string(status)))
	}
	if limit > 0 {
		sel = sel.Limit(limit)
	}
	return r.query(ctx, r.s.db, sel)
}

func (r *castingCallRepo) Count(ctx context.Context) (int, error) {
	return countQ(ctx, r.s.db, r.s.sql().Select(entsql.Count("*")).From(r.s.sql().Table(castingCallsTable)))
}

func (r *castingCallRepo) CreateWithOutbox(ctx context.Context, rec entity.CastingCallRecord, entry entity.OutboxEntry) (bool, string, error) {
	var (
		created    bool
		existingID string
	)
	errDuplicate := errors.New("duplicate content hash")

	err := r.s.inTx(ctx, func(tx *sql.Tx) error {
		res, err := execQ(ctx, tx, r.s.sql().Insert(castingCallsTable).
			Columns(castingCallColumns...).
			Values(
				rec.ID, rec.Title, rec.Description, rec.Company, rec.Location,
				nullString(rec.Compensation), nullString(rec.Requirements), nullString(rec.Deadline),
				nullString(rec.ContactInfo), nullString(rec.ProjectType),
				rec.SourceID, rec.SourceURL, rec.ContentHash, string(rec.Status), rec.IsAggregated,
				utc(rec.CreatedAt), utc(rec.UpdatedAt),
			).
			OnConflict(entsql.ConflictColumns("content_hash"), entsql.DoNothing()))
		if err != nil {
			return fmt.Errorf("insert casting call: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("insert casting call: %w", err)
		}
		if n == 0 {
			existing, err := r.one(ctx, tx, r.selectRecords().Where(entsql.EQ("content_hash", rec.ContentHash)).Limit(1))
			if err != nil {
				return fmt.Errorf("load existing casting call: %w", err)
			}
			existingID = existing.ID
			return errDuplicate
		}

		if err := insertOutbox(ctx, r.s, tx, entry); err != nil {
			return err
		}
		created = true
		return nil
	})
	if errors.Is(err, errDuplicate) {
		r.log.Info("casting call already exists", "content_hash", rec.ContentHash, "existing_id", existingID)
		return false, existingID, nil
	}
	if err != nil {
		r.log.Error("casting call create failed", "record_id", rec.ID, "error", err)
		return false, "", fmt.Errorf("%w: %w", common.ErrDatabase, err)
	}
	r.log.Info("casting call created", "record_id", rec.ID, "outbox_id", entry.ID, "source_id", rec.SourceID)
	return created, "", nil
}

func (r *castingCallRepo) UpdateStatus(ctx context.Context, id string, status constants.RecordStatus) error {
	res, err := execQ(ctx, r.s.db, r.s.sql().Update(castingCallsTable).
		Set("status", string(status)).
		Set("updated_at", time.Now().UTC()).
		Where(entsql.EQ("id", id)))
	if err != nil {
		return fmt.Errorf("update casting call status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return common.ErrNotFound
	}
	return nil
}

func (r *castingCallRepo) query(ctx context.Context, q querier, sel *entsql.Selector) ([]entity.CastingCallRecord, error) {
	rows, err := queryQ(ctx, q, sel)
	if err != nil {
		return nil, fmt.Errorf("query casting calls: %w", err)
	}
	defer rows.Close()

	var out []entity.CastingCallRecord
	for rows.Next() {
		var (
			rec                                         entity.CastingCallRecord
			comp, reqs, deadline, contact, projectType sql.NullString
			status                                      string
		)
		if err := rows.Scan(
			&rec.ID, &rec.Title, &rec.Description, &rec.Company, &rec.Location,
			&comp, &reqs, &deadline, &contact, &projectType,
			&rec.SourceID, &rec.SourceURL, &rec.ContentHash, &status, &rec.IsAggregated,
			&rec.CreatedAt, &rec.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan casting call: %w", err)
		}
		rec.Compensation = strPtr(comp)
		rec.Requirements = strPtr(reqs)
		rec.Deadline = strPtr(deadline)
		rec.ContactInfo = strPtr(contact)
		rec.ProjectType = strPtr(projectType)
		rec.Status = constants.RecordStatus(status)
		out = append(out, rec)
	}
	return out, rows.Err()
}
