package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	entsql "entgo.io/ent/dialect/sql"

	"github.com/joseph-ayodele/casting-aggregator/constants"
	"github.com/joseph-ayodele/casting-aggregator/internal/common"
	"github.com/joseph-ayodele/casting-aggregator/internal/entity"
)

const deadLettersTable = "dead_letters"

var deadLetterColumns = []string{"id", "stage", "source_id", "payload", "error", "attempts", "failed_at"}

type DeadLetterRepository interface {
	Insert(ctx context.Context, dl entity.DeadLetter) error
	List(ctx context.Context, limit int) ([]entity.DeadLetter, error)
	Get(ctx context.Context, id string) (*entity.DeadLetter, error)
	Count(ctx context.Context) (int, error)
	// Requeue deletes the dead letter and, in the same transaction, puts its work back:
	// a job stage gets a fresh job on that queue, the outbox stage gets its entry
	// reset to pending. The returned id is the job or outbox entry id.
	Requeue(ctx context.Context, id string, at time.Time) (string, error)
}

type deadLetterRepo struct {
	s   *Store
	log *slog.Logger
}

func NewDeadLetterRepository(s *Store, log *slog.Logger) DeadLetterRepository {
	if log == nil {
		log = s.logger
	}
	return &deadLetterRepo{s: s, log: log}
}

func insertDeadLetter(ctx context.Context, s *Store, q querier, dl entity.DeadLetter) error {
	_, err := execQ(ctx, q, s.sql().Insert(deadLettersTable).
		Columns(deadLetterColumns...).
		Values(dl.ID, dl.Stage, dl.SourceID, []byte(dl.Payload), dl.Error, dl.Attempts, utc(dl.FailedAt)))
	if err != nil {
		return fmt.Errorf("insert dead letter: %w", err)
	}
	return nil
}

func (r *deadLetterRepo) Insert(ctx context.Context, dl entity.DeadLetter) error {
	return insertDeadLetter(ctx, r.s, r.s.db, dl)
}

func (r *deadLetterRepo) List(ctx context.Context, limit int) ([]entity.DeadLetter, error) {
	sel := r.s.sql().Select(deadLetterColumns...).
		From(r.s.sql().Table(deadLettersTable)).
		OrderBy(entsql.Desc("failed_at"))
	if limit > 0 {
		sel = sel.Limit(limit)
	}
	return r.query(ctx, r.s.db, sel)
}

func (r *deadLetterRepo) Get(ctx context.Context, id string) (*entity.DeadLetter, error) {
	return r.get(ctx, r.s.db, id)
}

func (r *deadLetterRepo) get(ctx context.Context, q querier, id string) (*entity.DeadLetter, error) {
	dls, err := r.query(ctx, q, r.s.sql().Select(deadLetterColumns...).
		From(r.s.sql().Table(deadLettersTable)).
		Where(entsql.EQ("id", id)).
		Limit(1))
	if err != nil {
		return nil, err
	}
	if len(dls) == 0 {
		return nil, notFound("dead letter", id)
	}
	return &dls[0], nil
}

func (r *deadLetterRepo) Count(ctx context.Context) (int, error) {
	return countQ(ctx, r.s.db, r.s.sql().Select(entsql.Count("*")).From(r.s.sql().Table(deadLettersTable)))
}

func (r *deadLetterRepo) Requeue(ctx context.Context, id string, at time.Time) (string, error) {
	var target string
	err := r.s.inTx(ctx, func(tx *sql.Tx) error {
		dl, err := r.get(ctx, tx, id)
		if err != nil {
			return err
		}
		switch dl.Stage {
		case constants.StageOutbox:
			res, err := execQ(ctx, tx, r.s.sql().Update(outboxTable).
				Set("status", string(constants.OutboxStatusPending)).
				Set("attempts", 0).
				Set("next_run_at", at.UTC()).
				Where(entsql.EQ("id", dl.SourceID)))
			if err != nil {
				return err
			}
			if n, _ := res.RowsAffected(); n == 0 {
				return notFound("outbox entry", dl.SourceID)
			}
			target = dl.SourceID
		case constants.QueueIngestion, constants.QueueValidation:
			if target, err = enqueueJob(ctx, r.s, tx, dl.Stage, dl.Payload, at); err != nil {
				return err
			}
		default:
			return common.InvalidInputErrorf("dead letter %s has unknown stage %q", id, dl.Stage)
		}
		_, err = execQ(ctx, tx, r.s.sql().Delete(deadLettersTable).Where(entsql.EQ("id", id)))
		return err
	})
	if err != nil {
		return "", err
	}
	r.log.Info("dead letter requeued", "dead_letter_id", id, "target_id", target)
	return target, nil
}

func (r *deadLetterRepo) query(ctx context.Context, q querier, sel *entsql.Selector) ([]entity.DeadLetter, error) {
	rows, err := queryQ(ctx, q, sel)
	if err != nil {
		return nil, fmt.Errorf("query dead letters: %w", err)
	}
	defer rows.Close()

	var out []entity.DeadLetter
	for rows.Next() {
		var (
			dl      entity.DeadLetter
			payload []byte
		)
		if err := rows.Scan(&dl.ID, &dl.Stage, &dl.SourceID, &payload, &dl.Error, &dl.Attempts, &dl.FailedAt); err != nil {
			return nil, fmt.Errorf("scan dead letter: %w", err)
		}
		dl.Payload = payload
		out = append(out, dl)
	}
	return out, rows.Err()
}
