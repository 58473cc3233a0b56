package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/casting-aggregator/constants"
	"github.com/joseph-ayodele/casting-aggregator/internal/common"
	"github.com/joseph-ayodele/casting-aggregator/internal/entity"
	"github.com/joseph-ayodele/casting-aggregator/internal/queue"
)

// Records is the slice of repository.CastingCallRepository the stage uses.
type Records interface {
	FindByHash(ctx context.Context, hash string) (*entity.CastingCallRecord, error)
	CreateWithOutbox(ctx context.Context, rec entity.CastingCallRecord, entry entity.OutboxEntry) (created bool, existingID string, err error)
}

// ValidateStage deduplicates candidates by content hash and persists new
// records together with their outbox event.
type ValidateStage struct {
	Logger  *slog.Logger
	Records Records
	Now     func() time.Time
}

func NewValidateStage(logger *slog.Logger, records Records) *ValidateStage {
	if logger == nil {
		logger = slog.Default()
	}
	return &ValidateStage{Logger: logger, Records: records, Now: time.Now}
}

// RecordCreatedEvent is the outbox payload for a new record.
type RecordCreatedEvent struct {
	RecordID    string                   `json:"record_id"`
	ContentHash string                   `json:"content_hash"`
	Record      entity.CastingCallRecord `json:"record"`
}

// Run returns created(id), duplicate(id) or rejected(reason). A returned
// error is a persistence failure; the whole job is safe to retry.
func (s *ValidateStage) Run(ctx context.Context, c entity.ExtractionCandidate) (Outcome, error) {
	if err := validateCandidate(c); err != nil {
		s.Logger.Warn("validate_stage.rejected", "source_url", c.SourceURL, "error", err)
		return Outcome{Kind: OutcomeRejected, Reason: err.Error()}, nil
	}

	hash := ContentHash(c)
	log := s.Logger.With("content_hash", hash[:12], "source_url", c.SourceURL)

	existing, err := s.Records.FindByHash(ctx, hash)
	switch {
	case err == nil:
		log.Info("validate_stage.duplicate", "record_id", existing.ID)
		return Outcome{Kind: OutcomeDuplicate, ID: existing.ID}, nil
	case !common.IsNotFound(err):
		return Outcome{}, fmt.Errorf("find by hash: %w", err)
	}

	now := s.Now().UTC()
	rec := entity.RecordFromCandidate(c, uuid.NewString(), hash, now)
	payload, err := json.Marshal(RecordCreatedEvent{RecordID: rec.ID, ContentHash: hash, Record: rec})
	if err != nil {
		return Outcome{}, fmt.Errorf("encode event: %w", err)
	}
	entry := entity.OutboxEntry{
		ID:          uuid.NewString(),
		AggregateID: rec.ID,
		EventType:   constants.EventCastingCallCreated,
		Payload:     payload,
		Status:      constants.OutboxStatusPending,
		NextRunAt:   now,
		CreatedAt:   now,
	}

	created, existingID, err := s.Records.CreateWithOutbox(ctx, rec, entry)
	if err != nil {
		return Outcome{}, err
	}
	if !created {
		// lost a race with a concurrent worker holding the same hash
		log.Info("validate_stage.duplicate", "record_id", existingID, "race", true)
		return Outcome{Kind: OutcomeDuplicate, ID: existingID}, nil
	}
	log.Info("validate_stage.created", "record_id", rec.ID)
	return Outcome{Kind: OutcomeCreated, ID: rec.ID}, nil
}

// Handle adapts Run to a queue handler.
func (s *ValidateStage) Handle(ctx context.Context, job entity.Job) error {
	var c entity.ExtractionCandidate
	if err := json.Unmarshal(job.Payload, &c); err != nil {
		return queue.Permanent(fmt.Errorf("decode candidate: %w", err))
	}
	_, err := s.Run(ctx, c)
	return err
}

// validateCandidate only checks required-field presence. Shape and length
// limits are enforced by the extraction schema, where a violation dead-letters.
func validateCandidate(c entity.ExtractionCandidate) error {
	v := common.NewValidator().
		Field("title", c.Title, common.Required).
		Field("description", c.Description, common.Required).
		Field("company", c.Company, common.Required).
		Field("location", c.Location, common.Required)
	return common.ValidateAndReturnError(v)
}
