package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/joseph-ayodele/casting-aggregator/internal/entity"
	"github.com/joseph-ayodele/casting-aggregator/internal/llm"
	"github.com/joseph-ayodele/casting-aggregator/internal/prefilter"
	"github.com/joseph-ayodele/casting-aggregator/internal/queue"
)

// Extractor is satisfied by *extract.Client.
type Extractor interface {
	Extract(ctx context.Context, text string) (entity.ExtractionCandidate, error)
}

// Enqueuer is satisfied by *queue.Queue.
type Enqueuer interface {
	Enqueue(ctx context.Context, v any) (string, error)
}

// ExtractStage consumes raw items: pre-filter, then extraction, then hand-off
// to the validation queue.
type ExtractStage struct {
	Logger     *slog.Logger
	Filter     *prefilter.Filter
	Extractor  Extractor
	Validation Enqueuer
}

func NewExtractStage(logger *slog.Logger, filter *prefilter.Filter, ex Extractor, validation Enqueuer) *ExtractStage {
	if logger == nil {
		logger = slog.Default()
	}
	if filter == nil {
		filter = prefilter.New(nil)
	}
	return &ExtractStage{Logger: logger, Filter: filter, Extractor: ex, Validation: validation}
}

// Run processes one item. Filtered and NotCastingCall are returned as outcomes.
// Extraction failures are returned as errors for the caller to dead-letter.
func (s *ExtractStage) Run(ctx context.Context, item entity.RawContentItem) (Outcome, error) {
	log := s.Logger.With("source_id", item.SourceID, "source_url", item.SourceURL)

	d := s.Filter.Classify(item.Text)
	if !d.Pass {
		log.Info("extract_stage.filtered", "reason", d.Reason)
		return Outcome{Kind: OutcomeFiltered, Reason: d.Reason}, nil
	}

	cand, err := s.Extractor.Extract(ctx, item.Text)
	if err != nil {
		if llm.IsNotCastingCall(err) {
			log.Info("extract_stage.not_casting_call", "reason", err.Error())
			return Outcome{Kind: OutcomeNotCastingCall, Reason: err.Error()}, nil
		}
		log.Warn("extract_stage.failed", "error", err)
		return Outcome{}, err
	}

	// the client never returns an incomplete candidate, but nothing with blanks may leave this stage
	if missing := cand.MissingRequired(); len(missing) > 0 {
		reason := fmt.Sprintf("missing required fields: %v", missing)
		log.Warn("extract_stage.incomplete", "missing", missing)
		return Outcome{Kind: OutcomeNotCastingCall, Reason: reason}, nil
	}

	cand.SourceID = item.SourceID
	cand.SourceURL = item.SourceURL
	jobID, err := s.Validation.Enqueue(ctx, cand)
	if err != nil {
		return Outcome{}, fmt.Errorf("enqueue validation: %w", err)
	}
	log.Info("extract_stage.queued", "validation_job_id", jobID, "title", cand.Title)
	return Outcome{Kind: OutcomeQueued, ID: jobID}, nil
}

// Handle adapts Run to a queue handler. Extraction errors are permanent at
// this level: the client has already spent its retry budget.
func (s *ExtractStage) Handle(ctx context.Context, job entity.Job) error {
	var item entity.RawContentItem
	if err := json.Unmarshal(job.Payload, &item); err != nil {
		return queue.Permanent(fmt.Errorf("decode raw item: %w", err))
	}
	_, err := s.Run(ctx, item)
	if err == nil {
		return nil
	}
	var ee *llm.ExtractionError
	if errors.As(err, &ee) {
		return queue.Permanent(err)
	}
	return err
}
