package deadletter

import (
	"context"
	"log/slog"
	"time"

	"github.com/joseph-ayodele/casting-aggregator/internal/entity"
	"github.com/joseph-ayodele/casting-aggregator/internal/repository"
)

// Service is the operator-facing view of the dead-letter store.
type Service struct {
	repo   repository.DeadLetterRepository
	logger *slog.Logger
	now    func() time.Time
}

func NewService(repo repository.DeadLetterRepository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, logger: logger, now: time.Now}
}

func (s *Service) List(ctx context.Context, limit int) ([]entity.DeadLetter, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	return s.repo.List(ctx, limit)
}

func (s *Service) Get(ctx context.Context, id string) (*entity.DeadLetter, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) Count(ctx context.Context) (int, error) {
	return s.repo.Count(ctx)
}

// Requeue sends the dead letter's work back to the stage it failed in and
// returns the id of the new job or reset outbox entry.
func (s *Service) Requeue(ctx context.Context, id string) (string, error) {
	target, err := s.repo.Requeue(ctx, id, s.now())
	if err != nil {
		s.logger.Warn("deadletter.requeue_failed", "dead_letter_id", id, "error", err)
		return "", err
	}
	return target, nil
}
