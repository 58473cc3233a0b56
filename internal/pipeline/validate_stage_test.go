package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/casting-aggregator/internal/common"
	"github.com/joseph-ayodele/casting-aggregator/internal/entity"
	"github.com/joseph-ayodele/casting-aggregator/internal/repository"
	"github.com/joseph-ayodele/casting-aggregator/internal/repository/repotest"
)

func candidate(url string) entity.ExtractionCandidate {
	return entity.ExtractionCandidate{
		Title:       "Actors for a commercial",
		Description: "Bank commercial shoot",
		Company:     "Nour Films",
		Location:    "Riyadh",
		SourceID:    "src",
		SourceURL:   url,
	}
}

func TestValidateStageDedup(t *testing.T) {
	ctx := context.Background()
	store := repotest.NewSQLite(t)
	s := NewValidateStage(repotest.Logger(), repository.NewCastingCallRepository(store, nil))

	first, err := s.Run(ctx, candidate("https://a/1"))
	require.NoError(t, err)
	require.Equal(t, OutcomeCreated, first.Kind)

	c := candidate("https://b/2")
	pay := "1000 SAR"
	c.Compensation = &pay
	second, err := s.Run(ctx, c)
	require.NoError(t, err)
	require.Equal(t, OutcomeDuplicate, second.Kind)
	require.Equal(t, first.ID, second.ID)
}

func TestValidateStageRejectsBlanks(t *testing.T) {
	s := NewValidateStage(repotest.Logger(), nil)
	c := candidate("u")
	c.Company = "  "
	out, err := s.Run(context.Background(), c)
	require.NoError(t, err)
	require.Equal(t, OutcomeRejected, out.Kind)
	require.Contains(t, out.Reason, "company")
}

func TestValidateStageOnlyRejectsEmptyRequired(t *testing.T) {
	ctx := context.Background()
	store := repotest.NewSQLite(t)
	s := NewValidateStage(repotest.Logger(), repository.NewCastingCallRepository(store, nil))

	c := candidate("u")
	c.Title = strings.Repeat("ت", 700)
	d := "31/12/2026"
	c.Deadline = &d
	out, err := s.Run(ctx, c)
	require.NoError(t, err)
	require.Equal(t, OutcomeCreated, out.Kind)
}

type failingRecords struct{}

func (failingRecords) FindByHash(context.Context, string) (*entity.CastingCallRecord, error) {
	return nil, common.ErrNotFound
}

func (failingRecords) CreateWithOutbox(context.Context, entity.CastingCallRecord, entity.OutboxEntry) (bool, string, error) {
	return false, "", errors.Join(common.ErrDatabase, errors.New("disk full"))
}

func TestValidateStagePersistenceFailureIsRetryable(t *testing.T) {
	s := NewValidateStage(repotest.Logger(), failingRecords{})
	_, err := s.Run(context.Background(), candidate("u"))
	require.ErrorIs(t, err, common.ErrDatabase)
}

func TestContentHash(t *testing.T) {
	a := candidate("x")
	b := candidate("y")
	pay := "500"
	b.Compensation = &pay
	require.Equal(t, ContentHash(a), ContentHash(b))

	c := a
	c.Title, c.Description = a.Title+" Bank", "commercial shoot"
	require.NotEqual(t, ContentHash(a), ContentHash(c))

	d := a
	d.Company, d.Location = a.Location, a.Company
	require.NotEqual(t, ContentHash(a), ContentHash(d))
}
