package deadletter

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/casting-aggregator/constants"
	"github.com/joseph-ayodele/casting-aggregator/internal/common"
	"github.com/joseph-ayodele/casting-aggregator/internal/entity"
	"github.com/joseph-ayodele/casting-aggregator/internal/repository"
	"github.com/joseph-ayodele/casting-aggregator/internal/repository/repotest"
)

type fakePutter struct {
	key  string
	body []byte
	err  error
}

func (f *fakePutter) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.key = aws.ToString(in.Key)
	f.body, _ = io.ReadAll(in.Body)
	return &s3.PutObjectOutput{}, nil
}

func TestS3Archiver(t *testing.T) {
	put := &fakePutter{}
	a := NewS3ArchiverWithClient(put, "bucket", "dlq", repotest.Logger())
	dl := entity.DeadLetter{
		ID:       "dl-1",
		Stage:    constants.QueueIngestion,
		SourceID: "job-1",
		Payload:  json.RawMessage(`{"text":"x"}`),
		Error:    "transient: provider unavailable",
		Attempts: 1,
		FailedAt: time.Date(2026, 3, 9, 10, 0, 0, 0, time.UTC),
	}
	require.NoError(t, a.Archive(context.Background(), dl))
	require.Equal(t, "dlq/ingestion/2026/03/09/dl-1.json", put.key)

	var got entity.DeadLetter
	require.NoError(t, json.Unmarshal(put.body, &got))
	require.Equal(t, dl.Error, got.Error)
}

func TestS3ArchiverError(t *testing.T) {
	put := &fakePutter{err: &smithy.GenericAPIError{Code: "AccessDenied", Message: "nope"}}
	a := NewS3ArchiverWithClient(put, "bucket", "", repotest.Logger())
	err := a.Archive(context.Background(), entity.DeadLetter{ID: "x", Stage: "validation"})
	var apiErr smithy.APIError
	require.True(t, errors.As(err, &apiErr))
	require.Equal(t, "AccessDenied", apiErr.ErrorCode())
}

func TestServiceRequeue(t *testing.T) {
	ctx := context.Background()
	store := repotest.NewSQLite(t)
	jobs := repository.NewJobRepository(store, nil)
	svc := NewService(repository.NewDeadLetterRepository(store, nil), repotest.Logger())

	id, err := jobs.Enqueue(ctx, constants.QueueValidation, json.RawMessage(`{"title":"x"}`), time.Now())
	require.NoError(t, err)
	claimed, err := jobs.Claim(ctx, constants.QueueValidation, time.Now().Add(time.Second), time.Minute, 1)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	require.Equal(t, id, claimed[0].ID)
	dl, err := jobs.DeadLetter(ctx, claimed[0], "boom", time.Now())
	require.NoError(t, err)

	letters, err := svc.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, letters, 1)

	jobID, err := svc.Requeue(ctx, dl.ID)
	require.NoError(t, err)
	require.NotEqual(t, id, jobID)

	n, err := svc.Count(ctx)
	require.NoError(t, err)
	require.Zero(t, n)
	depth, err := jobs.Depth(ctx, constants.QueueValidation)
	require.NoError(t, err)
	require.Equal(t, 1, depth)

	_, err = svc.Requeue(ctx, dl.ID)
	require.ErrorIs(t, err, common.ErrNotFound)
}
