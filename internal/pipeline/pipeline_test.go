package pipeline_test

import (
	"context"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/casting-aggregator/constants"
	"github.com/joseph-ayodele/casting-aggregator/internal/cache"
	"github.com/joseph-ayodele/casting-aggregator/internal/entity"
	"github.com/joseph-ayodele/casting-aggregator/internal/extract"
	"github.com/joseph-ayodele/casting-aggregator/internal/llm"
	"github.com/joseph-ayodele/casting-aggregator/internal/pipeline"
	"github.com/joseph-ayodele/casting-aggregator/internal/prefilter"
	"github.com/joseph-ayodele/casting-aggregator/internal/queue"
	"github.com/joseph-ayodele/casting-aggregator/internal/repository"
	"github.com/joseph-ayodele/casting-aggregator/internal/repository/repotest"
)

const castingText = "مطلوب ممثلين للتصوير في الرياض، للتواصل واتساب +9665xxxxxxx، الأجر 500 ريال"

const acceptedJSON = `{"is_casting_call": true, "title": "مطلوب ممثلين للتصوير", "description": "تصوير في الرياض", "company": "غير محدد", "location": "الرياض", "compensation": "500 ريال", "contact_info": "+9665xxxxxxx"}`

type stubProvider struct {
	calls  atomic.Int32
	answer func() (string, error)
}

func (p *stubProvider) Name() string { return "stub" }

func (p *stubProvider) Complete(context.Context, llm.Prompt) (string, error) {
	p.calls.Add(1)
	return p.answer()
}

type harness struct {
	store      *repository.Store
	records    repository.CastingCallRepository
	outbox     repository.OutboxRepository
	deadLetter repository.DeadLetterRepository
	ingestion  *queue.Queue
	extractR   *queue.Runner
	validateR  *queue.Runner
	client     *extract.Client
}

func newHarness(t *testing.T, p llm.Provider) *harness {
	store := repotest.NewSQLite(t)
	log := repotest.Logger()
	jobs := repository.NewJobRepository(store, log)
	records := repository.NewCastingCallRepository(store, log)

	client := extract.NewClient(p, cache.NewMemory(time.Hour), nil, extract.Config{
		MaxAttempts: 3,
		RetryDelay:  time.Millisecond,
		CallTimeout: time.Second,
		RatePerSec:  1000,
		Burst:       10,
	}, log)

	validation := queue.New(constants.QueueValidation, jobs)
	ex := pipeline.NewExtractStage(log, prefilter.New(nil), client, validation)
	va := pipeline.NewValidateStage(log, records)
	clock := queue.WithClock(func() time.Time { return time.Now().Add(time.Second) })

	return &harness{
		store:      store,
		records:    records,
		outbox:     repository.NewOutboxRepository(store, log),
		deadLetter: repository.NewDeadLetterRepository(store, log),
		ingestion:  queue.New(constants.QueueIngestion, jobs),
		extractR:   queue.NewRunner(constants.QueueIngestion, jobs, ex.Handle, log, clock),
		validateR:  queue.NewRunner(constants.QueueValidation, jobs, va.Handle, log, clock),
		client:     client,
	}
}

func (h *harness) submit(t *testing.T, text, url string) {
	_, err := h.ingestion.Enqueue(context.Background(), entity.RawContentItem{
		SourceID:     "src-1",
		SourceURL:    url,
		Text:         text,
		DiscoveredAt: time.Now(),
	})
	require.NoError(t, err)
}

func (h *harness) drain(t *testing.T) {
	ctx := context.Background()
	_, err := h.extractR.Drain(ctx)
	require.NoError(t, err)
	h.client.Wait()
	_, err = h.validateR.Drain(ctx)
	require.NoError(t, err)
}

func TestEndToEndCreatesThenDeduplicates(t *testing.T) {
	ctx := context.Background()
	p := &stubProvider{answer: func() (string, error) { return acceptedJSON, nil }}
	h := newHarness(t, p)

	h.submit(t, castingText, "chat://group-1/msg-1")
	h.drain(t)

	recs, err := h.records.List(ctx, constants.RecordStatusPendingReview, 10)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	first := recs[0]
	require.Equal(t, "الرياض", first.Location)
	require.Equal(t, "chat://group-1/msg-1", first.SourceURL)
	require.True(t, first.IsAggregated)

	counts, err := h.outbox.Counts(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, counts[constants.OutboxStatusPending])

	h.submit(t, castingText, "chat://group-2/msg-9")
	h.drain(t)

	n, err := h.records.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.EqualValues(t, 1, p.calls.Load())
}

func TestWorkshopNeverReachesExtraction(t *testing.T) {
	ctx := context.Background()
	p := &stubProvider{answer: func() (string, error) { return acceptedJSON, nil }}
	h := newHarness(t, p)

	h.submit(t, "ورشة تمثيل: مطلوب ممثلين، للتواصل واتساب، الأجر 500 ريال", "chat://g/1")
	h.drain(t)

	require.Zero(t, p.calls.Load())
	n, err := h.records.Count(ctx)
	require.NoError(t, err)
	require.Zero(t, n)
	dl, err := h.deadLetter.Count(ctx)
	require.NoError(t, err)
	require.Zero(t, dl)
}

func TestProviderOutageDeadLettersOnce(t *testing.T) {
	ctx := context.Background()
	p := &stubProvider{answer: func() (string, error) {
		return "", &llm.ProviderError{Provider: "stub", StatusCode: 500}
	}}
	h := newHarness(t, p)

	h.submit(t, castingText, "chat://g/2")
	h.drain(t)

	require.EqualValues(t, 3, p.calls.Load())
	letters, err := h.deadLetter.List(ctx, 10)
	require.NoError(t, err)
	require.Len(t, letters, 1)
	require.Equal(t, constants.QueueIngestion, letters[0].Stage)
	require.Contains(t, string(letters[0].Payload), "chat://g/2")
	require.Contains(t, letters[0].Error, "transient")
}

func TestInvalidOutputDeadLetters(t *testing.T) {
	ctx := context.Background()
	p := &stubProvider{answer: func() (string, error) { return `{"is_casting_call": "perhaps"}`, nil }}
	h := newHarness(t, p)

	h.submit(t, castingText, "chat://g/3")
	h.drain(t)

	require.EqualValues(t, 1, p.calls.Load())
	letters, err := h.deadLetter.List(ctx, 10)
	require.NoError(t, err)
	require.Len(t, letters, 1)
	require.Contains(t, letters[0].Error, "invalid_output")
}

func TestSchemaViolationsDeadLetter(t *testing.T) {
	cases := map[string]string{
		"impossible date": `{"is_casting_call": true, "title": "Actors", "description": "Bank ad", "company": "Nour", "location": "Riyadh", "deadline": "2026-02-30"}`,
		"long title":      `{"is_casting_call": true, "title": "` + strings.Repeat("a", 501) + `", "description": "Bank ad", "company": "Nour", "location": "Riyadh"}`,
	}
	for name, answer := range cases {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			p := &stubProvider{answer: func() (string, error) { return answer, nil }}
			h := newHarness(t, p)

			h.submit(t, castingText, "chat://g/5")
			h.drain(t)

			require.EqualValues(t, 1, p.calls.Load())
			n, err := h.records.Count(ctx)
			require.NoError(t, err)
			require.Zero(t, n)
			letters, err := h.deadLetter.List(ctx, 10)
			require.NoError(t, err)
			require.Len(t, letters, 1)
			require.Contains(t, letters[0].Error, "invalid_output")
		})
	}
}

func TestNotACastingCallIsDropped(t *testing.T) {
	ctx := context.Background()
	p := &stubProvider{answer: func() (string, error) {
		return `{"is_casting_call": false, "rejection_reason": "finished project announcement"}`, nil
	}}
	h := newHarness(t, p)

	h.submit(t, castingText, "chat://g/4")
	h.drain(t)

	n, err := h.records.Count(ctx)
	require.NoError(t, err)
	require.Zero(t, n)
	dl, err := h.deadLetter.Count(ctx)
	require.NoError(t, err)
	require.Zero(t, dl)
}
