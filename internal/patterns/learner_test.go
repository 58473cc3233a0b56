package patterns

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/casting-aggregator/constants"
	"github.com/joseph-ayodele/casting-aggregator/internal/common"
	"github.com/joseph-ayodele/casting-aggregator/internal/entity"
)

type fakeStore struct {
	mu      sync.Mutex
	rows    map[string]entity.LearnedPattern
	failing bool
	failOn  string // batches containing this pattern are rejected whole
	upserts int
}

func newFakeStore() *fakeStore {
	return &fakeStore{rows: make(map[string]entity.LearnedPattern)}
}

func key(p string, c constants.PatternCategory) string { return string(c) + "|" + p }

func (f *fakeStore) GetPattern(_ context.Context, p string, c constants.PatternCategory) (*entity.LearnedPattern, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing {
		return nil, errors.New("store down")
	}
	row, ok := f.rows[key(p, c)]
	if !ok {
		return nil, common.ErrNotFound
	}
	row.Examples = append([]string(nil), row.Examples...)
	return &row, nil
}

func (f *fakeStore) UpsertPatterns(_ context.Context, ps []entity.LearnedPattern) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing {
		return errors.New("store down")
	}
	for _, p := range ps {
		if p.Pattern == f.failOn {
			return errors.New("constraint violated")
		}
	}
	for _, p := range ps {
		f.upserts++
		f.rows[key(p.Pattern, p.Category)] = p
	}
	return nil
}

func (f *fakeStore) TopPatterns(_ context.Context, minConfidence float64, _ int) ([]entity.LearnedPattern, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []entity.LearnedPattern
	for _, r := range f.rows {
		if r.Confidence >= minConfidence {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeStore) get(p string, c constants.PatternCategory) entity.LearnedPattern {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rows[key(p, c)]
}

func TestExtractFindsVocabularyAndTokens(t *testing.T) {
	l := NewLearner(newFakeStore(), nil, nil)
	obs := l.Extract("مطلوب ممثلين للتصوير في الرياض، للتواصل واتساب +966 55 123 4567 قبل 12/05/2025")

	require.Contains(t, obs, Observation{Pattern: "مطلوب", Category: constants.CategoryTalent})
	require.Contains(t, obs, Observation{Pattern: "الرياض", Category: constants.CategoryLocation})
	require.Contains(t, obs, Observation{Pattern: "واتساب", Category: constants.CategoryContact})
	require.Contains(t, obs, Observation{Pattern: "+966 55 123 4567", Category: constants.CategoryContact})
	require.Contains(t, obs, Observation{Pattern: "12/05/2025", Category: constants.CategoryContact})
}

func TestConfidenceIsClamped(t *testing.T) {
	store := newFakeStore()
	l := NewLearner(store, nil, nil, WithBatchSize(3))
	ctx := context.Background()

	for i := 0; i < 12; i++ {
		l.RecordFeedback("casting actors wanted", false)
	}
	require.NoError(t, l.Flush(ctx))
	require.Equal(t, 0.0, store.get("wanted", constants.CategoryTalent).Confidence)

	for i := 0; i < 15; i++ {
		l.RecordFeedback("casting actors wanted", true)
	}
	require.NoError(t, l.Flush(ctx))
	p := store.get("wanted", constants.CategoryTalent)
	require.Equal(t, 1.0, p.Confidence)
	require.Equal(t, 27, p.Occurrences)
}

func TestAdjustSteps(t *testing.T) {
	p := &entity.LearnedPattern{Confidence: InitialConfidence}
	now := time.Now()
	Adjust(p, true, "a", now)
	require.Equal(t, 0.6, p.Confidence)
	Adjust(p, false, "b", now)
	Adjust(p, false, "c", now)
	require.Equal(t, 0.4, p.Confidence)
	require.Equal(t, 3, p.Occurrences)
	require.Equal(t, now, p.LastSeen)
}

func TestExamplesKeepFirstFive(t *testing.T) {
	p := &entity.LearnedPattern{Confidence: InitialConfidence}
	for _, ex := range []string{"one", "two", "two", "three", "four", "five", "six", "seven"} {
		Adjust(p, true, ex, time.Now())
	}
	require.Equal(t, []string{"one", "two", "three", "four", "five"}, p.Examples)
}

func TestFailedBatchIsRequeued(t *testing.T) {
	store := newFakeStore()
	l := NewLearner(store, nil, nil, WithBatchSize(10))
	ctx := context.Background()

	store.failing = true
	l.RecordFeedback("looking for actors, paid", true)
	l.RecordFeedback("looking for extras, paid", true)
	require.Error(t, l.Flush(ctx))
	require.Equal(t, 2, l.Pending())

	l.RecordFeedback("seeking actors, paid", true)
	store.failing = false
	require.NoError(t, l.Flush(ctx))
	require.Zero(t, l.Pending())

	paid := store.get("paid", constants.CategoryPayment)
	require.Equal(t, 3, paid.Occurrences)
	require.InDelta(t, 0.8, paid.Confidence, 1e-9)
}

func TestRejectedBatchIsCountedOnce(t *testing.T) {
	store := newFakeStore()
	l := NewLearner(store, nil, nil, WithBatchSize(10))
	ctx := context.Background()

	store.failOn = "paid"
	l.RecordFeedback("casting actors wanted, paid", true)
	require.Error(t, l.Flush(ctx))
	require.Zero(t, store.get("wanted", constants.CategoryTalent).Occurrences)

	store.failOn = ""
	require.NoError(t, l.Flush(ctx))
	wanted := store.get("wanted", constants.CategoryTalent)
	require.Equal(t, 1, wanted.Occurrences)
	require.InDelta(t, InitialConfidence+Step, wanted.Confidence, 1e-9)
}

func TestTopPatternsFiltersAndOrders(t *testing.T) {
	store := newFakeStore()
	store.rows[key("مطلوب", constants.CategoryTalent)] = entity.LearnedPattern{Pattern: "مطلوب", Category: constants.CategoryTalent, Confidence: 0.9}
	store.rows[key("actor", constants.CategoryTalent)] = entity.LearnedPattern{Pattern: "actor", Category: constants.CategoryTalent, Confidence: 0.75}
	store.rows[key("fee", constants.CategoryPayment)] = entity.LearnedPattern{Pattern: "fee", Category: constants.CategoryPayment, Confidence: 0.3}
	l := NewLearner(store, nil, nil)

	top, err := l.TopPatterns(context.Background(), 0.7)
	require.NoError(t, err)
	require.Equal(t, []string{"مطلوب", "actor"}, top[constants.CategoryTalent])
	require.NotContains(t, top, constants.CategoryPayment)
}

func TestRunFlushesOnCancel(t *testing.T) {
	store := newFakeStore()
	l := NewLearner(store, nil, nil, WithFlushInterval(time.Hour))
	l.RecordFeedback("casting actors wanted", true)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { l.Run(ctx); close(done) }()
	cancel()
	<-done

	require.Zero(t, l.Pending())
	require.Equal(t, 1, store.get("actor", constants.CategoryTalent).Occurrences)
}
