package extract

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/casting-aggregator/constants"
	"github.com/joseph-ayodele/casting-aggregator/internal/cache"
	"github.com/joseph-ayodele/casting-aggregator/internal/llm"
)

const acceptedJSON = `{"is_casting_call": true, "title": "Actors for a commercial", "description": "Shoot in Riyadh", "company": "Nour Films", "location": "Riyadh", "compensation": "500 SAR"}`

type fakeProvider struct {
	calls   atomic.Int32
	respond func(n int32) (string, error)
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) Complete(ctx context.Context, _ llm.Prompt) (string, error) {
	n := f.calls.Add(1)
	return f.respond(n)
}

type fakePatterns struct {
	mu       sync.Mutex
	hints    map[constants.PatternCategory][]string
	feedback []bool
}

func (f *fakePatterns) TopPatterns(context.Context, float64) (map[constants.PatternCategory][]string, error) {
	return f.hints, nil
}

func (f *fakePatterns) RecordFeedback(_ string, accepted bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.feedback = append(f.feedback, accepted)
}

func testConfig() Config {
	return Config{
		MaxAttempts: 3,
		RetryDelay:  time.Millisecond,
		CallTimeout: time.Second,
		RatePerSec:  1000,
		Burst:       10,
	}
}

func TestExtractAccepted(t *testing.T) {
	p := &fakeProvider{respond: func(int32) (string, error) { return acceptedJSON, nil }}
	pats := &fakePatterns{}
	c := NewClient(p, nil, pats, testConfig(), nil)

	cand, err := c.Extract(context.Background(), "مطلوب ممثلين")
	require.NoError(t, err)
	require.Equal(t, "Nour Films", cand.Company)
	require.Equal(t, []bool{true}, pats.feedback)
}

func TestExtractRetryBound(t *testing.T) {
	p := &fakeProvider{respond: func(int32) (string, error) {
		return "", &llm.ProviderError{Provider: "fake", StatusCode: 500, Body: "down"}
	}}
	c := NewClient(p, nil, nil, testConfig(), nil)

	_, err := c.Extract(context.Background(), "text")
	require.True(t, llm.IsTransient(err))
	require.EqualValues(t, 3, p.calls.Load())
}

func TestExtractRetriesThenSucceeds(t *testing.T) {
	p := &fakeProvider{respond: func(n int32) (string, error) {
		switch n {
		case 1:
			return "", &llm.ProviderError{StatusCode: 429}
		case 2:
			return "", errors.New("connection reset")
		}
		return acceptedJSON, nil
	}}
	c := NewClient(p, nil, nil, testConfig(), nil)

	_, err := c.Extract(context.Background(), "text")
	require.NoError(t, err)
	require.EqualValues(t, 3, p.calls.Load())
}

func TestExtractClientErrorNotRetried(t *testing.T) {
	p := &fakeProvider{respond: func(int32) (string, error) {
		return "", &llm.ProviderError{StatusCode: 401, Body: "bad key"}
	}}
	c := NewClient(p, nil, nil, testConfig(), nil)

	_, err := c.Extract(context.Background(), "text")
	require.Error(t, err)
	require.False(t, llm.IsTransient(err))
	require.EqualValues(t, 1, p.calls.Load())
}

func TestExtractTimeoutIsTransient(t *testing.T) {
	p := &fakeProvider{}
	p.respond = func(int32) (string, error) { return "", context.DeadlineExceeded }
	c := NewClient(p, nil, nil, testConfig(), nil)

	_, err := c.Extract(context.Background(), "text")
	require.True(t, llm.IsTransient(err))
	require.EqualValues(t, 3, p.calls.Load())
}

func TestExtractCacheRoundTrip(t *testing.T) {
	p := &fakeProvider{respond: func(int32) (string, error) { return acceptedJSON, nil }}
	pats := &fakePatterns{hints: map[constants.PatternCategory][]string{constants.CategoryTalent: {"ممثلين"}}}
	c := NewClient(p, cache.NewMemory(time.Hour), pats, testConfig(), nil)
	ctx := context.Background()

	first, err := c.Extract(ctx, "مطلوب ممثلين للتصوير")
	require.NoError(t, err)
	c.Wait()

	second, err := c.Extract(ctx, "مطلوب   ممثلين للتصوير")
	require.NoError(t, err)

	require.Equal(t, first, second)
	require.EqualValues(t, 1, p.calls.Load())
	require.Len(t, pats.feedback, 1)
}

func TestExtractCacheMissWhenPatternsChange(t *testing.T) {
	p := &fakeProvider{respond: func(int32) (string, error) { return acceptedJSON, nil }}
	pats := &fakePatterns{}
	c := NewClient(p, cache.NewMemory(time.Hour), pats, testConfig(), nil)
	ctx := context.Background()

	_, err := c.Extract(ctx, "text")
	require.NoError(t, err)
	c.Wait()

	pats.hints = map[constants.PatternCategory][]string{constants.CategoryPayment: {"ريال"}}
	_, err = c.Extract(ctx, "text")
	require.NoError(t, err)
	require.EqualValues(t, 2, p.calls.Load())
}

func TestExtractNotACastingCall(t *testing.T) {
	p := &fakeProvider{respond: func(int32) (string, error) {
		return `{"is_casting_call": false, "rejection_reason": "acting workshop"}`, nil
	}}
	pats := &fakePatterns{}
	mem := cache.NewMemory(time.Hour)
	c := NewClient(p, mem, pats, testConfig(), nil)

	_, err := c.Extract(context.Background(), "text")
	require.True(t, llm.IsNotCastingCall(err))
	require.Contains(t, err.Error(), "acting workshop")
	require.Equal(t, []bool{false}, pats.feedback)

	c.Wait()
	require.Equal(t, 1, mem.Len())
}

func TestExtractIncompleteIsRejected(t *testing.T) {
	p := &fakeProvider{respond: func(int32) (string, error) {
		return `{"is_casting_call": true, "title": "Actors", "description": "", "company": "X"}`, nil
	}}
	pats := &fakePatterns{}
	c := NewClient(p, nil, pats, testConfig(), nil)

	_, err := c.Extract(context.Background(), "text")
	require.True(t, llm.IsNotCastingCall(err))
	require.Contains(t, err.Error(), "location")
	require.Empty(t, pats.feedback)
}

func TestExtractInvalidOutput(t *testing.T) {
	p := &fakeProvider{respond: func(int32) (string, error) { return `not json at all`, nil }}
	mem := cache.NewMemory(time.Hour)
	c := NewClient(p, mem, nil, testConfig(), nil)

	_, err := c.Extract(context.Background(), "text")
	require.True(t, llm.IsInvalidOutput(err))
	require.EqualValues(t, 1, p.calls.Load())
	c.Wait()
	require.Equal(t, 0, mem.Len())
}

func TestCacheKeyNormalizesWhitespace(t *testing.T) {
	a := CacheKey("p", llm.Prompt{System: "s", User: "a  b\n c"})
	b := CacheKey("p", llm.Prompt{System: "s", User: "a b c"})
	require.Equal(t, a, b)
	require.NotEqual(t, a, CacheKey("q", llm.Prompt{System: "s", User: "a b c"}))
}
