// Package extract wraps a structured-extraction provider with caching,
// retries, rate limiting and pattern feedback.
package extract

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/joseph-ayodele/casting-aggregator/constants"
	"github.com/joseph-ayodele/casting-aggregator/internal/cache"
	"github.com/joseph-ayodele/casting-aggregator/internal/entity"
	"github.com/joseph-ayodele/casting-aggregator/internal/llm"
)

const cacheKeyVersion = "v1"

// Patterns is the slice of the pattern learner the client depends on.
type Patterns interface {
	TopPatterns(ctx context.Context, minConfidence float64) (map[constants.PatternCategory][]string, error)
	RecordFeedback(text string, accepted bool)
}

// Config tunes the client. Zero values select the defaults.
type Config struct {
	MaxAttempts          int           // default 3
	RetryDelay           time.Duration // linear: attempt * RetryDelay; default 2s
	CallTimeout          time.Duration // per provider call; default 30s
	CacheTTL             time.Duration // default 7 days
	MinPatternConfidence float64       // default 0.7
	RatePerSec           float64       // default 1
	Burst                int           // default 1
	MaxBackground        int64         // concurrent cache writes; default 16
	Lenient              bool          // drop offending optional fields instead of failing
}

func (c *Config) defaults() {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = 2 * time.Second
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = 30 * time.Second
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = 7 * 24 * time.Hour
	}
	if c.MinPatternConfidence <= 0 {
		c.MinPatternConfidence = 0.7
	}
	if c.RatePerSec <= 0 {
		c.RatePerSec = 1
	}
	if c.Burst <= 0 {
		c.Burst = 1
	}
	if c.MaxBackground <= 0 {
		c.MaxBackground = 16
	}
}

// Client implements the extraction step of the pipeline.
type Client struct {
	provider llm.Provider
	cache    cache.Cache
	patterns Patterns
	cfg      Config
	limiter  *rate.Limiter
	bg       *semaphore.Weighted
	wg       sync.WaitGroup
	logger   *slog.Logger
}

// NewClient builds a client. cache and patterns may be nil.
func NewClient(provider llm.Provider, c cache.Cache, patterns Patterns, cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	cfg.defaults()
	return &Client{
		provider: provider,
		cache:    c,
		patterns: patterns,
		cfg:      cfg,
		limiter:  rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.Burst),
		bg:       semaphore.NewWeighted(cfg.MaxBackground),
		logger:   logger,
	}
}

// Extract turns raw text into a candidate. Errors are *llm.ExtractionError.
// Provenance fields of the returned candidate are left empty.
func (c *Client) Extract(ctx context.Context, text string) (entity.ExtractionCandidate, error) {
	rid := uuid.New().String()
	start := time.Now()
	log := c.logger.With("req_id", rid, "provider", c.provider.Name())

	var hints map[constants.PatternCategory][]string
	if c.patterns != nil {
		h, err := c.patterns.TopPatterns(ctx, c.cfg.MinPatternConfidence)
		if err != nil {
			log.Warn("extract.patterns.load_failed", "error", err)
		} else {
			hints = h
		}
	}

	prompt := llm.BuildPrompt(text, hints)
	key := CacheKey(c.provider.Name(), prompt)
	log.Info("extract.start", "text_len", len(text), "hint_categories", len(hints), "cache_key", key[:12])

	if res, ok := c.lookup(ctx, key, log); ok {
		log.Info("extract.cache_hit", "elapsed_ms", time.Since(start).Milliseconds())
		return c.interpret(res, text, false, log)
	}

	raw, err := c.call(ctx, prompt, log)
	if err != nil {
		return entity.ExtractionCandidate{}, err
	}

	res, doc, err := llm.ParseResult(raw, c.cfg.Lenient, log)
	if err != nil {
		log.Error("extract.invalid_output", "error", err, "raw", raw)
		return entity.ExtractionCandidate{}, err
	}

	c.store(key, doc, log)
	cand, err := c.interpret(res, text, true, log)
	log.Info("extract.done",
		"is_casting_call", res.IsCastingCall,
		"ok", err == nil,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return cand, err
}

// Wait blocks until background cache writes have finished.
func (c *Client) Wait() { c.wg.Wait() }

// interpret maps a validated result to the client's contract. Feedback is only
// recorded for fresh provider answers so a cached result is not counted twice.
func (c *Client) interpret(res llm.ExtractionResult, text string, fresh bool, log *slog.Logger) (entity.ExtractionCandidate, error) {
	if !res.IsCastingCall {
		reason := res.RejectionReason
		if reason == "" {
			reason = "classified as not a casting call"
		}
		if fresh && c.patterns != nil {
			c.patterns.RecordFeedback(text, false)
		}
		log.Info("extract.not_casting_call", "reason", reason)
		return entity.ExtractionCandidate{}, &llm.ExtractionError{Kind: llm.KindNotACastingCall, Reason: reason}
	}

	cand := res.Candidate()
	if missing := cand.MissingRequired(); len(missing) > 0 {
		log.Info("extract.incomplete", "missing", missing)
		return entity.ExtractionCandidate{}, &llm.ExtractionError{
			Kind:   llm.KindNotACastingCall,
			Reason: "missing required fields: " + strings.Join(missing, ", "),
		}
	}
	if fresh && c.patterns != nil {
		c.patterns.RecordFeedback(text, true)
	}
	return cand, nil
}

func (c *Client) lookup(ctx context.Context, key string, log *slog.Logger) (llm.ExtractionResult, bool) {
	if c.cache == nil {
		return llm.ExtractionResult{}, false
	}
	b, ok, err := c.cache.Get(ctx, key)
	if err != nil {
		log.Warn("extract.cache.get_failed", "error", err)
		return llm.ExtractionResult{}, false
	}
	if !ok {
		return llm.ExtractionResult{}, false
	}
	res, _, err := llm.ParseResult(string(b), false, log)
	if err != nil {
		log.Warn("extract.cache.corrupt_entry", "error", err)
		return llm.ExtractionResult{}, false
	}
	return res, true
}

// store writes the cache entry in the background. When the background set is
// full the write is skipped; a later identical prompt simply misses.
func (c *Client) store(key string, doc []byte, log *slog.Logger) {
	if c.cache == nil {
		return
	}
	if !c.bg.TryAcquire(1) {
		log.Warn("extract.cache.write_skipped", "reason", "background set full")
		return
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer c.bg.Release(1)
		ctx, cancel := context.WithTimeout(context.Background(), c.cfg.CallTimeout)
		defer cancel()
		if err := c.cache.Set(ctx, key, doc, c.cfg.CacheTTL); err != nil {
			log.Warn("extract.cache.write_failed", "error", err)
		}
	}()
}

// call invokes the provider with rate limiting, a per-call timeout and linear backoff.
func (c *Client) call(ctx context.Context, p llm.Prompt, log *slog.Logger) (string, error) {
	var lastErr error
	for attempt := 1; attempt <= c.cfg.MaxAttempts; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", transient(fmt.Errorf("rate limiter: %w", err))
		}

		callCtx, cancel := context.WithTimeout(ctx, c.cfg.CallTimeout)
		raw, err := c.provider.Complete(callCtx, p)
		cancel()
		if err == nil {
			return raw, nil
		}
		lastErr = err

		if errors.Is(err, llm.ErrMalformedResponse) {
			log.Error("extract.provider.malformed", "error", err, "attempt", attempt)
			return "", &llm.ExtractionError{Kind: llm.KindInvalidOutput, Reason: "malformed provider response", Err: err}
		}
		var pe *llm.ProviderError
		if errors.As(err, &pe) && !pe.Retryable() {
			log.Error("extract.provider.rejected", "status", pe.StatusCode, "error", err)
			return "", &llm.ExtractionError{Kind: llm.KindProviderRejected, Reason: fmt.Sprintf("status %d", pe.StatusCode), Err: err}
		}
		if ctx.Err() != nil {
			return "", transient(ctx.Err())
		}
		if attempt == c.cfg.MaxAttempts {
			break
		}

		delay := time.Duration(attempt) * c.cfg.RetryDelay
		if pe != nil && pe.RetryAfter > delay {
			delay = pe.RetryAfter
		}
		log.Warn("extract.provider.retry", "attempt", attempt, "delay_ms", delay.Milliseconds(), "error", err)
		select {
		case <-ctx.Done():
			return "", transient(ctx.Err())
		case <-time.After(delay):
		}
	}
	log.Error("extract.provider.exhausted", "attempts", c.cfg.MaxAttempts, "error", lastErr)
	return "", transient(lastErr)
}

func transient(err error) error {
	return &llm.ExtractionError{Kind: llm.KindTransient, Reason: "provider unavailable", Err: err}
}

// CacheKey fingerprints a prompt. Whitespace runs are collapsed so cosmetic
// differences in the raw text share an entry.
func CacheKey(provider string, p llm.Prompt) string {
	norm := func(s string) string { return strings.Join(strings.Fields(s), " ") }
	h := sha256.New()
	h.Write([]byte(cacheKeyVersion))
	h.Write([]byte{0})
	h.Write([]byte(provider))
	h.Write([]byte{0})
	h.Write([]byte(norm(p.System)))
	h.Write([]byte{0})
	h.Write([]byte(norm(p.User)))
	return hex.EncodeToString(h.Sum(nil))
}
