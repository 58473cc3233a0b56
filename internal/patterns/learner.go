// Package patterns maintains confidence-scored keywords learned from
// extraction feedback.
package patterns

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"regexp"
	"sort"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/joseph-ayodele/casting-aggregator/constants"
	"github.com/joseph-ayodele/casting-aggregator/internal/common"
	"github.com/joseph-ayodele/casting-aggregator/internal/entity"
	"github.com/joseph-ayodele/casting-aggregator/internal/vocab"
)

const (
	// Step is the confidence change applied per feedback event.
	Step = 0.1
	// InitialConfidence is the starting confidence of a newly observed pattern.
	InitialConfidence = 0.5

	maxExampleRunes = 200
)

var (
	rePhone = regexp.MustCompile(`\+?\d[\d\s\-]{6,}\d`)
	reDate  = regexp.MustCompile(`\b\d{1,4}[/\-.]\d{1,2}[/\-.]\d{1,4}\b`)
)

// Store persists learned patterns. Upserts are keyed by (pattern, category).
type Store interface {
	GetPattern(ctx context.Context, pattern string, category constants.PatternCategory) (*entity.LearnedPattern, error)
	UpsertPatterns(ctx context.Context, ps []entity.LearnedPattern) error
	TopPatterns(ctx context.Context, minConfidence float64, perCategory int) ([]entity.LearnedPattern, error)
}

// Observation is one pattern occurrence found in a text.
type Observation struct {
	Pattern  string
	Category constants.PatternCategory
}

type feedback struct {
	observations []Observation
	accepted     bool
	example      string
	at           time.Time
}

// Learner buffers feedback in memory and applies it to the Store in batches.
// A batch that fails to apply is put back at the head of the buffer.
type Learner struct {
	store  Store
	voc    *vocab.Vocabulary
	logger *slog.Logger

	batchSize   int
	interval    time.Duration
	maxPending  int
	perCategory int
	now         func() time.Time

	mu      sync.Mutex
	pending []feedback
	kick    chan struct{}
}

type Option func(*Learner)

func WithBatchSize(n int) Option {
	return func(l *Learner) {
		if n > 0 {
			l.batchSize = n
		}
	}
}

func WithFlushInterval(d time.Duration) Option {
	return func(l *Learner) {
		if d > 0 {
			l.interval = d
		}
	}
}

func WithMaxPending(n int) Option {
	return func(l *Learner) {
		if n > 0 {
			l.maxPending = n
		}
	}
}

func WithPerCategory(n int) Option {
	return func(l *Learner) {
		if n > 0 {
			l.perCategory = n
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(l *Learner) {
		if now != nil {
			l.now = now
		}
	}
}

func NewLearner(store Store, voc *vocab.Vocabulary, logger *slog.Logger, opts ...Option) *Learner {
	if logger == nil {
		logger = slog.Default()
	}
	if voc == nil {
		voc = vocab.Default()
	}
	l := &Learner{
		store:       store,
		voc:         voc,
		logger:      logger,
		batchSize:   50,
		interval:    5 * time.Second,
		maxPending:  10000,
		perCategory: 10,
		now:         time.Now,
		kick:        make(chan struct{}, 1),
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Extract finds every vocabulary keyword of every category in text, plus
// phone-like and date-like tokens tagged as contact.
func (l *Learner) Extract(text string) []Observation {
	norm := vocab.Normalize(text)
	seen := make(map[Observation]struct{})
	var out []Observation
	add := func(o Observation) {
		if _, ok := seen[o]; ok {
			return
		}
		seen[o] = struct{}{}
		out = append(out, o)
	}
	for _, cat := range constants.Categories() {
		for _, kw := range l.voc.Match(cat, norm) {
			add(Observation{Pattern: kw, Category: cat})
		}
	}
	for _, tok := range rePhone.FindAllString(text, -1) {
		add(Observation{Pattern: tok, Category: constants.CategoryContact})
	}
	for _, tok := range reDate.FindAllString(text, -1) {
		add(Observation{Pattern: tok, Category: constants.CategoryContact})
	}
	return out
}

// RecordFeedback queues an acceptance or rejection signal. It never blocks on
// the store.
func (l *Learner) RecordFeedback(text string, accepted bool) {
	obs := l.Extract(text)
	if len(obs) == 0 {
		return
	}
	fb := feedback{observations: obs, accepted: accepted, example: truncateRunes(text, maxExampleRunes), at: l.now().UTC()}

	l.mu.Lock()
	l.pending = append(l.pending, fb)
	if over := len(l.pending) - l.maxPending; over > 0 {
		l.pending = l.pending[over:]
		l.logger.Warn("patterns.feedback.overflow", "dropped", over, "max_pending", l.maxPending)
	}
	full := len(l.pending) >= l.batchSize
	l.mu.Unlock()

	if full {
		select {
		case l.kick <- struct{}{}:
		default:
		}
	}
}

// Pending reports buffered feedback events not yet applied.
func (l *Learner) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.pending)
}

// Run flushes on a timer, or sooner when a batch fills, until ctx is done.
// A final flush is attempted on exit.
func (l *Learner) Run(ctx context.Context) {
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			if err := l.Flush(flushCtx); err != nil {
				l.logger.Warn("patterns.flush.final_failed", "error", err, "pending", l.Pending())
			}
			cancel()
			return
		case <-ticker.C:
		case <-l.kick:
		}
		if err := l.Flush(ctx); err != nil && !errors.Is(err, context.Canceled) {
			l.logger.Warn("patterns.flush.failed", "error", err, "pending", l.Pending())
		}
	}
}

// Flush applies buffered feedback batch by batch. On the first failing batch
// the remaining feedback is kept and the error returned.
func (l *Learner) Flush(ctx context.Context) error {
	for {
		l.mu.Lock()
		n := min(len(l.pending), l.batchSize)
		if n == 0 {
			l.mu.Unlock()
			return nil
		}
		batch := make([]feedback, n)
		copy(batch, l.pending[:n])
		l.pending = l.pending[n:]
		l.mu.Unlock()

		if err := l.apply(ctx, batch); err != nil {
			l.mu.Lock()
			l.pending = append(batch, l.pending...)
			l.mu.Unlock()
			return err
		}
		l.logger.Debug("patterns.flush.ok", "events", n)
	}
}

func (l *Learner) apply(ctx context.Context, batch []feedback) error {
	type key struct {
		pattern  string
		category constants.PatternCategory
	}
	touched := make(map[key]*entity.LearnedPattern)
	var order []key

	for _, fb := range batch {
		for _, o := range fb.observations {
			k := key{o.Pattern, o.Category}
			p, ok := touched[k]
			if !ok {
				existing, err := l.store.GetPattern(ctx, o.Pattern, o.Category)
				switch {
				case errors.Is(err, common.ErrNotFound):
					p = &entity.LearnedPattern{Pattern: o.Pattern, Category: o.Category, Confidence: InitialConfidence}
				case err != nil:
					return err
				default:
					p = existing
				}
				touched[k] = p
				order = append(order, k)
			}
			Adjust(p, fb.accepted, fb.example, fb.at)
		}
	}

	// a partially written batch would double-count on retry
	rows := make([]entity.LearnedPattern, 0, len(order))
	for _, k := range order {
		rows = append(rows, *touched[k])
	}
	return l.store.UpsertPatterns(ctx, rows)
}

// Adjust applies one feedback event to p.
func Adjust(p *entity.LearnedPattern, accepted bool, example string, at time.Time) {
	delta := -Step
	if accepted {
		delta = Step
	}
	p.Confidence = Clamp(p.Confidence + delta)
	p.Occurrences++
	if at.After(p.LastSeen) {
		p.LastSeen = at
	}
	if example != "" && len(p.Examples) < entity.MaxPatternExamples {
		for _, e := range p.Examples {
			if e == example {
				return
			}
		}
		p.Examples = append(p.Examples, example)
	}
}

// Clamp bounds confidence to [0,1] and rounds away float drift.
func Clamp(c float64) float64 {
	c = math.Round(c*100) / 100
	return math.Max(0, math.Min(1, c))
}

// TopPatterns returns, per category, patterns at or above minConfidence,
// highest confidence first.
func (l *Learner) TopPatterns(ctx context.Context, minConfidence float64) (map[constants.PatternCategory][]string, error) {
	rows, err := l.store.TopPatterns(ctx, minConfidence, l.perCategory)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].Confidence != rows[j].Confidence {
			return rows[i].Confidence > rows[j].Confidence
		}
		return rows[i].Pattern < rows[j].Pattern
	})
	out := make(map[constants.PatternCategory][]string)
	for _, r := range rows {
		if r.Confidence < minConfidence || len(out[r.Category]) >= l.perCategory {
			continue
		}
		out[r.Category] = append(out[r.Category], r.Pattern)
	}
	return out, nil
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}
