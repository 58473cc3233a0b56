// Package sources polls external sources and turns their content into raw items.
package sources

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"
	"unicode/utf8"

	"github.com/joseph-ayodele/casting-aggregator/constants"
	"github.com/joseph-ayodele/casting-aggregator/internal/entity"
)

// Item is what a provider returns before the poller's gate.
type Item struct {
	Key      string // stable per piece of content; the seen-set key
	URL      string
	Text     string
	PostedAt time.Time
}

// Provider fetches the recent content of one source.
type Provider interface {
	Kind() constants.SourceKind
	Fetch(ctx context.Context, src entity.Source) ([]Item, error)
}

// SeenStore records processed content keys. repository.SourceRepository satisfies it.
type SeenStore interface {
	MarkSeen(ctx context.Context, sourceID, key string, at time.Time) (firstTime bool, err error)
}

// ErrNoProvider is returned for a source kind without a registered provider.
var ErrNoProvider = errors.New("no provider for source kind")

// Stats counts what the gate did with one poll's items.
type Stats struct {
	Fetched  int
	Stale    int
	Seen     int
	TooShort int
	Emitted  int
}

// Skipped is everything fetched but not emitted.
func (s Stats) Skipped() int { return s.Stale + s.Seen + s.TooShort }

// Poller applies the freshness and idempotency gate to provider output.
type Poller struct {
	providers map[constants.SourceKind]Provider
	seen      SeenStore
	recency   time.Duration
	minLength int
	now       func() time.Time
	logger    *slog.Logger
}

type PollerOption func(*Poller)

func WithRecencyWindow(d time.Duration) PollerOption {
	return func(p *Poller) {
		if d > 0 {
			p.recency = d
		}
	}
}

func WithMinLength(n int) PollerOption {
	return func(p *Poller) {
		if n >= 0 {
			p.minLength = n
		}
	}
}

func WithClock(now func() time.Time) PollerOption {
	return func(p *Poller) {
		if now != nil {
			p.now = now
		}
	}
}

func NewPoller(seen SeenStore, logger *slog.Logger, providers []Provider, opts ...PollerOption) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Poller{
		providers: make(map[constants.SourceKind]Provider, len(providers)),
		seen:      seen,
		recency:   7 * 24 * time.Hour,
		minLength: 40,
		now:       time.Now,
		logger:    logger,
	}
	for _, pr := range providers {
		p.providers[pr.Kind()] = pr
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Poll fetches a source and returns the items worth extracting, oldest first.
// Items are marked seen before they are returned, so a crash before enqueueing
// loses them rather than processing them twice.
func (p *Poller) Poll(ctx context.Context, src entity.Source) ([]entity.RawContentItem, Stats, error) {
	var st Stats
	prov, ok := p.providers[src.Kind]
	if !ok {
		return nil, st, fmt.Errorf("%w %q", ErrNoProvider, src.Kind)
	}

	items, err := prov.Fetch(ctx, src)
	if err != nil {
		return nil, st, fmt.Errorf("fetch %s %s: %w", src.Kind, src.Locator, err)
	}
	st.Fetched = len(items)

	sort.SliceStable(items, func(i, j int) bool { return items[i].PostedAt.Before(items[j].PostedAt) })

	now := p.now()
	cutoff := now.Add(-p.recency)
	out := make([]entity.RawContentItem, 0, len(items))
	for _, it := range items {
		if !it.PostedAt.IsZero() && it.PostedAt.Before(cutoff) {
			st.Stale++
			continue
		}
		first, err := p.seen.MarkSeen(ctx, src.ID, it.Key, now)
		if err != nil {
			return out, st, fmt.Errorf("mark seen %s: %w", it.Key, err)
		}
		if !first {
			st.Seen++
			continue
		}
		text := CleanText(it.Text)
		if utf8.RuneCountInString(text) < p.minLength {
			st.TooShort++
			continue
		}
		discovered := it.PostedAt
		if discovered.IsZero() {
			discovered = now
		}
		out = append(out, entity.RawContentItem{
			SourceID:     src.ID,
			SourceURL:    it.URL,
			Text:         text,
			DiscoveredAt: discovered.UTC(),
		})
	}
	st.Emitted = len(out)

	p.logger.Info("poller.polled",
		"source_id", src.ID,
		"kind", src.Kind,
		"fetched", st.Fetched,
		"emitted", st.Emitted,
		"stale", st.Stale,
		"seen", st.Seen,
		"too_short", st.TooShort,
	)
	return out, st, nil
}
