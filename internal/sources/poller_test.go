package sources_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/casting-aggregator/constants"
	"github.com/joseph-ayodele/casting-aggregator/internal/entity"
	"github.com/joseph-ayodele/casting-aggregator/internal/repository"
	"github.com/joseph-ayodele/casting-aggregator/internal/repository/repotest"
	"github.com/joseph-ayodele/casting-aggregator/internal/sources"
)

type stubProvider struct {
	kind  constants.SourceKind
	items []sources.Item
	err   error
}

func (s *stubProvider) Kind() constants.SourceKind { return s.kind }

func (s *stubProvider) Fetch(context.Context, entity.Source) ([]sources.Item, error) {
	return s.items, s.err
}

var longText = strings.Repeat("casting call for actors in Riyadh ", 3)

func setup(t *testing.T, prov *stubProvider, now time.Time) (*sources.Poller, entity.Source) {
	t.Helper()
	store := repotest.NewSQLite(t)
	repo := repository.NewSourceRepository(store, nil)
	src, err := repo.Upsert(context.Background(), prov.kind, "group-1", "Group", true)
	require.NoError(t, err)
	p := sources.NewPoller(repo, repotest.Logger(), []sources.Provider{prov},
		sources.WithClock(func() time.Time { return now }))
	return p, *src
}

func TestPollGate(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	prov := &stubProvider{kind: constants.SourceKindChat, items: []sources.Item{
		{Key: "m3", URL: "chat://group-1/m3", Text: longText, PostedAt: now.Add(-time.Hour)},
		{Key: "m1", URL: "chat://group-1/m1", Text: longText, PostedAt: now.Add(-10 * 24 * time.Hour)},
		{Key: "m2", URL: "chat://group-1/m2", Text: "  too short  ", PostedAt: now.Add(-2 * time.Hour)},
		{Key: "m4", URL: "chat://group-1/m4", Text: "  " + longText, PostedAt: now.Add(-3 * time.Hour)},
	}}
	p, src := setup(t, prov, now)

	items, st, err := p.Poll(context.Background(), src)
	require.NoError(t, err)
	require.Equal(t, 4, st.Fetched)
	require.Equal(t, 1, st.Stale)
	require.Equal(t, 1, st.TooShort)
	require.Equal(t, 2, st.Emitted)
	require.Equal(t, 2, st.Skipped())

	require.Len(t, items, 2)
	require.Equal(t, "chat://group-1/m4", items[0].SourceURL)
	require.Equal(t, "chat://group-1/m3", items[1].SourceURL)
	require.Equal(t, src.ID, items[0].SourceID)
	require.Equal(t, strings.TrimSpace(longText), items[0].Text)

	// a second poll emits nothing; the short item stays marked too
	items, st, err = p.Poll(context.Background(), src)
	require.NoError(t, err)
	require.Empty(t, items)
	require.Equal(t, 3, st.Seen)
	require.Equal(t, 1, st.Stale)
}

func TestPollStaleItemIsNotMarked(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	prov := &stubProvider{kind: constants.SourceKindChat, items: []sources.Item{
		{Key: "old", Text: longText, PostedAt: now.Add(-8 * 24 * time.Hour)},
	}}
	store := repotest.NewSQLite(t)
	repo := repository.NewSourceRepository(store, nil)
	src, err := repo.Upsert(context.Background(), prov.kind, "g", "G", true)
	require.NoError(t, err)

	p := sources.NewPoller(repo, repotest.Logger(), []sources.Provider{prov},
		sources.WithClock(func() time.Time { return now }))
	_, st, err := p.Poll(context.Background(), *src)
	require.NoError(t, err)
	require.Equal(t, 1, st.Stale)

	// widen the window: the item was never marked, so it is emitted now
	wide := sources.NewPoller(repo, repotest.Logger(), []sources.Provider{prov},
		sources.WithClock(func() time.Time { return now }),
		sources.WithRecencyWindow(30*24*time.Hour))
	items, _, err := wide.Poll(context.Background(), *src)
	require.NoError(t, err)
	require.Len(t, items, 1)
}

func TestPollErrors(t *testing.T) {
	now := time.Now()
	prov := &stubProvider{kind: constants.SourceKindPage, err: errors.New("boom")}
	p, src := setup(t, prov, now)

	_, _, err := p.Poll(context.Background(), src)
	require.ErrorContains(t, err, "boom")

	src.Kind = constants.SourceKindSocial
	_, _, err = p.Poll(context.Background(), src)
	require.ErrorIs(t, err, sources.ErrNoProvider)
}
