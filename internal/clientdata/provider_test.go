package clientdata

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aristath/sigmaguard/internal/domain"
	testingpkg "github.com/aristath/sigmaguard/internal/testing"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCachedProvider(t *testing.T) (*CachedProvider, *Repository, *testingpkg.MockPriceProvider) {
	t.Helper()
	db := setupTestDB(t)
	t.Cleanup(func() { _ = db.Close() })

	repo := NewRepository(db)
	upstream := testingpkg.NewMockPriceProvider()
	return NewCachedProvider(upstream, repo, zerolog.Nop()), repo, upstream
}

func TestCachedProvider_HistoryHitsUpstreamOnce(t *testing.T) {
	p, _, upstream := newTestCachedProvider(t)
	upstream.SetHistory("AAPL", testBars())
	ctx := context.Background()

	first, err := p.History(ctx, "AAPL", "5y")
	require.NoError(t, err)
	second, err := p.History(ctx, "AAPL", "5y")
	require.NoError(t, err)

	assert.Len(t, second, len(first))
	assert.Equal(t, 1, upstream.Calls("AAPL"))

	// A different period is a different cache entry
	_, err = p.History(ctx, "AAPL", "1mo")
	require.NoError(t, err)
	assert.Equal(t, 2, upstream.Calls("AAPL"))
}

func TestCachedProvider_HistoryServesStaleOnFailure(t *testing.T) {
	p, repo, upstream := newTestCachedProvider(t)
	ctx := context.Background()

	require.NoError(t, repo.Store(ctx, TablePriceHistory, historyKey("AAPL", "5y"), testBars(), -time.Minute))
	upstream.SetError("AAPL", errors.New("HTTP 503"))

	bars, err := p.History(ctx, "AAPL", "5y")
	require.NoError(t, err)
	assert.Len(t, bars, 2)
	assert.Equal(t, 1, upstream.Calls("AAPL"))
}

func TestCachedProvider_HistoryNoDataIsNotMasked(t *testing.T) {
	p, repo, upstream := newTestCachedProvider(t)
	ctx := context.Background()

	require.NoError(t, repo.Store(ctx, TablePriceHistory, historyKey("GONE", "5y"), testBars(), -time.Minute))
	upstream.SetError("GONE", domain.ErrNoData)

	_, err := p.History(ctx, "GONE", "5y")
	assert.ErrorIs(t, err, domain.ErrNoData)
}

func TestCachedProvider_HistoryErrorWithoutCache(t *testing.T) {
	p, _, upstream := newTestCachedProvider(t)
	boom := errors.New("HTTP 503")
	upstream.SetError("AAPL", boom)

	_, err := p.History(context.Background(), "AAPL", "5y")
	assert.ErrorIs(t, err, boom)
}

func TestCachedProvider_Macro(t *testing.T) {
	p, repo, upstream := newTestCachedProvider(t)
	ctx := context.Background()
	upstream.SetMacro(domain.MacroSnapshot{VIX: 21.5, US10Y: 4.1, DXY: 103}, nil)

	snap, err := p.Macro(ctx)
	require.NoError(t, err)
	assert.Equal(t, 21.5, snap.VIX)

	_, err = p.Macro(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, upstream.MacroCalls())

	// Expire the cache and break upstream: the stale snapshot is served
	require.NoError(t, repo.Store(ctx, TableMacroSnapshot, macroKey, snap, -time.Minute))
	upstream.SetMacro(domain.MacroSnapshot{}, errors.New("down"))

	snap, err = p.Macro(ctx)
	require.NoError(t, err)
	assert.Equal(t, 21.5, snap.VIX)
	assert.Equal(t, 2, upstream.MacroCalls())
}
