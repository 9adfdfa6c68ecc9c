package clientdata

import (
	"context"
	"errors"

	"github.com/aristath/sigmaguard/internal/domain"
	"github.com/rs/zerolog"
)

const macroKey = "latest"

// CachedProvider is a cache-first domain.PriceProvider.
// Fresh cache hits skip the upstream; upstream failures fall back to stale data.
type CachedProvider struct {
	upstream domain.PriceProvider
	repo     *Repository
	log      zerolog.Logger
}

// NewCachedProvider wraps upstream with the persistent cache
func NewCachedProvider(upstream domain.PriceProvider, repo *Repository, log zerolog.Logger) *CachedProvider {
	return &CachedProvider{
		upstream: upstream,
		repo:     repo,
		log:      log.With().Str("component", "price_cache").Logger(),
	}
}

func historyKey(symbol, period string) string {
	return symbol + "|" + period
}

// History returns cached bars when fresh, otherwise fetches and stores them.
func (p *CachedProvider) History(ctx context.Context, symbol, period string) ([]domain.PriceBar, error) {
	key := historyKey(symbol, period)

	var bars []domain.PriceBar
	if ok, err := p.repo.GetIfFresh(ctx, TablePriceHistory, key, &bars); err != nil {
		p.log.Warn().Err(err).Str("key", key).Msg("Cache read failed, fetching upstream")
	} else if ok && len(bars) > 0 {
		return bars, nil
	}

	bars, err := p.upstream.History(ctx, symbol, period)
	if err != nil {
		// A definitive empty answer is not masked by old data
		if errors.Is(err, domain.ErrNoData) {
			return nil, err
		}
		var stale []domain.PriceBar
		if ok, cacheErr := p.repo.Get(ctx, TablePriceHistory, key, &stale); cacheErr == nil && ok && len(stale) > 0 {
			p.log.Warn().Err(err).Str("symbol", symbol).Msg("Upstream failed, serving stale price history")
			return stale, nil
		}
		return nil, err
	}

	if err := p.repo.Store(ctx, TablePriceHistory, key, bars, TTLPriceHistory); err != nil {
		p.log.Warn().Err(err).Str("key", key).Msg("Failed to cache price history")
	}
	return bars, nil
}

// Macro returns the cached macro snapshot when fresh, otherwise fetches and stores it.
func (p *CachedProvider) Macro(ctx context.Context) (domain.MacroSnapshot, error) {
	var snap domain.MacroSnapshot
	if ok, err := p.repo.GetIfFresh(ctx, TableMacroSnapshot, macroKey, &snap); err == nil && ok {
		return snap, nil
	}

	snap, err := p.upstream.Macro(ctx)
	if err != nil {
		var stale domain.MacroSnapshot
		if ok, cacheErr := p.repo.Get(ctx, TableMacroSnapshot, macroKey, &stale); cacheErr == nil && ok {
			p.log.Warn().Err(err).Msg("Upstream failed, serving stale macro snapshot")
			return stale, nil
		}
		return domain.MacroSnapshot{}, err
	}

	if err := p.repo.Store(ctx, TableMacroSnapshot, macroKey, snap, TTLMacro); err != nil {
		p.log.Warn().Err(err).Msg("Failed to cache macro snapshot")
	}
	return snap, nil
}
