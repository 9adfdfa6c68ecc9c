package domain

import "context"

// PriceProvider fetches daily price history and the macro snapshot.
// Implementations must be safe for concurrent use.
type PriceProvider interface {
	// History returns daily bars for symbol over a Yahoo-style period ("6y", "3mo", ...).
	History(ctx context.Context, symbol, period string) ([]PriceBar, error)
	// Macro returns the current VIX, US 10Y yield and dollar index.
	Macro(ctx context.Context) (MacroSnapshot, error)
}
