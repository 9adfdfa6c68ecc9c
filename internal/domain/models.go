// Package domain provides core domain models and types.
package domain

import (
	"strings"
	"time"
)

// PriceBar is one daily OHLCV observation. Series are ordered ascending by Date.
type PriceBar struct {
	Date   time.Time `json:"date" msgpack:"d"`
	Open   float64   `json:"open" msgpack:"o"`
	High   float64   `json:"high" msgpack:"h"`
	Low    float64   `json:"low" msgpack:"l"`
	Close  float64   `json:"close" msgpack:"c"`
	Volume float64   `json:"volume" msgpack:"v"`
}

// WatchlistItem is one instrument to audit, optionally paired with a benchmark.
type WatchlistItem struct {
	Ticker        string `yaml:"ticker" json:"ticker" validate:"required"`
	Name          string `yaml:"name" json:"name"`
	Sector        string `yaml:"sector" json:"sector,omitempty"`
	Benchmark     string `yaml:"bench" json:"benchmark"`
	BenchmarkName string `yaml:"bench_name" json:"benchmark_name"`
}

// ResolvedBenchmark returns the configured benchmark, falling back to the
// regional default for the ticker's exchange.
func (w WatchlistItem) ResolvedBenchmark() (symbol, name string) {
	if w.Benchmark != "" {
		name = w.BenchmarkName
		if name == "" {
			name = w.Benchmark
		}
		return w.Benchmark, name
	}
	return RegionalBenchmark(w.Ticker)
}

// DisplayName returns the configured name or the ticker itself
func (w WatchlistItem) DisplayName() string {
	if w.Name != "" {
		return w.Name
	}
	return w.Ticker
}

// MacroSnapshot holds market-wide context captured once per batch.
// Missing quotes are left at zero.
type MacroSnapshot struct {
	AsOf  time.Time `json:"as_of" msgpack:"t"`
	VIX   float64   `json:"vix" msgpack:"vix"`
	US10Y float64   `json:"us10y" msgpack:"tnx"`
	DXY   float64   `json:"dxy" msgpack:"dxy"`
}

// Macro symbols on Yahoo Finance
const (
	SymbolVIX   = "^VIX"
	SymbolUS10Y = "^TNX"
	SymbolDXY   = "DX-Y.NYB"
)

// Currency represents a currency code
type Currency string

const (
	CurrencyUSD Currency = "USD"
	CurrencyKRW Currency = "KRW"
	CurrencyJPY Currency = "JPY"
	CurrencyCNY Currency = "CNY"
)

// RegionalBenchmark picks the default benchmark index from the ticker's exchange suffix.
func RegionalBenchmark(ticker string) (symbol, name string) {
	t := strings.ToUpper(ticker)
	switch {
	case strings.HasSuffix(t, ".KS"), strings.HasSuffix(t, ".KQ"):
		return "^KS200", "KOSPI 200"
	case strings.HasSuffix(t, ".T"):
		return "^N225", "Nikkei 225"
	case strings.HasSuffix(t, ".SS"), strings.HasSuffix(t, ".SZ"):
		return "000300.SS", "CSI 300"
	default:
		return "SPY", "S&P 500"
	}
}

// CurrencyFor returns the trading currency implied by the ticker's exchange suffix.
func CurrencyFor(ticker string) Currency {
	t := strings.ToUpper(ticker)
	switch {
	case strings.HasSuffix(t, ".KS"), strings.HasSuffix(t, ".KQ"):
		return CurrencyKRW
	case strings.HasSuffix(t, ".T"):
		return CurrencyJPY
	case strings.HasSuffix(t, ".SS"), strings.HasSuffix(t, ".SZ"):
		return CurrencyCNY
	default:
		return CurrencyUSD
	}
}

// IsWholeUnitCurrency reports whether prices in c are quoted without decimals.
func IsWholeUnitCurrency(c Currency) bool {
	return c == CurrencyKRW
}
