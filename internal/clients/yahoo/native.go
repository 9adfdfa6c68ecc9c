package yahoo

import (
	"fmt"

	"github.com/aristath/sigmaguard/internal/domain"
	"github.com/wnjoon/go-yfinance/pkg/models"
	"github.com/wnjoon/go-yfinance/pkg/multi"
	"github.com/wnjoon/go-yfinance/pkg/ticker"
)

// historyFunc and quotesFunc are the transport seams; tests swap them out.
type (
	historyFunc func(symbol, period string) ([]domain.PriceBar, error)
	quotesFunc  func(symbols []string) (map[string]float64, error)
)

// nativeHistory fetches adjusted daily OHLCV through go-yfinance
func nativeHistory(symbol, period string) ([]domain.PriceBar, error) {
	t, err := ticker.New(symbol)
	if err != nil {
		return nil, fmt.Errorf("failed to create ticker: %w", err)
	}
	defer t.Close()

	params := models.HistoryParams{
		Period:     period,
		Interval:   "1d",
		AutoAdjust: true,
	}

	bars, err := t.History(params)
	if err != nil {
		return nil, fmt.Errorf("failed to get historical prices: %w", err)
	}

	out := make([]domain.PriceBar, 0, len(bars))
	for _, bar := range bars {
		out = append(out, domain.PriceBar{
			Date:   bar.Date,
			Open:   bar.Open,
			High:   bar.High,
			Low:    bar.Low,
			Close:  bar.Close,
			Volume: float64(bar.Volume),
		})
	}
	return out, nil
}

// nativeQuotes returns the last close of each symbol using one batch download
func nativeQuotes(symbols []string) (map[string]float64, error) {
	params := models.DefaultDownloadParams()
	params.Symbols = symbols
	params.Period = "5d"
	params.Interval = "1d"

	result, err := multi.Download(symbols, &params)
	if err != nil {
		return nil, fmt.Errorf("failed to download batch quotes: %w", err)
	}

	last := make(map[string]float64, len(symbols))
	for _, s := range symbols {
		if bars, ok := result.Data[s]; ok && len(bars) > 0 {
			last[s] = bars[len(bars)-1].Close
		}
	}
	return last, nil
}
