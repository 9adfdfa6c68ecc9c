package main

import (
	"testing"

	"github.com/aristath/sigmaguard/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPolicy(t *testing.T) *config.Policy {
	t.Helper()
	p, err := config.ParsePolicy([]byte(`
watchlist:
  - ticker: AAPL
    name: Apple
  - ticker: 005930.KS
    name: Samsung Electronics
  - ticker: MSFT
    name: Microsoft
`))
	require.NoError(t, err)
	return p
}

func TestSelectWatchlist(t *testing.T) {
	p := testPolicy(t)

	tests := []struct {
		name    string
		tickers []string
		want    []string
		wantErr string
	}{
		{"all", nil, []string{"AAPL", "005930.KS", "MSFT"}, ""},
		{"subset keeps flag order", []string{"msft", "005930.ks"}, []string{"MSFT", "005930.KS"}, ""},
		{"unknown tickers", []string{"AAPL", "nvda", "tsla"}, nil, "NVDA, TSLA"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			items, err := selectWatchlist(p, tt.tickers)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			got := make([]string, len(items))
			for i, item := range items {
				got[i] = item.Ticker
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRootCommand_Subcommands(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"run", "backtest", "report", "serve"} {
		assert.True(t, names[want], want)
	}
}
