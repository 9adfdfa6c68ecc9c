package main

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/aristath/sigmaguard/internal/config"
	"github.com/aristath/sigmaguard/internal/domain"
	"github.com/spf13/cobra"
)

// runCmd audits the watchlist once
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one audit batch over the watchlist",
	Long: `Run one audit batch. Each instrument is fetched, scored, sized and upserted
into the ledger, and due forward returns are resolved first. The batch
summary is printed as JSON on stdout; logs go to stderr.

A batch with failed instruments exits non-zero. Skipped instruments (no data
or too little history) do not.`,
	RunE: runAudit,
}

var runTickers []string

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().StringSliceVar(&runTickers, "tickers", nil, "Audit only these watchlist tickers")
}

func runAudit(cmd *cobra.Command, args []string) error {
	container, _, log, err := bootstrap(cmd)
	if err != nil {
		return err
	}
	defer container.Close()

	items, err := selectWatchlist(container.Config.Policy, runTickers)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	summary, err := container.AuditService.RunBatch(ctx, items)
	if summary != nil {
		if perr := printJSON(cmd.OutOrStdout(), summary); perr != nil {
			return perr
		}
	}
	if err != nil {
		return fmt.Errorf("audit batch interrupted: %w", err)
	}

	for _, r := range summary.Results {
		if r.LevelChanged() {
			log.Warn().
				Str("ticker", r.Ticker).
				Int("from", r.Previous.Level).
				Int("to", r.Assessment.Level).
				Str("delta", r.DeltaMark()).
				Msg("Risk level changed")
		}
	}
	if summary.Failed > 0 {
		return fmt.Errorf("%d of %d instruments failed", summary.Failed, summary.Total)
	}
	return nil
}

// selectWatchlist returns the whole watchlist, or the named subset in the given order
func selectWatchlist(policy *config.Policy, tickers []string) ([]domain.WatchlistItem, error) {
	if len(tickers) == 0 {
		return policy.Watchlist, nil
	}

	items := make([]domain.WatchlistItem, 0, len(tickers))
	var unknown []string
	for _, t := range tickers {
		item, ok := policy.Lookup(t)
		if !ok {
			unknown = append(unknown, strings.ToUpper(strings.TrimSpace(t)))
			continue
		}
		items = append(items, item)
	}
	if len(unknown) > 0 {
		return nil, fmt.Errorf("not on the watchlist: %s", strings.Join(unknown, ", "))
	}
	return items, nil
}
