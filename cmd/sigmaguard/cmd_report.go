package main

import (
	"fmt"
	"strings"

	"github.com/aristath/sigmaguard/internal/modules/ledger"
	ledgerhandlers "github.com/aristath/sigmaguard/internal/modules/ledger/handlers"
	"github.com/spf13/cobra"
)

// reportCmd prints realized performance per risk level
var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Realized forward returns grouped by risk level",
	Long: `Aggregate filled ledger rows by SOP level and print mean and worst 20-day
outcomes, plus the correlation between risk score and realized drawdown.
A working model shows a negative correlation.`,
	RunE: runReport,
}

var reportTicker string

func init() {
	rootCmd.AddCommand(reportCmd)
	reportCmd.Flags().StringVar(&reportTicker, "ticker", "", "Limit the report to one ticker")
}

func runReport(cmd *cobra.Command, args []string) error {
	container, _, _, err := bootstrap(cmd)
	if err != nil {
		return err
	}
	defer container.Close()

	ticker := strings.ToUpper(strings.TrimSpace(reportTicker))
	ctx := cmd.Context()

	levels, err := container.Analyzer.PerformanceByLevel(ctx, ticker)
	if err != nil {
		return fmt.Errorf("failed to aggregate performance: %w", err)
	}
	corr, samples, err := container.Analyzer.ScoreDrawdownCorrelation(ctx, ticker)
	if err != nil {
		return fmt.Errorf("failed to compute correlation: %w", err)
	}
	if levels == nil {
		levels = []ledger.LevelPerformance{}
	}

	return printJSON(cmd.OutOrStdout(), ledgerhandlers.PerformanceResponse{
		Ticker:      ticker,
		Levels:      levels,
		Correlation: corr,
		Samples:     samples,
	})
}
