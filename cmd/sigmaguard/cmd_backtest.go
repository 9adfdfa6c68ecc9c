package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// backtestCmd fills forward returns without auditing
var backtestCmd = &cobra.Command{
	Use:   "backtest",
	Short: "Fill due forward returns in the ledger",
	Long: `Resolve forward returns for every ledger row that is at least 20 days old
and still unfilled. No new audits are run. Rows are filled at most once.`,
	RunE: runBacktest,
}

func init() {
	rootCmd.AddCommand(backtestCmd)
}

func runBacktest(cmd *cobra.Command, args []string) error {
	container, _, _, err := bootstrap(cmd)
	if err != nil {
		return err
	}
	defer container.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	filled, err := container.AuditService.ResolveForwardReturns(ctx)
	if perr := printJSON(cmd.OutOrStdout(), map[string]int{"filled": filled}); perr != nil {
		return perr
	}
	return err
}
