// Package main is the entry point for SigmaGuard, the daily statistical risk
// auditor. Every command shares one bootstrap: configuration from the
// environment and the YAML policy, a zerolog logger on stderr, and the DI
// container holding the ledger, the cached price provider and the engines.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/aristath/sigmaguard/internal/config"
	"github.com/aristath/sigmaguard/internal/di"
	"github.com/aristath/sigmaguard/pkg/logger"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// Global flags
var (
	configPath string
	logLevel   string
	logPretty  bool
)

// rootCmd is the base command for the SigmaGuard CLI
var rootCmd = &cobra.Command{
	Use:   "sigmaguard",
	Short: "Daily statistical risk audit for a watchlist of instruments",
	Long: `SigmaGuard audits every instrument on the watchlist once per trading day.
It scores overheating risk from 0 to 100, maps the score to a 9-level action
band, sizes a position from the trailing stop, and records everything in a
SQLite ledger whose realized forward returns are filled in later.

Examples:
  sigmaguard run                      # audit the whole watchlist once
  sigmaguard run --tickers AAPL,MSFT  # audit part of the watchlist
  sigmaguard backtest                 # fill due forward returns only
  sigmaguard report --ticker AAPL     # realized outcomes per risk level
  sigmaguard serve                    # scheduler and HTTP API`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Policy file (overrides SIGMAGUARD_CONFIG)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error (overrides LOG_LEVEL)")
	rootCmd.PersistentFlags().BoolVar(&logPretty, "pretty", false, "Human-readable log output")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// bootstrap loads configuration, builds the logger and wires the container.
// The caller must Close the container.
func bootstrap(cmd *cobra.Command) (*di.Container, *di.JobInstances, zerolog.Logger, error) {
	if configPath != "" {
		if err := os.Setenv("SIGMAGUARD_CONFIG", configPath); err != nil {
			return nil, nil, zerolog.Nop(), err
		}
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, nil, zerolog.Nop(), fmt.Errorf("failed to load configuration: %w", err)
	}

	level := cfg.LogLevel
	if logLevel != "" {
		level = logLevel
	}
	log := logger.NewWithWriter(logger.Config{
		Level:  level,
		Pretty: logPretty || cfg.LogPretty,
	}, cmd.ErrOrStderr())

	container, jobs, err := di.Wire(cfg, log)
	if err != nil {
		return nil, nil, log, fmt.Errorf("failed to wire dependencies: %w", err)
	}
	return container, jobs, log, nil
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
