package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aristath/sigmaguard/internal/di"
	"github.com/spf13/cobra"
)

// serveCmd runs the scheduler and the HTTP API until interrupted
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run scheduled audits and the HTTP API",
	Long: `Start the cron scheduler (daily audit, cache cleanup, maintenance) and the
HTTP API on GO_PORT. Runs until SIGINT or SIGTERM, then stops the scheduler,
waits for running jobs and shuts the server down gracefully.`,
	RunE: runServe,
}

var serveRunOnStart bool

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().BoolVar(&serveRunOnStart, "audit-on-start", false, "Run the audit job once at startup")
}

func runServe(cmd *cobra.Command, args []string) error {
	container, jobs, log, err := bootstrap(cmd)
	if err != nil {
		return err
	}
	defer container.Close()

	sched, err := di.NewScheduler(container, jobs, log)
	if err != nil {
		return err
	}

	srv := di.NewServer(container, sched, log)
	jobs.Audit.OnSummary(srv.Audit().Publish)

	serverErr := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()
	log.Info().Int("port", container.Config.Port).Msg("Server started successfully")

	sched.Start()

	if serveRunOnStart {
		go func() {
			_ = sched.RunNow(jobs.Audit)
		}()
	}

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case <-quit:
	case err = <-serverErr:
		log.Error().Err(err).Msg("Server failed")
	}

	log.Info().Msg("Shutting down...")

	// Stop scheduler first so no job starts against a closing database
	sched.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if serr := srv.Shutdown(shutdownCtx); serr != nil {
		log.Error().Err(serr).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server stopped")
	return err
}
