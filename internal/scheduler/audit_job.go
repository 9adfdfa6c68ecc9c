package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/aristath/sigmaguard/internal/audit"
	"github.com/aristath/sigmaguard/internal/domain"
	"github.com/aristath/sigmaguard/internal/scheduler/base"
	"github.com/rs/zerolog"
)

// BatchRunner runs an audit batch
type BatchRunner interface {
	RunBatch(ctx context.Context, items []domain.WatchlistItem) (*audit.BatchSummary, error)
}

// AuditJob runs the daily audit over the configured watchlist
type AuditJob struct {
	base.JobBase
	runner    BatchRunner
	watchlist []domain.WatchlistItem
	timeout   time.Duration
	log       zerolog.Logger

	onSummary func(*audit.BatchSummary)
}

// NewAuditJob creates the audit job. The watchlist is copied.
func NewAuditJob(runner BatchRunner, watchlist []domain.WatchlistItem, timeout time.Duration, log zerolog.Logger) *AuditJob {
	if timeout <= 0 {
		timeout = time.Hour
	}
	return &AuditJob{
		runner:    runner,
		watchlist: append([]domain.WatchlistItem(nil), watchlist...),
		timeout:   timeout,
		log:       log.With().Str("job", "daily_audit").Logger(),
	}
}

// OnSummary registers a callback receiving every finished batch
func (j *AuditJob) OnSummary(fn func(*audit.BatchSummary)) {
	j.onSummary = fn
}

// Name returns the job name
func (j *AuditJob) Name() string {
	return "daily_audit"
}

// Run executes the audit batch. A batch already in progress (a manual run
// through the API) is not an error.
func (j *AuditJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	summary, err := j.runner.RunBatch(ctx, j.watchlist)
	if errors.Is(err, audit.ErrBatchRunning) {
		j.log.Warn().Msg("Audit batch already running, skipping")
		return nil
	}
	if summary != nil {
		j.logAlerts(summary)
		if j.onSummary != nil {
			j.onSummary(summary)
		}
	}
	return err
}

func (j *AuditJob) logAlerts(summary *audit.BatchSummary) {
	for _, r := range summary.Results {
		switch {
		case r.Status == audit.StatusFailed:
			j.log.Error().Str("ticker", r.Ticker).Str("reason", r.Reason).Msg("Audit failed")
		case r.LevelChanged():
			j.log.Warn().
				Str("ticker", r.Ticker).
				Int("from", r.Previous.Level).
				Int("to", r.Assessment.Level).
				Str("action", r.Assessment.Action).
				Str("delta", r.DeltaMark()).
				Msg("Risk level changed")
		}
	}
}
