package clientdata

import (
	"context"
	"time"

	"github.com/aristath/sigmaguard/internal/scheduler/base"
	"github.com/rs/zerolog"
)

// CleanupJob purges cache rows whose stale-fallback window has passed.
// Rows that are expired but younger than the retention still serve outages.
type CleanupJob struct {
	base.JobBase
	repo      *Repository
	retention time.Duration
	timeout   time.Duration
	log       zerolog.Logger
}

// NewCleanupJob creates a cleanup job keeping expired rows for StaleRetention
func NewCleanupJob(repo *Repository, log zerolog.Logger) *CleanupJob {
	return &CleanupJob{
		repo:      repo,
		retention: StaleRetention,
		timeout:   5 * time.Minute,
		log:       log.With().Str("job", "cache_cleanup").Logger(),
	}
}

// Name returns the job name for scheduling and logging.
func (j *CleanupJob) Name() string {
	return "cache_cleanup"
}

// Run purges with the job's own deadline
func (j *CleanupJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	_, err := j.RunContext(ctx)
	return err
}

// RunContext purges every cache table and returns the number of rows removed
func (j *CleanupJob) RunContext(ctx context.Context) (int64, error) {
	results, err := j.repo.DeleteAllExpired(ctx, j.retention)
	if err != nil {
		j.log.Error().Err(err).Msg("Failed to purge stale cache rows")
		return 0, err
	}

	var total int64
	perTable := zerolog.Dict()
	for table, n := range results {
		perTable.Int64(table, n)
		total += n
	}

	j.log.Info().
		Dur("retention", j.retention).
		Int64("deleted", total).
		Dict("tables", perTable).
		Msg("Cache cleanup completed")
	return total, nil
}
