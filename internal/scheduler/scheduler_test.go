package scheduler

import (
	"errors"
	"testing"

	"github.com/aristath/sigmaguard/internal/metrics"
	"github.com/aristath/sigmaguard/internal/scheduler/base"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingJob struct {
	base.JobBase
	name  string
	err   error
	calls int
}

func (j *countingJob) Run() error {
	j.calls++
	return j.err
}

func (j *countingJob) Name() string { return j.name }

type plainJob struct{ calls int }

func (j *plainJob) Run() error   { j.calls++; return nil }
func (j *plainJob) Name() string { return "plain" }

func TestScheduler_AddJob(t *testing.T) {
	s := New(nil, zerolog.Nop())

	require.NoError(t, s.AddJob("30 22 * * 1-5", &countingJob{name: "daily_audit"}))
	require.NoError(t, s.AddJob("@every 1h", &countingJob{name: "cache_cleanup"}))

	err := s.AddJob("not a schedule", &countingJob{name: "broken"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken")

	jobs := s.Jobs()
	require.Len(t, jobs, 2)
	assert.Equal(t, "cache_cleanup", jobs[0].Name)
	assert.Equal(t, "daily_audit", jobs[1].Name)
	assert.Equal(t, "30 22 * * 1-5", jobs[1].Schedule)
}

func TestScheduler_StartStop(t *testing.T) {
	s := New(nil, zerolog.Nop())
	require.NoError(t, s.AddJob("@every 1h", &countingJob{name: "cache_cleanup"}))

	s.Start()
	jobs := s.Jobs()
	require.Len(t, jobs, 1)
	assert.False(t, jobs[0].Next.IsZero())
	s.Stop()
}

func TestScheduler_RunNowRecordsOutcome(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec := metrics.New(reg)
	s := New(rec, zerolog.Nop())

	ok := &countingJob{name: "maintenance"}
	bad := &countingJob{name: "daily_audit", err: errors.New("provider down")}
	require.NoError(t, s.AddJob("@daily", ok))
	require.NoError(t, s.AddJob("@daily", bad))

	require.NoError(t, s.RunNow(ok))
	assert.EqualError(t, s.RunNow(bad), "provider down")

	assert.Equal(t, 1, ok.calls)
	assert.Equal(t, 1, ok.LastRun().Runs)
	assert.Empty(t, ok.LastRun().Error)
	assert.Equal(t, "provider down", bad.LastRun().Error)

	jobs := s.Jobs()
	require.Len(t, jobs, 2)
	assert.Equal(t, "provider down", jobs[0].Last.Error)
	assert.Equal(t, 1, jobs[1].Last.Runs)

	count, err := testutil.GatherAndCount(reg, "sigmaguard_job_runs_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestScheduler_JobWithoutHistory(t *testing.T) {
	s := New(nil, zerolog.Nop())
	job := &plainJob{}
	require.NoError(t, s.AddJob("@daily", job))
	require.NoError(t, s.RunNow(job))

	assert.Equal(t, 1, job.calls)
	jobs := s.Jobs()
	require.Len(t, jobs, 1)
	assert.Zero(t, jobs[0].Last.Runs)
}
