// Package scheduler runs the audit and housekeeping jobs on cron schedules.
package scheduler

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/aristath/sigmaguard/internal/metrics"
	"github.com/aristath/sigmaguard/internal/scheduler/base"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Job represents a scheduled job
type Job interface {
	Run() error
	Name() string
}

// runRecorder is satisfied by jobs embedding base.JobBase
type runRecorder interface {
	MarkRun(started time.Time, d time.Duration, err error)
	LastRun() base.RunInfo
}

// JobStatus describes a registered job
type JobStatus struct {
	Name     string       `json:"name"`
	Schedule string       `json:"schedule"`
	Next     time.Time    `json:"next"`
	Last     base.RunInfo `json:"last"`
}

type registration struct {
	job      Job
	schedule string
	entry    cron.EntryID
}

// Scheduler manages background jobs
type Scheduler struct {
	cron    *cron.Cron
	metrics *metrics.Recorder
	log     zerolog.Logger

	mu   sync.Mutex
	jobs []registration
}

// New creates a new scheduler. Schedules use the standard five-field cron
// syntax; overlapping runs of the same job are skipped.
func New(recorder *metrics.Recorder, log zerolog.Logger) *Scheduler {
	log = log.With().Str("component", "scheduler").Logger()
	cronLog := cronLogger{log: log}
	return &Scheduler{
		cron: cron.New(cron.WithChain(
			cron.Recover(cronLog),
			cron.SkipIfStillRunning(cronLog),
		)),
		metrics: recorder,
		log:     log,
	}
}

// Start starts the scheduler
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info().Int("jobs", len(s.Jobs())).Msg("Scheduler started")
}

// Stop stops the scheduler and waits for running jobs
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.log.Info().Msg("Scheduler stopped")
}

// AddJob registers a new job with cron schedule
// Schedule examples:
//   - "30 22 * * 1-5"  - 22:30 on weekdays
//   - "@daily"         - midnight
//   - "@every 30m"     - every 30 minutes
func (s *Scheduler) AddJob(schedule string, job Job) error {
	id, err := s.cron.AddFunc(schedule, func() {
		_ = s.execute(job)
	})
	if err != nil {
		return fmt.Errorf("invalid schedule %q for %s: %w", schedule, job.Name(), err)
	}

	s.mu.Lock()
	s.jobs = append(s.jobs, registration{job: job, schedule: schedule, entry: id})
	s.mu.Unlock()

	s.log.Info().
		Str("schedule", schedule).
		Str("job", job.Name()).
		Msg("Job registered")
	return nil
}

// RunNow executes a job immediately (outside schedule)
func (s *Scheduler) RunNow(job Job) error {
	s.log.Info().Str("job", job.Name()).Msg("Running job immediately")
	return s.execute(job)
}

// Jobs lists registered jobs sorted by name
func (s *Scheduler) Jobs() []JobStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]JobStatus, 0, len(s.jobs))
	for _, r := range s.jobs {
		status := JobStatus{
			Name:     r.job.Name(),
			Schedule: r.schedule,
			Next:     s.cron.Entry(r.entry).Next,
		}
		if rec, ok := r.job.(runRecorder); ok {
			status.Last = rec.LastRun()
		}
		out = append(out, status)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (s *Scheduler) execute(job Job) error {
	started := time.Now()
	s.log.Debug().Str("job", job.Name()).Msg("Running job")

	err := job.Run()
	d := time.Since(started)

	if rec, ok := job.(runRecorder); ok {
		rec.MarkRun(started, d, err)
	}
	s.metrics.RecordJob(job.Name(), err)

	if err != nil {
		s.log.Error().
			Err(err).
			Str("job", job.Name()).
			Dur("duration", d).
			Msg("Job failed")
	} else {
		s.log.Debug().Str("job", job.Name()).Dur("duration", d).Msg("Job completed")
	}
	return err
}

// cronLogger adapts zerolog to cron.Logger
type cronLogger struct {
	log zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
