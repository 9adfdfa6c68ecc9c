// Package audit runs the daily risk audit: fetch, compute, score, allocate and
// record every watchlist instrument, one isolated pipeline per instrument.
package audit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aristath/sigmaguard/internal/domain"
	"github.com/aristath/sigmaguard/internal/metrics"
	"github.com/aristath/sigmaguard/internal/modules/allocation"
	"github.com/aristath/sigmaguard/internal/modules/indicators"
	"github.com/aristath/sigmaguard/internal/modules/ledger"
	"github.com/aristath/sigmaguard/internal/modules/scoring"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ErrBatchRunning is returned when a batch is requested while another is in progress
var ErrBatchRunning = errors.New("audit batch already running")

// Config controls how the service drives the pipeline
type Config struct {
	HistoryPeriod     string        // provider period, e.g. "6y"
	Workers           int           // concurrent instruments
	InstrumentTimeout time.Duration // per-instrument deadline, 0 for none
}

// Service audits instruments and records the results in the ledger
type Service struct {
	cfg        Config
	provider   domain.PriceProvider
	repo       *ledger.Repository
	backtester *ledger.Backtester
	indicators *indicators.Engine
	scorer     *scoring.Engine
	allocator  *allocation.Allocator
	metrics    *metrics.Recorder
	pool       *WorkerPool
	log        zerolog.Logger

	running atomic.Bool
	now     func() time.Time
}

// NewService creates a new audit service
func NewService(
	cfg Config,
	provider domain.PriceProvider,
	repo *ledger.Repository,
	backtester *ledger.Backtester,
	indicatorEngine *indicators.Engine,
	scorer *scoring.Engine,
	allocator *allocation.Allocator,
	recorder *metrics.Recorder,
	log zerolog.Logger,
) *Service {
	if cfg.HistoryPeriod == "" {
		cfg.HistoryPeriod = "6y"
	}
	return &Service{
		cfg:        cfg,
		provider:   provider,
		repo:       repo,
		backtester: backtester,
		indicators: indicatorEngine,
		scorer:     scorer,
		allocator:  allocator,
		metrics:    recorder,
		pool:       NewWorkerPool(cfg.Workers),
		log:        log.With().Str("service", "audit").Logger(),
		now:        time.Now,
	}
}

// Running reports whether a batch is in progress
func (s *Service) Running() bool {
	return s.running.Load()
}

// RunBatch audits every item on the worker pool and returns results in
// watchlist order. The macro snapshot is fetched once and shared by all
// instruments. One instrument's failure never stops the others.
func (s *Service) RunBatch(ctx context.Context, items []domain.WatchlistItem) (*BatchSummary, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, ErrBatchRunning
	}
	defer s.running.Store(false)

	summary := &BatchSummary{
		RunID:     uuid.NewString(),
		StartedAt: s.now(),
		Results:   make([]InstrumentResult, len(items)),
	}
	log := s.log.With().Str("run_id", summary.RunID).Logger()
	log.Info().Int("instruments", len(items)).Msg("Audit batch started")

	macro, err := s.provider.Macro(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Macro snapshot unavailable, recording zeros")
		macro = domain.MacroSnapshot{AsOf: s.now()}
	}
	summary.Macro = macro

	benchmarks := newBenchmarkCache()
	s.pool.Run(ctx, len(items),
		func(ctx context.Context, idx int) {
			summary.Results[idx] = s.runInstrument(ctx, items[idx], macro, benchmarks)
		},
		func(idx int) {
			summary.Results[idx] = InstrumentResult{
				Ticker: items[idx].Ticker,
				Name:   items[idx].DisplayName(),
				Status: StatusSkipped,
				Reason: "batch cancelled",
			}
		},
	)

	summary.FinishedAt = s.now()
	summary.tally()
	s.metrics.RecordBatch(summary.FinishedAt.Sub(summary.StartedAt), summary.FinishedAt)

	log.Info().
		Int("completed", summary.Completed).
		Int("skipped", summary.Skipped).
		Int("failed", summary.Failed).
		Int("forward_filled", summary.ForwardFilled).
		Dur("duration", summary.FinishedAt.Sub(summary.StartedAt)).
		Msg("Audit batch finished")

	return summary, ctx.Err()
}

// RunInstrument audits a single instrument with the given macro context.
func (s *Service) RunInstrument(ctx context.Context, item domain.WatchlistItem, macro domain.MacroSnapshot) InstrumentResult {
	return s.runInstrument(ctx, item, macro, newBenchmarkCache())
}

func (s *Service) runInstrument(ctx context.Context, item domain.WatchlistItem, macro domain.MacroSnapshot, benchmarks *benchmarkCache) (result InstrumentResult) {
	start := s.now()
	result = InstrumentResult{Ticker: item.Ticker, Name: item.DisplayName()}
	log := s.log.With().Str("ticker", item.Ticker).Logger()

	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("Instrument audit panicked")
			result.Status = StatusFailed
			result.Reason = fmt.Sprintf("panic: %v", r)
			result.Persisted = false
		}
		result.Duration = s.now().Sub(start)
		s.metrics.RecordAudit(item.Ticker, string(result.Status), result.Assessment.Score,
			result.Assessment.Level, result.Persisted, result.Duration)
	}()

	if s.cfg.InstrumentTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.InstrumentTimeout)
		defer cancel()
	}

	// Older entries are measured first so their outcome is in before today's row lands
	if s.backtester != nil {
		filled, err := s.backtester.Resolve(ctx, item.Ticker)
		if err != nil {
			log.Warn().Err(err).Msg("Forward-return resolution failed, will retry next run")
		}
		result.ForwardFilled = filled
		s.metrics.RecordForwardFilled(filled)
	}

	bars, err := s.provider.History(ctx, item.Ticker, s.cfg.HistoryPeriod)
	if err != nil {
		return skip(result, log, "fetch failed", err)
	}

	snapshot, err := s.indicators.Latest(bars)
	if err != nil {
		return skip(result, log, "indicators unavailable", err)
	}
	result.AuditDate = snapshot.Date

	benchSymbol, _ := item.ResolvedBenchmark()
	result.Benchmark = benchSymbol
	bench := benchmarks.get(benchSymbol, func() *indicators.Snapshot {
		return s.benchmarkSnapshot(ctx, benchSymbol)
	})

	prev, err := s.repo.PreviousState(ctx, item.Ticker, snapshot.Date)
	if err != nil {
		return fail(result, log, err)
	}
	result.Previous = prev

	result.Assessment = s.scorer.Evaluate(&snapshot, bench, prev)
	result.Allocation = s.allocator.Allocate(snapshot, bars)
	result.Drawdown = allocation.EstimateDrawdown(snapshot)
	result.Status = StatusCompleted

	if !result.Assessment.Scored() {
		log.Warn().
			Str("label", result.Assessment.Label).
			Msg("Sentinel assessment, not recorded in the ledger")
		return result
	}

	entry := ledger.NewEntry(ledger.EntryInput{
		Item:        item,
		BenchSymbol: benchSymbol,
		Latest:      snapshot,
		Bench:       bench,
		Assessment:  result.Assessment,
		Allocation:  result.Allocation,
		Drawdown:    result.Drawdown,
		Macro:       macro,
	})
	if err := s.repo.Upsert(ctx, entry); err != nil {
		return fail(result, log, err)
	}
	result.Persisted = true

	event := log.Info().
		Str("audit_date", snapshot.Date.Format(ledger.DateLayout)).
		Float64("score", result.Assessment.Score).
		Int("level", result.Assessment.Level).
		Str("label", result.Assessment.Label).
		Str("delta", result.DeltaMark()).
		Float64("weight_pct", result.Allocation.WeightPct)
	if result.LevelChanged() {
		event = event.Int("previous_level", prev.Level)
	}
	event.Msg("Instrument audited")

	return result
}

// benchmarkSnapshot computes the benchmark's latest snapshot; nil when unavailable.
func (s *Service) benchmarkSnapshot(ctx context.Context, symbol string) *indicators.Snapshot {
	if symbol == "" {
		return nil
	}
	bars, err := s.provider.History(ctx, symbol, s.cfg.HistoryPeriod)
	if err != nil {
		s.log.Warn().Err(err).Str("benchmark", symbol).Msg("Benchmark history unavailable")
		return nil
	}
	snap, err := s.indicators.Latest(bars)
	if err != nil {
		s.log.Warn().Err(err).Str("benchmark", symbol).Msg("Benchmark indicators unavailable")
		return nil
	}
	return &snap
}

// ResolveForwardReturns fills due forward returns for every ticker in the ledger
// without running new audits. Returns the number of rows filled.
func (s *Service) ResolveForwardReturns(ctx context.Context) (int, error) {
	if s.backtester == nil {
		return 0, errors.New("forward-return backtester not configured")
	}
	tickers, err := s.repo.Tickers(ctx)
	if err != nil {
		return 0, err
	}

	var filled atomic.Int64
	var mu sync.Mutex
	var errs []error

	s.pool.Run(ctx, len(tickers),
		func(ctx context.Context, idx int) {
			n, err := s.backtester.Resolve(ctx, tickers[idx])
			filled.Add(int64(n))
			if err != nil {
				s.log.Warn().Err(err).Str("ticker", tickers[idx]).Msg("Forward-return resolution failed")
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
		},
		func(int) {},
	)

	total := int(filled.Load())
	s.metrics.RecordForwardFilled(total)
	s.log.Info().Int("tickers", len(tickers)).Int("filled", total).Int("errors", len(errs)).Msg("Forward returns resolved")

	if err := ctx.Err(); err != nil {
		return total, err
	}
	return total, errors.Join(errs...)
}

func skip(r InstrumentResult, log zerolog.Logger, reason string, err error) InstrumentResult {
	r.Status = StatusSkipped
	r.Reason = fmt.Sprintf("%s: %v", reason, err)
	event := log.Warn()
	if errors.Is(err, domain.ErrNoData) || errors.Is(err, domain.ErrDataInsufficient) {
		event = log.Info()
	}
	event.Err(err).Msg("Instrument skipped")
	return r
}

func fail(r InstrumentResult, log zerolog.Logger, err error) InstrumentResult {
	r.Status = StatusFailed
	r.Reason = err.Error()
	r.Persisted = false
	log.Error().Err(err).Msg("Instrument audit incomplete")
	return r
}

// benchmarkCache computes each benchmark snapshot at most once per batch.
type benchmarkCache struct {
	mu      sync.Mutex
	entries map[string]*benchmarkEntry
}

type benchmarkEntry struct {
	once sync.Once
	snap *indicators.Snapshot
}

func newBenchmarkCache() *benchmarkCache {
	return &benchmarkCache{entries: make(map[string]*benchmarkEntry)}
}

func (c *benchmarkCache) get(symbol string, load func() *indicators.Snapshot) *indicators.Snapshot {
	c.mu.Lock()
	e, ok := c.entries[symbol]
	if !ok {
		e = &benchmarkEntry{}
		c.entries[symbol] = e
	}
	c.mu.Unlock()

	e.once.Do(func() { e.snap = load() })
	return e.snap
}
