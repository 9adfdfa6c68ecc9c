// Package ledger persists audit results, feeds the previous state back into
// scoring and resolves realized forward returns once they become observable.
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/aristath/sigmaguard/internal/domain"
	"github.com/aristath/sigmaguard/internal/modules/scoring"
	"github.com/rs/zerolog"
)

// forwardColumns are never overwritten once filled
var forwardColumns = map[string]bool{
	"ret_20d":     true,
	"min_ret_20d": true,
	"max_ret_20d": true,
}

// Repository handles audit ledger database operations
// Database: ledger.db (audit_ledger table)
type Repository struct {
	db    *sql.DB
	locks sync.Map // ticker -> *sync.Mutex
	now   func() time.Time
	log   zerolog.Logger

	upsertSQL string
	selectSQL string
}

// NewRepository creates a new ledger repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:        db,
		now:       time.Now,
		log:       log.With().Str("repo", "ledger").Logger(),
		upsertSQL: buildUpsertSQL(),
		selectSQL: "SELECT " + strings.Join(Columns, ", ") + " FROM audit_ledger",
	}
}

func buildUpsertSQL() string {
	cols := append(append([]string{}, Columns...), "created_at", "updated_at")
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")

	updates := make([]string, 0, len(Columns))
	for _, c := range Columns {
		switch {
		case c == "ticker" || c == "audit_date":
			continue
		case forwardColumns[c]:
			updates = append(updates, fmt.Sprintf("%s = COALESCE(audit_ledger.%s, excluded.%s)", c, c, c))
		default:
			updates = append(updates, fmt.Sprintf("%s = excluded.%s", c, c))
		}
	}
	updates = append(updates, "updated_at = excluded.updated_at")

	return fmt.Sprintf(
		"INSERT INTO audit_ledger (%s) VALUES (%s) ON CONFLICT(ticker, audit_date) DO UPDATE SET %s",
		strings.Join(cols, ", "), placeholders, strings.Join(updates, ", "),
	)
}

// lockTicker serialises writes per instrument; different tickers proceed in parallel.
func (r *Repository) lockTicker(ticker string) func() {
	mu, _ := r.locks.LoadOrStore(ticker, &sync.Mutex{})
	m := mu.(*sync.Mutex)
	m.Lock()
	return m.Unlock
}

// Upsert inserts the entry or overwrites the row with the same (ticker, audit date).
// Forward-return columns that are already filled keep their values.
func (r *Repository) Upsert(ctx context.Context, e Entry) error {
	unlock := r.lockTicker(e.Ticker)
	defer unlock()

	now := r.now().Unix()
	args := append(entryArgs(e), now, now)
	if _, err := r.db.ExecContext(ctx, r.upsertSQL, args...); err != nil {
		return fmt.Errorf("%w: failed to upsert %s %s: %v",
			domain.ErrPersistence, e.Ticker, e.AuditDate.Format(DateLayout), err)
	}

	r.log.Debug().
		Str("ticker", e.Ticker).
		Str("audit_date", e.AuditDate.Format(DateLayout)).
		Float64("score", e.RiskScore).
		Msg("Ledger entry upserted")
	return nil
}

// PreviousState returns the most recent entry strictly before date, or nil when
// the instrument has no earlier audit. Rows written before smoothing existed
// fall back to their raw sub-scores.
func (r *Repository) PreviousState(ctx context.Context, ticker string, date time.Time) (*scoring.PreviousState, error) {
	query := `SELECT audit_date, risk_score, risk_level,
	                 COALESCE(score_pos_ema, score_pos, 0),
	                 COALESCE(score_ene_ema, score_ene, 0),
	                 COALESCE(score_trap_ema, score_trap, 0)
	          FROM audit_ledger
	          WHERE ticker = ? AND audit_date < ?
	          ORDER BY audit_date DESC
	          LIMIT 1`

	var auditDate string
	var state scoring.PreviousState
	err := r.db.QueryRowContext(ctx, query, ticker, truncateDay(date).Format(DateLayout)).Scan(
		&auditDate, &state.Score, &state.Level,
		&state.Smoothed.Position, &state.Smoothed.Energy, &state.Smoothed.Trap,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query previous state for %s: %w", ticker, err)
	}

	state.AuditDate, err = time.Parse(DateLayout, auditDate)
	if err != nil {
		return nil, fmt.Errorf("failed to parse audit date %q: %w", auditDate, err)
	}
	return &state, nil
}

// PendingAudit is an entry still waiting for its forward returns
type PendingAudit struct {
	AuditDate time.Time
	PriceT    float64
}

// PendingForwardReturns lists entries on or before cutoff whose returns are unfilled, oldest first.
func (r *Repository) PendingForwardReturns(ctx context.Context, ticker string, cutoff time.Time) ([]PendingAudit, error) {
	query := `SELECT audit_date, price_t FROM audit_ledger
	          WHERE ticker = ? AND ret_20d IS NULL AND audit_date <= ?
	          ORDER BY audit_date ASC`

	rows, err := r.db.QueryContext(ctx, query, ticker, truncateDay(cutoff).Format(DateLayout))
	if err != nil {
		return nil, fmt.Errorf("failed to query pending forward returns: %w", err)
	}
	defer rows.Close()

	var pending []PendingAudit
	for rows.Next() {
		var date string
		var p PendingAudit
		if err := rows.Scan(&date, &p.PriceT); err != nil {
			return nil, fmt.Errorf("failed to scan pending audit: %w", err)
		}
		if p.AuditDate, err = time.Parse(DateLayout, date); err != nil {
			return nil, fmt.Errorf("failed to parse audit date %q: %w", date, err)
		}
		pending = append(pending, p)
	}
	return pending, rows.Err()
}

// FillForwardReturns records realized returns for one entry. It only writes
// when the returns are still empty and reports whether it wrote.
func (r *Repository) FillForwardReturns(ctx context.Context, ticker string, date time.Time, fr ForwardReturns) (bool, error) {
	unlock := r.lockTicker(ticker)
	defer unlock()

	result, err := r.db.ExecContext(ctx,
		`UPDATE audit_ledger
		 SET ret_20d = ?, min_ret_20d = ?, max_ret_20d = ?, updated_at = ?
		 WHERE ticker = ? AND audit_date = ? AND ret_20d IS NULL`,
		fr.Ret20d, fr.MinRet20d, fr.MaxRet20d, r.now().Unix(),
		ticker, truncateDay(date).Format(DateLayout),
	)
	if err != nil {
		return false, fmt.Errorf("%w: failed to fill forward returns for %s: %v", domain.ErrPersistence, ticker, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return affected > 0, nil
}

// Entries returns up to limit entries for ticker, newest first
func (r *Repository) Entries(ctx context.Context, ticker string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 100
	}
	return r.query(ctx, r.selectSQL+" WHERE ticker = ? ORDER BY audit_date DESC LIMIT ?", ticker, limit)
}

// Latest returns the newest entry for ticker, or nil
func (r *Repository) Latest(ctx context.Context, ticker string) (*Entry, error) {
	entries, err := r.Entries(ctx, ticker, 1)
	if err != nil || len(entries) == 0 {
		return nil, err
	}
	return &entries[0], nil
}

// Get returns the entry for (ticker, date), or nil
func (r *Repository) Get(ctx context.Context, ticker string, date time.Time) (*Entry, error) {
	entries, err := r.query(ctx, r.selectSQL+" WHERE ticker = ? AND audit_date = ?",
		ticker, truncateDay(date).Format(DateLayout))
	if err != nil || len(entries) == 0 {
		return nil, err
	}
	return &entries[0], nil
}

// Tickers lists every instrument with at least one entry
func (r *Repository) Tickers(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT DISTINCT ticker FROM audit_ledger ORDER BY ticker")
	if err != nil {
		return nil, fmt.Errorf("failed to query tickers: %w", err)
	}
	defer rows.Close()

	var tickers []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("failed to scan ticker: %w", err)
		}
		tickers = append(tickers, t)
	}
	return tickers, rows.Err()
}

func (r *Repository) query(ctx context.Context, query string, args ...interface{}) ([]Entry, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query ledger: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// entryArgs returns the entry's values in Columns order
func entryArgs(e Entry) []interface{} {
	var ret, minRet, maxRet interface{}
	if e.Forward != nil {
		ret, minRet, maxRet = e.Forward.Ret20d, e.Forward.MinRet20d, e.Forward.MaxRet20d
	}

	return []interface{}{
		e.AuditDate.Format(DateLayout), e.Ticker, e.Name, e.RiskScore, e.RiskLevel, e.PriceT,
		e.SigmaAvg, e.Sigma[0], e.Sigma[1], e.Sigma[2], e.Sigma[3], e.Sigma[4],
		e.RSI, e.MFI, e.BBW, e.R2, e.ADX, e.Disparity,
		e.BenchTicker, e.BenchPrice, e.BenchSigmaAvg, e.BenchRSI, e.BenchMFI, e.BenchADX, e.BenchBBW,
		e.StopPrice, e.RiskGapPct, e.InvestEI, e.WeightPct, e.ExpectedMDD,
		e.LivermoreStatus, e.BaseRawScore, e.RiskMultiplier, e.TrendScenario,
		e.ScorePos, e.ScorePosEMA, e.ScoreEne, e.ScoreEneEMA, e.ScoreTrap, e.ScoreTrapEMA,
		e.VIX, e.US10Y, e.DXY,
		e.MACDHist, e.BenchMACDHist, e.ADXGap, e.DispLimit, e.BBWThr, e.LivDiscount, e.SOPAction,
		ret, minRet, maxRet,
	}
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanEntry(row rowScanner) (Entry, error) {
	var e Entry
	var auditDate string
	var ret, minRet, maxRet sql.NullFloat64

	err := row.Scan(
		&auditDate, &e.Ticker, &e.Name, &e.RiskScore, &e.RiskLevel, &e.PriceT,
		&e.SigmaAvg, &e.Sigma[0], &e.Sigma[1], &e.Sigma[2], &e.Sigma[3], &e.Sigma[4],
		&e.RSI, &e.MFI, &e.BBW, &e.R2, &e.ADX, &e.Disparity,
		&e.BenchTicker, &e.BenchPrice, &e.BenchSigmaAvg, &e.BenchRSI, &e.BenchMFI, &e.BenchADX, &e.BenchBBW,
		&e.StopPrice, &e.RiskGapPct, &e.InvestEI, &e.WeightPct, &e.ExpectedMDD,
		&e.LivermoreStatus, &e.BaseRawScore, &e.RiskMultiplier, &e.TrendScenario,
		&e.ScorePos, &e.ScorePosEMA, &e.ScoreEne, &e.ScoreEneEMA, &e.ScoreTrap, &e.ScoreTrapEMA,
		&e.VIX, &e.US10Y, &e.DXY,
		&e.MACDHist, &e.BenchMACDHist, &e.ADXGap, &e.DispLimit, &e.BBWThr, &e.LivDiscount, &e.SOPAction,
		&ret, &minRet, &maxRet,
	)
	if err != nil {
		return Entry{}, fmt.Errorf("failed to scan ledger entry: %w", err)
	}

	if e.AuditDate, err = time.Parse(DateLayout, auditDate); err != nil {
		return Entry{}, fmt.Errorf("failed to parse audit date %q: %w", auditDate, err)
	}

	if ret.Valid {
		e.Forward = &ForwardReturns{
			Ret20d:    ret.Float64,
			MinRet20d: minRet.Float64,
			MaxRet20d: maxRet.Float64,
		}
	}
	return e, nil
}
