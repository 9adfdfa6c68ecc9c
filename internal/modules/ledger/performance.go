package ledger

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/aristath/sigmaguard/pkg/formulas"
)

// LevelPerformance summarises realized outcomes for one risk level.
type LevelPerformance struct {
	Level          int     `json:"level"`
	Count          int     `json:"count"`
	MeanRet20d     float64 `json:"mean_ret_20d"`
	MeanMinRet20d  float64 `json:"mean_min_ret_20d"`
	WorstMinRet20d float64 `json:"worst_min_ret_20d"`
	MeanMaxRet20d  float64 `json:"mean_max_ret_20d"`
}

// Analyzer reads realized outcomes out of the ledger
type Analyzer struct {
	db *sql.DB
}

// NewAnalyzer creates a new ledger analyzer
func NewAnalyzer(db *sql.DB) *Analyzer {
	return &Analyzer{db: db}
}

// PerformanceByLevel groups filled entries by risk level, lowest level first.
// An empty ticker covers the whole ledger.
func (a *Analyzer) PerformanceByLevel(ctx context.Context, ticker string) ([]LevelPerformance, error) {
	query := `SELECT risk_level, COUNT(*), AVG(ret_20d), AVG(min_ret_20d), MIN(min_ret_20d), AVG(max_ret_20d)
	          FROM audit_ledger
	          WHERE ret_20d IS NOT NULL AND (? = '' OR ticker = ?)
	          GROUP BY risk_level
	          ORDER BY risk_level`

	rows, err := a.db.QueryContext(ctx, query, ticker, ticker)
	if err != nil {
		return nil, fmt.Errorf("failed to query performance by level: %w", err)
	}
	defer rows.Close()

	var out []LevelPerformance
	for rows.Next() {
		var p LevelPerformance
		if err := rows.Scan(&p.Level, &p.Count, &p.MeanRet20d, &p.MeanMinRet20d, &p.WorstMinRet20d, &p.MeanMaxRet20d); err != nil {
			return nil, fmt.Errorf("failed to scan level performance: %w", err)
		}
		p.MeanRet20d = formulas.Round(p.MeanRet20d, 2)
		p.MeanMinRet20d = formulas.Round(p.MeanMinRet20d, 2)
		p.MeanMaxRet20d = formulas.Round(p.MeanMaxRet20d, 2)
		out = append(out, p)
	}
	return out, rows.Err()
}

// ScoreDrawdownCorrelation is the Pearson correlation between risk score and the
// worst realized drawdown over filled entries. A working model shows a negative
// value: higher scores precede deeper drawdowns. Also returns the sample size.
func (a *Analyzer) ScoreDrawdownCorrelation(ctx context.Context, ticker string) (float64, int, error) {
	rows, err := a.db.QueryContext(ctx,
		`SELECT risk_score, min_ret_20d FROM audit_ledger
		 WHERE min_ret_20d IS NOT NULL AND (? = '' OR ticker = ?)`,
		ticker, ticker)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to query score/drawdown pairs: %w", err)
	}
	defer rows.Close()

	var scores, drawdowns []float64
	for rows.Next() {
		var s, d float64
		if err := rows.Scan(&s, &d); err != nil {
			return 0, 0, fmt.Errorf("failed to scan score/drawdown pair: %w", err)
		}
		scores = append(scores, s)
		drawdowns = append(drawdowns, d)
	}
	if err := rows.Err(); err != nil {
		return 0, 0, err
	}

	return formulas.Round(formulas.Correlation(scores, drawdowns), 3), len(scores), nil
}
