package ledger

import (
	"time"

	"github.com/aristath/sigmaguard/internal/domain"
	"github.com/aristath/sigmaguard/internal/modules/allocation"
	"github.com/aristath/sigmaguard/internal/modules/indicators"
	"github.com/aristath/sigmaguard/internal/modules/scoring"
)

// DateLayout is the audit date format stored in the ledger
const DateLayout = "2006-01-02"

// Columns is the ordered ledger field list. The order is part of the ledger
// format and only ever grows at the end of a schema version bump.
var Columns = []string{
	"audit_date", "ticker", "name", "risk_score", "risk_level", "price_t",
	"sigma_t_avg", "sigma_t_1y", "sigma_t_2y", "sigma_t_3y", "sigma_t_4y", "sigma_t_5y",
	"rsi_t", "mfi_t", "bbw_t", "r2_t", "adx_t", "disp_t_120",
	"ticker_b", "price_b", "sigma_b_avg", "rsi_b", "mfi_b", "adx_b", "bbw_b",
	"stop_price", "risk_gap_pct", "invest_ei", "weight_pct", "expected_mdd",
	"livermore_status", "base_raw_score", "risk_multiplier", "trend_scenario",
	"score_pos", "score_pos_ema", "score_ene", "score_ene_ema", "score_trap", "score_trap_ema",
	"vix_t", "us10y_t", "dxy_t",
	"macd_hist_t", "macd_hist_b", "adx_gap", "disp_limit", "bbw_thr", "liv_discount", "sop_action",
	"ret_20d", "min_ret_20d", "max_ret_20d",
}

// ForwardReturns are the realized returns after an audit, in percent of the audited price
type ForwardReturns struct {
	Ret20d    float64 `json:"ret_20d"`
	MinRet20d float64 `json:"min_ret_20d"`
	MaxRet20d float64 `json:"max_ret_20d"`
}

// Entry is one ledger row
type Entry struct {
	AuditDate time.Time `json:"audit_date"`
	Ticker    string    `json:"ticker"`
	Name      string    `json:"name"`
	RiskScore float64   `json:"risk_score"`
	RiskLevel int       `json:"risk_level"`
	PriceT    float64   `json:"price_t"`

	SigmaAvg  float64    `json:"sigma_avg"`
	Sigma     [5]float64 `json:"sigma"`
	RSI       float64    `json:"rsi"`
	MFI       float64    `json:"mfi"`
	BBW       float64    `json:"bbw"`
	R2        float64    `json:"r2"`
	ADX       float64    `json:"adx"`
	Disparity float64    `json:"disparity"`

	BenchTicker   string  `json:"bench_ticker"`
	BenchPrice    float64 `json:"bench_price"`
	BenchSigmaAvg float64 `json:"bench_sigma_avg"`
	BenchRSI      float64 `json:"bench_rsi"`
	BenchMFI      float64 `json:"bench_mfi"`
	BenchADX      float64 `json:"bench_adx"`
	BenchBBW      float64 `json:"bench_bbw"`

	StopPrice   float64 `json:"stop_price"`
	RiskGapPct  float64 `json:"risk_gap_pct"`
	InvestEI    float64 `json:"invest_ei"`
	WeightPct   float64 `json:"weight_pct"`
	ExpectedMDD float64 `json:"expected_mdd"`

	LivermoreStatus string  `json:"livermore_status"`
	BaseRawScore    float64 `json:"base_raw_score"`
	RiskMultiplier  float64 `json:"risk_multiplier"`
	TrendScenario   string  `json:"trend_scenario"`

	ScorePos     float64 `json:"score_pos"`
	ScorePosEMA  float64 `json:"score_pos_ema"`
	ScoreEne     float64 `json:"score_ene"`
	ScoreEneEMA  float64 `json:"score_ene_ema"`
	ScoreTrap    float64 `json:"score_trap"`
	ScoreTrapEMA float64 `json:"score_trap_ema"`

	VIX   float64 `json:"vix"`
	US10Y float64 `json:"us10y"`
	DXY   float64 `json:"dxy"`

	MACDHist      float64 `json:"macd_hist"`
	BenchMACDHist float64 `json:"bench_macd_hist"`
	ADXGap        float64 `json:"adx_gap"`
	DispLimit     float64 `json:"disp_limit"`
	BBWThr        float64 `json:"bbw_thr"`
	LivDiscount   float64 `json:"liv_discount"`
	SOPAction     string  `json:"sop_action"`

	// Nil until the delayed backtest fills them
	Forward *ForwardReturns `json:"forward,omitempty"`
}

// State extracts the feedback state the next run reads back
func (e Entry) State() scoring.PreviousState {
	return scoring.PreviousState{
		AuditDate: e.AuditDate,
		Score:     e.RiskScore,
		Level:     e.RiskLevel,
		Smoothed: scoring.SubScores{
			Position: e.ScorePosEMA,
			Energy:   e.ScoreEneEMA,
			Trap:     e.ScoreTrapEMA,
		},
	}
}

// EntryInput gathers everything one audit produced
type EntryInput struct {
	Item        domain.WatchlistItem
	BenchSymbol string
	Latest      indicators.Snapshot
	Bench       *indicators.Snapshot
	Assessment  scoring.Assessment
	Allocation  allocation.Allocation
	Drawdown    allocation.DrawdownEstimate
	Macro       domain.MacroSnapshot
}

// NewEntry builds a ledger row from one audit, applying the storage precision
// of every column. The audit date is the date of the latest bar.
func NewEntry(in EntryInput) Entry {
	t := in.Item.Ticker
	s := in.Latest
	a := in.Assessment

	e := Entry{
		AuditDate: truncateDay(s.Date),
		Ticker:    t,
		Name:      in.Item.DisplayName(),
		RiskScore: FormatValue(t, a.Score, CategoryScore),
		RiskLevel: a.Level,
		PriceT:    FormatValue(t, s.Close, CategoryPrice),

		SigmaAvg:  FormatValue(t, s.AvgSigma, CategorySigma),
		RSI:       FormatValue(t, s.RSI, CategoryIndicator),
		MFI:       FormatValue(t, s.MFI, CategoryIndicator),
		BBW:       FormatValue(t, s.BBW, CategoryMath),
		R2:        FormatValue(t, s.R2, CategoryMath),
		ADX:       FormatValue(t, s.ADX, CategoryIndicator),
		Disparity: FormatValue(t, s.Disparity, CategoryIndicator),

		BenchTicker: in.BenchSymbol,

		StopPrice:   FormatValue(t, in.Allocation.StopLoss, CategoryPrice),
		RiskGapPct:  FormatValue(t, in.Allocation.RiskDistancePct, CategoryReturn),
		InvestEI:    FormatValue(t, in.Allocation.EfficiencyIndex, CategoryReturn),
		WeightPct:   FormatValue(t, in.Allocation.WeightPct, CategoryScore),
		ExpectedMDD: FormatValue(t, in.Drawdown.ExpectedMDDPct, CategoryScore),

		LivermoreStatus: a.LivermoreStatus,
		BaseRawScore:    FormatValue(t, a.BaseRaw, CategoryScore),
		RiskMultiplier:  FormatValue(t, a.Multiplier, CategoryReturn),
		TrendScenario:   string(a.Scenario),

		ScorePos:     FormatValue(t, a.Raw.Position, CategoryScore),
		ScorePosEMA:  FormatValue(t, a.Smoothed.Position, CategoryScore),
		ScoreEne:     FormatValue(t, a.Raw.Energy, CategoryScore),
		ScoreEneEMA:  FormatValue(t, a.Smoothed.Energy, CategoryScore),
		ScoreTrap:    FormatValue(t, a.Raw.Trap, CategoryScore),
		ScoreTrapEMA: FormatValue(t, a.Smoothed.Trap, CategoryScore),

		VIX:   FormatValue(t, in.Macro.VIX, CategoryReturn),
		US10Y: FormatValue(t, in.Macro.US10Y, CategoryReturn),
		DXY:   FormatValue(t, in.Macro.DXY, CategoryReturn),

		MACDHist:      FormatValue(t, a.MACDHist, CategoryMath),
		BenchMACDHist: FormatValue(t, a.BenchMACDHist, CategoryMath),
		ADXGap:        FormatValue(t, a.ADXGap, CategoryIndicator),
		DispLimit:     FormatValue(t, s.DisparityLimit, CategoryIndicator),
		BBWThr:        FormatValue(t, s.BBWThreshold, CategoryMath),
		LivDiscount:   FormatValue(t, a.LivermoreDiscount, CategoryReturn),
		SOPAction:     a.Action,
	}
	for i, v := range s.Sigma {
		e.Sigma[i] = FormatValue(t, v, CategorySigma)
	}

	if b := in.Bench; b != nil {
		bt := in.BenchSymbol
		e.BenchPrice = FormatValue(bt, b.Close, CategoryPrice)
		e.BenchSigmaAvg = FormatValue(bt, b.AvgSigma, CategorySigma)
		e.BenchRSI = FormatValue(bt, b.RSI, CategoryIndicator)
		e.BenchMFI = FormatValue(bt, b.MFI, CategoryIndicator)
		e.BenchADX = FormatValue(bt, b.ADX, CategoryIndicator)
		e.BenchBBW = FormatValue(bt, b.BBW, CategoryMath)
	}

	return e
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
