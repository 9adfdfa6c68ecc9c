package ledger

import (
	"github.com/aristath/sigmaguard/internal/domain"
	"github.com/aristath/sigmaguard/pkg/formulas"
)

// Category selects how many decimals a ledger value keeps
type Category int

const (
	CategoryDefault   Category = iota // 3 dp
	CategoryPrice                     // whole units for KRW, 3 dp otherwise
	CategoryScore                     // 1 dp
	CategorySigma                     // 3 dp
	CategoryIndicator                 // RSI, MFI, ADX, disparity: 1 dp
	CategoryMath                      // R2, BBW, MACD histogram: 4 dp
	CategoryReturn                    // returns and macro quotes: 2 dp
)

// FormatValue rounds v for storage according to its category and the
// currency implied by ticker. Non-finite values are stored as 0.
func FormatValue(ticker string, v float64, c Category) float64 {
	if !formulas.IsFinite(v) {
		return 0
	}

	switch c {
	case CategoryPrice:
		if domain.IsWholeUnitCurrency(domain.CurrencyFor(ticker)) {
			return formulas.Round(v, 0)
		}
		return formulas.Round(v, 3)
	case CategoryScore, CategoryIndicator:
		return formulas.Round(v, 1)
	case CategoryMath:
		return formulas.Round(v, 4)
	case CategoryReturn:
		return formulas.Round(v, 2)
	default:
		return formulas.Round(v, 3)
	}
}
