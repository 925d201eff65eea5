package analysis

import (
	"fmt"
	"math"

	"FinSheet/internal/domain/models"
)

// Indicator names emitted by the fundamental analyzer.
const (
	IndRevenueGrowth  = "revenue_growth"
	IndEarningsGrowth = "earnings_growth"
	IndDebtToEquity   = "debt_to_equity"
	IndNetMargin      = "net_margin"
	IndAssetTurnover  = "asset_turnover"
)

// Fundamental computes ratio indicators from periodic statements. A single
// bad or missing field fails only the indicators that need it; the rest of
// the set is still computed.
type Fundamental struct{}

// NewFundamental returns a fundamental analyzer.
func NewFundamental() *Fundamental { return &Fundamental{} }

func (f *Fundamental) Analyze(stmts []models.FinancialStatement) (models.IndicatorSet, error) {
	if len(stmts) == 0 {
		return models.IndicatorSet{}, ErrEmptySeries
	}
	for i := 1; i < len(stmts); i++ {
		if !stmts[i].Period.After(stmts[i-1].Period) {
			return models.IndicatorSet{}, fmt.Errorf("%w: statement %d period not after statement %d",
				ErrMalformedSeries, i, i-1)
		}
	}

	latest := stmts[len(stmts)-1]
	set := models.IndicatorSet{
		Values:     make(map[string]float64),
		ComputedAt: latest.Period,
	}

	var prev *models.FinancialStatement
	if len(stmts) >= 2 {
		prev = &stmts[len(stmts)-2]
	}

	growth := func(name, field string) {
		if prev == nil {
			set.Indeterminate = append(set.Indeterminate, name)
			return
		}
		cur, old := latest.Field(field), prev.Field(field)
		if !cur.IsPresent() || !old.IsPresent() || old.Value == 0 {
			set.Indeterminate = append(set.Indeterminate, name)
			return
		}
		set.Values[name] = (cur.Value - old.Value) / math.Abs(old.Value)
	}
	ratio := func(name, numField, denField string) {
		num, den := latest.Field(numField), latest.Field(denField)
		if !num.IsPresent() || !den.IsPresent() || den.Value == 0 {
			set.Indeterminate = append(set.Indeterminate, name)
			return
		}
		set.Values[name] = num.Value / den.Value
	}

	growth(IndRevenueGrowth, models.FieldRevenue)
	growth(IndEarningsGrowth, models.FieldEarnings)
	ratio(IndDebtToEquity, models.FieldDebt, models.FieldEquity)
	ratio(IndNetMargin, models.FieldEarnings, models.FieldRevenue)
	ratio(IndAssetTurnover, models.FieldRevenue, models.FieldAssets)

	return set, nil
}
