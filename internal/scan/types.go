package scan

import "octo-arb-bot/internal/market"

// BudgetLevel is a fixed notional at which liquidity and profitability are
// checked independently.
type BudgetLevel struct {
	Budget        float64
	MinProfitRate float64
}

// BudgetResult is the outcome of one budget-level check.
type BudgetResult struct {
	Budget     float64
	Reached    bool
	AvgPrice   float64
	ProfitRate float64
	Profit     float64
}

// SpotOpportunity is a candidate cross-venue spread on the same symbol.
type SpotOpportunity struct {
	Symbol     string
	From       market.Quote
	To         market.Quote
	Hedge      *market.Quote
	ProfitRate float64
	Budgets    []BudgetResult
}

// FutureOpportunity is a cash-and-carry candidate between a spot market and
// a dated future on the same exchange.
type FutureOpportunity struct {
	Symbol         string
	Long           market.Quote
	Short          market.Quote
	SpreadRate     float64
	DaysToMaturity float64
	APR            float64
	RealAPR        float64
}
