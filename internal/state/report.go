package state

// PositionReport aggregates a position's ledger: realized profit over
// closes, fees, and the net open quantity on each leg.
type PositionReport struct {
	OpenSpotQuantity  float64
	OpenHedgeQuantity float64
	RealizedProfit    float64
	TotalFees         float64
	Closes            int
	Opens             int
}

// Summarize folds a transaction ledger into a PositionReport. Close profit
// is the spot gain plus the hedge gain on the recorded quantities; fees are
// charged on every transaction.
func Summarize(txs []Transaction) PositionReport {
	var report PositionReport
	for _, tx := range txs {
		switch tx.Side {
		case TxClose:
			spotProfit := (tx.SpotPrice - tx.SpotCostPrice) * tx.SpotQuantity
			hedgeProfit := (tx.HedgeCostPrice - tx.HedgePrice) * tx.HedgeQuantity
			report.RealizedProfit += spotProfit + hedgeProfit
			report.OpenSpotQuantity -= tx.SpotQuantity
			report.OpenHedgeQuantity -= tx.HedgeQuantity
			report.Closes++
		case TxOpen:
			report.OpenSpotQuantity += tx.SpotQuantity
			report.OpenHedgeQuantity += tx.HedgeQuantity
			report.Opens++
		}
		report.RealizedProfit -= tx.Fee
		report.TotalFees += tx.Fee
	}
	return report
}
