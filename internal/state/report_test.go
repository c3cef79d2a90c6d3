package state

import (
	"math"
	"testing"
)

func TestSummarize(t *testing.T) {
	txs := []Transaction{
		{Side: TxOpen, SpotCostPrice: 100, HedgeCostPrice: 101, SpotQuantity: 2, HedgeQuantity: 2, Fee: 0.4},
		{Side: TxClose, SpotCostPrice: 100, HedgeCostPrice: 101, SpotPrice: 103, HedgePrice: 102, SpotQuantity: 1, HedgeQuantity: 1, Fee: 0.2},
	}
	report := Summarize(txs)
	if report.Opens != 1 || report.Closes != 1 {
		t.Fatalf("unexpected counts: %+v", report)
	}
	if report.OpenSpotQuantity != 1 || report.OpenHedgeQuantity != 1 {
		t.Fatalf("unexpected open quantities: %+v", report)
	}
	// spot +3, hedge -1, fees -0.6
	if math.Abs(report.RealizedProfit-1.4) > 1e-9 {
		t.Fatalf("expected realized profit 1.4, got %f", report.RealizedProfit)
	}
	if math.Abs(report.TotalFees-0.6) > 1e-9 {
		t.Fatalf("expected fees 0.6, got %f", report.TotalFees)
	}
}
