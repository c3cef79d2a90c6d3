package pricing

import "math"

// SpreadRate returns |p2/p1| - 1. A zero reference price yields 0 instead of
// dividing by zero.
func SpreadRate(p1, p2 float64) float64 {
	if p1 == 0 {
		return 0
	}
	return math.Abs(p2/p1) - 1
}

// FutureAPR annualizes the long/short price gap over days to maturity.
func FutureAPR(long, short, days float64) float64 {
	if long == 0 || days == 0 {
		return 0
	}
	profitRate := (short - long) / long
	return profitRate / days * 365
}

// FutureRealAPR is FutureAPR net of round-trip taker fees on both legs.
func FutureRealAPR(long, short, days, spotFee, futureFee float64) float64 {
	if long == 0 || days == 0 {
		return 0
	}
	profitRate := (short-long)/long - (2*spotFee + 2*futureFee)
	return profitRate / days * 365
}
