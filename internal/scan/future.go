package scan

import (
	"math"
	"time"

	"octo-arb-bot/internal/market"
	"octo-arb-bot/internal/pricing"
	"octo-arb-bot/internal/provider"
)

// defaultFutureFee is the taker fee assumed on the contract leg when the
// venue does not report one.
const defaultFutureFee = 0.0005

// FutureOpportunities pairs every dated future with the matching spot
// market on the same exchange and annualizes the basis. Contracts without a
// spot counterpart or an expiry are skipped.
func FutureOpportunities(spot, future *market.Snapshot, now time.Time) []FutureOpportunity {
	if spot == nil || future == nil {
		return nil
	}
	var out []FutureOpportunity
	for _, symbol := range sortedTickerSymbols(future) {
		contract := future.Tickers[symbol]
		if contract.Kind != provider.KindFuture {
			continue
		}
		for _, exchange := range sortedQuoteNames(contract.Exchanges) {
			contractQuote := contract.Exchanges[exchange]
			if contractQuote.ExpiryMS == 0 {
				continue
			}
			spotSymbol := contractQuote.Base + "/" + contractQuote.QuoteCurrency
			spotTick, ok := spot.Tickers[spotSymbol]
			if !ok {
				continue
			}
			spotQuote, ok := spotTick.Exchanges[exchange]
			if !ok {
				continue
			}
			spotPrice, ok := spotQuote.BuyPrice()
			if !ok || spotPrice == 0 {
				continue
			}
			contractPrice, ok := contractQuote.SellPrice()
			if !ok {
				continue
			}
			days := daysToMaturity(contractQuote.ExpiryMS, now)
			if days == 0 {
				continue
			}
			futureFee := contractQuote.TakerFee
			if futureFee == 0 {
				futureFee = defaultFutureFee
			}
			out = append(out, FutureOpportunity{
				Symbol:         symbol,
				Long:           spotQuote,
				Short:          contractQuote,
				SpreadRate:     pricing.SpreadRate(spotPrice, contractPrice),
				DaysToMaturity: days,
				APR:            pricing.FutureAPR(spotPrice, contractPrice, days),
				RealAPR:        pricing.FutureRealAPR(spotPrice, contractPrice, days, spotQuote.TakerFee, futureFee),
			})
		}
	}
	return out
}

// daysToMaturity is the absolute distance to expiry in fractional days,
// rounded to two decimals.
func daysToMaturity(expiryMS int64, now time.Time) float64 {
	expiry := time.UnixMilli(expiryMS).UTC()
	days := math.Abs(expiry.Sub(now).Seconds()) / 86400
	return math.Round(days*100) / 100
}
