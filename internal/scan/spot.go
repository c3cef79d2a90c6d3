package scan

import (
	"sort"

	"octo-arb-bot/internal/market"
)

// SpotParams configures the one parameterized spot scanner. Historical
// variants (different allow-lists, fee handling, hedge requirements) all
// reduce to settings here.
type SpotParams struct {
	QuoteCurrency  string
	AllowFrom      []string // empty allows every exchange
	AllowTo        []string
	MinProfitRate  float64
	MaxProfitRate  float64 // upper bound filters implausible stale-data spreads
	MinQuoteVolume float64
	RequireHedge   bool
}

// SpotOpportunities scans every ordered exchange pair for every ticker
// quoted in the reference currency. With RequireHedge the sell side is the
// perpetual from the swap snapshot instead of a second spot venue, so venues
// that only list the perp still produce candidates. Pure function of its
// inputs; the result ordering is deterministic (symbol, then from, then to).
func SpotOpportunities(spot, swap *market.Snapshot, params SpotParams) []SpotOpportunity {
	if spot == nil {
		return nil
	}
	allowFrom := toSet(params.AllowFrom)
	allowTo := toSet(params.AllowTo)

	var out []SpotOpportunity
	for _, symbol := range sortedTickerSymbols(spot) {
		tick := spot.Tickers[symbol]
		if params.QuoteCurrency != "" && tick.QuoteCurrency != params.QuoteCurrency {
			continue
		}
		fromNames := sortedQuoteNames(tick.Exchanges)
		for _, from := range fromNames {
			if allowFrom != nil {
				if _, ok := allowFrom[from]; !ok {
					continue
				}
			}
			fromQuote := tick.Exchanges[from]
			if belowVolume(fromQuote, params.MinQuoteVolume) {
				continue
			}
			buyPrice, ok := fromQuote.BuyPrice()
			if !ok || buyPrice == 0 {
				continue
			}
			if params.RequireHedge {
				out = append(out, hedgedPairs(symbol, tick, fromQuote, buyPrice, swap, allowTo, params)...)
				continue
			}
			for _, to := range fromNames {
				if to == from {
					continue
				}
				if allowTo != nil {
					if _, ok := allowTo[to]; !ok {
						continue
					}
				}
				toQuote := tick.Exchanges[to]
				if belowVolume(toQuote, params.MinQuoteVolume) {
					continue
				}
				sellPrice, ok := toQuote.SellPrice()
				if !ok {
					continue
				}
				profitRate := sellPrice/buyPrice - 1
				if profitRate <= params.MinProfitRate || profitRate >= params.MaxProfitRate {
					continue
				}
				out = append(out, SpotOpportunity{
					Symbol:     symbol,
					From:       fromQuote,
					To:         toQuote,
					Hedge:      hedgeQuote(swap, tick, to),
					ProfitRate: profitRate,
				})
			}
		}
	}
	return out
}

// hedgeQuote finds the perpetual for the same base on the target exchange.
// Spot-to-spot candidates carry it as advisory context only.
func hedgeQuote(swap *market.Snapshot, tick market.Ticker, exchange string) *market.Quote {
	if swap == nil {
		return nil
	}
	perp, ok := swap.Tickers[tick.Symbol+":"+tick.QuoteCurrency]
	if !ok {
		return nil
	}
	quote, ok := perp.Exchanges[exchange]
	if !ok {
		return nil
	}
	return &quote
}

// hedgedPairs matches one spot buy leg against every exchange quoting the
// corresponding perpetual. The volume floor applies to the perp quote too:
// a thin hedge book cannot absorb the short.
func hedgedPairs(symbol string, tick market.Ticker, fromQuote market.Quote, buyPrice float64, swap *market.Snapshot, allowTo map[string]struct{}, params SpotParams) []SpotOpportunity {
	if swap == nil {
		return nil
	}
	perp, ok := swap.Tickers[tick.Symbol+":"+tick.QuoteCurrency]
	if !ok {
		return nil
	}
	var out []SpotOpportunity
	for _, to := range sortedQuoteNames(perp.Exchanges) {
		if allowTo != nil {
			if _, ok := allowTo[to]; !ok {
				continue
			}
		}
		hedge := perp.Exchanges[to]
		if belowVolume(hedge, params.MinQuoteVolume) {
			continue
		}
		sellPrice, ok := hedge.SellPrice()
		if !ok {
			continue
		}
		profitRate := sellPrice/buyPrice - 1
		if profitRate <= params.MinProfitRate || profitRate >= params.MaxProfitRate {
			continue
		}
		quote := hedge
		out = append(out, SpotOpportunity{
			Symbol:     symbol,
			From:       fromQuote,
			To:         hedge,
			Hedge:      &quote,
			ProfitRate: profitRate,
		})
	}
	return out
}

func belowVolume(quote market.Quote, min float64) bool {
	if min <= 0 {
		return false
	}
	return quote.QuoteVolume == nil || *quote.QuoteVolume < min
}

func toSet(names []string) map[string]struct{} {
	if len(names) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(names))
	for _, name := range names {
		set[name] = struct{}{}
	}
	return set
}

func sortedTickerSymbols(snap *market.Snapshot) []string {
	symbols := make([]string, 0, len(snap.Tickers))
	for symbol := range snap.Tickers {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)
	return symbols
}

func sortedQuoteNames(quotes map[string]market.Quote) []string {
	names := make([]string, 0, len(quotes))
	for name := range quotes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
