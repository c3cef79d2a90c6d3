package market

import (
	"sort"
	"strings"
	"time"

	"octo-arb-bot/internal/provider"
)

// Feed is one exchange's raw market metadata and polled ticker prices for a
// single instrument kind.
type Feed struct {
	Exchange string
	Markets  map[string]provider.Market
	Prices   map[string]provider.TickerPrice
}

// Build merges per-exchange feeds into a canonical snapshot. Tickers with no
// usable exchange quote, or whose metadata lacks a base/quote pair, are
// dropped rather than published half-filled.
func Build(kind provider.Kind, feeds []Feed, now time.Time) *Snapshot {
	ordered := make([]Feed, len(feeds))
	copy(ordered, feeds)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Exchange < ordered[j].Exchange })

	tickers := make(map[string]Ticker)
	for _, feed := range ordered {
		for _, symbol := range sortedSymbols(feed.Prices) {
			if !strings.Contains(symbol, "/") {
				continue
			}
			meta, ok := feed.Markets[symbol]
			if !ok || meta.Base == "" || meta.Quote == "" {
				continue
			}
			quote := buildQuote(feed.Exchange, meta, feed.Prices[symbol])
			tick, ok := tickers[symbol]
			if !ok {
				tick = Ticker{Symbol: symbol, Kind: kind, Exchanges: make(map[string]Quote)}
			}
			tick.Exchanges[feed.Exchange] = quote
			tickers[symbol] = tick
		}
	}

	out := make(map[string]Ticker, len(tickers))
	for symbol, tick := range tickers {
		best, ok := bestExchange(tick.Exchanges)
		if !ok {
			continue
		}
		out[symbol] = rollUp(tick, best)
	}
	return &Snapshot{Kind: kind, BuiltAt: now, Tickers: out}
}

func buildQuote(exchange string, meta provider.Market, price provider.TickerPrice) Quote {
	q := Quote{
		Exchange:      exchange,
		Symbol:        meta.Symbol,
		Base:          meta.Base,
		QuoteCurrency: meta.Quote,
		Kind:          meta.Kind,
		Active:        meta.Active,
		ExpiryMS:      meta.ExpiryMS,
		TakerFee:      meta.TakerFee,
		MakerFee:      meta.MakerFee,
		Bid:           price.Bid,
		Ask:           price.Ask,
		Last:          price.Last,
		PreviousClose: price.PreviousClose,
		Change:        price.Change,
		Percentage:    price.Percentage,
		BaseVolume:    price.BaseVolume,
		QuoteVolume:   price.QuoteVolume,
	}
	// derive the missing volume side when exactly one is reported
	if q.BaseVolume == nil && q.QuoteVolume != nil && q.Last != nil && *q.Last != 0 {
		derived := *q.QuoteVolume / *q.Last
		q.BaseVolume = &derived
	}
	if q.QuoteVolume == nil && q.BaseVolume != nil && q.Last != nil {
		derived := *q.BaseVolume * *q.Last
		q.QuoteVolume = &derived
	}
	return q
}

// bestExchange picks the exchange with the strictly greatest non-nil base
// volume; ties resolve by exchange name ascending. Falls back to the first
// exchange (name ascending) carrying a last price when no volume is known.
func bestExchange(quotes map[string]Quote) (string, bool) {
	names := make([]string, 0, len(quotes))
	for name := range quotes {
		names = append(names, name)
	}
	sort.Strings(names)

	best := ""
	bestVolume := -1.0
	for _, name := range names {
		vol := quotes[name].BaseVolume
		if vol != nil && *vol > bestVolume {
			best = name
			bestVolume = *vol
		}
	}
	if best != "" {
		return best, true
	}
	for _, name := range names {
		if quotes[name].Last != nil {
			return name, true
		}
	}
	return "", false
}

func rollUp(tick Ticker, best string) Ticker {
	quote := tick.Exchanges[best]
	tick.BestExchange = best
	tick.Base = quote.Base
	tick.QuoteCurrency = quote.QuoteCurrency
	if quote.Last != nil {
		tick.Price = *quote.Last
	}
	if quote.Change != nil {
		tick.Change = *quote.Change
	}
	if quote.Percentage != nil {
		tick.Percentage = *quote.Percentage
	}
	if quote.BaseVolume != nil {
		tick.BaseVolume = *quote.BaseVolume
	}
	if quote.QuoteVolume != nil {
		tick.QuoteVolume = *quote.QuoteVolume
	}
	for _, q := range tick.Exchanges {
		if q.BaseVolume != nil {
			tick.TotalBaseVolume += *q.BaseVolume
		}
		if q.QuoteVolume != nil {
			tick.TotalQuoteVolume += *q.QuoteVolume
		}
	}
	return tick
}

func sortedSymbols(prices map[string]provider.TickerPrice) []string {
	symbols := make([]string, 0, len(prices))
	for symbol := range prices {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)
	return symbols
}
