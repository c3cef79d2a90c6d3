// Package paper implements an in-memory venue used for dry runs and tests.
package paper

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"sync"

	"octo-arb-bot/internal/pricing"
	"octo-arb-bot/internal/provider"
)

// PlacedOrder records one accepted order for later inspection.
type PlacedOrder struct {
	Symbol   string
	Side     provider.Side
	Quantity float64
	Price    float64
	Market   bool
}

type Venue struct {
	mu        sync.Mutex
	markets   map[provider.Kind]map[string]provider.Market
	tickers   map[provider.Kind]map[string]provider.TickerPrice
	books     map[string]provider.OrderBook
	balances  map[provider.Kind]provider.Balance
	candles   map[string][]provider.Candle
	takerFee  float64
	precision int
	orderSeq  int64
	orders    []PlacedOrder
	orderErr  error
}

func New(takerFee float64) *Venue {
	return &Venue{
		markets:   make(map[provider.Kind]map[string]provider.Market),
		tickers:   make(map[provider.Kind]map[string]provider.TickerPrice),
		books:     make(map[string]provider.OrderBook),
		balances:  make(map[provider.Kind]provider.Balance),
		candles:   make(map[string][]provider.Candle),
		takerFee:  takerFee,
		precision: 8,
	}
}

func (v *Venue) SetMarket(kind provider.Kind, m provider.Market) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.markets[kind] == nil {
		v.markets[kind] = make(map[string]provider.Market)
	}
	v.markets[kind][m.Symbol] = m
}

func (v *Venue) SetTicker(kind provider.Kind, t provider.TickerPrice) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.tickers[kind] == nil {
		v.tickers[kind] = make(map[string]provider.TickerPrice)
	}
	v.tickers[kind][t.Symbol] = t
}

func (v *Venue) SetBook(symbol string, book provider.OrderBook) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.books[symbol] = book
}

func (v *Venue) SetBalance(kind provider.Kind, currency string, free float64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	bal, ok := v.balances[kind]
	if !ok {
		bal = provider.Balance{Free: make(map[string]float64), Total: make(map[string]float64)}
	}
	bal.Free[currency] = free
	bal.Total[currency] = free
	v.balances[kind] = bal
}

func (v *Venue) SetCandles(symbol string, candles []provider.Candle) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.candles[symbol] = candles
}

// FailOrders makes every subsequent placement return err; nil restores
// normal fills.
func (v *Venue) FailOrders(err error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.orderErr = err
}

func (v *Venue) Orders() []PlacedOrder {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]PlacedOrder, len(v.orders))
	copy(out, v.orders)
	return out
}

func (v *Venue) LoadMarkets(_ context.Context, kind provider.Kind) (map[string]provider.Market, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make(map[string]provider.Market, len(v.markets[kind]))
	for symbol, m := range v.markets[kind] {
		out[symbol] = m
	}
	return out, nil
}

func (v *Venue) FetchTickers(_ context.Context, kind provider.Kind) (map[string]provider.TickerPrice, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make(map[string]provider.TickerPrice, len(v.tickers[kind]))
	for symbol, t := range v.tickers[kind] {
		out[symbol] = t
	}
	return out, nil
}

func (v *Venue) FetchOrderBook(_ context.Context, symbol string, limit int) (provider.OrderBook, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	book, ok := v.books[symbol]
	if !ok {
		return provider.OrderBook{}, fmt.Errorf("no order book for %s", symbol)
	}
	if limit > 0 {
		if len(book.Asks) > limit {
			book.Asks = book.Asks[:limit]
		}
		if len(book.Bids) > limit {
			book.Bids = book.Bids[:limit]
		}
	}
	return book, nil
}

func (v *Venue) FetchBalance(_ context.Context, kind provider.Kind) (provider.Balance, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	bal, ok := v.balances[kind]
	if !ok {
		return provider.Balance{Free: map[string]float64{}, Total: map[string]float64{}}, nil
	}
	out := provider.Balance{Free: make(map[string]float64), Total: make(map[string]float64)}
	for c, amt := range bal.Free {
		out.Free[c] = amt
	}
	for c, amt := range bal.Total {
		out.Total[c] = amt
	}
	return out, nil
}

func (v *Venue) FetchCandles(_ context.Context, symbol, _ string, limit int) ([]provider.Candle, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	candles, ok := v.candles[symbol]
	if !ok {
		return nil, fmt.Errorf("no candles for %s", symbol)
	}
	if limit > 0 && len(candles) > limit {
		candles = candles[len(candles)-limit:]
	}
	out := make([]provider.Candle, len(candles))
	copy(out, candles)
	return out, nil
}

func (v *Venue) PlaceMarketOrder(_ context.Context, symbol string, side provider.Side, quantity float64) (provider.OrderResult, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.orderErr != nil {
		return provider.OrderResult{}, v.orderErr
	}
	book, ok := v.books[symbol]
	if !ok {
		return provider.OrderResult{}, fmt.Errorf("no order book for %s", symbol)
	}
	levels := book.Asks
	if side == provider.SideSell {
		levels = book.Bids
	}
	avg, reached := pricing.AvgPriceForQuantity(levels, quantity)
	if !reached {
		return provider.OrderResult{}, fmt.Errorf("insufficient depth for %s %s %f", symbol, side, quantity)
	}
	v.orderSeq++
	v.orders = append(v.orders, PlacedOrder{Symbol: symbol, Side: side, Quantity: quantity, Market: true})
	return provider.OrderResult{
		OrderID:        "paper-" + strconv.FormatInt(v.orderSeq, 10),
		FilledQuantity: quantity,
		AvgPrice:       avg,
		Fee:            avg * quantity * v.takerFee,
	}, nil
}

func (v *Venue) PlaceLimitOrder(_ context.Context, symbol string, side provider.Side, quantity, price float64) (provider.OrderResult, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.orderErr != nil {
		return provider.OrderResult{}, v.orderErr
	}
	v.orderSeq++
	v.orders = append(v.orders, PlacedOrder{Symbol: symbol, Side: side, Quantity: quantity, Price: price})
	return provider.OrderResult{
		OrderID:        "paper-" + strconv.FormatInt(v.orderSeq, 10),
		FilledQuantity: quantity,
		AvgPrice:       price,
		Fee:            price * quantity * v.takerFee,
	}, nil
}

func (v *Venue) SetLeverage(_ context.Context, _ string, leverage int) error {
	if leverage <= 0 {
		return fmt.Errorf("invalid leverage %d", leverage)
	}
	return nil
}

func (v *Venue) SetMarginMode(_ context.Context, _ string, mode string) error {
	if mode != "isolated" && mode != "cross" {
		return fmt.Errorf("invalid margin mode %q", mode)
	}
	return nil
}

func (v *Venue) RoundAmount(_ string, quantity float64) float64 {
	factor := math.Pow10(v.precision)
	return math.Floor(quantity*factor) / factor
}

var _ provider.Client = (*Venue)(nil)
