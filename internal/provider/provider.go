package provider

import (
	"context"

	"octo-arb-bot/internal/pricing"
)

// Kind is the instrument family a client or market belongs to.
type Kind string

const (
	KindSpot   Kind = "spot"
	KindSwap   Kind = "swap"
	KindFuture Kind = "future"
)

type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Market is static per-symbol metadata returned by LoadMarkets.
type Market struct {
	Symbol   string
	Base     string
	Quote    string
	Kind     Kind
	Active   bool
	ExpiryMS int64
	TakerFee float64
	MakerFee float64
}

// TickerPrice is one polled ticker. Nil fields were not reported by the
// venue; callers fall back to Last where bid/ask are missing.
type TickerPrice struct {
	Symbol        string
	Bid           *float64
	Ask           *float64
	Last          *float64
	PreviousClose *float64
	Change        *float64
	Percentage    *float64
	BaseVolume    *float64
	QuoteVolume   *float64
}

// OrderBook holds asks ascending and bids descending by price.
type OrderBook struct {
	Asks []pricing.Level
	Bids []pricing.Level
}

// Balance maps currency to free and total amounts.
type Balance struct {
	Free  map[string]float64
	Total map[string]float64
}

// Candle is one OHLCV bar keyed by its open time.
type Candle struct {
	OpenTimeMS int64
	Open       float64
	High       float64
	Low        float64
	Close      float64
	Volume     float64
}

// OrderResult reports a completed placement.
type OrderResult struct {
	OrderID        string
	FilledQuantity float64
	AvgPrice       float64
	Fee            float64
}

// Client is the fixed capability surface every venue adapter implements.
// Each adapter wraps one exchange account for one instrument family.
type Client interface {
	LoadMarkets(ctx context.Context, kind Kind) (map[string]Market, error)
	FetchTickers(ctx context.Context, kind Kind) (map[string]TickerPrice, error)
	FetchOrderBook(ctx context.Context, symbol string, limit int) (OrderBook, error)
	FetchBalance(ctx context.Context, kind Kind) (Balance, error)
	FetchCandles(ctx context.Context, symbol, interval string, limit int) ([]Candle, error)
	PlaceMarketOrder(ctx context.Context, symbol string, side Side, quantity float64) (OrderResult, error)
	PlaceLimitOrder(ctx context.Context, symbol string, side Side, quantity, price float64) (OrderResult, error)
	SetLeverage(ctx context.Context, symbol string, leverage int) error
	SetMarginMode(ctx context.Context, symbol, mode string) error
	RoundAmount(symbol string, quantity float64) float64
}
