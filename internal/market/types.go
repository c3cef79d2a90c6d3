package market

import (
	"fmt"
	"time"

	"octo-arb-bot/internal/provider"
)

// Quote is one exchange's view of a symbol inside a snapshot.
type Quote struct {
	Exchange      string
	Symbol        string
	Base          string
	QuoteCurrency string
	Kind          provider.Kind
	Active        bool
	ExpiryMS      int64
	TakerFee      float64
	MakerFee      float64
	Bid           *float64
	Ask           *float64
	Last          *float64
	PreviousClose *float64
	Change        *float64
	Percentage    *float64
	BaseVolume    *float64
	QuoteVolume   *float64
}

// BuyPrice is the ask with a fallback to last. Returns false when neither
// is available.
func (q Quote) BuyPrice() (float64, bool) {
	if q.Ask != nil {
		return *q.Ask, true
	}
	if q.Last != nil {
		return *q.Last, true
	}
	return 0, false
}

// SellPrice is the bid with a fallback to last.
func (q Quote) SellPrice() (float64, bool) {
	if q.Bid != nil {
		return *q.Bid, true
	}
	if q.Last != nil {
		return *q.Last, true
	}
	return 0, false
}

// Ticker is the canonical merged per-symbol record.
type Ticker struct {
	Symbol           string
	Base             string
	QuoteCurrency    string
	Kind             provider.Kind
	Exchanges        map[string]Quote
	BestExchange     string
	Price            float64
	Change           float64
	Percentage       float64
	BaseVolume       float64
	QuoteVolume      float64
	TotalBaseVolume  float64
	TotalQuoteVolume float64
}

// Snapshot is the full per-symbol view for one instrument kind. It is
// immutable once published; each refresh cycle publishes a replacement.
type Snapshot struct {
	Kind    provider.Kind
	BuiltAt time.Time
	Tickers map[string]Ticker
}

// SnapshotKey is the cache key a published snapshot lives under.
func SnapshotKey(kind provider.Kind) string {
	return string(kind)
}

func RawMarketsKey(exchange string, kind provider.Kind) string {
	return fmt.Sprintf("%s_%s_markets", exchange, kind)
}

func RawPricesKey(exchange string, kind provider.Kind) string {
	return fmt.Sprintf("%s_%s_prices", exchange, kind)
}
