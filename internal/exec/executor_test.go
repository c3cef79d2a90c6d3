package exec

import (
	"context"
	"errors"
	"strings"
	"testing"

	"go.uber.org/zap"

	"octo-arb-bot/internal/metrics"
	"octo-arb-bot/internal/pricing"
	"octo-arb-bot/internal/provider"
	"octo-arb-bot/internal/provider/paper"
)

func newTestExecutor(t *testing.T) (*Executor, *paper.Venue, *paper.Venue) {
	t.Helper()
	spot := paper.New(0.001)
	hedge := paper.New(0.0006)
	registry := provider.NewRegistry()
	registry.RegisterSpot("binance", spot, 0.001)
	registry.RegisterHedge("okx", hedge, 0.0006)
	return New(registry, zap.NewNop(), metrics.NewNoop()), spot, hedge
}

func TestSpotMarketFillsAgainstBook(t *testing.T) {
	exec, spot, _ := newTestExecutor(t)
	spot.SetBook("BTC/USDT", provider.OrderBook{
		Asks: []pricing.Level{{Price: 100, Quantity: 2}},
		Bids: []pricing.Level{{Price: 99, Quantity: 2}},
	})

	result, err := exec.SpotMarket(context.Background(), "binance", "BTC/USDT", provider.SideBuy, 1.5)
	if err != nil {
		t.Fatalf("SpotMarket: %v", err)
	}
	if result.AvgPrice != 100 {
		t.Fatalf("avg price = %v, want 100", result.AvgPrice)
	}
	if result.FilledQuantity != 1.5 {
		t.Fatalf("filled = %v, want 1.5", result.FilledQuantity)
	}
	orders := spot.Orders()
	if len(orders) != 1 || orders[0].Side != provider.SideBuy {
		t.Fatalf("orders = %+v", orders)
	}
}

func TestSpotMarketUnknownExchange(t *testing.T) {
	exec, _, _ := newTestExecutor(t)
	_, err := exec.SpotMarket(context.Background(), "kraken", "BTC/USDT", provider.SideBuy, 1)
	if err == nil || !strings.Contains(err.Error(), "kraken") {
		t.Fatalf("err = %v, want unknown exchange", err)
	}
}

func TestSpotMarketZeroAfterRounding(t *testing.T) {
	exec, spot, _ := newTestExecutor(t)
	spot.SetBook("BTC/USDT", provider.OrderBook{Asks: []pricing.Level{{Price: 100, Quantity: 1}}})
	if _, err := exec.SpotMarket(context.Background(), "binance", "BTC/USDT", provider.SideBuy, 0); err == nil {
		t.Fatal("expected error for zero amount")
	}
}

func TestHedgeMarketFailureNotRetried(t *testing.T) {
	exec, _, hedge := newTestExecutor(t)
	hedge.SetBook("BTC/USDT:USDT", provider.OrderBook{Bids: []pricing.Level{{Price: 101, Quantity: 5}}})
	hedge.FailOrders(errors.New("venue down"))

	_, err := exec.HedgeMarket(context.Background(), "okx", "BTC/USDT:USDT", provider.SideSell, 1)
	if err == nil {
		t.Fatal("expected placement error")
	}
	if got := len(hedge.Orders()); got != 0 {
		t.Fatalf("placements = %d, want 0 (no retry on order errors)", got)
	}
}

func TestPrepareHedgeShort(t *testing.T) {
	exec, _, _ := newTestExecutor(t)
	if err := exec.PrepareHedgeShort(context.Background(), "okx", "BTC/USDT:USDT"); err != nil {
		t.Fatalf("PrepareHedgeShort: %v", err)
	}
	if err := exec.PrepareHedgeShort(context.Background(), "kraken", "BTC/USDT:USDT"); err == nil {
		t.Fatal("expected error for unregistered hedge venue")
	}
}
