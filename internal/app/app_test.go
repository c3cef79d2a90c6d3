package app

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"

	"octo-arb-bot/internal/config"
	"octo-arb-bot/internal/pricing"
	"octo-arb-bot/internal/provider"
	"octo-arb-bot/internal/provider/paper"
	"octo-arb-bot/internal/state"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Cache: config.CacheConfig{Backend: "memory", TTL: time.Minute},
		State: config.StateConfig{SQLitePath: filepath.Join(t.TempDir(), "bot.db")},
		Market: config.MarketConfig{
			Kinds:           []string{"spot", "swap"},
			RefreshInterval: 10 * time.Millisecond,
			RebuildInterval: 10 * time.Millisecond,
		},
		Scan: config.ScanConfig{QuoteCurrency: "USDT", MinProfitRate: 0.012, MaxProfitRate: 0.3},
		Scout: config.ScoutConfig{
			Interval:            10 * time.Millisecond,
			ErrorBackoff:        10 * time.Millisecond,
			MinQuoteVolume:      100000,
			MinProfitRate:       0.008,
			MaxProfitRate:       0.05,
			BudgetLevels:        []config.BudgetLevelConfig{{Budget: 100, MinProfitRate: 0.0085}},
			MaxActivePositions:  19,
			BlacklistDuration:   3 * time.Hour,
			HistoricSpreadLimit: 0.006,
			CandleInterval:      "1m",
			CandleLimit:         60,
			DepthLimit:          20,
			Position:            config.PositionDefaults{MaxSize: 1000, ControlSize: 100, TxSize: 25, MinOpenProfit: 0.008, MinCloseProfit: 0.005},
		},
		Engine: config.EngineConfig{
			TickInterval:  10 * time.Millisecond,
			ErrorBackoff:  10 * time.Millisecond,
			DepthLimit:    20,
			MaxProfitRate: 0.05,
		},
	}
}

func testRegistry() *provider.Registry {
	spot := paper.New(0.001)
	hedge := paper.New(0.0006)
	spot.SetMarket(provider.KindSpot, provider.Market{Symbol: "BTC/USDT", Base: "BTC", Quote: "USDT", Kind: provider.KindSpot, Active: true})
	spot.SetTicker(provider.KindSpot, provider.TickerPrice{Symbol: "BTC/USDT", Last: f(100)})
	spot.SetBook("BTC/USDT", provider.OrderBook{
		Asks: []pricing.Level{{Price: 100, Quantity: 10}},
		Bids: []pricing.Level{{Price: 99.9, Quantity: 10}},
	})
	registry := provider.NewRegistry()
	registry.RegisterSpot("paper", spot, 0.001)
	registry.RegisterHedge("paperperp", hedge, 0.0006)
	return registry
}

func f(v float64) *float64 { return &v }

func TestNewWiresComponents(t *testing.T) {
	a, err := New(testConfig(t), testRegistry(), zap.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.close()
	if a.store == nil || a.cache == nil || a.refresher == nil || a.scout == nil || a.executor == nil {
		t.Fatal("missing component after New")
	}
	if a.handler != nil {
		t.Fatal("metrics handler should be nil when disabled")
	}
	if a.history != nil {
		t.Fatal("history writer should be nil when disabled")
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	a, err := New(testConfig(t), testRegistry(), zap.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not shut down")
	}
}

func TestRunResumesActivePositions(t *testing.T) {
	cfg := testConfig(t)
	a, err := New(cfg, testRegistry(), zap.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	pos := state.Position{
		Ticker:         "BTC/USDT",
		SpotExchanges:  []string{"paper"},
		HedgeExchanges: []string{"paperperp"},
		Status:         state.PositionActive,
		MaxSize:        1000,
		TxSize:         25,
		MinOpenProfit:  0.008,
		MinCloseProfit: 0.005,
		CreatedAt:      time.Now().UTC(),
	}
	if err := a.store.CreatePosition(context.Background(), &pos); err != nil {
		t.Fatalf("seed position: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	deadline := time.After(2 * time.Second)
	for {
		a.mu.Lock()
		_, running := a.engines[pos.ID]
		a.mu.Unlock()
		if running {
			break
		}
		select {
		case <-deadline:
			cancel()
			t.Fatal("engine for active position never started")
		case <-time.After(10 * time.Millisecond):
		}
	}
	cancel()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not shut down")
	}
}

func TestLaunchEngineDeduplicates(t *testing.T) {
	a, err := New(testConfig(t), testRegistry(), zap.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	a.mu.Lock()
	a.runCtx = ctx
	a.mu.Unlock()

	pos := state.Position{Ticker: "ETH/USDT", Status: state.PositionActive, CreatedAt: time.Now().UTC()}
	if err := a.store.CreatePosition(context.Background(), &pos); err != nil {
		t.Fatalf("seed position: %v", err)
	}
	a.launchEngine(pos)
	a.launchEngine(pos)

	a.mu.Lock()
	n := len(a.engines)
	a.mu.Unlock()
	if n != 1 {
		t.Fatalf("engines = %d, want 1", n)
	}
}
