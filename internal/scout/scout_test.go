package scout

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"octo-arb-bot/internal/market"
	"octo-arb-bot/internal/metrics"
	"octo-arb-bot/internal/pricing"
	"octo-arb-bot/internal/provider"
	"octo-arb-bot/internal/provider/paper"
	"octo-arb-bot/internal/scan"
	"octo-arb-bot/internal/state"
	"octo-arb-bot/internal/state/sqlite"
)

type snapshotStub struct {
	snaps map[provider.Kind]*market.Snapshot
}

func (s *snapshotStub) Snapshot(_ context.Context, kind provider.Kind) (*market.Snapshot, bool, error) {
	snap, ok := s.snaps[kind]
	return snap, ok, nil
}

func f(v float64) *float64 { return &v }

type fixture struct {
	scout    *Scout
	store    *sqlite.Store
	spot     *paper.Venue
	hedge    *paper.Venue
	snaps    *snapshotStub
	launched []state.Position
}

func newFixture(t *testing.T, tweak func(*Config)) *fixture {
	t.Helper()
	store, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	spot := paper.New(0.001)
	hedge := paper.New(0.0006)
	registry := provider.NewRegistry()
	registry.RegisterSpot("gate", spot, 0.001)
	registry.RegisterHedge("okx", hedge, 0.0006)

	spot.SetBook("ABC/USDT", provider.OrderBook{
		Asks: []pricing.Level{{Price: 100, Quantity: 1000}},
		Bids: []pricing.Level{{Price: 99.8, Quantity: 1000}},
	})
	hedge.SetBook("ABC/USDT:USDT", provider.OrderBook{
		Asks: []pricing.Level{{Price: 102.2, Quantity: 1000}},
		Bids: []pricing.Level{{Price: 102, Quantity: 1000}},
	})
	candles := []provider.Candle{
		{OpenTimeMS: 1000, Low: 100},
		{OpenTimeMS: 2000, Low: 101},
	}
	spot.SetCandles("ABC/USDT", candles)
	hedge.SetCandles("ABC/USDT:USDT", candles)

	snaps := &snapshotStub{snaps: map[provider.Kind]*market.Snapshot{
		provider.KindSpot: {
			Kind: provider.KindSpot,
			Tickers: map[string]market.Ticker{
				"ABC/USDT": {
					Symbol:        "ABC/USDT",
					QuoteCurrency: "USDT",
					// okx is hedge-only: it quotes the perp below but not the spot pair
					Exchanges: map[string]market.Quote{
						"gate": {Exchange: "gate", Ask: f(100), Last: f(100), QuoteVolume: f(200000)},
					},
				},
			},
		},
		provider.KindSwap: {
			Kind: provider.KindSwap,
			Tickers: map[string]market.Ticker{
				"ABC/USDT:USDT": {
					Symbol:        "ABC/USDT:USDT",
					QuoteCurrency: "USDT",
					Exchanges: map[string]market.Quote{
						"okx": {Exchange: "okx", Bid: f(102), Last: f(102), QuoteVolume: f(200000)},
					},
				},
			},
		},
	}}

	cfg := Config{
		Interval:            time.Millisecond,
		ErrorBackoff:        time.Millisecond,
		QuoteCurrency:       "USDT",
		MinQuoteVolume:      100000,
		MinProfitRate:       0.008,
		MaxProfitRate:       0.05,
		BudgetLevels:        []scan.BudgetLevel{{Budget: 100, MinProfitRate: 0.0085}},
		MaxActivePositions:  19,
		BlacklistDuration:   3 * time.Hour,
		HistoricSpreadLimit: 0.006,
		CandleInterval:      "1m",
		CandleLimit:         360,
		SlowCandleInterval:  "5m",
		SlowCandleLimit:     100,
		DepthLimit:          20,
		Position: PositionDefaults{
			MaxSize:        1000,
			ControlSize:    100,
			TxSize:         25,
			MinOpenProfit:  0.008,
			MinCloseProfit: 0.005,
		},
	}
	if tweak != nil {
		tweak(&cfg)
	}

	fx := &fixture{store: store, spot: spot, hedge: hedge, snaps: snaps}
	fx.scout = New(store, registry, snaps, nil, nil, cfg, func(pos state.Position) {
		fx.launched = append(fx.launched, pos)
	}, zap.NewNop(), metrics.NewNoop())
	return fx
}

func TestCycleCreatesPosition(t *testing.T) {
	fx := newFixture(t, nil)

	created, err := fx.scout.Cycle(context.Background())
	if err != nil {
		t.Fatalf("Cycle: %v", err)
	}
	if !created {
		t.Fatal("expected a position")
	}
	active, err := fx.store.ActivePositions(context.Background())
	if err != nil {
		t.Fatalf("active positions: %v", err)
	}
	if len(active) != 1 {
		t.Fatalf("active = %+v", active)
	}
	pos := active[0]
	if pos.Ticker != "ABC/USDT" {
		t.Fatalf("ticker = %s", pos.Ticker)
	}
	if len(pos.SpotExchanges) != 1 || pos.SpotExchanges[0] != "gate" {
		t.Fatalf("spot exchanges = %v", pos.SpotExchanges)
	}
	if len(pos.HedgeExchanges) != 1 || pos.HedgeExchanges[0] != "okx" {
		t.Fatalf("hedge exchanges = %v", pos.HedgeExchanges)
	}
	if pos.TxSize != 25 || pos.MaxSize != 1000 {
		t.Fatalf("sizes = %v/%v", pos.TxSize, pos.MaxSize)
	}
	if len(fx.launched) != 1 || fx.launched[0].ID != pos.ID {
		t.Fatalf("launched = %+v", fx.launched)
	}
}

func TestCycleRespectsActiveCap(t *testing.T) {
	fx := newFixture(t, func(cfg *Config) { cfg.MaxActivePositions = 1 })
	other := state.Position{Ticker: "XYZ/USDT", Status: state.PositionActive, CreatedAt: time.Now().UTC()}
	if err := fx.store.CreatePosition(context.Background(), &other); err != nil {
		t.Fatalf("seed position: %v", err)
	}

	created, err := fx.scout.Cycle(context.Background())
	if err != nil {
		t.Fatalf("Cycle: %v", err)
	}
	if created {
		t.Fatal("cap should block new positions")
	}
}

func TestCycleSkipsManagedTicker(t *testing.T) {
	fx := newFixture(t, nil)
	managed := state.Position{Ticker: "ABC/USDT", Status: state.PositionActive, CreatedAt: time.Now().UTC()}
	if err := fx.store.CreatePosition(context.Background(), &managed); err != nil {
		t.Fatalf("seed position: %v", err)
	}

	created, err := fx.scout.Cycle(context.Background())
	if err != nil {
		t.Fatalf("Cycle: %v", err)
	}
	if created {
		t.Fatal("managed ticker should be skipped")
	}
}

func TestCycleBlacklistsWideHistory(t *testing.T) {
	fx := newFixture(t, nil)
	// 2% low-to-low spread over the whole window, well past the limit
	fx.hedge.SetCandles("ABC/USDT:USDT", []provider.Candle{
		{OpenTimeMS: 1000, Low: 102},
		{OpenTimeMS: 2000, Low: 103.02},
	})

	created, err := fx.scout.Cycle(context.Background())
	if err != nil {
		t.Fatalf("Cycle: %v", err)
	}
	if created {
		t.Fatal("wide history should block creation")
	}
	blocked, err := fx.store.Blacklisted(context.Background(), "ABC/USDT", "gate", "okx", time.Now().UTC())
	if err != nil {
		t.Fatalf("blacklisted: %v", err)
	}
	if !blocked {
		t.Fatal("expected a blacklist entry")
	}

	// the blacklist now short-circuits before any vetting
	created, err = fx.scout.Cycle(context.Background())
	if err != nil {
		t.Fatalf("Cycle: %v", err)
	}
	if created {
		t.Fatal("blacklisted pair should be skipped")
	}
}

func TestCycleRequiresHedgeVolume(t *testing.T) {
	fx := newFixture(t, nil)
	perp := fx.snaps.snaps[provider.KindSwap].Tickers["ABC/USDT:USDT"]
	perp.Exchanges["okx"] = market.Quote{Exchange: "okx", Bid: f(102), Last: f(102), QuoteVolume: f(0)}

	created, err := fx.scout.Cycle(context.Background())
	if err != nil {
		t.Fatalf("Cycle: %v", err)
	}
	if created {
		t.Fatal("illiquid hedge leg should block creation")
	}
}

func TestCycleAllowsBackwardation(t *testing.T) {
	fx := newFixture(t, nil)
	// hedge lows 2% under spot lows: the signed mean is negative, which is
	// a convergence tailwind rather than a stuck spread
	fx.hedge.SetCandles("ABC/USDT:USDT", []provider.Candle{
		{OpenTimeMS: 1000, Low: 98},
		{OpenTimeMS: 2000, Low: 98.98},
	})

	created, err := fx.scout.Cycle(context.Background())
	if err != nil {
		t.Fatalf("Cycle: %v", err)
	}
	if !created {
		t.Fatal("backwardation should not block creation")
	}
	blocked, err := fx.store.Blacklisted(context.Background(), "ABC/USDT", "gate", "okx", time.Now().UTC())
	if err != nil {
		t.Fatalf("blacklisted: %v", err)
	}
	if blocked {
		t.Fatal("backwardation must not be blacklisted")
	}
}

func TestCycleRequiresBudgetDepth(t *testing.T) {
	fx := newFixture(t, nil)
	// 0.5 base units at 100 is 50 quote, below the 100 budget
	fx.spot.SetBook("ABC/USDT", provider.OrderBook{
		Asks: []pricing.Level{{Price: 100, Quantity: 0.5}},
		Bids: []pricing.Level{{Price: 99.8, Quantity: 0.5}},
	})

	created, err := fx.scout.Cycle(context.Background())
	if err != nil {
		t.Fatalf("Cycle: %v", err)
	}
	if created {
		t.Fatal("shallow book should block creation")
	}
}

func TestCycleRequiresNetInsideBand(t *testing.T) {
	// haircut pushes the thin spread under the budget floor
	fx := newFixture(t, func(cfg *Config) {
		cfg.BudgetLevels = []scan.BudgetLevel{{Budget: 100, MinProfitRate: 0.03}}
	})

	created, err := fx.scout.Cycle(context.Background())
	if err != nil {
		t.Fatalf("Cycle: %v", err)
	}
	if created {
		t.Fatal("net rate below budget floor should block creation")
	}
}

func TestBudgetLevelsReported(t *testing.T) {
	fx := newFixture(t, nil)
	spotBook := provider.OrderBook{
		Asks: []pricing.Level{{Price: 100, Quantity: 1000}},
		Bids: []pricing.Level{{Price: 99.8, Quantity: 1000}},
	}
	hedgeBook := provider.OrderBook{
		Asks: []pricing.Level{{Price: 102.2, Quantity: 1000}},
		Bids: []pricing.Level{{Price: 102, Quantity: 1000}},
	}

	levels, clear := fx.scout.budgetLevels(spotBook, hedgeBook)
	if !clear {
		t.Fatal("deep books inside the band should clear")
	}
	if len(levels) != 1 {
		t.Fatalf("levels = %+v", levels)
	}
	lvl := levels[0]
	if !lvl.Reached || lvl.Budget != 100 || lvl.AvgPrice != 100 {
		t.Fatalf("level = %+v", lvl)
	}
	// 2% gross minus a third of each book's own spread
	if lvl.ProfitRate < 0.0185 || lvl.ProfitRate > 0.0188 {
		t.Fatalf("profit rate = %f", lvl.ProfitRate)
	}
	if diff := lvl.Profit - lvl.ProfitRate*lvl.Budget; diff > 1e-12 || diff < -1e-12 {
		t.Fatalf("profit = %f", lvl.Profit)
	}

	levels, clear = fx.scout.budgetLevels(provider.OrderBook{
		Asks: []pricing.Level{{Price: 100, Quantity: 0.5}},
		Bids: []pricing.Level{{Price: 99.8, Quantity: 0.5}},
	}, hedgeBook)
	if clear {
		t.Fatal("shallow book must not clear")
	}
	if len(levels) != 1 || levels[0].Reached || levels[0].Profit != 0 {
		t.Fatalf("levels = %+v", levels)
	}
}
