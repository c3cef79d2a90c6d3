package market

import (
	"context"
	"testing"
	"time"

	"octo-arb-bot/internal/cache"
	"octo-arb-bot/internal/provider"
	"octo-arb-bot/internal/provider/paper"

	"go.uber.org/zap"
)

func TestRefresherPublishesSnapshot(t *testing.T) {
	venue := paper.New(0.001)
	venue.SetMarket(provider.KindSpot, provider.Market{Symbol: "BTC/USDT", Base: "BTC", Quote: "USDT", Kind: provider.KindSpot, Active: true})
	venue.SetTicker(provider.KindSpot, provider.TickerPrice{Symbol: "BTC/USDT", Last: floatPtr(100), BaseVolume: floatPtr(10)})

	mem := cache.NewMemory()
	r := NewRefresher(map[string]provider.Client{"alpha": venue}, []provider.Kind{provider.KindSpot}, mem, 5*time.Minute, zap.NewNop())

	ctx := context.Background()
	r.RefreshAll(ctx)
	if err := r.Rebuild(ctx); err != nil {
		t.Fatalf("rebuild failed: %v", err)
	}
	snap, ok, err := r.Snapshot(ctx, provider.KindSpot)
	if err != nil || !ok {
		t.Fatalf("expected published snapshot (ok=%v err=%v)", ok, err)
	}
	tick, ok := snap.Tickers["BTC/USDT"]
	if !ok || tick.BestExchange != "alpha" || tick.Price != 100 {
		t.Fatalf("unexpected snapshot ticker: %+v (ok=%v)", tick, ok)
	}
}

func TestRefresherLiveOverlay(t *testing.T) {
	venue := paper.New(0.001)
	venue.SetMarket(provider.KindSpot, provider.Market{Symbol: "BTC/USDT", Base: "BTC", Quote: "USDT", Kind: provider.KindSpot, Active: true})
	venue.SetTicker(provider.KindSpot, provider.TickerPrice{Symbol: "BTC/USDT", Last: floatPtr(100), BaseVolume: floatPtr(10)})

	mem := cache.NewMemory()
	r := NewRefresher(map[string]provider.Client{"alpha": venue}, []provider.Kind{provider.KindSpot}, mem, 5*time.Minute, zap.NewNop())

	ctx := context.Background()
	r.RefreshAll(ctx)
	r.ApplyTicker("alpha", provider.KindSpot, provider.TickerPrice{Symbol: "BTC/USDT", Last: floatPtr(105)})
	if err := r.Rebuild(ctx); err != nil {
		t.Fatalf("rebuild failed: %v", err)
	}
	snap, _, err := r.Snapshot(ctx, provider.KindSpot)
	if err != nil {
		t.Fatalf("snapshot read failed: %v", err)
	}
	if snap.Tickers["BTC/USDT"].Price != 105 {
		t.Fatalf("expected streamed price 105, got %f", snap.Tickers["BTC/USDT"].Price)
	}
}

func TestRefresherSkipsMissingFeeds(t *testing.T) {
	mem := cache.NewMemory()
	r := NewRefresher(map[string]provider.Client{"alpha": paper.New(0)}, []provider.Kind{provider.KindSpot}, mem, time.Minute, zap.NewNop())
	if err := r.Rebuild(context.Background()); err != nil {
		t.Fatalf("rebuild with no cached feeds should not fail: %v", err)
	}
	snap, ok, err := r.Snapshot(context.Background(), provider.KindSpot)
	if err != nil || !ok {
		t.Fatalf("expected an empty snapshot to be published (ok=%v err=%v)", ok, err)
	}
	if len(snap.Tickers) != 0 {
		t.Fatalf("expected empty snapshot, got %d tickers", len(snap.Tickers))
	}
}
