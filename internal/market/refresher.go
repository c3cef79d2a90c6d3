package market

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"octo-arb-bot/internal/cache"
	"octo-arb-bot/internal/provider"

	"go.uber.org/zap"
)

// Refresher polls raw market/ticker feeds per exchange per instrument kind,
// caches them, and publishes rebuilt canonical snapshots. Refresh, Rebuild
// and ApplyTicker are safe to invoke concurrently and are idempotent per
// cycle.
type Refresher struct {
	sources map[string]provider.Client
	kinds   []provider.Kind
	cache   cache.Cache
	ttl     time.Duration
	log     *zap.Logger

	mu   sync.Mutex
	live map[string]map[string]provider.TickerPrice
}

func NewRefresher(sources map[string]provider.Client, kinds []provider.Kind, c cache.Cache, ttl time.Duration, log *zap.Logger) *Refresher {
	return &Refresher{
		sources: sources,
		kinds:   kinds,
		cache:   c,
		ttl:     ttl,
		log:     log,
		live:    make(map[string]map[string]provider.TickerPrice),
	}
}

// RefreshAll polls every registered exchange. A failing exchange is logged
// and skipped for this cycle; it never aborts the others.
func (r *Refresher) RefreshAll(ctx context.Context) {
	for _, exchange := range sortedSourceNames(r.sources) {
		if err := r.RefreshExchange(ctx, exchange); err != nil {
			r.log.Warn("exchange refresh failed", zap.String("exchange", exchange), zap.Error(err))
		}
	}
}

func (r *Refresher) RefreshExchange(ctx context.Context, exchange string) error {
	source, ok := r.sources[exchange]
	if !ok {
		return fmt.Errorf("unknown exchange %s", exchange)
	}
	for _, kind := range r.kinds {
		markets, err := source.LoadMarkets(ctx, kind)
		if err != nil {
			return fmt.Errorf("load %s markets: %w", kind, err)
		}
		prices, err := source.FetchTickers(ctx, kind)
		if err != nil {
			return fmt.Errorf("fetch %s tickers: %w", kind, err)
		}
		if err := r.cache.Set(ctx, RawMarketsKey(exchange, kind), markets, r.ttl); err != nil {
			return err
		}
		if err := r.cache.Set(ctx, RawPricesKey(exchange, kind), prices, r.ttl); err != nil {
			return err
		}
		r.log.Debug("exchange feed refreshed",
			zap.String("exchange", exchange),
			zap.String("kind", string(kind)),
			zap.Int("markets", len(markets)),
			zap.Int("tickers", len(prices)),
		)
	}
	return nil
}

// ApplyTicker overlays a streamed ticker update on top of the polled feed
// until the next rebuild.
func (r *Refresher) ApplyTicker(exchange string, kind provider.Kind, tick provider.TickerPrice) {
	if tick.Symbol == "" {
		return
	}
	key := exchange + "|" + string(kind)
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.live[key] == nil {
		r.live[key] = make(map[string]provider.TickerPrice)
	}
	r.live[key][tick.Symbol] = tick
}

// Rebuild reads the cached raw feeds for every exchange and kind, merges the
// live overlay, and publishes a full replacement snapshot per kind. Missing
// feeds are skipped, never fatal.
func (r *Refresher) Rebuild(ctx context.Context) error {
	for _, kind := range r.kinds {
		feeds := make([]Feed, 0, len(r.sources))
		for _, exchange := range sortedSourceNames(r.sources) {
			var markets map[string]provider.Market
			ok, err := r.cache.Get(ctx, RawMarketsKey(exchange, kind), &markets)
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
			var prices map[string]provider.TickerPrice
			ok, err = r.cache.Get(ctx, RawPricesKey(exchange, kind), &prices)
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
			r.overlayLive(exchange, kind, prices)
			feeds = append(feeds, Feed{Exchange: exchange, Markets: markets, Prices: prices})
		}
		snapshot := Build(kind, feeds, time.Now().UTC())
		if err := r.cache.Set(ctx, SnapshotKey(kind), snapshot, r.ttl); err != nil {
			return err
		}
		r.log.Debug("snapshot published", zap.String("kind", string(kind)), zap.Int("tickers", len(snapshot.Tickers)))
	}
	return nil
}

// Snapshot reads the last published snapshot for a kind.
func (r *Refresher) Snapshot(ctx context.Context, kind provider.Kind) (*Snapshot, bool, error) {
	return LoadSnapshot(ctx, r.cache, kind)
}

// LoadSnapshot reads a published snapshot from any cache.
func LoadSnapshot(ctx context.Context, c cache.Cache, kind provider.Kind) (*Snapshot, bool, error) {
	var snapshot Snapshot
	ok, err := c.Get(ctx, SnapshotKey(kind), &snapshot)
	if err != nil || !ok {
		return nil, ok, err
	}
	return &snapshot, true, nil
}

func (r *Refresher) overlayLive(exchange string, kind provider.Kind, prices map[string]provider.TickerPrice) {
	key := exchange + "|" + string(kind)
	r.mu.Lock()
	defer r.mu.Unlock()
	for symbol, live := range r.live[key] {
		base, ok := prices[symbol]
		if !ok {
			continue
		}
		if live.Bid != nil {
			base.Bid = live.Bid
		}
		if live.Ask != nil {
			base.Ask = live.Ask
		}
		if live.Last != nil {
			base.Last = live.Last
		}
		prices[symbol] = base
	}
}

func sortedSourceNames(sources map[string]provider.Client) []string {
	names := make([]string, 0, len(sources))
	for name := range sources {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
