// Package app wires the configured components together and supervises the
// long-running loops: market refresh, the scout, and one engine per
// managed position.
package app

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"octo-arb-bot/internal/alerts"
	"octo-arb-bot/internal/cache"
	"octo-arb-bot/internal/config"
	"octo-arb-bot/internal/engine"
	"octo-arb-bot/internal/exec"
	"octo-arb-bot/internal/feed"
	"octo-arb-bot/internal/history"
	"octo-arb-bot/internal/logging"
	"octo-arb-bot/internal/market"
	"octo-arb-bot/internal/metrics"
	"octo-arb-bot/internal/provider"
	"octo-arb-bot/internal/scan"
	"octo-arb-bot/internal/scout"
	"octo-arb-bot/internal/state"
	"octo-arb-bot/internal/state/sqlite"
)

type App struct {
	cfg       *config.Config
	log       *zap.Logger
	cache     cache.Cache
	store     *sqlite.Store
	registry  *provider.Registry
	refresher *market.Refresher
	executor  *exec.Executor
	metrics   *metrics.Metrics
	handler   http.Handler
	notifier  alerts.Notifier
	history   *history.Writer
	feed      *feed.Client
	scout     *scout.Scout
	engineCfg engine.Config

	mu      sync.Mutex
	runCtx  context.Context
	engines map[int64]struct{}
	wg      sync.WaitGroup
}

// New assembles an app from config. The registry carries the venue
// adapters; the caller registers them before handing it over.
func New(cfg *config.Config, registry *provider.Registry, log *zap.Logger) (*App, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.State.SQLitePath), 0o755); err != nil {
		return nil, err
	}
	store, err := sqlite.New(cfg.State.SQLitePath)
	if err != nil {
		return nil, err
	}

	var c cache.Cache
	if cfg.Cache.Backend == "redis" {
		c = cache.NewRedis(cfg.Cache.Addr, cfg.Cache.Password, cfg.Cache.DB)
	} else {
		c = cache.NewMemory()
	}

	var m *metrics.Metrics
	var handler http.Handler
	if cfg.Metrics.Enabled {
		prom := metrics.NewPrometheus()
		m = prom.Metrics
		handler = prom.Handler()
	} else {
		m = metrics.NewNoop()
	}

	historyWriter, err := history.New(cfg.History, log)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	sources := make(map[string]provider.Client)
	for _, name := range registry.SpotExchanges() {
		if client, ok := registry.Spot(name); ok {
			sources[name] = client
		}
	}
	for _, name := range registry.HedgeExchanges() {
		if _, seen := sources[name]; seen {
			continue
		}
		if client, ok := registry.Hedge(name); ok {
			sources[name] = client
		}
	}
	kinds := make([]provider.Kind, 0, len(cfg.Market.Kinds))
	for _, kind := range cfg.Market.Kinds {
		kinds = append(kinds, provider.Kind(kind))
	}
	refresher := market.NewRefresher(sources, kinds, c, cfg.Cache.TTL, log)
	executor := exec.New(registry, log, m)
	notifier := alerts.NewTelegram(cfg.Telegram, log)

	var feedClient *feed.Client
	if cfg.Feed.URL != "" {
		feedClient = feed.New(feed.Config{
			URL:            cfg.Feed.URL,
			Exchange:       cfg.Feed.Exchange,
			Kind:           provider.Kind(cfg.Feed.Kind),
			ReconnectDelay: cfg.Feed.ReconnectDelay,
			PingInterval:   cfg.Feed.PingInterval,
		}, refresher, log)
	}

	app := &App{
		cfg:       cfg,
		log:       log,
		cache:     c,
		store:     store,
		registry:  registry,
		refresher: refresher,
		executor:  executor,
		metrics:   m,
		handler:   handler,
		notifier:  notifier,
		history:   historyWriter,
		feed:      feedClient,
		engineCfg: engine.Config{
			TickInterval:  cfg.Engine.TickInterval,
			ErrorBackoff:  cfg.Engine.ErrorBackoff,
			DepthLimit:    cfg.Engine.DepthLimit,
			MaxProfitRate: cfg.Engine.MaxProfitRate,
		},
		engines: make(map[int64]struct{}),
	}
	app.scout = scout.New(store, registry, refresher, notifier, historyWriter, scoutConfig(cfg), app.launchEngine, log, m)
	return app, nil
}

func scoutConfig(cfg *config.Config) scout.Config {
	levels := make([]scan.BudgetLevel, 0, len(cfg.Scout.BudgetLevels))
	for _, level := range cfg.Scout.BudgetLevels {
		levels = append(levels, scan.BudgetLevel{Budget: level.Budget, MinProfitRate: level.MinProfitRate})
	}
	return scout.Config{
		Interval:            cfg.Scout.Interval,
		ErrorBackoff:        cfg.Scout.ErrorBackoff,
		QuoteCurrency:       cfg.Scan.QuoteCurrency,
		MinQuoteVolume:      cfg.Scout.MinQuoteVolume,
		MinProfitRate:       cfg.Scout.MinProfitRate,
		MaxProfitRate:       cfg.Scout.MaxProfitRate,
		BudgetLevels:        levels,
		MaxActivePositions:  cfg.Scout.MaxActivePositions,
		BlacklistDuration:   cfg.Scout.BlacklistDuration,
		HistoricSpreadLimit: cfg.Scout.HistoricSpreadLimit,
		CandleInterval:      cfg.Scout.CandleInterval,
		CandleLimit:         cfg.Scout.CandleLimit,
		SlowCandleInterval:  cfg.Scout.SlowCandleInterval,
		SlowCandleLimit:     cfg.Scout.SlowCandleLimit,
		SlowExchanges:       cfg.Scout.SlowExchanges,
		DepthLimit:          cfg.Scout.DepthLimit,
		Position: scout.PositionDefaults{
			MaxSize:        cfg.Scout.Position.MaxSize,
			ControlSize:    cfg.Scout.Position.ControlSize,
			TxSize:         cfg.Scout.Position.TxSize,
			MinOpenProfit:  cfg.Scout.Position.MinOpenProfit,
			MinCloseProfit: cfg.Scout.Position.MinCloseProfit,
		},
	}
}

// Run drives everything until the context is cancelled, then drains.
func (a *App) Run(ctx context.Context) error {
	defer a.close()

	a.mu.Lock()
	a.runCtx = ctx
	a.mu.Unlock()

	a.history.Start(ctx)

	// one synchronous refresh+rebuild so the scout never starts blind
	a.refresher.RefreshAll(ctx)
	if err := a.refresher.Rebuild(ctx); err != nil {
		a.log.Warn("initial rebuild failed", zap.Error(err))
	}

	if err := a.resumePositions(ctx); err != nil {
		return err
	}

	a.spawn(func() { a.refreshLoop(ctx) })
	a.spawn(func() { a.rebuildLoop(ctx) })
	a.spawn(func() {
		if err := a.scout.Run(ctx); err != nil {
			a.log.Warn("scout exited", zap.Error(err))
		}
	})
	if a.feed != nil {
		a.spawn(func() {
			if err := a.feed.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				a.log.Warn("feed exited", zap.Error(err))
			}
		})
	}
	if a.handler != nil {
		a.spawn(func() { a.serveMetrics(ctx) })
	}

	<-ctx.Done()
	a.wg.Wait()
	return nil
}

// resumePositions restarts an engine for every position that was active
// at the last shutdown.
func (a *App) resumePositions(ctx context.Context) error {
	active, err := a.store.ActivePositions(ctx)
	if err != nil {
		return err
	}
	for _, pos := range active {
		a.log.Info("resuming position", zap.String("ticker", pos.Ticker), zap.Int64("position_id", pos.ID))
		a.launchEngineCtx(ctx, pos)
	}
	return nil
}

// launchEngine is the scout's callback; engines run on the app context.
func (a *App) launchEngine(pos state.Position) {
	a.mu.Lock()
	ctx := a.runCtx
	a.mu.Unlock()
	if ctx == nil {
		ctx = context.Background()
	}
	a.launchEngineCtx(ctx, pos)
}

func (a *App) launchEngineCtx(ctx context.Context, pos state.Position) {
	a.mu.Lock()
	if _, running := a.engines[pos.ID]; running {
		a.mu.Unlock()
		return
	}
	a.engines[pos.ID] = struct{}{}
	a.mu.Unlock()

	eng := engine.New(pos.ID, a.store, a.registry, a.executor, a.refresher, a.notifier, a.history, a.engineCfg,
		logging.ForPosition(a.log, pos.Ticker, pos.ID), a.metrics)
	a.spawn(func() {
		defer func() {
			a.mu.Lock()
			delete(a.engines, pos.ID)
			a.mu.Unlock()
		}()
		if err := eng.Run(ctx); err != nil {
			a.log.Warn("engine exited", zap.String("ticker", pos.Ticker), zap.Error(err))
		}
	})
}

func (a *App) refreshLoop(ctx context.Context) {
	ticker := time.NewTicker(a.cfg.Market.RefreshInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.refresher.RefreshAll(ctx)
		}
	}
}

func (a *App) rebuildLoop(ctx context.Context) {
	ticker := time.NewTicker(a.cfg.Market.RebuildInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := a.refresher.Rebuild(ctx); err != nil {
				a.log.Warn("rebuild failed", zap.Error(err))
			}
		}
	}
}

func (a *App) serveMetrics(ctx context.Context) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", a.handler)
	server := &http.Server{Addr: a.cfg.Metrics.Listen, Handler: mux}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		a.log.Warn("metrics server exited", zap.Error(err))
	}
}

func (a *App) spawn(fn func()) {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		fn()
	}()
}

func (a *App) close() {
	if err := a.store.Close(); err != nil {
		a.log.Warn("store close failed", zap.Error(err))
	}
	if err := a.cache.Close(); err != nil {
		a.log.Warn("cache close failed", zap.Error(err))
	}
	if err := a.history.Close(); err != nil {
		a.log.Warn("history close failed", zap.Error(err))
	}
}
