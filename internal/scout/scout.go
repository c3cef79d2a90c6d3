// Package scout watches the market snapshots for cross-venue spreads worth
// managing and promotes the best candidate to a live position.
package scout

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"octo-arb-bot/internal/alerts"
	"octo-arb-bot/internal/history"
	"octo-arb-bot/internal/market"
	"octo-arb-bot/internal/metrics"
	"octo-arb-bot/internal/pricing"
	"octo-arb-bot/internal/provider"
	"octo-arb-bot/internal/scan"
	"octo-arb-bot/internal/state"
)

type Config struct {
	Interval            time.Duration
	ErrorBackoff        time.Duration
	QuoteCurrency       string
	MinQuoteVolume      float64
	MinProfitRate       float64
	MaxProfitRate       float64
	BudgetLevels        []scan.BudgetLevel
	MaxActivePositions  int
	BlacklistDuration   time.Duration
	HistoricSpreadLimit float64
	CandleInterval      string
	CandleLimit         int
	SlowCandleInterval  string
	SlowCandleLimit     int
	SlowExchanges       []string
	DepthLimit          int
	Position            PositionDefaults
}

// PositionDefaults seed every position the scout creates.
type PositionDefaults struct {
	MaxSize        float64
	ControlSize    float64
	TxSize         float64
	MinOpenProfit  float64
	MinCloseProfit float64
}

// SnapshotSource yields the last published market snapshot per kind.
type SnapshotSource interface {
	Snapshot(ctx context.Context, kind provider.Kind) (*market.Snapshot, bool, error)
}

type Scout struct {
	store     state.Store
	registry  *provider.Registry
	snapshots SnapshotSource
	notifier  alerts.Notifier
	recorder  *history.Writer
	cfg       Config
	launch    func(state.Position)
	log       *zap.Logger
	metrics   *metrics.Metrics
	now       func() time.Time
}

// New builds a scout. launch is invoked once per created position and must
// not block; nil is allowed for scan-only use.
func New(store state.Store, registry *provider.Registry, snapshots SnapshotSource, notifier alerts.Notifier, recorder *history.Writer, cfg Config, launch func(state.Position), log *zap.Logger, m *metrics.Metrics) *Scout {
	if m == nil {
		m = metrics.NewNoop()
	}
	if launch == nil {
		launch = func(state.Position) {}
	}
	return &Scout{
		store:     store,
		registry:  registry,
		snapshots: snapshots,
		notifier:  notifier,
		recorder:  recorder,
		cfg:       cfg,
		launch:    launch,
		log:       log,
		metrics:   m,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Run cycles until the context is cancelled.
func (s *Scout) Run(ctx context.Context) error {
	s.log.Info("scout started")
	for {
		if _, err := s.Cycle(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			s.log.Warn("scout cycle failed", zap.Error(err))
			if !sleep(ctx, s.cfg.ErrorBackoff) {
				return nil
			}
			continue
		}
		if !sleep(ctx, s.cfg.Interval) {
			return nil
		}
	}
}

// Cycle runs one scan pass and creates at most one position. It reports
// whether a position was created.
func (s *Scout) Cycle(ctx context.Context) (bool, error) {
	s.metrics.ScansRun.Inc()

	active, err := s.store.ActivePositions(ctx)
	if err != nil {
		return false, err
	}
	if len(active) >= s.cfg.MaxActivePositions {
		return false, nil
	}
	managed := make(map[string]bool, len(active))
	for _, pos := range active {
		managed[pos.Ticker] = true
	}

	spotSnap, ok, err := s.snapshots.Snapshot(ctx, provider.KindSpot)
	if err != nil || !ok {
		return false, err
	}
	swapSnap, ok, err := s.snapshots.Snapshot(ctx, provider.KindSwap)
	if err != nil || !ok {
		return false, err
	}

	candidates := scan.SpotOpportunities(spotSnap, swapSnap, scan.SpotParams{
		QuoteCurrency:  s.cfg.QuoteCurrency,
		AllowFrom:      s.registry.SpotExchanges(),
		AllowTo:        s.registry.HedgeExchanges(),
		MinProfitRate:  s.cfg.MinProfitRate,
		MaxProfitRate:  s.cfg.MaxProfitRate,
		MinQuoteVolume: s.cfg.MinQuoteVolume,
		RequireHedge:   true,
	})
	if len(candidates) > 0 {
		s.metrics.OpportunitiesFound.Inc()
	}
	summary := history.ScanSummary{Time: s.now(), Candidates: len(candidates), Active: len(active)}

	for _, candidate := range candidates {
		if managed[candidate.Symbol] {
			continue
		}
		blocked, err := s.store.Blacklisted(ctx, candidate.Symbol, candidate.From.Exchange, candidate.To.Exchange, s.now())
		if err != nil {
			return false, err
		}
		if blocked {
			continue
		}
		created, err := s.vet(ctx, candidate)
		if err != nil {
			s.log.Warn("candidate vetting failed",
				zap.String("symbol", candidate.Symbol), zap.Error(err))
			continue
		}
		if created {
			summary.Created = 1
			s.recorder.EnqueueScan(summary)
			return true, nil
		}
	}
	s.recorder.EnqueueScan(summary)
	return false, nil
}

// vet runs the liquidity and history checks for one candidate and creates
// the position when both pass.
func (s *Scout) vet(ctx context.Context, candidate scan.SpotOpportunity) (bool, error) {
	spotClient, ok := s.registry.Spot(candidate.From.Exchange)
	if !ok {
		return false, fmt.Errorf("no spot venue registered for %s", candidate.From.Exchange)
	}
	hedgeClient, ok := s.registry.Hedge(candidate.To.Exchange)
	if !ok {
		return false, fmt.Errorf("no hedge venue registered for %s", candidate.To.Exchange)
	}
	contract := candidate.Symbol + ":" + s.cfg.QuoteCurrency

	spotBook, err := spotClient.FetchOrderBook(ctx, candidate.Symbol, s.cfg.DepthLimit)
	if err != nil {
		return false, fmt.Errorf("spot order book: %w", err)
	}
	hedgeBook, err := hedgeClient.FetchOrderBook(ctx, contract, s.cfg.DepthLimit)
	if err != nil {
		return false, fmt.Errorf("hedge order book: %w", err)
	}
	levels, clear := s.budgetLevels(spotBook, hedgeBook)
	candidate.Budgets = levels
	if !clear {
		s.log.Debug("budget levels not clear",
			zap.String("symbol", candidate.Symbol),
			zap.Any("levels", levels))
		return false, nil
	}

	wide, err := s.historicSpreadTooWide(ctx, spotClient, hedgeClient, candidate, contract)
	if err != nil {
		return false, err
	}
	if wide {
		until := s.now().Add(s.cfg.BlacklistDuration)
		if err := s.store.AddBlacklist(ctx, candidate.Symbol, candidate.From.Exchange, candidate.To.Exchange, until); err != nil {
			return false, err
		}
		s.metrics.BlacklistAdded.Inc()
		alerts.TickerBlacklisted(ctx, s.notifier, s.log, candidate.Symbol, "historic spread too wide", until)
		return false, nil
	}

	pos := state.Position{
		Ticker:         candidate.Symbol,
		SpotExchanges:  []string{candidate.From.Exchange},
		HedgeExchanges: []string{candidate.To.Exchange},
		Status:         state.PositionActive,
		MaxSize:        s.cfg.Position.MaxSize,
		ControlSize:    s.cfg.Position.ControlSize,
		TxSize:         s.cfg.Position.TxSize,
		MinOpenProfit:  s.cfg.Position.MinOpenProfit,
		MinCloseProfit: s.cfg.Position.MinCloseProfit,
		CreatedAt:      s.now(),
	}
	if err := s.store.CreatePosition(ctx, &pos); err != nil {
		return false, err
	}
	s.log.Info("position created",
		zap.String("ticker", pos.Ticker),
		zap.String("spot", candidate.From.Exchange),
		zap.String("hedge", candidate.To.Exchange),
		zap.Float64("scan_rate", candidate.ProfitRate),
		zap.Any("budgets", candidate.Budgets))
	s.launch(pos)
	return true, nil
}

// budgetLevels checks every configured budget level against both books and
// reports whether all of them are reachable with a net rate inside the
// band. The net rate takes a third of each book's own spread as an
// adverse-move haircut. The per-level results come back regardless of the
// verdict so the caller can record why a candidate was turned down.
func (s *Scout) budgetLevels(spotBook, hedgeBook provider.OrderBook) ([]scan.BudgetResult, bool) {
	spotSpread := bookSpread(spotBook)
	hedgeSpread := bookSpread(hedgeBook)
	haircut := spotSpread/3 + hedgeSpread/3

	results := make([]scan.BudgetResult, 0, len(s.cfg.BudgetLevels))
	clear := true
	for _, level := range s.cfg.BudgetLevels {
		result := scan.BudgetResult{Budget: level.Budget}
		spotAvg, reached := pricing.AvgExecutionPrice(spotBook.Asks, level.Budget)
		if reached && spotAvg > 0 {
			qty := level.Budget / spotAvg
			hedgeAvg, hedged := pricing.AvgPriceForQuantity(hedgeBook.Bids, qty)
			if hedged && hedgeAvg > 0 {
				result.Reached = true
				result.AvgPrice = spotAvg
				result.ProfitRate = hedgeAvg/spotAvg - 1 - haircut
				result.Profit = result.ProfitRate * level.Budget
			}
		}
		if !result.Reached || result.ProfitRate < level.MinProfitRate || result.ProfitRate > s.cfg.MaxProfitRate {
			clear = false
		}
		results = append(results, result)
	}
	return results, clear
}

func bookSpread(book provider.OrderBook) float64 {
	if len(book.Asks) == 0 || len(book.Bids) == 0 {
		return 0
	}
	return math.Abs(pricing.SpreadRate(book.Bids[0].Price, book.Asks[0].Price))
}

// historicSpreadTooWide compares candle lows on both venues over the
// lookback window. The mean is signed: a hedge that trades below spot
// (backwardation) pulls the average down instead of widening it, since
// entering there only helps convergence. A persistently wide positive
// spread means the venues never converge and the candidate would be
// stuck open.
func (s *Scout) historicSpreadTooWide(ctx context.Context, spotClient, hedgeClient provider.Client, candidate scan.SpotOpportunity, contract string) (bool, error) {
	spotInterval, spotLimit := s.candleParams(candidate.From.Exchange)
	hedgeInterval, hedgeLimit := s.candleParams(candidate.To.Exchange)

	spotCandles, err := spotClient.FetchCandles(ctx, candidate.Symbol, spotInterval, spotLimit)
	if err != nil {
		return false, fmt.Errorf("spot candles: %w", err)
	}
	hedgeCandles, err := hedgeClient.FetchCandles(ctx, contract, hedgeInterval, hedgeLimit)
	if err != nil {
		return false, fmt.Errorf("hedge candles: %w", err)
	}

	hedgeByTime := make(map[int64]provider.Candle, len(hedgeCandles))
	for _, c := range hedgeCandles {
		hedgeByTime[c.OpenTimeMS] = c
	}

	var sum float64
	var n int
	for _, spot := range spotCandles {
		hedge, ok := hedgeByTime[spot.OpenTimeMS]
		if !ok || spot.Low <= 0 {
			continue
		}
		sum += pricing.SpreadRate(spot.Low, hedge.Low)
		n++
	}
	if n == 0 {
		return false, nil
	}
	return sum/float64(n) > s.cfg.HistoricSpreadLimit, nil
}

// candleParams picks the lookback granularity; venues with strict rate
// limits get the coarser slow profile.
func (s *Scout) candleParams(exchange string) (string, int) {
	for _, slow := range s.cfg.SlowExchanges {
		if slow == exchange {
			return s.cfg.SlowCandleInterval, s.cfg.SlowCandleLimit
		}
	}
	return s.cfg.CandleInterval, s.cfg.CandleLimit
}

func sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
