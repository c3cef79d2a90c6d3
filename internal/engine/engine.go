// Package engine runs one delta-neutral position per managed ticker: long
// spot against an equal short on a derivatives venue, opened and closed in
// tranches as the cross-venue spread moves.
package engine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"go.uber.org/zap"

	"octo-arb-bot/internal/alerts"
	"octo-arb-bot/internal/exec"
	"octo-arb-bot/internal/history"
	"octo-arb-bot/internal/market"
	"octo-arb-bot/internal/metrics"
	"octo-arb-bot/internal/pricing"
	"octo-arb-bot/internal/provider"
	"octo-arb-bot/internal/state"
)

// qtyEpsilon is the quantity below which the spot and hedge legs are
// considered balanced. Venue precision rounding leaves residuals smaller
// than any tradable amount.
const qtyEpsilon = 1e-8

var errStopped = errors.New("position stopped")

type Config struct {
	TickInterval  time.Duration
	ErrorBackoff  time.Duration
	DepthLimit    int
	MaxProfitRate float64
}

// SnapshotSource yields the last published market snapshot per kind.
type SnapshotSource interface {
	Snapshot(ctx context.Context, kind provider.Kind) (*market.Snapshot, bool, error)
}

type Engine struct {
	positionID int64
	store      state.Store
	registry   *provider.Registry
	executor   *exec.Executor
	snapshots  SnapshotSource
	notifier   alerts.Notifier
	recorder   *history.Writer
	cfg        Config
	log        *zap.Logger
	metrics    *metrics.Metrics
	now        func() time.Time
}

func New(positionID int64, store state.Store, registry *provider.Registry, executor *exec.Executor, snapshots SnapshotSource, notifier alerts.Notifier, recorder *history.Writer, cfg Config, log *zap.Logger, m *metrics.Metrics) *Engine {
	if m == nil {
		m = metrics.NewNoop()
	}
	return &Engine{
		positionID: positionID,
		store:      store,
		registry:   registry,
		executor:   executor,
		snapshots:  snapshots,
		notifier:   notifier,
		recorder:   recorder,
		cfg:        cfg,
		log:        log,
		metrics:    m,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Run ticks until the context is cancelled or the position is stopped in
// the store. A tick that traded is followed immediately by another; errors
// back off without tearing the engine down.
func (e *Engine) Run(ctx context.Context) error {
	e.log.Info("engine started")
	for {
		acted, err := e.tick(ctx)
		switch {
		case errors.Is(err, errStopped):
			e.log.Info("engine stopped")
			return nil
		case ctx.Err() != nil:
			return nil
		case err != nil:
			e.metrics.TicksFailed.Inc()
			e.log.Warn("tick failed", zap.Error(err))
			if !sleep(ctx, e.cfg.ErrorBackoff) {
				return nil
			}
		case acted:
			// spread may still be there, go again
		default:
			if !sleep(ctx, e.cfg.TickInterval) {
				return nil
			}
		}
	}
}

// holdings is the FIFO-derived view of both legs plus the exchange pair
// the open inventory lives on.
type holdings struct {
	spotQty      float64
	spotAvgCost  float64
	hedgeQty     float64
	hedgeAvgCost float64
	spotExch     string
	hedgeExch    string
}

func (e *Engine) tick(ctx context.Context) (bool, error) {
	pos, ok, err := e.store.Position(ctx, e.positionID)
	if err != nil {
		return false, err
	}
	if !ok || pos.Status != state.PositionActive {
		return false, errStopped
	}

	txs, err := e.store.Transactions(ctx, pos.ID)
	if err != nil {
		return false, err
	}
	held, err := deriveHoldings(txs)
	if err != nil {
		return false, err
	}

	if diff := held.spotQty - held.hedgeQty; math.Abs(diff) > qtyEpsilon {
		return e.reconcile(ctx, pos, held, diff)
	}

	if held.spotQty > qtyEpsilon {
		acted, err := e.tryClose(ctx, pos, held)
		if err != nil || acted {
			return acted, err
		}
	}
	return e.tryOpen(ctx, pos, held)
}

// deriveHoldings replays the transaction ledger. The two legs are tracked
// as independent FIFO ledgers since a failed second leg desynchronizes
// their quantities.
func deriveHoldings(txs []state.Transaction) (holdings, error) {
	var spotLedger, hedgeLedger []pricing.LedgerEntry
	var held holdings
	for _, tx := range txs {
		side := pricing.SideOpen
		if tx.Side == state.TxClose {
			side = pricing.SideClose
		}
		if tx.SpotQuantity > 0 {
			spotLedger = append(spotLedger, pricing.LedgerEntry{
				Side: side, Quantity: tx.SpotQuantity, Cost: tx.SpotPrice, Time: tx.CreatedAt, Seq: tx.ID,
			})
		}
		if tx.HedgeQuantity > 0 {
			hedgeLedger = append(hedgeLedger, pricing.LedgerEntry{
				Side: side, Quantity: tx.HedgeQuantity, Cost: tx.HedgePrice, Time: tx.CreatedAt, Seq: tx.ID,
			})
		}
		if tx.Side == state.TxOpen {
			held.spotExch = tx.SpotExchange
			held.hedgeExch = tx.HedgeExchange
		}
	}
	var err error
	if held.spotAvgCost, held.spotQty, err = pricing.FIFOAverageCost(spotLedger); err != nil {
		return holdings{}, fmt.Errorf("spot ledger: %w", err)
	}
	if held.hedgeAvgCost, held.hedgeQty, err = pricing.FIFOAverageCost(hedgeLedger); err != nil {
		return holdings{}, fmt.Errorf("hedge ledger: %w", err)
	}
	return held, nil
}

// reconcile re-balances a one-sided position by adjusting the hedge leg to
// match the spot leg. The spot leg is never unwound automatically.
func (e *Engine) reconcile(ctx context.Context, pos state.Position, held holdings, diff float64) (bool, error) {
	e.metrics.OneSidedExposure.Inc()
	alerts.OneSidedExposure(ctx, e.notifier, e.log, pos.Ticker, held.spotQty, held.hedgeQty)

	hedgeExch := held.hedgeExch
	if hedgeExch == "" && len(pos.HedgeExchanges) > 0 {
		hedgeExch = pos.HedgeExchanges[0]
	}
	if hedgeExch == "" {
		return false, errors.New("no hedge exchange to reconcile against")
	}
	symbol := hedgeSymbol(pos.Ticker)

	side := provider.SideSell
	if diff < 0 {
		side = provider.SideBuy
	}
	result, err := e.executor.HedgeMarket(ctx, hedgeExch, symbol, side, math.Abs(diff))
	if err != nil {
		return false, fmt.Errorf("reconcile hedge leg: %w", err)
	}
	txSide := state.TxOpen
	if side == provider.SideBuy {
		txSide = state.TxClose
	}
	tx := &state.Transaction{
		PositionID:     pos.ID,
		Side:           txSide,
		HedgeExchange:  hedgeExch,
		HedgeCostPrice: held.hedgeAvgCost,
		HedgePrice:     result.AvgPrice,
		HedgeQuantity:  result.FilledQuantity,
		Fee:            result.Fee,
		CreatedAt:      e.now(),
	}
	if err := e.store.AppendTransaction(ctx, tx); err != nil {
		return false, err
	}
	e.log.Info("one-sided exposure reconciled",
		zap.String("side", string(side)),
		zap.Float64("quantity", result.FilledQuantity))
	return true, nil
}

func (e *Engine) tryClose(ctx context.Context, pos state.Position, held holdings) (bool, error) {
	if held.spotExch == "" || held.hedgeExch == "" {
		return false, errors.New("open inventory without a recorded exchange pair")
	}
	spotFee := e.registry.SpotFee(held.spotExch)
	hedgeFee := e.registry.HedgeFee(held.hedgeExch)

	closeQty := math.Min(held.spotQty, held.hedgeQty)
	if held.spotAvgCost > 0 {
		closeQty = math.Min(closeQty, pos.TxSize/held.spotAvgCost)
	}
	if closeQty <= qtyEpsilon {
		return false, nil
	}

	spotBook, hedgeBook, err := e.fetchBooks(ctx, pos, held.spotExch, held.hedgeExch)
	if err != nil {
		return false, err
	}
	exitSpot, okSpot := pricing.AvgPriceForQuantity(spotBook.Bids, closeQty)
	exitHedge, okHedge := pricing.AvgPriceForQuantity(hedgeBook.Asks, closeQty)
	if !okSpot || !okHedge {
		return false, nil
	}

	fees := spotFee*(held.spotAvgCost+exitSpot) + hedgeFee*(held.hedgeAvgCost+exitHedge)
	rate := ((exitSpot - held.spotAvgCost) + (held.hedgeAvgCost - exitHedge) - fees) / held.spotAvgCost
	if rate < pos.MinCloseProfit {
		return false, nil
	}

	spotResult, err := e.executor.SpotMarket(ctx, held.spotExch, pos.Ticker, provider.SideSell, closeQty)
	if err != nil {
		return false, err
	}
	hedgeResult, err := e.executor.HedgeMarket(ctx, held.hedgeExch, hedgeSymbol(pos.Ticker), provider.SideBuy, spotResult.FilledQuantity)
	tx := &state.Transaction{
		PositionID:     pos.ID,
		Side:           state.TxClose,
		SpotExchange:   held.spotExch,
		HedgeExchange:  held.hedgeExch,
		SpotCostPrice:  held.spotAvgCost,
		HedgeCostPrice: held.hedgeAvgCost,
		SpotPrice:      spotResult.AvgPrice,
		SpotQuantity:   spotResult.FilledQuantity,
		Fee:            spotResult.Fee,
		CreatedAt:      e.now(),
	}
	if err == nil {
		tx.HedgePrice = hedgeResult.AvgPrice
		tx.HedgeQuantity = hedgeResult.FilledQuantity
		tx.Fee += hedgeResult.Fee
	}
	if storeErr := e.store.AppendTransaction(ctx, tx); storeErr != nil {
		return false, storeErr
	}
	if err != nil {
		// spot leg is out, hedge buy failed; next tick reconciles
		return true, fmt.Errorf("close hedge leg: %w", err)
	}

	e.log.Info("tranche closed",
		zap.Float64("quantity", spotResult.FilledQuantity),
		zap.Float64("close_rate", rate))
	e.recorder.EnqueueTrade(history.ClosedTrade{
		Time:          tx.CreatedAt,
		Ticker:        pos.Ticker,
		SpotExchange:  held.spotExch,
		HedgeExchange: held.hedgeExch,
		SpotCost:      held.spotAvgCost,
		HedgeCost:     held.hedgeAvgCost,
		SpotPrice:     tx.SpotPrice,
		HedgePrice:    tx.HedgePrice,
		Quantity:      tx.SpotQuantity,
		Fee:           tx.Fee,
		Profit:        rate * held.spotAvgCost * tx.SpotQuantity,
	})
	if held.spotQty-spotResult.FilledQuantity <= qtyEpsilon {
		e.metrics.PositionsClosed.Inc()
		if txs, err := e.store.Transactions(ctx, pos.ID); err == nil {
			report := state.Summarize(txs)
			alerts.PositionClosed(ctx, e.notifier, e.log, pos.Ticker, report.RealizedProfit)
		}
	}
	return true, nil
}

func (e *Engine) tryOpen(ctx context.Context, pos state.Position, held holdings) (bool, error) {
	if held.spotQty*held.spotAvgCost+pos.TxSize > pos.MaxSize {
		return false, nil
	}

	spotExch, hedgeExch := held.spotExch, held.hedgeExch
	if spotExch == "" || hedgeExch == "" {
		var err error
		spotExch, hedgeExch, err = e.bestOpenPair(ctx, pos)
		if err != nil {
			return false, err
		}
		if spotExch == "" {
			return false, nil
		}
	}

	spotFee := e.registry.SpotFee(spotExch)
	hedgeFee := e.registry.HedgeFee(hedgeExch)

	if ok, err := e.balancesCover(ctx, pos, spotExch, hedgeExch); err != nil || !ok {
		return false, err
	}

	spotBook, hedgeBook, err := e.fetchBooks(ctx, pos, spotExch, hedgeExch)
	if err != nil {
		return false, err
	}
	spotAvg, reached := pricing.AvgExecutionPrice(spotBook.Asks, pos.TxSize)
	if !reached || spotAvg <= 0 {
		return false, nil
	}
	qty := pos.TxSize / spotAvg
	hedgeAvg, reached := pricing.AvgPriceForQuantity(hedgeBook.Bids, qty)
	if !reached || hedgeAvg <= 0 {
		return false, nil
	}

	gross := hedgeAvg/spotAvg - 1
	if gross > e.cfg.MaxProfitRate {
		// spreads this wide mean stale data, not free money
		e.log.Warn("open spread above sanity ceiling, skipping",
			zap.Float64("gross", gross), zap.String("spot", spotExch), zap.String("hedge", hedgeExch))
		return false, nil
	}
	net := gross - 2*(spotFee+hedgeFee)
	if net < pos.MinOpenProfit {
		return false, nil
	}

	firstOpen := held.hedgeQty <= qtyEpsilon
	if firstOpen {
		if err := e.executor.PrepareHedgeShort(ctx, hedgeExch, hedgeSymbol(pos.Ticker)); err != nil {
			return false, err
		}
	}

	spotResult, err := e.executor.SpotMarket(ctx, spotExch, pos.Ticker, provider.SideBuy, qty)
	if err != nil {
		return false, err
	}
	hedgeResult, err := e.executor.HedgeMarket(ctx, hedgeExch, hedgeSymbol(pos.Ticker), provider.SideSell, spotResult.FilledQuantity)
	tx := &state.Transaction{
		PositionID:    pos.ID,
		Side:          state.TxOpen,
		SpotExchange:  spotExch,
		HedgeExchange: hedgeExch,
		SpotCostPrice: spotResult.AvgPrice,
		SpotPrice:     spotResult.AvgPrice,
		SpotQuantity:  spotResult.FilledQuantity,
		Fee:           spotResult.Fee,
		CreatedAt:     e.now(),
	}
	if err == nil {
		tx.HedgeCostPrice = hedgeResult.AvgPrice
		tx.HedgePrice = hedgeResult.AvgPrice
		tx.HedgeQuantity = hedgeResult.FilledQuantity
		tx.Fee += hedgeResult.Fee
	}
	if storeErr := e.store.AppendTransaction(ctx, tx); storeErr != nil {
		return false, storeErr
	}
	if err != nil {
		// spot filled without its hedge; next tick shorts the difference
		return true, fmt.Errorf("open hedge leg: %w", err)
	}

	e.log.Info("tranche opened",
		zap.String("spot", spotExch),
		zap.String("hedge", hedgeExch),
		zap.Float64("quantity", spotResult.FilledQuantity),
		zap.Float64("net_rate", net))
	if firstOpen {
		e.metrics.PositionsOpened.Inc()
		alerts.PositionOpened(ctx, e.notifier, e.log, pos.Ticker, spotExch, hedgeExch, net)
	}
	return true, nil
}

// bestOpenPair ranks the configured exchange pairs by snapshot spread while
// the position is flat. Once inventory exists the recorded pair is reused.
func (e *Engine) bestOpenPair(ctx context.Context, pos state.Position) (string, string, error) {
	spotSnap, ok, err := e.snapshots.Snapshot(ctx, provider.KindSpot)
	if err != nil || !ok {
		return "", "", err
	}
	swapSnap, ok, err := e.snapshots.Snapshot(ctx, provider.KindSwap)
	if err != nil || !ok {
		return "", "", err
	}
	spotTicker, ok := spotSnap.Tickers[pos.Ticker]
	if !ok {
		return "", "", nil
	}
	swapTicker, ok := swapSnap.Tickers[hedgeSymbol(pos.Ticker)]
	if !ok {
		return "", "", nil
	}

	var bestSpot, bestHedge string
	best := math.Inf(-1)
	for _, spotExch := range pos.SpotExchanges {
		spotQuote, ok := spotTicker.Exchanges[spotExch]
		if !ok {
			continue
		}
		ask, ok := spotQuote.BuyPrice()
		if !ok || ask <= 0 {
			continue
		}
		for _, hedgeExch := range pos.HedgeExchanges {
			hedgeQuote, ok := swapTicker.Exchanges[hedgeExch]
			if !ok {
				continue
			}
			bid, ok := hedgeQuote.SellPrice()
			if !ok {
				continue
			}
			if rate := bid/ask - 1; rate > best {
				best = rate
				bestSpot, bestHedge = spotExch, hedgeExch
			}
		}
	}
	return bestSpot, bestHedge, nil
}

// balancesCover checks the quote-currency balance on both venues for one
// tranche. Insufficient balance is a quiet skip, not an error.
func (e *Engine) balancesCover(ctx context.Context, pos state.Position, spotExch, hedgeExch string) (bool, error) {
	quote := quoteCurrency(pos.Ticker)
	spotClient, ok := e.registry.Spot(spotExch)
	if !ok {
		return false, fmt.Errorf("no spot venue registered for %s", spotExch)
	}
	hedgeClient, ok := e.registry.Hedge(hedgeExch)
	if !ok {
		return false, fmt.Errorf("no hedge venue registered for %s", hedgeExch)
	}
	spotBal, err := spotClient.FetchBalance(ctx, provider.KindSpot)
	if err != nil {
		return false, err
	}
	hedgeBal, err := hedgeClient.FetchBalance(ctx, provider.KindSwap)
	if err != nil {
		return false, err
	}
	if spotBal.Free[quote] < pos.TxSize || hedgeBal.Free[quote] < pos.TxSize {
		e.log.Debug("insufficient balance for tranche",
			zap.Float64("spot_free", spotBal.Free[quote]),
			zap.Float64("hedge_free", hedgeBal.Free[quote]))
		return false, nil
	}
	return true, nil
}

func (e *Engine) fetchBooks(ctx context.Context, pos state.Position, spotExch, hedgeExch string) (provider.OrderBook, provider.OrderBook, error) {
	spotClient, ok := e.registry.Spot(spotExch)
	if !ok {
		return provider.OrderBook{}, provider.OrderBook{}, fmt.Errorf("no spot venue registered for %s", spotExch)
	}
	hedgeClient, ok := e.registry.Hedge(hedgeExch)
	if !ok {
		return provider.OrderBook{}, provider.OrderBook{}, fmt.Errorf("no hedge venue registered for %s", hedgeExch)
	}
	spotBook, err := spotClient.FetchOrderBook(ctx, pos.Ticker, e.cfg.DepthLimit)
	if err != nil {
		return provider.OrderBook{}, provider.OrderBook{}, fmt.Errorf("spot order book: %w", err)
	}
	hedgeBook, err := hedgeClient.FetchOrderBook(ctx, hedgeSymbol(pos.Ticker), e.cfg.DepthLimit)
	if err != nil {
		return provider.OrderBook{}, provider.OrderBook{}, fmt.Errorf("hedge order book: %w", err)
	}
	return spotBook, hedgeBook, nil
}

// hedgeSymbol maps a spot symbol to its linear contract on the hedge venue.
func hedgeSymbol(ticker string) string {
	return ticker + ":" + quoteCurrency(ticker)
}

func quoteCurrency(ticker string) string {
	if _, quote, ok := strings.Cut(ticker, "/"); ok {
		return quote
	}
	return ticker
}

func sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
