package exec

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"octo-arb-bot/internal/metrics"
	"octo-arb-bot/internal/provider"
)

const (
	retryAttempts = 5
	retryBackoff  = 200 * time.Millisecond
)

// Executor routes orders to the registered venues. Order placement is
// never retried blindly: a failed placement may still have reached the
// venue, so the caller decides how to reconcile.
type Executor struct {
	registry *provider.Registry
	log      *zap.Logger
	metrics  *metrics.Metrics
}

func New(registry *provider.Registry, log *zap.Logger, m *metrics.Metrics) *Executor {
	if m == nil {
		m = metrics.NewNoop()
	}
	return &Executor{registry: registry, log: log, metrics: m}
}

// SpotMarket places a market order on a spot venue, rounding the amount
// to the venue's precision first.
func (e *Executor) SpotMarket(ctx context.Context, exchange, symbol string, side provider.Side, amount float64) (provider.OrderResult, error) {
	client, ok := e.registry.Spot(exchange)
	if !ok {
		return provider.OrderResult{}, fmt.Errorf("no spot venue registered for %s", exchange)
	}
	return e.place(ctx, client, exchange, symbol, side, amount)
}

// HedgeMarket places a market order on a hedge venue.
func (e *Executor) HedgeMarket(ctx context.Context, exchange, symbol string, side provider.Side, amount float64) (provider.OrderResult, error) {
	client, ok := e.registry.Hedge(exchange)
	if !ok {
		return provider.OrderResult{}, fmt.Errorf("no hedge venue registered for %s", exchange)
	}
	return e.place(ctx, client, exchange, symbol, side, amount)
}

func (e *Executor) place(ctx context.Context, client provider.Client, exchange, symbol string, side provider.Side, amount float64) (provider.OrderResult, error) {
	rounded := client.RoundAmount(symbol, amount)
	if rounded <= 0 {
		return provider.OrderResult{}, fmt.Errorf("amount %v rounds to zero for %s on %s", amount, symbol, exchange)
	}
	result, err := client.PlaceMarketOrder(ctx, symbol, side, rounded)
	if err != nil {
		e.metrics.OrdersFailed.Inc()
		return provider.OrderResult{}, fmt.Errorf("place %s %s on %s: %w", side, symbol, exchange, err)
	}
	e.metrics.OrdersPlaced.Inc()
	e.log.Info("order filled",
		zap.String("exchange", exchange),
		zap.String("symbol", symbol),
		zap.String("side", string(side)),
		zap.Float64("amount", result.FilledQuantity),
		zap.Float64("avg_price", result.AvgPrice),
		zap.Float64("fee", result.Fee))
	return result, nil
}

// PrepareHedgeShort puts the hedge contract into isolated margin at 1x
// leverage before the first short is opened. Both calls are idempotent
// on the venue side, so retries are safe here.
func (e *Executor) PrepareHedgeShort(ctx context.Context, exchange, symbol string) error {
	client, ok := e.registry.Hedge(exchange)
	if !ok {
		return fmt.Errorf("no hedge venue registered for %s", exchange)
	}
	if err := retry(ctx, func() error {
		return client.SetMarginMode(ctx, symbol, "isolated")
	}); err != nil {
		return fmt.Errorf("set margin mode for %s on %s: %w", symbol, exchange, err)
	}
	if err := retry(ctx, func() error {
		return client.SetLeverage(ctx, symbol, 1)
	}); err != nil {
		return fmt.Errorf("set leverage for %s on %s: %w", symbol, exchange, err)
	}
	return nil
}

func retry(ctx context.Context, fn func() error) error {
	backoff := retryBackoff
	var err error
	for attempt := 0; attempt < retryAttempts; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return err
}
