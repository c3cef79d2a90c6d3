// Command scan runs a one-shot arbitrage scan against the published
// snapshots and prints the candidates. It reads the same cache the bot
// writes, so it can inspect a live deployment without touching it.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"octo-arb-bot/internal/cache"
	"octo-arb-bot/internal/config"
	"octo-arb-bot/internal/logging"
	"octo-arb-bot/internal/market"
	"octo-arb-bot/internal/pricing"
	"octo-arb-bot/internal/provider"
	"octo-arb-bot/internal/scan"
)

func main() {
	configPath := flag.String("config", "internal/config/config.yaml", "path to config file")
	kind := flag.String("kind", "spot", "scan kind: spot or future")
	asJSON := flag.Bool("json", false, "emit JSON instead of text")
	flag.Parse()

	if err := config.LoadEnv(".env"); err != nil {
		fatal(err)
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		fatal(err)
	}
	config.ApplyEnv(cfg)
	log := logging.New(cfg.Log)
	defer func() { _ = log.Sync() }()

	var c cache.Cache
	if cfg.Cache.Backend == "redis" {
		c = cache.NewRedis(cfg.Cache.Addr, cfg.Cache.Password, cfg.Cache.DB)
	} else {
		fatal(fmt.Errorf("scan needs a shared cache backend, got %q", cfg.Cache.Backend))
	}
	defer func() { _ = c.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	switch *kind {
	case "spot":
		runSpot(ctx, c, cfg, *asJSON)
	case "future":
		runFuture(ctx, c, *asJSON)
	default:
		fatal(fmt.Errorf("unknown scan kind %q", *kind))
	}
}

func runSpot(ctx context.Context, c cache.Cache, cfg *config.Config, asJSON bool) {
	spot := loadSnapshot(ctx, c, provider.KindSpot)
	swap := loadSnapshot(ctx, c, provider.KindSwap)

	results := scan.SpotOpportunities(spot, swap, scan.SpotParams{
		QuoteCurrency:  cfg.Scan.QuoteCurrency,
		MinProfitRate:  cfg.Scan.MinProfitRate,
		MaxProfitRate:  cfg.Scan.MaxProfitRate,
		MinQuoteVolume: cfg.Scout.MinQuoteVolume,
	})
	if asJSON {
		emitJSON(results)
		return
	}
	for _, r := range results {
		hedge := "-"
		if r.Hedge != nil {
			hedge = "hedgeable"
		}
		buy, _ := r.From.BuyPrice()
		sell, _ := r.To.SellPrice()
		fmt.Printf("%-14s %-10s -> %-10s buy %s sell %s profit %.4f %s\n",
			r.Symbol, r.From.Exchange, r.To.Exchange,
			pricing.DisplayPrice(buy), pricing.DisplayPrice(sell), r.ProfitRate, hedge)
	}
	fmt.Printf("%d spot candidates\n", len(results))
}

func runFuture(ctx context.Context, c cache.Cache, asJSON bool) {
	spot := loadSnapshot(ctx, c, provider.KindSpot)
	future := loadSnapshot(ctx, c, provider.KindFuture)

	results := scan.FutureOpportunities(spot, future, time.Now().UTC())
	if asJSON {
		emitJSON(results)
		return
	}
	for _, r := range results {
		fmt.Printf("%-20s spread %.4f apr %.4f real %.4f days %.2f\n",
			r.Symbol, r.SpreadRate, r.APR, r.RealAPR, r.DaysToMaturity)
	}
	fmt.Printf("%d future candidates\n", len(results))
}

func loadSnapshot(ctx context.Context, c cache.Cache, kind provider.Kind) *market.Snapshot {
	snapshot, ok, err := market.LoadSnapshot(ctx, c, kind)
	if err != nil {
		fatal(err)
	}
	if !ok {
		fatal(fmt.Errorf("no %s snapshot published; is the bot running?", kind))
	}
	return snapshot
}

func emitJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fatal(err)
	}
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
