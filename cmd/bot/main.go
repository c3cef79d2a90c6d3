package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"octo-arb-bot/internal/app"
	"octo-arb-bot/internal/config"
	"octo-arb-bot/internal/logging"
	"octo-arb-bot/internal/provider"
	"octo-arb-bot/internal/provider/paper"
)

func main() {
	configPath := flag.String("config", "internal/config/config.yaml", "path to config file")
	flag.Parse()

	if err := config.LoadEnv(".env"); err != nil {
		fmt.Fprintf(os.Stderr, "failed to load .env: %v\n", err)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		panic(err)
	}
	config.ApplyEnv(cfg)
	log := logging.New(cfg.Log)
	log.Info("config loaded", zap.String("path", *configPath))

	application, err := app.New(cfg, buildRegistry(cfg), log)
	if err != nil {
		log.Error("failed to initialize app", zap.Error(err))
		os.Exit(1)
	}
	log.Info("app initialized")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := application.Run(ctx); err != nil && err != context.Canceled {
		log.Error("app terminated", zap.Error(err))
		os.Exit(1)
	}
}

// buildRegistry maps the configured exchanges to venue adapters. This
// binary ships with the paper venue; real exchange adapters register here.
func buildRegistry(cfg *config.Config) *provider.Registry {
	registry := provider.NewRegistry()
	for _, exchange := range cfg.Market.Exchanges {
		venue := paper.New(exchange.SpotFee)
		if exchange.Spot {
			registry.RegisterSpot(exchange.Name, venue, exchange.SpotFee)
		}
		if exchange.Hedge {
			registry.RegisterHedge(exchange.Name, venue, exchange.HedgeFee)
		}
	}
	return registry
}
