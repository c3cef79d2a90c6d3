package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, `
market:
  exchanges:
    - name: binance
      spot: true
      spot_fee: 0.001
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Cache.Backend != "memory" {
		t.Fatalf("cache backend = %q, want memory", cfg.Cache.Backend)
	}
	if cfg.Cache.TTL != 5*time.Minute {
		t.Fatalf("cache ttl = %v, want 5m", cfg.Cache.TTL)
	}
	if cfg.Scout.MaxActivePositions != 19 {
		t.Fatalf("max active positions = %d, want 19", cfg.Scout.MaxActivePositions)
	}
	if cfg.Scout.MinQuoteVolume != 100000 {
		t.Fatalf("min quote volume = %v, want 100000", cfg.Scout.MinQuoteVolume)
	}
	if cfg.Scout.BlacklistDuration != 3*time.Hour {
		t.Fatalf("blacklist duration = %v, want 3h", cfg.Scout.BlacklistDuration)
	}
	if got := cfg.Scout.Position; got.MaxSize != 1000 || got.ControlSize != 100 || got.TxSize != 25 {
		t.Fatalf("position defaults = %+v", got)
	}
	if len(cfg.Scout.BudgetLevels) != 1 || cfg.Scout.BudgetLevels[0].Budget != 100 {
		t.Fatalf("budget levels = %+v", cfg.Scout.BudgetLevels)
	}
	if len(cfg.Market.Kinds) != 3 {
		t.Fatalf("kinds = %v", cfg.Market.Kinds)
	}
}

func TestLoadOverrides(t *testing.T) {
	path := writeConfig(t, `
cache:
  backend: redis
  addr: redis:6379
  ttl: 1m
scout:
  min_profit_rate: 0.01
  max_profit_rate: 0.04
  budget_levels:
    - budget: 250
      min_profit_rate: 0.009
market:
  exchanges:
    - name: gate
      spot: true
    - name: okx
      hedge: true
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Cache.Backend != "redis" || cfg.Cache.Addr != "redis:6379" {
		t.Fatalf("cache = %+v", cfg.Cache)
	}
	if cfg.Scout.MinProfitRate != 0.01 || cfg.Scout.MaxProfitRate != 0.04 {
		t.Fatalf("scout band = %v..%v", cfg.Scout.MinProfitRate, cfg.Scout.MaxProfitRate)
	}
	if cfg.Scout.BudgetLevels[0].Budget != 250 {
		t.Fatalf("budget levels = %+v", cfg.Scout.BudgetLevels)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"bad cache backend", "cache:\n  backend: mongo\n"},
		{"history without dsn", "history:\n  enabled: true\n"},
		{"inverted scan band", "scan:\n  min_profit_rate: 0.4\n  max_profit_rate: 0.3\n"},
		{"unknown kind", "market:\n  kinds: [spot, margin]\n"},
		{"nameless exchange", "market:\n  exchanges:\n    - spot: true\n"},
		{"roleless exchange", "market:\n  exchanges:\n    - name: gate\n"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, c.body)); err == nil {
				t.Fatalf("Load accepted invalid config")
			}
		})
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("OCTO_REDIS_PASSWORD", "hunter2")
	t.Setenv("OCTO_TELEGRAM_TOKEN", "tok")
	cfg := &Config{}
	ApplyEnv(cfg)
	if cfg.Cache.Password != "hunter2" {
		t.Fatalf("cache password = %q", cfg.Cache.Password)
	}
	if cfg.Telegram.Token != "tok" {
		t.Fatalf("telegram token = %q", cfg.Telegram.Token)
	}
}
