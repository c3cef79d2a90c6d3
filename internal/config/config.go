package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Log      LoggingConfig  `yaml:"log"`
	Cache    CacheConfig    `yaml:"cache"`
	State    StateConfig    `yaml:"state"`
	History  HistoryConfig  `yaml:"history"`
	Feed     FeedConfig     `yaml:"feed"`
	Market   MarketConfig   `yaml:"market"`
	Scan     ScanConfig     `yaml:"scan"`
	Scout    ScoutConfig    `yaml:"scout"`
	Engine   EngineConfig   `yaml:"engine"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Telegram TelegramConfig `yaml:"telegram"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

type CacheConfig struct {
	Backend  string        `yaml:"backend"` // redis or memory
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

type StateConfig struct {
	SQLitePath string `yaml:"sqlite_path"`
}

type HistoryConfig struct {
	Enabled bool   `yaml:"enabled"`
	DSN     string `yaml:"dsn"`
}

type FeedConfig struct {
	URL            string        `yaml:"url"`
	Exchange       string        `yaml:"exchange"`
	Kind           string        `yaml:"kind"`
	ReconnectDelay time.Duration `yaml:"reconnect_delay"`
	PingInterval   time.Duration `yaml:"ping_interval"`
}

type ExchangeConfig struct {
	Name     string  `yaml:"name"`
	Spot     bool    `yaml:"spot"`
	Hedge    bool    `yaml:"hedge"`
	SpotFee  float64 `yaml:"spot_fee"`
	HedgeFee float64 `yaml:"hedge_fee"`
}

type MarketConfig struct {
	Exchanges       []ExchangeConfig `yaml:"exchanges"`
	Kinds           []string         `yaml:"kinds"`
	RefreshInterval time.Duration    `yaml:"refresh_interval"`
	RebuildInterval time.Duration    `yaml:"rebuild_interval"`
}

type ScanConfig struct {
	QuoteCurrency string        `yaml:"quote_currency"`
	MinProfitRate float64       `yaml:"min_profit_rate"`
	MaxProfitRate float64       `yaml:"max_profit_rate"`
	Interval      time.Duration `yaml:"interval"`
}

type BudgetLevelConfig struct {
	Budget        float64 `yaml:"budget"`
	MinProfitRate float64 `yaml:"min_profit_rate"`
}

type PositionDefaults struct {
	MaxSize        float64 `yaml:"max_size"`
	ControlSize    float64 `yaml:"control_size"`
	TxSize         float64 `yaml:"tx_size"`
	MinOpenProfit  float64 `yaml:"min_open_profit"`
	MinCloseProfit float64 `yaml:"min_close_profit"`
}

type ScoutConfig struct {
	Interval            time.Duration       `yaml:"interval"`
	ErrorBackoff        time.Duration       `yaml:"error_backoff"`
	MinQuoteVolume      float64             `yaml:"min_quote_volume"`
	MinProfitRate       float64             `yaml:"min_profit_rate"`
	MaxProfitRate       float64             `yaml:"max_profit_rate"`
	BudgetLevels        []BudgetLevelConfig `yaml:"budget_levels"`
	MaxActivePositions  int                 `yaml:"max_active_positions"`
	BlacklistDuration   time.Duration       `yaml:"blacklist_duration"`
	HistoricSpreadLimit float64             `yaml:"historic_spread_limit"`
	CandleInterval      string              `yaml:"candle_interval"`
	CandleLimit         int                 `yaml:"candle_limit"`
	SlowCandleInterval  string              `yaml:"slow_candle_interval"`
	SlowCandleLimit     int                 `yaml:"slow_candle_limit"`
	SlowExchanges       []string            `yaml:"slow_exchanges"`
	DepthLimit          int                 `yaml:"depth_limit"`
	Position            PositionDefaults    `yaml:"position"`
}

type EngineConfig struct {
	TickInterval  time.Duration `yaml:"tick_interval"`
	ErrorBackoff  time.Duration `yaml:"error_backoff"`
	DepthLimit    int           `yaml:"depth_limit"`
	MaxProfitRate float64       `yaml:"max_profit_rate"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}

type TelegramConfig struct {
	Enabled bool   `yaml:"enabled"`
	Token   string `yaml:"token"`
	ChatID  string `yaml:"chat_id"`
}

func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	return &cfg, validate(&cfg)
}

func applyDefaults(cfg *Config) {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Cache.Backend == "" {
		cfg.Cache.Backend = "memory"
	}
	if cfg.Cache.Addr == "" {
		cfg.Cache.Addr = "localhost:6379"
	}
	if cfg.Cache.TTL == 0 {
		cfg.Cache.TTL = 5 * time.Minute
	}
	if cfg.State.SQLitePath == "" {
		cfg.State.SQLitePath = "data/octo-arb-bot.db"
	}
	if cfg.Feed.ReconnectDelay == 0 {
		cfg.Feed.ReconnectDelay = 3 * time.Second
	}
	if cfg.Feed.PingInterval == 0 {
		cfg.Feed.PingInterval = 30 * time.Second
	}
	if cfg.Feed.Kind == "" {
		cfg.Feed.Kind = "spot"
	}
	if len(cfg.Market.Kinds) == 0 {
		cfg.Market.Kinds = []string{"spot", "swap", "future"}
	}
	if cfg.Market.RefreshInterval == 0 {
		cfg.Market.RefreshInterval = 20 * time.Second
	}
	if cfg.Market.RebuildInterval == 0 {
		cfg.Market.RebuildInterval = 15 * time.Second
	}
	if cfg.Scan.QuoteCurrency == "" {
		cfg.Scan.QuoteCurrency = "USDT"
	}
	if cfg.Scan.MinProfitRate == 0 {
		cfg.Scan.MinProfitRate = 0.012
	}
	if cfg.Scan.MaxProfitRate == 0 {
		cfg.Scan.MaxProfitRate = 0.30
	}
	if cfg.Scan.Interval == 0 {
		cfg.Scan.Interval = 15 * time.Second
	}
	applyScoutDefaults(&cfg.Scout)
	if cfg.Engine.TickInterval == 0 {
		cfg.Engine.TickInterval = time.Second
	}
	if cfg.Engine.ErrorBackoff == 0 {
		cfg.Engine.ErrorBackoff = 15 * time.Second
	}
	if cfg.Engine.DepthLimit == 0 {
		cfg.Engine.DepthLimit = 20
	}
	if cfg.Engine.MaxProfitRate == 0 {
		cfg.Engine.MaxProfitRate = 0.05
	}
	if cfg.Metrics.Listen == "" {
		cfg.Metrics.Listen = ":9090"
	}
}

func applyScoutDefaults(cfg *ScoutConfig) {
	if cfg.Interval == 0 {
		cfg.Interval = 3 * time.Second
	}
	if cfg.ErrorBackoff == 0 {
		cfg.ErrorBackoff = 15 * time.Second
	}
	if cfg.MinQuoteVolume == 0 {
		cfg.MinQuoteVolume = 100000
	}
	if cfg.MinProfitRate == 0 {
		cfg.MinProfitRate = 0.008
	}
	if cfg.MaxProfitRate == 0 {
		cfg.MaxProfitRate = 0.05
	}
	if len(cfg.BudgetLevels) == 0 {
		cfg.BudgetLevels = []BudgetLevelConfig{{Budget: 100, MinProfitRate: 0.0085}}
	}
	if cfg.MaxActivePositions == 0 {
		cfg.MaxActivePositions = 19
	}
	if cfg.BlacklistDuration == 0 {
		cfg.BlacklistDuration = 3 * time.Hour
	}
	if cfg.HistoricSpreadLimit == 0 {
		cfg.HistoricSpreadLimit = 0.006
	}
	if cfg.CandleInterval == "" {
		cfg.CandleInterval = "1m"
	}
	if cfg.CandleLimit == 0 {
		cfg.CandleLimit = 360
	}
	if cfg.SlowCandleInterval == "" {
		cfg.SlowCandleInterval = "5m"
	}
	if cfg.SlowCandleLimit == 0 {
		cfg.SlowCandleLimit = 100
	}
	if cfg.DepthLimit == 0 {
		cfg.DepthLimit = 20
	}
	if cfg.Position.MaxSize == 0 {
		cfg.Position.MaxSize = 1000
	}
	if cfg.Position.ControlSize == 0 {
		cfg.Position.ControlSize = 100
	}
	if cfg.Position.TxSize == 0 {
		cfg.Position.TxSize = 25
	}
	if cfg.Position.MinOpenProfit == 0 {
		cfg.Position.MinOpenProfit = 0.008
	}
	if cfg.Position.MinCloseProfit == 0 {
		cfg.Position.MinCloseProfit = 0.005
	}
}

func validate(cfg *Config) error {
	if cfg.Cache.Backend != "redis" && cfg.Cache.Backend != "memory" {
		return fmt.Errorf("cache.backend must be redis or memory, got %q", cfg.Cache.Backend)
	}
	if cfg.History.Enabled && cfg.History.DSN == "" {
		return errors.New("history.dsn is required when history is enabled")
	}
	if cfg.Scan.MinProfitRate >= cfg.Scan.MaxProfitRate {
		return errors.New("scan.min_profit_rate must be below scan.max_profit_rate")
	}
	if cfg.Scout.MinProfitRate >= cfg.Scout.MaxProfitRate {
		return errors.New("scout.min_profit_rate must be below scout.max_profit_rate")
	}
	for _, kind := range cfg.Market.Kinds {
		if kind != "spot" && kind != "swap" && kind != "future" {
			return fmt.Errorf("market.kinds contains unknown kind %q", kind)
		}
	}
	for _, exchange := range cfg.Market.Exchanges {
		if exchange.Name == "" {
			return errors.New("market.exchanges entries require a name")
		}
		if !exchange.Spot && !exchange.Hedge {
			return fmt.Errorf("exchange %s enables neither spot nor hedge", exchange.Name)
		}
	}
	return nil
}
