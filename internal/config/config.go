package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/akralex/smc-futures-bot/internal/usecase"
)

// ExchangeConfig holds credentials and endpoints for one exchange account.
type ExchangeConfig struct {
	Name         string `yaml:"name"`
	APIKey       string `yaml:"api_key"`
	APISecret    string `yaml:"api_secret"`
	Passphrase   string `yaml:"passphrase,omitempty"`
	RESTEndpoint string `yaml:"rest_endpoint,omitempty"`
	WSEndpoint   string `yaml:"ws_endpoint,omitempty"`
}

// SymbolSeed describes one symbol to create a bot for on first start.
// Order sizing constraints differ per contract, so they live here rather
// than in the shared defaults.
type SymbolSeed struct {
	Symbol            string  `yaml:"symbol"`
	QuantityPrecision int     `yaml:"quantity_precision"`
	MinOrderNotional  float64 `yaml:"min_order_notional"`
	MaxPositionSize   float64 `yaml:"max_position_size"`
}

type BotDefaults struct {
	Symbols               []SymbolSeed `yaml:"symbols"`
	Timeframes            []string     `yaml:"timeframes"`
	RiskPercentage        float64      `yaml:"risk_percentage"`
	Leverage              int          `yaml:"leverage"`
	MarginType            string       `yaml:"margin_type"`
	StopLossPercent       float64      `yaml:"stop_loss_percent"`
	TakeProfitPercent     float64      `yaml:"take_profit_percent"`
	CooldownMinutes       int          `yaml:"cooldown_minutes"`
	MaxTradesPerHour      int          `yaml:"max_trades_per_hour"`
	MaxTradeDurationMin   int          `yaml:"max_trade_duration_minutes"`
	MinStrengthThreshold  float64      `yaml:"min_strength_threshold"`
	HighStrengthThreshold float64      `yaml:"high_strength_threshold"`
	MinConfluence         int          `yaml:"min_confluence"`
}

type Config struct {
	Exchanges []ExchangeConfig `yaml:"exchanges"`

	Analysis struct {
		SwingLookback int `yaml:"swing_lookback"`
		TrendWindow   int `yaml:"trend_window"`
	} `yaml:"analysis"`

	Aggregator usecase.AggregatorConfig `yaml:"aggregator"`
	Lifecycle  usecase.LifecycleConfig  `yaml:"lifecycle"`

	BotDefaults BotDefaults `yaml:"bot_defaults"`

	Polling struct {
		TickIntervalSec int `yaml:"tick_interval_sec"`
	} `yaml:"polling"`

	Storage struct {
		Path string `yaml:"path"`
	} `yaml:"storage"`

	Logging struct {
		Level string `yaml:"level"`
		File  string `yaml:"file,omitempty"`
	} `yaml:"logging"`

	Server struct {
		Port int `yaml:"port"`
	} `yaml:"server"`
}

// TickInterval returns the configured per-bot tick period.
func (c *Config) TickInterval() time.Duration {
	if c.Polling.TickIntervalSec <= 0 {
		return usecase.DefaultTickInterval
	}
	return time.Duration(c.Polling.TickIntervalSec) * time.Second
}

// Exchange returns the named exchange entry.
func (c *Config) Exchange(name string) (ExchangeConfig, bool) {
	for _, e := range c.Exchanges {
		if e.Name == name {
			return e, true
		}
	}
	return ExchangeConfig{}, false
}

// Load reads and decodes the YAML config at path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}

	if cfg.Storage.Path == "" {
		cfg.Storage.Path = "bot.db"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	return &cfg, nil
}
