package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Log       LoggingConfig   `yaml:"log"`
	REST      RESTConfig      `yaml:"rest"`
	WS        WSConfig        `yaml:"ws"`
	State     StateConfig     `yaml:"state"`
	Trading   TradingConfig   `yaml:"trading"`
	Risk      RiskConfig      `yaml:"risk"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Telegram  TelegramConfig  `yaml:"telegram"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Timescale TimescaleConfig `yaml:"timescale"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

type RESTConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

type WSConfig struct {
	URL             string        `yaml:"url"`
	InitialBackoff  time.Duration `yaml:"initial_backoff"`
	MaxBackoff      time.Duration `yaml:"max_backoff"`
	PingInterval    time.Duration `yaml:"ping_interval"`
	CandleInterval  string        `yaml:"candle_interval"`
	HandlerQueueLen int           `yaml:"handler_queue_len"`
}

type StateConfig struct {
	SQLitePath string `yaml:"sqlite_path"`
}

// TradingConfig selects the venue environment and the decision cadence.
// The signing key is never part of the yaml file; it comes from the
// environment only (HL_PRIVATE_KEY) and only when custodial is true.
type TradingConfig struct {
	Symbol        string        `yaml:"symbol"`
	Timeframe     string        `yaml:"timeframe"`
	Environment   string        `yaml:"environment"`
	Custodial     bool          `yaml:"custodial"`
	CycleInterval time.Duration `yaml:"cycle_interval"`
	ErrorCooldown time.Duration `yaml:"error_cooldown"`
}

type RiskConfig struct {
	USDCLockPct float64 `yaml:"usdc_lock_pct"`
	BTCLockPct  float64 `yaml:"btc_lock_pct"`
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

type KafkaConfig struct {
	Enabled bool     `yaml:"enabled"`
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

type TimescaleConfig struct {
	Enabled         bool          `yaml:"enabled"`
	DSN             string        `yaml:"dsn"`
	Schema          string        `yaml:"schema"`
	QueueSize       int           `yaml:"queue_size"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

const (
	mainnetRESTURL = "https://api.hyperliquid.xyz"
	testnetRESTURL = "https://api.hyperliquid-testnet.xyz"
	mainnetWSURL   = "wss://api.hyperliquid.xyz/ws"
	testnetWSURL   = "wss://api.hyperliquid-testnet.xyz/ws"
)

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
	if cfg.Trading.Environment == "" {
		cfg.Trading.Environment = "testnet"
	}
	if cfg.REST.BaseURL == "" {
		if cfg.Trading.Environment == "mainnet" {
			cfg.REST.BaseURL = mainnetRESTURL
		} else {
			cfg.REST.BaseURL = testnetRESTURL
		}
	}
	if cfg.REST.Timeout == 0 {
		cfg.REST.Timeout = 10 * time.Second
	}
	if cfg.WS.URL == "" {
		if cfg.Trading.Environment == "mainnet" {
			cfg.WS.URL = mainnetWSURL
		} else {
			cfg.WS.URL = testnetWSURL
		}
	}
	if cfg.WS.InitialBackoff == 0 {
		cfg.WS.InitialBackoff = time.Second
	}
	if cfg.WS.MaxBackoff == 0 {
		cfg.WS.MaxBackoff = 60 * time.Second
	}
	if cfg.WS.PingInterval == 0 {
		cfg.WS.PingInterval = 30 * time.Second
	}
	if cfg.WS.CandleInterval == "" {
		cfg.WS.CandleInterval = "1m"
	}
	if cfg.WS.HandlerQueueLen == 0 {
		cfg.WS.HandlerQueueLen = 64
	}
	if cfg.State.SQLitePath == "" {
		cfg.State.SQLitePath = "data/hl-spot-bot.db"
	}
	if cfg.Trading.Symbol == "" {
		cfg.Trading.Symbol = "BTC"
	}
	if cfg.Trading.Timeframe == "" {
		cfg.Trading.Timeframe = "15m"
	}
	if cfg.Trading.CycleInterval == 0 {
		cfg.Trading.CycleInterval = 15 * time.Second
	}
	if cfg.Trading.ErrorCooldown == 0 {
		cfg.Trading.ErrorCooldown = 5 * time.Second
	}
	if cfg.Risk.USDCLockPct == 0 {
		cfg.Risk.USDCLockPct = 20
	}
	if cfg.Metrics.Listen == "" {
		cfg.Metrics.Listen = ":9091"
	}
	if cfg.Kafka.Topic == "" {
		cfg.Kafka.Topic = "bot-events"
	}
	if cfg.Timescale.Schema == "" {
		cfg.Timescale.Schema = "public"
	}
}

func validate(cfg *Config) error {
	switch cfg.Trading.Environment {
	case "testnet", "mainnet":
	default:
		return fmt.Errorf("trading.environment must be testnet or mainnet, got %q", cfg.Trading.Environment)
	}
	if cfg.Risk.USDCLockPct < 0 || cfg.Risk.USDCLockPct > 100 {
		return errors.New("risk.usdc_lock_pct must be within [0,100]")
	}
	if cfg.Risk.BTCLockPct < 0 || cfg.Risk.BTCLockPct > 100 {
		return errors.New("risk.btc_lock_pct must be within [0,100]")
	}
	if cfg.Trading.CycleInterval < time.Second {
		return errors.New("trading.cycle_interval must be at least 1s")
	}
	if cfg.Kafka.Enabled && len(cfg.Kafka.Brokers) == 0 {
		return errors.New("kafka.brokers are required when kafka is enabled")
	}
	if cfg.Timescale.Enabled && cfg.Timescale.DSN == "" {
		return errors.New("timescale.dsn is required when timescale is enabled")
	}
	return nil
}
