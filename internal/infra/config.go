package infra

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds every setting of the execution subsystem.
// Loaded from YAML; sensitive values may be overlaid from the environment.
type Config struct {
	App struct {
		Name    string `yaml:"name"`
		Version string `yaml:"version"`
	} `yaml:"app"`

	Trading struct {
		Mode string `yaml:"mode"` // "PAPER" or "LIVE"
	} `yaml:"trading"`

	Paper struct {
		InitialBalance       float64 `yaml:"initial_balance"`
		QuoteAsset           string  `yaml:"quote_asset"`
		LatencyMinMs         int     `yaml:"latency_min_ms"`
		LatencyMaxMs         int     `yaml:"latency_max_ms"`
		SlippageBps          int64   `yaml:"slippage_bps"`
		CommissionBps        int64   `yaml:"commission_bps"`
		LimitFillProbability float64 `yaml:"limit_fill_probability"`
		RateLimitPerSecond   float64 `yaml:"rate_limit_per_second"`
		RateLimitBurst       int     `yaml:"rate_limit_burst"`
	} `yaml:"paper"`

	OMS struct {
		MaxOpenOrders      int `yaml:"max_open_orders"`
		OrderTimeoutSec    int `yaml:"order_timeout_sec"`
		MonitorIntervalSec int `yaml:"monitor_interval_sec"`
	} `yaml:"oms"`

	Resilience struct {
		MaxRetries        int     `yaml:"max_retries"`
		InitialBackoffMS  int     `yaml:"initial_backoff_ms"`
		BackoffMultiplier float64 `yaml:"backoff_multiplier"`
		FailureThreshold  int     `yaml:"failure_threshold"`
		SuccessThreshold  int     `yaml:"success_threshold"`
		CircuitTimeoutSec int     `yaml:"circuit_timeout_sec"`
		HealthIntervalSec int     `yaml:"health_interval_sec"`
		MaxDLQSize        int     `yaml:"max_dlq_size"`
	} `yaml:"resilience"`

	Engine struct {
		CycleIntervalSec int `yaml:"cycle_interval_sec"`
	} `yaml:"engine"`

	Journal struct {
		Enabled bool   `yaml:"enabled"`
		Path    string `yaml:"path"`
	} `yaml:"journal"`

	PriceFeed struct {
		Enabled bool     `yaml:"enabled"`
		WSURL   string   `yaml:"ws_url"`
		Symbols []string `yaml:"symbols"`
	} `yaml:"pricefeed"`

	Metrics struct {
		Enabled    bool   `yaml:"enabled"`
		ListenAddr string `yaml:"listen_addr"`
	} `yaml:"metrics"`

	Log struct {
		Level  string `yaml:"level"`  // debug, info, warn, error
		Format string `yaml:"format"` // text or json
	} `yaml:"log"`
}

// DefaultConfig returns a config with the documented defaults applied.
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.App.Name = "autotrader-execution"
	cfg.Trading.Mode = "PAPER"

	cfg.Paper.InitialBalance = 100_000
	cfg.Paper.QuoteAsset = "USD"
	cfg.Paper.LatencyMinMs = 5
	cfg.Paper.LatencyMaxMs = 50
	cfg.Paper.SlippageBps = 5
	cfg.Paper.CommissionBps = 10
	cfg.Paper.LimitFillProbability = 0.8
	cfg.Paper.RateLimitPerSecond = 10
	cfg.Paper.RateLimitBurst = 20

	cfg.OMS.MaxOpenOrders = 50
	cfg.OMS.OrderTimeoutSec = 300
	cfg.OMS.MonitorIntervalSec = 10

	cfg.Resilience.MaxRetries = 3
	cfg.Resilience.InitialBackoffMS = 1000
	cfg.Resilience.BackoffMultiplier = 2.0
	cfg.Resilience.FailureThreshold = 5
	cfg.Resilience.SuccessThreshold = 2
	cfg.Resilience.CircuitTimeoutSec = 60
	cfg.Resilience.HealthIntervalSec = 30
	cfg.Resilience.MaxDLQSize = 1000

	cfg.Engine.CycleIntervalSec = 5

	cfg.Journal.Path = "data/session.db"
	cfg.Metrics.ListenAddr = "localhost:9090"
	cfg.Log.Level = "info"
	cfg.Log.Format = "text"
	return cfg
}

// LoadConfig reads YAML from path over the defaults, then overlays
// environment variables for deployment-specific values.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadConfigOrDefault behaves like LoadConfig but falls back to the
// defaults (plus environment overrides) when no config file exists.
func LoadConfigOrDefault(path string) (*Config, error) {
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			return LoadConfig(path)
		}
	}
	cfg := DefaultConfig()
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("TRADING_MODE"); v != "" {
		cfg.Trading.Mode = v
	}
	if v := os.Getenv("JOURNAL_PATH"); v != "" {
		cfg.Journal.Path = v
	}
	if v := os.Getenv("PRICEFEED_WS_URL"); v != "" {
		cfg.PriceFeed.WSURL = v
	}
	if v := os.Getenv("METRICS_LISTEN_ADDR"); v != "" {
		cfg.Metrics.ListenAddr = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
}

// Validate rejects configurations that would break money-safety limits.
func (c *Config) Validate() error {
	if c.OMS.MaxOpenOrders <= 0 {
		return fmt.Errorf("oms.max_open_orders must be positive, got %d", c.OMS.MaxOpenOrders)
	}
	if c.Resilience.MaxRetries < 0 {
		return fmt.Errorf("resilience.max_retries must not be negative, got %d", c.Resilience.MaxRetries)
	}
	if c.Resilience.BackoffMultiplier < 1 {
		return fmt.Errorf("resilience.backoff_multiplier must be >= 1, got %f", c.Resilience.BackoffMultiplier)
	}
	if p := c.Paper.LimitFillProbability; p < 0 || p > 1 {
		return fmt.Errorf("paper.limit_fill_probability must be in [0,1], got %f", p)
	}
	if c.Paper.LatencyMinMs > c.Paper.LatencyMaxMs {
		return fmt.Errorf("paper.latency_min_ms exceeds latency_max_ms")
	}
	return nil
}
