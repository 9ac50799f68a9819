package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Costflow  CostflowConfig  `yaml:"costflow"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Channels  ChannelsConfig  `yaml:"channels"`
	Reader    ReaderConfig    `yaml:"reader"`
	Processor ProcessorConfig `yaml:"processor"`
	Source    SourceConfig    `yaml:"source"`
	Simulator SimulatorConfig `yaml:"simulator"`
	Fees      FeesConfig      `yaml:"fees"`
	Logging   LoggingConfig   `yaml:"logging"`
}

type CostflowConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

type MetricsConfig struct {
	CloudWatch CloudWatchConfig `yaml:"cloudwatch"`
}

type CloudWatchConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Region    string `yaml:"region"`
	Namespace string `yaml:"namespace"`
	Dashboard string `yaml:"dashboard"`
}

type ChannelsConfig struct {
	RawBuffer int `yaml:"raw_buffer"`
}

type ReaderConfig struct {
	MaxWorkers int             `yaml:"max_workers"`
	Timeout    time.Duration   `yaml:"timeout"`
	RateLimit  RateLimitConfig `yaml:"rate_limit"`
	Retry      RetryConfig     `yaml:"retry"`
}

type ProcessorConfig struct {
	MaxWorkers int `yaml:"max_workers"`
}

type RateLimitConfig struct {
	RequestsPerSecond int `yaml:"requests_per_second"`
	BurstSize         int `yaml:"burst_size"`
}

type RetryConfig struct {
	MaxAttempts       int           `yaml:"max_attempts"`
	BaseDelay         time.Duration `yaml:"base_delay"`
	MaxDelay          time.Duration `yaml:"max_delay"`
	BackoffMultiplier int           `yaml:"backoff_multiplier"`
}

type SourceConfig struct {
	Okx     OkxSourceConfig     `yaml:"okx"`
	Binance BinanceSourceConfig `yaml:"binance"`
}

type OkxSourceConfig struct {
	Orderbook OkxOrderbookConfig `yaml:"orderbook"`
}

type OkxOrderbookConfig struct {
	Snapshots OkxSnapshotConfig `yaml:"snapshots"`
}

type OkxSnapshotConfig struct {
	Enabled    bool     `yaml:"enabled"`
	URL        string   `yaml:"url"`
	Channel    string   `yaml:"channel"`
	Symbols    []string `yaml:"symbols"`
	PingSec    int      `yaml:"ping_sec"`
	MarketType string   `yaml:"market_type"`
}

type BinanceSourceConfig struct {
	Orderbook BinanceOrderbookConfig `yaml:"orderbook"`
}

type BinanceOrderbookConfig struct {
	Snapshots BinanceSnapshotConfig `yaml:"snapshots"`
}

type BinanceSnapshotConfig struct {
	Enabled    bool     `yaml:"enabled"`
	Limit      int      `yaml:"limit"`
	IntervalMs int      `yaml:"interval_ms"`
	Symbols    []string `yaml:"symbols"`
	MarketType string   `yaml:"market_type"`
}

type SimulatorConfig struct {
	MaxDepth          int            `yaml:"max_depth"`
	DefaultVolatility float64        `yaml:"default_volatility"`
	Impact            ImpactConfig   `yaml:"impact"`
	Slippage          SlippageConfig `yaml:"slippage"`
	Sample            SampleConfig   `yaml:"sample"`
}

type ImpactConfig struct {
	TemporaryImpactFactor float64 `yaml:"temporary_impact_factor"`
	PermanentImpactFactor float64 `yaml:"permanent_impact_factor"`
	MarketVolFactor       float64 `yaml:"market_vol_factor"`
	RiskAversion          float64 `yaml:"risk_aversion"`
}

type SlippageConfig struct {
	Regression string  `yaml:"regression"`
	Quantile   float64 `yaml:"quantile"`
}

// SampleConfig drives the periodic demonstration simulation logged by the
// main loop.
type SampleConfig struct {
	Enabled    bool          `yaml:"enabled"`
	Interval   time.Duration `yaml:"interval"`
	Side       string        `yaml:"side"`
	Quantity   float64       `yaml:"quantity"`
	Exchange   string        `yaml:"exchange"`
	MarketType string        `yaml:"market_type"`
	FeeTier    string        `yaml:"fee_tier"`
}

// FeesConfig overrides the built-in fee tables per exchange. Overrides
// replace the whole tier structure for the named exchange.
type FeesConfig struct {
	Overrides map[string]map[string]FeeMarketConfig `yaml:"overrides"`
}

// FeeMarketConfig holds maker and taker tier rates for one market type.
type FeeMarketConfig struct {
	Maker map[string]float64 `yaml:"maker"`
	Taker map[string]float64 `yaml:"taker"`
}

type LoggingConfig struct {
	Level         string                 `yaml:"level"`
	Format        string                 `yaml:"format"`
	Output        string                 `yaml:"output"`
	MaxAge        int                    `yaml:"max_age"`
	Fields        map[string]interface{} `yaml:"fields"`
	DashboardName string                 `yaml:"dashboard_name"`
}

func LoadConfig(path string) (*Config, error) {
	// Read configuration file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Config{
		Simulator: SimulatorConfig{
			MaxDepth:          50,
			DefaultVolatility: 0.01,
			Impact: ImpactConfig{
				TemporaryImpactFactor: 0.1,
				PermanentImpactFactor: 0.01,
				MarketVolFactor:       0.5,
				RiskAversion:          0.001,
			},
			Slippage: SlippageConfig{Regression: "linear"},
		},
	}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Override CloudWatch settings from environment variables if available
	if config.Metrics.CloudWatch.Enabled {
		if v := os.Getenv("AWS_REGION"); v != "" {
			config.Metrics.CloudWatch.Region = strings.TrimSpace(v)
		}
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &config, nil
}

func validateConfig(cfg *Config) error {
	if cfg.Costflow.Name == "" {
		return fmt.Errorf("costflow.name is required")
	}

	if cfg.Costflow.Version == "" {
		return fmt.Errorf("costflow.version is required")
	}

	if cfg.Channels.RawBuffer <= 0 {
		return fmt.Errorf("channels.raw_buffer must be greater than 0")
	}

	if cfg.Reader.MaxWorkers <= 0 {
		return fmt.Errorf("reader.max_workers must be greater than 0")
	}

	if cfg.Processor.MaxWorkers <= 0 {
		return fmt.Errorf("processor.max_workers must be greater than 0")
	}

	if cfg.Simulator.MaxDepth <= 0 {
		return fmt.Errorf("simulator.max_depth must be greater than 0")
	}
	if cfg.Simulator.DefaultVolatility < 0 {
		return fmt.Errorf("simulator.default_volatility must not be negative")
	}

	switch cfg.Simulator.Slippage.Regression {
	case "linear":
	case "quantile":
		if q := cfg.Simulator.Slippage.Quantile; q <= 0 || q >= 1 {
			return fmt.Errorf("simulator.slippage.quantile must be in (0, 1), got %v", q)
		}
	default:
		return fmt.Errorf("simulator.slippage.regression must be 'linear' or 'quantile', got '%s'",
			cfg.Simulator.Slippage.Regression)
	}

	if cfg.Source.Okx.Orderbook.Snapshots.Enabled {
		if cfg.Source.Okx.Orderbook.Snapshots.URL == "" {
			return fmt.Errorf("source.okx.orderbook.snapshots.url is required when the OKX reader is enabled")
		}
		if len(cfg.Source.Okx.Orderbook.Snapshots.Symbols) == 0 {
			return fmt.Errorf("source.okx.orderbook.snapshots.symbols must not be empty when the OKX reader is enabled")
		}
	}

	if cfg.Source.Binance.Orderbook.Snapshots.Enabled {
		if cfg.Source.Binance.Orderbook.Snapshots.IntervalMs <= 0 {
			return fmt.Errorf("source.binance.orderbook.snapshots.interval_ms must be greater than 0 when the Binance reader is enabled")
		}
		if len(cfg.Source.Binance.Orderbook.Snapshots.Symbols) == 0 {
			return fmt.Errorf("source.binance.orderbook.snapshots.symbols must not be empty when the Binance reader is enabled")
		}
	}

	return nil
}
