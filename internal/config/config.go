package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete application configuration
type Config struct {
	Hyperliquid HyperliquidConfig `mapstructure:"hyperliquid"`
	Equity      EquityConfig      `mapstructure:"equity"`
	Engine      EngineConfig      `mapstructure:"engine"`
	Telegram    TelegramConfig    `mapstructure:"telegram"`
	Storage     StorageConfig     `mapstructure:"storage"`
	Logging     LoggingConfig     `mapstructure:"logging"`
}

// HyperliquidConfig holds the perp venue API configuration
type HyperliquidConfig struct {
	InfoURL        string        `mapstructure:"info_url"`
	Dex            string        `mapstructure:"dex"` // TradFi sub-exchange, e.g. "xyz"
	Timeout        time.Duration `mapstructure:"timeout"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryDelayBase time.Duration `mapstructure:"retry_delay_base"`
	RateLimitRPS   float64       `mapstructure:"rate_limit_rps"`
	RateLimitBurst int           `mapstructure:"rate_limit_burst"`
}

// EquityConfig holds the public-listing directory and quote source configuration
type EquityConfig struct {
	NasdaqListedURL string        `mapstructure:"nasdaq_listed_url"`
	OtherListedURL  string        `mapstructure:"other_listed_url"`
	QuoteURL        string        `mapstructure:"quote_url"` // %s is replaced by the ticker
	Timeout         time.Duration `mapstructure:"timeout"`
	CacheTTL        time.Duration `mapstructure:"cache_ttl"`
	RetryTTL        time.Duration `mapstructure:"retry_ttl"`
}

// EngineConfig holds the decision-engine thresholds and schedules
type EngineConfig struct {
	RefreshInterval time.Duration `mapstructure:"refresh_interval"` // market snapshot poll
	CycleInterval   time.Duration `mapstructure:"cycle_interval"`   // full decision cycle

	FocusSetSize      int     `mapstructure:"focus_set_size"`
	MinMaxLeverage    int     `mapstructure:"min_max_leverage"`
	VolumeMin         float64 `mapstructure:"volume_min"` // 24h notional USD
	MaxDivergence     float64 `mapstructure:"max_divergence"`
	OICapFraction     float64 `mapstructure:"oi_cap_fraction"`
	MinViableNotional float64 `mapstructure:"min_viable_notional"`

	CollateralFraction float64 `mapstructure:"collateral_fraction"`
	OpsReserveUSD      float64 `mapstructure:"ops_reserve_usd"`
	FeeDragAPR         float64 `mapstructure:"fee_drag_apr"` // percentage points

	HurdleAPRPoints   float64 `mapstructure:"hurdle_apr_points"`
	ApproachAPRPoints float64 `mapstructure:"approach_apr_points"`

	MaterialDeltaUSD  float64 `mapstructure:"material_delta_usd"`
	RebalanceDeltaUSD float64 `mapstructure:"rebalance_delta_usd"`

	OpportunityDedupe time.Duration `mapstructure:"opportunity_dedupe"`
	OpportunityRefire float64       `mapstructure:"opportunity_refire"` // APR points of growth
	CriticalResend    time.Duration `mapstructure:"critical_resend"`
	InfoDedupe        time.Duration `mapstructure:"info_dedupe"`

	StaleCycleLimit int           `mapstructure:"stale_cycle_limit"` // consecutive misses before INFO
	LeaseTTL        time.Duration `mapstructure:"lease_ttl"`

	StockOnly bool              `mapstructure:"stock_only"`
	HedgeMap  map[string]string `mapstructure:"hedge_map"` // venue coin → equity symbol
}

// TelegramConfig holds Telegram notification configuration
type TelegramConfig struct {
	BotToken        string        `mapstructure:"bot_token"`
	ChatID          string        `mapstructure:"chat_id"`
	Enabled         bool          `mapstructure:"enabled"`
	MaxRetries      int           `mapstructure:"max_retries"`
	RetryDelayBase  time.Duration `mapstructure:"retry_delay_base"`
	CriticalRetries int           `mapstructure:"critical_retries"` // escalated delivery window
}

// StorageConfig holds storage and persistence configuration
type StorageConfig struct {
	DBPath string `mapstructure:"db_path"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from file and environment variables
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetConfigFile(path)

	setDefaults(v)

	v.SetEnvPrefix("HEDGEWATCH")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// setDefaults configures default values for all configuration options
func setDefaults(v *viper.Viper) {
	// Hyperliquid defaults
	v.SetDefault("hyperliquid.info_url", "https://api.hyperliquid.xyz/info")
	v.SetDefault("hyperliquid.dex", "xyz")
	v.SetDefault("hyperliquid.timeout", "15s")
	v.SetDefault("hyperliquid.max_retries", 3)
	v.SetDefault("hyperliquid.retry_delay_base", "1s")
	v.SetDefault("hyperliquid.rate_limit_rps", 5.0)
	v.SetDefault("hyperliquid.rate_limit_burst", 10)

	// Equity defaults
	v.SetDefault("equity.nasdaq_listed_url", "https://ftp.nasdaqtrader.com/dynamic/SymDir/nasdaqlisted.txt")
	v.SetDefault("equity.other_listed_url", "https://ftp.nasdaqtrader.com/dynamic/SymDir/otherlisted.txt")
	v.SetDefault("equity.quote_url", "https://stooq.com/q/l/?s=%s.us&f=sd2t2ohlcv&h&e=csv")
	v.SetDefault("equity.timeout", "10s")
	v.SetDefault("equity.cache_ttl", "24h")
	v.SetDefault("equity.retry_ttl", "5m")

	// Engine defaults
	v.SetDefault("engine.refresh_interval", "60s")
	v.SetDefault("engine.cycle_interval", "10m")
	v.SetDefault("engine.focus_set_size", 30)
	v.SetDefault("engine.min_max_leverage", 10)
	v.SetDefault("engine.volume_min", 5_000_000.0)
	v.SetDefault("engine.max_divergence", 0.015)
	v.SetDefault("engine.oi_cap_fraction", 0.05)
	v.SetDefault("engine.min_viable_notional", 10_000.0)
	v.SetDefault("engine.collateral_fraction", 0.25)
	v.SetDefault("engine.ops_reserve_usd", 2_500.0)
	v.SetDefault("engine.fee_drag_apr", 4.7) // 2 × 4.5 bps taker × ~52 round trips/yr
	v.SetDefault("engine.hurdle_apr_points", 20.0)
	v.SetDefault("engine.approach_apr_points", 10.0)
	v.SetDefault("engine.material_delta_usd", 1_000.0)
	v.SetDefault("engine.rebalance_delta_usd", 5_000.0)
	v.SetDefault("engine.opportunity_dedupe", "6h")
	v.SetDefault("engine.opportunity_refire", 10.0)
	v.SetDefault("engine.critical_resend", "15m")
	v.SetDefault("engine.info_dedupe", "6h")
	v.SetDefault("engine.stale_cycle_limit", 3)
	v.SetDefault("engine.lease_ttl", "15m")
	v.SetDefault("engine.stock_only", true)

	// Telegram defaults
	v.SetDefault("telegram.enabled", false)
	v.SetDefault("telegram.max_retries", 3)
	v.SetDefault("telegram.retry_delay_base", "1s")
	v.SetDefault("telegram.critical_retries", 12)

	// Storage defaults
	v.SetDefault("storage.db_path", "./data/hedgewatch.db")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// Validate checks that all configuration values are valid
func (c *Config) Validate() error {
	if c.Hyperliquid.InfoURL == "" {
		return fmt.Errorf("hyperliquid.info_url is required")
	}
	if c.Hyperliquid.Dex == "" {
		return fmt.Errorf("hyperliquid.dex is required")
	}
	if c.Hyperliquid.RateLimitRPS <= 0 {
		return fmt.Errorf("hyperliquid.rate_limit_rps must be positive")
	}

	if c.Equity.NasdaqListedURL == "" {
		return fmt.Errorf("equity.nasdaq_listed_url is required")
	}
	if c.Equity.OtherListedURL == "" {
		return fmt.Errorf("equity.other_listed_url is required")
	}

	if c.Engine.RefreshInterval < 10*time.Second {
		return fmt.Errorf("engine.refresh_interval must be at least 10 seconds")
	}
	if c.Engine.CycleInterval < time.Minute {
		return fmt.Errorf("engine.cycle_interval must be at least 1 minute")
	}
	if c.Engine.FocusSetSize < 1 {
		return fmt.Errorf("engine.focus_set_size must be at least 1")
	}
	if c.Engine.MinMaxLeverage < 1 {
		return fmt.Errorf("engine.min_max_leverage must be at least 1")
	}
	if c.Engine.VolumeMin < 0 {
		return fmt.Errorf("engine.volume_min must not be negative")
	}
	if c.Engine.MaxDivergence <= 0 || c.Engine.MaxDivergence > 1 {
		return fmt.Errorf("engine.max_divergence must be in (0, 1]")
	}
	if c.Engine.OICapFraction <= 0 || c.Engine.OICapFraction > 1 {
		return fmt.Errorf("engine.oi_cap_fraction must be in (0, 1]")
	}
	if c.Engine.CollateralFraction <= 0 {
		return fmt.Errorf("engine.collateral_fraction must be positive")
	}
	if c.Engine.OpsReserveUSD < 0 {
		return fmt.Errorf("engine.ops_reserve_usd must not be negative")
	}
	if c.Engine.HurdleAPRPoints <= c.Engine.ApproachAPRPoints {
		return fmt.Errorf("engine.hurdle_apr_points must exceed engine.approach_apr_points")
	}
	if c.Engine.OpportunityDedupe < time.Minute {
		return fmt.Errorf("engine.opportunity_dedupe must be at least 1 minute")
	}
	if c.Engine.CriticalResend < time.Minute {
		return fmt.Errorf("engine.critical_resend must be at least 1 minute")
	}
	if c.Engine.StaleCycleLimit < 1 {
		return fmt.Errorf("engine.stale_cycle_limit must be at least 1")
	}
	if c.Engine.LeaseTTL < c.Engine.CycleInterval {
		return fmt.Errorf("engine.lease_ttl must be at least engine.cycle_interval")
	}

	if c.Telegram.Enabled {
		if c.Telegram.BotToken == "" {
			return fmt.Errorf("telegram.bot_token is required when telegram is enabled")
		}
		if c.Telegram.ChatID == "" {
			return fmt.Errorf("telegram.chat_id is required when telegram is enabled")
		}
	}

	if c.Storage.DBPath == "" {
		return fmt.Errorf("storage.db_path is required")
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	return nil
}
