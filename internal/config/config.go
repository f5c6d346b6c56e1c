package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration for the consensus analytics engine.
type Config struct {
	App        AppConfig        `mapstructure:"app"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	NATS       NATSConfig       `mapstructure:"nats"`
	MarketData MarketDataConfig `mapstructure:"market_data"`
	Telegram   TelegramConfig   `mapstructure:"telegram"`
	Detector   DetectorConfig   `mapstructure:"detector"`
	Backtest   BacktestConfig   `mapstructure:"backtest"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
}

// AppConfig contains application-level settings.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"` // development, staging, production
	LogLevel    string `mapstructure:"log_level"`
	LogFormat   string `mapstructure:"log_format"` // "json" or "console"
}

// DatabaseConfig contains PostgreSQL settings.
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"ssl_mode"`
	PoolSize int    `mapstructure:"pool_size"`
}

// RedisConfig contains Redis connection settings. The startup Validator's
// connectivity check is the only code that connects with them.
type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// NATSConfig contains NATS messaging settings for consensus event publication.
type NATSConfig struct {
	URL             string `mapstructure:"url"`
	Subject         string `mapstructure:"subject"`
	EnableJetStream bool   `mapstructure:"enable_jetstream"`
}

// MarketDataConfig contains the market-data vendor adapter settings.
type MarketDataConfig struct {
	Provider        string `mapstructure:"provider"` // "binance"
	APIKey          string `mapstructure:"api_key"`
	SecretKey       string `mapstructure:"secret_key"`
	Testnet         bool   `mapstructure:"testnet"`
	CoinGeckoAPIKey string `mapstructure:"coingecko_api_key"`
}

// TelegramConfig contains settings for best-effort consensus notifications.
type TelegramConfig struct {
	Enabled  bool    `mapstructure:"enabled"`
	BotToken string  `mapstructure:"bot_token"`
	ChatIDs  []int64 `mapstructure:"chat_ids"`
}

// DetectorConfig contains default consensus parameters. They are validated
// on load but not read by internal/consensus, which applies its own built-in
// default rule and candle lookback.
type DetectorConfig struct {
	DefaultWindowMinutes int  `mapstructure:"default_window_minutes"`
	DefaultMinTraders    int  `mapstructure:"default_min_traders"`
	DefaultStrict        bool `mapstructure:"default_strict"`
	IndicatorLookback    int  `mapstructure:"indicator_lookback"` // hourly candles
}

// BacktestConfig contains default simulation parameters.
type BacktestConfig struct {
	DefaultTakeProfitPct   float64 `mapstructure:"default_take_profit_pct"`
	DefaultStopLossPct     float64 `mapstructure:"default_stop_loss_pct"`
	DefaultHoldingHours    int     `mapstructure:"default_holding_hours"`
	DefaultPositionSizePct float64 `mapstructure:"default_position_size_pct"`
}

// MonitoringConfig contains monitoring settings.
type MonitoringConfig struct {
	PrometheusPort int  `mapstructure:"prometheus_port"`
	EnableMetrics  bool `mapstructure:"enable_metrics"`
}

// Load loads configuration from file and environment variables.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	v.AutomaticEnv()
	v.SetEnvPrefix("CONSENSUS")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found; using defaults and environment variables
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "consensus-engine")
	v.SetDefault("app.version", Version)
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.log_level", "info")
	v.SetDefault("app.log_format", "json")

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.database", "consensus")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.pool_size", 10)

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)

	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("nats.subject", "consensus.events")
	v.SetDefault("nats.enable_jetstream", false)

	v.SetDefault("market_data.provider", "binance")
	v.SetDefault("market_data.testnet", true)

	v.SetDefault("telegram.enabled", false)

	v.SetDefault("detector.default_window_minutes", 10)
	v.SetDefault("detector.default_min_traders", 2)
	v.SetDefault("detector.default_strict", true)
	v.SetDefault("detector.indicator_lookback", 100)

	v.SetDefault("backtest.default_take_profit_pct", 5.0)
	v.SetDefault("backtest.default_stop_loss_pct", 3.0)
	v.SetDefault("backtest.default_holding_hours", 24)
	v.SetDefault("backtest.default_position_size_pct", 10.0)

	v.SetDefault("monitoring.prometheus_port", PrometheusPort)
	v.SetDefault("monitoring.enable_metrics", true)
}

// GetDSN returns the PostgreSQL connection string assembled from config
// values. It reads no secrets backend itself; internal/secrets
// LoadSecretsFromVault overlays the user and password beforehand when Vault
// is enabled.
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s pool_max_conns=%d",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode, c.PoolSize,
	)
}

// GetRedisAddr returns the Redis address.
func (c *RedisConfig) GetRedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// IndicatorLookbackDuration approximates the span covered by the configured
// hourly-candle lookback, for logging and cache-expiry purposes only.
func (c *DetectorConfig) IndicatorLookbackDuration() time.Duration {
	return time.Duration(c.IndicatorLookback) * time.Hour
}
