package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Analysis  AnalysisConfig  `mapstructure:"analysis"`
	Generator GeneratorConfig `mapstructure:"generator"`
	Database  DatabaseConfig  `mapstructure:"database"`
	NATS      NATSConfig      `mapstructure:"nats"`
	PriceFeed PriceFeedConfig `mapstructure:"pricefeed"`
	Tracing   TracingConfig   `mapstructure:"tracing"`
	Webhooks  WebhooksConfig  `mapstructure:"webhooks"`
}

// AppConfig covers the HTTP surface.
type AppConfig struct {
	Env             string `mapstructure:"env"`
	LogLevel        string `mapstructure:"log_level"`
	HTTPPort        int    `mapstructure:"http_port"`
	AllowedOrigins  string `mapstructure:"allowed_origins"`
	RateLimitPerMin int    `mapstructure:"rate_limit_per_min"`
	RateLimitBurst  int    `mapstructure:"rate_limit_burst"`
}

// AnalysisConfig tunes scoring runs and alerting.
type AnalysisConfig struct {
	DefaultThreshold      float64 `mapstructure:"default_threshold"`
	ActivityIntervalHours float64 `mapstructure:"activity_interval_hours"`
	AlertMinScore         float64 `mapstructure:"alert_min_score"`
	AlertTopN             int     `mapstructure:"alert_top_n"`
	MaxHistory            int     `mapstructure:"max_history"`
}

// ActivityInterval converts the configured hours into a bucket width.
func (a AnalysisConfig) ActivityInterval() time.Duration {
	return time.Duration(a.ActivityIntervalHours * float64(time.Hour))
}

// GeneratorConfig shapes the dataset preloaded at startup.
type GeneratorConfig struct {
	WalletCount int   `mapstructure:"wallet_count"`
	TxPerWallet int   `mapstructure:"tx_per_wallet"`
	WindowDays  int   `mapstructure:"window_days"`
	Seed        int64 `mapstructure:"seed"`
	DayAligned  bool  `mapstructure:"day_aligned"`
	Preload     bool  `mapstructure:"preload"`
}

// DatabaseConfig points at the optional Postgres dataset feed.
type DatabaseConfig struct {
	URL      string `mapstructure:"url"`
	Enabled  bool   `mapstructure:"enabled"`
	MaxConns int32  `mapstructure:"max_conns"`
}

// NATSConfig represents NATS configuration
type NATSConfig struct {
	URL               string        `mapstructure:"url"`
	SubjectPrefix     string        `mapstructure:"subject_prefix"`
	Enabled           bool          `mapstructure:"enabled"`
	ConnectTimeout    time.Duration `mapstructure:"connect_timeout"`
	ReconnectAttempts int           `mapstructure:"reconnect_attempts"`
	ReconnectDelay    time.Duration `mapstructure:"reconnect_delay"`
}

// PriceFeedConfig controls the BTC price poller.
type PriceFeedConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	BaseURL        string        `mapstructure:"base_url"`
	Interval       time.Duration `mapstructure:"interval"`
	ProjectionDays int           `mapstructure:"projection_days"`
	Timeout        time.Duration `mapstructure:"timeout"`
}

// TracingConfig enables OTLP export when an endpoint is set.
type TracingConfig struct {
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
}

// WebhooksConfig lists alert receivers.
type WebhooksConfig struct {
	URLs        []string `mapstructure:"urls"`
	MinSeverity string   `mapstructure:"min_severity"`
}

// Load reads .env (if present), config.yaml (if present) and the
// environment, in increasing order of precedence.
func Load() (*Config, error) {
	// .env is optional; real environment variables win over it.
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/wallet-anomaly-engine")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}
	return LoadFrom(v)
}

// LoadFrom applies defaults and environment bindings to v and decodes it.
func LoadFrom(v *viper.Viper) (*Config, error) {
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	setDefaults(v)

	// Short names kept for deployments that predate the nested keys.
	_ = v.BindEnv("app.http_port", "APP_HTTP_PORT", "PORT")
	_ = v.BindEnv("app.allowed_origins", "APP_ALLOWED_ORIGINS", "ALLOWED_ORIGINS")
	_ = v.BindEnv("database.url", "DATABASE_URL")
	_ = v.BindEnv("nats.url", "NATS_URL")
	_ = v.BindEnv("tracing.otlp_endpoint", "TRACING_OTLP_ENDPOINT", "OTEL_EXPORTER_OTLP_ENDPOINT")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.env", "development")
	v.SetDefault("app.log_level", "info")
	v.SetDefault("app.http_port", 5339)
	v.SetDefault("app.allowed_origins", "")
	v.SetDefault("app.rate_limit_per_min", 120)
	v.SetDefault("app.rate_limit_burst", 30)

	v.SetDefault("analysis.default_threshold", 0.5)
	v.SetDefault("analysis.activity_interval_hours", 24)
	v.SetDefault("analysis.alert_min_score", 0.6)
	v.SetDefault("analysis.alert_top_n", 10)
	v.SetDefault("analysis.max_history", 1000)

	v.SetDefault("generator.wallet_count", 200)
	v.SetDefault("generator.tx_per_wallet", 3)
	v.SetDefault("generator.window_days", 60)
	v.SetDefault("generator.seed", 0)
	v.SetDefault("generator.day_aligned", true)
	v.SetDefault("generator.preload", true)

	v.SetDefault("database.url", "")
	v.SetDefault("database.enabled", false)
	v.SetDefault("database.max_conns", 10)

	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("nats.subject_prefix", "wallet_anomaly")
	v.SetDefault("nats.enabled", false)
	v.SetDefault("nats.connect_timeout", "10s")
	v.SetDefault("nats.reconnect_attempts", 5)
	v.SetDefault("nats.reconnect_delay", "2s")

	v.SetDefault("pricefeed.enabled", false)
	v.SetDefault("pricefeed.base_url", "https://api.coingecko.com/api/v3")
	v.SetDefault("pricefeed.interval", "60s")
	v.SetDefault("pricefeed.projection_days", 30)
	v.SetDefault("pricefeed.timeout", "10s")

	v.SetDefault("tracing.otlp_endpoint", "")

	v.SetDefault("webhooks.urls", []string{})
	v.SetDefault("webhooks.min_severity", "high")
}

// Validate reports every setting that would make the service misbehave.
func (c *Config) Validate() error {
	var result *multierror.Error
	if c.App.HTTPPort <= 0 {
		result = multierror.Append(result, fmt.Errorf("app.http_port must be positive, got %d", c.App.HTTPPort))
	}
	if c.App.RateLimitPerMin <= 0 || c.App.RateLimitBurst <= 0 {
		result = multierror.Append(result, fmt.Errorf("app rate limit must be positive"))
	}
	if c.Analysis.DefaultThreshold < 0 || c.Analysis.DefaultThreshold > 1 {
		result = multierror.Append(result, fmt.Errorf("analysis.default_threshold must be within [0,1], got %v", c.Analysis.DefaultThreshold))
	}
	if c.Analysis.ActivityIntervalHours <= 0 {
		result = multierror.Append(result, fmt.Errorf("analysis.activity_interval_hours must be positive"))
	}
	if c.Database.Enabled && c.Database.URL == "" {
		result = multierror.Append(result, fmt.Errorf("database.url is required when database.enabled is set"))
	}
	if c.PriceFeed.Enabled && c.PriceFeed.Interval <= 0 {
		result = multierror.Append(result, fmt.Errorf("pricefeed.interval must be positive"))
	}
	return result.ErrorOrNil()
}
