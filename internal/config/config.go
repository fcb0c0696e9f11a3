package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store   StoreConfig   `yaml:"store" mapstructure:"store"`
	Pricing PricingConfig `yaml:"pricing" mapstructure:"pricing"`
	Queue   QueueConfig   `yaml:"queue" mapstructure:"queue"`
	Server  ServerConfig  `yaml:"server" mapstructure:"server"`
	Sinks   SinksConfig   `yaml:"sinks" mapstructure:"sinks"`
	Geocode GeocodeConfig `yaml:"geocode" mapstructure:"geocode"`
	Log     LogConfig     `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	Path        string `yaml:"path" mapstructure:"path"`
}

// PricingConfig holds the quote cost model constants.
type PricingConfig struct {
	CostPerFootUSD int     `yaml:"cost_per_foot_usd" mapstructure:"cost_per_foot_usd"`
	PricePerKWh    float64 `yaml:"price_per_kwh" mapstructure:"price_per_kwh"`
	CapacityFactor float64 `yaml:"capacity_factor" mapstructure:"capacity_factor"`
	PanelWatts     int     `yaml:"panel_watts" mapstructure:"panel_watts"`
}

// QueueConfig configures the durable lead queue.
type QueueConfig struct {
	MaxRetries         int `yaml:"max_retries" mapstructure:"max_retries"`
	MaxSize            int `yaml:"max_size" mapstructure:"max_size"`
	MaxAgeHours        int `yaml:"max_age_hours" mapstructure:"max_age_hours"`
	MinFlushIntervalMs int `yaml:"min_flush_interval_ms" mapstructure:"min_flush_interval_ms"`
	InitialBackoffMs   int `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs       int `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
}

// ServerConfig configures the lead intake server.
type ServerConfig struct {
	Port            int      `yaml:"port" mapstructure:"port"`
	MinCompletionMs int      `yaml:"min_completion_ms" mapstructure:"min_completion_ms"`
	RateLimitRPS    float64  `yaml:"rate_limit_rps" mapstructure:"rate_limit_rps"`
	RateLimitBurst  int      `yaml:"rate_limit_burst" mapstructure:"rate_limit_burst"`
	AllowedOrigins  []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// SinksConfig configures downstream lead destinations.
type SinksConfig struct {
	HTTP       HTTPSinkConfig   `yaml:"http" mapstructure:"http"`
	XLSX       XLSXSinkConfig   `yaml:"xlsx" mapstructure:"xlsx"`
	Notion     NotionConfig     `yaml:"notion" mapstructure:"notion"`
	Salesforce SalesforceConfig `yaml:"salesforce" mapstructure:"salesforce"`
}

// HTTPSinkConfig configures the primary HTTP intake endpoint.
type HTTPSinkConfig struct {
	Endpoint string `yaml:"endpoint" mapstructure:"endpoint"`
}

// XLSXSinkConfig configures the spreadsheet sink.
type XLSXSinkConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// NotionConfig holds Notion API credentials and database IDs.
type NotionConfig struct {
	Token  string `yaml:"token" mapstructure:"token"`
	LeadDB string `yaml:"lead_db" mapstructure:"lead_db"`
}

// SalesforceConfig holds Salesforce JWT auth settings.
type SalesforceConfig struct {
	ClientID string `yaml:"client_id" mapstructure:"client_id"`
	Username string `yaml:"username" mapstructure:"username"`
	KeyPath  string `yaml:"key_path" mapstructure:"key_path"`
	LoginURL string `yaml:"login_url" mapstructure:"login_url"`
}

// GeocodeConfig configures address lookup.
type GeocodeConfig struct {
	GoogleKey string  `yaml:"google_key" mapstructure:"google_key"`
	RPS       float64 `yaml:"rps" mapstructure:"rps"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("QUOTE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.path", "quote.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.min_completion_ms", 3000)
	v.SetDefault("server.rate_limit_rps", 5)
	v.SetDefault("server.rate_limit_burst", 10)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("pricing.cost_per_foot_usd", 45)
	v.SetDefault("pricing.price_per_kwh", 0.14)
	v.SetDefault("pricing.capacity_factor", 0.18)
	v.SetDefault("pricing.panel_watts", 400)
	v.SetDefault("queue.max_retries", 3)
	v.SetDefault("queue.max_size", 10)
	v.SetDefault("queue.max_age_hours", 24)
	v.SetDefault("queue.min_flush_interval_ms", 2000)
	v.SetDefault("queue.initial_backoff_ms", 3000)
	v.SetDefault("queue.max_backoff_ms", 30000)
	v.SetDefault("sinks.xlsx.path", "leads.xlsx")
	v.SetDefault("sinks.salesforce.login_url", "https://login.salesforce.com")
	v.SetDefault("geocode.rps", 2)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
