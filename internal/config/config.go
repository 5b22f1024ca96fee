// Package config loads application configuration from file and environment
// and initializes the global logger.
package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/crewbase/lifecycle-engine/internal/resilience"
)

// Config holds the full application configuration.
type Config struct {
	Store  StoreConfig  `yaml:"store" mapstructure:"store"`
	Policy PolicyConfig `yaml:"policy" mapstructure:"policy"`
	Notify NotifyConfig `yaml:"notify" mapstructure:"notify"`
	Batch  BatchConfig  `yaml:"batch" mapstructure:"batch"`
	Server ServerConfig `yaml:"server" mapstructure:"server"`
	Log    LogConfig    `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend. Driver is "postgres" or
// "sqlite"; DatabaseURL is a connection string for postgres and a file path
// for sqlite.
type StoreConfig struct {
	Driver       string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL  string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns     int    `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns     int    `yaml:"min_conns" mapstructure:"min_conns"`
	MaxConnIdleM int    `yaml:"max_conn_idle_minutes" mapstructure:"max_conn_idle_minutes"`
}

// PolicyConfig points at the lifecycle policy file. An empty path uses the
// built-in defaults.
type PolicyConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// NotifyConfig configures the outbound webhook. An empty URL disables it.
type NotifyConfig struct {
	WebhookURL    string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	TimeoutSecs   int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RatePerSecond float64 `yaml:"rate_per_second" mapstructure:"rate_per_second"`
	Burst         int     `yaml:"burst" mapstructure:"burst"`
	MaxAttempts   int     `yaml:"max_attempts" mapstructure:"max_attempts"`
}

// BatchConfig configures concurrent batch ingestion.
type BatchConfig struct {
	MaxConcurrentContractors int `yaml:"max_concurrent_contractors" mapstructure:"max_concurrent_contractors"`
}

// ServerConfig configures the HTTP fact-ingestion server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// RetryConfig builds the resilience retry settings for webhook delivery.
func (n NotifyConfig) RetryConfig() resilience.RetryConfig {
	cfg := resilience.DefaultRetryConfig()
	if n.MaxAttempts > 0 {
		cfg.MaxAttempts = n.MaxAttempts
	}
	return cfg
}

// Validate checks the settings a command mode depends on. Mode "store"
// covers commands that only need a database; "serve" additionally checks the
// HTTP listener and batch bounds.
func (c *Config) Validate(mode string) error {
	var missing []string

	requireStore := func() {
		switch c.Store.Driver {
		case "postgres", "sqlite":
		default:
			missing = append(missing, "store.driver must be postgres or sqlite")
		}
		if c.Store.DatabaseURL == "" {
			missing = append(missing, "store.database_url is required")
		}
	}

	switch mode {
	case "store":
		requireStore()
	case "serve":
		requireStore()
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			missing = append(missing, "server.port must be > 0")
		}
		if c.Batch.MaxConcurrentContractors < 1 || c.Batch.MaxConcurrentContractors > 50 {
			missing = append(missing, "batch.max_concurrent_contractors must be between 1 and 50")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(missing) > 0 {
		return eris.Errorf("config: validation failed: %s", strings.Join(missing, "; "))
	}
	return nil
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("LIFECYCLE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("store.max_conn_idle_minutes", 5)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("batch.max_concurrent_contractors", 5)
	v.SetDefault("notify.timeout_secs", 10)
	v.SetDefault("notify.rate_per_second", 5)
	v.SetDefault("notify.burst", 10)
	v.SetDefault("notify.max_attempts", 3)

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
