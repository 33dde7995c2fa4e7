// Package config loads chanarr configuration through Viper, layering
// defaults, an optional config file, and environment variables.
package config

import (
	"errors"
	"fmt"
	"net"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Fallback values applied before any file or environment override.
const (
	defaultServerPort      = 8080
	defaultServerTimeout   = 30 * time.Second
	defaultShutdownTimeout = 10 * time.Second

	defaultMaxOpenConns    = 25
	defaultMaxIdleConns    = 10
	defaultConnMaxIdleTime = 30 * time.Minute

	defaultChannelBatchSize = 1000
	defaultEPGBatchSize     = 5000
	defaultHTTPTimeout      = 60 * time.Second
	defaultMaxConcurrent    = 3
	defaultRetryAttempts    = 3
	defaultRetryDelay       = 5 * time.Second
	defaultMaxResponseSize  = 512 * 1024 * 1024 // 512MB

	defaultRuleWorkers = 4
)

// Config is the full application configuration tree.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Logging  LoggingConfig  `mapstructure:"logging"`

	Ingestion IngestionConfig `mapstructure:"ingestion"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`

	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`

	CORSOrigins []string `mapstructure:"cors_origins"`
	BaseURL         string        `mapstructure:"base_url"`
}

// DatabaseConfig holds the driver and connection pool settings.
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"` // sqlite, postgres or mysql
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	LogLevel        string        `mapstructure:"log_level"` // silent, error, warn or info
}

// StorageConfig holds the on-disk layout for generated files.
type StorageConfig struct {
	BaseDir   string `mapstructure:"base_dir"`
	OutputDir string `mapstructure:"output_dir"`
	TempDir   string `mapstructure:"temp_dir"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`  // debug, info, warn or error
	Format     string `mapstructure:"format"` // json or text
	AddSource  bool   `mapstructure:"add_source"`
	TimeFormat string `mapstructure:"time_format"`
}

// IngestionConfig tunes source ingestion runs.
type IngestionConfig struct {
	ChannelBatchSize int `mapstructure:"channel_batch_size"`
	EPGBatchSize     int `mapstructure:"epg_batch_size"`

	HTTPTimeout   time.Duration `mapstructure:"http_timeout"`
	MaxConcurrent int           `mapstructure:"max_concurrent"`

	RetryAttempts int           `mapstructure:"retry_attempts"`
	RetryDelay    time.Duration `mapstructure:"retry_delay"`
	// MaxResponseSize caps the size of a fetched playlist or guide document.
	// Supports human-readable values like "512MB", "1GB", or raw byte counts.
	MaxResponseSize ByteSize `mapstructure:"max_response_size"`
}

// PipelineConfig holds lineup assembly pipeline configuration.
type PipelineConfig struct {
	StreamBatchSize int  `mapstructure:"stream_batch_size"`
	EnableGCHints   bool `mapstructure:"enable_gc_hints"`
	// RuleWorkers is the number of concurrent workers used when applying
	// mapping rule chains to large channel sets.
	RuleWorkers int `mapstructure:"rule_workers"`
}

// SchedulerConfig holds scheduled regeneration configuration.
type SchedulerConfig struct {
	Enabled           bool `mapstructure:"enabled"`
	CatchupMissedRuns bool `mapstructure:"catchup_missed_runs"`
	// MaxCatchupAge bounds how stale a missed run may be and still be
	// executed at startup. Supports human-readable values like "1d", "12h".
	MaxCatchupAge Duration `mapstructure:"max_catchup_age"`
}

// Load reads configuration from file and environment variables. Environment
// variables win over the file, carry the CHANARR_ prefix and use underscores
// for nesting, e.g. CHANARR_SERVER_PORT=8080.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	SetDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		for _, dir := range []string{".", "./configs", "/etc/chanarr", "$HOME/.chanarr"} {
			v.AddConfigPath(dir)
		}
	}

	v.SetEnvPrefix("CHANARR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// A missing config file is fine; defaults and env vars still apply.
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	cfg := new(Config)
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// SetDefaults seeds v with the default value for every configuration key.
// Call it before reading the config file.
func SetDefaults(v *viper.Viper) {
	for key, val := range map[string]any{
		"server.host":             "0.0.0.0",
		"server.port":             defaultServerPort,
		"server.read_timeout":     defaultServerTimeout,
		"server.write_timeout":    defaultServerTimeout,
		"server.shutdown_timeout": defaultShutdownTimeout,
		"server.cors_origins":     []string{"*"},
		"server.base_url":         "",

		"database.driver":             "sqlite",
		"database.dsn":                "chanarr.db",
		"database.max_open_conns":     defaultMaxOpenConns,
		"database.max_idle_conns":     defaultMaxIdleConns,
		"database.conn_max_lifetime":  time.Hour,
		"database.conn_max_idle_time": defaultConnMaxIdleTime,
		"database.log_level":          "warn",

		"storage.base_dir":   "./data",
		"storage.output_dir": "output",
		"storage.temp_dir":   "temp",

		"logging.level":       "info",
		"logging.format":      "json",
		"logging.add_source":  false,
		"logging.time_format": time.RFC3339,

		"ingestion.channel_batch_size": defaultChannelBatchSize,
		"ingestion.epg_batch_size":     defaultEPGBatchSize,
		"ingestion.http_timeout":       defaultHTTPTimeout,
		"ingestion.max_concurrent":     defaultMaxConcurrent,
		"ingestion.retry_attempts":     defaultRetryAttempts,
		"ingestion.retry_delay":        defaultRetryDelay,
		"ingestion.max_response_size":  defaultMaxResponseSize,

		"pipeline.stream_batch_size": defaultChannelBatchSize,
		"pipeline.enable_gc_hints":   true,
		"pipeline.rule_workers":      defaultRuleWorkers,

		"scheduler.enabled":             true,
		"scheduler.catchup_missed_runs": true,
		"scheduler.max_catchup_age":     24 * time.Hour,
	} {
		v.SetDefault(key, val)
	}
}

// oneOf reports an error naming the key when value is not in allowed.
func oneOf(key, value string, allowed ...string) error {
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}
	return fmt.Errorf("%s must be one of: %s", key, strings.Join(allowed, ", "))
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	const maxPort = 65535
	const maxConcurrentIngestions = 100

	switch {
	case c.Server.Port < 1 || c.Server.Port > maxPort:
		return fmt.Errorf("server.port must be between 1 and %d", maxPort)
	case c.Database.DSN == "":
		return fmt.Errorf("database.dsn is required")
	case c.Database.MaxOpenConns < 1:
		return fmt.Errorf("database.max_open_conns must be at least 1")
	case c.Database.MaxIdleConns < 0:
		return fmt.Errorf("database.max_idle_conns must not be negative")
	case c.Storage.BaseDir == "":
		return fmt.Errorf("storage.base_dir is required")
	case c.Ingestion.ChannelBatchSize < 1:
		return fmt.Errorf("ingestion.channel_batch_size must be at least 1")
	case c.Ingestion.EPGBatchSize < 1:
		return fmt.Errorf("ingestion.epg_batch_size must be at least 1")
	case c.Ingestion.MaxConcurrent < 1 || c.Ingestion.MaxConcurrent > maxConcurrentIngestions:
		return fmt.Errorf("ingestion.max_concurrent must be between 1 and %d", maxConcurrentIngestions)
	case c.Pipeline.RuleWorkers < 1:
		return fmt.Errorf("pipeline.rule_workers must be at least 1")
	}

	if err := oneOf("database.driver", c.Database.Driver, "sqlite", "postgres", "mysql"); err != nil {
		return err
	}
	if err := oneOf("database.log_level", c.Database.LogLevel, "silent", "error", "warn", "info"); err != nil {
		return err
	}
	if err := oneOf("logging.level", c.Logging.Level, "debug", "info", "warn", "error"); err != nil {
		return err
	}
	return oneOf("logging.format", c.Logging.Format, "json", "text")
}

// Address returns the server address in host:port format.
func (c *ServerConfig) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// OutputPath returns the full path to the output directory.
func (c *StorageConfig) OutputPath() string {
	return filepath.Join(c.BaseDir, c.OutputDir)
}

// TempPath returns the full path to the temp directory.
func (c *StorageConfig) TempPath() string {
	return filepath.Join(c.BaseDir, c.TempDir)
}
