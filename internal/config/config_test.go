package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func baseConfig(t *testing.T) *Config {
	t.Helper()
	return &Config{
		Server: ServerConfig{Port: 8181},
		Database: DatabaseConfig{
			Driver:       "sqlite",
			DSN:          "chanarr-test.db",
			MaxOpenConns: 10,
			MaxIdleConns: 5,
			LogLevel:     "error",
		},
		Storage: StorageConfig{BaseDir: t.TempDir()},
		Logging: LoggingConfig{Level: "info", Format: "json"},
		Ingestion: IngestionConfig{
			ChannelBatchSize: 500,
			EPGBatchSize:     2500,
			MaxConcurrent:    2,
		},
		Pipeline: PipelineConfig{RuleWorkers: 2},
	}
}

// writeConfigFile drops the YAML content in a temp dir and returns its path.
func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 30*time.Second, cfg.Server.WriteTimeout)

	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "chanarr.db", cfg.Database.DSN)
	assert.Equal(t, 25, cfg.Database.MaxOpenConns)

	assert.Equal(t, "./data", cfg.Storage.BaseDir)
	assert.Equal(t, "output", cfg.Storage.OutputDir)
	assert.Equal(t, "temp", cfg.Storage.TempDir)

	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)

	assert.Equal(t, 1000, cfg.Ingestion.ChannelBatchSize)
	assert.Equal(t, 5000, cfg.Ingestion.EPGBatchSize)
	assert.EqualValues(t, 512*1024*1024, cfg.Ingestion.MaxResponseSize.Bytes())

	assert.Equal(t, 1000, cfg.Pipeline.StreamBatchSize)
	assert.True(t, cfg.Pipeline.EnableGCHints)
	assert.Equal(t, 4, cfg.Pipeline.RuleWorkers)

	assert.True(t, cfg.Scheduler.Enabled)
	assert.True(t, cfg.Scheduler.CatchupMissedRuns)
	assert.Equal(t, 24*time.Hour, cfg.Scheduler.MaxCatchupAge.Duration())
}

func TestLoad_FromFile(t *testing.T) {
	path := writeConfigFile(t, `
server:
  host: "127.0.0.1"
  port: 9191
  read_timeout: 45s
database:
  driver: "postgres"
  dsn: "postgres://viewer:pw@localhost/chanarr"
  max_open_conns: 15
storage:
  base_dir: "/var/lib/chanarr"
logging:
  level: "debug"
  format: "text"
ingestion:
  channel_batch_size: 2500
  epg_batch_size: 12000
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, 9191, cfg.Server.Port)
	assert.Equal(t, 45*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "postgres://viewer:pw@localhost/chanarr", cfg.Database.DSN)
	assert.Equal(t, 15, cfg.Database.MaxOpenConns)
	assert.Equal(t, "/var/lib/chanarr", cfg.Storage.BaseDir)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
	assert.Equal(t, 2500, cfg.Ingestion.ChannelBatchSize)
	assert.Equal(t, 12000, cfg.Ingestion.EPGBatchSize)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("CHANARR_SERVER_PORT", "3100")
	t.Setenv("CHANARR_DATABASE_DRIVER", "mysql")
	t.Setenv("CHANARR_DATABASE_DSN", "mysql://localhost/chanarr_test")
	t.Setenv("CHANARR_LOGGING_LEVEL", "warn")
	t.Setenv("CHANARR_INGESTION_CHANNEL_BATCH_SIZE", "750")

	cfg, err := Load("")
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, 3100, cfg.Server.Port)
	assert.Equal(t, "mysql", cfg.Database.Driver)
	assert.Equal(t, "mysql://localhost/chanarr_test", cfg.Database.DSN)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, 750, cfg.Ingestion.ChannelBatchSize)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfigFile(t, `
server:
  port: 8080
database:
  driver: "sqlite"
  dsn: "test.db"
`)
	t.Setenv("CHANARR_SERVER_PORT", "9000")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port, "env should win over the file")
	assert.Equal(t, "sqlite", cfg.Database.Driver, "file value survives for keys without env")
}

func TestValidate_ValidConfig(t *testing.T) {
	assert.NoError(t, baseConfig(t).Validate())
}

func TestValidate_RejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"zero port", func(c *Config) { c.Server.Port = 0 }, "server.port"},
		{"negative port", func(c *Config) { c.Server.Port = -1 }, "server.port"},
		{"port too high", func(c *Config) { c.Server.Port = 70000 }, "server.port"},
		{"unknown driver", func(c *Config) { c.Database.Driver = "invalid" }, "database.driver"},
		{"empty dsn", func(c *Config) { c.Database.DSN = "" }, "database.dsn"},
		{"unknown log level", func(c *Config) { c.Logging.Level = "invalid" }, "logging.level"},
		{"unknown log format", func(c *Config) { c.Logging.Format = "xml" }, "logging.format"},
		{"zero channel batch", func(c *Config) { c.Ingestion.ChannelBatchSize = 0 }, "channel_batch_size"},
		{"negative channel batch", func(c *Config) { c.Ingestion.ChannelBatchSize = -1 }, "channel_batch_size"},
		{"zero epg batch", func(c *Config) { c.Ingestion.EPGBatchSize = 0 }, "epg_batch_size"},
		{"negative epg batch", func(c *Config) { c.Ingestion.EPGBatchSize = -1 }, "epg_batch_size"},
		{"zero rule workers", func(c *Config) { c.Pipeline.RuleWorkers = 0 }, "rule_workers"},
		{"negative rule workers", func(c *Config) { c.Pipeline.RuleWorkers = -1 }, "rule_workers"},
		{"db log level not a gorm level", func(c *Config) { c.Database.LogLevel = "debug" }, "log_level"},
		{"zero max open conns", func(c *Config) { c.Database.MaxOpenConns = 0 }, "max_open_conns"},
		{"negative max idle conns", func(c *Config) { c.Database.MaxIdleConns = -1 }, "max_idle_conns"},
		{"zero max concurrent", func(c *Config) { c.Ingestion.MaxConcurrent = 0 }, "max_concurrent"},
		{"too high max concurrent", func(c *Config) { c.Ingestion.MaxConcurrent = 101 }, "max_concurrent"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := baseConfig(t)
			tc.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.field)
		})
	}
}

func TestServerConfig_Address(t *testing.T) {
	cases := []struct {
		host string
		port int
		want string
	}{
		{"127.0.0.1", 8080, "127.0.0.1:8080"},
		{"0.0.0.0", 3000, "0.0.0.0:3000"},
		{"example.com", 443, "example.com:443"},
	}

	for _, tc := range cases {
		cfg := &ServerConfig{Host: tc.host, Port: tc.port}
		assert.Equal(t, tc.want, cfg.Address())
	}
}

func TestStorageConfig_Paths(t *testing.T) {
	cfg := &StorageConfig{
		BaseDir:   "/var/lib/chanarr",
		OutputDir: "output",
		TempDir:   "temp",
	}

	assert.Equal(t, "/var/lib/chanarr/output", cfg.OutputPath())
	assert.Equal(t, "/var/lib/chanarr/temp", cfg.TempPath())
}

func TestLoad_InvalidConfigFile(t *testing.T) {
	path := writeConfigFile(t, `
server:
  port: "not a number"
  invalid yaml structure
`)

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_NonExistentFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	assert.Error(t, err)
}

func TestConfig_AllDrivers(t *testing.T) {
	for _, driver := range []string{"sqlite", "postgres", "mysql"} {
		t.Run(driver, func(t *testing.T) {
			cfg := baseConfig(t)
			cfg.Database.Driver = driver
			assert.NoError(t, cfg.Validate())
		})
	}
}
