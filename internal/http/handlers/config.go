package handlers

import (
	"context"
	"os"

	"github.com/danielgtaylor/huma/v2"
	"github.com/chanarr/chanarr/internal/observability"
	"github.com/chanarr/chanarr/pkg/bytesize"
	"github.com/chanarr/chanarr/pkg/httpclient"
	"github.com/spf13/viper"
)

// ConfigHandler serves the unified configuration endpoints: runtime
// settings, circuit breaker config, and the read-only startup config.
type ConfigHandler struct {
	cbManager *httpclient.CircuitBreakerManager
}

// NewConfigHandler creates a new unified config handler.
func NewConfigHandler(cbManager *httpclient.CircuitBreakerManager) *ConfigHandler {
	if cbManager == nil {
		cbManager = httpclient.DefaultManager
	}
	return &ConfigHandler{cbManager: cbManager}
}

// Register registers the config routes with the API.
func (h *ConfigHandler) Register(api huma.API) {
	huma.Register(api, operation("getConfig", "GET", "/api/v1/config",
		"Get unified configuration",
		"Returns all configuration data including runtime settings, circuit breaker config, and startup config",
		"Configuration"), h.GetConfig)
	huma.Register(api, operation("updateConfig", "PUT", "/api/v1/config",
		"Update runtime configuration",
		"Updates runtime-modifiable configuration. Omitted fields are not modified.",
		"Configuration"), h.UpdateConfig)
	huma.Register(api, operation("persistConfig", "POST", "/api/v1/config/persist",
		"Save configuration to file",
		"Persists current runtime configuration to the config file",
		"Configuration"), h.PersistConfig)
}

// UnifiedConfigInput has no parameters.
type UnifiedConfigInput struct{}

// UnifiedConfigOutput wraps the full configuration snapshot.
// UnifiedConfigOutput wraps the combined runtime and startup view.
type UnifiedConfigOutput struct {
	Body UnifiedConfigResponse
}

// GetConfig reports the combined runtime and startup configuration.
func (h *ConfigHandler) GetConfig(ctx context.Context, input *UnifiedConfigInput) (*UnifiedConfigOutput, error) {
	body := UnifiedConfigResponse{
		Success: true,
		Runtime: RuntimeConfig{
			Settings: ConfigRuntimeSettings{
				LogLevel:             observability.GetLogLevel(),
				EnableRequestLogging: observability.IsRequestLoggingEnabled(),
			},
			CircuitBreakers: h.circuitBreakerConfig(),
		},
		Startup: startupConfig(),
		Meta:    configMeta(),
	}
	return &UnifiedConfigOutput{Body: body}, nil
}

// UnifiedConfigUpdateInput carries the runtime config changes.
type UnifiedConfigUpdateInput struct {
	Body UnifiedConfigUpdate
}

// UnifiedConfigUpdateOutput lists the changes that were applied.
type UnifiedConfigUpdateOutput struct {
	Body ConfigUpdateResponse
}

// applySettings applies the logging settings block and describes what
// changed.
func applySettings(s *ConfigRuntimeSettings, changes []string) []string {
	if s.LogLevel != "" {
		previous := observability.GetLogLevel()
		observability.SetLogLevel(s.LogLevel)
		changes = append(changes, "log_level: "+previous+" -> "+s.LogLevel)
	}

	// enable_request_logging has no "absent" state, so a settings block
	// always applies it.
	previous := observability.IsRequestLoggingEnabled()
	observability.SetRequestLogging(s.EnableRequestLogging)
	if previous != s.EnableRequestLogging {
		changes = append(changes, "enable_request_logging: changed")
	}
	return changes
}

func (h *ConfigHandler) applyCircuitBreakers(cb *CircuitBreakerConfigUpdateData, changes []string) ([]string, error) {
	if cb.Global != nil {
		cfg, err := configFromProfile(*cb.Global)
		if err != nil {
			return changes, err
		}
		h.cbManager.UpdateGlobalConfig(cfg)
		changes = append(changes, "circuit_breakers.global: updated")
	}

	for service, profile := range cb.Profiles {
		cfg, err := configFromProfile(profile)
		if err != nil {
			return changes, err
		}
		h.cbManager.UpdateServiceConfig(service, cfg)
		changes = append(changes, "circuit_breakers.profiles."+service+": updated")
	}
	return changes, nil
}

// UpdateConfig updates runtime configuration.
func (h *ConfigHandler) UpdateConfig(ctx context.Context, input *UnifiedConfigUpdateInput) (*UnifiedConfigUpdateOutput, error) {
	changes := []string{}

	if input.Body.Settings != nil {
		changes = applySettings(input.Body.Settings, changes)
	}

	if input.Body.CircuitBreakers != nil {
		var err error
		changes, err = h.applyCircuitBreakers(input.Body.CircuitBreakers, changes)
		if err != nil {
			return nil, err
		}
	}

	resp := ConfigUpdateResponse{
		Success: true,
		Message: "Configuration updated successfully",

		AppliedChanges: changes,
	}
	return &UnifiedConfigUpdateOutput{Body: resp}, nil
}

// PersistConfigInput has no parameters.
type PersistConfigInput struct{}

// PersistConfigOutput reports where the configuration was written.
type PersistConfigOutput struct {
	Body ConfigPersistResponse
}

// writableForUpdate reports whether an existing file accepts writes.
func writableForUpdate(path string) error {
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	file, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		return err
	}
	return file.Close()
}

// PersistConfig saves configuration to file.
func (h *ConfigHandler) PersistConfig(ctx context.Context, input *PersistConfigInput) (*PersistConfigOutput, error) {
	path := viper.ConfigFileUsed()
	if path == "" {
		return nil, huma.Error403Forbidden("No config file path configured")
	}
	if err := writableForUpdate(path); err != nil {
		return nil, huma.Error403Forbidden("Config file is not writable: " + err.Error())
	}

	viper.Set("logging.level", observability.GetLogLevel())
	viper.Set("logging.request_logging", observability.IsRequestLoggingEnabled())

	err := viper.WriteConfig()
	if err != nil {
		return nil, huma.Error500InternalServerError("Failed to write config file: " + err.Error())
	}

	resp := ConfigPersistResponse{
		Success: true,
		Message: "Configuration saved to " + path,

		Path:     path,
		Sections: []string{"logging"},
	}
	return &PersistConfigOutput{Body: resp}, nil
}

func (h *ConfigHandler) circuitBreakerConfig() CircuitBreakerConfigData {
	cfg := h.cbManager.GetConfig()

	data := CircuitBreakerConfigData{
		Global:   profileFromConfig(cfg.Global),
		Profiles: map[string]CircuitBreakerProfile{},
	}
	for name, profile := range cfg.Profiles {
		data.Profiles[name] = profileFromConfig(profile)
	}
	return data
}

// startupConfig snapshots the boot-time configuration from viper. The DSN
// is withheld since it may embed credentials.
func startupConfig() StartupConfig {
	var cfg StartupConfig

	cfg.Server = ServerConfigData{
		Host:         viper.GetString("server.host"),
		Port:         viper.GetInt("server.port"),
		ReadTimeout:  viper.GetDuration("server.read_timeout").String(),
		WriteTimeout: viper.GetDuration("server.write_timeout").String(),
	}
	cfg.Database = DatabaseConfigData{
		Driver:       viper.GetString("database.driver"),
		DSN:          "[redacted]",
		MaxOpenConns: viper.GetInt("database.max_open_conns"),
		MaxIdleConns: viper.GetInt("database.max_idle_conns"),
	}
	cfg.Storage = StorageConfigData{
		BaseDir:   viper.GetString("storage.base_dir"),
		OutputDir: viper.GetString("storage.output_dir"),
		TempDir:   viper.GetString("storage.temp_dir"),
	}
	cfg.Pipeline = PipelineConfigData{
		StreamBatchSize: viper.GetInt("pipeline.stream_batch_size"),
		RuleWorkers:     viper.GetInt("pipeline.rule_workers"),
		EnableGCHints:   viper.GetBool("pipeline.enable_gc_hints"),
	}
	cfg.Scheduler = SchedulerConfigData{
		Enabled:           viper.GetBool("scheduler.enabled"),
		CatchupMissedRuns: viper.GetBool("scheduler.catchup_missed_runs"),
		MaxCatchupAge:     viper.GetDuration("scheduler.max_catchup_age").String(),
	}
	cfg.Ingestion = IngestionConfigData{
		ChannelBatchSize: viper.GetInt("ingestion.channel_batch_size"),
		EpgBatchSize:     viper.GetInt("ingestion.epg_batch_size"),
		HTTPTimeout:      viper.GetDuration("ingestion.http_timeout").String(),
		MaxConcurrent:    viper.GetInt("ingestion.max_concurrent"),
		RetryAttempts:    viper.GetInt("ingestion.retry_attempts"),
		RetryDelay:       viper.GetDuration("ingestion.retry_delay").String(),
		MaxResponseSize:  bytesize.Format(bytesize.Size(viper.GetInt64("ingestion.max_response_size"))),
	}
	return cfg
}

func configMeta() ConfigMeta {
	meta := ConfigMeta{
		ConfigPath: viper.ConfigFileUsed(),
		Source:     "defaults",
	}

	if meta.ConfigPath != "" {
		meta.Source = "file"
		if info, err := os.Stat(meta.ConfigPath); err == nil {
			meta.LastModified = info.ModTime()
			if file, err := os.OpenFile(meta.ConfigPath, os.O_WRONLY, 0); err == nil {
				meta.CanPersist = true
				file.Close()
			}
		}
	}

	// Coarse env-override detection.
	if os.Getenv("CHANARR_SERVER_PORT") != "" || os.Getenv("CHANARR_DATABASE_DSN") != "" {
		meta.Source = "env"
	}

	return meta
}
