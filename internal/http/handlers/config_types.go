package handlers

import (
	"time"
)

// UnifiedConfigResponse is the whole configuration snapshot.
type UnifiedConfigResponse struct {
	Success bool `json:"success"`

	Runtime RuntimeConfig `json:"runtime"` // mutable at runtime
	Startup StartupConfig `json:"startup"` // fixed until restart
	Meta    ConfigMeta    `json:"meta"`
}

// RuntimeConfig holds everything that can change without a restart.
type RuntimeConfig struct {
	Settings        ConfigRuntimeSettings    `json:"settings"`
	CircuitBreakers CircuitBreakerConfigData `json:"circuit_breakers"`
}

// ConfigRuntimeSettings are the logging toggles.
type ConfigRuntimeSettings struct {
	LogLevel             string `json:"log_level"`
	EnableRequestLogging bool   `json:"enable_request_logging"`
}

// StartupConfig is the read-only boot-time configuration.
type StartupConfig struct {
	Server   ServerConfigData   `json:"server"`
	Database DatabaseConfigData `json:"database"`
	Storage  StorageConfigData  `json:"storage"`

	Pipeline  PipelineConfigData  `json:"pipeline"`
	Scheduler SchedulerConfigData `json:"scheduler"`
	Ingestion IngestionConfigData `json:"ingestion"`
}

// ServerConfigData mirrors the server section of the config file.
type ServerConfigData struct {
	Host string `json:"host"`
	Port int    `json:"port"`

	ReadTimeout  string `json:"read_timeout"`
	WriteTimeout string `json:"write_timeout"`
}

// DatabaseConfigData mirrors the database section; the DSN is redacted.
type DatabaseConfigData struct {
	Driver       string `json:"driver"`
	DSN string `json:"dsn"`

	MaxOpenConns int `json:"max_open_conns"`
	MaxIdleConns int `json:"max_idle_conns"`
}

// StorageConfigData mirrors the storage section.
type StorageConfigData struct {
	BaseDir   string `json:"base_dir"`
	OutputDir string `json:"output_dir"`
	TempDir   string `json:"temp_dir"`
}

// PipelineConfigData mirrors the pipeline section.
type PipelineConfigData struct {
	StreamBatchSize int  `json:"stream_batch_size"`
	RuleWorkers     int  `json:"rule_workers"`
	EnableGCHints   bool `json:"enable_gc_hints"`
}

// SchedulerConfigData mirrors the scheduler section.
type SchedulerConfigData struct {
	Enabled           bool   `json:"enabled"`
	CatchupMissedRuns bool   `json:"catchup_missed_runs"`
	MaxCatchupAge     string `json:"max_catchup_age"`
}

// IngestionConfigData mirrors the ingestion section.
type IngestionConfigData struct {
	ChannelBatchSize int    `json:"channel_batch_size"`
	EpgBatchSize     int    `json:"epg_batch_size"`
	HTTPTimeout      string `json:"http_timeout"`
	MaxConcurrent    int    `json:"max_concurrent"`
	RetryAttempts    int    `json:"retry_attempts"`
	RetryDelay       string `json:"retry_delay"`
	MaxResponseSize  string `json:"max_response_size"` // Human-readable format, e.g., "512 MB"
}

// ConfigMeta says where the config came from and whether it can be
// written back.
type ConfigMeta struct {
	ConfigPath string `json:"config_path,omitempty"`
	CanPersist bool   `json:"can_persist"`

	LastModified time.Time `json:"last_modified,omitempty"`
	Source       string    `json:"source"` // "file", "env", "defaults"
}

// UnifiedConfigUpdate is the PUT body; both sections are optional.
type UnifiedConfigUpdate struct {
	Settings        *ConfigRuntimeSettings          `json:"settings,omitempty"`
	CircuitBreakers *CircuitBreakerConfigUpdateData `json:"circuit_breakers,omitempty"`
}

// CircuitBreakerConfigUpdateData updates breaker profiles by name.
type CircuitBreakerConfigUpdateData struct {
	Global *CircuitBreakerProfile `json:"global,omitempty"`

	Profiles map[string]CircuitBreakerProfile `json:"profiles,omitempty"`
}

// ConfigUpdateResponse describes which settings a PUT changed.
type ConfigUpdateResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`

	AppliedChanges []string `json:"applied_changes,omitempty"`
}

// ConfigPersistResponse reports the file a POST /persist wrote.
type ConfigPersistResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`

	Path     string   `json:"path,omitempty"`
	Sections []string `json:"sections,omitempty"`
}
