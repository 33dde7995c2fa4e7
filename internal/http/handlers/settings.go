package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/chanarr/chanarr/internal/observability"
)

// SettingsHandler exposes the runtime-tunable settings.
type SettingsHandler struct{}

// NewSettingsHandler creates a new settings handler.
func NewSettingsHandler() *SettingsHandler { return &SettingsHandler{} }

// Register registers the settings routes with the API.
func (h *SettingsHandler) Register(api huma.API) {
	const tag = "Settings"

	huma.Register(api, operation("getSettings", http.MethodGet,
		"/api/v1/settings", "Get runtime settings",
		"Returns current runtime settings", tag), h.GetSettings)

	huma.Register(api, operation("updateSettings", http.MethodPut,
		"/api/v1/settings", "Update runtime settings",
		"Updates runtime settings configuration", tag), h.UpdateSettings)

	huma.Register(api, operation("getSettingsInfo", http.MethodGet,
		"/api/v1/settings/info", "Get settings metadata",
		"Returns metadata about available settings", tag), h.GetSettingsInfo)
}

// RuntimeSettings is the tunable state reported to and accepted from clients.
type RuntimeSettings struct {
	LogLevel             string `json:"log_level"`
	EnableRequestLogging bool   `json:"enable_request_logging"`
}

// currentSettings snapshots the live runtime settings.
func currentSettings() RuntimeSettings {
	return RuntimeSettings{
		LogLevel:             observability.GetLogLevel(),
		EnableRequestLogging: observability.IsRequestLoggingEnabled(),
	}
}

// SettingsBody is the response body for reads and updates alike.
type SettingsBody struct {
	Success        bool            `json:"success"`
	Message        string          `json:"message"`
	Settings       RuntimeSettings `json:"settings"`
	AppliedChanges []string        `json:"applied_changes"`
}

// GetSettingsInput is the empty input for reads.
type GetSettingsInput struct{}

// GetSettingsOutput is the read response.
type GetSettingsOutput struct {
	Body SettingsBody
}

// GetSettings returns current runtime settings.
func (h *SettingsHandler) GetSettings(ctx context.Context, input *GetSettingsInput) (*GetSettingsOutput, error) {
	return &GetSettingsOutput{Body: SettingsBody{
		Success:        true,
		Message:        "Settings retrieved",
		Settings:       currentSettings(),
		AppliedChanges: []string{},
	}}, nil
}

// UpdateSettingsInput carries the fields to change; nil means leave alone.
type UpdateSettingsInput struct {
	Body struct {
		// LogLevel switches the runtime log level when present.
		LogLevel *string `json:"log_level,omitempty"`

		EnableRequestLogging *bool `json:"enable_request_logging,omitempty"`
	}
}

// UpdateSettingsOutput is the update response.
type UpdateSettingsOutput struct {
	Body SettingsBody
}

// UpdateSettings applies the provided fields. Log level changes take
// effect immediately for every logger sharing the global level.
func (h *SettingsHandler) UpdateSettings(ctx context.Context, input *UpdateSettingsInput) (*UpdateSettingsOutput, error) {
	applied := []string{}
	if input.Body.LogLevel != nil {
		observability.SetLogLevel(*input.Body.LogLevel)
		applied = append(applied, "log_level")
	}
	if input.Body.EnableRequestLogging != nil {
		observability.SetRequestLogging(*input.Body.EnableRequestLogging)
		applied = append(applied, "enable_request_logging")
	}

	return &UpdateSettingsOutput{Body: SettingsBody{
		Success:        true,
		Message:        "Settings updated successfully",
		Settings:       currentSettings(),
		AppliedChanges: applied,
	}}, nil
}

// GetSettingsInfoInput is the empty input for the metadata endpoint.
type GetSettingsInfoInput struct{}

// SettingOption is one selectable value for a select-typed field.
type SettingOption struct {
	Value string `json:"value"`
	Label string `json:"label"`

	Description string `json:"description,omitempty"`
}

// SettingField describes one setting so frontends can render a form for it.
type SettingField struct {
	Name        string          `json:"name"`
	Type        string          `json:"type"`
	Description string          `json:"description"`
	Default     any             `json:"default"`
	Options     []SettingOption `json:"options,omitempty"`
}

// GetSettingsInfoOutput is the metadata response.
type GetSettingsInfoOutput struct {
	Body struct {
		Fields []SettingField `json:"fields"`

		Version   string `json:"version"`
		Timestamp string `json:"timestamp"` // RFC3339
	}
}

// logLevelOptions is the level menu offered for the log_level field.
var logLevelOptions = []SettingOption{
	{Value: "trace", Label: "Trace", Description: "Most verbose logging"},
	{Value: "debug", Label: "Debug", Description: "Debug level logging"},
	{Value: "info", Label: "Info", Description: "Standard logging"},
	{Value: "warn", Label: "Warning", Description: "Warnings and errors only"},
	{Value: "error", Label: "Error", Description: "Errors only"},
}

// GetSettingsInfo describes the available settings for form rendering.
func (h *SettingsHandler) GetSettingsInfo(ctx context.Context, input *GetSettingsInfoInput) (*GetSettingsInfoOutput, error) {
	resp := &GetSettingsInfoOutput{}
	resp.Body.Fields = []SettingField{
		{Name: "log_level", Type: "select", Description: "Logging verbosity level",
			Default: "info", Options: logLevelOptions},
		{Name: "enable_request_logging", Type: "boolean",
			Description: "Enable logging of HTTP requests", Default: false},
	}
	resp.Body.Version = "1.0.0"
	resp.Body.Timestamp = time.Now().UTC().Format(time.RFC3339)
	return resp, nil
}
