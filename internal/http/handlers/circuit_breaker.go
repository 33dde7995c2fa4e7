package handlers

import (
	"context"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/chanarr/chanarr/pkg/httpclient"
)

// CircuitBreakerHandler exposes runtime circuit breaker configuration and
// reset endpoints.
type CircuitBreakerHandler struct {
	manager *httpclient.CircuitBreakerManager
}

// NewCircuitBreakerHandler creates a handler backed by the given manager,
// or the process-wide default when nil.
func NewCircuitBreakerHandler(manager *httpclient.CircuitBreakerManager) *CircuitBreakerHandler {
	if manager == nil {
		manager = httpclient.DefaultManager
	}
	return &CircuitBreakerHandler{manager: manager}
}

// Register registers the circuit breaker routes with the API.
func (h *CircuitBreakerHandler) Register(api huma.API) {
	huma.Register(api, operation("getCircuitBreakerConfig", "GET", "/api/v1/circuit-breakers/config",
		"Get circuit breaker configuration", "Returns circuit breaker configuration and current status",
		"Circuit Breakers"), h.GetConfig)
	huma.Register(api, operation("updateCircuitBreakerConfig", "PUT", "/api/v1/circuit-breakers/config",
		"Update circuit breaker configuration", "Updates circuit breaker configuration at runtime",
		"Circuit Breakers"), h.UpdateConfig)
	huma.Register(api, operation("resetCircuitBreaker", "POST", "/api/v1/circuit-breakers/{name}/reset",
		"Reset a circuit breaker", "Resets a specific circuit breaker to closed state",
		"Circuit Breakers"), h.ResetCircuitBreaker)
	huma.Register(api, operation("resetAllCircuitBreakers", "POST", "/api/v1/circuit-breakers/reset",
		"Reset all circuit breakers", "Resets all circuit breakers to closed state",
		"Circuit Breakers"), h.ResetAllCircuitBreakers)
}

// CircuitBreakerProfile is the API shape of one breaker profile.
type CircuitBreakerProfile struct {
	FailureThreshold int    `json:"failure_threshold"`
	ResetTimeout     string `json:"reset_timeout"` // duration string
	HalfOpenMax      int    `json:"half_open_max"`

	AcceptableStatusCodes string `json:"acceptable_status_codes,omitempty"`
}

// CircuitBreakerConfigData is the global profile plus per-service overrides.
type CircuitBreakerConfigData struct {
	Global   CircuitBreakerProfile            `json:"global"`
	Profiles map[string]CircuitBreakerProfile `json:"profiles"`
}

// CircuitBreakerStatusData is the live state of one breaker.
type CircuitBreakerStatusData struct {
	Name  string `json:"name"`
	State string `json:"state"`

	Failures         int `json:"failures"`
	Successes        int `json:"successes"`
	ConsecutiveFails int `json:"consecutive_fails"`

	TotalRequests  int64 `json:"total_requests"`
	TotalSuccesses int64 `json:"total_successes"`
	TotalFailures  int64 `json:"total_failures"`

	LastFailure time.Time `json:"last_failure,omitempty"`
}

// GetConfigInput has no parameters.
type GetConfigInput struct{}

// GetConfigOutput carries the configuration plus live breaker statuses.
type GetConfigOutput struct {
	Body struct {
		Success bool `json:"success"`

		Data struct {
			Config CircuitBreakerConfigData `json:"config"`

			Statuses []CircuitBreakerStatusData `json:"statuses"` // one per tracked host
		} `json:"data"`
	}
}

func profileFromConfig(cfg httpclient.CircuitBreakerProfileConfig) CircuitBreakerProfile {
	p := CircuitBreakerProfile{
		FailureThreshold: cfg.FailureThreshold,
		ResetTimeout:     cfg.ResetTimeout.String(),
		HalfOpenMax:      cfg.HalfOpenMax,
	}
	if cfg.AcceptableStatusCodes != nil {
		p.AcceptableStatusCodes = cfg.AcceptableStatusCodes.String()
	}
	return p
}

func configFromProfile(p CircuitBreakerProfile) (httpclient.CircuitBreakerProfileConfig, error) {
	cfg := httpclient.CircuitBreakerProfileConfig{
		FailureThreshold: p.FailureThreshold, HalfOpenMax: p.HalfOpenMax,
	}
	if p.ResetTimeout != "" {
		timeout, err := time.ParseDuration(p.ResetTimeout)
		if err != nil {
			return cfg, huma.Error400BadRequest("invalid reset_timeout format: " + err.Error())
		}
		cfg.ResetTimeout = timeout
	}

	if p.AcceptableStatusCodes == "" {
		return cfg, nil
	}
	codes, err := httpclient.ParseStatusCodes(p.AcceptableStatusCodes)
	if err != nil {
		return cfg, huma.Error400BadRequest("invalid acceptable_status_codes: " + err.Error())
	}
	cfg.AcceptableStatusCodes = codes
	return cfg, nil
}

// GetConfig returns circuit breaker configuration and status.
func (h *CircuitBreakerHandler) GetConfig(ctx context.Context, input *GetConfigInput) (*GetConfigOutput, error) {
	cfg := h.manager.GetConfig()

	data := CircuitBreakerConfigData{
		Global:   profileFromConfig(cfg.Global),
		Profiles: map[string]CircuitBreakerProfile{},
	}
	for name, profile := range cfg.Profiles {
		data.Profiles[name] = profileFromConfig(profile)
	}

	stats := h.manager.GetAllStats()
	statuses := make([]CircuitBreakerStatusData, 0, len(stats))
	for name, st := range stats {
		statuses = append(statuses, CircuitBreakerStatusData{
			Name:             name,
			State:            st.State.String(),
			Failures:         st.Failures,
			Successes:        st.Successes,
			ConsecutiveFails: st.ConsecutiveFailures,
			TotalRequests:    st.TotalRequests,
			TotalSuccesses:   st.TotalSuccesses,
			TotalFailures:    st.TotalFailures,
			LastFailure:      st.LastFailure,
		})
	}

	out := &GetConfigOutput{}
	out.Body.Success = true
	out.Body.Data.Config = data
	out.Body.Data.Statuses = statuses
	return out, nil
}

// UpdateConfigInput is the runtime config update body; both sections are
// optional.
type UpdateConfigInput struct {
	Body struct {
		// Global replaces the default profile when present.
		Global *CircuitBreakerProfile `json:"global,omitempty"`

		Profiles map[string]CircuitBreakerProfile `json:"profiles,omitempty"`
	}
}

// UpdateConfigOutput confirms an applied config update.
type UpdateConfigOutput struct {
	Body struct {
		Success bool   `json:"success"`
		Message string `json:"message"`

		Timestamp string `json:"timestamp"` // RFC3339
	}
}

// UpdateConfig applies configuration changes at runtime.
func (h *CircuitBreakerHandler) UpdateConfig(ctx context.Context, input *UpdateConfigInput) (*UpdateConfigOutput, error) {
	if input.Body.Global != nil {
		cfg, err := configFromProfile(*input.Body.Global)
		if err != nil {
			return nil, err
		}
		h.manager.UpdateGlobalConfig(cfg)
	}

	for service, profile := range input.Body.Profiles {
		cfg, err := configFromProfile(profile)
		if err != nil {
			return nil, err
		}
		h.manager.UpdateServiceConfig(service, cfg)
	}

	out := &UpdateConfigOutput{}
	out.Body.Success = true
	out.Body.Message = "Circuit breaker configuration updated successfully"
	out.Body.Timestamp = time.Now().UTC().Format(time.RFC3339)
	return out, nil
}

// ResetCircuitBreakerInput names the breaker to reset.
type ResetCircuitBreakerInput struct {
	Name string `path:"name" required:"true"`
}

// ResetCircuitBreakerOutput carries the post-reset breaker state.
type ResetCircuitBreakerOutput struct {
	Body struct {
		Success bool   `json:"success"`
		Message string `json:"message"`

		Name     string `json:"name"`
		NewState string `json:"new_state"`

		Timestamp string `json:"timestamp"` // RFC3339
	}
}

// ResetCircuitBreaker forces one breaker back to closed.
func (h *CircuitBreakerHandler) ResetCircuitBreaker(ctx context.Context, input *ResetCircuitBreakerInput) (*ResetCircuitBreakerOutput, error) {
	if !h.manager.ResetBreaker(input.Name) {
		return nil, huma.Error404NotFound("Circuit breaker not found: " + input.Name)
	}

	state := "closed"
	if breaker := h.manager.Get(input.Name); breaker != nil {
		state = breaker.State().String()
	}

	out := &ResetCircuitBreakerOutput{}
	out.Body.Success = true
	out.Body.Message = "Circuit breaker reset successfully"
	out.Body.Name = input.Name
	out.Body.NewState = state
	out.Body.Timestamp = time.Now().UTC().Format(time.RFC3339)
	return out, nil
}

// ResetAllCircuitBreakersInput has no parameters.
type ResetAllCircuitBreakersInput struct{}

// ResetAllCircuitBreakersOutput counts the breakers that were reset.
type ResetAllCircuitBreakersOutput struct {
	Body struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
		Count   int    `json:"count"` // breakers reset

		Timestamp string `json:"timestamp"` // RFC3339
	}
}

// ResetAllCircuitBreakers forces every breaker back to closed.
func (h *CircuitBreakerHandler) ResetAllCircuitBreakers(ctx context.Context, input *ResetAllCircuitBreakersInput) (*ResetAllCircuitBreakersOutput, error) {
	reset := h.manager.ResetAll()

	out := &ResetAllCircuitBreakersOutput{}
	out.Body.Success = true
	out.Body.Message = "All circuit breakers reset successfully"
	out.Body.Count = reset
	out.Body.Timestamp = time.Now().UTC().Format(time.RFC3339)
	return out, nil
}
