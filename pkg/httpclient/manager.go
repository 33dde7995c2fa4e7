package httpclient

import (
	"log/slog"
	"sync"
)

// CircuitBreakerConfig is the full breaker configuration: a global profile
// plus per-service overrides. Override fields left at zero inherit from the
// global profile.
type CircuitBreakerConfig struct {
	Global   CircuitBreakerProfileConfig            `json:"global" yaml:"global"`
	Profiles map[string]CircuitBreakerProfileConfig `json:"profiles,omitempty" yaml:"profiles,omitempty"`
}

// DefaultCircuitBreakerConfig returns the configuration chanarr ships with.
// The resource-fetcher profile covers playlist and guide downloads, where
// upstream providers flake often enough that a low threshold would keep the
// circuit open more than closed.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		Global: DefaultProfileConfig(),
		Profiles: map[string]CircuitBreakerProfileConfig{
			"resource-fetcher": {
				FailureThreshold: 10,
			},
		},
	}
}

// GetProfileFor returns the effective profile for a service: its override
// merged over the global profile, or a copy of the global profile when no
// override exists.
func (c *CircuitBreakerConfig) GetProfileFor(service string) *CircuitBreakerProfileConfig {
	if override, ok := c.Profiles[service]; ok {
		return c.Global.MergeWith(&override)
	}
	return c.Global.Clone()
}

// Clone returns a deep copy of the config.
func (c *CircuitBreakerConfig) Clone() *CircuitBreakerConfig {
	if c == nil {
		return nil
	}
	out := &CircuitBreakerConfig{
		Global:   *c.Global.Clone(),
		Profiles: make(map[string]CircuitBreakerProfileConfig, len(c.Profiles)),
	}
	for name, p := range c.Profiles {
		out.Profiles[name] = *p.Clone()
	}
	return out
}

// CircuitBreakerManager hands out named circuit breakers so every client
// talking to the same upstream shares one breaker, and pushes config changes
// to live breakers without resetting their failure counts.
type CircuitBreakerManager struct {
	mu       sync.RWMutex
	breakers map[string]*CircuitBreaker
	active   map[string]*CircuitBreakerProfileConfig // live profile pointer per breaker
	config   *CircuitBreakerConfig
	logger   *slog.Logger
}

// DefaultManager is the process-wide manager. Handlers and fetchers that are
// not handed an explicit manager use this one.
var DefaultManager = NewCircuitBreakerManager(nil)

// NewCircuitBreakerManager creates a manager. A nil config gets
// DefaultCircuitBreakerConfig.
func NewCircuitBreakerManager(cfg *CircuitBreakerConfig) *CircuitBreakerManager {
	if cfg == nil {
		def := DefaultCircuitBreakerConfig()
		cfg = &def
	}
	return &CircuitBreakerManager{
		breakers: make(map[string]*CircuitBreaker),
		active:   make(map[string]*CircuitBreakerProfileConfig),
		config:   cfg,
		logger:   slog.Default(),
	}
}

// WithLogger sets the manager's logger.
func (m *CircuitBreakerManager) WithLogger(logger *slog.Logger) *CircuitBreakerManager {
	m.logger = logger
	return m
}

// GetOrCreate returns the breaker registered under name, creating it with
// the service's effective profile on first use. Callers asking for the same
// name share one instance.
func (m *CircuitBreakerManager) GetOrCreate(name string) *CircuitBreaker {
	m.mu.Lock()
	defer m.mu.Unlock()

	if b, ok := m.breakers[name]; ok {
		return b
	}

	cfg, ok := m.active[name]
	if !ok {
		cfg = m.config.GetProfileFor(name)
		m.active[name] = cfg
	}

	b := NewCircuitBreakerWithConfig(cfg)
	m.breakers[name] = b
	m.logger.Debug("created circuit breaker",
		slog.String("service", name),
		slog.Int("failure_threshold", cfg.FailureThreshold),
		slog.Duration("reset_timeout", cfg.ResetTimeout),
	)
	return b
}

// Get returns the breaker registered under name, or nil.
func (m *CircuitBreakerManager) Get(name string) *CircuitBreaker {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.breakers[name] // nil when untracked
}

// UpdateConfig replaces the full configuration and re-merges every live
// breaker's profile. Breaker state survives the swap.
func (m *CircuitBreakerManager) UpdateConfig(cfg *CircuitBreakerConfig) {
	if cfg == nil {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.config = cfg
	m.rewireLocked()
	m.logger.Info("circuit breaker configuration updated",
		slog.Int("active_breakers", len(m.breakers)),
	)
}

// UpdateGlobalConfig replaces only the global profile.
func (m *CircuitBreakerManager) UpdateGlobalConfig(cfg CircuitBreakerProfileConfig) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.config.Global = cfg
	m.rewireLocked()
	m.logger.Info("global circuit breaker configuration updated")
}

// UpdateServiceConfig sets or replaces one service's override profile.
func (m *CircuitBreakerManager) UpdateServiceConfig(name string, cfg CircuitBreakerProfileConfig) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.config.Profiles == nil {
		m.config.Profiles = make(map[string]CircuitBreakerProfileConfig)
	}
	m.config.Profiles[name] = cfg

	merged := m.config.GetProfileFor(name)
	m.active[name] = merged
	if b, ok := m.breakers[name]; ok {
		b.UpdateConfig(merged)
		m.logger.Debug("updated circuit breaker config",
			slog.String("service", name),
			slog.Int("failure_threshold", merged.FailureThreshold),
			slog.Duration("reset_timeout", merged.ResetTimeout),
		)
	}
}

// rewireLocked re-merges and pushes profiles to all live breakers.
// Caller holds m.mu.
func (m *CircuitBreakerManager) rewireLocked() {
	for name, b := range m.breakers {
		merged := m.config.GetProfileFor(name)
		m.active[name] = merged
		b.UpdateConfig(merged)
	}
}

// GetConfig returns a copy of the configuration, including effective
// profiles for breakers created without a static override.
func (m *CircuitBreakerManager) GetConfig() CircuitBreakerConfig {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := *m.config.Clone()
	if out.Profiles == nil {
		out.Profiles = make(map[string]CircuitBreakerProfileConfig)
	}
	for name, cfg := range m.active {
		if _, exists := out.Profiles[name]; !exists && cfg != nil {
			out.Profiles[name] = *cfg
		}
	}
	return out
}

// GetServiceConfig returns the effective profile for a service.
func (m *CircuitBreakerManager) GetServiceConfig(name string) CircuitBreakerProfileConfig {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if cfg, ok := m.active[name]; ok && cfg != nil {
		return *cfg
	}
	return *m.config.GetProfileFor(name)
}

// GetAllStats returns a snapshot of every live breaker.
func (m *CircuitBreakerManager) GetAllStats() map[string]CircuitBreakerStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := make(map[string]CircuitBreakerStats, len(m.breakers))
	for name, b := range m.breakers {
		stats[name] = b.Stats()
	}
	return stats
}

// ResetBreaker forces one breaker closed. Returns false if no breaker is
// registered under name.
func (m *CircuitBreakerManager) ResetBreaker(name string) bool {
	b := m.Get(name)
	if b == nil {
		return false
	}
	b.Reset()
	m.logger.Info("circuit breaker reset", slog.String("service", name))
	return true
}

// ResetAll forces every live breaker closed and returns how many there were.
func (m *CircuitBreakerManager) ResetAll() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, b := range m.breakers {
		b.Reset()
	}
	m.logger.Info("all circuit breakers reset", slog.Int("count", len(m.breakers)))
	return len(m.breakers)
}
