package httpclient

import (
	"sync"
	"time"
)

// Circuit breaker defaults, applied when a profile leaves a field unset.
const (
	DefaultCircuitThreshold   = 5
	DefaultCircuitTimeout     = 30 * time.Second
	DefaultCircuitHalfOpenMax = 1
)

// CircuitState is the state of a circuit breaker.
type CircuitState int

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	}
	return "unknown"
}

// CircuitBreakerProfileConfig tunes a single circuit breaker. Profiles are
// shared by pointer so the manager can swap settings at runtime without
// discarding breaker state.
type CircuitBreakerProfileConfig struct {
	// FailureThreshold is how many consecutive failures open the circuit.
	FailureThreshold int `json:"failure_threshold" yaml:"failure_threshold"`

	// ResetTimeout is how long an open circuit waits before probing.
	ResetTimeout time.Duration `json:"reset_timeout" yaml:"reset_timeout"`

	// HalfOpenMax is how many probe requests a half-open circuit admits.
	HalfOpenMax int `json:"half_open_max" yaml:"half_open_max"`

	// AcceptableStatusCodes lists responses the breaker counts as success.
	// Nil means any 2xx.
	AcceptableStatusCodes *StatusCodeSet `json:"acceptable_status_codes,omitempty" yaml:"acceptable_status_codes,omitempty"`
}

// DefaultProfileConfig returns the baseline profile.
func DefaultProfileConfig() CircuitBreakerProfileConfig {
	return CircuitBreakerProfileConfig{
		FailureThreshold: DefaultCircuitThreshold,
		ResetTimeout:     DefaultCircuitTimeout,
		HalfOpenMax:      DefaultCircuitHalfOpenMax,
	}
}

// Clone returns a deep copy of the profile.
func (c *CircuitBreakerProfileConfig) Clone() *CircuitBreakerProfileConfig {
	if c == nil {
		return nil
	}
	out := *c
	out.AcceptableStatusCodes = c.AcceptableStatusCodes.Clone()
	return &out
}

// MergeWith overlays the set fields of other on top of c and returns the
// result. Zero fields in other inherit from c, so sparse per-service
// profiles fall back to the global profile.
func (c *CircuitBreakerProfileConfig) MergeWith(other *CircuitBreakerProfileConfig) *CircuitBreakerProfileConfig {
	if other == nil {
		return c.Clone()
	}
	if c == nil {
		return other.Clone()
	}

	out := c.Clone()
	if other.FailureThreshold > 0 {
		out.FailureThreshold = other.FailureThreshold
	}
	if other.ResetTimeout > 0 {
		out.ResetTimeout = other.ResetTimeout
	}
	if other.HalfOpenMax > 0 {
		out.HalfOpenMax = other.HalfOpenMax
	}
	if other.AcceptableStatusCodes != nil {
		out.AcceptableStatusCodes = other.AcceptableStatusCodes.Clone()
	}
	return out
}

// CircuitBreaker tracks consecutive failures against an upstream and trips
// open once the configured threshold is hit. After ResetTimeout it admits a
// limited number of probes; one success closes it, one failure re-opens it.
type CircuitBreaker struct {
	mu sync.Mutex

	state       CircuitState
	consecFails int
	probes      int // probes admitted since entering half-open
	openedAt    time.Time

	totalRequests  int64
	totalSuccesses int64
	totalFailures  int64
	lastFailure    time.Time

	cfgMu sync.RWMutex
	cfg   *CircuitBreakerProfileConfig
}

// NewCircuitBreaker creates a breaker from individual settings.
func NewCircuitBreaker(threshold int, timeout time.Duration, halfOpenMax int) *CircuitBreaker {
	return NewCircuitBreakerWithConfig(&CircuitBreakerProfileConfig{
		FailureThreshold: threshold,
		ResetTimeout:     timeout,
		HalfOpenMax:      halfOpenMax,
	})
}

// NewCircuitBreakerWithConfig creates a breaker sharing the given profile
// pointer. A nil profile gets the defaults.
func NewCircuitBreakerWithConfig(cfg *CircuitBreakerProfileConfig) *CircuitBreaker {
	if cfg == nil {
		def := DefaultProfileConfig()
		cfg = &def
	}
	return &CircuitBreaker{state: CircuitClosed, cfg: cfg}
}

// UpdateConfig swaps the breaker's profile. Failure counts and state are
// kept so a config push does not mask an unhealthy upstream.
func (b *CircuitBreaker) UpdateConfig(cfg *CircuitBreakerProfileConfig) {
	b.cfgMu.Lock()
	b.cfg = cfg
	b.cfgMu.Unlock()
}

// Config returns a copy of the active profile.
func (b *CircuitBreaker) Config() CircuitBreakerProfileConfig {
	b.cfgMu.RLock()
	defer b.cfgMu.RUnlock()
	if b.cfg == nil {
		return DefaultProfileConfig()
	}
	return *b.cfg
}

// Allow reports whether a request may proceed, transitioning an expired open
// circuit to half-open as a side effect.
func (b *CircuitBreaker) Allow() bool {
	cfg := b.Config()

	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case CircuitClosed:
		return true
	case CircuitOpen:
		if time.Since(b.openedAt) < cfg.ResetTimeout {
			return false
		}
		b.state = CircuitHalfOpen
		b.probes = 1
		return true
	case CircuitHalfOpen:
		if b.probes >= cfg.HalfOpenMax {
			return false
		}
		b.probes++
		return true
	}
	return false
}

// RecordSuccess notes a successful request. In half-open state it closes
// the circuit.
func (b *CircuitBreaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.totalRequests++
	b.totalSuccesses++
	b.consecFails = 0
	if b.state == CircuitHalfOpen {
		b.state = CircuitClosed
		b.probes = 0
	}
}

// RecordFailure notes a failed request, opening the circuit when the
// threshold is reached or a half-open probe fails.
func (b *CircuitBreaker) RecordFailure() {
	threshold := b.Config().FailureThreshold
	if threshold <= 0 {
		threshold = DefaultCircuitThreshold
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.totalRequests++
	b.totalFailures++
	b.consecFails++
	b.lastFailure = time.Now()

	switch b.state {
	case CircuitClosed:
		if b.consecFails >= threshold {
			b.state = CircuitOpen
			b.openedAt = b.lastFailure
		}
	case CircuitHalfOpen:
		b.state = CircuitOpen
		b.openedAt = b.lastFailure
		b.probes = 0
	}
}

// State returns the current circuit state.
func (b *CircuitBreaker) State() CircuitState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Reset forces the circuit closed and clears the consecutive failure count.
func (b *CircuitBreaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = CircuitClosed
	b.consecFails = 0
	b.probes = 0
}

// CircuitBreakerStats is a point-in-time snapshot of a breaker.
type CircuitBreakerStats struct {
	State               CircuitState                `json:"state"`
	Failures            int                         `json:"failures"`
	Successes           int                         `json:"successes"`
	ConsecutiveFailures int                         `json:"consecutive_failures"`
	TotalRequests       int64                       `json:"total_requests"`
	TotalSuccesses      int64                       `json:"total_successes"`
	TotalFailures       int64                       `json:"total_failures"`
	LastFailure         time.Time                   `json:"last_failure,omitempty"`
	Config              CircuitBreakerProfileConfig `json:"config"`
}

// Stats returns a snapshot of the breaker's counters and state.
func (b *CircuitBreaker) Stats() CircuitBreakerStats {
	cfg := b.Config()

	b.mu.Lock()
	defer b.mu.Unlock()
	return CircuitBreakerStats{
		State:               b.state,
		Failures:            b.consecFails,
		Successes:           b.probes,
		ConsecutiveFailures: b.consecFails,
		TotalRequests:       b.totalRequests,
		TotalSuccesses:      b.totalSuccesses,
		TotalFailures:       b.totalFailures,
		LastFailure:         b.lastFailure,
		Config:              cfg,
	}
}
