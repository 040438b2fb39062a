package flowengine

import (
	"sync"
	"time"

	"github.com/mbflowrt/flowengine/internal/domain"
	"github.com/mbflowrt/flowengine/internal/domain/flowerr"
)

// CircuitBreakerConfig tunes one node type's breaker (§4.6). Grounded on
// internal/application/executor's CircuitBreakerConfig, minus
// SuccessThreshold: the spec's half-open rule closes on the first success,
// not after N. Window bounds how far back a failure still counts toward
// FailureThreshold ("failures >= threshold in the configured window", §4.6);
// a failure older than Window is evicted before the threshold check runs.
type CircuitBreakerConfig struct {
	FailureThreshold int
	OpenTimeout      time.Duration
	Window           time.Duration
}

// DefaultCircuitBreakerConfig returns the §4.6 defaults: 5 failures within
// a 60s rolling failure window trip the breaker, which then stays open for
// a 30s cooldown before admitting a half-open probe.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{FailureThreshold: 5, OpenTimeout: 30 * time.Second, Window: 60 * time.Second}
}

// CircuitBreaker implements the closed/open/half-open state machine of
// §4.6: closed tracks failures that fall within the rolling Window and
// trips to open once their count reaches the threshold; open rejects calls
// until OpenTimeout elapses, then allows exactly one probe call in
// half-open; that probe's outcome either closes the circuit (success) or
// reopens it (failure), resetting the timer.
type CircuitBreaker struct {
	mu     sync.Mutex
	config CircuitBreakerConfig
	state  domain.CircuitState

	failures         []time.Time
	openedAt         time.Time
	halfOpenInFlight bool
}

// NewCircuitBreaker constructs a breaker in the closed state.
func NewCircuitBreaker(config CircuitBreakerConfig) *CircuitBreaker {
	return &CircuitBreaker{config: config, state: domain.CircuitClosed}
}

// State returns the breaker's current state.
func (cb *CircuitBreaker) State() domain.CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Allow reports whether a call may proceed, transitioning open->half-open
// once the timeout has elapsed. A half-open probe is exclusive: only one
// caller is let through until it resolves.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case domain.CircuitClosed:
		return true
	case domain.CircuitOpen:
		if time.Since(cb.openedAt) < cb.config.OpenTimeout {
			return false
		}
		cb.state = domain.CircuitHalfOpen
		cb.halfOpenInFlight = true
		return true
	case domain.CircuitHalfOpen:
		if cb.halfOpenInFlight {
			return false
		}
		cb.halfOpenInFlight = true
		return true
	default:
		return false
	}
}

// RecordSuccess closes the circuit immediately from half-open, or clears
// the failure window from closed.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.failures = nil
	cb.halfOpenInFlight = false
	cb.state = domain.CircuitClosed
}

// RecordFailure reopens the circuit from half-open, or trips it from closed
// once FailureThreshold failures have landed within the last Window.
// Failures that aged out of the window are evicted before the count is
// checked, so a steady trickle of failures below the window's rate never
// trips the breaker.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.halfOpenInFlight = false

	if cb.state == domain.CircuitHalfOpen {
		cb.trip()
		return
	}

	now := time.Now()
	cb.failures = append(cb.evictExpired(now), now)
	if len(cb.failures) >= cb.config.FailureThreshold {
		cb.trip()
	}
}

// evictExpired drops failure timestamps older than Window relative to now.
// A zero Window disables the rolling behavior (every prior failure still
// counts, matching a breaker configured before Window existed).
func (cb *CircuitBreaker) evictExpired(now time.Time) []time.Time {
	if cb.config.Window <= 0 {
		return cb.failures
	}
	cutoff := now.Add(-cb.config.Window)
	kept := cb.failures[:0:0]
	for _, t := range cb.failures {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	return kept
}

func (cb *CircuitBreaker) trip() {
	cb.state = domain.CircuitOpen
	cb.openedAt = time.Now()
}

// Registry keys breakers per node type, per §4.6 ("a circuit breaker per
// node type"), grounded on CircuitBreakerRegistry from the teacher package.
type CircuitBreakerRegistry struct {
	mu       sync.Mutex
	config   CircuitBreakerConfig
	breakers map[string]*CircuitBreaker
}

// NewCircuitBreakerRegistry constructs a registry that lazily creates one
// breaker per node type key using config.
func NewCircuitBreakerRegistry(config CircuitBreakerConfig) *CircuitBreakerRegistry {
	return &CircuitBreakerRegistry{config: config, breakers: make(map[string]*CircuitBreaker)}
}

// Get returns (creating if needed) the breaker for a node type key.
func (r *CircuitBreakerRegistry) Get(nodeTypeKey string) *CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	cb, ok := r.breakers[nodeTypeKey]
	if !ok {
		cb = NewCircuitBreaker(r.config)
		r.breakers[nodeTypeKey] = cb
	}
	return cb
}

// Guard wraps a node executor call with the breaker's Allow/RecordSuccess/
// RecordFailure protocol, returning a circuit-open flowerr.Error without
// invoking fn when the breaker rejects the call.
func (r *CircuitBreakerRegistry) Guard(nodeTypeKey, nodeID string, fn func() NodeResult) NodeResult {
	cb := r.Get(nodeTypeKey)
	if !cb.Allow() {
		return Failed(flowerr.CircuitOpen(nodeID))
	}
	result := fn()
	if result.Success {
		cb.RecordSuccess()
	} else {
		cb.RecordFailure()
	}
	return result
}
