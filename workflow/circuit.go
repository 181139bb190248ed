package workflow

import (
	"sync"
	"time"
)

// CircuitState is the position of a node's circuit breaker.
type CircuitState string

const (
	// CircuitClosed passes calls through normally.
	CircuitClosed CircuitState = "closed"
	// CircuitOpen rejects calls until the recovery timeout elapses.
	CircuitOpen CircuitState = "open"
	// CircuitHalfOpen allows probe calls; success closes, failure reopens.
	CircuitHalfOpen CircuitState = "half_open"
)

// CircuitBreakerConfig tunes a per-node circuit breaker.
type CircuitBreakerConfig struct {
	// FailureThreshold is the consecutive failures that open the circuit.
	FailureThreshold int `json:"failure_threshold"`
	// RecoveryTimeout is the open duration before a half-open probe.
	RecoveryTimeout time.Duration `json:"recovery_timeout"`
	// SuccessThreshold is the half-open successes needed to close.
	SuccessThreshold int `json:"success_threshold"`
}

// DefaultCircuitBreakerConfig opens after 5 failures, probes after 30s,
// and closes on 2 successes.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		FailureThreshold: 5,
		RecoveryTimeout:  30 * time.Second,
		SuccessThreshold: 2,
	}
}

// CircuitBreaker guards a node against cascading failures.
type CircuitBreaker struct {
	mu        sync.Mutex
	config    CircuitBreakerConfig
	state     CircuitState
	failures  int
	successes int
	openedAt  time.Time
	now       func() time.Time
}

// NewCircuitBreaker creates a closed breaker.
func NewCircuitBreaker(config CircuitBreakerConfig) *CircuitBreaker {
	if config.FailureThreshold < 1 {
		config.FailureThreshold = 1
	}
	if config.SuccessThreshold < 1 {
		config.SuccessThreshold = 1
	}
	return &CircuitBreaker{config: config, state: CircuitClosed, now: time.Now}
}

// Allow reports whether a call may proceed, transitioning Open to HalfOpen
// once the recovery timeout has elapsed.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == CircuitOpen {
		if cb.now().Sub(cb.openedAt) < cb.config.RecoveryTimeout {
			return false
		}
		cb.state = CircuitHalfOpen
		cb.successes = 0
	}
	return true
}

// RecordSuccess notes one successful call.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.failures = 0
	cb.successes++
	if cb.state == CircuitHalfOpen && cb.successes >= cb.config.SuccessThreshold {
		cb.state = CircuitClosed
		cb.successes = 0
	}
}

// RecordFailure notes one failed call. A failure during a half-open probe
// reopens immediately.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.failures++
	cb.successes = 0
	if cb.state == CircuitHalfOpen || (cb.state == CircuitClosed && cb.failures >= cb.config.FailureThreshold) {
		cb.state = CircuitOpen
		cb.openedAt = cb.now()
	}
}

// State returns the breaker position, applying the Open to HalfOpen
// transition when due.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == CircuitOpen && cb.now().Sub(cb.openedAt) >= cb.config.RecoveryTimeout {
		cb.state = CircuitHalfOpen
		cb.successes = 0
	}
	return cb.state
}

// Reset force-closes the breaker.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.state = CircuitClosed
	cb.failures = 0
	cb.successes = 0
}
