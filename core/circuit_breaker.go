package core

import (
	"context"
	"errors"
	"sync"
	"time"
)

// CircuitState represents the state of the circuit breaker
type CircuitState int

const (
	// StateClosed allows all requests through
	StateClosed CircuitState = iota
	// StateOpen blocks all requests
	StateOpen
	// StateHalfOpen allows limited requests for testing
	StateHalfOpen
)

// String returns the string representation of the state
func (s CircuitState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// shouldTrip decides which errors count toward the failure threshold.
// Only infrastructure errors count: an auth rejection or a missing
// resource says nothing about the backend's health.
func shouldTrip(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	return IsNetworkUnavailable(err) || IsServerFault(err)
}

// CircuitBreaker guards the cart store's background mirror calls.
// After Threshold consecutive qualifying failures it opens, and mirror
// calls fail locally with ErrCircuitOpen until SleepWindow elapses.
// A half-open breaker lets HalfOpenRequests probes through; any failure
// re-opens it, a full set of successes closes it.
type CircuitBreaker struct {
	name   string
	config CircuitBreakerConfig
	logger Logger

	mu               sync.Mutex
	state            CircuitState
	failures         int
	openedAt         time.Time
	halfOpenInFlight int
	halfOpenSuccess  int
}

// NewCircuitBreaker creates a circuit breaker with the given configuration
func NewCircuitBreaker(name string, config CircuitBreakerConfig, logger Logger) *CircuitBreaker {
	if logger == nil {
		logger = &NoOpLogger{}
	}
	if config.Threshold <= 0 {
		config.Threshold = 5
	}
	if config.SleepWindow <= 0 {
		config.SleepWindow = 30 * time.Second
	}
	if config.HalfOpenRequests <= 0 {
		config.HalfOpenRequests = 3
	}
	return &CircuitBreaker{
		name:   name,
		config: config,
		logger: logger,
	}
}

// Execute runs fn with circuit breaker protection. If the circuit is
// open, it returns ErrCircuitOpen immediately without invoking fn.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func() error) error {
	if !cb.config.Enabled {
		return fn()
	}

	if !cb.acquire() {
		return ErrCircuitOpen
	}

	err := fn()
	cb.record(err)
	return err
}

// CanExecute returns true if the circuit breaker would allow execution
func (cb *CircuitBreaker) CanExecute() bool {
	if !cb.config.Enabled {
		return true
	}
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.maybeHalfOpenLocked()
	switch cb.state {
	case StateClosed:
		return true
	case StateHalfOpen:
		return cb.halfOpenInFlight < cb.config.HalfOpenRequests
	default:
		return false
	}
}

// State returns the current circuit breaker state
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.maybeHalfOpenLocked()
	return cb.state
}

// Reset manually resets the circuit breaker to closed state
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.transitionLocked(StateClosed)
	cb.failures = 0
	cb.halfOpenInFlight = 0
	cb.halfOpenSuccess = 0
}

func (cb *CircuitBreaker) acquire() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.maybeHalfOpenLocked()

	switch cb.state {
	case StateClosed:
		return true
	case StateHalfOpen:
		if cb.halfOpenInFlight >= cb.config.HalfOpenRequests {
			return false
		}
		cb.halfOpenInFlight++
		return true
	default:
		return false
	}
}

func (cb *CircuitBreaker) record(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateHalfOpen {
		cb.halfOpenInFlight--
		if shouldTrip(err) {
			cb.transitionLocked(StateOpen)
			cb.openedAt = time.Now()
			return
		}
		if err == nil {
			cb.halfOpenSuccess++
			if cb.halfOpenSuccess >= cb.config.HalfOpenRequests {
				cb.transitionLocked(StateClosed)
				cb.failures = 0
			}
		}
		return
	}

	if shouldTrip(err) {
		cb.failures++
		if cb.failures >= cb.config.Threshold {
			cb.transitionLocked(StateOpen)
			cb.openedAt = time.Now()
		}
		return
	}

	if err == nil {
		cb.failures = 0
	}
}

// maybeHalfOpenLocked moves an open breaker to half-open once the sleep
// window has elapsed. Caller must hold cb.mu.
func (cb *CircuitBreaker) maybeHalfOpenLocked() {
	if cb.state == StateOpen && time.Since(cb.openedAt) >= cb.config.SleepWindow {
		cb.transitionLocked(StateHalfOpen)
		cb.halfOpenInFlight = 0
		cb.halfOpenSuccess = 0
	}
}

func (cb *CircuitBreaker) transitionLocked(to CircuitState) {
	if cb.state == to {
		return
	}
	from := cb.state
	cb.state = to
	cb.logger.Info("Circuit breaker state change", map[string]interface{}{
		"operation": "circuit_breaker",
		"name":      cb.name,
		"from":      from.String(),
		"to":        to.String(),
	})
}
