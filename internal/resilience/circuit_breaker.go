// Package resilience implements the reliability wrapper: a per-provider
// circuit breaker combined with retry-with-backoff around a provider call.
package resilience

import (
	"sync"
	"time"
)

type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half_open"
)

// CircuitBreaker is process-local and non-replicated. It keeps separate state
// per provider name, all guarded by a single mutex.
type CircuitBreaker struct {
	failureThreshold int
	resetTimeout     time.Duration

	mu       sync.Mutex
	states   map[string]State
	failures map[string]int
	openedAt map[string]time.Time
}

func NewCircuitBreaker(failureThreshold int, resetTimeout time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		failureThreshold: failureThreshold,
		resetTimeout:     resetTimeout,
		states:           make(map[string]State),
		failures:         make(map[string]int),
		openedAt:         make(map[string]time.Time),
	}
}

// Allow reports whether a call to provider may proceed, transitioning
// open -> half_open once the reset timeout has elapsed.
func (cb *CircuitBreaker) Allow(provider string) bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.states[provider] {
	case StateOpen:
		if time.Since(cb.openedAt[provider]) >= cb.resetTimeout {
			cb.states[provider] = StateHalfOpen
			return true
		}
		return false
	default:
		return true
	}
}

// RecordSuccess resets the breaker to closed.
func (cb *CircuitBreaker) RecordSuccess(provider string) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.states[provider] = StateClosed
	cb.failures[provider] = 0
}

// RecordFailure increments the failure count and opens the breaker once the
// threshold is reached, or immediately re-opens from half_open. It reports
// whether this call is what transitioned the breaker into open.
func (cb *CircuitBreaker) RecordFailure(provider string) bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.states[provider] == StateHalfOpen {
		cb.states[provider] = StateOpen
		cb.openedAt[provider] = time.Now()
		return true
	}

	cb.failures[provider]++
	if cb.failures[provider] >= cb.failureThreshold {
		cb.states[provider] = StateOpen
		cb.openedAt[provider] = time.Now()
		return true
	}
	return false
}

func (cb *CircuitBreaker) State(provider string) State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if s, ok := cb.states[provider]; ok {
		return s
	}
	return StateClosed
}
