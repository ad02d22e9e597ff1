package resilience

import (
	"context"

	"llmgateway/internal/domain"
)

// Callbacks are fired for telemetry only; they never influence control flow.
type Callbacks struct {
	OnError       func(provider string, err error)
	OnRetry       func(provider string, attempt int)
	OnCircuitOpen func(provider string)
}

// Wrapper combines a circuit breaker and retry loop around provider calls.
// Generate and Stream take the call as a plain func() error, so this
// package has no compile-time dependency on the provider package.
type Wrapper struct {
	Breaker *CircuitBreaker
	Retry   RetryConfig
	Hooks   Callbacks
}

func NewWrapper(breaker *CircuitBreaker, retry RetryConfig, hooks Callbacks) *Wrapper {
	return &Wrapper{Breaker: breaker, Retry: retry, Hooks: hooks}
}

// Generate retries fn on any error, failing fast with CircuitOpenError if the
// breaker is open at call time.
func (w *Wrapper) Generate(ctx context.Context, provider string, fn func() error) error {
	if !w.Breaker.Allow(provider) {
		if w.Hooks.OnCircuitOpen != nil {
			w.Hooks.OnCircuitOpen(provider)
		}
		return &domain.CircuitOpenError{Provider: provider}
	}

	attempt := 0
	return Retry(ctx, w.Retry, func() error {
		attempt++
		if attempt > 1 && w.Hooks.OnRetry != nil {
			w.Hooks.OnRetry(provider, attempt)
		}
		err := fn()
		if err != nil {
			if w.Hooks.OnError != nil {
				w.Hooks.OnError(provider, err)
			}
			if opened := w.Breaker.RecordFailure(provider); opened && w.Hooks.OnCircuitOpen != nil {
				w.Hooks.OnCircuitOpen(provider)
			}
			return err
		}
		w.Breaker.RecordSuccess(provider)
		return nil
	})
}

// StreamGuard reports whether a stream attempt may still be retried: once
// any bytes have been yielded to the caller, failures must surface instead
// of triggering another attempt.
type StreamGuard struct {
	yielded bool
}

func (g *StreamGuard) MarkYielded() { g.yielded = true }
func (g *StreamGuard) Yielded() bool { return g.yielded }

// Stream attempts fn once per retry budget, but stops retrying as soon as
// guard reports bytes were yielded to the caller on a prior attempt.
func (w *Wrapper) Stream(ctx context.Context, provider string, guard *StreamGuard, fn func() error) error {
	if !w.Breaker.Allow(provider) {
		if w.Hooks.OnCircuitOpen != nil {
			w.Hooks.OnCircuitOpen(provider)
		}
		return &domain.CircuitOpenError{Provider: provider}
	}

	attempt := 0
	return Retry(ctx, w.Retry, func() error {
		if guard.Yielded() {
			return nil
		}
		attempt++
		if attempt > 1 && w.Hooks.OnRetry != nil {
			w.Hooks.OnRetry(provider, attempt)
		}
		err := fn()
		if err != nil {
			if w.Hooks.OnError != nil {
				w.Hooks.OnError(provider, err)
			}
			if opened := w.Breaker.RecordFailure(provider); opened && w.Hooks.OnCircuitOpen != nil {
				w.Hooks.OnCircuitOpen(provider)
			}
			if guard.Yielded() {
				return nil // surfaced already; stop retrying
			}
			return err
		}
		w.Breaker.RecordSuccess(provider)
		return nil
	})
}
