package resilience

import (
	"context"
	"math/rand"
	"time"
)

// RetryConfig controls the exponential-backoff retry loop. The delay formula
// is delay = min(maxDelay, baseDelay * 2^(attempt-1)) plus additive jitter
// in [0, delay*jitterRatio).
type RetryConfig struct {
	MaxAttempts  int
	BaseDelay    time.Duration
	MaxDelay     time.Duration
	JitterRatio  float64
}

func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 3,
		BaseDelay:   200 * time.Millisecond,
		MaxDelay:    5 * time.Second,
		JitterRatio: 0.2,
	}
}

// calculateBackoff returns the delay before the given retry attempt
// (1-indexed: attempt 1 is the delay before the first retry).
func calculateBackoff(cfg RetryConfig, attempt int) time.Duration {
	delay := float64(cfg.BaseDelay) * pow2(attempt-1)
	if delay > float64(cfg.MaxDelay) {
		delay = float64(cfg.MaxDelay)
	}
	if cfg.JitterRatio > 0 {
		delay += delay * cfg.JitterRatio * rand.Float64()
	}
	return time.Duration(delay)
}

func pow2(n int) float64 {
	if n <= 0 {
		return 1
	}
	result := 1.0
	for i := 0; i < n; i++ {
		result *= 2
	}
	return result
}

// Retry calls fn up to cfg.MaxAttempts times, sleeping with backoff between
// attempts. It returns the last error if every attempt fails, or nil as soon
// as one succeeds.
func Retry(ctx context.Context, cfg RetryConfig, fn func() error) error {
	var lastErr error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if attempt == cfg.MaxAttempts {
			break
		}
		delay := calculateBackoff(cfg, attempt)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return lastErr
}
