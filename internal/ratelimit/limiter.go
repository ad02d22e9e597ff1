// Package ratelimit implements the per-tenant sliding-minute-bucket limiter,
// backed by the KV store. The gateway fails closed: any KV error denies the
// request with rate_limit_unavailable.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"llmgateway/internal/kv"
)

const tokenEstimatePerRequest = 2

type Decision struct {
	Allowed    bool
	Reason     string // "" when allowed; "requests_per_minute" | "tokens_per_minute" | "unavailable"
	RetryAfter int
}

type Limiter struct {
	store             kv.Store
	requestsPerMinute int
	tokensPerMinute   int
}

func New(store kv.Store, requestsPerMinute, tokensPerMinute int) *Limiter {
	return &Limiter{store: store, requestsPerMinute: requestsPerMinute, tokensPerMinute: tokensPerMinute}
}

func bucket(now time.Time) int64 {
	return now.Unix() / 60
}

func retryAfter(now time.Time) int {
	return 60 - int(now.Unix()%60)
}

// Allow applies the two-counter sliding-minute check for tenantID at time
// now, using a create-time TTL so each minute bucket expires on its own.
func (l *Limiter) Allow(ctx context.Context, tenantID string, now time.Time) Decision {
	b := bucket(now)

	reqKey := fmt.Sprintf("rl:req:%s:%d", tenantID, b)
	reqCount, err := l.store.IncrWithTTL(ctx, reqKey, 1, 60*time.Second)
	if err != nil {
		return Decision{Allowed: false, Reason: "unavailable"}
	}
	if int(reqCount) > l.requestsPerMinute {
		return Decision{Allowed: false, Reason: "requests_per_minute", RetryAfter: retryAfter(now)}
	}

	tokKey := fmt.Sprintf("rl:tokens:%s:%d", tenantID, b)
	tokCount, err := l.store.IncrWithTTL(ctx, tokKey, tokenEstimatePerRequest, 60*time.Second)
	if err != nil {
		return Decision{Allowed: false, Reason: "unavailable"}
	}
	if int(tokCount) > l.tokensPerMinute {
		return Decision{Allowed: false, Reason: "tokens_per_minute", RetryAfter: retryAfter(now)}
	}

	return Decision{Allowed: true}
}
