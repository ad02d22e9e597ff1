package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestDeniesTheNPlus1thRequest(t *testing.T) {
	store := newFakeStore()
	l := New(store, 60, 1000)
	now := time.Unix(1_700_000_000, 0)

	for i := 0; i < 60; i++ {
		if d := l.Allow(context.Background(), "tenant-a", now); !d.Allowed {
			t.Fatalf("request %d unexpectedly denied", i+1)
		}
	}
	d := l.Allow(context.Background(), "tenant-a", now)
	if d.Allowed {
		t.Fatalf("61st request should be denied")
	}
	if d.Reason != "requests_per_minute" {
		t.Fatalf("reason = %q, want requests_per_minute", d.Reason)
	}
	if d.RetryAfter > 60 {
		t.Fatalf("RetryAfter = %d, want <= 60", d.RetryAfter)
	}
}

func TestDeniesOnTokenBudgetExhaustion(t *testing.T) {
	store := newFakeStore()
	l := New(store, 1000, 5) // 2 tokens estimated per request
	now := time.Unix(1_700_000_000, 0)

	l.Allow(context.Background(), "tenant-a", now)
	l.Allow(context.Background(), "tenant-a", now)
	d := l.Allow(context.Background(), "tenant-a", now) // 6 > 5
	if d.Allowed || d.Reason != "tokens_per_minute" {
		t.Fatalf("expected tokens_per_minute denial, got %+v", d)
	}
}

func TestFailsClosedOnStoreError(t *testing.T) {
	store := newFakeStore()
	store.fail = true
	l := New(store, 60, 1000)

	d := l.Allow(context.Background(), "tenant-a", time.Now())
	if d.Allowed || d.Reason != "unavailable" {
		t.Fatalf("expected fail-closed unavailable, got %+v", d)
	}
}
