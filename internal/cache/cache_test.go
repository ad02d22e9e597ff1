package cache

import (
	"context"
	"testing"
	"time"

	"llmgateway/internal/domain"
)

func TestPutThenGetRoundTrips(t *testing.T) {
	store := newFakeStore()
	c := New(store, time.Minute)
	entry := domain.CacheEntry{
		Response:     domain.ChatResponse{ID: "1", Model: "mock-1", Content: "hi"},
		PromptTokens: 3, CompletionTokens: 4, TotalTokens: 7, CostUSD: 0.01,
	}

	c.Put(context.Background(), "tenant-a", "fp-1", entry)
	got, ok := c.Get(context.Background(), "tenant-a", "fp-1")
	if !ok {
		t.Fatalf("expected cache hit")
	}
	if got.Response.Content != entry.Response.Content || got.TotalTokens != entry.TotalTokens {
		t.Fatalf("round-tripped entry mismatch: %+v", got)
	}
}

func TestGetMissOnUnknownFingerprint(t *testing.T) {
	c := New(newFakeStore(), time.Minute)
	if _, ok := c.Get(context.Background(), "tenant-a", "missing"); ok {
		t.Fatalf("expected miss")
	}
}

func TestGetDegradesOnStoreError(t *testing.T) {
	store := newFakeStore()
	store.fail = true
	c := New(store, time.Minute)
	if _, ok := c.Get(context.Background(), "tenant-a", "fp-1"); ok {
		t.Fatalf("expected degrade-to-miss on store error")
	}
}
