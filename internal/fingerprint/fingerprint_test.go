package fingerprint

import (
	"testing"

	"llmgateway/internal/domain"
)

func TestCacheableRules(t *testing.T) {
	zero := 0.0
	nonzero := 0.7
	cases := []struct {
		name string
		req  domain.ChatRequest
		want bool
	}{
		{"stream true", domain.ChatRequest{Stream: true}, false},
		{"no temperature", domain.ChatRequest{}, true},
		{"temperature zero", domain.ChatRequest{Temperature: &zero}, true},
		{"temperature nonzero", domain.ChatRequest{Temperature: &nonzero}, false},
	}
	for _, c := range cases {
		if got := Cacheable(c.req); got != c.want {
			t.Errorf("%s: Cacheable() = %v, want %v", c.name, got, c.want)
		}
	}
}

func TestComputeIgnoresStreamFlag(t *testing.T) {
	a := domain.ChatRequest{
		Model:    "mock-1",
		Messages: []domain.ChatMessage{{Role: "user", Content: "hi"}},
		Stream:   false,
	}
	b := a
	b.Stream = true // must not affect the fingerprint

	if Compute(a) != Compute(b) {
		t.Fatalf("fingerprint changed when only stream flag differed")
	}
}

func TestComputeDiffersOnContent(t *testing.T) {
	a := domain.ChatRequest{Model: "mock-1", Messages: []domain.ChatMessage{{Role: "user", Content: "hi"}}}
	b := domain.ChatRequest{Model: "mock-1", Messages: []domain.ChatMessage{{Role: "user", Content: "bye"}}}
	if Compute(a) == Compute(b) {
		t.Fatalf("fingerprint collided for distinct content")
	}
}
