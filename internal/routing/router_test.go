package routing

import (
	"testing"

	"llmgateway/internal/domain"
	"llmgateway/internal/health"
)

func TestFreeTierHealthyPrimary(t *testing.T) {
	p := NewPolicy(0.5)
	tracker := health.NewTracker(20, 1)

	decision := p.Decide(domain.TierFree, tracker)
	if decision.Model != "mock-1" || decision.Provider != "primary" || decision.Reason != "tier:free" {
		t.Fatalf("unexpected decision: %+v", decision)
	}
}

func TestProTierUnhealthyPrimaryFallsBack(t *testing.T) {
	p := NewPolicy(0.5)
	tracker := health.NewTracker(20, 1)
	for i := 0; i < 3; i++ {
		tracker.Record("primary", false)
	}

	decision := p.Decide(domain.TierPro, tracker)
	if decision.Model != "mock-2" {
		t.Fatalf("model = %q, want mock-2", decision.Model)
	}
	if decision.Provider != "fallback" || decision.FallbackProvider != "primary" || decision.Reason != "primary_unhealthy" {
		t.Fatalf("unexpected decision: %+v", decision)
	}
}
