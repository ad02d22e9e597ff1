// Package routing implements the pure tier/health-driven routing policy.
package routing

import (
	"llmgateway/internal/domain"
	"llmgateway/internal/health"
)

const defaultErrorThreshold = 0.5

// Policy is a pure function of tier and provider health.
type Policy struct {
	ErrorThreshold float64
}

func NewPolicy(errorThreshold float64) *Policy {
	if errorThreshold <= 0 {
		errorThreshold = defaultErrorThreshold
	}
	return &Policy{ErrorThreshold: errorThreshold}
}

// Decide returns the routed model/provider/fallback/reason for tier, given
// the current health tracker.
func (p *Policy) Decide(tier domain.Tier, tracker *health.Tracker) domain.RouteDecision {
	model := "mock-1"
	if tier == domain.TierPro {
		model = "mock-2"
	}

	decision := domain.RouteDecision{
		Model:            model,
		Provider:         "primary",
		FallbackProvider: "fallback",
		Reason:           "tier:" + string(tier),
	}

	if tracker.ErrorRate("primary") > p.ErrorThreshold {
		decision.Provider = "fallback"
		decision.FallbackProvider = "primary"
		decision.Reason = "primary_unhealthy"
	}

	return decision
}
