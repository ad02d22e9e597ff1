// Package quota implements the per-tenant daily quota guard, backed by
// a DB aggregate read.
package quota

import (
	"context"

	"llmgateway/internal/domain"
	"llmgateway/internal/store"
)

type Decision struct {
	Allowed         bool
	Reason          string // "" | "token_limit" | "spend_limit"
	TokensRemaining *int64
	SpendRemaining  *float64
}

type Guard struct {
	accounting store.AccountingReadWriter
}

func New(accounting store.AccountingReadWriter) *Guard {
	return &Guard{accounting: accounting}
}

// Check evaluates tenant's daily usage against its configured limits. A
// tenant with neither limit set is always allowed.
func (g *Guard) Check(ctx context.Context, tenant *domain.Tenant) (Decision, error) {
	if tenant.TokenLimitPerDay == nil && tenant.SpendLimitPerDayUSD == nil {
		return Decision{Allowed: true}, nil
	}

	tokensUsed, spendUsed, err := g.accounting.DailyUsage(ctx, tenant.ID)
	if err != nil {
		return Decision{}, err
	}

	if tenant.TokenLimitPerDay != nil {
		remaining := *tenant.TokenLimitPerDay - tokensUsed
		if tokensUsed >= *tenant.TokenLimitPerDay {
			zero := int64(0)
			return Decision{Allowed: false, Reason: "token_limit", TokensRemaining: &zero}, nil
		}
		_ = remaining
	}
	if tenant.SpendLimitPerDayUSD != nil {
		if spendUsed >= *tenant.SpendLimitPerDayUSD {
			zero := 0.0
			return Decision{Allowed: false, Reason: "spend_limit", SpendRemaining: &zero}, nil
		}
	}

	decision := Decision{Allowed: true}
	if tenant.TokenLimitPerDay != nil {
		remaining := *tenant.TokenLimitPerDay - tokensUsed
		decision.TokensRemaining = &remaining
	}
	if tenant.SpendLimitPerDayUSD != nil {
		remaining := *tenant.SpendLimitPerDayUSD - spendUsed
		decision.SpendRemaining = &remaining
	}
	return decision, nil
}
