package store

import (
	"context"

	"llmgateway/internal/domain"
)

// TenantReadWriter is the subset of tenant persistence the request path and
// admin API depend on. Defined as an interface, rather than consumers
// depending on *TenantStore directly, so unit tests can substitute an
// in-memory fake instead of requiring a live Postgres.
type TenantReadWriter interface {
	CreateTenant(ctx context.Context, name string, tier domain.Tier) (*domain.Tenant, error)
	GetTenantByID(ctx context.Context, id string) (*domain.Tenant, error)
	GetTenantByName(ctx context.Context, name string) (*domain.Tenant, error)
	GetOrCreateDefaultTenant(ctx context.Context) (*domain.Tenant, error)
	ListTenants(ctx context.Context) ([]*domain.Tenant, error)
	SetLimits(ctx context.Context, tenantID string, tokenLimit *int64, spendLimit *float64) error
}

// APIKeyReadWriter is the subset of API key persistence auth and the admin
// API depend on.
type APIKeyReadWriter interface {
	CreateKey(ctx context.Context, tenantID, name, keyHash string, createdBy *string) (*domain.ApiKey, error)
	GetByID(ctx context.Context, id string) (*domain.ApiKey, error)
	GetActiveByHash(ctx context.Context, hash string) (*domain.ApiKey, error)
	ListByTenant(ctx context.Context, tenantID string) ([]*domain.ApiKey, error)
	GetByTenantAndName(ctx context.Context, tenantID, name string) (*domain.ApiKey, error)
	RevokeByHash(ctx context.Context, hash, reason string) error
	RevokeByID(ctx context.Context, id, reason string) error
	DeactivateAllActiveForTenant(ctx context.Context, tenantID, reason string) error
	TouchLastUsed(ctx context.Context, id string) error
}

// AccountingReadWriter is the subset of accounting persistence quota
// enforcement and the orchestrator depend on.
type AccountingReadWriter interface {
	CreateRequest(ctx context.Context, tenantID, model, requestPayload string) (*domain.Request, error)
	CompleteRequest(ctx context.Context, id, responsePayload string, latencyMs, promptTokens, completionTokens, totalTokens int64, costUSD float64) error
	FailRequest(ctx context.Context, id string) error
	CancelRequest(ctx context.Context, id string) error
	InsertUsageEvent(ctx context.Context, tenantID, requestID, model string, tokens int64, costUSD float64) error
	DailyUsage(ctx context.Context, tenantID string) (tokens int64, costUSD float64, err error)
	UsageSummary(ctx context.Context, tenantID string) (UsageSummary, error)
}

// AdminActionLogger is the audit-log write path the admin API depends on.
type AdminActionLogger interface {
	Log(ctx context.Context, actorTenantID *string, action, targetType string, targetID, metadataJSON *string) error
}
