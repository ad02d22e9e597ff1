package auth

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"llmgateway/internal/domain"
	"llmgateway/internal/store"
)

// AuthContext is the resolved caller identity, passed directly to handlers
// rather than stashed in the request context.
type AuthContext struct {
	Tenant *domain.Tenant
	Key    *domain.ApiKey
}

// Middleware resolves the bearer/X-API-Key credential to a tenant and key.
// Missing/inactive keys yield unauthorized; last_used_at is bumped
// best-effort in a background goroutine so auth latency never depends on it.
type Middleware struct {
	keys    store.APIKeyReadWriter
	tenants store.TenantReadWriter
	salt    string
	logger  *slog.Logger
}

func NewMiddleware(keys store.APIKeyReadWriter, tenants store.TenantReadWriter, salt string, logger *slog.Logger) *Middleware {
	return &Middleware{keys: keys, tenants: tenants, salt: salt, logger: logger}
}

func extractToken(r *http.Request) string {
	if v := r.Header.Get("X-API-Key"); v != "" {
		return v
	}
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return ""
}

// Authenticate resolves the request's credential into an AuthContext, or
// returns domain.ErrUnauthorized.
func (m *Middleware) Authenticate(ctx context.Context, r *http.Request) (*AuthContext, error) {
	token := extractToken(r)
	if token == "" {
		return nil, domain.ErrUnauthorized
	}

	hash := HashKey(m.salt, token)
	key, err := m.keys.GetActiveByHash(ctx, hash)
	if err != nil {
		return nil, domain.ErrUnauthorized
	}

	tenant, err := m.tenants.GetTenantByID(ctx, key.TenantID)
	if err != nil {
		return nil, domain.ErrUnauthorized
	}

	go func() {
		if err := m.keys.TouchLastUsed(context.Background(), key.ID); err != nil && m.logger != nil {
			m.logger.Warn("last_used_at update failed", "key_id", key.ID, "error", err)
		}
	}()

	return &AuthContext{Tenant: tenant, Key: key}, nil
}

// RequireAdmin reports whether ac's tenant is the distinguished admin tenant.
func RequireAdmin(ac *AuthContext) bool {
	return ac != nil && ac.Tenant != nil && ac.Tenant.Name == "admin"
}
