package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"llmgateway/internal/auth"
	"llmgateway/internal/domain"
	"llmgateway/internal/health"
	"llmgateway/internal/orchestrator"
	"llmgateway/internal/quota"
	"llmgateway/internal/ratelimit"
	"llmgateway/internal/store"
	"llmgateway/internal/telemetry"
)

// fakeTenantStore satisfies store.TenantReadWriter in memory, grounded on
// this pack's practice of testing HTTP handlers against narrow store
// interfaces rather than a live Postgres.
type fakeTenantStore struct {
	mu      sync.Mutex
	byID    map[string]*domain.Tenant
	byName  map[string]*domain.Tenant
	nextSeq int
}

func newFakeTenantStore() *fakeTenantStore {
	return &fakeTenantStore{byID: map[string]*domain.Tenant{}, byName: map[string]*domain.Tenant{}}
}

func (f *fakeTenantStore) CreateTenant(_ context.Context, name string, tier domain.Tier) (*domain.Tenant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.byName[name]; exists {
		return nil, store.ErrConflict
	}
	f.nextSeq++
	t := &domain.Tenant{ID: fakeID("tenant", f.nextSeq), Name: name, Tier: tier}
	f.byID[t.ID] = t
	f.byName[t.Name] = t
	return t, nil
}

func (f *fakeTenantStore) GetTenantByID(_ context.Context, id string) (*domain.Tenant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.byID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return t, nil
}

func (f *fakeTenantStore) GetTenantByName(_ context.Context, name string) (*domain.Tenant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.byName[name]
	if !ok {
		return nil, store.ErrNotFound
	}
	return t, nil
}

func (f *fakeTenantStore) GetOrCreateDefaultTenant(ctx context.Context) (*domain.Tenant, error) {
	if t, err := f.GetTenantByName(ctx, "default"); err == nil {
		return t, nil
	}
	return f.CreateTenant(ctx, "default", domain.TierFree)
}

func (f *fakeTenantStore) ListTenants(context.Context) ([]*domain.Tenant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*domain.Tenant, 0, len(f.byID))
	for _, t := range f.byID {
		out = append(out, t)
	}
	return out, nil
}

func (f *fakeTenantStore) SetLimits(_ context.Context, tenantID string, tokenLimit *int64, spendLimit *float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.byID[tenantID]
	if !ok {
		return store.ErrNotFound
	}
	if tokenLimit != nil {
		t.TokenLimitPerDay = tokenLimit
	}
	if spendLimit != nil {
		t.SpendLimitPerDayUSD = spendLimit
	}
	return nil
}

// fakeAPIKeyStore satisfies store.APIKeyReadWriter in memory.
type fakeAPIKeyStore struct {
	mu      sync.Mutex
	byID    map[string]*domain.ApiKey
	byHash  map[string]*domain.ApiKey
	nextSeq int
}

func newFakeAPIKeyStore() *fakeAPIKeyStore {
	return &fakeAPIKeyStore{byID: map[string]*domain.ApiKey{}, byHash: map[string]*domain.ApiKey{}}
}

func (f *fakeAPIKeyStore) CreateKey(_ context.Context, tenantID, name, keyHash string, createdBy *string) (*domain.ApiKey, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, k := range f.byID {
		if k.TenantID == tenantID && k.Name == name {
			return nil, store.ErrConflict
		}
	}
	f.nextSeq++
	k := &domain.ApiKey{ID: fakeID("key", f.nextSeq), TenantID: tenantID, Name: name, KeyHash: keyHash, Active: true, CreatedBy: createdBy}
	f.byID[k.ID] = k
	f.byHash[k.KeyHash] = k
	return k, nil
}

func (f *fakeAPIKeyStore) GetByID(_ context.Context, id string) (*domain.ApiKey, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	k, ok := f.byID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return k, nil
}

func (f *fakeAPIKeyStore) GetActiveByHash(_ context.Context, hash string) (*domain.ApiKey, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	k, ok := f.byHash[hash]
	if !ok || !k.Active {
		return nil, store.ErrNotFound
	}
	return k, nil
}

func (f *fakeAPIKeyStore) ListByTenant(_ context.Context, tenantID string) ([]*domain.ApiKey, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*domain.ApiKey
	for _, k := range f.byID {
		if k.TenantID == tenantID {
			out = append(out, k)
		}
	}
	return out, nil
}

func (f *fakeAPIKeyStore) GetByTenantAndName(_ context.Context, tenantID, name string) (*domain.ApiKey, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, k := range f.byID {
		if k.TenantID == tenantID && k.Name == name {
			return k, nil
		}
	}
	return nil, store.ErrNotFound
}

func (f *fakeAPIKeyStore) RevokeByHash(_ context.Context, hash, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	k, ok := f.byHash[hash]
	if !ok || !k.Active {
		return store.ErrNotFound
	}
	k.Active = false
	k.RevokedReason = &reason
	return nil
}

func (f *fakeAPIKeyStore) RevokeByID(_ context.Context, id, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	k, ok := f.byID[id]
	if !ok || !k.Active {
		return store.ErrNotFound
	}
	k.Active = false
	k.RevokedReason = &reason
	return nil
}

func (f *fakeAPIKeyStore) DeactivateAllActiveForTenant(_ context.Context, tenantID, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, k := range f.byID {
		if k.TenantID == tenantID && k.Active {
			k.Active = false
			k.RevokedReason = &reason
		}
	}
	return nil
}

func (f *fakeAPIKeyStore) TouchLastUsed(context.Context, string) error { return nil }

// fakeAdminLog satisfies store.AdminActionLogger, recording calls for
// assertions instead of writing to Postgres.
type fakeAdminLog struct {
	mu      sync.Mutex
	actions []string
}

func (f *fakeAdminLog) Log(_ context.Context, _ *string, action, _ string, _, _ *string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.actions = append(f.actions, action)
	return nil
}

func fakeID(prefix string, seq int) string {
	return prefix + "-" + string(rune('a'+seq))
}

// fakeAccounting satisfies store.AccountingReadWriter; only UsageSummary is
// exercised by the admin usage-summary handler under test.
type fakeAccounting struct {
	summary store.UsageSummary
}

func (f *fakeAccounting) CreateRequest(context.Context, string, string, string) (*domain.Request, error) {
	return nil, nil
}
func (f *fakeAccounting) CompleteRequest(context.Context, string, string, int64, int64, int64, int64, float64) error {
	return nil
}
func (f *fakeAccounting) FailRequest(context.Context, string) error   { return nil }
func (f *fakeAccounting) CancelRequest(context.Context, string) error { return nil }
func (f *fakeAccounting) InsertUsageEvent(context.Context, string, string, string, int64, float64) error {
	return nil
}
func (f *fakeAccounting) DailyUsage(context.Context, string) (int64, float64, error) { return 0, 0, nil }
func (f *fakeAccounting) UsageSummary(context.Context, string) (store.UsageSummary, error) {
	return f.summary, nil
}

// testServer wires a Server against in-memory fakes, mirroring the
// pack's httptest-against-narrow-interfaces idiom for admin handler tests.
func testServer(t *testing.T) (*Server, *fakeTenantStore, *fakeAPIKeyStore, *fakeAdminLog) {
	t.Helper()
	tenants := newFakeTenantStore()
	apiKeys := newFakeAPIKeyStore()
	adminLog := &fakeAdminLog{}
	logger := slog.New(slog.NewTextHandler(bytes.NewBuffer(nil), nil))

	authMW := auth.NewMiddleware(apiKeys, tenants, "test-salt", logger)
	reg := prometheus.NewRegistry()
	metrics := telemetry.New(reg)

	engine := &orchestrator.Service{
		Tenants:    tenants,
		Accounting: &fakeAccounting{summary: store.UsageSummary{TotalRequests: 3, TotalTokens: 42, TotalCostUSD: 0.09}},
		Health:     health.NewTracker(20, 5),
		Metrics:    metrics,
		Logger:     logger,
	}

	srv := NewServer(Dependencies{
		Auth:     authMW,
		Limiter:  ratelimit.New(nil, 60, 1000),
		Quota:    quota.New(nil),
		Tenants:  tenants,
		APIKeys:  apiKeys,
		AdminLog: adminLog,
		Engine:   engine,
		Metrics:  metrics,
		Logger:   logger,
		KeySalt:  "test-salt",
	})
	return srv, tenants, apiKeys, adminLog
}

func adminTenantAndKey(t *testing.T, tenants *fakeTenantStore, apiKeys *fakeAPIKeyStore) (*domain.Tenant, string) {
	t.Helper()
	tenant, err := tenants.CreateTenant(context.Background(), "admin", domain.TierPro)
	if err != nil {
		t.Fatalf("create admin tenant: %v", err)
	}
	plaintext, err := auth.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	hash := auth.HashKey("test-salt", plaintext)
	if _, err := apiKeys.CreateKey(context.Background(), tenant.ID, "bootstrap", hash, nil); err != nil {
		t.Fatalf("create admin key: %v", err)
	}
	return tenant, plaintext
}

func TestHandleCreateTenant(t *testing.T) {
	srv, tenants, apiKeys, adminLog := testServer(t)
	_, adminKey := adminTenantAndKey(t, tenants, apiKeys)

	body, _ := json.Marshal(map[string]string{"name": "acme", "tier": "pro"})
	req := httptest.NewRequest(http.MethodPost, "/v1/admin/tenants", bytes.NewReader(body))
	req.Header.Set("X-API-Key", adminKey)
	rec := httptest.NewRecorder()

	srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if _, err := tenants.GetTenantByName(context.Background(), "acme"); err != nil {
		t.Fatalf("expected tenant acme to be created: %v", err)
	}
	if len(adminLog.actions) == 0 || adminLog.actions[len(adminLog.actions)-1] != "create_tenant" {
		t.Fatalf("expected create_tenant to be logged, got %v", adminLog.actions)
	}
}

func TestHandleCreateTenant_DuplicateConflicts(t *testing.T) {
	srv, tenants, apiKeys, _ := testServer(t)
	_, adminKey := adminTenantAndKey(t, tenants, apiKeys)
	tenants.CreateTenant(context.Background(), "acme", domain.TierFree)

	body, _ := json.Marshal(map[string]string{"name": "acme"})
	req := httptest.NewRequest(http.MethodPost, "/v1/admin/tenants", bytes.NewReader(body))
	req.Header.Set("X-API-Key", adminKey)
	rec := httptest.NewRecorder()

	srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
}

func TestHandleCreateTenant_RequiresAdmin(t *testing.T) {
	srv, tenants, apiKeys, _ := testServer(t)
	member, err := tenants.CreateTenant(context.Background(), "member", domain.TierFree)
	if err != nil {
		t.Fatal(err)
	}
	plaintext, _ := auth.GenerateKey()
	apiKeys.CreateKey(context.Background(), member.ID, "k1", auth.HashKey("test-salt", plaintext), nil)

	body, _ := json.Marshal(map[string]string{"name": "acme"})
	req := httptest.NewRequest(http.MethodPost, "/v1/admin/tenants", bytes.NewReader(body))
	req.Header.Set("X-API-Key", plaintext)
	rec := httptest.NewRecorder()

	srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
}

func TestHandleMintKeyAndRevokeFlow(t *testing.T) {
	srv, tenants, apiKeys, _ := testServer(t)
	_, adminKey := adminTenantAndKey(t, tenants, apiKeys)
	tenants.CreateTenant(context.Background(), "acme", domain.TierFree)

	mintBody, _ := json.Marshal(map[string]string{"name": "ci"})
	mintReq := httptest.NewRequest(http.MethodPost, "/v1/admin/tenants/acme/keys", bytes.NewReader(mintBody))
	mintReq.Header.Set("X-API-Key", adminKey)
	mintRec := httptest.NewRecorder()
	srv.ServeHTTP(mintRec, mintReq)
	if mintRec.Code != http.StatusCreated {
		t.Fatalf("mint status = %d, body = %s", mintRec.Code, mintRec.Body.String())
	}
	var minted mintKeyResponse
	if err := json.Unmarshal(mintRec.Body.Bytes(), &minted); err != nil {
		t.Fatalf("decode mint response: %v", err)
	}
	if minted.PlainText == "" {
		t.Fatal("expected a plaintext key in the mint response")
	}

	revokeBody, _ := json.Marshal(map[string]string{"key_name": "ci", "reason": "rotated out"})
	revokeReq := httptest.NewRequest(http.MethodPost, "/v1/admin/tenants/acme/keys/revoke", bytes.NewReader(revokeBody))
	revokeReq.Header.Set("X-API-Key", adminKey)
	revokeRec := httptest.NewRecorder()
	srv.ServeHTTP(revokeRec, revokeReq)
	if revokeRec.Code != http.StatusOK {
		t.Fatalf("revoke status = %d, body = %s", revokeRec.Code, revokeRec.Body.String())
	}

	if _, err := apiKeys.GetActiveByHash(context.Background(), auth.HashKey("test-salt", minted.PlainText)); err == nil {
		t.Fatal("expected revoked key to no longer authenticate")
	}
}

func TestHandleRotateAdminKey(t *testing.T) {
	srv, tenants, apiKeys, _ := testServer(t)
	_, adminKey := adminTenantAndKey(t, tenants, apiKeys)

	req := httptest.NewRequest(http.MethodPost, "/v1/admin/keys/rotate", nil)
	req.Header.Set("X-API-Key", adminKey)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var rotated mintKeyResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &rotated); err != nil {
		t.Fatalf("decode response: %v", err)
	}

	// Old key must no longer authenticate a follow-up admin call.
	followUp := httptest.NewRequest(http.MethodGet, "/v1/admin/tenants", nil)
	followUp.Header.Set("X-API-Key", adminKey)
	followUpRec := httptest.NewRecorder()
	srv.ServeHTTP(followUpRec, followUp)
	if followUpRec.Code != http.StatusUnauthorized {
		t.Fatalf("old admin key should be rejected after rotation, got %d", followUpRec.Code)
	}

	// New key must authenticate.
	newReq := httptest.NewRequest(http.MethodGet, "/v1/admin/tenants", nil)
	newReq.Header.Set("X-API-Key", rotated.PlainText)
	newRec := httptest.NewRecorder()
	srv.ServeHTTP(newRec, newReq)
	if newRec.Code != http.StatusOK {
		t.Fatalf("rotated key should authenticate, got %d", newRec.Code)
	}
}

func TestHandleSetLimits(t *testing.T) {
	srv, tenants, apiKeys, _ := testServer(t)
	_, adminKey := adminTenantAndKey(t, tenants, apiKeys)
	tenant, _ := tenants.CreateTenant(context.Background(), "acme", domain.TierFree)

	body, _ := json.Marshal(map[string]interface{}{"tenant_name": "acme", "token_limit_per_day": 5000})
	req := httptest.NewRequest(http.MethodPost, "/v1/admin/limits", bytes.NewReader(body))
	req.Header.Set("X-API-Key", adminKey)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	updated, _ := tenants.GetTenantByID(context.Background(), tenant.ID)
	if updated.TokenLimitPerDay == nil || *updated.TokenLimitPerDay != 5000 {
		t.Fatalf("TokenLimitPerDay = %v, want 5000", updated.TokenLimitPerDay)
	}
}

func TestHandleUsageSummary(t *testing.T) {
	srv, tenants, apiKeys, _ := testServer(t)
	_, adminKey := adminTenantAndKey(t, tenants, apiKeys)
	tenants.CreateTenant(context.Background(), "acme", domain.TierFree)

	req := httptest.NewRequest(http.MethodGet, "/v1/admin/usage/acme", nil)
	req.Header.Set("X-API-Key", adminKey)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var summary store.UsageSummary
	if err := json.Unmarshal(rec.Body.Bytes(), &summary); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if summary.TotalRequests != 3 || summary.TotalTokens != 42 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
}

func TestHandleHealthReset(t *testing.T) {
	srv, tenants, apiKeys, _ := testServer(t)
	_, adminKey := adminTenantAndKey(t, tenants, apiKeys)

	req := httptest.NewRequest(http.MethodPost, "/v1/admin/health/reset", nil)
	req.Header.Set("X-API-Key", adminKey)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
}
