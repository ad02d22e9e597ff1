package httpapi

import (
	"encoding/json"
	"net/http"

	"llmgateway/internal/auth"
	"llmgateway/internal/domain"
	"llmgateway/internal/store"
)

// admin.go implements tenant/key lifecycle management and operational
// controls, gated behind withAdmin. Every mutating call appends an
// AdminAction row.

type createTenantRequest struct {
	Name string      `json:"name"`
	Tier domain.Tier `json:"tier"`
}

func (s *Server) handleCreateTenant(w http.ResponseWriter, r *http.Request, ac *auth.AuthContext) {
	var req createTenantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "name is required")
		return
	}
	if req.Tier == "" {
		req.Tier = domain.TierFree
	}

	tenant, err := s.tenants.CreateTenant(r.Context(), req.Name, req.Tier)
	if err != nil {
		if err == store.ErrConflict {
			writeError(w, http.StatusConflict, "conflict", "tenant already exists")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to create tenant")
		return
	}

	s.logAdmin(r, ac, "create_tenant", "tenant", &tenant.ID, nil)
	writeJSON(w, http.StatusCreated, tenant)
}

func (s *Server) handleListTenants(w http.ResponseWriter, r *http.Request, ac *auth.AuthContext) {
	tenants, err := s.tenants.ListTenants(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to list tenants")
		return
	}
	writeJSON(w, http.StatusOK, tenants)
}

type mintKeyRequest struct {
	Name string `json:"name"`
}

type mintKeyResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	PlainText string `json:"key"`
}

func (s *Server) handleMintKey(w http.ResponseWriter, r *http.Request, ac *auth.AuthContext) {
	name := r.PathValue("name")
	tenant, err := s.tenants.GetTenantByName(r.Context(), name)
	if err != nil {
		writeGatewayErrorFor(w, err)
		return
	}

	var req mintKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "name is required")
		return
	}

	plaintext, err := auth.GenerateKey()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to generate key")
		return
	}
	hash := auth.HashKey(s.keySalt, plaintext)

	key, err := s.apiKeys.CreateKey(r.Context(), tenant.ID, req.Name, hash, &ac.Tenant.ID)
	if err != nil {
		if err == store.ErrConflict {
			writeError(w, http.StatusConflict, "conflict", "a key with that name already exists for this tenant")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to create key")
		return
	}

	s.logAdmin(r, ac, "mint_key", "api_key", &key.ID, nil)
	writeJSON(w, http.StatusCreated, mintKeyResponse{ID: key.ID, Name: key.Name, PlainText: plaintext})
}

type keyView struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Active   bool    `json:"active"`
	Last6    string  `json:"key_last6"`
	LastUsed *string `json:"last_used_at,omitempty"`
}

func (s *Server) handleListKeys(w http.ResponseWriter, r *http.Request, ac *auth.AuthContext) {
	name := r.PathValue("name")
	tenant, err := s.tenants.GetTenantByName(r.Context(), name)
	if err != nil {
		writeGatewayErrorFor(w, err)
		return
	}

	keys, err := s.apiKeys.ListByTenant(r.Context(), tenant.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to list keys")
		return
	}

	out := make([]keyView, len(keys))
	for i, k := range keys {
		view := keyView{ID: k.ID, Name: k.Name, Active: k.Active, Last6: auth.Last6(k.KeyHash)}
		if k.LastUsedAt != nil {
			ts := k.LastUsedAt.String()
			view.LastUsed = &ts
		}
		out[i] = view
	}
	writeJSON(w, http.StatusOK, out)
}

type revokeByPlaintextRequest struct {
	Key    string `json:"key"`
	Reason string `json:"reason"`
}

func (s *Server) handleRevokeByPlaintext(w http.ResponseWriter, r *http.Request, ac *auth.AuthContext) {
	var req revokeByPlaintextRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Key == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "key is required")
		return
	}
	hash := auth.HashKey(s.keySalt, req.Key)
	if err := s.apiKeys.RevokeByHash(r.Context(), hash, req.Reason); err != nil {
		writeGatewayErrorFor(w, err)
		return
	}

	s.logAdmin(r, ac, "revoke_key", "api_key", nil, nil)
	writeJSON(w, http.StatusOK, map[string]string{"status": "revoked"})
}

type revokeByNameRequest struct {
	KeyName string `json:"key_name"`
	Reason  string `json:"reason"`
}

func (s *Server) handleRevokeByName(w http.ResponseWriter, r *http.Request, ac *auth.AuthContext) {
	tenantName := r.PathValue("name")
	tenant, err := s.tenants.GetTenantByName(r.Context(), tenantName)
	if err != nil {
		writeGatewayErrorFor(w, err)
		return
	}

	var req revokeByNameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.KeyName == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "key_name is required")
		return
	}

	key, err := s.apiKeys.GetByTenantAndName(r.Context(), tenant.ID, req.KeyName)
	if err != nil {
		writeGatewayErrorFor(w, err)
		return
	}
	if err := s.apiKeys.RevokeByID(r.Context(), key.ID, req.Reason); err != nil {
		writeGatewayErrorFor(w, err)
		return
	}

	s.logAdmin(r, ac, "revoke_key", "api_key", &key.ID, nil)
	writeJSON(w, http.StatusOK, map[string]string{"status": "revoked"})
}

// handleRotateAdminKey deactivates every active key on the admin tenant and
// mints a fresh one, returning its plaintext exactly once. There is no grace
// period: the caller's own key stops working the instant this returns.
func (s *Server) handleRotateAdminKey(w http.ResponseWriter, r *http.Request, ac *auth.AuthContext) {
	if err := s.apiKeys.DeactivateAllActiveForTenant(r.Context(), ac.Tenant.ID, "rotated"); err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to rotate key")
		return
	}

	plaintext, err := auth.GenerateKey()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to generate key")
		return
	}
	hash := auth.HashKey(s.keySalt, plaintext)

	key, err := s.apiKeys.CreateKey(r.Context(), ac.Tenant.ID, "admin-rotated", hash, &ac.Tenant.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to create key")
		return
	}

	s.logAdmin(r, ac, "rotate_admin_key", "api_key", &key.ID, nil)
	writeJSON(w, http.StatusOK, mintKeyResponse{ID: key.ID, Name: key.Name, PlainText: plaintext})
}

type setLimitsRequest struct {
	TenantName string   `json:"tenant_name"`
	TokenLimit *int64   `json:"token_limit_per_day"`
	SpendLimit *float64 `json:"spend_limit_per_day_usd"`
}

func (s *Server) handleSetLimits(w http.ResponseWriter, r *http.Request, ac *auth.AuthContext) {
	var req setLimitsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.TenantName == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "tenant_name is required")
		return
	}

	tenant, err := s.tenants.GetTenantByName(r.Context(), req.TenantName)
	if err != nil {
		writeGatewayErrorFor(w, err)
		return
	}
	if err := s.tenants.SetLimits(r.Context(), tenant.ID, req.TokenLimit, req.SpendLimit); err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to set limits")
		return
	}

	s.logAdmin(r, ac, "set_limits", "tenant", &tenant.ID, nil)
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

// handleHealthReset clears the in-memory provider health windows,
// useful for recovering routing after an operator has fixed an upstream
// issue without waiting for the window to age out.
func (s *Server) handleHealthReset(w http.ResponseWriter, r *http.Request, ac *auth.AuthContext) {
	s.engine.Health.Reset()
	s.logAdmin(r, ac, "health_reset", "provider", nil, nil)
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

func (s *Server) handleUsageSummary(w http.ResponseWriter, r *http.Request, ac *auth.AuthContext) {
	name := r.PathValue("name")
	tenant, err := s.tenants.GetTenantByName(r.Context(), name)
	if err != nil {
		writeGatewayErrorFor(w, err)
		return
	}

	summary, err := s.engine.Accounting.UsageSummary(r.Context(), tenant.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to load usage summary")
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// logAdmin records an AdminAction, swallowing the error beyond a log line:
// the admin mutation itself already succeeded, and failing the whole
// request over an audit-log write would be the wrong tradeoff.
func (s *Server) logAdmin(r *http.Request, ac *auth.AuthContext, action, targetType string, targetID, metadataJSON *string) {
	if err := s.adminLog.Log(r.Context(), &ac.Tenant.ID, action, targetType, targetID, metadataJSON); err != nil {
		s.logger.Error("failed to record admin action", "action", action, "error", err)
	}
}

// writeGatewayErrorFor maps store-level sentinel errors to wire codes for
// admin lookups that don't already return a *domain.GatewayError.
func writeGatewayErrorFor(w http.ResponseWriter, err error) {
	switch err {
	case store.ErrNotFound:
		writeError(w, http.StatusNotFound, "not_found", "resource not found")
	case store.ErrConflict:
		writeError(w, http.StatusConflict, "conflict", "resource already exists")
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", "internal error")
	}
}
