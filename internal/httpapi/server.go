// Package httpapi wires the gateway's HTTP surface: the middleware chain
// (panic recovery, request-id, logging, CORS, auth) and the route handlers
// for chat, streaming, and admin operations.
package httpapi

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"llmgateway/internal/auth"
	"llmgateway/internal/orchestrator"
	"llmgateway/internal/quota"
	"llmgateway/internal/ratelimit"
	"llmgateway/internal/store"
	"llmgateway/internal/telemetry"
)

type Server struct {
	mux *http.ServeMux

	auth        *auth.Middleware
	limiter     *ratelimit.Limiter
	quotaGuard  *quota.Guard
	tenants     store.TenantReadWriter
	apiKeys     store.APIKeyReadWriter
	adminLog    store.AdminActionLogger
	engine      *orchestrator.Service
	metrics     *telemetry.Metrics
	logger      *slog.Logger
	keySalt     string
}

type Dependencies struct {
	Auth       *auth.Middleware
	Limiter    *ratelimit.Limiter
	Quota      *quota.Guard
	Tenants    store.TenantReadWriter
	APIKeys    store.APIKeyReadWriter
	AdminLog   store.AdminActionLogger
	Engine     *orchestrator.Service
	Metrics    *telemetry.Metrics
	Logger     *slog.Logger
	KeySalt    string
}

func NewServer(deps Dependencies) *Server {
	s := &Server{
		auth:       deps.Auth,
		limiter:    deps.Limiter,
		quotaGuard: deps.Quota,
		tenants:    deps.Tenants,
		apiKeys:    deps.APIKeys,
		adminLog:   deps.AdminLog,
		engine:     deps.Engine,
		metrics:    deps.Metrics,
		logger:     deps.Logger,
		keySalt:    deps.KeySalt,
	}
	s.mux = http.NewServeMux()
	s.routes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.withRecover(s.withRequestID(s.withLogging(s.withCORS(s.mux)))).ServeHTTP(w, r)
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.Handle("GET /metrics", promhttp.Handler())

	s.mux.HandleFunc("POST /v1/chat", s.withAuthed(s.protectedChat(s.handleChat)))
	s.mux.HandleFunc("POST /v1/chat/stream", s.withAuthed(s.protectedChat(s.handleChatStream)))

	s.mux.HandleFunc("POST /v1/admin/tenants", s.withAdmin(s.handleCreateTenant))
	s.mux.HandleFunc("GET /v1/admin/tenants", s.withAdmin(s.handleListTenants))
	s.mux.HandleFunc("POST /v1/admin/tenants/{name}/keys", s.withAdmin(s.handleMintKey))
	s.mux.HandleFunc("GET /v1/admin/tenants/{name}/keys", s.withAdmin(s.handleListKeys))
	s.mux.HandleFunc("POST /v1/admin/keys/revoke", s.withAdmin(s.handleRevokeByPlaintext))
	s.mux.HandleFunc("POST /v1/admin/tenants/{name}/keys/revoke", s.withAdmin(s.handleRevokeByName))
	s.mux.HandleFunc("POST /v1/admin/keys/rotate", s.withAdmin(s.handleRotateAdminKey))
	s.mux.HandleFunc("POST /v1/admin/limits", s.withAdmin(s.handleSetLimits))
	s.mux.HandleFunc("POST /v1/admin/health/reset", s.withAdmin(s.handleHealthReset))
	s.mux.HandleFunc("GET /v1/admin/usage/{name}", s.withAdmin(s.handleUsageSummary))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// withRequestID echoes an inbound X-Request-Id or mints a fresh v4 UUID.
func (s *Server) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-Id")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-Id", id)
		if idem := r.Header.Get("Idempotency-Key"); idem != "" {
			w.Header().Set("Idempotency-Key", idem)
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		latency := time.Since(start)

		s.metrics.HTTPRequestsTotal.WithLabelValues(r.Pattern, statusClass(rec.status)).Inc()
		s.metrics.HTTPRequestDuration.WithLabelValues(r.Pattern).Observe(latency.Seconds())

		s.logger.Info("request", "method", r.Method, "path", r.URL.Path, "status", rec.status, "latency_ms", latency.Milliseconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Flush forwards to the wrapped writer so SSE handlers can still flush
// through the logging middleware.
func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func statusClass(status int) string {
	switch {
	case status < 300:
		return "2xx"
	case status < 400:
		return "3xx"
	case status < 500:
		return "4xx"
	default:
		return "5xx"
	}
}
