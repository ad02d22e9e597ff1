package httpapi

import (
	"fmt"
	"net/http"
	"time"

	"llmgateway/internal/auth"
)

// withRecover catches panics from the handler chain and returns a 500
// instead of letting the connection die mid-response.
func (s *Server) withRecover(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", "error", rec, "path", r.URL.Path)
				writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// withCORS is permissive by design: the admin API and chat endpoints are
// meant to be called from operator tooling and browser-based dashboards
// alike, not just same-origin clients.
func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-API-Key")
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// withAuthed resolves the caller's API key into an AuthContext before
// calling next; next receives the resolved AuthContext directly.
func (s *Server) withAuthed(next func(http.ResponseWriter, *http.Request, *auth.AuthContext)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ac, err := s.auth.Authenticate(r.Context(), r)
		if err != nil {
			writeGatewayError(w, err)
			return
		}
		next(w, r, ac)
	}
}

// withAdmin additionally requires the resolved tenant to be the admin tenant.
func (s *Server) withAdmin(next func(http.ResponseWriter, *http.Request, *auth.AuthContext)) http.HandlerFunc {
	return s.withAuthed(func(w http.ResponseWriter, r *http.Request, ac *auth.AuthContext) {
		if !auth.RequireAdmin(ac) {
			writeError(w, http.StatusForbidden, "forbidden", "admin access required")
			return
		}
		next(w, r, ac)
	})
}

// protectedChat wraps a chat handler with rate limiting, then quota
// enforcement, in that order.
func (s *Server) protectedChat(next func(http.ResponseWriter, *http.Request, *auth.AuthContext)) func(http.ResponseWriter, *http.Request, *auth.AuthContext) {
	return func(w http.ResponseWriter, r *http.Request, ac *auth.AuthContext) {
		rl := s.limiter.Allow(r.Context(), ac.Tenant.ID, time.Now())
		if !rl.Allowed {
			switch rl.Reason {
			case "unavailable":
				s.metrics.RateLimitedTotal.WithLabelValues("unavailable").Inc()
				writeError(w, http.StatusServiceUnavailable, "rate_limit_unavailable", "rate limiter unavailable")
			default:
				s.metrics.RateLimitedTotal.WithLabelValues(rl.Reason).Inc()
				w.Header().Set("Retry-After", fmt.Sprintf("%d", rl.RetryAfter))
				writeError(w, http.StatusTooManyRequests, "rate_limited", "rate limit exceeded")
			}
			return
		}

		qd, err := s.quotaGuard.Check(r.Context(), ac.Tenant)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", "quota check failed")
			return
		}
		if !qd.Allowed {
			s.metrics.QuotaDeniedTotal.WithLabelValues(qd.Reason).Inc()
			if qd.TokensRemaining != nil {
				w.Header().Set("X-RateLimit-Tokens-Remaining", fmt.Sprintf("%d", *qd.TokensRemaining))
			}
			if qd.SpendRemaining != nil {
				w.Header().Set("X-RateLimit-Spend-Remaining", fmt.Sprintf("%.4f", *qd.SpendRemaining))
			}
			writeError(w, http.StatusTooManyRequests, "quota_exceeded", "daily quota exceeded")
			return
		}
		if qd.TokensRemaining != nil {
			w.Header().Set("X-RateLimit-Tokens-Remaining", fmt.Sprintf("%d", *qd.TokensRemaining))
		}
		if qd.SpendRemaining != nil {
			w.Header().Set("X-RateLimit-Spend-Remaining", fmt.Sprintf("%.4f", *qd.SpendRemaining))
		}

		next(w, r, ac)
	}
}
