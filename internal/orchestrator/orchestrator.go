// Package orchestrator assembles routing, caching, provider dispatch, and
// accounting into the single-shot and streaming chat orchestrators.
package orchestrator

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"llmgateway/internal/cache"
	"llmgateway/internal/domain"
	"llmgateway/internal/fingerprint"
	"llmgateway/internal/health"
	"llmgateway/internal/pricing"
	"llmgateway/internal/provider"
	"llmgateway/internal/resilience"
	"llmgateway/internal/routing"
	"llmgateway/internal/store"
	"llmgateway/internal/telemetry"
)

type Service struct {
	Tenants     store.TenantReadWriter
	Accounting  store.AccountingReadWriter
	Cache       *cache.Cache
	Router      *routing.Policy
	Health      *health.Tracker
	Providers   *provider.Manager
	Reliability *resilience.Wrapper
	Pricing     pricing.Table
	Metrics     *telemetry.Metrics
	Logger      *slog.Logger
}

// Outcome is what a single-shot call returns to the HTTP handler.
type Outcome struct {
	Response     domain.ChatResponse
	ModelChosen  string
	RouteReason  string
	UsedProvider string
	CacheStatus  string // "hit" | "miss" | "bypass"
}

// resolveModelName returns decision.Model, unless the routed primary is a
// provider adapter with a fixed upstream model (the HTTP-backed Ollama
// variant), in which case that configured model name takes precedence.
func (s *Service) resolveModelName(decision domain.RouteDecision) string {
	if p, ok := s.Providers.Get(decision.Provider); ok {
		if override := p.ModelOverride(); override != "" {
			return override
		}
	}
	return decision.Model
}

func toProviderMessages(msgs []domain.ChatMessage) []provider.Message {
	out := make([]provider.Message, len(msgs))
	for i, m := range msgs {
		out[i] = provider.Message{Role: m.Role, Content: m.Content}
	}
	return out
}

// resolveTenant implements tenant resolution: an unknown tenant resolves to
// "default", creating it if necessary. Callers that already authenticated
// pass the resolved tenant directly and never hit this path; it exists for
// completeness of the orchestrator's documented contract.
func (s *Service) resolveTenant(ctx context.Context, tenant *domain.Tenant) (*domain.Tenant, error) {
	if tenant != nil {
		return tenant, nil
	}
	return s.Tenants.GetOrCreateDefaultTenant(ctx)
}

// Generate runs the single-shot chat orchestration.
func (s *Service) Generate(ctx context.Context, tenant *domain.Tenant, req domain.ChatRequest) (Outcome, error) {
	tenant, err := s.resolveTenant(ctx, tenant)
	if err != nil {
		return Outcome{}, err
	}

	decision := s.Router.Decide(tenant.Tier, s.Health)
	emittedUnhealthy := decision.Reason == "primary_unhealthy"
	if emittedUnhealthy {
		s.Metrics.FallbackTotal.WithLabelValues("primary_unhealthy", "primary", "fallback").Inc()
	}

	modelName := s.resolveModelName(decision)
	cacheable := fingerprint.Cacheable(req)
	var fp string
	cacheStatus := "bypass"
	if cacheable {
		fp = fingerprint.Compute(req)
	}

	if cacheable {
		if entry, hit := s.Cache.Get(ctx, tenant.ID, fp); hit {
			s.Metrics.CacheHitsTotal.Inc()
			s.recordCompletedFromCache(ctx, tenant, modelName, entry)
			return Outcome{
				Response:     entry.Response,
				ModelChosen:  modelName,
				RouteReason:  "cache_hit",
				UsedProvider: "cache",
				CacheStatus:  "hit",
			}, nil
		}
		cacheStatus = "miss"
		s.Metrics.CacheMissesTotal.Inc()
	}

	payloadJSON, _ := json.Marshal(req)
	reqRow, err := s.Accounting.CreateRequest(ctx, tenant.ID, modelName, string(payloadJSON))
	if err != nil {
		return Outcome{}, err
	}

	start := time.Now()
	result, usedProvider, err := s.dispatchGenerate(ctx, decision, modelName, req, emittedUnhealthy)
	if err != nil {
		_ = s.Accounting.FailRequest(ctx, reqRow.ID)
		return Outcome{}, err
	}
	latency := time.Since(start)

	costUSD := pricing.Cost(s.Pricing, modelName, result.PromptTokens, result.CompletionTokens, 0)

	if cacheable {
		s.Cache.Put(ctx, tenant.ID, fp, domain.CacheEntry{
			Response:         domain.ChatResponse{ID: result.ID, Model: result.Model, Created: result.Created, Content: result.Content},
			PromptTokens:     result.PromptTokens,
			CompletionTokens: result.CompletionTokens,
			TotalTokens:      result.TotalTokens,
			CostUSD:          costUSD,
		})
	}

	_ = s.Accounting.CompleteRequest(ctx, reqRow.ID, result.Content, latency.Milliseconds(),
		result.PromptTokens, result.CompletionTokens, result.TotalTokens, costUSD)
	_ = s.Accounting.InsertUsageEvent(ctx, tenant.ID, reqRow.ID, modelName, result.TotalTokens, costUSD)

	s.Metrics.TokensTotal.WithLabelValues(modelName).Add(float64(result.TotalTokens))
	s.Metrics.CostTotal.WithLabelValues(modelName).Add(costUSD)
	s.Metrics.TenantRequestsTotal.WithLabelValues(tenant.Name).Inc()
	s.Metrics.TenantTokensTotal.WithLabelValues(tenant.Name).Add(float64(result.TotalTokens))
	s.Metrics.TenantCostTotal.WithLabelValues(tenant.Name).Add(costUSD)

	reason := decision.Reason
	if usedProvider != decision.Provider {
		reason = "primary_error"
	}

	return Outcome{
		Response:     domain.ChatResponse{ID: result.ID, Model: result.Model, Created: result.Created, Content: result.Content},
		ModelChosen:  modelName,
		RouteReason:  reason,
		UsedProvider: usedProvider,
		CacheStatus:  cacheStatus,
	}, nil
}

// dispatchGenerate calls the routed provider, falling back on error
// step 5. Returns the effective provider name that produced the result.
func (s *Service) dispatchGenerate(ctx context.Context, decision domain.RouteDecision, modelName string, req domain.ChatRequest, alreadyUnhealthy bool) (provider.Result, string, error) {
	primary, ok := s.Providers.Get(decision.Provider)
	if !ok {
		return provider.Result{}, "", domain.ErrInternal
	}

	pReq := provider.ChatRequest{Model: modelName, Messages: toProviderMessages(req.Messages), Temperature: req.Temperature, MaxTokens: req.MaxTokens}

	var result provider.Result
	callErr := s.Reliability.Generate(ctx, decision.Provider, func() error {
		callStart := time.Now()
		r, err := primary.Generate(ctx, pReq)
		s.Metrics.ProviderLatency.WithLabelValues(decision.Provider).Observe(time.Since(callStart).Seconds())
		if err == nil {
			result = r
		}
		return err
	})

	if callErr == nil {
		s.Health.Record(decision.Provider, true)
		s.Metrics.ProviderRequestsTotal.WithLabelValues(decision.Provider, "success").Inc()
		return result, decision.Provider, nil
	}

	s.Health.Record(decision.Provider, false)
	s.Metrics.ProviderRequestsTotal.WithLabelValues(decision.Provider, "failure").Inc()

	if decision.FallbackProvider == "" {
		return provider.Result{}, "", callErr
	}

	fallback, ok := s.Providers.Get(decision.FallbackProvider)
	if !ok {
		return provider.Result{}, "", callErr
	}

	if !alreadyUnhealthy {
		s.Metrics.FallbackTotal.WithLabelValues("primary_error", decision.Provider, decision.FallbackProvider).Inc()
	}

	fbErr := s.Reliability.Generate(ctx, decision.FallbackProvider, func() error {
		callStart := time.Now()
		r, err := fallback.Generate(ctx, pReq)
		s.Metrics.ProviderLatency.WithLabelValues(decision.FallbackProvider).Observe(time.Since(callStart).Seconds())
		if err == nil {
			result = r
		}
		return err
	})
	if fbErr != nil {
		s.Health.Record(decision.FallbackProvider, false)
		s.Metrics.ProviderRequestsTotal.WithLabelValues(decision.FallbackProvider, "failure").Inc()
		return provider.Result{}, "", fbErr
	}
	s.Health.Record(decision.FallbackProvider, true)
	s.Metrics.ProviderRequestsTotal.WithLabelValues(decision.FallbackProvider, "success").Inc()
	return result, decision.FallbackProvider, nil
}

// recordCompletedFromCache persists the accounting trail for a cache hit:
// the Request row is created and immediately finalized, and a UsageEvent is
// still recorded since the request completed successfully, mirroring the
// normal completion path's invariant that every completed Request has
// exactly one UsageEvent.
func (s *Service) recordCompletedFromCache(ctx context.Context, tenant *domain.Tenant, modelName string, entry domain.CacheEntry) {
	reqRow, err := s.Accounting.CreateRequest(ctx, tenant.ID, modelName, "")
	if err != nil {
		s.Logger.Error("failed to record cached request", "error", err)
		return
	}
	_ = s.Accounting.CompleteRequest(ctx, reqRow.ID, entry.Response.Content, 0,
		entry.PromptTokens, entry.CompletionTokens, entry.TotalTokens, entry.CostUSD)
	_ = s.Accounting.InsertUsageEvent(ctx, tenant.ID, reqRow.ID, modelName, entry.TotalTokens, entry.CostUSD)

	s.Metrics.TokensTotal.WithLabelValues(modelName).Add(float64(entry.TotalTokens))
	s.Metrics.CostTotal.WithLabelValues(modelName).Add(entry.CostUSD)
	s.Metrics.TenantRequestsTotal.WithLabelValues(tenant.Name).Inc()
	s.Metrics.TenantTokensTotal.WithLabelValues(tenant.Name).Add(float64(entry.TotalTokens))
	s.Metrics.TenantCostTotal.WithLabelValues(tenant.Name).Add(entry.CostUSD)
}
