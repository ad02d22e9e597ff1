// Package telemetry defines the gateway's Prometheus metrics: counters and
// histograms for the request pipeline, rate limiting, quota, fallback,
// cache, provider, and per-tenant accounting.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	RateLimitedTotal *prometheus.CounterVec
	QuotaDeniedTotal *prometheus.CounterVec
	FallbackTotal    *prometheus.CounterVec

	TokensTotal *prometheus.CounterVec
	CostTotal   *prometheus.CounterVec

	TenantRequestsTotal *prometheus.CounterVec
	TenantTokensTotal   *prometheus.CounterVec
	TenantCostTotal     *prometheus.CounterVec

	CacheHitsTotal   prometheus.Counter
	CacheMissesTotal prometheus.Counter

	ProviderRequestsTotal *prometheus.CounterVec
	ProviderLatency       *prometheus.HistogramVec

	CircuitBreakerState *prometheus.GaugeVec
	StreamConnections   prometheus.Gauge
}

func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		HTTPRequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total", Help: "HTTP requests by route and status.",
		}, []string{"route", "status"}),
		HTTPRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name: "http_request_duration_seconds", Help: "HTTP request latency by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),

		RateLimitedTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "rate_limited_total", Help: "Requests denied by the rate limiter, by reason.",
		}, []string{"reason"}),
		QuotaDeniedTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "quota_denied_total", Help: "Requests denied by the quota guard, by reason.",
		}, []string{"reason"}),
		FallbackTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "fallback_total", Help: "Provider fallbacks, by reason/from/to.",
		}, []string{"reason", "from", "to"}),

		TokensTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tokens_total", Help: "Total tokens processed, by model.",
		}, []string{"model"}),
		CostTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "cost_total", Help: "Total cost in USD, by model.",
		}, []string{"model"}),

		TenantRequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tenant_requests_total", Help: "Completed requests, by tenant.",
		}, []string{"tenant"}),
		TenantTokensTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tenant_tokens_total", Help: "Tokens processed, by tenant.",
		}, []string{"tenant"}),
		TenantCostTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tenant_cost_total", Help: "Cost in USD, by tenant.",
		}, []string{"tenant"}),

		CacheHitsTotal:   f.NewCounter(prometheus.CounterOpts{Name: "cache_hits_total", Help: "Response cache hits."}),
		CacheMissesTotal: f.NewCounter(prometheus.CounterOpts{Name: "cache_misses_total", Help: "Response cache misses."}),

		ProviderRequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "provider_requests_total", Help: "Provider calls, by provider/outcome.",
		}, []string{"provider", "outcome"}),
		ProviderLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name: "provider_latency_seconds", Help: "Provider call latency.", Buckets: prometheus.DefBuckets,
		}, []string{"provider"}),

		CircuitBreakerState: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "circuit_breaker_state", Help: "0=closed,1=half_open,2=open.",
		}, []string{"provider"}),
		StreamConnections: f.NewGauge(prometheus.GaugeOpts{
			Name: "stream_connections_active", Help: "Currently open SSE streams.",
		}),
	}
}
