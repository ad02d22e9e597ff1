package orchestrator

import (
	"context"
	"encoding/json"
	"time"

	"llmgateway/internal/domain"
	"llmgateway/internal/pricing"
	"llmgateway/internal/provider"
)

// Usage mirrors the terminal SSE event's usage object.
type Usage struct {
	PromptTokens     int64 `json:"prompt_tokens"`
	CompletionTokens int64 `json:"completion_tokens"`
	TotalTokens      int64 `json:"total_tokens"`
}

// SSEEvent is one chat-stream event.
type SSEEvent struct {
	ID       string `json:"id,omitempty"`
	Model    string `json:"model,omitempty"`
	Created  int64  `json:"created,omitempty"`
	Content  string `json:"content"`
	Done     bool   `json:"done"`
	Usage    *Usage `json:"usage,omitempty"`
	Provider string `json:"provider,omitempty"`

	Error *SSEError `json:"error,omitempty"`
}

type SSEError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Emit is called once per SSE event; returning an error aborts the stream
// (e.g. the client connection write failed).
type Emit func(SSEEvent) error

// StreamResult reports the terminal status of a streamed call, for the HTTP
// handler to decide what (if anything) to log beyond what Stream already
// persisted.
type StreamResult struct {
	Status domain.RequestStatus
}

// Stream runs the streaming chat orchestration. Cache is always bypassed.
func (s *Service) Stream(ctx context.Context, tenant *domain.Tenant, req domain.ChatRequest, emit Emit) (StreamResult, error) {
	tenant, err := s.resolveTenant(ctx, tenant)
	if err != nil {
		return StreamResult{}, err
	}

	decision := s.Router.Decide(tenant.Tier, s.Health)
	emittedUnhealthy := decision.Reason == "primary_unhealthy"
	if emittedUnhealthy {
		s.Metrics.FallbackTotal.WithLabelValues("primary_unhealthy", "primary", "fallback").Inc()
	}

	modelName := s.resolveModelName(decision)
	payloadJSON, _ := json.Marshal(req)
	reqRow, err := s.Accounting.CreateRequest(ctx, tenant.ID, modelName, string(payloadJSON))
	if err != nil {
		return StreamResult{}, err
	}

	pReq := provider.ChatRequest{Model: modelName, Messages: toProviderMessages(req.Messages), Temperature: req.Temperature, MaxTokens: req.MaxTokens}

	id := reqRow.ID
	created := time.Now().Unix()
	start := time.Now()

	var contentSoFar string
	var anyContentYielded bool
	var usedProvider string

	runSlot := func(slot string) (Usage, error) {
		p, ok := s.Providers.Get(slot)
		if !ok {
			return Usage{}, domain.ErrInternal
		}
		callStart := time.Now()
		ch, err := p.Stream(ctx, pReq)
		if err != nil {
			s.Metrics.ProviderLatency.WithLabelValues(slot).Observe(time.Since(callStart).Seconds())
			return Usage{}, err
		}
		defer func() {
			s.Metrics.ProviderLatency.WithLabelValues(slot).Observe(time.Since(callStart).Seconds())
		}()

		for {
			select {
			case <-ctx.Done():
				return Usage{}, ctx.Err()
			case chunk, ok := <-ch:
				if !ok {
					return Usage{}, nil
				}
				if chunk.Done {
					usage := Usage{PromptTokens: chunk.PromptTokens, CompletionTokens: chunk.CompletionTokens, TotalTokens: chunk.PromptTokens + chunk.CompletionTokens}
					if usage.TotalTokens == 0 {
						total := provider.EstimateTokens(contentSoFar)
						usage = Usage{PromptTokens: 0, CompletionTokens: total, TotalTokens: total}
					}
					return usage, nil
				}
				contentSoFar += chunk.Content
				anyContentYielded = true
				if err := emit(SSEEvent{ID: id, Model: modelName, Created: created, Content: chunk.Content, Done: false}); err != nil {
					return Usage{}, err
				}
			}
		}
	}

	usage, err := runSlot(decision.Provider)
	usedProvider = decision.Provider

	if err != nil {
		if ctx.Err() != nil {
			// Client disconnected: mark the request canceled and skip
			// usage accounting.
			_ = s.Accounting.CancelRequest(context.Background(), reqRow.ID)
			s.Health.Record(decision.Provider, false)
			return StreamResult{Status: domain.StatusCanceled}, nil
		}

		s.Health.Record(decision.Provider, false)

		if anyContentYielded {
			// Content already flowed: surface a terminal error, never
			// switch providers mid-stream.
			_ = emit(SSEEvent{Done: true, Error: &SSEError{Code: "stream_error", Message: "Stream failed"}})
			_ = s.Accounting.FailRequest(ctx, reqRow.ID)
			return StreamResult{Status: domain.StatusFailed}, nil
		}

		// No content yielded yet: retry with the fallback provider under the
		// same protocol.
		if decision.FallbackProvider == "" {
			_ = s.Accounting.FailRequest(ctx, reqRow.ID)
			return StreamResult{}, err
		}
		if !emittedUnhealthy {
			s.Metrics.FallbackTotal.WithLabelValues("primary_error", decision.Provider, decision.FallbackProvider).Inc()
		}

		usage, err = runSlot(decision.FallbackProvider)
		usedProvider = decision.FallbackProvider
		if err != nil {
			if ctx.Err() != nil {
				_ = s.Accounting.CancelRequest(context.Background(), reqRow.ID)
				s.Health.Record(decision.FallbackProvider, false)
				return StreamResult{Status: domain.StatusCanceled}, nil
			}
			s.Health.Record(decision.FallbackProvider, false)
			if anyContentYielded {
				_ = emit(SSEEvent{Done: true, Error: &SSEError{Code: "stream_error", Message: "Stream failed"}})
				_ = s.Accounting.FailRequest(ctx, reqRow.ID)
				return StreamResult{Status: domain.StatusFailed}, nil
			}
			_ = s.Accounting.FailRequest(ctx, reqRow.ID)
			return StreamResult{}, err
		}
		s.Health.Record(decision.FallbackProvider, true)
	} else {
		s.Health.Record(decision.Provider, true)
	}

	costUSD := pricing.Cost(s.Pricing, modelName, usage.PromptTokens, usage.CompletionTokens, 0)
	latency := time.Since(start)

	if err := emit(SSEEvent{ID: id, Model: modelName, Created: created, Content: "", Done: true, Usage: &usage, Provider: usedProvider}); err != nil {
		_ = s.Accounting.CancelRequest(context.Background(), reqRow.ID)
		return StreamResult{Status: domain.StatusCanceled}, nil
	}

	_ = s.Accounting.CompleteRequest(ctx, reqRow.ID, contentSoFar, latency.Milliseconds(),
		usage.PromptTokens, usage.CompletionTokens, usage.TotalTokens, costUSD)
	_ = s.Accounting.InsertUsageEvent(ctx, tenant.ID, reqRow.ID, modelName, usage.TotalTokens, costUSD)

	s.Metrics.TokensTotal.WithLabelValues(modelName).Add(float64(usage.TotalTokens))
	s.Metrics.CostTotal.WithLabelValues(modelName).Add(costUSD)
	s.Metrics.TenantRequestsTotal.WithLabelValues(tenant.Name).Inc()
	s.Metrics.TenantTokensTotal.WithLabelValues(tenant.Name).Add(float64(usage.TotalTokens))
	s.Metrics.TenantCostTotal.WithLabelValues(tenant.Name).Add(costUSD)

	return StreamResult{Status: domain.StatusCompleted}, nil
}
