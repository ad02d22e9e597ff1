package httpapi

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"llmgateway/internal/auth"
	"llmgateway/internal/domain"
	"llmgateway/internal/orchestrator"
)

func decodeChatRequest(r *http.Request) (domain.ChatRequest, error) {
	var req domain.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return domain.ChatRequest{}, domain.NewGatewayError("invalid_request", http.StatusBadRequest, "invalid request body")
	}
	if req.Model == "" {
		return domain.ChatRequest{}, domain.NewGatewayError("invalid_request", http.StatusBadRequest, "model is required")
	}
	if len(req.Messages) == 0 {
		return domain.ChatRequest{}, domain.NewGatewayError("invalid_request", http.StatusBadRequest, "at least one message is required")
	}
	for _, m := range req.Messages {
		if m.Content == "" {
			return domain.ChatRequest{}, domain.NewGatewayError("invalid_request", http.StatusBadRequest, "message content must not be empty")
		}
	}
	return req, nil
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request, ac *auth.AuthContext) {
	req, err := decodeChatRequest(r)
	if err != nil {
		writeGatewayError(w, err)
		return
	}
	req.Stream = false

	outcome, err := s.engine.Generate(r.Context(), ac.Tenant, req)
	if err != nil {
		writeGatewayError(w, err)
		return
	}

	w.Header().Set("X-Model-Chosen", outcome.ModelChosen)
	w.Header().Set("X-Route-Reason", outcome.RouteReason)
	w.Header().Set("X-Provider", outcome.UsedProvider)
	w.Header().Set("X-Cache", outcome.CacheStatus)
	writeJSON(w, http.StatusOK, outcome.Response)
}

func (s *Server) handleChatStream(w http.ResponseWriter, r *http.Request, ac *auth.AuthContext) {
	req, err := decodeChatRequest(r)
	if err != nil {
		writeGatewayError(w, err)
		return
	}
	req.Stream = true

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "internal_error", "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Accel-Buffering", "no")
	w.Header().Set("X-Cache", "bypass")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	s.metrics.StreamConnections.Inc()
	defer s.metrics.StreamConnections.Dec()

	emit := func(ev orchestrator.SSEEvent) error {
		payload, err := json.Marshal(ev)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
			return err
		}
		flusher.Flush()
		if ev.Done {
			if _, err := io.WriteString(w, "data: [DONE]\n\n"); err != nil {
				return err
			}
			flusher.Flush()
		}
		return nil
	}

	if _, err := s.engine.Stream(r.Context(), ac.Tenant, req, emit); err != nil {
		s.logger.Error("stream orchestration failed", "error", err)
	}
}
