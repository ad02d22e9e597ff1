package provider

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// OllamaProvider calls an Ollama-compatible /api/chat endpoint, grounded on
// the original ollama_provider.py and the pooled-transport construction
// style used for HTTP-backed provider clients.
type OllamaProvider struct {
	name    string
	baseURL string
	model   string
	client  *http.Client
}

func NewOllamaProvider(name, baseURL, model string, timeout time.Duration) *OllamaProvider {
	transport := &http.Transport{
		MaxIdleConns:        50,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		ForceAttemptHTTP2:   true,
	}
	return &OllamaProvider{
		name:    name,
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		client:  &http.Client{Timeout: timeout, Transport: transport},
	}
}

func (o *OllamaProvider) Name() string { return o.name }

// ModelOverride returns the configured upstream model name, since an
// Ollama-backed slot always talks to one fixed model regardless of what the
// caller requested.
func (o *OllamaProvider) ModelOverride() string { return o.model }

type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaOptions struct {
	Temperature *float64 `json:"temperature,omitempty"`
	NumPredict  *int     `json:"num_predict,omitempty"`
}

type ollamaChatRequest struct {
	Model    string        `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool          `json:"stream"`
	Options  ollamaOptions `json:"options"`
}

type ollamaChatResponse struct {
	Model          string        `json:"model"`
	Message        ollamaMessage `json:"message"`
	Done           bool          `json:"done"`
	PromptEvalCount int          `json:"prompt_eval_count"`
	EvalCount      int           `json:"eval_count"`
}

func (o *OllamaProvider) buildPayload(req ChatRequest, stream bool) ollamaChatRequest {
	messages := make([]ollamaMessage, len(req.Messages))
	for i, m := range req.Messages {
		messages[i] = ollamaMessage{Role: m.Role, Content: m.Content}
	}
	model := req.Model
	if o.model != "" {
		model = o.model
	}
	return ollamaChatRequest{
		Model:    model,
		Messages: messages,
		Stream:   stream,
		Options:  ollamaOptions{Temperature: req.Temperature, NumPredict: req.MaxTokens},
	}
}

func (o *OllamaProvider) Generate(ctx context.Context, req ChatRequest) (Result, error) {
	payload := o.buildPayload(req, false)
	body, err := json.Marshal(payload)
	if err != nil {
		return Result{}, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return Result{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(httpReq)
	if err != nil {
		return Result{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return Result{}, fmt.Errorf("ollama provider returned status %d", resp.StatusCode)
	}

	var decoded ollamaChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return Result{}, err
	}

	promptTokens := int64(decoded.PromptEvalCount)
	completionTokens := int64(decoded.EvalCount)
	total := promptTokens + completionTokens
	if total == 0 {
		total = EstimateTokens(concatMessages(req.Messages) + decoded.Message.Content)
	}

	return Result{
		ID:               uuid.NewString(),
		Model:            valueOr(decoded.Model, payload.Model),
		Created:          time.Now().Unix(),
		Content:          decoded.Message.Content,
		PromptTokens:     promptTokens,
		CompletionTokens: completionTokens,
		TotalTokens:      total,
	}, nil
}

func (o *OllamaProvider) Stream(ctx context.Context, req ChatRequest) (<-chan Chunk, error) {
	payload := o.buildPayload(req, true)
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 300 {
		resp.Body.Close()
		return nil, fmt.Errorf("ollama provider returned status %d", resp.StatusCode)
	}

	out := make(chan Chunk)
	go func() {
		defer close(out)
		defer resp.Body.Close()

		scanner := bufio.NewScanner(resp.Body)
		var contentSoFar strings.Builder
		for scanner.Scan() {
			select {
			case <-ctx.Done():
				return
			default:
			}

			line := scanner.Bytes()
			if len(bytes.TrimSpace(line)) == 0 {
				continue
			}
			var piece ollamaChatResponse
			if err := json.Unmarshal(line, &piece); err != nil {
				continue
			}
			contentSoFar.WriteString(piece.Message.Content)

			if piece.Done {
				promptTokens := int64(piece.PromptEvalCount)
				completionTokens := int64(piece.EvalCount)
				if promptTokens+completionTokens == 0 {
					completionTokens = EstimateTokens(contentSoFar.String())
				}
				select {
				case out <- Chunk{Done: true, Model: valueOr(piece.Model, payload.Model), PromptTokens: promptTokens, CompletionTokens: completionTokens}:
				case <-ctx.Done():
				}
				return
			}
			select {
			case out <- Chunk{Content: piece.Message.Content, Model: valueOr(piece.Model, payload.Model)}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func concatMessages(msgs []Message) string {
	var b strings.Builder
	for _, m := range msgs {
		b.WriteString(m.Content)
		b.WriteString(" ")
	}
	return b.String()
}

func valueOr(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
