// Package provider implements the LLM provider adapter contract: a
// uniform generate/stream interface over a mock implementation and an
// HTTP-backed upstream.
package provider

import "context"

// Provider is the uniform contract every upstream variant satisfies.
type Provider interface {
	Name() string
	Generate(ctx context.Context, req ChatRequest) (Result, error)
	Stream(ctx context.Context, req ChatRequest) (<-chan Chunk, error)

	// ModelOverride returns the upstream model name this adapter always uses
	// regardless of the caller-supplied model, or "" if it has none (the
	// mock adapters echo back whatever model they're asked for).
	ModelOverride() string
}

// ChatRequest mirrors domain.ChatRequest without importing the domain
// package's wire tags, keeping provider implementations independent of the
// HTTP layer's JSON shape.
type ChatRequest struct {
	Model       string
	Messages    []Message
	Temperature *float64
	MaxTokens   *int
}

type Message struct {
	Role    string
	Content string
}

// Result is the outcome of a non-streaming Generate call.
type Result struct {
	ID               string
	Model            string
	Created          int64
	Content          string
	PromptTokens     int64
	CompletionTokens int64
	TotalTokens      int64
}

// Chunk is one element of a Stream sequence. The final chunk MUST have
// Done=true; implementations may emit it as a standalone terminating chunk
// carrying no content.
type Chunk struct {
	Content          string
	Done             bool
	PromptTokens     int64
	CompletionTokens int64
	Model            string
}

// EstimateTokens is the fallback token estimator used whenever an upstream
// reports zero: max(1, len(text)/4).
func EstimateTokens(text string) int64 {
	n := int64(len(text)) / 4
	if n < 1 {
		return 1
	}
	return n
}
