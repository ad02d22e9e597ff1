package provider

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
)

// MockProvider simulates an upstream with a fixed latency and a configurable
// failure injection rate, grounded on the original mock_provider.py.
type MockProvider struct {
	name     string
	delay    time.Duration
	failRate float64
}

func NewMockProvider(name string, delay time.Duration, failRate float64) *MockProvider {
	return &MockProvider{
		name:     name,
		delay:    delay,
		failRate: failRate,
	}
}

func (m *MockProvider) Name() string { return m.name }

func (m *MockProvider) ModelOverride() string { return "" }

func (m *MockProvider) shouldFail() bool {
	if m.failRate <= 0 {
		return false
	}
	// The package-level source is safe for concurrent callers.
	return rand.Float64() < m.failRate
}

func (m *MockProvider) sleep(ctx context.Context) error {
	select {
	case <-time.After(m.delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *MockProvider) Generate(ctx context.Context, req ChatRequest) (Result, error) {
	if m.shouldFail() {
		return Result{}, fmt.Errorf("mock provider failure")
	}
	if err := m.sleep(ctx); err != nil {
		return Result{}, err
	}
	content := "mock response"
	return Result{
		ID:               uuid.NewString(),
		Model:            req.Model,
		Created:          time.Now().Unix(),
		Content:          content,
		PromptTokens:     1,
		CompletionTokens: 1,
		TotalTokens:      2,
	}, nil
}

func (m *MockProvider) Stream(ctx context.Context, req ChatRequest) (<-chan Chunk, error) {
	if m.shouldFail() {
		return nil, fmt.Errorf("mock provider failure")
	}
	out := make(chan Chunk)
	go func() {
		defer close(out)
		parts := []string{"mock ", "response"}
		for _, p := range parts {
			if err := m.sleep(ctx); err != nil {
				return
			}
			select {
			case out <- Chunk{Content: p, Model: req.Model}:
			case <-ctx.Done():
				return
			}
		}
		select {
		case out <- Chunk{Done: true, Model: req.Model, PromptTokens: 1, CompletionTokens: 1}:
		case <-ctx.Done():
		}
	}()
	return out, nil
}
