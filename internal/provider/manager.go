package provider

import (
	"fmt"
	"time"

	"llmgateway/internal/config"
)

// Manager exposes the two logical provider slots routing decisions name:
// "primary" and "fallback". Each slot is backed by whichever concrete
// variant PROVIDER_MODE selects.
type Manager struct {
	slots map[string]Provider
}

func NewManager(cfg *config.Config) (*Manager, error) {
	m := &Manager{slots: make(map[string]Provider)}

	switch cfg.Provider.Mode {
	case "mock", "":
		m.slots["primary"] = NewMockProvider("primary", 50*time.Millisecond, cfg.Provider.PrimaryFailRate)
		m.slots["fallback"] = NewMockProvider("fallback", 50*time.Millisecond, cfg.Provider.FallbackFailRate)
	case "ollama":
		m.slots["primary"] = NewOllamaProvider("primary", cfg.Provider.OllamaURL, cfg.Provider.OllamaModel, 60*time.Second)
		m.slots["fallback"] = NewMockProvider("fallback", 50*time.Millisecond, cfg.Provider.FallbackFailRate)
	default:
		return nil, fmt.Errorf("unknown provider mode %q", cfg.Provider.Mode)
	}

	return m, nil
}

func (m *Manager) Get(slot string) (Provider, bool) {
	p, ok := m.slots[slot]
	return p, ok
}

func (m *Manager) Slots() []string {
	names := make([]string, 0, len(m.slots))
	for name := range m.slots {
		names = append(names, name)
	}
	return names
}
