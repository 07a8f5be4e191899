package ai

import (
	"context"
	"errors"
	"strings"

	"weekly-snippets/internal/domain/ports/adapter"
)

var _ adapter.AIServiceAdapter = (*MultiAIAdapter)(nil)

var ErrNoProvider = errors.New("ai: no provider configured")

// MultiAIAdapter routes each call to a provider adapter by model name.
type MultiAIAdapter struct {
	defaultProvider string // e.g., "openai" or "gemini"
	byProvider      map[string]adapter.AIServiceAdapter
	modelToProvider map[string]string // model -> provider
}

func NewMultiAIAdapter(
	defaultProvider string,
	byProvider map[string]adapter.AIServiceAdapter,
	modelToProvider map[string]string,
) *MultiAIAdapter {
	providers := make(map[string]adapter.AIServiceAdapter, len(byProvider))
	for name, a := range byProvider {
		if a != nil {
			providers[strings.ToLower(name)] = a
		}
	}
	return &MultiAIAdapter{
		defaultProvider: strings.ToLower(defaultProvider),
		byProvider:      providers,
		modelToProvider: modelToProvider,
	}
}

// Providers reports how many provider adapters are configured.
func (m *MultiAIAdapter) Providers() int { return len(m.byProvider) }

func (m *MultiAIAdapter) resolveProvider(model string) string {
	if p := m.modelToProvider[model]; p != "" {
		return strings.ToLower(p)
	}
	l := strings.ToLower(model)
	switch {
	case strings.HasPrefix(l, "gemini"):
		return "gemini"
	case strings.HasPrefix(l, "gpt"), strings.HasPrefix(l, "o1"), strings.HasPrefix(l, "o3"):
		return "openai"
	default:
		return m.defaultProvider
	}
}

func (m *MultiAIAdapter) pick(model string) (adapter.AIServiceAdapter, error) {
	if a := m.byProvider[m.resolveProvider(model)]; a != nil {
		return a, nil
	}
	if a := m.byProvider[m.defaultProvider]; a != nil {
		return a, nil
	}
	return nil, ErrNoProvider
}

func (m *MultiAIAdapter) CountTokens(ctx context.Context, model string, messages []adapter.Message) (int, error) {
	a, err := m.pick(model)
	if err != nil {
		return 0, err
	}
	return a.CountTokens(ctx, model, messages)
}

func (m *MultiAIAdapter) Chat(ctx context.Context, model string, messages []adapter.Message) (string, error) {
	a, err := m.pick(model)
	if err != nil {
		return "", err
	}
	return a.Chat(ctx, model, messages)
}

func (m *MultiAIAdapter) ChatWithUsage(ctx context.Context, model string, messages []adapter.Message) (string, adapter.Usage, error) {
	a, err := m.pick(model)
	if err != nil {
		return "", adapter.Usage{}, err
	}
	return a.ChatWithUsage(ctx, model, messages)
}
