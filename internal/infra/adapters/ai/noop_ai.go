package ai

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"weekly-snippets/internal/domain/ports/adapter"
)

var _ adapter.AIServiceAdapter = (*NoopAIAdapter)(nil)

// NoopAIAdapter is used when no provider key is configured. It answers with
// a fixed snippet skeleton so the rest of the pipeline can run locally.
type NoopAIAdapter struct {
	logger *zerolog.Logger
}

func NewNoopAIAdapter(logger *zerolog.Logger) *NoopAIAdapter {
	l := logger.With().Str("component", "noop_ai").Logger()
	return &NoopAIAdapter{logger: &l}
}

func (a *NoopAIAdapter) CountTokens(_ context.Context, _ string, messages []adapter.Message) (int, error) {
	n := 0
	for _, m := range messages {
		n += heuristicTokens(m.Content)
	}
	return n, nil
}

func (a *NoopAIAdapter) Chat(ctx context.Context, model string, messages []adapter.Message) (string, error) {
	reply, _, err := a.ChatWithUsage(ctx, model, messages)
	return reply, err
}

func (a *NoopAIAdapter) ChatWithUsage(ctx context.Context, model string, messages []adapter.Message) (string, adapter.Usage, error) {
	if err := ctx.Err(); err != nil {
		return "", adapter.Usage{}, err
	}
	in, _ := a.CountTokens(ctx, model, messages)
	a.logger.Debug().Str("model", model).Int("messages", len(messages)).Msg("noop chat")

	var sb strings.Builder
	sb.WriteString("## Done\n")
	if len(messages) > 0 {
		fmt.Fprintf(&sb, "- %s\n", firstLine(messages[len(messages)-1].Content))
	}
	sb.WriteString("\n## Next\n- (fill in)\n\n## Notes\n- generated without an AI provider\n")
	out := sb.String()
	u := adapter.Usage{PromptTokens: in, CompletionTokens: heuristicTokens(out)}
	u.TotalTokens = u.PromptTokens + u.CompletionTokens
	return out, u, nil
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	if len(s) > 120 {
		s = s[:120]
	}
	return s
}
