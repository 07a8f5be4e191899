package usecase

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"weekly-snippets/internal/domain/model"
	"weekly-snippets/internal/domain/ports/adapter"
	"weekly-snippets/internal/infra/metrics"
)

const snippetSystemPrompt = `You write concise weekly work snippets for a knowledge worker.
Answer in Markdown with exactly these sections, in this order:

## Done
Bullet points of what was accomplished this week.

## Next
Bullet points of what is planned for next week.

## Notes
Blockers, learnings or anything else worth remembering. Write "None" if empty.

Only use facts from the provided activity and context. Do not invent work.`

type snippetPrompt struct {
	year, week int
	profile    *model.Profile
	items      []model.IntegrationItem
	previous   []*model.WeeklySnippet
}

func (p snippetPrompt) activityBlock() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Period: %d week %d\n", p.year, p.week)
	if p.profile != nil {
		if p.profile.Name != "" {
			fmt.Fprintf(&b, "Name: %s\n", p.profile.Name)
		}
		if p.profile.JobTitle != "" {
			fmt.Fprintf(&b, "Role: %s", p.profile.JobTitle)
			if p.profile.Level != "" {
				fmt.Fprintf(&b, " (%s)", p.profile.Level)
			}
			b.WriteString("\n")
		}
		if p.profile.Team != "" {
			fmt.Fprintf(&b, "Team: %s\n", p.profile.Team)
		}
		if p.profile.CareerGoals != "" {
			fmt.Fprintf(&b, "Career goals: %s\n", p.profile.CareerGoals)
		}
	}
	b.WriteString("\nActivity:\n")
	if len(p.items) == 0 {
		b.WriteString("- (no integration activity)\n")
	}
	items := append([]model.IntegrationItem(nil), p.items...)
	sort.SliceStable(items, func(i, j int) bool { return items[i].OccurredAt.Before(items[j].OccurredAt) })
	for _, it := range items {
		fmt.Fprintf(&b, "- [%s] %s", it.Source, it.Title)
		if it.URL != "" {
			fmt.Fprintf(&b, " (%s)", it.URL)
		}
		b.WriteString("\n")
	}
	return b.String()
}

func previousBlock(s *model.WeeklySnippet) string {
	return fmt.Sprintf("Previous snippet %d week %d:\n%s\n", s.Year, s.Week, s.Content)
}

// buildSnippetMessages keeps as many previous snippets (newest first) as fit
// in budget tokens. A budget <= 0 disables previous context.
func buildSnippetMessages(ctx context.Context, ai adapter.AIServiceAdapter, modelName string, p snippetPrompt, budget int) []adapter.Message {
	var ctxParts []string
	used := 0
	dropped := 0
	for _, prev := range p.previous {
		block := previousBlock(prev)
		n := countTokens(ctx, ai, modelName, block)
		if budget <= 0 || used+n > budget {
			dropped++
			continue
		}
		used += n
		ctxParts = append(ctxParts, block)
	}
	if dropped > 0 {
		metrics.AddContextTrimmed(dropped)
	}

	user := p.activityBlock()
	if len(ctxParts) > 0 {
		user = "Context from earlier weeks:\n" + strings.Join(ctxParts, "\n") + "\n" + user
	}
	return []adapter.Message{
		{Role: "system", Content: snippetSystemPrompt},
		{Role: "user", Content: user},
	}
}

func countTokens(ctx context.Context, ai adapter.AIServiceAdapter, modelName, text string) int {
	n, err := ai.CountTokens(ctx, modelName, []adapter.Message{{Role: "user", Content: text}})
	if err != nil || n <= 0 {
		return len(text)/4 + 1
	}
	return n
}
