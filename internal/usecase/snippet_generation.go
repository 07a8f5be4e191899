package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"weekly-snippets/internal/domain"
	"weekly-snippets/internal/domain/model"
	"weekly-snippets/internal/domain/period"
	"weekly-snippets/internal/domain/ports/adapter"
	"weekly-snippets/internal/domain/ports/repository"
	"weekly-snippets/internal/infra/logging"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// SnippetGenerationInput is the operation input for weekly snippet generation.
type SnippetGenerationInput struct {
	OwnerID                 string    `json:"ownerId"`
	PeriodStart             time.Time `json:"periodStart"`
	PeriodEnd               time.Time `json:"periodEnd"`
	IncludePreviousContext  bool      `json:"includePreviousContext"`
	IncludeIntegrationTypes []string  `json:"includeIntegrationTypes"`
}

const (
	GenerationStatusSuccess = "success"
	GenerationStatusError   = "error"
)

// GenerationResult is stored as the operation result.
type GenerationResult struct {
	Status     string `json:"status"`
	ArtifactID string `json:"artifactId,omitempty"`
	Year       int    `json:"year,omitempty"`
	Period     int    `json:"period,omitempty"`
	Content    string `json:"content,omitempty"`
	Error      string `json:"error,omitempty"`
}

func (r *GenerationResult) FailureMessage() (string, bool) {
	if r == nil || r.Status != GenerationStatusError {
		return "", false
	}
	if r.Error == "" {
		return "generation failed", true
	}
	return r.Error, true
}

type SnippetGenerationOptions struct {
	Model            string
	PreviousSnippets int
	TokenBudget      int
	FetchTimeout     time.Duration
}

type SnippetGenerationHandler struct {
	users   repository.UserRepository
	scopes  *ScopeFactory
	ai      adapter.AIServiceAdapter
	sources adapter.IntegrationSource
	opts    SnippetGenerationOptions
	log     *zerolog.Logger
}

var _ Handler = (*SnippetGenerationHandler)(nil)

func NewSnippetGenerationHandler(
	users repository.UserRepository,
	scopes *ScopeFactory,
	ai adapter.AIServiceAdapter,
	sources adapter.IntegrationSource,
	opts SnippetGenerationOptions,
	logger *zerolog.Logger,
) *SnippetGenerationHandler {
	if opts.PreviousSnippets <= 0 {
		opts.PreviousSnippets = 3
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = 15 * time.Second
	}
	l := logger.With().Str("component", "snippet_generation").Logger()
	return &SnippetGenerationHandler{users: users, scopes: scopes, ai: ai, sources: sources, opts: opts, log: &l}
}

func failed(err *domain.HandlerError) (any, error) {
	return &GenerationResult{Status: GenerationStatusError, Error: err.Error()}, err
}

func (h *SnippetGenerationHandler) Process(ctx context.Context, raw json.RawMessage, hctx *HandlerContext) (any, error) {
	defer logging.TraceDuration(h.log, "SnippetGenerationHandler.Process")()

	var in SnippetGenerationInput
	if err := json.Unmarshal(raw, &in); err != nil {
		return failed(domain.NewHandlerError(err, "invalid input"))
	}
	if in.OwnerID == "" || in.OwnerID != hctx.OwnerID() {
		return failed(domain.NewHandlerError(nil, "input owner does not match operation owner"))
	}
	if in.PeriodStart.IsZero() {
		return failed(domain.NewHandlerError(nil, "periodStart is required"))
	}

	if _, err := h.users.FindByID(ctx, nil, in.OwnerID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return failed(domain.NewHandlerError(nil, "user not found: %s", in.OwnerID))
		}
		return failed(domain.NewHandlerError(err, "load user"))
	}

	year, week := period.ISOWeek(in.PeriodStart)
	var result *GenerationResult
	err := h.scopes.With(ctx, in.OwnerID, func(scope *ScopedRepository) error {
		res, err := h.generate(ctx, scope, hctx, in, year, week)
		result = res
		return err
	})
	if err != nil {
		var he *domain.HandlerError
		if !errors.As(err, &he) {
			he = domain.NewHandlerError(err, "generate snippet")
		}
		return failed(he)
	}
	return result, nil
}

func (h *SnippetGenerationHandler) generate(ctx context.Context, scope *ScopedRepository, hctx *HandlerContext, in SnippetGenerationInput, year, week int) (*GenerationResult, error) {
	h.progress(ctx, hctx, 10, "loading context")

	profile, err := scope.GetProfile(ctx)
	if err != nil {
		return nil, domain.NewHandlerError(err, "load profile")
	}

	var previous []*model.WeeklySnippet
	if in.IncludePreviousContext {
		list, err := scope.ListSnippets(ctx, h.opts.PreviousSnippets+1)
		if err != nil {
			return nil, domain.NewHandlerError(err, "load previous snippets")
		}
		for _, s := range list {
			if s.Year == year && s.Week == week {
				continue
			}
			if len(previous) < h.opts.PreviousSnippets {
				previous = append(previous, s)
			}
		}
	}

	h.progress(ctx, hctx, 30, "fetching integration data")
	items, err := h.fetchActivity(ctx, scope, in)
	if err != nil {
		return nil, err
	}

	h.progress(ctx, hctx, 60, "drafting snippet")
	msgs := buildSnippetMessages(ctx, h.ai, h.opts.Model, snippetPrompt{
		year:     year,
		week:     week,
		profile:  profile,
		items:    items,
		previous: previous,
	}, h.opts.TokenBudget)
	content, err := h.ai.Chat(ctx, h.opts.Model, msgs)
	if err != nil {
		return nil, domain.NewHandlerError(err, "generate content")
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, domain.NewHandlerError(nil, "generate content: empty response")
	}

	h.progress(ctx, hctx, 90, "saving snippet")
	snippet, err := scope.CreateOrUpdateSnippet(ctx, year, week, period.Start(year, week), period.End(year, week), content)
	if err != nil {
		return nil, domain.NewHandlerError(err, "save snippet")
	}

	return &GenerationResult{
		Status:     GenerationStatusSuccess,
		ArtifactID: snippet.ID,
		Year:       year,
		Period:     week,
		Content:    snippet.Content,
	}, nil
}

// progress reports a step. A failed write does not stop generation.
func (h *SnippetGenerationHandler) progress(ctx context.Context, hctx *HandlerContext, percent int, message string) {
	if err := hctx.UpdateProgress(ctx, percent, message); err != nil {
		h.log.Warn().Err(err).
			Str("operation_id", hctx.OperationID()).
			Int("progress", percent).
			Msg("failed to record progress")
	}
}

// fetchActivity queries each requested integration concurrently. Every call
// has its own timeout; a failure of any requested source fails generation.
func (h *SnippetGenerationHandler) fetchActivity(ctx context.Context, scope *ScopedRepository, in SnippetGenerationInput) ([]model.IntegrationItem, error) {
	if len(in.IncludeIntegrationTypes) == 0 {
		return nil, nil
	}
	integrations, err := scope.ListIntegrations(ctx)
	if err != nil {
		return nil, domain.NewHandlerError(err, "load integrations")
	}
	active := make(map[string]*model.Integration, len(integrations))
	for _, it := range integrations {
		if it.IsActive {
			active[it.Type] = it
		}
	}

	types := dedupe(in.IncludeIntegrationTypes)
	for _, t := range types {
		if _, ok := active[t]; !ok {
			return nil, domain.NewHandlerError(domain.ErrIntegrationInactive, "fetch %s activity", t)
		}
	}

	from := in.PeriodStart
	to := in.PeriodEnd
	if to.IsZero() || to.Before(from) {
		to = from.AddDate(0, 0, 4)
	}
	to = to.Add(24*time.Hour - time.Nanosecond)

	var (
		mu    sync.Mutex
		items []model.IntegrationItem
	)
	g, gctx := errgroup.WithContext(ctx)
	for _, t := range types {
		integration := active[t]
		g.Go(func() error {
			cctx, cancel := context.WithTimeout(gctx, h.opts.FetchTimeout)
			defer cancel()
			got, err := h.sources.Fetch(cctx, integration.Type, integration.AccessToken, from, to)
			if err != nil {
				return domain.NewHandlerError(err, "fetch %s activity", integration.Type)
			}
			mu.Lock()
			items = append(items, got...)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	now := time.Now()
	for _, t := range types {
		if err := scope.MarkIntegrationSynced(ctx, t, now); err != nil {
			h.log.Warn().Err(err).Str("integration", t).Msg("failed to mark integration synced")
		}
	}
	return items, nil
}

func dedupe(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

// NewSnippetInput builds the generation input for a period.
func NewSnippetInput(ownerID string, year, week int, includePrevious bool, types []string) (json.RawMessage, error) {
	if !period.IsValidNumber(week) {
		return nil, fmt.Errorf("week %d: %w", week, domain.ErrInvalidPeriod)
	}
	return json.Marshal(SnippetGenerationInput{
		OwnerID:                 ownerID,
		PeriodStart:             period.Start(year, week),
		PeriodEnd:               period.End(year, week),
		IncludePreviousContext:  includePrevious,
		IncludeIntegrationTypes: types,
	})
}
