package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"weekly-snippets/internal/usecase"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// RateLimiter is a fixed-window limiter keyed per owner and action.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

type Deps struct {
	Auth       Authenticator
	Scopes     *usecase.ScopeFactory
	Operations *usecase.OperationUseCase

	// Limiter is optional; without it generation requests are not limited.
	Limiter      RateLimiter
	TriggerKey   func(ownerID string) string
	TriggerLimit int
	TriggerEvery time.Duration

	// Health is optional and reports dependency failures as 503.
	Health func(ctx context.Context) error

	RequestTimeout time.Duration
	Logger         *zerolog.Logger
}

type Server struct {
	deps Deps
	log  *zerolog.Logger
}

func NewServer(deps Deps) *Server {
	if deps.RequestTimeout <= 0 {
		deps.RequestTimeout = 15 * time.Second
	}
	if deps.TriggerKey == nil {
		deps.TriggerKey = func(ownerID string) string { return "ratelimit:generate:" + ownerID }
	}
	l := deps.Logger.With().Str("component", "api").Logger()
	return &Server{deps: deps, log: &l}
}

// Routes builds the full router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(TraceID(), RequestLog(s.log), Recover(s.log), Timeout(s.deps.RequestTimeout))

	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(RequireOwner(s.deps.Auth))

		r.Post("/snippets/generate", s.handleGenerate)
		r.Get("/operations/{id}", s.handleOperationStatus)

		r.Get("/snippets", s.handleListSnippets)
		r.Put("/snippets", s.handlePutSnippet)
		r.Get("/snippets/{id}", s.handleGetSnippet)
		r.Patch("/snippets/{id}", s.handlePatchSnippet)
		r.Delete("/snippets/{id}", s.handleDeleteSnippet)

		r.Get("/cycles/{kind}", s.handleListCycles)
		r.Put("/cycles/{kind}", s.handlePutCycle)
		r.Patch("/cycles/{kind}/{id}", s.handlePatchCycle)
		r.Delete("/cycles/{kind}/{id}", s.handleDeleteCycle)

		r.Get("/profile", s.handleGetProfile)
		r.Patch("/profile", s.handlePatchProfile)

		r.Get("/integrations", s.handleListIntegrations)
		r.Put("/integrations", s.handlePutIntegration)
	})
	return r
}

// HTTPServer returns a configured *http.Server for the router.
func (s *Server) HTTPServer(port int) *http.Server {
	return &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      s.deps.RequestTimeout + 5*time.Second,
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.deps.Health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.deps.Health(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
