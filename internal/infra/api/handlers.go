package api

import (
	"net/http"
	"strconv"
	"time"

	"weekly-snippets/internal/domain"
	"weekly-snippets/internal/domain/model"
	"weekly-snippets/internal/domain/period"
	"weekly-snippets/internal/infra/logging"
	"weekly-snippets/internal/infra/metrics"
	"weekly-snippets/internal/usecase"

	"github.com/go-chi/chi/v5"
)

const (
	defaultSnippetLimit = 20
	maxSnippetLimit     = 200
)

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	owner := ownerFrom(ctx)

	var req usecase.TriggerRequest
	if err := decodeOptional(w, r, &req); err != nil {
		writeError(w, r, s.log, err)
		return
	}

	if s.deps.Limiter != nil && s.deps.TriggerLimit > 0 {
		ok, err := s.deps.Limiter.Allow(ctx, s.deps.TriggerKey(owner), s.deps.TriggerLimit, s.deps.TriggerEvery)
		switch {
		case err != nil:
			// limiter outage must not block generation
			l := logging.With(ctx, s.log)
			l.Warn().Err(err).Msg("rate limiter unavailable")
		case !ok:
			metrics.IncRateLimited("generate")
			writeError(w, r, s.log, domain.ErrRateLimited)
			return
		}
	}

	id, err := s.deps.Operations.Trigger(ctx, owner, req)
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusAccepted, generateResponse{OperationID: id})
}

func (s *Server) handleOperationStatus(w http.ResponseWriter, r *http.Request) {
	view, err := s.deps.Operations.Status(r.Context(), ownerFrom(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// ---- snippets ----

func (s *Server) handleListSnippets(w http.ResponseWriter, r *http.Request) {
	limit := defaultSnippetLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, r, s.log, &domain.ValidationError{Field: "limit", Msg: "limit must be a positive integer"})
			return
		}
		limit = min(n, maxSnippetLimit)
	}

	var out []*model.WeeklySnippet
	err := s.deps.Scopes.With(r.Context(), ownerFrom(r.Context()), func(scope *usecase.ScopedRepository) error {
		var err error
		out, err = scope.ListSnippets(r.Context(), limit)
		return err
	})
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, mapList(out, toSnippet))
}

func (s *Server) handlePutSnippet(w http.ResponseWriter, r *http.Request) {
	var req putSnippetRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, s.log, err)
		return
	}
	if !period.IsValidFloat(req.Week) {
		writeError(w, r, s.log, domain.ErrInvalidPeriod)
		return
	}
	// layout already checked by the datetime validator
	start, _ := time.Parse(dateLayout, req.StartDate)
	end, _ := time.Parse(dateLayout, req.EndDate)

	var sn *model.WeeklySnippet
	err := s.deps.Scopes.With(r.Context(), ownerFrom(r.Context()), func(scope *usecase.ScopedRepository) error {
		var err error
		sn, err = scope.CreateOrUpdateSnippet(r.Context(), req.Year, int(req.Week), start, end, req.Content)
		return err
	})
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, toSnippet(sn))
}

func (s *Server) handleGetSnippet(w http.ResponseWriter, r *http.Request) {
	var sn *model.WeeklySnippet
	err := s.deps.Scopes.With(r.Context(), ownerFrom(r.Context()), func(scope *usecase.ScopedRepository) error {
		var err error
		sn, err = scope.GetSnippet(r.Context(), chi.URLParam(r, "id"))
		return err
	})
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, toSnippet(sn))
}

func (s *Server) handlePatchSnippet(w http.ResponseWriter, r *http.Request) {
	var req contentRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, s.log, err)
		return
	}
	var sn *model.WeeklySnippet
	err := s.deps.Scopes.With(r.Context(), ownerFrom(r.Context()), func(scope *usecase.ScopedRepository) error {
		var err error
		sn, err = scope.UpdateSnippet(r.Context(), chi.URLParam(r, "id"), req.Content)
		return err
	})
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, toSnippet(sn))
}

func (s *Server) handleDeleteSnippet(w http.ResponseWriter, r *http.Request) {
	err := s.deps.Scopes.With(r.Context(), ownerFrom(r.Context()), func(scope *usecase.ScopedRepository) error {
		return scope.DeleteSnippet(r.Context(), chi.URLParam(r, "id"))
	})
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ---- cycles ----

func cycleKind(r *http.Request) model.CycleKind {
	return model.CycleKind(chi.URLParam(r, "kind"))
}

func (s *Server) handleListCycles(w http.ResponseWriter, r *http.Request) {
	var out []*model.CycleArtifact
	err := s.deps.Scopes.With(r.Context(), ownerFrom(r.Context()), func(scope *usecase.ScopedRepository) error {
		var err error
		out, err = scope.ListCycleArtifacts(r.Context(), cycleKind(r))
		return err
	})
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, mapList(out, toCycle))
}

func (s *Server) handlePutCycle(w http.ResponseWriter, r *http.Request) {
	var req putCycleRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, s.log, err)
		return
	}
	var a *model.CycleArtifact
	err := s.deps.Scopes.With(r.Context(), ownerFrom(r.Context()), func(scope *usecase.ScopedRepository) error {
		var err error
		a, err = scope.UpsertCycleArtifact(r.Context(), cycleKind(r), req.CycleName, req.Content)
		return err
	})
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, toCycle(a))
}

func (s *Server) handlePatchCycle(w http.ResponseWriter, r *http.Request) {
	var req contentRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, s.log, err)
		return
	}
	var a *model.CycleArtifact
	err := s.deps.Scopes.With(r.Context(), ownerFrom(r.Context()), func(scope *usecase.ScopedRepository) error {
		var err error
		a, err = scope.UpdateCycleArtifact(r.Context(), cycleKind(r), chi.URLParam(r, "id"), req.Content)
		return err
	})
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, toCycle(a))
}

func (s *Server) handleDeleteCycle(w http.ResponseWriter, r *http.Request) {
	err := s.deps.Scopes.With(r.Context(), ownerFrom(r.Context()), func(scope *usecase.ScopedRepository) error {
		return scope.DeleteCycleArtifact(r.Context(), cycleKind(r), chi.URLParam(r, "id"))
	})
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ---- profile ----

func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	var p *model.Profile
	err := s.deps.Scopes.With(r.Context(), ownerFrom(r.Context()), func(scope *usecase.ScopedRepository) error {
		var err error
		p, err = scope.GetProfile(r.Context())
		return err
	})
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, toProfile(p))
}

func (s *Server) handlePatchProfile(w http.ResponseWriter, r *http.Request) {
	var req profilePatchRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, s.log, err)
		return
	}
	var p *model.Profile
	err := s.deps.Scopes.With(r.Context(), ownerFrom(r.Context()), func(scope *usecase.ScopedRepository) error {
		var err error
		p, err = scope.UpdateProfile(r.Context(), req.patch())
		return err
	})
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, toProfile(p))
}

// ---- integrations ----

func (s *Server) handleListIntegrations(w http.ResponseWriter, r *http.Request) {
	var out []*model.Integration
	err := s.deps.Scopes.With(r.Context(), ownerFrom(r.Context()), func(scope *usecase.ScopedRepository) error {
		var err error
		out, err = scope.ListIntegrations(r.Context())
		return err
	})
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, mapList(out, toIntegration))
}

func (s *Server) handlePutIntegration(w http.ResponseWriter, r *http.Request) {
	var req putIntegrationRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, s.log, err)
		return
	}
	active := true
	if req.Active != nil {
		active = *req.Active
	}
	var in *model.Integration
	err := s.deps.Scopes.With(r.Context(), ownerFrom(r.Context()), func(scope *usecase.ScopedRepository) error {
		var err error
		in, err = scope.UpsertIntegration(r.Context(), req.Type, req.AccessToken, active)
		return err
	})
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, toIntegration(in))
}
