package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"weekly-snippets/internal/domain"
	"weekly-snippets/internal/domain/model"
	"weekly-snippets/internal/domain/period"
	"weekly-snippets/internal/domain/ports/repository"
	"weekly-snippets/internal/infra/logging"

	"github.com/rs/zerolog"
)

// TriggerRequest asks for a weekly snippet draft for the current period.
type TriggerRequest struct {
	Manual                  bool     `json:"manual"`
	IncludePreviousContext  bool     `json:"includePreviousContext"`
	IncludeIntegrationTypes []string `json:"includeIntegrationTypes" validate:"omitempty,max=16,dive,required,max=64"`
}

// OperationSummary is the polled projection of an operation.
type OperationSummary struct {
	ID              string          `json:"id"`
	Status          string          `json:"status"`
	Progress        int             `json:"progress"`
	ProgressMessage string          `json:"progressMessage,omitempty"`
	ResultData      json.RawMessage `json:"resultData,omitempty"`
	ErrorMessage    *string         `json:"errorMessage,omitempty"`
}

type OperationView struct {
	Operation OperationSummary `json:"operation"`
	// TimeRemaining is an estimate in seconds, present only while running.
	TimeRemaining *int64 `json:"timeRemaining,omitempty"`
}

type OperationUseCase struct {
	users    repository.UserRepository
	scopes   *ScopeFactory
	enqueuer Enqueuer
	now      func() time.Time
	log      *zerolog.Logger
}

func NewOperationUseCase(users repository.UserRepository, scopes *ScopeFactory, enqueuer Enqueuer, logger *zerolog.Logger) *OperationUseCase {
	return &OperationUseCase{users: users, scopes: scopes, enqueuer: enqueuer, now: time.Now, log: logger}
}

// WithClock overrides the time source used to pick the current period.
func (uc *OperationUseCase) WithClock(now func() time.Time) *OperationUseCase {
	cp := *uc
	cp.now = now
	return &cp
}

// Trigger queues snippet generation for the owner's current period and
// returns the operation id. Non-manual requests reuse an active operation
// for the same period instead of creating another.
func (uc *OperationUseCase) Trigger(ctx context.Context, ownerID string, req TriggerRequest) (string, error) {
	defer logging.TraceDuration(uc.log, "OperationUseCase.Trigger")()

	user, err := uc.users.FindByID(ctx, nil, ownerID)
	if err != nil {
		return "", err
	}
	year, week := period.Current(uc.now().In(user.Location()))
	input, err := NewSnippetInput(ownerID, year, week, req.IncludePreviousContext, dedupe(req.IncludeIntegrationTypes))
	if err != nil {
		return "", err
	}

	var (
		op      *model.Operation
		created bool
		key     = period.Key(year, week)
	)
	err = uc.scopes.With(ctx, ownerID, func(scope *ScopedRepository) error {
		var err error
		if req.Manual {
			op, err = scope.CreateManualOperation(ctx, model.OperationTypeWeeklySnippet, input, key)
			created = err == nil
			return err
		}
		op, created, err = scope.CreatePeriodOperation(ctx, model.OperationTypeWeeklySnippet, input, key)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("create operation: %w", err)
	}

	log := logging.With(logging.WithOperationID(ctx, op.ID), uc.log)
	if !created {
		log.Debug().Msg("reusing active operation for period")
		return op.ID, nil
	}
	if err := uc.enqueuer.Enqueue(ctx, op.ID); err != nil {
		log.Warn().Err(err).Msg("enqueue failed, operation left for the poller")
	}
	return op.ID, nil
}

// Status returns the owner's operation. Missing and foreign ids both yield
// domain.ErrAccessDenied.
func (uc *OperationUseCase) Status(ctx context.Context, ownerID, id string) (*OperationView, error) {
	var op *model.Operation
	err := uc.scopes.With(ctx, ownerID, func(scope *ScopedRepository) error {
		var err error
		op, err = scope.GetOperation(ctx, id)
		return err
	})
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrAccessDenied
		}
		return nil, err
	}
	return NewOperationView(op, uc.now()), nil
}

func NewOperationView(op *model.Operation, now time.Time) *OperationView {
	v := &OperationView{Operation: OperationSummary{
		ID:              op.ID,
		Status:          string(op.Status),
		Progress:        op.Progress,
		ProgressMessage: op.ProgressMessage,
		ErrorMessage:    op.ErrorMessage,
	}}
	if op.Status == model.OperationStatusCompleted {
		v.Operation.ResultData = op.Result
	}
	if d, ok := op.TimeRemaining(now); ok {
		secs := int64(math.Ceil(d.Seconds()))
		v.TimeRemaining = &secs
	}
	return v
}
