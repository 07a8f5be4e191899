package repository

import (
	"context"
	"encoding/json"
	"time"

	"weekly-snippets/internal/domain/model"
)

// OperationRepository persists operations. State changes are conditional on
// the expected current status and report whether a row changed.
type OperationRepository interface {
	// Create inserts a queued operation. It returns false without error when
	// an active operation already holds the same (owner, type, period key).
	Create(ctx context.Context, op *model.Operation) (bool, error)
	FindByID(ctx context.Context, id string) (*model.Operation, error)
	FindByIDForOwner(ctx context.Context, ownerID, id string) (*model.Operation, error)
	// FindActiveForPeriod returns the queued, running or completed operation
	// for the period key, or domain.ErrNotFound.
	FindActiveForPeriod(ctx context.Context, ownerID, opType, periodKey string) (*model.Operation, error)
	// ListQueuedIDs returns the oldest queued ids first.
	ListQueuedIDs(ctx context.Context, limit int) ([]string, error)

	MarkRunning(ctx context.Context, id string, at time.Time) (bool, error)
	// UpdateProgress never lowers the stored progress and only touches running rows.
	UpdateProgress(ctx context.Context, id string, progress int, message string, at time.Time) (bool, error)
	MarkCompleted(ctx context.Context, id string, result json.RawMessage, at time.Time) (bool, error)
	MarkFailed(ctx context.Context, id, message string, at time.Time) (bool, error)
	// FailStale fails running operations whose last update is before cutoff.
	FailStale(ctx context.Context, cutoff time.Time, message string, at time.Time) (int, error)
}
