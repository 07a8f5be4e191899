package model

import (
	"encoding/json"
	"time"

	"weekly-snippets/internal/domain"

	"github.com/oklog/ulid/v2"
)

type OperationStatus string

const (
	OperationStatusQueued    OperationStatus = "queued"
	OperationStatusRunning   OperationStatus = "running"
	OperationStatusCompleted OperationStatus = "completed"
	OperationStatusFailed    OperationStatus = "failed"
)

// OperationTypeWeeklySnippet generates a weekly snippet draft for one period.
const OperationTypeWeeklySnippet = "weekly_snippet_generation"

func (s OperationStatus) IsTerminal() bool {
	return s == OperationStatusCompleted || s == OperationStatusFailed
}

// IsActive reports whether an operation with this status blocks a new one for
// the same period.
func (s OperationStatus) IsActive() bool {
	return s == OperationStatusQueued || s == OperationStatusRunning || s == OperationStatusCompleted
}

// CanTransitionTo allows queued->running and running->{completed,failed} only.
func (s OperationStatus) CanTransitionTo(next OperationStatus) bool {
	switch s {
	case OperationStatusQueued:
		return next == OperationStatusRunning
	case OperationStatusRunning:
		return next == OperationStatusCompleted || next == OperationStatusFailed
	default:
		return false
	}
}

// Operation is a persisted unit of asynchronous work owned by one user.
type Operation struct {
	ID              string
	OwnerID         string
	Type            string
	Status          OperationStatus
	Progress        int
	ProgressMessage string
	PeriodKey       *string
	// Manual operations keep their PeriodKey for lookups but never claim the
	// period: any number may exist alongside one scheduled operation.
	Manual          bool
	Input           json.RawMessage
	Result          json.RawMessage
	ErrorMessage    *string
	CreatedAt       time.Time
	UpdatedAt       time.Time
	StartedAt       *time.Time
	CompletedAt     *time.Time
}

// NewOperation returns a queued operation with a fresh ULID.
func NewOperation(ownerID, opType string, input json.RawMessage, periodKey *string) (*Operation, error) {
	if ownerID == "" || opType == "" {
		return nil, domain.ErrInvalidArgument
	}
	if len(input) == 0 {
		input = json.RawMessage(`{}`)
	}
	now := time.Now().UTC()
	return &Operation{
		ID:        ulid.Make().String(),
		OwnerID:   ownerID,
		Type:      opType,
		Status:    OperationStatusQueued,
		PeriodKey: periodKey,
		Input:     input,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// ClampProgress bounds a reported percentage to [0,100].
func ClampProgress(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}

// NewManualOperation is NewOperation for an explicit user request against
// periodKey.
func NewManualOperation(ownerID, opType string, input json.RawMessage, periodKey string) (*Operation, error) {
	op, err := NewOperation(ownerID, opType, input, &periodKey)
	if err != nil {
		return nil, err
	}
	op.Manual = true
	return op, nil
}

// TimeRemaining extrapolates linearly from elapsed running time. It is only
// defined for running operations that reported some progress.
func (o *Operation) TimeRemaining(now time.Time) (time.Duration, bool) {
	if o.Status != OperationStatusRunning || o.StartedAt == nil || o.Progress <= 0 || o.Progress >= 100 {
		return 0, false
	}
	elapsed := now.Sub(*o.StartedAt)
	if elapsed < 0 {
		return 0, false
	}
	return elapsed * time.Duration(100-o.Progress) / time.Duration(o.Progress), true
}
