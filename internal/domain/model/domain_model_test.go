//go:build !integration

package model

import (
	"errors"
	"testing"
	"time"

	"weekly-snippets/internal/domain"
)

func TestNewOperation(t *testing.T) {
	t.Run("should create a queued operation with a sortable id", func(t *testing.T) {
		a, err := NewOperation("owner-1", OperationTypeWeeklySnippet, nil, nil)
		if err != nil {
			t.Fatalf("expected no error, but got: %v", err)
		}
		b, _ := NewOperation("owner-1", OperationTypeWeeklySnippet, nil, nil)
		if a.Status != OperationStatusQueued {
			t.Errorf("expected status queued, got %s", a.Status)
		}
		if a.Progress != 0 {
			t.Errorf("expected zero progress, got %d", a.Progress)
		}
		if string(a.Input) != "{}" {
			t.Errorf("expected empty object input, got %s", a.Input)
		}
		if len(a.ID) != 26 || a.ID > b.ID {
			t.Errorf("expected monotonic ULIDs, got %q then %q", a.ID, b.ID)
		}
	})

	t.Run("should reject a missing owner", func(t *testing.T) {
		_, err := NewOperation("", OperationTypeWeeklySnippet, nil, nil)
		if !errors.Is(err, domain.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
	})
}

func TestOperationStatusTransitions(t *testing.T) {
	cases := []struct {
		from, to OperationStatus
		ok       bool
	}{
		{OperationStatusQueued, OperationStatusRunning, true},
		{OperationStatusQueued, OperationStatusCompleted, false},
		{OperationStatusQueued, OperationStatusFailed, false},
		{OperationStatusRunning, OperationStatusCompleted, true},
		{OperationStatusRunning, OperationStatusFailed, true},
		{OperationStatusRunning, OperationStatusQueued, false},
		{OperationStatusCompleted, OperationStatusFailed, false},
		{OperationStatusFailed, OperationStatusRunning, false},
	}
	for _, c := range cases {
		if got := c.from.CanTransitionTo(c.to); got != c.ok {
			t.Errorf("%s -> %s: expected %v, got %v", c.from, c.to, c.ok, got)
		}
	}
	if !OperationStatusFailed.IsTerminal() || OperationStatusRunning.IsTerminal() {
		t.Error("unexpected IsTerminal result")
	}
	if OperationStatusFailed.IsActive() || !OperationStatusCompleted.IsActive() {
		t.Error("unexpected IsActive result")
	}
}

func TestClampProgress(t *testing.T) {
	for in, want := range map[int]int{-5: 0, 0: 0, 42: 42, 100: 100, 150: 100} {
		if got := ClampProgress(in); got != want {
			t.Errorf("ClampProgress(%d) = %d, want %d", in, got, want)
		}
	}
}

func TestOperationTimeRemaining(t *testing.T) {
	started := time.Date(2025, 7, 21, 10, 0, 0, 0, time.UTC)
	op := &Operation{Status: OperationStatusRunning, Progress: 25, StartedAt: &started}

	t.Run("should extrapolate from elapsed time", func(t *testing.T) {
		d, ok := op.TimeRemaining(started.Add(30 * time.Second))
		if !ok || d != 90*time.Second {
			t.Errorf("expected 90s, got %v (ok=%v)", d, ok)
		}
	})

	t.Run("should be undefined without progress", func(t *testing.T) {
		zero := *op
		zero.Progress = 0
		if _, ok := zero.TimeRemaining(started.Add(time.Minute)); ok {
			t.Error("expected no estimate")
		}
	})

	t.Run("should be undefined for terminal operations", func(t *testing.T) {
		done := *op
		done.Status = OperationStatusCompleted
		if _, ok := done.TimeRemaining(started.Add(time.Minute)); ok {
			t.Error("expected no estimate")
		}
	})
}

func TestNewUser(t *testing.T) {
	t.Run("should default the timezone to UTC", func(t *testing.T) {
		u, err := NewUser("", "dev@example.com", "")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if u.ID == "" || u.Timezone != "UTC" || u.Onboarded {
			t.Errorf("unexpected user: %+v", u)
		}
		if u.Location() != time.UTC {
			t.Errorf("expected UTC location")
		}
	})

	t.Run("should reject an unknown timezone", func(t *testing.T) {
		_, err := NewUser("", "dev@example.com", "Mars/Olympus")
		if !errors.Is(err, domain.ErrValidation) {
			t.Errorf("expected validation error, got %v", err)
		}
	})

	t.Run("should reject an invalid email", func(t *testing.T) {
		_, err := NewUser("", "nope", "UTC")
		if !errors.Is(err, domain.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
	})
}

func TestCycleKindValid(t *testing.T) {
	if !CycleKindAssessment.Valid() || !CycleKindCheckin.Valid() {
		t.Error("expected known kinds to be valid")
	}
	if CycleKind("retro").Valid() {
		t.Error("expected unknown kind to be invalid")
	}
}
