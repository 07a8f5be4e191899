package sched

import (
	"context"
	"errors"
	"testing"
	"time"

	"weekly-snippets/internal/infra/logging"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStaleFailer struct {
	FailStaleFunc func(ctx context.Context, cutoff time.Time, message string, at time.Time) (int, error)
}

func (f *fakeStaleFailer) FailStale(ctx context.Context, cutoff time.Time, message string, at time.Time) (int, error) {
	return f.FailStaleFunc(ctx, cutoff, message, at)
}

type fixedStats struct{ total, idle, inUse int32 }

func (f fixedStats) Stats() (int32, int32, int32) { return f.total, f.idle, f.inUse }

func TestReclaimWorker_RunOnce(t *testing.T) {
	now := time.Date(2025, 7, 25, 12, 0, 0, 0, time.UTC)

	t.Run("should fail operations idle longer than the stale window", func(t *testing.T) {
		var gotCutoff time.Time
		var gotMsg string
		ops := &fakeStaleFailer{FailStaleFunc: func(_ context.Context, cutoff time.Time, msg string, at time.Time) (int, error) {
			gotCutoff, gotMsg = cutoff, msg
			assert.Equal(t, now, at)
			return 2, nil
		}}
		w := NewReclaimWorker(time.Minute, 15*time.Minute, ops, logging.Nop())
		w.now = func() time.Time { return now }

		n, err := w.RunOnce(context.Background())

		require.NoError(t, err)
		assert.Equal(t, 2, n)
		assert.Equal(t, now.Add(-15*time.Minute), gotCutoff)
		assert.Equal(t, StaleMessage, gotMsg)
	})

	t.Run("should do nothing when disabled", func(t *testing.T) {
		ops := &fakeStaleFailer{FailStaleFunc: func(context.Context, time.Time, string, time.Time) (int, error) {
			t.Fatal("FailStale must not be called")
			return 0, nil
		}}
		n, err := NewReclaimWorker(time.Minute, 0, ops, logging.Nop()).RunOnce(context.Background())
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("should surface storage errors", func(t *testing.T) {
		ops := &fakeStaleFailer{FailStaleFunc: func(context.Context, time.Time, string, time.Time) (int, error) {
			return 0, errors.New("db down")
		}}
		_, err := NewReclaimWorker(time.Minute, time.Minute, ops, logging.Nop()).RunOnce(context.Background())
		assert.EqualError(t, err, "db down")
	})
}

func TestReclaimWorker_Run(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := make(chan struct{}, 8)
	ops := &fakeStaleFailer{FailStaleFunc: func(context.Context, time.Time, string, time.Time) (int, error) {
		calls <- struct{}{}
		return 0, nil
	}}
	w := NewReclaimWorker(5*time.Millisecond, time.Minute, ops, logging.Nop())
	done := make(chan error)
	go func() { done <- w.Run(ctx) }()

	<-calls
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestPoolStatsSampler(t *testing.T) {
	s := NewPoolStatsSampler("sqlite", fixedStats{total: 4, idle: 3, inUse: 1}, time.Second)
	assert.NotPanics(t, s.Sample)
}
