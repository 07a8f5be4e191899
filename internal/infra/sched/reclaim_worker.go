package sched

import (
	"context"
	"time"

	"weekly-snippets/internal/infra/metrics"

	"github.com/rs/zerolog"
)

// StaleMessage is recorded on operations failed by the reclaim sweep.
const StaleMessage = "operation abandoned: no progress reported before the stale deadline"

type StaleFailer interface {
	FailStale(ctx context.Context, cutoff time.Time, message string, at time.Time) (int, error)
}

// ReclaimWorker fails running operations that stopped reporting progress,
// typically because the process running them died.
type ReclaimWorker struct {
	interval   time.Duration
	staleAfter time.Duration
	ops        StaleFailer
	now        func() time.Time
	log        *zerolog.Logger
}

func NewReclaimWorker(interval, staleAfter time.Duration, ops StaleFailer, logger *zerolog.Logger) *ReclaimWorker {
	if interval <= 0 {
		interval = time.Minute
	}
	l := logger.With().Str("component", "ReclaimWorker").Logger()
	return &ReclaimWorker{interval: interval, staleAfter: staleAfter, ops: ops, now: time.Now, log: &l}
}

func (w *ReclaimWorker) Run(ctx context.Context) error {
	w.log.Info().Dur("stale_after", w.staleAfter).Msg("Starting reclaim worker")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Stopping reclaim worker")
			return ctx.Err()
		case <-ticker.C:
			if _, err := w.RunOnce(ctx); err != nil {
				w.log.Error().Err(err).Msg("reclaim worker error")
			}
		}
	}
}

// RunOnce performs a single sweep and returns the number of operations failed.
func (w *ReclaimWorker) RunOnce(ctx context.Context) (int, error) {
	if w.staleAfter <= 0 {
		return 0, nil
	}
	now := w.now()
	n, err := w.ops.FailStale(ctx, now.Add(-w.staleAfter), StaleMessage, now)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		metrics.AddReclaimed(n)
		w.log.Warn().Int("count", n).Msg("stale operations failed")
	}
	return n, nil
}
