package scheduler

import (
	"context"
	"errors"
	"time"

	"weekly-snippets/internal/domain"
	"weekly-snippets/internal/infra/metrics"
	"weekly-snippets/internal/usecase"

	"github.com/rs/zerolog"
)

// Ticker is the unit of work run on every interval.
type Ticker interface {
	Tick(ctx context.Context, now time.Time) (usecase.TickReport, error)
}

// Scheduler periodically runs a Ticker. With a Locker set, only one replica
// in the cluster runs a given tick.
type Scheduler struct {
	interval time.Duration
	timeout  time.Duration
	ticker   Ticker
	locker   usecase.Locker
	lockKey  string
	now      func() time.Time
	log      *zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewScheduler constructs a scheduler that runs ticker.Tick every interval.
// If interval <= 0 it defaults to 1 minute.
func NewScheduler(interval time.Duration, ticker Ticker, logger *zerolog.Logger) *Scheduler {
	if interval <= 0 {
		interval = time.Minute
	}
	l := logger.With().Str("component", "scheduler").Logger()
	return &Scheduler{
		interval: interval,
		timeout:  30 * time.Second,
		ticker:   ticker,
		now:      time.Now,
		log:      &l,
		done:     make(chan struct{}),
	}
}

// WithLock guards every tick with a cluster-wide lock held for the tick timeout.
func (s *Scheduler) WithLock(locker usecase.Locker, key string) *Scheduler {
	s.locker = locker
	s.lockKey = key
	return s
}

// WithTimeout bounds a single tick.
func (s *Scheduler) WithTimeout(d time.Duration) *Scheduler {
	if d > 0 {
		s.timeout = d
	}
	return s
}

// Start begins the scheduler loop in a background goroutine.
// Calling Start multiple times has no effect.
func (s *Scheduler) Start(parentCtx context.Context) {
	if s.ctx != nil {
		return
	}
	ctx, cancel := context.WithCancel(parentCtx)
	s.ctx = ctx
	s.cancel = cancel

	go s.loop()
}

func (s *Scheduler) loop() {
	ticker := time.NewTicker(s.interval)
	defer func() {
		ticker.Stop()
		close(s.done)
	}()

	s.log.Info().Dur("interval", s.interval).Msg("scheduler started")
	for {
		select {
		case <-s.ctx.Done():
			s.log.Info().Msg("context cancelled; stopping")
			return
		case <-ticker.C:
			s.RunOnce(s.ctx)
		}
	}
}

// RunOnce runs a single bounded tick and reports its outcome:
// "ok", "error" or "locked".
func (s *Scheduler) RunOnce(ctx context.Context) string {
	runCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if s.locker != nil {
		token, err := s.locker.TryLock(runCtx, s.lockKey, s.timeout)
		if errors.Is(err, domain.ErrLockNotAcquired) {
			metrics.IncSchedulerTick("locked")
			s.log.Debug().Msg("tick held by another replica")
			return "locked"
		}
		if err != nil {
			metrics.IncSchedulerTick("error")
			s.log.Error().Err(err).Msg("failed to acquire tick lock")
			return "error"
		}
		defer func() {
			if err := s.locker.Unlock(context.WithoutCancel(ctx), s.lockKey, token); err != nil {
				s.log.Warn().Err(err).Msg("failed to release tick lock")
			}
		}()
	}

	report, err := s.ticker.Tick(runCtx, s.now())
	if err != nil {
		metrics.IncSchedulerTick("error")
		s.log.Error().Err(err).Msg("tick failed")
		return "error"
	}
	metrics.IncSchedulerTick("ok")
	if report.Enqueued > 0 || report.Failed > 0 {
		s.log.Info().Int("enqueued", report.Enqueued).Int("failed", report.Failed).Msg("tick finished")
	}
	return "ok"
}

// Stop cancels the scheduler and waits for the loop to finish. It is idempotent.
func (s *Scheduler) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	s.ctx = nil
	s.cancel = nil
	s.done = make(chan struct{})
	s.log.Info().Msg("scheduler stopped")
}
