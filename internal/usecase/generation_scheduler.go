package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"weekly-snippets/internal/domain"
	"weekly-snippets/internal/domain/model"
	"weekly-snippets/internal/domain/period"
	"weekly-snippets/internal/domain/ports/repository"
	"weekly-snippets/internal/infra/logging"
	"weekly-snippets/internal/infra/metrics"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Enqueuer hands a queued operation id to whatever runs the dispatcher.
type Enqueuer interface {
	Enqueue(ctx context.Context, operationID string) error
}

// Locker is a best-effort distributed mutex.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (string, error)
	Unlock(ctx context.Context, key, token string) error
}

// TriggerPolicy decides whether scheduled generation is due for a user.
type TriggerPolicy interface {
	Due(user *model.User, now time.Time) bool
}

// WeeklyWindowPolicy is due on Weekday between StartHour (inclusive) and
// EndHour (exclusive) in the user's timezone.
type WeeklyWindowPolicy struct {
	Weekday   time.Weekday
	StartHour int
	EndHour   int
}

func (p WeeklyWindowPolicy) Due(user *model.User, now time.Time) bool {
	local := now.In(user.Location())
	if local.Weekday() != p.Weekday {
		return false
	}
	h := local.Hour()
	return h >= p.StartHour && h < p.EndHour
}

type SchedulerOptions struct {
	IntegrationTypes       []string
	Concurrency            int
	IncludePreviousContext bool
	LockTTL                time.Duration
}

// TickReport summarizes one scheduler pass.
type TickReport struct {
	Eligible int
	Enqueued int
	Skipped  int
	Failed   int
}

const (
	skipNotDue    = "not_due"
	skipSnippet   = "snippet_exists"
	skipOperation = "operation_exists"
	skipLocked    = "locked"
	skipNoSource  = "no_integration"
)

type GenerationScheduler struct {
	users    repository.UserRepository
	scopes   *ScopeFactory
	enqueuer Enqueuer
	policy   TriggerPolicy
	locker   Locker
	opts     SchedulerOptions
	log      *zerolog.Logger
}

func NewGenerationScheduler(
	users repository.UserRepository,
	scopes *ScopeFactory,
	enqueuer Enqueuer,
	policy TriggerPolicy,
	locker Locker,
	opts SchedulerOptions,
	logger *zerolog.Logger,
) *GenerationScheduler {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	if opts.LockTTL <= 0 {
		opts.LockTTL = time.Minute
	}
	l := logger.With().Str("component", "generation_scheduler").Logger()
	return &GenerationScheduler{
		users:    users,
		scopes:   scopes,
		enqueuer: enqueuer,
		policy:   policy,
		locker:   locker,
		opts:     opts,
		log:      &l,
	}
}

func periodLockKey(ownerID, periodKey string) string {
	return fmt.Sprintf("lock:generation:%s:%s", ownerID, periodKey)
}

// Tick enqueues generation for every eligible user that is due and has
// nothing for the current period yet. Per-user failures are logged and
// counted; only failing to list users aborts the tick.
func (s *GenerationScheduler) Tick(ctx context.Context, now time.Time) (TickReport, error) {
	defer logging.TraceDuration(s.log, "GenerationScheduler.Tick")()

	users, err := s.users.ListEligible(ctx, s.opts.IntegrationTypes)
	if err != nil {
		return TickReport{}, fmt.Errorf("list eligible users: %w", err)
	}

	var (
		mu     sync.Mutex
		report = TickReport{Eligible: len(users)}
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Concurrency)
	for _, u := range users {
		g.Go(func() error {
			skipped, err := s.processUser(gctx, u, now)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				report.Failed++
				metrics.IncSchedulerUserError()
				s.log.Error().Err(err).Str("owner_id", u.ID).Msg("scheduled generation failed")
			case skipped != "":
				report.Skipped++
				metrics.IncSchedulerSkipped(skipped)
			default:
				report.Enqueued++
				metrics.IncSchedulerEnqueued()
			}
			return nil
		})
	}
	_ = g.Wait()

	s.log.Info().
		Int("eligible", report.Eligible).
		Int("enqueued", report.Enqueued).
		Int("skipped", report.Skipped).
		Int("failed", report.Failed).
		Msg("scheduler tick finished")
	return report, nil
}

func (s *GenerationScheduler) processUser(ctx context.Context, u *model.User, now time.Time) (skipped string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	if !s.policy.Due(u, now) {
		return skipNotDue, nil
	}
	year, week := period.Current(now.In(u.Location()))
	key := period.Key(year, week)

	if s.locker != nil {
		lockKey := periodLockKey(u.ID, key)
		token, lerr := s.locker.TryLock(ctx, lockKey, s.opts.LockTTL)
		if errors.Is(lerr, domain.ErrLockNotAcquired) {
			return skipLocked, nil
		}
		if lerr != nil {
			return "", lerr
		}
		defer func() {
			if uerr := s.locker.Unlock(context.WithoutCancel(ctx), lockKey, token); uerr != nil {
				s.log.Warn().Err(uerr).Str("key", lockKey).Msg("failed to release lock")
			}
		}()
	}

	var op *model.Operation
	err = s.scopes.With(ctx, u.ID, func(scope *ScopedRepository) error {
		if _, ferr := scope.GetSnippetForPeriod(ctx, year, week); ferr == nil {
			skipped = skipSnippet
			return nil
		} else if !errors.Is(ferr, domain.ErrNotFound) {
			return ferr
		}
		if _, ferr := scope.FindPeriodOperation(ctx, model.OperationTypeWeeklySnippet, key); ferr == nil {
			skipped = skipOperation
			return nil
		} else if !errors.Is(ferr, domain.ErrNotFound) {
			return ferr
		}

		types, terr := s.activeTypes(ctx, scope)
		if terr != nil {
			return terr
		}
		if len(types) == 0 {
			skipped = skipNoSource
			return nil
		}
		input, ierr := NewSnippetInput(u.ID, year, week, s.opts.IncludePreviousContext, types)
		if ierr != nil {
			return ierr
		}
		created, ok, cerr := scope.CreatePeriodOperation(ctx, model.OperationTypeWeeklySnippet, input, key)
		if cerr != nil {
			return cerr
		}
		if !ok {
			skipped = skipOperation
			return nil
		}
		op = created
		return nil
	})
	if err != nil || skipped != "" {
		return skipped, err
	}

	if err := s.enqueuer.Enqueue(ctx, op.ID); err != nil {
		// The operation stays queued and is picked up by the poller.
		s.log.Warn().Err(err).Str("operation_id", op.ID).Msg("enqueue failed")
	}
	return "", nil
}

// activeTypes intersects the configured integration types with the user's
// active integrations. An empty configuration means every active one.
func (s *GenerationScheduler) activeTypes(ctx context.Context, scope *ScopedRepository) ([]string, error) {
	integrations, err := scope.ListIntegrations(ctx)
	if err != nil {
		return nil, err
	}
	allowed := make(map[string]bool, len(s.opts.IntegrationTypes))
	for _, t := range s.opts.IntegrationTypes {
		allowed[t] = true
	}
	var out []string
	for _, it := range integrations {
		if !it.IsActive {
			continue
		}
		if len(allowed) > 0 && !allowed[it.Type] {
			continue
		}
		out = append(out, it.Type)
	}
	return out, nil
}
