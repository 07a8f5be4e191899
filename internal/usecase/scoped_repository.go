package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"weekly-snippets/internal/domain"
	"weekly-snippets/internal/domain/model"
	"weekly-snippets/internal/domain/period"
	"weekly-snippets/internal/domain/ports/repository"

	"github.com/rs/zerolog"
)

// ScopeFactory opens owner-bound repositories, one storage session each.
type ScopeFactory struct {
	sessions repository.SessionOpener
	ops      repository.OperationRepository
	users    repository.UserRepository
	log      *zerolog.Logger
	now      func() time.Time
}

// NewScopeFactory builds scopes over sessions. users resolves each owner's
// timezone for period checks; nil means every owner is treated as UTC.
func NewScopeFactory(sessions repository.SessionOpener, ops repository.OperationRepository, users repository.UserRepository, logger *zerolog.Logger) *ScopeFactory {
	return &ScopeFactory{sessions: sessions, ops: ops, users: users, log: logger, now: time.Now}
}

// WithClock overrides the time source used for future-period checks.
func (f *ScopeFactory) WithClock(now func() time.Time) *ScopeFactory {
	cp := *f
	cp.now = now
	return &cp
}

// Open acquires a session for ownerID. The caller must Close the result;
// prefer With, which does it on every exit path.
func (f *ScopeFactory) Open(ctx context.Context, ownerID string) (*ScopedRepository, error) {
	if ownerID == "" {
		return nil, domain.ErrInvalidArgument
	}
	sess, err := f.sessions.Open(ctx)
	if err != nil {
		return nil, err
	}
	return &ScopedRepository{
		ownerID: ownerID,
		sess:    sess,
		ops:     f.ops,
		users:   f.users,
		now:     f.now,
		log:     f.log,
	}, nil
}

// With runs fn against a scope for ownerID and closes it afterwards, also
// when fn panics.
func (f *ScopeFactory) With(ctx context.Context, ownerID string, fn func(*ScopedRepository) error) (err error) {
	scope, err := f.Open(ctx, ownerID)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := scope.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return fn(scope)
}

// ScopedRepository is the data access facade for a single owner. No method
// accepts an owner id. It is not safe for concurrent use.
type ScopedRepository struct {
	ownerID string
	sess    repository.Session
	ops     repository.OperationRepository
	users   repository.UserRepository
	now     func() time.Time
	log     *zerolog.Logger

	mu     sync.Mutex
	closed bool
	loc    *time.Location
}

func (s *ScopedRepository) OwnerID() string { return s.ownerID }

// Close releases the session. Calling it more than once is a no-op.
func (s *ScopedRepository) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.sess.Close()
}

func (s *ScopedRepository) live() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return domain.ErrScopeClosed
	}
	return nil
}

// denied folds missing and foreign rows into one error.
func denied(err error) error {
	if errors.Is(err, domain.ErrNotFound) {
		return domain.ErrAccessDenied
	}
	return err
}

// location is the owner's timezone, looked up once per scope. Owners without
// a user row count as UTC.
func (s *ScopedRepository) location(ctx context.Context) (*time.Location, error) {
	if s.loc != nil {
		return s.loc, nil
	}
	if s.users == nil {
		s.loc = time.UTC
		return s.loc, nil
	}
	u, err := s.users.FindByID(ctx, nil, s.ownerID)
	switch {
	case err == nil:
		s.loc = u.Location()
	case errors.Is(err, domain.ErrNotFound):
		s.loc = time.UTC
	default:
		return nil, err
	}
	return s.loc, nil
}

// validatePeriod judges "future" on the owner's local calendar, the same
// frame the trigger and scheduler use to pick the current period.
func (s *ScopedRepository) validatePeriod(ctx context.Context, year, week int, start, end time.Time) error {
	if !period.IsValidNumber(week) || week > period.WeeksInYear(year) {
		return domain.ErrInvalidPeriod
	}
	loc, err := s.location(ctx)
	if err != nil {
		return err
	}
	if period.IsFuture(week, year, s.now().In(loc)) {
		return domain.ErrFuturePeriod
	}
	if !period.IsCanonicalSpan(year, week, start, end) {
		return domain.ErrNonCanonicalPeriod
	}
	return nil
}

// CreateOrUpdateSnippet stores content for (year, week) in one atomic upsert.
// A second call for the same period updates in place and keeps the id.
func (s *ScopedRepository) CreateOrUpdateSnippet(ctx context.Context, year, week int, start, end time.Time, content string) (*model.WeeklySnippet, error) {
	if err := s.live(); err != nil {
		return nil, err
	}
	if err := s.validatePeriod(ctx, year, week, start, end); err != nil {
		return nil, err
	}
	if strings.TrimSpace(content) == "" {
		return nil, domain.ErrEmptyContent
	}
	return s.sess.UpsertSnippet(ctx, s.ownerID, &model.WeeklySnippet{
		Year:      year,
		Week:      week,
		StartDate: period.Start(year, week),
		EndDate:   period.End(year, week),
		Content:   content,
	})
}

func (s *ScopedRepository) ListSnippets(ctx context.Context, limit int) ([]*model.WeeklySnippet, error) {
	if err := s.live(); err != nil {
		return nil, err
	}
	return s.sess.ListSnippets(ctx, s.ownerID, limit)
}

func (s *ScopedRepository) GetSnippet(ctx context.Context, id string) (*model.WeeklySnippet, error) {
	if err := s.live(); err != nil {
		return nil, err
	}
	return s.sess.FindSnippet(ctx, s.ownerID, id)
}

func (s *ScopedRepository) GetSnippetForPeriod(ctx context.Context, year, week int) (*model.WeeklySnippet, error) {
	if err := s.live(); err != nil {
		return nil, err
	}
	return s.sess.FindSnippetByPeriod(ctx, s.ownerID, year, week)
}

func (s *ScopedRepository) UpdateSnippet(ctx context.Context, id, content string) (*model.WeeklySnippet, error) {
	if err := s.live(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(content) == "" {
		return nil, domain.ErrEmptyContent
	}
	sn, err := s.sess.UpdateSnippetContent(ctx, s.ownerID, id, content, s.now())
	if err != nil {
		return nil, denied(err)
	}
	return sn, nil
}

func (s *ScopedRepository) DeleteSnippet(ctx context.Context, id string) error {
	if err := s.live(); err != nil {
		return err
	}
	return denied(s.sess.DeleteSnippet(ctx, s.ownerID, id))
}

// UpsertCycleArtifact creates the artifact for cycleName or replaces its content.
func (s *ScopedRepository) UpsertCycleArtifact(ctx context.Context, kind model.CycleKind, cycleName, content string) (*model.CycleArtifact, error) {
	if err := s.live(); err != nil {
		return nil, err
	}
	if !kind.Valid() {
		return nil, domain.ErrUnknownCycleKind
	}
	if strings.TrimSpace(cycleName) == "" {
		return nil, domain.ErrEmptyCycleName
	}
	if strings.TrimSpace(content) == "" {
		return nil, domain.ErrEmptyContent
	}
	return s.sess.UpsertCycleArtifact(ctx, s.ownerID, &model.CycleArtifact{
		Kind:      kind,
		CycleName: strings.TrimSpace(cycleName),
		Content:   content,
	})
}

func (s *ScopedRepository) ListCycleArtifacts(ctx context.Context, kind model.CycleKind) ([]*model.CycleArtifact, error) {
	if err := s.live(); err != nil {
		return nil, err
	}
	if !kind.Valid() {
		return nil, domain.ErrUnknownCycleKind
	}
	return s.sess.ListCycleArtifacts(ctx, s.ownerID, kind)
}

func (s *ScopedRepository) UpdateCycleArtifact(ctx context.Context, kind model.CycleKind, id, content string) (*model.CycleArtifact, error) {
	if err := s.live(); err != nil {
		return nil, err
	}
	if !kind.Valid() {
		return nil, domain.ErrUnknownCycleKind
	}
	if strings.TrimSpace(content) == "" {
		return nil, domain.ErrEmptyContent
	}
	a, err := s.sess.UpdateCycleArtifactContent(ctx, s.ownerID, kind, id, content, s.now())
	if err != nil {
		return nil, denied(err)
	}
	return a, nil
}

func (s *ScopedRepository) DeleteCycleArtifact(ctx context.Context, kind model.CycleKind, id string) error {
	if err := s.live(); err != nil {
		return err
	}
	if !kind.Valid() {
		return domain.ErrUnknownCycleKind
	}
	return denied(s.sess.DeleteCycleArtifact(ctx, s.ownerID, kind, id))
}

// GetProfile returns an empty profile when the owner has none yet.
func (s *ScopedRepository) GetProfile(ctx context.Context) (*model.Profile, error) {
	if err := s.live(); err != nil {
		return nil, err
	}
	p, err := s.sess.GetProfile(ctx, s.ownerID)
	if errors.Is(err, domain.ErrNotFound) {
		return &model.Profile{}, nil
	}
	return p, err
}

func (s *ScopedRepository) UpdateProfile(ctx context.Context, patch model.ProfilePatch) (*model.Profile, error) {
	if err := s.live(); err != nil {
		return nil, err
	}
	if patch.IsEmpty() {
		return s.GetProfile(ctx)
	}
	return s.sess.MergeProfile(ctx, s.ownerID, patch, s.now())
}

func (s *ScopedRepository) ListIntegrations(ctx context.Context) ([]*model.Integration, error) {
	if err := s.live(); err != nil {
		return nil, err
	}
	return s.sess.ListIntegrations(ctx, s.ownerID)
}

func (s *ScopedRepository) UpsertIntegration(ctx context.Context, integrationType, accessToken string, active bool) (*model.Integration, error) {
	if err := s.live(); err != nil {
		return nil, err
	}
	integrationType = strings.TrimSpace(integrationType)
	if integrationType == "" {
		return nil, domain.ErrInvalidArgument
	}
	return s.sess.UpsertIntegration(ctx, s.ownerID, &model.Integration{
		Type:        integrationType,
		AccessToken: accessToken,
		IsActive:    active,
	})
}

func (s *ScopedRepository) MarkIntegrationSynced(ctx context.Context, integrationType string, at time.Time) error {
	if err := s.live(); err != nil {
		return err
	}
	return denied(s.sess.MarkIntegrationSynced(ctx, s.ownerID, integrationType, at))
}

// CreateOperation queues an operation owned by this scope's owner.
func (s *ScopedRepository) CreateOperation(ctx context.Context, opType string, input json.RawMessage) (*model.Operation, error) {
	if err := s.live(); err != nil {
		return nil, err
	}
	op, err := model.NewOperation(s.ownerID, opType, input, nil)
	if err != nil {
		return nil, err
	}
	if _, err := s.ops.Create(ctx, op); err != nil {
		return nil, err
	}
	return op, nil
}

func (s *ScopedRepository) GetOperation(ctx context.Context, id string) (*model.Operation, error) {
	if err := s.live(); err != nil {
		return nil, err
	}
	op, err := s.ops.FindByIDForOwner(ctx, s.ownerID, id)
	if err != nil {
		return nil, denied(err)
	}
	return op, nil
}

// CreateManualOperation queues an explicitly requested operation for
// periodKey. It always creates a new row, and later FindPeriodOperation calls
// see it while it is active.
func (s *ScopedRepository) CreateManualOperation(ctx context.Context, opType string, input json.RawMessage, periodKey string) (*model.Operation, error) {
	if err := s.live(); err != nil {
		return nil, err
	}
	op, err := model.NewManualOperation(s.ownerID, opType, input, periodKey)
	if err != nil {
		return nil, err
	}
	if _, err := s.ops.Create(ctx, op); err != nil {
		return nil, err
	}
	return op, nil
}

// CreatePeriodOperation queues an operation keyed to periodKey. When an active
// operation, manual or not, already holds the key, that one is returned with
// created=false.
func (s *ScopedRepository) CreatePeriodOperation(ctx context.Context, opType string, input json.RawMessage, periodKey string) (*model.Operation, bool, error) {
	if err := s.live(); err != nil {
		return nil, false, err
	}
	existing, err := s.ops.FindActiveForPeriod(ctx, s.ownerID, opType, periodKey)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, false, err
	}
	op, err := model.NewOperation(s.ownerID, opType, input, &periodKey)
	if err != nil {
		return nil, false, err
	}
	created, err := s.ops.Create(ctx, op)
	if err != nil {
		return nil, false, err
	}
	if created {
		return op, true, nil
	}
	existing, err = s.ops.FindActiveForPeriod(ctx, s.ownerID, opType, periodKey)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

// FindPeriodOperation returns the newest queued, running or completed
// operation for periodKey, manual ones included, or domain.ErrNotFound.
func (s *ScopedRepository) FindPeriodOperation(ctx context.Context, opType, periodKey string) (*model.Operation, error) {
	if err := s.live(); err != nil {
		return nil, err
	}
	return s.ops.FindActiveForPeriod(ctx, s.ownerID, opType, periodKey)
}
