//go:build !integration

package usecase_test

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"weekly-snippets/internal/domain"
	"weekly-snippets/internal/domain/model"
	"weekly-snippets/internal/domain/ports/adapter"
	"weekly-snippets/internal/domain/ports/repository"
	"weekly-snippets/internal/infra/db/sqlite"
	"weekly-snippets/internal/infra/security"
	"weekly-snippets/internal/usecase"
)

// midWeek30 is Wednesday of ISO week 30, 2025.
var midWeek30 = time.Date(2025, time.July, 23, 12, 0, 0, 0, time.UTC)

// sundayEveningUTC ends ISO week 30 in UTC; it is already Monday of week 31 in
// Auckland and Tokyo.
var sundayEveningUTC = time.Date(2025, time.July, 27, 20, 0, 0, 0, time.UTC)

// mondayMorningUTC starts ISO week 31 in UTC; it is still Sunday of week 30 in
// Los Angeles.
var mondayMorningUTC = time.Date(2025, time.July, 28, 4, 0, 0, 0, time.UTC)

func fixedClock(t time.Time) func() time.Time { return func() time.Time { return t } }

func newTestLogger() *zerolog.Logger {
	logger := zerolog.New(io.Discard)
	return &logger
}

// testEnv wires the use cases over a throwaway SQLite store.
type testEnv struct {
	store  *sqlite.Store
	users  repository.UserRepository
	ops    repository.OperationRepository
	scopes *usecase.ScopeFactory
}

func newTestEnv(t *testing.T, now time.Time) *testEnv {
	t.Helper()
	store, err := sqlite.Open(t.TempDir(), 8)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	cipher, err := security.NewTokenCipher("0123456789abcdef0123456789abcdef")
	require.NoError(t, err)

	ops := sqlite.NewOperationRepo(store)
	users := sqlite.NewUserRepo(store)
	scopes := usecase.NewScopeFactory(sqlite.NewSessionOpener(store, cipher), ops, users, newTestLogger())
	if !now.IsZero() {
		scopes = scopes.WithClock(fixedClock(now))
	}
	return &testEnv{store: store, users: users, ops: ops, scopes: scopes}
}

func (e *testEnv) seedUser(t *testing.T, email, tz string, integrations ...string) *model.User {
	t.Helper()
	ctx := context.Background()
	u, err := model.NewUser("", email, tz)
	require.NoError(t, err)
	u.Onboarded = true
	require.NoError(t, e.users.Save(ctx, nil, u))
	for _, typ := range integrations {
		err := e.scopes.With(ctx, u.ID, func(s *usecase.ScopedRepository) error {
			_, err := s.UpsertIntegration(ctx, typ, "token-"+typ, true)
			return err
		})
		require.NoError(t, err)
	}
	return u
}

// ---- Mock AIServiceAdapter ----

type MockAI struct {
	mu       sync.Mutex
	Calls    [][]adapter.Message
	ChatFunc func(ctx context.Context, model string, messages []adapter.Message) (string, error)
}

var _ adapter.AIServiceAdapter = (*MockAI)(nil)

func (m *MockAI) CountTokens(_ context.Context, _ string, messages []adapter.Message) (int, error) {
	n := 0
	for _, msg := range messages {
		n += len(msg.Content) / 4
	}
	return n, nil
}

func (m *MockAI) Chat(ctx context.Context, model string, messages []adapter.Message) (string, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, messages)
	m.mu.Unlock()
	if m.ChatFunc != nil {
		return m.ChatFunc(ctx, model, messages)
	}
	return "## Done\n- shipped\n\n## Next\n- more\n\n## Notes\nNone", nil
}

func (m *MockAI) ChatWithUsage(ctx context.Context, model string, messages []adapter.Message) (string, adapter.Usage, error) {
	out, err := m.Chat(ctx, model, messages)
	return out, adapter.Usage{}, err
}

// ---- Mock IntegrationSource ----

type MockSource struct {
	mu        sync.Mutex
	Requested []string
	FetchFunc func(ctx context.Context, integrationType, accessToken string, from, to time.Time) ([]model.IntegrationItem, error)
}

var _ adapter.IntegrationSource = (*MockSource)(nil)

func (m *MockSource) Fetch(ctx context.Context, integrationType, accessToken string, from, to time.Time) ([]model.IntegrationItem, error) {
	m.mu.Lock()
	m.Requested = append(m.Requested, integrationType)
	m.mu.Unlock()
	if m.FetchFunc != nil {
		return m.FetchFunc(ctx, integrationType, accessToken, from, to)
	}
	return []model.IntegrationItem{{Source: integrationType, Title: "merged PR #42", OccurredAt: from.Add(time.Hour)}}, nil
}

// ---- Mock Enqueuer ----

type MockEnqueuer struct {
	mu          sync.Mutex
	IDs         []string
	EnqueueFunc func(ctx context.Context, id string) error
}

func (m *MockEnqueuer) Enqueue(ctx context.Context, id string) error {
	m.mu.Lock()
	m.IDs = append(m.IDs, id)
	m.mu.Unlock()
	if m.EnqueueFunc != nil {
		return m.EnqueueFunc(ctx, id)
	}
	return nil
}

func (m *MockEnqueuer) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.IDs)
}

// ---- Mock Locker ----

type MockLocker struct {
	mu   sync.Mutex
	held map[string]string
}

func NewMockLocker() *MockLocker { return &MockLocker{held: map[string]string{}} }

func (m *MockLocker) TryLock(_ context.Context, key string, _ time.Duration) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.held[key]; ok {
		return "", domain.ErrLockNotAcquired
	}
	m.held[key] = key + "-token"
	return m.held[key], nil
}

func (m *MockLocker) Unlock(_ context.Context, key, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.held[key] == token {
		delete(m.held, key)
	}
	return nil
}

// ---- Fake UserRepository ----

type fakeUserRepo struct {
	repository.UserRepository
	FindByIDFunc     func(ctx context.Context, tx repository.Tx, id string) (*model.User, error)
	ListEligibleFunc func(ctx context.Context, types []string) ([]*model.User, error)
}

func (f *fakeUserRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.User, error) {
	if f.FindByIDFunc != nil {
		return f.FindByIDFunc(ctx, tx, id)
	}
	return f.UserRepository.FindByID(ctx, tx, id)
}

func (f *fakeUserRepo) ListEligible(ctx context.Context, types []string) ([]*model.User, error) {
	if f.ListEligibleFunc != nil {
		return f.ListEligibleFunc(ctx, types)
	}
	return f.UserRepository.ListEligible(ctx, types)
}

// ---- Fake OperationRepository ----

type fakeOperationRepo struct {
	repository.OperationRepository
	UpdateProgressFunc func(ctx context.Context, id string, progress int, message string, at time.Time) (bool, error)
}

func (f *fakeOperationRepo) UpdateProgress(ctx context.Context, id string, progress int, message string, at time.Time) (bool, error) {
	if f.UpdateProgressFunc != nil {
		return f.UpdateProgressFunc(ctx, id, progress, message, at)
	}
	return f.OperationRepository.UpdateProgress(ctx, id, progress, message, at)
}
