//go:build !integration

package usecase_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"weekly-snippets/internal/domain"
	"weekly-snippets/internal/domain/model"
	"weekly-snippets/internal/domain/period"
	"weekly-snippets/internal/usecase"
)

func TestScopedRepository_Snippets(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, midWeek30)
	a := env.seedUser(t, "a@example.com", "UTC")
	b := env.seedUser(t, "b@example.com", "UTC")

	create := func(owner string, year, week int, content string) (*model.WeeklySnippet, error) {
		var out *model.WeeklySnippet
		err := env.scopes.With(ctx, owner, func(s *usecase.ScopedRepository) error {
			var err error
			out, err = s.CreateOrUpdateSnippet(ctx, year, week, period.Start(year, week), period.End(year, week), content)
			return err
		})
		return out, err
	}

	t.Run("should store an artifact for the current period", func(t *testing.T) {
		got, err := create(a.ID, 2025, 30, "X")
		require.NoError(t, err)
		assert.Equal(t, 2025, got.Year)
		assert.Equal(t, 30, got.Week)
		assert.Equal(t, "X", got.Content)
		assert.Equal(t, period.Start(2025, 30), got.StartDate.UTC())
	})

	t.Run("should reject a future period for every owner", func(t *testing.T) {
		for _, owner := range []string{a.ID, b.ID} {
			_, err := create(owner, 2025, 31, "later")
			require.Error(t, err)
			assert.True(t, errors.Is(err, domain.ErrValidation))
			assert.Equal(t, "future period", err.Error())
		}
	})

	t.Run("should reject malformed periods", func(t *testing.T) {
		_, err := create(a.ID, 2025, 0, "x")
		assert.ErrorIs(t, err, domain.ErrInvalidPeriod)
		_, err = create(a.ID, 2024, 53, "x")
		assert.ErrorIs(t, err, domain.ErrInvalidPeriod, "2024 has 52 ISO weeks")

		err = env.scopes.With(ctx, a.ID, func(s *usecase.ScopedRepository) error {
			_, err := s.CreateOrUpdateSnippet(ctx, 2025, 29, period.Start(2025, 29), period.Start(2025, 29), "x")
			return err
		})
		assert.ErrorIs(t, err, domain.ErrNonCanonicalPeriod)
	})

	t.Run("should update in place and preserve the id", func(t *testing.T) {
		first, err := create(a.ID, 2025, 28, "draft")
		require.NoError(t, err)
		second, err := create(a.ID, 2025, 28, "final")
		require.NoError(t, err)
		assert.Equal(t, first.ID, second.ID)
		assert.Equal(t, "final", second.Content)

		err = env.scopes.With(ctx, a.ID, func(s *usecase.ScopedRepository) error {
			list, err := s.ListSnippets(ctx, 0)
			require.NoError(t, err)
			n := 0
			for _, sn := range list {
				if sn.Week == 28 {
					n++
				}
			}
			assert.Equal(t, 1, n)
			return nil
		})
		require.NoError(t, err)
	})

	t.Run("should serialize concurrent upserts into one row", func(t *testing.T) {
		var wg sync.WaitGroup
		for i := 0; i < 6; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := create(b.ID, 2025, 27, "race")
				assert.NoError(t, err)
			}()
		}
		wg.Wait()
		err := env.scopes.With(ctx, b.ID, func(s *usecase.ScopedRepository) error {
			list, err := s.ListSnippets(ctx, 0)
			require.NoError(t, err)
			assert.Len(t, list, 1)
			return nil
		})
		require.NoError(t, err)
	})

	t.Run("should keep owners isolated", func(t *testing.T) {
		_, err := create(b.ID, 2025, 30, "B's week")
		require.NoError(t, err)

		err = env.scopes.With(ctx, a.ID, func(s *usecase.ScopedRepository) error {
			list, err := s.ListSnippets(ctx, 0)
			require.NoError(t, err)
			for _, sn := range list {
				assert.NotEqual(t, "B's week", sn.Content)
				assert.NotEqual(t, "race", sn.Content)
			}
			return nil
		})
		require.NoError(t, err)
	})

	t.Run("should deny foreign and missing ids identically", func(t *testing.T) {
		theirs, err := create(b.ID, 2025, 26, "B original")
		require.NoError(t, err)

		err = env.scopes.With(ctx, a.ID, func(s *usecase.ScopedRepository) error {
			_, errForeign := s.UpdateSnippet(ctx, theirs.ID, "hijack")
			_, errMissing := s.UpdateSnippet(ctx, "does-not-exist", "hijack")
			assert.ErrorIs(t, errForeign, domain.ErrAccessDenied)
			assert.ErrorIs(t, errMissing, domain.ErrAccessDenied)
			assert.Equal(t, errForeign.Error(), errMissing.Error())

			assert.ErrorIs(t, s.DeleteSnippet(ctx, theirs.ID), domain.ErrAccessDenied)
			assert.ErrorIs(t, s.DeleteSnippet(ctx, "does-not-exist"), domain.ErrAccessDenied)
			return nil
		})
		require.NoError(t, err)

		err = env.scopes.With(ctx, b.ID, func(s *usecase.ScopedRepository) error {
			got, err := s.GetSnippet(ctx, theirs.ID)
			require.NoError(t, err)
			assert.Equal(t, "B original", got.Content)

			updated, err := s.UpdateSnippet(ctx, theirs.ID, "B edited")
			require.NoError(t, err)
			assert.Equal(t, "B edited", updated.Content)
			return s.DeleteSnippet(ctx, theirs.ID)
		})
		require.NoError(t, err)
	})
}

func TestScopedRepository_CyclesProfileIntegrations(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, midWeek30)
	a := env.seedUser(t, "a@example.com", "UTC")
	b := env.seedUser(t, "b@example.com", "UTC")

	t.Run("should upsert cycle artifacts by name", func(t *testing.T) {
		var first, second *model.CycleArtifact
		err := env.scopes.With(ctx, a.ID, func(s *usecase.ScopedRepository) error {
			var err error
			first, err = s.UpsertCycleArtifact(ctx, model.CycleKindAssessment, "H1 2025", "v1")
			require.NoError(t, err)
			second, err = s.UpsertCycleArtifact(ctx, model.CycleKindAssessment, "H1 2025", "v2")
			require.NoError(t, err)
			list, err := s.ListCycleArtifacts(ctx, model.CycleKindAssessment)
			require.NoError(t, err)
			assert.Len(t, list, 1)
			checkins, err := s.ListCycleArtifacts(ctx, model.CycleKindCheckin)
			require.NoError(t, err)
			assert.Empty(t, checkins)

			_, err = s.ListCycleArtifacts(ctx, model.CycleKind("bogus"))
			assert.ErrorIs(t, err, domain.ErrUnknownCycleKind)
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, first.ID, second.ID)
		assert.Equal(t, "v2", second.Content)

		err = env.scopes.With(ctx, b.ID, func(s *usecase.ScopedRepository) error {
			_, err := s.UpdateCycleArtifact(ctx, model.CycleKindAssessment, first.ID, "hijack")
			assert.ErrorIs(t, err, domain.ErrAccessDenied)
			assert.ErrorIs(t, s.DeleteCycleArtifact(ctx, model.CycleKindAssessment, first.ID), domain.ErrAccessDenied)
			return nil
		})
		require.NoError(t, err)
	})

	t.Run("should merge profile patches onto the owner's row", func(t *testing.T) {
		name, team, level := "Ada", "Platform", "Senior"
		err := env.scopes.With(ctx, a.ID, func(s *usecase.ScopedRepository) error {
			empty, err := s.GetProfile(ctx)
			require.NoError(t, err)
			assert.Empty(t, empty.Name)

			_, err = s.UpdateProfile(ctx, model.ProfilePatch{Name: &name, Team: &team})
			require.NoError(t, err)
			p, err := s.UpdateProfile(ctx, model.ProfilePatch{Level: &level})
			require.NoError(t, err)
			assert.Equal(t, "Ada", p.Name)
			assert.Equal(t, "Platform", p.Team)
			assert.Equal(t, "Senior", p.Level)
			return nil
		})
		require.NoError(t, err)

		err = env.scopes.With(ctx, b.ID, func(s *usecase.ScopedRepository) error {
			p, err := s.GetProfile(ctx)
			require.NoError(t, err)
			assert.Empty(t, p.Name)
			return nil
		})
		require.NoError(t, err)
	})

	t.Run("should keep integration tokens readable by the owner", func(t *testing.T) {
		err := env.scopes.With(ctx, a.ID, func(s *usecase.ScopedRepository) error {
			_, err := s.UpsertIntegration(ctx, "github", "ghp_abc", true)
			require.NoError(t, err)
			list, err := s.ListIntegrations(ctx)
			require.NoError(t, err)
			require.Len(t, list, 1)
			assert.Equal(t, "ghp_abc", list[0].AccessToken)
			return nil
		})
		require.NoError(t, err)
	})
}

func TestScopedRepository_Lifecycle(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, midWeek30)
	a := env.seedUser(t, "a@example.com", "UTC")

	t.Run("should fail every call after close", func(t *testing.T) {
		s, err := env.scopes.Open(ctx, a.ID)
		require.NoError(t, err)
		require.NoError(t, s.Close())
		require.NoError(t, s.Close(), "close is idempotent")

		_, err = s.ListSnippets(ctx, 0)
		assert.ErrorIs(t, err, domain.ErrScopeClosed)
		_, err = s.GetProfile(ctx)
		assert.ErrorIs(t, err, domain.ErrScopeClosed)
		_, err = s.GetOperation(ctx, "x")
		assert.ErrorIs(t, err, domain.ErrScopeClosed)
	})

	t.Run("should close the scope when the callback panics", func(t *testing.T) {
		var leaked *usecase.ScopedRepository
		assert.Panics(t, func() {
			_ = env.scopes.With(ctx, a.ID, func(s *usecase.ScopedRepository) error {
				leaked = s
				panic("boom")
			})
		})
		_, err := leaked.ListSnippets(ctx, 0)
		assert.ErrorIs(t, err, domain.ErrScopeClosed)
	})

	t.Run("should close the scope when the callback fails", func(t *testing.T) {
		var leaked *usecase.ScopedRepository
		want := errors.New("unit of work failed")
		err := env.scopes.With(ctx, a.ID, func(s *usecase.ScopedRepository) error {
			leaked = s
			return want
		})
		assert.ErrorIs(t, err, want)
		_, err = leaked.ListSnippets(ctx, 0)
		assert.ErrorIs(t, err, domain.ErrScopeClosed)
	})

	t.Run("should reject an empty owner", func(t *testing.T) {
		_, err := env.scopes.Open(ctx, "")
		assert.ErrorIs(t, err, domain.ErrInvalidArgument)
	})
}

func TestScopedRepository_Operations(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, midWeek30)
	a := env.seedUser(t, "a@example.com", "UTC")
	b := env.seedUser(t, "b@example.com", "UTC")

	var opID string
	err := env.scopes.With(ctx, a.ID, func(s *usecase.ScopedRepository) error {
		op, err := s.CreateOperation(ctx, model.OperationTypeWeeklySnippet, nil)
		require.NoError(t, err)
		opID = op.ID

		got, err := s.GetOperation(ctx, op.ID)
		require.NoError(t, err)
		assert.Equal(t, model.OperationStatusQueued, got.Status)

		key := period.Key(2025, 30)
		first, created, err := s.CreatePeriodOperation(ctx, model.OperationTypeWeeklySnippet, nil, key)
		require.NoError(t, err)
		assert.True(t, created)
		again, created, err := s.CreatePeriodOperation(ctx, model.OperationTypeWeeklySnippet, nil, key)
		require.NoError(t, err)
		assert.False(t, created)
		assert.Equal(t, first.ID, again.ID)
		return nil
	})
	require.NoError(t, err)

	err = env.scopes.With(ctx, b.ID, func(s *usecase.ScopedRepository) error {
		key := period.Key(2025, 30)
		manual, err := s.CreateManualOperation(ctx, model.OperationTypeWeeklySnippet, nil, key)
		require.NoError(t, err)
		assert.True(t, manual.Manual)
		another, err := s.CreateManualOperation(ctx, model.OperationTypeWeeklySnippet, nil, key)
		require.NoError(t, err)
		assert.NotEqual(t, manual.ID, another.ID)

		found, err := s.FindPeriodOperation(ctx, model.OperationTypeWeeklySnippet, key)
		require.NoError(t, err)
		assert.True(t, found.Manual)

		reused, created, err := s.CreatePeriodOperation(ctx, model.OperationTypeWeeklySnippet, nil, key)
		require.NoError(t, err)
		assert.False(t, created)
		assert.True(t, reused.Manual)
		return nil
	})
	require.NoError(t, err)

	err = env.scopes.With(ctx, b.ID, func(s *usecase.ScopedRepository) error {
		_, err := s.GetOperation(ctx, opID)
		assert.ErrorIs(t, err, domain.ErrAccessDenied)
		_, err = s.GetOperation(ctx, "missing")
		assert.ErrorIs(t, err, domain.ErrAccessDenied)
		return nil
	})
	require.NoError(t, err)
}

func TestScopedRepository_OwnerTimezone(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		now     time.Time
		tz      string
		week    int
		wantErr error
	}{
		{name: "should accept the new local week east of UTC", now: sundayEveningUTC, tz: "Pacific/Auckland", week: 31},
		{name: "should accept the new local week in Tokyo", now: sundayEveningUTC, tz: "Asia/Tokyo", week: 31},
		{name: "should still reject the week after the local one", now: sundayEveningUTC, tz: "Pacific/Auckland", week: 32, wantErr: domain.ErrFuturePeriod},
		{name: "should reject the next week for a UTC owner on Sunday", now: sundayEveningUTC, tz: "UTC", week: 31, wantErr: domain.ErrFuturePeriod},
		{name: "should reject the UTC week while it is still Sunday west of UTC", now: mondayMorningUTC, tz: "America/Los_Angeles", week: 31, wantErr: domain.ErrFuturePeriod},
		{name: "should accept the local week west of UTC", now: mondayMorningUTC, tz: "America/Los_Angeles", week: 30},
		{name: "should accept the new week for a UTC owner on Monday", now: mondayMorningUTC, tz: "UTC", week: 31},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv(t, tc.now)
			u := env.seedUser(t, "tz@example.com", tc.tz)

			err := env.scopes.With(ctx, u.ID, func(s *usecase.ScopedRepository) error {
				_, err := s.CreateOrUpdateSnippet(ctx, 2025, tc.week, period.Start(2025, tc.week), period.End(2025, tc.week), "notes")
				return err
			})

			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
				return
			}
			assert.NoError(t, err)
		})
	}

	t.Run("should judge owners without a user row in UTC", func(t *testing.T) {
		env := newTestEnv(t, sundayEveningUTC)

		err := env.scopes.With(ctx, "ghost", func(s *usecase.ScopedRepository) error {
			_, err := s.CreateOrUpdateSnippet(ctx, 2025, 31, period.Start(2025, 31), period.End(2025, 31), "notes")
			return err
		})

		assert.ErrorIs(t, err, domain.ErrFuturePeriod)
	})
}
