//go:build !integration

package usecase_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"weekly-snippets/internal/domain"
	"weekly-snippets/internal/infra/db/sqlite"
	"weekly-snippets/internal/usecase"
)

func TestUserUseCase_Register(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, time.Time{})
	uc := usecase.NewUserUseCase(env.users, sqlite.NewTxManager(env.store), newTestLogger())

	t.Run("should create an onboarded user with a seeded profile", func(t *testing.T) {
		u, err := uc.Register(ctx, " Ada@Example.com ", "Europe/Berlin", "Ada")
		require.NoError(t, err)
		assert.Equal(t, "ada@example.com", u.Email)
		assert.True(t, u.Onboarded)

		got, err := uc.Get(ctx, u.ID)
		require.NoError(t, err)
		assert.Equal(t, "Europe/Berlin", got.Timezone)

		err = env.scopes.With(ctx, u.ID, func(s *usecase.ScopedRepository) error {
			p, err := s.GetProfile(ctx)
			require.NoError(t, err)
			assert.Equal(t, "Ada", p.Name)
			return nil
		})
		require.NoError(t, err)
	})

	t.Run("should reject duplicates and bad input", func(t *testing.T) {
		_, err := uc.Register(ctx, "ada@example.com", "UTC", "")
		assert.ErrorIs(t, err, domain.ErrAlreadyExists)

		_, err = uc.Register(ctx, "not-an-email", "UTC", "")
		assert.ErrorIs(t, err, domain.ErrInvalidArgument)

		_, err = uc.Register(ctx, "x@example.com", "Mars/Olympus", "")
		assert.ErrorIs(t, err, domain.ErrValidation)
	})
}
