package usecase

import (
	"context"
	"strings"

	"weekly-snippets/internal/domain/model"
	"weekly-snippets/internal/domain/ports/repository"
	"weekly-snippets/internal/infra/logging"

	"github.com/rs/zerolog"
)

// UserUseCase seeds accounts. Identity management proper lives elsewhere;
// this only backs the CLI and tests.
type UserUseCase struct {
	users repository.UserRepository
	tm    repository.TransactionManager
	log   *zerolog.Logger
}

func NewUserUseCase(users repository.UserRepository, tm repository.TransactionManager, logger *zerolog.Logger) *UserUseCase {
	return &UserUseCase{users: users, tm: tm, log: logger}
}

// Register creates an onboarded user together with an empty profile in one
// transaction.
func (u *UserUseCase) Register(ctx context.Context, email, timezone, name string) (*model.User, error) {
	defer logging.TraceDuration(u.log, "UserUseCase.Register")()

	user, err := model.NewUser("", strings.TrimSpace(strings.ToLower(email)), timezone)
	if err != nil {
		return nil, err
	}
	user.Onboarded = true

	err = u.tm.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		if err := u.users.Save(ctx, tx, user); err != nil {
			return err
		}
		return u.users.SeedProfile(ctx, tx, user.ID, name)
	})
	if err != nil {
		u.log.Error().Err(err).Str("email", logging.Redact(user.Email, false)).Msg("failed to register user")
		return nil, err
	}
	return user, nil
}

func (u *UserUseCase) Get(ctx context.Context, id string) (*model.User, error) {
	return u.users.FindByID(ctx, nil, id)
}
