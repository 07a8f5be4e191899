package repository

import (
	"context"

	"weekly-snippets/internal/domain/model"
)

type UserRepository interface {
	Save(ctx context.Context, tx Tx, u *model.User) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.User, error)
	// SeedProfile creates an empty profile row for a new user; existing rows are kept.
	SeedProfile(ctx context.Context, tx Tx, ownerID, name string) error
	// ListEligible returns onboarded users with at least one active
	// integration of the given types (any type when empty).
	ListEligible(ctx context.Context, integrationTypes []string) ([]*model.User, error)
}
