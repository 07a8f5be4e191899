package repository

import (
	"context"
	"time"

	"weekly-snippets/internal/domain/model"
)

// Session is one storage connection held for a unit of work. Every method
// constrains by ownerID; mutations of a missing or foreign row return
// domain.ErrNotFound without distinguishing the two.
type Session interface {
	// UpsertSnippet inserts or updates the (owner, year, week) row atomically,
	// keeping the existing id on update.
	UpsertSnippet(ctx context.Context, ownerID string, s *model.WeeklySnippet) (*model.WeeklySnippet, error)
	// ListSnippets returns newest periods first; limit <= 0 means all.
	ListSnippets(ctx context.Context, ownerID string, limit int) ([]*model.WeeklySnippet, error)
	FindSnippet(ctx context.Context, ownerID, id string) (*model.WeeklySnippet, error)
	FindSnippetByPeriod(ctx context.Context, ownerID string, year, week int) (*model.WeeklySnippet, error)
	UpdateSnippetContent(ctx context.Context, ownerID, id, content string, at time.Time) (*model.WeeklySnippet, error)
	DeleteSnippet(ctx context.Context, ownerID, id string) error

	UpsertCycleArtifact(ctx context.Context, ownerID string, a *model.CycleArtifact) (*model.CycleArtifact, error)
	ListCycleArtifacts(ctx context.Context, ownerID string, kind model.CycleKind) ([]*model.CycleArtifact, error)
	UpdateCycleArtifactContent(ctx context.Context, ownerID string, kind model.CycleKind, id, content string, at time.Time) (*model.CycleArtifact, error)
	DeleteCycleArtifact(ctx context.Context, ownerID string, kind model.CycleKind, id string) error

	GetProfile(ctx context.Context, ownerID string) (*model.Profile, error)
	// MergeProfile applies non-nil patch fields in a single statement.
	MergeProfile(ctx context.Context, ownerID string, patch model.ProfilePatch, at time.Time) (*model.Profile, error)

	ListIntegrations(ctx context.Context, ownerID string) ([]*model.Integration, error)
	UpsertIntegration(ctx context.Context, ownerID string, in *model.Integration) (*model.Integration, error)
	MarkIntegrationSynced(ctx context.Context, ownerID, integrationType string, at time.Time) error

	// Close returns the connection to the pool.
	Close() error
}

type SessionOpener interface {
	Open(ctx context.Context) (Session, error)
}

// TokenCipher encrypts integration credentials at rest.
type TokenCipher interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}
