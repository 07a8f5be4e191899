package adapter

import (
	"context"
	"time"

	"weekly-snippets/internal/domain/model"
)

// IntegrationSource fetches activity items for one integration type.
type IntegrationSource interface {
	Fetch(ctx context.Context, integrationType, accessToken string, from, to time.Time) ([]model.IntegrationItem, error)
}
