package model

import "time"

// Integration is a connected third-party data source. AccessToken holds the
// plaintext in memory; repositories encrypt it at rest.
type Integration struct {
	ID          string
	Type        string
	AccessToken string
	IsActive    bool
	LastSyncAt  *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// IntegrationItem is one unit of activity fetched from an integration
// (a merged PR, a closed ticket, a calendar event).
type IntegrationItem struct {
	Source     string    `json:"source"`
	Title      string    `json:"title"`
	URL        string    `json:"url,omitempty"`
	OccurredAt time.Time `json:"occurredAt"`
}
