package model

import "time"

// WeeklySnippet is the per-period artifact. The owner is a storage column and
// is never exposed on the struct.
type WeeklySnippet struct {
	ID         string
	Year       int
	Week       int
	StartDate  time.Time
	EndDate    time.Time
	Content    string
	Summary    *string
	Highlights []string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
