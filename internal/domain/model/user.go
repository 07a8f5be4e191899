package model

import (
	"strings"
	"time"

	"weekly-snippets/internal/domain"

	"github.com/google/uuid"
)

type User struct {
	ID        string
	Email     string
	Timezone  string
	Onboarded bool
	CreatedAt time.Time
}

func NewUser(id, email, timezone string) (*User, error) {
	if id == "" {
		id = uuid.NewString()
	}
	if !strings.Contains(email, "@") {
		return nil, domain.ErrInvalidArgument
	}
	if timezone == "" {
		timezone = "UTC"
	}
	if _, err := time.LoadLocation(timezone); err != nil {
		return nil, domain.ErrInvalidTimezone
	}
	return &User{
		ID:        id,
		Email:     email,
		Timezone:  timezone,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// Location falls back to UTC for unknown zones.
func (u *User) Location() *time.Location {
	if u == nil || u.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(u.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func (u *User) IsZero() bool { return u == nil || u.ID == "" }
