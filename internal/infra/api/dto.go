package api

import (
	"time"

	"weekly-snippets/internal/domain/model"
)

const dateLayout = "2006-01-02"

type snippetResponse struct {
	ID         string    `json:"id"`
	Year       int       `json:"year"`
	Week       int       `json:"week"`
	StartDate  string    `json:"startDate"`
	EndDate    string    `json:"endDate"`
	Content    string    `json:"content"`
	Summary    *string   `json:"summary,omitempty"`
	Highlights []string  `json:"highlights"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

func toSnippet(s *model.WeeklySnippet) snippetResponse {
	hl := s.Highlights
	if hl == nil {
		hl = []string{}
	}
	return snippetResponse{
		ID:         s.ID,
		Year:       s.Year,
		Week:       s.Week,
		StartDate:  s.StartDate.UTC().Format(dateLayout),
		EndDate:    s.EndDate.UTC().Format(dateLayout),
		Content:    s.Content,
		Summary:    s.Summary,
		Highlights: hl,
		CreatedAt:  s.CreatedAt,
		UpdatedAt:  s.UpdatedAt,
	}
}

type cycleResponse struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	CycleName string    `json:"cycleName"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func toCycle(a *model.CycleArtifact) cycleResponse {
	return cycleResponse{
		ID:        a.ID,
		Kind:      string(a.Kind),
		CycleName: a.CycleName,
		Content:   a.Content,
		CreatedAt: a.CreatedAt,
		UpdatedAt: a.UpdatedAt,
	}
}

type profileResponse struct {
	Name        string     `json:"name"`
	JobTitle    string     `json:"jobTitle"`
	Level       string     `json:"level"`
	Team        string     `json:"team"`
	Manager     string     `json:"manager"`
	CareerGoals string     `json:"careerGoals"`
	UpdatedAt   *time.Time `json:"updatedAt,omitempty"`
}

func toProfile(p *model.Profile) profileResponse {
	out := profileResponse{
		Name:        p.Name,
		JobTitle:    p.JobTitle,
		Level:       p.Level,
		Team:        p.Team,
		Manager:     p.Manager,
		CareerGoals: p.CareerGoals,
	}
	if !p.UpdatedAt.IsZero() {
		t := p.UpdatedAt
		out.UpdatedAt = &t
	}
	return out
}

// integrationResponse never carries the access token.
type integrationResponse struct {
	ID         string     `json:"id"`
	Type       string     `json:"type"`
	IsActive   bool       `json:"isActive"`
	Connected  bool       `json:"connected"`
	LastSyncAt *time.Time `json:"lastSyncAt,omitempty"`
	UpdatedAt  time.Time  `json:"updatedAt"`
}

func toIntegration(i *model.Integration) integrationResponse {
	return integrationResponse{
		ID:         i.ID,
		Type:       i.Type,
		IsActive:   i.IsActive,
		Connected:  i.AccessToken != "",
		LastSyncAt: i.LastSyncAt,
		UpdatedAt:  i.UpdatedAt,
	}
}

type listResponse[T any] struct {
	Data []T `json:"data"`
}

func mapList[S any, T any](in []S, f func(S) T) listResponse[T] {
	out := make([]T, 0, len(in))
	for _, v := range in {
		out = append(out, f(v))
	}
	return listResponse[T]{Data: out}
}

type putSnippetRequest struct {
	Year      int     `json:"year" validate:"required,min=1,max=9999"`
	Week      float64 `json:"week"`
	StartDate string  `json:"startDate" validate:"required,datetime=2006-01-02"`
	EndDate   string  `json:"endDate" validate:"required,datetime=2006-01-02"`
	Content   string  `json:"content" validate:"max=100000"`
}

type contentRequest struct {
	Content string `json:"content" validate:"max=100000"`
}

type putCycleRequest struct {
	CycleName string `json:"cycleName" validate:"max=200"`
	Content   string `json:"content" validate:"max=100000"`
}

type profilePatchRequest struct {
	Name        *string `json:"name" validate:"omitempty,max=200"`
	JobTitle    *string `json:"jobTitle" validate:"omitempty,max=200"`
	Level       *string `json:"level" validate:"omitempty,max=100"`
	Team        *string `json:"team" validate:"omitempty,max=200"`
	Manager     *string `json:"manager" validate:"omitempty,max=200"`
	CareerGoals *string `json:"careerGoals" validate:"omitempty,max=4000"`
}

func (p profilePatchRequest) patch() model.ProfilePatch {
	return model.ProfilePatch{
		Name:        p.Name,
		JobTitle:    p.JobTitle,
		Level:       p.Level,
		Team:        p.Team,
		Manager:     p.Manager,
		CareerGoals: p.CareerGoals,
	}
}

type putIntegrationRequest struct {
	Type        string `json:"type" validate:"required,max=64"`
	AccessToken string `json:"accessToken" validate:"required,max=4096"`
	Active      *bool  `json:"active"`
}

type generateResponse struct {
	OperationID string `json:"operationId"`
}
