package model

import "time"

type Profile struct {
	Name        string
	JobTitle    string
	Level       string
	Team        string
	Manager     string
	CareerGoals string
	UpdatedAt   time.Time
}

// ProfilePatch is a partial update; nil fields keep the stored value.
type ProfilePatch struct {
	Name        *string `json:"name"`
	JobTitle    *string `json:"jobTitle"`
	Level       *string `json:"level"`
	Team        *string `json:"team"`
	Manager     *string `json:"manager"`
	CareerGoals *string `json:"careerGoals"`
}

func (p ProfilePatch) IsEmpty() bool {
	return p.Name == nil && p.JobTitle == nil && p.Level == nil &&
		p.Team == nil && p.Manager == nil && p.CareerGoals == nil
}
