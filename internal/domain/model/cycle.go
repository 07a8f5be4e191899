package model

import "time"

type CycleKind string

const (
	CycleKindAssessment CycleKind = "assessment"
	CycleKindCheckin    CycleKind = "checkin"
)

func (k CycleKind) Valid() bool {
	return k == CycleKindAssessment || k == CycleKindCheckin
}

// CycleArtifact is a per-cycle document (performance assessment or career
// check-in), unique per owner and cycle name.
type CycleArtifact struct {
	ID        string
	Kind      CycleKind
	CycleName string
	Content   string
	CreatedAt time.Time
	UpdatedAt time.Time
}
