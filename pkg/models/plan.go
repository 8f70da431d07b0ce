package models

import "time"

// PlanStatus is the lifecycle state of a spec plan document.
type PlanStatus string

const (
	PlanStatusPending  PlanStatus = "PENDING"
	PlanStatusComplete PlanStatus = "COMPLETE"
	PlanStatusVerified PlanStatus = "VERIFIED"
)

// SpecType distinguishes the two plan document flavors.
type SpecType string

const (
	SpecTypeFeature SpecType = "Feature"
	SpecTypeBugfix  SpecType = "Bugfix"
)

// PlanInfo is a discovered plan document. The same logical plan can be found
// both in the main checkout and in a worktree mirror; deduplication keeps one.
type PlanInfo struct {
	Name           string     `json:"name"`
	Path           string     `json:"path"`
	Status         PlanStatus `json:"status"`
	CompletedTasks int        `json:"completed_tasks"`
	TotalTasks     int        `json:"total_tasks"`
	Phase          string     `json:"phase,omitempty"`
	Iterations     int        `json:"iterations"`
	Approved       bool       `json:"approved"`
	Worktree       bool       `json:"worktree"`
	SpecType       SpecType   `json:"spec_type"`
	ModifiedAt     time.Time  `json:"modified_at"`
}
