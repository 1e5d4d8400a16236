package models

import (
	"time"

	"github.com/google/uuid"
)

// Sprint is a dated phase of a project's delivery plan. Sprints are listed by
// Order, then by creation time.
type Sprint struct {
	ID          uuid.UUID  `json:"id"`
	ProjectID   uuid.UUID  `json:"project_id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	StartDate   time.Time  `json:"start_date"`
	EndDate     time.Time  `json:"end_date"`
	Order       int        `json:"order"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	Features    []*Feature `json:"features"`
}

// Feature status values.
const (
	FeatureStatusTodo       = "todo"
	FeatureStatusInProgress = "in_progress"
	FeatureStatusReview     = "review"
	FeatureStatusDone       = "done"
)

func ValidFeatureStatus(s string) bool {
	switch s {
	case FeatureStatusTodo, FeatureStatusInProgress, FeatureStatusReview, FeatureStatusDone:
		return true
	}
	return false
}

// Feature priority values.
const (
	PriorityLow      = "low"
	PriorityMedium   = "medium"
	PriorityHigh     = "high"
	PriorityCritical = "critical"
)

func ValidPriority(p string) bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		return true
	}
	return false
}

// Feature is a unit of planned scope. It may sit in a sprint or in the
// project backlog when SprintID is nil.
type Feature struct {
	ID             uuid.UUID  `json:"id"`
	ProjectID      uuid.UUID  `json:"project_id"`
	SprintID       *uuid.UUID `json:"sprint_id"`
	Title          string     `json:"title"`
	Description    string     `json:"description"`
	Status         string     `json:"status"`
	Priority       string     `json:"priority"`
	AssigneeID     *uuid.UUID `json:"assignee_id,omitempty"`
	EstimatedHours *int       `json:"estimated_hours,omitempty"`
	Order          int        `json:"order"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// FeaturePatch carries the optional fields of a feature update. Solvers may
// only change Status.
type FeaturePatch struct {
	SprintID       *uuid.UUID
	Title          *string
	Description    *string
	Status         *string
	Priority       *string
	AssigneeID     *uuid.UUID
	EstimatedHours *int
	Order          *int
}

// OnlyStatus reports whether the patch touches nothing but Status.
func (p FeaturePatch) OnlyStatus() bool {
	return p.SprintID == nil && p.Title == nil && p.Description == nil && p.Priority == nil &&
		p.AssigneeID == nil && p.EstimatedHours == nil && p.Order == nil
}
