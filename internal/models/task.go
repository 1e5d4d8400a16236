package models

import (
	"time"

	"github.com/google/uuid"
)

// Task status values.
const (
	TaskStatusCreated    = "created"
	TaskStatusInProgress = "in_progress"
	TaskStatusSubmitted  = "submitted"
	TaskStatusAccepted   = "accepted"
	TaskStatusRejected   = "rejected"
)

var taskTransitions = map[string][]string{
	TaskStatusCreated:    {TaskStatusInProgress},
	TaskStatusInProgress: {TaskStatusSubmitted},
	TaskStatusSubmitted:  {TaskStatusAccepted, TaskStatusRejected},
}

// CanTransitionTask reports whether a task may move from one status to another.
func CanTransitionTask(from, to string) bool {
	for _, s := range taskTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

type Task struct {
	ID          uuid.UUID  `json:"id"`
	ProjectID   uuid.UUID  `json:"project_id"`
	SolverID    uuid.UUID  `json:"solver_id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Status      string     `json:"status"`
	Deadline    *time.Time `json:"deadline,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// TaskPatch carries the optional fields of a task update.
type TaskPatch struct {
	Title       *string
	Description *string
	Deadline    *time.Time
	Status      *string
}

// Submission status values.
const (
	SubmissionStatusPending  = "pending"
	SubmissionStatusAccepted = "accepted"
	SubmissionStatusRejected = "rejected"
)

type Submission struct {
	ID              uuid.UUID  `json:"id"`
	TaskID          uuid.UUID  `json:"task_id"`
	ProjectID       uuid.UUID  `json:"project_id"`
	SolverID        uuid.UUID  `json:"solver_id"`
	ArtifactRef     string     `json:"artifact_ref"`
	FileName        string     `json:"file_name"`
	Status          string     `json:"status"`
	RejectionReason *string    `json:"rejection_reason,omitempty"`
	SubmittedAt     time.Time  `json:"submitted_at"`
	ReviewedAt      *time.Time `json:"reviewed_at,omitempty"`
}
