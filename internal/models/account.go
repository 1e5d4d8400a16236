package models

import (
	"time"

	"github.com/google/uuid"
)

// User roles.
const (
	RoleBuyer  = "buyer"
	RoleSolver = "problem_solver"
	RoleAdmin  = "admin"
)

func ValidRole(r string) bool {
	return r == RoleBuyer || r == RoleSolver || r == RoleAdmin
}

type User struct {
	ID           uuid.UUID `json:"id"`
	Email        string    `json:"email"`
	FullName     string    `json:"full_name"`
	PasswordHash string    `json:"-"`
	Role         string    `json:"role"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// SolverStats summarises a solver's track record.
type SolverStats struct {
	TotalApplications    int64   `json:"total_applications"`
	AcceptedApplications int64   `json:"accepted_applications"`
	CompletedProjects    int64   `json:"completed_projects"`
	ActiveProjects       int64   `json:"active_projects"`
	AcceptanceRate       float64 `json:"acceptance_rate"`
}

// SolverProfile is the public view of a problem solver.
type SolverProfile struct {
	ID         uuid.UUID   `json:"id"`
	FullName   string      `json:"full_name"`
	Email      string      `json:"email"`
	Role       string      `json:"role"`
	IsActive   bool        `json:"is_active"`
	CreatedAt  time.Time   `json:"created_at"`
	Statistics SolverStats `json:"statistics"`
}
