package models

import (
	"time"

	"github.com/google/uuid"
)

// Project status values.
const (
	ProjectStatusOpen       = "open"
	ProjectStatusAssigned   = "assigned"
	ProjectStatusInProgress = "in_progress"
	ProjectStatusCompleted  = "completed"
	ProjectStatusCancelled  = "cancelled"
)

// projectTransitions lists every legal project status edge.
var projectTransitions = map[string][]string{
	ProjectStatusOpen:       {ProjectStatusAssigned, ProjectStatusCancelled},
	ProjectStatusAssigned:   {ProjectStatusInProgress, ProjectStatusCompleted},
	ProjectStatusInProgress: {ProjectStatusCompleted},
}

// CanTransitionProject reports whether a project may move from one status to another.
func CanTransitionProject(from, to string) bool {
	for _, s := range projectTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Project categories.
const (
	CategoryWebDevelopment = "web_development"
	CategoryMobileApp      = "mobile_app"
	CategoryDataScience    = "data_science"
	CategoryAIML           = "ai_ml"
	CategoryBlockchain     = "blockchain"
	CategoryDevOps         = "devops"
	CategoryDesign         = "design"
	CategoryContent        = "content"
	CategoryOther          = "other"
)

type Category struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Categories is the fixed catalogue shown in the marketplace, in display order.
var Categories = []Category{
	{ID: CategoryWebDevelopment, Name: "Web Development"},
	{ID: CategoryMobileApp, Name: "Mobile App"},
	{ID: CategoryDataScience, Name: "Data Science"},
	{ID: CategoryAIML, Name: "AI/Machine Learning"},
	{ID: CategoryBlockchain, Name: "Blockchain"},
	{ID: CategoryDevOps, Name: "DevOps"},
	{ID: CategoryDesign, Name: "Design"},
	{ID: CategoryContent, Name: "Content Creation"},
	{ID: CategoryOther, Name: "Other"},
}

func ValidCategory(c string) bool {
	for _, cat := range Categories {
		if cat.ID == c {
			return true
		}
	}
	return false
}

type Project struct {
	ID               uuid.UUID  `json:"id"`
	BuyerID          uuid.UUID  `json:"buyer_id"`
	AssignedSolverID *uuid.UUID `json:"assigned_solver_id,omitempty"`
	Title            string     `json:"title"`
	Description      string     `json:"description"`
	Category         string     `json:"category"`
	BudgetCents      int64      `json:"budget_cents"`
	Status           string     `json:"status"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// IsAssignedTo reports whether the given solver is the project's assigned solver.
func (p *Project) IsAssignedTo(solverID uuid.UUID) bool {
	return p.AssignedSolverID != nil && *p.AssignedSolverID == solverID
}

// ProjectListing is a marketplace entry: an open project plus its application count.
type ProjectListing struct {
	Project
	ApplicationCount int `json:"application_count"`
}

// Browse sort orders.
const (
	SortNewest = "newest"
	SortBudget = "budget"
	SortTitle  = "title"
)

// ProjectFilter narrows a marketplace browse.
type ProjectFilter struct {
	Category string
	Search   string
	Sort     string
	Offset   int
	Limit    int
}

// Assignment is the audit record of a successful match.
type Assignment struct {
	ID          uuid.UUID  `json:"id"`
	ProjectID   uuid.UUID  `json:"project_id"`
	SolverID    uuid.UUID  `json:"solver_id"`
	AssignedAt  time.Time  `json:"assigned_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}
