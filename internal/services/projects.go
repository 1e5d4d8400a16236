package services

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel/attribute"

	"github.com/solverhub/backend/internal/apperror"
	"github.com/solverhub/backend/internal/models"
)

const (
	defaultBrowseLimit = 20
	maxBrowseLimit     = 100
)

// ProjectInput holds the terms of a new project.
type ProjectInput struct {
	Title       string
	Description string
	Category    string
	BudgetCents int64
}

// ProjectPatch holds optional replacements for a project's terms.
type ProjectPatch struct {
	Title       *string
	Description *string
	Category    *string
	BudgetCents *int64
}

func (e *Engine) validateTerms(title, description, category string, budget int64) error {
	if title == "" {
		return apperror.Validation("title is required")
	}
	if description == "" {
		return apperror.Validation("description is required")
	}
	if !models.ValidCategory(category) {
		return apperror.Validation("unknown category " + category)
	}
	if budget <= 0 {
		return apperror.Validation("budget must be positive")
	}
	if e.MaxBudgetCents > 0 && budget > e.MaxBudgetCents {
		return apperror.Validation("budget exceeds the allowed maximum")
	}
	return nil
}

// CreateProject posts a new open project owned by the buyer.
func (e *Engine) CreateProject(ctx context.Context, actor models.Actor, in ProjectInput) (_ *models.Project, err error) {
	ctx, span := startSpan(ctx, "Engine.CreateProject", actor)
	defer func() { endSpan(span, err) }()

	buyer, ok := actor.(models.Buyer)
	if !ok {
		return nil, apperror.Forbidden("only buyers can create projects")
	}
	in.Title = strings.TrimSpace(in.Title)
	in.Description = strings.TrimSpace(in.Description)
	if in.Category == "" {
		in.Category = models.CategoryOther
	}
	if err := e.validateTerms(in.Title, in.Description, in.Category, in.BudgetCents); err != nil {
		return nil, err
	}

	now := e.now()
	p := &models.Project{
		ID:          uuid.New(),
		BuyerID:     buyer.ID,
		Title:       in.Title,
		Description: in.Description,
		Category:    in.Category,
		BudgetCents: in.BudgetCents,
		Status:      models.ProjectStatusOpen,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	err = e.inTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		return e.Projects.Create(ctx, tx, p)
	})
	if err != nil {
		return nil, err
	}
	e.log().Info("project created", "project_id", p.ID, "buyer_id", buyer.ID)
	return p, nil
}

// canView reports whether actor may see p. Solvers see open projects and the ones assigned to them.
func canView(actor models.Actor, p *models.Project) bool {
	switch a := actor.(type) {
	case models.Admin:
		return true
	case models.Buyer:
		return p.BuyerID == a.ID
	case models.Solver:
		return p.Status == models.ProjectStatusOpen || p.IsAssignedTo(a.ID)
	}
	return false
}

// canFollow reports whether actor takes part in p's execution: its buyer, its solver, or an admin.
func canFollow(actor models.Actor, p *models.Project) bool {
	switch a := actor.(type) {
	case models.Admin:
		return true
	case models.Buyer:
		return p.BuyerID == a.ID
	case models.Solver:
		return p.IsAssignedTo(a.ID)
	}
	return false
}

// GetProject returns a project the actor is allowed to see.
func (e *Engine) GetProject(ctx context.Context, actor models.Actor, id uuid.UUID) (p *models.Project, err error) {
	ctx, span := startSpan(ctx, "Engine.GetProject", actor, attribute.String("project.id", id.String()))
	defer func() { endSpan(span, err) }()

	err = e.inTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		p, err = e.Projects.GetByID(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	if !canView(actor, p) {
		return nil, apperror.NotFound("project")
	}
	return p, nil
}

// UpdateProject changes a project's terms. Terms are frozen once the project leaves open.
func (e *Engine) UpdateProject(ctx context.Context, actor models.Actor, id uuid.UUID, patch ProjectPatch) (p *models.Project, err error) {
	ctx, span := startSpan(ctx, "Engine.UpdateProject", actor, attribute.String("project.id", id.String()))
	defer func() { endSpan(span, err) }()

	buyer, ok := actor.(models.Buyer)
	if !ok {
		return nil, apperror.Forbidden("only buyers can update projects")
	}
	err = e.inTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		p, err = e.Projects.GetByIDForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if p.BuyerID != buyer.ID {
			return apperror.Forbidden("only the project owner can update it")
		}
		if p.Status != models.ProjectStatusOpen {
			return apperror.InvalidState("project terms can only change while it is open")
		}
		if patch.Title != nil {
			p.Title = strings.TrimSpace(*patch.Title)
		}
		if patch.Description != nil {
			p.Description = strings.TrimSpace(*patch.Description)
		}
		if patch.Category != nil {
			p.Category = *patch.Category
		}
		if patch.BudgetCents != nil {
			p.BudgetCents = *patch.BudgetCents
		}
		if err := e.validateTerms(p.Title, p.Description, p.Category, p.BudgetCents); err != nil {
			return err
		}
		p.UpdatedAt = e.now()
		return e.Projects.Update(ctx, tx, p)
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// DeleteProject withdraws an open project. The row is kept as cancelled and
// every pending application is rejected in the same transaction.
func (e *Engine) DeleteProject(ctx context.Context, actor models.Actor, id uuid.UUID) (p *models.Project, err error) {
	ctx, span := startSpan(ctx, "Engine.DeleteProject", actor, attribute.String("project.id", id.String()))
	defer func() { endSpan(span, err) }()

	buyer, ok := actor.(models.Buyer)
	if !ok {
		return nil, apperror.Forbidden("only buyers can delete projects")
	}
	err = e.inTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		p, err = e.Projects.GetByIDForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if p.BuyerID != buyer.ID {
			return apperror.Forbidden("only the project owner can delete it")
		}
		if err := e.transitionProject(p, models.ProjectStatusCancelled); err != nil {
			return err
		}
		if err := e.Projects.Update(ctx, tx, p); err != nil {
			return err
		}
		rejected, err := e.Applications.RejectPendingExcept(ctx, tx, p.ID, uuid.Nil, p.UpdatedAt)
		if err != nil {
			return err
		}
		for _, a := range rejected {
			if err := e.notify(ctx, tx, models.EventApplicationRejected, p.ID, a.SolverID, a.ID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.log().Info("project cancelled", "project_id", p.ID)
	return p, nil
}

// ListMyProjects returns the buyer's own projects, the solver's assigned
// projects, or every project for an admin.
func (e *Engine) ListMyProjects(ctx context.Context, actor models.Actor) (list []*models.Project, err error) {
	ctx, span := startSpan(ctx, "Engine.ListMyProjects", actor)
	defer func() { endSpan(span, err) }()

	err = e.inTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		switch a := actor.(type) {
		case models.Buyer:
			list, err = e.Projects.ListByBuyer(ctx, tx, a.ID)
		case models.Solver:
			list, err = e.Projects.ListBySolver(ctx, tx, a.ID)
		case models.Admin:
			list, err = e.Projects.ListAll(ctx, tx)
		default:
			err = apperror.Forbidden("unknown actor")
		}
		return err
	})
	return list, err
}

// Browse lists open projects for the marketplace.
func (e *Engine) Browse(ctx context.Context, f models.ProjectFilter) (list []*models.ProjectListing, err error) {
	ctx, span := startSpan(ctx, "Engine.Browse", nil, attribute.String("filter.category", f.Category))
	defer func() { endSpan(span, err) }()

	if f.Category != "" && !models.ValidCategory(f.Category) {
		return nil, apperror.Validation("unknown category " + f.Category)
	}
	switch f.Sort {
	case "":
		f.Sort = models.SortNewest
	case models.SortNewest, models.SortBudget, models.SortTitle:
	default:
		return nil, apperror.Validation("unknown sort " + f.Sort)
	}
	if f.Limit <= 0 {
		f.Limit = defaultBrowseLimit
	}
	if f.Limit > maxBrowseLimit {
		f.Limit = maxBrowseLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	f.Search = strings.TrimSpace(f.Search)

	err = e.inTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		list, err = e.Projects.Browse(ctx, tx, f)
		return err
	})
	return list, err
}

// Categories returns the project category catalogue.
func (e *Engine) Categories() []models.Category {
	return models.Categories
}
