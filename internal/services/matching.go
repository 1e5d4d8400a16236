package services

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel/attribute"

	"github.com/solverhub/backend/internal/apperror"
	"github.com/solverhub/backend/internal/models"
)

// Apply records a solver's application to an open project.
// At most one application exists per (project, solver) pair.
func (e *Engine) Apply(ctx context.Context, actor models.Actor, projectID uuid.UUID) (app *models.Application, err error) {
	ctx, span := startSpan(ctx, "Engine.Apply", actor, attribute.String("project.id", projectID.String()))
	defer func() { endSpan(span, err) }()

	err = e.inTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		p, err := e.Projects.GetByIDForUpdate(ctx, tx, projectID)
		if err != nil {
			return err
		}
		solver, ok := actor.(models.Solver)
		if !ok {
			return apperror.Forbidden("only problem solvers can apply to projects")
		}
		if p.Status != models.ProjectStatusOpen {
			return apperror.InvalidState("project is not open for applications")
		}
		exists, err := e.Applications.Exists(ctx, tx, p.ID, solver.ID)
		if err != nil {
			return err
		}
		if exists {
			return apperror.Conflict("already applied to this project")
		}

		app = &models.Application{
			ID:          uuid.New(),
			ProjectID:   p.ID,
			SolverID:    solver.ID,
			Status:      models.ApplicationStatusPending,
			RequestedAt: e.now(),
		}
		if err := e.Applications.Create(ctx, tx, app); err != nil {
			if isUniqueViolation(err) {
				return apperror.Conflict("already applied to this project")
			}
			return err
		}
		return e.notify(ctx, tx, models.EventApplicationReceived, p.ID, p.BuyerID, app.ID)
	})
	if err != nil {
		return nil, err
	}
	e.log().Info("application created", "application_id", app.ID, "project_id", projectID)
	return app, nil
}

// lockApplication loads the application, locks its project and re-reads the
// application under that lock so its status cannot change underneath the caller.
func (e *Engine) lockApplication(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Application, *models.Project, error) {
	app, err := e.Applications.GetByID(ctx, tx, id)
	if err != nil {
		return nil, nil, err
	}
	p, err := e.Projects.GetByIDForUpdate(ctx, tx, app.ProjectID)
	if err != nil {
		return nil, nil, err
	}
	app, err = e.Applications.GetByID(ctx, tx, id)
	if err != nil {
		return nil, nil, err
	}
	return app, p, nil
}

// AcceptApplication matches the application's solver to the project. In one
// transaction it accepts the application, assigns the project, writes the
// assignment record and rejects every sibling application. A competing accept
// on the same project finds it no longer open and fails with InvalidState.
func (e *Engine) AcceptApplication(ctx context.Context, actor models.Actor, id uuid.UUID) (app *models.Application, err error) {
	ctx, span := startSpan(ctx, "Engine.AcceptApplication", actor, attribute.String("application.id", id.String()))
	defer func() { endSpan(span, err) }()

	buyer, ok := actor.(models.Buyer)
	if !ok {
		return nil, apperror.Forbidden("only buyers can accept applications")
	}
	var rejected int
	err = e.inTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		var p *models.Project
		app, p, err = e.lockApplication(ctx, tx, id)
		if err != nil {
			return err
		}
		if p.BuyerID != buyer.ID {
			return apperror.Forbidden("only the project owner can accept applications")
		}
		if p.Status != models.ProjectStatusOpen {
			return apperror.InvalidState("project is not open")
		}
		if app.Status != models.ApplicationStatusPending {
			return apperror.InvalidState("application is not pending")
		}

		now := e.now()
		app.Status = models.ApplicationStatusAccepted
		app.RespondedAt = &now
		if err := e.Applications.Update(ctx, tx, app); err != nil {
			if isUniqueViolation(err) {
				return apperror.InvalidState("project already has an accepted application")
			}
			return err
		}

		solverID := app.SolverID
		p.AssignedSolverID = &solverID
		if err := e.transitionProject(p, models.ProjectStatusAssigned); err != nil {
			return err
		}
		if err := e.Projects.Update(ctx, tx, p); err != nil {
			return err
		}

		assignment := &models.Assignment{
			ID:         uuid.New(),
			ProjectID:  p.ID,
			SolverID:   solverID,
			AssignedAt: now,
		}
		if err := e.Assignments.Create(ctx, tx, assignment); err != nil {
			if isUniqueViolation(err) {
				return apperror.InvalidState("project is already assigned")
			}
			return err
		}

		siblings, err := e.Applications.RejectPendingExcept(ctx, tx, p.ID, app.ID, now)
		if err != nil {
			return err
		}
		rejected = len(siblings)

		if err := e.notify(ctx, tx, models.EventApplicationAccepted, p.ID, solverID, app.ID); err != nil {
			return err
		}
		for _, s := range siblings {
			if err := e.notify(ctx, tx, models.EventApplicationRejected, p.ID, s.SolverID, s.ID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.log().Info("application accepted",
		"application_id", app.ID,
		"project_id", app.ProjectID,
		"solver_id", app.SolverID,
		"siblings_rejected", rejected,
	)
	return app, nil
}

// RejectApplication declines a pending application. The project status is untouched.
func (e *Engine) RejectApplication(ctx context.Context, actor models.Actor, id uuid.UUID) (app *models.Application, err error) {
	ctx, span := startSpan(ctx, "Engine.RejectApplication", actor, attribute.String("application.id", id.String()))
	defer func() { endSpan(span, err) }()

	buyer, ok := actor.(models.Buyer)
	if !ok {
		return nil, apperror.Forbidden("only buyers can reject applications")
	}
	err = e.inTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		var p *models.Project
		app, p, err = e.lockApplication(ctx, tx, id)
		if err != nil {
			return err
		}
		if p.BuyerID != buyer.ID {
			return apperror.Forbidden("only the project owner can reject applications")
		}
		if app.Status != models.ApplicationStatusPending {
			return apperror.InvalidState("application is not pending")
		}
		now := e.now()
		app.Status = models.ApplicationStatusRejected
		app.RespondedAt = &now
		if err := e.Applications.Update(ctx, tx, app); err != nil {
			return err
		}
		return e.notify(ctx, tx, models.EventApplicationRejected, p.ID, app.SolverID, app.ID)
	})
	if err != nil {
		return nil, err
	}
	return app, nil
}

// ListApplications returns a project's applications, earliest first.
func (e *Engine) ListApplications(ctx context.Context, actor models.Actor, projectID uuid.UUID) (list []*models.Application, err error) {
	ctx, span := startSpan(ctx, "Engine.ListApplications", actor, attribute.String("project.id", projectID.String()))
	defer func() { endSpan(span, err) }()

	err = e.inTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		p, err := e.Projects.GetByID(ctx, tx, projectID)
		if err != nil {
			return err
		}
		switch a := actor.(type) {
		case models.Admin:
		case models.Buyer:
			if p.BuyerID != a.ID {
				return apperror.Forbidden("only the project owner can list applications")
			}
		default:
			return apperror.Forbidden("only the project owner can list applications")
		}
		list, err = e.Applications.ListByProject(ctx, tx, projectID)
		return err
	})
	return list, err
}

// ListMyApplications returns the solver's own applications.
func (e *Engine) ListMyApplications(ctx context.Context, actor models.Actor) (list []*models.Application, err error) {
	ctx, span := startSpan(ctx, "Engine.ListMyApplications", actor)
	defer func() { endSpan(span, err) }()

	solver, ok := actor.(models.Solver)
	if !ok {
		return nil, apperror.Forbidden("only problem solvers have applications")
	}
	err = e.inTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		list, err = e.Applications.ListBySolver(ctx, tx, solver.ID)
		return err
	})
	return list, err
}
