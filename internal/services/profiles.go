package services

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"

	"github.com/solverhub/backend/internal/apperror"
	"github.com/solverhub/backend/internal/models"
)

var hundred = decimal.NewFromInt(100)

// acceptanceRate is accepted/total as a percentage rounded to one decimal.
func acceptanceRate(accepted, total int64) float64 {
	if total == 0 {
		return 0
	}
	return decimal.NewFromInt(accepted).Mul(hundred).Div(decimal.NewFromInt(total)).Round(1).InexactFloat64()
}

// SolverProfile returns a solver's public profile and track record to any
// authenticated caller.
func (e *Engine) SolverProfile(ctx context.Context, actor models.Actor, solverID uuid.UUID) (prof *models.SolverProfile, err error) {
	ctx, span := startSpan(ctx, "Engine.SolverProfile", actor, attribute.String("solver.id", solverID.String()))
	defer func() { endSpan(span, err) }()

	if actor == nil {
		return nil, apperror.Unauthorized("authentication required")
	}
	u, err := e.Users.GetByID(ctx, solverID)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.NotFound("solver")
		}
		return nil, err
	}
	if u.Role != models.RoleSolver {
		return nil, apperror.NotFound("solver")
	}

	prof = &models.SolverProfile{
		ID:        u.ID,
		FullName:  u.FullName,
		Email:     u.Email,
		Role:      u.Role,
		IsActive:  u.IsActive,
		CreatedAt: u.CreatedAt,
	}
	st := &prof.Statistics
	err = e.inTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		var err error
		st.TotalApplications, st.AcceptedApplications, err = e.Applications.CountBySolver(ctx, tx, solverID)
		if err != nil {
			return err
		}
		st.ActiveProjects, st.CompletedProjects, err = e.Projects.CountBySolver(ctx, tx, solverID)
		return err
	})
	if err != nil {
		return nil, err
	}
	st.AcceptanceRate = acceptanceRate(st.AcceptedApplications, st.TotalApplications)
	return prof, nil
}
