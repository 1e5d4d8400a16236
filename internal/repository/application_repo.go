package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/solverhub/backend/internal/models"
)

const applicationColumns = `id, project_id, solver_id, status, requested_at, responded_at`

type ApplicationRepo struct {
	pool *pgxpool.Pool
}

func NewApplicationRepo(pool *pgxpool.Pool) *ApplicationRepo {
	return &ApplicationRepo{pool: pool}
}

func scanApplication(row pgx.Row) (*models.Application, error) {
	var a models.Application
	if err := row.Scan(&a.ID, &a.ProjectID, &a.SolverID, &a.Status, &a.RequestedAt, &a.RespondedAt); err != nil {
		return nil, err
	}
	return &a, nil
}

func scanApplicationRows(rows pgx.Rows) (*models.Application, error) { return scanApplication(rows) }

// Create inserts the application. A duplicate (project, solver) pair fails with a unique violation.
func (r *ApplicationRepo) Create(ctx context.Context, tx pgx.Tx, a *models.Application) error {
	_, err := pick(r.pool, tx).Exec(ctx, `
		INSERT INTO applications (`+applicationColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, a.ID, a.ProjectID, a.SolverID, a.Status, a.RequestedAt, a.RespondedAt)
	return err
}

func (r *ApplicationRepo) GetByID(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Application, error) {
	a, err := scanApplication(pick(r.pool, tx).QueryRow(ctx, `SELECT `+applicationColumns+` FROM applications WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err, "application")
	}
	return a, nil
}

func (r *ApplicationRepo) Exists(ctx context.Context, tx pgx.Tx, projectID, solverID uuid.UUID) (bool, error) {
	var exists bool
	err := pick(r.pool, tx).QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM applications WHERE project_id = $1 AND solver_id = $2)
	`, projectID, solverID).Scan(&exists)
	return exists, err
}

func (r *ApplicationRepo) Update(ctx context.Context, tx pgx.Tx, a *models.Application) error {
	tag, err := pick(r.pool, tx).Exec(ctx, `
		UPDATE applications SET status = $2, responded_at = $3 WHERE id = $1
	`, a.ID, a.Status, a.RespondedAt)
	return expectOne(tag, err, "application")
}

// RejectPendingExcept rejects all other pending applications of the project in one statement.
func (r *ApplicationRepo) RejectPendingExcept(ctx context.Context, tx pgx.Tx, projectID, keepID uuid.UUID, at time.Time) ([]*models.Application, error) {
	rows, err := pick(r.pool, tx).Query(ctx, `
		UPDATE applications SET status = 'rejected', responded_at = $3
		WHERE project_id = $1 AND id <> $2 AND status = 'pending'
		RETURNING `+applicationColumns,
		projectID, keepID, at)
	return collect(rows, err, scanApplicationRows)
}

func (r *ApplicationRepo) ListByProject(ctx context.Context, tx pgx.Tx, projectID uuid.UUID) ([]*models.Application, error) {
	rows, err := pick(r.pool, tx).Query(ctx, `
		SELECT `+applicationColumns+` FROM applications WHERE project_id = $1 ORDER BY requested_at ASC, id ASC
	`, projectID)
	return collect(rows, err, scanApplicationRows)
}

func (r *ApplicationRepo) ListBySolver(ctx context.Context, tx pgx.Tx, solverID uuid.UUID) ([]*models.Application, error) {
	rows, err := pick(r.pool, tx).Query(ctx, `
		SELECT `+applicationColumns+` FROM applications WHERE solver_id = $1 ORDER BY requested_at DESC
	`, solverID)
	return collect(rows, err, scanApplicationRows)
}

func (r *ApplicationRepo) CountBySolver(ctx context.Context, tx pgx.Tx, solverID uuid.UUID) (total, accepted int64, err error) {
	err = pick(r.pool, tx).QueryRow(ctx, `
		SELECT count(*), count(*) FILTER (WHERE status = 'accepted')
		FROM applications WHERE solver_id = $1
	`, solverID).Scan(&total, &accepted)
	return total, accepted, err
}

type AssignmentRepo struct {
	pool *pgxpool.Pool
}

func NewAssignmentRepo(pool *pgxpool.Pool) *AssignmentRepo {
	return &AssignmentRepo{pool: pool}
}

func (r *AssignmentRepo) Create(ctx context.Context, tx pgx.Tx, a *models.Assignment) error {
	_, err := pick(r.pool, tx).Exec(ctx, `
		INSERT INTO assignments (id, project_id, solver_id, assigned_at, completed_at)
		VALUES ($1, $2, $3, $4, $5)
	`, a.ID, a.ProjectID, a.SolverID, a.AssignedAt, a.CompletedAt)
	return err
}

func (r *AssignmentRepo) GetByProject(ctx context.Context, tx pgx.Tx, projectID uuid.UUID) (*models.Assignment, error) {
	var a models.Assignment
	err := pick(r.pool, tx).QueryRow(ctx, `
		SELECT id, project_id, solver_id, assigned_at, completed_at FROM assignments WHERE project_id = $1
	`, projectID).Scan(&a.ID, &a.ProjectID, &a.SolverID, &a.AssignedAt, &a.CompletedAt)
	if err != nil {
		return nil, notFound(err, "assignment")
	}
	return &a, nil
}

// MarkCompleted stamps completed_at; it is the only update an assignment ever receives.
func (r *AssignmentRepo) MarkCompleted(ctx context.Context, tx pgx.Tx, projectID uuid.UUID, at time.Time) error {
	tag, err := pick(r.pool, tx).Exec(ctx, `
		UPDATE assignments SET completed_at = $2 WHERE project_id = $1 AND completed_at IS NULL
	`, projectID, at)
	return expectOne(tag, err, "assignment")
}
