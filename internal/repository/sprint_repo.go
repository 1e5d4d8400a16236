package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/solverhub/backend/internal/models"
)

const sprintColumns = `id, project_id, title, description, start_date, end_date, sort_order, created_at, updated_at`

type SprintRepo struct {
	pool *pgxpool.Pool
}

func NewSprintRepo(pool *pgxpool.Pool) *SprintRepo {
	return &SprintRepo{pool: pool}
}

func scanSprint(row pgx.Row) (*models.Sprint, error) {
	var s models.Sprint
	err := row.Scan(&s.ID, &s.ProjectID, &s.Title, &s.Description, &s.StartDate, &s.EndDate, &s.Order, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func scanSprintRows(rows pgx.Rows) (*models.Sprint, error) { return scanSprint(rows) }

func (r *SprintRepo) Create(ctx context.Context, tx pgx.Tx, s *models.Sprint) error {
	_, err := pick(r.pool, tx).Exec(ctx, `
		INSERT INTO sprints (`+sprintColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, s.ID, s.ProjectID, s.Title, s.Description, s.StartDate, s.EndDate, s.Order, s.CreatedAt, s.UpdatedAt)
	return err
}

func (r *SprintRepo) GetByID(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Sprint, error) {
	s, err := scanSprint(pick(r.pool, tx).QueryRow(ctx, `SELECT `+sprintColumns+` FROM sprints WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err, "sprint")
	}
	return s, nil
}

func (r *SprintRepo) Update(ctx context.Context, tx pgx.Tx, s *models.Sprint) error {
	tag, err := pick(r.pool, tx).Exec(ctx, `
		UPDATE sprints
		SET title = $2, description = $3, start_date = $4, end_date = $5, sort_order = $6, updated_at = $7
		WHERE id = $1
	`, s.ID, s.Title, s.Description, s.StartDate, s.EndDate, s.Order, s.UpdatedAt)
	return expectOne(tag, err, "sprint")
}

// Delete removes the sprint; its features go with it through ON DELETE CASCADE.
func (r *SprintRepo) Delete(ctx context.Context, tx pgx.Tx, id uuid.UUID) error {
	tag, err := pick(r.pool, tx).Exec(ctx, `DELETE FROM sprints WHERE id = $1`, id)
	return expectOne(tag, err, "sprint")
}

func (r *SprintRepo) ListByProject(ctx context.Context, tx pgx.Tx, projectID uuid.UUID) ([]*models.Sprint, error) {
	rows, err := pick(r.pool, tx).Query(ctx, `
		SELECT `+sprintColumns+` FROM sprints WHERE project_id = $1 ORDER BY sort_order, created_at
	`, projectID)
	return collect(rows, err, scanSprintRows)
}

const featureColumns = `id, project_id, sprint_id, title, description, status, priority, assignee_id, estimated_hours, sort_order, created_at, updated_at`

type FeatureRepo struct {
	pool *pgxpool.Pool
}

func NewFeatureRepo(pool *pgxpool.Pool) *FeatureRepo {
	return &FeatureRepo{pool: pool}
}

func scanFeature(row pgx.Row) (*models.Feature, error) {
	var f models.Feature
	err := row.Scan(&f.ID, &f.ProjectID, &f.SprintID, &f.Title, &f.Description, &f.Status, &f.Priority, &f.AssigneeID, &f.EstimatedHours, &f.Order, &f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &f, nil
}

func scanFeatureRows(rows pgx.Rows) (*models.Feature, error) { return scanFeature(rows) }

func (r *FeatureRepo) Create(ctx context.Context, tx pgx.Tx, f *models.Feature) error {
	_, err := pick(r.pool, tx).Exec(ctx, `
		INSERT INTO features (`+featureColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, f.ID, f.ProjectID, f.SprintID, f.Title, f.Description, f.Status, f.Priority, f.AssigneeID, f.EstimatedHours, f.Order, f.CreatedAt, f.UpdatedAt)
	return err
}

func (r *FeatureRepo) GetByID(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Feature, error) {
	f, err := scanFeature(pick(r.pool, tx).QueryRow(ctx, `SELECT `+featureColumns+` FROM features WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err, "feature")
	}
	return f, nil
}

func (r *FeatureRepo) Update(ctx context.Context, tx pgx.Tx, f *models.Feature) error {
	tag, err := pick(r.pool, tx).Exec(ctx, `
		UPDATE features
		SET sprint_id = $2, title = $3, description = $4, status = $5, priority = $6,
		    assignee_id = $7, estimated_hours = $8, sort_order = $9, updated_at = $10
		WHERE id = $1
	`, f.ID, f.SprintID, f.Title, f.Description, f.Status, f.Priority, f.AssigneeID, f.EstimatedHours, f.Order, f.UpdatedAt)
	return expectOne(tag, err, "feature")
}

func (r *FeatureRepo) Delete(ctx context.Context, tx pgx.Tx, id uuid.UUID) error {
	tag, err := pick(r.pool, tx).Exec(ctx, `DELETE FROM features WHERE id = $1`, id)
	return expectOne(tag, err, "feature")
}

func (r *FeatureRepo) ListByProject(ctx context.Context, tx pgx.Tx, projectID uuid.UUID) ([]*models.Feature, error) {
	rows, err := pick(r.pool, tx).Query(ctx, `
		SELECT `+featureColumns+` FROM features WHERE project_id = $1 ORDER BY sort_order, created_at
	`, projectID)
	return collect(rows, err, scanFeatureRows)
}
