package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/solverhub/backend/internal/models"
)

const taskColumns = `id, project_id, solver_id, title, description, status, deadline, created_at, updated_at`

type TaskRepo struct {
	pool *pgxpool.Pool
}

func NewTaskRepo(pool *pgxpool.Pool) *TaskRepo {
	return &TaskRepo{pool: pool}
}

func scanTask(row pgx.Row) (*models.Task, error) {
	var t models.Task
	if err := row.Scan(&t.ID, &t.ProjectID, &t.SolverID, &t.Title, &t.Description, &t.Status, &t.Deadline, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *TaskRepo) Create(ctx context.Context, tx pgx.Tx, t *models.Task) error {
	_, err := pick(r.pool, tx).Exec(ctx, `
		INSERT INTO tasks (`+taskColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, t.ID, t.ProjectID, t.SolverID, t.Title, t.Description, t.Status, t.Deadline, t.CreatedAt, t.UpdatedAt)
	return err
}

func (r *TaskRepo) GetByID(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Task, error) {
	t, err := scanTask(pick(r.pool, tx).QueryRow(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err, "task")
	}
	return t, nil
}

func (r *TaskRepo) Update(ctx context.Context, tx pgx.Tx, t *models.Task) error {
	tag, err := pick(r.pool, tx).Exec(ctx, `
		UPDATE tasks SET title = $2, description = $3, status = $4, deadline = $5, updated_at = $6
		WHERE id = $1
	`, t.ID, t.Title, t.Description, t.Status, t.Deadline, t.UpdatedAt)
	return expectOne(tag, err, "task")
}

func (r *TaskRepo) ListByProject(ctx context.Context, tx pgx.Tx, projectID uuid.UUID) ([]*models.Task, error) {
	rows, err := pick(r.pool, tx).Query(ctx, `
		SELECT `+taskColumns+` FROM tasks WHERE project_id = $1 ORDER BY created_at ASC
	`, projectID)
	return collect(rows, err, func(rows pgx.Rows) (*models.Task, error) { return scanTask(rows) })
}

const submissionColumns = `id, task_id, project_id, solver_id, artifact_ref, file_name, status, rejection_reason, submitted_at, reviewed_at`

type SubmissionRepo struct {
	pool *pgxpool.Pool
}

func NewSubmissionRepo(pool *pgxpool.Pool) *SubmissionRepo {
	return &SubmissionRepo{pool: pool}
}

func scanSubmission(row pgx.Row) (*models.Submission, error) {
	var s models.Submission
	err := row.Scan(&s.ID, &s.TaskID, &s.ProjectID, &s.SolverID, &s.ArtifactRef, &s.FileName, &s.Status, &s.RejectionReason, &s.SubmittedAt, &s.ReviewedAt)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// Create inserts the submission. A second pending submission for a task fails with a unique violation.
func (r *SubmissionRepo) Create(ctx context.Context, tx pgx.Tx, s *models.Submission) error {
	_, err := pick(r.pool, tx).Exec(ctx, `
		INSERT INTO submissions (`+submissionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, s.ID, s.TaskID, s.ProjectID, s.SolverID, s.ArtifactRef, s.FileName, s.Status, s.RejectionReason, s.SubmittedAt, s.ReviewedAt)
	return err
}

func (r *SubmissionRepo) GetByID(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Submission, error) {
	s, err := scanSubmission(pick(r.pool, tx).QueryRow(ctx, `SELECT `+submissionColumns+` FROM submissions WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err, "submission")
	}
	return s, nil
}

func (r *SubmissionRepo) Update(ctx context.Context, tx pgx.Tx, s *models.Submission) error {
	tag, err := pick(r.pool, tx).Exec(ctx, `
		UPDATE submissions SET status = $2, rejection_reason = $3, reviewed_at = $4 WHERE id = $1
	`, s.ID, s.Status, s.RejectionReason, s.ReviewedAt)
	return expectOne(tag, err, "submission")
}

func (r *SubmissionRepo) HasPending(ctx context.Context, tx pgx.Tx, taskID uuid.UUID) (bool, error) {
	var exists bool
	err := pick(r.pool, tx).QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM submissions WHERE task_id = $1 AND status = 'pending')
	`, taskID).Scan(&exists)
	return exists, err
}

func (r *SubmissionRepo) ListByProject(ctx context.Context, tx pgx.Tx, projectID uuid.UUID) ([]*models.Submission, error) {
	rows, err := pick(r.pool, tx).Query(ctx, `
		SELECT `+submissionColumns+` FROM submissions WHERE project_id = $1 ORDER BY submitted_at DESC
	`, projectID)
	return collect(rows, err, func(rows pgx.Rows) (*models.Submission, error) { return scanSubmission(rows) })
}
