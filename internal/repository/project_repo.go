package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/solverhub/backend/internal/models"
)

const projectColumns = `id, buyer_id, assigned_solver_id, title, description, category, budget_cents, status, created_at, updated_at`

type ProjectRepo struct {
	pool *pgxpool.Pool
}

func NewProjectRepo(pool *pgxpool.Pool) *ProjectRepo {
	return &ProjectRepo{pool: pool}
}

func scanProject(row pgx.Row) (*models.Project, error) {
	var p models.Project
	err := row.Scan(&p.ID, &p.BuyerID, &p.AssignedSolverID, &p.Title, &p.Description, &p.Category, &p.BudgetCents, &p.Status, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func scanProjectRows(rows pgx.Rows) (*models.Project, error) { return scanProject(rows) }

func (r *ProjectRepo) Create(ctx context.Context, tx pgx.Tx, p *models.Project) error {
	_, err := pick(r.pool, tx).Exec(ctx, `
		INSERT INTO projects (`+projectColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, p.ID, p.BuyerID, p.AssignedSolverID, p.Title, p.Description, p.Category, p.BudgetCents, p.Status, p.CreatedAt, p.UpdatedAt)
	return err
}

func (r *ProjectRepo) GetByID(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Project, error) {
	p, err := scanProject(pick(r.pool, tx).QueryRow(ctx, `SELECT `+projectColumns+` FROM projects WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err, "project")
	}
	return p, nil
}

// GetByIDForUpdate locks the project row for update. Call within a transaction.
func (r *ProjectRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Project, error) {
	p, err := scanProject(tx.QueryRow(ctx, `SELECT `+projectColumns+` FROM projects WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, notFound(err, "project")
	}
	return p, nil
}

func (r *ProjectRepo) Update(ctx context.Context, tx pgx.Tx, p *models.Project) error {
	tag, err := pick(r.pool, tx).Exec(ctx, `
		UPDATE projects
		SET assigned_solver_id = $2, title = $3, description = $4, category = $5, budget_cents = $6, status = $7, updated_at = $8
		WHERE id = $1
	`, p.ID, p.AssignedSolverID, p.Title, p.Description, p.Category, p.BudgetCents, p.Status, p.UpdatedAt)
	return expectOne(tag, err, "project")
}

func (r *ProjectRepo) ListByBuyer(ctx context.Context, tx pgx.Tx, buyerID uuid.UUID) ([]*models.Project, error) {
	rows, err := pick(r.pool, tx).Query(ctx, `
		SELECT `+projectColumns+` FROM projects WHERE buyer_id = $1 ORDER BY created_at DESC
	`, buyerID)
	return collect(rows, err, scanProjectRows)
}

// ListBySolver returns projects the solver has been assigned, whatever their current stage.
func (r *ProjectRepo) ListBySolver(ctx context.Context, tx pgx.Tx, solverID uuid.UUID) ([]*models.Project, error) {
	rows, err := pick(r.pool, tx).Query(ctx, `
		SELECT `+projectColumns+` FROM projects
		WHERE assigned_solver_id = $1 AND status IN ('assigned', 'in_progress', 'completed')
		ORDER BY updated_at DESC
	`, solverID)
	return collect(rows, err, scanProjectRows)
}

func (r *ProjectRepo) ListAll(ctx context.Context, tx pgx.Tx) ([]*models.Project, error) {
	rows, err := pick(r.pool, tx).Query(ctx, `SELECT `+projectColumns+` FROM projects ORDER BY created_at DESC`)
	return collect(rows, err, scanProjectRows)
}

var browseOrder = map[string]string{
	models.SortNewest: "p.created_at DESC",
	models.SortBudget: "p.budget_cents DESC, p.created_at DESC",
	models.SortTitle:  "p.title ASC, p.created_at DESC",
}

func (r *ProjectRepo) CountBySolver(ctx context.Context, tx pgx.Tx, solverID uuid.UUID) (active, completed int64, err error) {
	err = pick(r.pool, tx).QueryRow(ctx, `
		SELECT count(*) FILTER (WHERE status IN ('assigned', 'in_progress')),
		       count(*) FILTER (WHERE status = 'completed')
		FROM projects WHERE assigned_solver_id = $1
	`, solverID).Scan(&active, &completed)
	return active, completed, err
}

// browseQuery builds the marketplace listing query for f. Filter values are
// always bound as arguments; only the ORDER BY clause comes from browseOrder.
func browseQuery(f models.ProjectFilter) (string, []any) {
	order, ok := browseOrder[f.Sort]
	if !ok {
		order = browseOrder[models.SortNewest]
	}
	where := []string{"p.status = 'open'"}
	args := []any{}
	if f.Category != "" {
		args = append(args, f.Category)
		where = append(where, fmt.Sprintf("p.category = $%d", len(args)))
	}
	if f.Search != "" {
		args = append(args, "%"+escapeLike(f.Search)+"%")
		where = append(where, fmt.Sprintf("(p.title ILIKE $%d OR p.description ILIKE $%d)", len(args), len(args)))
	}
	args = append(args, f.Limit, f.Offset)
	sql := `
		SELECT p.id, p.buyer_id, p.assigned_solver_id, p.title, p.description, p.category, p.budget_cents, p.status, p.created_at, p.updated_at,
		       (SELECT count(*) FROM applications a WHERE a.project_id = p.id)
		FROM projects p
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY ` + order + fmt.Sprintf(`
		LIMIT $%d OFFSET $%d`, len(args)-1, len(args))
	return sql, args
}

// Browse lists open projects with their application counts.
func (r *ProjectRepo) Browse(ctx context.Context, tx pgx.Tx, f models.ProjectFilter) ([]*models.ProjectListing, error) {
	sql, args := browseQuery(f)
	rows, err := pick(r.pool, tx).Query(ctx, sql, args...)
	return collect(rows, err, func(rows pgx.Rows) (*models.ProjectListing, error) {
		var l models.ProjectListing
		p := &l.Project
		err := rows.Scan(&p.ID, &p.BuyerID, &p.AssignedSolverID, &p.Title, &p.Description, &p.Category, &p.BudgetCents, &p.Status, &p.CreatedAt, &p.UpdatedAt, &l.ApplicationCount)
		if err != nil {
			return nil, err
		}
		return &l, nil
	})
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
