package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/solverhub/backend/internal/models"
)

const paymentColumns = `id, project_id, solver_id, amount_cents, status, description, processor_ref, payout_ref, created_at, released_at, paid_at`

type PaymentRepo struct {
	pool *pgxpool.Pool
}

func NewPaymentRepo(pool *pgxpool.Pool) *PaymentRepo {
	return &PaymentRepo{pool: pool}
}

func scanPayment(row pgx.Row) (*models.Payment, error) {
	var p models.Payment
	err := row.Scan(&p.ID, &p.ProjectID, &p.SolverID, &p.AmountCents, &p.Status, &p.Description, &p.ProcessorRef, &p.PayoutRef, &p.CreatedAt, &p.ReleasedAt, &p.PaidAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func scanPaymentRows(rows pgx.Rows) (*models.Payment, error) { return scanPayment(rows) }

// Create inserts the payment. A second pending payment for a project fails with a unique violation.
func (r *PaymentRepo) Create(ctx context.Context, tx pgx.Tx, p *models.Payment) error {
	_, err := pick(r.pool, tx).Exec(ctx, `
		INSERT INTO payments (`+paymentColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, p.ID, p.ProjectID, p.SolverID, p.AmountCents, p.Status, p.Description, p.ProcessorRef, p.PayoutRef, p.CreatedAt, p.ReleasedAt, p.PaidAt)
	return err
}

func (r *PaymentRepo) GetByID(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Payment, error) {
	p, err := scanPayment(pick(r.pool, tx).QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err, "payment")
	}
	return p, nil
}

func (r *PaymentRepo) Update(ctx context.Context, tx pgx.Tx, p *models.Payment) error {
	tag, err := pick(r.pool, tx).Exec(ctx, `
		UPDATE payments
		SET status = $2, processor_ref = $3, payout_ref = $4, released_at = $5, paid_at = $6
		WHERE id = $1
	`, p.ID, p.Status, p.ProcessorRef, p.PayoutRef, p.ReleasedAt, p.PaidAt)
	return expectOne(tag, err, "payment")
}

// Delete removes a pending payment. Released or paid payments are never deleted.
func (r *PaymentRepo) Delete(ctx context.Context, tx pgx.Tx, id uuid.UUID) error {
	tag, err := pick(r.pool, tx).Exec(ctx, `DELETE FROM payments WHERE id = $1 AND status = 'pending'`, id)
	return expectOne(tag, err, "payment")
}

func (r *PaymentRepo) HasPending(ctx context.Context, tx pgx.Tx, projectID uuid.UUID) (bool, error) {
	var exists bool
	err := pick(r.pool, tx).QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM payments WHERE project_id = $1 AND status = 'pending')
	`, projectID).Scan(&exists)
	return exists, err
}

func (r *PaymentRepo) ListByProject(ctx context.Context, tx pgx.Tx, projectID uuid.UUID) ([]*models.Payment, error) {
	rows, err := pick(r.pool, tx).Query(ctx, `
		SELECT `+paymentColumns+` FROM payments WHERE project_id = $1 ORDER BY created_at DESC
	`, projectID)
	return collect(rows, err, scanPaymentRows)
}

func (r *PaymentRepo) ListBySolver(ctx context.Context, tx pgx.Tx, solverID uuid.UUID) ([]*models.Payment, error) {
	rows, err := pick(r.pool, tx).Query(ctx, `
		SELECT `+paymentColumns+` FROM payments WHERE solver_id = $1 ORDER BY created_at DESC
	`, solverID)
	return collect(rows, err, scanPaymentRows)
}
