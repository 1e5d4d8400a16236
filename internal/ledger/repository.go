package ledger

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/solverhub/backend/internal/models"
)

const eventColumns = `id, payment_id, project_id, actor_id, kind, amount_cents, reason, external_ref, created_at`

// Repository stores payment events. Rows are inserted and never updated.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Record runs inside the caller's transaction, so an event exists only if the
// payment transition it describes commits.
func (r *Repository) Record(ctx context.Context, tx pgx.Tx, e *models.PaymentEvent) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO payment_events (`+eventColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, e.ID, e.PaymentID, e.ProjectID, e.ActorID, e.Kind, e.AmountCents, e.Reason, e.ExternalRef, e.CreatedAt)
	return err
}

// ListByProject returns the project's payment history, oldest first.
func (r *Repository) ListByProject(ctx context.Context, tx pgx.Tx, projectID uuid.UUID) ([]*models.PaymentEvent, error) {
	var (
		rows pgx.Rows
		err  error
	)
	q := `SELECT ` + eventColumns + ` FROM payment_events WHERE project_id = $1 ORDER BY created_at ASC, id ASC`
	if tx != nil {
		rows, err = tx.Query(ctx, q, projectID)
	} else {
		rows, err = r.pool.Query(ctx, q, projectID)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*models.PaymentEvent
	for rows.Next() {
		var e models.PaymentEvent
		if err := rows.Scan(&e.ID, &e.PaymentID, &e.ProjectID, &e.ActorID, &e.Kind, &e.AmountCents, &e.Reason, &e.ExternalRef, &e.CreatedAt); err != nil {
			return nil, err
		}
		events = append(events, &e)
	}
	return events, rows.Err()
}
