package ledger

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/solverhub/backend/internal/models"
)

// Store is the persistence the ledger service needs; Repository and the
// in-memory store both satisfy it.
type Store interface {
	Record(ctx context.Context, tx pgx.Tx, e *models.PaymentEvent) error
	ListByProject(ctx context.Context, tx pgx.Tx, projectID uuid.UUID) ([]*models.PaymentEvent, error)
}

type Service interface {
	Record(ctx context.Context, tx pgx.Tx, e *models.PaymentEvent) error
	ListByProject(ctx context.Context, tx pgx.Tx, projectID uuid.UUID) ([]*models.PaymentEvent, error)
}

type service struct {
	store Store
}

func NewService(store Store) Service {
	return &service{store: store}
}

var _ Service = (*service)(nil)

var errMissingTx = errors.New("ledger: record requires a transaction")

func validKind(kind string) bool {
	switch kind {
	case models.PaymentEventRequested, models.PaymentEventApproved, models.PaymentEventRejected, models.PaymentEventPaid:
		return true
	}
	return false
}

func (s *service) Record(ctx context.Context, tx pgx.Tx, e *models.PaymentEvent) error {
	if tx == nil {
		return errMissingTx
	}
	if !validKind(e.Kind) {
		return errors.New("ledger: unknown event kind " + e.Kind)
	}
	return s.store.Record(ctx, tx, e)
}

func (s *service) ListByProject(ctx context.Context, tx pgx.Tx, projectID uuid.UUID) ([]*models.PaymentEvent, error) {
	return s.store.ListByProject(ctx, tx, projectID)
}
