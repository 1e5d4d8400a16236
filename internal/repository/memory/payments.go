package memory

import (
	"context"
	"slices"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/solverhub/backend/internal/apperror"
	"github.com/solverhub/backend/internal/models"
)

type PaymentRepo struct{ s *Store }

// checkPending enforces one pending payment per project. Callers hold s.mu.
func (r *PaymentRepo) checkPending(p *models.Payment) error {
	if p.Status != models.PaymentStatusPending {
		return nil
	}
	for id, other := range r.s.payments {
		if id != p.ID && other.ProjectID == p.ProjectID && other.Status == models.PaymentStatusPending {
			return uniqueViolation("payments_one_pending_idx")
		}
	}
	return nil
}

func (r *PaymentRepo) Create(_ context.Context, tx pgx.Tx, p *models.Payment) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.payments[p.ID]; ok {
		return uniqueViolation("payments_pkey")
	}
	if err := r.checkPending(p); err != nil {
		return err
	}
	s.payments[p.ID] = *p
	s.stamp(p.ID)
	s.track(tx, func() { delete(s.payments, p.ID) })
	return nil
}

func (r *PaymentRepo) GetByID(_ context.Context, _ pgx.Tx, id uuid.UUID) (*models.Payment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.payments[id]
	if !ok {
		return nil, apperror.NotFound("payment")
	}
	return &p, nil
}

func (r *PaymentRepo) Update(_ context.Context, tx pgx.Tx, p *models.Payment) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	old, ok := s.payments[p.ID]
	if !ok {
		return apperror.NotFound("payment")
	}
	if err := r.checkPending(p); err != nil {
		return err
	}
	upd := old
	upd.Status = p.Status
	upd.ProcessorRef = p.ProcessorRef
	upd.PayoutRef = p.PayoutRef
	upd.ReleasedAt = p.ReleasedAt
	upd.PaidAt = p.PaidAt
	s.payments[p.ID] = upd
	s.track(tx, func() { s.payments[p.ID] = old })
	return nil
}

// Delete removes a pending payment. Any other status reports NotFound.
func (r *PaymentRepo) Delete(_ context.Context, tx pgx.Tx, id uuid.UUID) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	old, ok := s.payments[id]
	if !ok || old.Status != models.PaymentStatusPending {
		return apperror.NotFound("payment")
	}
	delete(s.payments, id)
	s.track(tx, func() { s.payments[id] = old })
	return nil
}

func (r *PaymentRepo) HasPending(_ context.Context, _ pgx.Tx, projectID uuid.UUID) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, p := range r.s.payments {
		if p.ProjectID == projectID && p.Status == models.PaymentStatusPending {
			return true, nil
		}
	}
	return false, nil
}

func (r *PaymentRepo) list(keep func(models.Payment) bool) []*models.Payment {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	var list []*models.Payment
	for _, p := range s.payments {
		if keep(p) {
			list = append(list, &p)
		}
	}
	slices.SortFunc(list, func(a, b *models.Payment) int {
		return s.order(a.CreatedAt, b.CreatedAt, a.ID, b.ID, true)
	})
	return list
}

func (r *PaymentRepo) ListByProject(_ context.Context, _ pgx.Tx, projectID uuid.UUID) ([]*models.Payment, error) {
	return r.list(func(p models.Payment) bool { return p.ProjectID == projectID }), nil
}

func (r *PaymentRepo) ListBySolver(_ context.Context, _ pgx.Tx, solverID uuid.UUID) ([]*models.Payment, error) {
	return r.list(func(p models.Payment) bool { return p.SolverID == solverID }), nil
}

// LedgerRepo is the in-memory payment event log.
type LedgerRepo struct{ s *Store }

func (r *LedgerRepo) Record(_ context.Context, tx pgx.Tx, e *models.PaymentEvent) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.events[e.ID]; ok {
		return uniqueViolation("payment_events_pkey")
	}
	s.events[e.ID] = *e
	s.stamp(e.ID)
	s.track(tx, func() { delete(s.events, e.ID) })
	return nil
}

func (r *LedgerRepo) ListByProject(_ context.Context, _ pgx.Tx, projectID uuid.UUID) ([]*models.PaymentEvent, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	var list []*models.PaymentEvent
	for _, e := range s.events {
		if e.ProjectID == projectID {
			list = append(list, &e)
		}
	}
	slices.SortFunc(list, func(a, b *models.PaymentEvent) int {
		return s.order(a.CreatedAt, b.CreatedAt, a.ID, b.ID, false)
	})
	return list, nil
}
