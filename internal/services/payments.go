package services

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel/attribute"

	"github.com/solverhub/backend/internal/apperror"
	"github.com/solverhub/backend/internal/models"
)

func payable(p *models.Project) bool {
	return p.Status == models.ProjectStatusAssigned || p.Status == models.ProjectStatusInProgress
}

// RequestCompletionPayment opens a payment claim for the project's full budget.
// A project has at most one pending payment at a time.
func (e *Engine) RequestCompletionPayment(ctx context.Context, actor models.Actor, projectID uuid.UUID, description string) (pay *models.Payment, err error) {
	ctx, span := startSpan(ctx, "Engine.RequestCompletionPayment", actor, attribute.String("project.id", projectID.String()))
	defer func() { endSpan(span, err) }()

	solver, ok := actor.(models.Solver)
	if !ok {
		return nil, apperror.Forbidden("only the assigned solver can request payment")
	}
	err = e.inTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		p, err := e.Projects.GetByIDForUpdate(ctx, tx, projectID)
		if err != nil {
			return err
		}
		if !p.IsAssignedTo(solver.ID) {
			return apperror.Forbidden("only the assigned solver can request payment")
		}
		if !payable(p) {
			return apperror.InvalidState("project is not awaiting payment")
		}
		pending, err := e.Payments.HasPending(ctx, tx, p.ID)
		if err != nil {
			return err
		}
		if pending {
			return apperror.Conflict("a payment request is already pending for this project")
		}

		pay = &models.Payment{
			ID:          uuid.New(),
			ProjectID:   p.ID,
			SolverID:    solver.ID,
			AmountCents: p.BudgetCents,
			Status:      models.PaymentStatusPending,
			Description: strings.TrimSpace(description),
			CreatedAt:   e.now(),
		}
		if err := e.Payments.Create(ctx, tx, pay); err != nil {
			if isUniqueViolation(err) {
				return apperror.Conflict("a payment request is already pending for this project")
			}
			return err
		}
		if err := e.record(ctx, tx, pay, solver.ID, models.PaymentEventRequested, nil, nil); err != nil {
			return err
		}
		return e.notify(ctx, tx, models.EventPaymentRequested, p.ID, p.BuyerID, pay.ID)
	})
	if err != nil {
		return nil, err
	}
	e.log().Info("payment requested", "payment_id", pay.ID, "project_id", projectID, "amount_cents", pay.AmountCents)
	return pay, nil
}

// lockPayment loads the payment, locks its project and re-reads the payment under the lock.
func (e *Engine) lockPayment(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Payment, *models.Project, error) {
	pay, err := e.Payments.GetByID(ctx, tx, id)
	if err != nil {
		return nil, nil, err
	}
	p, err := e.Projects.GetByIDForUpdate(ctx, tx, pay.ProjectID)
	if err != nil {
		return nil, nil, err
	}
	pay, err = e.Payments.GetByID(ctx, tx, id)
	if err != nil {
		return nil, nil, err
	}
	return pay, p, nil
}

// ApprovePayment charges the buyer, releases the payment and completes the
// project in one transaction. A failed charge leaves the payment pending.
func (e *Engine) ApprovePayment(ctx context.Context, actor models.Actor, id uuid.UUID) (pay *models.Payment, err error) {
	ctx, span := startSpan(ctx, "Engine.ApprovePayment", actor, attribute.String("payment.id", id.String()))
	defer func() { endSpan(span, err) }()

	buyer, ok := actor.(models.Buyer)
	if !ok {
		return nil, apperror.Forbidden("only the project owner can approve payments")
	}
	err = e.inTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		var p *models.Project
		pay, p, err = e.lockPayment(ctx, tx, id)
		if err != nil {
			return err
		}
		if p.BuyerID != buyer.ID {
			return apperror.Forbidden("only the project owner can approve payments")
		}
		if pay.Status != models.PaymentStatusPending {
			return apperror.InvalidState("payment is not pending")
		}
		if !payable(p) {
			return apperror.InvalidState("project is not awaiting payment")
		}

		ref, err := e.Settlement.Charge(ctx, pay.ID.String(), pay.AmountCents)
		if err != nil {
			return apperror.External("payment processor charge failed", err)
		}

		now := e.now()
		pay.Status = models.PaymentStatusReleased
		pay.ReleasedAt = &now
		pay.ProcessorRef = &ref
		if err := e.Payments.Update(ctx, tx, pay); err != nil {
			return err
		}
		if err := e.transitionProject(p, models.ProjectStatusCompleted); err != nil {
			return err
		}
		if err := e.Projects.Update(ctx, tx, p); err != nil {
			return err
		}
		if err := e.Assignments.MarkCompleted(ctx, tx, p.ID, now); err != nil {
			return err
		}
		if err := e.record(ctx, tx, pay, buyer.ID, models.PaymentEventApproved, nil, &ref); err != nil {
			return err
		}
		return e.notify(ctx, tx, models.EventPaymentApproved, p.ID, pay.SolverID, pay.ID)
	})
	if err != nil {
		return nil, err
	}
	e.log().Info("payment released", "payment_id", pay.ID, "project_id", pay.ProjectID)
	return pay, nil
}

// RejectPayment deletes a pending payment so the solver may request again.
// The rejection and its reason stay in the payment ledger.
func (e *Engine) RejectPayment(ctx context.Context, actor models.Actor, id uuid.UUID, reason string) (pay *models.Payment, err error) {
	ctx, span := startSpan(ctx, "Engine.RejectPayment", actor, attribute.String("payment.id", id.String()))
	defer func() { endSpan(span, err) }()

	buyer, ok := actor.(models.Buyer)
	if !ok {
		return nil, apperror.Forbidden("only the project owner can reject payments")
	}
	reason = strings.TrimSpace(reason)
	err = e.inTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		var p *models.Project
		pay, p, err = e.lockPayment(ctx, tx, id)
		if err != nil {
			return err
		}
		if p.BuyerID != buyer.ID {
			return apperror.Forbidden("only the project owner can reject payments")
		}
		if pay.Status != models.PaymentStatusPending {
			return apperror.InvalidState("payment is not pending")
		}
		if err := e.Payments.Delete(ctx, tx, pay.ID); err != nil {
			return err
		}
		var why *string
		if reason != "" {
			why = &reason
		}
		if err := e.record(ctx, tx, pay, buyer.ID, models.PaymentEventRejected, why, nil); err != nil {
			return err
		}
		return e.notify(ctx, tx, models.EventPaymentRejected, p.ID, pay.SolverID, pay.ID)
	})
	if err != nil {
		return nil, err
	}
	e.log().Info("payment rejected", "payment_id", pay.ID, "project_id", pay.ProjectID)
	return pay, nil
}

// CreatePayout sends a released payment to the solver's destination. A failed
// payout leaves the payment released so the call can be retried.
func (e *Engine) CreatePayout(ctx context.Context, actor models.Actor, id uuid.UUID, destination string) (pay *models.Payment, err error) {
	ctx, span := startSpan(ctx, "Engine.CreatePayout", actor, attribute.String("payment.id", id.String()))
	defer func() { endSpan(span, err) }()

	solver, ok := actor.(models.Solver)
	if !ok {
		return nil, apperror.Forbidden("only the payment owner can request a payout")
	}
	destination = strings.TrimSpace(destination)
	if destination == "" {
		return nil, apperror.Validation("destination is required")
	}
	err = e.inTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		var p *models.Project
		pay, p, err = e.lockPayment(ctx, tx, id)
		if err != nil {
			return err
		}
		if pay.SolverID != solver.ID {
			return apperror.Forbidden("only the payment owner can request a payout")
		}
		if pay.Status != models.PaymentStatusReleased {
			return apperror.InvalidState("payment is not released")
		}

		ref, err := e.Settlement.Payout(ctx, pay.ID.String(), pay.AmountCents, destination)
		if err != nil {
			return apperror.External("payout failed", err)
		}

		now := e.now()
		pay.Status = models.PaymentStatusPaid
		pay.PaidAt = &now
		pay.PayoutRef = &ref
		if err := e.Payments.Update(ctx, tx, pay); err != nil {
			return err
		}
		if err := e.record(ctx, tx, pay, solver.ID, models.PaymentEventPaid, nil, &ref); err != nil {
			return err
		}
		return e.notify(ctx, tx, models.EventPaymentPaid, p.ID, p.BuyerID, pay.ID)
	})
	if err != nil {
		return nil, err
	}
	e.log().Info("payout completed", "payment_id", pay.ID, "project_id", pay.ProjectID)
	return pay, nil
}

// ListPayments returns a project's payments to its buyer, its solver or an admin.
func (e *Engine) ListPayments(ctx context.Context, actor models.Actor, projectID uuid.UUID) (list []*models.Payment, err error) {
	ctx, span := startSpan(ctx, "Engine.ListPayments", actor, attribute.String("project.id", projectID.String()))
	defer func() { endSpan(span, err) }()

	err = e.inTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		if _, err := e.followProject(ctx, tx, actor, projectID); err != nil {
			return err
		}
		list, err = e.Payments.ListByProject(ctx, tx, projectID)
		return err
	})
	return list, err
}

// PaymentHistory returns the project's payment ledger, including rejected requests.
func (e *Engine) PaymentHistory(ctx context.Context, actor models.Actor, projectID uuid.UUID) (list []*models.PaymentEvent, err error) {
	ctx, span := startSpan(ctx, "Engine.PaymentHistory", actor, attribute.String("project.id", projectID.String()))
	defer func() { endSpan(span, err) }()

	err = e.inTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		if _, err := e.followProject(ctx, tx, actor, projectID); err != nil {
			return err
		}
		list, err = e.Ledger.ListByProject(ctx, tx, projectID)
		return err
	})
	return list, err
}

// ListMyPayments returns the solver's payments.
func (e *Engine) ListMyPayments(ctx context.Context, actor models.Actor) (list []*models.Payment, err error) {
	ctx, span := startSpan(ctx, "Engine.ListMyPayments", actor)
	defer func() { endSpan(span, err) }()

	solver, ok := actor.(models.Solver)
	if !ok {
		return nil, apperror.Forbidden("only problem solvers receive payments")
	}
	err = e.inTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		list, err = e.Payments.ListBySolver(ctx, tx, solver.ID)
		return err
	})
	return list, err
}

// PaymentStats summarises the solver's payments. Pending covers every payment
// not yet paid out.
func (e *Engine) PaymentStats(ctx context.Context, actor models.Actor) (*models.PaymentStats, error) {
	list, err := e.ListMyPayments(ctx, actor)
	if err != nil {
		return nil, err
	}
	var st models.PaymentStats
	for _, p := range list {
		st.TotalEarnedCents += p.AmountCents
		st.PaymentCount++
		switch p.Status {
		case models.PaymentStatusPaid:
			st.PaidAmountCents += p.AmountCents
		case models.PaymentStatusPending, models.PaymentStatusReleased:
			st.PendingAmountCents += p.AmountCents
		}
	}
	return &st, nil
}
