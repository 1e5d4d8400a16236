package models

import (
	"time"

	"github.com/google/uuid"
)

// Payment status values. A pending payment may also be deleted by the buyer.
const (
	PaymentStatusPending  = "pending"
	PaymentStatusReleased = "released"
	PaymentStatusPaid     = "paid"
)

type Payment struct {
	ID           uuid.UUID  `json:"id"`
	ProjectID    uuid.UUID  `json:"project_id"`
	SolverID     uuid.UUID  `json:"solver_id"`
	AmountCents  int64      `json:"amount_cents"`
	Status       string     `json:"status"`
	Description  string     `json:"description,omitempty"`
	ProcessorRef *string    `json:"processor_ref,omitempty"`
	PayoutRef    *string    `json:"payout_ref,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	ReleasedAt   *time.Time `json:"released_at,omitempty"`
	PaidAt       *time.Time `json:"paid_at,omitempty"`
}

// Payment ledger entry kinds.
const (
	PaymentEventRequested = "requested"
	PaymentEventApproved  = "approved"
	PaymentEventRejected  = "rejected"
	PaymentEventPaid      = "paid"
)

// PaymentEvent is an append-only ledger entry recording one payment transition.
// It outlives the payment row, so rejected requests stay auditable.
type PaymentEvent struct {
	ID          uuid.UUID `json:"id"`
	PaymentID   uuid.UUID `json:"payment_id"`
	ProjectID   uuid.UUID `json:"project_id"`
	ActorID     uuid.UUID `json:"actor_id"`
	Kind        string    `json:"kind"`
	AmountCents int64     `json:"amount_cents"`
	Reason      *string   `json:"reason,omitempty"`
	ExternalRef *string   `json:"external_ref,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// PaymentStats summarises a solver's earnings in cents.
type PaymentStats struct {
	TotalEarnedCents   int64 `json:"total_earned_cents"`
	PaidAmountCents    int64 `json:"paid_amount_cents"`
	PendingAmountCents int64 `json:"pending_amount_cents"`
	PaymentCount       int   `json:"payment_count"`
}
