package models

import (
	"time"

	"github.com/google/uuid"
)

// Marketplace event kinds delivered to the notification webhook.
const (
	EventApplicationReceived = "application.received"
	EventApplicationAccepted = "application.accepted"
	EventApplicationRejected = "application.rejected"
	EventTaskCreated         = "task.created"
	EventSubmissionCreated   = "submission.created"
	EventSubmissionReviewed  = "submission.reviewed"
	EventPaymentRequested    = "payment.requested"
	EventPaymentApproved     = "payment.approved"
	EventPaymentRejected     = "payment.rejected"
	EventPaymentPaid         = "payment.paid"
)

type Event struct {
	Kind        string    `json:"kind"`
	ProjectID   uuid.UUID `json:"project_id"`
	RecipientID uuid.UUID `json:"recipient_id"`
	EntityID    uuid.UUID `json:"entity_id"`
	OccurredAt  time.Time `json:"occurred_at"`
}
