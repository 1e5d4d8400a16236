package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/solverhub/backend/internal/apperror"
	"github.com/solverhub/backend/internal/models"
)

var tracer = otel.Tracer("github.com/solverhub/backend/internal/services")

// TxBeginner abstracts transaction creation so tests don't need a pgxpool.Pool.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Every repository method runs inside the caller's transaction.
// Lookups of a missing row return an apperror with CodeNotFound.

type ProjectRepo interface {
	Create(ctx context.Context, tx pgx.Tx, p *models.Project) error
	GetByID(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Project, error)
	// GetByIDForUpdate locks the project row until the transaction ends.
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Project, error)
	Update(ctx context.Context, tx pgx.Tx, p *models.Project) error
	ListByBuyer(ctx context.Context, tx pgx.Tx, buyerID uuid.UUID) ([]*models.Project, error)
	ListBySolver(ctx context.Context, tx pgx.Tx, solverID uuid.UUID) ([]*models.Project, error)
	ListAll(ctx context.Context, tx pgx.Tx) ([]*models.Project, error)
	Browse(ctx context.Context, tx pgx.Tx, f models.ProjectFilter) ([]*models.ProjectListing, error)
	// CountBySolver counts the solver's assigned or in-progress projects and its completed ones.
	CountBySolver(ctx context.Context, tx pgx.Tx, solverID uuid.UUID) (active, completed int64, err error)
}

type ApplicationRepo interface {
	Create(ctx context.Context, tx pgx.Tx, a *models.Application) error
	GetByID(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Application, error)
	Exists(ctx context.Context, tx pgx.Tx, projectID, solverID uuid.UUID) (bool, error)
	Update(ctx context.Context, tx pgx.Tx, a *models.Application) error
	// RejectPendingExcept rejects every pending application of the project other than keepID
	// and returns the rejected rows.
	RejectPendingExcept(ctx context.Context, tx pgx.Tx, projectID, keepID uuid.UUID, at time.Time) ([]*models.Application, error)
	// ListByProject orders by requested_at ascending.
	ListByProject(ctx context.Context, tx pgx.Tx, projectID uuid.UUID) ([]*models.Application, error)
	ListBySolver(ctx context.Context, tx pgx.Tx, solverID uuid.UUID) ([]*models.Application, error)
	CountBySolver(ctx context.Context, tx pgx.Tx, solverID uuid.UUID) (total, accepted int64, err error)
}

type AssignmentRepo interface {
	Create(ctx context.Context, tx pgx.Tx, a *models.Assignment) error
	GetByProject(ctx context.Context, tx pgx.Tx, projectID uuid.UUID) (*models.Assignment, error)
	MarkCompleted(ctx context.Context, tx pgx.Tx, projectID uuid.UUID, at time.Time) error
}

type TaskRepo interface {
	Create(ctx context.Context, tx pgx.Tx, t *models.Task) error
	GetByID(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Task, error)
	Update(ctx context.Context, tx pgx.Tx, t *models.Task) error
	ListByProject(ctx context.Context, tx pgx.Tx, projectID uuid.UUID) ([]*models.Task, error)
}

type SubmissionRepo interface {
	Create(ctx context.Context, tx pgx.Tx, s *models.Submission) error
	GetByID(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Submission, error)
	Update(ctx context.Context, tx pgx.Tx, s *models.Submission) error
	HasPending(ctx context.Context, tx pgx.Tx, taskID uuid.UUID) (bool, error)
	ListByProject(ctx context.Context, tx pgx.Tx, projectID uuid.UUID) ([]*models.Submission, error)
}

type PaymentRepo interface {
	Create(ctx context.Context, tx pgx.Tx, p *models.Payment) error
	GetByID(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Payment, error)
	Update(ctx context.Context, tx pgx.Tx, p *models.Payment) error
	Delete(ctx context.Context, tx pgx.Tx, id uuid.UUID) error
	HasPending(ctx context.Context, tx pgx.Tx, projectID uuid.UUID) (bool, error)
	ListByProject(ctx context.Context, tx pgx.Tx, projectID uuid.UUID) ([]*models.Payment, error)
	ListBySolver(ctx context.Context, tx pgx.Tx, solverID uuid.UUID) ([]*models.Payment, error)
}

type SprintRepo interface {
	Create(ctx context.Context, tx pgx.Tx, s *models.Sprint) error
	GetByID(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Sprint, error)
	Update(ctx context.Context, tx pgx.Tx, s *models.Sprint) error
	// Delete removes the sprint together with its features.
	Delete(ctx context.Context, tx pgx.Tx, id uuid.UUID) error
	ListByProject(ctx context.Context, tx pgx.Tx, projectID uuid.UUID) ([]*models.Sprint, error)
}

type FeatureRepo interface {
	Create(ctx context.Context, tx pgx.Tx, f *models.Feature) error
	GetByID(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Feature, error)
	Update(ctx context.Context, tx pgx.Tx, f *models.Feature) error
	Delete(ctx context.Context, tx pgx.Tx, id uuid.UUID) error
	ListByProject(ctx context.Context, tx pgx.Tx, projectID uuid.UUID) ([]*models.Feature, error)
}

// UserDirectory resolves marketplace users. auth.UserStore satisfies it.
type UserDirectory interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// PaymentLedger is the append-only audit trail of payment transitions.
type PaymentLedger interface {
	Record(ctx context.Context, tx pgx.Tx, e *models.PaymentEvent) error
	ListByProject(ctx context.Context, tx pgx.Tx, projectID uuid.UUID) ([]*models.PaymentEvent, error)
}

// Notifier publishes a marketplace event as part of the caller's transaction,
// so an event is delivered only if the state change commits.
type Notifier interface {
	Notify(ctx context.Context, tx pgx.Tx, ev models.Event) error
}

// Settlement is the external payment processor. The idempotency key lets the
// processor collapse retries of the same payment transition.
type Settlement interface {
	Charge(ctx context.Context, idempotencyKey string, amountCents int64) (string, error)
	Payout(ctx context.Context, idempotencyKey string, amountCents int64, destination string) (string, error)
}

// ArtifactStore keeps submitted deliverables; the engine only holds the returned ref.
type ArtifactStore interface {
	Save(ctx context.Context, name string, r io.Reader) (string, error)
	Open(ctx context.Context, ref string) (io.ReadCloser, error)
	Delete(ctx context.Context, ref string) error
}

// Engine runs the project, matching, task and payment state machines.
// Each operation is one transaction that locks the project row before
// checking any status it depends on.
type Engine struct {
	Pool         TxBeginner
	Projects     ProjectRepo
	Applications ApplicationRepo
	Assignments  AssignmentRepo
	Tasks        TaskRepo
	Submissions  SubmissionRepo
	Payments     PaymentRepo
	Sprints      SprintRepo
	Features     FeatureRepo
	Users        UserDirectory
	Ledger       PaymentLedger
	Notifier     Notifier
	Settlement   Settlement
	Artifacts    ArtifactStore
	Logger       *slog.Logger

	Now            func() time.Time
	TxTimeout      time.Duration
	MaxBudgetCents int64
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now().UTC()
	}
	return time.Now().UTC()
}

func (e *Engine) log() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return slog.Default()
}

// inTx runs fn in a transaction bounded by TxTimeout. Any error rolls back every write.
func (e *Engine) inTx(ctx context.Context, fn func(ctx context.Context, tx pgx.Tx) error) error {
	if e.TxTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.TxTimeout)
		defer cancel()
	}
	tx, err := e.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (e *Engine) notify(ctx context.Context, tx pgx.Tx, kind string, projectID, recipientID, entityID uuid.UUID) error {
	if e.Notifier == nil {
		return nil
	}
	ev := models.Event{
		Kind:        kind,
		ProjectID:   projectID,
		RecipientID: recipientID,
		EntityID:    entityID,
		OccurredAt:  e.now(),
	}
	if err := e.Notifier.Notify(ctx, tx, ev); err != nil {
		return fmt.Errorf("notify %s: %w", kind, err)
	}
	return nil
}

func (e *Engine) record(ctx context.Context, tx pgx.Tx, p *models.Payment, actorID uuid.UUID, kind string, reason, ref *string) error {
	if e.Ledger == nil {
		return nil
	}
	ev := &models.PaymentEvent{
		ID:          uuid.New(),
		PaymentID:   p.ID,
		ProjectID:   p.ProjectID,
		ActorID:     actorID,
		Kind:        kind,
		AmountCents: p.AmountCents,
		Reason:      reason,
		ExternalRef: ref,
		CreatedAt:   e.now(),
	}
	if err := e.Ledger.Record(ctx, tx, ev); err != nil {
		return fmt.Errorf("record payment %s: %w", kind, err)
	}
	return nil
}

// transitionProject moves p to the given status if the edge is legal.
func (e *Engine) transitionProject(p *models.Project, to string) error {
	if !models.CanTransitionProject(p.Status, to) {
		return apperror.InvalidState(fmt.Sprintf("invalid state transition: project %s -> %s", p.Status, to))
	}
	p.Status = to
	p.UpdatedAt = e.now()
	return nil
}

func (e *Engine) transitionTask(t *models.Task, to string) error {
	if !models.CanTransitionTask(t.Status, to) {
		return apperror.InvalidState(fmt.Sprintf("invalid state transition: task %s -> %s", t.Status, to))
	}
	t.Status = to
	t.UpdatedAt = e.now()
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func startSpan(ctx context.Context, name string, actor models.Actor, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if actor != nil {
		attrs = append(attrs,
			attribute.String("actor.id", actor.ActorID().String()),
			attribute.String("actor.role", actor.Role()),
		)
	}
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(apperror.CodeOf(err)))
	}
	span.End()
}
