package handlers

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"math"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/solverhub/backend/internal/apperror"
	"github.com/solverhub/backend/internal/middleware"
	"github.com/solverhub/backend/internal/models"
	"github.com/solverhub/backend/internal/respond"
	"github.com/solverhub/backend/internal/services"
)

// Marketplace is the engine surface driven by the HTTP API.
type Marketplace interface {
	Categories() []models.Category
	Browse(ctx context.Context, f models.ProjectFilter) ([]*models.ProjectListing, error)
	CreateProject(ctx context.Context, actor models.Actor, in services.ProjectInput) (*models.Project, error)
	GetProject(ctx context.Context, actor models.Actor, id uuid.UUID) (*models.Project, error)
	UpdateProject(ctx context.Context, actor models.Actor, id uuid.UUID, patch services.ProjectPatch) (*models.Project, error)
	DeleteProject(ctx context.Context, actor models.Actor, id uuid.UUID) (*models.Project, error)
	ListMyProjects(ctx context.Context, actor models.Actor) ([]*models.Project, error)

	Apply(ctx context.Context, actor models.Actor, projectID uuid.UUID) (*models.Application, error)
	AcceptApplication(ctx context.Context, actor models.Actor, id uuid.UUID) (*models.Application, error)
	RejectApplication(ctx context.Context, actor models.Actor, id uuid.UUID) (*models.Application, error)
	ListApplications(ctx context.Context, actor models.Actor, projectID uuid.UUID) ([]*models.Application, error)
	ListMyApplications(ctx context.Context, actor models.Actor) ([]*models.Application, error)

	CreateTask(ctx context.Context, actor models.Actor, projectID uuid.UUID, in services.TaskInput) (*models.Task, error)
	UpdateTask(ctx context.Context, actor models.Actor, id uuid.UUID, patch models.TaskPatch) (*models.Task, error)
	ListTasks(ctx context.Context, actor models.Actor, projectID uuid.UUID) ([]*models.Task, error)
	GetTask(ctx context.Context, actor models.Actor, id uuid.UUID) (*models.Task, error)
	SubmitTask(ctx context.Context, actor models.Actor, taskID uuid.UUID, fileName string, content io.Reader) (*models.Submission, error)
	ReviewSubmission(ctx context.Context, actor models.Actor, id uuid.UUID, decision string, reason *string) (*models.Submission, error)
	ListSubmissions(ctx context.Context, actor models.Actor, projectID uuid.UUID) ([]*models.Submission, error)
	GetSubmission(ctx context.Context, actor models.Actor, id uuid.UUID) (*models.Submission, error)
	OpenArtifact(ctx context.Context, actor models.Actor, id uuid.UUID) (io.ReadCloser, *models.Submission, error)

	RequestCompletionPayment(ctx context.Context, actor models.Actor, projectID uuid.UUID, description string) (*models.Payment, error)
	ApprovePayment(ctx context.Context, actor models.Actor, id uuid.UUID) (*models.Payment, error)
	RejectPayment(ctx context.Context, actor models.Actor, id uuid.UUID, reason string) (*models.Payment, error)
	CreatePayout(ctx context.Context, actor models.Actor, id uuid.UUID, destination string) (*models.Payment, error)
	ListPayments(ctx context.Context, actor models.Actor, projectID uuid.UUID) ([]*models.Payment, error)
	PaymentHistory(ctx context.Context, actor models.Actor, projectID uuid.UUID) ([]*models.PaymentEvent, error)
	ListMyPayments(ctx context.Context, actor models.Actor) ([]*models.Payment, error)
	PaymentStats(ctx context.Context, actor models.Actor) (*models.PaymentStats, error)

	CreateSprint(ctx context.Context, actor models.Actor, projectID uuid.UUID, in services.SprintInput) (*models.Sprint, error)
	ListSprints(ctx context.Context, actor models.Actor, projectID uuid.UUID) ([]*models.Sprint, error)
	GetSprint(ctx context.Context, actor models.Actor, id uuid.UUID) (*models.Sprint, error)
	UpdateSprint(ctx context.Context, actor models.Actor, id uuid.UUID, patch services.SprintPatch) (*models.Sprint, error)
	DeleteSprint(ctx context.Context, actor models.Actor, id uuid.UUID) (*models.Sprint, error)
	CreateFeature(ctx context.Context, actor models.Actor, projectID uuid.UUID, in services.FeatureInput) (*models.Feature, error)
	ListFeatures(ctx context.Context, actor models.Actor, projectID uuid.UUID) ([]*models.Feature, error)
	GetFeature(ctx context.Context, actor models.Actor, id uuid.UUID) (*models.Feature, error)
	UpdateFeature(ctx context.Context, actor models.Actor, id uuid.UUID, patch models.FeaturePatch) (*models.Feature, error)
	DeleteFeature(ctx context.Context, actor models.Actor, id uuid.UUID) (*models.Feature, error)

	SolverProfile(ctx context.Context, actor models.Actor, solverID uuid.UUID) (*models.SolverProfile, error)
}

var _ Marketplace = (*services.Engine)(nil)

// Handler serves the marketplace endpoints. JSON bodies reach it already
// checked by middleware.ValidateBody.
type Handler struct {
	Engine           Marketplace
	Logger           *slog.Logger
	MaxArtifactBytes int64
}

func NewHandler(engine Marketplace, logger *slog.Logger, maxArtifactBytes int64) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{Engine: engine, Logger: logger, MaxArtifactBytes: maxArtifactBytes}
}

func (h *Handler) fail(w http.ResponseWriter, err error) {
	respond.Error(w, h.Logger, err)
}

// actor returns the authenticated caller, writing 401 when there is none.
func (h *Handler) actor(w http.ResponseWriter, r *http.Request) (models.Actor, bool) {
	a := middleware.ActorFromCtx(r.Context())
	if a == nil {
		h.fail(w, apperror.Unauthorized("authentication required"))
		return nil, false
	}
	return a, true
}

func pathID(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		return uuid.Nil, apperror.Validation("invalid " + name)
	}
	return id, nil
}

func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return apperror.Validation("invalid JSON")
	}
	return nil
}

var maxCents = decimal.NewFromInt(math.MaxInt64)

// toCents converts a decimal amount to integer cents. More than two fraction
// digits is a validation error rather than a silent rounding.
func toCents(field string, d decimal.Decimal) (int64, error) {
	if !d.Equal(d.Round(2)) {
		return 0, apperror.Validation(field + " must have at most two decimal places")
	}
	cents := d.Shift(2)
	if cents.GreaterThan(maxCents) || cents.LessThan(maxCents.Neg()) {
		return 0, apperror.Validation(field + " is out of range")
	}
	return cents.IntPart(), nil
}

// orEmpty keeps empty lists rendering as [] instead of null.
func orEmpty[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
