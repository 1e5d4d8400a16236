package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/solverhub/backend/internal/apperror"
	"github.com/solverhub/backend/internal/models"
	"github.com/solverhub/backend/internal/respond"
	"github.com/solverhub/backend/internal/services"
)

func parseDate(field, s string) (time.Time, error) {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, apperror.Validation(field + " must be a YYYY-MM-DD date")
	}
	return t, nil
}

func parseOptionalDate(field string, s *string) (*time.Time, error) {
	if s == nil {
		return nil, nil
	}
	t, err := parseDate(field, *s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// optionalID reads a nullable id field. An absent field is nil and an explicit
// null is uuid.Nil, which clears the reference.
func optionalID(field string, raw json.RawMessage) (*uuid.UUID, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	if bytes.Equal(raw, []byte("null")) {
		id := uuid.Nil
		return &id, nil
	}
	var id uuid.UUID
	if err := json.Unmarshal(raw, &id); err != nil {
		return nil, apperror.Validation("invalid " + field)
	}
	return &id, nil
}

// --- POST /projects/{id}/sprints ---

type createSprintRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	StartDate   string `json:"start_date"`
	EndDate     string `json:"end_date"`
	Order       *int   `json:"order"`
}

func (h *Handler) CreateSprint(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	projectID, err := pathID(r, "id")
	if err != nil {
		h.fail(w, err)
		return
	}
	var req createSprintRequest
	if err := decode(r, &req); err != nil {
		h.fail(w, err)
		return
	}
	start, err := parseDate("start_date", req.StartDate)
	if err != nil {
		h.fail(w, err)
		return
	}
	end, err := parseDate("end_date", req.EndDate)
	if err != nil {
		h.fail(w, err)
		return
	}
	s, err := h.Engine.CreateSprint(r.Context(), actor, projectID, services.SprintInput{
		Title:       req.Title,
		Description: req.Description,
		StartDate:   start,
		EndDate:     end,
		Order:       req.Order,
	})
	if err != nil {
		h.fail(w, err)
		return
	}
	respond.JSON(w, http.StatusCreated, s)
}

// --- GET /projects/{id}/sprints ---

func (h *Handler) ListSprints(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	projectID, err := pathID(r, "id")
	if err != nil {
		h.fail(w, err)
		return
	}
	list, err := h.Engine.ListSprints(r.Context(), actor, projectID)
	if err != nil {
		h.fail(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, orEmpty(list))
}

// --- GET /sprints/{id} ---

func (h *Handler) GetSprint(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, err)
		return
	}
	s, err := h.Engine.GetSprint(r.Context(), actor, id)
	if err != nil {
		h.fail(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, s)
}

// --- PATCH /sprints/{id} ---

type updateSprintRequest struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	StartDate   *string `json:"start_date"`
	EndDate     *string `json:"end_date"`
	Order       *int    `json:"order"`
}

func (h *Handler) UpdateSprint(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, err)
		return
	}
	var req updateSprintRequest
	if err := decode(r, &req); err != nil {
		h.fail(w, err)
		return
	}
	start, err := parseOptionalDate("start_date", req.StartDate)
	if err != nil {
		h.fail(w, err)
		return
	}
	end, err := parseOptionalDate("end_date", req.EndDate)
	if err != nil {
		h.fail(w, err)
		return
	}
	s, err := h.Engine.UpdateSprint(r.Context(), actor, id, services.SprintPatch{
		Title:       req.Title,
		Description: req.Description,
		StartDate:   start,
		EndDate:     end,
		Order:       req.Order,
	})
	if err != nil {
		h.fail(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, s)
}

// --- DELETE /sprints/{id} ---

// DeleteSprint removes a sprint with its features and returns what was removed.
func (h *Handler) DeleteSprint(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, err)
		return
	}
	s, err := h.Engine.DeleteSprint(r.Context(), actor, id)
	if err != nil {
		h.fail(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, s)
}

// --- POST /projects/{id}/features ---

type createFeatureRequest struct {
	SprintID       *uuid.UUID `json:"sprint_id"`
	Title          string     `json:"title"`
	Description    string     `json:"description"`
	Status         string     `json:"status"`
	Priority       string     `json:"priority"`
	AssigneeID     *uuid.UUID `json:"assignee_id"`
	EstimatedHours *int       `json:"estimated_hours"`
	Order          int        `json:"order"`
}

func (h *Handler) CreateFeature(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	projectID, err := pathID(r, "id")
	if err != nil {
		h.fail(w, err)
		return
	}
	var req createFeatureRequest
	if err := decode(r, &req); err != nil {
		h.fail(w, err)
		return
	}
	f, err := h.Engine.CreateFeature(r.Context(), actor, projectID, services.FeatureInput{
		SprintID:       req.SprintID,
		Title:          req.Title,
		Description:    req.Description,
		Status:         req.Status,
		Priority:       req.Priority,
		AssigneeID:     req.AssigneeID,
		EstimatedHours: req.EstimatedHours,
		Order:          req.Order,
	})
	if err != nil {
		h.fail(w, err)
		return
	}
	respond.JSON(w, http.StatusCreated, f)
}

// --- GET /projects/{id}/features ---

func (h *Handler) ListFeatures(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	projectID, err := pathID(r, "id")
	if err != nil {
		h.fail(w, err)
		return
	}
	list, err := h.Engine.ListFeatures(r.Context(), actor, projectID)
	if err != nil {
		h.fail(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, orEmpty(list))
}

// --- GET /features/{id} ---

func (h *Handler) GetFeature(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, err)
		return
	}
	f, err := h.Engine.GetFeature(r.Context(), actor, id)
	if err != nil {
		h.fail(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, f)
}

// --- PATCH /features/{id} ---

type updateFeatureRequest struct {
	SprintID       json.RawMessage `json:"sprint_id"`
	Title          *string         `json:"title"`
	Description    *string         `json:"description"`
	Status         *string         `json:"status"`
	Priority       *string         `json:"priority"`
	AssigneeID     json.RawMessage `json:"assignee_id"`
	EstimatedHours *int            `json:"estimated_hours"`
	Order          *int            `json:"order"`
}

// UpdateFeature applies a partial update. A null sprint_id moves the feature
// to the backlog and a null assignee_id unassigns it.
func (h *Handler) UpdateFeature(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, err)
		return
	}
	var req updateFeatureRequest
	if err := decode(r, &req); err != nil {
		h.fail(w, err)
		return
	}
	sprintID, err := optionalID("sprint_id", req.SprintID)
	if err != nil {
		h.fail(w, err)
		return
	}
	assigneeID, err := optionalID("assignee_id", req.AssigneeID)
	if err != nil {
		h.fail(w, err)
		return
	}
	f, err := h.Engine.UpdateFeature(r.Context(), actor, id, models.FeaturePatch{
		SprintID:       sprintID,
		Title:          req.Title,
		Description:    req.Description,
		Status:         req.Status,
		Priority:       req.Priority,
		AssigneeID:     assigneeID,
		EstimatedHours: req.EstimatedHours,
		Order:          req.Order,
	})
	if err != nil {
		h.fail(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, f)
}

// --- DELETE /features/{id} ---

func (h *Handler) DeleteFeature(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, err)
		return
	}
	f, err := h.Engine.DeleteFeature(r.Context(), actor, id)
	if err != nil {
		h.fail(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, f)
}

// --- GET /profiles/solvers/{id} ---

func (h *Handler) SolverProfile(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, err)
		return
	}
	prof, err := h.Engine.SolverProfile(r.Context(), actor, id)
	if err != nil {
		h.fail(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, prof)
}
