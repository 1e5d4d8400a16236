package handlers

import (
	"net/http"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/solverhub/backend/internal/apperror"
	"github.com/solverhub/backend/internal/models"
	"github.com/solverhub/backend/internal/respond"
	"github.com/solverhub/backend/internal/services"
)

// --- GET /marketplace/categories ---

func (h *Handler) Categories(w http.ResponseWriter, _ *http.Request) {
	respond.JSON(w, http.StatusOK, h.Engine.Categories())
}

// --- GET /marketplace/projects ---

// Browse lists open projects. Query: category, search, sort (newest|budget|title), offset, limit.
func (h *Handler) Browse(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := models.ProjectFilter{
		Category: q.Get("category"),
		Search:   q.Get("search"),
		Sort:     q.Get("sort"),
	}
	var err error
	if f.Offset, err = intParam(q.Get("offset")); err != nil {
		h.fail(w, apperror.Validation("offset must be an integer"))
		return
	}
	if f.Limit, err = intParam(q.Get("limit")); err != nil {
		h.fail(w, apperror.Validation("limit must be an integer"))
		return
	}
	list, err := h.Engine.Browse(r.Context(), f)
	if err != nil {
		h.fail(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, orEmpty(list))
}

func intParam(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.Atoi(s)
}

// --- POST /projects ---

type createProjectRequest struct {
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Category    string          `json:"category"`
	Budget      decimal.Decimal `json:"budget"`
}

func (h *Handler) CreateProject(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var req createProjectRequest
	if err := decode(r, &req); err != nil {
		h.fail(w, err)
		return
	}
	budget, err := toCents("budget", req.Budget)
	if err != nil {
		h.fail(w, err)
		return
	}
	p, err := h.Engine.CreateProject(r.Context(), actor, services.ProjectInput{
		Title:       req.Title,
		Description: req.Description,
		Category:    req.Category,
		BudgetCents: budget,
	})
	if err != nil {
		h.fail(w, err)
		return
	}
	respond.JSON(w, http.StatusCreated, p)
}

// --- GET /projects ---

func (h *Handler) ListMyProjects(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	list, err := h.Engine.ListMyProjects(r.Context(), actor)
	if err != nil {
		h.fail(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, orEmpty(list))
}

// --- GET /projects/{id} ---

func (h *Handler) GetProject(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, err)
		return
	}
	p, err := h.Engine.GetProject(r.Context(), actor, id)
	if err != nil {
		h.fail(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, p)
}

// --- PATCH /projects/{id} ---

type updateProjectRequest struct {
	Title       *string          `json:"title"`
	Description *string          `json:"description"`
	Category    *string          `json:"category"`
	Budget      *decimal.Decimal `json:"budget"`
}

func (h *Handler) UpdateProject(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, err)
		return
	}
	var req updateProjectRequest
	if err := decode(r, &req); err != nil {
		h.fail(w, err)
		return
	}
	patch := services.ProjectPatch{
		Title:       req.Title,
		Description: req.Description,
		Category:    req.Category,
	}
	if req.Budget != nil {
		cents, err := toCents("budget", *req.Budget)
		if err != nil {
			h.fail(w, err)
			return
		}
		patch.BudgetCents = &cents
	}
	p, err := h.Engine.UpdateProject(r.Context(), actor, id, patch)
	if err != nil {
		h.fail(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, p)
}

// --- DELETE /projects/{id} ---

// DeleteProject cancels an open project and returns it.
func (h *Handler) DeleteProject(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, err)
		return
	}
	p, err := h.Engine.DeleteProject(r.Context(), actor, id)
	if err != nil {
		h.fail(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, p)
}
