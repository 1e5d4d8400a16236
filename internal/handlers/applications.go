package handlers

import (
	"net/http"

	"github.com/solverhub/backend/internal/respond"
)

// --- POST /projects/{id}/applications ---

func (h *Handler) Apply(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	projectID, err := pathID(r, "id")
	if err != nil {
		h.fail(w, err)
		return
	}
	app, err := h.Engine.Apply(r.Context(), actor, projectID)
	if err != nil {
		h.fail(w, err)
		return
	}
	respond.JSON(w, http.StatusCreated, app)
}

// --- GET /projects/{id}/applications ---

func (h *Handler) ListApplications(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	projectID, err := pathID(r, "id")
	if err != nil {
		h.fail(w, err)
		return
	}
	list, err := h.Engine.ListApplications(r.Context(), actor, projectID)
	if err != nil {
		h.fail(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, orEmpty(list))
}

// --- GET /applications ---

func (h *Handler) ListMyApplications(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	list, err := h.Engine.ListMyApplications(r.Context(), actor)
	if err != nil {
		h.fail(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, orEmpty(list))
}

// --- POST /applications/{id}/accept ---

func (h *Handler) AcceptApplication(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, err)
		return
	}
	app, err := h.Engine.AcceptApplication(r.Context(), actor, id)
	if err != nil {
		h.fail(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, app)
}

// --- POST /applications/{id}/reject ---

func (h *Handler) RejectApplication(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, err)
		return
	}
	app, err := h.Engine.RejectApplication(r.Context(), actor, id)
	if err != nil {
		h.fail(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, app)
}
