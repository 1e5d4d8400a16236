package handlers

import (
	"net/http"

	"github.com/solverhub/backend/internal/respond"
)

// --- POST /projects/{id}/payments ---

type requestPaymentRequest struct {
	Description string `json:"description"`
}

// RequestPayment opens the completion payment for a project at its budget.
func (h *Handler) RequestPayment(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	projectID, err := pathID(r, "id")
	if err != nil {
		h.fail(w, err)
		return
	}
	var req requestPaymentRequest
	if err := decode(r, &req); err != nil {
		h.fail(w, err)
		return
	}
	p, err := h.Engine.RequestCompletionPayment(r.Context(), actor, projectID, req.Description)
	if err != nil {
		h.fail(w, err)
		return
	}
	respond.JSON(w, http.StatusCreated, p)
}

// --- GET /projects/{id}/payments ---

func (h *Handler) ListPayments(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	projectID, err := pathID(r, "id")
	if err != nil {
		h.fail(w, err)
		return
	}
	list, err := h.Engine.ListPayments(r.Context(), actor, projectID)
	if err != nil {
		h.fail(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, orEmpty(list))
}

// --- GET /projects/{id}/payments/history ---

func (h *Handler) PaymentHistory(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	projectID, err := pathID(r, "id")
	if err != nil {
		h.fail(w, err)
		return
	}
	list, err := h.Engine.PaymentHistory(r.Context(), actor, projectID)
	if err != nil {
		h.fail(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, orEmpty(list))
}

// --- POST /payments/{id}/approve ---

func (h *Handler) ApprovePayment(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, err)
		return
	}
	p, err := h.Engine.ApprovePayment(r.Context(), actor, id)
	if err != nil {
		h.fail(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, p)
}

// --- POST /payments/{id}/reject ---

type rejectPaymentRequest struct {
	Reason string `json:"reason"`
}

// RejectPayment removes a pending payment and returns the removed row.
func (h *Handler) RejectPayment(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, err)
		return
	}
	var req rejectPaymentRequest
	if err := decode(r, &req); err != nil {
		h.fail(w, err)
		return
	}
	p, err := h.Engine.RejectPayment(r.Context(), actor, id, req.Reason)
	if err != nil {
		h.fail(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, p)
}

// --- POST /payments/{id}/payout ---

type payoutRequest struct {
	Destination string `json:"destination"`
}

func (h *Handler) CreatePayout(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, err)
		return
	}
	var req payoutRequest
	if err := decode(r, &req); err != nil {
		h.fail(w, err)
		return
	}
	p, err := h.Engine.CreatePayout(r.Context(), actor, id, req.Destination)
	if err != nil {
		h.fail(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, p)
}

// --- GET /payments ---

func (h *Handler) ListMyPayments(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	list, err := h.Engine.ListMyPayments(r.Context(), actor)
	if err != nil {
		h.fail(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, orEmpty(list))
}

// --- GET /payments/stats ---

func (h *Handler) PaymentStats(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	stats, err := h.Engine.PaymentStats(r.Context(), actor)
	if err != nil {
		h.fail(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, stats)
}
