package auth

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/solverhub/backend/internal/apperror"
	"github.com/solverhub/backend/internal/middleware"
	"github.com/solverhub/backend/internal/models"
	"github.com/solverhub/backend/internal/respond"
)

type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"full_name"`
	Role     string `json:"role"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Token     string `json:"token"`
	TokenType string `json:"token_type"`
}

type AssignRoleRequest struct {
	Role string `json:"role"`
}

type Handler struct {
	svc Service
	log *slog.Logger
}

func NewHandler(svc Service, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{svc: svc, log: log}
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.Error(w, h.log, apperror.Validation("invalid JSON"))
		return
	}
	u, err := h.svc.Register(r.Context(), req.Email, req.Password, req.FullName, req.Role)
	if err != nil {
		respond.Error(w, h.log, err)
		return
	}
	h.log.Info("user registered", "user_id", u.ID, "role", u.Role)
	respond.JSON(w, http.StatusCreated, u)
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.Error(w, h.log, apperror.Validation("invalid JSON"))
		return
	}
	token, err := h.svc.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		respond.Error(w, h.log, err)
		return
	}
	respond.JSON(w, http.StatusOK, LoginResponse{Token: token, TokenType: "bearer"})
}

// Me returns the authenticated user's profile.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	u, err := h.svc.Me(r.Context(), actor)
	if err != nil {
		respond.Error(w, h.log, err)
		return
	}
	respond.JSON(w, http.StatusOK, u)
}

func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	users, err := h.svc.ListUsers(r.Context(), actor)
	if err != nil {
		respond.Error(w, h.log, err)
		return
	}
	if users == nil {
		users = []*models.User{}
	}
	respond.JSON(w, http.StatusOK, users)
}

func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, ok := h.userID(w, r)
	if !ok {
		return
	}
	u, err := h.svc.GetUser(r.Context(), actor, id)
	if err != nil {
		respond.Error(w, h.log, err)
		return
	}
	respond.JSON(w, http.StatusOK, u)
}

func (h *Handler) AssignRole(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, ok := h.userID(w, r)
	if !ok {
		return
	}
	var req AssignRoleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.Error(w, h.log, apperror.Validation("invalid JSON"))
		return
	}
	u, err := h.svc.AssignRole(r.Context(), actor, id, req.Role)
	if err != nil {
		respond.Error(w, h.log, err)
		return
	}
	h.log.Info("role assigned", "user_id", u.ID, "role", u.Role, "by", actor.ActorID())
	respond.JSON(w, http.StatusOK, u)
}

func (h *Handler) Activate(w http.ResponseWriter, r *http.Request)   { h.setActive(w, r, true) }
func (h *Handler) Deactivate(w http.ResponseWriter, r *http.Request) { h.setActive(w, r, false) }

func (h *Handler) setActive(w http.ResponseWriter, r *http.Request, active bool) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, ok := h.userID(w, r)
	if !ok {
		return
	}
	u, err := h.svc.SetActive(r.Context(), actor, id, active)
	if err != nil {
		respond.Error(w, h.log, err)
		return
	}
	h.log.Info("user activation changed", "user_id", u.ID, "active", active, "by", actor.ActorID())
	respond.JSON(w, http.StatusOK, u)
}

func (h *Handler) actor(w http.ResponseWriter, r *http.Request) (models.Actor, bool) {
	a := middleware.ActorFromCtx(r.Context())
	if a == nil {
		respond.Error(w, h.log, apperror.Unauthorized("authentication required"))
		return nil, false
	}
	return a, true
}

func (h *Handler) userID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respond.Error(w, h.log, apperror.Validation("invalid user id"))
		return uuid.Nil, false
	}
	return id, true
}
