package handlers

import (
	"errors"
	"io"
	"mime"
	"net/http"
	"strconv"
	"time"

	"github.com/solverhub/backend/internal/apperror"
	"github.com/solverhub/backend/internal/models"
	"github.com/solverhub/backend/internal/respond"
	"github.com/solverhub/backend/internal/services"
)

// multipartMemory is how much of an upload is buffered in memory before
// spilling to a temp file.
const multipartMemory = 8 << 20

// --- POST /projects/{id}/tasks ---

type createTaskRequest struct {
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Deadline    *time.Time `json:"deadline"`
}

func (h *Handler) CreateTask(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	projectID, err := pathID(r, "id")
	if err != nil {
		h.fail(w, err)
		return
	}
	var req createTaskRequest
	if err := decode(r, &req); err != nil {
		h.fail(w, err)
		return
	}
	t, err := h.Engine.CreateTask(r.Context(), actor, projectID, services.TaskInput{
		Title:       req.Title,
		Description: req.Description,
		Deadline:    req.Deadline,
	})
	if err != nil {
		h.fail(w, err)
		return
	}
	respond.JSON(w, http.StatusCreated, t)
}

// --- GET /projects/{id}/tasks ---

func (h *Handler) ListTasks(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	projectID, err := pathID(r, "id")
	if err != nil {
		h.fail(w, err)
		return
	}
	list, err := h.Engine.ListTasks(r.Context(), actor, projectID)
	if err != nil {
		h.fail(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, orEmpty(list))
}

// --- GET /tasks/{id} ---

func (h *Handler) GetTask(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, err)
		return
	}
	t, err := h.Engine.GetTask(r.Context(), actor, id)
	if err != nil {
		h.fail(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, t)
}

// --- PATCH /tasks/{id} ---

type updateTaskRequest struct {
	Title       *string    `json:"title"`
	Description *string    `json:"description"`
	Deadline    *time.Time `json:"deadline"`
	Status      *string    `json:"status"`
}

func (h *Handler) UpdateTask(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, err)
		return
	}
	var req updateTaskRequest
	if err := decode(r, &req); err != nil {
		h.fail(w, err)
		return
	}
	t, err := h.Engine.UpdateTask(r.Context(), actor, id, models.TaskPatch{
		Title:       req.Title,
		Description: req.Description,
		Deadline:    req.Deadline,
		Status:      req.Status,
	})
	if err != nil {
		h.fail(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, t)
}

// --- POST /tasks/{id}/submissions ---

// SubmitTask accepts a multipart upload with the ZIP deliverable in the "file" field.
func (h *Handler) SubmitTask(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	taskID, err := pathID(r, "id")
	if err != nil {
		h.fail(w, err)
		return
	}

	tooLarge := apperror.Validation("artifact exceeds " + strconv.FormatInt(h.MaxArtifactBytes, 10) + " bytes")
	// Leave room for the multipart envelope around the file itself.
	r.Body = http.MaxBytesReader(w, r.Body, h.MaxArtifactBytes+64<<10)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			h.fail(w, tooLarge)
			return
		}
		h.fail(w, apperror.Validation("expected a multipart form with a file field"))
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, hdr, err := r.FormFile("file")
	if err != nil {
		h.fail(w, apperror.Validation("missing file field"))
		return
	}
	defer file.Close()
	if hdr.Size > h.MaxArtifactBytes {
		h.fail(w, tooLarge)
		return
	}

	sub, err := h.Engine.SubmitTask(r.Context(), actor, taskID, hdr.Filename, file)
	if err != nil {
		h.fail(w, err)
		return
	}
	respond.JSON(w, http.StatusCreated, sub)
}

// --- GET /projects/{id}/submissions ---

func (h *Handler) ListSubmissions(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	projectID, err := pathID(r, "id")
	if err != nil {
		h.fail(w, err)
		return
	}
	list, err := h.Engine.ListSubmissions(r.Context(), actor, projectID)
	if err != nil {
		h.fail(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, orEmpty(list))
}

// --- GET /submissions/{id} ---

func (h *Handler) GetSubmission(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, err)
		return
	}
	sub, err := h.Engine.GetSubmission(r.Context(), actor, id)
	if err != nil {
		h.fail(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, sub)
}

// --- POST /submissions/{id}/review ---

type reviewRequest struct {
	Decision string  `json:"decision"`
	Reason   *string `json:"reason"`
}

func (h *Handler) ReviewSubmission(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, err)
		return
	}
	var req reviewRequest
	if err := decode(r, &req); err != nil {
		h.fail(w, err)
		return
	}
	sub, err := h.Engine.ReviewSubmission(r.Context(), actor, id, req.Decision, req.Reason)
	if err != nil {
		h.fail(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, sub)
}

// --- GET /submissions/{id}/artifact ---

func (h *Handler) DownloadArtifact(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, err)
		return
	}
	rc, sub, err := h.Engine.OpenArtifact(r.Context(), actor, id)
	if err != nil {
		h.fail(w, err)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": sub.FileName}))
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rc); err != nil {
		h.Logger.Warn("artifact download interrupted", "submission_id", sub.ID, "error", err)
	}
}
