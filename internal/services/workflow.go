package services

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel/attribute"

	"github.com/solverhub/backend/internal/apperror"
	"github.com/solverhub/backend/internal/models"
)

// TaskInput describes a new task.
type TaskInput struct {
	Title       string
	Description string
	Deadline    *time.Time
}

// CreateTask adds a task to the solver's assigned project. The first task
// moves an assigned project to in_progress.
func (e *Engine) CreateTask(ctx context.Context, actor models.Actor, projectID uuid.UUID, in TaskInput) (t *models.Task, err error) {
	ctx, span := startSpan(ctx, "Engine.CreateTask", actor, attribute.String("project.id", projectID.String()))
	defer func() { endSpan(span, err) }()

	solver, ok := actor.(models.Solver)
	if !ok {
		return nil, apperror.Forbidden("only the assigned solver can create tasks")
	}
	in.Title = strings.TrimSpace(in.Title)
	if in.Title == "" {
		return nil, apperror.Validation("title is required")
	}

	err = e.inTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		p, err := e.Projects.GetByIDForUpdate(ctx, tx, projectID)
		if err != nil {
			return err
		}
		if !p.IsAssignedTo(solver.ID) {
			return apperror.Forbidden("only the assigned solver can create tasks")
		}
		switch p.Status {
		case models.ProjectStatusAssigned:
			if err := e.transitionProject(p, models.ProjectStatusInProgress); err != nil {
				return err
			}
			if err := e.Projects.Update(ctx, tx, p); err != nil {
				return err
			}
		case models.ProjectStatusInProgress:
		default:
			return apperror.InvalidState("tasks can only be created on assigned or in-progress projects")
		}

		now := e.now()
		t = &models.Task{
			ID:          uuid.New(),
			ProjectID:   p.ID,
			SolverID:    solver.ID,
			Title:       in.Title,
			Description: strings.TrimSpace(in.Description),
			Status:      models.TaskStatusCreated,
			Deadline:    in.Deadline,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := e.Tasks.Create(ctx, tx, t); err != nil {
			return err
		}
		return e.notify(ctx, tx, models.EventTaskCreated, p.ID, p.BuyerID, t.ID)
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}

// lockTask loads the task, locks its project and re-reads the task under the lock.
func (e *Engine) lockTask(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Task, *models.Project, error) {
	t, err := e.Tasks.GetByID(ctx, tx, id)
	if err != nil {
		return nil, nil, err
	}
	p, err := e.Projects.GetByIDForUpdate(ctx, tx, t.ProjectID)
	if err != nil {
		return nil, nil, err
	}
	t, err = e.Tasks.GetByID(ctx, tx, id)
	if err != nil {
		return nil, nil, err
	}
	return t, p, nil
}

// UpdateTask edits a task that has not been submitted yet. The only status
// change a solver drives directly is created -> in_progress.
func (e *Engine) UpdateTask(ctx context.Context, actor models.Actor, id uuid.UUID, patch models.TaskPatch) (t *models.Task, err error) {
	ctx, span := startSpan(ctx, "Engine.UpdateTask", actor, attribute.String("task.id", id.String()))
	defer func() { endSpan(span, err) }()

	solver, ok := actor.(models.Solver)
	if !ok {
		return nil, apperror.Forbidden("only the task owner can update it")
	}
	err = e.inTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		var p *models.Project
		t, p, err = e.lockTask(ctx, tx, id)
		if err != nil {
			return err
		}
		if t.SolverID != solver.ID {
			return apperror.Forbidden("only the task owner can update it")
		}
		if p.Status != models.ProjectStatusInProgress {
			return apperror.InvalidState("project is not in progress")
		}
		if t.Status != models.TaskStatusCreated && t.Status != models.TaskStatusInProgress {
			return apperror.InvalidState("task can no longer be edited")
		}
		if patch.Title != nil {
			title := strings.TrimSpace(*patch.Title)
			if title == "" {
				return apperror.Validation("title is required")
			}
			t.Title = title
		}
		if patch.Description != nil {
			t.Description = strings.TrimSpace(*patch.Description)
		}
		if patch.Deadline != nil {
			t.Deadline = patch.Deadline
		}
		if patch.Status != nil && *patch.Status != t.Status {
			if *patch.Status != models.TaskStatusInProgress {
				return apperror.InvalidState(fmt.Sprintf("invalid state transition: task %s -> %s", t.Status, *patch.Status))
			}
			if err := e.transitionTask(t, *patch.Status); err != nil {
				return err
			}
		}
		t.UpdatedAt = e.now()
		return e.Tasks.Update(ctx, tx, t)
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}

// checkZip accepts only .zip files whose content parses as a ZIP archive.
func checkZip(name string, data []byte) error {
	if !strings.EqualFold(filepath.Ext(name), ".zip") {
		return apperror.Validation("only ZIP archives are accepted")
	}
	if _, err := zip.NewReader(bytes.NewReader(data), int64(len(data))); err != nil {
		return apperror.Validation("artifact is not a valid ZIP archive")
	}
	return nil
}

// SubmitTask stores a deliverable and opens it for review. A task carries at
// most one pending submission; the artifact is removed again if the
// transaction fails.
func (e *Engine) SubmitTask(ctx context.Context, actor models.Actor, taskID uuid.UUID, fileName string, content io.Reader) (sub *models.Submission, err error) {
	ctx, span := startSpan(ctx, "Engine.SubmitTask", actor, attribute.String("task.id", taskID.String()))
	defer func() { endSpan(span, err) }()

	solver, ok := actor.(models.Solver)
	if !ok {
		return nil, apperror.Forbidden("only the task owner can submit work")
	}
	fileName = filepath.Base(fileName)
	data, err := io.ReadAll(content)
	if err != nil {
		return nil, apperror.Validation("could not read artifact")
	}
	if err := checkZip(fileName, data); err != nil {
		return nil, err
	}

	// Cheap ownership check so unauthorized callers never reach the file store.
	err = e.inTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		t, err := e.Tasks.GetByID(ctx, tx, taskID)
		if err != nil {
			return err
		}
		if t.SolverID != solver.ID {
			return apperror.Forbidden("only the task owner can submit work")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	ref, err := e.Artifacts.Save(ctx, fileName, bytes.NewReader(data))
	if err != nil {
		return nil, apperror.External("could not store artifact", err)
	}

	err = e.inTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		t, p, err := e.lockTask(ctx, tx, taskID)
		if err != nil {
			return err
		}
		if t.SolverID != solver.ID {
			return apperror.Forbidden("only the task owner can submit work")
		}
		if p.Status != models.ProjectStatusInProgress {
			return apperror.InvalidState("project is not in progress")
		}
		pending, err := e.Submissions.HasPending(ctx, tx, t.ID)
		if err != nil {
			return err
		}
		if pending {
			return apperror.Conflict("task already has a pending submission")
		}
		if t.Status == models.TaskStatusCreated {
			if err := e.transitionTask(t, models.TaskStatusInProgress); err != nil {
				return err
			}
		}
		if err := e.transitionTask(t, models.TaskStatusSubmitted); err != nil {
			return err
		}

		sub = &models.Submission{
			ID:          uuid.New(),
			TaskID:      t.ID,
			ProjectID:   p.ID,
			SolverID:    solver.ID,
			ArtifactRef: ref,
			FileName:    fileName,
			Status:      models.SubmissionStatusPending,
			SubmittedAt: e.now(),
		}
		if err := e.Submissions.Create(ctx, tx, sub); err != nil {
			if isUniqueViolation(err) {
				return apperror.Conflict("task already has a pending submission")
			}
			return err
		}
		if err := e.Tasks.Update(ctx, tx, t); err != nil {
			return err
		}
		return e.notify(ctx, tx, models.EventSubmissionCreated, p.ID, p.BuyerID, sub.ID)
	})
	if err != nil {
		if delErr := e.Artifacts.Delete(context.WithoutCancel(ctx), ref); delErr != nil {
			e.log().Warn("could not remove orphaned artifact", "artifact_ref", ref, "error", delErr)
		}
		return nil, err
	}
	return sub, nil
}

// ReviewSubmission records the buyer's decision on a pending submission and
// carries it to the task. A submission is reviewed exactly once.
func (e *Engine) ReviewSubmission(ctx context.Context, actor models.Actor, id uuid.UUID, decision string, reason *string) (sub *models.Submission, err error) {
	ctx, span := startSpan(ctx, "Engine.ReviewSubmission", actor,
		attribute.String("submission.id", id.String()),
		attribute.String("decision", decision),
	)
	defer func() { endSpan(span, err) }()

	buyer, ok := actor.(models.Buyer)
	if !ok {
		return nil, apperror.Forbidden("only the project owner can review submissions")
	}
	if decision != models.SubmissionStatusAccepted && decision != models.SubmissionStatusRejected {
		return nil, apperror.Validation("decision must be accepted or rejected")
	}

	err = e.inTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		first, err := e.Submissions.GetByID(ctx, tx, id)
		if err != nil {
			return err
		}
		p, err := e.Projects.GetByIDForUpdate(ctx, tx, first.ProjectID)
		if err != nil {
			return err
		}
		sub, err = e.Submissions.GetByID(ctx, tx, id)
		if err != nil {
			return err
		}
		if p.BuyerID != buyer.ID {
			return apperror.Forbidden("only the project owner can review submissions")
		}
		if sub.Status != models.SubmissionStatusPending {
			return apperror.Conflict("submission has already been reviewed")
		}

		t, err := e.Tasks.GetByID(ctx, tx, sub.TaskID)
		if err != nil {
			return err
		}
		if err := e.transitionTask(t, decision); err != nil {
			return err
		}

		now := e.now()
		sub.Status = decision
		sub.ReviewedAt = &now
		if decision == models.SubmissionStatusRejected && reason != nil {
			r := strings.TrimSpace(*reason)
			sub.RejectionReason = &r
		}
		if err := e.Submissions.Update(ctx, tx, sub); err != nil {
			return err
		}
		if err := e.Tasks.Update(ctx, tx, t); err != nil {
			return err
		}
		return e.notify(ctx, tx, models.EventSubmissionReviewed, p.ID, sub.SolverID, sub.ID)
	})
	if err != nil {
		return nil, err
	}
	return sub, nil
}

// followProject loads a project and checks that actor takes part in it.
func (e *Engine) followProject(ctx context.Context, tx pgx.Tx, actor models.Actor, projectID uuid.UUID) (*models.Project, error) {
	p, err := e.Projects.GetByID(ctx, tx, projectID)
	if err != nil {
		return nil, err
	}
	if !canFollow(actor, p) {
		return nil, apperror.Forbidden("not a participant of this project")
	}
	return p, nil
}

// ListTasks returns a project's tasks to its buyer, its solver or an admin.
func (e *Engine) ListTasks(ctx context.Context, actor models.Actor, projectID uuid.UUID) (list []*models.Task, err error) {
	ctx, span := startSpan(ctx, "Engine.ListTasks", actor, attribute.String("project.id", projectID.String()))
	defer func() { endSpan(span, err) }()

	err = e.inTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		if _, err := e.followProject(ctx, tx, actor, projectID); err != nil {
			return err
		}
		list, err = e.Tasks.ListByProject(ctx, tx, projectID)
		return err
	})
	return list, err
}

// ListSubmissions returns a project's submissions to its buyer, its solver or an admin.
func (e *Engine) ListSubmissions(ctx context.Context, actor models.Actor, projectID uuid.UUID) (list []*models.Submission, err error) {
	ctx, span := startSpan(ctx, "Engine.ListSubmissions", actor, attribute.String("project.id", projectID.String()))
	defer func() { endSpan(span, err) }()

	err = e.inTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		if _, err := e.followProject(ctx, tx, actor, projectID); err != nil {
			return err
		}
		list, err = e.Submissions.ListByProject(ctx, tx, projectID)
		return err
	})
	return list, err
}

// OpenArtifact streams a submission's deliverable. The caller closes the reader.
func (e *Engine) OpenArtifact(ctx context.Context, actor models.Actor, id uuid.UUID) (rc io.ReadCloser, sub *models.Submission, err error) {
	ctx, span := startSpan(ctx, "Engine.OpenArtifact", actor, attribute.String("submission.id", id.String()))
	defer func() { endSpan(span, err) }()

	err = e.inTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		sub, err = e.Submissions.GetByID(ctx, tx, id)
		if err != nil {
			return err
		}
		_, err = e.followProject(ctx, tx, actor, sub.ProjectID)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	rc, err = e.Artifacts.Open(ctx, sub.ArtifactRef)
	if err != nil {
		return nil, nil, apperror.External("could not open artifact", err)
	}
	return rc, sub, nil
}

// GetTask returns one task to its project's buyer, its solver or an admin.
func (e *Engine) GetTask(ctx context.Context, actor models.Actor, id uuid.UUID) (t *models.Task, err error) {
	ctx, span := startSpan(ctx, "Engine.GetTask", actor, attribute.String("task.id", id.String()))
	defer func() { endSpan(span, err) }()

	err = e.inTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		t, err = e.Tasks.GetByID(ctx, tx, id)
		if err != nil {
			return err
		}
		_, err = e.followProject(ctx, tx, actor, t.ProjectID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}

func (e *Engine) GetSubmission(ctx context.Context, actor models.Actor, id uuid.UUID) (sub *models.Submission, err error) {
	ctx, span := startSpan(ctx, "Engine.GetSubmission", actor, attribute.String("submission.id", id.String()))
	defer func() { endSpan(span, err) }()

	err = e.inTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		sub, err = e.Submissions.GetByID(ctx, tx, id)
		if err != nil {
			return err
		}
		_, err = e.followProject(ctx, tx, actor, sub.ProjectID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return sub, nil
}
