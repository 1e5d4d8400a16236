package services

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel/attribute"

	"github.com/solverhub/backend/internal/apperror"
	"github.com/solverhub/backend/internal/models"
)

// SprintInput describes a new sprint. Order defaults to 1.
type SprintInput struct {
	Title       string
	Description string
	StartDate   time.Time
	EndDate     time.Time
	Order       *int
}

type SprintPatch struct {
	Title       *string
	Description *string
	StartDate   *time.Time
	EndDate     *time.Time
	Order       *int
}

// FeatureInput describes a new feature. Status defaults to todo and
// Priority to medium.
type FeatureInput struct {
	SprintID       *uuid.UUID
	Title          string
	Description    string
	Status         string
	Priority       string
	AssigneeID     *uuid.UUID
	EstimatedHours *int
	Order          int
}

// canPlan reports whether p still accepts plan changes.
func canPlan(p *models.Project) bool {
	switch p.Status {
	case models.ProjectStatusOpen, models.ProjectStatusAssigned, models.ProjectStatusInProgress:
		return true
	}
	return false
}

// lockPlan locks the project for a plan change by its buyer.
func (e *Engine) lockPlan(ctx context.Context, tx pgx.Tx, buyer models.Buyer, projectID uuid.UUID) (*models.Project, error) {
	p, err := e.Projects.GetByIDForUpdate(ctx, tx, projectID)
	if err != nil {
		return nil, err
	}
	if p.BuyerID != buyer.ID {
		return nil, apperror.Forbidden("only the project owner can change its plan")
	}
	if !canPlan(p) {
		return nil, apperror.InvalidState("the plan of a " + p.Status + " project is frozen")
	}
	return p, nil
}

func checkSprintDates(start, end time.Time) error {
	if start.IsZero() || end.IsZero() {
		return apperror.Validation("start_date and end_date are required")
	}
	if end.Before(start) {
		return apperror.Validation("end_date must not be before start_date")
	}
	return nil
}

// checkFeature validates a feature's fields against its project.
func (e *Engine) checkFeature(ctx context.Context, tx pgx.Tx, p *models.Project, f *models.Feature) error {
	if f.Title == "" {
		return apperror.Validation("title is required")
	}
	if !models.ValidFeatureStatus(f.Status) {
		return apperror.Validation("unknown feature status " + f.Status)
	}
	if !models.ValidPriority(f.Priority) {
		return apperror.Validation("unknown priority " + f.Priority)
	}
	if f.EstimatedHours != nil && *f.EstimatedHours < 0 {
		return apperror.Validation("estimated_hours must not be negative")
	}
	if f.AssigneeID != nil && *f.AssigneeID != p.BuyerID && !p.IsAssignedTo(*f.AssigneeID) {
		return apperror.Validation("assignee must take part in the project")
	}
	if f.SprintID != nil {
		s, err := e.Sprints.GetByID(ctx, tx, *f.SprintID)
		if err != nil {
			return err
		}
		if s.ProjectID != p.ID {
			return apperror.Validation("sprint belongs to another project")
		}
	}
	return nil
}

// withFeatures attaches each feature to its sprint. Features outside the
// given sprints are ignored.
func withFeatures(sprints []*models.Sprint, features []*models.Feature) {
	for _, s := range sprints {
		s.Features = []*models.Feature{}
		for _, f := range features {
			if f.SprintID != nil && *f.SprintID == s.ID {
				s.Features = append(s.Features, f)
			}
		}
	}
}

// CreateSprint adds a sprint to the buyer's project.
func (e *Engine) CreateSprint(ctx context.Context, actor models.Actor, projectID uuid.UUID, in SprintInput) (s *models.Sprint, err error) {
	ctx, span := startSpan(ctx, "Engine.CreateSprint", actor, attribute.String("project.id", projectID.String()))
	defer func() { endSpan(span, err) }()

	buyer, ok := actor.(models.Buyer)
	if !ok {
		return nil, apperror.Forbidden("only the project owner can create sprints")
	}
	in.Title = strings.TrimSpace(in.Title)
	if in.Title == "" {
		return nil, apperror.Validation("title is required")
	}
	if err := checkSprintDates(in.StartDate, in.EndDate); err != nil {
		return nil, err
	}
	order := 1
	if in.Order != nil {
		order = *in.Order
	}

	err = e.inTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		p, err := e.lockPlan(ctx, tx, buyer, projectID)
		if err != nil {
			return err
		}
		now := e.now()
		s = &models.Sprint{
			ID:          uuid.New(),
			ProjectID:   p.ID,
			Title:       in.Title,
			Description: strings.TrimSpace(in.Description),
			StartDate:   in.StartDate,
			EndDate:     in.EndDate,
			Order:       order,
			CreatedAt:   now,
			UpdatedAt:   now,
			Features:    []*models.Feature{},
		}
		return e.Sprints.Create(ctx, tx, s)
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}

// ListSprints returns a project's sprints with their features.
func (e *Engine) ListSprints(ctx context.Context, actor models.Actor, projectID uuid.UUID) (list []*models.Sprint, err error) {
	ctx, span := startSpan(ctx, "Engine.ListSprints", actor, attribute.String("project.id", projectID.String()))
	defer func() { endSpan(span, err) }()

	err = e.inTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		if _, err := e.followProject(ctx, tx, actor, projectID); err != nil {
			return err
		}
		list, err = e.Sprints.ListByProject(ctx, tx, projectID)
		if err != nil {
			return err
		}
		features, err := e.Features.ListByProject(ctx, tx, projectID)
		if err != nil {
			return err
		}
		withFeatures(list, features)
		return nil
	})
	return list, err
}

// GetSprint returns one sprint with its features.
func (e *Engine) GetSprint(ctx context.Context, actor models.Actor, id uuid.UUID) (s *models.Sprint, err error) {
	ctx, span := startSpan(ctx, "Engine.GetSprint", actor, attribute.String("sprint.id", id.String()))
	defer func() { endSpan(span, err) }()

	err = e.inTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		s, err = e.Sprints.GetByID(ctx, tx, id)
		if err != nil {
			return err
		}
		if _, err := e.followProject(ctx, tx, actor, s.ProjectID); err != nil {
			return err
		}
		features, err := e.Features.ListByProject(ctx, tx, s.ProjectID)
		if err != nil {
			return err
		}
		withFeatures([]*models.Sprint{s}, features)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}

// lockSprint loads the sprint, locks its project for the buyer and re-reads
// the sprint under the lock.
func (e *Engine) lockSprint(ctx context.Context, tx pgx.Tx, buyer models.Buyer, id uuid.UUID) (*models.Sprint, error) {
	s, err := e.Sprints.GetByID(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if _, err := e.lockPlan(ctx, tx, buyer, s.ProjectID); err != nil {
		return nil, err
	}
	return e.Sprints.GetByID(ctx, tx, id)
}

func (e *Engine) UpdateSprint(ctx context.Context, actor models.Actor, id uuid.UUID, patch SprintPatch) (s *models.Sprint, err error) {
	ctx, span := startSpan(ctx, "Engine.UpdateSprint", actor, attribute.String("sprint.id", id.String()))
	defer func() { endSpan(span, err) }()

	buyer, ok := actor.(models.Buyer)
	if !ok {
		return nil, apperror.Forbidden("only the project owner can update sprints")
	}
	err = e.inTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		s, err = e.lockSprint(ctx, tx, buyer, id)
		if err != nil {
			return err
		}
		if patch.Title != nil {
			s.Title = strings.TrimSpace(*patch.Title)
			if s.Title == "" {
				return apperror.Validation("title is required")
			}
		}
		if patch.Description != nil {
			s.Description = strings.TrimSpace(*patch.Description)
		}
		if patch.StartDate != nil {
			s.StartDate = *patch.StartDate
		}
		if patch.EndDate != nil {
			s.EndDate = *patch.EndDate
		}
		if patch.Order != nil {
			s.Order = *patch.Order
		}
		if err := checkSprintDates(s.StartDate, s.EndDate); err != nil {
			return err
		}
		s.UpdatedAt = e.now()
		if err := e.Sprints.Update(ctx, tx, s); err != nil {
			return err
		}
		features, err := e.Features.ListByProject(ctx, tx, s.ProjectID)
		if err != nil {
			return err
		}
		withFeatures([]*models.Sprint{s}, features)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}

// DeleteSprint removes a sprint and its features and returns what was removed.
func (e *Engine) DeleteSprint(ctx context.Context, actor models.Actor, id uuid.UUID) (s *models.Sprint, err error) {
	ctx, span := startSpan(ctx, "Engine.DeleteSprint", actor, attribute.String("sprint.id", id.String()))
	defer func() { endSpan(span, err) }()

	buyer, ok := actor.(models.Buyer)
	if !ok {
		return nil, apperror.Forbidden("only the project owner can delete sprints")
	}
	err = e.inTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		s, err = e.lockSprint(ctx, tx, buyer, id)
		if err != nil {
			return err
		}
		features, err := e.Features.ListByProject(ctx, tx, s.ProjectID)
		if err != nil {
			return err
		}
		withFeatures([]*models.Sprint{s}, features)
		return e.Sprints.Delete(ctx, tx, s.ID)
	})
	if err != nil {
		return nil, err
	}
	e.log().Info("sprint deleted", "sprint_id", s.ID, "project_id", s.ProjectID, "features", len(s.Features))
	return s, nil
}

// CreateFeature adds a feature to the project backlog or to one of its sprints.
func (e *Engine) CreateFeature(ctx context.Context, actor models.Actor, projectID uuid.UUID, in FeatureInput) (f *models.Feature, err error) {
	ctx, span := startSpan(ctx, "Engine.CreateFeature", actor, attribute.String("project.id", projectID.String()))
	defer func() { endSpan(span, err) }()

	buyer, ok := actor.(models.Buyer)
	if !ok {
		return nil, apperror.Forbidden("only the project owner can create features")
	}
	if in.Status == "" {
		in.Status = models.FeatureStatusTodo
	}
	if in.Priority == "" {
		in.Priority = models.PriorityMedium
	}

	err = e.inTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		p, err := e.lockPlan(ctx, tx, buyer, projectID)
		if err != nil {
			return err
		}
		now := e.now()
		f = &models.Feature{
			ID:             uuid.New(),
			ProjectID:      p.ID,
			SprintID:       in.SprintID,
			Title:          strings.TrimSpace(in.Title),
			Description:    strings.TrimSpace(in.Description),
			Status:         in.Status,
			Priority:       in.Priority,
			AssigneeID:     in.AssigneeID,
			EstimatedHours: in.EstimatedHours,
			Order:          in.Order,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if err := e.checkFeature(ctx, tx, p, f); err != nil {
			return err
		}
		return e.Features.Create(ctx, tx, f)
	})
	if err != nil {
		return nil, err
	}
	return f, nil
}

// ListFeatures returns every feature of a project, sprinted or not.
func (e *Engine) ListFeatures(ctx context.Context, actor models.Actor, projectID uuid.UUID) (list []*models.Feature, err error) {
	ctx, span := startSpan(ctx, "Engine.ListFeatures", actor, attribute.String("project.id", projectID.String()))
	defer func() { endSpan(span, err) }()

	err = e.inTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		if _, err := e.followProject(ctx, tx, actor, projectID); err != nil {
			return err
		}
		list, err = e.Features.ListByProject(ctx, tx, projectID)
		return err
	})
	return list, err
}

func (e *Engine) GetFeature(ctx context.Context, actor models.Actor, id uuid.UUID) (f *models.Feature, err error) {
	ctx, span := startSpan(ctx, "Engine.GetFeature", actor, attribute.String("feature.id", id.String()))
	defer func() { endSpan(span, err) }()

	err = e.inTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		f, err = e.Features.GetByID(ctx, tx, id)
		if err != nil {
			return err
		}
		_, err = e.followProject(ctx, tx, actor, f.ProjectID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return f, nil
}

// UpdateFeature edits a feature. The buyer may change any field; the
// assigned solver may only move its status.
func (e *Engine) UpdateFeature(ctx context.Context, actor models.Actor, id uuid.UUID, patch models.FeaturePatch) (f *models.Feature, err error) {
	ctx, span := startSpan(ctx, "Engine.UpdateFeature", actor, attribute.String("feature.id", id.String()))
	defer func() { endSpan(span, err) }()

	err = e.inTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		first, err := e.Features.GetByID(ctx, tx, id)
		if err != nil {
			return err
		}
		p, err := e.Projects.GetByIDForUpdate(ctx, tx, first.ProjectID)
		if err != nil {
			return err
		}
		f, err = e.Features.GetByID(ctx, tx, id)
		if err != nil {
			return err
		}

		switch a := actor.(type) {
		case models.Buyer:
			if p.BuyerID != a.ID {
				return apperror.Forbidden("not a participant of this project")
			}
		case models.Solver:
			if !p.IsAssignedTo(a.ID) {
				return apperror.Forbidden("not a participant of this project")
			}
			if !patch.OnlyStatus() {
				return apperror.Forbidden("solvers can only change a feature's status")
			}
		default:
			return apperror.Forbidden("not a participant of this project")
		}
		if !canPlan(p) {
			return apperror.InvalidState("the plan of a " + p.Status + " project is frozen")
		}

		if patch.SprintID != nil {
			if *patch.SprintID == uuid.Nil {
				f.SprintID = nil
			} else {
				f.SprintID = patch.SprintID
			}
		}
		if patch.Title != nil {
			f.Title = strings.TrimSpace(*patch.Title)
		}
		if patch.Description != nil {
			f.Description = strings.TrimSpace(*patch.Description)
		}
		if patch.Status != nil {
			f.Status = *patch.Status
		}
		if patch.Priority != nil {
			f.Priority = *patch.Priority
		}
		if patch.AssigneeID != nil {
			if *patch.AssigneeID == uuid.Nil {
				f.AssigneeID = nil
			} else {
				f.AssigneeID = patch.AssigneeID
			}
		}
		if patch.EstimatedHours != nil {
			f.EstimatedHours = patch.EstimatedHours
		}
		if patch.Order != nil {
			f.Order = *patch.Order
		}
		if err := e.checkFeature(ctx, tx, p, f); err != nil {
			return err
		}
		f.UpdatedAt = e.now()
		return e.Features.Update(ctx, tx, f)
	})
	if err != nil {
		return nil, err
	}
	return f, nil
}

// DeleteFeature removes a feature and returns it.
func (e *Engine) DeleteFeature(ctx context.Context, actor models.Actor, id uuid.UUID) (f *models.Feature, err error) {
	ctx, span := startSpan(ctx, "Engine.DeleteFeature", actor, attribute.String("feature.id", id.String()))
	defer func() { endSpan(span, err) }()

	buyer, ok := actor.(models.Buyer)
	if !ok {
		return nil, apperror.Forbidden("only the project owner can delete features")
	}
	err = e.inTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		first, err := e.Features.GetByID(ctx, tx, id)
		if err != nil {
			return err
		}
		if _, err := e.lockPlan(ctx, tx, buyer, first.ProjectID); err != nil {
			return err
		}
		f, err = e.Features.GetByID(ctx, tx, id)
		if err != nil {
			return err
		}
		return e.Features.Delete(ctx, tx, f.ID)
	})
	if err != nil {
		return nil, err
	}
	return f, nil
}
