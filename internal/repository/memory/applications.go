package memory

import (
	"context"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/solverhub/backend/internal/apperror"
	"github.com/solverhub/backend/internal/models"
)

type ApplicationRepo struct{ s *Store }

// checkUnique enforces UNIQUE (project_id, solver_id) and one accepted
// application per project. Callers hold s.mu.
func (r *ApplicationRepo) checkUnique(a *models.Application) error {
	for id, other := range r.s.applications {
		if id == a.ID || other.ProjectID != a.ProjectID {
			continue
		}
		if other.SolverID == a.SolverID {
			return uniqueViolation("applications_project_id_solver_id_key")
		}
		if a.Status == models.ApplicationStatusAccepted && other.Status == models.ApplicationStatusAccepted {
			return uniqueViolation("applications_one_accepted_idx")
		}
	}
	return nil
}

func (r *ApplicationRepo) Create(_ context.Context, tx pgx.Tx, a *models.Application) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.applications[a.ID]; ok {
		return uniqueViolation("applications_pkey")
	}
	if err := r.checkUnique(a); err != nil {
		return err
	}
	s.applications[a.ID] = *a
	s.stamp(a.ID)
	s.track(tx, func() { delete(s.applications, a.ID) })
	return nil
}

func (r *ApplicationRepo) GetByID(_ context.Context, _ pgx.Tx, id uuid.UUID) (*models.Application, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a, ok := r.s.applications[id]
	if !ok {
		return nil, apperror.NotFound("application")
	}
	return &a, nil
}

func (r *ApplicationRepo) Exists(_ context.Context, _ pgx.Tx, projectID, solverID uuid.UUID) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, a := range r.s.applications {
		if a.ProjectID == projectID && a.SolverID == solverID {
			return true, nil
		}
	}
	return false, nil
}

func (r *ApplicationRepo) Update(_ context.Context, tx pgx.Tx, a *models.Application) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	old, ok := s.applications[a.ID]
	if !ok {
		return apperror.NotFound("application")
	}
	if err := r.checkUnique(a); err != nil {
		return err
	}
	upd := old
	upd.Status = a.Status
	upd.RespondedAt = a.RespondedAt
	s.applications[a.ID] = upd
	s.track(tx, func() { s.applications[a.ID] = old })
	return nil
}

func (r *ApplicationRepo) RejectPendingExcept(_ context.Context, tx pgx.Tx, projectID, keepID uuid.UUID, at time.Time) ([]*models.Application, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	var (
		rejected []*models.Application
		olds     []models.Application
	)
	for id, a := range s.applications {
		if a.ProjectID != projectID || id == keepID || a.Status != models.ApplicationStatusPending {
			continue
		}
		olds = append(olds, a)
		a.Status = models.ApplicationStatusRejected
		a.RespondedAt = &at
		s.applications[id] = a
		rejected = append(rejected, &a)
	}
	s.track(tx, func() {
		for _, old := range olds {
			s.applications[old.ID] = old
		}
	})
	slices.SortFunc(rejected, func(a, b *models.Application) int {
		return s.order(a.RequestedAt, b.RequestedAt, a.ID, b.ID, false)
	})
	return rejected, nil
}

func (r *ApplicationRepo) list(keep func(models.Application) bool, desc bool) []*models.Application {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	var list []*models.Application
	for _, a := range s.applications {
		if keep(a) {
			list = append(list, &a)
		}
	}
	slices.SortFunc(list, func(a, b *models.Application) int {
		return s.order(a.RequestedAt, b.RequestedAt, a.ID, b.ID, desc)
	})
	return list
}

func (r *ApplicationRepo) ListByProject(_ context.Context, _ pgx.Tx, projectID uuid.UUID) ([]*models.Application, error) {
	return r.list(func(a models.Application) bool { return a.ProjectID == projectID }, false), nil
}

func (r *ApplicationRepo) ListBySolver(_ context.Context, _ pgx.Tx, solverID uuid.UUID) ([]*models.Application, error) {
	return r.list(func(a models.Application) bool { return a.SolverID == solverID }, true), nil
}

func (r *ApplicationRepo) CountBySolver(_ context.Context, _ pgx.Tx, solverID uuid.UUID) (total, accepted int64, err error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, a := range r.s.applications {
		if a.SolverID != solverID {
			continue
		}
		total++
		if a.Status == models.ApplicationStatusAccepted {
			accepted++
		}
	}
	return total, accepted, nil
}

// AssignmentRepo keys assignments by project; a project has at most one.
type AssignmentRepo struct{ s *Store }

func (r *AssignmentRepo) Create(_ context.Context, tx pgx.Tx, a *models.Assignment) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.assignments[a.ProjectID]; ok {
		return uniqueViolation("assignments_project_id_key")
	}
	s.assignments[a.ProjectID] = *a
	s.track(tx, func() { delete(s.assignments, a.ProjectID) })
	return nil
}

func (r *AssignmentRepo) GetByProject(_ context.Context, _ pgx.Tx, projectID uuid.UUID) (*models.Assignment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a, ok := r.s.assignments[projectID]
	if !ok {
		return nil, apperror.NotFound("assignment")
	}
	return &a, nil
}

func (r *AssignmentRepo) MarkCompleted(_ context.Context, tx pgx.Tx, projectID uuid.UUID, at time.Time) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	old, ok := s.assignments[projectID]
	if !ok || old.CompletedAt != nil {
		return apperror.NotFound("assignment")
	}
	upd := old
	upd.CompletedAt = &at
	s.assignments[projectID] = upd
	s.track(tx, func() { s.assignments[projectID] = old })
	return nil
}
