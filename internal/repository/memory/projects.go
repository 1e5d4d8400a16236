package memory

import (
	"context"
	"slices"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/solverhub/backend/internal/apperror"
	"github.com/solverhub/backend/internal/models"
)

type ProjectRepo struct{ s *Store }

func (r *ProjectRepo) Create(_ context.Context, tx pgx.Tx, p *models.Project) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.projects[p.ID]; ok {
		return uniqueViolation("projects_pkey")
	}
	s.projects[p.ID] = *p
	s.history[p.ID] = []string{p.Status}
	s.stamp(p.ID)
	s.track(tx, func() {
		delete(s.projects, p.ID)
		delete(s.history, p.ID)
	})
	return nil
}

func (r *ProjectRepo) GetByID(_ context.Context, _ pgx.Tx, id uuid.UUID) (*models.Project, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.projects[id]
	if !ok {
		return nil, apperror.NotFound("project")
	}
	return &p, nil
}

// GetByIDForUpdate takes the project's row lock, then reads it.
func (r *ProjectRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Project, error) {
	r.s.mu.Lock()
	_, ok := r.s.projects[id]
	r.s.mu.Unlock()
	if !ok {
		return nil, apperror.NotFound("project")
	}
	if err := r.s.lockProject(ctx, tx, id); err != nil {
		return nil, err
	}
	return r.GetByID(ctx, tx, id)
}

func (r *ProjectRepo) Update(_ context.Context, tx pgx.Tx, p *models.Project) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	old, ok := s.projects[p.ID]
	if !ok {
		return apperror.NotFound("project")
	}
	upd := *p
	upd.BuyerID = old.BuyerID
	upd.CreatedAt = old.CreatedAt
	s.projects[p.ID] = upd
	n := len(s.history[p.ID])
	if old.Status != upd.Status {
		s.history[p.ID] = append(s.history[p.ID], upd.Status)
	}
	s.track(tx, func() {
		s.projects[p.ID] = old
		s.history[p.ID] = s.history[p.ID][:n]
	})
	return nil
}

func (r *ProjectRepo) list(keep func(models.Project) bool, byUpdated bool) []*models.Project {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	var list []*models.Project
	for _, p := range s.projects {
		if keep(p) {
			list = append(list, &p)
		}
	}
	slices.SortFunc(list, func(a, b *models.Project) int {
		if byUpdated {
			return s.order(a.UpdatedAt, b.UpdatedAt, a.ID, b.ID, true)
		}
		return s.order(a.CreatedAt, b.CreatedAt, a.ID, b.ID, true)
	})
	return list
}

func (r *ProjectRepo) ListByBuyer(_ context.Context, _ pgx.Tx, buyerID uuid.UUID) ([]*models.Project, error) {
	return r.list(func(p models.Project) bool { return p.BuyerID == buyerID }, false), nil
}

func (r *ProjectRepo) ListBySolver(_ context.Context, _ pgx.Tx, solverID uuid.UUID) ([]*models.Project, error) {
	return r.list(func(p models.Project) bool {
		switch p.Status {
		case models.ProjectStatusAssigned, models.ProjectStatusInProgress, models.ProjectStatusCompleted:
			return p.IsAssignedTo(solverID)
		}
		return false
	}, true), nil
}

func (r *ProjectRepo) ListAll(_ context.Context, _ pgx.Tx) ([]*models.Project, error) {
	return r.list(func(models.Project) bool { return true }, false), nil
}

func (r *ProjectRepo) CountBySolver(_ context.Context, _ pgx.Tx, solverID uuid.UUID) (active, completed int64, err error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, p := range r.s.projects {
		if !p.IsAssignedTo(solverID) {
			continue
		}
		switch p.Status {
		case models.ProjectStatusAssigned, models.ProjectStatusInProgress:
			active++
		case models.ProjectStatusCompleted:
			completed++
		}
	}
	return active, completed, nil
}

func (r *ProjectRepo) Browse(_ context.Context, _ pgx.Tx, f models.ProjectFilter) ([]*models.ProjectListing, error) {
	search := strings.ToLower(f.Search)
	open := r.list(func(p models.Project) bool {
		if p.Status != models.ProjectStatusOpen {
			return false
		}
		if f.Category != "" && p.Category != f.Category {
			return false
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(p.Title), search) &&
			!strings.Contains(strings.ToLower(p.Description), search) {
			return false
		}
		return true
	}, false)

	switch f.Sort {
	case models.SortBudget:
		slices.SortStableFunc(open, func(a, b *models.Project) int { return int(sign(b.BudgetCents - a.BudgetCents)) })
	case models.SortTitle:
		slices.SortStableFunc(open, func(a, b *models.Project) int { return strings.Compare(a.Title, b.Title) })
	}

	if f.Offset >= len(open) {
		return nil, nil
	}
	open = open[f.Offset:]
	if f.Limit > 0 && f.Limit < len(open) {
		open = open[:f.Limit]
	}

	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	counts := make(map[uuid.UUID]int)
	for _, a := range s.applications {
		counts[a.ProjectID]++
	}
	list := make([]*models.ProjectListing, 0, len(open))
	for _, p := range open {
		list = append(list, &models.ProjectListing{Project: *p, ApplicationCount: counts[p.ID]})
	}
	return list, nil
}

func sign(n int64) int64 {
	switch {
	case n < 0:
		return -1
	case n > 0:
		return 1
	}
	return 0
}
