package memory

import (
	"cmp"
	"context"
	"slices"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/solverhub/backend/internal/apperror"
	"github.com/solverhub/backend/internal/models"
)

// byOrder sorts by the explicit order, then by creation. Callers hold s.mu.
func (s *Store) byOrder(oa, ob int, a, b uuid.UUID) int {
	if c := cmp.Compare(oa, ob); c != 0 {
		return c
	}
	return cmp.Compare(s.seq[a], s.seq[b])
}

type SprintRepo struct{ s *Store }

func (r *SprintRepo) Create(_ context.Context, tx pgx.Tx, sp *models.Sprint) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sprints[sp.ID]; ok {
		return uniqueViolation("sprints_pkey")
	}
	row := *sp
	row.Features = nil
	s.sprints[sp.ID] = row
	s.stamp(sp.ID)
	s.track(tx, func() { delete(s.sprints, sp.ID) })
	return nil
}

func (r *SprintRepo) GetByID(_ context.Context, _ pgx.Tx, id uuid.UUID) (*models.Sprint, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	sp, ok := r.s.sprints[id]
	if !ok {
		return nil, apperror.NotFound("sprint")
	}
	return &sp, nil
}

func (r *SprintRepo) Update(_ context.Context, tx pgx.Tx, sp *models.Sprint) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	old, ok := s.sprints[sp.ID]
	if !ok {
		return apperror.NotFound("sprint")
	}
	upd := old
	upd.Title = sp.Title
	upd.Description = sp.Description
	upd.StartDate = sp.StartDate
	upd.EndDate = sp.EndDate
	upd.Order = sp.Order
	upd.UpdatedAt = sp.UpdatedAt
	s.sprints[sp.ID] = upd
	s.track(tx, func() { s.sprints[sp.ID] = old })
	return nil
}

// Delete cascades to the sprint's features.
func (r *SprintRepo) Delete(_ context.Context, tx pgx.Tx, id uuid.UUID) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	old, ok := s.sprints[id]
	if !ok {
		return apperror.NotFound("sprint")
	}
	var removed []models.Feature
	for fid, f := range s.features {
		if f.SprintID != nil && *f.SprintID == id {
			removed = append(removed, f)
			delete(s.features, fid)
		}
	}
	delete(s.sprints, id)
	s.track(tx, func() {
		s.sprints[id] = old
		for _, f := range removed {
			s.features[f.ID] = f
		}
	})
	return nil
}

func (r *SprintRepo) ListByProject(_ context.Context, _ pgx.Tx, projectID uuid.UUID) ([]*models.Sprint, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	var list []*models.Sprint
	for _, sp := range s.sprints {
		if sp.ProjectID == projectID {
			list = append(list, &sp)
		}
	}
	slices.SortFunc(list, func(a, b *models.Sprint) int {
		return s.byOrder(a.Order, b.Order, a.ID, b.ID)
	})
	return list, nil
}

type FeatureRepo struct{ s *Store }

func (r *FeatureRepo) Create(_ context.Context, tx pgx.Tx, f *models.Feature) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.features[f.ID]; ok {
		return uniqueViolation("features_pkey")
	}
	s.features[f.ID] = *f
	s.stamp(f.ID)
	s.track(tx, func() { delete(s.features, f.ID) })
	return nil
}

func (r *FeatureRepo) GetByID(_ context.Context, _ pgx.Tx, id uuid.UUID) (*models.Feature, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	f, ok := r.s.features[id]
	if !ok {
		return nil, apperror.NotFound("feature")
	}
	return &f, nil
}

func (r *FeatureRepo) Update(_ context.Context, tx pgx.Tx, f *models.Feature) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	old, ok := s.features[f.ID]
	if !ok {
		return apperror.NotFound("feature")
	}
	upd := *f
	upd.ProjectID = old.ProjectID
	upd.CreatedAt = old.CreatedAt
	s.features[f.ID] = upd
	s.track(tx, func() { s.features[f.ID] = old })
	return nil
}

func (r *FeatureRepo) Delete(_ context.Context, tx pgx.Tx, id uuid.UUID) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	old, ok := s.features[id]
	if !ok {
		return apperror.NotFound("feature")
	}
	delete(s.features, id)
	s.track(tx, func() { s.features[id] = old })
	return nil
}

func (r *FeatureRepo) ListByProject(_ context.Context, _ pgx.Tx, projectID uuid.UUID) ([]*models.Feature, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	var list []*models.Feature
	for _, f := range s.features {
		if f.ProjectID == projectID {
			list = append(list, &f)
		}
	}
	slices.SortFunc(list, func(a, b *models.Feature) int {
		return s.byOrder(a.Order, b.Order, a.ID, b.ID)
	})
	return list, nil
}
