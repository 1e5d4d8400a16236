package memory

import (
	"context"
	"slices"

	"github.com/google/uuid"

	"github.com/solverhub/backend/internal/apperror"
	"github.com/solverhub/backend/internal/models"
)

// UserRepo satisfies auth.UserStore. User writes are not transactional.
type UserRepo struct{ s *Store }

func (r *UserRepo) Create(_ context.Context, u *models.User) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, other := range s.users {
		if other.Email == u.Email {
			return uniqueViolation("users_email_key")
		}
	}
	s.users[u.ID] = *u
	s.stamp(u.ID)
	return nil
}

func (r *UserRepo) GetByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return nil, apperror.NotFound("user")
	}
	return &u, nil
}

func (r *UserRepo) GetByEmail(_ context.Context, email string) (*models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, u := range r.s.users {
		if u.Email == email {
			return &u, nil
		}
	}
	return nil, apperror.NotFound("user")
}

func (r *UserRepo) List(_ context.Context) ([]*models.User, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	var list []*models.User
	for _, u := range s.users {
		list = append(list, &u)
	}
	slices.SortFunc(list, func(a, b *models.User) int {
		return s.order(a.CreatedAt, b.CreatedAt, a.ID, b.ID, true)
	})
	return list, nil
}

func (r *UserRepo) Update(_ context.Context, u *models.User) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	old, ok := s.users[u.ID]
	if !ok {
		return apperror.NotFound("user")
	}
	old.FullName = u.FullName
	old.Role = u.Role
	old.IsActive = u.IsActive
	old.UpdatedAt = u.UpdatedAt
	s.users[u.ID] = old
	return nil
}
