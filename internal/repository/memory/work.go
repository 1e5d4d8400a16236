package memory

import (
	"context"
	"slices"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/solverhub/backend/internal/apperror"
	"github.com/solverhub/backend/internal/models"
)

type TaskRepo struct{ s *Store }

func (r *TaskRepo) Create(_ context.Context, tx pgx.Tx, t *models.Task) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[t.ID]; ok {
		return uniqueViolation("tasks_pkey")
	}
	s.tasks[t.ID] = *t
	s.stamp(t.ID)
	s.track(tx, func() { delete(s.tasks, t.ID) })
	return nil
}

func (r *TaskRepo) GetByID(_ context.Context, _ pgx.Tx, id uuid.UUID) (*models.Task, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.tasks[id]
	if !ok {
		return nil, apperror.NotFound("task")
	}
	return &t, nil
}

func (r *TaskRepo) Update(_ context.Context, tx pgx.Tx, t *models.Task) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	old, ok := s.tasks[t.ID]
	if !ok {
		return apperror.NotFound("task")
	}
	upd := old
	upd.Title = t.Title
	upd.Description = t.Description
	upd.Status = t.Status
	upd.Deadline = t.Deadline
	upd.UpdatedAt = t.UpdatedAt
	s.tasks[t.ID] = upd
	s.track(tx, func() { s.tasks[t.ID] = old })
	return nil
}

func (r *TaskRepo) ListByProject(_ context.Context, _ pgx.Tx, projectID uuid.UUID) ([]*models.Task, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	var list []*models.Task
	for _, t := range s.tasks {
		if t.ProjectID == projectID {
			list = append(list, &t)
		}
	}
	slices.SortFunc(list, func(a, b *models.Task) int {
		return s.order(a.CreatedAt, b.CreatedAt, a.ID, b.ID, false)
	})
	return list, nil
}

type SubmissionRepo struct{ s *Store }

// checkPending enforces one pending submission per task. Callers hold s.mu.
func (r *SubmissionRepo) checkPending(sub *models.Submission) error {
	if sub.Status != models.SubmissionStatusPending {
		return nil
	}
	for id, other := range r.s.submissions {
		if id != sub.ID && other.TaskID == sub.TaskID && other.Status == models.SubmissionStatusPending {
			return uniqueViolation("submissions_one_pending_idx")
		}
	}
	return nil
}

func (r *SubmissionRepo) Create(_ context.Context, tx pgx.Tx, sub *models.Submission) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.submissions[sub.ID]; ok {
		return uniqueViolation("submissions_pkey")
	}
	if err := r.checkPending(sub); err != nil {
		return err
	}
	s.submissions[sub.ID] = *sub
	s.stamp(sub.ID)
	s.track(tx, func() { delete(s.submissions, sub.ID) })
	return nil
}

func (r *SubmissionRepo) GetByID(_ context.Context, _ pgx.Tx, id uuid.UUID) (*models.Submission, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	sub, ok := r.s.submissions[id]
	if !ok {
		return nil, apperror.NotFound("submission")
	}
	return &sub, nil
}

func (r *SubmissionRepo) Update(_ context.Context, tx pgx.Tx, sub *models.Submission) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	old, ok := s.submissions[sub.ID]
	if !ok {
		return apperror.NotFound("submission")
	}
	if err := r.checkPending(sub); err != nil {
		return err
	}
	upd := old
	upd.Status = sub.Status
	upd.RejectionReason = sub.RejectionReason
	upd.ReviewedAt = sub.ReviewedAt
	s.submissions[sub.ID] = upd
	s.track(tx, func() { s.submissions[sub.ID] = old })
	return nil
}

func (r *SubmissionRepo) HasPending(_ context.Context, _ pgx.Tx, taskID uuid.UUID) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, sub := range r.s.submissions {
		if sub.TaskID == taskID && sub.Status == models.SubmissionStatusPending {
			return true, nil
		}
	}
	return false, nil
}

func (r *SubmissionRepo) ListByProject(_ context.Context, _ pgx.Tx, projectID uuid.UUID) ([]*models.Submission, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	var list []*models.Submission
	for _, sub := range s.submissions {
		if sub.ProjectID == projectID {
			list = append(list, &sub)
		}
	}
	slices.SortFunc(list, func(a, b *models.Submission) int {
		return s.order(a.SubmittedAt, b.SubmittedAt, a.ID, b.ID, true)
	})
	return list, nil
}
