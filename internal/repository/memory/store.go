// Package memory is an in-process implementation of the marketplace
// repositories. It backs the test suites and `serve --memory`.
package memory

import (
	"cmp"
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/solverhub/backend/internal/models"
)

// Store holds every table in maps guarded by one mutex. Project row locks are
// separate so a transaction can wait on a lock without blocking readers.
type Store struct {
	mu    sync.Mutex
	locks map[uuid.UUID]chan struct{}
	seq   map[uuid.UUID]int64
	next  int64

	users        map[uuid.UUID]models.User
	projects     map[uuid.UUID]models.Project
	history      map[uuid.UUID][]string
	applications map[uuid.UUID]models.Application
	assignments  map[uuid.UUID]models.Assignment
	tasks        map[uuid.UUID]models.Task
	submissions  map[uuid.UUID]models.Submission
	payments     map[uuid.UUID]models.Payment
	events       map[uuid.UUID]models.PaymentEvent
	sprints      map[uuid.UUID]models.Sprint
	features     map[uuid.UUID]models.Feature

	Users        *UserRepo
	Projects     *ProjectRepo
	Applications *ApplicationRepo
	Assignments  *AssignmentRepo
	Tasks        *TaskRepo
	Submissions  *SubmissionRepo
	Payments     *PaymentRepo
	Sprints      *SprintRepo
	Features     *FeatureRepo
	Ledger       *LedgerRepo
}

func New() *Store {
	s := &Store{
		locks:        make(map[uuid.UUID]chan struct{}),
		seq:          make(map[uuid.UUID]int64),
		users:        make(map[uuid.UUID]models.User),
		projects:     make(map[uuid.UUID]models.Project),
		history:      make(map[uuid.UUID][]string),
		applications: make(map[uuid.UUID]models.Application),
		assignments:  make(map[uuid.UUID]models.Assignment),
		tasks:        make(map[uuid.UUID]models.Task),
		submissions:  make(map[uuid.UUID]models.Submission),
		payments:     make(map[uuid.UUID]models.Payment),
		events:       make(map[uuid.UUID]models.PaymentEvent),
		sprints:      make(map[uuid.UUID]models.Sprint),
		features:     make(map[uuid.UUID]models.Feature),
	}
	s.Users = &UserRepo{s: s}
	s.Projects = &ProjectRepo{s: s}
	s.Applications = &ApplicationRepo{s: s}
	s.Assignments = &AssignmentRepo{s: s}
	s.Tasks = &TaskRepo{s: s}
	s.Submissions = &SubmissionRepo{s: s}
	s.Payments = &PaymentRepo{s: s}
	s.Sprints = &SprintRepo{s: s}
	s.Features = &FeatureRepo{s: s}
	s.Ledger = &LedgerRepo{s: s}
	return s
}

// Begin starts a transaction. It satisfies the engine's TxBeginner.
func (s *Store) Begin(ctx context.Context) (pgx.Tx, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &Tx{store: s}, nil
}

// ProjectHistory returns every status the project has held, in order.
func (s *Store) ProjectHistory(id uuid.UUID) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.history[id]...)
}

var errNeedTx = errors.New("memory: row lock requires a transaction")

// lockProject blocks until tx owns the project's row lock or ctx is done.
func (s *Store) lockProject(ctx context.Context, tx pgx.Tx, id uuid.UUID) error {
	t, ok := tx.(*Tx)
	if !ok || t == nil {
		return errNeedTx
	}
	if t.done {
		return pgx.ErrTxClosed
	}
	if t.holds(id) {
		return nil
	}
	s.mu.Lock()
	ch, ok := s.locks[id]
	if !ok {
		ch = make(chan struct{}, 1)
		s.locks[id] = ch
	}
	s.mu.Unlock()

	select {
	case ch <- struct{}{}:
		t.held = append(t.held, id)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Store) unlock(id uuid.UUID) {
	s.mu.Lock()
	ch := s.locks[id]
	s.mu.Unlock()
	<-ch
}

// track registers undo with tx. Writes outside a transaction are final.
// Callers hold s.mu.
func (s *Store) track(tx pgx.Tx, undo func()) {
	if t, ok := tx.(*Tx); ok && t != nil && !t.done {
		t.undo = append(t.undo, undo)
	}
}

// stamp assigns an insertion sequence used to break timestamp ties.
// Callers hold s.mu.
func (s *Store) stamp(id uuid.UUID) {
	if _, ok := s.seq[id]; !ok {
		s.next++
		s.seq[id] = s.next
	}
}

// order compares two rows by time, then by insertion order.
func (s *Store) order(ta, tb time.Time, a, b uuid.UUID, desc bool) int {
	c := ta.Compare(tb)
	if c == 0 {
		c = cmp.Compare(s.seq[a], s.seq[b])
	}
	if desc {
		return -c
	}
	return c
}

func uniqueViolation(constraint string) error {
	return &pgconn.PgError{
		Severity:       "ERROR",
		Code:           "23505",
		Message:        "duplicate key value violates unique constraint \"" + constraint + "\"",
		ConstraintName: constraint,
	}
}
