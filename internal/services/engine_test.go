package services

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/solverhub/backend/internal/apperror"
	"github.com/solverhub/backend/internal/ledger"
	"github.com/solverhub/backend/internal/models"
	"github.com/solverhub/backend/internal/repository/memory"
	"github.com/solverhub/backend/internal/settlement"
)

// ---------------------------------------------------------------------------
// Test doubles
// ---------------------------------------------------------------------------

// recordingNotifier keeps every event. failKind makes Notify fail for one kind
// so tests can abort a transaction late.
type recordingNotifier struct {
	mu       sync.Mutex
	events   []models.Event
	failKind string
}

func (n *recordingNotifier) Notify(_ context.Context, _ pgx.Tx, ev models.Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if ev.Kind == n.failKind {
		return errors.New("notifier unavailable")
	}
	n.events = append(n.events, ev)
	return nil
}

func (n *recordingNotifier) kinds() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, len(n.events))
	for i, ev := range n.events {
		out[i] = ev.Kind
	}
	return out
}

func (n *recordingNotifier) count(kind string) int {
	c := 0
	for _, k := range n.kinds() {
		if k == kind {
			c++
		}
	}
	return c
}

type memArtifacts struct {
	mu    sync.Mutex
	files map[string][]byte
	next  int
	fail  error
}

func newMemArtifacts() *memArtifacts {
	return &memArtifacts{files: make(map[string][]byte)}
}

func (m *memArtifacts) Save(_ context.Context, name string, r io.Reader) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return "", m.fail
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	m.next++
	ref := fmt.Sprintf("%d-%s", m.next, name)
	m.files[ref] = data
	return ref, nil
}

func (m *memArtifacts) Open(_ context.Context, ref string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.files[ref]
	if !ok {
		return nil, apperror.NotFound("artifact")
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *memArtifacts) Delete(_ context.Context, ref string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.files, ref)
	return nil
}

func (m *memArtifacts) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.files)
}

// ---------------------------------------------------------------------------
// Harness
// ---------------------------------------------------------------------------

type harness struct {
	engine *Engine
	store  *memory.Store
	settle *settlement.Sandbox
	notes  *recordingNotifier
	files  *memArtifacts
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	store := memory.New()
	h := &harness{
		store:  store,
		settle: settlement.NewSandbox(),
		notes:  &recordingNotifier{},
		files:  newMemArtifacts(),
	}

	var clockMu sync.Mutex
	clock := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	h.engine = &Engine{
		Pool:         store,
		Projects:     store.Projects,
		Applications: store.Applications,
		Assignments:  store.Assignments,
		Tasks:        store.Tasks,
		Submissions:  store.Submissions,
		Payments:     store.Payments,
		Sprints:      store.Sprints,
		Features:     store.Features,
		Users:        store.Users,
		Ledger:       ledger.NewService(store.Ledger),
		Notifier:     h.notes,
		Settlement:   h.settle,
		Artifacts:    h.files,
		Now: func() time.Time {
			clockMu.Lock()
			defer clockMu.Unlock()
			clock = clock.Add(time.Second)
			return clock
		},
		TxTimeout:      5 * time.Second,
		MaxBudgetCents: 100_000_00,
	}
	return h
}

func newBuyer() models.Buyer   { return models.Buyer{ID: uuid.New()} }
func newSolver() models.Solver { return models.Solver{ID: uuid.New()} }

func (h *harness) openProject(t *testing.T, buyer models.Buyer, budget int64) *models.Project {
	t.Helper()
	p, err := h.engine.CreateProject(context.Background(), buyer, ProjectInput{
		Title:       "Data pipeline",
		Description: "Move CSV exports into the warehouse",
		Category:    models.CategoryDataScience,
		BudgetCents: budget,
	})
	if err != nil {
		t.Fatalf("CreateProject: %v", err)
	}
	return p
}

func (h *harness) apply(t *testing.T, solver models.Solver, projectID uuid.UUID) *models.Application {
	t.Helper()
	app, err := h.engine.Apply(context.Background(), solver, projectID)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	return app
}

// assigned returns a project matched to a solver.
func (h *harness) assigned(t *testing.T, budget int64) (models.Buyer, models.Solver, *models.Project) {
	t.Helper()
	buyer, solver := newBuyer(), newSolver()
	p := h.openProject(t, buyer, budget)
	app := h.apply(t, solver, p.ID)
	if _, err := h.engine.AcceptApplication(context.Background(), buyer, app.ID); err != nil {
		t.Fatalf("AcceptApplication: %v", err)
	}
	return buyer, solver, p
}

// inProgress returns a project with one task created by its solver.
func (h *harness) inProgress(t *testing.T, budget int64) (models.Buyer, models.Solver, *models.Project, *models.Task) {
	t.Helper()
	buyer, solver, p := h.assigned(t, budget)
	task, err := h.engine.CreateTask(context.Background(), solver, p.ID, TaskInput{Title: "Schema design"})
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	return buyer, solver, p, task
}

func (h *harness) project(t *testing.T, id uuid.UUID) *models.Project {
	t.Helper()
	p, err := h.store.Projects.GetByID(context.Background(), nil, id)
	if err != nil {
		t.Fatalf("load project: %v", err)
	}
	return p
}

func zipBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	f, err := zw.Create("README.md")
	if err != nil {
		t.Fatal(err)
	}
	_, _ = f.Write([]byte("deliverable"))
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func wantCode(t *testing.T, err error, code apperror.Code) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s, got nil", code)
	}
	if got := apperror.CodeOf(err); got != code {
		t.Fatalf("expected %s, got %s (%v)", code, got, err)
	}
}

func wantHistory(t *testing.T, h *harness, id uuid.UUID, want ...string) {
	t.Helper()
	got := h.store.ProjectHistory(id)
	if len(got) != len(want) {
		t.Fatalf("project history = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("project history = %v, want %v", got, want)
		}
	}
	for i := 1; i < len(got); i++ {
		if !models.CanTransitionProject(got[i-1], got[i]) {
			t.Errorf("illegal edge %s -> %s in history", got[i-1], got[i])
		}
	}
}
