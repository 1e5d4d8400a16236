package services

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/solverhub/backend/internal/apperror"
	"github.com/solverhub/backend/internal/models"
)

// ---------------------------------------------------------------------------
// Apply
// ---------------------------------------------------------------------------

func TestApply(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	buyer := newBuyer()
	p := h.openProject(t, buyer, 10000)
	solver := newSolver()

	app := h.apply(t, solver, p.ID)
	if app.Status != models.ApplicationStatusPending || app.SolverID != solver.ID {
		t.Errorf("application = %+v", app)
	}
	if h.notes.count(models.EventApplicationReceived) != 1 {
		t.Errorf("events = %v", h.notes.kinds())
	}

	_, err := h.engine.Apply(ctx, solver, p.ID)
	wantCode(t, err, apperror.CodeConflict)

	_, err = h.engine.Apply(ctx, buyer, p.ID)
	wantCode(t, err, apperror.CodeForbidden)

	_, err = h.engine.Apply(ctx, solver, uuid.New())
	wantCode(t, err, apperror.CodeNotFound)
}

func TestApply_ConcurrentDuplicate(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	p := h.openProject(t, newBuyer(), 10000)
	solver := newSolver()

	const n = 10
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = h.engine.Apply(ctx, solver, p.ID)
		}(i)
	}
	wg.Wait()

	ok, conflicts := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case apperror.CodeOf(err) == apperror.CodeConflict:
			conflicts++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if ok != 1 || conflicts != n-1 {
		t.Fatalf("successes = %d, conflicts = %d", ok, conflicts)
	}
	apps, _ := h.store.Applications.ListByProject(ctx, nil, p.ID)
	if len(apps) != 1 {
		t.Errorf("stored applications = %d, want 1", len(apps))
	}
}

// ---------------------------------------------------------------------------
// Accept / reject
// ---------------------------------------------------------------------------

func TestAcceptApplication(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	buyer := newBuyer()
	p := h.openProject(t, buyer, 10000)
	winner, loser := newSolver(), newSolver()
	a1 := h.apply(t, winner, p.ID)
	a2 := h.apply(t, loser, p.ID)

	_, err := h.engine.AcceptApplication(ctx, newBuyer(), a1.ID)
	wantCode(t, err, apperror.CodeForbidden)
	_, err = h.engine.AcceptApplication(ctx, winner, a1.ID)
	wantCode(t, err, apperror.CodeForbidden)

	got, err := h.engine.AcceptApplication(ctx, buyer, a1.ID)
	if err != nil {
		t.Fatalf("AcceptApplication: %v", err)
	}
	if got.Status != models.ApplicationStatusAccepted || got.RespondedAt == nil {
		t.Errorf("accepted = %+v", got)
	}

	stored := h.project(t, p.ID)
	if stored.Status != models.ProjectStatusAssigned || !stored.IsAssignedTo(winner.ID) {
		t.Errorf("project = %+v", stored)
	}
	assignment, err := h.store.Assignments.GetByProject(ctx, nil, p.ID)
	if err != nil || assignment.SolverID != winner.ID {
		t.Errorf("assignment = %+v, %v", assignment, err)
	}
	sibling, _ := h.store.Applications.GetByID(ctx, nil, a2.ID)
	if sibling.Status != models.ApplicationStatusRejected {
		t.Errorf("sibling status = %q, want rejected", sibling.Status)
	}
	if h.notes.count(models.EventApplicationAccepted) != 1 || h.notes.count(models.EventApplicationRejected) != 1 {
		t.Errorf("events = %v", h.notes.kinds())
	}

	_, err = h.engine.AcceptApplication(ctx, buyer, a2.ID)
	wantCode(t, err, apperror.CodeInvalidState)
	_, err = h.engine.AcceptApplication(ctx, buyer, a1.ID)
	wantCode(t, err, apperror.CodeInvalidState)
	wantHistory(t, h, p.ID, models.ProjectStatusOpen, models.ProjectStatusAssigned)
}

// A failure after the sibling fan-out must leave no partial writes behind.
func TestAcceptApplication_FailureRollsBack(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	buyer := newBuyer()
	p := h.openProject(t, buyer, 10000)
	a1 := h.apply(t, newSolver(), p.ID)
	a2 := h.apply(t, newSolver(), p.ID)

	h.notes.failKind = models.EventApplicationRejected
	if _, err := h.engine.AcceptApplication(ctx, buyer, a1.ID); err == nil {
		t.Fatal("expected notifier failure")
	}
	h.notes.failKind = ""

	if got := h.project(t, p.ID); got.Status != models.ProjectStatusOpen || got.AssignedSolverID != nil {
		t.Errorf("project after rollback = %+v", got)
	}
	for _, id := range []uuid.UUID{a1.ID, a2.ID} {
		a, _ := h.store.Applications.GetByID(ctx, nil, id)
		if a.Status != models.ApplicationStatusPending {
			t.Errorf("application %s = %q after rollback, want pending", id, a.Status)
		}
	}
	if _, err := h.store.Assignments.GetByProject(ctx, nil, p.ID); apperror.CodeOf(err) != apperror.CodeNotFound {
		t.Errorf("assignment survived rollback: %v", err)
	}
	wantHistory(t, h, p.ID, models.ProjectStatusOpen)

	if _, err := h.engine.AcceptApplication(ctx, buyer, a2.ID); err != nil {
		t.Fatalf("accept after rollback: %v", err)
	}
}

// Every pending application is accepted concurrently; exactly one wins.
func TestAcceptApplication_ConcurrentRace(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	buyer := newBuyer()
	p := h.openProject(t, buyer, 10000)

	const n = 8
	apps := make([]*models.Application, n)
	for i := range apps {
		apps[i] = h.apply(t, newSolver(), p.ID)
	}

	errs := make([]error, n)
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := range apps {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, errs[i] = h.engine.AcceptApplication(ctx, buyer, apps[i].ID)
		}(i)
	}
	close(start)
	wg.Wait()

	winners := 0
	for _, err := range errs {
		if err == nil {
			winners++
			continue
		}
		if apperror.CodeOf(err) != apperror.CodeInvalidState {
			t.Errorf("loser error = %v, want InvalidState", err)
		}
	}
	if winners != 1 {
		t.Fatalf("winners = %d, want 1", winners)
	}

	stored, _ := h.store.Applications.ListByProject(ctx, nil, p.ID)
	accepted := 0
	for _, a := range stored {
		switch a.Status {
		case models.ApplicationStatusAccepted:
			accepted++
		case models.ApplicationStatusRejected:
		default:
			t.Errorf("application %s left %q", a.ID, a.Status)
		}
	}
	if accepted != 1 {
		t.Errorf("accepted applications = %d, want 1", accepted)
	}
	wantHistory(t, h, p.ID, models.ProjectStatusOpen, models.ProjectStatusAssigned)
}

func TestRejectApplication(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	buyer := newBuyer()
	p := h.openProject(t, buyer, 10000)
	app := h.apply(t, newSolver(), p.ID)

	_, err := h.engine.RejectApplication(ctx, newBuyer(), app.ID)
	wantCode(t, err, apperror.CodeForbidden)

	got, err := h.engine.RejectApplication(ctx, buyer, app.ID)
	if err != nil {
		t.Fatalf("RejectApplication: %v", err)
	}
	if got.Status != models.ApplicationStatusRejected {
		t.Errorf("status = %q", got.Status)
	}
	if h.project(t, p.ID).Status != models.ProjectStatusOpen {
		t.Error("reject changed the project status")
	}
	_, err = h.engine.RejectApplication(ctx, buyer, app.ID)
	wantCode(t, err, apperror.CodeInvalidState)
	_, err = h.engine.AcceptApplication(ctx, buyer, app.ID)
	wantCode(t, err, apperror.CodeInvalidState)
}

func TestListApplications(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	buyer := newBuyer()
	p := h.openProject(t, buyer, 10000)
	solver := newSolver()
	first := h.apply(t, solver, p.ID)
	h.apply(t, newSolver(), p.ID)

	list, err := h.engine.ListApplications(ctx, buyer, p.ID)
	if err != nil || len(list) != 2 {
		t.Fatalf("ListApplications = %d, %v", len(list), err)
	}
	if list[0].ID != first.ID {
		t.Error("applications not ordered by request time")
	}
	_, err = h.engine.ListApplications(ctx, solver, p.ID)
	wantCode(t, err, apperror.CodeForbidden)
	_, err = h.engine.ListApplications(ctx, newBuyer(), p.ID)
	wantCode(t, err, apperror.CodeForbidden)

	mine, err := h.engine.ListMyApplications(ctx, solver)
	if err != nil || len(mine) != 1 {
		t.Fatalf("ListMyApplications = %d, %v", len(mine), err)
	}
	_, err = h.engine.ListMyApplications(ctx, buyer)
	wantCode(t, err, apperror.CodeForbidden)
}
