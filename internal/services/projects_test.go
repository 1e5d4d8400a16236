package services

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/solverhub/backend/internal/apperror"
	"github.com/solverhub/backend/internal/models"
)

func TestCreateProject(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	buyer := newBuyer()

	p, err := h.engine.CreateProject(ctx, buyer, ProjectInput{Title: "  Landing page ", Description: "Marketing site", BudgetCents: 50000})
	if err != nil {
		t.Fatalf("CreateProject: %v", err)
	}
	if p.Status != models.ProjectStatusOpen || p.BuyerID != buyer.ID {
		t.Errorf("project = %+v", p)
	}
	if p.Title != "Landing page" {
		t.Errorf("title = %q, want trimmed", p.Title)
	}
	if p.Category != models.CategoryOther {
		t.Errorf("category = %q, want default %q", p.Category, models.CategoryOther)
	}
	wantHistory(t, h, p.ID, models.ProjectStatusOpen)

	cases := []struct {
		name  string
		actor models.Actor
		in    ProjectInput
		code  apperror.Code
	}{
		{"solver", newSolver(), ProjectInput{Title: "x", Description: "y", BudgetCents: 1}, apperror.CodeForbidden},
		{"admin", models.Admin{ID: uuid.New()}, ProjectInput{Title: "x", Description: "y", BudgetCents: 1}, apperror.CodeForbidden},
		{"empty title", buyer, ProjectInput{Title: "  ", Description: "y", BudgetCents: 1}, apperror.CodeValidation},
		{"empty description", buyer, ProjectInput{Title: "x", BudgetCents: 1}, apperror.CodeValidation},
		{"zero budget", buyer, ProjectInput{Title: "x", Description: "y"}, apperror.CodeValidation},
		{"negative budget", buyer, ProjectInput{Title: "x", Description: "y", BudgetCents: -5}, apperror.CodeValidation},
		{"budget over max", buyer, ProjectInput{Title: "x", Description: "y", BudgetCents: 100_000_01}, apperror.CodeValidation},
		{"unknown category", buyer, ProjectInput{Title: "x", Description: "y", Category: "gardening", BudgetCents: 1}, apperror.CodeValidation},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := h.engine.CreateProject(ctx, tc.actor, tc.in)
			wantCode(t, err, tc.code)
		})
	}
}

func TestGetProjectVisibility(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	buyer := newBuyer()
	p := h.openProject(t, buyer, 10000)

	if _, err := h.engine.GetProject(ctx, buyer, p.ID); err != nil {
		t.Errorf("owner: %v", err)
	}
	if _, err := h.engine.GetProject(ctx, newSolver(), p.ID); err != nil {
		t.Errorf("solver on open project: %v", err)
	}
	_, err := h.engine.GetProject(ctx, newBuyer(), p.ID)
	wantCode(t, err, apperror.CodeNotFound)

	solver := newSolver()
	app := h.apply(t, solver, p.ID)
	if _, err := h.engine.AcceptApplication(ctx, buyer, app.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := h.engine.GetProject(ctx, solver, p.ID); err != nil {
		t.Errorf("assigned solver: %v", err)
	}
	_, err = h.engine.GetProject(ctx, newSolver(), p.ID)
	wantCode(t, err, apperror.CodeNotFound)
	if _, err := h.engine.GetProject(ctx, models.Admin{ID: uuid.New()}, p.ID); err != nil {
		t.Errorf("admin: %v", err)
	}
	_, err = h.engine.GetProject(ctx, buyer, uuid.New())
	wantCode(t, err, apperror.CodeNotFound)
}

func TestUpdateProject(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	buyer := newBuyer()
	p := h.openProject(t, buyer, 10000)

	title := "Data pipeline v2"
	budget := int64(20000)
	got, err := h.engine.UpdateProject(ctx, buyer, p.ID, ProjectPatch{Title: &title, BudgetCents: &budget})
	if err != nil {
		t.Fatalf("UpdateProject: %v", err)
	}
	if got.Title != title || got.BudgetCents != budget || got.Description != p.Description {
		t.Errorf("updated = %+v", got)
	}

	_, err = h.engine.UpdateProject(ctx, newBuyer(), p.ID, ProjectPatch{Title: &title})
	wantCode(t, err, apperror.CodeForbidden)

	zero := int64(0)
	_, err = h.engine.UpdateProject(ctx, buyer, p.ID, ProjectPatch{BudgetCents: &zero})
	wantCode(t, err, apperror.CodeValidation)
	if stored := h.project(t, p.ID); stored.BudgetCents != budget {
		t.Errorf("failed update leaked budget %d", stored.BudgetCents)
	}

	app := h.apply(t, newSolver(), p.ID)
	if _, err := h.engine.AcceptApplication(ctx, buyer, app.ID); err != nil {
		t.Fatal(err)
	}
	_, err = h.engine.UpdateProject(ctx, buyer, p.ID, ProjectPatch{Title: &title})
	wantCode(t, err, apperror.CodeInvalidState)
}

func TestDeleteProject(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	buyer := newBuyer()
	p := h.openProject(t, buyer, 10000)
	a1 := h.apply(t, newSolver(), p.ID)
	a2 := h.apply(t, newSolver(), p.ID)

	_, err := h.engine.DeleteProject(ctx, newBuyer(), p.ID)
	wantCode(t, err, apperror.CodeForbidden)

	got, err := h.engine.DeleteProject(ctx, buyer, p.ID)
	if err != nil {
		t.Fatalf("DeleteProject: %v", err)
	}
	if got.Status != models.ProjectStatusCancelled {
		t.Errorf("status = %q", got.Status)
	}
	for _, id := range []uuid.UUID{a1.ID, a2.ID} {
		a, _ := h.store.Applications.GetByID(ctx, nil, id)
		if a.Status != models.ApplicationStatusRejected {
			t.Errorf("application %s status = %q, want rejected", id, a.Status)
		}
	}
	if n := h.notes.count(models.EventApplicationRejected); n != 2 {
		t.Errorf("rejection events = %d, want 2", n)
	}
	wantHistory(t, h, p.ID, models.ProjectStatusOpen, models.ProjectStatusCancelled)

	_, err = h.engine.Apply(ctx, newSolver(), p.ID)
	wantCode(t, err, apperror.CodeInvalidState)
	_, err = h.engine.DeleteProject(ctx, buyer, p.ID)
	wantCode(t, err, apperror.CodeInvalidState)
}

func TestDeleteProject_AssignedIsInvalid(t *testing.T) {
	h := newHarness(t)
	buyer, _, p := h.assigned(t, 10000)
	_, err := h.engine.DeleteProject(context.Background(), buyer, p.ID)
	wantCode(t, err, apperror.CodeInvalidState)
}

func TestListMyProjects(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	buyer, solver, assigned := h.assigned(t, 10000)
	h.openProject(t, buyer, 5000)
	h.openProject(t, newBuyer(), 5000)

	mine, err := h.engine.ListMyProjects(ctx, buyer)
	if err != nil || len(mine) != 2 {
		t.Fatalf("buyer projects = %d, %v", len(mine), err)
	}
	solverProjects, err := h.engine.ListMyProjects(ctx, solver)
	if err != nil || len(solverProjects) != 1 || solverProjects[0].ID != assigned.ID {
		t.Fatalf("solver projects = %+v, %v", solverProjects, err)
	}
	all, err := h.engine.ListMyProjects(ctx, models.Admin{ID: uuid.New()})
	if err != nil || len(all) != 3 {
		t.Fatalf("admin projects = %d, %v", len(all), err)
	}
}

func TestBrowse(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	buyer := newBuyer()
	for i := 0; i < 3; i++ {
		h.openProject(t, buyer, int64(1000*(i+1)))
	}
	h.assigned(t, 9999)

	list, err := h.engine.Browse(ctx, models.ProjectFilter{Sort: models.SortBudget})
	if err != nil {
		t.Fatalf("Browse: %v", err)
	}
	if len(list) != 3 {
		t.Fatalf("open listings = %d, want 3", len(list))
	}
	if list[0].BudgetCents != 3000 {
		t.Errorf("first by budget = %d", list[0].BudgetCents)
	}

	list, _ = h.engine.Browse(ctx, models.ProjectFilter{Limit: 2, Offset: 2})
	if len(list) != 1 {
		t.Errorf("page 2 size = %d, want 1", len(list))
	}

	_, err = h.engine.Browse(ctx, models.ProjectFilter{Sort: "popularity"})
	wantCode(t, err, apperror.CodeValidation)
	_, err = h.engine.Browse(ctx, models.ProjectFilter{Category: "gardening"})
	wantCode(t, err, apperror.CodeValidation)

	if len(h.engine.Categories()) == 0 {
		t.Error("empty category catalogue")
	}
}
