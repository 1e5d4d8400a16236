package services

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/solverhub/backend/internal/apperror"
	"github.com/solverhub/backend/internal/models"
)

// ---------------------------------------------------------------------------
// Tasks
// ---------------------------------------------------------------------------

func TestCreateTask_PromotesProject(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	buyer, solver, p := h.assigned(t, 10000)

	deadline := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	task, err := h.engine.CreateTask(ctx, solver, p.ID, TaskInput{Title: "Ingest", Description: "CSV loader", Deadline: &deadline})
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	if task.Status != models.TaskStatusCreated || task.SolverID != solver.ID {
		t.Errorf("task = %+v", task)
	}
	if h.project(t, p.ID).Status != models.ProjectStatusInProgress {
		t.Error("first task did not move the project to in_progress")
	}

	if _, err := h.engine.CreateTask(ctx, solver, p.ID, TaskInput{Title: "Transform"}); err != nil {
		t.Fatalf("second CreateTask: %v", err)
	}
	wantHistory(t, h, p.ID, models.ProjectStatusOpen, models.ProjectStatusAssigned, models.ProjectStatusInProgress)

	_, err = h.engine.CreateTask(ctx, newSolver(), p.ID, TaskInput{Title: "x"})
	wantCode(t, err, apperror.CodeForbidden)
	_, err = h.engine.CreateTask(ctx, buyer, p.ID, TaskInput{Title: "x"})
	wantCode(t, err, apperror.CodeForbidden)
	_, err = h.engine.CreateTask(ctx, solver, p.ID, TaskInput{Title: " "})
	wantCode(t, err, apperror.CodeValidation)

	tasks, err := h.engine.ListTasks(ctx, buyer, p.ID)
	if err != nil || len(tasks) != 2 || tasks[0].ID != task.ID {
		t.Fatalf("ListTasks = %+v, %v", tasks, err)
	}
	_, err = h.engine.ListTasks(ctx, newSolver(), p.ID)
	wantCode(t, err, apperror.CodeForbidden)
}

func TestCreateTask_OpenProjectForbidden(t *testing.T) {
	h := newHarness(t)
	p := h.openProject(t, newBuyer(), 10000)
	_, err := h.engine.CreateTask(context.Background(), newSolver(), p.ID, TaskInput{Title: "x"})
	wantCode(t, err, apperror.CodeForbidden)
}

func TestUpdateTask(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, solver, _, task := h.inProgress(t, 10000)

	title := "Schema design (v2)"
	started := models.TaskStatusInProgress
	got, err := h.engine.UpdateTask(ctx, solver, task.ID, models.TaskPatch{Title: &title, Status: &started})
	if err != nil {
		t.Fatalf("UpdateTask: %v", err)
	}
	if got.Title != title || got.Status != models.TaskStatusInProgress {
		t.Errorf("task = %+v", got)
	}

	submitted := models.TaskStatusSubmitted
	_, err = h.engine.UpdateTask(ctx, solver, task.ID, models.TaskPatch{Status: &submitted})
	wantCode(t, err, apperror.CodeInvalidState)

	_, err = h.engine.UpdateTask(ctx, newSolver(), task.ID, models.TaskPatch{Title: &title})
	wantCode(t, err, apperror.CodeForbidden)
	_, err = h.engine.UpdateTask(ctx, solver, uuid.New(), models.TaskPatch{Title: &title})
	wantCode(t, err, apperror.CodeNotFound)
}

// ---------------------------------------------------------------------------
// Submissions
// ---------------------------------------------------------------------------

func TestSubmitTask(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	buyer, solver, p, task := h.inProgress(t, 10000)

	sub, err := h.engine.SubmitTask(ctx, solver, task.ID, "work.zip", bytes.NewReader(zipBytes(t)))
	if err != nil {
		t.Fatalf("SubmitTask: %v", err)
	}
	if sub.Status != models.SubmissionStatusPending || sub.ProjectID != p.ID || sub.ArtifactRef == "" {
		t.Errorf("submission = %+v", sub)
	}
	stored, _ := h.store.Tasks.GetByID(ctx, nil, task.ID)
	if stored.Status != models.TaskStatusSubmitted {
		t.Errorf("task status = %q, want submitted", stored.Status)
	}

	// A second upload while the first is pending is refused and leaves no file behind.
	_, err = h.engine.SubmitTask(ctx, solver, task.ID, "work.zip", bytes.NewReader(zipBytes(t)))
	wantCode(t, err, apperror.CodeConflict)
	if h.files.len() != 1 {
		t.Errorf("stored artifacts = %d, want 1", h.files.len())
	}

	rc, got, err := h.engine.OpenArtifact(ctx, buyer, sub.ID)
	if err != nil {
		t.Fatalf("OpenArtifact: %v", err)
	}
	data, _ := io.ReadAll(rc)
	rc.Close()
	if got.ID != sub.ID || len(data) == 0 {
		t.Errorf("artifact = %d bytes for %s", len(data), got.ID)
	}
	_, _, err = h.engine.OpenArtifact(ctx, newBuyer(), sub.ID)
	wantCode(t, err, apperror.CodeForbidden)

	subs, err := h.engine.ListSubmissions(ctx, solver, p.ID)
	if err != nil || len(subs) != 1 {
		t.Fatalf("ListSubmissions = %d, %v", len(subs), err)
	}
}

func TestSubmitTask_RejectsNonZip(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, solver, _, task := h.inProgress(t, 10000)

	cases := []struct {
		name string
		file string
		body []byte
	}{
		{"wrong extension", "work.tar.gz", zipBytes(t)},
		{"not an archive", "work.zip", []byte("plain text")},
		{"empty", "work.zip", nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := h.engine.SubmitTask(ctx, solver, task.ID, tc.file, bytes.NewReader(tc.body))
			wantCode(t, err, apperror.CodeValidation)
		})
	}
	if h.files.len() != 0 {
		t.Errorf("invalid uploads stored %d artifacts", h.files.len())
	}
}

func TestSubmitTask_Errors(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	buyer, _, _, task := h.inProgress(t, 10000)

	_, err := h.engine.SubmitTask(ctx, newSolver(), task.ID, "work.zip", bytes.NewReader(zipBytes(t)))
	wantCode(t, err, apperror.CodeForbidden)
	_, err = h.engine.SubmitTask(ctx, buyer, task.ID, "work.zip", bytes.NewReader(zipBytes(t)))
	wantCode(t, err, apperror.CodeForbidden)
	if h.files.len() != 0 {
		t.Errorf("unauthorized submit stored %d artifacts", h.files.len())
	}
}

func TestSubmitTask_StoreFailure(t *testing.T) {
	h := newHarness(t)
	_, solver, _, task := h.inProgress(t, 10000)
	h.files.fail = errors.New("disk full")

	_, err := h.engine.SubmitTask(context.Background(), solver, task.ID, "work.zip", bytes.NewReader(zipBytes(t)))
	wantCode(t, err, apperror.CodeExternalFailure)
	stored, _ := h.store.Tasks.GetByID(context.Background(), nil, task.ID)
	if stored.Status != models.TaskStatusCreated {
		t.Errorf("task status = %q after failed upload", stored.Status)
	}
}

func TestReviewSubmission(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	buyer, solver, p, task := h.inProgress(t, 10000)
	second, err := h.engine.CreateTask(ctx, solver, p.ID, TaskInput{Title: "Docs"})
	if err != nil {
		t.Fatal(err)
	}

	s1, _ := h.engine.SubmitTask(ctx, solver, task.ID, "a.zip", bytes.NewReader(zipBytes(t)))
	s2, _ := h.engine.SubmitTask(ctx, solver, second.ID, "b.zip", bytes.NewReader(zipBytes(t)))

	_, err = h.engine.ReviewSubmission(ctx, buyer, s1.ID, "maybe", nil)
	wantCode(t, err, apperror.CodeValidation)
	_, err = h.engine.ReviewSubmission(ctx, newBuyer(), s1.ID, models.SubmissionStatusAccepted, nil)
	wantCode(t, err, apperror.CodeForbidden)
	_, err = h.engine.ReviewSubmission(ctx, solver, s1.ID, models.SubmissionStatusAccepted, nil)
	wantCode(t, err, apperror.CodeForbidden)

	got, err := h.engine.ReviewSubmission(ctx, buyer, s1.ID, models.SubmissionStatusAccepted, nil)
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if got.Status != models.SubmissionStatusAccepted || got.ReviewedAt == nil {
		t.Errorf("submission = %+v", got)
	}
	if tk, _ := h.store.Tasks.GetByID(ctx, nil, task.ID); tk.Status != models.TaskStatusAccepted {
		t.Errorf("task status = %q, want accepted", tk.Status)
	}

	reason := "missing tests"
	got, err = h.engine.ReviewSubmission(ctx, buyer, s2.ID, models.SubmissionStatusRejected, &reason)
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if got.RejectionReason == nil || *got.RejectionReason != reason {
		t.Errorf("rejection reason = %v", got.RejectionReason)
	}
	if tk, _ := h.store.Tasks.GetByID(ctx, nil, second.ID); tk.Status != models.TaskStatusRejected {
		t.Errorf("task status = %q, want rejected", tk.Status)
	}

	// A submission is reviewed once.
	_, err = h.engine.ReviewSubmission(ctx, buyer, s1.ID, models.SubmissionStatusRejected, nil)
	wantCode(t, err, apperror.CodeConflict)
	if h.notes.count(models.EventSubmissionReviewed) != 2 {
		t.Errorf("events = %v", h.notes.kinds())
	}
}

func TestReviewSubmission_Concurrent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	buyer, solver, _, task := h.inProgress(t, 10000)
	sub, err := h.engine.SubmitTask(ctx, solver, task.ID, "work.zip", bytes.NewReader(zipBytes(t)))
	if err != nil {
		t.Fatalf("SubmitTask: %v", err)
	}

	const n = 10
	decisions := make([]string, n)
	results := make([]*models.Submission, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < n; i++ {
		decisions[i] = models.SubmissionStatusAccepted
		if i%2 == 1 {
			decisions[i] = models.SubmissionStatusRejected
		}
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			results[i], errs[i] = h.engine.ReviewSubmission(ctx, buyer, sub.ID, decisions[i], nil)
		}(i)
	}
	close(start)
	wg.Wait()

	winner := -1
	for i, err := range errs {
		if err == nil {
			if winner >= 0 {
				t.Fatalf("reviews %d and %d both succeeded", winner, i)
			}
			winner = i
			continue
		}
		if apperror.CodeOf(err) != apperror.CodeConflict {
			t.Errorf("review %d error = %v, want Conflict", i, err)
		}
	}
	if winner < 0 {
		t.Fatal("no review succeeded")
	}

	want := decisions[winner]
	if results[winner].Status != want {
		t.Errorf("winning submission status = %q, want %q", results[winner].Status, want)
	}
	stored, _ := h.store.Submissions.GetByID(ctx, nil, sub.ID)
	if stored.Status != want {
		t.Errorf("stored submission status = %q, want %q", stored.Status, want)
	}
	tk, _ := h.store.Tasks.GetByID(ctx, nil, task.ID)
	if tk.Status != want {
		t.Errorf("task status = %q, want %q", tk.Status, want)
	}
	if got := h.notes.count(models.EventSubmissionReviewed); got != 1 {
		t.Errorf("review events = %d, want 1", got)
	}
}

func TestGetTaskAndSubmission(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	buyer, solver, _, task := h.inProgress(t, 10000)
	sub, err := h.engine.SubmitTask(ctx, solver, task.ID, "work.zip", bytes.NewReader(zipBytes(t)))
	if err != nil {
		t.Fatalf("SubmitTask: %v", err)
	}

	for _, actor := range []models.Actor{buyer, solver, models.Admin{ID: uuid.New()}} {
		got, err := h.engine.GetTask(ctx, actor, task.ID)
		if err != nil {
			t.Fatalf("GetTask as %s: %v", actor.Role(), err)
		}
		if got.ID != task.ID || got.Status != models.TaskStatusSubmitted {
			t.Errorf("task = %+v", got)
		}
		gs, err := h.engine.GetSubmission(ctx, actor, sub.ID)
		if err != nil {
			t.Fatalf("GetSubmission as %s: %v", actor.Role(), err)
		}
		if gs.ID != sub.ID || gs.TaskID != task.ID {
			t.Errorf("submission = %+v", gs)
		}
	}

	_, err = h.engine.GetTask(ctx, newSolver(), task.ID)
	wantCode(t, err, apperror.CodeForbidden)
	_, err = h.engine.GetSubmission(ctx, newBuyer(), sub.ID)
	wantCode(t, err, apperror.CodeForbidden)
	_, err = h.engine.GetTask(ctx, buyer, uuid.New())
	wantCode(t, err, apperror.CodeNotFound)
	_, err = h.engine.GetSubmission(ctx, buyer, uuid.New())
	wantCode(t, err, apperror.CodeNotFound)
}
