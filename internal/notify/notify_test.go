package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/riverqueue/river"

	"github.com/solverhub/backend/internal/models"
)

func TestNotifierEnqueuesWithWebhookURL(t *testing.T) {
	var got []EventArgs
	n := New(func(_ context.Context, _ pgx.Tx, args EventArgs) error {
		got = append(got, args)
		return nil
	}, "https://hooks.example.com/solverhub")

	ev := models.Event{Kind: models.EventApplicationReceived, ProjectID: uuid.New()}
	if err := n.Notify(context.Background(), nil, ev); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("enqueued %d jobs, want 1", len(got))
	}
	if got[0].WebhookURL != "https://hooks.example.com/solverhub" || got[0].Event.Kind != ev.Kind {
		t.Errorf("args = %+v", got[0])
	}
	if got[0].Kind() != "marketplace_event" {
		t.Errorf("Kind() = %q", got[0].Kind())
	}
}

func TestWorkerPostsEvent(t *testing.T) {
	var received models.Event
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Event-Kind") != models.EventPaymentPaid {
			t.Errorf("X-Event-Kind = %q", r.Header.Get("X-Event-Kind"))
		}
		_ = json.NewDecoder(r.Body).Decode(&received)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	ev := models.Event{Kind: models.EventPaymentPaid, ProjectID: uuid.New(), OccurredAt: time.Now().UTC()}
	w := NewWorker(nil)
	job := &river.Job[EventArgs]{Args: EventArgs{Event: ev, WebhookURL: srv.URL}}
	if err := w.Work(context.Background(), job); err != nil {
		t.Fatalf("Work: %v", err)
	}
	if received.ProjectID != ev.ProjectID {
		t.Errorf("webhook got project %s, want %s", received.ProjectID, ev.ProjectID)
	}
}

func TestWorkerFailsOnNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	w := NewWorker(nil)
	job := &river.Job[EventArgs]{Args: EventArgs{Event: models.Event{Kind: models.EventTaskCreated}, WebhookURL: srv.URL}}
	if err := w.Work(context.Background(), job); err == nil {
		t.Fatal("expected error so the job is retried")
	}
}

func TestWorkerWithoutURLOnlyLogs(t *testing.T) {
	w := NewWorker(nil)
	job := &river.Job[EventArgs]{Args: EventArgs{Event: models.Event{Kind: models.EventTaskCreated}}}
	if err := w.Work(context.Background(), job); err != nil {
		t.Fatalf("Work: %v", err)
	}
}
