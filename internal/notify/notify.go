// Package notify delivers marketplace events to an outbound webhook through
// River, so an event is enqueued in the same transaction as the change it
// describes.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/riverqueue/river"

	"github.com/solverhub/backend/internal/models"
)

type EventArgs struct {
	Event      models.Event `json:"event"`
	WebhookURL string       `json:"webhook_url"`
}

func (EventArgs) Kind() string { return "marketplace_event" }

// InsertTxFunc enqueues a job inside tx. In production it wraps river.Client.InsertTx.
type InsertTxFunc func(ctx context.Context, tx pgx.Tx, args EventArgs) error

// Notifier enqueues one delivery job per event.
type Notifier struct {
	insert     InsertTxFunc
	webhookURL string
}

func New(insert InsertTxFunc, webhookURL string) *Notifier {
	return &Notifier{insert: insert, webhookURL: webhookURL}
}

func (n *Notifier) Notify(ctx context.Context, tx pgx.Tx, ev models.Event) error {
	return n.insert(ctx, tx, EventArgs{Event: ev, WebhookURL: n.webhookURL})
}

// LogNotifier writes events to the log instead of enqueueing them. It is used
// when the server runs without PostgreSQL.
type LogNotifier struct {
	Logger *slog.Logger
}

func (n LogNotifier) Notify(ctx context.Context, _ pgx.Tx, ev models.Event) error {
	logger := n.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "marketplace event",
		"kind", ev.Kind,
		"project_id", ev.ProjectID,
		"recipient_id", ev.RecipientID,
		"entity_id", ev.EntityID,
	)
	return nil
}

// Worker posts each event to its webhook. A non-2xx answer fails the job so
// River retries it with backoff.
type Worker struct {
	river.WorkerDefaults[EventArgs]
	httpClient *http.Client
	logger     *slog.Logger
}

func NewWorker(logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		httpClient: &http.Client{Timeout: 15 * time.Second},
		logger:     logger,
	}
}

func (w *Worker) Timeout(*river.Job[EventArgs]) time.Duration { return 30 * time.Second }

func (w *Worker) Work(ctx context.Context, job *river.Job[EventArgs]) error {
	args := job.Args
	if args.WebhookURL == "" {
		w.logger.InfoContext(ctx, "marketplace event", "kind", args.Event.Kind, "project_id", args.Event.ProjectID)
		return nil
	}

	body, err := json.Marshal(args.Event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, args.WebhookURL, bytes.NewReader(body))
	if err != nil {
		// A malformed URL will not fix itself on retry.
		w.logger.ErrorContext(ctx, "invalid webhook url", "error", err)
		return river.JobCancel(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Event-Kind", args.Event.Kind)

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("network error calling webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}
