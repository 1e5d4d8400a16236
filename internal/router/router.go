package router

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/solverhub/backend/internal/auth"
	"github.com/solverhub/backend/internal/handlers"
	"github.com/solverhub/backend/internal/middleware"
	"github.com/solverhub/backend/internal/models"
	"github.com/solverhub/backend/internal/respond"
	"github.com/solverhub/backend/internal/services"
)

// maxJSONBody caps every JSON request body.
const maxJSONBody = 1 << 20

type Deps struct {
	Auth      *auth.Handler
	Market    *handlers.Handler
	Tokens    middleware.TokenValidator
	Validator middleware.BodyValidator
	Logger    *slog.Logger
	// Ping reports whether the backing store is reachable. Nil means always healthy.
	Ping func(ctx context.Context) error
}

// New returns an http.Handler that serves the API under /api/v1 and a
// health check at /healthz.
func New(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestLogger(d.Logger))
	r.Use(chimw.Recoverer)

	r.Get("/healthz", healthz(d.Ping))

	body := func(kind string) func(http.Handler) http.Handler {
		return middleware.ValidateBody(d.Validator, kind, maxJSONBody)
	}
	a, m := d.Auth, d.Market

	r.Route("/api/v1", func(r chi.Router) {
		r.With(body(services.RequestRegister)).Post("/auth/register", a.Register)
		r.With(body(services.RequestLogin)).Post("/auth/login", a.Login)

		r.Get("/marketplace/categories", m.Categories)
		r.Get("/marketplace/projects", m.Browse)

		r.Group(func(r chi.Router) {
			r.Use(middleware.BearerAuth(d.Tokens))

			r.Get("/auth/me", a.Me)

			r.Get("/projects", m.ListMyProjects)
			r.With(body(services.RequestCreateProject)).Post("/projects", m.CreateProject)
			r.Route("/projects/{id}", func(r chi.Router) {
				r.Get("/", m.GetProject)
				r.With(body(services.RequestUpdateProject)).Patch("/", m.UpdateProject)
				r.Delete("/", m.DeleteProject)

				r.Post("/applications", m.Apply)
				r.Get("/applications", m.ListApplications)

				r.With(body(services.RequestCreateTask)).Post("/tasks", m.CreateTask)
				r.Get("/tasks", m.ListTasks)
				r.Get("/submissions", m.ListSubmissions)

				r.With(body(services.RequestRequestPayment)).Post("/payments", m.RequestPayment)
				r.Get("/payments", m.ListPayments)
				r.Get("/payments/history", m.PaymentHistory)

				r.With(body(services.RequestCreateSprint)).Post("/sprints", m.CreateSprint)
				r.Get("/sprints", m.ListSprints)
				r.With(body(services.RequestCreateFeature)).Post("/features", m.CreateFeature)
				r.Get("/features", m.ListFeatures)
			})

			r.Get("/applications", m.ListMyApplications)
			r.Post("/applications/{id}/accept", m.AcceptApplication)
			r.Post("/applications/{id}/reject", m.RejectApplication)

			r.Get("/tasks/{id}", m.GetTask)
			r.With(body(services.RequestUpdateTask)).Patch("/tasks/{id}", m.UpdateTask)
			r.Post("/tasks/{id}/submissions", m.SubmitTask)

			r.Get("/submissions/{id}", m.GetSubmission)
			r.With(body(services.RequestReviewSubmission)).Post("/submissions/{id}/review", m.ReviewSubmission)
			r.Get("/submissions/{id}/artifact", m.DownloadArtifact)

			r.Get("/sprints/{id}", m.GetSprint)
			r.With(body(services.RequestUpdateSprint)).Patch("/sprints/{id}", m.UpdateSprint)
			r.Delete("/sprints/{id}", m.DeleteSprint)
			r.Get("/features/{id}", m.GetFeature)
			r.With(body(services.RequestUpdateFeature)).Patch("/features/{id}", m.UpdateFeature)
			r.Delete("/features/{id}", m.DeleteFeature)

			r.Get("/profiles/solvers/{id}", m.SolverProfile)

			r.Get("/payments", m.ListMyPayments)
			r.Get("/payments/stats", m.PaymentStats)
			r.Post("/payments/{id}/approve", m.ApprovePayment)
			r.With(body(services.RequestRejectPayment)).Post("/payments/{id}/reject", m.RejectPayment)
			r.With(body(services.RequestCreatePayout)).Post("/payments/{id}/payout", m.CreatePayout)

			r.Route("/admin", func(r chi.Router) {
				r.Use(middleware.RequireRole(models.RoleAdmin))
				r.Get("/users", a.ListUsers)
				r.Get("/users/{id}", a.GetUser)
				r.With(body(services.RequestAssignRole)).Patch("/users/{id}/role", a.AssignRole)
				r.Post("/users/{id}/activate", a.Activate)
				r.Post("/users/{id}/deactivate", a.Deactivate)
			})
		})
	})

	return r
}

func healthz(ping func(ctx context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if ping != nil {
			if err := ping(r.Context()); err != nil {
				respond.JSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		respond.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
