package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/rs/cors"
	"github.com/spf13/cobra"

	"github.com/solverhub/backend/internal/auth"
	"github.com/solverhub/backend/internal/config"
	"github.com/solverhub/backend/internal/filestore"
	"github.com/solverhub/backend/internal/handlers"
	"github.com/solverhub/backend/internal/ledger"
	"github.com/solverhub/backend/internal/notify"
	"github.com/solverhub/backend/internal/repository"
	"github.com/solverhub/backend/internal/repository/memory"
	"github.com/solverhub/backend/internal/router"
	"github.com/solverhub/backend/internal/services"
	"github.com/solverhub/backend/internal/settlement"
	"github.com/solverhub/backend/internal/telemetry"
)

func serveCmd() *cobra.Command {
	var inMemory bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg, logger, err := setup()
			if err != nil {
				return err
			}

			shutdownTracing, err := telemetry.Setup(ctx, "solverhub", cfg.OTELEndpoint)
			if err != nil {
				return err
			}
			defer func() {
				if err := shutdownTracing(context.Background()); err != nil {
					logger.Warn("tracer shutdown", "error", err)
				}
			}()

			artifacts, err := filestore.NewDisk(cfg.ArtifactDir)
			if err != nil {
				return err
			}
			engine := &services.Engine{
				Settlement:     newSettlement(cfg, logger),
				Artifacts:      artifacts,
				Logger:         logger,
				TxTimeout:      cfg.TxTimeout,
				MaxBudgetCents: cfg.MaxProjectBudgetCents,
			}

			var users auth.UserStore
			var ping func(context.Context) error
			if inMemory {
				logger.Warn("running with the in-memory store; data is lost on exit")
				users = wireMemory(engine, logger)
			} else {
				pool, err := connect(ctx, cfg, logger)
				if err != nil {
					return err
				}
				defer pool.Close()

				riverClient, err := wirePostgres(engine, pool, cfg, logger)
				if err != nil {
					return err
				}
				if err := riverClient.Start(ctx); err != nil {
					return fmt.Errorf("start river: %w", err)
				}
				defer func() {
					stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
					defer cancel()
					if err := riverClient.Stop(stopCtx); err != nil {
						logger.Warn("river stop", "error", err)
					}
				}()
				users = auth.NewRepository(pool)
				ping = pool.Ping
			}

			engine.Users = users
			authSvc := auth.NewService(users, cfg.JWTSecret, cfg.TokenTTL)
			validator, err := services.NewValidator()
			if err != nil {
				return fmt.Errorf("load request schemas: %w", err)
			}

			api := router.New(router.Deps{
				Auth:      auth.NewHandler(authSvc, logger),
				Market:    handlers.NewHandler(engine, logger, cfg.MaxArtifactBytes),
				Tokens:    authSvc,
				Validator: validator,
				Logger:    logger,
				Ping:      ping,
			})
			corsHandler := cors.New(cors.Options{
				AllowedOrigins:   cfg.CORSAllowedOrigins,
				AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
				AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
				AllowCredentials: true,
			}).Handler(api)

			srv := &http.Server{
				Addr:              ":" + cfg.Port,
				Handler:           corsHandler,
				ReadHeaderTimeout: 10 * time.Second,
			}
			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
				defer cancel()
				_ = srv.Shutdown(shutdownCtx)
			}()

			logger.Info("starting HTTP server", "addr", srv.Addr, "memory", inMemory)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			logger.Info("HTTP server stopped")
			return nil
		},
	}
	cmd.Flags().BoolVar(&inMemory, "memory", false, "use the in-memory store instead of PostgreSQL")
	return cmd
}

// newSettlement selects the HTTP processor when SETTLEMENT_URL is set and the
// in-process sandbox otherwise.
func newSettlement(cfg *config.Config, logger *slog.Logger) services.Settlement {
	if cfg.SettlementURL == "" {
		logger.Warn("SETTLEMENT_URL not set; using the sandbox processor")
		return settlement.NewSandbox()
	}
	return settlement.NewClient(cfg.SettlementURL, cfg.SettlementAPIKey, cfg.SettlementTimeout)
}

func wireMemory(engine *services.Engine, logger *slog.Logger) auth.UserStore {
	store := memory.New()
	engine.Pool = store
	engine.Projects = store.Projects
	engine.Applications = store.Applications
	engine.Assignments = store.Assignments
	engine.Tasks = store.Tasks
	engine.Submissions = store.Submissions
	engine.Payments = store.Payments
	engine.Sprints = store.Sprints
	engine.Features = store.Features
	engine.Ledger = ledger.NewService(store.Ledger)
	engine.Notifier = notify.LogNotifier{Logger: logger}
	return store.Users
}

// wirePostgres binds the engine to PostgreSQL and returns the River client
// that delivers notifications enqueued inside engine transactions.
func wirePostgres(engine *services.Engine, pool *pgxpool.Pool, cfg *config.Config, logger *slog.Logger) (*river.Client[pgx.Tx], error) {
	engine.Pool = pool
	engine.Projects = repository.NewProjectRepo(pool)
	engine.Applications = repository.NewApplicationRepo(pool)
	engine.Assignments = repository.NewAssignmentRepo(pool)
	engine.Tasks = repository.NewTaskRepo(pool)
	engine.Submissions = repository.NewSubmissionRepo(pool)
	engine.Payments = repository.NewPaymentRepo(pool)
	engine.Sprints = repository.NewSprintRepo(pool)
	engine.Features = repository.NewFeatureRepo(pool)
	engine.Ledger = ledger.NewService(ledger.NewRepository(pool))

	// The notifier needs the River client and the client is built after the
	// engine, so inserts go through a late-bound func.
	var insertMu sync.Mutex
	var insertFn notify.InsertTxFunc
	engine.Notifier = notify.New(func(ctx context.Context, tx pgx.Tx, args notify.EventArgs) error {
		insertMu.Lock()
		fn := insertFn
		insertMu.Unlock()
		if fn == nil {
			return errors.New("notification queue not ready")
		}
		return fn(ctx, tx, args)
	}, cfg.NotifyWebhookURL)

	workers := river.NewWorkers()
	river.AddWorker(workers, notify.NewWorker(logger))
	riverClient, err := river.NewClient(riverpgxv5.New(pool), &river.Config{
		Queues: map[string]river.QueueConfig{
			river.QueueDefault: {MaxWorkers: cfg.NotifyWorkers},
		},
		Workers: workers,
		Logger:  logger,
	})
	if err != nil {
		return nil, fmt.Errorf("create river client: %w", err)
	}

	insertMu.Lock()
	insertFn = func(ctx context.Context, tx pgx.Tx, args notify.EventArgs) error {
		_, err := riverClient.InsertTx(ctx, tx, args, nil)
		return err
	}
	insertMu.Unlock()
	return riverClient, nil
}
