package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/anonto42/reviewinn/backend/internal/auth"
	"github.com/anonto42/reviewinn/backend/internal/jobs"
	"github.com/anonto42/reviewinn/backend/internal/router"
	"github.com/anonto42/reviewinn/backend/pkg/config"
	"github.com/anonto42/reviewinn/backend/pkg/firebase"
	"github.com/anonto42/reviewinn/backend/pkg/logging"
)

func main() {
	if err := run(); err != nil {
		logging.Error().Err(err).Msg("server exited")
		os.Exit(1)
	}
}

func run() error {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logging.Init(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize database connections
	db, err := config.InitDB(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer db.CloseDB()

	if err := config.Migrate(db.Postgres); err != nil {
		return err
	}

	// Firebase is optional; without it /auth/firebase-login answers 401.
	var identity auth.IdentityVerifier
	firebaseApp, err := firebase.InitFirebase(ctx, cfg.FirebaseCredentialsPath)
	switch {
	case errors.Is(err, firebase.ErrDisabled):
		logging.Warn().Msg("FIREBASE_CREDENTIALS_PATH not set, federated login disabled")
	case err != nil:
		return err
	default:
		identity = firebaseApp
	}

	app, err := router.New(ctx, cfg, db, identity)
	if err != nil {
		return err
	}

	tree := jobs.NewTree(jobs.DefaultTreeConfig())
	tree.AddRealtime(jobs.NewHTTPService(app.Echo, cfg.Server.Addr(), 10*time.Second))
	tree.AddRealtime(app.Hub)
	tree.AddRealtime(app.Bus)
	tree.AddJob(jobs.NotificationCleanup(app.Notifications, cfg.Jobs.NotificationCleanupInterval))
	tree.AddJob(jobs.CounterRepair(app.Counters, cfg.Jobs.CounterRepairInterval))
	tree.AddJob(jobs.Sweep(app.Limiter, app.Codes, cfg.Jobs.SweepInterval))

	logging.Info().Str("addr", cfg.Server.Addr()).Str("env", cfg.Server.Env).Msg("starting server")
	if err := tree.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logging.Info().Msg("server stopped")
	return nil
}
