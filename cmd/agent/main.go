package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"callsync_agent/internal/callevents"
	"callsync_agent/internal/crm"
	"callsync_agent/internal/devicelog"
	"callsync_agent/internal/events"
	apphttp "callsync_agent/internal/http"
	"callsync_agent/internal/http/router"
	"callsync_agent/internal/leadstore"
	"callsync_agent/internal/reconcile"
	"callsync_agent/internal/recordings"
	"callsync_agent/internal/scheduler"
	"callsync_agent/platform/config"
	"callsync_agent/platform/kvstore"
	"callsync_agent/platform/logger"
	"callsync_agent/platform/validator"

	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	// Initialize structured logger
	log := logger.New(cfg.Env)
	log.Info("starting agent", "env", cfg.Env, "addr", cfg.HTTPAddr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ========================================================================
	// Infrastructure Layer
	// ========================================================================

	store, err := kvstore.NewRedis(cfg)
	if err != nil {
		log.Error("failed to initialize key-value store", "error", err)
		panic("failed to initialize key-value store: " + err.Error())
	}
	if err := withRetry(ctx, log, "redis connection", 5, 2*time.Second, func() error {
		return store.Ping(ctx)
	}); err != nil {
		log.Error("failed to connect to redis", "error", err)
		panic("failed to connect to redis: " + err.Error())
	}
	log.Info("redis connection established")

	snapshot, err := leadstore.Open(cfg.GetSnapshotPath())
	if err != nil {
		log.Error("failed to open lead snapshot store", "error", err)
		panic("failed to open lead snapshot store: " + err.Error())
	}
	defer snapshot.Close()

	provider, err := devicelog.NewSpoolProvider(cfg)
	if err != nil {
		log.Error("failed to initialize device call log", "error", err)
		panic("failed to initialize device call log: " + err.Error())
	}

	// Event bus for decoupled communication between modules
	eventBus := events.NewInMemoryBus(log)

	// Shared validator instance for dependency injection
	val := validator.New()

	// Recording storage (MinIO). nil when MINIO_ENDPOINT is not set.
	recordingSvc, err := recordings.NewService(cfg, log)
	if err != nil {
		log.Error("failed to initialize recording storage", "error", err)
		panic("failed to initialize recording storage: " + err.Error())
	}
	if recordingSvc != nil {
		if err := withRetry(ctx, log, "ensure recordings bucket", 5, 2*time.Second, func() error {
			return recordingSvc.EnsureBucket(ctx)
		}); err != nil {
			log.Error("failed to ensure recordings bucket exists", "error", err)
			panic("failed to ensure recordings bucket exists: " + err.Error())
		}
		log.Info("recording storage initialized", "bucket", cfg.GetMinioBucketRecordings())
	} else {
		log.Info("recording uploads disabled; MINIO_ENDPOINT not set")
	}

	jobs, err := scheduler.NewClient(cfg)
	if err != nil {
		log.Error("failed to initialize task queue client", "error", err)
		panic("failed to initialize task queue client: " + err.Error())
	}
	defer jobs.Close()

	crmClient := crm.NewClient(cfg, log)
	if err := withRetry(ctx, log, "crm login", 5, 2*time.Second, func() error {
		return crmClient.Login(ctx)
	}); err != nil {
		log.Error("failed to authenticate against crm", "error", err)
		panic("failed to authenticate against crm: " + err.Error())
	}
	profile, err := crmClient.CurrentProfile(ctx)
	if err != nil {
		log.Error("failed to load crm profile", "error", err)
		panic("failed to load crm profile: " + err.Error())
	}
	log.Info("crm session established", "userId", profile.ID, "name", profile.Name)

	// ========================================================================
	// Domain Modules (Composition Root)
	// ========================================================================

	var core *reconcile.Module
	if recordingSvc != nil {
		core = reconcile.NewModule(cfg, store, crmClient, provider, snapshot, jobs, recordingSvc, eventBus, log)
	} else {
		core = reconcile.NewModule(cfg, store, crmClient, provider, snapshot, jobs, nil, eventBus, log)
	}

	// Seed the lead directory from the local snapshot, then refresh from the
	// CRM. Neither is fatal: the periodic refresh recovers from both.
	if err := core.Directory.Bootstrap(ctx); err != nil {
		log.Warn("lead snapshot bootstrap failed", "error", err)
	}
	if err := core.Directory.Refresh(ctx, true); err != nil {
		log.Warn("initial lead refresh failed", "error", err)
	}

	calleventsModule := callevents.NewModule(core, eventBus, jobs, val, log)

	// ========================================================================
	// HTTP Layer
	// ========================================================================

	app := &apphttp.App{
		Config:   cfg,
		Logger:   log,
		Health:   store,
		EventBus: eventBus,
		Modules: []apphttp.Module{
			calleventsModule,
		},
	}

	engine := router.New(app)

	worker, err := scheduler.NewWorker(cfg, core.Pipeline, core.Directory, log)
	if err != nil {
		log.Error("failed to initialize task worker", "error", err)
		panic("failed to initialize task worker: " + err.Error())
	}
	periodic, err := scheduler.NewPeriodic(cfg, log)
	if err != nil {
		log.Error("failed to initialize periodic scheduler", "error", err)
		panic("failed to initialize periodic scheduler: " + err.Error())
	}

	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: engine,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("server listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutdown signal received, gracefully shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		worker.Run(gctx)
		return nil
	})
	g.Go(func() error {
		periodic.Run(gctx)
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("agent stopped", "error", err)
		panic("agent stopped: " + err.Error())
	}
	log.Info("agent stopped")
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return fmt.Errorf("%s: invalid retry attempts", name)
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
			log.Warn("retryable operation failed", "operation", name, "attempt", attempt, "error", err)
		}

		if attempt < attempts {
			delay := time.Duration(attempt*attempt) * baseDelay
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}
	return fmt.Errorf("%s: %w", name, lastErr)
}
