package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/meridian-erp/meridian/internal/app"
	"github.com/meridian-erp/meridian/internal/audit"
	"github.com/meridian-erp/meridian/internal/auth"
	"github.com/meridian-erp/meridian/internal/authz"
	authzhttp "github.com/meridian-erp/meridian/internal/authz/http"
	"github.com/meridian-erp/meridian/internal/authz/pgconfig"
	"github.com/meridian-erp/meridian/internal/authz/redisstore"
	"github.com/meridian-erp/meridian/internal/observability"
	"github.com/meridian-erp/meridian/internal/platform/cache"
	"github.com/meridian-erp/meridian/internal/platform/db"
	"github.com/meridian-erp/meridian/jobs"
)

// faultSink fans condition faults out to the audit trail and metrics.
type faultSink struct {
	recorder *audit.Recorder
	metrics  *observability.Metrics
}

func (s faultSink) RecordFault(ctx context.Context, fault authz.ConditionFault) {
	s.recorder.RecordFault(ctx, fault)
	if s.metrics != nil {
		s.metrics.ObserveConditionFault()
	}
}

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	roles, err := pgconfig.NewRepository(pool).LoadRoles(ctx)
	if err != nil {
		logger.Error("load role catalog", slog.Any("error", err))
		os.Exit(1)
	}
	adminRole := authz.AdminRole()
	roles[adminRole.Name] = adminRole

	metrics := observability.NewMetrics()
	auditRecorder := audit.NewRecorder(pool, logger)

	registry := authz.NewConditionRegistry(logger)
	if cfg.PredicateTimeout > 0 {
		registry.SetPredicateTimeout(cfg.PredicateTimeout)
	}

	ac := authz.New(authz.Config{
		Roles:     roles,
		Registry:  registry,
		Snapshot:  redisstore.New(redisClient),
		Faults:    faultSink{recorder: auditRecorder, metrics: metrics},
		Mutations: auditRecorder,
		Metrics:   metrics,
		Logger:    logger,
	})
	if err := ac.Hydrate(ctx); err != nil {
		logger.Error("hydrate snapshot", slog.Any("error", err))
		os.Exit(1)
	}

	creds, err := auth.ParseCredentials(cfg.AdminTokens)
	if err != nil {
		logger.Error("parse admin tokens", slog.Any("error", err))
		os.Exit(1)
	}
	authenticator := auth.NewAuthenticator(creds, logger)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:        logger,
		Config:        cfg,
		Authenticator: authenticator,
		AuthzHandler:  authzhttp.NewHandler(logger, ac),
		JobHandler:    jobs.NewHandler(inspector, logger),
		Metrics:       metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
