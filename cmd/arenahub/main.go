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

	"github.com/arenahub/arenahub/internal/app"
	"github.com/arenahub/arenahub/internal/audit"
	"github.com/arenahub/arenahub/internal/auth"
	"github.com/arenahub/arenahub/internal/authz"
	"github.com/arenahub/arenahub/internal/observability"
	"github.com/arenahub/arenahub/internal/orgs"
	"github.com/arenahub/arenahub/internal/platform/cache"
	"github.com/arenahub/arenahub/internal/platform/db"
	"github.com/arenahub/arenahub/internal/roles"
	"github.com/arenahub/arenahub/internal/shared"
	"github.com/arenahub/arenahub/internal/users"
	"github.com/arenahub/arenahub/jobs"
)

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

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

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

	sessionManager := shared.NewSessionManager(redisClient, "arenahub_session", cfg.SessionSecret, cfg.SessionTTL, cfg.IsProduction())

	authRepo := auth.NewRepository(dbpool)
	authService := auth.NewService(authRepo)
	authHandler := auth.NewHandler(logger, authService, sessionManager)

	metrics := observability.NewMetrics()

	policyStore := authz.NewRepository(dbpool)
	engine := authz.NewEngine(policyStore, logger)
	decisionCache := authz.NewDecisionCache(cfg.AuthzCacheTTL, redisClient, logger)
	go decisionCache.Listen(ctx)

	auditRepo := audit.NewRepository(dbpool)
	auditService := audit.NewService(auditRepo, logger)

	authorizer := authz.NewAuthorizer(engine, decisionCache, auditService, metrics, logger)
	guard := authz.Middleware{Authorizer: authorizer, Logger: logger}

	rolesService := roles.NewService(policyStore, decisionCache, logger)
	rolesHandler := roles.NewHandler(logger, rolesService, guard)

	orgsRepo := orgs.NewRepository(dbpool)
	orgsService := orgs.NewService(orgsRepo, policyStore, logger)
	orgsHandler := orgs.NewHandler(logger, orgsService, guard)

	usersRepo := users.NewRepository(dbpool)
	usersService := users.NewService(usersRepo)
	usersHandler := users.NewHandler(logger, usersService, guard)

	auditHandler := audit.NewHandler(logger, auditService, guard)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobsHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:         logger,
		Config:         cfg,
		SessionManager: sessionManager,
		AuthService:    authService,
		Authorizer:     authorizer,
		AuthHandler:    authHandler,
		OrgsHandler:    orgsHandler,
		RolesHandler:   rolesHandler,
		UsersHandler:   usersHandler,
		AuditHandler:   auditHandler,
		JobsHandler:    jobsHandler,
		Metrics:        metrics,
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
