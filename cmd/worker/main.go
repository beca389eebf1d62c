package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/arenahub/arenahub/internal/app"
	"github.com/arenahub/arenahub/internal/audit"
	"github.com/arenahub/arenahub/internal/authz"
	jobmetrics "github.com/arenahub/arenahub/internal/jobs"
	"github.com/arenahub/arenahub/internal/orgs"
	"github.com/arenahub/arenahub/internal/platform/cache"
	"github.com/arenahub/arenahub/internal/platform/db"
	"github.com/arenahub/arenahub/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
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
		logger.Error("connect database", slog.Any("error", err))
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

	auditRepo := audit.NewRepository(pool)
	auditService := audit.NewService(auditRepo, logger)

	policyStore := authz.NewRepository(pool)
	orgsRepo := orgs.NewRepository(pool)
	orgsService := orgs.NewService(orgsRepo, policyStore, logger)

	jobMetrics := jobmetrics.NewMetrics(nil)

	pruneTask := jobs.NewDecisionLogPruneTask()
	backfillTask, err := jobs.NewBackfillBuiltinRolesTask(jobs.BackfillPayload{})
	if err != nil {
		logger.Error("build backfill task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskDecisionLogPrune, Handler: jobs.NewDecisionLogPruneHandler(auditService, cfg.DecisionLogRetention, logger, jobMetrics)},
			{Type: jobs.TaskBackfillBuiltinRoles, Handler: jobs.NewBackfillBuiltinRolesHandler(orgsService, logger, jobMetrics)},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "15 2 * * *", Task: pruneTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "45 2 * * *", Task: backfillTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
