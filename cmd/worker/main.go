package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/gatekeep/gatekeep/internal/acl"
	"github.com/gatekeep/gatekeep/internal/app"
	"github.com/gatekeep/gatekeep/internal/auth"
	jobmetrics "github.com/gatekeep/gatekeep/internal/jobs"
	"github.com/gatekeep/gatekeep/internal/platform/db"
	"github.com/gatekeep/gatekeep/jobs"
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
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	graph := acl.NewGraph(cfg.ACLPublicRole)
	importer := acl.NewImporter(graph, acl.NewDatasetRepository(pool), logger)
	authRepo := auth.NewRepository(pool)

	metrics := jobmetrics.NewMetrics(nil)
	pruneJob := jobs.NewSessionPruneJob(authRepo, logger, metrics)
	refreshJob := jobs.NewACLRefreshJob(importer, cfg.ACLImportFile, logger, metrics)

	pruneTask, err := jobs.NewSessionPruneTask()
	if err != nil {
		logger.Error("build prune task", slog.Any("error", err))
		os.Exit(1)
	}
	refreshTask, err := jobs.NewACLRefreshTask()
	if err != nil {
		logger.Error("build refresh task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskSessionPrune, Handler: pruneJob.Handle},
			{Type: jobs.TaskACLRefresh, Handler: refreshJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "0 3 * * *", Task: pruneTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "30 3 * * *", Task: refreshTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("build worker", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("worker started")
	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker stopped", slog.Any("error", err))
		os.Exit(1)
	}
}
