package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/khata-erp/khata-erp/internal/ap"
	"github.com/khata-erp/khata-erp/internal/app"
	"github.com/khata-erp/khata-erp/internal/notes"
	"github.com/khata-erp/khata-erp/internal/platform/cache"
	"github.com/khata-erp/khata-erp/internal/platform/db"
	"github.com/khata-erp/khata-erp/internal/recon"
	"github.com/khata-erp/khata-erp/internal/shared"
	"github.com/khata-erp/khata-erp/jobs"
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
		logger.Warn("redis unavailable", slog.Any("error", err))
	}
	defer func() {
		if redisClient == nil {
			return
		}
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	sequence := shared.NewSequence(pool)
	approvalRecorder := shared.NewApprovalRecorder(pool, logger)

	reconRepo := recon.NewPgRepository(pool)
	reconCache := recon.NewCache(redisClient, cfg.CacheTTL)
	reconService := recon.NewService(reconRepo, reconCache, nil)

	notesRepo := notes.NewPgRepository(pool)
	notesService := notes.NewService(notesRepo, sequence, approvalRecorder)

	apRepo := ap.NewPgRepository(pool)
	apService := ap.NewService(apRepo, sequence, approvalRecorder)
	apService.SetNotesProvider(notesService)

	client, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("init jobs client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := client.Close(); err != nil {
			logger.Warn("jobs client close", slog.Any("error", err))
		}
	}()

	snapshotJob := jobs.NewReconSnapshotJob(reconService, logger, nil)
	dueSoonJob := jobs.NewDueSoonScanJob(apService, client, cfg.ReminderEmail, logger, nil)

	dueSoonTask, err := jobs.NewDueSoonScanTask(jobs.DueSoonScanPayload{})
	if err != nil {
		logger.Error("build due soon task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskReconSnapshot, Handler: snapshotJob.Handle},
			{Type: jobs.TaskDueSoonScan, Handler: dueSoonJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.SnapshotCron, Task: jobs.NewReconSnapshotTask(), Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: cfg.ReminderCron, Task: dueSoonTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
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
