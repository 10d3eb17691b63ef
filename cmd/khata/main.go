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

	"github.com/khata-erp/khata-erp/internal/ap"
	"github.com/khata-erp/khata-erp/internal/app"
	"github.com/khata-erp/khata-erp/internal/notes"
	"github.com/khata-erp/khata-erp/internal/observability"
	"github.com/khata-erp/khata-erp/internal/platform/cache"
	"github.com/khata-erp/khata-erp/internal/platform/db"
	"github.com/khata-erp/khata-erp/internal/recon"
	"github.com/khata-erp/khata-erp/internal/shared"
	"github.com/khata-erp/khata-erp/jobs"
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
		logger.Warn("redis unavailable, reports will compute uncached", slog.Any("error", err))
	}
	defer func() {
		if redisClient == nil {
			return
		}
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	sequence := shared.NewSequence(dbpool)
	approvalRecorder := shared.NewApprovalRecorder(dbpool, logger)
	metrics := observability.NewMetrics()

	reconRepo := recon.NewPgRepository(dbpool)
	reconCache := recon.NewCache(redisClient, cfg.CacheTTL)
	reconService := recon.NewService(reconRepo, reconCache, metrics)
	if err := reconCache.ListenForInvalidation(ctx, ""); err != nil {
		logger.Warn("cache invalidation listener", slog.Any("error", err))
	}

	notesRepo := notes.NewPgRepository(dbpool)
	notesService := notes.NewService(notesRepo, sequence, approvalRecorder)
	notesService.SetInvalidator(reconService)

	apRepo := ap.NewPgRepository(dbpool)
	apService := ap.NewService(apRepo, sequence, approvalRecorder)
	apService.SetNotesProvider(notesService)
	apService.SetInvalidator(reconService)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:       logger,
		Config:       cfg,
		APHandler:    ap.NewHandler(logger, apService),
		NotesHandler: notes.NewHandler(logger, notesService),
		ReconHandler: recon.NewHandler(logger, reconService),
		JobsHandler:  jobs.NewHandler(inspector, logger),
		Metrics:      metrics,
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
