package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/khata-erp/khata-erp/internal/jobs"
	"github.com/khata-erp/khata-erp/internal/recon"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// ReconSnapshotJob persists the nightly reconciliation aggregate so trends
// survive cache invalidation.
type ReconSnapshotJob struct {
	Recon   *recon.Service
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewReconSnapshotJob wires dependencies for the snapshot handler.
func NewReconSnapshotJob(reconSvc *recon.Service, logger *slog.Logger, metrics *jobmetrics.Metrics) *ReconSnapshotJob {
	return &ReconSnapshotJob{Recon: reconSvc, Logger: logger, Metrics: metrics}
}

// Handle processes snapshot tasks.
func (j *ReconSnapshotJob) Handle(ctx context.Context, _ *asynq.Task) error {
	if j == nil || j.Recon == nil {
		return errors.New("recon snapshot: handler not configured")
	}

	tracker := j.metrics().Track(TaskReconSnapshot)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger()
	logger.Info("starting reconciliation snapshot")
	start := time.Now()

	jobCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := j.Recon.SaveSnapshot(jobCtx); err != nil {
		resultErr = err
		logger.Error("save snapshot", slog.Any("error", err))
		return resultErr
	}

	logger.Info("completed reconciliation snapshot", slog.Duration("duration", time.Since(start)))
	return resultErr
}

func (j *ReconSnapshotJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskReconSnapshot))
	}
	return slog.Default().With(slog.String("job", TaskReconSnapshot))
}

func (j *ReconSnapshotJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
