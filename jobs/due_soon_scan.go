package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/khata-erp/khata-erp/internal/ap"
	"github.com/khata-erp/khata-erp/internal/engine"
	jobmetrics "github.com/khata-erp/khata-erp/internal/jobs"
)

// EmailEnqueuer queues reminder emails. Implemented by the jobs Client.
type EmailEnqueuer interface {
	EnqueueSendEmail(ctx context.Context, payload SendEmailPayload) (*asynq.TaskInfo, error)
}

// DueSoonScanJob finds approved bills entering the reminder window and
// queues one reminder email per bill.
type DueSoonScanJob struct {
	AP        *ap.Service
	Enqueuer  EmailEnqueuer
	Recipient string
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
	clock     func() time.Time
}

// NewDueSoonScanJob wires dependencies for the scan handler.
func NewDueSoonScanJob(apSvc *ap.Service, enqueuer EmailEnqueuer, recipient string, logger *slog.Logger, metrics *jobmetrics.Metrics) *DueSoonScanJob {
	return &DueSoonScanJob{
		AP:        apSvc,
		Enqueuer:  enqueuer,
		Recipient: recipient,
		Logger:    logger,
		Metrics:   metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle processes due-soon scan tasks.
func (j *DueSoonScanJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.AP == nil {
		return errors.New("due soon scan: handler not configured")
	}
	var payload DueSoonScanPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}

	tracker := j.metrics().Track(TaskDueSoonScan)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	asOf := j.now()
	if payload.AsOf != "" {
		parsed, err := engine.ParseDate("asOf", payload.AsOf)
		if err != nil {
			resultErr = fmt.Errorf("parse asOf %q: %w", payload.AsOf, asynq.SkipRetry)
			return resultErr
		}
		asOf = parsed
	}

	logger := j.logger().With(slog.Time("as_of", asOf))
	logger.Info("starting due soon scan")

	jobCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	views, err := j.AP.BillsDueSoon(jobCtx, asOf)
	if err != nil {
		resultErr = err
		logger.Error("load due bills", slog.Any("error", err))
		return resultErr
	}

	queued := 0
	for _, view := range views {
		if j.Enqueuer == nil || j.Recipient == "" {
			break
		}
		_, err := j.Enqueuer.EnqueueSendEmail(jobCtx, SendEmailPayload{
			To:      j.Recipient,
			Subject: fmt.Sprintf("Bill %s due %s", view.Number, view.DueDate.Format("2006-01-02")),
			Body: fmt.Sprintf("Bill %s from %s is due soon. Remaining amount: %.2f",
				view.Number, view.Vendor, view.RemainingAmount),
		})
		if err != nil {
			resultErr = err
			logger.Error("queue reminder", slog.String("bill", view.Number), slog.Any("error", err))
			return resultErr
		}
		queued++
	}
	j.metrics().AddReminders(queued)

	logger.Info("completed due soon scan", slog.Int("due_bills", len(views)), slog.Int("reminders", queued))
	return resultErr
}

func (j *DueSoonScanJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskDueSoonScan))
	}
	return slog.Default().With(slog.String("job", TaskDueSoonScan))
}

func (j *DueSoonScanJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *DueSoonScanJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}
