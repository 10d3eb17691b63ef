package jobs

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypeSendEmail is the task type for sending transactional emails.
	TaskTypeSendEmail = "mail:send"
	// TaskReconSnapshot persists a point-in-time reconciliation aggregate.
	TaskReconSnapshot = "recon:snapshot"
	// TaskDueSoonScan finds bills entering the reminder window and queues
	// reminder emails for them.
	TaskDueSoonScan = "bills:due_soon_scan"
)

// SendEmailPayload describes the information required to send an email.
type SendEmailPayload struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// NewSendEmailTask constructs an Asynq task.
func NewSendEmailTask(payload SendEmailPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeSendEmail, data), nil
}

// HandleSendEmailTask processes TaskTypeSendEmail tasks.
func HandleSendEmailTask(ctx context.Context, t *asynq.Task) error {
	var payload SendEmailPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	// TODO: deliver through SMTP once an outbound relay is provisioned.
	fmt.Printf("[jobs] send email to %s subject=%s\n", payload.To, payload.Subject)
	return nil
}

// NewReconSnapshotTask constructs the snapshot task. It carries no payload;
// the handler always snapshots the all-vendor aggregate.
func NewReconSnapshotTask() *asynq.Task {
	return asynq.NewTask(TaskReconSnapshot, nil)
}

// DueSoonScanPayload optionally overrides the scan date, mainly for
// replaying a missed run.
type DueSoonScanPayload struct {
	AsOf string `json:"asOf,omitempty"`
}

// NewDueSoonScanTask constructs the due-soon scan task.
func NewDueSoonScanTask(payload DueSoonScanPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskDueSoonScan, data), nil
}
