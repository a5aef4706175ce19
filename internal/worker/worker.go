package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/agreet/backend/pkg/queue"
)

// MatchNotifier fans a match announcement out to a session's participants.
type MatchNotifier interface {
	NotifyMatch(ctx context.Context, sessionID, optionID uuid.UUID) error
}

// NotificationProcessor drains match notification jobs from the queue and
// hands them to the notifier. Delivery is at-least-once: a failed job is
// re-enqueued up to the queue's retry limit, then parked in the DLQ.
type NotificationProcessor struct {
	notifier MatchNotifier
	queue    *queue.Queue
	logger   *zap.Logger
}

// NewNotificationProcessor creates a notification job processor.
func NewNotificationProcessor(notifier MatchNotifier, q *queue.Queue, logger *zap.Logger) *NotificationProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationProcessor{notifier: notifier, queue: q, logger: logger}
}

// Process executes one match notification job.
func (p *NotificationProcessor) Process(ctx context.Context, job *queue.Job) error {
	if job.Type != queue.JobTypeMatchNotification {
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
	var payload queue.MatchNotificationPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}

	if err := p.notifier.NotifyMatch(ctx, payload.SessionID, payload.OptionID); err != nil {
		return fmt.Errorf("notify match: %w", err)
	}
	p.logger.Info("match notification delivered",
		zap.String("session_id", payload.SessionID.String()),
		zap.String("option_id", payload.OptionID.String()))
	return nil
}

// Run starts the worker loop: dequeue, process, retry on error. Returns when
// ctx is cancelled.
func (p *NotificationProcessor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("notification worker stopping")
			return
		default:
		}

		job, _, err := p.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				p.logger.Info("notification worker stopping")
				return
			}
			p.logger.Warn("dequeue error", zap.Error(err))
			time.Sleep(queue.RetryBackoff)
			continue
		}
		if job == nil {
			continue
		}

		p.logger.Debug("processing job", zap.String("job_id", job.ID), zap.String("type", string(job.Type)))
		if err := p.Process(ctx, job); err != nil {
			p.logger.Error("job failed", zap.String("job_id", job.ID), zap.Error(err))
			if reErr := p.queue.Retry(ctx, job); reErr != nil {
				p.logger.Error("retry enqueue failed", zap.Error(reErr))
			}
			time.Sleep(queue.RetryBackoff)
		}
	}
}
