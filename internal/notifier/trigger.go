package notifier

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/agreet/backend/internal/models"
	"github.com/agreet/backend/pkg/queue"
)

// Events publishes session change events to connected clients.
type Events interface {
	PublishSessionEvent(sessionID uuid.UUID, event string, payload interface{})
}

// Trigger is the consensus engine's match sink: invoked once per session by
// the request that won the match transition. It publishes the realtime
// event and enqueues the durable notification job. Failures here are logged
// and absorbed; the transition is already committed.
type Trigger struct {
	queue  *queue.Queue
	events Events
	logger *zap.Logger
}

// NewTrigger creates a match trigger. queue and events may be nil.
func NewTrigger(q *queue.Queue, events Events, logger *zap.Logger) *Trigger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Trigger{queue: q, events: events, logger: logger}
}

// MatchCommitted implements consensus.MatchSink.
func (t *Trigger) MatchCommitted(ctx context.Context, session *models.Session, optionID uuid.UUID) {
	if t.events != nil {
		t.events.PublishSessionEvent(session.ID, "session_matched", map[string]interface{}{
			"session_id":        session.ID,
			"matched_option_id": optionID,
		})
	}
	if t.queue == nil {
		return
	}
	err := t.queue.EnqueueMatchNotification(ctx, queue.MatchNotificationPayload{
		SessionID: session.ID,
		OptionID:  optionID,
	})
	if err != nil {
		t.logger.Error("failed to enqueue match notification",
			zap.Error(err), zap.String("session_id", session.ID.String()))
	}
}
