package worker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/agreet/backend/pkg/queue"
)

type fakeNotifier struct {
	calls []queue.MatchNotificationPayload
	err   error
}

func (n *fakeNotifier) NotifyMatch(_ context.Context, sessionID, optionID uuid.UUID) error {
	n.calls = append(n.calls, queue.MatchNotificationPayload{SessionID: sessionID, OptionID: optionID})
	return n.err
}

func matchJob(t *testing.T, payload queue.MatchNotificationPayload) *queue.Job {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	return &queue.Job{ID: uuid.New().String(), Type: queue.JobTypeMatchNotification, Payload: raw}
}

func TestProcess(t *testing.T) {
	notifier := &fakeNotifier{}
	p := NewNotificationProcessor(notifier, nil, zap.NewNop())

	payload := queue.MatchNotificationPayload{SessionID: uuid.New(), OptionID: uuid.New()}
	require.NoError(t, p.Process(context.Background(), matchJob(t, payload)))
	require.Len(t, notifier.calls, 1)
	assert.Equal(t, payload, notifier.calls[0])
}

func TestProcessUnknownJobType(t *testing.T) {
	p := NewNotificationProcessor(&fakeNotifier{}, nil, zap.NewNop())
	err := p.Process(context.Background(), &queue.Job{Type: "mystery"})
	assert.Error(t, err)
}

func TestProcessBadPayload(t *testing.T) {
	p := NewNotificationProcessor(&fakeNotifier{}, nil, zap.NewNop())
	err := p.Process(context.Background(), &queue.Job{
		Type:    queue.JobTypeMatchNotification,
		Payload: json.RawMessage(`{broken`),
	})
	assert.Error(t, err)
}

func TestProcessNotifierFailure(t *testing.T) {
	notifier := &fakeNotifier{err: errors.New("apns down")}
	p := NewNotificationProcessor(notifier, nil, zap.NewNop())
	err := p.Process(context.Background(), matchJob(t, queue.MatchNotificationPayload{
		SessionID: uuid.New(), OptionID: uuid.New(),
	}))
	assert.Error(t, err, "failures must surface so the job is retried")
}
