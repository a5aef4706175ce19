package realtime

import (
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func newTestClient(sessionID uuid.UUID) *Client {
	return &Client{
		ID:        uuid.New().String(),
		SessionID: sessionID,
		UserID:    uuid.New(),
		send:      make(chan WSMessage, 256),
		logger:    zap.NewNop(),
	}
}

func TestBroadcastToSessionDelivers(t *testing.T) {
	hub := NewHub(zap.NewNop(), nil, nil)
	sessionID := uuid.New()

	clients := make([]*Client, 3)
	for i := range clients {
		clients[i] = newTestClient(sessionID)
		hub.Register(clients[i])
	}
	other := newTestClient(uuid.New())
	hub.Register(other)

	hub.BroadcastToSession(sessionID, "session_matched", map[string]string{"option_id": uuid.NewString()})

	for _, c := range clients {
		msg := <-c.send
		assert.Equal(t, "session_matched", msg.Event)
	}
	assert.Empty(t, other.send, "clients in other rooms receive nothing")
}

func TestBroadcastConcurrentWithRegister(t *testing.T) {
	hub := NewHub(zap.NewNop(), nil, nil)
	sessionID := uuid.New()
	hub.Register(newTestClient(sessionID))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			c := newTestClient(sessionID)
			hub.Register(c)
			hub.Unregister(c)
		}()
		go func() {
			defer wg.Done()
			hub.BroadcastToSession(sessionID, "vote_recorded", []byte(`{}`))
		}()
	}
	wg.Wait()
}

func TestUnregisterCancelsSubscription(t *testing.T) {
	sub := &fakeSubscriber{}
	hub := NewHub(zap.NewNop(), nil, sub)
	sessionID := uuid.New()

	a := newTestClient(sessionID)
	b := newTestClient(sessionID)
	hub.Register(a)
	hub.Register(b)
	assert.Equal(t, 1, sub.subscribed, "one subscription per session room")
	assert.Equal(t, 2, hub.RoomSize(sessionID))

	hub.Unregister(a)
	assert.Equal(t, 0, sub.cancelled, "subscription survives while clients remain")
	hub.Unregister(b)
	assert.Equal(t, 1, sub.cancelled, "last client out cancels the subscription")
	assert.Equal(t, 0, hub.RoomSize(sessionID))
}

type fakeSubscriber struct {
	subscribed int
	cancelled  int
}

func (f *fakeSubscriber) SubscribeSession(_ uuid.UUID, _ func(event string, payload []byte)) (func(), error) {
	f.subscribed++
	return func() { f.cancelled++ }, nil
}
