package websocket_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowctl/console/internal/domain/notification"
	"github.com/flowctl/console/internal/infrastructure/eventbus"
	ws "github.com/flowctl/console/internal/infrastructure/websocket"
)

type recordingSubscriber struct {
	mu       sync.Mutex
	handlers map[notification.EventType]eventbus.EventHandler
	err      error
}

func (s *recordingSubscriber) Subscribe(eventType notification.EventType, handler eventbus.EventHandler) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	if s.handlers == nil {
		s.handlers = make(map[notification.EventType]eventbus.EventHandler)
	}
	s.handlers[eventType] = handler
	return nil
}

type countingRecorder struct {
	mu     sync.Mutex
	counts map[string]int
}

func (r *countingRecorder) RecordNotificationEvent(eventType string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.counts == nil {
		r.counts = make(map[string]int)
	}
	r.counts[eventType]++
}

func TestBroadcaster_Start(t *testing.T) {
	t.Run("subscribes to every notification event", func(t *testing.T) {
		sub := &recordingSubscriber{}
		b := ws.NewBroadcaster(ws.NewHub(), sub)

		require.NoError(t, b.Start(context.Background()))
		require.NoError(t, b.Start(context.Background()))

		assert.True(t, b.IsRunning())
		assert.Len(t, sub.handlers, 3)
		for _, eventType := range eventbus.NotificationEventTypes() {
			assert.Contains(t, sub.handlers, eventType)
		}
	})

	t.Run("limited event types", func(t *testing.T) {
		sub := &recordingSubscriber{}
		b := ws.NewBroadcaster(ws.NewHub(), sub,
			ws.WithEventTypes([]notification.EventType{notification.EventTypeAdded}))

		require.NoError(t, b.Start(context.Background()))

		assert.Len(t, sub.handlers, 1)
	})

	t.Run("subscribe failure", func(t *testing.T) {
		b := ws.NewBroadcaster(ws.NewHub(), &recordingSubscriber{err: errors.New("bus closed")})

		err := b.Start(context.Background())

		require.Error(t, err)
		assert.False(t, b.IsRunning())
	})
}

func TestBroadcaster_HandleEvent(t *testing.T) {
	hub := runHub(t)
	recorder := &countingRecorder{}
	b := ws.NewBroadcaster(hub, &recordingSubscriber{}, ws.WithEventCounter(recorder))

	_, alice := connectClient(t, hub, "alice")
	_, bob := connectClient(t, hub, "bob")
	require.Eventually(t, func() bool { return hub.ClientCount() == 2 }, time.Second, 5*time.Millisecond)

	n, err := notification.New(notification.TypeSuccess, "Flow finished", "deploy-web succeeded")
	require.NoError(t, err)

	require.NoError(t, b.HandleEvent(context.Background(), notification.NewAddedEvent("alice", n)))

	msg := readMessage(t, alice)
	assert.Equal(t, string(notification.EventTypeAdded), msg["type"])
	data, ok := msg["data"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "alice", data["user_id"])
	assert.Equal(t, n.ID.String(), data["notification_id"])
	item, ok := data["notification"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Flow finished", item["title"])
	assert.InDelta(t, float64(notification.DefaultDuration.Milliseconds()), item["duration"], 0)

	assertNoMessage(t, bob)

	recorder.mu.Lock()
	assert.Equal(t, 1, recorder.counts[string(notification.EventTypeAdded)])
	recorder.mu.Unlock()
}

func TestBroadcaster_HandleEventWithoutUser(t *testing.T) {
	recorder := &countingRecorder{}
	b := ws.NewBroadcaster(ws.NewHub(), &recordingSubscriber{}, ws.WithEventCounter(recorder))

	require.NoError(t, b.HandleEvent(context.Background(), notification.Event{Type: notification.EventTypeCleared}))

	assert.Empty(t, recorder.counts)
}

func TestBroadcaster_ThroughInMemoryBus(t *testing.T) {
	hub := runHub(t)
	bus := eventbus.NewInMemoryEventBus()
	t.Cleanup(func() { _ = bus.Shutdown() })

	require.NoError(t, ws.NewBroadcaster(hub, bus).Start(context.Background()))

	_, alice := connectClient(t, hub, "alice")
	require.Eventually(t, func() bool { return hub.UserConnectionCount("alice") == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, bus.Publish(context.Background(), notification.NewClearedEvent("alice")))

	assert.Equal(t, string(notification.EventTypeCleared), readMessage(t, alice)["type"])
}
