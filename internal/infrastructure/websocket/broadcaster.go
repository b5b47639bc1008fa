package websocket

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/goccy/go-json"

	"github.com/flowctl/console/internal/domain/notification"
	"github.com/flowctl/console/internal/infrastructure/eventbus"
)

// EventSubscriber is the part of the event bus the broadcaster needs.
type EventSubscriber interface {
	Subscribe(eventType notification.EventType, handler eventbus.EventHandler) error
}

// EventCounter counts pushed notification events.
type EventCounter interface {
	RecordNotificationEvent(eventType string)
}

// Broadcaster forwards notification events from the bus to the sessions of
// the user they belong to.
type Broadcaster struct {
	hub        *Hub
	bus        EventSubscriber
	logger     *slog.Logger
	counter    EventCounter
	eventTypes []notification.EventType

	running   bool
	runningMu sync.Mutex
}

// BroadcasterOption configures a Broadcaster.
type BroadcasterOption func(*Broadcaster)

// WithBroadcasterLogger sets the logger for the broadcaster.
func WithBroadcasterLogger(logger *slog.Logger) BroadcasterOption {
	return func(b *Broadcaster) {
		b.logger = logger
	}
}

// WithEventCounter records every forwarded event in c.
func WithEventCounter(c EventCounter) BroadcasterOption {
	return func(b *Broadcaster) {
		b.counter = c
	}
}

// WithEventTypes limits the forwarded event types.
func WithEventTypes(eventTypes []notification.EventType) BroadcasterOption {
	return func(b *Broadcaster) {
		b.eventTypes = eventTypes
	}
}

// NewBroadcaster creates a new Broadcaster.
func NewBroadcaster(hub *Hub, bus EventSubscriber, opts ...BroadcasterOption) *Broadcaster {
	b := &Broadcaster{
		hub:        hub,
		bus:        bus,
		logger:     slog.Default(),
		eventTypes: eventbus.NotificationEventTypes(),
	}

	for _, opt := range opts {
		opt(b)
	}

	return b
}

// Start subscribes to the bus. It must be called before the bus starts and
// does not block.
func (b *Broadcaster) Start(ctx context.Context) error {
	b.runningMu.Lock()
	defer b.runningMu.Unlock()

	if b.running {
		return nil
	}

	for _, eventType := range b.eventTypes {
		if err := b.bus.Subscribe(eventType, b.HandleEvent); err != nil {
			return fmt.Errorf("subscribe to %s: %w", eventType, err)
		}
	}
	b.running = true

	b.logger.InfoContext(ctx, "websocket broadcaster started",
		slog.Int("event_types", len(b.eventTypes)),
	)

	return nil
}

// IsRunning returns whether the broadcaster is subscribed.
func (b *Broadcaster) IsRunning() bool {
	b.runningMu.Lock()
	defer b.runningMu.Unlock()
	return b.running
}

// HandleEvent pushes evt to the user's connections on this instance.
func (b *Broadcaster) HandleEvent(ctx context.Context, evt notification.Event) error {
	if evt.UserID == "" {
		b.logger.WarnContext(ctx, "dropping notification event without user",
			slog.String("event_type", string(evt.Type)),
		)
		return nil
	}

	data, err := json.Marshal(OutboundMessage{Type: string(evt.Type), Data: evt})
	if err != nil {
		return fmt.Errorf("encode %s: %w", evt.Type, err)
	}

	if b.hub.UserConnectionCount(evt.UserID) > 0 {
		b.hub.SendToUser(evt.UserID, data)
	}
	if b.counter != nil {
		b.counter.RecordNotificationEvent(string(evt.Type))
	}

	b.logger.DebugContext(ctx, "notification event forwarded",
		slog.String("event_type", string(evt.Type)),
		slog.String("user_id", evt.UserID),
	)

	return nil
}
