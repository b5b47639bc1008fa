// Package eventbus delivers notification events to every console instance.
package eventbus

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/flowctl/console/internal/domain/notification"
)

// Default retry configuration constants.
const (
	defaultMaxRetries     = 3
	defaultInitialBackoff = 100 * time.Millisecond
	defaultMaxBackoff     = 5 * time.Second
	defaultBackoffFactor  = 2.0
	defaultChannelPrefix  = "console:events:"
)

// Bus errors.
var (
	ErrEmptyEventType = errors.New("event type cannot be empty")
	ErrNilHandler     = errors.New("handler cannot be nil")
	ErrAlreadyRunning = errors.New("event bus is already running")
)

// EventHandler handles one notification event.
type EventHandler func(ctx context.Context, event notification.Event) error

// Bus publishes notification events and dispatches them to subscribers.
type Bus interface {
	Publish(ctx context.Context, event notification.Event) error
	Subscribe(eventType notification.EventType, handler EventHandler) error
	Start(ctx context.Context) error
	Shutdown() error
}

// NotificationEventTypes lists every event type the notification registry emits.
func NotificationEventTypes() []notification.EventType {
	return []notification.EventType{
		notification.EventTypeAdded,
		notification.EventTypeRemoved,
		notification.EventTypeCleared,
	}
}

// RetryConfig configures retry behavior for event handling.
type RetryConfig struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	BackoffFactor  float64
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:     defaultMaxRetries,
		InitialBackoff: defaultInitialBackoff,
		MaxBackoff:     defaultMaxBackoff,
		BackoffFactor:  defaultBackoffFactor,
	}
}

// dispatcher keeps the handler table and runs handlers with retries.
// Both bus implementations embed it.
type dispatcher struct {
	handlers    map[notification.EventType][]EventHandler
	handlersMu  sync.RWMutex
	wg          sync.WaitGroup
	logger      *slog.Logger
	retryConfig RetryConfig
}

func newDispatcher() dispatcher {
	return dispatcher{
		handlers:    make(map[notification.EventType][]EventHandler),
		logger:      slog.Default(),
		retryConfig: DefaultRetryConfig(),
	}
}

// Subscribe registers an event handler for a specific event type.
// Handlers are called concurrently when events are received.
func (d *dispatcher) Subscribe(eventType notification.EventType, handler EventHandler) error {
	if eventType == "" {
		return ErrEmptyEventType
	}
	if handler == nil {
		return ErrNilHandler
	}

	d.handlersMu.Lock()
	defer d.handlersMu.Unlock()

	d.handlers[eventType] = append(d.handlers[eventType], handler)
	return nil
}

// HandlerCount returns the number of handlers registered for an event type.
func (d *dispatcher) HandlerCount(eventType notification.EventType) int {
	d.handlersMu.RLock()
	defer d.handlersMu.RUnlock()
	return len(d.handlers[eventType])
}

func (d *dispatcher) eventTypes() []notification.EventType {
	d.handlersMu.RLock()
	defer d.handlersMu.RUnlock()

	types := make([]notification.EventType, 0, len(d.handlers))
	for eventType := range d.handlers {
		types = append(types, eventType)
	}
	return types
}

func (d *dispatcher) dispatch(ctx context.Context, evt notification.Event) {
	d.handlersMu.RLock()
	handlers := d.handlers[evt.Type]
	d.handlersMu.RUnlock()

	for i, handler := range handlers {
		d.wg.Add(1)
		go d.executeHandler(ctx, handler, evt, i)
	}
}

// executeHandler runs a single event handler with retry logic.
func (d *dispatcher) executeHandler(
	ctx context.Context,
	handler EventHandler,
	evt notification.Event,
	handlerIndex int,
) {
	defer d.wg.Done()

	var lastErr error
	backoff := d.retryConfig.InitialBackoff

	for attempt := 0; attempt <= d.retryConfig.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				d.logger.WarnContext(ctx, "handler retry cancelled",
					slog.String("event_type", string(evt.Type)),
					slog.String("error", ctx.Err().Error()),
				)
				return
			case <-time.After(backoff):
			}

			backoff = min(time.Duration(float64(backoff)*d.retryConfig.BackoffFactor), d.retryConfig.MaxBackoff)
		}

		if err := handler(ctx, evt); err != nil {
			lastErr = err
			d.logger.WarnContext(ctx, "event handler failed",
				slog.String("event_type", string(evt.Type)),
				slog.String("user_id", evt.UserID),
				slog.Int("handler_index", handlerIndex),
				slog.Int("attempt", attempt),
				slog.String("error", err.Error()),
			)
			continue
		}
		return
	}

	d.logger.ErrorContext(ctx, "event handler failed after all retries",
		slog.String("event_type", string(evt.Type)),
		slog.String("user_id", evt.UserID),
		slog.Int("handler_index", handlerIndex),
		slog.Int("max_retries", d.retryConfig.MaxRetries),
		slog.String("error", lastErr.Error()),
	)
}
