package eventbus

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/flowctl/console/internal/domain/notification"
)

// envelope wraps a notification event for the wire.
type envelope struct {
	ID          string             `json:"id"`
	PublishedAt time.Time          `json:"published_at"`
	Event       notification.Event `json:"event"`
}

// Option configures an event bus.
type Option func(*options)

type options struct {
	logger        *slog.Logger
	retryConfig   RetryConfig
	channelPrefix string
}

// WithLogger sets the logger for the event bus.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithRetryConfig sets the retry configuration for event handling.
func WithRetryConfig(config RetryConfig) Option {
	return func(o *options) {
		o.retryConfig = config
	}
}

// WithChannelPrefix sets a prefix for Redis channel names.
func WithChannelPrefix(prefix string) Option {
	return func(o *options) {
		o.channelPrefix = prefix
	}
}

func applyOptions(opts []Option) options {
	o := options{
		logger:        slog.Default(),
		retryConfig:   DefaultRetryConfig(),
		channelPrefix: defaultChannelPrefix,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// RedisEventBus fans notification events out through Redis Pub/Sub so that
// a user's sessions on every console instance see the same list.
type RedisEventBus struct {
	dispatcher

	client        *redis.Client
	pubsub        *redis.PubSub
	pubsubMu      sync.RWMutex
	running       bool
	runningMu     sync.RWMutex
	shutdown      chan struct{}
	channelPrefix string
}

// NewRedisEventBus creates a new Redis-based event bus.
func NewRedisEventBus(client *redis.Client, opts ...Option) *RedisEventBus {
	o := applyOptions(opts)

	b := &RedisEventBus{
		dispatcher:    newDispatcher(),
		client:        client,
		shutdown:      make(chan struct{}),
		channelPrefix: o.channelPrefix,
	}
	b.logger = o.logger
	b.retryConfig = o.retryConfig

	return b
}

// Publish publishes a notification event to Redis Pub/Sub.
func (b *RedisEventBus) Publish(ctx context.Context, evt notification.Event) error {
	if evt.Type == "" {
		return ErrEmptyEventType
	}

	env := envelope{
		ID:          uuid.New().String(),
		PublishedAt: time.Now().UTC(),
		Event:       evt,
	}

	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	channel := b.channelName(evt.Type)
	if publishErr := b.client.Publish(ctx, channel, data).Err(); publishErr != nil {
		return fmt.Errorf("failed to publish event to Redis: %w", publishErr)
	}

	b.logger.DebugContext(ctx, "event published",
		slog.String("event_id", env.ID),
		slog.String("event_type", string(evt.Type)),
		slog.String("user_id", evt.UserID),
		slog.String("channel", channel),
	)

	return nil
}

// Start begins listening for events on subscribed channels.
// This method blocks until Shutdown is called or the context is cancelled.
func (b *RedisEventBus) Start(ctx context.Context) error {
	b.runningMu.Lock()
	if b.running {
		b.runningMu.Unlock()
		return ErrAlreadyRunning
	}
	b.running = true
	b.runningMu.Unlock()

	channels := b.subscribedChannels()
	if len(channels) == 0 {
		b.logger.WarnContext(ctx, "starting event bus with no subscriptions")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-b.shutdown:
			return nil
		}
	}

	pubsub := b.client.Subscribe(ctx, channels...)

	// wait for subscription confirmation
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return fmt.Errorf("failed to subscribe to channels: %w", err)
	}

	b.pubsubMu.Lock()
	b.pubsub = pubsub
	b.pubsubMu.Unlock()

	b.logger.InfoContext(ctx, "event bus started",
		slog.Int("channel_count", len(channels)),
		slog.Any("channels", channels),
	)

	msgCh := pubsub.Channel()

	for {
		select {
		case <-ctx.Done():
			b.logger.InfoContext(ctx, "event bus stopping due to context cancellation")
			return ctx.Err()

		case <-b.shutdown:
			b.logger.InfoContext(ctx, "event bus stopping due to shutdown signal")
			return nil

		case msg, ok := <-msgCh:
			if !ok {
				b.logger.WarnContext(ctx, "message channel closed")
				return nil
			}
			b.handleMessage(ctx, msg)
		}
	}
}

// Shutdown gracefully stops the event bus.
// It waits for all pending event handlers to complete.
func (b *RedisEventBus) Shutdown() error {
	b.runningMu.Lock()
	if !b.running {
		b.runningMu.Unlock()
		return nil
	}
	b.running = false
	b.runningMu.Unlock()

	close(b.shutdown)
	b.wg.Wait()

	b.pubsubMu.Lock()
	pubsub := b.pubsub
	b.pubsub = nil
	b.pubsubMu.Unlock()

	if pubsub != nil {
		if err := pubsub.Close(); err != nil {
			return fmt.Errorf("failed to close pubsub: %w", err)
		}
	}

	return nil
}

// IsRunning returns true if the event bus is currently running.
func (b *RedisEventBus) IsRunning() bool {
	b.runningMu.RLock()
	defer b.runningMu.RUnlock()
	return b.running
}

func (b *RedisEventBus) channelName(eventType notification.EventType) string {
	return b.channelPrefix + string(eventType)
}

func (b *RedisEventBus) subscribedChannels() []string {
	types := b.eventTypes()
	channels := make([]string, 0, len(types))
	for _, eventType := range types {
		channels = append(channels, b.channelName(eventType))
	}
	return channels
}

func (b *RedisEventBus) handleMessage(ctx context.Context, msg *redis.Message) {
	var env envelope
	if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
		b.logger.ErrorContext(ctx, "failed to unmarshal event",
			slog.String("channel", msg.Channel),
			slog.String("error", err.Error()),
		)
		return
	}

	b.dispatch(ctx, env.Event)
}

var _ Bus = (*RedisEventBus)(nil)
