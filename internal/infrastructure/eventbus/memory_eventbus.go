package eventbus

import (
	"context"
	"sync"

	"github.com/flowctl/console/internal/domain/notification"
)

// InMemoryEventBus dispatches events inside the process. It serves
// single-instance deployments and mock mode.
type InMemoryEventBus struct {
	dispatcher

	mu       sync.Mutex
	running  bool
	shutdown chan struct{}
}

// NewInMemoryEventBus creates an in-process event bus. The channel prefix
// option is ignored.
func NewInMemoryEventBus(opts ...Option) *InMemoryEventBus {
	o := applyOptions(opts)

	b := &InMemoryEventBus{
		dispatcher: newDispatcher(),
		shutdown:   make(chan struct{}),
	}
	b.logger = o.logger
	b.retryConfig = o.retryConfig

	return b
}

// Publish hands the event to every handler of its type. Handlers run
// detached from the caller's cancellation.
func (b *InMemoryEventBus) Publish(ctx context.Context, evt notification.Event) error {
	if evt.Type == "" {
		return ErrEmptyEventType
	}
	b.dispatch(context.WithoutCancel(ctx), evt)
	return nil
}

// Start blocks until Shutdown is called or the context is cancelled.
func (b *InMemoryEventBus) Start(ctx context.Context) error {
	b.mu.Lock()
	if b.running {
		b.mu.Unlock()
		return ErrAlreadyRunning
	}
	b.running = true
	b.mu.Unlock()

	b.logger.InfoContext(ctx, "in-memory event bus started")

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-b.shutdown:
		return nil
	}
}

// Shutdown stops the bus and waits for running handlers.
func (b *InMemoryEventBus) Shutdown() error {
	b.mu.Lock()
	if b.running {
		b.running = false
		close(b.shutdown)
	}
	b.mu.Unlock()

	b.wg.Wait()
	return nil
}

var _ Bus = (*InMemoryEventBus)(nil)
