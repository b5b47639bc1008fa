package notification

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/flowctl/console/internal/domain/notification"
	"github.com/flowctl/console/internal/domain/uuid"
)

const sideEffectTimeout = 5 * time.Second

// Publisher fans notification events out to live sessions.
type Publisher interface {
	Publish(ctx context.Context, event notification.Event) error
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(ctx context.Context, event notification.Event) error

// Publish calls f.
func (f PublisherFunc) Publish(ctx context.Context, event notification.Event) error {
	return f(ctx, event)
}

// Gauge tracks the number of notifications held in memory.
type Gauge interface {
	AddActiveNotifications(delta int)
}

// RegistryConfig contains the optional collaborators of a Registry.
type RegistryConfig struct {
	// Repository persists notifications without a duration. Optional.
	Repository notification.Repository

	// Publisher receives every change. Optional.
	Publisher Publisher

	// Gauge tracks active notifications. Optional.
	Gauge Gauge

	// DefaultDuration replaces notification.DefaultDuration when positive.
	DefaultDuration time.Duration

	Logger *slog.Logger
}

// Registry holds one Store per user.
type Registry struct {
	cfg    RegistryConfig
	logger *slog.Logger

	mu     sync.Mutex
	stores map[string]*userStore
}

// userStore tracks whether the persisted notifications of a user were loaded.
// A failed load is retried on the next access.
type userStore struct {
	store   *Store
	loaded  bool
	loading chan struct{} // closed when the load in flight finishes
}

// NewRegistry creates an empty registry.
func NewRegistry(cfg RegistryConfig) *Registry {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		cfg:    cfg,
		logger: logger,
		stores: make(map[string]*userStore),
	}
}

// For returns the store of userID, creating it on first use. The store is
// seeded with the user's persisted notifications. Until that load succeeds it
// is retried on every call; concurrent callers wait for the load in flight.
func (r *Registry) For(ctx context.Context, userID string) *Store {
	r.mu.Lock()
	u, ok := r.stores[userID]
	if !ok {
		u = &userStore{store: r.newStore(userID), loaded: r.cfg.Repository == nil}
		r.stores[userID] = u
	}
	if u.loaded {
		r.mu.Unlock()
		return u.store
	}
	if wait := u.loading; wait != nil {
		r.mu.Unlock()
		select {
		case <-wait:
		case <-ctx.Done():
		}
		return u.store
	}
	done := make(chan struct{})
	u.loading = done
	r.mu.Unlock()

	loaded := r.load(ctx, userID, u.store)

	r.mu.Lock()
	u.loaded = loaded
	u.loading = nil
	close(done)
	r.mu.Unlock()

	return u.store
}

func (r *Registry) newStore(userID string) *Store {
	var opts []StoreOption
	if r.cfg.DefaultDuration > 0 {
		opts = append(opts, WithDefaultDuration(r.cfg.DefaultDuration))
	}
	s := NewStore(opts...)
	s.observer = &userObserver{registry: r, userID: userID}
	return s
}

// load restores the persisted notifications of userID into s and reports
// whether the repository answered.
func (r *Registry) load(ctx context.Context, userID string, s *Store) bool {
	persisted, err := r.cfg.Repository.FindByUserID(ctx, userID)
	if err != nil {
		r.logger.WarnContext(ctx, "failed to load persisted notifications",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		return false
	}
	r.addGauge(s.restore(persisted))
	return true
}

// Add adds a notification to userID's store.
func (r *Registry) Add(
	ctx context.Context,
	userID string,
	typ notification.Type,
	title, message string,
	opts ...notification.Option,
) (uuid.UUID, error) {
	return r.For(ctx, userID).Add(typ, title, message, opts...)
}

// Remove removes a notification of userID.
func (r *Registry) Remove(ctx context.Context, userID string, id uuid.UUID) bool {
	return r.For(ctx, userID).Remove(id)
}

// Clear removes every notification of userID.
func (r *Registry) Clear(ctx context.Context, userID string) {
	r.For(ctx, userID).Clear()
}

// List returns userID's active notifications.
func (r *Registry) List(ctx context.Context, userID string) []notification.Notification {
	return r.For(ctx, userID).List()
}

// Close stops the dismiss timers of every store.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.stores {
		u.store.Close()
	}
}

func (r *Registry) addGauge(delta int) {
	if r.cfg.Gauge != nil && delta != 0 {
		r.cfg.Gauge.AddActiveNotifications(delta)
	}
}

func (r *Registry) publish(event notification.Event) {
	if r.cfg.Publisher == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), sideEffectTimeout)
	defer cancel()

	if err := r.cfg.Publisher.Publish(ctx, event); err != nil {
		r.logger.Warn("failed to publish notification event",
			slog.String("type", string(event.Type)),
			slog.String("user_id", event.UserID),
			slog.String("error", err.Error()),
		)
	}
}

func (r *Registry) persist(op string, userID string, fn func(ctx context.Context, repo notification.Repository) error) {
	if r.cfg.Repository == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), sideEffectTimeout)
	defer cancel()

	if err := fn(ctx, r.cfg.Repository); err != nil {
		r.logger.Warn("failed to "+op+" persisted notification",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
	}
}

// userObserver binds store changes to a user.
type userObserver struct {
	registry *Registry
	userID   string
}

func (o *userObserver) added(n notification.Notification) {
	o.registry.addGauge(1)
	if n.IsPersistent() {
		o.registry.persist("save", o.userID, func(ctx context.Context, repo notification.Repository) error {
			return repo.Save(ctx, o.userID, n)
		})
	}
	o.registry.publish(notification.NewAddedEvent(o.userID, n))
}

func (o *userObserver) removed(n notification.Notification) {
	o.registry.addGauge(-1)
	if n.IsPersistent() {
		o.registry.persist("delete", o.userID, func(ctx context.Context, repo notification.Repository) error {
			return repo.Delete(ctx, o.userID, n.ID)
		})
	}
	o.registry.publish(notification.NewRemovedEvent(o.userID, n.ID))
}

func (o *userObserver) cleared(removed []notification.Notification) {
	o.registry.addGauge(-len(removed))
	o.registry.persist("clear", o.userID, func(ctx context.Context, repo notification.Repository) error {
		return repo.DeleteByUserID(ctx, o.userID)
	})
	o.registry.publish(notification.NewClearedEvent(o.userID))
}
