package notification_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appnotification "github.com/flowctl/console/internal/application/notification"
	"github.com/flowctl/console/internal/domain/notification"
	"github.com/flowctl/console/internal/domain/uuid"
)

type memoryRepository struct {
	mu      sync.Mutex
	items   map[string][]notification.Notification
	findErr error
	// beforeFind runs outside the lock on every FindByUserID.
	beforeFind func(userID string)
	finds      int
}

func newMemoryRepository() *memoryRepository {
	return &memoryRepository{items: make(map[string][]notification.Notification)}
}

func (r *memoryRepository) FindByUserID(_ context.Context, userID string) ([]notification.Notification, error) {
	if r.beforeFind != nil {
		r.beforeFind(userID)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finds++
	if r.findErr != nil {
		return nil, r.findErr
	}
	return append([]notification.Notification(nil), r.items[userID]...), nil
}

func (r *memoryRepository) Save(_ context.Context, userID string, n notification.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[userID] = append(r.items[userID], n)
	return nil
}

func (r *memoryRepository) Delete(_ context.Context, userID string, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	kept := r.items[userID][:0]
	for _, n := range r.items[userID] {
		if n.ID != id {
			kept = append(kept, n)
		}
	}
	r.items[userID] = kept
	return nil
}

func (r *memoryRepository) DeleteByUserID(_ context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.items, userID)
	return nil
}

func (r *memoryRepository) setFindErr(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.findErr = err
}

func (r *memoryRepository) findCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.finds
}

func (r *memoryRepository) count(userID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.items[userID])
}

type eventRecorder struct {
	mu     sync.Mutex
	events []notification.Event
}

func (r *eventRecorder) Publish(_ context.Context, event notification.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *eventRecorder) types() []notification.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]notification.EventType, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

type counterGauge struct {
	mu    sync.Mutex
	value int
}

func (g *counterGauge) AddActiveNotifications(delta int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.value += delta
}

func (g *counterGauge) get() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.value
}

func TestRegistry_StoresArePerUser(t *testing.T) {
	r := appnotification.NewRegistry(appnotification.RegistryConfig{})
	defer r.Close()
	ctx := context.Background()

	_, err := r.Add(ctx, "alice", notification.TypeInfo, "hi", "")
	require.NoError(t, err)

	assert.Len(t, r.List(ctx, "alice"), 1)
	assert.Empty(t, r.List(ctx, "bob"))
	assert.Same(t, r.For(ctx, "alice"), r.For(ctx, "alice"))
}

func TestRegistry_PublishesEvents(t *testing.T) {
	events := &eventRecorder{}
	r := appnotification.NewRegistry(appnotification.RegistryConfig{Publisher: events})
	defer r.Close()
	ctx := context.Background()

	id, err := r.Add(ctx, "alice", notification.TypeSuccess, "ok", "")
	require.NoError(t, err)
	assert.True(t, r.Remove(ctx, "alice", id))
	r.Clear(ctx, "alice")

	assert.Equal(t, []notification.EventType{
		notification.EventTypeAdded,
		notification.EventTypeRemoved,
		notification.EventTypeCleared,
	}, events.types())
}

func TestRegistry_PublishesExpiry(t *testing.T) {
	events := &eventRecorder{}
	r := appnotification.NewRegistry(appnotification.RegistryConfig{
		Publisher:       events,
		DefaultDuration: 10 * time.Millisecond,
	})
	defer r.Close()

	_, err := r.Add(context.Background(), "alice", notification.TypeInfo, "short", "")
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		return len(events.types()) == 2
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, notification.EventTypeRemoved, events.types()[1])
}

func TestRegistry_EventsKeepChangeOrder(t *testing.T) {
	events := &eventRecorder{}
	r := appnotification.NewRegistry(appnotification.RegistryConfig{Publisher: events})
	defer r.Close()
	ctx := context.Background()

	const n = 200
	for range n {
		_, err := r.Add(ctx, "alice", notification.TypeInfo, "blink", "", notification.WithDuration(time.Nanosecond))
		require.NoError(t, err)
	}
	require.Eventually(t, func() bool { return len(events.types()) == 2*n }, 5*time.Second, 5*time.Millisecond)

	events.mu.Lock()
	defer events.mu.Unlock()
	added := make(map[uuid.UUID]bool, n)
	for _, e := range events.events {
		switch e.Type {
		case notification.EventTypeAdded:
			added[e.NotificationID] = true
		case notification.EventTypeRemoved:
			assert.True(t, added[e.NotificationID], "removed published before added for %s", e.NotificationID)
		}
	}
}

func TestRegistry_PersistsOnlyPersistentNotifications(t *testing.T) {
	repo := newMemoryRepository()
	r := appnotification.NewRegistry(appnotification.RegistryConfig{Repository: repo})
	defer r.Close()
	ctx := context.Background()

	_, err := r.Add(ctx, "alice", notification.TypeInfo, "transient", "")
	require.NoError(t, err)
	errID, err := r.Add(ctx, "alice", notification.TypeError, "failed", "", notification.Persistent())
	require.NoError(t, err)

	assert.Equal(t, 1, repo.count("alice"))

	r.Remove(ctx, "alice", errID)
	assert.Equal(t, 0, repo.count("alice"))
}

func TestRegistry_RestoresPersistedNotifications(t *testing.T) {
	repo := newMemoryRepository()
	persisted, err := notification.New(notification.TypeError, "failed", "still here", notification.Persistent())
	require.NoError(t, err)
	require.NoError(t, repo.Save(context.Background(), "alice", persisted))

	gauge := &counterGauge{}
	events := &eventRecorder{}
	r := appnotification.NewRegistry(appnotification.RegistryConfig{
		Repository: repo,
		Publisher:  events,
		Gauge:      gauge,
	})
	defer r.Close()

	items := r.List(context.Background(), "alice")
	require.Len(t, items, 1)
	assert.Equal(t, persisted.ID, items[0].ID)
	assert.Equal(t, 1, gauge.get())
	assert.Empty(t, events.types())
	assert.Equal(t, 1, repo.count("alice"))
}

func TestRegistry_LoadRetriedAfterFailure(t *testing.T) {
	repo := newMemoryRepository()
	persisted, err := notification.New(notification.TypeError, "failed", "", notification.Persistent())
	require.NoError(t, err)
	require.NoError(t, repo.Save(context.Background(), "alice", persisted))

	gauge := &counterGauge{}
	r := appnotification.NewRegistry(appnotification.RegistryConfig{Repository: repo, Gauge: gauge})
	defer r.Close()
	ctx := context.Background()

	repo.setFindErr(errors.New("mongo down"))
	assert.Empty(t, r.List(ctx, "alice"))

	// Added while the repository is unreachable for reads.
	addedID, err := r.Add(ctx, "alice", notification.TypeWarning, "meanwhile", "", notification.Persistent())
	require.NoError(t, err)

	repo.setFindErr(nil)
	items := r.List(ctx, "alice")
	require.Len(t, items, 2)
	assert.Equal(t, addedID, items[0].ID)
	assert.Equal(t, persisted.ID, items[1].ID)
	assert.Equal(t, 2, gauge.get())

	finds := repo.findCount()
	r.List(ctx, "alice")
	assert.Equal(t, finds, repo.findCount(), "a successful load is not repeated")
}

func TestRegistry_SlowLoadDoesNotBlockOtherUsers(t *testing.T) {
	release := make(chan struct{})
	repo := newMemoryRepository()
	repo.beforeFind = func(userID string) {
		if userID == "alice" {
			<-release
		}
	}
	r := appnotification.NewRegistry(appnotification.RegistryConfig{Repository: repo})
	defer r.Close()
	ctx := context.Background()

	aliceDone := make(chan []notification.Notification, 2)
	for range 2 {
		go func() { aliceDone <- r.List(ctx, "alice") }()
	}

	bobDone := make(chan struct{})
	go func() {
		_, _ = r.Add(ctx, "bob", notification.TypeInfo, "hi", "")
		close(bobDone)
	}()

	select {
	case <-bobDone:
	case <-time.After(time.Second):
		t.Fatal("bob was blocked by alice's load")
	}

	close(release)
	for range 2 {
		select {
		case <-aliceDone:
		case <-time.After(time.Second):
			t.Fatal("alice's load did not finish")
		}
	}
	// bob's load plus one shared load for alice.
	assert.Equal(t, 2, repo.findCount())
}

func TestRegistry_Gauge(t *testing.T) {
	gauge := &counterGauge{}
	r := appnotification.NewRegistry(appnotification.RegistryConfig{Gauge: gauge})
	defer r.Close()
	ctx := context.Background()

	id, err := r.Add(ctx, "alice", notification.TypeError, "a", "", notification.Persistent())
	require.NoError(t, err)
	_, err = r.Add(ctx, "alice", notification.TypeError, "b", "", notification.Persistent())
	require.NoError(t, err)
	_, err = r.Add(ctx, "bob", notification.TypeError, "c", "", notification.Persistent())
	require.NoError(t, err)
	assert.Equal(t, 3, gauge.get())

	r.Remove(ctx, "alice", id)
	assert.Equal(t, 2, gauge.get())

	r.Clear(ctx, "alice")
	assert.Equal(t, 1, gauge.get())
}
