// Package notification keeps the per-user lists of console notifications
// and dismisses them once their display duration elapses.
package notification

import (
	"sync"
	"time"

	"github.com/flowctl/console/internal/domain/notification"
	"github.com/flowctl/console/internal/domain/uuid"
)

// Listener receives the full notification list after every change.
// Listeners are called in change order and must not call back into the Store.
type Listener func([]notification.Notification)

// storeObserver is notified about changes after listeners ran, in change order.
type storeObserver interface {
	added(n notification.Notification)
	removed(n notification.Notification)
	cleared(removed []notification.Notification)
}

// Store is an ordered list of active notifications with timed auto-dismiss.
type Store struct {
	mu              sync.Mutex
	notifyMu        sync.Mutex
	items           []notification.Notification
	timers          map[uuid.UUID]*time.Timer
	listeners       map[int]Listener
	nextListenerID  int
	defaultDuration time.Duration
	observer        storeObserver
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithDefaultDuration overrides notification.DefaultDuration.
func WithDefaultDuration(d time.Duration) StoreOption {
	return func(s *Store) {
		s.defaultDuration = d
	}
}

// NewStore creates an empty store.
func NewStore(opts ...StoreOption) *Store {
	s := &Store{
		timers:          make(map[uuid.UUID]*time.Timer),
		listeners:       make(map[int]Listener),
		defaultDuration: notification.DefaultDuration,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Add creates a notification and returns its id. Unless opts say otherwise the
// notification is dismissible and disappears after the default duration.
func (s *Store) Add(typ notification.Type, title, message string, opts ...notification.Option) (uuid.UUID, error) {
	if s.defaultDuration != notification.DefaultDuration {
		opts = append([]notification.Option{notification.WithDuration(s.defaultDuration)}, opts...)
	}
	n, err := notification.New(typ, title, message, opts...)
	if err != nil {
		return "", err
	}
	s.insert(n)
	return n.ID, nil
}

// Success adds a success notification.
func (s *Store) Success(title, message string, opts ...notification.Option) uuid.UUID {
	return s.mustAdd(notification.TypeSuccess, title, message, opts)
}

// Error adds an error notification. It is persistent unless a duration is given.
func (s *Store) Error(title, message string, opts ...notification.Option) uuid.UUID {
	opts = append([]notification.Option{notification.Persistent()}, opts...)
	return s.mustAdd(notification.TypeError, title, message, opts)
}

// Warning adds a warning notification.
func (s *Store) Warning(title, message string, opts ...notification.Option) uuid.UUID {
	return s.mustAdd(notification.TypeWarning, title, message, opts)
}

// Info adds an informational notification.
func (s *Store) Info(title, message string, opts ...notification.Option) uuid.UUID {
	return s.mustAdd(notification.TypeInfo, title, message, opts)
}

// mustAdd is used with the built-in types, which never fail validation.
func (s *Store) mustAdd(typ notification.Type, title, message string, opts []notification.Option) uuid.UUID {
	id, err := s.Add(typ, title, message, opts...)
	if err != nil {
		panic(err)
	}
	return id
}

// Remove deletes the notification with id. Unknown ids are ignored.
// It reports whether a notification was removed.
func (s *Store) Remove(id uuid.UUID) bool {
	return s.remove(id, true)
}

// Clear removes every notification.
func (s *Store) Clear() {
	s.mu.Lock()
	removed := s.items
	s.items = nil
	for id, t := range s.timers {
		t.Stop()
		delete(s.timers, id)
	}
	s.publishLocked(func(o storeObserver) { o.cleared(removed) })
}

// List returns a snapshot of the active notifications in insertion order.
func (s *Store) List() []notification.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Len returns the number of active notifications.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// Subscribe registers fn and calls it immediately with the current list.
// The returned function unregisters fn.
func (s *Store) Subscribe(fn Listener) func() {
	s.mu.Lock()
	id := s.nextListenerID
	s.nextListenerID++
	s.listeners[id] = fn
	snapshot := s.snapshotLocked()

	s.notifyMu.Lock()
	s.mu.Unlock()
	fn(snapshot)
	s.notifyMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.listeners, id)
			s.mu.Unlock()
		})
	}
}

// Close stops all pending dismiss timers. Notifications stay in the list.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, t := range s.timers {
		t.Stop()
		delete(s.timers, id)
	}
}

// restore loads notifications without reporting them to the observer.
// Ids already in the list are skipped. It returns how many were added.
func (s *Store) restore(items []notification.Notification) int {
	s.mu.Lock()
	present := make(map[uuid.UUID]struct{}, len(s.items))
	for _, n := range s.items {
		present[n.ID] = struct{}{}
	}
	restored := 0
	for _, n := range items {
		if _, ok := present[n.ID]; ok {
			continue
		}
		s.items = append(s.items, n)
		s.scheduleLocked(n)
		restored++
	}
	s.publishLocked(nil)
	return restored
}

func (s *Store) insert(n notification.Notification) {
	s.mu.Lock()
	s.items = append(s.items, n)
	s.scheduleLocked(n)
	s.publishLocked(func(o storeObserver) { o.added(n) })
}

func (s *Store) remove(id uuid.UUID, stopTimer bool) bool {
	s.mu.Lock()
	idx := -1
	for i, n := range s.items {
		if n.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		s.mu.Unlock()
		return false
	}

	n := s.items[idx]
	s.items = append(s.items[:idx:idx], s.items[idx+1:]...)
	if t, ok := s.timers[id]; ok {
		if stopTimer {
			t.Stop()
		}
		delete(s.timers, id)
	}
	s.publishLocked(func(o storeObserver) { o.removed(n) })
	return true
}

func (s *Store) scheduleLocked(n notification.Notification) {
	if n.IsPersistent() {
		return
	}
	id := n.ID
	s.timers[id] = time.AfterFunc(n.Duration, func() {
		s.remove(id, false)
	})
}

// publishLocked must be called with s.mu held. It releases s.mu, then delivers
// the new list to listeners and reports the change to the observer while
// holding notifyMu, so both see changes in the order they were made.
func (s *Store) publishLocked(report func(o storeObserver)) {
	snapshot := s.snapshotLocked()
	listeners := make([]Listener, 0, len(s.listeners))
	for _, fn := range s.listeners {
		listeners = append(listeners, fn)
	}
	observer := s.observer

	s.notifyMu.Lock()
	s.mu.Unlock()
	defer s.notifyMu.Unlock()

	for _, fn := range listeners {
		fn(snapshot)
	}
	if report != nil && observer != nil {
		report(observer)
	}
}

func (s *Store) snapshotLocked() []notification.Notification {
	out := make([]notification.Notification, len(s.items))
	copy(out, s.items)
	return out
}
