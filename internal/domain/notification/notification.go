package notification

import (
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/flowctl/console/internal/domain/errs"
	"github.com/flowctl/console/internal/domain/uuid"
)

// DefaultDuration is how long a notification stays visible unless told otherwise.
const DefaultDuration = 5000 * time.Millisecond

// Type represents the severity of a notification.
type Type string

const (
	// TypeSuccess reports a completed operation
	TypeSuccess Type = "success"
	// TypeError reports a failure; errors are persistent by default
	TypeError Type = "error"
	// TypeWarning reports a recoverable problem
	TypeWarning Type = "warning"
	// TypeInfo is a neutral message
	TypeInfo Type = "info"
)

// Valid reports whether t is a known notification type.
func (t Type) Valid() bool {
	switch t {
	case TypeSuccess, TypeError, TypeWarning, TypeInfo:
		return true
	default:
		return false
	}
}

// Notification is a transient message shown to a console user.
// A zero Duration means the notification stays until it is removed.
type Notification struct {
	ID          uuid.UUID
	Type        Type
	Title       string
	Message     string
	Duration    time.Duration
	Dismissible bool
	CreatedAt   time.Time
}

// Option overrides a default of a new notification.
type Option func(*Notification)

// WithDuration sets the auto-dismiss delay. Zero or negative keeps the notification until removed.
func WithDuration(d time.Duration) Option {
	return func(n *Notification) {
		if d < 0 {
			d = 0
		}
		n.Duration = d
	}
}

// Persistent keeps the notification until it is removed explicitly.
func Persistent() Option {
	return WithDuration(0)
}

// WithDismissible controls whether the user may close the notification.
func WithDismissible(dismissible bool) Option {
	return func(n *Notification) {
		n.Dismissible = dismissible
	}
}

// New builds a notification with a fresh id. Defaults are applied first:
// DefaultDuration and dismissible. Options override them.
func New(typ Type, title, message string, opts ...Option) (Notification, error) {
	if !typ.Valid() {
		return Notification{}, fmt.Errorf("%w: unknown notification type %q", errs.ErrInvalidInput, typ)
	}

	n := Notification{
		ID:          uuid.NewUUID(),
		Type:        typ,
		Title:       title,
		Message:     message,
		Duration:    DefaultDuration,
		Dismissible: true,
		CreatedAt:   time.Now().UTC(),
	}
	for _, opt := range opts {
		opt(&n)
	}
	return n, nil
}

// IsPersistent reports whether the notification is never auto-dismissed.
func (n Notification) IsPersistent() bool {
	return n.Duration <= 0
}

type notificationJSON struct {
	ID          string    `json:"id"`
	Type        Type      `json:"type"`
	Title       string    `json:"title"`
	Message     string    `json:"message"`
	Duration    int64     `json:"duration"`
	Dismissible bool      `json:"dismissible"`
	CreatedAt   time.Time `json:"createdAt"`
}

// MarshalJSON renders the duration in milliseconds.
func (n Notification) MarshalJSON() ([]byte, error) {
	return json.Marshal(notificationJSON{
		ID:          n.ID.String(),
		Type:        n.Type,
		Title:       n.Title,
		Message:     n.Message,
		Duration:    n.Duration.Milliseconds(),
		Dismissible: n.Dismissible,
		CreatedAt:   n.CreatedAt,
	})
}

// UnmarshalJSON reads the duration in milliseconds.
func (n *Notification) UnmarshalJSON(data []byte) error {
	var raw notificationJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*n = Notification{
		ID:          uuid.UUID(raw.ID),
		Type:        raw.Type,
		Title:       raw.Title,
		Message:     raw.Message,
		Duration:    time.Duration(raw.Duration) * time.Millisecond,
		Dismissible: raw.Dismissible,
		CreatedAt:   raw.CreatedAt,
	}
	return nil
}
