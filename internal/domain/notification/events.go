package notification

import (
	"time"

	"github.com/flowctl/console/internal/domain/uuid"
)

// EventType names a change of a user's notification list.
type EventType string

// Event types
const (
	EventTypeAdded   EventType = "notification.added"
	EventTypeRemoved EventType = "notification.removed"
	EventTypeCleared EventType = "notification.cleared"
)

// Event describes a change that is fanned out to the user's live sessions.
type Event struct {
	Type           EventType     `json:"type"`
	UserID         string        `json:"user_id"`
	NotificationID uuid.UUID     `json:"notification_id,omitempty"`
	Notification   *Notification `json:"notification,omitempty"`
	OccurredAt     time.Time     `json:"occurred_at"`
}

// NewAddedEvent creates an event for a notification that was just added.
func NewAddedEvent(userID string, n Notification) Event {
	return Event{
		Type:           EventTypeAdded,
		UserID:         userID,
		NotificationID: n.ID,
		Notification:   &n,
		OccurredAt:     time.Now().UTC(),
	}
}

// NewRemovedEvent creates an event for a removed or expired notification.
func NewRemovedEvent(userID string, id uuid.UUID) Event {
	return Event{
		Type:           EventTypeRemoved,
		UserID:         userID,
		NotificationID: id,
		OccurredAt:     time.Now().UTC(),
	}
}

// NewClearedEvent creates an event for a cleared list.
func NewClearedEvent(userID string) Event {
	return Event{
		Type:       EventTypeCleared,
		UserID:     userID,
		OccurredAt: time.Now().UTC(),
	}
}
