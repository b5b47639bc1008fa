package notification_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowctl/console/internal/domain/errs"
	"github.com/flowctl/console/internal/domain/notification"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name            string
		typ             notification.Type
		opts            []notification.Option
		wantDuration    time.Duration
		wantDismissible bool
	}{
		{"success defaults", notification.TypeSuccess, nil, notification.DefaultDuration, true},
		{"info defaults", notification.TypeInfo, nil, notification.DefaultDuration, true},
		{"warning defaults", notification.TypeWarning, nil, notification.DefaultDuration, true},
		{"error defaults", notification.TypeError, nil, notification.DefaultDuration, true},
		{
			"error with explicit duration",
			notification.TypeError,
			[]notification.Option{notification.WithDuration(time.Second)},
			time.Second,
			true,
		},
		{
			"persistent info not dismissible",
			notification.TypeInfo,
			[]notification.Option{notification.Persistent(), notification.WithDismissible(false)},
			0,
			false,
		},
		{
			"negative duration clamps to persistent",
			notification.TypeInfo,
			[]notification.Option{notification.WithDuration(-time.Second)},
			0,
			true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, err := notification.New(tt.typ, "Title", "Message", tt.opts...)

			require.NoError(t, err)
			assert.False(t, n.ID.IsZero())
			assert.Equal(t, tt.typ, n.Type)
			assert.Equal(t, "Title", n.Title)
			assert.Equal(t, "Message", n.Message)
			assert.Equal(t, tt.wantDuration, n.Duration)
			assert.Equal(t, tt.wantDismissible, n.Dismissible)
			assert.Equal(t, tt.wantDuration == 0, n.IsPersistent())
		})
	}
}

func TestNew_InvalidType(t *testing.T) {
	_, err := notification.New("alert", "Title", "Message")
	require.ErrorIs(t, err, errs.ErrInvalidInput)
}

func TestNotification_JSON(t *testing.T) {
	n, err := notification.New(notification.TypeWarning, "Disk", "Almost full",
		notification.WithDuration(1500*time.Millisecond))
	require.NoError(t, err)

	data, err := json.Marshal(n)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, n.ID.String(), raw["id"])
	assert.Equal(t, "warning", raw["type"])
	assert.InDelta(t, 1500, raw["duration"], 0)
	assert.Equal(t, true, raw["dismissible"])

	var decoded notification.Notification
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, n.ID, decoded.ID)
	assert.Equal(t, n.Duration, decoded.Duration)
	assert.True(t, n.CreatedAt.Equal(decoded.CreatedAt))
}

func TestEvents(t *testing.T) {
	n, err := notification.New(notification.TypeInfo, "t", "m")
	require.NoError(t, err)

	added := notification.NewAddedEvent("u1", n)
	assert.Equal(t, notification.EventTypeAdded, added.Type)
	assert.Equal(t, n.ID, added.NotificationID)
	require.NotNil(t, added.Notification)

	removed := notification.NewRemovedEvent("u1", n.ID)
	assert.Equal(t, notification.EventTypeRemoved, removed.Type)
	assert.Nil(t, removed.Notification)

	cleared := notification.NewClearedEvent("u1")
	assert.Equal(t, notification.EventTypeCleared, cleared.Type)
	assert.True(t, cleared.NotificationID.IsZero())
}
