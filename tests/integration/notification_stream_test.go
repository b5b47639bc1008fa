//go:build integration

package integration_test

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	notifapp "github.com/flowctl/console/internal/application/notification"
	"github.com/flowctl/console/internal/domain/notification"
	wshandler "github.com/flowctl/console/internal/handler/websocket"
	"github.com/flowctl/console/internal/infrastructure/eventbus"
	mongodbinfra "github.com/flowctl/console/internal/infrastructure/mongodb"
	"github.com/flowctl/console/internal/infrastructure/repository/mongodb"
	ws "github.com/flowctl/console/internal/infrastructure/websocket"
	"github.com/flowctl/console/internal/middleware"
	"github.com/flowctl/console/tests/testutil"
)

// instance is one console process: registry, bus, hub and websocket endpoint.
type instance struct {
	registry *notifapp.Registry
	url      string
}

func startInstance(
	t *testing.T,
	ctx context.Context,
	client *redis.Client,
	prefix string,
	repo notification.Repository,
) *instance {
	t.Helper()

	hub := ws.NewHub()
	go hub.Run(ctx)

	bus := eventbus.NewRedisEventBus(client, eventbus.WithChannelPrefix(prefix))
	require.NoError(t, ws.NewBroadcaster(hub, bus).Start(ctx))
	go func() { _ = bus.Start(ctx) }()
	t.Cleanup(func() { _ = bus.Shutdown() })

	registry := notifapp.NewRegistry(notifapp.RegistryConfig{Repository: repo, Publisher: bus})
	t.Cleanup(registry.Close)

	handler := wshandler.NewHandler(hub,
		wshandler.WithTokenValidator(middleware.NewStaticTokenValidator()),
		wshandler.WithNotifications(registry),
	)
	e := echo.New()
	e.GET("/ws", handler.HandleWebSocket)
	srv := httptest.NewServer(e)
	t.Cleanup(srv.Close)

	// subscription confirmation is asynchronous
	require.Eventually(t, bus.IsRunning, 2*time.Second, 10*time.Millisecond)
	time.Sleep(100 * time.Millisecond)

	return &instance{
		registry: registry,
		url:      "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws",
	}
}

type message struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func dial(t *testing.T, url, user string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url+"?token=dev-token-"+user, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var msg message
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestNotificationStream_CrossInstanceFanOut(t *testing.T) {
	testutil.SkipIfShort(t)

	client, prefix := testutil.SetupTestRedisWithPrefix(t)
	ctx := testutil.NewTestContext(t)

	producer := startInstance(t, ctx, client, prefix, nil)
	consumer := startInstance(t, ctx, client, prefix, nil)

	conn := dial(t, consumer.url, "alice")
	initial := readMessage(t, conn)
	require.Equal(t, ws.MessageTypeList, initial.Type)

	id, err := producer.registry.Add(ctx, "alice", notification.TypeSuccess, "Deployed", "flow finished")
	require.NoError(t, err)

	added := readMessage(t, conn)
	require.Equal(t, string(notification.EventTypeAdded), added.Type)

	var evt notification.Event
	require.NoError(t, json.Unmarshal(added.Data, &evt))
	assert.Equal(t, "alice", evt.UserID)
	assert.Equal(t, id, evt.NotificationID)
	require.NotNil(t, evt.Notification)
	assert.Equal(t, "Deployed", evt.Notification.Title)
	assert.Equal(t, notification.DefaultDuration, evt.Notification.Duration)

	producer.registry.Clear(ctx, "alice")

	cleared := readMessage(t, conn)
	assert.Equal(t, string(notification.EventTypeCleared), cleared.Type)
}

func TestNotificationStream_OtherUsersAreNotNotified(t *testing.T) {
	testutil.SkipIfShort(t)

	client, prefix := testutil.SetupTestRedisWithPrefix(t)
	ctx := testutil.NewTestContext(t)

	node := startInstance(t, ctx, client, prefix, nil)

	bob := dial(t, node.url, "bob")
	readMessage(t, bob)

	_, err := node.registry.Add(ctx, "alice", notification.TypeInfo, "For alice", "")
	require.NoError(t, err)
	_, err = node.registry.Add(ctx, "bob", notification.TypeInfo, "For bob", "")
	require.NoError(t, err)

	msg := readMessage(t, bob)
	var evt notification.Event
	require.NoError(t, json.Unmarshal(msg.Data, &evt))
	assert.Equal(t, "bob", evt.UserID)
	assert.Equal(t, "For bob", evt.Notification.Title)
}

func TestNotificationPersistence_SurvivesRestart(t *testing.T) {
	testutil.SkipIfShort(t)

	db := testutil.SetupTestMongoDB(t)
	ctx := testutil.NewTestContext(t)
	require.NoError(t, mongodbinfra.EnsureIndexes(ctx, db))
	repo := mongodb.NewMongoNotificationRepository(db.Collection(mongodbinfra.CollectionNotifications))

	first := notifapp.NewRegistry(notifapp.RegistryConfig{Repository: repo})
	persistentID, err := first.Add(ctx, "alice", notification.TypeError, "Run failed", "exit status 1",
		notification.Persistent())
	require.NoError(t, err)
	_, err = first.Add(ctx, "alice", notification.TypeInfo, "Saved", "")
	require.NoError(t, err)
	require.Len(t, first.List(ctx, "alice"), 2)
	first.Close()

	// Only the notification without a duration is restored.
	second := notifapp.NewRegistry(notifapp.RegistryConfig{Repository: repo})
	defer second.Close()

	restored := second.List(ctx, "alice")
	require.Len(t, restored, 1)
	assert.Equal(t, persistentID, restored[0].ID)
	assert.Equal(t, "Run failed", restored[0].Title)
	assert.True(t, restored[0].IsPersistent())
	assert.Empty(t, second.List(ctx, "bob"))

	require.True(t, second.Remove(ctx, "alice", persistentID))

	third := notifapp.NewRegistry(notifapp.RegistryConfig{Repository: repo})
	defer third.Close()
	assert.Empty(t, third.List(ctx, "alice"))
}
