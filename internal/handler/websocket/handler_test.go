package websocket_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowctl/console/internal/domain/notification"
	wshandler "github.com/flowctl/console/internal/handler/websocket"
	"github.com/flowctl/console/internal/infrastructure/httpserver"
	ws "github.com/flowctl/console/internal/infrastructure/websocket"
	"github.com/flowctl/console/internal/middleware"
)

type mockTokenValidator struct {
	claims *middleware.TokenClaims
	err    error
}

func (m *mockTokenValidator) ValidateToken(_ context.Context, _ string) (*middleware.TokenClaims, error) {
	return m.claims, m.err
}

type staticLister struct {
	items map[string][]notification.Notification
}

func (l staticLister) List(_ context.Context, userID string) []notification.Notification {
	return l.items[userID]
}

func runHub(t *testing.T) *ws.Hub {
	t.Helper()
	hub := ws.NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)
	time.Sleep(10 * time.Millisecond)
	return hub
}

func serve(t *testing.T, handler *wshandler.Handler) string {
	t.Helper()
	e := echo.New()
	e.GET("/ws", handler.HandleWebSocket)
	server := httptest.NewServer(e)
	t.Cleanup(server.Close)
	return "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
}

func validUser(userID string) *mockTokenValidator {
	return &mockTokenValidator{claims: &middleware.TokenClaims{UserID: userID, Username: userID}}
}

func TestDefaultHandlerConfig(t *testing.T) {
	config := wshandler.DefaultHandlerConfig()

	assert.Equal(t, 1024, config.ReadBufferSize)
	assert.Equal(t, 1024, config.WriteBufferSize)
	assert.Empty(t, config.AllowedOrigins)
	assert.NotNil(t, config.Logger)
}

func TestHandler_HandleWebSocket(t *testing.T) {
	t.Run("rejects unauthenticated request", func(t *testing.T) {
		handler := wshandler.NewHandler(runHub(t))

		e := echo.New()
		rec := httptest.NewRecorder()
		c := e.NewContext(httptest.NewRequest(http.MethodGet, "/ws", nil), rec)

		require.NoError(t, handler.HandleWebSocket(c))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("rejects invalid token", func(t *testing.T) {
		handler := wshandler.NewHandler(runHub(t),
			wshandler.WithTokenValidator(&mockTokenValidator{err: middleware.ErrInvalidToken}),
		)

		e := echo.New()
		rec := httptest.NewRecorder()
		c := e.NewContext(httptest.NewRequest(http.MethodGet, "/ws?token=invalid", nil), rec)

		require.NoError(t, handler.HandleWebSocket(c))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("accepts user set by auth middleware", func(t *testing.T) {
		hub := runHub(t)
		handler := wshandler.NewHandler(hub)

		e := echo.New()
		e.GET("/ws", func(c echo.Context) error {
			c.Set(string(middleware.ContextKeyUserID), "alice")
			return handler.HandleWebSocket(c)
		})
		server := httptest.NewServer(e)
		defer server.Close()

		conn, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http")+"/ws", nil)
		require.NoError(t, err)
		defer conn.Close()
		assert.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)

		require.Eventually(t, func() bool { return hub.UserConnectionCount("alice") == 1 },
			time.Second, 10*time.Millisecond)
	})

	t.Run("accepts token in Authorization header", func(t *testing.T) {
		handler := wshandler.NewHandler(runHub(t), wshandler.WithTokenValidator(validUser("alice")))

		headers := http.Header{}
		headers.Set("Authorization", "Bearer valid-token")
		conn, resp, err := websocket.DefaultDialer.Dial(serve(t, handler), headers)
		require.NoError(t, err)
		defer conn.Close()
		assert.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)
	})

	t.Run("rejects disallowed origin", func(t *testing.T) {
		config := wshandler.DefaultHandlerConfig()
		config.AllowedOrigins = []string{"https://console.example.com"}
		handler := wshandler.NewHandler(runHub(t),
			wshandler.WithTokenValidator(validUser("alice")),
			wshandler.WithHandlerConfig(config),
		)
		url := serve(t, handler) + "?token=valid"

		headers := http.Header{}
		headers.Set("Origin", "https://evil.example.com")
		_, resp, err := websocket.DefaultDialer.Dial(url, headers)
		require.Error(t, err)
		require.NotNil(t, resp)
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)

		headers.Set("Origin", "https://console.example.com")
		conn, _, err := websocket.DefaultDialer.Dial(url, headers)
		require.NoError(t, err)
		conn.Close()
	})
}

func TestHandler_RegisterRoutes(t *testing.T) {
	handler := wshandler.NewHandler(ws.NewHub())

	e := echo.New()
	router := httpserver.NewRouter(e, httpserver.DefaultRouterConfig())
	handler.RegisterRoutes(router)

	found := false
	for _, r := range e.Routes() {
		if r.Path == "/api/v1/ws" && r.Method == http.MethodGet {
			found = true
			break
		}
	}
	assert.True(t, found, "expected /api/v1/ws route to be registered")
}

func TestHandler_Integration(t *testing.T) {
	hub := runHub(t)

	persistent, err := notification.New(notification.TypeError, "Deploy failed", "step 3", notification.Persistent())
	require.NoError(t, err)
	lister := staticLister{items: map[string][]notification.Notification{"alice": {persistent}}}

	handler := wshandler.NewHandler(hub,
		wshandler.WithTokenValidator(validUser("alice")),
		wshandler.WithNotifications(lister),
	)

	conn, _, err := websocket.DefaultDialer.Dial(serve(t, handler)+"?token=valid-token", nil)
	require.NoError(t, err)
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))

	type listMessage struct {
		Type string `json:"type"`
		Data []struct {
			ID    string `json:"id"`
			Title string `json:"title"`
		} `json:"data"`
	}

	var initial listMessage
	require.NoError(t, conn.ReadJSON(&initial))
	assert.Equal(t, ws.MessageTypeList, initial.Type)
	require.Len(t, initial.Data, 1)
	assert.Equal(t, persistent.ID.String(), initial.Data[0].ID)

	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	require.NoError(t, conn.WriteJSON(map[string]string{"type": ws.MessageTypeSync}))
	var synced listMessage
	require.NoError(t, conn.ReadJSON(&synced))
	assert.Equal(t, ws.MessageTypeList, synced.Type)
	assert.Len(t, synced.Data, 1)

	require.NoError(t, conn.WriteJSON(map[string]string{"type": ws.MessageTypePing}))
	var pong map[string]any
	require.NoError(t, conn.ReadJSON(&pong))
	assert.Equal(t, ws.MessageTypePong, pong["type"])

	conn.Close()
	require.Eventually(t, func() bool { return hub.ClientCount() == 0 }, time.Second, 10*time.Millisecond)
}
