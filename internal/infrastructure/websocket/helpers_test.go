package websocket_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	ws "github.com/flowctl/console/internal/infrastructure/websocket"
)

// createWSConnPair returns the server and browser ends of a real websocket.
func createWSConnPair(t *testing.T) (*websocket.Conn, *websocket.Conn) {
	t.Helper()

	upgrader := websocket.Upgrader{
		CheckOrigin: func(_ *http.Request) bool { return true },
	}
	serverChan := make(chan *websocket.Conn, 1)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		serverChan <- conn
	}))
	t.Cleanup(server.Close)

	clientConn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = clientConn.Close() })

	select {
	case serverConn := <-serverChan:
		t.Cleanup(func() { _ = serverConn.Close() })
		return serverConn, clientConn
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for server connection")
		return nil, nil
	}
}

// connectClient registers a pumped client of userID with hub and returns
// the browser end of its connection.
func connectClient(t *testing.T, hub *ws.Hub, userID string, opts ...ws.ClientOption) (*ws.Client, *websocket.Conn) {
	t.Helper()

	serverConn, browser := createWSConnPair(t)
	client := ws.NewClient(hub, serverConn, userID, opts...)
	hub.Register(client)

	go client.WritePump()
	go client.ReadPump()

	return client, browser
}

func runHub(t *testing.T, opts ...ws.HubOption) *ws.Hub {
	t.Helper()
	hub := ws.NewHub(opts...)
	go hub.Run(t.Context())
	require.Eventually(t, hub.IsRunning, time.Second, 5*time.Millisecond)
	return hub
}

func readMessage(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg map[string]any
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func assertNoMessage(t *testing.T, conn *websocket.Conn) {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(50*time.Millisecond)))
	_, data, err := conn.ReadMessage()
	require.Error(t, err, "unexpected message: %s", data)
}

func writeJSON(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, data))
}

type fakeGauge struct {
	open atomic.Int64
}

func (g *fakeGauge) ConnectionOpened() { g.open.Add(1) }
func (g *fakeGauge) ConnectionClosed() { g.open.Add(-1) }
