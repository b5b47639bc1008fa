package websocket

import (
	"log/slog"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
)

// Default client configuration constants.
const (
	defaultReadBufferSize  = 1024
	defaultWriteBufferSize = 1024
	defaultPingInterval    = 30 * time.Second
	defaultPongWait        = 60 * time.Second
	defaultWriteWait       = 10 * time.Second
	defaultMaxMessageSize  = 4096
	defaultSendBufferSize  = 64
)

// Client message types.
const (
	MessageTypePing  = "ping"
	MessageTypePong  = "pong"
	MessageTypeSync  = "notifications.sync"
	MessageTypeList  = "notifications.list"
	MessageTypeError = "error"
)

// ClientConfig holds configuration for websocket clients.
type ClientConfig struct {
	ReadBufferSize  int
	WriteBufferSize int

	// PingInterval must be shorter than PongWait.
	PingInterval time.Duration
	PongWait     time.Duration
	WriteWait    time.Duration

	// MaxMessageSize limits inbound frames. Browsers only send control messages.
	MaxMessageSize int64
	SendBufferSize int
}

// DefaultClientConfig returns sensible default configuration.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		ReadBufferSize:  defaultReadBufferSize,
		WriteBufferSize: defaultWriteBufferSize,
		PingInterval:    defaultPingInterval,
		PongWait:        defaultPongWait,
		WriteWait:       defaultWriteWait,
		MaxMessageSize:  defaultMaxMessageSize,
		SendBufferSize:  defaultSendBufferSize,
	}
}

// ClientMessage is a message from the browser.
type ClientMessage struct {
	Type string `json:"type"`
}

// OutboundMessage is a message to the browser.
type OutboundMessage struct {
	Type    string `json:"type"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
}

// SnapshotFunc returns the current state pushed in reply to a sync request.
type SnapshotFunc func() any

// Client is a single websocket connection of an authenticated user.
type Client struct {
	hub      *Hub
	conn     *websocket.Conn
	send     chan []byte
	userID   string
	config   ClientConfig
	logger   *slog.Logger
	snapshot SnapshotFunc

	closed   bool
	closedMu sync.RWMutex
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithClientConfig sets the client configuration.
func WithClientConfig(config ClientConfig) ClientOption {
	return func(c *Client) {
		c.config = config
	}
}

// WithClientLogger sets the logger for the client.
func WithClientLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithSnapshot answers sync requests with the result of fn.
func WithSnapshot(fn SnapshotFunc) ClientOption {
	return func(c *Client) {
		c.snapshot = fn
	}
}

// NewClient creates a new websocket client.
func NewClient(hub *Hub, conn *websocket.Conn, userID string, opts ...ClientOption) *Client {
	c := &Client{
		hub:    hub,
		conn:   conn,
		userID: userID,
		config: DefaultClientConfig(),
		logger: slog.Default(),
	}

	for _, opt := range opts {
		opt(c)
	}

	bufferSize := c.config.SendBufferSize
	if bufferSize <= 0 {
		bufferSize = defaultSendBufferSize
	}
	c.send = make(chan []byte, bufferSize)

	return c
}

// UserID returns the user ID associated with this client.
func (c *Client) UserID() string {
	return c.userID
}

// IsClosed returns whether the client connection has been closed.
func (c *Client) IsClosed() bool {
	c.closedMu.RLock()
	defer c.closedMu.RUnlock()
	return c.closed
}

// ReadPump reads messages from the websocket connection until it fails,
// then unregisters the client. It should be run as a goroutine.
func (c *Client) ReadPump() {
	defer c.hub.Unregister(c)

	c.conn.SetReadLimit(c.config.MaxMessageSize)

	if err := c.conn.SetReadDeadline(time.Now().Add(c.config.PongWait)); err != nil {
		c.logger.Error("failed to set read deadline", slog.String("error", err.Error()))
		return
	}

	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.config.PongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Warn("websocket read error",
					slog.String("user_id", c.userID),
					slog.String("error", err.Error()),
				)
			}
			return
		}

		c.handleClientMessage(message)
	}
}

// WritePump writes queued messages and keepalive pings to the connection.
// It should be run as a goroutine.
func (c *Client) WritePump() {
	ticker := time.NewTicker(c.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteWait)); err != nil {
				c.logger.Error("failed to set write deadline", slog.String("error", err.Error()))
				return
			}

			if !ok {
				// hub closed the channel
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.logger.Warn("websocket write error",
					slog.String("user_id", c.userID),
					slog.String("error", err.Error()),
				)
				return
			}

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteWait)); err != nil {
				c.logger.Error("failed to set write deadline", slog.String("error", err.Error()))
				return
			}

			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) handleClientMessage(message []byte) {
	var msg ClientMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		c.logger.Warn("invalid client message",
			slog.String("user_id", c.userID),
			slog.String("error", err.Error()),
		)
		c.SendMessage(OutboundMessage{Type: MessageTypeError, Message: "invalid message format"})
		return
	}

	switch msg.Type {
	case MessageTypePing:
		c.SendMessage(OutboundMessage{Type: MessageTypePong})

	case MessageTypeSync:
		c.sendSnapshot()

	default:
		c.logger.Debug("unknown message type",
			slog.String("user_id", c.userID),
			slog.String("type", msg.Type),
		)
		c.SendMessage(OutboundMessage{Type: MessageTypeError, Message: "unknown message type: " + msg.Type})
	}
}

func (c *Client) sendSnapshot() {
	if c.snapshot == nil {
		c.SendMessage(OutboundMessage{Type: MessageTypeError, Message: "sync is not available"})
		return
	}
	c.SendMessage(OutboundMessage{Type: MessageTypeList, Data: c.snapshot()})
}

// SendMessage encodes msg and queues it.
func (c *Client) SendMessage(msg OutboundMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		c.logger.Error("failed to encode websocket message",
			slog.String("type", msg.Type),
			slog.String("error", err.Error()),
		)
		return
	}
	c.Send(data)
}

// Send queues a raw message for the client.
func (c *Client) Send(message []byte) {
	if !c.trySend(message) {
		c.logger.Warn("client send buffer full",
			slog.String("user_id", c.userID),
		)
	}
}

// trySend queues message without blocking. A closed client silently drops it.
func (c *Client) trySend(message []byte) bool {
	c.closedMu.RLock()
	defer c.closedMu.RUnlock()

	if c.closed {
		return true
	}

	select {
	case c.send <- message:
		return true
	default:
		return false
	}
}

// Close closes the client connection. It is safe to call more than once.
func (c *Client) Close() {
	c.closedMu.Lock()
	defer c.closedMu.Unlock()

	if c.closed {
		return
	}
	c.closed = true

	close(c.send)
	if c.conn != nil {
		_ = c.conn.Close()
	}

	c.logger.Debug("client connection closed",
		slog.String("user_id", c.userID),
	)
}
