// Package websocket pushes notification changes to connected browsers.
package websocket

import (
	"context"
	"log/slog"
	"sync"
)

const defaultBroadcastBufferSize = 256

// ConnectionGauge tracks open websocket connections.
type ConnectionGauge interface {
	ConnectionOpened()
	ConnectionClosed()
}

// Hub manages all websocket connections, grouped by user.
type Hub struct {
	clients map[*Client]bool

	// one user can have several tabs open
	userClients map[string]map[*Client]bool

	register   chan *Client
	unregister chan *Client
	broadcast  chan *broadcastMessage

	mu     sync.RWMutex
	logger *slog.Logger
	gauge  ConnectionGauge

	done      chan struct{}
	stopOnce  sync.Once
	running   bool
	runningMu sync.RWMutex
}

// broadcastMessage targets one user, or everyone when userID is empty.
type broadcastMessage struct {
	userID  string
	message []byte
}

// HubOption configures the Hub.
type HubOption func(*Hub)

// WithHubLogger sets the logger for the hub.
func WithHubLogger(logger *slog.Logger) HubOption {
	return func(h *Hub) {
		h.logger = logger
	}
}

// WithConnectionGauge reports connection counts to g.
func WithConnectionGauge(g ConnectionGauge) HubOption {
	return func(h *Hub) {
		h.gauge = g
	}
}

// NewHub creates a new Hub with the given options.
func NewHub(opts ...HubOption) *Hub {
	h := &Hub{
		clients:     make(map[*Client]bool),
		userClients: make(map[string]map[*Client]bool),
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		broadcast:   make(chan *broadcastMessage, defaultBroadcastBufferSize),
		logger:      slog.Default(),
		done:        make(chan struct{}),
	}

	for _, opt := range opts {
		opt(h)
	}

	return h
}

// Run starts the hub's main event loop.
// It should be run as a goroutine.
func (h *Hub) Run(ctx context.Context) {
	h.runningMu.Lock()
	if h.running {
		h.runningMu.Unlock()
		return
	}
	h.running = true
	h.runningMu.Unlock()

	h.logger.InfoContext(ctx, "websocket hub started")

	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return

		case <-h.done:
			h.shutdown()
			return

		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case msg := <-h.broadcast:
			h.handleBroadcast(msg)
		}
	}
}

// Stop signals the hub to stop. It is safe to call more than once.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.done) })
}

func (h *Hub) shutdown() {
	h.Stop()

	h.runningMu.Lock()
	h.running = false
	h.runningMu.Unlock()

	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		client.Close()
		h.connectionClosed()
	}

	h.clients = make(map[*Client]bool)
	h.userClients = make(map[string]map[*Client]bool)

	h.logger.Info("websocket hub stopped")
}

// Register registers a new client with the hub. A stopped hub closes the client instead.
func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.done:
		client.Close()
	}
}

// Unregister unregisters a client from the hub.
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.clients[client] = true

	if client.userID != "" {
		if h.userClients[client.userID] == nil {
			h.userClients[client.userID] = make(map[*Client]bool)
		}
		h.userClients[client.userID][client] = true
	}

	if h.gauge != nil {
		h.gauge.ConnectionOpened()
	}

	h.logger.Debug("client registered",
		slog.String("user_id", client.userID),
		slog.Int("total_clients", len(h.clients)),
	)
}

func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client]; !ok {
		return
	}

	if userClients, ok := h.userClients[client.userID]; ok {
		delete(userClients, client)
		if len(userClients) == 0 {
			delete(h.userClients, client.userID)
		}
	}

	delete(h.clients, client)
	client.Close()
	h.connectionClosed()

	h.logger.Debug("client unregistered",
		slog.String("user_id", client.userID),
		slog.Int("total_clients", len(h.clients)),
	)
}

func (h *Hub) connectionClosed() {
	if h.gauge != nil {
		h.gauge.ConnectionClosed()
	}
}

// SendToUser sends a message to all connections of a specific user.
func (h *Hub) SendToUser(userID string, message []byte) {
	if userID == "" {
		return
	}
	h.enqueue(&broadcastMessage{userID: userID, message: message})
}

// Broadcast sends a message to every connected client.
func (h *Hub) Broadcast(message []byte) {
	h.enqueue(&broadcastMessage{message: message})
}

func (h *Hub) enqueue(msg *broadcastMessage) {
	select {
	case h.broadcast <- msg:
	case <-h.done:
	}
}

func (h *Hub) handleBroadcast(msg *broadcastMessage) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	targets := h.clients
	if msg.userID != "" {
		targets = h.userClients[msg.userID]
	}

	for client := range targets {
		if !client.trySend(msg.message) {
			h.logger.Warn("client send buffer full, dropping message",
				slog.String("user_id", client.userID),
			)
		}
	}
}

// ClientCount returns the total number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// UserCount returns the number of users with at least one connection.
func (h *Hub) UserCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.userClients)
}

// UserConnectionCount returns the number of connections for a specific user.
func (h *Hub) UserConnectionCount(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.userClients[userID])
}

// IsRunning returns whether the hub is currently running.
func (h *Hub) IsRunning() bool {
	h.runningMu.RLock()
	defer h.runningMu.RUnlock()
	return h.running
}
