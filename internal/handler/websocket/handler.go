// Package websocket provides the HTTP endpoint of the notification stream.
package websocket

import (
	"context"
	"log/slog"
	"net/http"
	"slices"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/flowctl/console/internal/domain/notification"
	"github.com/flowctl/console/internal/infrastructure/httpserver"
	ws "github.com/flowctl/console/internal/infrastructure/websocket"
	"github.com/flowctl/console/internal/middleware"
)

// Handler configuration constants.
const (
	defaultHandlerReadBufferSize  = 1024
	defaultHandlerWriteBufferSize = 1024
)

// TokenValidator defines the interface for validating bearer tokens.
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (*middleware.TokenClaims, error)
}

// NotificationLister supplies the list pushed on connect and on sync requests.
type NotificationLister interface {
	List(ctx context.Context, userID string) []notification.Notification
}

// Handler handles WebSocket HTTP requests.
type Handler struct {
	hub            *ws.Hub
	upgrader       websocket.Upgrader
	tokenValidator TokenValidator
	notifications  NotificationLister
	logger         *slog.Logger
	clientConfig   ws.ClientConfig
}

// HandlerConfig holds configuration for the WebSocket handler.
type HandlerConfig struct {
	ReadBufferSize  int
	WriteBufferSize int

	// AllowedOrigins restricts the Origin header. Empty allows every origin.
	AllowedOrigins []string

	Logger       *slog.Logger
	ClientConfig ws.ClientConfig
}

// DefaultHandlerConfig returns a default configuration.
func DefaultHandlerConfig() HandlerConfig {
	return HandlerConfig{
		ReadBufferSize:  defaultHandlerReadBufferSize,
		WriteBufferSize: defaultHandlerWriteBufferSize,
		Logger:          slog.Default(),
		ClientConfig:    ws.DefaultClientConfig(),
	}
}

// HandlerOption configures the Handler.
type HandlerOption func(*Handler)

// WithHandlerLogger sets the logger for the handler.
func WithHandlerLogger(logger *slog.Logger) HandlerOption {
	return func(h *Handler) {
		h.logger = logger
	}
}

// WithTokenValidator lets browsers authenticate with a token query parameter.
func WithTokenValidator(validator TokenValidator) HandlerOption {
	return func(h *Handler) {
		h.tokenValidator = validator
	}
}

// WithNotifications sends the user's notifications on connect and answers sync requests.
func WithNotifications(lister NotificationLister) HandlerOption {
	return func(h *Handler) {
		h.notifications = lister
	}
}

// WithHandlerConfig sets the handler configuration.
func WithHandlerConfig(config HandlerConfig) HandlerOption {
	return func(h *Handler) {
		if config.ReadBufferSize > 0 {
			h.upgrader.ReadBufferSize = config.ReadBufferSize
		}
		if config.WriteBufferSize > 0 {
			h.upgrader.WriteBufferSize = config.WriteBufferSize
		}
		if len(config.AllowedOrigins) > 0 {
			h.upgrader.CheckOrigin = originChecker(config.AllowedOrigins)
		}
		if config.Logger != nil {
			h.logger = config.Logger
		}
		h.clientConfig = config.ClientConfig
	}
}

// NewHandler creates a new WebSocket handler.
func NewHandler(hub *ws.Hub, opts ...HandlerOption) *Handler {
	h := &Handler{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  defaultHandlerReadBufferSize,
			WriteBufferSize: defaultHandlerWriteBufferSize,
			CheckOrigin: func(_ *http.Request) bool {
				return true
			},
		},
		logger:       slog.Default(),
		clientConfig: ws.DefaultClientConfig(),
	}

	for _, opt := range opts {
		opt(h)
	}

	return h
}

// RegisterRoutes registers GET /api/v1/ws. The route is public because
// browsers cannot set headers on a websocket handshake; the handler
// authenticates the token query parameter itself.
func (h *Handler) RegisterRoutes(r *httpserver.Router) {
	r.Public().GET("/ws", h.HandleWebSocket)
}

// HandleWebSocket upgrades an authenticated request and registers the client with the hub.
func (h *Handler) HandleWebSocket(c echo.Context) error {
	userID := h.getUserID(c)
	if userID == "" {
		h.logger.Warn("websocket connection rejected: authentication required",
			slog.String("remote_ip", c.RealIP()),
		)
		return httpserver.RespondErrorWithCode(c, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required")
	}

	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		return nil // Upgrade already sent an error response
	}

	opts := []ws.ClientOption{
		ws.WithClientConfig(h.clientConfig),
		ws.WithClientLogger(h.logger),
	}
	if h.notifications != nil {
		opts = append(opts, ws.WithSnapshot(h.snapshot(userID)))
	}
	client := ws.NewClient(h.hub, conn, userID, opts...)

	h.hub.Register(client)

	h.logger.Info("websocket connection established",
		slog.String("user_id", userID),
		slog.String("remote_ip", c.RealIP()),
	)

	go client.WritePump()
	go client.ReadPump()

	if h.notifications != nil {
		client.SendMessage(ws.OutboundMessage{
			Type: ws.MessageTypeList,
			Data: h.snapshot(userID)(),
		})
	}

	return nil
}

// snapshot lists the user's notifications outside the request context,
// which ends once the connection is upgraded.
func (h *Handler) snapshot(userID string) ws.SnapshotFunc {
	return func() any {
		items := h.notifications.List(context.Background(), userID)
		if items == nil {
			items = []notification.Notification{}
		}
		return items
	}
}

// getUserID returns the user set by the auth middleware or validates the token
// from the query parameter or Authorization header.
func (h *Handler) getUserID(c echo.Context) string {
	if userID := middleware.GetUserID(c); userID != "" {
		return userID
	}

	token := c.QueryParam("token")
	if token == "" {
		if after, ok := strings.CutPrefix(c.Request().Header.Get(echo.HeaderAuthorization), "Bearer "); ok {
			token = after
		}
	}

	if token == "" || h.tokenValidator == nil {
		return ""
	}

	claims, err := h.tokenValidator.ValidateToken(c.Request().Context(), token)
	if err != nil {
		h.logger.Debug("token validation failed",
			slog.String("error", err.Error()),
		)
		return ""
	}

	return claims.UserID
}

func originChecker(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		// non-browser clients send no Origin
		return origin == "" || slices.Contains(allowed, origin)
	}
}
