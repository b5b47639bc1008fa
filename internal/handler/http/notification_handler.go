package httphandler

import (
	"context"
	"math"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/flowctl/console/internal/domain/notification"
	"github.com/flowctl/console/internal/domain/uuid"
	"github.com/flowctl/console/internal/infrastructure/httpserver"
	"github.com/flowctl/console/internal/middleware"
)

// Validation limits for created notifications.
const (
	maxNotificationTitleLength   = 200
	maxNotificationMessageLength = 2000
	// Largest millisecond count that still fits in a time.Duration.
	maxNotificationDurationMillis = math.MaxInt64 / int64(time.Millisecond)
)

// NotificationRegistry holds the per-user notification stores.
// *notifapp.Registry implements it.
type NotificationRegistry interface {
	Add(
		ctx context.Context,
		userID string,
		typ notification.Type,
		title, message string,
		opts ...notification.Option,
	) (uuid.UUID, error)
	Remove(ctx context.Context, userID string, id uuid.UUID) bool
	Clear(ctx context.Context, userID string)
	List(ctx context.Context, userID string) []notification.Notification
}

// CreateNotificationRequest is the body of POST /notifications.
// Duration is in milliseconds; 0 keeps the notification until it is removed.
type CreateNotificationRequest struct {
	Type        string `json:"type"`
	Title       string `json:"title"`
	Message     string `json:"message"`
	Duration    *int64 `json:"duration,omitempty"`
	Dismissible *bool  `json:"dismissible,omitempty"`
}

// CreateNotificationResponse carries the id of a created notification.
type CreateNotificationResponse struct {
	ID string `json:"id"`
}

// NotificationListResponse lists the active notifications of a user.
type NotificationListResponse struct {
	Notifications []notification.Notification `json:"notifications"`
}

// NotificationHandler handles notification-related HTTP requests.
type NotificationHandler struct {
	registry NotificationRegistry
}

// NewNotificationHandler creates a new NotificationHandler.
func NewNotificationHandler(registry NotificationRegistry) *NotificationHandler {
	return &NotificationHandler{
		registry: registry,
	}
}

// RegisterRoutes registers notification routes with the router.
func (h *NotificationHandler) RegisterRoutes(r *httpserver.Router) {
	r.Auth().GET("/notifications", h.List)
	r.Auth().POST("/notifications", h.Create)
	r.Auth().DELETE("/notifications", h.Clear)
	r.Auth().DELETE("/notifications/:id", h.Delete)
}

// List handles GET /api/v1/notifications.
func (h *NotificationHandler) List(c echo.Context) error {
	userID := middleware.GetUserID(c)
	if userID == "" {
		return respondUnauthorized(c)
	}

	items := h.registry.List(c.Request().Context(), userID)
	if items == nil {
		items = []notification.Notification{}
	}
	return httpserver.RespondOK(c, NotificationListResponse{Notifications: items})
}

// Create handles POST /api/v1/notifications.
func (h *NotificationHandler) Create(c echo.Context) error {
	userID := middleware.GetUserID(c)
	if userID == "" {
		return respondUnauthorized(c)
	}

	var req CreateNotificationRequest
	if err := c.Bind(&req); err != nil {
		return httpserver.RespondErrorWithCode(
			c,
			http.StatusBadRequest,
			"INVALID_REQUEST",
			"Invalid request body",
		)
	}

	if msg := validateCreateNotification(req); msg != "" {
		return httpserver.RespondErrorWithCode(c, http.StatusBadRequest, "VALIDATION_ERROR", msg)
	}

	var opts []notification.Option
	if req.Duration != nil {
		opts = append(opts, notification.WithDuration(time.Duration(*req.Duration)*time.Millisecond))
	}
	if req.Dismissible != nil {
		opts = append(opts, notification.WithDismissible(*req.Dismissible))
	}

	id, err := h.registry.Add(
		c.Request().Context(),
		userID,
		notification.Type(req.Type),
		req.Title,
		req.Message,
		opts...,
	)
	if err != nil {
		return httpserver.RespondError(c, err)
	}

	return httpserver.RespondCreated(c, CreateNotificationResponse{ID: id.String()})
}

// Delete handles DELETE /api/v1/notifications/:id. Unknown ids are not an error.
func (h *NotificationHandler) Delete(c echo.Context) error {
	userID := middleware.GetUserID(c)
	if userID == "" {
		return respondUnauthorized(c)
	}

	id, err := uuid.ParseUUID(c.Param("id"))
	if err != nil {
		return httpserver.RespondErrorWithCode(
			c, http.StatusBadRequest, "INVALID_NOTIFICATION_ID", "invalid notification ID format")
	}

	h.registry.Remove(c.Request().Context(), userID, id)
	return httpserver.RespondNoContent(c)
}

// Clear handles DELETE /api/v1/notifications.
func (h *NotificationHandler) Clear(c echo.Context) error {
	userID := middleware.GetUserID(c)
	if userID == "" {
		return respondUnauthorized(c)
	}

	h.registry.Clear(c.Request().Context(), userID)
	return httpserver.RespondNoContent(c)
}

func validateCreateNotification(req CreateNotificationRequest) string {
	switch {
	case !notification.Type(req.Type).Valid():
		return "Notification type must be one of success, error, warning, info"
	case req.Title == "":
		return "Notification title is required"
	case len(req.Title) > maxNotificationTitleLength:
		return "Notification title must be at most 200 characters"
	case len(req.Message) > maxNotificationMessageLength:
		return "Notification message must be at most 2000 characters"
	case req.Duration != nil && *req.Duration < 0:
		return "Notification duration must not be negative"
	case req.Duration != nil && *req.Duration > maxNotificationDurationMillis:
		return "Notification duration is too large"
	default:
		return ""
	}
}

func respondUnauthorized(c echo.Context) error {
	return httpserver.RespondErrorWithCode(c, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required")
}
