package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/flowctl/console/internal/application/pages"
)

// Namespace context keys.
const (
	// ContextKeyNamespace is the context key for the namespace name.
	ContextKeyNamespace contextKey = "namespace"

	// ContextKeyNamespaceID is the context key for the resolved namespace ID.
	ContextKeyNamespaceID contextKey = "namespace_id"
)

// DefaultNamespaceParam is the path parameter holding the namespace name.
const DefaultNamespaceParam = "namespace"

var errNamespaceRequired = errors.New("namespace is required")

// NamespaceResolver resolves a namespace name to its layout data.
// *pages.Loader satisfies it.
type NamespaceResolver interface {
	Layout(ctx context.Context, namespace string) (*pages.LayoutData, error)
}

// NamespaceConfig holds configuration for the namespace middleware.
type NamespaceConfig struct {
	Logger   *slog.Logger
	Resolver NamespaceResolver

	// Param is the path parameter containing the namespace name. Default is "namespace".
	Param string
}

// Namespace resolves the namespace of every /view/:namespace route before the
// page handler runs. Handlers read the result with GetNamespace and GetNamespaceID.
func Namespace(config NamespaceConfig) echo.MiddlewareFunc {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.Param == "" {
		config.Param = DefaultNamespaceParam
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			name := c.Param(config.Param)
			if name == "" {
				return respondNamespaceError(c, errNamespaceRequired)
			}

			if config.Resolver == nil {
				config.Logger.Error("namespace resolver not configured")
				return respondNamespaceError(c, errors.New("namespace resolver not configured"))
			}

			layout, err := config.Resolver.Layout(c.Request().Context(), name)
			if err != nil {
				config.Logger.Debug("namespace resolution failed",
					slog.String("namespace", name),
					slog.String("user_id", GetUserID(c)),
					slog.String("error", err.Error()),
				)
				return respondNamespaceError(c, err)
			}

			c.Set(string(ContextKeyNamespace), layout.Namespace)
			c.Set(string(ContextKeyNamespaceID), layout.NamespaceID)

			return next(c)
		}
	}
}

func respondNamespaceError(c echo.Context, err error) error {
	status := http.StatusInternalServerError
	code := pages.CodeOperationFailed
	message := "Could not retrieve the namespace"

	if pe, ok := pages.AsPageError(err); ok {
		status, code, message = pe.HTTPStatus(), pe.HTTPCode(), pe.HTTPMessage()
	} else if errors.Is(err, errNamespaceRequired) {
		status, code, message = http.StatusBadRequest, "NAMESPACE_REQUIRED", "Namespace is required"
	}

	return c.JSON(status, map[string]any{
		"success": false,
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
	})
}

// GetNamespace extracts the namespace name from the echo context.
func GetNamespace(c echo.Context) string {
	name, _ := c.Get(string(ContextKeyNamespace)).(string)
	return name
}

// GetNamespaceID extracts the namespace ID from the echo context.
func GetNamespaceID(c echo.Context) string {
	id, _ := c.Get(string(ContextKeyNamespaceID)).(string)
	return id
}

// GetLayout returns the parent page data of a namespace route.
func GetLayout(c echo.Context) pages.LayoutData {
	return pages.LayoutData{Namespace: GetNamespace(c), NamespaceID: GetNamespaceID(c)}
}
