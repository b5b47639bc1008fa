package httpserver

import (
	"log/slog"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/flowctl/console/internal/middleware"
)

// NamespacePath is the route prefix of namespace-scoped pages.
const NamespacePath = "/view/:namespace"

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	// Logger is the structured logger for router events.
	Logger *slog.Logger

	// AuthMiddleware authenticates every route under the API prefix except the public ones.
	AuthMiddleware echo.MiddlewareFunc

	// NamespaceMiddleware resolves :namespace for page routes.
	NamespaceMiddleware echo.MiddlewareFunc

	// RateLimitMiddleware is applied after authentication so limits are per user.
	RateLimitMiddleware echo.MiddlewareFunc

	CORSConfig     middleware.CORSConfig
	LoggingConfig  middleware.LoggingConfig
	RecoveryConfig middleware.RecoveryConfig

	// APIPrefix is the prefix for all API routes.
	// Default is "/api/v1".
	APIPrefix string
}

// DefaultRouterConfig returns a RouterConfig with sensible defaults.
func DefaultRouterConfig() RouterConfig {
	return RouterConfig{
		Logger:         slog.Default(),
		CORSConfig:     middleware.DefaultCORSConfig(),
		LoggingConfig:  middleware.DefaultLoggingConfig(),
		RecoveryConfig: middleware.DefaultRecoveryConfig(),
		APIPrefix:      "/api/v1",
	}
}

// Router manages HTTP route groups and middleware chains.
type Router struct {
	echo   *echo.Echo
	config RouterConfig
	logger *slog.Logger

	public    *echo.Group
	auth      *echo.Group
	namespace *echo.Group
}

// NewRouter creates a new router with the given configuration.
func NewRouter(e *echo.Echo, config RouterConfig) *Router {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.APIPrefix == "" {
		config.APIPrefix = "/api/v1"
	}

	r := &Router{
		echo:   e,
		config: config,
		logger: config.Logger,
	}

	r.setupGlobalMiddleware()
	r.setupRouteGroups()

	return r
}

func (r *Router) setupGlobalMiddleware() {
	// Recovery must be first to catch all panics
	r.echo.Use(middleware.RecoveryWithConfig(r.config.RecoveryConfig))
	r.echo.Use(middleware.CORS(r.config.CORSConfig))
	r.echo.Use(middleware.Logging(r.config.LoggingConfig))
}

func (r *Router) setupRouteGroups() {
	r.public = r.echo.Group(r.config.APIPrefix)

	var authChain []echo.MiddlewareFunc
	if r.config.AuthMiddleware != nil {
		authChain = append(authChain, r.config.AuthMiddleware)
	} else {
		r.logger.Warn("no auth middleware configured, authenticated routes are public")
	}
	if r.config.RateLimitMiddleware != nil {
		authChain = append(authChain, r.config.RateLimitMiddleware)
	}
	r.auth = r.public.Group("", authChain...)

	if r.config.NamespaceMiddleware != nil {
		r.namespace = r.auth.Group(NamespacePath, r.config.NamespaceMiddleware)
	} else {
		r.namespace = r.auth.Group(NamespacePath)
		r.logger.Warn("no namespace middleware configured, page routes skip namespace resolution")
	}
}

// Echo returns the underlying Echo instance.
func (r *Router) Echo() *echo.Echo {
	return r.echo
}

// Public returns the public route group (no authentication required).
func (r *Router) Public() *echo.Group {
	return r.public
}

// Auth returns the authenticated route group.
// Use for: notifications, the websocket endpoint.
func (r *Router) Auth() *echo.Group {
	return r.auth
}

// Namespace returns the /view/:namespace group. Handlers in it can read the
// resolved namespace through middleware.GetNamespace and GetNamespaceID.
func (r *Router) Namespace() *echo.Group {
	return r.namespace
}

// RouteRegistrar defines the interface for registering routes.
type RouteRegistrar interface {
	RegisterRoutes(r *Router)
}

// RegisterAll registers all route registrars with the router.
func (r *Router) RegisterAll(registrars ...RouteRegistrar) {
	for _, registrar := range registrars {
		registrar.RegisterRoutes(r)
	}
}

// PrintRoutes logs all registered routes (for debugging).
func (r *Router) PrintRoutes() {
	for _, route := range r.echo.Routes() {
		r.logger.Debug("registered route",
			slog.String("method", route.Method),
			slog.String("path", route.Path),
		)
	}
}

// RegisterMetricsEndpoint registers the Prometheus metrics endpoint.
// A nil gatherer serves the default registry.
func (r *Router) RegisterMetricsEndpoint(gatherer prometheus.Gatherer) {
	handler := promhttp.Handler()
	if gatherer != nil {
		handler = promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
	}
	r.echo.GET("/metrics", echo.WrapHandler(handler))
}
