package main

import (
	"time"

	"github.com/labstack/echo/v4"

	"github.com/flowctl/console/internal/infrastructure/httpserver"
	"github.com/flowctl/console/internal/middleware"
)

const rateLimitKeyPrefix = "console:ratelimit:"

// SetupRoutes configures the middleware chains and registers every route on e.
func SetupRoutes(e *echo.Echo, c *Container) *httpserver.Router {
	authConfig := middleware.DefaultAuthConfig()
	authConfig.Logger = c.Logger
	authConfig.TokenValidator = c.TokenValidator
	authConfig.GroupResolver = c.GroupResolver
	// Static dev tokens mean nothing to the flowctl API.
	authConfig.ForwardToken = !c.Config.App.IsMockMode()

	loggingConfig := middleware.DefaultLoggingConfig()
	loggingConfig.Logger = c.Logger

	recoveryConfig := middleware.DefaultRecoveryConfig()
	recoveryConfig.Logger = c.Logger

	routerConfig := httpserver.RouterConfig{
		Logger:         c.Logger,
		AuthMiddleware: middleware.Auth(authConfig),
		NamespaceMiddleware: middleware.Namespace(middleware.NamespaceConfig{
			Logger:   c.Logger,
			Resolver: c.PageLoader,
		}),
		RateLimitMiddleware: rateLimitMiddleware(c),
		CORSConfig:          middleware.CORSWithOrigins(c.Config.Server.Origins()...),
		LoggingConfig:       loggingConfig,
		RecoveryConfig:      recoveryConfig,
		APIPrefix:           "/api/v1",
	}

	router := httpserver.NewRouter(e, routerConfig)

	httpserver.NewHealthEndpoints(c).Register(e)
	router.RegisterMetricsEndpoint(c.MetricsRegistry)

	router.RegisterAll(
		c.PageHandler,
		c.NotificationHandler,
		c.WSHandler,
	)

	if c.Config.IsDevelopment() {
		router.PrintRoutes()
	}

	return router
}

// rateLimitMiddleware returns nil when rate limiting is disabled.
func rateLimitMiddleware(c *Container) echo.MiddlewareFunc {
	if !c.Config.RateLimit.Enabled {
		return nil
	}

	config := middleware.DefaultRateLimitConfig()
	config.Logger = c.Logger
	config.Limit = c.Config.RateLimit.RequestsPerMinute
	config.Window = time.Minute
	config.KeyFunc = middleware.RateLimitKeyByUser
	if c.Config.RateLimit.SharedStore() && c.Redis != nil {
		config.Store = middleware.NewRedisRateLimitStore(c.Redis, rateLimitKeyPrefix)
	} else {
		config.Store = middleware.NewMemoryRateLimitStore()
	}

	return middleware.RateLimit(config)
}
