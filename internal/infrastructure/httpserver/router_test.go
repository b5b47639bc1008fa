package httpserver_test

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowctl/console/internal/infrastructure/httpserver"
	"github.com/flowctl/console/internal/middleware"
)

func TestDefaultRouterConfig(t *testing.T) {
	config := httpserver.DefaultRouterConfig()

	assert.NotNil(t, config.Logger)
	assert.Equal(t, "/api/v1", config.APIPrefix)
	assert.NotNil(t, config.CORSConfig.AllowOrigins)
	assert.NotNil(t, config.LoggingConfig.SkipPaths)
	assert.NotNil(t, config.RecoveryConfig.Logger)
}

func TestNewRouter(t *testing.T) {
	e := echo.New()
	config := httpserver.DefaultRouterConfig()
	config.Logger = nil
	config.APIPrefix = ""

	router := httpserver.NewRouter(e, config)

	assert.NotNil(t, router)
	assert.Equal(t, e, router.Echo())
	assert.NotNil(t, router.Public())
	assert.NotNil(t, router.Auth())
	assert.NotNil(t, router.Namespace())
}

func TestRouter_PublicRoutes(t *testing.T) {
	e := echo.New()
	router := httpserver.NewRouter(e, httpserver.DefaultRouterConfig())

	router.Public().GET("/test", func(c echo.Context) error {
		return c.String(http.StatusOK, "public")
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/test", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "public", rec.Body.String())
}

func TestRouter_AuthRoutes_WithMiddleware(t *testing.T) {
	e := echo.New()
	config := httpserver.DefaultRouterConfig()

	var calls []string
	config.AuthMiddleware = func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			calls = append(calls, "auth")
			if c.Request().Header.Get("Authorization") == "" {
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			}
			return next(c)
		}
	}
	config.RateLimitMiddleware = func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			calls = append(calls, "rate_limit")
			return next(c)
		}
	}

	router := httpserver.NewRouter(e, config)
	router.Auth().GET("/notifications", func(c echo.Context) error {
		return c.String(http.StatusOK, "notifications")
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/notifications", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, []string{"auth"}, calls)

	calls = nil
	req = httptest.NewRequest(http.MethodGet, "/api/v1/notifications", nil)
	req.Header.Set("Authorization", "Bearer token")
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"auth", "rate_limit"}, calls)
}

func TestRouter_AuthRoutes_NoMiddleware(t *testing.T) {
	e := echo.New()
	config := httpserver.DefaultRouterConfig()
	config.AuthMiddleware = nil

	router := httpserver.NewRouter(e, config)
	router.Auth().GET("/notifications", func(c echo.Context) error {
		return c.String(http.StatusOK, "notifications")
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/notifications", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRouter_NamespaceRoutes(t *testing.T) {
	e := echo.New()
	config := httpserver.DefaultRouterConfig()
	config.NamespaceMiddleware = func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if c.Param("namespace") == "secret" {
				return c.NoContent(http.StatusForbidden)
			}
			c.Set("resolved", "id-"+c.Param("namespace"))
			return next(c)
		}
	}

	router := httpserver.NewRouter(e, config)
	router.Namespace().GET("/history", func(c echo.Context) error {
		return c.String(http.StatusOK, c.Get("resolved").(string))
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/view/default/history", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "id-default", rec.Body.String())

	req = httptest.NewRequest(http.MethodGet, "/api/v1/view/secret/history", nil)
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

type stubHealthChecker struct {
	ready      bool
	components []httpserver.ComponentStatus
}

func (s stubHealthChecker) IsReady(context.Context) bool { return s.ready }

func (s stubHealthChecker) GetHealthStatus(context.Context) []httpserver.ComponentStatus {
	return s.components
}

func TestRouter_RegisterHealthEndpoints(t *testing.T) {
	tests := []struct {
		name          string
		checker       httpserver.HealthChecker
		path          string
		expectedCode  int
		expectedState string
	}{
		{"liveness", stubHealthChecker{}, "/health", http.StatusOK, httpserver.StatusHealthy},
		{"ready", stubHealthChecker{ready: true}, "/ready", http.StatusOK, httpserver.StatusReady},
		{"not ready", stubHealthChecker{}, "/ready", http.StatusServiceUnavailable, httpserver.StatusNotReady},
		{"nil checker is ready", nil, "/ready", http.StatusOK, httpserver.StatusReady},
		{
			name: "details degraded",
			checker: stubHealthChecker{components: []httpserver.ComponentStatus{
				{Name: "flowctl_api", Status: httpserver.StatusHealthy},
				{Name: "redis", Status: httpserver.StatusDegraded},
			}},
			path:          "/health/details",
			expectedCode:  http.StatusOK,
			expectedState: httpserver.StatusDegraded,
		},
		{
			name: "details unhealthy wins",
			checker: stubHealthChecker{components: []httpserver.ComponentStatus{
				{Name: "redis", Status: httpserver.StatusDegraded},
				{Name: "mongodb", Status: httpserver.StatusUnhealthy},
			}},
			path:          "/health/details",
			expectedCode:  http.StatusServiceUnavailable,
			expectedState: httpserver.StatusUnhealthy,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			router := httpserver.NewRouter(e, httpserver.DefaultRouterConfig())
			router.RegisterHealthEndpoints(tt.checker)

			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, req)

			assert.Equal(t, tt.expectedCode, rec.Code)
			assert.Contains(t, rec.Body.String(), `"status":"`+tt.expectedState+`"`)
		})
	}
}

func TestRouter_RecoveryMiddleware(t *testing.T) {
	e := echo.New()
	config := httpserver.DefaultRouterConfig()
	config.RecoveryConfig = middleware.RecoveryConfig{
		Logger: slog.Default(),
	}

	router := httpserver.NewRouter(e, config)
	router.Public().GET("/panic", func(_ echo.Context) error {
		panic("boom")
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/panic", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

type registrarFunc func(r *httpserver.Router)

func (f registrarFunc) RegisterRoutes(r *httpserver.Router) { f(r) }

func TestRouter_RegisterAll(t *testing.T) {
	e := echo.New()
	router := httpserver.NewRouter(e, httpserver.DefaultRouterConfig())

	var registered []string
	router.RegisterAll(
		registrarFunc(func(*httpserver.Router) { registered = append(registered, "pages") }),
		registrarFunc(func(*httpserver.Router) { registered = append(registered, "notifications") }),
	)

	assert.Equal(t, []string{"pages", "notifications"}, registered)
}

func TestRouter_RegisterMetricsEndpoint(t *testing.T) {
	e := echo.New()
	router := httpserver.NewRouter(e, httpserver.DefaultRouterConfig())

	registry := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "console_test_total", Help: "test"})
	require.NoError(t, registry.Register(counter))
	counter.Inc()

	router.RegisterMetricsEndpoint(registry)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "console_test_total 1")
}
