package middleware_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowctl/console/internal/application/pages"
	"github.com/flowctl/console/internal/middleware"
)

type stubResolver struct {
	layouts map[string]string
	err     error
}

func (s *stubResolver) Layout(_ context.Context, namespace string) (*pages.LayoutData, error) {
	if s.err != nil {
		return nil, s.err
	}
	id, ok := s.layouts[namespace]
	if !ok {
		return nil, &pages.PageError{
			Status:  http.StatusForbidden,
			Message: "Access denied. You do not have permission to access this namespace.",
		}
	}
	return &pages.LayoutData{Namespace: namespace, NamespaceID: id}, nil
}

func serveNamespace(t *testing.T, resolver middleware.NamespaceResolver, path string) (*httptest.ResponseRecorder, pages.LayoutData) {
	t.Helper()

	var layout pages.LayoutData
	e := echo.New()
	g := e.Group("/view/:namespace", middleware.Namespace(middleware.NamespaceConfig{Resolver: resolver}))
	g.GET("/flows", func(c echo.Context) error {
		layout = middleware.GetLayout(c)
		return c.NoContent(http.StatusOK)
	})

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec, layout
}

func TestNamespace(t *testing.T) {
	resolver := &stubResolver{layouts: map[string]string{"prod": "ns-1"}}

	tests := []struct {
		name       string
		resolver   middleware.NamespaceResolver
		path       string
		wantStatus int
		wantBody   []string
		wantLayout pages.LayoutData
	}{
		{
			name:       "known namespace",
			resolver:   resolver,
			path:       "/view/prod/flows",
			wantStatus: http.StatusOK,
			wantLayout: pages.LayoutData{Namespace: "prod", NamespaceID: "ns-1"},
		},
		{
			name:       "unknown namespace is forbidden",
			resolver:   resolver,
			path:       "/view/staging/flows",
			wantStatus: http.StatusForbidden,
			wantBody:   []string{`"FORBIDDEN"`, "Access denied. You do not have permission to access this namespace."},
		},
		{
			name: "upstream failure",
			resolver: &stubResolver{err: &pages.PageError{
				Status:  http.StatusInternalServerError,
				Message: "Could not retrieve the namespace",
			}},
			path:       "/view/prod/flows",
			wantStatus: http.StatusInternalServerError,
			wantBody:   []string{`"OPERATION_FAILED"`, "Could not retrieve the namespace"},
		},
		{
			name:       "plain error",
			resolver:   &stubResolver{err: errors.New("boom")},
			path:       "/view/prod/flows",
			wantStatus: http.StatusInternalServerError,
			wantBody:   []string{"Could not retrieve the namespace"},
		},
		{
			name:       "missing resolver",
			path:       "/view/prod/flows",
			wantStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, layout := serveNamespace(t, tt.resolver, tt.path)

			require.Equal(t, tt.wantStatus, rec.Code)
			for _, part := range tt.wantBody {
				assert.Contains(t, rec.Body.String(), part)
			}
			if tt.wantStatus == http.StatusOK {
				assert.Equal(t, tt.wantLayout, layout)
			} else {
				assert.Contains(t, rec.Body.String(), `"success":false`)
			}
		})
	}
}

func TestNamespaceGetters_Empty(t *testing.T) {
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())

	assert.Empty(t, middleware.GetNamespace(c))
	assert.Empty(t, middleware.GetNamespaceID(c))
}
