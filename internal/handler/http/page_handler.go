// Package httphandler exposes the console pages and notifications over HTTP.
package httphandler

import (
	"context"
	"net/http"
	"slices"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/flowctl/console/internal/application/pages"
	"github.com/flowctl/console/internal/domain/permission"
	"github.com/flowctl/console/internal/infrastructure/httpserver"
	"github.com/flowctl/console/internal/middleware"
)

// PageLoader loads page data. *pages.Loader implements it.
type PageLoader interface {
	History(ctx context.Context, req pages.Request) (*pages.HistoryData, error)
	Approvals(ctx context.Context, req pages.Request) (*pages.ApprovalsData, error)
	Flows(ctx context.Context, req pages.Request) (*pages.FlowsData, error)
	FlowsGated(ctx context.Context, req pages.Request) (*pages.FlowsData, error)
	FlowDetail(ctx context.Context, req pages.Request) (*pages.FlowDetailData, error)
	Results(ctx context.Context, req pages.Request) (*pages.ResultsData, error)
	Members(ctx context.Context, req pages.Request) (*pages.MembersData, error)
	MembersGated(ctx context.Context, req pages.Request) (*pages.MembersData, error)
}

// PermissionChecker answers the permissions endpoint.
type PermissionChecker interface {
	Check(
		ctx context.Context,
		user permission.User,
		resourceType, namespaceID string,
		actions ...permission.Action,
	) permission.ResourcePermissions
}

var knownResources = []string{
	permission.ResourceFlow,
	permission.ResourceExecution,
	permission.ResourceApproval,
	permission.ResourceMember,
	permission.ResourceNamespace,
}

// PageHandler serves the data of namespace pages. The namespace middleware
// has already resolved the layout when a handler runs.
type PageHandler struct {
	loader       PageLoader
	checker      PermissionChecker
	gateListings bool
}

// PageHandlerOption configures a PageHandler.
type PageHandlerOption func(*PageHandler)

// WithGatedListings makes the flows and members listings check view permission first.
func WithGatedListings(gated bool) PageHandlerOption {
	return func(h *PageHandler) {
		h.gateListings = gated
	}
}

// NewPageHandler creates a new PageHandler.
func NewPageHandler(loader PageLoader, checker PermissionChecker, opts ...PageHandlerOption) *PageHandler {
	h := &PageHandler{
		loader:  loader,
		checker: checker,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// RegisterRoutes registers page routes with the router.
func (h *PageHandler) RegisterRoutes(r *httpserver.Router) {
	ns := r.Namespace()
	ns.GET("", h.Layout)
	ns.GET("/history", h.History)
	ns.GET("/approvals", h.Approvals)
	ns.GET("/flows", h.Flows)
	ns.GET("/flows/:flowId", h.FlowDetail)
	ns.GET("/results/:flowId/:logId", h.Results)
	ns.GET("/members", h.Members)
	ns.GET("/permissions/:resource", h.Permissions)
}

// Layout handles GET /api/v1/view/:namespace.
func (h *PageHandler) Layout(c echo.Context) error {
	return httpserver.RespondOK(c, middleware.GetLayout(c))
}

// History handles GET /api/v1/view/:namespace/history.
func (h *PageHandler) History(c echo.Context) error {
	return respondPage(c, h.loader.History)
}

// Approvals handles GET /api/v1/view/:namespace/approvals.
func (h *PageHandler) Approvals(c echo.Context) error {
	return respondPage(c, h.loader.Approvals)
}

// Flows handles GET /api/v1/view/:namespace/flows.
func (h *PageHandler) Flows(c echo.Context) error {
	if h.gateListings {
		return respondPage(c, h.loader.FlowsGated)
	}
	return respondPage(c, h.loader.Flows)
}

// FlowDetail handles GET /api/v1/view/:namespace/flows/:flowId.
func (h *PageHandler) FlowDetail(c echo.Context) error {
	return respondPage(c, h.loader.FlowDetail)
}

// Results handles GET /api/v1/view/:namespace/results/:flowId/:logId.
func (h *PageHandler) Results(c echo.Context) error {
	return respondPage(c, h.loader.Results)
}

// Members handles GET /api/v1/view/:namespace/members.
func (h *PageHandler) Members(c echo.Context) error {
	if h.gateListings {
		return respondPage(c, h.loader.MembersGated)
	}
	return respondPage(c, h.loader.Members)
}

// Permissions handles GET /api/v1/view/:namespace/permissions/:resource.
// The optional actions query parameter is a comma separated action list.
func (h *PageHandler) Permissions(c echo.Context) error {
	resource := c.Param("resource")
	if !slices.Contains(knownResources, resource) {
		return httpserver.RespondErrorWithCode(c, http.StatusBadRequest, "INVALID_RESOURCE", "unknown resource type")
	}

	actions, err := permission.ParseActions(c.QueryParam("actions"))
	if err != nil {
		return httpserver.RespondErrorWithCode(c, http.StatusBadRequest, "INVALID_ACTION", err.Error())
	}

	perms := h.checker.Check(
		c.Request().Context(),
		middleware.GetUser(c),
		resource,
		middleware.GetNamespaceID(c),
		actions...,
	)
	return httpserver.RespondOK(c, perms)
}

func respondPage[T any](c echo.Context, load func(context.Context, pages.Request) (T, error)) error {
	data, err := load(c.Request().Context(), pageRequest(c))
	if err != nil {
		return httpserver.RespondError(c, err)
	}
	return httpserver.RespondOK(c, data)
}

// pageRequest collects the route, query and parent data of a page load.
func pageRequest(c echo.Context) pages.Request {
	// invalid numbers become 0 and the loaders fall back to page 1
	page, _ := strconv.Atoi(c.QueryParam("page"))

	layout := middleware.GetLayout(c)
	return pages.Request{
		Namespace:   layout.Namespace,
		NamespaceID: layout.NamespaceID,
		User:        middleware.GetUser(c),
		Page:        page,
		Search:      c.QueryParam("search"),
		Filter:      c.QueryParam("filter"),
		Status:      c.QueryParam("status"),
		FlowID:      c.Param("flowId"),
		LogID:       c.Param("logId"),
	}
}
