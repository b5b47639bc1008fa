// Package pages loads the data behind each console page. Every loader fetches
// from the flowctl API, optionally gates on a permission check, and reports
// failures as *PageError values carrying the HTTP status to respond with.
package pages

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/flowctl/console/internal/domain/flowctl"
	"github.com/flowctl/console/internal/domain/permission"
	"github.com/flowctl/console/internal/infrastructure/tracing"
)

// Page sizes used by the listings.
const (
	DefaultPageSize = 10
	FlowsPerPage    = 12
)

// NamespaceLister lists the namespaces visible to the caller.
type NamespaceLister interface {
	List(ctx context.Context) (*flowctl.NamespaceList, error)
}

// MemberLister lists namespace members.
type MemberLister interface {
	List(ctx context.Context, namespace string) (*flowctl.MemberList, error)
}

// FlowReader reads flow definitions.
type FlowReader interface {
	List(ctx context.Context, namespace string, params flowctl.ListParams) (*flowctl.FlowList, error)
	GetInputs(ctx context.Context, namespace, flowID string) (*flowctl.FlowInputs, error)
	GetMeta(ctx context.Context, namespace, flowID string) (*flowctl.FlowMeta, error)
}

// ExecutionReader reads execution history.
type ExecutionReader interface {
	List(ctx context.Context, namespace string, params flowctl.ListParams) (*flowctl.ExecutionList, error)
	GetByID(ctx context.Context, namespace, execID string) (*flowctl.Execution, error)
}

// ApprovalLister lists approval requests.
type ApprovalLister interface {
	List(ctx context.Context, namespace string, params flowctl.ListParams) (*flowctl.ApprovalList, error)
}

// API groups the flowctl resources used by the loaders.
type API struct {
	Namespaces NamespaceLister
	Members    MemberLister
	Flows      FlowReader
	Executions ExecutionReader
	Approvals  ApprovalLister
}

// PermissionChecker is implemented by service.PermissionChecker.
type PermissionChecker interface {
	Check(
		ctx context.Context,
		user permission.User,
		resourceType, namespaceID string,
		actions ...permission.Action,
	) permission.ResourcePermissions
}

// LoadRecorder receives the outcome of each page load.
type LoadRecorder interface {
	RecordPageLoad(page string, status int)
}

// Config configures a Loader.
type Config struct {
	API     API
	Checker PermissionChecker

	// PageSize is the count_per_page of history and approvals. Defaults to DefaultPageSize.
	PageSize int
	// FlowsPerPage is the count_per_page of the flow listing. Defaults to FlowsPerPage.
	FlowsPerPage int

	Recorder LoadRecorder
	Logger   *slog.Logger
}

// Request carries the route and query parameters of a page load, together with
// the namespace resolved by Layout.
type Request struct {
	Namespace   string
	NamespaceID string
	User        permission.User

	Page   int
	Search string
	Filter string
	Status string

	FlowID string
	LogID  string
}

// currentPage returns Page, or 1 when it is missing or invalid.
func (r Request) currentPage() int {
	if r.Page < 1 {
		return 1
	}
	return r.Page
}

// Loader loads page data.
type Loader struct {
	api          API
	checker      PermissionChecker
	pageSize     int
	flowsPerPage int
	recorder     LoadRecorder
	logger       *slog.Logger
}

// NewLoader creates a Loader.
func NewLoader(cfg Config) *Loader {
	l := &Loader{
		api:          cfg.API,
		checker:      cfg.Checker,
		pageSize:     cfg.PageSize,
		flowsPerPage: cfg.FlowsPerPage,
		recorder:     cfg.Recorder,
		logger:       cfg.Logger,
	}
	if l.pageSize <= 0 {
		l.pageSize = DefaultPageSize
	}
	if l.flowsPerPage <= 0 {
		l.flowsPerPage = FlowsPerPage
	}
	if l.logger == nil {
		l.logger = slog.Default()
	}
	return l
}

// load runs fn inside a page span and records the outcome.
func load[T any](ctx context.Context, l *Loader, page, namespace string, fn func(ctx context.Context) (T, error)) (T, error) {
	ctx, span := tracing.StartSpan(ctx, "page."+page, trace.SpanKindInternal,
		attribute.String("page.name", page),
		attribute.String("page.namespace", namespace),
	)
	start := time.Now()

	result, err := fn(ctx)

	status := http.StatusOK
	if err != nil {
		status = http.StatusInternalServerError
		if pe, ok := AsPageError(err); ok {
			status = pe.Status
		}
	}
	tracing.SetHTTPStatus(span, status)
	tracing.EndSpan(span, err)

	if l.recorder != nil {
		l.recorder.RecordPageLoad(page, status)
	}
	l.logger.DebugContext(ctx, "page loaded",
		slog.String("page", page),
		slog.String("namespace", namespace),
		slog.Int("status", status),
		slog.Duration("duration", time.Since(start)),
	)
	return result, err
}

// upstreamFailure logs err and returns a 500 page error with message.
func (l *Loader) upstreamFailure(ctx context.Context, message, namespace string, err error) *PageError {
	l.logUpstreamFailure(ctx, message, namespace, err)
	return failed(message)
}

func (l *Loader) logUpstreamFailure(ctx context.Context, message, namespace string, err error) {
	l.logger.ErrorContext(ctx, message,
		slog.String("namespace", namespace),
		slog.String("error", err.Error()),
	)
}
