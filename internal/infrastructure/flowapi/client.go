// Package flowapi is a resource-oriented client for the flowctl HTTP API.
package flowapi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/flowctl/console/internal/domain/flowctl"
	"github.com/flowctl/console/internal/infrastructure/tracing"
)

const (
	defaultTimeout  = 15 * time.Second
	maxErrorBodyLen = 4096
	apiPrefix       = "/api/v1"
)

// RequestObserver receives the outcome of every API call.
type RequestObserver interface {
	ObserveUpstreamRequest(resource string, status int, d time.Duration)
}

// Config contains configuration for Client.
type Config struct {
	// BaseURL is the flowctl server root, e.g. http://localhost:7000.
	BaseURL string

	// Token is a service token sent when the request context carries no caller token.
	Token string

	// Timeout bounds a single request when HTTPClient is not set.
	Timeout time.Duration

	// HTTPClient is an optional custom HTTP client.
	HTTPClient *http.Client

	Logger   *slog.Logger
	Observer RequestObserver
}

// Client talks to the flowctl API. Resources are exposed as services:
// client.Namespaces.List, client.Namespaces.Members.List, client.Flows.GetMeta, ...
type Client struct {
	baseURL    *url.URL
	token      string
	httpClient *http.Client
	logger     *slog.Logger
	observer   RequestObserver

	Namespaces  *NamespacesService
	Flows       *FlowsService
	Executions  *ExecutionsService
	Approvals   *ApprovalsService
	Permissions *PermissionsService
}

// NewClient creates a flowctl API client.
func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("flowapi: base url is required")
	}
	base, err := url.Parse(strings.TrimSuffix(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("flowapi: invalid base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("flowapi: base url must be absolute, got %q", cfg.BaseURL)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	c := &Client{
		baseURL:    base,
		token:      cfg.Token,
		httpClient: httpClient,
		logger:     logger,
		observer:   cfg.Observer,
	}
	c.Namespaces = &NamespacesService{client: c, Members: &MembersService{client: c}}
	c.Flows = &FlowsService{client: c}
	c.Executions = &ExecutionsService{client: c}
	c.Approvals = &ApprovalsService{client: c}
	c.Permissions = &PermissionsService{client: c}
	return c, nil
}

type tokenKey struct{}

// WithBearerToken returns a context whose requests are sent with the caller's token.
func WithBearerToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenKey{}, token)
}

// BearerToken returns the caller token stored by WithBearerToken.
func BearerToken(ctx context.Context) string {
	token, _ := ctx.Value(tokenKey{}).(string)
	return token
}

type requestIDKey struct{}

// WithRequestID tags upstream requests made with ctx with the console request ID.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestID returns the ID stored by WithRequestID.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// APIError is a non-2xx answer of the flowctl API.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("flowctl api: %d %s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("flowctl api: %d: %s", e.StatusCode, e.Message)
}

// errorBody is the error envelope returned by flowctl handlers.
type errorBody struct {
	Code    string `json:"code"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

func newAPIError(resp *http.Response) *APIError {
	apiErr := &APIError{StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}

	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyLen))
	var body errorBody
	if len(data) > 0 && json.Unmarshal(data, &body) == nil {
		apiErr.Code = body.Code
		switch {
		case body.Message != "":
			apiErr.Message = body.Message
		case body.Error != "":
			apiErr.Message = body.Error
		}
	}
	return apiErr
}

// get performs a GET request and decodes the JSON answer into out.
func (c *Client) get(ctx context.Context, resource, path string, query url.Values, out any) error {
	rawURL := c.baseURL.String() + apiPrefix + path
	if q := query.Encode(); q != "" {
		rawURL += "?" + q
	}

	ctx, span := tracing.StartSpan(ctx, "flowapi."+resource, trace.SpanKindClient,
		attribute.String("http.method", http.MethodGet),
		attribute.String("http.route", apiPrefix+path),
	)

	start := time.Now()
	status, err := c.do(ctx, rawURL, out)
	c.observe(resource, status, time.Since(start))

	if status > 0 {
		tracing.SetHTTPStatus(span, status)
	}
	tracing.EndSpan(span, err)

	if err != nil {
		c.logger.DebugContext(ctx, "flowctl api request failed",
			slog.String("resource", resource),
			slog.String("path", apiPrefix+path),
			slog.Int("status", status),
			slog.String("error", err.Error()),
		)
	}
	return err
}

func (c *Client) do(ctx context.Context, rawURL string, out any) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if token := c.tokenFor(ctx); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if id := RequestID(ctx); id != "" {
		req.Header.Set("X-Request-ID", id)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("flowctl api request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp.StatusCode, newAPIError(resp)
	}

	if out == nil {
		return resp.StatusCode, nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return resp.StatusCode, fmt.Errorf("failed to decode response: %w", err)
	}
	return resp.StatusCode, nil
}

func (c *Client) tokenFor(ctx context.Context) string {
	if token := BearerToken(ctx); token != "" {
		return token
	}
	return c.token
}

func (c *Client) observe(resource string, status int, d time.Duration) {
	if c.observer != nil {
		c.observer.ObserveUpstreamRequest(resource, status, d)
	}
}

func listQuery(p flowctl.ListParams) url.Values {
	q := url.Values{}
	if p.Page > 0 {
		q.Set("page", strconv.Itoa(p.Page))
	}
	if p.CountPerPage > 0 {
		q.Set("count_per_page", strconv.Itoa(p.CountPerPage))
	}
	if p.Filter != "" {
		q.Set("filter", p.Filter)
	}
	if p.Status != "" {
		q.Set("status", p.Status)
	}
	return q
}

func nsPath(namespace string, parts ...string) string {
	var b strings.Builder
	b.WriteString("/")
	b.WriteString(url.PathEscape(namespace))
	for _, p := range parts {
		b.WriteString("/")
		b.WriteString(p)
	}
	return b.String()
}
