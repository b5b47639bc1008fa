package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/flowctl/console/internal/domain/permission"
	"github.com/flowctl/console/internal/infrastructure/tracing"
)

// ErrMissingUser is returned when a check is requested for a user without an ID.
var ErrMissingUser = errors.New("permission check requires a user id")

// Decision results reported to the recorder.
const (
	DecisionAllow = "allow"
	DecisionDeny  = "deny"
	DecisionError = "error"
)

// DecisionRecorder receives per-action outcomes of permission checks.
// Объявлен на стороне потребителя, реализуется metrics.ConsoleMetrics.
type DecisionRecorder interface {
	RecordPermissionDecision(resource, action, result string)
}

// PermissionChecker aggregates authorizer decisions for a user and the user's groups.
type PermissionChecker struct {
	factory  permission.AuthorizerFactory
	logger   *slog.Logger
	recorder DecisionRecorder
}

// PermissionCheckerOption configures a PermissionChecker.
type PermissionCheckerOption func(*PermissionChecker)

// WithCheckerLogger sets the logger used to report failed checks.
func WithCheckerLogger(logger *slog.Logger) PermissionCheckerOption {
	return func(c *PermissionChecker) {
		c.logger = logger
	}
}

// WithDecisionRecorder sets the decision recorder.
func WithDecisionRecorder(r DecisionRecorder) PermissionCheckerOption {
	return func(c *PermissionChecker) {
		c.recorder = r
	}
}

// NewPermissionChecker creates a checker that obtains a fresh Authorizer per check.
func NewPermissionChecker(factory permission.AuthorizerFactory, opts ...PermissionCheckerOption) *PermissionChecker {
	c := &PermissionChecker{
		factory: factory,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Check returns the permissions user holds on resourceType in namespaceID.
//
// The user subject is queried first, then every group subject; a flag is set
// when any of them grants the corresponding action. With no actions all four
// are checked. Any authorizer failure yields a result with every flag false;
// the failure is logged and never returned.
func (c *PermissionChecker) Check(
	ctx context.Context,
	user permission.User,
	resourceType, namespaceID string,
	actions ...permission.Action,
) permission.ResourcePermissions {
	if len(actions) == 0 {
		actions = permission.AllActions()
	}

	ctx, span := tracing.StartSpan(ctx, "permission.check", trace.SpanKindInternal,
		attribute.String("permission.resource", resourceType),
		attribute.String("permission.namespace_id", namespaceID),
		attribute.Int("permission.groups", len(user.Groups)),
	)

	perms, err := c.evaluate(ctx, user, resourceType, namespaceID, actions)
	tracing.EndSpan(span, err)

	if err != nil {
		c.logger.WarnContext(ctx, "Unable to Check Permissions",
			slog.String("user_id", user.ID),
			slog.String("resource", resourceType),
			slog.String("namespace_id", namespaceID),
			slog.String("error", err.Error()),
		)
		c.record(resourceType, actions, nil)
		return permission.ResourcePermissions{}
	}

	c.record(resourceType, actions, &perms)
	return perms
}

func (c *PermissionChecker) evaluate(
	ctx context.Context,
	user permission.User,
	resourceType, namespaceID string,
	actions []permission.Action,
) (permission.ResourcePermissions, error) {
	var perms permission.ResourcePermissions

	if user.ID == "" {
		return perms, ErrMissingUser
	}

	authorizer, err := c.factory.NewAuthorizer(ctx)
	if err != nil {
		return perms, fmt.Errorf("create authorizer: %w", err)
	}

	for _, subject := range user.Subjects() {
		if err := ctx.Err(); err != nil {
			return perms, err
		}
		if err := authorizer.SetUser(ctx, subject); err != nil {
			return perms, fmt.Errorf("set subject %s: %w", subject, err)
		}

		results := make([]bool, len(actions))
		g, gctx := errgroup.WithContext(ctx)
		for i, action := range actions {
			g.Go(func() error {
				ok, err := authorizer.Can(gctx, action, resourceType, namespaceID)
				if err != nil {
					return fmt.Errorf("%s %s for %s: %w", action, resourceType, subject, err)
				}
				results[i] = ok
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return perms, err
		}

		// OR across subjects
		for i, ok := range results {
			if ok {
				perms.Grant(actions[i])
			}
		}
	}

	return perms, nil
}

func (c *PermissionChecker) record(resourceType string, actions []permission.Action, perms *permission.ResourcePermissions) {
	if c.recorder == nil {
		return
	}
	for _, action := range actions {
		result := DecisionError
		if perms != nil {
			result = DecisionDeny
			if perms.Allows(action) {
				result = DecisionAllow
			}
		}
		c.recorder.RecordPermissionDecision(resourceType, string(action), result)
	}
}
