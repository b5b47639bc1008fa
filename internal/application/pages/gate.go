package pages

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/flowctl/console/internal/domain/permission"
)

// gate requires view permission on resourceType in the request namespace.
// A denial yields 403 INSUFFICIENT_PERMISSIONS with deniedMessage; a panic or
// missing checker yields 500 PERMISSION_CHECK_FAILED. A *PageError raised
// while checking is returned unchanged.
func (l *Loader) gate(ctx context.Context, req Request, resourceType, deniedMessage string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			cause, ok := r.(error)
			if !ok {
				cause = fmt.Errorf("%v", r)
			}
			err = l.checkFailure(ctx, req, resourceType, fmt.Errorf("panic: %w", cause))
		}
	}()

	if l.checker == nil {
		return l.checkFailure(ctx, req, resourceType, errors.New("no permission checker configured"))
	}

	perms := l.checker.Check(ctx, req.User, resourceType, req.NamespaceID, permission.ActionView)
	if !perms.CanRead {
		return denied(deniedMessage, CodeInsufficientPermissions)
	}
	return nil
}

func (l *Loader) checkFailure(ctx context.Context, req Request, resourceType string, cause error) error {
	if pe, ok := AsPageError(cause); ok {
		return pe
	}
	l.logger.ErrorContext(ctx, "permission check failed",
		slog.String("user_id", req.User.ID),
		slog.String("resource", resourceType),
		slog.String("namespace_id", req.NamespaceID),
		slog.String("error", cause.Error()),
	)
	return &PageError{
		Status:  http.StatusInternalServerError,
		Message: "Failed to check permissions",
		Code:    CodePermissionCheckFailed,
	}
}
