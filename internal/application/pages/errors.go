package pages

import (
	"errors"
	"fmt"
	"net/http"
)

// Machine-readable page error codes.
const (
	CodeInsufficientPermissions = "INSUFFICIENT_PERMISSIONS"
	CodePermissionCheckFailed   = "PERMISSION_CHECK_FAILED"
	CodeForbidden               = "FORBIDDEN"
	CodeOperationFailed         = "OPERATION_FAILED"
)

const (
	msgFlowsDenied   = "You do not have permission to view flows in this namespace"
	msgMembersDenied = "You do not have permission to view members in this namespace"
	msgResultsDenied = "You do not have permission to view execution results in this namespace"
)

// PageError is an HTTP-status-coded failure of a page load.
// It implements httpserver.HTTPError.
type PageError struct {
	Status  int
	Message string
	Code    string
}

func (e *PageError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("page error %d %s: %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("page error %d: %s", e.Status, e.Message)
}

// HTTPStatus returns the response status.
func (e *PageError) HTTPStatus() int { return e.Status }

// HTTPCode returns Code, or a code derived from Status when Code is empty.
func (e *PageError) HTTPCode() string {
	if e.Code != "" {
		return e.Code
	}
	if e.Status == http.StatusForbidden {
		return CodeForbidden
	}
	return CodeOperationFailed
}

// HTTPMessage returns the message shown to the user.
func (e *PageError) HTTPMessage() string { return e.Message }

// AsPageError extracts a *PageError from err's chain.
func AsPageError(err error) (*PageError, bool) {
	var pe *PageError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

func failed(message string) *PageError {
	return &PageError{Status: http.StatusInternalServerError, Message: message}
}

func denied(message, code string) *PageError {
	return &PageError{Status: http.StatusForbidden, Message: message, Code: code}
}
