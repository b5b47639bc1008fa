package flowapi

import (
	"net/http"

	"github.com/flowctl/console/internal/domain/errs"
)

// Unwrap maps the HTTP status onto a domain sentinel, so callers can use errors.Is.
func (e *APIError) Unwrap() error {
	switch e.StatusCode {
	case http.StatusNotFound:
		return errs.ErrNotFound
	case http.StatusForbidden:
		return errs.ErrForbidden
	case http.StatusUnauthorized:
		return errs.ErrUnauthorized
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return errs.ErrInvalidInput
	default:
		return errs.ErrUpstream
	}
}
