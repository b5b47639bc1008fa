package httpserver

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/flowctl/console/internal/domain/errs"
)

// Response is the envelope of every console API answer.
type Response struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   *Error `json:"error,omitempty"`
}

// Error is the machine code and user-facing message of a failed request.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// HTTPError is implemented by errors that carry their own status, such as page load failures.
type HTTPError interface {
	error
	HTTPStatus() int
	HTTPCode() string
	HTTPMessage() string
}

type errorMapping struct {
	target  error
	status  int
	code    string
	message string
}

// errorMappings is checked in order; the first sentinel in the chain wins.
var errorMappings = []errorMapping{
	{errs.ErrInvalidInput, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid input data"},
	{errs.ErrUnauthorized, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required"},
	{errs.ErrForbidden, http.StatusForbidden, "FORBIDDEN", "Access denied"},
	{errs.ErrNotFound, http.StatusNotFound, "NOT_FOUND", "The requested resource was not found"},
	{errs.ErrUpstream, http.StatusBadGateway, "UPSTREAM_ERROR", "The flowctl API could not complete the request"},
	{errs.ErrUnavailable, http.StatusServiceUnavailable, "UNAVAILABLE", "The service is temporarily unavailable"},
}

func respond(c echo.Context, status int, data any) error {
	return c.JSON(status, Response{Success: true, Data: data})
}

// RespondOK sends data with 200 OK.
func RespondOK(c echo.Context, data any) error {
	return respond(c, http.StatusOK, data)
}

// RespondCreated sends data with 201 Created.
func RespondCreated(c echo.Context, data any) error {
	return respond(c, http.StatusCreated, data)
}

// RespondNoContent sends an empty 204.
func RespondNoContent(c echo.Context) error {
	return c.NoContent(http.StatusNoContent)
}

// RespondError maps err to a status and error body. Unknown errors become a 500 that hides err.
func RespondError(c echo.Context, err error) error {
	status, apiErr := mapError(err)
	return c.JSON(status, Response{Error: apiErr})
}

// RespondErrorWithCode sends an error body with an explicit status and code.
func RespondErrorWithCode(c echo.Context, status int, code, message string) error {
	return c.JSON(status, Response{Error: &Error{Code: code, Message: message}})
}

func mapError(err error) (int, *Error) {
	var httpErr HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.HTTPStatus(), &Error{Code: httpErr.HTTPCode(), Message: httpErr.HTTPMessage()}
	}

	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			return m.status, &Error{Code: m.code, Message: m.message}
		}
	}

	return http.StatusInternalServerError, &Error{Code: "INTERNAL_ERROR", Message: "An internal error occurred"}
}
