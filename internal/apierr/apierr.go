// Package apierr defines the stable error codes surfaced to API clients.
package apierr

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

const (
	AuthInvalid  = "AUTH_INVALID"
	AuthExpired  = "AUTH_EXPIRED"
	AuthRejected = "AUTH_REJECTED"
	Forbidden    = "FORBIDDEN"
	NotFound     = "NOT_FOUND"
	Validation   = "VALIDATION"
	Conflict     = "CONFLICT"
	RateLimit    = "RATE_LIMIT"
	ServerError  = "SERVER_ERROR"
)

// JSON writes the standard error envelope. Validation and conflict messages
// are user-facing verbatim; server errors carry a generic message with the
// detail left in the logs.
func JSON(c echo.Context, status int, code, message string) error {
	return c.JSON(status, echo.Map{"error": message, "code": code})
}

// Internal writes the generic server error response.
func Internal(c echo.Context) error {
	return JSON(c, http.StatusInternalServerError, ServerError, "something went wrong")
}
