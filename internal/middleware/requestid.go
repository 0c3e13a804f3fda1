package middleware

import (
	"library-api/pkg/logger"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// RequestIDMiddleware tags every request with an id, reusing the client's
// own header value when one is sent so a request can be traced across the
// client and the service logs. The id is stored where logger.FromContext
// finds it and echoed back on the response.
func RequestIDMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		id := c.Request().Header.Get(logger.RequestIDKey)
		if id == "" {
			id = uuid.New().String()
		}
		c.Set(logger.RequestIDKey, id)
		c.Response().Header().Set(logger.RequestIDKey, id)
		return next(c)
	}
}
