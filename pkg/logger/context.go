package logger

import (
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// RequestIDKey is the header and context key carrying the request id. The
// request-id middleware writes it, Middleware and FromContext read it.
const RequestIDKey = "X-Request-ID"

// loggerKey is the context key Middleware stores the request logger under.
const loggerKey = "logger"

// FromContext returns the request-scoped logger. Outside a request served
// through Middleware it falls back to the global logger tagged with
// whatever request id is known.
func FromContext(c echo.Context) *zap.Logger {
	if logger, ok := c.Get(loggerKey).(*zap.Logger); ok {
		return logger
	}

	requestID, ok := c.Get(RequestIDKey).(string)
	if !ok {
		requestID = c.Request().Header.Get(RequestIDKey)
		if requestID == "" {
			requestID = "unknown"
		}
	}

	return GetLogger().With(zap.String("request_id", requestID))
}
