package middleware

import (
	"net/http"
	"sync"

	"library-api/internal/apierr"
	"library-api/pkg/logger"
	"library-api/prometheus"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// RateLimit caps the request rate of the routes it wraps, one token
// bucket per client IP so an aggressive client cannot starve the rest.
// Used on the register and login endpoints to slow down credential
// stuffing.
func RateLimit(r rate.Limit, burst int) echo.MiddlewareFunc {
	var (
		mu       sync.Mutex
		limiters = make(map[string]*rate.Limiter)
	)

	limiterFor := func(ip string) *rate.Limiter {
		mu.Lock()
		defer mu.Unlock()
		limiter, ok := limiters[ip]
		if !ok {
			limiter = rate.NewLimiter(r, burst)
			limiters[ip] = limiter
		}
		return limiter
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ip := c.RealIP()
			if !limiterFor(ip).Allow() {
				log := logger.FromContext(c)
				log.Warn("Rate limit exceeded", zap.String("ip", ip))
				prometheus.RecordAuthError("rate_limited")
				return apierr.JSON(c, http.StatusTooManyRequests, apierr.RateLimit, "too many requests, try again later")
			}
			return next(c)
		}
	}
}
