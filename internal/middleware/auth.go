package middleware

import (
	"errors"
	"net/http"
	"strings"

	"library-api/internal/access"
	"library-api/internal/apierr"
	"library-api/internal/model"
	"library-api/pkg/database"
	"library-api/pkg/jwtutil"
	"library-api/pkg/logger"
	"library-api/prometheus"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Context keys set by AuthMiddleware.
const (
	UserKey  = "user"
	StateKey = "gate_state"
)

// AuthMiddleware validates the bearer token, loads the caller's membership
// record fresh from storage and resolves the access state. A membership
// rejected since the token was issued answers with AUTH_REJECTED, which the
// client treats as a forced sign-out.
func AuthMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		log := logger.FromContext(c)

		authHeader := c.Request().Header.Get("Authorization")
		if authHeader == "" {
			log.Warn("Missing Authorization header")
			prometheus.RecordAuthError("missing_token")
			return apierr.JSON(c, http.StatusUnauthorized, apierr.AuthInvalid, "missing authorization token")
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			log.Warn("Invalid Authorization header format")
			prometheus.RecordAuthError("invalid_auth_format")
			return apierr.JSON(c, http.StatusUnauthorized, apierr.AuthInvalid, "invalid authorization format, expected Bearer token")
		}

		claims, err := jwtutil.ValidateToken(parts[1])
		if err != nil {
			if errors.Is(err, jwt.ErrTokenExpired) {
				log.Warn("Expired JWT token")
				prometheus.RecordAuthError("expired_token")
				return apierr.JSON(c, http.StatusUnauthorized, apierr.AuthExpired, "token expired")
			}
			log.Error("Invalid JWT token", zap.Error(err))
			prometheus.RecordAuthError("invalid_token")
			return apierr.JSON(c, http.StatusUnauthorized, apierr.AuthInvalid, "invalid token")
		}

		// The token proves identity only; role and status always come from
		// the stored record so admin decisions take effect immediately.
		var user model.User
		result := database.GetDB().Preload("School").First(&user, claims.UserID)
		if result.Error != nil {
			if errors.Is(result.Error, gorm.ErrRecordNotFound) {
				log.Warn("Token references unknown user", zap.Uint("user_id", claims.UserID))
				prometheus.RecordAuthError("unknown_user")
				return apierr.JSON(c, http.StatusUnauthorized, apierr.AuthInvalid, "invalid token")
			}
			log.Error("Failed to load user", zap.Error(result.Error))
			return apierr.Internal(c)
		}

		state := access.Resolve(true, &user)
		if state == access.MemberRejected {
			log.Info("Rejected membership attempted access",
				zap.Uint("user_id", user.ID),
				zap.String("email", user.Email))
			prometheus.RecordAuthError("membership_rejected")
			return apierr.JSON(c, http.StatusUnauthorized, apierr.AuthRejected, "membership rejected, signing out")
		}

		c.Set(UserKey, &user)
		c.Set(StateKey, state)

		return next(c)
	}
}

// CurrentUser returns the membership record loaded by AuthMiddleware.
func CurrentUser(c echo.Context) (*model.User, bool) {
	user, ok := c.Get(UserKey).(*model.User)
	return user, ok
}

// GateState returns the access state resolved by AuthMiddleware.
func GateState(c echo.Context) access.State {
	if state, ok := c.Get(StateKey).(access.State); ok {
		return state
	}
	return access.Anonymous
}

// RequireApproved admits only approved members, admins and developers.
// Pending memberships get a distinct message so the client can route to
// its waiting screen.
func RequireApproved(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		state := GateState(c)
		if state.CanBrowse() {
			return next(c)
		}

		log := logger.FromContext(c)
		log.Warn("Access denied", zap.String("state", state.String()))
		prometheus.RecordAuthError("not_approved")

		if state == access.MemberPending {
			return apierr.JSON(c, http.StatusForbidden, apierr.Forbidden, "membership pending approval")
		}
		return apierr.JSON(c, http.StatusForbidden, apierr.Forbidden, "membership not active")
	}
}

// RequireAdmin admits only school admins and developers.
func RequireAdmin(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		state := GateState(c)
		if state.CanManage() {
			return next(c)
		}

		log := logger.FromContext(c)
		log.Warn("Admin access denied", zap.String("state", state.String()))
		prometheus.RecordAuthError("not_admin")
		return apierr.JSON(c, http.StatusForbidden, apierr.Forbidden, "admin access required")
	}
}

// RequireDeveloper admits only the developer role.
func RequireDeveloper(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		state := GateState(c)
		if state.CrossSchool() {
			return next(c)
		}

		log := logger.FromContext(c)
		log.Warn("Developer access denied", zap.String("state", state.String()))
		prometheus.RecordAuthError("not_developer")
		return apierr.JSON(c, http.StatusForbidden, apierr.Forbidden, "developer access required")
	}
}
