package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"library-api/internal/access"
	"library-api/internal/apierr"
	"library-api/internal/model"
	"library-api/pkg/database"
	"library-api/pkg/jwtutil"
	"library-api/pkg/logger"
	"library-api/prometheus"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// Register creates a new membership bound to a school, awaiting admin
// approval.
func Register(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RegisterCounter.Inc()

	var req struct {
		Email         string `json:"email"`
		Password      string `json:"password"`
		Name          string `json:"name"`
		SchoolSlug    string `json:"school_slug"`
		Class         string `json:"class,omitempty"`
		Section       string `json:"section,omitempty"`
		StudentNumber string `json:"student_number,omitempty"`
	}

	if err := c.Bind(&req); err != nil {
		log.Error("Failed to parse registration request", zap.Error(err))
		prometheus.RecordAuthError("invalid_request")
		return apierr.JSON(c, http.StatusBadRequest, apierr.Validation, "invalid request")
	}

	if req.Email == "" || req.Password == "" || req.SchoolSlug == "" {
		log.Warn("Incomplete registration data", zap.String("email", req.Email))
		prometheus.RecordAuthError("incomplete_registration")
		return apierr.JSON(c, http.StatusBadRequest, apierr.Validation, "email, password and school_slug are required")
	}

	if req.StudentNumber != "" {
		if _, err := strconv.Atoi(req.StudentNumber); err != nil {
			log.Warn("Non-numeric student number", zap.String("student_number", req.StudentNumber))
			prometheus.RecordAuthError("invalid_student_number")
			return apierr.JSON(c, http.StatusBadRequest, apierr.Validation, "student_number must be numeric")
		}
	}

	defer prometheus.TrackDBOperation("query")(time.Now())

	// Resolve the school being joined; only active schools accept members.
	var school model.School
	result := database.GetDB().Where("slug = ? AND active = ?", req.SchoolSlug, true).First(&school)
	if result.Error != nil {
		log.Warn("Unknown or inactive school slug", zap.String("slug", req.SchoolSlug))
		prometheus.RecordAuthError("school_not_found")
		return apierr.JSON(c, http.StatusNotFound, apierr.NotFound, "school not found")
	}

	// A rejected membership is retained and keeps blocking the email; any
	// other existing membership is a plain duplicate.
	var existing model.User
	result = database.GetDB().Where("email = ?", req.Email).First(&existing)
	if result.Error == nil {
		if existing.Status == model.StatusRejected {
			log.Warn("Rejected membership attempted re-registration", zap.String("email", req.Email))
			prometheus.RecordAuthError("rejected_reregistration")
			return apierr.JSON(c, http.StatusForbidden, apierr.Forbidden, "registration is not possible for this email")
		}
		log.Warn("Email already registered", zap.String("email", req.Email))
		prometheus.RecordAuthError("email_already_exists")
		return apierr.JSON(c, http.StatusConflict, apierr.Conflict, "email already registered")
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		log.Error("Failed to hash password", zap.Error(err))
		prometheus.RecordAuthError("password_hash_failed")
		return apierr.Internal(c)
	}

	user := model.User{
		Email:         req.Email,
		Password:      string(hashedPassword),
		Name:          req.Name,
		SchoolID:      &school.ID,
		Role:          model.RoleMember,
		Status:        model.StatusPending,
		Class:         req.Class,
		Section:       req.Section,
		StudentNumber: req.StudentNumber,
	}

	defer prometheus.TrackDBOperation("insert")(time.Now())
	if result := database.GetDB().Create(&user); result.Error != nil {
		log.Error("Failed to create membership", zap.Error(result.Error))
		prometheus.RecordAuthError("user_creation_failed")
		return apierr.Internal(c)
	}

	log.Info("Membership registered, pending approval",
		zap.String("email", user.Email),
		zap.Uint("school_id", school.ID))

	return c.JSON(http.StatusCreated, echo.Map{
		"message": "Registration received, awaiting approval",
		"user": map[string]interface{}{
			"id":        user.ID,
			"email":     user.Email,
			"status":    user.Status,
			"school_id": school.ID,
		},
	})
}

// Login verifies credentials and issues a token carrying the caller's role
// and school binding. A rejected membership cannot log in.
func Login(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.LoginCounter.Inc()

	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}

	if err := c.Bind(&req); err != nil {
		log.Error("Failed to parse login request", zap.Error(err))
		prometheus.RecordAuthError("invalid_request")
		return apierr.JSON(c, http.StatusBadRequest, apierr.Validation, "invalid request")
	}

	defer prometheus.TrackDBOperation("query")(time.Now())
	var user model.User
	result := database.GetDB().Preload("School").Where("email = ?", req.Email).First(&user)
	if result.Error != nil {
		if !errors.Is(result.Error, gorm.ErrRecordNotFound) {
			log.Error("Failed to query user", zap.Error(result.Error))
			return apierr.Internal(c)
		}
		log.Warn("Login for unknown email", zap.String("email", req.Email))
		prometheus.RecordAuthError("user_not_found")
		return apierr.JSON(c, http.StatusUnauthorized, apierr.AuthInvalid, "invalid credentials")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
		log.Warn("Invalid password", zap.String("email", req.Email))
		prometheus.RecordAuthError("invalid_password")
		return apierr.JSON(c, http.StatusUnauthorized, apierr.AuthInvalid, "invalid credentials")
	}

	state := access.Resolve(true, &user)
	if state == access.MemberRejected {
		log.Info("Rejected membership attempted login", zap.String("email", req.Email))
		prometheus.RecordAuthError("membership_rejected")
		return apierr.JSON(c, http.StatusForbidden, apierr.AuthRejected, "membership rejected")
	}

	token, err := jwtutil.GenerateToken(user.Email, user.ID, user.Role, user.SchoolID)
	if err != nil {
		log.Error("Failed to generate token", zap.Error(err))
		prometheus.RecordAuthError("token_generation_failed")
		return apierr.Internal(c)
	}

	log.Info("User logged in",
		zap.String("email", user.Email),
		zap.String("role", user.Role),
		zap.String("state", state.String()))

	response := echo.Map{
		"token": token,
		"state": state.String(),
		"user": map[string]interface{}{
			"id":     user.ID,
			"email":  user.Email,
			"name":   user.Name,
			"role":   user.Role,
			"status": user.Status,
		},
	}
	if user.School != nil {
		response["school"] = user.School
	}

	return c.JSON(http.StatusOK, response)
}
