package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"library-api/internal/apierr"
	"library-api/internal/middleware"
	"library-api/internal/model"
	"library-api/pkg/database"
	"library-api/pkg/logger"
	"library-api/prometheus"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// GetProfile returns the caller's membership with its school. The freshness
// check against a rejection already happened in AuthMiddleware.
func GetProfile(c echo.Context) error {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		return apierr.JSON(c, http.StatusUnauthorized, apierr.AuthInvalid, "authentication required")
	}

	return c.JSON(http.StatusOK, echo.Map{
		"user":  user,
		"state": middleware.GateState(c).String(),
	})
}

// UpdateProfile lets a member update their own descriptive fields.
func UpdateProfile(c echo.Context) error {
	log := logger.FromContext(c)

	user, ok := middleware.CurrentUser(c)
	if !ok {
		return apierr.JSON(c, http.StatusUnauthorized, apierr.AuthInvalid, "authentication required")
	}

	var req struct {
		Name          string `json:"name,omitempty"`
		Class         string `json:"class,omitempty"`
		Section       string `json:"section,omitempty"`
		StudentNumber string `json:"student_number,omitempty"`
	}

	if err := c.Bind(&req); err != nil {
		log.Error("Failed to parse profile update", zap.Error(err))
		return apierr.JSON(c, http.StatusBadRequest, apierr.Validation, "invalid request")
	}

	if req.StudentNumber != "" {
		if _, err := strconv.Atoi(req.StudentNumber); err != nil {
			return apierr.JSON(c, http.StatusBadRequest, apierr.Validation, "student_number must be numeric")
		}
	}

	updates := map[string]interface{}{}
	if req.Name != "" {
		updates["name"] = req.Name
	}
	if req.Class != "" {
		updates["class"] = req.Class
	}
	if req.Section != "" {
		updates["section"] = req.Section
	}
	if req.StudentNumber != "" {
		updates["student_number"] = req.StudentNumber
	}
	if len(updates) == 0 {
		return apierr.JSON(c, http.StatusBadRequest, apierr.Validation, "nothing to update")
	}

	defer prometheus.TrackDBOperation("update")(time.Now())
	if result := database.GetDB().Model(user).Updates(updates); result.Error != nil {
		log.Error("Failed to update profile", zap.Error(result.Error))
		return apierr.Internal(c)
	}

	log.Info("Profile updated", zap.Uint("user_id", user.ID))
	return c.JSON(http.StatusOK, echo.Map{"user": user})
}

// ChangePassword verifies the current password before storing a new hash.
func ChangePassword(c echo.Context) error {
	log := logger.FromContext(c)

	user, ok := middleware.CurrentUser(c)
	if !ok {
		return apierr.JSON(c, http.StatusUnauthorized, apierr.AuthInvalid, "authentication required")
	}

	var req struct {
		CurrentPassword string `json:"current_password"`
		NewPassword     string `json:"new_password"`
	}

	if err := c.Bind(&req); err != nil {
		log.Error("Failed to parse password change", zap.Error(err))
		return apierr.JSON(c, http.StatusBadRequest, apierr.Validation, "invalid request")
	}

	if req.NewPassword == "" {
		return apierr.JSON(c, http.StatusBadRequest, apierr.Validation, "new_password is required")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.CurrentPassword)); err != nil {
		log.Warn("Password change with wrong current password", zap.Uint("user_id", user.ID))
		prometheus.RecordAuthError("invalid_password")
		return apierr.JSON(c, http.StatusUnauthorized, apierr.AuthInvalid, "current password is incorrect")
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		log.Error("Failed to hash password", zap.Error(err))
		return apierr.Internal(c)
	}

	defer prometheus.TrackDBOperation("update")(time.Now())
	if result := database.GetDB().Model(user).Update("password", string(hashed)); result.Error != nil {
		log.Error("Failed to store new password", zap.Error(result.Error))
		return apierr.Internal(c)
	}

	log.Info("Password changed", zap.Uint("user_id", user.ID))
	return c.JSON(http.StatusOK, echo.Map{"message": "password changed"})
}

// ListPendingMembers returns the caller's school memberships awaiting a
// decision.
func ListPendingMembers(c echo.Context) error {
	log := logger.FromContext(c)

	schoolID, ok := callerSchoolID(c)
	if !ok {
		return nil
	}

	defer prometheus.TrackDBOperation("query")(time.Now())
	var pending []model.User
	result := database.GetDB().
		Scopes(model.BySchool(schoolID)).
		Where("status = ?", model.StatusPending).
		Order("created_at").
		Find(&pending)
	if result.Error != nil {
		log.Error("Failed to list pending members", zap.Error(result.Error))
		return apierr.Internal(c)
	}

	prometheus.UpdatePendingMembers(schoolID, len(pending))
	return c.JSON(http.StatusOK, pending)
}

// ApproveMember moves a membership of the caller's school to APPROVED.
// Re-approving a rejected membership is allowed.
func ApproveMember(c echo.Context) error {
	return decideMembership(c, model.StatusApproved)
}

// RejectMember moves a pending membership of the caller's school to
// REJECTED. The record is retained and keeps blocking the email.
func RejectMember(c echo.Context) error {
	return decideMembership(c, model.StatusRejected)
}

func decideMembership(c echo.Context, decision string) error {
	log := logger.FromContext(c)

	schoolID, ok := callerSchoolID(c)
	if !ok {
		return nil
	}

	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		return apierr.JSON(c, http.StatusBadRequest, apierr.Validation, "invalid user ID")
	}

	defer prometheus.TrackDBOperation("query")(time.Now())
	var member model.User
	result := database.GetDB().Scopes(model.BySchool(schoolID)).First(&member, id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return apierr.JSON(c, http.StatusNotFound, apierr.NotFound, "membership not found")
		}
		log.Error("Failed to load membership", zap.Error(result.Error))
		return apierr.Internal(c)
	}

	// PENDING accepts either decision; REJECTED may be re-approved.
	// APPROVED is final: demoting back to PENDING is not modeled.
	switch {
	case member.Status == model.StatusPending:
	case member.Status == model.StatusRejected && decision == model.StatusApproved:
	default:
		return apierr.JSON(c, http.StatusConflict, apierr.Conflict, "membership is not awaiting a decision")
	}

	defer prometheus.TrackDBOperation("update")(time.Now())
	if result := database.GetDB().Model(&member).Update("status", decision); result.Error != nil {
		log.Error("Failed to update membership status", zap.Error(result.Error))
		return apierr.Internal(c)
	}

	if decision == model.StatusApproved {
		prometheus.RecordApproval("approve")
	} else {
		prometheus.RecordApproval("reject")
	}

	log.Info("Membership decision recorded",
		zap.Uint("member_id", member.ID),
		zap.String("decision", decision),
		zap.Uint("school_id", schoolID))

	return c.JSON(http.StatusOK, echo.Map{"user": member})
}

// callerSchoolID resolves the school a non-developer caller operates on
// from their own membership, never from request input. Developers address
// one explicitly via the school_id query parameter. On failure the error
// response has already been written and the handler returns nil.
func callerSchoolID(c echo.Context) (uint, bool) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		_ = apierr.JSON(c, http.StatusUnauthorized, apierr.AuthInvalid, "authentication required")
		return 0, false
	}

	if middleware.GateState(c).CrossSchool() {
		id, err := strconv.ParseUint(c.QueryParam("school_id"), 10, 32)
		if err != nil {
			_ = apierr.JSON(c, http.StatusBadRequest, apierr.Validation, "school_id query parameter is required for developers")
			return 0, false
		}
		return uint(id), true
	}

	if user.SchoolID == nil {
		_ = apierr.JSON(c, http.StatusForbidden, apierr.Forbidden, "no school membership")
		return 0, false
	}
	return *user.SchoolID, true
}
