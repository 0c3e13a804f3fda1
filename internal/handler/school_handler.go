package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"library-api/internal/apierr"
	"library-api/internal/model"
	"library-api/pkg/database"
	"library-api/pkg/logger"
	"library-api/prometheus"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ListPublicSchools lists active schools for the registration form. No
// authentication required; only id, slug and name are exposed.
func ListPublicSchools(c echo.Context) error {
	log := logger.FromContext(c)

	defer prometheus.TrackDBOperation("query")(time.Now())
	var schools []model.School
	result := database.GetDB().
		Select("id", "slug", "name").
		Where("active = ?", true).
		Order("name").
		Find(&schools)
	if result.Error != nil {
		log.Error("Failed to list schools", zap.Error(result.Error))
		return apierr.Internal(c)
	}

	prometheus.UpdateActiveSchools(len(schools))

	type schoolSummary struct {
		ID   uint   `json:"id"`
		Slug string `json:"slug"`
		Name string `json:"name"`
	}
	summaries := make([]schoolSummary, 0, len(schools))
	for _, s := range schools {
		summaries = append(summaries, schoolSummary{ID: s.ID, Slug: s.Slug, Name: s.Name})
	}

	return c.JSON(http.StatusOK, summaries)
}

// CreateSchool registers a new school. Developer only.
func CreateSchool(c echo.Context) error {
	log := logger.FromContext(c)

	var req struct {
		Slug    string `json:"slug"`
		Name    string `json:"name"`
		Address string `json:"address,omitempty"`
		Phone   string `json:"phone,omitempty"`
		Email   string `json:"email,omitempty"`
	}

	if err := c.Bind(&req); err != nil {
		log.Error("Failed to parse school creation request", zap.Error(err))
		return apierr.JSON(c, http.StatusBadRequest, apierr.Validation, "invalid request")
	}

	if req.Slug == "" || req.Name == "" {
		return apierr.JSON(c, http.StatusBadRequest, apierr.Validation, "slug and name are required")
	}

	defer prometheus.TrackDBOperation("query")(time.Now())
	var existing model.School
	if result := database.GetDB().Where("slug = ?", req.Slug).First(&existing); result.Error == nil {
		log.Warn("Duplicate school slug", zap.String("slug", req.Slug))
		return apierr.JSON(c, http.StatusConflict, apierr.Conflict, "a school with this slug already exists")
	}

	school := model.School{
		Slug:    req.Slug,
		Name:    req.Name,
		Address: req.Address,
		Phone:   req.Phone,
		Email:   req.Email,
		Active:  true,
	}

	defer prometheus.TrackDBOperation("insert")(time.Now())
	if result := database.GetDB().Create(&school); result.Error != nil {
		log.Error("Failed to create school", zap.Error(result.Error))
		return apierr.Internal(c)
	}

	log.Info("School created", zap.String("slug", school.Slug), zap.Uint("id", school.ID))
	return c.JSON(http.StatusCreated, school)
}

// ListSchools lists every school including inactive ones. Developer only.
func ListSchools(c echo.Context) error {
	log := logger.FromContext(c)

	defer prometheus.TrackDBOperation("query")(time.Now())
	var schools []model.School
	if result := database.GetDB().Order("name").Find(&schools); result.Error != nil {
		log.Error("Failed to list schools", zap.Error(result.Error))
		return apierr.Internal(c)
	}

	return c.JSON(http.StatusOK, schools)
}

// GetSchool retrieves one school. Developer only.
func GetSchool(c echo.Context) error {
	log := logger.FromContext(c)

	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		return apierr.JSON(c, http.StatusBadRequest, apierr.Validation, "invalid school ID")
	}

	defer prometheus.TrackDBOperation("query")(time.Now())
	var school model.School
	if result := database.GetDB().First(&school, id); result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return apierr.JSON(c, http.StatusNotFound, apierr.NotFound, "school not found")
		}
		log.Error("Failed to load school", zap.Error(result.Error))
		return apierr.Internal(c)
	}

	return c.JSON(http.StatusOK, school)
}

// UpdateSchool updates a school's details. Developer only.
func UpdateSchool(c echo.Context) error {
	log := logger.FromContext(c)

	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		return apierr.JSON(c, http.StatusBadRequest, apierr.Validation, "invalid school ID")
	}

	var req struct {
		Name    *string `json:"name,omitempty"`
		Address *string `json:"address,omitempty"`
		Phone   *string `json:"phone,omitempty"`
		Email   *string `json:"email,omitempty"`
		Active  *bool   `json:"active,omitempty"`
	}

	if err := c.Bind(&req); err != nil {
		log.Error("Failed to parse school update request", zap.Error(err))
		return apierr.JSON(c, http.StatusBadRequest, apierr.Validation, "invalid request")
	}

	defer prometheus.TrackDBOperation("query")(time.Now())
	var school model.School
	if result := database.GetDB().First(&school, id); result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return apierr.JSON(c, http.StatusNotFound, apierr.NotFound, "school not found")
		}
		log.Error("Failed to load school", zap.Error(result.Error))
		return apierr.Internal(c)
	}

	updates := map[string]interface{}{}
	if req.Name != nil {
		updates["name"] = *req.Name
	}
	if req.Address != nil {
		updates["address"] = *req.Address
	}
	if req.Phone != nil {
		updates["phone"] = *req.Phone
	}
	if req.Email != nil {
		updates["email"] = *req.Email
	}
	if req.Active != nil {
		updates["active"] = *req.Active
	}
	if len(updates) == 0 {
		return apierr.JSON(c, http.StatusBadRequest, apierr.Validation, "nothing to update")
	}

	defer prometheus.TrackDBOperation("update")(time.Now())
	if result := database.GetDB().Model(&school).Updates(updates); result.Error != nil {
		log.Error("Failed to update school", zap.Error(result.Error))
		return apierr.Internal(c)
	}

	log.Info("School updated", zap.Uint("id", school.ID))
	return c.JSON(http.StatusOK, school)
}

// DeactivateSchool soft-disables a school. Members and books keep
// referencing it, so it is never hard-deleted. Developer only.
func DeactivateSchool(c echo.Context) error {
	log := logger.FromContext(c)

	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		return apierr.JSON(c, http.StatusBadRequest, apierr.Validation, "invalid school ID")
	}

	defer prometheus.TrackDBOperation("update")(time.Now())
	result := database.GetDB().Model(&model.School{}).Where("id = ?", id).Update("active", false)
	if result.Error != nil {
		log.Error("Failed to deactivate school", zap.Error(result.Error))
		return apierr.Internal(c)
	}
	if result.RowsAffected == 0 {
		return apierr.JSON(c, http.StatusNotFound, apierr.NotFound, "school not found")
	}

	log.Info("School deactivated", zap.Uint64("id", id))
	return c.JSON(http.StatusOK, echo.Map{"message": "school deactivated"})
}

// AssignAdmin promotes an existing membership of the school to ADMIN and
// marks it main admin. The transaction demotes any previous main admin
// first so at most one exists per school. Developer only.
func AssignAdmin(c echo.Context) error {
	log := logger.FromContext(c)

	schoolID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		return apierr.JSON(c, http.StatusBadRequest, apierr.Validation, "invalid school ID")
	}

	var req struct {
		Email string `json:"email"`
	}

	if err := c.Bind(&req); err != nil {
		log.Error("Failed to parse admin assignment request", zap.Error(err))
		return apierr.JSON(c, http.StatusBadRequest, apierr.Validation, "invalid request")
	}

	if req.Email == "" {
		return apierr.JSON(c, http.StatusBadRequest, apierr.Validation, "email is required")
	}

	defer prometheus.TrackDBOperation("query")(time.Now())
	var school model.School
	if result := database.GetDB().First(&school, schoolID); result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return apierr.JSON(c, http.StatusNotFound, apierr.NotFound, "school not found")
		}
		log.Error("Failed to load school", zap.Error(result.Error))
		return apierr.Internal(c)
	}

	var member model.User
	result := database.GetDB().
		Scopes(model.BySchool(uint(schoolID))).
		Where("email = ?", req.Email).
		First(&member)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return apierr.JSON(c, http.StatusNotFound, apierr.NotFound, "no membership with this email in the school")
		}
		log.Error("Failed to load membership", zap.Error(result.Error))
		return apierr.Internal(c)
	}

	defer prometheus.TrackDBOperation("update")(time.Now())
	err = database.GetDB().Transaction(func(tx *gorm.DB) error {
		// Demote the previous main admin before promoting, keeping the
		// one-per-school rule intact even under concurrent assignment.
		if result := tx.Model(&model.User{}).
			Scopes(model.BySchool(uint(schoolID))).
			Where("is_main_admin = ?", true).
			Update("is_main_admin", false); result.Error != nil {
			return result.Error
		}

		return tx.Model(&member).Updates(map[string]interface{}{
			"role":          model.RoleAdmin,
			"status":        model.StatusApproved,
			"is_main_admin": true,
		}).Error
	})
	if err != nil {
		log.Error("Failed to assign admin", zap.Error(err))
		return apierr.Internal(c)
	}

	log.Info("Main admin assigned",
		zap.Uint64("school_id", schoolID),
		zap.String("email", req.Email))

	return c.JSON(http.StatusOK, echo.Map{
		"message": "admin assigned",
		"user":    member,
	})
}
