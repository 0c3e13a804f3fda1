package handler

import (
	"errors"
	"net/http"
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

// CategoryRequest defines the structure for category creation/update requests
type CategoryRequest struct {
	Name string `json:"name"`
}

// ListCategories retrieves the school's categories.
func ListCategories(c echo.Context) error {
	log := logger.FromContext(c)

	schoolID, ok := callerSchoolID(c)
	if !ok {
		return nil
	}

	defer prometheus.TrackDBOperation("query")(time.Now())
	var categories []model.Category
	result := database.GetDB().Scopes(model.BySchool(schoolID)).Order("name").Find(&categories)
	if result.Error != nil {
		log.Error("Failed to retrieve categories", zap.Error(result.Error), zap.Uint("school_id", schoolID))
		return apierr.Internal(c)
	}

	return c.JSON(http.StatusOK, categories)
}

// CreateCategory adds a category to the school. Admin only. Names are
// unique within a school.
func CreateCategory(c echo.Context) error {
	log := logger.FromContext(c)

	schoolID, ok := callerSchoolID(c)
	if !ok {
		return nil
	}

	var req CategoryRequest
	if err := c.Bind(&req); err != nil {
		log.Error("Failed to parse category creation request", zap.Error(err))
		return apierr.JSON(c, http.StatusBadRequest, apierr.Validation, "invalid request")
	}

	if req.Name == "" {
		return apierr.JSON(c, http.StatusBadRequest, apierr.Validation, "name is required")
	}

	defer prometheus.TrackDBOperation("query")(time.Now())
	var existing model.Category
	result := database.GetDB().Scopes(model.BySchool(schoolID)).Where("name = ?", req.Name).First(&existing)
	if result.Error == nil {
		return apierr.JSON(c, http.StatusConflict, apierr.Conflict, "a category with this name already exists")
	}

	category := model.Category{
		SchoolID: schoolID,
		Name:     req.Name,
	}

	defer prometheus.TrackDBOperation("insert")(time.Now())
	if result := database.GetDB().Create(&category); result.Error != nil {
		log.Error("Failed to create category", zap.String("name", req.Name), zap.Error(result.Error))
		return apierr.Internal(c)
	}

	log.Info("Category created",
		zap.Uint("category_id", category.ID),
		zap.String("name", category.Name),
		zap.Uint("school_id", schoolID))
	return c.JSON(http.StatusCreated, category)
}

// UpdateCategory renames a category. Admin only.
func UpdateCategory(c echo.Context) error {
	log := logger.FromContext(c)

	schoolID, ok := callerSchoolID(c)
	if !ok {
		return nil
	}

	id := c.Param("id")

	var req CategoryRequest
	if err := c.Bind(&req); err != nil {
		log.Error("Failed to parse category update request", zap.Error(err))
		return apierr.JSON(c, http.StatusBadRequest, apierr.Validation, "invalid request")
	}

	if req.Name == "" {
		return apierr.JSON(c, http.StatusBadRequest, apierr.Validation, "name is required")
	}

	defer prometheus.TrackDBOperation("query")(time.Now())
	var category model.Category
	result := database.GetDB().Scopes(model.BySchool(schoolID)).First(&category, id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return apierr.JSON(c, http.StatusNotFound, apierr.NotFound, "category not found")
		}
		log.Error("Failed to load category", zap.String("category_id", id), zap.Error(result.Error))
		return apierr.Internal(c)
	}

	var duplicate model.Category
	result = database.GetDB().Scopes(model.BySchool(schoolID)).
		Where("name = ? AND id <> ?", req.Name, category.ID).
		First(&duplicate)
	if result.Error == nil {
		return apierr.JSON(c, http.StatusConflict, apierr.Conflict, "a category with this name already exists")
	}

	defer prometheus.TrackDBOperation("update")(time.Now())
	if result := database.GetDB().Model(&category).Update("name", req.Name); result.Error != nil {
		log.Error("Failed to update category", zap.String("category_id", id), zap.Error(result.Error))
		return apierr.Internal(c)
	}

	log.Info("Category updated", zap.Uint("category_id", category.ID), zap.Uint("school_id", schoolID))
	return c.JSON(http.StatusOK, category)
}

// DeleteCategory removes a category with no books. Admin only.
func DeleteCategory(c echo.Context) error {
	log := logger.FromContext(c)

	schoolID, ok := callerSchoolID(c)
	if !ok {
		return nil
	}

	id := c.Param("id")

	defer prometheus.TrackDBOperation("query")(time.Now())
	var category model.Category
	result := database.GetDB().Scopes(model.BySchool(schoolID)).First(&category, id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return apierr.JSON(c, http.StatusNotFound, apierr.NotFound, "category not found")
		}
		log.Error("Failed to load category", zap.String("category_id", id), zap.Error(result.Error))
		return apierr.Internal(c)
	}

	var books int64
	database.GetDB().Model(&model.Book{}).Where("category_id = ?", category.ID).Count(&books)
	if books > 0 {
		return apierr.JSON(c, http.StatusConflict, apierr.Conflict, "category still has books")
	}

	defer prometheus.TrackDBOperation("delete")(time.Now())
	if result := database.GetDB().Delete(&category); result.Error != nil {
		log.Error("Failed to delete category", zap.String("category_id", id), zap.Error(result.Error))
		return apierr.Internal(c)
	}

	log.Info("Category deleted", zap.Uint("category_id", category.ID), zap.Uint("school_id", schoolID))
	return c.JSON(http.StatusOK, echo.Map{"message": "category deleted"})
}
