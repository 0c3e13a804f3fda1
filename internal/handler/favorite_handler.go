package handler

import (
	"errors"
	"net/http"
	"time"

	"library-api/internal/apierr"
	"library-api/internal/middleware"
	"library-api/internal/model"
	"library-api/pkg/database"
	"library-api/pkg/logger"
	"library-api/prometheus"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ListFavorites returns the caller's favorite books.
func ListFavorites(c echo.Context) error {
	log := logger.FromContext(c)

	user, ok := middleware.CurrentUser(c)
	if !ok {
		return apierr.JSON(c, http.StatusUnauthorized, apierr.AuthInvalid, "authentication required")
	}

	defer prometheus.TrackDBOperation("query")(time.Now())
	var favorites []model.Favorite
	result := database.GetDB().
		Where("user_id = ?", user.ID).
		Preload("Book").
		Order("created_at DESC").
		Find(&favorites)
	if result.Error != nil {
		log.Error("Failed to list favorites", zap.Error(result.Error))
		return apierr.Internal(c)
	}

	return c.JSON(http.StatusOK, favorites)
}

// AddFavorite marks a book of the caller's school as a favorite.
func AddFavorite(c echo.Context) error {
	log := logger.FromContext(c)

	user, ok := middleware.CurrentUser(c)
	if !ok {
		return apierr.JSON(c, http.StatusUnauthorized, apierr.AuthInvalid, "authentication required")
	}

	schoolID, ok := callerSchoolID(c)
	if !ok {
		return nil
	}

	var req struct {
		BookID uint `json:"book_id"`
	}

	if err := c.Bind(&req); err != nil || req.BookID == 0 {
		return apierr.JSON(c, http.StatusBadRequest, apierr.Validation, "book_id is required")
	}

	defer prometheus.TrackDBOperation("query")(time.Now())
	var book model.Book
	result := database.GetDB().Scopes(model.BySchool(schoolID)).First(&book, req.BookID)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return apierr.JSON(c, http.StatusNotFound, apierr.NotFound, "book not found")
		}
		log.Error("Failed to load book", zap.Uint("book_id", req.BookID), zap.Error(result.Error))
		return apierr.Internal(c)
	}

	var existing int64
	database.GetDB().Model(&model.Favorite{}).
		Where("user_id = ? AND book_id = ?", user.ID, book.ID).
		Count(&existing)
	if existing > 0 {
		return apierr.JSON(c, http.StatusConflict, apierr.Conflict, "book is already a favorite")
	}

	favorite := model.Favorite{
		SchoolID: schoolID,
		UserID:   user.ID,
		BookID:   book.ID,
	}

	defer prometheus.TrackDBOperation("insert")(time.Now())
	if result := database.GetDB().Create(&favorite); result.Error != nil {
		log.Error("Failed to add favorite", zap.Error(result.Error))
		return apierr.Internal(c)
	}

	log.Info("Favorite added", zap.Uint("user_id", user.ID), zap.Uint("book_id", book.ID))
	return c.JSON(http.StatusCreated, favorite)
}

// RemoveFavorite drops a book from the caller's favorites.
func RemoveFavorite(c echo.Context) error {
	log := logger.FromContext(c)

	user, ok := middleware.CurrentUser(c)
	if !ok {
		return apierr.JSON(c, http.StatusUnauthorized, apierr.AuthInvalid, "authentication required")
	}

	bookID := c.Param("book_id")

	defer prometheus.TrackDBOperation("delete")(time.Now())
	result := database.GetDB().
		Where("user_id = ? AND book_id = ?", user.ID, bookID).
		Delete(&model.Favorite{})
	if result.Error != nil {
		log.Error("Failed to remove favorite", zap.Error(result.Error))
		return apierr.Internal(c)
	}
	if result.RowsAffected == 0 {
		return apierr.JSON(c, http.StatusNotFound, apierr.NotFound, "favorite not found")
	}

	log.Info("Favorite removed", zap.Uint("user_id", user.ID), zap.String("book_id", bookID))
	return c.JSON(http.StatusOK, echo.Map{"message": "favorite removed"})
}
