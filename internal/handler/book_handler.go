package handler

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
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

// BookRequest defines the structure for book creation/update requests
type BookRequest struct {
	Title         string `json:"title"`
	Author        string `json:"author"`
	ISBN          string `json:"isbn,omitempty"`
	Publisher     string `json:"publisher,omitempty"`
	PublishedYear int    `json:"published_year,omitempty"`
	Description   string `json:"description,omitempty"`
	CoverURL      string `json:"cover_url,omitempty"`
	CategoryID    uint   `json:"category_id,omitempty"`
	TotalCopies   int    `json:"total_copies,omitempty"`
}

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// ListBooks returns the school's catalog with optional title/author search,
// category filter and pagination.
func ListBooks(c echo.Context) error {
	log := logger.FromContext(c)

	schoolID, ok := callerSchoolID(c)
	if !ok {
		return nil
	}

	query := database.GetDB().Model(&model.Book{}).Scopes(model.BySchool(schoolID))

	if search := strings.TrimSpace(c.QueryParam("search")); search != "" {
		pattern := "%" + strings.ToLower(search) + "%"
		query = query.Where("LOWER(title) LIKE ? OR LOWER(author) LIKE ?", pattern, pattern)
	}

	if categoryID := c.QueryParam("category_id"); categoryID != "" {
		query = query.Where("category_id = ?", categoryID)
	}

	page, _ := strconv.Atoi(c.QueryParam("page"))
	if page < 1 {
		page = 1
	}
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	if limit < 1 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}

	defer prometheus.TrackDBOperation("query")(time.Now())
	var total int64
	if result := query.Session(&gorm.Session{}).Count(&total); result.Error != nil {
		log.Error("Failed to count books", zap.Error(result.Error))
		return apierr.Internal(c)
	}

	var books []model.Book
	result := query.Preload("Category").
		Order("title").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&books)
	if result.Error != nil {
		log.Error("Failed to list books", zap.Error(result.Error))
		return apierr.Internal(c)
	}

	return c.JSON(http.StatusOK, echo.Map{
		"books": books,
		"total": total,
		"page":  page,
		"limit": limit,
	})
}

// GetBook retrieves a single book from the caller's school.
func GetBook(c echo.Context) error {
	log := logger.FromContext(c)

	schoolID, ok := callerSchoolID(c)
	if !ok {
		return nil
	}

	id := c.Param("id")

	defer prometheus.TrackDBOperation("query")(time.Now())
	var book model.Book
	result := database.GetDB().Scopes(model.BySchool(schoolID)).Preload("Category").First(&book, id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return apierr.JSON(c, http.StatusNotFound, apierr.NotFound, "book not found")
		}
		log.Error("Failed to load book", zap.String("book_id", id), zap.Error(result.Error))
		return apierr.Internal(c)
	}

	return c.JSON(http.StatusOK, book)
}

// CreateBook adds a title to the school's catalog. Admin only.
func CreateBook(c echo.Context) error {
	log := logger.FromContext(c)

	schoolID, ok := callerSchoolID(c)
	if !ok {
		return nil
	}

	var req BookRequest
	if err := c.Bind(&req); err != nil {
		log.Error("Failed to parse book creation request", zap.Error(err))
		return apierr.JSON(c, http.StatusBadRequest, apierr.Validation, "invalid request")
	}

	if req.Title == "" {
		return apierr.JSON(c, http.StatusBadRequest, apierr.Validation, "title is required")
	}

	copies := req.TotalCopies
	if copies < 1 {
		copies = 1
	}

	if req.CategoryID != 0 {
		var category model.Category
		result := database.GetDB().Scopes(model.BySchool(schoolID)).First(&category, req.CategoryID)
		if result.Error != nil {
			return apierr.JSON(c, http.StatusBadRequest, apierr.Validation, "category does not exist in this school")
		}
	}

	book := model.Book{
		SchoolID:      schoolID,
		CategoryID:    req.CategoryID,
		Title:         req.Title,
		Author:        req.Author,
		ISBN:          req.ISBN,
		Publisher:     req.Publisher,
		PublishedYear: req.PublishedYear,
		Description:   req.Description,
		CoverURL:      req.CoverURL,
		TotalCopies:   copies,
		Available:     copies,
		Active:        true,
	}

	defer prometheus.TrackDBOperation("insert")(time.Now())
	if result := database.GetDB().Create(&book); result.Error != nil {
		log.Error("Failed to create book", zap.String("title", req.Title), zap.Error(result.Error))
		return apierr.Internal(c)
	}

	log.Info("Book created",
		zap.Uint("book_id", book.ID),
		zap.String("title", book.Title),
		zap.Uint("school_id", schoolID))
	return c.JSON(http.StatusCreated, book)
}

// UpdateBook updates a book of the school's catalog. Admin only. Copy
// count changes adjust availability by the same delta, floored at zero so
// outstanding loans stay representable.
func UpdateBook(c echo.Context) error {
	log := logger.FromContext(c)

	schoolID, ok := callerSchoolID(c)
	if !ok {
		return nil
	}

	id := c.Param("id")

	var req BookRequest
	if err := c.Bind(&req); err != nil {
		log.Error("Failed to parse book update request", zap.Error(err))
		return apierr.JSON(c, http.StatusBadRequest, apierr.Validation, "invalid request")
	}

	defer prometheus.TrackDBOperation("query")(time.Now())
	var book model.Book
	result := database.GetDB().Scopes(model.BySchool(schoolID)).First(&book, id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return apierr.JSON(c, http.StatusNotFound, apierr.NotFound, "book not found")
		}
		log.Error("Failed to load book for update", zap.String("book_id", id), zap.Error(result.Error))
		return apierr.Internal(c)
	}

	updates := map[string]interface{}{}
	if req.Title != "" {
		updates["title"] = req.Title
	}
	if req.Author != "" {
		updates["author"] = req.Author
	}
	if req.ISBN != "" {
		updates["isbn"] = req.ISBN
	}
	if req.Publisher != "" {
		updates["publisher"] = req.Publisher
	}
	if req.PublishedYear != 0 {
		updates["published_year"] = req.PublishedYear
	}
	if req.Description != "" {
		updates["description"] = req.Description
	}
	if req.CoverURL != "" {
		updates["cover_url"] = req.CoverURL
	}
	if req.CategoryID != 0 {
		var category model.Category
		if result := database.GetDB().Scopes(model.BySchool(schoolID)).First(&category, req.CategoryID); result.Error != nil {
			return apierr.JSON(c, http.StatusBadRequest, apierr.Validation, "category does not exist in this school")
		}
		updates["category_id"] = req.CategoryID
	}
	if req.TotalCopies > 0 && req.TotalCopies != book.TotalCopies {
		delta := req.TotalCopies - book.TotalCopies
		available := book.Available + delta
		if available < 0 {
			available = 0
		}
		updates["total_copies"] = req.TotalCopies
		updates["available"] = available
	}
	if len(updates) == 0 {
		return apierr.JSON(c, http.StatusBadRequest, apierr.Validation, "nothing to update")
	}

	defer prometheus.TrackDBOperation("update")(time.Now())
	if result := database.GetDB().Model(&book).Updates(updates); result.Error != nil {
		log.Error("Failed to update book", zap.String("book_id", id), zap.Error(result.Error))
		return apierr.Internal(c)
	}

	log.Info("Book updated", zap.Uint("book_id", book.ID), zap.Uint("school_id", schoolID))
	return c.JSON(http.StatusOK, book)
}

// DeleteBook removes a book from the school's catalog. Admin only. Books
// with active loans stay.
func DeleteBook(c echo.Context) error {
	log := logger.FromContext(c)

	schoolID, ok := callerSchoolID(c)
	if !ok {
		return nil
	}

	id := c.Param("id")

	defer prometheus.TrackDBOperation("query")(time.Now())
	var book model.Book
	result := database.GetDB().Scopes(model.BySchool(schoolID)).First(&book, id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return apierr.JSON(c, http.StatusNotFound, apierr.NotFound, "book not found")
		}
		log.Error("Failed to load book for deletion", zap.String("book_id", id), zap.Error(result.Error))
		return apierr.Internal(c)
	}

	var activeLoans int64
	database.GetDB().Model(&model.Loan{}).
		Where("book_id = ? AND status = ?", book.ID, model.LoanActive).
		Count(&activeLoans)
	if activeLoans > 0 {
		return apierr.JSON(c, http.StatusConflict, apierr.Conflict, "book has active loans")
	}

	defer prometheus.TrackDBOperation("delete")(time.Now())
	if result := database.GetDB().Delete(&book); result.Error != nil {
		log.Error("Failed to delete book", zap.String("book_id", id), zap.Error(result.Error))
		return apierr.Internal(c)
	}

	log.Info("Book deleted", zap.Uint("book_id", book.ID), zap.Uint("school_id", schoolID))
	return c.JSON(http.StatusOK, echo.Map{"message": "book deleted"})
}
