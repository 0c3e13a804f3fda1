package handler

import (
	"errors"
	"net/http"
	"time"

	"library-api/internal/apierr"
	"library-api/internal/middleware"
	"library-api/internal/model"
	"library-api/pkg/config"
	"library-api/pkg/database"
	"library-api/pkg/logger"
	"library-api/prometheus"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var loanPolicy = config.LoanConfig{
	PeriodDays:  14,
	MaxRenewals: 2,
	FinePerDay:  0.50,
}

// InitLoanPolicy sets the lending policy from configuration.
func InitLoanPolicy(cfg config.LoanConfig) {
	loanPolicy = cfg
}

// BorrowBook lends one copy of a book to the caller. The copy counter is
// decremented with a conditional update so two borrows racing on the last
// copy can never drive it negative: the statement only matches rows where
// a copy is still available, and the loser sees zero rows affected.
func BorrowBook(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordLoanOperation("borrow")

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
	result := database.GetDB().Scopes(model.BySchool(schoolID)).Where("active = ?", true).First(&book, req.BookID)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return apierr.JSON(c, http.StatusNotFound, apierr.NotFound, "book not found")
		}
		log.Error("Failed to load book", zap.Uint("book_id", req.BookID), zap.Error(result.Error))
		return apierr.Internal(c)
	}

	var existing int64
	database.GetDB().Model(&model.Loan{}).
		Where("user_id = ? AND book_id = ? AND status = ?", user.ID, book.ID, model.LoanActive).
		Count(&existing)
	if existing > 0 {
		return apierr.JSON(c, http.StatusConflict, apierr.Conflict, "you already have this book on loan")
	}

	now := time.Now()
	loan := model.Loan{
		SchoolID:   schoolID,
		BookID:     book.ID,
		UserID:     user.ID,
		Status:     model.LoanActive,
		BorrowedAt: now,
		DueAt:      now.AddDate(0, 0, loanPolicy.PeriodDays),
	}

	defer prometheus.TrackDBOperation("update")(time.Now())
	err := database.GetDB().Transaction(func(tx *gorm.DB) error {
		decrement := tx.Model(&model.Book{}).
			Where("id = ? AND school_id = ? AND available > 0", book.ID, schoolID).
			UpdateColumn("available", gorm.Expr("available - 1"))
		if decrement.Error != nil {
			return decrement.Error
		}
		if decrement.RowsAffected == 0 {
			return errNoCopies
		}

		return tx.Create(&loan).Error
	})
	if err != nil {
		if errors.Is(err, errNoCopies) {
			log.Info("Borrow refused, no copies available",
				zap.Uint("book_id", book.ID),
				zap.Uint("user_id", user.ID))
			return apierr.JSON(c, http.StatusConflict, apierr.Conflict, "no copies available")
		}
		log.Error("Failed to create loan", zap.Error(err))
		return apierr.Internal(c)
	}

	log.Info("Book borrowed",
		zap.Uint("loan_id", loan.ID),
		zap.Uint("book_id", book.ID),
		zap.Uint("user_id", user.ID),
		zap.Time("due_at", loan.DueAt))

	return c.JSON(http.StatusCreated, loan)
}

var errNoCopies = errors.New("no copies available")

// RenewLoan extends the due date of the caller's own active loan.
func RenewLoan(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordLoanOperation("renew")

	user, ok := middleware.CurrentUser(c)
	if !ok {
		return apierr.JSON(c, http.StatusUnauthorized, apierr.AuthInvalid, "authentication required")
	}

	schoolID, ok := callerSchoolID(c)
	if !ok {
		return nil
	}

	id := c.Param("id")

	defer prometheus.TrackDBOperation("query")(time.Now())
	var loan model.Loan
	result := database.GetDB().Scopes(model.BySchool(schoolID)).First(&loan, id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return apierr.JSON(c, http.StatusNotFound, apierr.NotFound, "loan not found")
		}
		log.Error("Failed to load loan", zap.String("loan_id", id), zap.Error(result.Error))
		return apierr.Internal(c)
	}

	if loan.UserID != user.ID && !middleware.GateState(c).CanManage() {
		return apierr.JSON(c, http.StatusForbidden, apierr.Forbidden, "not your loan")
	}

	now := time.Now()
	switch {
	case loan.Status != model.LoanActive:
		return apierr.JSON(c, http.StatusConflict, apierr.Conflict, "loan is not active")
	case loan.Overdue(now):
		return apierr.JSON(c, http.StatusConflict, apierr.Conflict, "overdue loans cannot be renewed")
	case loan.RenewalCount >= loanPolicy.MaxRenewals:
		return apierr.JSON(c, http.StatusConflict, apierr.Conflict, "renewal limit reached")
	}

	loan.DueAt = loan.DueAt.AddDate(0, 0, loanPolicy.PeriodDays)
	loan.RenewalCount++

	defer prometheus.TrackDBOperation("update")(time.Now())
	if result := database.GetDB().Model(&loan).Updates(map[string]interface{}{
		"due_at":        loan.DueAt,
		"renewal_count": loan.RenewalCount,
	}); result.Error != nil {
		log.Error("Failed to renew loan", zap.String("loan_id", id), zap.Error(result.Error))
		return apierr.Internal(c)
	}

	log.Info("Loan renewed",
		zap.Uint("loan_id", loan.ID),
		zap.Int("renewal_count", loan.RenewalCount),
		zap.Time("due_at", loan.DueAt))

	return c.JSON(http.StatusOK, loan)
}

// ReturnLoan closes a loan, restores the copy counter and records any
// overdue fine. The borrower or an admin may return.
func ReturnLoan(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordLoanOperation("return")

	user, ok := middleware.CurrentUser(c)
	if !ok {
		return apierr.JSON(c, http.StatusUnauthorized, apierr.AuthInvalid, "authentication required")
	}

	schoolID, ok := callerSchoolID(c)
	if !ok {
		return nil
	}

	id := c.Param("id")

	defer prometheus.TrackDBOperation("query")(time.Now())
	var loan model.Loan
	result := database.GetDB().Scopes(model.BySchool(schoolID)).First(&loan, id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return apierr.JSON(c, http.StatusNotFound, apierr.NotFound, "loan not found")
		}
		log.Error("Failed to load loan", zap.String("loan_id", id), zap.Error(result.Error))
		return apierr.Internal(c)
	}

	if loan.UserID != user.ID && !middleware.GateState(c).CanManage() {
		return apierr.JSON(c, http.StatusForbidden, apierr.Forbidden, "not your loan")
	}

	if loan.Status != model.LoanActive {
		return apierr.JSON(c, http.StatusConflict, apierr.Conflict, "loan is already returned")
	}

	now := time.Now()
	fine := loan.FineFor(now, loanPolicy.FinePerDay)

	defer prometheus.TrackDBOperation("update")(time.Now())
	err := database.GetDB().Transaction(func(tx *gorm.DB) error {
		if result := tx.Model(&loan).Updates(map[string]interface{}{
			"status":      model.LoanReturned,
			"returned_at": now,
			"fine_amount": fine,
		}); result.Error != nil {
			return result.Error
		}

		// Mirror of the borrow-path guard: if total_copies was reduced
		// while this copy was out, the return must not push available
		// past the new total. Zero rows affected means the copy was
		// retired, which is fine.
		return tx.Model(&model.Book{}).
			Where("id = ? AND available < total_copies", loan.BookID).
			UpdateColumn("available", gorm.Expr("available + 1")).Error
	})
	if err != nil {
		log.Error("Failed to return loan", zap.String("loan_id", id), zap.Error(err))
		return apierr.Internal(c)
	}

	log.Info("Book returned",
		zap.Uint("loan_id", loan.ID),
		zap.Uint("book_id", loan.BookID),
		zap.Float64("fine_amount", fine))

	return c.JSON(http.StatusOK, loan)
}

// PayFine marks the fine of a returned loan as settled. Admin only.
func PayFine(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordLoanOperation("pay_fine")

	schoolID, ok := callerSchoolID(c)
	if !ok {
		return nil
	}

	id := c.Param("id")

	defer prometheus.TrackDBOperation("query")(time.Now())
	var loan model.Loan
	result := database.GetDB().Scopes(model.BySchool(schoolID)).First(&loan, id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return apierr.JSON(c, http.StatusNotFound, apierr.NotFound, "loan not found")
		}
		log.Error("Failed to load loan", zap.String("loan_id", id), zap.Error(result.Error))
		return apierr.Internal(c)
	}

	if loan.FineAmount == 0 {
		return apierr.JSON(c, http.StatusConflict, apierr.Conflict, "loan has no fine")
	}
	if loan.FinePaid {
		return apierr.JSON(c, http.StatusConflict, apierr.Conflict, "fine is already paid")
	}

	defer prometheus.TrackDBOperation("update")(time.Now())
	if result := database.GetDB().Model(&loan).Update("fine_paid", true); result.Error != nil {
		log.Error("Failed to mark fine paid", zap.String("loan_id", id), zap.Error(result.Error))
		return apierr.Internal(c)
	}

	log.Info("Fine paid", zap.Uint("loan_id", loan.ID), zap.Float64("fine_amount", loan.FineAmount))
	return c.JSON(http.StatusOK, loan)
}

// ListLoans returns the caller's own loans; admins see their whole
// school's, with an optional status filter of active, returned or overdue.
func ListLoans(c echo.Context) error {
	log := logger.FromContext(c)

	user, ok := middleware.CurrentUser(c)
	if !ok {
		return apierr.JSON(c, http.StatusUnauthorized, apierr.AuthInvalid, "authentication required")
	}

	schoolID, ok := callerSchoolID(c)
	if !ok {
		return nil
	}

	query := database.GetDB().Scopes(model.BySchool(schoolID)).Preload("Book")

	if !middleware.GateState(c).CanManage() {
		query = query.Where("user_id = ?", user.ID)
	} else {
		query = query.Preload("User")
	}

	switch c.QueryParam("status") {
	case "active":
		query = query.Where("status = ?", model.LoanActive)
	case "returned":
		query = query.Where("status = ?", model.LoanReturned)
	case "overdue":
		query = query.Where("status = ? AND due_at < ?", model.LoanActive, time.Now())
	}

	defer prometheus.TrackDBOperation("query")(time.Now())
	var loans []model.Loan
	if result := query.Order("borrowed_at DESC").Find(&loans); result.Error != nil {
		log.Error("Failed to list loans", zap.Error(result.Error))
		return apierr.Internal(c)
	}

	return c.JSON(http.StatusOK, loans)
}
