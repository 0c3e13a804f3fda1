package handler_test

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"testing"

	"library-api/internal/handler"
	"library-api/internal/middleware"
	"library-api/internal/model"
	"library-api/pkg/database"
	"library-api/pkg/jwtutil"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// newTestDB opens a throwaway sqlite database, migrates the schema and
// points the handlers at it.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))

	database.Set(db)
	return db
}

// newTestServer builds an echo instance with the same route layout as
// cmd/main.go, minus the rate limiter.
func newTestServer() *echo.Echo {
	e := echo.New()

	e.GET("/schools", handler.ListPublicSchools)
	e.POST("/auth/register", handler.Register)
	e.POST("/auth/login", handler.Login)

	api := e.Group("/api")
	api.Use(middleware.AuthMiddleware)

	users := api.Group("/users")
	users.GET("/profile", handler.GetProfile)
	users.PATCH("/profile", handler.UpdateProfile)
	users.POST("/change-password", handler.ChangePassword)
	users.GET("/pending", handler.ListPendingMembers, middleware.RequireAdmin)
	users.POST("/:id/approve", handler.ApproveMember, middleware.RequireAdmin)
	users.POST("/:id/reject", handler.RejectMember, middleware.RequireAdmin)

	schools := api.Group("/schools", middleware.RequireDeveloper)
	schools.POST("", handler.CreateSchool)
	schools.GET("", handler.ListSchools)
	schools.GET("/:id", handler.GetSchool)
	schools.PATCH("/:id", handler.UpdateSchool)
	schools.DELETE("/:id", handler.DeactivateSchool)
	schools.POST("/:id/assign-admin", handler.AssignAdmin)

	books := api.Group("/books", middleware.RequireApproved)
	books.GET("", handler.ListBooks)
	books.GET("/:id", handler.GetBook)
	books.POST("", handler.CreateBook, middleware.RequireAdmin)
	books.PATCH("/:id", handler.UpdateBook, middleware.RequireAdmin)
	books.DELETE("/:id", handler.DeleteBook, middleware.RequireAdmin)

	categories := api.Group("/categories", middleware.RequireApproved)
	categories.GET("", handler.ListCategories)
	categories.POST("", handler.CreateCategory, middleware.RequireAdmin)
	categories.PATCH("/:id", handler.UpdateCategory, middleware.RequireAdmin)
	categories.DELETE("/:id", handler.DeleteCategory, middleware.RequireAdmin)

	loans := api.Group("/loans", middleware.RequireApproved)
	loans.GET("", handler.ListLoans)
	loans.POST("", handler.BorrowBook)
	loans.POST("/:id/renew", handler.RenewLoan)
	loans.POST("/:id/return", handler.ReturnLoan)
	loans.POST("/:id/pay-fine", handler.PayFine, middleware.RequireAdmin)

	favorites := api.Group("/favorites", middleware.RequireApproved)
	favorites.GET("", handler.ListFavorites)
	favorites.POST("", handler.AddFavorite)
	favorites.DELETE("/:book_id", handler.RemoveFavorite)

	api.POST("/upload", handler.UploadFile, middleware.RequireAdmin)

	return e
}

func createSchool(t *testing.T, db *gorm.DB, slug, name string) *model.School {
	t.Helper()
	school := &model.School{Slug: slug, Name: name, Active: true}
	require.NoError(t, db.Create(school).Error)
	return school
}

func createUser(t *testing.T, db *gorm.DB, email, role, status string, schoolID *uint) *model.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("secret123"), bcrypt.MinCost)
	require.NoError(t, err)
	user := &model.User{
		Email:    email,
		Password: string(hash),
		Name:     "Test User",
		SchoolID: schoolID,
		Role:     role,
		Status:   status,
	}
	require.NoError(t, db.Create(user).Error)
	return user
}

func createBook(t *testing.T, db *gorm.DB, schoolID uint, title string, copies int) *model.Book {
	t.Helper()
	book := &model.Book{
		SchoolID:    schoolID,
		Title:       title,
		Author:      "Author",
		TotalCopies: copies,
		Available:   copies,
		Active:      true,
	}
	require.NoError(t, db.Create(book).Error)
	return book
}

func tokenFor(t *testing.T, user *model.User) string {
	t.Helper()
	token, err := jwtutil.GenerateToken(user.Email, user.ID, user.Role, user.SchoolID)
	require.NoError(t, err)
	return token
}

// doJSON performs a request against the test server and returns the
// recorder plus the decoded response body.
func doJSON(t *testing.T, e *echo.Echo, method, path, token string, body interface{}) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	var decoded map[string]interface{}
	if rec.Body.Len() > 0 {
		_ = json.Unmarshal(rec.Body.Bytes(), &decoded)
	}
	return rec, decoded
}

// doList performs a GET against the test server and decodes the
// response as a JSON array.
func doList(t *testing.T, e *echo.Echo, path, token string) []map[string]interface{} {
	t.Helper()

	req := httptest.NewRequest("GET", path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	require.Equal(t, 200, rec.Code)

	var decoded []map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decoded))
	return decoded
}

func uintPtr(v uint) *uint { return &v }

func itoa(v uint) string { return strconv.FormatUint(uint64(v), 10) }
