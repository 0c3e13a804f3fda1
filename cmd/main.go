package main

import (
	"library-api/internal/handler"
	"library-api/internal/middleware"
	"library-api/pkg/config"
	"library-api/pkg/database"
	"library-api/pkg/jwtutil"
	"library-api/pkg/logger"
	"library-api/prometheus"

	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

func main() {
	// Load configuration from .env file and environment variables
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger with config
	logger.InitLogger(cfg)
	log := logger.GetLogger()
	log.Info("Starting library service...", cfg.LogConfig()...)

	// Initialize database
	if err := database.Initialize(cfg); err != nil {
		log.Fatal("Failed to initialize database", zap.Error(err))
	}
	log.Info("Database connection established")

	// Initialize JWT utility and policy configuration
	jwtutil.Initialize(&cfg.JWT)
	handler.InitLoanPolicy(cfg.Loan)
	handler.InitUpload(cfg.Upload)

	// Initialize Echo framework
	e := echo.New()

	// Apply global middleware - order matters
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.CORS())
	e.Use(middleware.RequestIDMiddleware)
	e.Use(logger.Middleware(log))
	e.Use(prometheus.MetricsMiddleware())

	// Public routes - no authentication required
	e.GET("/health", handler.HealthCheck)
	e.GET("/metrics", handler.MetricsHandler)
	e.GET("/schools", handler.ListPublicSchools)
	e.Static("/uploads", cfg.Upload.Dir)

	// Authentication routes, rate limited against credential stuffing
	auth := e.Group("/auth", middleware.RateLimit(rate.Limit(5), 10))
	auth.POST("/register", handler.Register)
	auth.POST("/login", handler.Login)

	// API routes - all require authentication
	api := e.Group("/api")
	api.Use(middleware.AuthMiddleware)

	// Own profile - any authenticated, non-rejected membership
	users := api.Group("/users")
	users.GET("/profile", handler.GetProfile)
	users.PATCH("/profile", handler.UpdateProfile)
	users.POST("/change-password", handler.ChangePassword)

	// Membership approval - school admins
	users.GET("/pending", handler.ListPendingMembers, middleware.RequireAdmin)
	users.POST("/:id/approve", handler.ApproveMember, middleware.RequireAdmin)
	users.POST("/:id/reject", handler.RejectMember, middleware.RequireAdmin)

	// School management - developer only
	schools := api.Group("/schools", middleware.RequireDeveloper)
	schools.POST("", handler.CreateSchool)
	schools.GET("", handler.ListSchools)
	schools.GET("/:id", handler.GetSchool)
	schools.PATCH("/:id", handler.UpdateSchool)
	schools.DELETE("/:id", handler.DeactivateSchool)
	schools.POST("/:id/assign-admin", handler.AssignAdmin)

	// Catalog - approved members read, admins write
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

	// Circulation
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

	// File upload - admins manage cover images
	api.POST("/upload", handler.UploadFile, middleware.RequireAdmin)

	// Start server
	port := cfg.Server.Port
	log.Info("Starting server", zap.String("port", port))
	if err := e.Start(":" + port); err != nil {
		log.Fatal("Failed to start server", zap.Error(err))
	}
}
