package api

import (
	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/chatcenter/authkit/internal/api/handler"
	"github.com/chatcenter/authkit/internal/api/middleware"
	"github.com/chatcenter/authkit/internal/console/authz"
	"github.com/chatcenter/authkit/internal/core/domain"
)

// NewRouter builds and returns the Echo instance with all routes registered.
func NewRouter(auth handler.AuthService, db *mongo.Database, rdb *redis.Client, jwtSecret string, log zerolog.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Validator = handler.NewValidator()
	e.HTTPErrorHandler = NewHTTPErrorHandler(log)

	// --- Global middleware ---
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.RequestID())
	e.Use(echoprometheus.NewMiddleware("authkit"))

	authHandler := handler.NewAuthHandler(auth)
	authenticated := middleware.Auth(jwtSecret)

	// --- Auth routes ---
	e.POST("/auth/login", authHandler.Login)
	e.POST("/auth/2fa/verify", authHandler.Verify2FA)
	e.POST("/auth/refresh", authHandler.Refresh)
	e.POST("/auth/logout", authHandler.Logout, authenticated)
	e.GET("/auth/me", authHandler.Me, authenticated)

	// --- Account provisioning (users.manage, or admin bypass) ---
	manageUsers := middleware.Require(authz.Requirement{
		Permissions: []string{domain.PermUsersManage},
	})
	e.POST("/auth/users", authHandler.CreateUser, authenticated, manageUsers)

	// --- Health probes (no auth required) ---
	healthHandler := handler.NewHealthHandler()
	healthDepsHandler := handler.NewHealthDependenciesHandler(db, rdb)

	e.GET("/health", healthHandler.Liveness)            // liveness  – is the process alive?
	e.GET("/health/ready", healthDepsHandler.Readiness) // readiness – are dependencies up?

	// --- Metrics ---
	e.GET("/metrics", echoprometheus.NewHandler())

	return e
}
