package api

import (
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/charlesng35/teacherrate/internal/app"
	iauth "github.com/charlesng35/teacherrate/internal/auth"
	"github.com/charlesng35/teacherrate/internal/handlers"
	"github.com/charlesng35/teacherrate/internal/middleware"
	"github.com/charlesng35/teacherrate/internal/monitoring"
	"github.com/charlesng35/teacherrate/internal/monitoring/checks"
	"github.com/charlesng35/teacherrate/internal/services"
)

const (
	defaultRateLimitRequests = 20
	defaultRateLimitWindow   = time.Minute
)

// Dependencies carries the long-lived services the HTTP surface is built on.
type Dependencies struct {
	DB       *gorm.DB
	JWT      *iauth.JWTService
	Config   *app.Config
	Teachers *services.TeacherService
	Ratings  *services.RatingService
	Accounts *services.AccountService
	// RateStore backs the limiter on auth and rating writes. Nil selects an
	// in-process store.
	RateStore middleware.RateStore
	// Readiness runs the probes behind /health/ready. Nil probes the
	// database only.
	Readiness *monitoring.HealthManager
}

// NewRouter builds the Gin engine, wires middleware and registers every route.
func NewRouter(deps Dependencies) (*gin.Engine, error) {
	if deps.DB == nil {
		return nil, errors.New("database handle must be provided")
	}
	if deps.JWT == nil {
		return nil, errors.New("jwt service must be provided")
	}
	if deps.Config == nil {
		return nil, errors.New("config must be provided")
	}

	teacherHandler, err := handlers.NewTeacherHandler(deps.Teachers)
	if err != nil {
		return nil, err
	}
	ratingHandler, err := handlers.NewRatingHandler(deps.Ratings)
	if err != nil {
		return nil, err
	}
	authHandler, err := handlers.NewAuthHandler(deps.Accounts, deps.JWT)
	if err != nil {
		return nil, err
	}

	r := gin.New()

	// Global middleware
	r.Use(middleware.RequestID())
	r.Use(middleware.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics())
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.CORS(deps.Config.Server.CORS.AllowedOrigins))

	readiness := deps.Readiness
	if readiness == nil {
		readiness = monitoring.NewHealthManager(checks.Database(deps.DB, 0))
	}
	registerHealthRoutes(r, deps.Config, deps.DB, readiness)

	guards := routeGuards{
		requireAuth:  middleware.Auth(deps.JWT),
		optionalAuth: middleware.OptionalAuth(deps.JWT),
		requireAdmin: middleware.RequireAdmin(),
		limit:        rateLimiter(deps.Config.Server.RateLimit, deps.RateStore),
	}

	api := r.Group("/api")
	registerAuthRoutes(api, authHandler, guards)
	registerTeacherRoutes(api, teacherHandler, ratingHandler, guards)
	registerRatingRoutes(api, ratingHandler, guards)

	// NotFound fallback
	r.NoRoute(middleware.NotFoundHandler)

	return r, nil
}

type routeGuards struct {
	requireAuth  gin.HandlerFunc
	optionalAuth gin.HandlerFunc
	requireAdmin gin.HandlerFunc
	limit        gin.HandlerFunc
}

func rateLimiter(cfg app.RateLimitConfig, store middleware.RateStore) gin.HandlerFunc {
	if !cfg.Enabled {
		return func(c *gin.Context) { c.Next() }
	}
	requests := cfg.Requests
	if requests <= 0 {
		requests = defaultRateLimitRequests
	}
	window := cfg.Window
	if window <= 0 {
		window = defaultRateLimitWindow
	}
	return middleware.RateLimit(store, requests, window)
}
