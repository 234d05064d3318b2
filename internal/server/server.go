// Package server exposes the post, conversion and reservation operations over HTTP.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"rally/internal/cache"
	"rally/internal/config"
	"rally/internal/database"
	"rally/internal/featureflags"
	"rally/internal/middleware"
	"rally/internal/models"
	"rally/internal/notifications"
	"rally/internal/repository"
	"rally/internal/service"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Server holds all dependencies and provides handlers
type Server struct {
	config         *config.Config
	db             *gorm.DB
	redis          *redis.Client
	app            *fiber.App
	promMiddleware *fiberprometheus.FiberPrometheus
	events         service.EventPublisher
	featureFlags   *featureflags.Manager
	services       *service.Services
}

// NewServer connects to the database and Redis described by cfg and builds a
// server on top of them.
func NewServer(cfg *config.Config) (*Server, error) {
	db, err := database.Connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}

	cache.InitRedis(cfg.RedisURL)
	return NewServerWithDeps(cfg, db, cache.GetClient(), nil)
}

// NewServerWithDeps creates a Server using already-initialized dependencies.
// A nil events publisher falls back to a Redis notifier, which is a no-op
// when redisClient is nil.
func NewServerWithDeps(cfg *config.Config, db *gorm.DB, redisClient *redis.Client, events service.EventPublisher) (*Server, error) {
	if events == nil {
		events = notifications.NewNotifier(redisClient, notifications.BreakerSettings{
			MaxFailures: cfg.EventsBreakerMaxFailures,
			Timeout:     cfg.EventsBreakerTimeout,
		})
	}

	flags := featureflags.NewManager(cfg.FeatureFlags)
	uow := repository.NewUnitOfWork(db)

	return &Server{
		config:         cfg,
		db:             db,
		redis:          redisClient,
		promMiddleware: middleware.InitMetrics("rally-api"),
		events:         events,
		featureFlags:   flags,
		services:       service.NewServices(uow, service.PromptPolicyFromConfig(cfg), flags, events),
	}, nil
}

// Services exposes the domain services, mainly for tests and tooling.
func (s *Server) Services() *service.Services {
	return s.services
}

// SetupMiddleware configures middleware for the Fiber app
func (s *Server) SetupMiddleware(app *fiber.App) {
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(middleware.TracingMiddleware())
	app.Use(middleware.ContextMiddleware())
	if s.promMiddleware != nil {
		app.Use(middleware.MetricsMiddleware(s.promMiddleware))
	}
	app.Use(helmet.New())
	app.Use(middleware.StructuredLogger())

	origins := s.config.AllowedOrigins
	if origins == "" {
		origins = "http://localhost:5173,http://localhost:3000"
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowCredentials: origins != "*",
		MaxAge:           86400,
	}))
}

// SetupRoutes configures all routes for the application
func (s *Server) SetupRoutes(app *fiber.App) {
	app.Get("/health/live", s.LivenessCheck)
	app.Get("/health/ready", s.ReadinessCheck)
	app.Get("/health", s.ReadinessCheck)

	if s.promMiddleware != nil {
		s.promMiddleware.RegisterAt(app, "/metrics")
	}

	api := app.Group("/api")

	// Public reads
	api.Get("/posts/:id", s.GetPost)
	api.Get("/activities/:id", s.GetActivity)
	api.Get("/activities/:id/stats", s.GetAttendanceStats)

	protected := api.Group("", middleware.AuthRequired(s.config.JWTSecret))
	protected.Get("/flags", s.GetFeatureFlags)

	posts := protected.Group("/posts")
	posts.Post("/", s.CreatePost)
	posts.Post("/:id/reactions", middleware.RateLimit(
		s.redis, s.config.ReactionRateLimit, s.config.ReactionRateLimitWindow, "reaction"), s.ToggleReaction)
	posts.Post("/:id/conversion-prompt", s.CheckConversionPrompt)
	posts.Post("/:id/conversion-prompt/dismiss", s.DismissConversionPrompt)
	posts.Post("/:id/convert", s.ConvertPost)
	posts.Get("/:id/conversion", s.GetConversion)

	activities := protected.Group("/activities")
	activities.Post("/", s.CreateActivity)
	activities.Put("/:id/status", s.UpdateActivityStatus)
	activities.Put("/:id/capacity", s.UpdateActivityCapacity)
	activities.Post("/:id/reconcile", s.ReconcileActivity)
	activities.Post("/:id/conversion-rate", s.RefreshConversionRate)
	activities.Get("/:id/rsvps/preview", s.PreviewReservation)
	activities.Get("/:id/rsvps", s.ListReservations)
	activities.Post("/:id/rsvps", s.CreateReservation)

	rsvps := protected.Group("/rsvps")
	rsvps.Post("/:id/attended", s.MarkAttended)
	rsvps.Put("/:id", s.UpdateReservation)
	rsvps.Delete("/:id", s.CancelReservation)
}

// App builds the Fiber application with middleware and routes installed.
func (s *Server) App() *fiber.App {
	if s.app != nil {
		return s.app
	}
	app := fiber.New(fiber.Config{
		AppName: "Rally API",
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			if fe, ok := err.(*fiber.Error); ok {
				return c.Status(fe.Code).JSON(models.ErrorResponse{Error: fe.Message})
			}
			middleware.Logger.ErrorContext(c.UserContext(), "unhandled error", slog.String("error", err.Error()))
			return models.RespondWithError(c, fiber.StatusInternalServerError, models.NewInternalError(err))
		},
	})
	s.SetupMiddleware(app)
	s.SetupRoutes(app)
	s.app = app
	return app
}

// Start listens on the configured port and blocks.
func (s *Server) Start() error {
	app := s.App()
	middleware.Logger.Info("server starting", slog.String("port", s.config.Port))
	return app.Listen(":" + s.config.Port)
}

// Shutdown stops accepting requests and closes the database and Redis.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.app != nil {
		if err := s.app.ShutdownWithContext(ctx); err != nil {
			middleware.Logger.Error("error shutting down http server", slog.String("error", err.Error()))
		}
	}
	if sqlDB, err := s.db.DB(); err == nil {
		if cerr := sqlDB.Close(); cerr != nil {
			middleware.Logger.Error("error closing sql DB", slog.String("error", cerr.Error()))
		}
	}
	if s.redis != nil {
		if rerr := s.redis.Close(); rerr != nil {
			middleware.Logger.Error("error closing redis", slog.String("error", rerr.Error()))
		}
	}
	middleware.Logger.Info("server shutdown complete")
	return nil
}

// LivenessCheck handles liveness probe requests
func (s *Server) LivenessCheck(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status": "up",
		"time":   time.Now(),
	})
}

// ReadinessCheck reports database and Redis health. Redis is optional: its
// absence degrades caching and events but the service stays ready.
func (s *Server) ReadinessCheck(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 5*time.Second)
	defer cancel()

	dbStatus := "healthy"
	if sqlDB, err := s.db.DB(); err != nil {
		dbStatus = "unhealthy"
	} else if err := sqlDB.PingContext(ctx); err != nil {
		dbStatus = "unhealthy"
	}

	redisStatus := "unavailable"
	if s.redis != nil {
		redisStatus = "healthy"
		if err := s.redis.Ping(ctx).Err(); err != nil {
			redisStatus = "unhealthy"
		}
	}

	status := fiber.StatusOK
	overall := "healthy"
	if dbStatus != "healthy" {
		status = fiber.StatusServiceUnavailable
		overall = "unhealthy"
	} else if redisStatus != "healthy" {
		overall = "degraded"
	}

	return c.Status(status).JSON(fiber.Map{
		"status": overall,
		"checks": fiber.Map{
			"database": dbStatus,
			"redis":    redisStatus,
		},
		"time": time.Now(),
	})
}
