// Package bootstrap wires configuration, storage, Redis and the domain
// services for the server and the CLI.
package bootstrap

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
	"rally/internal/notifications"
	"rally/internal/observability"
	"rally/internal/repository"
	"rally/internal/seed"
	"rally/internal/service"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Options control runtime initialization behavior.
type Options struct {
	// SkipSchema opens the database without running migrations, for commands
	// that manage the schema themselves.
	SkipSchema bool
	// SeedDemo applies the built-in demo fixtures after connecting.
	SeedDemo bool
}

// Runtime is the set of live dependencies a process works with.
type Runtime struct {
	Config   *config.Config
	DB       *gorm.DB
	Redis    *redis.Client
	Notifier *notifications.Notifier
	Services *service.Services

	shutdownTracing func(context.Context) error
}

// InitRuntime connects to the database and Redis and builds the services.
// Redis is optional: a nil client disables caching and event publishing.
func InitRuntime(ctx context.Context, cfg *config.Config, opts Options) (*Runtime, error) {
	shutdownTracing, err := observability.InitTracing(observability.TracingConfig{
		ServiceName:  "rally",
		Environment:  cfg.Env,
		Enabled:      cfg.TracingEnabled,
		Exporter:     cfg.TracingExporter,
		OTLPEndpoint: cfg.TracingOTLPEndpoint,
		SamplerRatio: cfg.TracingSampleRatio,
	})
	if err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}

	db, err := database.ConnectWithOptions(cfg, database.ConnectOptions{ApplySchema: !opts.SkipSchema})
	if err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}

	cache.InitRedis(cfg.RedisURL)
	rt := NewRuntime(cfg, db, cache.GetClient())
	rt.shutdownTracing = shutdownTracing

	if opts.SeedDemo {
		f, err := seed.DemoFixtures()
		if err != nil {
			return nil, fmt.Errorf("load demo fixtures: %w", err)
		}
		report, err := seed.Apply(ctx, rt.Services, f, time.Now())
		if err != nil {
			return nil, fmt.Errorf("seed demo fixtures: %w", err)
		}
		middleware.Logger.Info("demo data seeded", slog.String("report", report.String()))
	}
	return rt, nil
}

// NewRuntime builds a runtime over already-open connections.
func NewRuntime(cfg *config.Config, db *gorm.DB, rdb *redis.Client) *Runtime {
	notifier := notifications.NewNotifier(rdb, notifications.BreakerSettings{
		MaxFailures: cfg.EventsBreakerMaxFailures,
		Timeout:     cfg.EventsBreakerTimeout,
	})
	services := service.NewServices(
		repository.NewUnitOfWork(db),
		service.PromptPolicyFromConfig(cfg),
		featureflags.NewManager(cfg.FeatureFlags),
		notifier,
	)
	return &Runtime{Config: cfg, DB: db, Redis: rdb, Notifier: notifier, Services: services}
}

// Close releases the database, Redis and the tracer.
func (r *Runtime) Close(ctx context.Context) {
	if sqlDB, err := r.DB.DB(); err == nil {
		_ = sqlDB.Close()
	}
	if r.Redis != nil {
		_ = r.Redis.Close()
	}
	r.ShutdownTracing(ctx)
}

// ShutdownTracing flushes pending spans. Use it instead of Close when the
// connections are owned by someone else, such as the HTTP server.
func (r *Runtime) ShutdownTracing(ctx context.Context) {
	if r.shutdownTracing == nil {
		return
	}
	if err := r.shutdownTracing(ctx); err != nil {
		middleware.Logger.Warn("tracer shutdown failed", slog.String("error", err.Error()))
	}
}
