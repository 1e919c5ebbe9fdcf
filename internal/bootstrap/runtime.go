// Package bootstrap opens the runtime dependencies shared by the server and the operator CLI.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"itdesk/internal/cache"
	"itdesk/internal/config"
	"itdesk/internal/database"
	"itdesk/internal/middleware"
	"itdesk/internal/repository"
	"itdesk/internal/seed"
	"itdesk/internal/service"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Options control runtime initialization behavior.
type Options struct {
	// ApplySchema runs migrations according to DB_SCHEMA_MODE before anything else.
	ApplySchema bool
	// RequireRedis fails initialization when Redis cannot be reached.
	RequireRedis bool
	// SampleRequests seeds that many demo requests in development.
	SampleRequests int
}

// InitRuntime connects to DB and Redis and seeds the status lookup.
// The returned Redis client is nil when Redis is unavailable and not required.
func InitRuntime(ctx context.Context, cfg *config.Config, opts Options) (*gorm.DB, *redis.Client, error) {
	db, err := database.ConnectWithOptions(cfg, database.ConnectOptions{ApplySchema: opts.ApplySchema})
	if err != nil {
		return nil, nil, fmt.Errorf("database connection failed: %w", err)
	}

	if err := repository.NewStatusRepository(db).Seed(ctx); err != nil {
		_ = database.Close(db)
		return nil, nil, fmt.Errorf("failed to seed statuses: %w", err)
	}

	rdb, err := cache.NewClient(ctx, cfg.RedisURL)
	if err != nil {
		if opts.RequireRedis {
			_ = database.Close(db)
			return nil, nil, fmt.Errorf("redis connection failed: %w", err)
		}
		middleware.Logger.Warn("Redis unavailable, continuing without events",
			slog.String("error", err.Error()))
	}

	if opts.SampleRequests > 0 && !cfg.IsProduction() {
		svc := service.NewRequestService(db,
			repository.NewRequestRepository(db),
			repository.NewMirrorRepository(db),
			nil,
			service.PolicyFromConfig(cfg),
		)
		if _, err := seed.Requests(ctx, svc, seed.Options{Count: opts.SampleRequests, Lifecycle: true}); err != nil {
			Close(db, rdb)
			return nil, nil, fmt.Errorf("failed to seed sample requests: %w", err)
		}
	}

	return db, rdb, nil
}

// Close releases whatever InitRuntime opened. Either argument may be nil.
func Close(db *gorm.DB, rdb *redis.Client) {
	if err := database.Close(db); err != nil {
		middleware.Logger.Error("error closing database", slog.String("error", err.Error()))
	}
	if rdb != nil {
		if err := rdb.Close(); err != nil {
			middleware.Logger.Error("error closing redis", slog.String("error", err.Error()))
		}
	}
}
