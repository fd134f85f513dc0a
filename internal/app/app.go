// Package app wires configuration into the Canvas client, report service and cache.
package app

import (
	"context"
	"fmt"

	"github.com/Sternrassler/canvas-progress/internal/server"
	"github.com/Sternrassler/canvas-progress/pkg/cache"
	"github.com/Sternrassler/canvas-progress/pkg/canvas"
	"github.com/Sternrassler/canvas-progress/pkg/client"
	"github.com/Sternrassler/canvas-progress/pkg/config"
	"github.com/Sternrassler/canvas-progress/pkg/logging"
	"github.com/Sternrassler/canvas-progress/pkg/pagination"
	"github.com/Sternrassler/canvas-progress/pkg/report"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// App holds the long-lived components built from a Config.
type App struct {
	Config  *config.Config
	Reports *report.Service
	Checks  map[string]server.ReadyCheck

	closers []func() error
}

// SetupLogging configures the global logger from cfg.
func SetupLogging(cfg *config.Config) zerolog.Logger {
	logCfg := logging.DefaultConfig()
	logCfg.Level = logging.LogLevel(cfg.Log.Level)
	logCfg.Pretty = cfg.Log.Pretty
	return logging.Setup(logCfg)
}

// Build creates the components. Without Canvas credentials the report service
// is built unconfigured and every report request fails with report.ErrNotConfigured.
func Build(ctx context.Context, cfg *config.Config) (*App, error) {
	logger := logging.NewLogger("app")
	a := &App{Config: cfg, Checks: map[string]server.ReadyCheck{}}

	store, err := a.buildStore(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	var api report.API
	if cfg.CanvasConfigured() {
		c, err := client.New(clientConfig(cfg))
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("create canvas client: %w", err)
		}
		a.closers = append(a.closers, c.Close)
		api = canvas.NewAPI(c, c.BaseURL(), pagination.Config{PerPage: cfg.Canvas.PerPage})
	} else {
		logger.Warn().Msg("PLATFORM_URL or CANVAS_TOKEN not set; report requests will fail")
	}

	a.Reports = report.NewService(api, store, report.AggregatorConfig{
		Concurrency:    cfg.Report.Concurrency,
		ExcludedModule: cfg.Report.ExcludedModule,
	})

	logger.Info().
		Str("platform_url", cfg.Canvas.PlatformURL).
		Str("cache_backend", cfg.Cache.Backend).
		Int("concurrency", cfg.Report.Concurrency).
		Int("max_attempts", cfg.Canvas.MaxAttempts).
		Msg("Components initialized")

	return a, nil
}

func clientConfig(cfg *config.Config) client.Config {
	cc := client.DefaultConfig(cfg.Canvas.PlatformURL, cfg.Canvas.Token)
	cc.UserAgent = cfg.Canvas.UserAgent
	cc.Timeout = cfg.Canvas.Timeout
	cc.Retry.MaxAttempts = cfg.Canvas.MaxAttempts
	return cc
}

func (a *App) buildStore(ctx context.Context) (cache.Store, error) {
	if a.Config.Cache.Backend != config.CacheRedis {
		return cache.NewMemoryStore(), nil
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     a.Config.Redis.Addr,
		Password: a.Config.Redis.Password,
		DB:       a.Config.Redis.DB,
	})
	a.closers = append(a.closers, redisClient.Close)

	if err := redisClient.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis at %s: %w", a.Config.Redis.Addr, err)
	}

	store := cache.NewRedisStore(redisClient)
	a.Checks["redis"] = store.Ping
	return store, nil
}

// Close releases clients in reverse creation order.
func (a *App) Close() error {
	var first error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	a.closers = nil
	return first
}
