// Package app initializes and holds long-lived application services, acting as a dependency injection container.
package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/bulk-article-scraper/internal/api"
	"github.com/JakeFAU/bulk-article-scraper/internal/config"
	"github.com/JakeFAU/bulk-article-scraper/internal/logging"
	"github.com/JakeFAU/bulk-article-scraper/internal/metrics"
	"github.com/JakeFAU/bulk-article-scraper/internal/progress"
	"github.com/JakeFAU/bulk-article-scraper/internal/progress/sinks"
)

const closeTimeout = 5 * time.Second

// App holds the shared services for one process: the logger, the progress
// hub and the optional status server.
type App struct {
	cfg    config.Config
	logger *zap.Logger
	hub    *progress.Hub
	stats  *sinks.StatsSink
	server *api.Server
}

// New builds the application services described by cfg. The progress hub is
// created when progress logging or the status server is enabled; the status
// server is started when metrics.addr is set.
func New(ctx context.Context, cfg config.Config) (*App, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("init canceled: %w", err)
	}

	logger, err := logging.NewWithLevel(cfg.Logging.Development, cfg.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	metrics.Init()

	a := &App{cfg: cfg, logger: logger}

	if cfg.Progress.Enabled || cfg.Metrics.Addr != "" {
		a.stats = sinks.NewStatsSink()
		hubSinks := []progress.Sink{a.stats}
		if cfg.Progress.Enabled {
			hubSinks = append(hubSinks, sinks.NewLogSink(logger.Named("progress")))
		}
		a.hub = progress.NewHub(progress.Config{Logger: logger}, hubSinks...)
	}

	if cfg.Metrics.Addr != "" {
		a.server = api.NewServer(cfg.Metrics.Addr, a.stats, logger.Named("api"))
		if err := a.server.Start(); err != nil {
			a.Close()
			return nil, fmt.Errorf("start status server: %w", err)
		}
	}

	logger.Debug("Application services initialized",
		zap.Bool("progress", a.hub != nil),
		zap.Bool("status_server", a.server != nil),
	)
	return a, nil
}

// GetLogger returns the shared logger.
func (a *App) GetLogger() *zap.Logger {
	return a.logger
}

// GetConfig returns the configuration the app was built from.
func (a *App) GetConfig() config.Config {
	return a.cfg
}

// GetProgress returns the progress emitter, or nil when progress is disabled.
func (a *App) GetProgress() progress.Emitter {
	if a.hub == nil {
		return nil
	}
	return a.hub
}

// Stats returns the live progress counters, or nil when progress is disabled.
func (a *App) Stats() *sinks.StatsSink {
	return a.stats
}

// StatusAddr returns the bound status server address, or "" when disabled.
func (a *App) StatusAddr() string {
	if a.server == nil {
		return ""
	}
	return a.server.Addr()
}

// Close flushes progress events, stops the status server and syncs the logger.
func (a *App) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()

	if err := a.hub.Close(ctx); err != nil {
		a.logger.Warn("Failed to flush progress events", zap.Error(err))
	}
	if a.server != nil {
		if err := a.server.Shutdown(ctx); err != nil {
			a.logger.Warn("Failed to stop status server", zap.Error(err))
		}
	}
	// Syncing stderr fails with EINVAL on some platforms.
	_ = a.logger.Sync()
}
