// Package app wires configuration, persistence, the registry, the
// manager, and the HTTP servers into one runnable application.
package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"swaggerd/internal/config"
	"swaggerd/internal/httpapi"
	"swaggerd/internal/manager"
	"swaggerd/internal/openapi"
	"swaggerd/internal/registry"
	"swaggerd/internal/store"
	"swaggerd/internal/telemetry"
)

type App struct {
	logger *zap.Logger
}

func New(logger *zap.Logger) *App {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &App{logger: logger.Named("app")}
}

type ServeConfig struct {
	ConfigPath string
}

// ValidateConfig loads the config file and reports the first problem.
func (a *App) ValidateConfig(_ context.Context, path string) error {
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	a.logger.Info("config valid",
		zap.String("path", path),
		zap.Int("upstreams", len(cfg.Upstreams)),
	)
	return nil
}

// Serve runs the daemon until ctx is canceled. Shutdown order: management
// server, upstream clients, store.
func (a *App) Serve(ctx context.Context, serveCfg ServeConfig) error {
	cfg, err := config.Load(serveCfg.ConfigPath)
	if err != nil {
		return err
	}

	st, err := store.Open(cfg.StorePath)
	if err != nil {
		return err
	}
	defer func() {
		if err := st.Close(); err != nil {
			a.logger.Error("close store failed", zap.Error(err))
		}
	}()

	promRegistry := prometheus.NewRegistry()
	metrics := telemetry.NewPrometheusMetrics(promRegistry)
	reg := registry.New(a.logger, metrics)
	defer reg.Close()

	mgr := manager.New(manager.Options{
		Logger:         a.logger,
		Loader:         openapi.NewLoader(nil),
		Registry:       reg,
		Store:          st,
		Metrics:        metrics,
		RequestTimeout: time.Duration(cfg.RequestTimeoutSeconds) * time.Second,
	})

	mgr.Restore(ctx)
	mgr.ApplyDeclared(ctx, cfg.Upstreams)

	api := httpapi.New(httpapi.Options{
		Logger:   a.logger,
		Manager:  mgr,
		Registry: reg,
		Metrics:  metrics,
	})

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	errChan := make(chan error, 1)

	go func() {
		opts := telemetry.HTTPServerOptions{
			Addr:          cfg.Observability.ListenAddress,
			EnableMetrics: cfg.Observability.Metrics,
			EnableHealthz: cfg.Observability.Healthz,
			Registry:      promRegistry,
			Health: func() telemetry.HealthReport {
				return telemetry.HealthReport{
					Status:  "ok",
					Servers: len(reg.Prefixes()),
				}
			},
		}
		if err := telemetry.StartHTTPServer(runCtx, opts, a.logger); err != nil {
			errChan <- err
		}
	}()

	go func() {
		err := config.Watch(runCtx, serveCfg.ConfigPath, a.logger, func(next config.Config) {
			mgr.ApplyDeclared(runCtx, next.Upstreams)
		})
		if err != nil {
			a.logger.Warn("config watcher stopped", zap.Error(err))
		}
	}()

	server := &http.Server{
		Addr:    cfg.ListenAddress,
		Handler: api.Routes(),
	}
	go func() {
		a.logger.Info("management server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	select {
	case err := <-errChan:
		return fmt.Errorf("server failed: %w", err)
	case <-runCtx.Done():
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("management server shutdown error", zap.Error(err))
			return err
		}
		a.logger.Info("management server stopped")
		return nil
	}
}
