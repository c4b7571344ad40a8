// Package bootstrap wires the crawl service from configuration, in phases:
// metrics, storage, then services. Commands build an App and use its parts.
package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/jonesrussell/re-search/internal/api"
	"github.com/jonesrussell/re-search/internal/config"
	"github.com/jonesrussell/re-search/internal/logger"
	"github.com/jonesrussell/re-search/internal/metrics"
)

// App is the assembled service.
type App struct {
	Config   *config.Config
	Logger   logger.Logger
	Registry *prometheus.Registry
	Metrics  *metrics.Metrics
	Storage  *StorageComponents
	Services *ServiceComponents
}

// New builds an App. On error every connection opened so far is closed.
func New(ctx context.Context, cfg *config.Config, log logger.Logger) (*App, error) {
	if log == nil {
		log = logger.NewNop()
	}

	// Phase 1: metrics on a private registry so tests can build several apps.
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(registry)

	// Phase 2: storage
	storage, err := SetupStorage(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	// Phase 3: crawl pipeline
	services, err := SetupServices(cfg, storage, m, log)
	if err != nil {
		storage.Close(log)
		return nil, err
	}

	return &App{
		Config:   cfg,
		Logger:   log,
		Registry: registry,
		Metrics:  m,
		Storage:  storage,
		Services: services,
	}, nil
}

// HandlerDeps returns the API collaborators. Optional endpoints are switched
// off by leaving their interface nil, never a typed nil.
func (a *App) HandlerDeps() api.Deps {
	deps := api.Deps{
		Runner:   a.Services.Orchestrator,
		Recent:   a.Storage.Opportunities,
		Gatherer: a.Registry,
		Checks:   a.HealthChecks(),
		Logger:   a.Logger,
	}
	if a.Storage.Runs != nil {
		deps.History = a.Storage.Runs
	}
	if a.Storage.Search != nil {
		deps.Searcher = a.Storage.Search
	}
	if a.Services.Summarizer != nil {
		deps.Explain = a.Services.Summarizer
	}
	return deps
}

// HealthChecks probes every connected backend.
func (a *App) HealthChecks() map[string]api.HealthCheck {
	checks := make(map[string]api.HealthCheck)
	if a.Storage.DB != nil {
		checks["postgres"] = a.Storage.DB.PingContext
	}
	if a.Storage.Redis != nil {
		checks["redis"] = func(ctx context.Context) error {
			return a.Storage.Redis.Ping(ctx).Err()
		}
	}
	return checks
}

// Cleanup deletes inactive records last seen more than the configured
// retention ago and returns how many were removed.
func (a *App) Cleanup(ctx context.Context) (int64, error) {
	cutoff := time.Now().Add(-a.Config.Crawl.Retention)
	deleted, err := a.Storage.Opportunities.DeleteInactiveBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("retention cleanup: %w", err)
	}
	a.Logger.Info("Retention cleanup finished",
		logger.Int64("deleted", deleted),
		logger.Time("cutoff", cutoff),
	)
	return deleted, nil
}

// Close releases the browser and every connection.
func (a *App) Close() {
	a.Services.Close(a.Logger)
	a.Storage.Close(a.Logger)
	_ = a.Logger.Sync()
}
