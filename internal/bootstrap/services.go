package bootstrap

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/jonesrussell/re-search/internal/circuitbreaker"
	"github.com/jonesrussell/re-search/internal/config"
	"github.com/jonesrussell/re-search/internal/extraction"
	"github.com/jonesrussell/re-search/internal/fetcher"
	"github.com/jonesrussell/re-search/internal/heuristic"
	"github.com/jonesrussell/re-search/internal/inference"
	"github.com/jonesrussell/re-search/internal/logger"
	"github.com/jonesrussell/re-search/internal/metrics"
	"github.com/jonesrussell/re-search/internal/orchestrator"
	"github.com/jonesrussell/re-search/internal/reconcile"
)

const robotsCacheTTL = time.Hour

// ServiceComponents holds the crawl pipeline.
type ServiceComponents struct {
	Sources      *config.SourceTable
	Fetcher      *fetcher.Fetcher
	Registry     *extraction.Registry
	Pipeline     *extraction.Pipeline
	Budget       inference.Budget
	Summarizer   *inference.Summarizer
	Engine       *reconcile.Engine
	Orchestrator *orchestrator.Orchestrator

	renderer *fetcher.RodRenderer
}

// SetupServices builds the fetcher, extractors, inference tier, reconcile
// engine and orchestrator on top of storage.
func SetupServices(
	cfg *config.Config,
	storage *StorageComponents,
	m *metrics.Metrics,
	log logger.Logger,
) (*ServiceComponents, error) {
	svc := &ServiceComponents{
		Sources: config.NewSourceTable(cfg.Sources, config.SourceConfig{Name: "default"}),
	}

	robots := fetcher.NewRobotsChecker(
		&http.Client{Timeout: cfg.Fetcher.RequestTimeout},
		cfg.Fetcher.UserAgent,
		robotsCacheTTL,
	)
	svc.Fetcher = svc.setupFetcher(&cfg.Fetcher, robots, log)

	registry, err := setupRegistry(&cfg.Fetcher, svc.Sources, svc.Fetcher, robots, log)
	if err != nil {
		return nil, err
	}
	svc.Registry = registry

	var inferrer extraction.Inferrer
	if cfg.Inference.IsEnabled() {
		extractor, setupErr := svc.setupInference(&cfg.Inference, storage, m, log)
		if setupErr != nil {
			return nil, setupErr
		}
		inferrer = extractor
	} else {
		log.Info("Inference disabled, heuristic extraction only")
	}
	svc.Pipeline = extraction.NewPipeline(registry, inferrer, log)

	engineOpts := []reconcile.Option{}
	if storage.Redis != nil {
		engineOpts = append(engineOpts, reconcile.WithLocker(reconcile.NewRedisLocker(storage.Redis, 0, 0)))
	}
	svc.Engine = reconcile.NewEngine(storage.Opportunities, cfg.Reconcile, log, engineOpts...)

	deps := orchestrator.Deps{
		Fetcher:    svc.Fetcher,
		Extractor:  svc.Pipeline,
		Sources:    registry,
		Reconciler: svc.Engine,
		Metrics:    m,
		Logger:     log,
	}
	if storage.Search != nil {
		deps.Indexer = storage.Search
	}
	if storage.Runs != nil {
		deps.Runs = storage.Runs
	}
	if svc.Budget != nil {
		deps.Budget = svc.Budget
	}

	orch, err := orchestrator.New(orchestrator.Config{Workers: cfg.Crawl.Workers, URLs: cfg.Crawl.URLs}, deps)
	if err != nil {
		return nil, fmt.Errorf("setup orchestrator: %w", err)
	}
	svc.Orchestrator = orch

	return svc, nil
}

func (svc *ServiceComponents) setupFetcher(cfg *config.FetcherConfig, robots *fetcher.RobotsChecker, log logger.Logger) *fetcher.Fetcher {
	renderEnabled := cfg.RenderEnabled == nil || *cfg.RenderEnabled
	respectRobots := cfg.RespectRobots == nil || *cfg.RespectRobots

	opts := []fetcher.Option{
		fetcher.WithRobots(robots),
		fetcher.WithHostDelay(func(host string) time.Duration {
			src, _ := svc.Sources.Resolve(host)
			return src.Delay
		}),
	}
	if renderEnabled {
		svc.renderer = fetcher.NewRodRenderer(cfg.RenderSettle, cfg.RenderTimeout)
		opts = append(opts, fetcher.WithRenderer(svc.renderer))
	}

	return fetcher.New(fetcher.Config{
		UserAgent:      cfg.UserAgent,
		RequestTimeout: cfg.RequestTimeout,
		MaxAttempts:    cfg.MaxAttempts,
		InitialBackoff: cfg.InitialBackoff,
		MaxBackoff:     cfg.MaxBackoff,
		DefaultDelay:   cfg.DefaultDelay,
		RespectRobots:  respectRobots,
		RenderEnabled:  renderEnabled,
	}, log, opts...)
}

// setupRegistry registers the heuristic profiles. The default profile follows
// links to sub-pages through the fetcher's host gates; the shallow profile
// stays on the listing page.
func setupRegistry(
	cfg *config.FetcherConfig,
	sources *config.SourceTable,
	pages *fetcher.Fetcher,
	robots *fetcher.RobotsChecker,
	log logger.Logger,
) (*extraction.Registry, error) {
	collyCfg := heuristic.CollyConfig{
		UserAgent:      cfg.UserAgent,
		RequestTimeout: cfg.RequestTimeout,
		Gate:           pages.Hold,
	}
	if cfg.RespectRobots == nil || *cfg.RespectRobots {
		collyCfg.Allowed = func(ctx context.Context, target *url.URL) bool {
			return robots.Allowed(ctx, target)
		}
	}

	profiles := map[string]extraction.Extractor{
		config.ExtractorProfileDefault: heuristic.New(heuristic.Options{
			Subpages: heuristic.NewCollyCrawler(collyCfg, log),
		}, log),
		config.ExtractorProfileShallow: heuristic.New(heuristic.Options{}, log),
	}

	registry, err := extraction.NewRegistry(sources, profiles, config.ExtractorProfileDefault)
	if err != nil {
		return nil, fmt.Errorf("setup extractor registry: %w", err)
	}
	return registry, nil
}

// setupInference builds the provider, shared budget and breaker, and returns
// the extractor. The summarizer shares all three.
func (svc *ServiceComponents) setupInference(
	cfg *config.InferenceConfig,
	storage *StorageComponents,
	m *metrics.Metrics,
	log logger.Logger,
) (*inference.Extractor, error) {
	provider, err := inference.NewProvider(cfg, nil)
	if err != nil {
		return nil, fmt.Errorf("setup inference: %w", err)
	}

	if storage.Redis != nil {
		svc.Budget = inference.NewRedisBudget(storage.Redis, cfg.DailyCallLimit)
	} else {
		svc.Budget = inference.NewMemoryBudget(cfg.DailyCallLimit)
	}

	breakerLog := log.With(logger.Component("inference"), logger.String("provider", provider.Name()))
	breaker := circuitbreaker.New(circuitbreaker.Config{
		FailureThreshold: cfg.BreakerFailures,
		OpenTimeout:      cfg.BreakerTimeout,
		OnStateChange: func(from, to circuitbreaker.State) {
			breakerLog.Warn("Inference circuit breaker state changed",
				logger.String("from", from.String()),
				logger.String("to", to.String()),
			)
		},
	})

	extractorCfg := inference.ConfigFrom(cfg)
	svc.Summarizer = inference.NewSummarizer(provider, svc.Budget, breaker, extractorCfg, log)

	log.Info("Inference enabled",
		logger.String("provider", provider.Name()),
		logger.String("model", cfg.Model),
		logger.Int("daily_call_limit", cfg.DailyCallLimit),
	)

	return inference.NewExtractor(provider, svc.Budget, extractorCfg, log,
		inference.WithBreaker(breaker),
		inference.WithObserver(m),
	), nil
}

// Close stops the headless browser if one was started.
func (svc *ServiceComponents) Close(log logger.Logger) {
	if svc.renderer == nil {
		return
	}
	if err := svc.renderer.Close(); err != nil {
		log.Warn("Close renderer failed", logger.Error(err))
	}
}
