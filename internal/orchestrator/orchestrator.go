// Package orchestrator drives a crawl run across a URL set: one task per URL
// on a bounded worker pool, each task fetching, extracting and reconciling its
// source independently, with every outcome captured as a value and aggregated
// into run statistics.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jonesrussell/re-search/internal/config"
	"github.com/jonesrussell/re-search/internal/domain"
	"github.com/jonesrussell/re-search/internal/extraction"
	"github.com/jonesrussell/re-search/internal/fetcher"
	"github.com/jonesrussell/re-search/internal/logger"
	"github.com/jonesrussell/re-search/internal/metrics"
	"github.com/jonesrussell/re-search/internal/reconcile"
	"github.com/jonesrussell/re-search/internal/worker"
)

// ErrNoURLs is returned when neither the caller nor the configuration supplies
// any URL to crawl.
var ErrNoURLs = errors.New("no URLs to crawl")

const errTaskIncomplete = "crawl task did not complete"

// Fetcher retrieves a page.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string, render bool) (*fetcher.Page, error)
}

// Extractor turns a fetched page into candidates.
type Extractor interface {
	Extract(ctx context.Context, page *extraction.Page) (extraction.Result, error)
}

// SourceResolver returns the per-host configuration for a URL.
type SourceResolver interface {
	Source(rawURL string) config.SourceConfig
}

// Reconciler applies one source's candidates to the record store.
type Reconciler interface {
	Reconcile(ctx context.Context, sourceURL string, candidates []domain.Candidate) (reconcile.Result, error)
}

// Indexer publishes changed records to the search read model.
type Indexer interface {
	Index(ctx context.Context, opps []domain.Opportunity) error
}

// RunRecorder persists the scrape run log.
type RunRecorder interface {
	CreateRun(ctx context.Context, run *domain.ScrapeRun) error
	RecordURLResult(ctx context.Context, runID string, res *domain.URLResult) error
	FinishRun(ctx context.Context, runID string, stats *domain.RunStats) error
}

// BudgetReporter exposes the inference budget counter.
type BudgetReporter interface {
	Usage(ctx context.Context) (used, limit int, err error)
}

// Deps are the collaborators of an Orchestrator. Indexer, Runs, Budget and
// Metrics are optional.
type Deps struct {
	Fetcher    Fetcher
	Extractor  Extractor
	Sources    SourceResolver
	Reconciler Reconciler
	Indexer    Indexer
	Runs       RunRecorder
	Budget     BudgetReporter
	Metrics    *metrics.Metrics
	Logger     logger.Logger
}

// Config holds dispatch settings.
type Config struct {
	Workers int
	// URLs is the default target list used when RunCrawl gets none.
	URLs []string
}

// Orchestrator runs crawls. Safe for concurrent use; concurrent runs over the
// same source are serialized by the reconciler.
type Orchestrator struct {
	cfg  Config
	deps Deps
	log  logger.Logger
	now  func() time.Time

	mu     sync.RWMutex
	latest *domain.RunStats
}

// New validates deps and builds an Orchestrator.
func New(cfg Config, deps Deps) (*Orchestrator, error) {
	switch {
	case deps.Fetcher == nil:
		return nil, errors.New("orchestrator: fetcher is required")
	case deps.Extractor == nil:
		return nil, errors.New("orchestrator: extractor is required")
	case deps.Sources == nil:
		return nil, errors.New("orchestrator: source resolver is required")
	case deps.Reconciler == nil:
		return nil, errors.New("orchestrator: reconciler is required")
	}
	if cfg.Workers <= 0 {
		cfg.Workers = config.DefaultWorkers
	}
	log := deps.Logger
	if log == nil {
		log = logger.NewNop()
	}

	return &Orchestrator{
		cfg:  cfg,
		deps: deps,
		log:  log.With(logger.Component("orchestrator")),
		now:  time.Now,
	}, nil
}

// Latest returns the statistics of the most recent run finished by this
// process.
func (o *Orchestrator) Latest() (*domain.RunStats, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.latest, o.latest != nil
}

// RunCrawl crawls urls, or the configured list when urls is empty. Per-URL
// failures never fail the run: they are returned as failed outcomes in the
// statistics. The only error is ErrNoURLs or a worker pool setup failure.
func (o *Orchestrator) RunCrawl(ctx context.Context, urls []string) (*domain.RunStats, error) {
	targets := dedupe(urls)
	if len(targets) == 0 {
		targets = dedupe(o.cfg.URLs)
	}
	if len(targets) == 0 {
		return nil, ErrNoURLs
	}

	pool, err := worker.NewPool(o.cfg.Workers, o.log)
	if err != nil {
		return nil, fmt.Errorf("create worker pool: %w", err)
	}

	runID := uuid.NewString()
	startedAt := o.now()
	log := o.log.With(logger.RunID(runID))
	log.Info("Starting crawl run",
		logger.Int("urls", len(targets)),
		logger.Int("workers", pool.Size()),
	)

	recording := o.startRun(ctx, runID, len(targets), startedAt, log)

	results := make([]domain.URLResult, len(targets))
	completed := make([]bool, len(targets))

	for i, target := range targets {
		submitErr := pool.Submit(ctx, func(taskCtx context.Context) error {
			results[i] = o.crawlURL(taskCtx, target, log)
			completed[i] = true
			if !results[i].Succeeded() {
				return errors.New(results[i].Error)
			}
			return nil
		})
		if submitErr != nil {
			log.Warn("Crawl task not dispatched", logger.URL(target), logger.Error(submitErr))
			break
		}
	}
	pool.Wait()

	for i, target := range targets {
		if !completed[i] {
			results[i] = domain.URLResult{
				URL:       target,
				Host:      config.HostOf(target),
				Status:    domain.URLStatusError,
				Error:     errTaskIncomplete,
				StartedAt: startedAt,
			}
		}
		o.record(ctx, runID, recording, &results[i], log)
	}

	stats := domain.Aggregate(runID, startedAt, o.now(), results)
	o.finishRun(ctx, recording, &stats, log)

	o.mu.Lock()
	o.latest = &stats
	o.mu.Unlock()

	log.Info("Crawl run finished",
		logger.Int("total", stats.Total),
		logger.Int("succeeded", stats.Succeeded),
		logger.Int("failed", stats.Failed),
		logger.Int("new", stats.NewCount),
		logger.Int("updated", stats.UpdatedCount),
		logger.Int("missing", stats.MissingCount),
		logger.Int("reappeared", stats.ReappearedCount),
		logger.Int("removed", stats.RemovedCount),
		logger.Int("inference_used", stats.InferenceUsedCount),
		logger.Any("scraper_usage", stats.ScraperUsage),
		logger.Duration("duration", stats.FinishedAt.Sub(stats.StartedAt)),
	)
	return &stats, nil
}

// crawlURL runs fetch, extract, reconcile and index for one source URL.
func (o *Orchestrator) crawlURL(ctx context.Context, rawURL string, log logger.Logger) domain.URLResult {
	start := o.now()
	res := domain.URLResult{
		URL:       rawURL,
		Host:      config.HostOf(rawURL),
		StartedAt: start,
	}
	fail := func(stage string, err error) domain.URLResult {
		res.Status = domain.URLStatusError
		res.Error = fmt.Sprintf("%s: %v", stage, err)
		res.Duration = o.now().Sub(start)
		log.Warn("Crawl task failed",
			logger.URL(rawURL),
			logger.String("stage", stage),
			logger.Error(err),
		)
		return res
	}

	src := o.deps.Sources.Source(rawURL)

	page, err := o.deps.Fetcher.Fetch(ctx, rawURL, src.RequiresJS)
	if err != nil {
		return fail("fetch", err)
	}
	res.Rendered = page.Rendered

	extracted, err := o.deps.Extractor.Extract(ctx, &extraction.Page{
		URL:      rawURL,
		FinalURL: page.FinalURL,
		HTML:     page.HTML,
		Rendered: page.Rendered,
		Source:   src,
	})
	res.InferenceOutcome = string(extracted.InferenceOutcome)
	if err != nil {
		return fail("extract", err)
	}
	res.ExtractorUsed = extracted.ExtractorUsed
	res.InferenceUsed = extracted.InferenceUsed
	res.OpportunitiesFound = len(extracted.Candidates)

	reconciled, err := o.deps.Reconciler.Reconcile(ctx, rawURL, extracted.Candidates)
	if err != nil {
		return fail("reconcile", err)
	}
	res.Counts = reconciled.Counts

	if o.deps.Indexer != nil && len(reconciled.Changed) > 0 {
		if indexErr := o.deps.Indexer.Index(ctx, reconciled.Changed); indexErr != nil {
			log.Warn("Indexing changed opportunities failed",
				logger.URL(rawURL),
				logger.Int("changed", len(reconciled.Changed)),
				logger.Error(indexErr),
			)
		}
	}

	res.Status = domain.URLStatusSuccess
	res.Duration = o.now().Sub(start)
	log.Info("Crawl task finished",
		logger.URL(rawURL),
		logger.String("extractor", res.ExtractorUsed),
		logger.String("inference_outcome", res.InferenceOutcome),
		logger.Int("candidates", res.OpportunitiesFound),
		logger.Int("new", res.Counts.New),
		logger.Int("updated", res.Counts.Updated),
		logger.Int("missing", res.Counts.Missing),
		logger.Duration("duration", res.Duration),
	)
	return res
}

// startRun creates the persisted run record. It reports whether per-URL
// outcomes should be recorded for this run.
func (o *Orchestrator) startRun(ctx context.Context, runID string, urlCount int, startedAt time.Time, log logger.Logger) bool {
	if o.deps.Runs == nil {
		return false
	}
	run := &domain.ScrapeRun{
		ID:        runID,
		Status:    domain.RunStatusRunning,
		URLCount:  urlCount,
		StartedAt: startedAt,
	}
	if err := o.deps.Runs.CreateRun(ctx, run); err != nil {
		log.Warn("Scrape run will not be recorded", logger.Error(err))
		return false
	}
	return true
}

func (o *Orchestrator) record(ctx context.Context, runID string, recording bool, res *domain.URLResult, log logger.Logger) {
	o.deps.Metrics.ObserveURL(res)
	if !recording {
		return
	}
	if err := o.deps.Runs.RecordURLResult(ctx, runID, res); err != nil {
		log.Warn("Failed to record URL outcome", logger.URL(res.URL), logger.Error(err))
	}
}

func (o *Orchestrator) finishRun(ctx context.Context, recording bool, stats *domain.RunStats, log logger.Logger) {
	o.deps.Metrics.ObserveRun(stats)

	if o.deps.Budget != nil {
		used, limit, err := o.deps.Budget.Usage(ctx)
		if err != nil {
			log.Debug("Inference budget usage unavailable", logger.Error(err))
		} else {
			o.deps.Metrics.SetBudgetUsage(used, limit)
		}
	}

	if !recording {
		return
	}
	if err := o.deps.Runs.FinishRun(ctx, stats.RunID, stats); err != nil {
		log.Warn("Failed to finalize scrape run", logger.Error(err))
	}
}

// dedupe drops blanks and repeated URLs, keeping first-seen order.
func dedupe(urls []string) []string {
	seen := make(map[string]struct{}, len(urls))
	out := make([]string, 0, len(urls))
	for _, u := range urls {
		if u == "" {
			continue
		}
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	return out
}
