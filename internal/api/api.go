// Package api implements the HTTP API: health, metrics, crawl triggering and
// the read endpoints over reconciled opportunities.
package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jonesrussell/re-search/internal/config"
	"github.com/jonesrussell/re-search/internal/database"
	"github.com/jonesrussell/re-search/internal/domain"
	"github.com/jonesrussell/re-search/internal/logger"
)

const (
	defaultRecentLimit = 50
	maxRecentLimit     = 500
	maxRecentDays      = 365
	defaultSearchSize  = 5
	maxSearchSize      = 25
	healthCheckTimeout = 3 * time.Second
)

// Runner starts crawl runs.
type Runner interface {
	RunCrawl(ctx context.Context, urls []string) (*domain.RunStats, error)
	Latest() (*domain.RunStats, bool)
}

// RunHistory reads persisted runs.
type RunHistory interface {
	Latest(ctx context.Context) (*domain.ScrapeRun, error)
}

// RecentLister lists recently discovered opportunities.
type RecentLister interface {
	RecentNew(ctx context.Context, since time.Time, limit int) ([]domain.Opportunity, error)
}

// Searcher queries the search read model.
type Searcher interface {
	Search(ctx context.Context, query string, size int) ([]domain.Opportunity, error)
}

// Explainer writes the natural-language summary of a search.
type Explainer interface {
	ExplainMatches(ctx context.Context, query string, titles []string) (string, error)
}

// HealthCheck probes one dependency.
type HealthCheck func(ctx context.Context) error

// Deps are the handler's collaborators. Runner and Recent are required; the
// rest switch endpoints off when nil.
type Deps struct {
	Runner   Runner
	History  RunHistory
	Recent   RecentLister
	Searcher Searcher
	Explain  Explainer
	Gatherer prometheus.Gatherer
	Checks   map[string]HealthCheck
	Logger   logger.Logger
}

// Handler serves the API routes.
type Handler struct {
	deps    Deps
	log     logger.Logger
	baseCtx context.Context
	running atomic.Bool
	now     func() time.Time
}

// NewHandler builds a Handler. Background runs started over HTTP inherit
// baseCtx, so cancelling it stops them with the server.
func NewHandler(baseCtx context.Context, deps Deps) *Handler {
	log := deps.Logger
	if log == nil {
		log = logger.NewNop()
	}
	return &Handler{
		deps:    deps,
		log:     log.With(logger.Component("api")),
		baseCtx: baseCtx,
		now:     time.Now,
	}
}

// Register mounts the routes on r.
func (h *Handler) Register(r *gin.Engine) {
	r.GET("/health", h.health)
	if h.deps.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(h.deps.Gatherer, promhttp.HandlerOpts{})))
	}

	v1 := r.Group("/api/v1")
	v1.POST("/runs", h.startRun)
	v1.GET("/runs/latest", h.latestRun)
	v1.GET("/opportunities/recent", h.recentOpportunities)
	v1.POST("/search/summary", h.searchSummary)
}

func (h *Handler) health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthCheckTimeout)
	defer cancel()

	status := http.StatusOK
	checks := make(map[string]string, len(h.deps.Checks))
	for name, check := range h.deps.Checks {
		if err := check(ctx); err != nil {
			checks[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}

	overall := "healthy"
	if status != http.StatusOK {
		overall = "unhealthy"
	}
	c.JSON(status, gin.H{"status": overall, "checks": checks})
}

type startRunRequest struct {
	URLs []string `json:"urls"`
}

func (h *Handler) startRun(c *gin.Context) {
	var req startRunRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respondBadRequest(c, "invalid request body: "+err.Error())
			return
		}
	}
	for _, u := range req.URLs {
		if err := config.ValidateCrawlURL(u); err != nil {
			respondBadRequest(c, err.Error())
			return
		}
	}

	if !h.running.CompareAndSwap(false, true) {
		respondError(c, http.StatusConflict, "a crawl run is already in progress")
		return
	}

	log := logger.FromContext(c.Request.Context(), h.log)
	go func() {
		defer h.running.Store(false)
		stats, err := h.deps.Runner.RunCrawl(h.baseCtx, req.URLs)
		if err != nil {
			log.Error("Background crawl run failed", logger.Error(err))
			return
		}
		log.Info("Background crawl run finished", logger.RunID(stats.RunID))
	}()

	c.JSON(http.StatusAccepted, gin.H{"status": "started", "urls": len(req.URLs)})
}

func (h *Handler) latestRun(c *gin.Context) {
	if stats, ok := h.deps.Runner.Latest(); ok {
		c.JSON(http.StatusOK, gin.H{"running": h.running.Load(), "stats": stats})
		return
	}

	if h.deps.History != nil {
		run, err := h.deps.History.Latest(c.Request.Context())
		if err == nil {
			c.JSON(http.StatusOK, gin.H{"running": h.running.Load(), "stats": run.Stats, "run": run})
			return
		}
		if !errors.Is(err, database.ErrNotFound) {
			_ = c.Error(err)
			respondInternalError(c, "failed to load latest run")
			return
		}
	}

	respondNotFound(c, "run")
}

func (h *Handler) recentOpportunities(c *gin.Context) {
	days := queryInt(c, "days", config.DefaultRecentDays)
	if days <= 0 || days > maxRecentDays {
		respondBadRequest(c, "days must be between 1 and "+strconv.Itoa(maxRecentDays))
		return
	}
	limit := queryInt(c, "limit", defaultRecentLimit)
	if limit <= 0 || limit > maxRecentLimit {
		limit = defaultRecentLimit
	}

	since := h.now().AddDate(0, 0, -days)
	opps, err := h.deps.Recent.RecentNew(c.Request.Context(), since, limit)
	if err != nil {
		_ = c.Error(err)
		respondInternalError(c, "failed to list recent opportunities")
		return
	}
	if opps == nil {
		opps = []domain.Opportunity{}
	}

	c.JSON(http.StatusOK, gin.H{
		"days":          days,
		"count":         len(opps),
		"opportunities": opps,
	})
}

type searchSummaryRequest struct {
	Query string `binding:"required" json:"query"`
	Size  int    `json:"size"`
}

func (h *Handler) searchSummary(c *gin.Context) {
	if h.deps.Searcher == nil {
		respondError(c, http.StatusServiceUnavailable, "search is not enabled")
		return
	}

	var req searchSummaryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "query is required")
		return
	}
	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		respondBadRequest(c, "query is required")
		return
	}
	if req.Size <= 0 || req.Size > maxSearchSize {
		req.Size = defaultSearchSize
	}

	ctx := c.Request.Context()
	hits, err := h.deps.Searcher.Search(ctx, req.Query, req.Size)
	if err != nil {
		_ = c.Error(err)
		respondInternalError(c, "search failed")
		return
	}
	if hits == nil {
		hits = []domain.Opportunity{}
	}

	resp := gin.H{"query": req.Query, "count": len(hits), "opportunities": hits}
	if h.deps.Explain != nil && len(hits) > 0 {
		titles := make([]string, 0, len(hits))
		for i := range hits {
			titles = append(titles, hits[i].Title)
		}
		summary, explainErr := h.deps.Explain.ExplainMatches(ctx, req.Query, titles)
		if explainErr != nil {
			logger.FromContext(ctx, h.log).Warn("Search summary unavailable", logger.Error(explainErr))
		} else {
			resp["summary"] = summary
		}
	}

	c.JSON(http.StatusOK, resp)
}

func queryInt(c *gin.Context, key string, def int) int {
	raw := c.Query(key)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return -1
	}
	return v
}

func respondError(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"error": message})
}

func respondNotFound(c *gin.Context, resource string) {
	respondError(c, http.StatusNotFound, resource+" not found")
}

func respondBadRequest(c *gin.Context, message string) {
	respondError(c, http.StatusBadRequest, message)
}

func respondInternalError(c *gin.Context, message string) {
	respondError(c, http.StatusInternalServerError, message)
}
