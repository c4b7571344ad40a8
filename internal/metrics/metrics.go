// Package metrics provides Prometheus collectors for crawl runs.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/jonesrussell/re-search/internal/domain"
)

const (
	// MetricsNamespace is the namespace for all service metrics.
	MetricsNamespace = "research"

	// MetricsSubsystem is the subsystem for crawl metrics.
	MetricsSubsystem = "crawl"
)

// Labels for inference call results.
const (
	callResultSuccess = "success"
	callResultError   = "error"
)

// Metrics holds all Prometheus metrics for the crawl pipeline. A nil *Metrics
// is valid and records nothing.
type Metrics struct {
	// URL task metrics
	URLsTotal          *prometheus.CounterVec
	URLDurationSeconds prometheus.Histogram
	ExtractorUsage     *prometheus.CounterVec
	InferenceOutcomes  *prometheus.CounterVec

	// Reconcile metrics
	ReconcileChanges *prometheus.CounterVec

	// Inference provider metrics
	InferenceCalls           *prometheus.CounterVec
	InferenceDurationSeconds *prometheus.HistogramVec
	InferenceBudgetUsed      prometheus.Gauge
	InferenceBudgetLimit     prometheus.Gauge

	// Run metrics
	RunsTotal          prometheus.Counter
	RunDurationSeconds prometheus.Histogram
	LastRunSuccessRate prometheus.Gauge
}

// New creates and registers all metrics on reg. A nil reg uses the default
// registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	factory := promauto.With(reg)
	m := &Metrics{}

	m.initURLMetrics(factory)
	m.initInferenceMetrics(factory)
	m.initRunMetrics(factory)

	return m
}

func (m *Metrics) initURLMetrics(factory promauto.Factory) {
	m.URLsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: MetricsNamespace,
			Subsystem: MetricsSubsystem,
			Name:      "urls_total",
			Help:      "Total number of crawled URLs by outcome",
		},
		[]string{"status"},
	)

	m.URLDurationSeconds = factory.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: MetricsNamespace,
			Subsystem: MetricsSubsystem,
			Name:      "url_duration_seconds",
			Help:      "Duration of one fetch, extract and reconcile task",
			Buckets:   prometheus.ExponentialBuckets(0.25, 2, 10), // 250ms to ~2min
		},
	)

	m.ExtractorUsage = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: MetricsNamespace,
			Subsystem: MetricsSubsystem,
			Name:      "extractor_usage_total",
			Help:      "Number of pages whose candidates came from each extractor",
		},
		[]string{"extractor"},
	)

	m.InferenceOutcomes = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: MetricsNamespace,
			Subsystem: MetricsSubsystem,
			Name:      "inference_outcomes_total",
			Help:      "Inference extraction outcomes per page",
		},
		[]string{"outcome"},
	)

	m.ReconcileChanges = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: MetricsNamespace,
			Subsystem: MetricsSubsystem,
			Name:      "reconcile_changes_total",
			Help:      "Opportunity lifecycle transitions applied by reconciliation",
		},
		[]string{"change"},
	)
}

func (m *Metrics) initInferenceMetrics(factory promauto.Factory) {
	m.InferenceCalls = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: MetricsNamespace,
			Subsystem: "inference",
			Name:      "calls_total",
			Help:      "Remote inference calls by provider and result",
		},
		[]string{"provider", "result"},
	)

	m.InferenceDurationSeconds = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: MetricsNamespace,
			Subsystem: "inference",
			Name:      "call_duration_seconds",
			Help:      "Latency of remote inference calls",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~51s
		},
		[]string{"provider"},
	)

	m.InferenceBudgetUsed = factory.NewGauge(
		prometheus.GaugeOpts{
			Namespace: MetricsNamespace,
			Subsystem: "inference",
			Name:      "budget_used",
			Help:      "Inference calls spent today",
		},
	)

	m.InferenceBudgetLimit = factory.NewGauge(
		prometheus.GaugeOpts{
			Namespace: MetricsNamespace,
			Subsystem: "inference",
			Name:      "budget_limit",
			Help:      "Daily inference call cap",
		},
	)
}

func (m *Metrics) initRunMetrics(factory promauto.Factory) {
	m.RunsTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Namespace: MetricsNamespace,
			Subsystem: MetricsSubsystem,
			Name:      "runs_total",
			Help:      "Total number of completed scrape runs",
		},
	)

	m.RunDurationSeconds = factory.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: MetricsNamespace,
			Subsystem: MetricsSubsystem,
			Name:      "run_duration_seconds",
			Help:      "Wall-clock duration of scrape runs",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12), // 1s to ~68min
		},
	)

	m.LastRunSuccessRate = factory.NewGauge(
		prometheus.GaugeOpts{
			Namespace: MetricsNamespace,
			Subsystem: MetricsSubsystem,
			Name:      "last_run_success_rate",
			Help:      "Share of URLs that succeeded in the most recent run",
		},
	)
}

// ObserveURL records one per-URL outcome.
func (m *Metrics) ObserveURL(r *domain.URLResult) {
	if m == nil {
		return
	}

	m.URLsTotal.WithLabelValues(r.Status).Inc()
	m.URLDurationSeconds.Observe(r.Duration.Seconds())
	if r.ExtractorUsed != "" {
		m.ExtractorUsage.WithLabelValues(r.ExtractorUsed).Inc()
	}
	if r.InferenceOutcome != "" {
		m.InferenceOutcomes.WithLabelValues(r.InferenceOutcome).Inc()
	}

	m.addChanges("new", r.Counts.New)
	m.addChanges("updated", r.Counts.Updated)
	m.addChanges("missing", r.Counts.Missing)
	m.addChanges("reappeared", r.Counts.Reappeared)
	m.addChanges("removed", r.Counts.Removed)
}

func (m *Metrics) addChanges(change string, n int) {
	if n > 0 {
		m.ReconcileChanges.WithLabelValues(change).Add(float64(n))
	}
}

// ObserveRun records a finished run.
func (m *Metrics) ObserveRun(stats *domain.RunStats) {
	if m == nil {
		return
	}

	m.RunsTotal.Inc()
	m.RunDurationSeconds.Observe(stats.FinishedAt.Sub(stats.StartedAt).Seconds())
	m.LastRunSuccessRate.Set(stats.SuccessRate)
}

// ObserveInferenceCall implements inference.Observer.
func (m *Metrics) ObserveInferenceCall(provider string, err error, d time.Duration) {
	if m == nil {
		return
	}

	result := callResultSuccess
	if err != nil {
		result = callResultError
	}
	m.InferenceCalls.WithLabelValues(provider, result).Inc()
	m.InferenceDurationSeconds.WithLabelValues(provider).Observe(d.Seconds())
}

// SetBudgetUsage publishes the inference budget counter.
func (m *Metrics) SetBudgetUsage(used, limit int) {
	if m == nil {
		return
	}

	m.InferenceBudgetUsed.Set(float64(used))
	m.InferenceBudgetLimit.Set(float64(limit))
}
