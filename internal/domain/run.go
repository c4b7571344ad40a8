package domain

import "time"

// URL outcome statuses.
const (
	URLStatusSuccess = "success"
	URLStatusError   = "error"
)

// ReconcileCounts are the per-source totals of one reconciliation pass.
type ReconcileCounts struct {
	New        int `json:"new"`
	Updated    int `json:"updated"`
	Missing    int `json:"missing"`
	Reappeared int `json:"reappeared"`
	Removed    int `json:"removed"`
}

// Add accumulates other into c.
func (c *ReconcileCounts) Add(other ReconcileCounts) {
	c.New += other.New
	c.Updated += other.Updated
	c.Missing += other.Missing
	c.Reappeared += other.Reappeared
	c.Removed += other.Removed
}

// URLResult is the outcome of one per-URL crawl task.
type URLResult struct {
	URL                string          `json:"url"`
	Host               string          `json:"host"`
	Status             string          `json:"status"`
	Error              string          `json:"error,omitempty"`
	OpportunitiesFound int             `json:"opportunities_found"`
	Counts             ReconcileCounts `json:"counts"`
	ExtractorUsed      string          `json:"extractor_used,omitempty"`
	InferenceUsed      bool            `json:"inference_used"`
	InferenceOutcome   string          `json:"inference_outcome,omitempty"`
	Rendered           bool            `json:"rendered"`
	Duration           time.Duration   `json:"duration"`
	StartedAt          time.Time       `json:"started_at"`
}

// Succeeded reports whether the task completed without error.
func (r *URLResult) Succeeded() bool {
	return r.Status == URLStatusSuccess
}

// RunStats aggregates every URL outcome of one scrape run.
type RunStats struct {
	RunID              string         `json:"run_id"`
	Total              int            `json:"total"`
	Succeeded          int            `json:"succeeded"`
	Failed             int            `json:"failed"`
	NewCount           int            `json:"new_count"`
	UpdatedCount       int            `json:"updated_count"`
	MissingCount       int            `json:"missing_count"`
	ReappearedCount    int            `json:"reappeared_count"`
	RemovedCount       int            `json:"removed_count"`
	InferenceUsedCount int            `json:"inference_used_count"`
	ScraperUsage       map[string]int `json:"scraper_usage"`
	AverageDuration    time.Duration  `json:"average_duration"`
	SuccessRate        float64        `json:"success_rate"`
	StartedAt          time.Time      `json:"started_at"`
	FinishedAt         time.Time      `json:"finished_at"`
	PerURLResults      []URLResult    `json:"per_url_results"`
}

// Aggregate builds run-level totals from per-URL results.
func Aggregate(runID string, startedAt, finishedAt time.Time, results []URLResult) RunStats {
	stats := RunStats{
		RunID:         runID,
		Total:         len(results),
		ScraperUsage:  make(map[string]int),
		StartedAt:     startedAt,
		FinishedAt:    finishedAt,
		PerURLResults: results,
	}

	var totalDuration time.Duration
	for i := range results {
		r := &results[i]
		totalDuration += r.Duration

		if r.Succeeded() {
			stats.Succeeded++
		} else {
			stats.Failed++
		}
		if r.ExtractorUsed != "" {
			stats.ScraperUsage[r.ExtractorUsed]++
		}
		if r.InferenceUsed {
			stats.InferenceUsedCount++
		}

		stats.NewCount += r.Counts.New
		stats.UpdatedCount += r.Counts.Updated
		stats.MissingCount += r.Counts.Missing
		stats.ReappearedCount += r.Counts.Reappeared
		stats.RemovedCount += r.Counts.Removed
	}

	if stats.Total > 0 {
		stats.AverageDuration = totalDuration / time.Duration(stats.Total)
		stats.SuccessRate = float64(stats.Succeeded) / float64(stats.Total)
	}

	return stats
}

// Scrape run states.
const (
	RunStatusRunning  = "running"
	RunStatusFinished = "finished"
)

// ScrapeRun is the persisted record of one orchestrator invocation. It is
// created when the run starts and frozen once finished.
type ScrapeRun struct {
	ID         string     `db:"id"          json:"id"`
	Status     string     `db:"status"      json:"status"`
	URLCount   int        `db:"url_count"   json:"url_count"`
	StartedAt  time.Time  `db:"started_at"  json:"started_at"`
	FinishedAt *time.Time `db:"finished_at" json:"finished_at,omitempty"`
	Stats      *RunStats  `db:"-"           json:"stats,omitempty"`
}

// Finished reports whether the run can no longer change.
func (r *ScrapeRun) Finished() bool {
	return r.Status == RunStatusFinished
}
