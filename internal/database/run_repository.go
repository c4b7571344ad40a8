package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/jonesrussell/re-search/internal/domain"
)

// ErrRunFinalized is returned when writing to a run that has finished or
// does not exist.
var ErrRunFinalized = errors.New("scrape run is finalized")

// RunRepository records scrape runs and their per-URL outcomes.
type RunRepository struct {
	db *sqlx.DB
}

// NewRunRepository creates a new run repository.
func NewRunRepository(db *sqlx.DB) *RunRepository {
	return &RunRepository{db: db}
}

// CreateRun inserts a running scrape run.
func (r *RunRepository) CreateRun(ctx context.Context, run *domain.ScrapeRun) error {
	query := `
		INSERT INTO scrape_runs (id, status, url_count, started_at)
		VALUES ($1, $2, $3, $4)
	`

	_, err := r.db.ExecContext(ctx, query, run.ID, domain.RunStatusRunning, run.URLCount, run.StartedAt)
	if err != nil {
		return fmt.Errorf("failed to create scrape run: %w", err)
	}
	run.Status = domain.RunStatusRunning
	return nil
}

// RecordURLResult stores one per-URL outcome of a running scrape run.
func (r *RunRepository) RecordURLResult(ctx context.Context, runID string, res *domain.URLResult) error {
	query := `
		INSERT INTO scrape_url_results (
			run_id, url, host, status, error, opportunities_found,
			new_count, updated_count, missing_count, reappeared_count, removed_count,
			extractor_used, inference_used, inference_outcome, rendered,
			duration_ms, started_at
		)
		SELECT $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17
		WHERE EXISTS (SELECT 1 FROM scrape_runs WHERE id = $1 AND status = 'running')
	`

	result, err := r.db.ExecContext(
		ctx,
		query,
		runID,
		res.URL,
		res.Host,
		res.Status,
		res.Error,
		res.OpportunitiesFound,
		res.Counts.New,
		res.Counts.Updated,
		res.Counts.Missing,
		res.Counts.Reappeared,
		res.Counts.Removed,
		res.ExtractorUsed,
		res.InferenceUsed,
		res.InferenceOutcome,
		res.Rendered,
		res.Duration.Milliseconds(),
		res.StartedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record url result: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("run %s: %w", runID, ErrRunFinalized)
	}
	return nil
}

// FinishRun freezes the run with its aggregate stats. A run can be finished
// once.
func (r *RunRepository) FinishRun(ctx context.Context, runID string, stats *domain.RunStats) error {
	payload, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("failed to marshal run stats: %w", err)
	}

	query := `
		UPDATE scrape_runs
		SET status = 'finished', finished_at = $1, stats = $2
		WHERE id = $3 AND status = 'running'
	`

	result, err := r.db.ExecContext(ctx, query, stats.FinishedAt, payload, runID)
	if err != nil {
		return fmt.Errorf("failed to finish scrape run: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("run %s: %w", runID, ErrRunFinalized)
	}
	return nil
}

type runRow struct {
	ID         string       `db:"id"`
	Status     string       `db:"status"`
	URLCount   int          `db:"url_count"`
	StartedAt  time.Time    `db:"started_at"`
	FinishedAt sql.NullTime `db:"finished_at"`
	Stats      []byte       `db:"stats"`
}

// Latest returns the most recently finished run with its stats.
func (r *RunRepository) Latest(ctx context.Context) (*domain.ScrapeRun, error) {
	query := `
		SELECT id, status, url_count, started_at, finished_at, stats
		FROM scrape_runs
		WHERE status = 'finished'
		ORDER BY finished_at DESC
		LIMIT 1
	`

	var row runRow
	if err := r.db.GetContext(ctx, &row, query); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("latest scrape run: %w", ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get latest scrape run: %w", err)
	}

	run := &domain.ScrapeRun{
		ID:        row.ID,
		Status:    row.Status,
		URLCount:  row.URLCount,
		StartedAt: row.StartedAt,
	}
	if row.FinishedAt.Valid {
		at := row.FinishedAt.Time
		run.FinishedAt = &at
	}
	if len(row.Stats) > 0 {
		var stats domain.RunStats
		if err := json.Unmarshal(row.Stats, &stats); err != nil {
			return nil, fmt.Errorf("failed to decode run stats: %w", err)
		}
		run.Stats = &stats
	}
	return run, nil
}
