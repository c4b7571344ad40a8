package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/jonesrussell/re-search/internal/domain"
	"github.com/jonesrussell/re-search/internal/reconcile"
)

const opportunityColumns = `
	id, title, description, department, opportunity_type, eligibility_requirements,
	deadline, funding_amount, application_url, source_url, contact_email, tags,
	content_fingerprint, similarity_group, status, consecutive_missing_count, is_active,
	first_seen_at, last_seen_at, last_updated_at, scraped_at,
	extractor_used, inference_parsed, parsing_confidence, inference_error, processed_at`

// opportunityRow is the column mapping of the opportunities table.
type opportunityRow struct {
	ID                      string         `db:"id"`
	Title                   string         `db:"title"`
	Description             string         `db:"description"`
	Department              string         `db:"department"`
	OpportunityType         string         `db:"opportunity_type"`
	EligibilityRequirements string         `db:"eligibility_requirements"`
	Deadline                string         `db:"deadline"`
	FundingAmount           string         `db:"funding_amount"`
	ApplicationURL          string         `db:"application_url"`
	SourceURL               string         `db:"source_url"`
	ContactEmail            string         `db:"contact_email"`
	Tags                    pq.StringArray `db:"tags"`
	ContentFingerprint      string         `db:"content_fingerprint"`
	SimilarityGroup         string         `db:"similarity_group"`
	Status                  string         `db:"status"`
	ConsecutiveMissingCount int            `db:"consecutive_missing_count"`
	IsActive                bool           `db:"is_active"`
	FirstSeenAt             time.Time      `db:"first_seen_at"`
	LastSeenAt              time.Time      `db:"last_seen_at"`
	LastUpdatedAt           time.Time      `db:"last_updated_at"`
	ScrapedAt               time.Time      `db:"scraped_at"`
	ExtractorUsed           string         `db:"extractor_used"`
	InferenceParsed         bool           `db:"inference_parsed"`
	ParsingConfidence       float64        `db:"parsing_confidence"`
	InferenceError          string         `db:"inference_error"`
	ProcessedAt             sql.NullTime   `db:"processed_at"`
}

func toRow(o *domain.Opportunity) opportunityRow {
	row := opportunityRow{
		ID:                      o.ID,
		Title:                   o.Title,
		Description:             o.Description,
		Department:              o.Department,
		OpportunityType:         string(o.OpportunityType),
		EligibilityRequirements: o.EligibilityRequirements,
		Deadline:                o.Deadline,
		FundingAmount:           o.FundingAmount,
		ApplicationURL:          o.ApplicationURL,
		SourceURL:               o.SourceURL,
		ContactEmail:            o.ContactEmail,
		Tags:                    pq.StringArray(o.Tags),
		ContentFingerprint:      o.ContentFingerprint,
		SimilarityGroup:         o.SimilarityGroup,
		Status:                  string(o.Status),
		ConsecutiveMissingCount: o.ConsecutiveMissingCount,
		IsActive:                o.IsActive,
		FirstSeenAt:             o.FirstSeenAt,
		LastSeenAt:              o.LastSeenAt,
		LastUpdatedAt:           o.LastUpdatedAt,
		ScrapedAt:               o.ScrapedAt,
		ExtractorUsed:           o.ExtractorUsed,
		InferenceParsed:         o.InferenceParsed,
		ParsingConfidence:       o.ParsingConfidence,
		InferenceError:          o.InferenceError,
	}
	if row.Tags == nil {
		row.Tags = pq.StringArray{}
	}
	if o.ProcessedAt != nil {
		row.ProcessedAt = sql.NullTime{Time: *o.ProcessedAt, Valid: true}
	}
	return row
}

func (r *opportunityRow) toDomain() domain.Opportunity {
	o := domain.Opportunity{
		ID:                      r.ID,
		Title:                   r.Title,
		Description:             r.Description,
		Department:              r.Department,
		OpportunityType:         domain.OpportunityType(r.OpportunityType),
		EligibilityRequirements: r.EligibilityRequirements,
		Deadline:                r.Deadline,
		FundingAmount:           r.FundingAmount,
		ApplicationURL:          r.ApplicationURL,
		SourceURL:               r.SourceURL,
		ContactEmail:            r.ContactEmail,
		Tags:                    []string(r.Tags),
		ContentFingerprint:      r.ContentFingerprint,
		SimilarityGroup:         r.SimilarityGroup,
		Status:                  domain.Status(r.Status),
		ConsecutiveMissingCount: r.ConsecutiveMissingCount,
		IsActive:                r.IsActive,
		FirstSeenAt:             r.FirstSeenAt,
		LastSeenAt:              r.LastSeenAt,
		LastUpdatedAt:           r.LastUpdatedAt,
		ScrapedAt:               r.ScrapedAt,
		ExtractorUsed:           r.ExtractorUsed,
		InferenceParsed:         r.InferenceParsed,
		ParsingConfidence:       r.ParsingConfidence,
		InferenceError:          r.InferenceError,
	}
	if r.ProcessedAt.Valid {
		at := r.ProcessedAt.Time
		o.ProcessedAt = &at
	}
	return o
}

func toDomainList(rows []opportunityRow) []domain.Opportunity {
	out := make([]domain.Opportunity, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toDomain())
	}
	return out
}

// OpportunityRepository stores reconciled opportunities. It is the
// reconcile.Store used when PostgreSQL is enabled.
type OpportunityRepository struct {
	db *sqlx.DB
}

// NewOpportunityRepository creates a new opportunity repository.
func NewOpportunityRepository(db *sqlx.DB) *OpportunityRepository {
	return &OpportunityRepository{db: db}
}

var _ reconcile.Store = (*OpportunityRepository)(nil)

// Begin implements reconcile.Store.
func (r *OpportunityRepository) Begin(ctx context.Context) (reconcile.Tx, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return &opportunityTx{tx: tx}, nil
}

// GetByID retrieves an opportunity by its ID.
func (r *OpportunityRepository) GetByID(ctx context.Context, id string) (*domain.Opportunity, error) {
	var row opportunityRow
	query := `SELECT ` + opportunityColumns + ` FROM opportunities WHERE id = $1`

	if err := r.db.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("opportunity %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get opportunity: %w", err)
	}

	o := row.toDomain()
	return &o, nil
}

// RecentNew returns active opportunities first seen at or after since,
// newest first. A limit of zero returns everything.
func (r *OpportunityRepository) RecentNew(ctx context.Context, since time.Time, limit int) ([]domain.Opportunity, error) {
	query := `
		SELECT ` + opportunityColumns + `
		FROM opportunities
		WHERE first_seen_at >= $1
		  AND status IN ('new', 'active')
		  AND is_active
		ORDER BY first_seen_at DESC, id`
	args := []any{since}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	var rows []opportunityRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list recent opportunities: %w", err)
	}
	return toDomainList(rows), nil
}

// DeleteInactiveBefore removes inactive opportunities last scraped before
// cutoff and returns how many were deleted.
func (r *OpportunityRepository) DeleteInactiveBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM opportunities WHERE is_active = FALSE AND scraped_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete inactive opportunities: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}

type opportunityTx struct {
	tx *sqlx.Tx
}

// ListBySource locks the source's rows until the transaction ends.
func (t *opportunityTx) ListBySource(ctx context.Context, sourceURL string) ([]domain.Opportunity, error) {
	query := `
		SELECT ` + opportunityColumns + `
		FROM opportunities
		WHERE source_url = $1
		ORDER BY first_seen_at, id
		FOR UPDATE`

	var rows []opportunityRow
	if err := t.tx.SelectContext(ctx, &rows, query, sourceURL); err != nil {
		return nil, fmt.Errorf("failed to list opportunities: %w", err)
	}
	return toDomainList(rows), nil
}

func (t *opportunityTx) Insert(ctx context.Context, o *domain.Opportunity) error {
	query := `
		INSERT INTO opportunities (` + opportunityColumns + `)
		VALUES (
			:id, :title, :description, :department, :opportunity_type, :eligibility_requirements,
			:deadline, :funding_amount, :application_url, :source_url, :contact_email, :tags,
			:content_fingerprint, :similarity_group, :status, :consecutive_missing_count, :is_active,
			:first_seen_at, :last_seen_at, :last_updated_at, :scraped_at,
			:extractor_used, :inference_parsed, :parsing_confidence, :inference_error, :processed_at
		)`

	if _, err := t.tx.NamedExecContext(ctx, query, toRow(o)); err != nil {
		return fmt.Errorf("failed to insert opportunity: %w", err)
	}
	return nil
}

func (t *opportunityTx) Update(ctx context.Context, o *domain.Opportunity) error {
	query := `
		UPDATE opportunities SET
			title = :title,
			description = :description,
			department = :department,
			opportunity_type = :opportunity_type,
			eligibility_requirements = :eligibility_requirements,
			deadline = :deadline,
			funding_amount = :funding_amount,
			application_url = :application_url,
			contact_email = :contact_email,
			tags = :tags,
			content_fingerprint = :content_fingerprint,
			status = :status,
			consecutive_missing_count = :consecutive_missing_count,
			is_active = :is_active,
			last_seen_at = :last_seen_at,
			last_updated_at = :last_updated_at,
			scraped_at = :scraped_at,
			extractor_used = :extractor_used,
			inference_parsed = :inference_parsed,
			parsing_confidence = :parsing_confidence,
			inference_error = :inference_error,
			processed_at = :processed_at
		WHERE id = :id`

	result, err := t.tx.NamedExecContext(ctx, query, toRow(o))
	if err != nil {
		return fmt.Errorf("failed to update opportunity: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("opportunity %s: %w", o.ID, ErrNotFound)
	}
	return nil
}

func (t *opportunityTx) Commit() error {
	if err := t.tx.Commit(); err != nil {
		if errors.Is(err, sql.ErrTxDone) {
			return reconcile.ErrTxDone
		}
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

func (t *opportunityTx) Rollback() error {
	if err := t.tx.Rollback(); err != nil {
		if errors.Is(err, sql.ErrTxDone) {
			return reconcile.ErrTxDone
		}
		return fmt.Errorf("failed to rollback: %w", err)
	}
	return nil
}
