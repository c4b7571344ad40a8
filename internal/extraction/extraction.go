// Package extraction turns fetched pages into candidate opportunity records.
// It owns the per-host extractor dispatch table and the pipeline that prefers
// the inference extractor and falls back to the heuristic one.
package extraction

import (
	"context"

	"github.com/jonesrussell/re-search/internal/config"
	"github.com/jonesrussell/re-search/internal/domain"
)

// Page is a fetched document handed to extractors.
type Page struct {
	// URL is the configured crawl target; candidates carry it as source URL.
	URL string
	// FinalURL is the URL after redirects, used to resolve relative links.
	FinalURL string
	HTML     string
	Rendered bool
	Source   config.SourceConfig
}

// BaseURL is the URL relative links on the page resolve against.
func (p *Page) BaseURL() string {
	if p.FinalURL != "" {
		return p.FinalURL
	}
	return p.URL
}

// Extractor produces candidates from a page.
type Extractor interface {
	Name() string
	Extract(ctx context.Context, page *Page) ([]domain.Candidate, error)
}

// Outcome tags the result of an inference extraction attempt loop.
type Outcome string

// Inference outcomes. Anything other than OutcomeOK sends the page to the
// heuristic extractor.
const (
	OutcomeOK             Outcome = "ok"
	OutcomeBudgetExceeded Outcome = "budget_exceeded"
	OutcomeParseError     Outcome = "parse_error"
	OutcomeTimeout        Outcome = "timeout"
	OutcomeUnavailable    Outcome = "unavailable"
	OutcomeSkipped        Outcome = "skipped"
	OutcomeDisabled       Outcome = "disabled"
)

// InferenceResult is the tagged result of an inference extraction.
type InferenceResult struct {
	Outcome    Outcome
	Candidates []domain.Candidate
	// Attempts is the number of remote calls made.
	Attempts int
	// Quality is the share of candidates that passed the quality validator.
	Quality float64
	Err     error
}

// Inferrer is the primary, budgeted extractor.
type Inferrer interface {
	Infer(ctx context.Context, page *Page) InferenceResult
}
