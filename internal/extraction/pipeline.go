package extraction

import (
	"context"
	"fmt"

	"github.com/jonesrussell/re-search/internal/domain"
	"github.com/jonesrussell/re-search/internal/logger"
)

// Result is what the pipeline produced for one page.
type Result struct {
	Candidates    []domain.Candidate
	ExtractorUsed string
	InferenceUsed bool
	// InferenceOutcome is empty when inference was not attempted at all.
	InferenceOutcome Outcome
}

// Pipeline runs inference first and falls back to the page's heuristic
// extractor on any non-ok outcome.
type Pipeline struct {
	registry *Registry
	inferrer Inferrer
	log      logger.Logger
}

// NewPipeline builds a Pipeline. A nil inferrer disables the inference tier.
func NewPipeline(registry *Registry, inferrer Inferrer, log logger.Logger) *Pipeline {
	if log == nil {
		log = logger.NewNop()
	}
	return &Pipeline{
		registry: registry,
		inferrer: inferrer,
		log:      log.With(logger.Component("extraction")),
	}
}

// Extract returns candidates for page. An error means the heuristic fallback
// itself could not process the document.
func (p *Pipeline) Extract(ctx context.Context, page *Page) (Result, error) {
	res := Result{}

	switch {
	case p.inferrer == nil:
		res.InferenceOutcome = OutcomeDisabled
	case !page.Source.InferenceAllowed():
		res.InferenceOutcome = OutcomeDisabled
	default:
		inferred := p.inferrer.Infer(ctx, page)
		res.InferenceOutcome = inferred.Outcome
		if inferred.Outcome == OutcomeOK && len(inferred.Candidates) > 0 {
			res.Candidates = inferred.Candidates
			res.ExtractorUsed = domain.ExtractorInference
			res.InferenceUsed = true
			return res, nil
		}
		if inferred.Outcome != OutcomeSkipped {
			fields := []logger.Field{
				logger.URL(page.URL),
				logger.String("outcome", string(inferred.Outcome)),
				logger.Int("attempts", inferred.Attempts),
			}
			if inferred.Err != nil {
				fields = append(fields, logger.Error(inferred.Err))
			}
			p.log.Info("Falling back to heuristic extraction", fields...)
		}
	}

	heuristic := p.registry.Extractor(&page.Source)
	candidates, err := heuristic.Extract(ctx, page)
	if err != nil {
		return res, fmt.Errorf("heuristic extract %s: %w", page.URL, err)
	}

	res.Candidates = candidates
	res.ExtractorUsed = heuristic.Name()
	return res, nil
}
