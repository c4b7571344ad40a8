// Package heuristic extracts opportunity candidates straight from page markup
// with a fixed chain of DOM strategies. It is the fallback for the inference
// extractor and never depends on any remote service other than the source
// site itself.
package heuristic

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/jonesrussell/re-search/internal/domain"
	"github.com/jonesrussell/re-search/internal/extraction"
	"github.com/jonesrussell/re-search/internal/logger"
	"github.com/jonesrussell/re-search/internal/normalize"
)

// Name is the extractor name recorded as provenance.
const Name = domain.ExtractorHeuristic

// Options configures an Extractor.
type Options struct {
	// Subpages fetches linked pages for the sub-page strategy. Nil disables it.
	Subpages SubpageCrawler
	// MaxLinks caps the ranked link list; MaxSubpages caps how many are fetched.
	MaxLinks    int
	MaxSubpages int
}

const (
	defaultMaxLinks    = 10
	defaultMaxSubpages = 5
)

// Extractor runs the heuristic strategies in order and returns the filtered,
// deduplicated union of their results.
type Extractor struct {
	opts       Options
	strategies []strategy
	log        logger.Logger
}

type strategy struct {
	name string
	run  func(ctx context.Context, s *scan) []domain.Candidate
}

// New builds an Extractor.
func New(opts Options, log logger.Logger) *Extractor {
	if opts.MaxLinks <= 0 {
		opts.MaxLinks = defaultMaxLinks
	}
	if opts.MaxSubpages <= 0 {
		opts.MaxSubpages = defaultMaxSubpages
	}
	if log == nil {
		log = logger.NewNop()
	}

	e := &Extractor{opts: opts, log: log.With(logger.Component("heuristic"))}
	e.strategies = []strategy{
		{name: "direct_blocks", run: directBlocks},
		{name: "deadline_and_apply_links", run: deadlineAndApplyBlocks},
		{name: "subpages", run: e.subpages},
		{name: "structured_content", run: structuredContent},
		{name: "embedded_content", run: embeddedContent},
	}
	return e
}

// Name implements extraction.Extractor.
func (e *Extractor) Name() string { return Name }

// Extract implements extraction.Extractor. A strategy that panics contributes
// no candidates; the remaining strategies still run.
func (e *Extractor) Extract(ctx context.Context, page *extraction.Page) ([]domain.Candidate, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page.HTML))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	base, _ := url.Parse(page.BaseURL())
	s := &scan{
		doc:        doc,
		page:       page,
		base:       base,
		department: departmentFor(page),
	}

	var all []domain.Candidate
	for _, st := range e.strategies {
		if ctx.Err() != nil {
			break
		}
		found := e.runStrategy(ctx, st, s)
		e.log.Debug("Heuristic strategy finished",
			logger.URL(page.URL),
			logger.String("strategy", st.name),
			logger.Int("candidates", len(found)),
		)
		all = append(all, found...)
	}

	return FilterAndDedupe(all), nil
}

func (e *Extractor) runStrategy(ctx context.Context, st strategy, s *scan) (found []domain.Candidate) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error("Heuristic strategy panicked",
				logger.URL(s.page.URL),
				logger.String("strategy", st.name),
				logger.Any("panic", r),
			)
			found = nil
		}
	}()
	return st.run(ctx, s)
}

// scan is the per-page state shared by strategies.
type scan struct {
	doc        *goquery.Document
	page       *extraction.Page
	base       *url.URL
	department string
}

// candidate fills the fields every heuristic candidate shares.
func (s *scan) candidate(title, description string) domain.Candidate {
	title = cleanTitle(title)
	description = normalize.CleanText(description)
	return domain.Candidate{
		Title:           title,
		Description:     description,
		Department:      s.department,
		OpportunityType: normalize.ClassifyType(title, description),
		SourceURL:       s.page.URL,
		Tags:            normalize.ExtractTags(title, description),
		ExtractorUsed:   Name,
	}
}

// departmentFor uses the configured department, falling back to the source name.
func departmentFor(page *extraction.Page) string {
	if d := strings.TrimSpace(page.Source.Department); d != "" {
		return d
	}
	return strings.TrimSpace(page.Source.Name)
}
