package extraction_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/re-search/internal/config"
	"github.com/jonesrussell/re-search/internal/domain"
	"github.com/jonesrussell/re-search/internal/extraction"
	"github.com/jonesrussell/re-search/internal/logger"
)

type fakeExtractor struct {
	name       string
	candidates []domain.Candidate
	err        error
	calls      atomic.Int32
}

func (f *fakeExtractor) Name() string { return f.name }

func (f *fakeExtractor) Extract(context.Context, *extraction.Page) ([]domain.Candidate, error) {
	f.calls.Add(1)
	return f.candidates, f.err
}

type fakeInferrer struct {
	result extraction.InferenceResult
	calls  atomic.Int32
}

func (f *fakeInferrer) Infer(context.Context, *extraction.Page) extraction.InferenceResult {
	f.calls.Add(1)
	return f.result
}

func newRegistry(t *testing.T, def, shallow extraction.Extractor) *extraction.Registry {
	t.Helper()

	sources := config.NewSourceTable([]config.SourceConfig{
		{Host: "careers.example.org", Extractor: config.ExtractorProfileShallow},
		{Host: "example.edu", Name: "Example"},
	}, config.SourceConfig{Name: "generic"})

	reg, err := extraction.NewRegistry(sources, map[string]extraction.Extractor{
		config.ExtractorProfileDefault: def,
		config.ExtractorProfileShallow: shallow,
	}, config.ExtractorProfileDefault)
	require.NoError(t, err)
	return reg
}

func heuristicCandidates() []domain.Candidate {
	return []domain.Candidate{{Title: "Lab Internship", ExtractorUsed: domain.ExtractorHeuristic}}
}

func TestNewRegistry_RequiresDefaultProfile(t *testing.T) {
	t.Parallel()

	sources := config.NewSourceTable(nil, config.SourceConfig{})
	_, err := extraction.NewRegistry(sources, map[string]extraction.Extractor{}, config.ExtractorProfileDefault)
	require.Error(t, err)
}

func TestRegistry_ResolvesProfilePerHost(t *testing.T) {
	t.Parallel()

	def := &fakeExtractor{name: "default"}
	shallow := &fakeExtractor{name: "shallow"}
	reg := newRegistry(t, def, shallow)

	tests := []struct {
		url      string
		wantName string
		wantExt  string
	}{
		{url: "https://careers.example.org/jobs", wantExt: "shallow"},
		{url: "https://cs.example.edu/research", wantName: "Example", wantExt: "default"},
		{url: "https://unknown.org/", wantName: "generic", wantExt: "default"},
	}
	for _, tt := range tests {
		src := reg.Source(tt.url)
		if tt.wantName != "" {
			assert.Equal(t, tt.wantName, src.Name, tt.url)
		}
		assert.Equal(t, tt.wantExt, reg.Extractor(&src).Name(), tt.url)
	}
}

func TestPipeline_UsesInferenceWhenOK(t *testing.T) {
	t.Parallel()

	def := &fakeExtractor{name: domain.ExtractorHeuristic, candidates: heuristicCandidates()}
	inferrer := &fakeInferrer{result: extraction.InferenceResult{
		Outcome:    extraction.OutcomeOK,
		Candidates: []domain.Candidate{{Title: "Inferred Fellowship", ExtractorUsed: domain.ExtractorInference}},
		Attempts:   1,
	}}
	p := extraction.NewPipeline(newRegistry(t, def, def), inferrer, logger.NewNop())

	res, err := p.Extract(context.Background(), &extraction.Page{URL: "https://cs.example.edu/"})
	require.NoError(t, err)

	assert.True(t, res.InferenceUsed)
	assert.Equal(t, domain.ExtractorInference, res.ExtractorUsed)
	assert.Equal(t, extraction.OutcomeOK, res.InferenceOutcome)
	require.Len(t, res.Candidates, 1)
	assert.Equal(t, "Inferred Fellowship", res.Candidates[0].Title)
	assert.Zero(t, def.calls.Load(), "heuristic must not run when inference succeeds")
}

func TestPipeline_FallsBackOnEveryFailureOutcome(t *testing.T) {
	t.Parallel()

	outcomes := []extraction.Outcome{
		extraction.OutcomeBudgetExceeded,
		extraction.OutcomeParseError,
		extraction.OutcomeTimeout,
		extraction.OutcomeUnavailable,
		extraction.OutcomeSkipped,
	}
	for _, outcome := range outcomes {
		t.Run(string(outcome), func(t *testing.T) {
			t.Parallel()

			def := &fakeExtractor{name: domain.ExtractorHeuristic, candidates: heuristicCandidates()}
			inferrer := &fakeInferrer{result: extraction.InferenceResult{
				Outcome: outcome,
				Err:     errors.New("inference failed"),
			}}
			p := extraction.NewPipeline(newRegistry(t, def, def), inferrer, logger.NewNop())

			res, err := p.Extract(context.Background(), &extraction.Page{URL: "https://cs.example.edu/"})
			require.NoError(t, err)

			assert.False(t, res.InferenceUsed)
			assert.Equal(t, outcome, res.InferenceOutcome)
			assert.Equal(t, domain.ExtractorHeuristic, res.ExtractorUsed)
			assert.Len(t, res.Candidates, 1)
			assert.EqualValues(t, 1, def.calls.Load())
		})
	}
}

func TestPipeline_EmptyInferenceResultFallsBack(t *testing.T) {
	t.Parallel()

	def := &fakeExtractor{name: domain.ExtractorHeuristic, candidates: heuristicCandidates()}
	inferrer := &fakeInferrer{result: extraction.InferenceResult{Outcome: extraction.OutcomeOK}}
	p := extraction.NewPipeline(newRegistry(t, def, def), inferrer, logger.NewNop())

	res, err := p.Extract(context.Background(), &extraction.Page{URL: "https://cs.example.edu/"})
	require.NoError(t, err)
	assert.False(t, res.InferenceUsed)
	assert.Equal(t, domain.ExtractorHeuristic, res.ExtractorUsed)
}

func TestPipeline_SourceOptOutSkipsInference(t *testing.T) {
	t.Parallel()

	def := &fakeExtractor{name: domain.ExtractorHeuristic, candidates: heuristicCandidates()}
	inferrer := &fakeInferrer{result: extraction.InferenceResult{Outcome: extraction.OutcomeOK}}
	p := extraction.NewPipeline(newRegistry(t, def, def), inferrer, logger.NewNop())

	optOut := false
	page := &extraction.Page{
		URL:    "https://cs.example.edu/",
		Source: config.SourceConfig{UseInference: &optOut},
	}
	res, err := p.Extract(context.Background(), page)
	require.NoError(t, err)

	assert.Zero(t, inferrer.calls.Load())
	assert.Equal(t, extraction.OutcomeDisabled, res.InferenceOutcome)
	assert.Equal(t, domain.ExtractorHeuristic, res.ExtractorUsed)
}

func TestPipeline_NilInferrer(t *testing.T) {
	t.Parallel()

	def := &fakeExtractor{name: domain.ExtractorHeuristic, candidates: heuristicCandidates()}
	p := extraction.NewPipeline(newRegistry(t, def, def), nil, logger.NewNop())

	res, err := p.Extract(context.Background(), &extraction.Page{URL: "https://cs.example.edu/"})
	require.NoError(t, err)
	assert.Equal(t, extraction.OutcomeDisabled, res.InferenceOutcome)
	assert.Len(t, res.Candidates, 1)
}

func TestPipeline_HeuristicErrorSurfaces(t *testing.T) {
	t.Parallel()

	def := &fakeExtractor{name: domain.ExtractorHeuristic, err: errors.New("bad html")}
	p := extraction.NewPipeline(newRegistry(t, def, def), nil, logger.NewNop())

	_, err := p.Extract(context.Background(), &extraction.Page{URL: "https://cs.example.edu/"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad html")
}
