package inference

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jonesrussell/re-search/internal/circuitbreaker"
	"github.com/jonesrussell/re-search/internal/config"
	"github.com/jonesrussell/re-search/internal/logger"
)

// ErrNoMatches is returned when there is nothing to summarize.
var ErrNoMatches = errors.New("no matching opportunities")

const summaryMaxTokens = 300

// Summarizer produces the short natural-language explanation shown alongside
// search results. It shares the daily budget with the extractor.
type Summarizer struct {
	provider Provider
	budget   Budget
	breaker  *circuitbreaker.Breaker
	model    string
	timeout  time.Duration
	log      logger.Logger
}

// NewSummarizer builds a Summarizer. breaker may be nil.
func NewSummarizer(provider Provider, budget Budget, breaker *circuitbreaker.Breaker, cfg Config, log logger.Logger) *Summarizer {
	if log == nil {
		log = logger.NewNop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = config.DefaultInferenceTimeout
	}
	return &Summarizer{
		provider: provider,
		budget:   budget,
		breaker:  breaker,
		model:    cfg.Model,
		timeout:  timeout,
		log:      log.With(logger.Component("summarizer")),
	}
}

// ExplainMatches returns a 2-3 sentence explanation of why titles match query.
func (s *Summarizer) ExplainMatches(ctx context.Context, query string, titles []string) (string, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return "", errors.New("query is required")
	}
	if len(titles) == 0 {
		return "", ErrNoMatches
	}

	if s.breaker != nil {
		if err := s.breaker.Allow(); err != nil {
			return "", err
		}
	}

	allowed, err := s.budget.TryAcquire(ctx)
	if err != nil {
		return "", fmt.Errorf("acquire budget: %w", err)
	}
	if !allowed {
		return "", ErrBudgetExceeded
	}

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	text, err := s.provider.Complete(callCtx, CompletionRequest{
		Model:       s.model,
		System:      summarySystem,
		Prompt:      summaryPrompt(query, titles),
		Temperature: 0.3,
		MaxTokens:   summaryMaxTokens,
	})
	if s.breaker != nil && ctx.Err() == nil {
		s.breaker.Record(err)
	}
	if err != nil {
		s.log.Warn("Search summary failed", logger.String("query", query), logger.Error(err))
		return "", fmt.Errorf("explain matches: %w", err)
	}

	return strings.TrimSpace(text), nil
}
