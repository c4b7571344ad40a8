package inference

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/jonesrussell/re-search/internal/circuitbreaker"
	"github.com/jonesrussell/re-search/internal/config"
	"github.com/jonesrussell/re-search/internal/domain"
	"github.com/jonesrussell/re-search/internal/extraction"
	"github.com/jonesrussell/re-search/internal/logger"
	"github.com/jonesrussell/re-search/internal/retry"
)

// Config tunes the attempt loop.
type Config struct {
	Model             string
	Temperature       float64
	MaxTokens         int
	Timeout           time.Duration
	MaxRetries        int
	RetryDelay        time.Duration
	SampleRate        float64
	RequestsPerMinute int
	MaxPromptChars    int
	// QualityThreshold is the flagged share above which a batch is retried.
	QualityThreshold float64
}

// ConfigFrom maps the service configuration onto an extractor Config.
func ConfigFrom(cfg *config.InferenceConfig) Config {
	return Config{
		Model:             cfg.Model,
		Temperature:       cfg.Temperature,
		MaxTokens:         cfg.MaxTokens,
		Timeout:           cfg.Timeout,
		MaxRetries:        cfg.MaxRetries,
		RetryDelay:        cfg.RetryDelay,
		SampleRate:        cfg.SampleRate,
		RequestsPerMinute: cfg.RequestsPerMinute,
		MaxPromptChars:    cfg.MaxPromptChars,
		QualityThreshold:  config.DefaultQualityThreshold,
	}
}

// Observer receives per-call outcomes, used for metrics.
type Observer interface {
	ObserveInferenceCall(provider string, err error, d time.Duration)
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithBreaker guards provider calls with a circuit breaker.
func WithBreaker(b *circuitbreaker.Breaker) Option {
	return func(e *Extractor) { e.breaker = b }
}

// WithLimiter overrides the rate limiter derived from RequestsPerMinute.
func WithLimiter(l *rate.Limiter) Option {
	return func(e *Extractor) { e.limiter = l }
}

// WithRandom replaces the sampling source, for tests.
func WithRandom(fn func() float64) Option {
	return func(e *Extractor) { e.random = fn }
}

// WithSleep replaces the retry sleep, for tests.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(e *Extractor) { e.sleep = fn }
}

// WithObserver reports each provider call.
func WithObserver(o Observer) Option {
	return func(e *Extractor) { e.observer = o }
}

// Extractor is the budgeted inference extractor. It implements
// extraction.Inferrer and never returns an error: every failure is a tagged
// outcome the pipeline branches on.
type Extractor struct {
	provider Provider
	budget   Budget
	cfg      Config
	breaker  *circuitbreaker.Breaker
	limiter  *rate.Limiter
	random   func() float64
	sleep    func(ctx context.Context, d time.Duration) error
	observer Observer
	log      logger.Logger
}

// NewExtractor builds an Extractor.
func NewExtractor(provider Provider, budget Budget, cfg Config, log logger.Logger, opts ...Option) *Extractor {
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = config.DefaultInferenceTimeout
	}
	if cfg.QualityThreshold <= 0 {
		cfg.QualityThreshold = config.DefaultQualityThreshold
	}
	if log == nil {
		log = logger.NewNop()
	}

	e := &Extractor{
		provider: provider,
		budget:   budget,
		cfg:      cfg,
		random:   rand.Float64,
		sleep:    retry.Sleep,
		log:      log.With(logger.Component("inference"), logger.String("provider", provider.Name())),
	}
	if cfg.RequestsPerMinute > 0 {
		e.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RequestsPerMinute)), 1)
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Infer implements extraction.Inferrer.
func (e *Extractor) Infer(ctx context.Context, page *extraction.Page) extraction.InferenceResult {
	if e.cfg.SampleRate < 1 && e.random() >= e.cfg.SampleRate {
		return extraction.InferenceResult{Outcome: extraction.OutcomeSkipped}
	}

	content, err := CleanPage(page.HTML, e.cfg.MaxPromptChars)
	if err != nil {
		return extraction.InferenceResult{Outcome: extraction.OutcomeParseError, Err: err}
	}
	if strings.TrimSpace(content) == "" {
		return extraction.InferenceResult{Outcome: extraction.OutcomeSkipped}
	}

	department := page.Source.Department
	if department == "" {
		department = page.Source.Name
	}
	req := CompletionRequest{
		Model:       e.cfg.Model,
		System:      extractionSystem,
		Prompt:      extractionPrompt(page.URL, department, content),
		Temperature: e.cfg.Temperature,
		MaxTokens:   e.cfg.MaxTokens,
	}

	res := extraction.InferenceResult{}
	var delay time.Duration

	for attempt := 0; attempt <= e.cfg.MaxRetries; attempt++ {
		if attempt > 0 && delay > 0 {
			if sleepErr := e.sleep(ctx, delay); sleepErr != nil {
				res.Outcome, res.Err = extraction.OutcomeTimeout, sleepErr
				return res
			}
		}

		if stop, ok := e.admit(ctx, &res); !ok {
			return stop
		}

		raw, timedOut, callErr := e.call(ctx, req)
		res.Attempts++

		if callErr != nil {
			res.Err = callErr
			res.Outcome = extraction.OutcomeUnavailable
			if timedOut {
				res.Outcome = extraction.OutcomeTimeout
			}
			if ctx.Err() != nil {
				return res
			}
			e.log.Warn("Inference call failed",
				logger.URL(page.URL),
				logger.Int("attempt", attempt+1),
				logger.Bool("timed_out", timedOut),
				logger.Error(callErr),
			)
			delay = e.cfg.RetryDelay * time.Duration(attempt+1)
			continue
		}

		candidates, parseErr := e.parse(raw, page, department)
		if parseErr != nil {
			res.Outcome, res.Err = extraction.OutcomeParseError, parseErr
			e.log.Warn("Inference output unparseable",
				logger.URL(page.URL),
				logger.Int("attempt", attempt+1),
				logger.Error(parseErr),
			)
			delay = e.cfg.RetryDelay * time.Duration(attempt+1)
			continue
		}

		report := CheckQuality(candidates)
		if report.Ratio() > e.cfg.QualityThreshold {
			if attempt < e.cfg.MaxRetries {
				e.log.Info("Inference output below quality bar, retrying",
					logger.URL(page.URL),
					logger.Int("attempt", attempt+1),
					logger.Float64("flagged_ratio", report.Ratio()),
					logger.Strings("issues", report.Issues),
				)
				delay = e.cfg.RetryDelay / 2 * time.Duration(attempt+1)
				continue
			}
			e.log.Warn("Accepting low quality inference output",
				logger.URL(page.URL),
				logger.Float64("flagged_ratio", report.Ratio()),
				logger.Strings("issues", report.Issues),
			)
		}

		score := report.Score()
		for i := range candidates {
			candidates[i].ParsingConfidence = score
		}
		return extraction.InferenceResult{
			Outcome:    extraction.OutcomeOK,
			Candidates: candidates,
			Attempts:   res.Attempts,
			Quality:    score,
		}
	}

	return res
}

// admit checks the breaker, the daily budget and the rate limiter, in that
// order. When the call may not proceed it returns the terminal result.
func (e *Extractor) admit(ctx context.Context, res *extraction.InferenceResult) (extraction.InferenceResult, bool) {
	if e.breaker != nil {
		if err := e.breaker.Allow(); err != nil {
			return extraction.InferenceResult{Outcome: extraction.OutcomeUnavailable, Attempts: res.Attempts, Err: err}, false
		}
	}

	allowed, err := e.budget.TryAcquire(ctx)
	if err != nil {
		return extraction.InferenceResult{
			Outcome:  extraction.OutcomeUnavailable,
			Attempts: res.Attempts,
			Err:      fmt.Errorf("acquire budget: %w", err),
		}, false
	}
	if !allowed {
		return extraction.InferenceResult{Outcome: extraction.OutcomeBudgetExceeded, Attempts: res.Attempts, Err: ErrBudgetExceeded}, false
	}

	if e.limiter != nil {
		if waitErr := e.limiter.Wait(ctx); waitErr != nil {
			return extraction.InferenceResult{Outcome: extraction.OutcomeTimeout, Attempts: res.Attempts, Err: waitErr}, false
		}
	}
	return extraction.InferenceResult{}, true
}

// call makes one provider call bounded by the per-call timeout.
func (e *Extractor) call(ctx context.Context, req CompletionRequest) (raw string, timedOut bool, err error) {
	callCtx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	start := time.Now()
	raw, err = e.provider.Complete(callCtx, req)
	timedOut = err != nil && errors.Is(callCtx.Err(), context.DeadlineExceeded)

	if e.breaker != nil && ctx.Err() == nil {
		e.breaker.Record(err)
	}
	if e.observer != nil {
		e.observer.ObserveInferenceCall(e.provider.Name(), err, time.Since(start))
	}
	return raw, timedOut, err
}

func (e *Extractor) parse(raw string, page *extraction.Page, department string) ([]domain.Candidate, error) {
	items, err := ParseCandidates(raw)
	if err != nil {
		return nil, err
	}

	base := page.BaseURL()
	candidates := make([]domain.Candidate, 0, len(items))
	for _, item := range items {
		c, ok := toCandidate(item, page.URL, department)
		if !ok {
			continue
		}
		c.ApplicationURL = absoluteURL(base, c.ApplicationURL)
		candidates = append(candidates, c)
	}
	return candidates, nil
}

// absoluteURL resolves raw against base; anything that is not http(s)
// afterwards is dropped.
func absoluteURL(base, raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	ref, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	if b, baseErr := url.Parse(base); baseErr == nil {
		ref = b.ResolveReference(ref)
	}
	if ref.Scheme != "http" && ref.Scheme != "https" {
		return ""
	}
	return ref.String()
}
