// Package fetcher retrieves crawl targets over HTTP with retries, robots.txt
// compliance, per-host politeness and an optional headless render mode that
// falls back to plain retrieval when the browser is unavailable.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jonesrussell/re-search/internal/logger"
	"github.com/jonesrussell/re-search/internal/retry"
)

const (
	statusServerErrLow   = 500
	maxResponseBodyBytes = 10 * 1024 * 1024 // 10 MB
)

// Config configures a Fetcher.
type Config struct {
	UserAgent      string
	RequestTimeout time.Duration
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	// DefaultDelay is the politeness gap for hosts without a configured delay.
	DefaultDelay  time.Duration
	RespectRobots bool
	RenderEnabled bool
}

// Page is the raw content of one fetched URL.
type Page struct {
	URL        string
	FinalURL   string
	StatusCode int
	HTML       string
	Rendered   bool
	Attempts   int
	FetchedAt  time.Time
}

// Fetcher retrieves pages. Safe for concurrent use.
type Fetcher struct {
	cfg        Config
	client     *http.Client
	robots     RobotsPolicy
	renderer   Renderer
	politeness *Politeness
	hostDelay  func(host string) time.Duration
	sleep      func(ctx context.Context, d time.Duration) error
	log        logger.Logger
}

// Option customises a Fetcher.
type Option func(*Fetcher)

// WithHTTPClient replaces the default client.
func WithHTTPClient(c *http.Client) Option {
	return func(f *Fetcher) { f.client = c }
}

// WithRobots sets the robots.txt policy; it is consulted only when
// Config.RespectRobots is true.
func WithRobots(r RobotsPolicy) Option {
	return func(f *Fetcher) { f.robots = r }
}

// WithRenderer enables render mode with r.
func WithRenderer(r Renderer) Option {
	return func(f *Fetcher) { f.renderer = r }
}

// WithHostDelay resolves the configured politeness delay per host. A zero
// result means Config.DefaultDelay.
func WithHostDelay(fn func(host string) time.Duration) Option {
	return func(f *Fetcher) { f.hostDelay = fn }
}

// WithPoliteness shares a gate set between fetchers.
func WithPoliteness(p *Politeness) Option {
	return func(f *Fetcher) { f.politeness = p }
}

// WithSleep replaces the backoff sleep between attempts.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(f *Fetcher) { f.sleep = fn }
}

// New builds a Fetcher.
func New(cfg Config, log logger.Logger, opts ...Option) *Fetcher {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	if log == nil {
		log = logger.NewNop()
	}
	f := &Fetcher{
		cfg:        cfg,
		client:     &http.Client{Timeout: cfg.RequestTimeout},
		politeness: NewPoliteness(),
		sleep:      retry.Sleep,
		log:        log.With(logger.Component("fetcher")),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch retrieves rawURL. When render is true and a renderer is configured
// the page is rendered first; a render failure falls back to plain HTTP.
// Errors are always *FetchError.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string, render bool) (*Page, error) {
	target, parseErr := url.Parse(rawURL)
	if parseErr != nil || (target.Scheme != "http" && target.Scheme != "https") || target.Host == "" {
		return nil, &FetchError{Kind: KindInvalidURL, URL: rawURL, Message: "absolute http(s) URL required", Err: parseErr}
	}

	if f.cfg.RespectRobots && f.robots != nil && !f.robots.Allowed(ctx, target) {
		return nil, &FetchError{Kind: KindRobotsBlocked, URL: rawURL, Message: "disallowed by robots.txt"}
	}

	if render && f.cfg.RenderEnabled && f.renderer != nil {
		page, renderErr := f.render(ctx, target)
		if renderErr == nil {
			return page, nil
		}
		f.log.Warn("Render failed, falling back to plain fetch",
			logger.URL(rawURL),
			logger.Error(renderErr),
		)
	}

	return f.fetchPlain(ctx, target)
}

func (f *Fetcher) render(ctx context.Context, target *url.URL) (*Page, error) {
	release, err := f.politeness.Acquire(ctx, target.Host)
	if err != nil {
		return nil, err
	}
	defer func() { release(f.delayFor(target)) }()

	html, err := f.renderer.Render(ctx, target.String())
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(html) == "" {
		return nil, errors.New("renderer returned empty document")
	}

	return &Page{
		URL:        target.String(),
		FinalURL:   target.String(),
		StatusCode: http.StatusOK,
		HTML:       html,
		Rendered:   true,
		Attempts:   1,
		FetchedAt:  time.Now().UTC(),
	}, nil
}

func (f *Fetcher) fetchPlain(ctx context.Context, target *url.URL) (*Page, error) {
	var page *Page

	policy := retry.Policy{
		MaxAttempts:  f.cfg.MaxAttempts,
		InitialDelay: f.cfg.InitialBackoff,
		MaxDelay:     f.cfg.MaxBackoff,
		Sleep:        f.sleep,
		OnRetry: func(attempt int, delay time.Duration, err error) {
			f.log.Info("Retrying fetch",
				logger.URL(target.String()),
				logger.Int("attempt", attempt),
				logger.Duration("backoff", delay),
				logger.Error(err),
			)
		},
	}

	err := retry.Do(ctx, policy, func(ctx context.Context, attempt int) error {
		p, attemptErr := f.attempt(ctx, target)
		if attemptErr != nil {
			return attemptErr
		}
		p.Attempts = attempt
		page = p
		return nil
	})
	if err == nil {
		return page, nil
	}

	var fetchErr *FetchError
	if errors.As(err, &fetchErr) {
		return nil, fetchErr
	}
	return nil, classifyTransportError(target.String(), err)
}

// attempt performs one GET inside the host's politeness gate.
func (f *Fetcher) attempt(ctx context.Context, target *url.URL) (*Page, error) {
	release, gateErr := f.politeness.Acquire(ctx, target.Host)
	if gateErr != nil {
		return nil, classifyTransportError(target.String(), gateErr)
	}
	defer func() { release(f.delayFor(target)) }()

	attemptCtx := ctx
	if f.cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, f.cfg.RequestTimeout)
		defer cancel()
	}

	req, reqErr := http.NewRequestWithContext(attemptCtx, http.MethodGet, target.String(), http.NoBody)
	if reqErr != nil {
		return nil, &FetchError{Kind: KindInvalidURL, URL: target.String(), Message: "create request", Err: reqErr}
	}
	req.Header.Set("User-Agent", f.cfg.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8")

	resp, doErr := f.client.Do(req) //nolint:gosec // URL comes from crawl configuration
	if doErr != nil {
		return nil, classifyTransportError(target.String(), doErr)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBodyBytes))
		return nil, statusError(target.String(), resp.StatusCode)
	}

	body, readErr := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodyBytes))
	if readErr != nil {
		return nil, &FetchError{
			Kind:       KindRead,
			URL:        target.String(),
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("read response body: %v", readErr),
			Err:        readErr,
		}
	}

	return &Page{
		URL:        target.String(),
		FinalURL:   resp.Request.URL.String(),
		StatusCode: resp.StatusCode,
		HTML:       string(body),
		FetchedAt:  time.Now().UTC(),
	}, nil
}

// Hold waits for target's host gate outside of Fetch. The returned release
// starts the host's politeness gap, so callers that make their own requests
// to a source host stay paced with the fetcher.
func (f *Fetcher) Hold(ctx context.Context, target *url.URL) (release func(), err error) {
	rel, err := f.politeness.Acquire(ctx, target.Host)
	if err != nil {
		return nil, err
	}
	return func() { rel(f.delayFor(target)) }, nil
}

// delayFor is the larger of the configured host delay and robots Crawl-delay.
func (f *Fetcher) delayFor(target *url.URL) time.Duration {
	delay := f.cfg.DefaultDelay
	if f.hostDelay != nil {
		if d := f.hostDelay(target.Hostname()); d > 0 {
			delay = d
		}
	}
	if f.cfg.RespectRobots && f.robots != nil {
		if d := f.robots.CrawlDelay(target.Host); d > delay {
			delay = d
		}
	}
	return delay
}
