package fetcher

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/temoto/robotstxt"
)

const (
	defaultRobotsTTL   = 24 * time.Hour
	maxRobotsBodyBytes = 512 * 1024
)

// RobotsPolicy answers robots.txt questions for crawl targets.
type RobotsPolicy interface {
	Allowed(ctx context.Context, target *url.URL) bool
	CrawlDelay(host string) time.Duration
}

// RobotsChecker fetches and caches robots.txt per host. A missing,
// unreadable or non-2xx robots.txt allows everything.
type RobotsChecker struct {
	client    *http.Client
	userAgent string
	ttl       time.Duration
	now       func() time.Time

	mu      sync.Mutex
	entries map[string]robotsEntry
}

type robotsEntry struct {
	group     *robotstxt.Group
	expiresAt time.Time
}

// NewRobotsChecker returns a checker using client for robots.txt requests.
func NewRobotsChecker(client *http.Client, userAgent string, ttl time.Duration) *RobotsChecker {
	if ttl <= 0 {
		ttl = defaultRobotsTTL
	}
	return &RobotsChecker{
		client:    client,
		userAgent: userAgent,
		ttl:       ttl,
		now:       time.Now,
		entries:   make(map[string]robotsEntry),
	}
}

// Allowed reports whether the configured user agent may fetch target.
func (r *RobotsChecker) Allowed(ctx context.Context, target *url.URL) bool {
	group := r.group(ctx, target)
	if group == nil {
		return true
	}
	path := target.EscapedPath()
	if target.RawQuery != "" {
		path += "?" + target.RawQuery
	}
	return group.Test(path)
}

// CrawlDelay returns the cached Crawl-delay for host, or zero.
func (r *RobotsChecker) CrawlDelay(host string) time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[strings.ToLower(host)]
	if !ok || entry.group == nil {
		return 0
	}
	return entry.group.CrawlDelay
}

func (r *RobotsChecker) group(ctx context.Context, target *url.URL) *robotstxt.Group {
	host := strings.ToLower(target.Host)

	r.mu.Lock()
	entry, ok := r.entries[host]
	r.mu.Unlock()
	if ok && r.now().Before(entry.expiresAt) {
		return entry.group
	}

	group := r.load(ctx, target.Scheme, host)

	r.mu.Lock()
	r.entries[host] = robotsEntry{group: group, expiresAt: r.now().Add(r.ttl)}
	r.mu.Unlock()

	return group
}

// load returns nil (allow all) on any failure.
func (r *RobotsChecker) load(ctx context.Context, scheme, host string) *robotstxt.Group {
	if scheme == "" {
		scheme = "https"
	}
	robotsURL := scheme + "://" + host + "/robots.txt"

	body, statusCode, fetchErr := r.download(ctx, robotsURL)
	if fetchErr != nil || statusCode < http.StatusOK || statusCode >= http.StatusMultipleChoices {
		return nil
	}

	data, parseErr := robotstxt.FromBytes(body)
	if parseErr != nil {
		return nil
	}
	return data.FindGroup(r.userAgent)
}

func (r *RobotsChecker) download(ctx context.Context, robotsURL string) (body []byte, statusCode int, err error) {
	req, reqErr := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, http.NoBody)
	if reqErr != nil {
		return nil, 0, fmt.Errorf("robots: create request: %w", reqErr)
	}
	req.Header.Set("User-Agent", r.userAgent)

	resp, doErr := r.client.Do(req) //nolint:gosec // URL built from crawl target
	if doErr != nil {
		return nil, 0, fmt.Errorf("robots: fetch: %w", doErr)
	}
	defer resp.Body.Close()

	body, readErr := io.ReadAll(io.LimitReader(resp.Body, maxRobotsBodyBytes))
	if readErr != nil {
		return nil, resp.StatusCode, fmt.Errorf("robots: read body: %w", readErr)
	}
	return body, resp.StatusCode, nil
}
