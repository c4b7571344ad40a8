package heuristic_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonesrussell/re-search/internal/heuristic"
	"github.com/jonesrussell/re-search/internal/logger"
)

func newSubpageServer(t *testing.T, hits *atomic.Int32) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/apply", func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<html><body><form action="/apply/submit"></form></body></html>`)
	})
	mux.HandleFunc("/missing", func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		http.NotFound(w, nil)
	})
	mux.HandleFunc("/blocked", func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		fmt.Fprint(w, `<html></html>`)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestCollyCrawler_FetchesOKPagesOnly(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := newSubpageServer(t, &hits)

	crawler := heuristic.NewCollyCrawler(heuristic.CollyConfig{
		UserAgent:      "TestBot/1.0",
		RequestTimeout: 5 * time.Second,
	}, logger.NewNop())

	links := []heuristic.Link{
		{URL: srv.URL + "/apply", Text: "Apply"},
		{URL: srv.URL + "/missing", Text: "Missing program"},
		{URL: srv.URL + "/apply", Text: "Apply again"},
	}
	pages := crawler.Crawl(context.Background(), links)

	if len(pages) != 1 {
		t.Fatalf("expected 1 page, got %d", len(pages))
	}
	if pages[0].Link.URL != srv.URL+"/apply" {
		t.Errorf("page URL = %q", pages[0].Link.URL)
	}
	if got := hits.Load(); got != 2 {
		t.Errorf("server hits = %d, want 2 (duplicate visit skipped)", got)
	}
}

func TestCollyCrawler_AllowedFilter(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := newSubpageServer(t, &hits)

	crawler := heuristic.NewCollyCrawler(heuristic.CollyConfig{
		Allowed: func(_ context.Context, target *url.URL) bool {
			return target.Path != "/blocked"
		},
	}, logger.NewNop())

	pages := crawler.Crawl(context.Background(), []heuristic.Link{
		{URL: srv.URL + "/blocked", Text: "Blocked program"},
	})
	if len(pages) != 0 {
		t.Errorf("expected no pages, got %d", len(pages))
	}
	if hits.Load() != 0 {
		t.Errorf("blocked URL was requested")
	}
}

func TestExtract_WithCollyCrawler(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := newSubpageServer(t, &hits)

	page := testPage(`<html><body><a href="/apply">Apply to the program</a></body></html>`)
	page.URL = srv.URL + "/programs"

	crawler := heuristic.NewCollyCrawler(heuristic.CollyConfig{RequestTimeout: 5 * time.Second}, logger.NewNop())
	ext := heuristic.New(heuristic.Options{Subpages: crawler}, logger.NewNop())

	got, err := ext.Extract(context.Background(), page)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}

	c, ok := findByTitle(got, "Apply to the program - Application Form")
	if !ok {
		t.Fatalf("expected form candidate, got %+v", got)
	}
	if c.ApplicationURL != srv.URL+"/apply/submit" {
		t.Errorf("ApplicationURL = %q", c.ApplicationURL)
	}
}

func TestCollyCrawler_RequestsInsideGate(t *testing.T) {
	t.Parallel()

	var (
		held      atomic.Bool
		ungated   atomic.Int32
		holds     atomic.Int32
		releases  atomic.Int32
		hostsSeen = make(chan string, 4)
	)
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		if !held.Load() {
			ungated.Add(1)
		}
		fmt.Fprint(w, `<html><body><p>Deadline: March 1, 2025</p></body></html>`)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	crawler := heuristic.NewCollyCrawler(heuristic.CollyConfig{
		RequestTimeout: 5 * time.Second,
		Gate: func(_ context.Context, target *url.URL) (func(), error) {
			if !held.CompareAndSwap(false, true) {
				t.Errorf("gate acquired twice for %s", target)
			}
			holds.Add(1)
			hostsSeen <- target.Host
			return func() {
				held.Store(false)
				releases.Add(1)
			}, nil
		},
	}, logger.NewNop())

	pages := crawler.Crawl(context.Background(), []heuristic.Link{
		{URL: srv.URL + "/apply", Text: "Apply"},
		{URL: srv.URL + "/deadlines", Text: "Program deadlines"},
		{URL: srv.URL + "/funding", Text: "Funding"},
	})
	close(hostsSeen)

	if len(pages) != 3 {
		t.Fatalf("expected 3 pages, got %d", len(pages))
	}
	if got := ungated.Load(); got != 0 {
		t.Errorf("%d requests made outside the gate", got)
	}
	if holds.Load() != 3 || releases.Load() != 3 {
		t.Errorf("holds = %d, releases = %d, want 3 each", holds.Load(), releases.Load())
	}
	for host := range hostsSeen {
		if host != srv.Listener.Addr().String() {
			t.Errorf("gate host = %q", host)
		}
	}
}

func TestCollyCrawler_GateErrorSkipsRequest(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := newSubpageServer(t, &hits)

	crawler := heuristic.NewCollyCrawler(heuristic.CollyConfig{
		Gate: func(context.Context, *url.URL) (func(), error) {
			return nil, context.Canceled
		},
	}, logger.NewNop())

	pages := crawler.Crawl(context.Background(), []heuristic.Link{{URL: srv.URL + "/apply", Text: "Apply"}})
	if len(pages) != 0 {
		t.Errorf("expected no pages, got %d", len(pages))
	}
	if hits.Load() != 0 {
		t.Errorf("server hit %d times", hits.Load())
	}
}
