package fetcher_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonesrussell/re-search/internal/fetcher"
	"github.com/jonesrussell/re-search/internal/logger"
)

const (
	testUserAgent = "TestBot/1.0"
	testPageHTML  = "<html><body><h1>Summer Research</h1></body></html>"
)

// noSleep records backoff delays without waiting.
type noSleep struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *noSleep) sleep(_ context.Context, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delays = append(s.delays, d)
	return nil
}

func (s *noSleep) recorded() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.delays...)
}

type fakeRenderer struct {
	html  string
	err   error
	calls atomic.Int32
}

func (r *fakeRenderer) Render(_ context.Context, _ string) (string, error) {
	r.calls.Add(1)
	return r.html, r.err
}

type fakeRobots struct {
	allowed bool
	delay   time.Duration
}

func (r fakeRobots) Allowed(context.Context, *url.URL) bool { return r.allowed }
func (r fakeRobots) CrawlDelay(string) time.Duration     { return r.delay }

func newTestFetcher(cfg fetcher.Config, opts ...fetcher.Option) *fetcher.Fetcher {
	if cfg.UserAgent == "" {
		cfg.UserAgent = testUserAgent
	}
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.InitialBackoff == 0 {
		cfg.InitialBackoff = 4 * time.Second
		cfg.MaxBackoff = 10 * time.Second
	}
	return fetcher.New(cfg, logger.NewNop(), opts...)
}

func TestFetch_Success(t *testing.T) {
	t.Parallel()

	var gotUA string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.UserAgent()
		_, _ = w.Write([]byte(testPageHTML))
	}))
	defer server.Close()

	f := newTestFetcher(fetcher.Config{})
	page, err := f.Fetch(context.Background(), server.URL+"/programs", false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if page.HTML != testPageHTML {
		t.Errorf("HTML = %q", page.HTML)
	}
	if page.Attempts != 1 || page.Rendered {
		t.Errorf("Attempts = %d, Rendered = %v", page.Attempts, page.Rendered)
	}
	if gotUA != testUserAgent {
		t.Errorf("User-Agent = %q, want %q", gotUA, testUserAgent)
	}
}

func TestFetch_RetriesServerErrorsWithBackoff(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(testPageHTML))
	}))
	defer server.Close()

	sleeper := &noSleep{}
	f := newTestFetcher(fetcher.Config{}, fetcher.WithSleep(sleeper.sleep))

	page, err := f.Fetch(context.Background(), server.URL, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if page.Attempts != 3 {
		t.Errorf("Attempts = %d, want 3", page.Attempts)
	}
	delays := sleeper.recorded()
	if len(delays) != 2 || delays[0] != 4*time.Second || delays[1] != 8*time.Second {
		t.Errorf("backoff delays = %v, want [4s 8s]", delays)
	}
}

func TestFetch_ExhaustedServerErrors(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	sleeper := &noSleep{}
	f := newTestFetcher(fetcher.Config{}, fetcher.WithSleep(sleeper.sleep))

	_, err := f.Fetch(context.Background(), server.URL, false)

	var fetchErr *fetcher.FetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("expected *FetchError, got %v", err)
	}
	if fetchErr.Kind != fetcher.KindServerError || fetchErr.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("got kind %s status %d", fetchErr.Kind, fetchErr.StatusCode)
	}
	if hits.Load() != 3 {
		t.Errorf("hits = %d, want 3", hits.Load())
	}
}

func TestFetch_ClientErrorNotRetried(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	f := newTestFetcher(fetcher.Config{}, fetcher.WithSleep((&noSleep{}).sleep))

	_, err := f.Fetch(context.Background(), server.URL, false)

	var fetchErr *fetcher.FetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("expected *FetchError, got %v", err)
	}
	if fetchErr.Kind != fetcher.KindHTTPStatus || fetchErr.Retryable() {
		t.Errorf("kind = %s retryable = %v", fetchErr.Kind, fetchErr.Retryable())
	}
	if hits.Load() != 1 {
		t.Errorf("hits = %d, want 1", hits.Load())
	}
}

func TestFetch_TooManyRequestsRetried(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(testPageHTML))
	}))
	defer server.Close()

	f := newTestFetcher(fetcher.Config{}, fetcher.WithSleep((&noSleep{}).sleep))
	if _, err := f.Fetch(context.Background(), server.URL, false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if hits.Load() != 2 {
		t.Errorf("hits = %d, want 2", hits.Load())
	}
}

func TestFetch_TimeoutSurfacesAsTimeout(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	f := newTestFetcher(fetcher.Config{RequestTimeout: 50 * time.Millisecond, MaxAttempts: 2},
		fetcher.WithSleep((&noSleep{}).sleep))

	_, err := f.Fetch(context.Background(), server.URL, false)

	var fetchErr *fetcher.FetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("expected *FetchError, got %v", err)
	}
	if fetchErr.Kind != fetcher.KindTimeout {
		t.Errorf("kind = %s, want timeout", fetchErr.Kind)
	}
}

func TestFetch_InvalidURL(t *testing.T) {
	t.Parallel()

	f := newTestFetcher(fetcher.Config{})
	_, err := f.Fetch(context.Background(), "mailto:someone@example.edu", false)

	var fetchErr *fetcher.FetchError
	if !errors.As(err, &fetchErr) || fetchErr.Kind != fetcher.KindInvalidURL {
		t.Fatalf("expected invalid_url error, got %v", err)
	}
}

func TestFetch_RobotsBlocked(t *testing.T) {
	t.Parallel()

	f := newTestFetcher(fetcher.Config{RespectRobots: true}, fetcher.WithRobots(fakeRobots{allowed: false}))
	_, err := f.Fetch(context.Background(), "https://blocked.example.edu/page", false)

	var fetchErr *fetcher.FetchError
	if !errors.As(err, &fetchErr) || fetchErr.Kind != fetcher.KindRobotsBlocked {
		t.Fatalf("expected robots_blocked error, got %v", err)
	}
}

func TestFetch_RenderMode(t *testing.T) {
	t.Parallel()

	renderer := &fakeRenderer{html: "<html><body>rendered</body></html>"}
	f := newTestFetcher(fetcher.Config{RenderEnabled: true}, fetcher.WithRenderer(renderer))

	page, err := f.Fetch(context.Background(), "https://careers.example.org/jobs", true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !page.Rendered || renderer.calls.Load() != 1 {
		t.Errorf("Rendered = %v, calls = %d", page.Rendered, renderer.calls.Load())
	}
}

func TestFetch_RenderFailureFallsBack(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(testPageHTML))
	}))
	defer server.Close()

	renderer := &fakeRenderer{err: errors.New("chromium not installed")}
	f := newTestFetcher(fetcher.Config{RenderEnabled: true}, fetcher.WithRenderer(renderer))

	page, err := f.Fetch(context.Background(), server.URL, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if page.Rendered || page.HTML != testPageHTML {
		t.Errorf("expected plain fallback, got rendered=%v html=%q", page.Rendered, page.HTML)
	}
}

func TestFetch_RenderDisabledSkipsRenderer(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(testPageHTML))
	}))
	defer server.Close()

	renderer := &fakeRenderer{html: "<html>rendered</html>"}
	f := newTestFetcher(fetcher.Config{RenderEnabled: false}, fetcher.WithRenderer(renderer))

	if _, err := f.Fetch(context.Background(), server.URL, true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if renderer.calls.Load() != 0 {
		t.Errorf("renderer called %d times with render disabled", renderer.calls.Load())
	}
}

func TestFetch_PolitenessDelayBetweenRequests(t *testing.T) {
	t.Parallel()

	const delay = 80 * time.Millisecond

	var (
		mu    sync.Mutex
		times []time.Time
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		mu.Lock()
		times = append(times, time.Now())
		mu.Unlock()
		_, _ = w.Write([]byte(testPageHTML))
	}))
	defer server.Close()

	f := newTestFetcher(fetcher.Config{DefaultDelay: delay})

	for range 2 {
		if _, err := f.Fetch(context.Background(), server.URL, false); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	mu.Lock()
	defer mu.Unlock()
	if len(times) != 2 {
		t.Fatalf("requests = %d, want 2", len(times))
	}
	if gap := times[1].Sub(times[0]); gap < delay {
		t.Errorf("gap between requests = %v, want >= %v", gap, delay)
	}
}

func TestFetch_RobotsCrawlDelayIsFloor(t *testing.T) {
	t.Parallel()

	const crawlDelay = 60 * time.Millisecond

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(testPageHTML))
	}))
	defer server.Close()

	f := newTestFetcher(fetcher.Config{RespectRobots: true, DefaultDelay: time.Millisecond},
		fetcher.WithRobots(fakeRobots{allowed: true, delay: crawlDelay}))

	start := time.Now()
	for range 2 {
		if _, err := f.Fetch(context.Background(), server.URL, false); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if elapsed := time.Since(start); elapsed < crawlDelay {
		t.Errorf("elapsed = %v, want >= %v", elapsed, crawlDelay)
	}
}

func TestHold_SharesHostGapWithFetch(t *testing.T) {
	t.Parallel()

	const delay = 60 * time.Millisecond

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(testPageHTML))
	}))
	defer server.Close()

	f := newTestFetcher(fetcher.Config{DefaultDelay: time.Millisecond},
		fetcher.WithHostDelay(func(string) time.Duration { return delay }))

	target, err := url.Parse(server.URL + "/apply")
	if err != nil {
		t.Fatal(err)
	}
	release, err := f.Hold(context.Background(), target)
	if err != nil {
		t.Fatalf("hold: %v", err)
	}
	released := time.Now()
	release()

	if _, err = f.Fetch(context.Background(), server.URL, false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gap := time.Since(released); gap < delay {
		t.Errorf("fetch started %v after release, want >= %v", gap, delay)
	}
}

func TestHold_CancelledWhileHostBusy(t *testing.T) {
	t.Parallel()

	f := newTestFetcher(fetcher.Config{})
	target, _ := url.Parse("https://science.example.edu/programs")

	release, err := f.Hold(context.Background(), target)
	if err != nil {
		t.Fatalf("hold: %v", err)
	}
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err = f.Hold(ctx, target); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want deadline exceeded", err)
	}
}
