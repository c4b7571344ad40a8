package fetcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"github.com/jonesrussell/re-search/internal/retry"
)

// ErrRendererClosed is returned by Render after Close.
var ErrRendererClosed = errors.New("renderer closed")

// Renderer produces the post-JavaScript HTML of a page.
type Renderer interface {
	Render(ctx context.Context, pageURL string) (string, error)
}

const maxRenderTabs = 2

var skippedResources = []proto.NetworkResourceType{
	proto.NetworkResourceTypeImage,
	proto.NetworkResourceTypeFont,
	proto.NetworkResourceTypeMedia,
}

// RodRenderer drives a headless Chromium through Rod. The browser is
// launched on first use so hosts that never need rendering pay nothing.
type RodRenderer struct {
	settle  time.Duration
	timeout time.Duration
	tabs    chan struct{}

	mu      sync.Mutex
	browser *rod.Browser
	closed  bool
}

// NewRodRenderer returns a lazily started renderer. settle is the pause after
// the load event before the DOM is captured.
func NewRodRenderer(settle, timeout time.Duration) *RodRenderer {
	return &RodRenderer{
		settle:  settle,
		timeout: timeout,
		tabs:    make(chan struct{}, maxRenderTabs),
	}
}

// Render navigates to pageURL, waits for the load event plus the settle
// delay and returns the document HTML.
func (r *RodRenderer) Render(ctx context.Context, pageURL string) (string, error) {
	browser, err := r.ensureBrowser()
	if err != nil {
		return "", err
	}

	select {
	case r.tabs <- struct{}{}:
		defer func() { <-r.tabs }()
	case <-ctx.Done():
		return "", ctx.Err()
	}

	page, err := stealth.Page(browser)
	if err != nil {
		return "", fmt.Errorf("create tab: %w", err)
	}
	defer page.Close()

	renderCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	page = page.Context(renderCtx)

	router := page.HijackRequests()
	for _, rt := range skippedResources {
		_ = router.Add("*", rt, func(h *rod.Hijack) {
			h.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
		})
	}
	go router.Run()
	defer func() { _ = router.Stop() }()

	if navErr := page.Navigate(pageURL); navErr != nil {
		return "", fmt.Errorf("navigate to %s: %w", pageURL, navErr)
	}
	if loadErr := page.WaitLoad(); loadErr != nil {
		return "", fmt.Errorf("wait for load %s: %w", pageURL, loadErr)
	}
	if sleepErr := retry.Sleep(renderCtx, r.settle); sleepErr != nil {
		return "", fmt.Errorf("settle %s: %w", pageURL, sleepErr)
	}

	html, err := page.HTML()
	if err != nil {
		return "", fmt.Errorf("read HTML from %s: %w", pageURL, err)
	}
	return html, nil
}

// Close shuts the browser down if it was started.
func (r *RodRenderer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.closed = true
	if r.browser == nil {
		return nil
	}
	err := r.browser.Close()
	r.browser = nil
	return err
}

func (r *RodRenderer) ensureBrowser() (*rod.Browser, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, ErrRendererClosed
	}
	if r.browser != nil {
		return r.browser, nil
	}

	controlURL, err := launcher.New().
		Headless(true).
		Set("disable-gpu").
		Set("no-sandbox").
		Set("disable-dev-shm-usage").
		Launch()
	if err != nil {
		return nil, fmt.Errorf("launch headless browser: %w", err)
	}

	browser := rod.New().ControlURL(controlURL)
	if connectErr := browser.Connect(); connectErr != nil {
		return nil, fmt.Errorf("connect to headless browser: %w", connectErr)
	}
	r.browser = browser
	return browser, nil
}
