package heuristic

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"

	"github.com/jonesrussell/re-search/internal/domain"
	"github.com/jonesrussell/re-search/internal/logger"
	"github.com/jonesrussell/re-search/internal/normalize"
)

var promisingKeywords = []string{
	"apply", "application", "deadline", "form", "submit",
	"opportunity", "position", "internship", "fellowship",
	"program", "research", "project", "stipend", "funding",
}

// Link is a sub-page candidate found on a source page.
type Link struct {
	URL  string
	Text string
}

// Subpage is a fetched linked page.
type Subpage struct {
	Link Link
	HTML string
}

// SubpageCrawler fetches linked pages one level deep.
type SubpageCrawler interface {
	Crawl(ctx context.Context, links []Link) []Subpage
}

// subpages follows promising same-site links and mines them for forms,
// deadlines and funding mentions.
func (e *Extractor) subpages(ctx context.Context, s *scan) []domain.Candidate {
	if e.opts.Subpages == nil || s.base == nil {
		return nil
	}

	links := promisingLinks(s.doc, s.base, e.opts.MaxLinks)
	if len(links) > e.opts.MaxSubpages {
		links = links[:e.opts.MaxSubpages]
	}
	if len(links) == 0 {
		return nil
	}

	var out []domain.Candidate
	for _, sp := range e.opts.Subpages.Crawl(ctx, links) {
		out = append(out, s.fromSubpage(sp)...)
	}
	return out
}

// promisingLinks ranks anchors whose text or title mentions an opportunity
// keyword, restricted to the source site and excluding the page itself.
func promisingLinks(doc *goquery.Document, base *url.URL, limit int) []Link {
	self := resolve(base, base.String())
	seen := map[string]struct{}{self: {}}

	var links []Link
	doc.Find("a[href]").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		href, _ := a.Attr("href")
		if strings.HasPrefix(strings.ToLower(strings.TrimSpace(href)), "mailto:") {
			return true
		}
		text := blockText(a)
		title, _ := a.Attr("title")
		probe := strings.ToLower(text + " " + title)
		if !containsAny(probe, promisingKeywords) {
			return true
		}

		abs := resolve(base, href)
		if abs == "" {
			return true
		}
		if _, dup := seen[abs]; dup {
			return true
		}
		target, err := url.Parse(abs)
		if err != nil || !sameSite(base.Hostname(), target.Hostname()) {
			return true
		}

		seen[abs] = struct{}{}
		links = append(links, Link{URL: abs, Text: text})
		return len(links) < limit
	})
	return links
}

// sameSite compares the last two host labels, so lab.example.edu and
// www.example.edu belong together.
func sameSite(a, b string) bool {
	return siteOf(a) == siteOf(b)
}

func siteOf(host string) string {
	labels := strings.Split(strings.ToLower(host), ".")
	if len(labels) <= 2 {
		return strings.Join(labels, ".")
	}
	return strings.Join(labels[len(labels)-2:], ".")
}

func (s *scan) fromSubpage(sp Subpage) []domain.Candidate {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(sp.HTML))
	if err != nil {
		return nil
	}
	pageURL, _ := url.Parse(sp.Link.URL)
	label := sp.Link.Text
	if label == "" {
		label = sp.Link.URL
	}
	opportunityType := normalize.ClassifyType(label, "")

	var out []domain.Candidate
	doc.Find("form[action]").Each(func(_ int, form *goquery.Selection) {
		action, _ := form.Attr("action")
		abs := resolve(pageURL, action)
		if abs == "" {
			return
		}
		c := s.candidate(label+" - Application Form", "Direct application form for "+label)
		c.OpportunityType = opportunityType
		c.ApplicationURL = abs
		c.Tags = normalize.MergeTags(c.Tags, []string{"application", "form", "direct"})
		out = append(out, c)
	})

	text := blockText(doc.Selection)

	if phrase := deadlineText(text); phrase != "" {
		if deadline, ok := normalize.ExtractDeadline(phrase); ok {
			c := s.candidate(label, "Research opportunity with specific deadline: "+phrase)
			c.OpportunityType = opportunityType
			c.ApplicationURL = sp.Link.URL
			c.Deadline = deadline
			c.Tags = normalize.MergeTags(c.Tags, []string{"deadline", "specific"})
			out = append(out, c)
		}
	}

	if funding := fundingFrom(text); funding != "" {
		c := s.candidate(label, "Funded research opportunity: "+funding)
		c.OpportunityType = opportunityType
		c.ApplicationURL = sp.Link.URL
		c.FundingAmount = funding
		c.Tags = normalize.MergeTags(c.Tags, []string{"funded", "specific"})
		out = append(out, c)
	}

	return out
}

// CollyConfig configures the colly-backed sub-page crawler.
type CollyConfig struct {
	UserAgent      string
	RequestTimeout time.Duration
	// Delay is the pause after each request when no Gate is set.
	Delay time.Duration
	// Allowed filters URLs before they are requested (robots.txt, for example).
	Allowed func(ctx context.Context, target *url.URL) bool
	// Gate, when set, is held around each request. Its release starts the
	// host's politeness gap, shared with the main page fetcher.
	Gate func(ctx context.Context, target *url.URL) (release func(), err error)
}

const defaultSubpageTimeout = 15 * time.Second

// CollyCrawler fetches sub-pages one at a time with a fresh depth-1 colly
// collector per call. Colly's visited set prevents fetching a URL twice
// within one call.
type CollyCrawler struct {
	cfg CollyConfig
	log logger.Logger
}

// NewCollyCrawler builds a CollyCrawler.
func NewCollyCrawler(cfg CollyConfig, log logger.Logger) *CollyCrawler {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultSubpageTimeout
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &CollyCrawler{cfg: cfg, log: log.With(logger.Component("subpages"))}
}

// Crawl implements SubpageCrawler. Failed pages are logged and skipped.
func (c *CollyCrawler) Crawl(ctx context.Context, links []Link) []Subpage {
	collector, err := c.newCollector(ctx)
	if err != nil {
		c.log.Error("Create sub-page collector failed", logger.Error(err))
		return nil
	}

	byURL := make(map[string]Link, len(links))
	for _, l := range links {
		byURL[l.URL] = l
	}

	var (
		mu    sync.Mutex
		pages []Subpage
	)
	collector.OnResponse(func(r *colly.Response) {
		if r.StatusCode != http.StatusOK {
			return
		}
		link, ok := byURL[r.Request.URL.String()]
		if !ok {
			link = Link{URL: r.Request.URL.String()}
		}
		mu.Lock()
		pages = append(pages, Subpage{Link: link, HTML: string(r.Body)})
		mu.Unlock()
	})
	collector.OnError(func(r *colly.Response, visitErr error) {
		c.log.Debug("Sub-page fetch failed",
			logger.URL(r.Request.URL.String()),
			logger.Int("status", r.StatusCode),
			logger.Error(visitErr),
		)
	})

	for _, l := range links {
		target, parseErr := url.Parse(l.URL)
		if parseErr != nil {
			continue
		}
		if c.cfg.Allowed != nil && !c.cfg.Allowed(ctx, target) {
			continue
		}
		if visitErr := c.visit(ctx, collector, target); visitErr != nil {
			if ctx.Err() != nil {
				break
			}
			c.log.Debug("Sub-page visit skipped", logger.URL(l.URL), logger.Error(visitErr))
		}
	}

	return pages
}

// visit requests target synchronously, inside the host gate when one is set.
func (c *CollyCrawler) visit(ctx context.Context, collector *colly.Collector, target *url.URL) error {
	if c.cfg.Gate != nil {
		release, err := c.cfg.Gate(ctx, target)
		if err != nil {
			return err
		}
		defer release()
	}
	return collector.Visit(target.String())
}

func (c *CollyCrawler) newCollector(ctx context.Context) (*colly.Collector, error) {
	opts := []colly.CollectorOption{
		colly.StdlibContext(ctx),
		colly.MaxDepth(1),
		colly.IgnoreRobotsTxt(),
	}
	if c.cfg.UserAgent != "" {
		opts = append(opts, colly.UserAgent(c.cfg.UserAgent))
	}

	collector := colly.NewCollector(opts...)
	collector.SetRequestTimeout(c.cfg.RequestTimeout)

	if err := collector.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: 1,
		Delay:       c.cfg.Delay,
	}); err != nil {
		return nil, fmt.Errorf("set sub-page limit: %w", err)
	}
	return collector, nil
}
