package heuristic

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/jonesrussell/re-search/internal/normalize"
)

const (
	maxTitleRunes       = 100
	maxDescriptionRunes = 500
	maxBlockSnippet     = 300
)

var (
	applyHrefKeywords = []string{"apply", "application", "form"}

	deadlineTextPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)deadline[:\s]*([^.]*(?:january|february|march|april|may|june|july|august|september|october|november|december)[^.]*)`),
		regexp.MustCompile(`(?i)due[:\s]*([^.]*\d{1,2}/\d{1,2}/\d{4}[^.]*)`),
		regexp.MustCompile(`(?i)apply by[:\s]*([^.]*)`),
		regexp.MustCompile(`(?i)application deadline[:\s]*([^.]*)`),
		regexp.MustCompile(`(?i)submissions? due[:\s]*([^.]*)`),
	}

	fundingTextPatterns = []*regexp.Regexp{
		regexp.MustCompile(`\$\s?([0-9][0-9,]*(?:\.[0-9]{2})?)`),
		regexp.MustCompile(`(?i)stipend[:\s]*\$?([0-9][0-9,]*)`),
		regexp.MustCompile(`(?i)funding[:\s]*\$?([0-9][0-9,]*)`),
		regexp.MustCompile(`(?i)award[:\s]*\$?([0-9][0-9,]*)`),
	}

	titleNoisePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)^skip to.*?content\s*`),
		regexp.MustCompile(`(?i)^navigate to\s*`),
		regexp.MustCompile(`(?i)\s*skip to main content\s*`),
	}
)

// blockText is the whitespace-normalized text of s.
func blockText(s *goquery.Selection) string {
	return normalize.CleanText(s.Text())
}

// titleFromBlock prefers the first heading, then strong/bold text, then the
// first sentence of the block.
func titleFromBlock(s *goquery.Selection) string {
	if h := s.Find("h1, h2, h3, h4, h5, h6").First(); h.Length() > 0 {
		if t := blockText(h); t != "" {
			return t
		}
	}
	if b := s.Find("strong, b").First(); b.Length() > 0 {
		if t := blockText(b); t != "" {
			return t
		}
	}
	text := blockText(s)
	if i := strings.Index(text, "."); i >= 0 {
		text = text[:i]
	}
	return strings.TrimSpace(text)
}

// cleanTitle caps a title at a sentence or clause boundary near 100 runes and
// strips skip-link noise.
func cleanTitle(title string) string {
	title = strings.TrimSpace(title)
	for _, re := range titleNoisePatterns {
		title = re.ReplaceAllString(title, "")
	}
	title = normalize.CleanText(title)

	runes := []rune(title)
	if len(runes) <= maxTitleRunes {
		return title
	}

	head := string(runes[:maxTitleRunes])
	const minCut = 50
	if i := strings.Index(head[min(minCut, len(head)):], "."); i >= 0 {
		return strings.TrimSpace(head[:minCut+i+1])
	}
	if i := strings.Index(head[min(minCut, len(head)):], ","); i >= 0 {
		return strings.TrimSpace(head[:minCut+i])
	}
	return head + "..."
}

// snippet truncates text to n runes, appending an ellipsis when cut.
func snippet(text string, n int) string {
	if len([]rune(text)) <= n {
		return text
	}
	return normalize.Truncate(text, n) + "..."
}

// deadlineText returns the phrase following a deadline marker in text.
func deadlineText(text string) string {
	for _, re := range deadlineTextPatterns {
		if m := re.FindStringSubmatch(text); m != nil {
			return strings.TrimSpace(m[1])
		}
	}
	return ""
}

// deadlineFrom finds a deadline marker in text and parses the date behind it.
func deadlineFrom(text string) string {
	phrase := deadlineText(text)
	if phrase == "" {
		return ""
	}
	d, _ := normalize.ExtractDeadline(phrase)
	return d
}

// fundingFrom returns the first funding amount in text as "$X".
func fundingFrom(text string) string {
	for _, re := range fundingTextPatterns {
		if m := re.FindStringSubmatch(text); m != nil {
			return "$" + m[1]
		}
	}
	return ""
}

// applicationLink returns the first absolute link inside s whose href
// contains one of keywords.
func applicationLink(s *goquery.Selection, base *url.URL, keywords []string) (href, text string) {
	s.Find("a[href]").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		raw, _ := a.Attr("href")
		if !containsAny(strings.ToLower(raw), keywords) {
			return true
		}
		if abs := resolve(base, raw); abs != "" {
			href, text = abs, blockText(a)
			return false
		}
		return true
	})
	return href, text
}

// resolve makes raw absolute against base. Non-http(s) results are dropped.
func resolve(base *url.URL, raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.HasPrefix(strings.ToLower(raw), "javascript:") {
		return ""
	}
	ref, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	abs := ref
	if base != nil {
		abs = base.ResolveReference(ref)
	}
	if abs.Scheme != "http" && abs.Scheme != "https" {
		return ""
	}
	abs.Fragment = ""
	return abs.String()
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}
