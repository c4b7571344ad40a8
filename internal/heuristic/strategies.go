package heuristic

import (
	"context"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/jonesrussell/re-search/internal/domain"
	"github.com/jonesrussell/re-search/internal/normalize"
)

var directBlockSelectors = []string{
	".opportunity", ".program", ".position", ".internship",
	".research-project", ".project", ".fellowship",
	".vacancy", ".opening", ".application", ".deadline",
	`[class*="opportunity"]`, `[class*="program"]`, `[class*="apply"]`,
	".content", ".main-content", ".page-content",
}

// directBlocks scans containers whose class marks them as an opportunity,
// program or position, plus any selectors configured for the source.
func directBlocks(_ context.Context, s *scan) []domain.Candidate {
	selectors := append(append([]string(nil), directBlockSelectors...), s.page.Source.Selectors...)

	var out []domain.Candidate
	for _, sel := range selectors {
		s.doc.Find(sel).Each(func(_ int, el *goquery.Selection) {
			if c, ok := s.fromElement(el); ok {
				out = append(out, c)
			}
		})
	}
	return out
}

func (s *scan) fromElement(el *goquery.Selection) (domain.Candidate, bool) {
	title := titleFromBlock(el)
	if title == "" {
		return domain.Candidate{}, false
	}

	text := blockText(el)
	c := s.candidate(title, snippet(text, maxDescriptionRunes))
	c.ApplicationURL, _ = applicationLink(el, s.base, applyHrefKeywords)
	c.Deadline = deadlineFrom(text)
	c.FundingAmount = fundingFrom(text)
	if email, ok := normalize.ExtractEmail(text); ok {
		c.ContactEmail = email
	}
	return c, true
}

var (
	deadlineKeywordRe = regexp.MustCompile(`(?i)deadline|due date|apply by|application due|submit by`)

	prominentLinkSelectors = []string{
		`a[href*="apply"]`, `a[href*="application"]`, `a[href*="form"]`,
		`a[href*="submit"]`, `a[href*="register"]`, `a[href*="signup"]`,
		".apply-btn", ".application-btn", ".apply-button", ".application-button",
	}

	pageDeadlineRe = regexp.MustCompile(`(?i)(?:deadline|due|apply by|submit by)[:\s]*([^.]*?(?:january|february|march|april|may|june|july|august|september|october|november|december)[^.]*?\d{4}|\d{1,2}[/-]\d{1,2}[/-]\d{4})`)
)

// deadlineAndApplyBlocks mines elements that mention a deadline or contain
// an application-looking link, even without a dedicated container.
func deadlineAndApplyBlocks(_ context.Context, s *scan) []domain.Candidate {
	var out []domain.Candidate
	seen := make(map[*html.Node]struct{})

	s.doc.Find("body *").Each(func(_ int, el *goquery.Selection) {
		if !deadlineKeywordRe.MatchString(ownText(el)) {
			return
		}
		node := el.Get(0)
		if _, dup := seen[node]; dup {
			return
		}
		seen[node] = struct{}{}
		out = append(out, s.fromDeadlineBlock(el))
	})

	s.doc.Find(`a[href*="apply"], a[href*="application"], a[href*="form"]`).Each(func(_ int, a *goquery.Selection) {
		block := a.Closest("div, section, article, li")
		if block.Length() == 0 {
			return
		}
		node := block.Get(0)
		if _, dup := seen[node]; dup {
			return
		}
		seen[node] = struct{}{}
		out = append(out, s.fromApplyBlock(block))
	})

	out = append(out, s.prominentLinks(out)...)
	out = append(out, s.pageDeadlines(out)...)
	return out
}

func (s *scan) fromDeadlineBlock(el *goquery.Selection) domain.Candidate {
	text := blockText(el)
	title := titleFromBlock(el)
	if title == "" {
		title = "Research Opportunity with Deadline"
	}

	c := s.candidate(title, snippet(text, maxBlockSnippet))
	c.OpportunityType = domain.TypeResearch
	c.Deadline = deadlineFrom(text)
	c.ApplicationURL, _ = applicationLink(el, s.base, applyHrefKeywords)
	c.Tags = normalize.MergeTags(c.Tags, []string{"deadline", "time-sensitive"})
	return c
}

func (s *scan) fromApplyBlock(block *goquery.Selection) domain.Candidate {
	text := blockText(block)
	href, linkText := applicationLink(block, s.base, applyHrefKeywords)

	title := titleFromBlock(block)
	if title == "" {
		title = linkText
	}
	if title == "" {
		title = "Application Available"
	}

	c := s.candidate(title, snippet(text, maxBlockSnippet))
	c.ApplicationURL = href
	c.Tags = normalize.MergeTags(c.Tags, []string{"application", "direct-link"})
	return c
}

// prominentLinks turns stand-alone application buttons into candidates
// unless a candidate already points at the same URL.
func (s *scan) prominentLinks(existing []domain.Candidate) []domain.Candidate {
	known := make(map[string]struct{}, len(existing))
	for i := range existing {
		if existing[i].ApplicationURL != "" {
			known[existing[i].ApplicationURL] = struct{}{}
		}
	}

	var out []domain.Candidate
	for _, sel := range prominentLinkSelectors {
		s.doc.Find(sel).Each(func(_ int, link *goquery.Selection) {
			raw, ok := link.Attr("href")
			if !ok {
				return
			}
			abs := resolve(s.base, raw)
			text := blockText(link)
			if abs == "" || len([]rune(text)) <= 3 {
				return
			}
			if _, dup := known[abs]; dup {
				return
			}
			known[abs] = struct{}{}

			title := text
			if s.department != "" {
				title = text + " - " + s.department
			}
			c := s.candidate(title, "Application link found: "+text)
			c.ApplicationURL = abs
			c.Tags = normalize.MergeTags(c.Tags, []string{"application", "direct-link"})
			out = append(out, c)
		})
	}
	return out
}

// pageDeadlines scans the whole page text for dated deadline phrases not
// already attached to a candidate.
func (s *scan) pageDeadlines(existing []domain.Candidate) []domain.Candidate {
	known := make(map[string]struct{})
	for i := range existing {
		if existing[i].Deadline != "" {
			known[existing[i].Deadline] = struct{}{}
		}
	}

	text := blockText(s.doc.Selection)

	var out []domain.Candidate
	for _, m := range pageDeadlineRe.FindAllStringSubmatch(text, -1) {
		phrase := strings.TrimSpace(m[1])
		deadline, ok := normalize.ExtractDeadline(phrase)
		if !ok {
			continue
		}
		if _, dup := known[deadline]; dup {
			continue
		}
		known[deadline] = struct{}{}

		title := "Application Deadline"
		if s.department != "" {
			title += " - " + s.department
		}
		c := s.candidate(title, "Research opportunity with deadline: "+phrase)
		c.OpportunityType = domain.TypeResearch
		c.Deadline = deadline
		c.Tags = normalize.MergeTags(c.Tags, []string{"deadline", "time-sensitive"})
		out = append(out, c)
	}
	return out
}

var (
	listKeywords    = []string{"deadline", "apply", "application", "opportunity", "position", "internship"}
	tableLinkWords  = []string{"apply", "application"}
	listItemLinkKWs = applyHrefKeywords
)

// structuredContent mines tables, lists and definition lists row by row.
func structuredContent(_ context.Context, s *scan) []domain.Candidate {
	var out []domain.Candidate

	s.doc.Find("table").Each(func(_ int, table *goquery.Selection) {
		out = append(out, s.fromTable(table)...)
	})
	s.doc.Find("ul, ol").Each(func(_ int, list *goquery.Selection) {
		out = append(out, s.fromList(list)...)
	})
	s.doc.Find("dl").Each(func(_ int, dl *goquery.Selection) {
		out = append(out, s.fromDefinitionList(dl)...)
	})
	return out
}

func (s *scan) fromTable(table *goquery.Selection) []domain.Candidate {
	rows := table.Find("tr")
	hasHeader := table.Find("th").Length() > 0 || table.Find("thead").Length() > 0
	if hasHeader && rows.Length() > 0 {
		rows = rows.Slice(1, rows.Length())
	}

	var out []domain.Candidate
	rows.Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("td, th")
		if cells.Length() < 2 {
			return
		}
		values := make([]string, 0, cells.Length())
		cells.Each(func(_ int, cell *goquery.Selection) {
			values = append(values, blockText(cell))
		})

		href, _ := applicationLink(row, s.base, tableLinkWords)
		mentionsDeadline := false
		for _, v := range values {
			if strings.Contains(strings.ToLower(v), "deadline") {
				mentionsDeadline = true
				break
			}
		}
		if href == "" && !mentionsDeadline {
			return
		}

		title := values[0]
		if title == "" {
			title = "Table Opportunity"
		}
		c := s.candidate(title, strings.Join(values, " | "))
		c.OpportunityType = domain.TypeResearch
		c.ApplicationURL = href
		for _, v := range values {
			if d, ok := normalize.ExtractDeadline(v); ok {
				c.Deadline = d
				break
			}
		}
		c.Tags = normalize.MergeTags(c.Tags, []string{"table", "structured"})
		out = append(out, c)
	})
	return out
}

func (s *scan) fromList(list *goquery.Selection) []domain.Candidate {
	var out []domain.Candidate
	list.ChildrenFiltered("li").Each(func(_ int, item *goquery.Selection) {
		text := blockText(item)
		href, _ := applicationLink(item, s.base, listItemLinkKWs)
		if href == "" && !containsAny(strings.ToLower(text), listKeywords) {
			return
		}

		c := s.candidate(snippet(text, maxTitleRunes), text)
		c.ApplicationURL = href
		if d, ok := normalize.ExtractDeadline(text); ok {
			c.Deadline = d
		}
		c.Tags = normalize.MergeTags(c.Tags, []string{"list", "structured"})
		out = append(out, c)
	})
	return out
}

func (s *scan) fromDefinitionList(dl *goquery.Selection) []domain.Candidate {
	terms := dl.Find("dt")
	defs := dl.Find("dd")

	var out []domain.Candidate
	terms.Each(func(i int, term *goquery.Selection) {
		if i >= defs.Length() {
			return
		}
		def := defs.Eq(i)
		termText := blockText(term)
		defText := blockText(def)

		href, _ := applicationLink(def, s.base, tableLinkWords)
		if href == "" && !strings.Contains(strings.ToLower(defText), "deadline") {
			return
		}

		c := s.candidate(termText, defText)
		c.ApplicationURL = href
		if d, ok := normalize.ExtractDeadline(defText); ok {
			c.Deadline = d
		}
		c.Tags = normalize.MergeTags(c.Tags, []string{"definition", "structured"})
		out = append(out, c)
	})
	return out
}

var (
	embedKeywords = []string{"apply", "form", "application"}
	scriptURLRe   = regexp.MustCompile(`https?://[^\s"'<>]+(?:apply|application|form)`)
)

// embeddedContent looks for application forms in iframes and application
// URLs inside inline scripts.
func embeddedContent(_ context.Context, s *scan) []domain.Candidate {
	label := s.department
	if label == "" {
		label = "Research Programs"
	}

	var out []domain.Candidate
	s.doc.Find("iframe[src]").Each(func(_ int, frame *goquery.Selection) {
		src, _ := frame.Attr("src")
		if !containsAny(strings.ToLower(src), embedKeywords) {
			return
		}
		abs := resolve(s.base, src)
		if abs == "" {
			return
		}
		c := s.candidate("Application Form - "+label, "Online application form for "+label+" programs")
		c.OpportunityType = domain.TypeResearch
		c.ApplicationURL = abs
		c.Tags = normalize.MergeTags(c.Tags, []string{"application", "form"})
		out = append(out, c)
	})

	seen := make(map[string]struct{})
	s.doc.Find("script").Each(func(_ int, script *goquery.Selection) {
		if _, hasSrc := script.Attr("src"); hasSrc {
			return
		}
		for _, found := range scriptURLRe.FindAllString(script.Text(), -1) {
			if _, dup := seen[found]; dup {
				continue
			}
			seen[found] = struct{}{}
			c := s.candidate("Embedded Application - "+label, "Application link found in page scripts")
			c.OpportunityType = domain.TypeResearch
			c.ApplicationURL = found
			c.Tags = normalize.MergeTags(c.Tags, []string{"embedded", "application"})
			out = append(out, c)
		}
	})
	return out
}

// ownText is the concatenated text of el's direct text children.
func ownText(el *goquery.Selection) string {
	var b strings.Builder
	for n := el.Get(0).FirstChild; n != nil; n = n.NextSibling {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
	}
	return b.String()
}
