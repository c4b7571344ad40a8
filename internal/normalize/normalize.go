// Package normalize holds the text helpers shared by the extractors:
// whitespace cleanup, deadline and funding detection, department and
// opportunity type canonicalization, and tag derivation.
package normalize

import (
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/jonesrussell/re-search/internal/domain"
)

var whitespaceRe = regexp.MustCompile(`\s+`)

// CleanText collapses runs of whitespace into single spaces and trims.
func CleanText(s string) string {
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(s, " "))
}

// Truncate returns at most n runes of s.
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

const deadlineLayout = "2006-01-02"

var (
	numericDateRe   = regexp.MustCompile(`\b(\d{1,2})[/-](\d{1,2})[/-](\d{4})\b`)
	monthFirstRe    = regexp.MustCompile(`(?i)\b([a-z]+)\.?\s+(\d{1,2})(?:st|nd|rd|th)?,?\s+(\d{4})\b`)
	dayFirstRe      = regexp.MustCompile(`(?i)\b(\d{1,2})\s+([a-z]+)\.?,?\s+(\d{4})\b`)
	monthNames      = map[string]time.Month{}
	monthAbbrevLens = []int{3, 4}
)

func init() {
	for m := time.January; m <= time.December; m++ {
		name := strings.ToLower(m.String())
		monthNames[name] = m
		for _, n := range monthAbbrevLens {
			if n < len(name) {
				monthNames[name[:n]] = m
			}
		}
	}
}

// ExtractDeadline finds the first date in text and returns it formatted as
// YYYY-MM-DD. Recognized forms are MM/DD/YYYY, MM-DD-YYYY, "Month DD, YYYY"
// and "DD Month YYYY".
func ExtractDeadline(text string) (string, bool) {
	if text == "" {
		return "", false
	}

	if m := numericDateRe.FindStringSubmatch(text); m != nil {
		month, _ := strconv.Atoi(m[1])
		day, _ := strconv.Atoi(m[2])
		year, _ := strconv.Atoi(m[3])
		if d, ok := buildDate(year, time.Month(month), day); ok {
			return d, true
		}
	}

	for _, m := range monthFirstRe.FindAllStringSubmatch(text, -1) {
		month, ok := monthNames[strings.ToLower(m[1])]
		if !ok {
			continue
		}
		day, _ := strconv.Atoi(m[2])
		year, _ := strconv.Atoi(m[3])
		if d, valid := buildDate(year, month, day); valid {
			return d, true
		}
	}

	for _, m := range dayFirstRe.FindAllStringSubmatch(text, -1) {
		month, ok := monthNames[strings.ToLower(m[2])]
		if !ok {
			continue
		}
		day, _ := strconv.Atoi(m[1])
		year, _ := strconv.Atoi(m[3])
		if d, valid := buildDate(year, month, day); valid {
			return d, true
		}
	}

	return "", false
}

func buildDate(year int, month time.Month, day int) (string, bool) {
	if month < time.January || month > time.December || day < 1 || day > 31 {
		return "", false
	}
	t := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	// time.Date normalizes overflow (Feb 30 -> Mar 2); reject those.
	if t.Month() != month || t.Day() != day {
		return "", false
	}
	return t.Format(deadlineLayout), true
}

var fundingPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\$\s?([0-9][0-9,]*(?:\.[0-9]{2})?)`),
	regexp.MustCompile(`(?i)([0-9][0-9,]*(?:\.[0-9]{2})?)\s?dollars?\b`),
	regexp.MustCompile(`(?i)up\s+to\s+\$([0-9][0-9,]*)`),
}

// ExtractFunding returns the first monetary amount in text as "$X".
func ExtractFunding(text string) (string, bool) {
	for _, re := range fundingPatterns {
		if m := re.FindStringSubmatch(text); m != nil {
			return "$" + m[1], true
		}
	}
	return "", false
}

var departmentMapping = map[string]string{
	"computer science":       "Computer Science",
	"cs":                     "Computer Science",
	"electrical engineering": "Electrical Engineering",
	"ee":                     "Electrical Engineering",
	"mechanical engineering": "Mechanical Engineering",
	"me":                     "Mechanical Engineering",
	"biology":                "Biology",
	"biosciences":            "Biology",
	"medicine":               "Medicine",
	"medical school":         "Medicine",
	"chemistry":              "Chemistry",
	"physics":                "Physics",
	"mathematics":            "Mathematics",
	"math":                   "Mathematics",
	"psychology":             "Psychology",
	"economics":              "Economics",
	"business":               "Business",
	"humanities":             "Humanities",
	"social sciences":        "Social Sciences",
}

// Department maps known aliases to their canonical department name and
// title-cases anything else.
func Department(raw string) string {
	cleaned := CleanText(raw)
	if cleaned == "" {
		return ""
	}
	if canonical, ok := departmentMapping[strings.ToLower(cleaned)]; ok {
		return canonical
	}
	return titleCase(cleaned)
}

func titleCase(s string) string {
	words := strings.Fields(strings.ToLower(s))
	for i, w := range words {
		r := []rune(w)
		r[0] = unicode.ToUpper(r[0])
		words[i] = string(r)
	}
	return strings.Join(words, " ")
}

type typeKeyword struct {
	keyword string
	kind    domain.OpportunityType
}

// Checked in order; the first keyword contained in the text wins.
var typeKeywords = []typeKeyword{
	{"funding", domain.TypeFunding},
	{"grant", domain.TypeFunding},
	{"scholarship", domain.TypeFunding},
	{"fellowship", domain.TypeFellowship},
	{"internship", domain.TypeInternship},
	{"intern", domain.TypeInternship},
	{"leadership", domain.TypeLeadership},
	{"research", domain.TypeResearch},
	{"summer program", domain.TypeResearch},
	{"surf", domain.TypeResearch},
}

// ClassifyType infers an opportunity category from title and description.
func ClassifyType(title, description string) domain.OpportunityType {
	content := strings.ToLower(title + " " + description)

	for _, tk := range typeKeywords {
		if strings.Contains(content, tk.keyword) {
			return tk.kind
		}
	}

	switch {
	case containsAny(content, "fund", "grant", "award", "scholarship"):
		return domain.TypeFunding
	case containsAny(content, "intern", "work", "job"):
		return domain.TypeInternship
	default:
		return domain.TypeResearch
	}
}

// NormalizeType maps a free-form category label onto the closed set.
func NormalizeType(raw string) domain.OpportunityType {
	label := strings.ToLower(CleanText(raw))
	if t, ok := domain.ParseOpportunityType(label); ok {
		return t
	}
	return ClassifyType(label, "")
}

var researchAreas = []string{
	"ai", "artificial intelligence", "machine learning", "ml",
	"computer science", "cs", "programming", "software",
	"biology", "bioinformatics", "genetics", "medicine", "medical",
	"engineering", "electrical", "mechanical", "chemical",
	"physics", "chemistry", "mathematics", "statistics",
	"psychology", "neuroscience", "cognitive science",
	"economics", "business", "finance", "marketing",
	"humanities", "literature", "history", "philosophy",
	"environment", "sustainability", "climate",
	"data science", "analytics", "visualization",
	"robotics", "automation", "iot", "blockchain",
	"healthcare", "biotech", "pharma",
}

var audienceTags = []struct{ keyword, tag string }{
	{"summer", "summer program"},
	{"undergraduate", "undergraduate"},
	{"graduate", "graduate"},
	{"international", "international"},
	{"remote", "remote"},
}

var areaMatchers = func() map[string]*regexp.Regexp {
	m := make(map[string]*regexp.Regexp, len(researchAreas))
	for _, area := range researchAreas {
		m[area] = regexp.MustCompile(`\b` + regexp.QuoteMeta(area) + `\b`)
	}
	return m
}()

// ExtractTags derives sorted topic and audience tags from the text.
// Research areas match on word boundaries so "ml" does not fire on "html".
func ExtractTags(title, description string) []string {
	content := strings.ToLower(title + " " + description)
	seen := make(map[string]struct{})

	for _, area := range researchAreas {
		if areaMatchers[area].MatchString(content) {
			seen[area] = struct{}{}
		}
	}
	for _, at := range audienceTags {
		if strings.Contains(content, at.keyword) {
			seen[at.tag] = struct{}{}
		}
	}

	tags := make([]string, 0, len(seen))
	for tag := range seen {
		tags = append(tags, tag)
	}
	slices.Sort(tags)
	return tags
}

// MergeTags returns the sorted union of a and b without blanks.
func MergeTags(a, b []string) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, list := range [][]string{a, b} {
		for _, t := range list {
			t = strings.ToLower(CleanText(t))
			if t == "" {
				continue
			}
			if _, ok := seen[t]; ok {
				continue
			}
			seen[t] = struct{}{}
			out = append(out, t)
		}
	}
	slices.Sort(out)
	return out
}

func containsAny(s string, needles ...string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}

var (
	genericTitles = []string{
		"welcome to", "about us", "contact us", "home page",
		"navigation", "menu", "footer", "header", "sidebar",
		"cookie", "privacy policy", "terms of service",
	}

	dollarRangeTitleRe = regexp.MustCompile(`^\$[\d,]+\s*-\s*\$[\d,]+`)
)

// AcceptableTitle reports whether title can name an opportunity. Empty
// titles, site chrome such as "Privacy Policy" and bare dollar ranges are
// rejected.
func AcceptableTitle(title string) bool {
	title = strings.TrimSpace(title)
	if title == "" {
		return false
	}
	if containsAny(strings.ToLower(title), genericTitles...) {
		return false
	}
	return !dollarRangeTitleRe.MatchString(title)
}

var emailRe = regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`)

// ExtractEmail returns the first email address in text.
func ExtractEmail(text string) (string, bool) {
	m := emailRe.FindString(text)
	return m, m != ""
}
