package inference

import (
	"fmt"
	"strings"

	"github.com/jonesrussell/re-search/internal/domain"
)

const (
	maxTitleWords     = 12
	minTitleChars     = 3
	maxDeptTitleWords = 3
)

var (
	genericTitlePhrases = []string{
		"application form", "application deadline", "apply here",
		"research opportunities", "undergraduate program", "graduate program",
		"research staff", "research topics", "eligibility", "deadline", "apply now",
	}
	navigationTitleWords = []string{"toggle", "menu", "navigation", "programtoggle", "overview"}
	departmentTitleWords = []string{"department", "school of", "institute", "center for"}
)

// QualityReport summarizes the validator's verdict on one batch.
type QualityReport struct {
	Total  int
	Issues []string
}

// Ratio is the share of candidates that were flagged.
func (r QualityReport) Ratio() float64 {
	if r.Total == 0 {
		return 0
	}
	return float64(len(r.Issues)) / float64(r.Total)
}

// Score is the share of candidates that passed, 1 for an empty batch.
func (r QualityReport) Score() float64 {
	if r.Total == 0 {
		return 1
	}
	return float64(r.Total-len(r.Issues)) / float64(r.Total)
}

// CheckQuality flags titles that look generic, navigational, overlong or like
// a bare department name.
func CheckQuality(candidates []domain.Candidate) QualityReport {
	report := QualityReport{Total: len(candidates)}
	for i := range candidates {
		if issue := titleIssue(candidates[i].Title); issue != "" {
			report.Issues = append(report.Issues, fmt.Sprintf("%q: %s", candidates[i].Title, issue))
		}
	}
	return report
}

func titleIssue(title string) string {
	lower := strings.ToLower(strings.TrimSpace(title))
	words := strings.Fields(lower)

	for _, phrase := range genericTitlePhrases {
		if strings.Contains(lower, phrase) {
			return "generic title"
		}
	}
	for _, w := range navigationTitleWords {
		if strings.Contains(lower, w) {
			return "navigation text"
		}
	}
	if len(words) > maxTitleWords {
		return "title too long"
	}
	if len(lower) < minTitleChars {
		return "title too short"
	}
	if len(words) <= maxDeptTitleWords {
		for _, w := range departmentTitleWords {
			if strings.Contains(lower, w) {
				return "department name only"
			}
		}
	}
	return ""
}
