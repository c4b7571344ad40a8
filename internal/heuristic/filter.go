package heuristic

import (
	"strings"

	"github.com/jonesrussell/re-search/internal/domain"
	"github.com/jonesrussell/re-search/internal/normalize"
)

const minDescriptionWithoutSignal = 50

// IsValid reports whether c is worth keeping: a real title plus either an
// actionable signal or a substantial description.
func IsValid(c *domain.Candidate) bool {
	if !normalize.AcceptableTitle(c.Title) {
		return false
	}

	if c.ApplicationURL != "" || c.Deadline != "" || c.FundingAmount != "" {
		return true
	}
	return len(c.Description) > minDescriptionWithoutSignal
}

// InformationScore weighs how much actionable detail a candidate carries.
func InformationScore(c *domain.Candidate) int {
	score := 0
	if c.ApplicationURL != "" {
		score += 3
	}
	if c.Deadline != "" {
		score += 2
	}
	if c.FundingAmount != "" {
		score += 2
	}
	if len(c.Description) > 100 {
		score++
	}
	if len(c.Tags) > 3 {
		score++
	}
	return score
}

func signature(c *domain.Candidate) string {
	return strings.Join([]string{
		strings.ToLower(strings.TrimSpace(c.Title)),
		c.ApplicationURL,
		c.Deadline,
		c.FundingAmount,
	}, "|")
}

// FilterAndDedupe drops invalid candidates and merges duplicates sharing a
// signature, keeping the better-scored variant in first-seen position. Ties
// keep the earlier candidate.
func FilterAndDedupe(candidates []domain.Candidate) []domain.Candidate {
	index := make(map[string]int, len(candidates))
	out := make([]domain.Candidate, 0, len(candidates))

	for i := range candidates {
		c := candidates[i]
		if !IsValid(&c) {
			continue
		}

		key := signature(&c)
		if pos, ok := index[key]; ok {
			if InformationScore(&c) > InformationScore(&out[pos]) {
				out[pos] = c
			}
			continue
		}
		index[key] = len(out)
		out = append(out, c)
	}

	return out
}
