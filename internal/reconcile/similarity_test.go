package reconcile_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jonesrussell/re-search/internal/domain"
	"github.com/jonesrussell/re-search/internal/reconcile"
)

func TestRatio(t *testing.T) {
	t.Parallel()

	tests := []struct {
		a, b string
		want float64
	}{
		{"", "", 1},
		{"abc", "", 0},
		{"abcd", "abcd", 1},
		{"abcd", "bcde", 0.75},
		{"abc", "xyz", 0},
		{"summer internship", "summer internships", 2 * 17.0 / 35.0},
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.want, reconcile.Ratio(tt.a, tt.b), 1e-9, "%q vs %q", tt.a, tt.b)
	}
}

func TestRatio_LongInputsHaveNoJunk(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("research ", 25)[:200]
	assert.InDelta(t, 1.0, reconcile.Ratio(long, long), 1e-9)

	edited := "x" + long[1:]
	assert.InDelta(t, 199.0/200.0, reconcile.Ratio(long, edited), 1e-9)
}

func TestScore_Symmetric(t *testing.T) {
	t.Parallel()

	records := []reconcile.Fields{
		{Title: "Summer Research Program", Description: "Ten weeks in a lab.", Department: "Biology", SourceURL: "https://a.edu/p"},
		{Title: "Summer Research Programme", Description: "Ten weeks in the lab!", Department: "Biology", SourceURL: "https://a.edu/p"},
		{Title: "Robotics Internship", Description: "", Department: "", SourceURL: "https://b.edu"},
		{Title: "aab", Description: "abab", Department: "ba", SourceURL: "https://a.edu/p"},
		{Title: "aba", Description: "baab", Department: "ab", SourceURL: "https://b.edu"},
	}
	for i := range records {
		for j := range records {
			assert.InDelta(t,
				reconcile.Score(records[i], records[j]),
				reconcile.Score(records[j], records[i]),
				1e-12, "pair %d,%d", i, j)
		}
		assert.InDelta(t, 1.0, reconcile.Score(records[i], records[i]), 1e-12, "self %d", i)
	}
}

func TestScore_Weights(t *testing.T) {
	t.Parallel()

	base := reconcile.Fields{Title: "Lab Fellowship", Description: "Funded summer work", Department: "Physics", SourceURL: "https://x.edu"}

	otherSource := base
	otherSource.SourceURL = "https://y.edu"
	assert.InDelta(t, 0.95, reconcile.Score(base, otherSource), 1e-9)

	noDept := base
	noDept.Department = ""
	assert.InDelta(t, 0.925, reconcile.Score(base, noDept), 1e-9, "unknown department scores half")

	caseAndSpace := reconcile.Fields{Title: "  LAB   fellowship ", Description: "funded SUMMER work", Department: "physics", SourceURL: "https://x.edu"}
	assert.InDelta(t, 1.0, reconcile.Score(base, caseAndSpace), 1e-9)
}

func TestFingerprint(t *testing.T) {
	t.Parallel()

	base := domain.Candidate{
		Title:         "Summer Research Program",
		Description:   "Ten weeks in a lab.",
		Department:    "Biology",
		SourceURL:     "https://a.edu/programs",
		Deadline:      "2025-03-15",
		FundingAmount: "$5,000",
	}
	fp := reconcile.Fingerprint(&base)
	assert.Len(t, fp, 64)

	same := base
	same.Title = "  summer research PROGRAM "
	same.Department = "biology"
	same.Tags = []string{"ignored"}
	same.ApplicationURL = "https://a.edu/apply"
	assert.Equal(t, fp, reconcile.Fingerprint(&same), "case, padding and non-identity fields do not matter")

	changes := map[string]func(c *domain.Candidate){
		"title":       func(c *domain.Candidate) { c.Title = "Winter Research Program" },
		"description": func(c *domain.Candidate) { c.Description = "Eight weeks in a lab." },
		"department":  func(c *domain.Candidate) { c.Department = "Chemistry" },
		"source":      func(c *domain.Candidate) { c.SourceURL = "https://a.edu/other" },
		"deadline":    func(c *domain.Candidate) { c.Deadline = "2025-04-01" },
		"funding":     func(c *domain.Candidate) { c.FundingAmount = "$6,000" },
	}
	for field, mutate := range changes {
		changed := base
		mutate(&changed)
		assert.NotEqual(t, fp, reconcile.Fingerprint(&changed), field)
	}
}

func TestSimilarityGroup(t *testing.T) {
	t.Parallel()

	a := domain.Candidate{Title: "Robotics Internship", Department: "Engineering", SourceURL: "https://eng.x.edu/a", Deadline: "2025-01-01"}
	b := domain.Candidate{Title: "robotics internship", Department: "engineering", SourceURL: "https://ENG.x.edu/b", Description: "different"}
	c := domain.Candidate{Title: "Robotics Internship", Department: "Engineering", SourceURL: "https://other.edu/a"}

	ga := reconcile.SimilarityGroup(&a)
	assert.Len(t, ga, 16)
	assert.Equal(t, ga, reconcile.SimilarityGroup(&b), "same title, department and host")
	assert.NotEqual(t, ga, reconcile.SimilarityGroup(&c), "different host")
}
