package heuristic

import (
	"context"
	"testing"

	"github.com/jonesrussell/re-search/internal/config"
	"github.com/jonesrussell/re-search/internal/domain"
	"github.com/jonesrussell/re-search/internal/extraction"
	"github.com/jonesrussell/re-search/internal/logger"
)

func TestExtract_PanickingStrategyYieldsNothing(t *testing.T) {
	t.Parallel()

	ext := New(Options{}, logger.NewNop())
	ext.strategies = []strategy{
		{name: "boom", run: func(context.Context, *scan) []domain.Candidate { panic("boom") }},
		{name: "fixed", run: func(_ context.Context, s *scan) []domain.Candidate {
			c := s.candidate("Lab Internship", "")
			c.Deadline = "2025-01-01"
			return []domain.Candidate{c}
		}},
	}

	page := &extraction.Page{
		URL:    "https://cs.example.edu/",
		HTML:   "<html><body></body></html>",
		Source: config.SourceConfig{Department: "Computer Science"},
	}
	got, err := ext.Extract(context.Background(), page)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(got) != 1 || got[0].Title != "Lab Internship" {
		t.Fatalf("expected surviving strategy output, got %+v", got)
	}
}

func TestCleanTitle(t *testing.T) {
	t.Parallel()

	long := "Undergraduate research program in computational biology and genomics, with mentorship from faculty across departments"
	tests := []struct {
		in, want string
	}{
		{"Skip to main content Summer Program", "Summer Program"},
		{"  Research   Fellowship ", "Research Fellowship"},
		{long, "Undergraduate research program in computational biology and genomics"},
	}
	for _, tt := range tests {
		if got := cleanTitle(tt.in); got != tt.want {
			t.Errorf("cleanTitle(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSameSite(t *testing.T) {
	t.Parallel()

	tests := []struct {
		a, b string
		want bool
	}{
		{"cs.example.edu", "lab.example.edu", true},
		{"example.edu", "www.example.edu", true},
		{"cs.example.edu", "example.org", false},
		{"localhost", "localhost", true},
	}
	for _, tt := range tests {
		if got := sameSite(tt.a, tt.b); got != tt.want {
			t.Errorf("sameSite(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}
