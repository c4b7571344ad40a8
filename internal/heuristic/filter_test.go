package heuristic_test

import (
	"strings"
	"testing"

	"github.com/jonesrussell/re-search/internal/domain"
	"github.com/jonesrussell/re-search/internal/heuristic"
)

func TestIsValid(t *testing.T) {
	t.Parallel()

	longDescription := strings.Repeat("research opportunity ", 5)

	tests := []struct {
		name string
		c    domain.Candidate
		want bool
	}{
		{name: "empty title", c: domain.Candidate{ApplicationURL: "https://x.edu/apply"}, want: false},
		{name: "whitespace title", c: domain.Candidate{Title: "   ", Deadline: "2025-01-01"}, want: false},
		{name: "denylisted phrase", c: domain.Candidate{Title: "Contact Us", ApplicationURL: "https://x.edu/apply"}, want: false},
		{name: "denylist is case insensitive", c: domain.Candidate{Title: "Privacy Policy Update", Deadline: "2025-01-01"}, want: false},
		{name: "dollar range title", c: domain.Candidate{Title: "$5,000 - $10,000", FundingAmount: "$5,000"}, want: false},
		{name: "application url", c: domain.Candidate{Title: "Lab Internship", ApplicationURL: "https://x.edu/apply"}, want: true},
		{name: "deadline only", c: domain.Candidate{Title: "Lab Internship", Deadline: "2025-01-01"}, want: true},
		{name: "funding only", c: domain.Candidate{Title: "Travel Grant", FundingAmount: "$500"}, want: true},
		{name: "long description", c: domain.Candidate{Title: "Lab Internship", Description: longDescription}, want: true},
		{name: "short description no signal", c: domain.Candidate{Title: "Lab Internship", Description: "Join us."}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := heuristic.IsValid(&tt.c); got != tt.want {
				t.Errorf("IsValid() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestInformationScore(t *testing.T) {
	t.Parallel()

	full := domain.Candidate{
		ApplicationURL: "https://x.edu/apply",
		Deadline:       "2025-01-01",
		FundingAmount:  "$1,000",
		Description:    strings.Repeat("x", 101),
		Tags:           []string{"a", "b", "c", "d"},
	}
	if got := heuristic.InformationScore(&full); got != 9 {
		t.Errorf("full score = %d, want 9", got)
	}
	if got := heuristic.InformationScore(&domain.Candidate{}); got != 0 {
		t.Errorf("empty score = %d, want 0", got)
	}
}

func TestFilterAndDedupe_KeepsRicherVariantInFirstPosition(t *testing.T) {
	t.Parallel()

	sparse := domain.Candidate{Title: "Lab Internship", ApplicationURL: "https://x.edu/apply", Description: "short"}
	rich := domain.Candidate{
		Title:          "  lab internship ",
		ApplicationURL: "https://x.edu/apply",
		Description:    strings.Repeat("detailed ", 20),
	}
	other := domain.Candidate{Title: "Travel Grant", FundingAmount: "$500"}

	got := heuristic.FilterAndDedupe([]domain.Candidate{sparse, other, rich})
	if len(got) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(got))
	}
	if got[0].Description != rich.Description {
		t.Errorf("expected richer variant in first slot, got %q", got[0].Description)
	}
	if got[1].Title != "Travel Grant" {
		t.Errorf("second = %q, want Travel Grant", got[1].Title)
	}
}

func TestFilterAndDedupe_TieKeepsFirst(t *testing.T) {
	t.Parallel()

	first := domain.Candidate{Title: "Lab Internship", Deadline: "2025-01-01", Description: "first"}
	second := domain.Candidate{Title: "Lab Internship", Deadline: "2025-01-01", Description: "second"}

	got := heuristic.FilterAndDedupe([]domain.Candidate{first, second})
	if len(got) != 1 {
		t.Fatalf("expected 1 candidate, got %d", len(got))
	}
	if got[0].Description != "first" {
		t.Errorf("tie kept %q, want first", got[0].Description)
	}
}

func TestFilterAndDedupe_DistinctSignaturesSurvive(t *testing.T) {
	t.Parallel()

	a := domain.Candidate{Title: "Lab Internship", Deadline: "2025-01-01"}
	b := domain.Candidate{Title: "Lab Internship", Deadline: "2025-02-01"}

	if got := heuristic.FilterAndDedupe([]domain.Candidate{a, b}); len(got) != 2 {
		t.Errorf("expected both deadlines to survive, got %d", len(got))
	}
}
