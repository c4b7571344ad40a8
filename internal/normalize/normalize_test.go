package normalize_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jonesrussell/re-search/internal/domain"
	"github.com/jonesrussell/re-search/internal/normalize"
)

func TestCleanText(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "Summer research program", normalize.CleanText("  Summer\n\tresearch   program \r\n"))
	assert.Empty(t, normalize.CleanText(" \n "))
}

func TestTruncate(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "héll", normalize.Truncate("héllo", 4))
	assert.Equal(t, "abc", normalize.Truncate("abc", 10))
	assert.Empty(t, normalize.Truncate("abc", 0))
}

func TestExtractDeadline(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		text string
		want string
		ok   bool
	}{
		{name: "slash", text: "Applications due 03/15/2026.", want: "2026-03-15", ok: true},
		{name: "dash", text: "due 3-1-2026", want: "2026-03-01", ok: true},
		{name: "month first", text: "Deadline: February 1, 2026", want: "2026-02-01", ok: true},
		{name: "abbreviated month", text: "apply by Sept. 30 2026", want: "2026-09-30", ok: true},
		{name: "day first", text: "closes 5 January 2027", want: "2027-01-05", ok: true},
		{name: "invalid day", text: "02/30/2026", ok: false},
		{name: "word is not month", text: "Room 12, 2026 seats", ok: false},
		{name: "no date", text: "rolling admissions", ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, ok := normalize.ExtractDeadline(tt.text)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExtractFunding(t *testing.T) {
	t.Parallel()

	got, ok := normalize.ExtractFunding("Stipend of $7,500.00 for ten weeks")
	assert.True(t, ok)
	assert.Equal(t, "$7,500.00", got)

	got, ok = normalize.ExtractFunding("awards of 5000 dollars")
	assert.True(t, ok)
	assert.Equal(t, "$5000", got)

	_, ok = normalize.ExtractFunding("unpaid position")
	assert.False(t, ok)
}

func TestDepartment(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "Computer Science", normalize.Department(" CS "))
	assert.Equal(t, "Biology", normalize.Department("biosciences"))
	assert.Equal(t, "Aeronautics And Astronautics", normalize.Department("aeronautics and astronautics"))
	assert.Empty(t, normalize.Department(""))
}

func TestClassifyType(t *testing.T) {
	t.Parallel()
	assert.Equal(t, domain.TypeFunding, normalize.ClassifyType("Travel Grant", ""))
	assert.Equal(t, domain.TypeFellowship, normalize.ClassifyType("Postdoctoral Fellowship", ""))
	assert.Equal(t, domain.TypeInternship, normalize.ClassifyType("Summer Internship", "paid"))
	assert.Equal(t, domain.TypeFunding, normalize.ClassifyType("Dean's Award", ""))
	assert.Equal(t, domain.TypeInternship, normalize.ClassifyType("Student job", ""))
	assert.Equal(t, domain.TypeResearch, normalize.ClassifyType("Lab assistant", "wet lab"))
}

func TestNormalizeType(t *testing.T) {
	t.Parallel()
	assert.Equal(t, domain.TypeLeadership, normalize.NormalizeType("Leadership"))
	assert.Equal(t, domain.TypeFunding, normalize.NormalizeType("scholarship"))
	assert.Equal(t, domain.TypeResearch, normalize.NormalizeType(""))
}

func TestExtractTags(t *testing.T) {
	t.Parallel()

	tags := normalize.ExtractTags("Summer Machine Learning Internship", "Open to undergraduate students; see html form")
	assert.Contains(t, tags, "machine learning")
	assert.Contains(t, tags, "summer program")
	assert.Contains(t, tags, "undergraduate")
	assert.NotContains(t, tags, "ml")
	assert.IsIncreasing(t, tags)
}

func TestMergeTags(t *testing.T) {
	t.Parallel()
	assert.Equal(t, []string{"ai", "biology", "remote"}, normalize.MergeTags([]string{"Biology", " ai "}, []string{"ai", "", "remote"}))
}

func TestExtractEmail(t *testing.T) {
	t.Parallel()
	got, ok := normalize.ExtractEmail("Questions? Contact curis-admin@cs.example.edu today")
	assert.True(t, ok)
	assert.Equal(t, "curis-admin@cs.example.edu", got)
}

func TestAcceptableTitle(t *testing.T) {
	t.Parallel()

	tests := []struct {
		title string
		want  bool
	}{
		{"Summer Research Fellowship", true},
		{"  Robotics Lab Internship ", true},
		{"", false},
		{"   ", false},
		{"Privacy Policy", false},
		{"Contact Us", false},
		{"Welcome to the Lab", false},
		{"Cookie settings", false},
		{"$1,000 - $5,000", false},
		{"$5,000 Travel Award", true},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, normalize.AcceptableTitle(tt.title), tt.title)
	}
}
