package reconcile

import (
	"strings"
)

// Similarity weights. They sum to 1.
const (
	titleWeight       = 0.5
	descriptionWeight = 0.3
	departmentWeight  = 0.15
	sourceWeight      = 0.05

	similarityDescriptionPrefix = 200
	// Score given to the department term when either side has none.
	unknownDepartmentScore = 0.5
)

// Fields are the parts of a record that take part in similarity scoring.
type Fields struct {
	Title       string
	Description string
	Department  string
	SourceURL   string
}

// Score blends per-field similarity into a value in [0, 1]. Score(a, b)
// always equals Score(b, a).
func Score(a, b Fields) float64 {
	title := Ratio(compact(a.Title), compact(b.Title))
	desc := Ratio(
		prefix(compact(a.Description), similarityDescriptionPrefix),
		prefix(compact(b.Description), similarityDescriptionPrefix),
	)

	dept := unknownDepartmentScore
	da, db := compact(a.Department), compact(b.Department)
	if da != "" && db != "" {
		dept = Ratio(da, db)
	}

	var source float64
	if a.SourceURL == b.SourceURL {
		source = 1
	}

	return title*titleWeight + desc*descriptionWeight + dept*departmentWeight + source*sourceWeight
}

// Ratio is the Ratcliff/Obershelp similarity of a and b: twice the number of
// matching runes over the total rune count. Two empty strings are identical.
// The pair is ordered before matching so the result never depends on
// argument order. No junk heuristic is applied, so frequent characters in
// long inputs still count toward matches.
func Ratio(a, b string) float64 {
	if a > b {
		a, b = b, a
	}
	ra, rb := []rune(a), []rune(b)
	total := len(ra) + len(rb)
	if total == 0 {
		return 1
	}
	return 2 * float64(matchingRunes(ra, rb)) / float64(total)
}

// matchingRunes sums the lengths of the longest common blocks, found
// recursively on either side of each block.
func matchingRunes(a, b []rune) int {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	i, j, size := longestBlock(a, b)
	if size == 0 {
		return 0
	}
	return size + matchingRunes(a[:i], b[:j]) + matchingRunes(a[i+size:], b[j+size:])
}

// longestBlock returns the earliest longest common substring of a and b.
func longestBlock(a, b []rune) (start, startB, size int) {
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			if a[i-1] != b[j-1] {
				curr[j] = 0
				continue
			}
			curr[j] = prev[j-1] + 1
			if curr[j] > size {
				size = curr[j]
				start, startB = i-size, j-size
			}
		}
		prev, curr = curr, prev
	}
	return start, startB, size
}

func compact(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}
