package reconcile

import (
	"crypto/md5" //nolint:gosec // grouping key, not a security boundary
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"strings"

	"github.com/jonesrussell/re-search/internal/domain"
)

const (
	fingerprintDescriptionPrefix = 500
	groupTitlePrefix             = 100
	groupKeyLength               = 16
	groupHostFallback            = 50
)

// Fingerprint returns the hex SHA-256 of the normalized identity fields of c.
// Title, description prefix and department are case-folded; source URL,
// deadline and funding text are compared as written.
func Fingerprint(c *domain.Candidate) string {
	parts := []string{
		fold(c.Title),
		prefix(fold(c.Description), fingerprintDescriptionPrefix),
		fold(c.Department),
		c.SourceURL,
		strings.TrimSpace(c.Deadline),
		strings.TrimSpace(c.FundingAmount),
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}

// SimilarityGroup returns a coarse 16 character key built from the title,
// department and source host. Near-duplicates that differ only in
// description or deadline share a group.
func SimilarityGroup(c *domain.Candidate) string {
	key := prefix(fold(c.Title), groupTitlePrefix) + "|" + fold(c.Department) + "|" + sourceHost(c.SourceURL)
	sum := md5.Sum([]byte(key)) //nolint:gosec // see import
	return hex.EncodeToString(sum[:])[:groupKeyLength]
}

func sourceHost(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return prefix(raw, groupHostFallback)
	}
	return strings.ToLower(u.Host)
}

func fold(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func prefix(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
