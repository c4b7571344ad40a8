package config

import (
	"net/url"
	"strings"
	"time"
)

// Heuristic extractor profiles a source can select.
const (
	// ExtractorProfileDefault runs every heuristic strategy.
	ExtractorProfileDefault = "default"
	// ExtractorProfileShallow skips sub-page traversal.
	ExtractorProfileShallow = "shallow"
)

// SourceConfig is the per-host crawl configuration.
type SourceConfig struct {
	Host       string        `yaml:"host"`
	Name       string        `yaml:"name"`
	Delay      time.Duration `yaml:"delay"`
	RequiresJS bool          `yaml:"requires_js"`
	// UseInference opts a host out of the inference extractor when false.
	UseInference *bool `yaml:"use_inference"`
	Department   string `yaml:"department"`
	// Extractor selects a heuristic profile; empty means the default profile.
	Extractor string `yaml:"extractor"`
	// Selectors are extra container selectors scanned by the direct-block strategy.
	Selectors []string `yaml:"opportunity_selectors"`
}

// InferenceAllowed reports whether pages from this source may be offered to
// the inference extractor.
func (s *SourceConfig) InferenceAllowed() bool {
	return s.UseInference == nil || *s.UseInference
}

// SourceTable resolves per-host configuration.
// Precedence: exact host match, then the longest configured host that is a
// dot-suffix of the requested host, then the fallback.
type SourceTable struct {
	byHost   map[string]SourceConfig
	fallback SourceConfig
}

// NewSourceTable builds a table from sources. Entries with an empty host are
// ignored; fallback is used when no entry matches.
func NewSourceTable(sources []SourceConfig, fallback SourceConfig) *SourceTable {
	t := &SourceTable{
		byHost:   make(map[string]SourceConfig, len(sources)),
		fallback: fallback,
	}
	for _, s := range sources {
		host := normalizeHost(s.Host)
		if host == "" {
			continue
		}
		s.Host = host
		t.byHost[host] = s
	}
	return t
}

// Resolve returns the configuration for host and whether a configured entry
// matched (false means the fallback was returned).
func (t *SourceTable) Resolve(host string) (SourceConfig, bool) {
	host = normalizeHost(host)

	if s, ok := t.byHost[host]; ok {
		return s, true
	}

	var (
		best    SourceConfig
		bestLen int
	)
	for configured, s := range t.byHost {
		if strings.HasSuffix(host, "."+configured) && len(configured) > bestLen {
			best, bestLen = s, len(configured)
		}
	}
	if bestLen > 0 {
		return best, true
	}

	return t.fallback, false
}

// ResolveURL resolves the configuration for the host of rawURL.
func (t *SourceTable) ResolveURL(rawURL string) (SourceConfig, bool) {
	return t.Resolve(HostOf(rawURL))
}

// HostOf returns the lower-cased host (without port) of rawURL, or "".
func HostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return normalizeHost(u.Hostname())
}

func normalizeHost(host string) string {
	host = strings.ToLower(strings.TrimSpace(host))
	return strings.TrimPrefix(host, "www.")
}

// DefaultSources is the built-in host table used when the config file
// declares none.
func DefaultSources() []SourceConfig {
	return []SourceConfig{
		{
			Host: "curis.stanford.edu", Name: "CS CURIS Program", Delay: 2 * time.Second,
			Department: "Computer Science",
			Selectors:  []string{".project", ".opportunity", ".position"},
		},
		{
			Host: "biox.stanford.edu", Name: "Bio-X Undergraduate Research", Delay: 2500 * time.Millisecond,
			Department: "Bio-X",
			Selectors:  []string{".research-opportunity", ".project", ".program-item"},
		},
		{
			Host: "mse.stanford.edu", Name: "Materials Science REU", Delay: 2 * time.Second,
			Department: "Materials Science", Selectors: []string{".reu-project", ".research-project"},
		},
		{
			Host: "med.stanford.edu", Name: "Stanford Medicine Research", Delay: 3 * time.Second,
			Department: "Medicine", Selectors: []string{".training-program", ".research-opportunity"},
		},
		{
			Host: "biology.stanford.edu", Name: "Biology BSURP", Delay: 2 * time.Second,
			Department: "Biology",
		},
		{
			Host: "siepr.stanford.edu", Name: "SIEPR Research", Delay: 2 * time.Second,
			Department: "Economics",
		},
		{
			Host: "careers.stanfordhealthcare.org", Name: "Stanford Health Care Careers", Delay: 3 * time.Second,
			RequiresJS: true, Department: "Healthcare", Extractor: ExtractorProfileShallow,
		},
		{
			Host: "stanford.edu", Name: "Stanford (generic)", Delay: 2 * time.Second,
		},
	}
}

// DefaultTargetURLs is the built-in crawl list used when none is configured.
func DefaultTargetURLs() []string {
	return []string{
		"https://curis.stanford.edu/",
		"https://biox.stanford.edu/research/undergraduate-research",
		"http://mse.stanford.edu/REU",
		"https://aa.stanford.edu/academics-admissions/undergraduate-research",
		"https://ee.stanford.edu/academics/reu",
		"https://med.stanford.edu/cvi/education/cvi-summer-research-program.html",
		"https://surim.stanford.edu/",
		"https://med.stanford.edu/research.html",
		"https://canarycenter.stanford.edu/canarycrest.html",
		"https://biology.stanford.edu/academics/undergraduate-program/doing-research/biology-summer-undergraduate-research-program-bsurp",
		"https://solo.stanford.edu/programs/environment-and-policy-internships-epic",
		"https://sesur.stanford.edu/",
		"https://siepr.stanford.edu/programs/undergraduate-students/undergraduate-research-assistant-openings",
		"https://fsi.stanford.edu/studentprograms",
		"https://sgs.stanford.edu/funding-opportunities/global-studies-internships",
		"https://shc.stanford.edu/stanford-humanities-center/research-assistants",
		"https://gender.stanford.edu/fellowships/susan-heck-summer-internship",
		"https://physics.stanford.edu/undergraduate-research",
		"https://linguistics.stanford.edu/degree-programs/undergraduate-program/research-internships",
		"https://careers.stanfordhealthcare.org/us/en/internships-and-fellowships",
	}
}
