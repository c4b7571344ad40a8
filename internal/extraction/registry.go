package extraction

import (
	"fmt"

	"github.com/jonesrussell/re-search/internal/config"
)

// Registry is the per-host dispatch table. Hosts resolve to a SourceConfig
// through the source table; the source's extractor profile then selects the
// heuristic Extractor.
type Registry struct {
	sources        *config.SourceTable
	profiles       map[string]Extractor
	defaultProfile string
}

// NewRegistry builds a Registry. profiles must contain defaultProfile.
func NewRegistry(sources *config.SourceTable, profiles map[string]Extractor, defaultProfile string) (*Registry, error) {
	if sources == nil {
		return nil, fmt.Errorf("new registry: source table is nil")
	}
	if _, ok := profiles[defaultProfile]; !ok {
		return nil, fmt.Errorf("new registry: default profile %q not registered", defaultProfile)
	}
	return &Registry{
		sources:        sources,
		profiles:       profiles,
		defaultProfile: defaultProfile,
	}, nil
}

// Source returns the configuration for rawURL's host.
func (r *Registry) Source(rawURL string) config.SourceConfig {
	src, _ := r.sources.ResolveURL(rawURL)
	return src
}

// Extractor returns the heuristic extractor for a source. Unknown profiles use
// the default.
func (r *Registry) Extractor(src *config.SourceConfig) Extractor {
	if e, ok := r.profiles[src.Extractor]; ok && src.Extractor != "" {
		return e
	}
	return r.profiles[r.defaultProfile]
}
