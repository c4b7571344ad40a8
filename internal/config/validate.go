package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/robfig/cron/v3"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate checks the configuration for values the service cannot run with.
func (c *Config) Validate() error {
	var errs []error

	if c.Reconcile.SimilarityThreshold <= 0 || c.Reconcile.SimilarityThreshold > 1 {
		errs = append(errs, &ValidationError{Field: "reconcile.similarity_threshold", Message: "must be in (0, 1]"})
	}
	if c.Reconcile.RemovalThreshold < 1 {
		errs = append(errs, &ValidationError{Field: "reconcile.removal_threshold", Message: "must be at least 1"})
	}
	if c.Inference.SampleRate < 0 || c.Inference.SampleRate > 1 {
		errs = append(errs, &ValidationError{Field: "inference.sample_rate", Message: "must be in [0, 1]"})
	}
	if c.Crawl.Workers < 1 {
		errs = append(errs, &ValidationError{Field: "crawl.workers", Message: "must be at least 1"})
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, &ValidationError{Field: "server.port", Message: "must be between 1 and 65535"})
	}

	switch strings.ToLower(c.Inference.Provider) {
	case "openai", "ollama", "anthropic":
	default:
		errs = append(errs, &ValidationError{Field: "inference.provider", Message: "must be one of: openai, ollama, anthropic"})
	}

	for i, raw := range c.Crawl.URLs {
		if err := ValidateCrawlURL(raw); err != nil {
			errs = append(errs, &ValidationError{Field: fmt.Sprintf("crawl.urls[%d]", i), Message: err.Error()})
		}
	}

	for i := range c.Sources {
		switch c.Sources[i].Extractor {
		case "", ExtractorProfileDefault, ExtractorProfileShallow:
		default:
			errs = append(errs, &ValidationError{
				Field:   fmt.Sprintf("sources[%d].extractor", i),
				Message: "must be one of: default, shallow",
			})
		}
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	for field, spec := range map[string]string{
		"crawl.schedule":         c.Crawl.Schedule,
		"crawl.cleanup_schedule": c.Crawl.CleanupSchedule,
	} {
		if _, err := parser.Parse(spec); err != nil {
			errs = append(errs, &ValidationError{Field: field, Message: err.Error()})
		}
	}

	return errors.Join(errs...)
}

// ValidateCrawlURL checks that raw is an absolute http(s) URL.
func ValidateCrawlURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid URL %q: %w", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("URL %q must use http or https", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("URL %q has no host", raw)
	}
	return nil
}
