package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/re-search/internal/config"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_DefaultsWhenFileMissing(t *testing.T) {
	t.Setenv("ENV_FILE", filepath.Join(t.TempDir(), "absent.env"))

	cfg, err := config.Load(filepath.Join(t.TempDir(), "missing.yml"))
	require.NoError(t, err)

	assert.Equal(t, config.DefaultSimilarityThreshold, cfg.Reconcile.SimilarityThreshold)
	assert.Equal(t, config.DefaultRemovalThreshold, cfg.Reconcile.RemovalThreshold)
	assert.Equal(t, config.DefaultDailyCallLimit, cfg.Inference.DailyCallLimit)
	assert.Equal(t, config.DefaultInferenceRetries, cfg.Inference.MaxRetries)
	assert.Equal(t, config.DefaultWorkers, cfg.Crawl.Workers)
	assert.True(t, cfg.Inference.IsEnabled())
	assert.True(t, cfg.Database.IsEnabled())
	assert.NotEmpty(t, cfg.Crawl.URLs)
	assert.NotEmpty(t, cfg.Sources)
}

func TestLoad_FileValues(t *testing.T) {
	t.Setenv("ENV_FILE", filepath.Join(t.TempDir(), "absent.env"))

	path := writeConfig(t, `
inference:
  enabled: false
  provider: anthropic
  daily_call_limit: 25
reconcile:
  similarity_threshold: 0.9
crawl:
  workers: 2
  urls:
    - https://lab.example.edu/openings
sources:
  - host: lab.example.edu
    delay: 5s
    requires_js: true
`)

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.False(t, cfg.Inference.IsEnabled())
	assert.Equal(t, "anthropic", cfg.Inference.Provider)
	assert.Equal(t, 25, cfg.Inference.DailyCallLimit)
	assert.InDelta(t, 0.9, cfg.Reconcile.SimilarityThreshold, 1e-9)
	assert.Equal(t, 2, cfg.Crawl.Workers)
	assert.Equal(t, []string{"https://lab.example.edu/openings"}, cfg.Crawl.URLs)
	require.Len(t, cfg.Sources, 1)
	assert.Equal(t, 5*time.Second, cfg.Sources[0].Delay)
	assert.True(t, cfg.Sources[0].RequiresJS)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	t.Setenv("ENV_FILE", filepath.Join(t.TempDir(), "absent.env"))
	t.Setenv("CRAWL_WORKERS", "9")
	t.Setenv("INFERENCE_ENABLED", "false")
	t.Setenv("CRAWL_URLS", "https://a.example.edu/, https://b.example.edu/")
	t.Setenv("INFERENCE_TIMEOUT", "10s")

	path := writeConfig(t, "crawl:\n  workers: 3\n")

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9, cfg.Crawl.Workers)
	assert.False(t, cfg.Inference.IsEnabled())
	assert.Equal(t, []string{"https://a.example.edu/", "https://b.example.edu/"}, cfg.Crawl.URLs)
	assert.Equal(t, 10*time.Second, cfg.Inference.Timeout)
}

func TestLoad_InvalidValues(t *testing.T) {
	t.Setenv("ENV_FILE", filepath.Join(t.TempDir(), "absent.env"))

	path := writeConfig(t, `
reconcile:
  similarity_threshold: 1.5
inference:
  provider: carrier-pigeon
crawl:
  urls:
    - ftp://files.example.edu/
`)

	_, err := config.Load(path)
	require.Error(t, err)

	msg := err.Error()
	assert.Contains(t, msg, "reconcile.similarity_threshold")
	assert.Contains(t, msg, "inference.provider")
	assert.Contains(t, msg, "crawl.urls[0]")
}

func TestSourceTable_Resolve(t *testing.T) {
	t.Parallel()

	fallback := config.SourceConfig{Name: "fallback", Delay: time.Second}
	table := config.NewSourceTable([]config.SourceConfig{
		{Host: "stanford.edu", Name: "generic"},
		{Host: "med.stanford.edu", Name: "medicine"},
		{Host: "WWW.Example.org", Name: "example"},
	}, fallback)

	tests := []struct {
		name        string
		host        string
		wantName    string
		wantMatched bool
	}{
		{name: "exact", host: "med.stanford.edu", wantName: "medicine", wantMatched: true},
		{name: "longest suffix", host: "cvi.med.stanford.edu", wantName: "medicine", wantMatched: true},
		{name: "parent suffix", host: "physics.stanford.edu", wantName: "generic", wantMatched: true},
		{name: "www stripped", host: "www.example.org", wantName: "example", wantMatched: true},
		{name: "not a dot suffix", host: "notstanford.edu", wantName: "fallback", wantMatched: false},
		{name: "unknown", host: "mit.edu", wantName: "fallback", wantMatched: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, matched := table.Resolve(tt.host)
			assert.Equal(t, tt.wantName, got.Name)
			assert.Equal(t, tt.wantMatched, matched)
		})
	}
}

func TestSourceConfig_InferenceAllowed(t *testing.T) {
	t.Parallel()

	off := false
	assert.True(t, (&config.SourceConfig{}).InferenceAllowed())
	assert.False(t, (&config.SourceConfig{UseInference: &off}).InferenceAllowed())
}

func TestHostOf(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "curis.stanford.edu", config.HostOf("https://WWW.curis.stanford.edu:443/path"))
	assert.Empty(t, config.HostOf("::not a url"))
}
