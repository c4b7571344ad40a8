package logger_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jonesrussell/re-search/internal/logger"
)

func TestNew_WritesJSONToOutputPath(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "out.log")

	log, err := logger.New(logger.Config{Level: "debug", OutputPaths: []string{path}})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	log.With(logger.Component("fetcher")).Info("page fetched", logger.URL("https://example.edu/"))
	_ = log.Sync()

	data, readErr := os.ReadFile(path)
	if readErr != nil {
		t.Fatalf("read log file: %v", readErr)
	}

	out := string(data)
	for _, want := range []string{`"msg":"page fetched"`, `"component":"fetcher"`, `"url":"https://example.edu/"`} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %s: %s", want, out)
		}
	}
}

func TestNew_LevelFiltersDebug(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "out.log")

	log, err := logger.New(logger.Config{Level: "warn", OutputPaths: []string{path}})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	log.Debug("hidden")
	log.Warn("shown")
	_ = log.Sync()

	data, _ := os.ReadFile(path)
	if strings.Contains(string(data), "hidden") {
		t.Error("debug entry written at warn level")
	}
	if !strings.Contains(string(data), "shown") {
		t.Error("warn entry missing")
	}
}

func TestFromContext(t *testing.T) {
	t.Parallel()

	stored := logger.NewNop()
	ctx := logger.WithContext(context.Background(), stored)

	if got := logger.FromContext(ctx, nil); got != stored {
		t.Error("expected stored logger")
	}

	fallback := logger.NewNop()
	if got := logger.FromContext(context.Background(), fallback); got != fallback {
		t.Error("expected fallback logger")
	}

	if got := logger.FromContext(context.Background(), nil); got == nil {
		t.Error("expected non-nil logger")
	}
}
