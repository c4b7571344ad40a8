package fetcher_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonesrussell/re-search/internal/fetcher"
)

func TestPoliteness_SerialisesHost(t *testing.T) {
	t.Parallel()

	p := fetcher.NewPoliteness()
	ctx := context.Background()

	release, err := p.Acquire(ctx, "a.example.edu")
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}

	// A different host is not blocked.
	otherRelease, err := p.Acquire(ctx, "b.example.edu")
	if err != nil {
		t.Fatalf("acquire other host: %v", err)
	}
	otherRelease(0)

	blockedCtx, cancel := context.WithTimeout(ctx, 30*time.Millisecond)
	defer cancel()
	if _, err := p.Acquire(blockedCtx, "a.example.edu"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline while host is busy, got %v", err)
	}

	release(0)
	again, err := p.Acquire(ctx, "a.example.edu")
	if err != nil {
		t.Fatalf("acquire after release: %v", err)
	}
	again(0)
}

func TestPoliteness_WaitsForDelay(t *testing.T) {
	t.Parallel()

	const delay = 50 * time.Millisecond
	p := fetcher.NewPoliteness()
	ctx := context.Background()

	release, err := p.Acquire(ctx, "a.example.edu")
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	release(delay)
	release(time.Hour) // second call is ignored

	start := time.Now()
	next, err := p.Acquire(ctx, "a.example.edu")
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	next(0)

	if waited := time.Since(start); waited < delay-5*time.Millisecond || waited > time.Second {
		t.Errorf("waited %v, want about %v", waited, delay)
	}
}
