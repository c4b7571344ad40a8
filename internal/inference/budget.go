package inference

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrBudgetExceeded is returned when the daily call cap has been reached.
var ErrBudgetExceeded = errors.New("inference daily budget exceeded")

const dayLayout = "2006-01-02"

// Budget is the daily external-call counter shared by every caller.
// TryAcquire atomically checks and consumes one call; it returns false once
// the configured limit for the current calendar day is reached.
type Budget interface {
	TryAcquire(ctx context.Context) (bool, error)
	Usage(ctx context.Context) (used, limit int, err error)
}

// MemoryBudget is an in-process Budget.
type MemoryBudget struct {
	mu    sync.Mutex
	limit int
	day   string
	used  int
	now   func() time.Time
}

// NewMemoryBudget returns a budget allowing limit calls per UTC day.
func NewMemoryBudget(limit int) *MemoryBudget {
	return &MemoryBudget{limit: limit, now: time.Now}
}

// WithClock replaces the clock, for tests.
func (b *MemoryBudget) WithClock(now func() time.Time) *MemoryBudget {
	b.now = now
	return b
}

func (b *MemoryBudget) rollover() {
	today := b.now().UTC().Format(dayLayout)
	if today != b.day {
		b.day = today
		b.used = 0
	}
}

// TryAcquire implements Budget.
func (b *MemoryBudget) TryAcquire(context.Context) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.rollover()
	if b.used >= b.limit {
		return false, nil
	}
	b.used++
	return true, nil
}

// Usage implements Budget.
func (b *MemoryBudget) Usage(context.Context) (used, limit int, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.rollover()
	return b.used, b.limit, nil
}

const (
	budgetKeyPrefix = "inference:budget:"
	budgetKeyTTL    = 48 * time.Hour
)

// RedisBudget shares the daily counter across processes. Each day has its own
// key, so the reset at the day boundary is implicit.
type RedisBudget struct {
	client redis.UniversalClient
	limit  int
	now    func() time.Time
}

// NewRedisBudget returns a Redis-backed budget allowing limit calls per UTC day.
func NewRedisBudget(client redis.UniversalClient, limit int) *RedisBudget {
	return &RedisBudget{client: client, limit: limit, now: time.Now}
}

// WithClock replaces the clock, for tests.
func (b *RedisBudget) WithClock(now func() time.Time) *RedisBudget {
	b.now = now
	return b
}

func (b *RedisBudget) key() string {
	return budgetKeyPrefix + b.now().UTC().Format(dayLayout)
}

// acquireScript increments the day's counter only while it is below the
// limit, so the stored count never exceeds it. Returns 1 when a slot was taken.
var acquireScript = redis.NewScript(`
local used = tonumber(redis.call("GET", KEYS[1]) or "0")
if used >= tonumber(ARGV[1]) then
	return 0
end
redis.call("INCR", KEYS[1])
redis.call("PEXPIRE", KEYS[1], ARGV[2])
return 1
`)

// TryAcquire implements Budget.
func (b *RedisBudget) TryAcquire(ctx context.Context) (bool, error) {
	taken, err := acquireScript.Run(ctx, b.client, []string{b.key()}, b.limit, budgetKeyTTL.Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("acquire budget: %w", err)
	}
	return taken == 1, nil
}

// Usage implements Budget.
func (b *RedisBudget) Usage(ctx context.Context) (used, limit int, err error) {
	n, err := b.client.Get(ctx, b.key()).Int()
	if errors.Is(err, redis.Nil) {
		return 0, b.limit, nil
	}
	if err != nil {
		return 0, b.limit, fmt.Errorf("read budget: %w", err)
	}
	return n, b.limit, nil
}
