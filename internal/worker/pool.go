// Package worker runs crawl tasks on a bounded pool of goroutines.
package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/jonesrussell/re-search/internal/logger"
)

// poolPercentageMultiplier converts ratio to percentage.
const poolPercentageMultiplier = 100

// ErrPoolClosed is returned by Submit after Close.
var ErrPoolClosed = errors.New("pool is closed")

// Task is one unit of work.
type Task func(ctx context.Context) error

// PanicError is returned in place of a task's error when the task panicked.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("task panicked: %v", e.Value)
}

// Pool bounds how many tasks run at once. Tasks never take the pool down:
// errors and panics are counted and logged.
type Pool struct {
	size   int
	sem    chan struct{}
	wg     sync.WaitGroup
	logger logger.Logger
	closed atomic.Bool

	busy      atomic.Int32
	processed atomic.Int64
	succeeded atomic.Int64
	failed    atomic.Int64
	panicked  atomic.Int64
}

// NewPool creates a pool running at most size tasks concurrently.
func NewPool(size int, log logger.Logger) (*Pool, error) {
	if size <= 0 {
		return nil, fmt.Errorf("pool size must be positive, got %d", size)
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Pool{
		size:   size,
		sem:    make(chan struct{}, size),
		logger: log.With(logger.Component("worker_pool")),
	}, nil
}

// Submit blocks until a slot is free, then runs task on its own goroutine.
// It fails only when ctx ends first or the pool is closed.
func (p *Pool) Submit(ctx context.Context, task Task) error {
	if p.closed.Load() {
		return ErrPoolClosed
	}

	select {
	case p.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}

	p.wg.Add(1)
	go func() {
		defer func() {
			<-p.sem
			p.wg.Done()
		}()
		p.run(ctx, task)
	}()
	return nil
}

func (p *Pool) run(ctx context.Context, task Task) {
	p.busy.Add(1)
	defer p.busy.Add(-1)

	err := p.protect(ctx, task)

	p.processed.Add(1)
	if err == nil {
		p.succeeded.Add(1)
		return
	}
	p.failed.Add(1)

	var pe *PanicError
	if errors.As(err, &pe) {
		p.panicked.Add(1)
		p.logger.Error("Task panicked",
			logger.Any("panic", pe.Value),
			logger.String("stack", string(pe.Stack)))
		return
	}
	p.logger.Debug("Task failed", logger.Error(err))
}

func (p *Pool) protect(ctx context.Context, task Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()
	return task(ctx)
}

// Wait blocks until every submitted task has finished.
func (p *Pool) Wait() {
	p.wg.Wait()
}

// Close rejects further submissions and waits for running tasks.
func (p *Pool) Close() {
	p.closed.Store(true)
	p.wg.Wait()
}

// Size returns the pool size.
func (p *Pool) Size() int {
	return p.size
}

// Stats returns pool statistics.
func (p *Pool) Stats() PoolStats {
	return PoolStats{
		PoolSize:      p.size,
		BusyWorkers:   int(p.busy.Load()),
		JobsProcessed: p.processed.Load(),
		JobsSucceeded: p.succeeded.Load(),
		JobsFailed:    p.failed.Load(),
		JobsPanicked:  p.panicked.Load(),
	}
}

// PoolStats holds statistics for the pool.
type PoolStats struct {
	PoolSize      int
	BusyWorkers   int
	JobsProcessed int64
	JobsSucceeded int64
	JobsFailed    int64
	JobsPanicked  int64
}

// SuccessRate returns the success rate as a percentage.
func (s PoolStats) SuccessRate() float64 {
	if s.JobsProcessed == 0 {
		return 0
	}
	return float64(s.JobsSucceeded) / float64(s.JobsProcessed) * poolPercentageMultiplier
}

// Utilization returns the pool utilization as a percentage.
func (s PoolStats) Utilization() float64 {
	if s.PoolSize == 0 {
		return 0
	}
	return float64(s.BusyWorkers) / float64(s.PoolSize) * poolPercentageMultiplier
}
