package fetcher

import (
	"context"
	"sync"
	"time"

	"github.com/jonesrussell/re-search/internal/retry"
)

// Politeness serialises requests to each host and keeps a minimum gap
// between the end of one attempt and the start of the next.
type Politeness struct {
	mu    sync.Mutex
	hosts map[string]*hostGate
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

type hostGate struct {
	slot      chan struct{}
	nextAfter time.Time
}

// NewPoliteness returns an empty per-host gate set.
func NewPoliteness() *Politeness {
	return &Politeness{
		hosts: make(map[string]*hostGate),
		now:   time.Now,
		sleep: retry.Sleep,
	}
}

// Acquire blocks until host is free and its politeness gap has elapsed.
// The returned release must be called after the attempt with the delay that
// the next request to host has to wait.
func (p *Politeness) Acquire(ctx context.Context, host string) (release func(delay time.Duration), err error) {
	gate := p.gate(host)

	select {
	case gate.slot <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	if wait := gate.nextAfter.Sub(p.now()); wait > 0 {
		if sleepErr := p.sleep(ctx, wait); sleepErr != nil {
			<-gate.slot
			return nil, sleepErr
		}
	}

	var once sync.Once
	return func(delay time.Duration) {
		once.Do(func() {
			gate.nextAfter = p.now().Add(delay)
			<-gate.slot
		})
	}, nil
}

func (p *Politeness) gate(host string) *hostGate {
	p.mu.Lock()
	defer p.mu.Unlock()

	g, ok := p.hosts[host]
	if !ok {
		g = &hostGate{slot: make(chan struct{}, 1)}
		p.hosts[host] = g
	}
	return g
}
