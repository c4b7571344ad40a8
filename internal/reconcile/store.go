package reconcile

import (
	"context"
	"errors"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/jonesrussell/re-search/internal/domain"
)

// ErrTxDone is returned when a finished transaction is used again.
var ErrTxDone = errors.New("transaction already committed or rolled back")

// Store opens transactions over persisted opportunities.
type Store interface {
	Begin(ctx context.Context) (Tx, error)
}

// Tx is one reconciliation transaction. Either every write lands on Commit
// or none does.
type Tx interface {
	ListBySource(ctx context.Context, sourceURL string) ([]domain.Opportunity, error)
	Insert(ctx context.Context, o *domain.Opportunity) error
	Update(ctx context.Context, o *domain.Opportunity) error
	Commit() error
	Rollback() error
}

// MemoryStore is an in-process Store used when no database is configured.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]domain.Opportunity
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]domain.Opportunity)}
}

// Begin implements Store.
func (s *MemoryStore) Begin(_ context.Context) (Tx, error) {
	return &memoryTx{store: s, staged: make(map[string]domain.Opportunity)}, nil
}

// BySource returns the records stored for sourceURL ordered by first sighting.
func (s *MemoryStore) BySource(sourceURL string) []domain.Opportunity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Opportunity
	for _, o := range s.records {
		if o.SourceURL == sourceURL {
			out = append(out, clone(o))
		}
	}
	sortByFirstSeen(out)
	return out
}

// RecentNew returns active records first seen at or after since, newest
// first. A limit of zero returns everything.
func (s *MemoryStore) RecentNew(_ context.Context, since time.Time, limit int) ([]domain.Opportunity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Opportunity
	for _, o := range s.records {
		if !o.IsActive || o.Status == domain.StatusRemoved || o.FirstSeenAt.Before(since) {
			continue
		}
		out = append(out, clone(o))
	}
	sortByFirstSeen(out)
	slices.Reverse(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// DeleteInactiveBefore removes inactive records last scraped before cutoff.
func (s *MemoryStore) DeleteInactiveBefore(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, o := range s.records {
		if !o.IsActive && o.ScrapedAt.Before(cutoff) {
			delete(s.records, id)
			n++
		}
	}
	return n, nil
}

type memoryTx struct {
	store  *MemoryStore
	staged map[string]domain.Opportunity
	done   bool
}

func (t *memoryTx) ListBySource(_ context.Context, sourceURL string) ([]domain.Opportunity, error) {
	if t.done {
		return nil, ErrTxDone
	}
	return t.store.BySource(sourceURL), nil
}

func (t *memoryTx) Insert(_ context.Context, o *domain.Opportunity) error {
	if t.done {
		return ErrTxDone
	}
	t.staged[o.ID] = clone(*o)
	return nil
}

func (t *memoryTx) Update(ctx context.Context, o *domain.Opportunity) error {
	return t.Insert(ctx, o)
}

func (t *memoryTx) Commit() error {
	if t.done {
		return ErrTxDone
	}
	t.done = true
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	for id, o := range t.staged {
		t.store.records[id] = o
	}
	return nil
}

func (t *memoryTx) Rollback() error {
	if t.done {
		return ErrTxDone
	}
	t.done = true
	t.staged = nil
	return nil
}

func clone(o domain.Opportunity) domain.Opportunity {
	o.Tags = slices.Clone(o.Tags)
	if o.ProcessedAt != nil {
		at := *o.ProcessedAt
		o.ProcessedAt = &at
	}
	return o
}

func sortByFirstSeen(list []domain.Opportunity) {
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].FirstSeenAt.Equal(list[j].FirstSeenAt) {
			return list[i].ID < list[j].ID
		}
		return list[i].FirstSeenAt.Before(list[j].FirstSeenAt)
	})
}
