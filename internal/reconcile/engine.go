// Package reconcile merges each crawl's candidates into the persisted
// opportunity set for a source. Records are matched by exact content
// fingerprint, then by weighted similarity, and unmatched records are aged
// through missing to removed.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jonesrussell/re-search/internal/config"
	"github.com/jonesrussell/re-search/internal/domain"
	"github.com/jonesrussell/re-search/internal/logger"
)

// Result is the outcome of one reconciliation pass.
type Result struct {
	Counts domain.ReconcileCounts
	// Changed holds every record written in the pass, in write order.
	Changed []domain.Opportunity
}

// Engine reconciles candidates against a Store.
type Engine struct {
	store  Store
	locker Locker
	cfg    config.ReconcileConfig
	log    logger.Logger
	now    func() time.Time
	newID  func() string
}

// Option configures an Engine.
type Option func(*Engine)

// WithLocker replaces the in-process per-source locker.
func WithLocker(l Locker) Option {
	return func(e *Engine) { e.locker = l }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithIDGenerator overrides the record ID source.
func WithIDGenerator(fn func() string) Option {
	return func(e *Engine) { e.newID = fn }
}

// NewEngine creates an Engine. Zero config values take the package defaults.
func NewEngine(store Store, cfg config.ReconcileConfig, log logger.Logger, opts ...Option) *Engine {
	if cfg.SimilarityThreshold <= 0 {
		cfg.SimilarityThreshold = config.DefaultSimilarityThreshold
	}
	if cfg.RemovalThreshold <= 0 {
		cfg.RemovalThreshold = config.DefaultRemovalThreshold
	}
	if cfg.NewGrace <= 0 {
		cfg.NewGrace = config.DefaultNewGrace
	}
	if log == nil {
		log = logger.NewNop()
	}

	e := &Engine{
		store:  store,
		locker: NewLocalLocker(),
		cfg:    cfg,
		log:    log.With(logger.Component("reconcile")),
		now:    time.Now,
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Reconcile merges candidates into the records stored for sourceURL. The pass
// holds the source lock and runs in a single transaction that is rolled back
// on any error. An empty batch changes nothing.
func (e *Engine) Reconcile(ctx context.Context, sourceURL string, candidates []domain.Candidate) (Result, error) {
	if len(candidates) == 0 {
		return Result{}, nil
	}

	unlock, err := e.locker.Lock(ctx, sourceURL)
	if err != nil {
		return Result{}, fmt.Errorf("lock source %s: %w", sourceURL, err)
	}
	defer unlock()

	tx, err := e.store.Begin(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("begin reconcile: %w", err)
	}

	res, err := e.reconcile(ctx, tx, sourceURL, candidates)
	if err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, ErrTxDone) {
			e.log.Error("Rollback failed", logger.URL(sourceURL), logger.Error(rbErr))
		}
		return Result{}, err
	}

	if commitErr := tx.Commit(); commitErr != nil {
		return Result{}, fmt.Errorf("commit reconcile: %w", commitErr)
	}

	e.log.Info("Reconciled source",
		logger.URL(sourceURL),
		logger.Int("candidates", len(candidates)),
		logger.Int("new", res.Counts.New),
		logger.Int("updated", res.Counts.Updated),
		logger.Int("missing", res.Counts.Missing),
		logger.Int("reappeared", res.Counts.Reappeared),
		logger.Int("removed", res.Counts.Removed),
	)
	return res, nil
}

// pass is the working state of one reconciliation.
type pass struct {
	// pool holds every matchable record: existing non-removed ones first,
	// then records inserted earlier in this pass.
	pool     []*domain.Opportunity
	seen     map[string]bool
	inserted map[string]bool
	dirty    map[string]bool
	order    []string
}

func (p *pass) markDirty(o *domain.Opportunity) {
	if !p.dirty[o.ID] {
		p.dirty[o.ID] = true
		p.order = append(p.order, o.ID)
	}
}

func (e *Engine) reconcile(ctx context.Context, tx Tx, sourceURL string, candidates []domain.Candidate) (Result, error) {
	existing, err := tx.ListBySource(ctx, sourceURL)
	if err != nil {
		return Result{}, fmt.Errorf("list opportunities for %s: %w", sourceURL, err)
	}

	now := e.now()
	p := &pass{
		seen:     make(map[string]bool),
		inserted: make(map[string]bool),
		dirty:    make(map[string]bool),
	}
	for i := range existing {
		if existing[i].Status == domain.StatusRemoved {
			continue
		}
		p.pool = append(p.pool, &existing[i])
	}
	preexisting := len(p.pool)

	var counts domain.ReconcileCounts
	for i := range candidates {
		if err = ctx.Err(); err != nil {
			return Result{}, err
		}
		c := candidates[i]
		c.SourceURL = sourceURL
		e.match(p, &c, now, &counts)
	}

	for _, o := range p.pool[:preexisting] {
		if p.seen[o.ID] {
			continue
		}
		o.ConsecutiveMissingCount++
		if o.ConsecutiveMissingCount >= e.cfg.RemovalThreshold {
			o.Status = domain.StatusRemoved
			o.IsActive = false
			counts.Removed++
			e.log.Info("Opportunity removed", logger.String("id", o.ID), logger.String("title", o.Title))
		} else {
			o.Status = domain.StatusMissing
			counts.Missing++
			e.log.Debug("Opportunity missing",
				logger.String("id", o.ID),
				logger.Int("consecutive_missing", o.ConsecutiveMissingCount))
		}
		p.markDirty(o)
	}

	graceCutoff := now.Add(-e.cfg.NewGrace)
	for _, o := range p.pool {
		if o.Status == domain.StatusNew && o.FirstSeenAt.Before(graceCutoff) {
			o.Status = domain.StatusActive
			p.markDirty(o)
		}
	}

	byID := make(map[string]*domain.Opportunity, len(p.pool))
	for _, o := range p.pool {
		byID[o.ID] = o
	}

	res := Result{Counts: counts, Changed: make([]domain.Opportunity, 0, len(p.order))}
	for _, id := range p.order {
		o := byID[id]
		if p.inserted[id] {
			err = tx.Insert(ctx, o)
		} else {
			err = tx.Update(ctx, o)
		}
		if err != nil {
			return Result{}, fmt.Errorf("write opportunity %s: %w", id, err)
		}
		res.Changed = append(res.Changed, *o)
	}
	return res, nil
}

// match resolves one candidate to an exact match, a similar record, or a new
// insertion.
func (e *Engine) match(p *pass, c *domain.Candidate, now time.Time, counts *domain.ReconcileCounts) {
	fingerprint := Fingerprint(c)

	for _, o := range p.pool {
		if o.ContentFingerprint != fingerprint {
			continue
		}
		o.LastSeenAt = now
		o.ScrapedAt = now
		if e.revive(o) {
			counts.Reappeared++
		}
		p.seen[o.ID] = true
		p.markDirty(o)
		return
	}

	if best, score := e.mostSimilar(p.pool, c); best != nil {
		best.ApplyContent(c)
		best.ContentFingerprint = fingerprint
		best.LastSeenAt = now
		best.LastUpdatedAt = now
		best.ScrapedAt = now
		stampProcessed(best, c, now)

		// A near-duplicate of a record inserted in this pass folds into it.
		// The record stays new until its grace window elapses.
		if p.inserted[best.ID] {
			e.log.Debug("Merged near-duplicate candidate",
				logger.String("id", best.ID),
				logger.String("title", best.Title),
				logger.Float64("similarity", score))
			return
		}

		if e.revive(best) {
			counts.Reappeared++
		}
		best.Status = domain.StatusActive
		p.seen[best.ID] = true
		p.markDirty(best)
		counts.Updated++
		e.log.Debug("Updated similar opportunity",
			logger.String("id", best.ID),
			logger.String("title", best.Title),
			logger.Float64("similarity", score))
		return
	}

	o := &domain.Opportunity{
		ID:                 e.newID(),
		SourceURL:          c.SourceURL,
		ApplicationURL:     c.SourceURL,
		ContentFingerprint: fingerprint,
		SimilarityGroup:    SimilarityGroup(c),
		Status:             domain.StatusNew,
		IsActive:           true,
		FirstSeenAt:        now,
		LastSeenAt:         now,
		LastUpdatedAt:      now,
		ScrapedAt:          now,
	}
	o.ApplyContent(c)
	if o.OpportunityType == "" {
		o.OpportunityType = domain.TypeResearch
	}
	stampProcessed(o, c, now)

	p.pool = append(p.pool, o)
	p.seen[o.ID] = true
	p.inserted[o.ID] = true
	p.markDirty(o)
	counts.New++
	e.log.Debug("New opportunity", logger.String("id", o.ID), logger.String("title", o.Title))
}

// revive moves a missing record back to active. It reports whether the
// record was missing.
func (e *Engine) revive(o *domain.Opportunity) bool {
	if o.Status != domain.StatusMissing {
		return false
	}
	o.Status = domain.StatusActive
	o.ConsecutiveMissingCount = 0
	o.IsActive = true
	e.log.Info("Opportunity reappeared", logger.String("id", o.ID), logger.String("title", o.Title))
	return true
}

func (e *Engine) mostSimilar(pool []*domain.Opportunity, c *domain.Candidate) (*domain.Opportunity, float64) {
	want := Fields{Title: c.Title, Description: c.Description, Department: c.Department, SourceURL: c.SourceURL}

	var (
		best      *domain.Opportunity
		bestScore float64
	)
	for _, o := range pool {
		score := Score(want, Fields{
			Title:       o.Title,
			Description: o.Description,
			Department:  o.Department,
			SourceURL:   o.SourceURL,
		})
		if score > bestScore {
			best, bestScore = o, score
		}
	}
	if bestScore < e.cfg.SimilarityThreshold {
		return nil, bestScore
	}
	return best, bestScore
}

func stampProcessed(o *domain.Opportunity, c *domain.Candidate, now time.Time) {
	if !c.InferenceParsed {
		return
	}
	at := now
	o.ProcessedAt = &at
}
