// Package cache holds built clean datasets in process-wide memory, keyed by
// the pipeline fingerprint. Readers never block on a rebuild: a new dataset
// is published with an atomic pointer swap, and until it lands the previous
// complete dataset stays servable.
package cache

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/voltmap/irve-etl/internal/domain"
	"github.com/voltmap/irve-etl/internal/loader"
	"github.com/voltmap/irve-etl/internal/observability"
	"github.com/voltmap/irve-etl/internal/pipeline"
)

// clock is a package-level time source so tests can freeze failure
// timestamps via SetClock.
var clock = clockwork.NewRealClock()

// SetClock swaps the time source used for failure timestamps. Pass nil to
// reset to real time.
func SetClock(c clockwork.Clock) {
	if c == nil {
		clock = clockwork.NewRealClock()
		return
	}
	clock = c
}

// Builder produces a clean dataset for a source. Satisfied by *pipeline.Pipeline.
type Builder interface {
	Build(ctx context.Context, src loader.Source) (*domain.CleanDataset, error)
}

// Cache is the process-wide store of clean datasets.
type Cache struct {
	builder Builder
	logger  *slog.Logger
	metrics *observability.Metrics

	mu      sync.Mutex
	entries map[string]*entry
}

// entry tracks one fingerprint. buildMu serializes builds; roundMu guards
// the in-flight round that concurrent misses join, so one pipeline execution
// answers them all, success or failure. dataset is swapped atomically so
// readers see either the old complete dataset or the new one.
type entry struct {
	buildMu sync.Mutex
	dataset atomic.Pointer[domain.CleanDataset]

	roundMu sync.Mutex
	round   *buildRound

	errMu   sync.Mutex
	lastErr error
	errAt   time.Time
}

// buildRound is one coalesced build: the winner closes done and every joined
// waiter reads the shared result. A failed round fails all its waiters; the
// next miss starts a fresh round.
type buildRound struct {
	done chan struct{}
	ds   *domain.CleanDataset
	err  error
}

// New creates a Cache around a dataset builder.
func New(builder Builder, logger *slog.Logger, metrics *observability.Metrics) *Cache {
	return &Cache{
		builder: builder,
		logger:  logger,
		metrics: metrics,
		entries: make(map[string]*entry),
	}
}

func (c *Cache) entryFor(fingerprint string) *entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[fingerprint]
	if !ok {
		e = &entry{}
		c.entries[fingerprint] = e
	}
	return e
}

// GetOrBuild returns the cached dataset for the source's fingerprint,
// building it first if absent. Concurrent callers missing on the same
// fingerprint coalesce: the first runs one build and everyone in that round
// shares its result — a failed build fails the whole round rather than each
// waiter retrying the source in turn.
func (c *Cache) GetOrBuild(ctx context.Context, src loader.Source) (*domain.CleanDataset, error) {
	e := c.entryFor(pipeline.Fingerprint(src))

	if ds := e.dataset.Load(); ds != nil {
		c.metrics.CacheLookups.WithLabelValues("hit").Inc()
		return ds, nil
	}
	c.metrics.CacheLookups.WithLabelValues("miss").Inc()

	e.roundMu.Lock()
	if r := e.round; r != nil {
		e.roundMu.Unlock()
		select {
		case <-r.done:
			return r.ds, r.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	r := &buildRound{done: make(chan struct{})}
	e.round = r
	e.roundMu.Unlock()

	e.buildMu.Lock()
	ds, err := e.dataset.Load(), error(nil)
	if ds == nil {
		// A Refresh may have published while this round queued for buildMu.
		ds, err = c.build(ctx, src, e)
	}
	e.buildMu.Unlock()

	r.ds, r.err = ds, err
	close(r.done)
	e.roundMu.Lock()
	e.round = nil
	e.roundMu.Unlock()
	return ds, err
}

// Refresh forces a rebuild. On failure the previous dataset (if any) stays
// published and remains servable; the error is recorded for staleness
// reporting and returned to the caller.
func (c *Cache) Refresh(ctx context.Context, src loader.Source) (*domain.CleanDataset, error) {
	e := c.entryFor(pipeline.Fingerprint(src))

	e.buildMu.Lock()
	defer e.buildMu.Unlock()
	return c.build(ctx, src, e)
}

// build must be called with e.buildMu held.
func (c *Cache) build(ctx context.Context, src loader.Source, e *entry) (*domain.CleanDataset, error) {
	ds, err := c.builder.Build(ctx, src)
	if err != nil {
		e.setError(err)
		c.logger.Error("dataset build failed", "source", src.Identity(), "error", err)
		return nil, err
	}

	e.dataset.Store(ds)
	e.clearError()
	return ds, nil
}

// Current returns the published dataset for the source, or nil when nothing
// has been built yet. Never triggers a build.
func (c *Cache) Current(src loader.Source) *domain.CleanDataset {
	return c.entryFor(pipeline.Fingerprint(src)).dataset.Load()
}

// Invalidate drops the cached dataset so the next GetOrBuild reruns the
// pipeline. In-flight readers keep the dataset pointer they already hold.
func (c *Cache) Invalidate(src loader.Source) {
	fingerprint := pipeline.Fingerprint(src)
	c.mu.Lock()
	delete(c.entries, fingerprint)
	c.mu.Unlock()
	c.logger.Info("dataset invalidated", "source", src.Identity(), "fingerprint", fingerprint)
}

// Seed publishes a pre-built dataset (a warm-start snapshot) if its
// fingerprint matches the source's current fingerprint. Returns whether the
// dataset was accepted.
func (c *Cache) Seed(src loader.Source, ds *domain.CleanDataset) bool {
	if ds == nil || ds.Fingerprint != pipeline.Fingerprint(src) {
		return false
	}
	c.entryFor(ds.Fingerprint).dataset.Store(ds)
	return true
}

// LastError reports when the most recent build failure for the source
// happened and what it was, or a nil error if the last build succeeded.
// Presentation layers use it to show "stale data since ..." distinctly
// from "no data".
func (c *Cache) LastError(src loader.Source) (time.Time, error) {
	e := c.entryFor(pipeline.Fingerprint(src))
	e.errMu.Lock()
	defer e.errMu.Unlock()
	return e.errAt, e.lastErr
}

func (e *entry) setError(err error) {
	e.errMu.Lock()
	e.lastErr = err
	e.errAt = clock.Now().UTC()
	e.errMu.Unlock()
}

func (e *entry) clearError() {
	e.errMu.Lock()
	e.lastErr = nil
	e.errAt = time.Time{}
	e.errMu.Unlock()
}
