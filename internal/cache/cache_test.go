package cache

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voltmap/irve-etl/internal/domain"
	"github.com/voltmap/irve-etl/internal/loader"
	"github.com/voltmap/irve-etl/internal/observability"
	"github.com/voltmap/irve-etl/internal/pipeline"
)

// stubBuilder counts invocations and can be switched to fail.
type stubBuilder struct {
	mu     sync.Mutex
	builds atomic.Int32
	fail   error
	block  chan struct{} // when set, Build waits on it before returning
}

func (b *stubBuilder) Build(_ context.Context, src loader.Source) (*domain.CleanDataset, error) {
	b.builds.Add(1)
	if b.block != nil {
		<-b.block
	}
	b.mu.Lock()
	fail := b.fail
	b.mu.Unlock()
	if fail != nil {
		return nil, fail
	}
	return &domain.CleanDataset{
		Fingerprint: pipeline.Fingerprint(src),
		Records:     []domain.ChargePoint{{IdentityKey: "pdc:FR1"}},
	}, nil
}

func (b *stubBuilder) setFail(err error) {
	b.mu.Lock()
	b.fail = err
	b.mu.Unlock()
}

func newTestCache(b Builder) *Cache {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	return New(b, logger, observability.NewMetricsForTesting())
}

func TestGetOrBuild(t *testing.T) {
	src := loader.Source{Path: "/data/irve.csv", SchemaVersion: "v2"}

	t.Run("miss builds then hit reuses", func(t *testing.T) {
		b := &stubBuilder{}
		c := newTestCache(b)

		first, err := c.GetOrBuild(context.Background(), src)
		require.NoError(t, err)
		second, err := c.GetOrBuild(context.Background(), src)
		require.NoError(t, err)

		assert.Same(t, first, second)
		assert.Equal(t, int32(1), b.builds.Load())
	})

	t.Run("distinct fingerprints build separately", func(t *testing.T) {
		b := &stubBuilder{}
		c := newTestCache(b)

		_, err := c.GetOrBuild(context.Background(), src)
		require.NoError(t, err)
		_, err = c.GetOrBuild(context.Background(), loader.Source{Path: "/data/other.csv"})
		require.NoError(t, err)

		assert.Equal(t, int32(2), b.builds.Load())
	})

	t.Run("build failure surfaces and nothing is published", func(t *testing.T) {
		b := &stubBuilder{}
		b.setFail(errors.New("boom"))
		c := newTestCache(b)

		_, err := c.GetOrBuild(context.Background(), src)
		require.Error(t, err)
		assert.Nil(t, c.Current(src))

		_, lastErr := c.LastError(src)
		assert.Error(t, lastErr)
	})
}

func TestGetOrBuild_Coalescing(t *testing.T) {
	src := loader.Source{Path: "/data/irve.csv", SchemaVersion: "v2"}
	b := &stubBuilder{block: make(chan struct{})}
	c := newTestCache(b)

	const callers = 8
	results := make([]*domain.CleanDataset, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ds, err := c.GetOrBuild(context.Background(), src)
			assert.NoError(t, err)
			results[i] = ds
		}(i)
	}

	close(b.block) // release the single in-flight build
	wg.Wait()

	assert.Equal(t, int32(1), b.builds.Load(), "concurrent misses must coalesce into one build")
	for i := 1; i < callers; i++ {
		assert.Same(t, results[0], results[i])
	}
}

func TestGetOrBuild_CoalescedFailure(t *testing.T) {
	src := loader.Source{Path: "/data/irve.csv", SchemaVersion: "v2"}
	b := &stubBuilder{block: make(chan struct{})}
	b.setFail(errors.New("source down"))
	c := newTestCache(b)

	const callers = 6
	errs := make([]error, callers)
	var launched, wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		launched.Add(1)
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			launched.Done()
			_, errs[i] = c.GetOrBuild(context.Background(), src)
		}(i)
	}

	launched.Wait()
	time.Sleep(50 * time.Millisecond) // let every caller join the in-flight round
	close(b.block)
	wg.Wait()

	// One fetch against the down source answers the whole round; the waiters
	// must not each retry it in turn.
	assert.Equal(t, int32(1), b.builds.Load(), "a failed build must fail all coalesced waiters, not trigger retries")
	for i := 0; i < callers; i++ {
		assert.ErrorContains(t, errs[i], "source down")
	}

	// The round is over: a fresh miss starts a fresh build.
	b.setFail(nil)
	_, err := c.GetOrBuild(context.Background(), src)
	require.NoError(t, err)
	assert.Equal(t, int32(2), b.builds.Load())
}

func TestRefresh(t *testing.T) {
	src := loader.Source{Path: "/data/irve.csv", SchemaVersion: "v2"}

	t.Run("publishes a fresh dataset", func(t *testing.T) {
		b := &stubBuilder{}
		c := newTestCache(b)

		first, err := c.GetOrBuild(context.Background(), src)
		require.NoError(t, err)
		refreshed, err := c.Refresh(context.Background(), src)
		require.NoError(t, err)

		assert.NotSame(t, first, refreshed)
		assert.Same(t, refreshed, c.Current(src))
		assert.Equal(t, int32(2), b.builds.Load())
	})

	t.Run("failed refresh keeps previous dataset servable", func(t *testing.T) {
		b := &stubBuilder{}
		c := newTestCache(b)

		first, err := c.GetOrBuild(context.Background(), src)
		require.NoError(t, err)

		b.setFail(errors.New("source down"))
		_, err = c.Refresh(context.Background(), src)
		require.Error(t, err)

		assert.Same(t, first, c.Current(src))
		errAt, lastErr := c.LastError(src)
		assert.Error(t, lastErr)
		assert.False(t, errAt.IsZero())

		// A later success clears the staleness marker.
		b.setFail(nil)
		_, err = c.Refresh(context.Background(), src)
		require.NoError(t, err)
		_, lastErr = c.LastError(src)
		assert.NoError(t, lastErr)
	})

	t.Run("failure timestamp comes from the injected clock", func(t *testing.T) {
		fake := clockwork.NewFakeClockAt(time.Date(2025, 3, 2, 8, 0, 0, 0, time.UTC))
		SetClock(fake)
		defer SetClock(nil)

		b := &stubBuilder{}
		b.setFail(errors.New("source down"))
		c := newTestCache(b)

		_, err := c.GetOrBuild(context.Background(), src)
		require.Error(t, err)

		errAt, lastErr := c.LastError(src)
		assert.Error(t, lastErr)
		assert.Equal(t, fake.Now().UTC(), errAt)
	})
}

func TestInvalidate(t *testing.T) {
	src := loader.Source{Path: "/data/irve.csv", SchemaVersion: "v2"}
	b := &stubBuilder{}
	c := newTestCache(b)

	_, err := c.GetOrBuild(context.Background(), src)
	require.NoError(t, err)

	c.Invalidate(src)
	assert.Nil(t, c.Current(src))

	_, err = c.GetOrBuild(context.Background(), src)
	require.NoError(t, err)
	assert.Equal(t, int32(2), b.builds.Load())
}

func TestSeed(t *testing.T) {
	src := loader.Source{Path: "/data/irve.csv", SchemaVersion: "v2"}
	b := &stubBuilder{}
	c := newTestCache(b)

	t.Run("matching fingerprint accepted", func(t *testing.T) {
		ds := &domain.CleanDataset{Fingerprint: pipeline.Fingerprint(src)}
		assert.True(t, c.Seed(src, ds))
		assert.Same(t, ds, c.Current(src))

		got, err := c.GetOrBuild(context.Background(), src)
		require.NoError(t, err)
		assert.Same(t, ds, got)
		assert.Equal(t, int32(0), b.builds.Load())
	})

	t.Run("stale fingerprint rejected", func(t *testing.T) {
		other := loader.Source{Path: "/data/other.csv"}
		assert.False(t, c.Seed(other, &domain.CleanDataset{Fingerprint: "outdated"}))
		assert.Nil(t, c.Current(other))
	})
}
