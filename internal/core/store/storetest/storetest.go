// Package storetest holds the behavior every counter store backend must share.
package storetest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quotaward/quotaward/internal/core"
	"github.com/quotaward/quotaward/internal/core/engine"
)

// Backend is a counter store under test.
type Backend interface {
	engine.CounterStore
	engine.CounterReader
}

// Run exercises a backend. newBackend must return an empty store.
func Run(t *testing.T, newBackend func(t *testing.T) Backend) {
	t.Run("sequential limit", func(t *testing.T) { testSequentialLimit(t, newBackend(t)) })
	t.Run("window rollover", func(t *testing.T) { testWindowRollover(t, newBackend(t)) })
	t.Run("lagging clock", func(t *testing.T) { testLaggingClock(t, newBackend(t)) })
	t.Run("independent keys", func(t *testing.T) { testIndependentKeys(t, newBackend(t)) })
	t.Run("concurrent admission", func(t *testing.T) { testConcurrentAdmission(t, newBackend(t)) })
	t.Run("delete older than", func(t *testing.T) { testDeleteOlderThan(t, newBackend(t)) })
	t.Run("delete batch bound", func(t *testing.T) { testDeleteBatchBound(t, newBackend(t)) })
}

var base = time.Unix(1_700_000_000, 0).UTC()

func testSequentialLimit(t *testing.T, store Backend) {
	ctx := context.Background()
	key := core.CounterKey{Identity: "user123", Scope: core.GlobalScope()}
	limit := core.Limit{Requests: 5, WindowSeconds: 3600}

	for i := 0; i < 5; i++ {
		d, err := store.CheckAndIncrement(ctx, key, limit, base.Add(time.Duration(i)*time.Second))
		require.NoError(t, err)
		assert.True(t, d.Allowed, "call %d", i+1)
		assert.Equal(t, 4-i, d.Remaining, "call %d", i+1)
		assert.Equal(t, i+1, d.Count)
		assert.Equal(t, core.ResetAt(base, 3600), d.ResetAt)
	}

	d, err := store.CheckAndIncrement(ctx, key, limit, base.Add(10*time.Second))
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, 0, d.Remaining)
	assert.Equal(t, 5, d.Count)

	rec, err := store.GetCounter(ctx, key)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, 5, rec.Count, "denied call must not mutate the counter")
	assert.Equal(t, core.WindowStart(base, 3600), rec.WindowStart)
}

func testWindowRollover(t *testing.T, store Backend) {
	ctx := context.Background()
	key := core.CounterKey{Identity: "9.9.9.9", Scope: core.IPBurstScope()}
	limit := core.Limit{Requests: 2, WindowSeconds: 60}

	for i := 0; i < 3; i++ {
		_, err := store.CheckAndIncrement(ctx, key, limit, base)
		require.NoError(t, err)
	}

	d, err := store.CheckAndIncrement(ctx, key, limit, base.Add(60*time.Second))
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, 1, d.Count)
	assert.Equal(t, 1, d.Remaining)

	rec, err := store.GetCounter(ctx, key)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, core.WindowStart(base.Add(60*time.Second), 60), rec.WindowStart)
}

// testLaggingClock alternates callers on either side of a window boundary.
// The newer window stays in place and still enforces the limit.
func testLaggingClock(t *testing.T, store Backend) {
	ctx := context.Background()
	key := core.CounterKey{Identity: "9.9.9.9", Scope: core.IPBurstScope()}
	limit := core.Limit{Requests: 2, WindowSeconds: 60}
	ahead := time.Unix(1_700_000_100, 0).UTC()
	behind := ahead.Add(-time.Second)

	allowed := 0
	for i := 0; i < 6; i++ {
		now := ahead
		if i%2 == 1 {
			now = behind
		}
		d, err := store.CheckAndIncrement(ctx, key, limit, now)
		require.NoError(t, err)
		if d.Allowed {
			allowed++
			continue
		}
		assert.Equal(t, core.ResetAt(ahead, 60), d.ResetAt, "call %d", i+1)
	}
	assert.Equal(t, limit.Requests, allowed)

	rec, err := store.GetCounter(ctx, key)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, core.WindowStart(ahead, 60), rec.WindowStart)
	assert.Equal(t, 2, rec.Count)
}

func testIndependentKeys(t *testing.T, store Backend) {
	ctx := context.Background()
	limit := core.Limit{Requests: 1, WindowSeconds: 3600}
	global := core.CounterKey{Identity: "user123", Scope: core.GlobalScope()}
	endpoint := core.CounterKey{Identity: "user123", Scope: core.EndpointScope("generatePitch")}

	d, err := store.CheckAndIncrement(ctx, global, limit, base)
	require.NoError(t, err)
	require.True(t, d.Allowed)

	d, err = store.CheckAndIncrement(ctx, endpoint, limit, base)
	require.NoError(t, err)
	assert.True(t, d.Allowed)

	rec, err := store.GetCounter(ctx, core.CounterKey{Identity: "other", Scope: core.GlobalScope()})
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func testConcurrentAdmission(t *testing.T, store Backend) {
	ctx := context.Background()
	key := core.CounterKey{Identity: "user-concurrent", Scope: core.EndpointScope("generateReport")}
	limit := core.Limit{Requests: 10, WindowSeconds: 3600}

	const callers = 40
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
		errs    []error
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d, err := store.CheckAndIncrement(ctx, key, limit, base)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return
			}
			if d.Allowed {
				allowed++
			}
		}()
	}
	wg.Wait()

	require.Empty(t, errs)
	assert.Equal(t, limit.Requests, allowed)

	rec, err := store.GetCounter(ctx, key)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, limit.Requests, rec.Count)
}

func testDeleteOlderThan(t *testing.T, store Backend) {
	ctx := context.Background()
	now := base
	limit := core.Limit{Requests: 10, WindowSeconds: 1}
	old := core.CounterKey{Identity: "old", Scope: core.GlobalScope()}
	recent := core.CounterKey{Identity: "recent", Scope: core.GlobalScope()}

	_, err := store.CheckAndIncrement(ctx, old, limit, now.Add(-100000*time.Second))
	require.NoError(t, err)
	_, err = store.CheckAndIncrement(ctx, recent, limit, now.Add(-1000*time.Second))
	require.NoError(t, err)

	deleted, err := store.DeleteOlderThan(ctx, now.Unix()-86400, engine.MaxBatchSize)
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)

	rec, err := store.GetCounter(ctx, old)
	require.NoError(t, err)
	assert.Nil(t, rec)

	rec, err = store.GetCounter(ctx, recent)
	require.NoError(t, err)
	assert.NotNil(t, rec)

	deleted, err = store.DeleteOlderThan(ctx, now.Unix()-86400, engine.MaxBatchSize)
	require.NoError(t, err)
	assert.Zero(t, deleted)
}

func testDeleteBatchBound(t *testing.T, store Backend) {
	ctx := context.Background()
	limit := core.Limit{Requests: 10, WindowSeconds: 60}

	for i := 0; i < 7; i++ {
		key := core.CounterKey{Identity: fmt.Sprintf("ip-%d", i), Scope: core.IPGlobalScope()}
		_, err := store.CheckAndIncrement(ctx, key, limit, base.Add(-time.Duration(i+2)*time.Hour))
		require.NoError(t, err)
	}

	deleted, err := store.DeleteOlderThan(ctx, base.Unix(), 5)
	require.NoError(t, err)
	assert.Equal(t, 5, deleted)

	deleted, err = store.DeleteOlderThan(ctx, base.Unix(), 5)
	require.NoError(t, err)
	assert.Equal(t, 2, deleted)
}
