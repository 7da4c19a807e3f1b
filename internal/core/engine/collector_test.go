package engine_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/quotaward/quotaward/internal/core"
	"github.com/quotaward/quotaward/internal/core/engine"
	"github.com/quotaward/quotaward/internal/core/store/memstore"
	"github.com/quotaward/quotaward/internal/metrics"
)

func seed(t *testing.T, store *memstore.Store, identity string, windowStart int64) {
	t.Helper()
	require.NoError(t, store.Put(core.CounterRecord{
		Identity:      identity,
		Scope:         "global",
		WindowStart:   windowStart,
		Count:         1,
		LastRequestAt: windowStart,
	}))
}

func TestCleanupRetention(t *testing.T) {
	store := memstore.New()
	now := testNow.Unix()
	seed(t, store, "old", now-100000)
	seed(t, store, "recent", now-1000)

	c := &engine.Collector{Store: store, Clock: fixedClock}
	deleted, err := c.Cleanup(context.Background(), 86400*time.Second)
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)

	rec, err := store.GetCounter(context.Background(), core.CounterKey{Identity: "recent", Scope: core.GlobalScope()})
	require.NoError(t, err)
	assert.NotNil(t, rec)

	deleted, err = c.Cleanup(context.Background(), 86400*time.Second)
	require.NoError(t, err)
	assert.Zero(t, deleted, "cleanup is idempotent")
}

func TestCleanupBatchCap(t *testing.T) {
	collector := setupTelemetry(t)
	store := memstore.New()
	for i := 0; i < engine.MaxBatchSize+20; i++ {
		seed(t, store, fmt.Sprintf("id-%d", i), testNow.Unix()-200000-int64(i))
	}

	c := &engine.Collector{Store: store, Clock: fixedClock, BatchSize: 10_000}
	deleted, err := c.Cleanup(context.Background(), 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, engine.MaxBatchSize, deleted)
	assert.Equal(t, 20, store.Len())
	assert.Greater(t, collector.CountMetricsByName(metrics.QuotaCleanupDeleted), 0)
}

func TestDrain(t *testing.T) {
	store := memstore.New()
	for i := 0; i < 23; i++ {
		seed(t, store, fmt.Sprintf("id-%d", i), testNow.Unix()-200000)
	}

	c := &engine.Collector{Store: store, Clock: fixedClock, BatchSize: 10}
	deleted, err := c.Drain(context.Background(), 24*time.Hour, rate.NewLimiter(rate.Inf, 1))
	require.NoError(t, err)
	assert.Equal(t, 23, deleted)
	assert.Zero(t, store.Len())
}

func TestDrainStopsOnCanceledContext(t *testing.T) {
	store := memstore.New()
	seed(t, store, "old", testNow.Unix()-200000)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := &engine.Collector{Store: store, Clock: fixedClock}
	_, err := c.Drain(ctx, 24*time.Hour, rate.NewLimiter(rate.Every(time.Hour), 1))
	require.Error(t, err)
	assert.Equal(t, 1, store.Len())
}

func TestCleanupMinAge(t *testing.T) {
	store := memstore.New()
	seed(t, store, "mid-window", testNow.Unix()-600)

	c := &engine.Collector{Store: store, Clock: fixedClock, MinAge: time.Hour}
	deleted, err := c.Cleanup(context.Background(), time.Minute)
	require.NoError(t, err)
	assert.Zero(t, deleted, "records younger than the longest window are kept")
}

func TestCleanupErrors(t *testing.T) {
	_, err := (&engine.Collector{}).Cleanup(context.Background(), time.Hour)
	require.Error(t, err)

	_, err = (&engine.Collector{Store: memstore.New()}).Cleanup(context.Background(), -time.Hour)
	require.Error(t, err)

	failing := newRecordingStore()
	c := &engine.Collector{Store: failingDeleter{failing}, Clock: fixedClock}
	_, err = c.Cleanup(context.Background(), time.Hour)
	require.Error(t, err)
	assert.True(t, core.IsStorageError(err))
}

type failingDeleter struct {
	*recordingStore
}

func (failingDeleter) DeleteOlderThan(context.Context, int64, int) (int, error) {
	return 0, core.NewStorageError("delete", errors.New("quota exceeded"))
}
