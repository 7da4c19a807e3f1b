//go:build cgo

package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/quotaward/quotaward/internal/config"
	"github.com/quotaward/quotaward/internal/core"
	"github.com/quotaward/quotaward/internal/core/store/storetest"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()

	cfg := config.StoreConfig{
		Driver: "libsql",
		Path:   "file:" + filepath.Join(t.TempDir(), "quotaward.db"),
	}
	store, err := Open(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	require.NoError(t, store.Migrate(context.Background()))
	return store
}

func TestOpenMemoryStore(t *testing.T) {
	ctx := context.Background()
	cfg := config.StoreConfig{
		Driver: "libsql",
		Path:   ":memory:",
	}

	store, err := Open(ctx, cfg)
	require.NoError(t, err)
	require.NotNil(t, store)
	require.Equal(t, "libsql", store.Driver())
	require.NoError(t, store.Migrate(ctx))
	require.NoError(t, store.Migrate(ctx), "migrations are idempotent")
	require.NoError(t, store.Ping(ctx))
	require.NoError(t, store.Close())
}

func TestCounterContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) storetest.Backend { return openTestStore(t) })
}

func TestCounterAdmin(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	now := time.Unix(1_700_000_000, 0)
	limit := core.Limit{Requests: 10, WindowSeconds: 3600}

	for _, key := range []core.CounterKey{
		{Identity: "user123", Scope: core.GlobalScope()},
		{Identity: "user123", Scope: core.EndpointScope("generatePitch")},
		{Identity: "user456", Scope: core.GlobalScope()},
		{Identity: "9.9.9.9", Scope: core.IPBurstScope()},
	} {
		_, err := store.CheckAndIncrement(ctx, key, limit, now)
		require.NoError(t, err)
	}

	records, err := store.ListCounters(ctx, CounterQuery{Prefix: "user"})
	require.NoError(t, err)
	require.Len(t, records, 3)
	require.Equal(t, "user123", records[0].Identity)
	require.Equal(t, "endpoint:generatePitch", records[0].Scope)
	require.Equal(t, 1, records[0].Count)

	count, err := store.CountCounters(ctx, CounterQuery{Identity: "user123", Scope: "global"})
	require.NoError(t, err)
	require.Equal(t, 1, count)

	deleted, err := store.ResetCounters(ctx, CounterQuery{Identity: "user123"})
	require.NoError(t, err)
	require.Equal(t, int64(2), deleted)

	count, err = store.CountCounters(ctx, CounterQuery{All: true})
	require.NoError(t, err)
	require.Equal(t, 2, count)

	_, err = store.ResetCounters(ctx, CounterQuery{})
	require.Error(t, err)
}

func TestClosedStoreReturnsStorageError(t *testing.T) {
	store := openTestStore(t)
	require.NoError(t, store.Close())

	_, err := store.CheckAndIncrement(context.Background(),
		core.CounterKey{Identity: "u", Scope: core.GlobalScope()},
		core.Limit{Requests: 1, WindowSeconds: 60}, time.Now())
	require.Error(t, err)
	require.True(t, core.IsStorageError(err))
}
