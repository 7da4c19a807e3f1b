package store

import (
	"testing"

	"github.com/quotaward/quotaward/internal/config"
	"github.com/stretchr/testify/require"
)

func TestBuildLibsqlDSN(t *testing.T) {
	t.Run("URLUsesRawValue", func(t *testing.T) {
		cfg := config.StoreConfig{
			URL:       "libsql://example.turso.io",
			AuthToken: "token123",
		}

		dsn, err := buildLibsqlDSN(cfg)
		require.NoError(t, err)
		require.Equal(t, "libsql://example.turso.io?authToken=token123", dsn)
	})

	t.Run("URLWithExistingQuery", func(t *testing.T) {
		cfg := config.StoreConfig{
			URL:       "libsql://example.turso.io?foo=bar",
			AuthToken: "token123",
		}

		dsn, err := buildLibsqlDSN(cfg)
		require.NoError(t, err)
		require.Equal(t, "libsql://example.turso.io?authToken=token123&foo=bar", dsn)
	})

	t.Run("PathWithFilePrefix", func(t *testing.T) {
		cfg := config.StoreConfig{Path: "file:./quotaward.db"}

		dsn, err := buildLibsqlDSN(cfg)
		require.NoError(t, err)
		require.Equal(t, "file:./quotaward.db", dsn)
	})

	t.Run("PathMissing", func(t *testing.T) {
		cfg := config.StoreConfig{}

		_, err := buildLibsqlDSN(cfg)
		require.Error(t, err)
	})

	t.Run("MemoryPath", func(t *testing.T) {
		cfg := config.StoreConfig{Path: ":memory:"}

		dsn, err := buildLibsqlDSN(cfg)
		require.NoError(t, err)
		require.Equal(t, ":memory:", dsn)
	})
}

func TestBuildLibsqlDSN_LocalPaths(t *testing.T) {
	dir := t.TempDir()

	dsn, err := buildLibsqlDSN(config.StoreConfig{Path: dir + "/nested/quotaward.db"})
	require.NoError(t, err)
	require.Equal(t, "file:"+dir+"/nested/quotaward.db", dsn)
	require.DirExists(t, dir+"/nested")

	dsn, err = buildLibsqlDSN(config.StoreConfig{Path: "libsql://db.example.turso.io", AuthToken: "tok"})
	require.NoError(t, err)
	require.Equal(t, "libsql://db.example.turso.io?authToken=tok", dsn)

	require.True(t, isLocalDSN(":memory:"))
	require.True(t, isLocalDSN("file:/tmp/q.db"))
	require.False(t, isLocalDSN("libsql://db.example.turso.io"))
}

func TestCounterQueryWhereClause(t *testing.T) {
	tests := []struct {
		name  string
		query CounterQuery
		where string
		args  []any
		err   bool
	}{
		{name: "empty", query: CounterQuery{}, err: true},
		{name: "all", query: CounterQuery{All: true}, where: ""},
		{name: "identity", query: CounterQuery{Identity: " user123 "}, where: "WHERE identity = ?", args: []any{"user123"}},
		{name: "prefix escapes wildcards", query: CounterQuery{Prefix: "10.0_"}, where: `WHERE identity LIKE ? ESCAPE '\'`, args: []any{`10.0\_%`}},
		{name: "identity and scope", query: CounterQuery{Identity: "u", Scope: "global"}, where: "WHERE identity = ? AND scope = ?", args: []any{"u", "global"}},
		{name: "bad scope", query: CounterQuery{All: true, Scope: "weekly"}, err: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			where, args, err := tt.query.whereClause()
			if tt.err {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.where, where)
			require.Equal(t, tt.args, args)
		})
	}
}
