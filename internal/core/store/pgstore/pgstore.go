// Package pgstore keeps quota counters in PostgreSQL for deployments that
// already run a shared database. Each check locks its counter row for the
// duration of one transaction.
package pgstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quotaward/quotaward/internal/config"
	"github.com/quotaward/quotaward/internal/core"
	"github.com/quotaward/quotaward/internal/core/engine"
)

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS quota_counters (
		identity TEXT NOT NULL,
		scope TEXT NOT NULL,
		window_start BIGINT NOT NULL,
		request_count INTEGER NOT NULL DEFAULT 0,
		last_request_at BIGINT NOT NULL DEFAULT 0,
		PRIMARY KEY (identity, scope)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_quota_counters_window ON quota_counters(window_start)`,
}

// DB is the subset of pgxpool.Pool the store needs.
type DB interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Store implements engine.CounterStore and engine.CounterReader.
type Store struct {
	db   DB
	pool *pgxpool.Pool
}

// New wraps an existing connection or pool.
func New(db DB) *Store {
	return &Store{db: db}
}

// Open creates a pool from cfg and pings it.
func Open(ctx context.Context, cfg config.PostgresConfig) (*Store, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("postgres dsn is required")
	}

	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("open postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Store{db: pool, pool: pool}, nil
}

// Close releases the pool when the store owns one.
func (s *Store) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

// Ping runs a trivial query.
func (s *Store) Ping(ctx context.Context) error {
	var one int
	return s.db.QueryRow(ctx, "SELECT 1").Scan(&one)
}

// Migrate creates the counter table and its window index.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range migrations {
		if _, err := s.db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

// CheckAndIncrement implements engine.CounterStore.
func (s *Store) CheckAndIncrement(ctx context.Context, key core.CounterKey, limit core.Limit, now time.Time) (core.Decision, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return core.Decision{}, core.NewStorageError("check", fmt.Errorf("begin: %w", err))
	}
	defer tx.Rollback(ctx) // nolint:errcheck // no-op after commit

	scope := key.Scope.String()

	// Make sure a row exists so FOR UPDATE has something to lock.
	if _, err := tx.Exec(ctx, `
		INSERT INTO quota_counters (identity, scope, window_start, request_count, last_request_at)
		VALUES ($1, $2, 0, 0, 0)
		ON CONFLICT (identity, scope) DO NOTHING
	`, key.Identity, scope); err != nil {
		return core.Decision{}, core.NewStorageError("check", fmt.Errorf("ensure counter: %w", err))
	}

	rec := core.CounterRecord{Identity: key.Identity, Scope: scope}
	if err := tx.QueryRow(ctx, `
		SELECT window_start, request_count, last_request_at
		FROM quota_counters
		WHERE identity = $1 AND scope = $2
		FOR UPDATE
	`, key.Identity, scope).Scan(&rec.WindowStart, &rec.Count, &rec.LastRequestAt); err != nil {
		return core.Decision{}, core.NewStorageError("check", fmt.Errorf("lock counter: %w", err))
	}

	decision, next := engine.Decide(&rec, key, limit, now)
	if next != nil {
		if _, err := tx.Exec(ctx, `
			UPDATE quota_counters
			SET window_start = $3, request_count = $4, last_request_at = $5
			WHERE identity = $1 AND scope = $2
		`, key.Identity, scope, next.WindowStart, next.Count, next.LastRequestAt); err != nil {
			return core.Decision{}, core.NewStorageError("check", fmt.Errorf("write counter: %w", err))
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return core.Decision{}, core.NewStorageError("check", fmt.Errorf("commit: %w", err))
	}
	return decision, nil
}

// GetCounter implements engine.CounterReader. Placeholder rows left by a
// failed check read as absent.
func (s *Store) GetCounter(ctx context.Context, key core.CounterKey) (*core.CounterRecord, error) {
	rec := core.CounterRecord{Identity: key.Identity, Scope: key.Scope.String()}
	err := s.db.QueryRow(ctx, `
		SELECT window_start, request_count, last_request_at
		FROM quota_counters
		WHERE identity = $1 AND scope = $2
	`, rec.Identity, rec.Scope).Scan(&rec.WindowStart, &rec.Count, &rec.LastRequestAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, core.NewStorageError("get", fmt.Errorf("fetch counter: %w", err))
	}
	if rec.Count == 0 && rec.WindowStart == 0 {
		return nil, nil
	}
	return &rec, nil
}

// DeleteOlderThan implements engine.CounterStore, oldest windows first.
func (s *Store) DeleteOlderThan(ctx context.Context, cutoff int64, batch int) (int, error) {
	if batch <= 0 {
		batch = engine.MaxBatchSize
	}

	tag, err := s.db.Exec(ctx, `
		DELETE FROM quota_counters
		WHERE (identity, scope) IN (
			SELECT identity, scope FROM quota_counters
			WHERE window_start < $1
			ORDER BY window_start
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)
	`, cutoff, batch)
	if err != nil {
		return 0, core.NewStorageError("delete", fmt.Errorf("delete expired counters: %w", err))
	}
	return int(tag.RowsAffected()), nil
}
