package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/quotaward/quotaward/internal/core"
	"github.com/quotaward/quotaward/internal/core/engine"
)

var errNotInitialized = errors.New("store is not initialized")

// CheckAndIncrement implements engine.CounterStore in one transaction. The
// write statements re-check their precondition so a concurrent writer from
// another process turns into a denial rather than an extra admission.
func (s *Store) CheckAndIncrement(ctx context.Context, key core.CounterKey, limit core.Limit, now time.Time) (core.Decision, error) {
	if s == nil || s.DB == nil {
		return core.Decision{}, core.NewStorageError("check", errNotInitialized)
	}
	if ctx == nil {
		ctx = context.Background()
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return core.Decision{}, core.NewStorageError("check", fmt.Errorf("begin: %w", err))
	}
	defer tx.Rollback() // nolint:errcheck // no-op after commit

	scope := key.Scope.String()
	rec, err := getCounter(ctx, tx, key.Identity, scope)
	if err != nil {
		return core.Decision{}, core.NewStorageError("check", err)
	}

	decision, next := engine.Decide(rec, key, limit, now)
	if next != nil {
		applied := false
		if rec == nil || rec.WindowStart != next.WindowStart {
			applied, err = startWindow(ctx, tx, next)
		} else {
			applied, err = increment(ctx, tx, next, limit.Requests)
		}
		if err != nil {
			return core.Decision{}, core.NewStorageError("check", err)
		}
		if !applied {
			decision, err = s.recheck(ctx, tx, key, limit, now)
			if err != nil {
				return core.Decision{}, core.NewStorageError("check", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return core.Decision{}, core.NewStorageError("check", fmt.Errorf("commit: %w", err))
	}
	return decision, nil
}

// recheck runs after a guarded write matched no row: another writer got there
// first. It retries the increment once against the current row and denies if
// that also loses.
func (s *Store) recheck(ctx context.Context, tx *sql.Tx, key core.CounterKey, limit core.Limit, now time.Time) (core.Decision, error) {
	rec, err := getCounter(ctx, tx, key.Identity, key.Scope.String())
	if err != nil {
		return core.Decision{}, err
	}

	decision, next := engine.Decide(rec, key, limit, now)
	if next == nil {
		return decision, nil
	}
	if rec != nil && rec.WindowStart == next.WindowStart {
		applied, err := increment(ctx, tx, next, limit.Requests)
		if err != nil {
			return core.Decision{}, err
		}
		if applied {
			return decision, nil
		}
	}

	denied := decision
	denied.Allowed = false
	denied.Remaining = 0
	return denied, nil
}

func startWindow(ctx context.Context, tx *sql.Tx, rec *core.CounterRecord) (bool, error) {
	result, err := tx.ExecContext(ctx, `
		INSERT INTO quota_counters (identity, scope, window_start, request_count, last_request_at)
		VALUES (?, ?, ?, 1, ?)
		ON CONFLICT(identity, scope) DO UPDATE SET
			window_start = excluded.window_start,
			request_count = 1,
			last_request_at = excluded.last_request_at
		WHERE quota_counters.window_start < excluded.window_start
	`, rec.Identity, rec.Scope, rec.WindowStart, rec.LastRequestAt)
	if err != nil {
		return false, fmt.Errorf("start window: %w", err)
	}
	return affectedOne(result)
}

func increment(ctx context.Context, tx *sql.Tx, rec *core.CounterRecord, requests int) (bool, error) {
	result, err := tx.ExecContext(ctx, `
		UPDATE quota_counters
		SET request_count = request_count + 1, last_request_at = ?
		WHERE identity = ? AND scope = ? AND window_start = ? AND request_count < ?
	`, rec.LastRequestAt, rec.Identity, rec.Scope, rec.WindowStart, requests)
	if err != nil {
		return false, fmt.Errorf("increment: %w", err)
	}
	return affectedOne(result)
}

func affectedOne(result sql.Result) (bool, error) {
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n == 1, nil
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getCounter(ctx context.Context, q queryer, identity, scope string) (*core.CounterRecord, error) {
	rec := core.CounterRecord{Identity: identity, Scope: scope}
	row := q.QueryRowContext(ctx, `
		SELECT window_start, request_count, last_request_at
		FROM quota_counters
		WHERE identity = ? AND scope = ?
	`, identity, scope)

	if err := row.Scan(&rec.WindowStart, &rec.Count, &rec.LastRequestAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("fetch counter: %w", err)
	}
	return &rec, nil
}

// GetCounter implements engine.CounterReader.
func (s *Store) GetCounter(ctx context.Context, key core.CounterKey) (*core.CounterRecord, error) {
	if s == nil || s.DB == nil {
		return nil, core.NewStorageError("get", errNotInitialized)
	}
	if ctx == nil {
		ctx = context.Background()
	}

	rec, err := getCounter(ctx, s.DB, key.Identity, key.Scope.String())
	if err != nil {
		return nil, core.NewStorageError("get", err)
	}
	return rec, nil
}

// DeleteOlderThan implements engine.CounterStore, oldest windows first.
func (s *Store) DeleteOlderThan(ctx context.Context, cutoff int64, batch int) (int, error) {
	if s == nil || s.DB == nil {
		return 0, core.NewStorageError("delete", errNotInitialized)
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if batch <= 0 {
		batch = engine.MaxBatchSize
	}

	result, err := s.DB.ExecContext(ctx, `
		DELETE FROM quota_counters
		WHERE rowid IN (
			SELECT rowid FROM quota_counters
			WHERE window_start < ?
			ORDER BY window_start
			LIMIT ?
		)
	`, cutoff, batch)
	if err != nil {
		return 0, core.NewStorageError("delete", fmt.Errorf("delete expired counters: %w", err))
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, core.NewStorageError("delete", fmt.Errorf("delete expired counters: %w", err))
	}
	return int(n), nil
}
