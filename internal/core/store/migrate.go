package store

import (
	"context"
	"errors"
	"fmt"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS quota_counters (
		identity TEXT NOT NULL,
		scope TEXT NOT NULL,
		window_start INTEGER NOT NULL,
		request_count INTEGER NOT NULL DEFAULT 0,
		last_request_at INTEGER NOT NULL,
		PRIMARY KEY (identity, scope)
	);`,
	`CREATE INDEX IF NOT EXISTS idx_quota_counters_window ON quota_counters(window_start);`,
}

// Migrate ensures the required database tables exist.
func (s *Store) Migrate(ctx context.Context) error {
	if s == nil || s.DB == nil {
		return errors.New("store is not initialized")
	}

	if ctx == nil {
		ctx = context.Background()
	}

	for _, stmt := range schemaStatements {
		if _, err := s.DB.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("store migration failed: %w", err)
		}
	}

	return nil
}
