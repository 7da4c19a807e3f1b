package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/quotaward/quotaward/internal/core"
)

// CounterQuery selects counters for the admin commands.
type CounterQuery struct {
	All      bool
	Identity string
	Prefix   string

	// Scope optionally narrows Identity or Prefix matches, e.g. "global".
	Scope string
}

func (q CounterQuery) Validate() error {
	if q.All {
		return nil
	}
	if strings.TrimSpace(q.Identity) != "" {
		return nil
	}
	if strings.TrimSpace(q.Prefix) != "" {
		return nil
	}
	return errors.New("must specify --all, --identity, or --prefix")
}

func (q CounterQuery) whereClause() (string, []any, error) {
	if err := q.Validate(); err != nil {
		return "", nil, err
	}

	var (
		conds []string
		args  []any
	)
	switch {
	case q.All:
	case strings.TrimSpace(q.Identity) != "":
		conds = append(conds, "identity = ?")
		args = append(args, strings.TrimSpace(q.Identity))
	default:
		conds = append(conds, "identity LIKE ? ESCAPE '\\'")
		args = append(args, escapeLike(strings.TrimSpace(q.Prefix))+"%")
	}
	if scope := strings.TrimSpace(q.Scope); scope != "" {
		if _, err := core.ParseScope(scope); err != nil {
			return "", nil, err
		}
		conds = append(conds, "scope = ?")
		args = append(args, scope)
	}

	if len(conds) == 0 {
		return "", nil, nil
	}
	return "WHERE " + strings.Join(conds, " AND "), args, nil
}

func escapeLike(value string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(value)
}

// ListCounters returns matching counters ordered by identity and scope.
func (s *Store) ListCounters(ctx context.Context, q CounterQuery) ([]core.CounterRecord, error) {
	if s == nil || s.DB == nil {
		return nil, errNotInitialized
	}
	if ctx == nil {
		ctx = context.Background()
	}

	where, args, err := q.whereClause()
	if err != nil {
		return nil, err
	}

	rows, err := s.DB.QueryContext(ctx, fmt.Sprintf(`
		SELECT identity, scope, window_start, request_count, last_request_at
		FROM quota_counters
		%s
		ORDER BY identity, scope
	`, where), args...)
	if err != nil {
		return nil, fmt.Errorf("list counters: %w", err)
	}
	defer rows.Close() // nolint:errcheck // best-effort cleanup

	records := []core.CounterRecord{}
	for rows.Next() {
		var rec core.CounterRecord
		if err := rows.Scan(&rec.Identity, &rec.Scope, &rec.WindowStart, &rec.Count, &rec.LastRequestAt); err != nil {
			return nil, fmt.Errorf("scan counters: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list counters: %w", err)
	}

	return records, nil
}

// CountCounters returns the number of matching counters.
func (s *Store) CountCounters(ctx context.Context, q CounterQuery) (int, error) {
	if s == nil || s.DB == nil {
		return 0, errNotInitialized
	}
	if ctx == nil {
		ctx = context.Background()
	}

	where, args, err := q.whereClause()
	if err != nil {
		return 0, err
	}

	row := s.DB.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT COUNT(*)
		FROM quota_counters
		%s
	`, where), args...)

	var count int
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("count counters: %w", err)
	}
	return count, nil
}

// ResetCounters deletes matching counters, restoring full quota.
func (s *Store) ResetCounters(ctx context.Context, q CounterQuery) (int64, error) {
	if s == nil || s.DB == nil {
		return 0, errNotInitialized
	}
	if ctx == nil {
		ctx = context.Background()
	}

	where, args, err := q.whereClause()
	if err != nil {
		return 0, err
	}

	result, err := s.DB.ExecContext(ctx, fmt.Sprintf(`
		DELETE FROM quota_counters
		%s
	`, where), args...)
	if err != nil {
		return 0, fmt.Errorf("reset counters: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("reset counters: %w", err)
	}
	return affected, nil
}
