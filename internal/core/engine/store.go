package engine

import (
	"context"
	"time"

	"github.com/quotaward/quotaward/internal/core"
)

// CounterStore is the shared counter table. Implementations must make
// CheckAndIncrement atomic per key and return failures as *core.StorageError.
type CounterStore interface {
	// CheckAndIncrement admits one request against limit in the window containing now.
	CheckAndIncrement(ctx context.Context, key core.CounterKey, limit core.Limit, now time.Time) (core.Decision, error)

	// DeleteOlderThan removes at most batch records with a window start before cutoff.
	DeleteOlderThan(ctx context.Context, cutoff int64, batch int) (int, error)
}

// CounterReader reads counters without mutating them.
// GetCounter returns nil when the key has no record.
type CounterReader interface {
	GetCounter(ctx context.Context, key core.CounterKey) (*core.CounterRecord, error)
}

// Decide applies the fixed-window rule to an existing record. It is the
// in-transaction step every backend shares: rec may be nil or stale.
// The returned record is nil when the store must not be written.
//
// A record from a later window than now's (a caller whose clock lags the one
// that opened it) is counted as is; a window start never moves backward.
func Decide(rec *core.CounterRecord, key core.CounterKey, limit core.Limit, now time.Time) (core.Decision, *core.CounterRecord) {
	windowStart := core.WindowStart(now, limit.WindowSeconds)
	if rec != nil && rec.WindowStart > windowStart {
		windowStart = rec.WindowStart
	}
	decision := core.Decision{
		ResetAt: windowStart + limit.WindowSeconds,
		Limit:   limit.Requests,
	}

	if rec == nil || rec.WindowStart != windowStart {
		decision.Allowed = true
		decision.Count = 1
		decision.Remaining = limit.Requests - 1
		return decision, &core.CounterRecord{
			Identity:      key.Identity,
			Scope:         key.Scope.String(),
			WindowStart:   windowStart,
			Count:         1,
			LastRequestAt: now.Unix(),
		}
	}

	if rec.Count >= limit.Requests {
		decision.Count = rec.Count
		return decision, nil
	}

	decision.Allowed = true
	decision.Count = rec.Count + 1
	decision.Remaining = limit.Requests - rec.Count - 1
	next := *rec
	next.Count++
	next.LastRequestAt = now.Unix()
	return decision, &next
}
