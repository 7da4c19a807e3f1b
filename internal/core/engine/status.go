package engine

import (
	"context"
	"time"

	"github.com/quotaward/quotaward/internal/core"
	"github.com/quotaward/quotaward/internal/core/policy"
	"github.com/quotaward/quotaward/internal/metrics"
)

// Reporter answers read-only usage queries.
type Reporter struct {
	Policy *policy.Registry
	Store  CounterReader
	Clock  func() time.Time
}

// Status reports global counter usage for identity under tier's limit.
func (r *Reporter) Status(ctx context.Context, identity string, tier core.Tier) (core.Status, error) {
	limit := r.Policy.GlobalLimit(tier)
	now := r.now()
	windowStart := core.WindowStart(now, limit.WindowSeconds)

	rec, err := r.Store.GetCounter(ctx, core.CounterKey{Identity: identity, Scope: core.GlobalScope()})
	metrics.RecordStatusQuery(err == nil)
	if err != nil {
		return core.Status{}, core.NewStorageError("status", err)
	}

	used := 0
	if rec != nil && rec.WindowStart >= windowStart {
		windowStart = rec.WindowStart
		used = rec.Count
	}
	remaining := limit.Requests - used
	if remaining < 0 {
		remaining = 0
	}

	return core.Status{
		Plan: tier,
		Global: core.GlobalUsage{
			Limit:     limit.Requests,
			Used:      used,
			Remaining: remaining,
			ResetsAt:  time.Unix(windowStart+limit.WindowSeconds, 0).UTC(),
		},
	}, nil
}

func (r *Reporter) now() time.Time {
	if r.Clock != nil {
		return r.Clock()
	}
	return time.Now().UTC()
}
