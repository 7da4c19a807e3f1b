// Package engine decides whether a request may proceed against shared
// fixed-window counters, and reclaims and reports on those counters.
package engine

import (
	"context"
	"errors"
	"time"

	"github.com/fulmenhq/gofulmen/logging"
	"go.uber.org/zap"

	"github.com/quotaward/quotaward/internal/core"
	"github.com/quotaward/quotaward/internal/core/policy"
	"github.com/quotaward/quotaward/internal/metrics"
)

// Engine runs the ordered quota checks for a request.
type Engine struct {
	Policy *policy.Registry
	Store  CounterStore
	Clock  func() time.Time
	Logger *logging.Logger

	// CheckTimeout bounds a single counter check. Zero means no bound.
	CheckTimeout time.Duration

	// Backend labels check latency metrics.
	Backend string
}

// Rejection is why a request was refused. It is either Blocked or RateLimited.
type Rejection interface {
	rejection()
}

// Blocked means the endpoint is not available on the caller's plan.
type Blocked struct {
	Plan     core.Tier
	Endpoint string
}

// RateLimited means a counter check was exhausted.
type RateLimited struct {
	Type       string
	Scope      core.Scope
	RetryAfter time.Duration
	ResetAt    int64
}

func (Blocked) rejection()     {}
func (RateLimited) rejection() {}

// Headers carry the X-RateLimit-* values of the last evaluated check.
type Headers struct {
	Limit     int
	Remaining int
	Reset     int64
}

// Check records one counter check made for a request.
type Check struct {
	Scope    core.Scope
	Decision core.Decision
}

// Outcome is the result of evaluating a request.
type Outcome struct {
	Identity  Identity
	Info      core.Info
	Headers   *Headers
	Rejection Rejection
	Checks    []Check
}

// Allowed reports whether the request may proceed.
func (o Outcome) Allowed() bool {
	return o.Rejection == nil
}

// Evaluate runs the blocked, network-address, global and endpoint checks in
// that order, stopping at the first rejection. Counters incremented by earlier
// checks are kept when a later check rejects.
func (e *Engine) Evaluate(ctx context.Context, req core.Request) Outcome {
	id := ResolveIdentity(req)
	out := Outcome{Identity: id}

	endpoint, hasEndpoint := e.Policy.EndpointName(req.Path)
	if e.Policy.IsBlocked(id.Tier, req.Path) {
		out.Rejection = Blocked{Plan: id.Tier, Endpoint: endpoint}
		metrics.RecordBlocked(string(id.Tier))
		return out
	}

	if _, err := e.Policy.ResolveTier(id.Tier); err != nil && e.Logger != nil {
		e.Logger.Debug("Unknown tier, applying anonymous global limit",
			zap.String("identity", id.ID),
			zap.String("tier", string(id.Tier)),
		)
	}

	if !id.Authenticated {
		if e.check(ctx, &out, core.IPBurstScope(), e.Policy.IPLimit(policy.IPKindBurst)) {
			return out
		}
		if e.check(ctx, &out, core.IPGlobalScope(), e.Policy.IPLimit(policy.IPKindGlobal)) {
			return out
		}
	}

	if e.check(ctx, &out, core.GlobalScope(), e.Policy.GlobalLimit(id.Tier)) {
		return out
	}
	globalRemaining := out.Checks[len(out.Checks)-1].Decision.Remaining

	if hasEndpoint {
		if limit, ok := e.Policy.EndpointLimit(id.Tier, req.Path); ok && limit.Requests > 0 {
			if e.check(ctx, &out, core.EndpointScope(endpoint), limit) {
				return out
			}
		}
	}

	out.Info = core.Info{
		Identity:        id.ID,
		Tier:            id.Tier,
		GlobalRemaining: globalRemaining,
	}
	return out
}

// check runs one counter check and reports whether it rejected the request.
func (e *Engine) check(ctx context.Context, out *Outcome, scope core.Scope, limit core.Limit) bool {
	key := core.CounterKey{Identity: out.Identity.ID, Scope: scope}
	now := e.now()

	decision, err := e.checkAndIncrement(ctx, key, limit, now)
	if err != nil {
		decision = e.failOpen(key, limit, now, err)
	} else {
		out.Headers = &Headers{
			Limit:     decision.Limit,
			Remaining: decision.Remaining,
			Reset:     decision.ResetAt,
		}
	}
	out.Checks = append(out.Checks, Check{Scope: scope, Decision: decision})
	metrics.RecordDecision(scope.MetricLabel(), decision.Allowed)

	if decision.Allowed {
		return false
	}
	out.Rejection = RateLimited{
		Type:       scope.LimitType(),
		Scope:      scope,
		RetryAfter: core.RetryAfter(decision.ResetAt, e.now()),
		ResetAt:    decision.ResetAt,
	}
	return true
}

func (e *Engine) checkAndIncrement(ctx context.Context, key core.CounterKey, limit core.Limit, now time.Time) (core.Decision, error) {
	if e.Store == nil {
		return core.Decision{}, core.NewStorageError("check", errors.New("no counter store configured"))
	}
	if e.CheckTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.CheckTimeout)
		defer cancel()
	}

	start := time.Now()
	decision, err := e.Store.CheckAndIncrement(ctx, key, limit, now)
	metrics.RecordCheckDuration(e.backend(), time.Since(start))
	return decision, err
}

// failOpen maps any store error to an admitted decision. The check is not retried.
func (e *Engine) failOpen(key core.CounterKey, limit core.Limit, now time.Time, err error) core.Decision {
	metrics.RecordFailOpen(key.Scope.MetricLabel())
	if e.Logger != nil {
		e.Logger.Warn("Counter check failed, admitting request",
			zap.String("identity", key.Identity),
			zap.String("scope", key.Scope.String()),
			zap.Bool("storage_error", core.IsStorageError(err)),
			zap.Error(err),
		)
	}
	return core.Decision{
		Allowed:   true,
		Remaining: -1,
		ResetAt:   core.ResetAt(now, limit.WindowSeconds),
		Limit:     limit.Requests,
		Failed:    true,
	}
}

func (e *Engine) backend() string {
	if e.Backend == "" {
		return "unknown"
	}
	return e.Backend
}

func (e *Engine) now() time.Time {
	if e.Clock != nil {
		return e.Clock()
	}
	return time.Now().UTC()
}
