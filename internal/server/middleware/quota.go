package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/quotaward/quotaward/internal/core"
	"github.com/quotaward/quotaward/internal/core/engine"
)

// Rate limit response headers.
const (
	HeaderRateLimitLimit     = "X-RateLimit-Limit"
	HeaderRateLimitRemaining = "X-RateLimit-Remaining"
	HeaderRateLimitReset     = "X-RateLimit-Reset"
	HeaderRetryAfter         = "Retry-After"
	HeaderForwardedFor       = "X-Forwarded-For"
	HeaderRealIP             = "X-Real-IP"
)

const (
	blockedMessage     = "This feature is not available on your plan"
	rateLimitedMessage = "Rate limit exceeded"
)

// Evaluator decides whether a request may proceed.
type Evaluator interface {
	Evaluate(ctx context.Context, req core.Request) engine.Outcome
}

// LimitResponse is the body of a 403 or 429 quota rejection.
type LimitResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Details any    `json:"details"`
}

// BlockedDetails explains a blocked endpoint.
type BlockedDetails struct {
	Plan    string `json:"plan"`
	Upgrade bool   `json:"upgrade"`
}

// RateLimitedDetails explains an exhausted counter.
type RateLimitedDetails struct {
	Type       string `json:"type"`
	RetryAfter int64  `json:"retryAfter"`
	ResetAt    string `json:"resetAt"`
}

type quotaInfoContextKey struct{}

// QuotaInfo returns the quota info attached to an admitted request.
func QuotaInfo(ctx context.Context) (core.Info, bool) {
	info, ok := ctx.Value(quotaInfoContextKey{}).(core.Info)
	return info, ok
}

// WithQuotaInfo returns ctx carrying info.
func WithQuotaInfo(ctx context.Context, info core.Info) context.Context {
	return context.WithValue(ctx, quotaInfoContextKey{}, info)
}

// RequestFromHTTP extracts the quota-relevant parts of r, using the principal
// set by Authenticate when present.
func RequestFromHTTP(r *http.Request) core.Request {
	req := core.Request{
		Path:          r.URL.Path,
		ForwardedFor:  engine.SplitForwardedFor(r.Header.Values(HeaderForwardedFor)...),
		DirectAddr:    r.Header.Get(HeaderRealIP),
		TransportAddr: r.RemoteAddr,
	}
	if p, ok := PrincipalFromContext(r.Context()); ok {
		req.PrincipalID = p.ID
		req.Tier = p.Tier
	}
	return req
}

// Quota enforces quotas on every request passing through it.
func Quota(ev Evaluator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			out := ev.Evaluate(r.Context(), RequestFromHTTP(r))
			annotateQuota(r.Context(), out)

			if h := out.Headers; h != nil {
				w.Header().Set(HeaderRateLimitLimit, strconv.Itoa(h.Limit))
				w.Header().Set(HeaderRateLimitRemaining, strconv.Itoa(h.Remaining))
				w.Header().Set(HeaderRateLimitReset, strconv.FormatInt(h.Reset, 10))
			}

			switch rej := out.Rejection.(type) {
			case nil:
				next.ServeHTTP(w, r.WithContext(WithQuotaInfo(r.Context(), out.Info)))
			case engine.Blocked:
				writeLimitResponse(w, http.StatusForbidden, LimitResponse{
					Error:   blockedMessage,
					Details: BlockedDetails{Plan: string(rej.Plan), Upgrade: true},
				})
			case engine.RateLimited:
				retryAfter := int64(rej.RetryAfter / time.Second)
				w.Header().Set(HeaderRetryAfter, strconv.FormatInt(retryAfter, 10))
				writeLimitResponse(w, http.StatusTooManyRequests, LimitResponse{
					Error: rateLimitedMessage,
					Details: RateLimitedDetails{
						Type:       rej.Type,
						RetryAfter: retryAfter,
						ResetAt:    time.Unix(rej.ResetAt, 0).UTC().Format(time.RFC3339),
					},
				})
			}
		})
	}
}

func writeLimitResponse(w http.ResponseWriter, status int, body LimitResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
