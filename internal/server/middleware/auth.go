package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/fulmenhq/gofulmen/errors"
)

// Default header names for authentication.
const (
	DefaultAPIKeyHeader    = "X-API-Key"
	DefaultPrincipalHeader = "X-Principal-ID"
	DefaultTierHeader      = "X-Principal-Tier"
)

// Principal is an authenticated caller.
type Principal struct {
	ID   string
	Tier string
}

// AuthConfig configures Authenticate.
type AuthConfig struct {
	// Header carries the API key. Empty uses DefaultAPIKeyHeader.
	Header string

	// Keys maps API keys to principals.
	Keys map[string]Principal

	// TrustHeaders accepts principal and tier headers set by an upstream
	// auth proxy when no API key is presented.
	TrustHeaders    bool
	PrincipalHeader string
	TierHeader      string
}

type principalContextKey struct{}

// WithPrincipal returns ctx carrying p.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, p)
}

// PrincipalFromContext returns the authenticated principal, if any.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalContextKey{}).(Principal)
	return p, ok && p.ID != ""
}

// Authenticate resolves the caller's principal. Requests without credentials
// continue anonymously; an API key that is not configured is rejected with 401.
func Authenticate(cfg AuthConfig) func(http.Handler) http.Handler {
	header := headerOrDefault(cfg.Header, DefaultAPIKeyHeader)
	principalHeader := headerOrDefault(cfg.PrincipalHeader, DefaultPrincipalHeader)
	tierHeader := headerOrDefault(cfg.TierHeader, DefaultTierHeader)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if key := strings.TrimSpace(r.Header.Get(header)); key != "" {
				p, ok := cfg.Keys[key]
				if !ok {
					env := errors.NewErrorEnvelope("UNAUTHORIZED", "Invalid API key").
						WithCorrelationID(GetRequestID(r.Context()))
					writeErrorResponse(w, env, http.StatusUnauthorized)
					return
				}
				next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
				return
			}

			if cfg.TrustHeaders {
				if id := strings.TrimSpace(r.Header.Get(principalHeader)); id != "" {
					p := Principal{ID: id, Tier: strings.TrimSpace(r.Header.Get(tierHeader))}
					next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
					return
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}

func headerOrDefault(value, fallback string) string {
	if v := strings.TrimSpace(value); v != "" {
		return v
	}
	return fallback
}
