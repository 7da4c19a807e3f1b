package engine

import (
	"net"
	"strings"

	"github.com/quotaward/quotaward/internal/core"
)

// UnknownIdentity is used when a request carries no usable network address.
const UnknownIdentity = "unknown"

// Identity is the counter owner for a request.
type Identity struct {
	ID            string
	Authenticated bool
	Tier          core.Tier
}

// ResolveIdentity derives the counter identity and tier from request metadata.
func ResolveIdentity(req core.Request) Identity {
	if principal := strings.TrimSpace(req.PrincipalID); principal != "" {
		return Identity{
			ID:            principal,
			Authenticated: true,
			Tier:          core.ParseTier(strings.TrimSpace(req.Tier)),
		}
	}
	return Identity{
		ID:   NetworkAddress(req),
		Tier: core.TierAnonymous,
	}
}

// NetworkAddress picks the first available address candidate:
// forwarded list head, direct address, then transport address without port.
func NetworkAddress(req core.Request) string {
	if len(req.ForwardedFor) > 0 {
		if addr := strings.TrimSpace(req.ForwardedFor[0]); addr != "" {
			return addr
		}
	}
	if addr := strings.TrimSpace(req.DirectAddr); addr != "" {
		return addr
	}
	if addr := strings.TrimSpace(req.TransportAddr); addr != "" {
		if host, _, err := net.SplitHostPort(addr); err == nil && host != "" {
			return host
		}
		return addr
	}
	return UnknownIdentity
}

// SplitForwardedFor splits an X-Forwarded-For header value into its entries.
func SplitForwardedFor(values ...string) []string {
	var out []string
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			out = append(out, strings.TrimSpace(part))
		}
	}
	return out
}
