package core

import (
	"fmt"
	"strings"
)

// ScopeKind enumerates the counter dimensions.
type ScopeKind int

const (
	ScopeGlobal ScopeKind = iota + 1
	ScopeEndpoint
	ScopeIPGlobal
	ScopeIPBurst
)

const endpointScopePrefix = "endpoint:"

// Scope identifies one counter dimension for an identity.
type Scope struct {
	Kind     ScopeKind
	Endpoint string
}

func GlobalScope() Scope           { return Scope{Kind: ScopeGlobal} }
func IPGlobalScope() Scope         { return Scope{Kind: ScopeIPGlobal} }
func IPBurstScope() Scope          { return Scope{Kind: ScopeIPBurst} }
func EndpointScope(n string) Scope { return Scope{Kind: ScopeEndpoint, Endpoint: n} }

// String renders the scope as stored in counter keys.
func (s Scope) String() string {
	switch s.Kind {
	case ScopeGlobal:
		return "global"
	case ScopeEndpoint:
		return endpointScopePrefix + s.Endpoint
	case ScopeIPGlobal:
		return "ip_global"
	case ScopeIPBurst:
		return "ip_burst"
	default:
		return fmt.Sprintf("scope(%d)", int(s.Kind))
	}
}

// LimitType is the label reported to callers when this scope rejects a request.
func (s Scope) LimitType() string {
	switch s.Kind {
	case ScopeGlobal:
		return "global"
	case ScopeEndpoint:
		return s.Endpoint
	case ScopeIPGlobal:
		return "ip_global"
	case ScopeIPBurst:
		return "burst"
	default:
		return "unknown"
	}
}

// MetricLabel is a low-cardinality label for telemetry.
func (s Scope) MetricLabel() string {
	if s.Kind == ScopeEndpoint {
		return "endpoint"
	}
	return s.String()
}

// ParseScope is the inverse of Scope.String.
func ParseScope(value string) (Scope, error) {
	switch value {
	case "global":
		return GlobalScope(), nil
	case "ip_global":
		return IPGlobalScope(), nil
	case "ip_burst":
		return IPBurstScope(), nil
	}
	if name, ok := strings.CutPrefix(value, endpointScopePrefix); ok && name != "" {
		return EndpointScope(name), nil
	}
	return Scope{}, fmt.Errorf("unknown scope %q", value)
}

// CounterKey uniquely identifies a counter record.
type CounterKey struct {
	Identity string
	Scope    Scope
}

func (k CounterKey) String() string {
	return k.Identity + "|" + k.Scope.String()
}

// CounterRecord is the persisted state of a fixed-window counter.
type CounterRecord struct {
	Identity      string `json:"identity"`
	Scope         string `json:"scope"`
	WindowStart   int64  `json:"window_start"`
	Count         int    `json:"count"`
	LastRequestAt int64  `json:"last_request_at"`
}
