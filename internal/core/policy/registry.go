package policy

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/quotaward/quotaward/internal/core"
)

// ErrUnknownTier is returned by ResolveTier for tiers the policy does not define.
var ErrUnknownTier = errors.New("unknown tier")

// IPKind selects one of the anonymous network-address limits.
type IPKind string

const (
	IPKindGlobal IPKind = "global"
	IPKindBurst  IPKind = "burst"
)

type tierPolicy struct {
	global    core.Limit
	endpoints map[string]core.Limit
}

// Registry answers limit lookups. It is safe for concurrent use because it is
// never mutated after New returns.
type Registry struct {
	version  string
	tiers    map[core.Tier]tierPolicy
	ipGlobal core.Limit
	ipBurst  core.Limit
	exact    map[string]string
	patterns []PatternRule
}

// New validates doc and builds a registry holding private copies of its tables.
func New(doc Document) (*Registry, error) {
	if err := doc.Validate(); err != nil {
		return nil, fmt.Errorf("invalid policy: %w", err)
	}

	r := &Registry{
		version:  doc.Version,
		tiers:    make(map[core.Tier]tierPolicy, len(doc.Tiers)),
		ipGlobal: doc.IP.Global,
		ipBurst:  doc.IP.Burst,
		exact:    make(map[string]string, len(doc.Endpoints.Exact)),
		patterns: append([]PatternRule(nil), doc.Endpoints.Patterns...),
	}

	for name, tier := range doc.Tiers {
		endpoints := make(map[string]core.Limit, len(tier.Endpoints))
		for endpoint, limit := range tier.Endpoints {
			endpoints[endpoint] = limit
		}
		r.tiers[core.Tier(name)] = tierPolicy{global: tier.Global, endpoints: endpoints}
	}
	for path, endpoint := range doc.Endpoints.Exact {
		r.exact[path] = endpoint
	}

	return r, nil
}

// Version returns the policy document version.
func (r *Registry) Version() string {
	return r.version
}

// Tiers lists the defined tiers in name order.
func (r *Registry) Tiers() []core.Tier {
	tiers := make([]core.Tier, 0, len(r.tiers))
	for tier := range r.tiers {
		tiers = append(tiers, tier)
	}
	sort.Slice(tiers, func(i, j int) bool { return tiers[i] < tiers[j] })
	return tiers
}

// ResolveTier returns tier when defined, otherwise the anonymous tier and ErrUnknownTier.
func (r *Registry) ResolveTier(tier core.Tier) (core.Tier, error) {
	if _, ok := r.tiers[tier]; ok {
		return tier, nil
	}
	return core.TierAnonymous, fmt.Errorf("%w: %q", ErrUnknownTier, tier)
}

// EndpointName maps a request path to an endpoint name.
func (r *Registry) EndpointName(path string) (string, bool) {
	if name, ok := r.exact[path]; ok {
		return name, true
	}
	for _, rule := range r.patterns {
		// Patterns were validated in New, so Match cannot fail here.
		if ok, _ := doublestar.Match(rule.Pattern, path); ok {
			return rule.Endpoint, true
		}
	}
	return "", false
}

// EndpointLimit returns the limit for the endpoint behind path, if the tier defines one.
func (r *Registry) EndpointLimit(tier core.Tier, path string) (core.Limit, bool) {
	tp, ok := r.tiers[tier]
	if !ok {
		return core.Limit{}, false
	}
	name, ok := r.EndpointName(path)
	if !ok {
		return core.Limit{}, false
	}
	limit, ok := tp.endpoints[name]
	return limit, ok
}

// GlobalLimit returns the tier-wide limit, falling back to the anonymous tier.
func (r *Registry) GlobalLimit(tier core.Tier) core.Limit {
	if tp, ok := r.tiers[tier]; ok {
		return tp.global
	}
	return r.tiers[core.TierAnonymous].global
}

// IPLimit returns the network-address limit of the given kind, falling back to global.
func (r *Registry) IPLimit(kind IPKind) core.Limit {
	switch kind {
	case IPKindBurst:
		return r.ipBurst
	default:
		return r.ipGlobal
	}
}

// IsBlocked reports whether tier is denied all access to the endpoint behind path.
func (r *Registry) IsBlocked(tier core.Tier, path string) bool {
	limit, ok := r.EndpointLimit(tier, path)
	return ok && limit.Blocked()
}

// MaxWindow is the longest window of any limit. Counters younger than this
// may still be inside their window.
func (r *Registry) MaxWindow() time.Duration {
	longest := r.ipGlobal.WindowSeconds
	if r.ipBurst.WindowSeconds > longest {
		longest = r.ipBurst.WindowSeconds
	}
	for _, tp := range r.tiers {
		if tp.global.WindowSeconds > longest {
			longest = tp.global.WindowSeconds
		}
		for _, limit := range tp.endpoints {
			if limit.WindowSeconds > longest {
				longest = limit.WindowSeconds
			}
		}
	}
	return time.Duration(longest) * time.Second
}

// Document returns a copy of the policy in serialized form.
func (r *Registry) Document() Document {
	doc := Document{
		Version: r.version,
		Tiers:   make(map[string]TierDocument, len(r.tiers)),
		IP:      IPDocument{Global: r.ipGlobal, Burst: r.ipBurst},
		Endpoints: EndpointTable{
			Exact:    make(map[string]string, len(r.exact)),
			Patterns: append([]PatternRule(nil), r.patterns...),
		},
	}
	for tier, tp := range r.tiers {
		endpoints := make(map[string]core.Limit, len(tp.endpoints))
		for name, limit := range tp.endpoints {
			endpoints[name] = limit
		}
		doc.Tiers[string(tier)] = TierDocument{Global: tp.global, Endpoints: endpoints}
	}
	for path, name := range r.exact {
		doc.Endpoints.Exact[path] = name
	}
	return doc
}
