// Package policy holds the static per-tier and per-endpoint quota limits.
//
// A Registry is built once at process start from a versioned Document and is
// read-only afterwards; every lookup is a pure function of its inputs.
package policy

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"

	"github.com/quotaward/quotaward/internal/core"
)

// Document is the serialized form of a policy.
type Document struct {
	Version   string                  `yaml:"version" json:"version"`
	Tiers     map[string]TierDocument `yaml:"tiers" json:"tiers"`
	IP        IPDocument              `yaml:"ip" json:"ip"`
	Endpoints EndpointTable           `yaml:"endpoints" json:"endpoints"`
}

// TierDocument lists the limits for one subscription tier.
type TierDocument struct {
	Global    core.Limit            `yaml:"global" json:"global"`
	Endpoints map[string]core.Limit `yaml:"endpoints" json:"endpoints,omitempty"`
}

// IPDocument lists the limits applied to unauthenticated network addresses.
type IPDocument struct {
	Global core.Limit `yaml:"global" json:"global"`
	Burst  core.Limit `yaml:"burst" json:"burst"`
}

// EndpointTable maps request paths to endpoint names.
// Exact paths win over patterns; patterns are tried in order.
type EndpointTable struct {
	Exact    map[string]string `yaml:"exact" json:"exact,omitempty"`
	Patterns []PatternRule     `yaml:"patterns" json:"patterns,omitempty"`
}

// PatternRule binds a doublestar path pattern to an endpoint name.
type PatternRule struct {
	Pattern  string `yaml:"pattern" json:"pattern"`
	Endpoint string `yaml:"endpoint" json:"endpoint"`
}

// Validate checks the document for structural errors.
func (d Document) Validate() error {
	var errs []error

	if strings.TrimSpace(d.Version) == "" {
		errs = append(errs, errors.New("version is required"))
	}
	if _, ok := d.Tiers[string(core.TierAnonymous)]; !ok {
		errs = append(errs, fmt.Errorf("tier %q is required", core.TierAnonymous))
	}

	for name, tier := range d.Tiers {
		if strings.TrimSpace(name) == "" {
			errs = append(errs, errors.New("tier name must not be empty"))
			continue
		}
		if err := validateLimit(tier.Global, true); err != nil {
			errs = append(errs, fmt.Errorf("tiers.%s.global: %w", name, err))
		}
		for endpoint, limit := range tier.Endpoints {
			if err := validateLimit(limit, false); err != nil {
				errs = append(errs, fmt.Errorf("tiers.%s.endpoints.%s: %w", name, endpoint, err))
			}
		}
	}

	if err := validateLimit(d.IP.Global, true); err != nil {
		errs = append(errs, fmt.Errorf("ip.global: %w", err))
	}
	if err := validateLimit(d.IP.Burst, true); err != nil {
		errs = append(errs, fmt.Errorf("ip.burst: %w", err))
	}

	for path, endpoint := range d.Endpoints.Exact {
		if !strings.HasPrefix(path, "/") {
			errs = append(errs, fmt.Errorf("endpoints.exact: path %q must start with /", path))
		}
		if strings.TrimSpace(endpoint) == "" {
			errs = append(errs, fmt.Errorf("endpoints.exact: path %q has no endpoint", path))
		}
	}

	seen := make(map[string]struct{}, len(d.Endpoints.Patterns))
	for i, rule := range d.Endpoints.Patterns {
		if !doublestar.ValidatePattern(rule.Pattern) {
			errs = append(errs, fmt.Errorf("endpoints.patterns[%d]: invalid pattern %q", i, rule.Pattern))
		}
		if _, dup := seen[rule.Pattern]; dup {
			errs = append(errs, fmt.Errorf("endpoints.patterns[%d]: duplicate pattern %q", i, rule.Pattern))
		}
		seen[rule.Pattern] = struct{}{}
		if strings.TrimSpace(rule.Endpoint) == "" {
			errs = append(errs, fmt.Errorf("endpoints.patterns[%d]: endpoint is required", i))
		}
	}

	routed := d.Endpoints.names()
	for name, tier := range d.Tiers {
		for endpoint := range tier.Endpoints {
			if _, ok := routed[endpoint]; !ok {
				errs = append(errs, fmt.Errorf("tiers.%s.endpoints.%s: no path maps to this endpoint", name, endpoint))
			}
		}
	}

	return errors.Join(errs...)
}

// names returns every endpoint name reachable through an exact path or a pattern.
func (t EndpointTable) names() map[string]struct{} {
	names := make(map[string]struct{}, len(t.Exact)+len(t.Patterns))
	for _, endpoint := range t.Exact {
		names[endpoint] = struct{}{}
	}
	for _, rule := range t.Patterns {
		names[rule.Endpoint] = struct{}{}
	}
	return names
}

func validateLimit(l core.Limit, requirePositive bool) error {
	if l.Requests < 0 {
		return fmt.Errorf("requests must not be negative (got %d)", l.Requests)
	}
	if requirePositive && l.Requests == 0 {
		return errors.New("requests must be positive")
	}
	if l.WindowSeconds <= 0 {
		return fmt.Errorf("window must be positive (got %d)", l.WindowSeconds)
	}
	return nil
}

// Parse decodes and validates a YAML policy document.
func Parse(data []byte) (*Registry, error) {
	var doc Document
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode policy: %w", err)
	}
	return New(doc)
}

// Load reads a YAML policy document from path.
func Load(path string) (*Registry, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- policy path comes from operator config
	if err != nil {
		return nil, fmt.Errorf("read policy %s: %w", path, err)
	}
	reg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("policy %s: %w", path, err)
	}
	return reg, nil
}

// LoadOrDefault loads path, or returns the built-in policy when path is empty.
func LoadOrDefault(path string) (*Registry, error) {
	if strings.TrimSpace(path) == "" {
		return Default(), nil
	}
	return Load(path)
}
