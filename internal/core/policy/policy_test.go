package policy

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quotaward/quotaward/internal/core"
)

func TestDefaultEndpointLimits(t *testing.T) {
	reg := Default()

	limit, ok := reg.EndpointLimit(core.TierStarter, "/api/pitch/generate")
	require.True(t, ok)
	assert.Equal(t, core.Limit{Requests: 10, WindowSeconds: 3600}, limit)

	limit, ok = reg.EndpointLimit(core.TierGrowth, "/api/team/invite")
	require.True(t, ok)
	assert.Equal(t, core.Limit{Requests: 20, WindowSeconds: 86400}, limit)

	_, ok = reg.EndpointLimit(core.TierStarter, "/api/unknown")
	assert.False(t, ok, "unknown path")

	_, ok = reg.EndpointLimit(core.Tier("enterprise"), "/api/pitch/generate")
	assert.False(t, ok, "unknown tier")
}

func TestEndpointNameExactBeforePattern(t *testing.T) {
	doc := DefaultDocument()
	doc.Endpoints.Exact["/api/reports/pitch"] = EndpointGeneratePitch
	reg, err := New(doc)
	require.NoError(t, err)

	name, ok := reg.EndpointName("/api/reports/pitch")
	require.True(t, ok)
	assert.Equal(t, EndpointGeneratePitch, name)

	name, ok = reg.EndpointName("/api/reports/q3/summary")
	require.True(t, ok)
	assert.Equal(t, EndpointGenerateReport, name)

	name, ok = reg.EndpointName("/api/market/signals")
	require.True(t, ok)
	assert.Equal(t, EndpointMarketSignals, name)
}

func TestEndpointPatternsTriedInOrder(t *testing.T) {
	doc := DefaultDocument()
	doc.Endpoints.Patterns = append([]PatternRule{
		{Pattern: "/api/analytics/export/*", Endpoint: EndpointGenerateReport},
	}, doc.Endpoints.Patterns...)
	reg, err := New(doc)
	require.NoError(t, err)

	name, _ := reg.EndpointName("/api/analytics/export/csv")
	assert.Equal(t, EndpointGenerateReport, name)

	name, _ = reg.EndpointName("/api/analytics/daily")
	assert.Equal(t, EndpointAnalytics, name)
}

func TestIsBlocked(t *testing.T) {
	reg := Default()

	tests := []struct {
		tier core.Tier
		path string
		want bool
	}{
		{core.TierStarter, "/api/market/signals", true},
		{core.TierAnonymous, "/api/reports/weekly", true},
		{core.TierGrowth, "/api/market/signals", false},
		{core.TierStarter, "/api/pitch/generate", false},
		{core.TierStarter, "/api/no-rule", false},
		{core.Tier("enterprise"), "/api/market/signals", false},
	}

	for _, tt := range tests {
		t.Run(string(tt.tier)+tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, reg.IsBlocked(tt.tier, tt.path))
		})
	}
}

func TestGlobalLimitFallsBackToAnonymous(t *testing.T) {
	reg := Default()

	assert.Equal(t, core.Limit{Requests: 500, WindowSeconds: 3600}, reg.GlobalLimit(core.TierStarter))
	assert.Equal(t, reg.GlobalLimit(core.TierAnonymous), reg.GlobalLimit(core.Tier("enterprise")))

	resolved, err := reg.ResolveTier(core.Tier("enterprise"))
	require.True(t, errors.Is(err, ErrUnknownTier))
	assert.Equal(t, core.TierAnonymous, resolved)

	resolved, err = reg.ResolveTier(core.TierScale)
	require.NoError(t, err)
	assert.Equal(t, core.TierScale, resolved)
}

func TestIPLimit(t *testing.T) {
	reg := Default()

	assert.Equal(t, core.Limit{Requests: 10, WindowSeconds: 60}, reg.IPLimit(IPKindBurst))
	assert.Equal(t, core.Limit{Requests: 300, WindowSeconds: 3600}, reg.IPLimit(IPKindGlobal))
	assert.Equal(t, reg.IPLimit(IPKindGlobal), reg.IPLimit(IPKind("daily")))
}

func TestMaxWindow(t *testing.T) {
	assert.Equal(t, 24*time.Hour, Default().MaxWindow())
}

func TestRegistryIsolatedFromDocument(t *testing.T) {
	doc := DefaultDocument()
	reg, err := New(doc)
	require.NoError(t, err)

	doc.Tiers[string(core.TierStarter)].Endpoints[EndpointGeneratePitch] = core.Limit{Requests: 1, WindowSeconds: 1}
	doc.Endpoints.Exact["/api/pitch/generate"] = EndpointAnalytics

	limit, _ := reg.EndpointLimit(core.TierStarter, "/api/pitch/generate")
	assert.Equal(t, 10, limit.Requests)

	out := reg.Document()
	out.Tiers[string(core.TierStarter)].Endpoints[EndpointGeneratePitch] = core.Limit{Requests: 2, WindowSeconds: 1}
	limit, _ = reg.EndpointLimit(core.TierStarter, "/api/pitch/generate")
	assert.Equal(t, 10, limit.Requests)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Document)
		errMsg string
	}{
		{"missing version", func(d *Document) { d.Version = "" }, "version is required"},
		{"missing anonymous", func(d *Document) { delete(d.Tiers, "anonymous") }, `tier "anonymous" is required`},
		{"zero global", func(d *Document) {
			d.Tiers["growth"] = TierDocument{Global: core.Limit{Requests: 0, WindowSeconds: 3600}}
		}, "tiers.growth.global"},
		{"negative endpoint", func(d *Document) {
			d.Tiers["growth"].Endpoints[EndpointAnalytics] = core.Limit{Requests: -1, WindowSeconds: 3600}
		}, "must not be negative"},
		{"zero window", func(d *Document) { d.IP.Burst.WindowSeconds = 0 }, "ip.burst"},
		{"relative path", func(d *Document) { d.Endpoints.Exact["api/x"] = "x" }, "must start with /"},
		{"bad pattern", func(d *Document) {
			d.Endpoints.Patterns = append(d.Endpoints.Patterns, PatternRule{Pattern: "/api/[", Endpoint: "x"})
		}, "invalid pattern"},
		{"duplicate pattern", func(d *Document) {
			d.Endpoints.Patterns = append(d.Endpoints.Patterns, d.Endpoints.Patterns[0])
		}, "duplicate pattern"},
		{"unrouted tier endpoint", func(d *Document) {
			d.Tiers["growth"].Endpoints["exportCSV"] = core.Limit{Requests: 5, WindowSeconds: 3600}
		}, "tiers.growth.endpoints.exportCSV: no path maps to this endpoint"},
		{"endpoint routed only by a removed pattern", func(d *Document) {
			d.Endpoints.Patterns = d.Endpoints.Patterns[:2]
		}, "endpoints.analytics: no path maps to this endpoint"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := DefaultDocument()
			tt.mutate(&doc)
			err := doc.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}

	require.NoError(t, DefaultDocument().Validate())
}

func TestParseYAML(t *testing.T) {
	data := []byte(`
version: "2025-01-01"
tiers:
  anonymous:
    global: {requests: 5, window: 60}
  pro:
    global: {requests: 100, window: 3600}
    endpoints:
      export: {requests: 0, window: 3600}
ip:
  global: {requests: 50, window: 3600}
  burst: {requests: 3, window: 10}
endpoints:
  exact:
    /api/export: export
  patterns:
    - pattern: /api/exports/**
      endpoint: export
`)

	reg, err := Parse(data)
	require.NoError(t, err)
	assert.Equal(t, "2025-01-01", reg.Version())
	assert.Equal(t, []core.Tier{core.TierAnonymous, core.Tier("pro")}, reg.Tiers())
	assert.True(t, reg.IsBlocked(core.Tier("pro"), "/api/exports/2025/q1"))
	assert.Equal(t, core.Limit{Requests: 3, WindowSeconds: 10}, reg.IPLimit(IPKindBurst))

	_, err = Parse([]byte("version: x\nunknown_field: 1\n"))
	require.Error(t, err)
}

func TestLoadOrDefault(t *testing.T) {
	reg, err := LoadOrDefault("")
	require.NoError(t, err)
	assert.Equal(t, DefaultVersion, reg.Version())

	_, err = LoadOrDefault(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)

	path := filepath.Join(t.TempDir(), "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
version: v2
tiers:
  anonymous:
    global: {requests: 1, window: 60}
ip:
  global: {requests: 1, window: 60}
  burst: {requests: 1, window: 1}
`), 0o600))
	reg, err = Load(path)
	require.NoError(t, err)
	assert.Equal(t, "v2", reg.Version())
}
