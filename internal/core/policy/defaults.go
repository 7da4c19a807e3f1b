package policy

import "github.com/quotaward/quotaward/internal/core"

// DefaultVersion identifies the built-in policy.
const DefaultVersion = "2024-06-01"

// Endpoint names used by the built-in policy.
const (
	EndpointGeneratePitch  = "generatePitch"
	EndpointGenerateReport = "generateReport"
	EndpointMarketSignals  = "marketSignals"
	EndpointTeamInvite     = "teamInvite"
	EndpointAnalytics      = "analytics"
)

const (
	hour = 3600
	day  = 86400
)

func perHour(n int) core.Limit { return core.Limit{Requests: n, WindowSeconds: hour} }

// DefaultDocument returns the built-in policy document.
func DefaultDocument() Document {
	blocked := core.Limit{Requests: 0, WindowSeconds: hour}

	return Document{
		Version: DefaultVersion,
		Tiers: map[string]TierDocument{
			string(core.TierAnonymous): {
				Global: perHour(30),
				Endpoints: map[string]core.Limit{
					EndpointGeneratePitch:  perHour(3),
					EndpointGenerateReport: blocked,
					EndpointMarketSignals:  blocked,
					EndpointTeamInvite:     blocked,
					EndpointAnalytics:      blocked,
				},
			},
			string(core.TierStarter): {
				Global: perHour(500),
				Endpoints: map[string]core.Limit{
					EndpointGeneratePitch:  perHour(10),
					EndpointGenerateReport: perHour(5),
					EndpointMarketSignals:  blocked,
					EndpointTeamInvite:     blocked,
					EndpointAnalytics:      perHour(50),
				},
			},
			string(core.TierGrowth): {
				Global: perHour(2000),
				Endpoints: map[string]core.Limit{
					EndpointGeneratePitch:  perHour(50),
					EndpointGenerateReport: perHour(25),
					EndpointMarketSignals:  perHour(100),
					EndpointTeamInvite:     {Requests: 20, WindowSeconds: day},
					EndpointAnalytics:      perHour(200),
				},
			},
			string(core.TierScale): {
				Global: perHour(10000),
				Endpoints: map[string]core.Limit{
					EndpointGeneratePitch:  perHour(250),
					EndpointGenerateReport: perHour(100),
					EndpointMarketSignals:  perHour(500),
					EndpointTeamInvite:     {Requests: 100, WindowSeconds: day},
					EndpointAnalytics:      perHour(1000),
				},
			},
		},
		IP: IPDocument{
			Global: perHour(300),
			Burst:  core.Limit{Requests: 10, WindowSeconds: 60},
		},
		Endpoints: EndpointTable{
			Exact: map[string]string{
				"/api/pitch/generate": EndpointGeneratePitch,
				"/api/generate-pitch": EndpointGeneratePitch,
				"/api/team/invite":    EndpointTeamInvite,
			},
			Patterns: []PatternRule{
				{Pattern: "/api/reports/**", Endpoint: EndpointGenerateReport},
				{Pattern: "/api/market/**", Endpoint: EndpointMarketSignals},
				{Pattern: "/api/analytics/**", Endpoint: EndpointAnalytics},
			},
		},
	}
}

// Default returns a registry over the built-in policy.
func Default() *Registry {
	reg, err := New(DefaultDocument())
	if err != nil {
		panic("built-in policy is invalid: " + err.Error())
	}
	return reg
}
