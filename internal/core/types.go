package core

import "time"

// Tier names a subscription level.
type Tier string

const (
	TierAnonymous Tier = "anonymous"
	TierStarter   Tier = "starter"
	TierGrowth    Tier = "growth"
	TierScale     Tier = "scale"
)

// ParseTier normalizes a tier string. Empty input maps to the anonymous tier.
func ParseTier(value string) Tier {
	if value == "" {
		return TierAnonymous
	}
	return Tier(value)
}

// Limit is a request budget over a fixed window. Requests == 0 blocks the tier.
type Limit struct {
	Requests      int   `json:"requests" yaml:"requests"`
	WindowSeconds int64 `json:"window" yaml:"window"`
}

// Blocked reports whether the limit denies all traffic.
func (l Limit) Blocked() bool {
	return l.Requests == 0
}

// Window returns the window length as a duration.
func (l Limit) Window() time.Duration {
	return time.Duration(l.WindowSeconds) * time.Second
}

// Request describes the parts of an inbound request the quota engine needs.
type Request struct {
	Path        string
	PrincipalID string
	Tier        string

	// Network address candidates, in precedence order.
	ForwardedFor  []string
	DirectAddr    string
	TransportAddr string
}

// Decision is the result of a single counter check.
type Decision struct {
	Allowed   bool
	Remaining int
	ResetAt   int64
	Count     int
	Limit     int

	// Failed marks a decision produced by failing open on a storage error.
	Failed bool
}

// Info is attached to the request context once a request is admitted.
type Info struct {
	Identity        string `json:"identity"`
	Tier            Tier   `json:"tier"`
	GlobalRemaining int    `json:"global_remaining"`
}

// GlobalUsage reports consumption of the global counter.
type GlobalUsage struct {
	Limit     int       `json:"limit"`
	Used      int       `json:"used"`
	Remaining int       `json:"remaining"`
	ResetsAt  time.Time `json:"resetsAt"`
}

// Status is the read-only usage report for an identity.
type Status struct {
	Plan   Tier        `json:"plan"`
	Global GlobalUsage `json:"global"`
}
