package output

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/quotaward/quotaward/internal/core"
	"github.com/quotaward/quotaward/internal/core/engine"
)

// OutcomeReport is the serialized form of an evaluated request.
type OutcomeReport struct {
	Identity   string        `json:"identity"`
	Tier       core.Tier     `json:"tier"`
	Allowed    bool          `json:"allowed"`
	Summary    string        `json:"summary"`
	RetryAfter int64         `json:"retry_after,omitempty"`
	Checks     []CheckReport `json:"checks"`
}

// CheckReport is one counter check within an OutcomeReport.
type CheckReport struct {
	Scope     string `json:"scope"`
	Allowed   bool   `json:"allowed"`
	Count     int    `json:"count"`
	Limit     int    `json:"limit"`
	Remaining int    `json:"remaining"`
	ResetAt   int64  `json:"reset_at"`
	FailOpen  bool   `json:"fail_open,omitempty"`
}

// NewOutcomeReport flattens out for display.
func NewOutcomeReport(out engine.Outcome) OutcomeReport {
	report := OutcomeReport{
		Identity: out.Identity.ID,
		Tier:     out.Identity.Tier,
		Allowed:  out.Allowed(),
		Summary:  OutcomeSummary(out),
		Checks:   make([]CheckReport, 0, len(out.Checks)),
	}
	if rl, ok := out.Rejection.(engine.RateLimited); ok {
		report.RetryAfter = int64(rl.RetryAfter.Seconds())
	}
	for _, c := range out.Checks {
		report.Checks = append(report.Checks, CheckReport{
			Scope:     c.Scope.String(),
			Allowed:   c.Decision.Allowed,
			Count:     c.Decision.Count,
			Limit:     c.Decision.Limit,
			Remaining: c.Decision.Remaining,
			ResetAt:   c.Decision.ResetAt,
			FailOpen:  c.Decision.Failed,
		})
	}
	return report
}

// OutcomeTable renders the checks made for one evaluated request.
func OutcomeTable(report OutcomeReport) string {
	t := newTable()
	t.SetTitle(fmt.Sprintf("%s (%s): %s", report.Identity, report.Tier, report.Summary))
	t.AppendHeader(table.Row{"Scope", "Allowed", "Count", "Limit", "Remaining", "Resets At"})
	for _, c := range report.Checks {
		remaining := fmt.Sprint(c.Remaining)
		if c.FailOpen {
			remaining = "fail-open"
		}
		t.AppendRow(table.Row{c.Scope, c.Allowed, c.Count, c.Limit, remaining, formatUnix(c.ResetAt)})
	}
	return t.Render()
}

// OutcomeSummary is a one-line description of an outcome.
func OutcomeSummary(out engine.Outcome) string {
	switch rej := out.Rejection.(type) {
	case engine.Blocked:
		return fmt.Sprintf("blocked on plan %s", rej.Plan)
	case engine.RateLimited:
		return fmt.Sprintf("rate limited (%s), retry after %s", rej.Type, rej.RetryAfter)
	default:
		return "allowed"
	}
}
