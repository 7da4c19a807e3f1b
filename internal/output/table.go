package output

import (
	"fmt"
	"sort"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/quotaward/quotaward/internal/core"
	"github.com/quotaward/quotaward/internal/core/policy"
)

func newTable() table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	return t
}

// StatusTable renders an identity's plan and global usage.
func StatusTable(identity string, status core.Status) string {
	t := newTable()
	t.AppendHeader(table.Row{"Identity", "Plan", "Used", "Limit", "Remaining", "Resets At"})
	t.AppendRow(table.Row{
		identity,
		string(status.Plan),
		status.Global.Used,
		status.Global.Limit,
		status.Global.Remaining,
		status.Global.ResetsAt.UTC().Format(time.RFC3339),
	})
	return t.Render()
}

// CountersTable renders stored counters.
func CountersTable(records []core.CounterRecord) string {
	t := newTable()
	t.AppendHeader(table.Row{"Identity", "Scope", "Count", "Window Start", "Last Request"})
	for _, rec := range records {
		t.AppendRow(table.Row{
			rec.Identity,
			rec.Scope,
			rec.Count,
			formatUnix(rec.WindowStart),
			formatUnix(rec.LastRequestAt),
		})
	}
	t.AppendFooter(table.Row{"", "", fmt.Sprintf("%d counter(s)", len(records)), "", ""})
	t.Style().Format.Footer = text.FormatDefault
	return t.Render()
}

// PolicyTable renders the tier limits of doc, one row per tier and scope,
// followed by the endpoint path table.
func PolicyTable(doc policy.Document) string {
	limits := newTable()
	limits.SetTitle("Policy " + doc.Version)
	limits.AppendHeader(table.Row{"Tier", "Scope", "Requests", "Window"})

	for _, tier := range sortedKeys(doc.Tiers) {
		td := doc.Tiers[tier]
		limits.AppendRow(table.Row{tier, "global", td.Global.Requests, formatWindow(td.Global)})
		for _, endpoint := range sortedKeys(td.Endpoints) {
			l := td.Endpoints[endpoint]
			requests := fmt.Sprint(l.Requests)
			if l.Blocked() {
				requests = "blocked"
			}
			limits.AppendRow(table.Row{tier, "endpoint:" + endpoint, requests, formatWindow(l)})
		}
		limits.AppendSeparator()
	}
	limits.AppendRow(table.Row{"(network)", "ip_global", doc.IP.Global.Requests, formatWindow(doc.IP.Global)})
	limits.AppendRow(table.Row{"(network)", "ip_burst", doc.IP.Burst.Requests, formatWindow(doc.IP.Burst)})

	paths := newTable()
	paths.SetTitle("Endpoints")
	paths.AppendHeader(table.Row{"Match", "Path", "Endpoint"})
	for _, path := range sortedKeys(doc.Endpoints.Exact) {
		paths.AppendRow(table.Row{"exact", path, doc.Endpoints.Exact[path]})
	}
	for i, rule := range doc.Endpoints.Patterns {
		paths.AppendRow(table.Row{fmt.Sprintf("pattern #%d", i+1), rule.Pattern, rule.Endpoint})
	}

	return limits.Render() + "\n" + paths.Render()
}

func formatUnix(ts int64) string {
	if ts <= 0 {
		return "-"
	}
	return time.Unix(ts, 0).UTC().Format(time.RFC3339)
}

// formatWindow prints whole hours or minutes compactly ("1h", "10m") and
// falls back to seconds otherwise.
func formatWindow(l core.Limit) string {
	secs := l.WindowSeconds
	switch {
	case secs > 0 && secs%3600 == 0:
		return fmt.Sprintf("%dh", secs/3600)
	case secs > 0 && secs%60 == 0:
		return fmt.Sprintf("%dm", secs/60)
	default:
		return fmt.Sprintf("%ds", secs)
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
