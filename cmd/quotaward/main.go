package main

import (
	"github.com/fulmenhq/gofulmen/foundry"

	"github.com/quotaward/quotaward/internal/cmd"
	"github.com/quotaward/quotaward/internal/observability"
)

// Version information set via ldflags during build
// Example: go build -ldflags="-X main.version=1.0.0 -X main.commit=abc123 -X main.buildDate=2025-10-28"
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	cmd.SetVersionInfo(version, commit, buildDate)

	if err := cmd.Execute(); err != nil {
		// Commands return envelopes whose cause is only visible in the log fields.
		cmd.ExitWithCode(observability.Logger(), foundry.ExitFailure, "Command execution failed", err)
	}
}
