package cmd

import (
	"github.com/spf13/cobra"

	"github.com/quotaward/quotaward/internal/config"
	"github.com/quotaward/quotaward/internal/core/engine"
	"github.com/quotaward/quotaward/internal/core/policy"
	"github.com/quotaward/quotaward/internal/observability"
)

var quotaCmd = &cobra.Command{
	Use:   "quota",
	Short: "Inspect and maintain quota counters",
}

func init() {
	quotaCmd.AddCommand(quotaStatusCmd)
	quotaCmd.AddCommand(quotaCheckCmd)
	quotaCmd.AddCommand(quotaListCmd)
	quotaCmd.AddCommand(quotaResetCmd)
	quotaCmd.AddCommand(quotaCleanupCmd)
	rootCmd.AddCommand(quotaCmd)
}

func loadPolicy(cfg *config.Config) (*policy.Registry, error) {
	return policy.LoadOrDefault(cfg.Policy.Path)
}

func newEngine(cfg *config.Config, reg *policy.Registry, s *openedStore) *engine.Engine {
	return &engine.Engine{
		Policy:       reg,
		Store:        s,
		Logger:       observability.Logger(),
		CheckTimeout: cfg.Quota.CheckTimeout,
		Backend:      s.driver,
	}
}

// newCollector never deletes a counter younger than the longest policy window.
func newCollector(cfg *config.Config, reg *policy.Registry, s engine.CounterStore) *engine.Collector {
	return &engine.Collector{
		Store:     s,
		Logger:    observability.Logger(),
		BatchSize: cfg.Quota.Cleanup.BatchSize,
		MinAge:    reg.MaxWindow(),
	}
}

func batchesPerSecond(cfg *config.Config) float64 {
	if cfg.Quota.Cleanup.BatchesPerSecond > 0 {
		return cfg.Quota.Cleanup.BatchesPerSecond
	}
	return 1
}
