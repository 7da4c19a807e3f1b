package cmd

import (
	"context"
	"time"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	errwrap "github.com/quotaward/quotaward/internal/errors"
	"github.com/quotaward/quotaward/internal/observability"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Run self-health check",
	Long:  "Verify the configuration, the policy and the counter store before starting the gateway.",
	Run: func(cmd *cobra.Command, args []string) {
		log := observability.CLILogger
		log.Info("Running health check...")

		if versionInfo.Version == "" {
			ExitWithCode(log, foundry.ExitConfigInvalid, "Version information missing", errwrap.NewConfigInvalidError("Version information missing"))
			return
		}
		log.Debug("Version check passed", zap.String("version", versionInfo.Version))

		cfg, err := loadConfig()
		if err != nil {
			ExitWithCode(log, foundry.ExitConfigInvalid, "Configuration invalid", err)
			return
		}
		log.Info("✅ Configuration valid", zap.String("store_driver", cfg.Store.Driver))

		reg, err := loadPolicy(cfg)
		if err != nil {
			ExitWithCode(log, foundry.ExitConfigInvalid, "Policy invalid", err)
			return
		}
		log.Info("✅ Policy loaded", zap.String("policy_version", reg.Version()))

		ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
		defer cancel()

		cs, err := openCounterStore(ctx, cfg)
		if err != nil {
			ExitWithCode(log, foundry.ExitExternalServiceUnavailable, "Counter store unavailable", err)
			return
		}
		defer cs.close() // nolint:errcheck // best-effort cleanup

		if err := cs.ping(ctx); err != nil {
			ExitWithCode(log, foundry.ExitExternalServiceUnavailable, "Counter store unavailable", err)
			return
		}
		log.Info("✅ Counter store reachable", zap.String("driver", cs.driver))

		log.Info("✅ All health checks passed")
	},
}

func init() {
	rootCmd.AddCommand(healthCmd)
}
