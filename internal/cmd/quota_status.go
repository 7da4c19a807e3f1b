package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/quotaward/quotaward/internal/core"
	"github.com/quotaward/quotaward/internal/core/engine"
	"github.com/quotaward/quotaward/internal/output"
)

var quotaStatusTier string

var quotaStatusCmd = &cobra.Command{
	Use:   "status <identity>",
	Short: "Show global usage for an identity",
	Long: `Show the plan and global counter usage for an identity without consuming quota.

The identity is a principal ID, or the client address for anonymous callers.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		identity := strings.TrimSpace(args[0])
		if identity == "" {
			return fmt.Errorf("identity must not be empty")
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		reg, err := loadPolicy(cfg)
		if err != nil {
			return err
		}
		tier, err := reg.ResolveTier(core.ParseTier(strings.TrimSpace(quotaStatusTier)))
		if err != nil {
			return err
		}

		cs, err := openCounterStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer cs.close() // nolint:errcheck // best-effort cleanup

		reporter := &engine.Reporter{Policy: reg, Store: cs}
		status, err := reporter.Status(ctx, identity, tier)
		if err != nil {
			return err
		}

		format, sink, err := openCommandSink(cmd, "quota.status")
		if err != nil {
			return err
		}
		defer func() { _ = sink.close() }()

		return writeRendered(sink.writer, format, status, func() string {
			return output.StatusTable(identity, status)
		})
	},
}

func init() {
	quotaStatusCmd.Flags().StringVar(&quotaStatusTier, "tier", "", "Tier whose global limit applies (default anonymous)")
	addOutputFlags(quotaStatusCmd)
}
