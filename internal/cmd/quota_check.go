package cmd

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/quotaward/quotaward/internal/core"
	"github.com/quotaward/quotaward/internal/output"
)

var (
	quotaCheckPrincipal string
	quotaCheckTier      string
	quotaCheckIPs       []string
)

var quotaCheckCmd = &cobra.Command{
	Use:   "check <path>",
	Short: "Evaluate a request against the configured counters",
	Long: `Evaluate one request for <path> exactly as the gateway would.

The request is counted: every check that admits it increments its counter.
Without --principal the request is anonymous and keyed on the first --ip.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		reg, err := loadPolicy(cfg)
		if err != nil {
			return err
		}

		cs, err := openCounterStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer cs.close() // nolint:errcheck // best-effort cleanup

		req := core.Request{
			Path:         args[0],
			PrincipalID:  strings.TrimSpace(quotaCheckPrincipal),
			Tier:         strings.TrimSpace(quotaCheckTier),
			ForwardedFor: quotaCheckIPs,
		}
		report := output.NewOutcomeReport(newEngine(cfg, reg, cs).Evaluate(ctx, req))

		format, sink, err := openCommandSink(cmd, "quota.check")
		if err != nil {
			return err
		}
		defer func() { _ = sink.close() }()

		return writeRendered(sink.writer, format, report, func() string {
			return output.OutcomeTable(report)
		})
	},
}

func init() {
	quotaCheckCmd.Flags().StringVar(&quotaCheckPrincipal, "principal", "", "Authenticated principal ID")
	quotaCheckCmd.Flags().StringVar(&quotaCheckTier, "tier", "", "Principal tier")
	quotaCheckCmd.Flags().StringSliceVar(&quotaCheckIPs, "ip", nil, "Client address chain, nearest client first")
	addOutputFlags(quotaCheckCmd)
}
