package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/quotaward/quotaward/internal/core/policy"
	"github.com/quotaward/quotaward/internal/output"
)

var policyShowFile string

var policyCmd = &cobra.Command{
	Use:   "policy",
	Short: "Inspect quota policies",
}

var policyShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the active policy",
	Long: `Print the policy the gateway would load: --file, else policy.path from
config, else the built-in policy.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		path := policyShowFile
		if path == "" {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			path = cfg.Policy.Path
		}

		reg, err := policy.LoadOrDefault(path)
		if err != nil {
			return err
		}
		doc := reg.Document()

		format, sink, err := openCommandSink(cmd, "policy")
		if err != nil {
			return err
		}
		defer func() { _ = sink.close() }()

		return writeRendered(sink.writer, format, doc, func() string {
			return output.PolicyTable(doc)
		})
	},
}

var policyValidateCmd = &cobra.Command{
	Use:   "validate <file>",
	Short: "Validate a policy document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := policy.Load(args[0])
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s: policy %s is valid (%d tiers, longest window %s)\n",
			args[0], reg.Version(), len(reg.Tiers()), reg.MaxWindow())
		return err
	},
}

func init() {
	policyShowCmd.Flags().StringVar(&policyShowFile, "file", "", "Policy document to show instead of the configured one")
	addOutputFlags(policyShowCmd)

	policyCmd.AddCommand(policyShowCmd)
	policyCmd.AddCommand(policyValidateCmd)
	rootCmd.AddCommand(policyCmd)
}
