package cmd

import (
	"fmt"
	"strings"

	"github.com/fulmenhq/gofulmen/ascii"
	"github.com/spf13/cobra"

	"github.com/quotaward/quotaward/internal/core/store"
	"github.com/quotaward/quotaward/internal/output"
)

var (
	quotaListAll      bool
	quotaListIdentity string
	quotaListPrefix   string
	quotaListScope    string
)

var quotaListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored counters (libsql store)",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		query := store.CounterQuery{
			All:      quotaListAll,
			Identity: strings.TrimSpace(quotaListIdentity),
			Prefix:   strings.TrimSpace(quotaListPrefix),
			Scope:    strings.TrimSpace(quotaListScope),
		}
		if query.Identity == "" && query.Prefix == "" {
			query.All = true
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		db, err := openLibsqlStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer db.Close() // nolint:errcheck // best-effort cleanup

		records, err := db.ListCounters(ctx, query)
		if err != nil {
			return err
		}

		format, sink, err := openCommandSink(cmd, "quota.list")
		if err != nil {
			return err
		}
		defer func() { _ = sink.close() }()

		if format == output.FormatTable && len(records) == 0 {
			_, err := fmt.Fprint(sink.writer, ascii.DrawBox("Counters\n\n(no stored counters)", 0))
			return err
		}
		return writeRendered(sink.writer, format, records, func() string {
			return output.CountersTable(records)
		})
	},
}

func init() {
	quotaListCmd.Flags().BoolVar(&quotaListAll, "all", false, "List all counters (default when no filter is given)")
	quotaListCmd.Flags().StringVar(&quotaListIdentity, "identity", "", "List counters of one identity (exact match)")
	quotaListCmd.Flags().StringVar(&quotaListPrefix, "prefix", "", "List counters of identities with matching prefix")
	quotaListCmd.Flags().StringVar(&quotaListScope, "scope", "", "Only list one scope, e.g. global or endpoint:generatePitch")
	addOutputFlags(quotaListCmd)
}
