package cmd

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/quotaward/quotaward/internal/core/store"
	"github.com/quotaward/quotaward/internal/output"
)

var (
	quotaResetAll      bool
	quotaResetIdentity string
	quotaResetPrefix   string
	quotaResetScope    string
	quotaResetYes      bool
	quotaResetDryRun   bool
)

type resetResult struct {
	Matched int   `json:"matched"`
	Deleted int64 `json:"deleted"`
	DryRun  bool  `json:"dry_run"`
}

var quotaResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Delete stored counters (libsql store)",
	Long: `Delete stored counters so the matching identities start fresh windows.

Use --identity for one caller, --prefix for a group, or --all with --yes.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		query := store.CounterQuery{
			All:      quotaResetAll,
			Identity: strings.TrimSpace(quotaResetIdentity),
			Prefix:   strings.TrimSpace(quotaResetPrefix),
			Scope:    strings.TrimSpace(quotaResetScope),
		}
		if err := query.Validate(); err != nil {
			return err
		}
		if query.All && !quotaResetYes && !quotaResetDryRun {
			return errors.New("--all requires --yes (or use --dry-run)")
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

		matched, err := db.CountCounters(ctx, query)
		if err != nil {
			return err
		}

		format, sink, err := openCommandSink(cmd, "quota.reset")
		if err != nil {
			return err
		}
		defer func() { _ = sink.close() }()

		result := resetResult{Matched: matched, DryRun: quotaResetDryRun}
		if !quotaResetDryRun {
			if result.Deleted, err = db.ResetCounters(ctx, query); err != nil {
				return err
			}
		}
		return writeResetResult(sink.writer, format, result)
	},
}

func writeResetResult(w io.Writer, format output.Format, result resetResult) error {
	if format == output.FormatJSON {
		payload, err := output.JSON(result)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, payload)
		return err
	}

	if result.DryRun {
		_, err := fmt.Fprintf(w, "Would delete %d counter(s)\n", result.Matched)
		return err
	}
	_, err := fmt.Fprintf(w, "Deleted %d/%d counter(s)\n", result.Deleted, result.Matched)
	return err
}

func init() {
	quotaResetCmd.Flags().BoolVar(&quotaResetAll, "all", false, "Reset every counter")
	quotaResetCmd.Flags().StringVar(&quotaResetIdentity, "identity", "", "Reset one identity (exact match)")
	quotaResetCmd.Flags().StringVar(&quotaResetPrefix, "prefix", "", "Reset identities with matching prefix")
	quotaResetCmd.Flags().StringVar(&quotaResetScope, "scope", "", "Only reset one scope, e.g. global or ip_burst")
	quotaResetCmd.Flags().BoolVar(&quotaResetYes, "yes", false, "Confirm destructive reset")
	quotaResetCmd.Flags().BoolVar(&quotaResetDryRun, "dry-run", false, "Show what would be deleted")
	addOutputFlags(quotaResetCmd)
}
