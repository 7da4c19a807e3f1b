package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/quotaward/quotaward/internal/observability"
	"github.com/quotaward/quotaward/internal/server/handlers"
)

var (
	quotaCleanupMaxAge string
	quotaCleanupDrain  bool
)

type cleanupResult struct {
	Deleted int    `json:"deleted"`
	MaxAge  string `json:"max_age"`
	Drained bool   `json:"drained"`
}

var quotaCleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete expired counters",
	Long: `Delete counters whose window started more than --max-age ago.

One invocation deletes at most one batch (500 records). --drain repeats
batches, paced by quota.cleanup.batches_per_second, until none remain.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		maxAge := cfg.Quota.Cleanup.MaxAge
		if quotaCleanupMaxAge != "" {
			if maxAge, err = handlers.ParseMaxAge(quotaCleanupMaxAge); err != nil {
				return err
			}
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

		collector := newCollector(cfg, reg, cs)
		start := time.Now()

		var deleted int
		if quotaCleanupDrain {
			limiter := rate.NewLimiter(rate.Limit(batchesPerSecond(cfg)), 1)
			deleted, err = collector.Drain(ctx, maxAge, limiter)
		} else {
			deleted, err = collector.Cleanup(ctx, maxAge)
		}
		if err != nil {
			return err
		}

		observability.CLILogger.Debug("Counter cleanup finished",
			zap.Int("deleted", deleted),
			zap.Duration("max_age", maxAge),
			zap.Duration("elapsed", time.Since(start)))

		format, sink, err := openCommandSink(cmd, "quota.cleanup")
		if err != nil {
			return err
		}
		defer func() { _ = sink.close() }()

		result := cleanupResult{Deleted: deleted, MaxAge: maxAge.String(), Drained: quotaCleanupDrain}
		return writeRendered(sink.writer, format, result, func() string {
			return fmt.Sprintf("Deleted %d expired counter(s) older than %s", deleted, maxAge)
		})
	},
}

func init() {
	quotaCleanupCmd.Flags().StringVar(&quotaCleanupMaxAge, "max-age", "", "Minimum age of deleted windows, as seconds or a duration (default quota.cleanup.max_age)")
	quotaCleanupCmd.Flags().BoolVar(&quotaCleanupDrain, "drain", false, "Repeat batches until no expired counters remain")
	addOutputFlags(quotaCleanupCmd)
}
