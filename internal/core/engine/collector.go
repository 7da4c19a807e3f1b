package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/fulmenhq/gofulmen/logging"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/quotaward/quotaward/internal/metrics"
)

// MaxBatchSize caps deletions per cleanup invocation.
const MaxBatchSize = 500

// Collector deletes counters whose window has long elapsed.
type Collector struct {
	Store  CounterStore
	Clock  func() time.Time
	Logger *logging.Logger

	// BatchSize is clamped to (0, MaxBatchSize].
	BatchSize int

	// MinAge raises any smaller maxAge so a record is never removed inside its window.
	MinAge time.Duration
}

// Cleanup deletes one batch of counters with a window start older than now-maxAge.
func (c *Collector) Cleanup(ctx context.Context, maxAge time.Duration) (int, error) {
	if c.Store == nil {
		return 0, fmt.Errorf("collector has no counter store")
	}
	if maxAge < 0 {
		return 0, fmt.Errorf("max age must not be negative (got %s)", maxAge)
	}

	age := c.effectiveAge(maxAge)
	cutoff := c.now().Unix() - int64(age/time.Second)

	deleted, err := c.Store.DeleteOlderThan(ctx, cutoff, c.batchSize())
	metrics.RecordCleanup(deleted, err == nil)
	if err != nil {
		return deleted, err
	}

	if c.Logger != nil && deleted > 0 {
		c.Logger.Info("Expired counters deleted",
			zap.Int("deleted", deleted),
			zap.Int64("cutoff", cutoff),
		)
	}
	return deleted, nil
}

// Drain runs Cleanup until a batch comes back short. Batches are paced by
// limiter when it is non-nil.
func (c *Collector) Drain(ctx context.Context, maxAge time.Duration, limiter *rate.Limiter) (int, error) {
	total := 0
	for {
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				return total, err
			}
		}

		deleted, err := c.Cleanup(ctx, maxAge)
		total += deleted
		if err != nil {
			return total, err
		}
		if deleted < c.batchSize() {
			return total, nil
		}
	}
}

// Run drains expired counters every interval until ctx is done.
func (c *Collector) Run(ctx context.Context, interval, maxAge time.Duration, limiter *rate.Limiter) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := c.Drain(ctx, maxAge, limiter); err != nil && ctx.Err() == nil && c.Logger != nil {
				c.Logger.Warn("Counter cleanup failed", zap.Error(err))
			}
		}
	}
}

func (c *Collector) effectiveAge(maxAge time.Duration) time.Duration {
	if maxAge >= c.MinAge {
		return maxAge
	}
	if c.Logger != nil {
		c.Logger.Warn("Cleanup max age below longest window, raising it",
			zap.Duration("requested", maxAge),
			zap.Duration("applied", c.MinAge),
		)
	}
	return c.MinAge
}

func (c *Collector) batchSize() int {
	if c.BatchSize <= 0 || c.BatchSize > MaxBatchSize {
		return MaxBatchSize
	}
	return c.BatchSize
}

func (c *Collector) now() time.Time {
	if c.Clock != nil {
		return c.Clock()
	}
	return time.Now().UTC()
}
