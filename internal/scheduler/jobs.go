package scheduler

import (
	"context"
	"time"

	"github.com/offersplus/backend/internal/logger"
	"github.com/offersplus/backend/internal/metrics"
)

// Job names.
const (
	JobCacheCleanup   = "cache_cleanup"
	JobMetricsRefresh = "metrics_refresh"
)

// CacheCleaner removes expired cache entries.
type CacheCleaner interface {
	CleanupCache(ctx context.Context) (int, error)
}

// CleanupJob sweeps expired cache entries on schedule.
func CleanupJob(schedule string, c CacheCleaner) Job {
	return Job{
		Name:     JobCacheCleanup,
		Schedule: schedule,
		Timeout:  5 * time.Minute,
		Run: func(ctx context.Context) error {
			removed, err := c.CleanupCache(ctx)
			if err != nil {
				return err
			}
			if removed > 0 {
				logger.InfoContext(ctx, "expired cache entries removed", "removed", removed)
			}
			return nil
		},
	}
}

// MetricsJob refreshes the collector's gauges on schedule.
func MetricsJob(schedule string, c *metrics.Collector) Job {
	return Job{
		Name:     JobMetricsRefresh,
		Schedule: schedule,
		Timeout:  30 * time.Second,
		Run: func(ctx context.Context) error {
			c.Collect(ctx)
			return nil
		},
	}
}
