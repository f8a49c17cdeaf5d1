package metrics

import (
	"context"

	"github.com/offersplus/backend/internal/logger"
)

// Reporter refreshes a group of gauges. Implementations set the gauges
// themselves; the collector only schedules them and counts failures.
type Reporter interface {
	ReportMetrics(ctx context.Context) error
}

// ReporterFunc adapts a function to Reporter.
type ReporterFunc func(ctx context.Context) error

func (f ReporterFunc) ReportMetrics(ctx context.Context) error { return f(ctx) }

// Collector runs registered reporters when asked. Scheduling is left to
// the caller (see scheduler.MetricsJob).
type Collector struct {
	reporters map[string]Reporter
}

// NewCollector creates an empty collector.
func NewCollector() *Collector {
	return &Collector{reporters: make(map[string]Reporter)}
}

// Register adds a named reporter. Must be called before the first Collect.
func (c *Collector) Register(source string, r Reporter) {
	c.reporters[source] = r
}

// Collect runs every reporter once.
func (c *Collector) Collect(ctx context.Context) {
	for source, r := range c.reporters {
		if err := r.ReportMetrics(ctx); err != nil {
			logger.WarnContext(ctx, "metrics collection failed", "source", source, "error", err)
			MetricsCollectionErrors.WithLabelValues(source).Inc()
		}
	}
}
