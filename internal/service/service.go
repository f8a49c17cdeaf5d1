// Package service is the cache-aware query facade over the H1B source.
// Every read checks the cache first, coalesces concurrent misses into one
// remote call and stores the result under a per-operation TTL.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/singleflight"

	"github.com/offersplus/backend/internal/cache"
	"github.com/offersplus/backend/internal/errorreporting"
	"github.com/offersplus/backend/internal/h1b"
	"github.com/offersplus/backend/internal/logger"
	"github.com/offersplus/backend/internal/metrics"
	"github.com/offersplus/backend/internal/tracing"
)

// Cache namespaces.
const (
	NamespaceFiltered  = "filtered_apps"
	NamespaceEmployers = "unique_employers"
	NamespaceStatuses  = "unique_statuses"
	NamespaceJobTitles = "unique_job_titles"
	NamespaceStats     = "statistics"
	NamespaceExport    = "export_data"
)

// Limits applied to the remote source.
const (
	DefaultStatisticsSample = 10000
	DefaultExportLimit      = 50000
	DefaultEmployerLimit    = 50
	DefaultJobTitleLimit    = 30
)

// TTLs holds the lifetime of each kind of cached result.
type TTLs struct {
	Filtered   time.Duration
	Unique     time.Duration
	Statistics time.Duration
	Export     time.Duration
	Prefetch   time.Duration
}

// DefaultTTLs returns the standard lifetimes.
func DefaultTTLs() TTLs {
	return TTLs{
		Filtered:   5 * time.Minute,
		Unique:     30 * time.Minute,
		Statistics: 10 * time.Minute,
		Export:     2 * time.Minute,
		Prefetch:   10 * time.Minute,
	}
}

// Option configures a Service.
type Option func(*Service)

// WithTTLs overrides cache lifetimes; zero fields keep the default.
func WithTTLs(t TTLs) Option {
	return func(s *Service) {
		override(&s.ttl.Filtered, t.Filtered)
		override(&s.ttl.Unique, t.Unique)
		override(&s.ttl.Statistics, t.Statistics)
		override(&s.ttl.Export, t.Export)
		override(&s.ttl.Prefetch, t.Prefetch)
	}
}

func override(dst *time.Duration, v time.Duration) {
	if v > 0 {
		*dst = v
	}
}

// WithStatisticsSample caps the records sampled for statistics.
func WithStatisticsSample(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.sampleLimit = n
		}
	}
}

// WithExportLimit caps the records returned by an export.
func WithExportLimit(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.exportLimit = n
		}
	}
}

// WithFetchTimeout bounds a single remote fetch. Fetches are detached from
// the caller's cancellation because other callers may be waiting on them.
func WithFetchTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.fetchTimeout = d
		}
	}
}

// Service is the cache-aware facade.
type Service struct {
	store        *cache.Store
	src          h1b.Source
	ttl          TTLs
	sampleLimit  int
	exportLimit  int
	fetchTimeout time.Duration
	group        singleflight.Group
	log          *slog.Logger
}

// New returns a facade reading src through store.
func New(store *cache.Store, src h1b.Source, opts ...Option) *Service {
	s := &Service{
		store:        store,
		src:          src,
		ttl:          DefaultTTLs(),
		sampleLimit:  DefaultStatisticsSample,
		exportLimit:  DefaultExportLimit,
		fetchTimeout: 30 * time.Second,
		log:          logger.WithComponent("h1b-service"),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// TTLs returns the effective lifetimes.
func (s *Service) TTLs() TTLs { return s.ttl }

// Store returns the backing cache.
func (s *Service) Store() *cache.Store { return s.store }

// query describes one cached read.
type query[T any] struct {
	op        string
	namespace string
	params    any
	ttl       time.Duration
	fetch     func(ctx context.Context) (T, error)
	// fallback is served, uncached, when the source is not provisioned.
	fallback func() T
}

type fetched[T any] struct {
	value    T
	degraded bool
}

// run is the check-then-fetch-then-cache path shared by every operation.
func run[T any](ctx context.Context, s *Service, q query[T]) (v T, err error) {
	ctx, span := tracing.StartSpan(ctx, "h1b."+q.op, attribute.String("cache.namespace", q.namespace))
	start := time.Now()
	outcome := "hit"
	defer func() {
		span.SetAttributes(attribute.String("cache.outcome", outcome))
		tracing.End(span, err)
		metrics.QueryRequests.WithLabelValues(q.op, outcome).Inc()
		metrics.QueryDuration.WithLabelValues(q.op).Observe(time.Since(start).Seconds())
	}()

	if s.store.Get(ctx, q.namespace, q.params, &v) {
		return v, nil
	}
	outcome = "miss"

	key, kerr := cache.MakeKey(q.namespace, q.params)
	if kerr != nil {
		// uncoalesced but still served
		key = ""
	}
	load := func() (any, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.fetchTimeout)
		defer cancel()
		val, err := q.fetch(fctx)
		if err != nil {
			if h1b.IsNotProvisioned(err) {
				metrics.SourceErrors.WithLabelValues(q.op, "not_provisioned").Inc()
				s.log.WarnContext(ctx, "h1b table unavailable, serving empty result", "operation", q.op, "error", err)
				return fetched[T]{value: q.fallback(), degraded: true}, nil
			}
			return nil, err
		}
		if err := s.store.Set(fctx, q.namespace, q.params, val, q.ttl); err != nil {
			s.log.WarnContext(ctx, "failed to cache result", "operation", q.op, "error", err)
		}
		return fetched[T]{value: val}, nil
	}

	var res any
	if key == "" {
		res, err = load()
	} else {
		ch := s.group.DoChan(key, load)
		select {
		case <-ctx.Done():
			return v, ctx.Err()
		case r := <-ch:
			res, err = r.Val, r.Err
		}
	}
	if err != nil {
		outcome = "error"
		metrics.SourceErrors.WithLabelValues(q.op, "transient").Inc()
		if !errors.Is(err, context.Canceled) {
			errorreporting.CaptureError(ctx, err, map[string]string{"operation": q.op})
		}
		s.log.ErrorContext(ctx, "h1b source query failed", "operation", q.op, "error", err)
		return v, err
	}
	f := res.(fetched[T])
	if f.degraded {
		outcome = "degraded"
	}
	return f.value, nil
}
