package service

import (
	"context"
	"fmt"
	"time"

	"github.com/offersplus/backend/internal/cache"
	"github.com/offersplus/backend/internal/h1b"
	"github.com/offersplus/backend/internal/prefetch"
)

// pageParams is the cache identity of a filtered page.
type pageParams struct {
	Filters    h1b.Filters `json:"filters"`
	PageSize   int         `json:"pageSize"`
	PageNumber int         `json:"pageNumber"`
	SortBy     string      `json:"sortBy"`
	SortOrder  string      `json:"sortOrder"`
}

func newPageParams(f h1b.Filters, p h1b.Pagination) pageParams {
	return pageParams{
		Filters:    f.Normalize(),
		PageSize:   p.PageSize,
		PageNumber: p.Page,
		SortBy:     p.SortBy,
		SortOrder:  p.SortOrder,
	}
}

type limitParams struct {
	Limit int `json:"limit"`
}

type filterParams struct {
	Filters h1b.Filters `json:"filters"`
}

type exportParams struct {
	Filters h1b.Filters `json:"filters"`
	Export  bool        `json:"export"`
}

// GetFilteredApplications returns one page of matching applications.
// Pagination is clamped before it becomes part of the cache key.
func (s *Service) GetFilteredApplications(ctx context.Context, f h1b.Filters, p h1b.Pagination) (h1b.PaginatedResult[h1b.Record], error) {
	p = p.Clamp()
	return run(ctx, s, s.pageQuery(f, p, s.ttl.Filtered))
}

func (s *Service) pageQuery(f h1b.Filters, p h1b.Pagination, ttl time.Duration) query[h1b.PaginatedResult[h1b.Record]] {
	f = f.Normalize()
	return query[h1b.PaginatedResult[h1b.Record]]{
		op:        "filtered_applications",
		namespace: NamespaceFiltered,
		params:    newPageParams(f, p),
		ttl:       ttl,
		fetch: func(ctx context.Context) (h1b.PaginatedResult[h1b.Record], error) {
			return s.src.QueryPage(ctx, f, p)
		},
		fallback: func() h1b.PaginatedResult[h1b.Record] { return h1b.EmptyPage[h1b.Record](p) },
	}
}

// GetUniqueValues returns sorted distinct values of field for filter
// dropdowns. limit <= 0 means no limit.
func (s *Service) GetUniqueValues(ctx context.Context, field h1b.Field, limit int) ([]string, error) {
	ns, err := uniqueNamespace(field)
	if err != nil {
		return nil, err
	}
	if limit < 0 {
		limit = 0
	}
	var params any = limitParams{Limit: limit}
	if field == h1b.FieldStatus && limit == 0 {
		params = struct{}{}
	}
	return run(ctx, s, query[[]string]{
		op:        "unique_values",
		namespace: ns,
		params:    params,
		ttl:       s.ttl.Unique,
		fetch: func(ctx context.Context) ([]string, error) {
			return s.src.Distinct(ctx, field, limit)
		},
		fallback: func() []string { return []string{} },
	})
}

func uniqueNamespace(field h1b.Field) (string, error) {
	switch field {
	case h1b.FieldEmployer:
		return NamespaceEmployers, nil
	case h1b.FieldStatus:
		return NamespaceStatuses, nil
	case h1b.FieldJobTitle:
		return NamespaceJobTitles, nil
	}
	return "", fmt.Errorf("%w: %q", h1b.ErrUnknownField, field)
}

// UniqueEmployers returns up to limit employers (default 50).
func (s *Service) UniqueEmployers(ctx context.Context, limit int) ([]string, error) {
	if limit <= 0 {
		limit = DefaultEmployerLimit
	}
	return s.GetUniqueValues(ctx, h1b.FieldEmployer, limit)
}

// UniqueStatuses returns every case status.
func (s *Service) UniqueStatuses(ctx context.Context) ([]string, error) {
	return s.GetUniqueValues(ctx, h1b.FieldStatus, 0)
}

// UniqueJobTitles returns up to limit job titles (default 30).
func (s *Service) UniqueJobTitles(ctx context.Context, limit int) ([]string, error) {
	if limit <= 0 {
		limit = DefaultJobTitleLimit
	}
	return s.GetUniqueValues(ctx, h1b.FieldJobTitle, limit)
}

// GetStatistics aggregates a bounded sample of matching records.
func (s *Service) GetStatistics(ctx context.Context, f h1b.Filters) (h1b.Statistics, error) {
	f = f.Normalize()
	return run(ctx, s, query[h1b.Statistics]{
		op:        "statistics",
		namespace: NamespaceStats,
		params:    filterParams{Filters: f},
		ttl:       s.ttl.Statistics,
		fetch: func(ctx context.Context) (h1b.Statistics, error) {
			rows, err := s.src.Sample(ctx, f, s.sampleLimit)
			if err != nil {
				return h1b.Statistics{}, err
			}
			return CalculateStatistics(rows), nil
		},
		fallback: h1b.ZeroStatistics,
	})
}

// ExportAllFilteredData returns every matching record up to the export
// cap, newest first.
func (s *Service) ExportAllFilteredData(ctx context.Context, f h1b.Filters) ([]h1b.Record, error) {
	f = f.Normalize()
	return run(ctx, s, query[[]h1b.Record]{
		op:        "export",
		namespace: NamespaceExport,
		params:    exportParams{Filters: f, Export: true},
		ttl:       s.ttl.Export,
		fetch: func(ctx context.Context) ([]h1b.Record, error) {
			return s.src.Export(ctx, f, s.exportLimit)
		},
		fallback: func() []h1b.Record { return []h1b.Record{} },
	})
}

// ClearCache drops every cached entry and resets the counters.
func (s *Service) ClearCache(ctx context.Context) error { return s.store.Clear(ctx) }

// CleanupCache removes expired entries and reports how many went.
func (s *Service) CleanupCache(ctx context.Context) (int, error) { return s.store.Cleanup(ctx) }

// CacheStats reports the store's entries and counters.
func (s *Service) CacheStats(ctx context.Context) (cache.Stats, error) { return s.store.Stats(ctx) }

// HitRate is the cache hit rate in percent since start or the last clear.
func (s *Service) HitRate() float64 { return s.store.HitRate() }

// PrefetchTargets turns the built-in warm-up list into targets.
func (s *Service) PrefetchTargets() []prefetch.Target {
	return s.PageTargets(prefetch.DefaultSpecs())
}

// PageTargets turns page specs into prefetch targets keyed exactly as
// GetFilteredApplications keys them, so warmed entries are real hits.
func (s *Service) PageTargets(specs []prefetch.Spec) []prefetch.Target {
	out := make([]prefetch.Target, 0, len(specs))
	for _, spec := range specs {
		q := s.pageQuery(spec.Filters.Filters(), spec.Pagination(), s.ttl.Prefetch)
		out = append(out, prefetch.Target{
			Name:      spec.Name,
			Namespace: q.namespace,
			Params:    q.params,
			TTL:       q.ttl,
			Fetch: func(ctx context.Context) (any, error) {
				return q.fetch(ctx)
			},
		})
	}
	return out
}
