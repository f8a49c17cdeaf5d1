// Package handlers serves the H1B query API over HTTP.
package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/offersplus/backend/internal/apierr"
	"github.com/offersplus/backend/internal/h1b"
	"github.com/offersplus/backend/internal/logger"
)

// Querier is the read side of the cache-aware facade.
type Querier interface {
	GetFilteredApplications(ctx context.Context, f h1b.Filters, p h1b.Pagination) (h1b.PaginatedResult[h1b.Record], error)
	GetUniqueValues(ctx context.Context, field h1b.Field, limit int) ([]string, error)
	GetStatistics(ctx context.Context, f h1b.Filters) (h1b.Statistics, error)
	ExportAllFilteredData(ctx context.Context, f h1b.Filters) ([]h1b.Record, error)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeQueryError maps a facade error to the API envelope. Server-side
// failures are logged; client mistakes are not.
func writeQueryError(w http.ResponseWriter, r *http.Request, op string, err error) {
	apiErr := apierr.FromSourceError(err)
	if apiErr.Status() >= http.StatusInternalServerError {
		logger.ErrorContext(r.Context(), "h1b query failed", "operation", op, "error", err)
	}
	apierr.WriteErrorWithContext(w, r, apiErr)
}

// salaryParams are the raw names salary bounds may arrive under.
var salaryParams = []string{"minSalary", "min_salary", "maxSalary", "max_salary"}

// parseFilters reads filters from the query string. Salary bounds that are
// present but not numbers are rejected rather than silently dropped.
func parseFilters(q url.Values) (h1b.Filters, *apierr.Error) {
	for _, name := range salaryParams {
		raw := strings.TrimSpace(q.Get(name))
		if raw == "" {
			continue
		}
		if _, err := strconv.ParseFloat(raw, 64); err != nil {
			return h1b.Filters{}, apierr.ValidationInvalidValue(name, name+" must be a number")
		}
	}
	return h1b.FiltersFromParams(q), nil
}

func intParam(q url.Values, names ...string) (int, bool, *apierr.Error) {
	for _, name := range names {
		raw := strings.TrimSpace(q.Get(name))
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			return 0, false, apierr.ValidationInvalidValue(name, name+" must be an integer")
		}
		return n, true, nil
	}
	return 0, false, nil
}

// parsePagination reads page, pageSize, sortBy and sortOrder. Out of range
// numbers are clamped; unknown sort columns and directions are rejected.
func parsePagination(q url.Values) (h1b.Pagination, *apierr.Error) {
	var p h1b.Pagination
	var apiErr *apierr.Error
	if p.Page, _, apiErr = intParam(q, "page", "pageNumber"); apiErr != nil {
		return p, apiErr
	}
	if p.PageSize, _, apiErr = intParam(q, "pageSize", "page_size"); apiErr != nil {
		return p, apiErr
	}
	if sortBy := strings.TrimSpace(q.Get("sortBy")); sortBy != "" {
		if !h1b.ValidSortColumn(sortBy) {
			return p, apierr.H1BInvalidParams("Unsupported sortBy column: " + sortBy).
				WithDetails(map[string]any{"field": "sortBy"})
		}
		p.SortBy = sortBy
	}
	if order := strings.ToLower(strings.TrimSpace(q.Get("sortOrder"))); order != "" {
		if order != "asc" && order != "desc" {
			return p, apierr.ValidationInvalidValue("sortOrder", "sortOrder must be asc or desc")
		}
		p.SortOrder = order
	}
	return p.Clamp(), nil
}
