package h1b

import "strings"

const (
	DefaultPageSize  = 20
	MaxPageSize      = 100
	DefaultSortBy    = "id"
	DefaultSortOrder = "desc"
)

// sortColumns lists the columns a page may be ordered by. Sources only ever
// interpolate names from this set into queries.
var sortColumns = map[string]bool{
	"id":                    true,
	"case_number":           true,
	"case_status":           true,
	"received_date":         true,
	"decision_date":         true,
	"job_title":             true,
	"employer_name":         true,
	"employer_state":        true,
	"worksite_state":        true,
	"wage_rate_of_pay_from": true,
	"wage_rate_of_pay_to":   true,
	"prevailing_wage":       true,
	"created_at":            true,
}

// ValidSortColumn reports whether col may be used for ordering.
func ValidSortColumn(col string) bool { return sortColumns[col] }

// Pagination selects one ordered page of results.
type Pagination struct {
	PageSize  int    `json:"pageSize"`
	Page      int    `json:"pageNumber"`
	SortBy    string `json:"sortBy"`
	SortOrder string `json:"sortOrder"`
}

// Clamp returns p with page size in [1, MaxPageSize], page >= 1 and a
// known sort column and direction. A zero page size means the default.
func (p Pagination) Clamp() Pagination {
	switch {
	case p.PageSize == 0:
		p.PageSize = DefaultPageSize
	case p.PageSize < 1:
		p.PageSize = 1
	case p.PageSize > MaxPageSize:
		p.PageSize = MaxPageSize
	}
	if p.Page < 1 {
		p.Page = 1
	}
	p.SortBy = strings.TrimSpace(p.SortBy)
	if !sortColumns[p.SortBy] {
		p.SortBy = DefaultSortBy
	}
	p.SortOrder = strings.ToLower(strings.TrimSpace(p.SortOrder))
	if p.SortOrder != "asc" {
		p.SortOrder = DefaultSortOrder
	}
	return p
}

// Offset is the number of rows before the page.
func (p Pagination) Offset() int { return (p.Page - 1) * p.PageSize }

// Ascending reports whether the page is sorted ascending.
func (p Pagination) Ascending() bool { return p.SortOrder == "asc" }

// PaginatedResult is one page of results with its position in the whole set.
type PaginatedResult[T any] struct {
	Data            []T  `json:"data"`
	TotalRecords    int  `json:"totalRecords"`
	TotalPages      int  `json:"totalPages"`
	CurrentPage     int  `json:"currentPage"`
	PageSize        int  `json:"pageSize"`
	HasNextPage     bool `json:"hasNextPage"`
	HasPreviousPage bool `json:"hasPreviousPage"`
}

// NewPaginatedResult derives the page counters from total and p, which
// should already be clamped.
func NewPaginatedResult[T any](data []T, total int, p Pagination) PaginatedResult[T] {
	if data == nil {
		data = []T{}
	}
	totalPages := 0
	if total > 0 && p.PageSize > 0 {
		totalPages = (total + p.PageSize - 1) / p.PageSize
	}
	return PaginatedResult[T]{
		Data:            data,
		TotalRecords:    total,
		TotalPages:      totalPages,
		CurrentPage:     p.Page,
		PageSize:        p.PageSize,
		HasNextPage:     p.Page < totalPages,
		HasPreviousPage: p.Page > 1,
	}
}

// EmptyPage is the result for a query with no rows.
func EmptyPage[T any](p Pagination) PaginatedResult[T] {
	return NewPaginatedResult[T](nil, 0, p)
}
