package prefetch

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"

	"github.com/offersplus/backend/internal/h1b"
)

// Spec describes a filtered page to warm, as read from a targets file:
//
//	targets:
//	  - name: google
//	    filters: {employer: Google}
//	    pageSize: 20
type Spec struct {
	Name       string      `yaml:"name"`
	Filters    SpecFilters `yaml:"filters"`
	PageSize   int         `yaml:"pageSize"`
	PageNumber int         `yaml:"pageNumber"`
	SortBy     string      `yaml:"sortBy"`
	SortOrder  string      `yaml:"sortOrder"`
}

// SpecFilters mirrors h1b.Filters with YAML names.
type SpecFilters struct {
	Employer   string   `yaml:"employer"`
	Status     string   `yaml:"status"`
	JobTitle   string   `yaml:"jobTitle"`
	SearchTerm string   `yaml:"searchTerm"`
	MinSalary  *float64 `yaml:"minSalary"`
	MaxSalary  *float64 `yaml:"maxSalary"`
}

// Filters converts to the domain type.
func (f SpecFilters) Filters() h1b.Filters {
	return h1b.Filters{
		Employer:   f.Employer,
		Status:     f.Status,
		JobTitle:   f.JobTitle,
		SearchTerm: f.SearchTerm,
		MinSalary:  f.MinSalary,
		MaxSalary:  f.MaxSalary,
	}.Normalize()
}

// Pagination returns the clamped page the spec selects.
func (s Spec) Pagination() h1b.Pagination {
	return h1b.Pagination{
		PageSize:  s.PageSize,
		Page:      s.PageNumber,
		SortBy:    s.SortBy,
		SortOrder: s.SortOrder,
	}.Clamp()
}

type specFile struct {
	Targets []Spec `yaml:"targets"`
}

// LoadSpecs reads a YAML targets file. Unknown keys are rejected so typos
// do not silently widen a target.
func LoadSpecs(path string) ([]Spec, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read prefetch targets: %w", err)
	}
	var f specFile
	if err := yaml.UnmarshalStrict(raw, &f); err != nil {
		return nil, fmt.Errorf("parse prefetch targets %s: %w", path, err)
	}
	for i, s := range f.Targets {
		if s.Name == "" {
			f.Targets[i].Name = fmt.Sprintf("target-%d", i+1)
		}
	}
	return f.Targets, nil
}

// DefaultSpecs is the built-in warm-up list, all on the default first page.
func DefaultSpecs() []Spec {
	floor := 100000.0
	specs := []Spec{
		{Name: "employer-google", Filters: SpecFilters{Employer: "Google"}},
		{Name: "employer-microsoft", Filters: SpecFilters{Employer: "Microsoft"}},
		{Name: "employer-amazon", Filters: SpecFilters{Employer: "Amazon"}},
		{Name: "status-certified", Filters: SpecFilters{Status: "CERTIFIED"}},
		{Name: "title-software-engineer", Filters: SpecFilters{JobTitle: "Software Engineer"}},
		{Name: "min-salary-100k", Filters: SpecFilters{MinSalary: &floor}},
		{Name: "default-view"},
	}
	for i := range specs {
		specs[i].PageSize = h1b.DefaultPageSize
		specs[i].PageNumber = 1
		specs[i].SortBy = h1b.DefaultSortBy
		specs[i].SortOrder = h1b.DefaultSortOrder
	}
	return specs
}
