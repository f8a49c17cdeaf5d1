package h1b

import (
	"math"
	"net/url"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
)

// Filters narrows a query. Empty strings and nil bounds impose no constraint.
type Filters struct {
	Employer   string   `json:"employer,omitempty"`
	Status     string   `json:"status,omitempty"`
	JobTitle   string   `json:"jobTitle,omitempty"`
	SearchTerm string   `json:"searchTerm,omitempty"`
	MinSalary  *float64 `json:"minSalary,omitempty"`
	MaxSalary  *float64 `json:"maxSalary,omitempty"`
}

// filterAliases maps each filter to the query parameter names it accepts,
// canonical name first.
var filterAliases = map[string][]string{
	"employer":   {"employer"},
	"status":     {"status"},
	"jobTitle":   {"jobTitle", "job_title"},
	"searchTerm": {"searchTerm", "search", "q"},
	"minSalary":  {"minSalary", "min_salary"},
	"maxSalary":  {"maxSalary", "max_salary"},
}

// Normalize trims string filters and drops non-finite or non-positive
// salary bounds, so equivalent filters produce the same cache key.
func (f Filters) Normalize() Filters {
	f.Employer = strings.TrimSpace(f.Employer)
	f.Status = strings.TrimSpace(f.Status)
	f.JobTitle = strings.TrimSpace(f.JobTitle)
	f.SearchTerm = strings.TrimSpace(f.SearchTerm)
	f.MinSalary = positive(f.MinSalary)
	f.MaxSalary = positive(f.MaxSalary)
	return f
}

func positive(v *float64) *float64 {
	if v == nil || math.IsNaN(*v) || math.IsInf(*v, 0) || *v <= 0 {
		return nil
	}
	out := *v
	return &out
}

// IsZero reports whether f constrains nothing once normalized.
func (f Filters) IsZero() bool {
	n := f.Normalize()
	return n.Employer == "" && n.Status == "" && n.JobTitle == "" &&
		n.SearchTerm == "" && n.MinSalary == nil && n.MaxSalary == nil
}

// ToParams renders the set filters as canonical query parameters.
func (f Filters) ToParams() map[string]string {
	n := f.Normalize()
	out := make(map[string]string)
	put := func(k, v string) {
		if v != "" {
			out[k] = v
		}
	}
	put("employer", n.Employer)
	put("status", n.Status)
	put("jobTitle", n.JobTitle)
	put("searchTerm", n.SearchTerm)
	if n.MinSalary != nil {
		out["minSalary"] = formatFloat(*n.MinSalary)
	}
	if n.MaxSalary != nil {
		out["maxSalary"] = formatFloat(*n.MaxSalary)
	}
	return out
}

// FiltersFromParams reads filters from query parameters, honoring the
// alias names. Unparseable salary bounds are ignored.
func FiltersFromParams(q url.Values) Filters {
	get := func(name string) string {
		for _, alias := range filterAliases[name] {
			if v := strings.TrimSpace(q.Get(alias)); v != "" {
				return v
			}
		}
		return ""
	}
	f := Filters{
		Employer:   get("employer"),
		Status:     get("status"),
		JobTitle:   get("jobTitle"),
		SearchTerm: get("searchTerm"),
		MinSalary:  parseFloat(get("minSalary")),
		MaxSalary:  parseFloat(get("maxSalary")),
	}
	return f.Normalize()
}

func parseFloat(s string) *float64 {
	if s == "" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &v
}

func formatFloat(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }

// Salary returns a pointer to v, for filter literals.
func Salary(v float64) *float64 { return &v }

// Matcher evaluates Filters against records in memory. A Matcher is not
// safe for concurrent use.
type Matcher struct {
	f      Filters
	fold   cases.Caser
	emp    string
	title  string
	search string
}

// NewMatcher prepares f for repeated matching.
func NewMatcher(f Filters) *Matcher {
	m := &Matcher{f: f.Normalize(), fold: cases.Fold()}
	m.emp = m.fold.String(m.f.Employer)
	m.title = m.fold.String(m.f.JobTitle)
	m.search = m.fold.String(m.f.SearchTerm)
	return m
}

func (m *Matcher) contains(s, sub string) bool {
	return sub == "" || strings.Contains(m.fold.String(s), sub)
}

// Match applies the filter semantics: case-insensitive substring on
// employer and job title, exact status, inclusive salary bounds on the
// lower wage, and a search term OR-ed across employer, job title and case
// number.
func (m *Matcher) Match(r Record) bool {
	f := m.f
	if !m.contains(r.EmployerName, m.emp) || !m.contains(r.JobTitle, m.title) {
		return false
	}
	if f.Status != "" && r.CaseStatus != f.Status {
		return false
	}
	if f.MinSalary != nil || f.MaxSalary != nil {
		if r.WageRateOfPayFrom == nil {
			return false
		}
		w := *r.WageRateOfPayFrom
		if f.MinSalary != nil && w < *f.MinSalary {
			return false
		}
		if f.MaxSalary != nil && w > *f.MaxSalary {
			return false
		}
	}
	if m.search != "" &&
		!m.contains(r.EmployerName, m.search) &&
		!m.contains(r.JobTitle, m.search) &&
		!m.contains(r.CaseNumber, m.search) {
		return false
	}
	return true
}

// Match is a one-off NewMatcher(f).Match(r).
func (f Filters) Match(r Record) bool { return NewMatcher(f).Match(r) }
