// Package h1b holds the H1B labor condition application domain: records,
// filters, pagination and the remote data sources that serve them.
package h1b

import (
	"errors"
	"fmt"
	"strings"
)

// Table is the default name of the remote H1B table.
const Table = "h1b_applications"

// Record is one labor condition application row.
type Record struct {
	ID                 int64    `json:"id"`
	CaseNumber         string   `json:"case_number"`
	CaseStatus         string   `json:"case_status"`
	ReceivedDate       string   `json:"received_date,omitempty"`
	DecisionDate       string   `json:"decision_date,omitempty"`
	VisaClass          string   `json:"visa_class,omitempty"`
	JobTitle           string   `json:"job_title"`
	SOCCode            string   `json:"soc_code,omitempty"`
	SOCTitle           string   `json:"soc_title,omitempty"`
	FullTimePosition   string   `json:"full_time_position,omitempty"`
	BeginDate          string   `json:"begin_date,omitempty"`
	EndDate            string   `json:"end_date,omitempty"`
	EmployerName       string   `json:"employer_name"`
	EmployerCity       string   `json:"employer_city,omitempty"`
	EmployerState      string   `json:"employer_state,omitempty"`
	EmployerPostalCode string   `json:"employer_postal_code,omitempty"`
	WorksiteCity       string   `json:"worksite_city,omitempty"`
	WorksiteState      string   `json:"worksite_state,omitempty"`
	WorksitePostalCode string   `json:"worksite_postal_code,omitempty"`
	WageRateOfPayFrom  *float64 `json:"wage_rate_of_pay_from,omitempty"`
	WageRateOfPayTo    *float64 `json:"wage_rate_of_pay_to,omitempty"`
	WageUnitOfPay      string   `json:"wage_unit_of_pay,omitempty"`
	PrevailingWage     *float64 `json:"prevailing_wage,omitempty"`
	CreatedAt          string   `json:"created_at,omitempty"`
	UpdatedAt          string   `json:"updated_at,omitempty"`
}

// Salary returns the lower wage bound, falling back to the upper one.
// ok is false when neither is a positive number.
func (r Record) Salary() (float64, bool) {
	for _, w := range []*float64{r.WageRateOfPayFrom, r.WageRateOfPayTo} {
		if w != nil && *w > 0 {
			return *w, true
		}
	}
	return 0, false
}

// TopEmployer is an employer and its application count.
type TopEmployer struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// Statistics aggregates a sample of matching records.
type Statistics struct {
	TotalApplications int            `json:"totalApplications"`
	AverageSalary     float64        `json:"averageSalary"`
	MedianSalary      float64        `json:"medianSalary"`
	MinSalary         float64        `json:"minSalary"`
	MaxSalary         float64        `json:"maxSalary"`
	TopEmployers      []TopEmployer  `json:"topEmployers"`
	StatusBreakdown   map[string]int `json:"statusBreakdown"`
	CertificationRate float64        `json:"certificationRate"`
}

// ZeroStatistics is the snapshot returned when no data is available.
func ZeroStatistics() Statistics {
	return Statistics{
		TopEmployers:    []TopEmployer{},
		StatusBreakdown: map[string]int{},
	}
}

// Field is a column that supports distinct-value lookup.
type Field string

const (
	FieldEmployer Field = "employer_name"
	FieldStatus   Field = "case_status"
	FieldJobTitle Field = "job_title"
)

// ErrUnknownField is returned for columns that have no distinct-value lookup.
var ErrUnknownField = errors.New("unknown h1b field")

// ParseField accepts the column name or its plural/camel aliases used by
// the API ("employers", "statuses", "jobTitles").
func ParseField(s string) (Field, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "employer_name", "employer", "employers":
		return FieldEmployer, nil
	case "case_status", "status", "statuses":
		return FieldStatus, nil
	case "job_title", "jobtitle", "job_titles", "jobtitles":
		return FieldJobTitle, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownField, s)
}

// Value returns the record's value for f.
func (f Field) Value(r Record) string {
	switch f {
	case FieldEmployer:
		return r.EmployerName
	case FieldStatus:
		return r.CaseStatus
	case FieldJobTitle:
		return r.JobTitle
	}
	return ""
}
