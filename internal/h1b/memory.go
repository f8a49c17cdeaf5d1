package h1b

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"slices"
	"sync"
)

// MemorySource serves records held in memory. It backs tests and the demo
// mode that runs without a database.
type MemorySource struct {
	mu      sync.RWMutex
	records []Record
}

// NewMemorySource returns a source over a copy of records.
func NewMemorySource(records ...Record) *MemorySource {
	return &MemorySource{records: slices.Clone(records)}
}

// LoadMemorySource reads a JSON array of records from path.
func LoadMemorySource(path string) (*MemorySource, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	var records []Record
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, fmt.Errorf("decode seed file %s: %w", path, err)
	}
	return NewMemorySource(records...), nil
}

// Add appends records.
func (s *MemorySource) Add(records ...Record) {
	s.mu.Lock()
	s.records = append(s.records, records...)
	s.mu.Unlock()
}

// Len returns the number of records held.
func (s *MemorySource) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

func (s *MemorySource) match(f Filters) []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m := NewMatcher(f)
	var out []Record
	for _, r := range s.records {
		if m.Match(r) {
			out = append(out, r)
		}
	}
	return out
}

func (s *MemorySource) QueryPage(ctx context.Context, f Filters, p Pagination) (PaginatedResult[Record], error) {
	if err := ctx.Err(); err != nil {
		return PaginatedResult[Record]{}, err
	}
	p = p.Clamp()
	rows := s.match(f)
	sortRecords(rows, p.SortBy, p.Ascending())
	total := len(rows)
	start := min(p.Offset(), total)
	end := min(start+p.PageSize, total)
	return NewPaginatedResult(slices.Clone(rows[start:end]), total, p), nil
}

func (s *MemorySource) Distinct(ctx context.Context, field Field, limit int) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if _, err := ParseField(string(field)); err != nil {
		return nil, err
	}
	s.mu.RLock()
	seen := make(map[string]struct{})
	for _, r := range s.records {
		if v := field.Value(r); v != "" {
			seen[v] = struct{}{}
		}
	}
	s.mu.RUnlock()
	return limitValues(seen, limit), nil
}

func (s *MemorySource) Sample(ctx context.Context, f Filters, limit int) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rows := s.match(f)
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	return rows, nil
}

func (s *MemorySource) Export(ctx context.Context, f Filters, limit int) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rows := s.match(f)
	sortRecords(rows, "id", false)
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	return rows, nil
}

// limitValues returns the sorted keys of set, truncated to limit when positive.
func limitValues(set map[string]struct{}, limit int) []string {
	out := make([]string, 0, len(set))
	for v := range set {
		out = append(out, v)
	}
	slices.Sort(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// sortRecords orders rows by col the way Postgres would: nulls compare
// greater than any value. Ties fall back to id.
func sortRecords(rows []Record, col string, asc bool) {
	slices.SortStableFunc(rows, func(a, b Record) int {
		c := compareColumn(a, b, col)
		if c == 0 && col != "id" {
			c = cmp.Compare(a.ID, b.ID)
		}
		if !asc {
			c = -c
		}
		return c
	})
}

func compareColumn(a, b Record, col string) int {
	switch col {
	case "wage_rate_of_pay_from":
		return compareNullable(a.WageRateOfPayFrom, b.WageRateOfPayFrom)
	case "wage_rate_of_pay_to":
		return compareNullable(a.WageRateOfPayTo, b.WageRateOfPayTo)
	case "prevailing_wage":
		return compareNullable(a.PrevailingWage, b.PrevailingWage)
	case "id":
		return cmp.Compare(a.ID, b.ID)
	}
	return cmp.Compare(stringColumn(a, col), stringColumn(b, col))
}

func compareNullable(a, b *float64) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1
	case b == nil:
		return -1
	}
	return cmp.Compare(*a, *b)
}

func stringColumn(r Record, col string) string {
	switch col {
	case "case_number":
		return r.CaseNumber
	case "case_status":
		return r.CaseStatus
	case "received_date":
		return r.ReceivedDate
	case "decision_date":
		return r.DecisionDate
	case "job_title":
		return r.JobTitle
	case "employer_name":
		return r.EmployerName
	case "employer_state":
		return r.EmployerState
	case "worksite_state":
		return r.WorksiteState
	case "created_at":
		return r.CreatedAt
	}
	return ""
}
