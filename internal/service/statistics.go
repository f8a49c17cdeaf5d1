package service

import (
	"cmp"
	"math"
	"slices"

	"github.com/offersplus/backend/internal/h1b"
)

const topEmployerCount = 5

var certifiedStatuses = map[string]bool{
	"CERTIFIED":           true,
	"CERTIFIED-WITHDRAWN": true,
}

// CalculateStatistics aggregates records. Salaries use the lower wage
// bound, falling back to the upper one, and ignore non-positive values.
// The median is the upper middle value for even counts.
func CalculateStatistics(records []h1b.Record) h1b.Statistics {
	st := h1b.ZeroStatistics()
	st.TotalApplications = len(records)
	if len(records) == 0 {
		return st
	}

	salaries := make([]float64, 0, len(records))
	employers := make(map[string]int)
	certified := 0
	for _, r := range records {
		if v, ok := r.Salary(); ok {
			salaries = append(salaries, v)
		}
		if r.EmployerName != "" {
			employers[r.EmployerName]++
		}
		status := r.CaseStatus
		if status == "" {
			status = "Unknown"
		}
		st.StatusBreakdown[status]++
		if certifiedStatuses[status] {
			certified++
		}
	}

	if n := len(salaries); n > 0 {
		slices.Sort(salaries)
		var sum float64
		for _, v := range salaries {
			sum += v
		}
		st.AverageSalary = math.Round(sum / float64(n))
		st.MedianSalary = salaries[n/2]
		st.MinSalary = salaries[0]
		st.MaxSalary = salaries[n-1]
	}

	for name, count := range employers {
		st.TopEmployers = append(st.TopEmployers, h1b.TopEmployer{Name: name, Count: count})
	}
	slices.SortFunc(st.TopEmployers, func(a, b h1b.TopEmployer) int {
		if c := cmp.Compare(b.Count, a.Count); c != 0 {
			return c
		}
		return cmp.Compare(a.Name, b.Name)
	})
	if len(st.TopEmployers) > topEmployerCount {
		st.TopEmployers = st.TopEmployers[:topEmployerCount]
	}

	st.CertificationRate = math.Round(float64(certified) / float64(len(records)) * 100)
	return st
}
