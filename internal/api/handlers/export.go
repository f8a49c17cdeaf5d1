package handlers

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/offersplus/backend/internal/apierr"
	"github.com/offersplus/backend/internal/h1b"
	"github.com/offersplus/backend/internal/logger"
	"github.com/offersplus/backend/internal/tracing"
)

var exportColumns = []string{
	"id", "case_number", "case_status", "received_date", "decision_date",
	"visa_class", "job_title", "soc_code", "soc_title", "full_time_position",
	"begin_date", "end_date", "employer_name", "employer_city", "employer_state",
	"employer_postal_code", "worksite_city", "worksite_state", "worksite_postal_code",
	"wage_rate_of_pay_from", "wage_rate_of_pay_to", "wage_unit_of_pay",
	"prevailing_wage", "created_at", "updated_at",
}

func formatWage(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

func exportRow(r h1b.Record) []string {
	return []string{
		strconv.FormatInt(r.ID, 10), r.CaseNumber, r.CaseStatus, r.ReceivedDate, r.DecisionDate,
		r.VisaClass, r.JobTitle, r.SOCCode, r.SOCTitle, r.FullTimePosition,
		r.BeginDate, r.EndDate, r.EmployerName, r.EmployerCity, r.EmployerState,
		r.EmployerPostalCode, r.WorksiteCity, r.WorksiteState, r.WorksitePostalCode,
		formatWage(r.WageRateOfPayFrom), formatWage(r.WageRateOfPayTo), r.WageUnitOfPay,
		formatWage(r.PrevailingWage), r.CreatedAt, r.UpdatedAt,
	}
}

// ExportApplications handles GET /api/h1b/export?format=json|csv. The
// export is capped by the service's export limit.
func ExportApplications(q Querier, now func() time.Time) http.HandlerFunc {
	if now == nil {
		now = time.Now
	}
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracing.StartSpan(r.Context(), "handlers.ExportApplications")
		defer span.End()

		query := r.URL.Query()
		format := strings.ToLower(strings.TrimSpace(query.Get("format")))
		if format == "" {
			format = "json"
		}
		if format != "json" && format != "csv" {
			apierr.WriteErrorWithContext(w, r, apierr.ValidationInvalidValue("format", "format must be json or csv"))
			return
		}
		f, apiErr := parseFilters(query)
		if apiErr != nil {
			apierr.WriteErrorWithContext(w, r, apiErr)
			return
		}

		rows, err := q.ExportAllFilteredData(ctx, f)
		if err != nil {
			writeQueryError(w, r, "export", err)
			return
		}
		span.SetAttributes(attribute.String("format", format), attribute.Int("rows_count", len(rows)))

		filename := fmt.Sprintf("h1b-export-%s.%s", now().UTC().Format("20060102"), format)
		w.Header().Set("Content-Disposition", "attachment; filename="+filename)
		if format == "json" {
			if rows == nil {
				rows = []h1b.Record{}
			}
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(rows)
			return
		}

		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		cw := csv.NewWriter(w)
		_ = cw.Write(exportColumns)
		for _, row := range rows {
			if err := cw.Write(exportRow(row)); err != nil {
				logger.ErrorContext(ctx, "failed to write CSV row", "error", err)
				return
			}
		}
		cw.Flush()
		if err := cw.Error(); err != nil {
			logger.ErrorContext(ctx, "failed to flush CSV export", "error", err)
		}
	}
}
