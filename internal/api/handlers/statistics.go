package handlers

import (
	"net/http"

	"github.com/offersplus/backend/internal/apierr"
)

// GetStatistics handles GET /api/h1b/statistics.
func GetStatistics(q Querier) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f, apiErr := parseFilters(r.URL.Query())
		if apiErr != nil {
			apierr.WriteErrorWithContext(w, r, apiErr)
			return
		}
		stats, err := q.GetStatistics(r.Context(), f)
		if err != nil {
			writeQueryError(w, r, "statistics", err)
			return
		}
		writeJSON(w, http.StatusOK, stats)
	}
}
