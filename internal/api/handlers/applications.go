package handlers

import (
	"net/http"

	"github.com/offersplus/backend/internal/apierr"
)

// GetApplications handles GET /api/h1b/applications.
func GetApplications(q Querier) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()
		f, apiErr := parseFilters(query)
		if apiErr != nil {
			apierr.WriteErrorWithContext(w, r, apiErr)
			return
		}
		p, apiErr := parsePagination(query)
		if apiErr != nil {
			apierr.WriteErrorWithContext(w, r, apiErr)
			return
		}

		page, err := q.GetFilteredApplications(r.Context(), f, p)
		if err != nil {
			writeQueryError(w, r, "filtered_applications", err)
			return
		}
		writeJSON(w, http.StatusOK, page)
	}
}
