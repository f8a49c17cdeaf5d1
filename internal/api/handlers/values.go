package handlers

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/offersplus/backend/internal/apierr"
	"github.com/offersplus/backend/internal/h1b"
	"github.com/offersplus/backend/internal/service"
)

// maxValuesLimit caps the limit a client may ask for.
const maxValuesLimit = 1000

func defaultValuesLimit(field h1b.Field) int {
	switch field {
	case h1b.FieldEmployer:
		return service.DefaultEmployerLimit
	case h1b.FieldJobTitle:
		return service.DefaultJobTitleLimit
	}
	return 0
}

// GetUniqueValues handles GET /api/h1b/values/{field}. Employers default
// to 50 values, job titles to 30; statuses are unlimited.
func GetUniqueValues(q Querier) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw := mux.Vars(r)["field"]
		field, err := h1b.ParseField(raw)
		if err != nil {
			apierr.WriteErrorWithContext(w, r, apierr.H1BInvalidField(raw))
			return
		}

		limit, set, apiErr := intParam(r.URL.Query(), "limit")
		if apiErr != nil {
			apierr.WriteErrorWithContext(w, r, apiErr)
			return
		}
		switch {
		case !set || limit <= 0:
			limit = defaultValuesLimit(field)
		case limit > maxValuesLimit:
			limit = maxValuesLimit
		}

		values, err := q.GetUniqueValues(r.Context(), field, limit)
		if err != nil {
			if errors.Is(err, h1b.ErrUnknownField) {
				apierr.WriteErrorWithContext(w, r, apierr.H1BInvalidField(raw))
				return
			}
			writeQueryError(w, r, "unique_values", err)
			return
		}
		writeJSON(w, http.StatusOK, values)
	}
}
