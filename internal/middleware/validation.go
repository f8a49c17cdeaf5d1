package middleware

import (
	"net/http"
	"unicode/utf8"

	"github.com/offersplus/backend/internal/apierr"
)

const (
	// MaxRequestBodySize bounds POST bodies; admin endpoints take no more
	// than a small JSON document.
	MaxRequestBodySize = 1 << 20
	// MaxQueryLength bounds the raw query string of filter requests.
	MaxQueryLength = 4096
	// MaxParamLength bounds a single filter value.
	MaxParamLength = 256
)

// ValidateRequest rejects oversized or malformed query strings before they
// reach the handlers and caps request bodies.
func ValidateRequest(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if len(r.URL.RawQuery) > MaxQueryLength {
			apierr.WriteErrorWithContext(w, r, apierr.ValidationInvalidFormat("Query string too long"))
			return
		}
		for name, values := range r.URL.Query() {
			for _, v := range values {
				if len(v) > MaxParamLength {
					apierr.WriteErrorWithContext(w, r, apierr.ValidationInvalidValue(name, "Value too long for parameter: "+name))
					return
				}
				if !utf8.ValidString(v) {
					apierr.WriteErrorWithContext(w, r, apierr.ValidationInvalidValue(name, "Parameter is not valid UTF-8: "+name))
					return
				}
			}
		}
		switch r.Method {
		case http.MethodPost, http.MethodPut, http.MethodPatch:
			r.Body = http.MaxBytesReader(w, r.Body, MaxRequestBodySize)
		}
		next.ServeHTTP(w, r)
	})
}
