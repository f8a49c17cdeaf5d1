package middleware

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// etagResponseWriter captures the response body so the ETag can be
// computed before anything is sent.
type etagResponseWriter struct {
	http.ResponseWriter
	buf    bytes.Buffer
	status int
}

func (w *etagResponseWriter) WriteHeader(status int) {
	w.status = status
}

func (w *etagResponseWriter) Write(b []byte) (int, error) {
	return w.buf.Write(b)
}

func etagMatches(header, etag string) bool {
	for _, candidate := range strings.Split(header, ",") {
		candidate = strings.TrimPrefix(strings.TrimSpace(candidate), "W/")
		if candidate == etag || candidate == "*" {
			return true
		}
	}
	return false
}

// ETag hashes successful GET responses and answers 304 Not Modified when
// the client's If-None-Match already names that hash. maxAge sets the
// private Cache-Control lifetime and should not exceed the server-side
// TTL of the data behind the route.
func ETag(maxAge time.Duration) func(http.Handler) http.Handler {
	cacheControl := fmt.Sprintf("private, max-age=%d", int(maxAge.Seconds()))

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodGet {
				next.ServeHTTP(w, r)
				return
			}

			etw := &etagResponseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(etw, r)

			if etw.status != http.StatusOK {
				w.WriteHeader(etw.status)
				_, _ = w.Write(etw.buf.Bytes())
				return
			}

			hash := sha256.Sum256(etw.buf.Bytes())
			etag := fmt.Sprintf(`"%x"`, hash[:16])
			w.Header().Set("ETag", etag)
			w.Header().Set("Cache-Control", cacheControl)

			if match := r.Header.Get("If-None-Match"); match != "" && etagMatches(match, etag) {
				w.WriteHeader(http.StatusNotModified)
				return
			}
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write(etw.buf.Bytes())
		})
	}
}
