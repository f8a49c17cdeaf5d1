package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/getsentry/sentry-go"

	"github.com/offersplus/backend/internal/apierr"
	"github.com/offersplus/backend/internal/errorreporting"
	"github.com/offersplus/backend/internal/logger"
)

// RecoverWithSentry turns a handler panic into a 500 SYSTEM_INTERNAL
// response and reports it to Sentry when reporting is enabled.
func RecoverWithSentry(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			stack := debug.Stack()
			logger.ErrorContext(r.Context(), "panic recovered",
				"panic", fmt.Sprint(rec),
				"stack", string(stack),
				"method", r.Method,
				"path", r.URL.Path,
			)

			if errorreporting.Enabled() {
				hub := sentry.CurrentHub().Clone()
				hub.Scope().SetRequest(r)
				hub.Scope().SetLevel(sentry.LevelFatal)
				hub.Scope().SetTag("method", r.Method)
				hub.Scope().SetTag("path", r.URL.Path)
				if id := apierr.GetRequestID(r.Context()); id != "" {
					hub.Scope().SetTag("request_id", id)
				}
				if err, ok := rec.(error); ok {
					hub.CaptureException(err)
				} else {
					hub.CaptureMessage(errorreporting.ScrubPII(fmt.Sprintf("panic: %v\n%s", rec, stack)))
				}
			}

			apierr.WriteErrorWithContext(w, r, apierr.SystemInternal(""))
		}()

		next.ServeHTTP(w, r)
	})
}
