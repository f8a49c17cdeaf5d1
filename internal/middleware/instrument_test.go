package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/offersplus/backend/internal/metrics"
)

func TestInstrumentUsesRouteTemplate(t *testing.T) {
	r := mux.NewRouter()
	r.Use(Instrument)
	r.HandleFunc("/api/h1b/values/{field}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	before := testutil.CollectAndCount(metrics.APIRequestDuration)
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/h1b/values/employer", nil))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/h1b/values/status", nil))

	// Both requests share one series.
	if got := testutil.CollectAndCount(metrics.APIRequestDuration) - before; got != 1 {
		t.Errorf("expected 1 new series, got %d", got)
	}
}
