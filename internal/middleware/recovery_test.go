package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/offersplus/backend/internal/apierr"
)

func TestRecoverWithSentry_NoPanic(t *testing.T) {
	handler := RecoverWithSentry(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}
}

func TestRecoverWithSentry_WithPanic(t *testing.T) {
	tests := map[string]any{
		"string": "test panic",
		"error":  json.Unmarshal([]byte("{"), &struct{}{}),
	}
	for name, value := range tests {
		t.Run(name, func(t *testing.T) {
			handler := RequestID(RecoverWithSentry(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
				panic(value)
			})))

			w := httptest.NewRecorder()
			handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/h1b/statistics", nil))

			if w.Code != http.StatusInternalServerError {
				t.Fatalf("expected status 500, got %d", w.Code)
			}
			var resp apierr.ErrorResponse
			if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if resp.Error.Code != apierr.ErrSystemInternal {
				t.Errorf("expected %s, got %s", apierr.ErrSystemInternal, resp.Error.Code)
			}
			if resp.Error.RequestID == "" {
				t.Error("expected request_id in error body")
			}
		})
	}
}

func TestRecoverWithSentry_AbortHandlerPropagates(t *testing.T) {
	handler := RecoverWithSentry(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic(http.ErrAbortHandler)
	}))

	defer func() {
		if rec := recover(); rec != http.ErrAbortHandler {
			t.Errorf("expected ErrAbortHandler to propagate, got %v", rec)
		}
	}()
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
}
