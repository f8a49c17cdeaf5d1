package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/offersplus/backend/internal/logger"
)

func TestRequestIDMiddleware(t *testing.T) {
	var seen string
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID, ok := r.Context().Value(logger.RequestIDKey).(string)
		if !ok || reqID == "" {
			t.Error("request ID not found in context")
		}
		if got := w.Header().Get(RequestIDHeader); got != reqID {
			t.Errorf("header %q does not match context %q", got, reqID)
		}
		seen = reqID
		w.WriteHeader(http.StatusOK)
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/h1b/applications", nil))

	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}
	if _, err := uuid.Parse(seen); err != nil {
		t.Errorf("generated id %q is not a UUID: %v", seen, err)
	}
}

func TestRequestIDMiddleware_ExistingID(t *testing.T) {
	const existingID = "existing-request-id"
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if reqID, _ := r.Context().Value(logger.RequestIDKey).(string); reqID != existingID {
			t.Errorf("expected request ID %s, got %s", existingID, reqID)
		}
	}))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(RequestIDHeader, existingID)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Header().Get(RequestIDHeader) != existingID {
		t.Errorf("expected request ID %s in response, got %s", existingID, w.Header().Get(RequestIDHeader))
	}
}

func TestRequestIDMiddleware_RejectsUnsafeID(t *testing.T) {
	tests := map[string]string{
		"spaces":   "id with spaces",
		"newline":  "id\nforged-log-line",
		"too long": strings.Repeat("a", maxRequestIDLen+1),
	}
	for name, id := range tests {
		t.Run(name, func(t *testing.T) {
			handler := RequestID(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
			req := httptest.NewRequest(http.MethodGet, "/health", nil)
			req.Header[RequestIDHeader] = []string{id}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			got := w.Header().Get(RequestIDHeader)
			if got == id {
				t.Fatalf("unsafe id %q was propagated", id)
			}
			if _, err := uuid.Parse(got); err != nil {
				t.Errorf("replacement id %q is not a UUID", got)
			}
		})
	}
}
