package api

import (
	"net/http"
	"strings"
	"testing"

	"github.com/offersplus/backend/internal/middleware"
)

// TestSecurityHeaders checks the router applies the security middleware.
// Header values themselves are covered in the middleware package.
func TestSecurityHeaders(t *testing.T) {
	router := newTestRouter(t, testConfig())

	rr := do(router, http.MethodGet, "/api/h1b/applications", nil)
	for _, h := range []string{"X-Content-Type-Options", "X-Frame-Options", "Content-Security-Policy", "Referrer-Policy"} {
		if rr.Header().Get(h) == "" {
			t.Errorf("expected %s to be set", h)
		}
	}
}

// TestCORSBypass tests that disallowed origins get no CORS grant.
func TestCORSBypass(t *testing.T) {
	router := newTestRouter(t, testConfig())

	tests := []struct {
		name   string
		origin string
		expect string
	}{
		{"allowed origin", "http://localhost:5173", "http://localhost:5173"},
		{"null origin", "null", ""},
		{"file protocol", "file://", ""},
		{"malicious domain", "http://evil.com", ""},
		{"suffix attack", "http://localhost:5173.evil.com", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := do(router, http.MethodGet, "/api/h1b/applications", map[string]string{"Origin": tt.origin})
			if got := rr.Header().Get("Access-Control-Allow-Origin"); got != tt.expect {
				t.Errorf("expected Access-Control-Allow-Origin %q, got %q", tt.expect, got)
			}
		})
	}
}

// TestHTTPMethodValidation tests that endpoints only accept their methods.
func TestHTTPMethodValidation(t *testing.T) {
	router := newTestRouter(t, testConfig())

	tests := []struct {
		name   string
		method string
		path   string
	}{
		{"POST on GET endpoint", http.MethodPost, "/api/h1b/applications"},
		{"PUT on GET endpoint", http.MethodPut, "/api/h1b/statistics"},
		{"DELETE on GET endpoint", http.MethodDelete, "/api/h1b/export"},
		{"GET on POST endpoint", http.MethodGet, "/api/admin/cache/cleanup"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := do(router, tt.method, tt.path, map[string]string{"Authorization": "Bearer " + testAdminToken})
			if rr.Code != http.StatusMethodNotAllowed {
				t.Errorf("expected 405 for %s %s, got %d", tt.method, tt.path, rr.Code)
			}
		})
	}
}

// TestResourceExhaustion tests that oversized inputs are rejected or clamped.
func TestResourceExhaustion(t *testing.T) {
	router := newTestRouter(t, testConfig())

	tests := []struct {
		name   string
		query  string
		status int
	}{
		{"huge page size is clamped", "pageSize=999999999", http.StatusOK},
		{"negative page is clamped", "page=-999999", http.StatusOK},
		{"overflowing page", "page=999999999999999999999", http.StatusBadRequest},
		{"overlong employer", "employer=" + strings.Repeat("a", middleware.MaxParamLength+1), http.StatusBadRequest},
		{"overlong query", "q=" + strings.Repeat("b", middleware.MaxQueryLength), http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := do(router, http.MethodGet, "/api/h1b/applications?"+tt.query, nil)
			if rr.Code != tt.status {
				t.Errorf("expected %d, got %d", tt.status, rr.Code)
			}
		})
	}
}

// TestSQLInjectionProtection sends injection payloads through filters; they
// must be treated as plain substrings.
func TestSQLInjectionProtection(t *testing.T) {
	router := newTestRouter(t, testConfig())

	payloads := []string{
		"'%20OR%20'1'='1",
		"'%20UNION%20SELECT%20*%20FROM%20users--",
		"'%3B%20DROP%20TABLE%20h1b_applications%3B--",
	}
	for _, p := range payloads {
		t.Run(p, func(t *testing.T) {
			rr := do(router, http.MethodGet, "/api/h1b/applications?employer="+p, nil)
			if rr.Code != http.StatusOK {
				t.Fatalf("expected 200, got %d", rr.Code)
			}
			if !strings.Contains(rr.Body.String(), `"totalRecords":0`) {
				t.Errorf("payload should match nothing, got %s", rr.Body.String())
			}
		})
	}
}
