package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/offersplus/backend/internal/cache"
	"github.com/offersplus/backend/internal/config"
	"github.com/offersplus/backend/internal/h1b"
	"github.com/offersplus/backend/internal/prefetch"
	"github.com/offersplus/backend/internal/service"
)

const testAdminToken = "test-admin-token-secure-123"

func wage(v float64) *float64 { return &v }

func testConfig() *config.Config {
	return &config.Config{
		AdminAPIToken:      testAdminToken,
		CORSAllowedOrigins: []string{"http://localhost:5173"},
		EnableRateLimit:    true,
	}
}

type stubPrefetcher struct{}

func (stubPrefetcher) Run(context.Context) prefetch.Report { return prefetch.Report{Fetched: 1} }

func newTestRouter(t *testing.T, cfg *config.Config) http.Handler {
	t.Helper()
	store, err := cache.Open(context.Background(), cache.DefaultOptions(), cache.MemoryOpener(cache.NewMemoryBackend()))
	if err != nil {
		t.Fatalf("open cache: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	src := h1b.NewMemorySource(
		h1b.Record{ID: 1, CaseNumber: "I-1", CaseStatus: "CERTIFIED", EmployerName: "Google LLC", JobTitle: "Software Engineer", WageRateOfPayFrom: wage(150000)},
		h1b.Record{ID: 2, CaseNumber: "I-2", CaseStatus: "DENIED", EmployerName: "Acme", JobTitle: "Analyst", WageRateOfPayFrom: wage(70000)},
	)
	return NewRouter(Deps{
		Service:    service.New(store, src),
		Prefetcher: stubPrefetcher{},
		Config:     cfg,
	})
}

func do(h http.Handler, method, target string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}
