// Package api assembles the HTTP surface of the H1B query service.
package api

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/offersplus/backend/internal/api/handlers"
	"github.com/offersplus/backend/internal/apierr"
	"github.com/offersplus/backend/internal/config"
	"github.com/offersplus/backend/internal/middleware"
	"github.com/offersplus/backend/internal/service"
	"github.com/offersplus/backend/internal/session"
)

// Deps are the collaborators the router serves.
type Deps struct {
	Service *service.Service
	// Prefetcher may be nil when prefetching is disabled.
	Prefetcher handlers.PrefetchRunner
	Config     *config.Config
	// RateLimiter may be nil to disable rate limiting.
	RateLimiter *middleware.RateLimiter
	// BaseContext bounds live sessions; it is canceled on shutdown.
	BaseContext context.Context
}

// adminOnly gates next behind the admin bearer token.
func adminOnly(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token == "" {
				apierr.WriteErrorWithContext(w, r, apierr.SystemUnavailable("Admin API is not configured"))
				return
			}
			auth := r.Header.Get("Authorization")
			if auth == "" {
				apierr.WriteErrorWithContext(w, r, apierr.AuthMissing(""))
				return
			}
			const prefix = "Bearer "
			got, ok := strings.CutPrefix(auth, prefix)
			if !ok || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				apierr.WriteErrorWithContext(w, r, apierr.AuthInvalid(""))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// NewRouter builds the API handler with the full middleware chain.
func NewRouter(d Deps) http.Handler {
	cfg := d.Config
	if cfg == nil {
		cfg = config.Load()
	}
	base := d.BaseContext
	if base == nil {
		base = context.Background()
	}
	svc := d.Service
	ttl := svc.TTLs()

	r := mux.NewRouter()
	r.Use(middleware.Instrument)

	r.HandleFunc("/health", handlers.Health(svc)).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	h1bAPI := r.PathPrefix("/api/h1b").Subrouter()
	h1bAPI.HandleFunc("/applications", handlers.GetApplications(svc)).Methods(http.MethodGet)
	h1bAPI.Handle("/values/{field}", middleware.ETag(ttl.Unique)(handlers.GetUniqueValues(svc))).Methods(http.MethodGet)
	h1bAPI.Handle("/statistics", middleware.ETag(ttl.Statistics)(handlers.GetStatistics(svc))).Methods(http.MethodGet)
	h1bAPI.HandleFunc("/export", handlers.ExportApplications(svc, nil)).Methods(http.MethodGet)

	origins := cfg.CORSAllowedOrigins
	live := handlers.NewLiveHandler(base, svc, session.Options{
		Debounce:      cfg.LiveDebounce,
		StatsInterval: cfg.LiveStatsInterval,
	}, func(req *http.Request) bool {
		origin := req.Header.Get("Origin")
		return origin == "" || middleware.OriginAllowed(origin, origins)
	})
	h1bAPI.Handle("/live", live).Methods(http.MethodGet)

	cacheAdmin := handlers.NewCacheAdminHandler(svc, d.Prefetcher)
	admin := r.PathPrefix("/api/admin").Subrouter()
	admin.Use(adminOnly(cfg.AdminAPIToken))
	admin.HandleFunc("/cache/stats", cacheAdmin.GetCacheStats).Methods(http.MethodGet)
	admin.HandleFunc("/cache/clear", cacheAdmin.ClearCache).Methods(http.MethodPost, http.MethodDelete)
	admin.HandleFunc("/cache/cleanup", cacheAdmin.CleanupCache).Methods(http.MethodPost)
	admin.HandleFunc("/cache/prefetch", cacheAdmin.Prefetch).Methods(http.MethodPost)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		apierr.WriteErrorWithContext(w, req, apierr.ResourceNotFound("route"))
	})

	var h http.Handler = middleware.Compress(r)
	h = middleware.ValidateRequest(h)
	if d.RateLimiter != nil && cfg.EnableRateLimit {
		h = d.RateLimiter.Limit(h)
	}
	h = middleware.CORS(middleware.CORSConfigFor(origins))(h)
	h = middleware.SecurityHeaders(h)
	h = middleware.RecoverWithSentry(h)
	return middleware.RequestID(h)
}
