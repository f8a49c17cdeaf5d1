package handlers

import (
	"context"
	"net/http"

	"github.com/offersplus/backend/internal/apierr"
	"github.com/offersplus/backend/internal/cache"
	"github.com/offersplus/backend/internal/logger"
	"github.com/offersplus/backend/internal/prefetch"
)

// CacheAdmin is the maintenance side of the facade.
type CacheAdmin interface {
	CacheStats(ctx context.Context) (cache.Stats, error)
	ClearCache(ctx context.Context) error
	CleanupCache(ctx context.Context) (int, error)
	HitRate() float64
}

// PrefetchRunner runs one warm-up pass on demand.
type PrefetchRunner interface {
	Run(ctx context.Context) prefetch.Report
}

// CacheAdminHandler handles cache administration endpoints.
type CacheAdminHandler struct {
	cache    CacheAdmin
	prefetch PrefetchRunner
}

// NewCacheAdminHandler creates a cache admin handler. p may be nil when
// prefetching is disabled.
func NewCacheAdminHandler(c CacheAdmin, p PrefetchRunner) *CacheAdminHandler {
	return &CacheAdminHandler{cache: c, prefetch: p}
}

// GetCacheStats returns current cache statistics.
// GET /api/admin/cache/stats
func (h *CacheAdminHandler) GetCacheStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.cache.CacheStats(r.Context())
	if err != nil {
		logger.ErrorContext(r.Context(), "cache stats failed", "error", err)
		apierr.WriteErrorWithContext(w, r, apierr.CacheStatsFailed(""))
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// ClearCache removes every entry and resets the counters.
// POST /api/admin/cache/clear
func (h *CacheAdminHandler) ClearCache(w http.ResponseWriter, r *http.Request) {
	if err := h.cache.ClearCache(r.Context()); err != nil {
		logger.ErrorContext(r.Context(), "cache clear failed", "error", err)
		apierr.WriteErrorWithContext(w, r, apierr.CacheClearFailed(""))
		return
	}
	logger.InfoContext(r.Context(), "cache cleared by admin")
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"message": "Cache cleared",
	})
}

// CleanupCache removes expired entries.
// POST /api/admin/cache/cleanup
func (h *CacheAdminHandler) CleanupCache(w http.ResponseWriter, r *http.Request) {
	removed, err := h.cache.CleanupCache(r.Context())
	if err != nil {
		logger.ErrorContext(r.Context(), "cache cleanup failed", "error", err)
		apierr.WriteErrorWithContext(w, r, apierr.CacheCleanupFailed(""))
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"removed": removed})
}

// Prefetch runs a warm-up pass and reports what it did.
// POST /api/admin/cache/prefetch
func (h *CacheAdminHandler) Prefetch(w http.ResponseWriter, r *http.Request) {
	if h.prefetch == nil {
		apierr.WriteErrorWithContext(w, r, apierr.CachePrefetchFailed("Prefetching is disabled"))
		return
	}
	writeJSON(w, http.StatusOK, h.prefetch.Run(r.Context()))
}
