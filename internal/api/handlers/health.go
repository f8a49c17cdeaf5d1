package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/offersplus/backend/internal/logger"
)

const healthCheckTimeout = 2 * time.Second

// Health reports whether the API is alive and its cache readable. A cache
// that cannot answer yields 503 with status "degraded".
func Health(c CacheAdmin) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		defer cancel()

		if _, err := c.CacheStats(ctx); err != nil {
			logger.WarnContext(ctx, "health check: cache unavailable", "error", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "degraded",
				"cache":  "unavailable",
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"status":       "ok",
			"cacheHitRate": c.HitRate(),
		})
	}
}
