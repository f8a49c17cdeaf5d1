package middleware

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/offersplus/backend/internal/apierr"
	"github.com/offersplus/backend/internal/metrics"
)

const (
	ipIdleTTL       = 3 * time.Minute
	cleanupInterval = time.Minute
)

// RateLimiter enforces a global token bucket and one bucket per client IP.
type RateLimiter struct {
	global  *rate.Limiter
	ipRate  rate.Limit
	ipBurst int

	mu    sync.Mutex
	perIP map[string]*ipLimiter

	stop     chan struct{}
	stopOnce sync.Once
}

type ipLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter creates a limiter allowing globalRate requests per second
// overall and ipRate per client, each with its own burst. Stop releases
// the background sweeper.
func NewRateLimiter(globalRate float64, globalBurst int, ipRate float64, ipBurst int) *RateLimiter {
	rl := &RateLimiter{
		global:  rate.NewLimiter(rate.Limit(globalRate), globalBurst),
		ipRate:  rate.Limit(ipRate),
		ipBurst: ipBurst,
		perIP:   make(map[string]*ipLimiter),
		stop:    make(chan struct{}),
	}
	go rl.sweep()
	return rl
}

func (rl *RateLimiter) limiterFor(ip string, now time.Time) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	l, ok := rl.perIP[ip]
	if !ok {
		l = &ipLimiter{limiter: rate.NewLimiter(rl.ipRate, rl.ipBurst)}
		rl.perIP[ip] = l
	}
	l.lastSeen = now
	return l.limiter
}

func (rl *RateLimiter) sweep() {
	t := time.NewTicker(cleanupInterval)
	defer t.Stop()
	for {
		select {
		case <-rl.stop:
			return
		case now := <-t.C:
			rl.evictIdle(now)
		}
	}
}

// evictIdle drops per-IP buckets not used within ipIdleTTL of now.
func (rl *RateLimiter) evictIdle(now time.Time) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	n := 0
	for ip, l := range rl.perIP {
		if now.Sub(l.lastSeen) > ipIdleTTL {
			delete(rl.perIP, ip)
			n++
		}
	}
	return n
}

func (rl *RateLimiter) tracked() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.perIP)
}

// Stop stops the background sweeper. Safe to call more than once.
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stop) })
}

// Limit returns a middleware handler that enforces rate limits.
func (rl *RateLimiter) Limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.global.Allow() {
			metrics.RateLimitRejections.WithLabelValues("global").Inc()
			w.Header().Set("Retry-After", "1")
			apierr.WriteErrorWithContext(w, r, apierr.RateLimitGlobal())
			return
		}
		if !rl.limiterFor(clientIP(r), time.Now()).Allow() {
			metrics.RateLimitRejections.WithLabelValues("ip").Inc()
			w.Header().Set("Retry-After", "1")
			apierr.WriteErrorWithContext(w, r, apierr.RateLimitIP())
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientIP prefers the first X-Forwarded-For hop, then X-Real-IP, then the
// connection's remote address.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}
	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		return xri
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
