package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/offersplus/backend/internal/apierr"
)

func limitedRequest(t *testing.T, h http.Handler, remote string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/api/h1b/applications", nil)
	req.RemoteAddr = remote
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func errorCode(t *testing.T, rr *httptest.ResponseRecorder) apierr.ErrorCode {
	t.Helper()
	var resp apierr.ErrorResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return resp.Error.Code
}

func TestRateLimiter_GlobalLimit(t *testing.T) {
	rl := NewRateLimiter(1.0, 2, 10.0, 10)
	defer rl.Stop()
	handler := rl.Limit(okHandler())

	for i := 0; i < 2; i++ {
		if rr := limitedRequest(t, handler, "192.168.1.1:1234"); rr.Code != http.StatusOK {
			t.Fatalf("request %d: got %d, want 200", i, rr.Code)
		}
	}

	rr := limitedRequest(t, handler, "192.168.1.2:1234")
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("third request should be rate limited: got %d", rr.Code)
	}
	if rr.Header().Get("Retry-After") == "" {
		t.Error("expected Retry-After header")
	}
	if code := errorCode(t, rr); code != apierr.ErrRateLimitGlobal {
		t.Errorf("expected %s, got %s", apierr.ErrRateLimitGlobal, code)
	}
}

func TestRateLimiter_PerIPLimit(t *testing.T) {
	rl := NewRateLimiter(100.0, 100, 1.0, 2)
	defer rl.Stop()
	handler := rl.Limit(okHandler())

	for _, remote := range []string{"192.168.1.1:1234", "192.168.1.1:5678"} {
		if rr := limitedRequest(t, handler, remote); rr.Code != http.StatusOK {
			t.Fatalf("burst request from %s: got %d", remote, rr.Code)
		}
	}

	rr := limitedRequest(t, handler, "192.168.1.1:9999")
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("third request from same IP should be limited: got %d", rr.Code)
	}
	if code := errorCode(t, rr); code != apierr.ErrRateLimitIP {
		t.Errorf("expected %s, got %s", apierr.ErrRateLimitIP, code)
	}

	if rr := limitedRequest(t, handler, "192.168.1.2:1234"); rr.Code != http.StatusOK {
		t.Errorf("other IP should not be limited: got %d", rr.Code)
	}
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name   string
		xff    string
		realIP string
		remote string
		want   string
	}{
		{"forwarded for", "203.0.113.1, 198.51.100.1", "", "192.168.1.1:1234", "203.0.113.1"},
		{"real ip", "", "203.0.113.7", "192.168.1.1:1234", "203.0.113.7"},
		{"remote addr", "", "", "192.168.1.1:1234", "192.168.1.1"},
		{"ipv6 remote", "", "", "[2001:db8::1]:443", "2001:db8::1"},
		{"no port", "", "", "10.0.0.1", "10.0.0.1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.realIP != "" {
				req.Header.Set("X-Real-IP", tt.realIP)
			}
			req.RemoteAddr = tt.remote
			if got := clientIP(req); got != tt.want {
				t.Errorf("clientIP = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRateLimiter_EvictIdle(t *testing.T) {
	rl := NewRateLimiter(10.0, 10, 10.0, 10)
	defer rl.Stop()

	now := time.Now()
	rl.limiterFor("192.168.1.1", now.Add(-5*time.Minute))
	rl.limiterFor("192.168.1.2", now)

	if n := rl.evictIdle(now); n != 1 {
		t.Errorf("expected 1 eviction, got %d", n)
	}
	if n := rl.tracked(); n != 1 {
		t.Errorf("expected 1 tracked IP, got %d", n)
	}
}

func TestRateLimiter_StopTwice(t *testing.T) {
	rl := NewRateLimiter(1, 1, 1, 1)
	rl.Stop()
	rl.Stop()
}

func TestRateLimiter_ConcurrentAccess(t *testing.T) {
	rl := NewRateLimiter(1000.0, 1000, 10.0, 10)
	defer rl.Stop()
	handler := rl.Limit(okHandler())

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 5; j++ {
				req := httptest.NewRequest(http.MethodGet, "/api/h1b/statistics", nil)
				req.RemoteAddr = "192.168.1." + strconv.Itoa(n) + ":1234"
				handler.ServeHTTP(httptest.NewRecorder(), req)
			}
		}(i)
	}
	wg.Wait()

	if n := rl.tracked(); n != 10 {
		t.Errorf("expected 10 tracked IPs, got %d", n)
	}
}

func TestRateLimiter_AfterWait(t *testing.T) {
	rl := NewRateLimiter(10.0, 1, 10.0, 1)
	defer rl.Stop()
	handler := rl.Limit(okHandler())

	limitedRequest(t, handler, "192.168.1.1:1234")
	if rr := limitedRequest(t, handler, "192.168.1.1:1234"); rr.Code != http.StatusTooManyRequests {
		t.Fatalf("request should be rate limited: got %d", rr.Code)
	}

	time.Sleep(150 * time.Millisecond)

	if rr := limitedRequest(t, handler, "192.168.1.1:1234"); rr.Code != http.StatusOK {
		t.Errorf("request after wait should succeed: got %d", rr.Code)
	}
}
