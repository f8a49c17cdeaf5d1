// Package httpx wraps outbound HTTP calls with retries that honor
// Retry-After and back off with jitter on 429 and 5xx responses.
package httpx

import (
	"context"
	"errors"
	"math/rand"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/offersplus/backend/internal/config"
	"github.com/offersplus/backend/internal/logger"
	"github.com/offersplus/backend/internal/metrics"
)

// ErrExhausted is returned when every attempt failed at the transport level.
var ErrExhausted = errors.New("httpx: exhausted retries")

// PreAttempt runs before each try, e.g. to wait on a rate limiter.
// Returning an error aborts the request.
type PreAttempt func(ctx context.Context, attempt int) error

// AttemptInfo describes a single attempt outcome.
type AttemptInfo struct {
	Attempt int
	Method  string
	URL     string
	Status  int
	Err     error
	Wait    time.Duration
}

// Observer receives attempt telemetry.
type Observer func(info AttemptInfo)

// Options tune a Client.
type Options struct {
	MaxAttempts int
	BaseDelay   time.Duration
	// MaxJitter bounds the random delay added to each backoff.
	MaxJitter  time.Duration
	LogRetries bool
	Pre        PreAttempt
	Observer   Observer
}

// OptionsFromConfig reads retry settings from the service configuration.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		MaxAttempts: cfg.HTTPMaxRetries,
		BaseDelay:   cfg.HTTPRetryBase,
		MaxJitter:   200 * time.Millisecond,
		LogRetries:  cfg.LogHTTPRetries,
	}
}

// Limit returns a PreAttempt that waits on l before each try.
func Limit(l *rate.Limiter) PreAttempt {
	return func(ctx context.Context, _ int) error { return l.Wait(ctx) }
}

// Client retries requests built by a factory, since request bodies cannot
// be replayed.
type Client struct {
	http *http.Client
	opts Options
}

// New returns a Client over hc; a nil hc uses http.DefaultClient.
func New(hc *http.Client, opts Options) *Client {
	if hc == nil {
		hc = http.DefaultClient
	}
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 1
	}
	if opts.BaseDelay < 0 {
		opts.BaseDelay = 0
	}
	return &Client{http: hc, opts: opts}
}

// Do sends the request produced by build until it gets a response that is
// neither 429 nor 5xx, the attempts run out, or ctx ends. On the last
// attempt a retryable response is returned as is; the caller closes it.
func (c *Client) Do(ctx context.Context, build func(ctx context.Context) (*http.Request, error)) (*http.Response, error) {
	log := logger.WithComponent("httpx")
	for attempt := 1; attempt <= c.opts.MaxAttempts; attempt++ {
		if c.opts.Pre != nil {
			if err := c.opts.Pre(ctx, attempt); err != nil {
				return nil, err
			}
		}
		req, err := build(ctx)
		if err != nil {
			return nil, err
		}
		info := AttemptInfo{Attempt: attempt, Method: req.Method, URL: req.URL.Redacted()}
		last := attempt == c.opts.MaxAttempts

		resp, err := c.http.Do(req)
		var wait time.Duration
		switch {
		case err != nil:
			metrics.SourceHTTPRequests.WithLabelValues("error").Inc()
			info.Err = err
			if last || ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				c.observe(info)
				if c.opts.LogRetries {
					log.WarnContext(ctx, "request failed, giving up", "attempt", attempt, "method", info.Method, "url", info.URL, "error", err)
				}
				return nil, err
			}
		case !retryable(resp.StatusCode):
			metrics.SourceHTTPRequests.WithLabelValues("success").Inc()
			info.Status = resp.StatusCode
			c.observe(info)
			if c.opts.LogRetries && attempt > 1 {
				log.InfoContext(ctx, "request succeeded after retry", "attempt", attempt, "status", resp.StatusCode, "url", info.URL)
			}
			return resp, nil
		default:
			metrics.SourceHTTPRequests.WithLabelValues("retry").Inc()
			info.Status = resp.StatusCode
			if last {
				c.observe(info)
				if c.opts.LogRetries {
					log.WarnContext(ctx, "retryable status, giving up", "attempt", attempt, "status", resp.StatusCode, "url", info.URL)
				}
				return resp, nil
			}
			if ra, ok := RetryAfter(resp.Header.Get("Retry-After"), time.Now()); ok {
				wait = ra
				metrics.SourceRetryAfterWaits.Observe(wait.Seconds())
			}
			resp.Body.Close()
		}

		metrics.SourceHTTPRetries.Inc()
		if wait == 0 {
			wait = c.backoff(attempt)
		}
		info.Wait = wait
		c.observe(info)
		if c.opts.LogRetries {
			log.InfoContext(ctx, "backing off", "attempt", attempt, "wait", wait, "status", info.Status, "url", info.URL)
		}
		if err := sleep(ctx, wait); err != nil {
			return nil, err
		}
	}
	return nil, ErrExhausted
}

func (c *Client) observe(info AttemptInfo) {
	if c.opts.Observer != nil {
		c.opts.Observer(info)
	}
}

func (c *Client) backoff(attempt int) time.Duration {
	d := c.opts.BaseDelay * time.Duration(1<<(attempt-1))
	if c.opts.MaxJitter > 0 {
		d += time.Duration(rand.Int63n(int64(c.opts.MaxJitter)))
	}
	return d
}

func retryable(status int) bool {
	return status == http.StatusTooManyRequests || status >= 500
}

// RetryAfter parses a Retry-After header given as seconds or an HTTP date.
func RetryAfter(v string, now time.Time) (time.Duration, bool) {
	if v == "" {
		return 0, false
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0, false
		}
		return time.Duration(secs) * time.Second, true
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := t.Sub(now); d > 0 {
			return d, true
		}
	}
	return 0, false
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
