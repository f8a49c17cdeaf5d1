// Package errorreporting sends unexpected failures to Sentry with personal
// data scrubbed. Every function is a no-op until Init runs with a DSN.
package errorreporting

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync/atomic"
	"time"

	"github.com/getsentry/sentry-go"
)

var piiPatterns = []*regexp.Regexp{
	// email addresses
	regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`),
	// bearer tokens and JWTs
	regexp.MustCompile(`(?i)bearer\s+[a-zA-Z0-9._-]{20,}`),
	regexp.MustCompile(`eyJ[a-zA-Z0-9_-]+\.[a-zA-Z0-9_-]+\.[a-zA-Z0-9_-]+`),
	// api keys and secrets in key=value or JSON form
	regexp.MustCompile(`(?i)(api[_-]?key|apikey|token|secret|password)["\s:=]+[a-zA-Z0-9_-]{8,}`),
	// IPv4 addresses
	regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b`),
}

var enabled atomic.Bool

// Options configure the Sentry client.
type Options struct {
	DSN         string
	Environment string
	Release     string
	SampleRate  float64
}

// Init configures Sentry. An empty DSN leaves reporting disabled.
func Init(opts Options) error {
	if opts.DSN == "" {
		return nil
	}
	if err := ValidateDSN(opts.DSN); err != nil {
		return err
	}
	if opts.Release == "" {
		opts.Release = "dev"
	}
	err := sentry.Init(sentry.ClientOptions{
		Dsn:              opts.DSN,
		Environment:      opts.Environment,
		Release:          opts.Release,
		SampleRate:       opts.SampleRate,
		BeforeSend:       beforeSend,
		AttachStacktrace: true,
	})
	if err != nil {
		return fmt.Errorf("initialize sentry: %w", err)
	}
	enabled.Store(true)
	return nil
}

// Enabled reports whether Init configured a client.
func Enabled() bool { return enabled.Load() }

func beforeSend(event *sentry.Event, _ *sentry.EventHint) *sentry.Event {
	for i := range event.Exception {
		event.Exception[i].Value = scrubPII(event.Exception[i].Value)
	}
	event.Message = scrubPII(event.Message)
	for key, value := range event.Extra {
		if str, ok := value.(string); ok {
			event.Extra[key] = scrubPII(str)
		}
	}
	if event.Request != nil {
		for _, h := range []string{"Authorization", "Cookie", "Apikey", "X-Api-Key"} {
			delete(event.Request.Headers, h)
		}
		event.Request.QueryString = ""
		event.Request.Cookies = ""
	}
	return event
}

func scrubPII(text string) string {
	for _, pattern := range piiPatterns {
		text = pattern.ReplaceAllString(text, "[REDACTED]")
	}
	return text
}

// ScrubPII removes personal data from text.
func ScrubPII(text string) string { return scrubPII(text) }

func hub(ctx context.Context) *sentry.Hub {
	if ctx != nil {
		if h := sentry.GetHubFromContext(ctx); h != nil {
			return h
		}
	}
	return sentry.CurrentHub()
}

// CaptureError reports err with tags, using the request hub in ctx when
// the recovery middleware attached one.
func CaptureError(ctx context.Context, err error, tags map[string]string) {
	if err == nil || !Enabled() {
		return
	}
	hub(ctx).WithScope(func(scope *sentry.Scope) {
		for k, v := range tags {
			scope.SetTag(k, v)
		}
		hub(ctx).CaptureException(err)
	})
}

// CaptureMessage reports a message at level.
func CaptureMessage(ctx context.Context, message string, level sentry.Level) {
	if !Enabled() {
		return
	}
	hub(ctx).WithScope(func(scope *sentry.Scope) {
		scope.SetLevel(level)
		hub(ctx).CaptureMessage(message)
	})
}

// Flush waits up to timeout for buffered events.
func Flush(timeout time.Duration) bool {
	if !Enabled() {
		return true
	}
	return sentry.Flush(timeout)
}

// ValidateDSN checks the DSN looks like a Sentry URL.
func ValidateDSN(dsn string) error {
	if !strings.HasPrefix(dsn, "https://") && !strings.HasPrefix(dsn, "http://") {
		return fmt.Errorf("invalid sentry dsn format")
	}
	return nil
}
