// Package prefetch warms the cache with popular queries shortly after
// startup, skipping anything already cached and live.
package prefetch

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sourcegraph/conc/pool"

	"github.com/offersplus/backend/internal/cache"
	"github.com/offersplus/backend/internal/logger"
	"github.com/offersplus/backend/internal/metrics"
)

// DefaultDelay keeps the warm-up pass clear of the first real requests.
const DefaultDelay = 2 * time.Second

// Target is one cache entry to warm.
type Target struct {
	Name      string
	Namespace string
	Params    any
	TTL       time.Duration
	Fetch     func(ctx context.Context) (any, error)
}

// Report summarizes a pass.
type Report struct {
	Fetched int `json:"fetched"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

// Cache is the subset of cache.Store a Prefetcher needs.
type Cache interface {
	Contains(ctx context.Context, namespace string, params any) bool
	Set(ctx context.Context, namespace string, params any, value any, ttl time.Duration) error
}

var _ Cache = (*cache.Store)(nil)

// Options tune a Prefetcher.
type Options struct {
	Delay       time.Duration
	Concurrency int
	// Timeout bounds each target's fetch.
	Timeout time.Duration
}

// Prefetcher runs warm-up passes over a fixed target list.
type Prefetcher struct {
	cache   Cache
	targets []Target
	opts    Options
	log     *slog.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	running atomic.Bool
}

// New returns a Prefetcher for targets.
func New(c Cache, targets []Target, opts Options) *Prefetcher {
	if opts.Delay < 0 {
		opts.Delay = 0
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	return &Prefetcher{cache: c, targets: targets, opts: opts, log: logger.WithComponent("prefetch")}
}

// Targets returns the configured targets.
func (p *Prefetcher) Targets() []Target { return p.targets }

// Start arms a one-shot pass after the configured delay. Calling Start
// again while armed or running has no effect.
func (p *Prefetcher) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	go func(done chan struct{}) {
		defer close(done)
		t := time.NewTimer(p.opts.Delay)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
		p.Run(ctx)
	}(p.done)
}

// Stop cancels an armed timer or in-flight pass and waits for it to exit.
func (p *Prefetcher) Stop() {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
	p.mu.Lock()
	if p.done == done {
		p.cancel, p.done = nil, nil
	}
	p.mu.Unlock()
}

// Run performs one pass. Individual failures are logged and counted,
// never returned.
func (p *Prefetcher) Run(ctx context.Context) Report {
	if !p.running.CompareAndSwap(false, true) {
		p.log.DebugContext(ctx, "prefetch pass already running")
		return Report{}
	}
	defer p.running.Store(false)

	start := time.Now()
	var fetched, skipped, failed atomic.Int64
	wp := pool.New().WithMaxGoroutines(p.opts.Concurrency)
	for _, t := range p.targets {
		wp.Go(func() {
			switch err := p.warm(ctx, t); {
			case errors.Is(err, errSkipped):
				skipped.Add(1)
				metrics.PrefetchResults.WithLabelValues("skipped").Inc()
			case err != nil:
				failed.Add(1)
				metrics.PrefetchResults.WithLabelValues("failed").Inc()
				p.log.WarnContext(ctx, "prefetch failed", "target", t.Name, "namespace", t.Namespace, "error", err)
			default:
				fetched.Add(1)
				metrics.PrefetchResults.WithLabelValues("fetched").Inc()
			}
		})
	}
	wp.Wait()

	r := Report{Fetched: int(fetched.Load()), Skipped: int(skipped.Load()), Failed: int(failed.Load())}
	p.log.InfoContext(ctx, "prefetch pass complete",
		"fetched", r.Fetched, "skipped", r.Skipped, "failed", r.Failed, "duration", time.Since(start))
	return r
}

var errSkipped = errors.New("already cached")

func (p *Prefetcher) warm(ctx context.Context, t Target) (err error) {
	defer func() {
		if r := recover(); r != nil {
			p.log.ErrorContext(ctx, "prefetch target panicked", "target", t.Name, "panic", r)
			err = errors.New("prefetch target panicked")
		}
	}()
	if err := ctx.Err(); err != nil {
		return err
	}
	if p.cache.Contains(ctx, t.Namespace, t.Params) {
		return errSkipped
	}
	fctx, cancel := context.WithTimeout(ctx, p.opts.Timeout)
	defer cancel()
	v, err := t.Fetch(fctx)
	if err != nil {
		return err
	}
	return p.cache.Set(ctx, t.Namespace, t.Params, v, t.TTL)
}
