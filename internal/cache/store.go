package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/offersplus/backend/internal/logger"
	"github.com/offersplus/backend/internal/metrics"
)

const (
	DefaultName       = "H1BFilterCache"
	DefaultVersion    = 1
	DefaultCollection = "filterResults"
	DefaultTTL        = 5 * time.Minute
)

// ErrClosed is returned by operations on a closed Store.
var ErrClosed = errors.New("cache: store closed")

// Options configures a Store.
type Options struct {
	Name       string
	Version    int
	Collection string
	DefaultTTL time.Duration
	Clock      Clock
	Compressor *Compressor
	// HotTier enables the in-process tier when non-nil.
	HotTier *HotTierOptions
}

// DefaultOptions returns the options used by the H1B filter cache.
func DefaultOptions() Options {
	return Options{
		Name:       DefaultName,
		Version:    DefaultVersion,
		Collection: DefaultCollection,
		DefaultTTL: DefaultTTL,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Name == "" {
		o.Name = d.Name
	}
	if o.Version == 0 {
		o.Version = d.Version
	}
	if o.Collection == "" {
		o.Collection = d.Collection
	}
	if o.DefaultTTL <= 0 {
		o.DefaultTTL = d.DefaultTTL
	}
	if o.Clock == nil {
		o.Clock = SystemClock
	}
	if o.Compressor == nil {
		o.Compressor = defaultCompressor
	}
	return o
}

// Store is the persistent, TTL-aware cache of query results. Payloads are
// stored compressed under keys derived by MakeKey.
type Store struct {
	opts Options
	open Opener
	log  *slog.Logger

	mu      sync.Mutex
	backend Backend
	closed  bool

	// writeMu pairs each backend mutation with the matching hot tier update.
	writeMu sync.Mutex
	hot     *hotTier
	// writes is bumped under writeMu by every mutation. A backend read only
	// fills the hot tier if no mutation happened since it started.
	writes atomic.Uint64

	counters Counters
}

// New creates a Store that connects lazily through open.
func New(opts Options, open Opener) *Store {
	opts = opts.withDefaults()
	s := &Store{
		opts: opts,
		open: open,
		log:  logger.WithComponent("cache").With("store", opts.Name),
	}
	if opts.HotTier != nil && opts.HotTier.MaxSizeMB > 0 {
		hot, err := newHotTier(*opts.HotTier, opts.Clock)
		if err != nil {
			s.log.Warn("hot tier disabled", "error", err)
		} else {
			s.hot = hot
		}
	}
	return s
}

// Open creates a Store and initializes its backend.
func Open(ctx context.Context, opts Options, open Opener) (*Store, error) {
	s := New(opts, open)
	if err := s.Init(ctx); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// Init establishes the backend connection. It is idempotent; concurrent
// callers block until the first one finishes and then share its backend.
// A failed attempt is not remembered, so a later call retries.
func (s *Store) Init(ctx context.Context) error {
	_, err := s.conn(ctx)
	return err
}

func (s *Store) conn(ctx context.Context) (Backend, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	if s.backend != nil {
		return s.backend, nil
	}
	b, err := s.open(ctx, s.opts)
	if err != nil {
		metrics.CacheErrors.WithLabelValues("init").Inc()
		return nil, fmt.Errorf("open cache %s: %w", s.opts.Name, err)
	}
	s.backend = b
	s.log.Info("cache store ready", "collection", s.opts.Collection, "version", s.opts.Version)
	return b, nil
}

// Options returns the effective options.
func (s *Store) Options() Options { return s.opts }

// Get looks up the value cached for namespace and params and decodes it
// into dst. It reports a hit only when a live entry was decoded. Storage
// failures, expired entries and undecodable payloads are all misses; the
// latter two are removed from the store.
func (s *Store) Get(ctx context.Context, namespace string, params any, dst any) bool {
	key, err := MakeKey(namespace, params)
	if err != nil {
		s.log.WarnContext(ctx, "cache key derivation failed", "namespace", namespace, "error", err)
		return s.miss(namespace)
	}
	e, err := s.load(ctx, key)
	switch {
	case err == nil:
	case errors.Is(err, ErrNotFound):
		return s.miss(namespace)
	case errors.Is(err, ErrCorruptEntry):
		metrics.CacheErrors.WithLabelValues("decode").Inc()
		s.discard(ctx, key)
		return s.miss(namespace)
	default:
		metrics.CacheErrors.WithLabelValues("get").Inc()
		s.log.WarnContext(ctx, "cache read failed", "namespace", namespace, "error", err)
		return s.miss(namespace)
	}

	if !e.Valid(s.opts.Clock.Now()) {
		s.discard(ctx, key)
		return s.miss(namespace)
	}
	if err := s.decode(e, dst); err != nil {
		metrics.CacheErrors.WithLabelValues("decode").Inc()
		s.log.WarnContext(ctx, "cache entry undecodable", "namespace", namespace, "error", err)
		s.discard(ctx, key)
		return s.miss(namespace)
	}
	s.counters.hits.Add(1)
	metrics.CacheLookups.WithLabelValues(namespace, "hit").Inc()
	return true
}

// Contains reports whether a live entry exists for namespace and params.
// It does not touch the hit/miss counters.
func (s *Store) Contains(ctx context.Context, namespace string, params any) bool {
	key, err := MakeKey(namespace, params)
	if err != nil {
		return false
	}
	e, err := s.load(ctx, key)
	return err == nil && e.Valid(s.opts.Clock.Now())
}

func (s *Store) miss(namespace string) bool {
	s.counters.misses.Add(1)
	metrics.CacheLookups.WithLabelValues(namespace, "miss").Inc()
	return false
}

func (s *Store) load(ctx context.Context, key string) (*Entry, error) {
	if s.hot != nil {
		if e, ok := s.hot.get(key); ok {
			return e, nil
		}
	}
	b, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}
	gen := s.writes.Load()
	e, err := b.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if s.hot != nil && e.Valid(s.opts.Clock.Now()) {
		s.fill(e, gen)
	}
	return e, nil
}

// fill caches e in the hot tier unless a write landed after gen was read.
func (s *Store) fill(e *Entry, gen uint64) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if s.writes.Load() == gen {
		s.hot.set(e)
	}
}

func (s *Store) decode(e *Entry, dst any) error {
	if e.Compressed {
		return s.opts.Compressor.Decompress(e.Data, dst)
	}
	return json.Unmarshal([]byte(e.Data), dst)
}

// discard removes an entry found expired or malformed during a read.
func (s *Store) discard(ctx context.Context, key string) {
	if err := s.deleteKey(ctx, key); err != nil {
		s.log.DebugContext(ctx, "failed to drop stale cache entry", "error", err)
	}
}

// Set stores value under namespace and params with the given ttl,
// replacing any previous entry. A non-positive ttl uses the store default;
// a positive ttl below the millisecond resolution is rounded up to 1ms.
func (s *Store) Set(ctx context.Context, namespace string, params any, value any, ttl time.Duration) error {
	switch {
	case ttl <= 0:
		ttl = s.opts.DefaultTTL
	case ttl < time.Millisecond:
		ttl = time.Millisecond
	}
	key, err := MakeKey(namespace, params)
	if err != nil {
		return err
	}
	c, err := s.opts.Compressor.Compress(value)
	if err != nil {
		return fmt.Errorf("compress %s payload: %w", namespace, err)
	}
	b, err := s.conn(ctx)
	if err != nil {
		return err
	}
	e := &Entry{
		Key:        key,
		Data:       c.Encoded,
		Timestamp:  s.opts.Clock.Now().UnixMilli(),
		TTL:        ttl.Milliseconds(),
		Compressed: true,
		SizeBytes:  c.OriginalSizeBytes,
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.writes.Add(1)
	if err := b.Put(ctx, e); err != nil {
		metrics.CacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("store %s entry: %w", namespace, err)
	}
	if s.hot != nil {
		s.hot.set(e)
	}
	s.counters.sets.Add(1)
	metrics.CacheSets.WithLabelValues(namespace).Inc()
	return nil
}

// Delete removes the entry for namespace and params if present.
func (s *Store) Delete(ctx context.Context, namespace string, params any) error {
	key, err := MakeKey(namespace, params)
	if err != nil {
		return err
	}
	return s.deleteKey(ctx, key)
}

func (s *Store) deleteKey(ctx context.Context, key string) error {
	b, err := s.conn(ctx)
	if err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.writes.Add(1)
	if err := b.Delete(ctx, key); err != nil {
		metrics.CacheErrors.WithLabelValues("delete").Inc()
		return fmt.Errorf("delete cache entry: %w", err)
	}
	if s.hot != nil {
		s.hot.del(key)
	}
	s.counters.deletes.Add(1)
	metrics.CacheDeletes.Inc()
	return nil
}

// Clear removes every entry and resets the session counters.
func (s *Store) Clear(ctx context.Context) error {
	b, err := s.conn(ctx)
	if err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.writes.Add(1)
	if err := b.Clear(ctx); err != nil {
		metrics.CacheErrors.WithLabelValues("clear").Inc()
		return fmt.Errorf("clear cache: %w", err)
	}
	if s.hot != nil {
		s.hot.clear()
	}
	s.counters.reset()
	s.log.InfoContext(ctx, "cache cleared")
	return nil
}

// Cleanup deletes every entry whose age exceeds its own TTL and returns
// how many were removed. It is independent of the lazy expiry in Get.
func (s *Store) Cleanup(ctx context.Context) (int, error) {
	b, err := s.conn(ctx)
	if err != nil {
		return 0, err
	}
	now := s.opts.Clock.Now()
	var expired []string
	err = b.Scan(ctx, func(e *Entry) error {
		if !e.Valid(now) {
			expired = append(expired, e.Key)
		}
		return nil
	})
	if err != nil {
		metrics.CacheErrors.WithLabelValues("cleanup").Inc()
		return 0, fmt.Errorf("scan cache: %w", err)
	}

	removed := 0
	for _, key := range expired {
		if err := s.removeExpired(ctx, b, key); err != nil {
			metrics.CacheErrors.WithLabelValues("cleanup").Inc()
			metrics.CacheCleanupRemoved.Add(float64(removed))
			return removed, fmt.Errorf("remove expired entry: %w", err)
		}
		removed++
	}
	metrics.CacheCleanupRemoved.Add(float64(removed))
	if removed > 0 {
		s.log.InfoContext(ctx, "cleaned up expired cache entries", "count", removed)
	}
	return removed, nil
}

func (s *Store) removeExpired(ctx context.Context, b Backend, key string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	// The entry may have been replaced since the scan.
	if e, err := b.Get(ctx, key); err == nil && e.Valid(s.opts.Clock.Now()) {
		return nil
	}
	s.writes.Add(1)
	if err := b.Delete(ctx, key); err != nil {
		return err
	}
	if s.hot != nil {
		s.hot.del(key)
	}
	return nil
}

// Stats aggregates live entries together with the session counters.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	counters := s.counters.Snapshot()
	st := Stats{
		HitRate:  counters.HitRate(),
		MissRate: counters.MissRate(),
		Counters: counters,
	}
	if s.hot != nil {
		hs := s.hot.stats()
		st.HotTier = &hs
	}
	b, err := s.conn(ctx)
	if err != nil {
		return st, err
	}
	now := s.opts.Clock.Now()
	var oldest, newest int64
	err = b.Scan(ctx, func(e *Entry) error {
		if !e.Valid(now) {
			return nil
		}
		st.TotalEntries++
		st.TotalSizeBytes += int64(e.SizeBytes)
		if oldest == 0 || e.Timestamp < oldest {
			oldest = e.Timestamp
		}
		if e.Timestamp > newest {
			newest = e.Timestamp
		}
		return nil
	})
	if err != nil {
		metrics.CacheErrors.WithLabelValues("stats").Inc()
		return st, fmt.Errorf("scan cache: %w", err)
	}
	if st.TotalEntries > 0 {
		st.OldestEntry = time.UnixMilli(oldest).UTC()
		st.NewestEntry = time.UnixMilli(newest).UTC()
	}
	return st, nil
}

// HitRate returns the session hit rate in percent.
func (s *Store) HitRate() float64 {
	return s.counters.Snapshot().HitRate()
}

// Counters returns the session counters.
func (s *Store) Counters() CounterSnapshot {
	return s.counters.Snapshot()
}

// ReportMetrics publishes entry and hit rate gauges.
func (s *Store) ReportMetrics(ctx context.Context) error {
	st, err := s.Stats(ctx)
	if err != nil {
		return err
	}
	metrics.CacheEntries.Set(float64(st.TotalEntries))
	metrics.CacheSizeBytes.Set(float64(st.TotalSizeBytes))
	metrics.CacheHitRate.Set(st.HitRate)
	return nil
}

// Close releases the backend. Further operations fail with ErrClosed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.hot != nil {
		s.hot.close()
	}
	if s.backend == nil {
		return nil
	}
	return s.backend.Close()
}
