package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-redis/redis/v8"

	"github.com/offersplus/backend/internal/cache"
	"github.com/offersplus/backend/internal/circuitbreaker"
	"github.com/offersplus/backend/internal/config"
	"github.com/offersplus/backend/internal/db"
	"github.com/offersplus/backend/internal/h1b"
	"github.com/offersplus/backend/internal/httpx"
	"github.com/offersplus/backend/internal/logger"
	"github.com/offersplus/backend/internal/service"
)

// CacheOptions derives store options from cfg. The hot tier is per process,
// so it stays off for the shared redis backend where another instance's
// Clear or Delete could never reach it.
func CacheOptions(cfg *config.Config) cache.Options {
	opts := cache.DefaultOptions()
	opts.Name = cfg.CacheName
	opts.Version = cfg.CacheVersion
	opts.Collection = cfg.CacheCollection
	if cfg.CacheBackend != config.BackendRedis && cfg.CacheHotTierMB > 0 && cfg.CacheHotTierEntries > 0 {
		opts.HotTier = &cache.HotTierOptions{MaxSizeMB: cfg.CacheHotTierMB, MaxEntries: cfg.CacheHotTierEntries}
	}
	return opts
}

// OpenStore opens the cache backend named by cfg.
func OpenStore(ctx context.Context, cfg *config.Config) (*cache.Store, error) {
	var opener cache.Opener
	switch cfg.CacheBackend {
	case config.BackendBolt:
		opener = cache.BoltOpener(cfg.CachePath)
	case config.BackendRedis:
		opener = cache.RedisOpener(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
	case config.BackendMemory:
		opener = cache.MemoryOpener(cache.NewMemoryBackend())
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.CacheBackend)
	}
	store, err := cache.Open(ctx, CacheOptions(cfg), opener)
	if err != nil {
		return nil, fmt.Errorf("open %s cache: %w", cfg.CacheBackend, err)
	}
	return store, nil
}

// OpenSource connects to the H1B source named by cfg and wraps it in a
// circuit breaker. The returned close func is never nil.
func OpenSource(ctx context.Context, cfg *config.Config) (h1b.Source, func() error, error) {
	noop := func() error { return nil }
	var (
		src     h1b.Source
		closeFn = noop
	)
	switch cfg.SourceKind {
	case config.SourcePostgres:
		conn, err := db.Open(ctx, cfg.DatabaseURL, db.Options{
			MaxOpenConns:     10,
			MaxIdleConns:     5,
			StatementTimeout: cfg.DBStatementTimeout,
		})
		if err != nil {
			return nil, noop, err
		}
		pg, err := h1b.NewPostgresSource(conn, cfg.Table)
		if err != nil {
			conn.Close()
			return nil, noop, err
		}
		src, closeFn = pg, conn.Close
	case config.SourceREST:
		client := httpx.New(&http.Client{Timeout: cfg.HTTPTimeout}, httpx.OptionsFromConfig(cfg))
		rest, err := h1b.NewRestSource(client, cfg.RestURL, cfg.RestAPIKey, cfg.Table)
		if err != nil {
			return nil, noop, err
		}
		src = rest
	case config.SourceMemory:
		if cfg.SeedFile == "" {
			src = h1b.NewMemorySource()
			break
		}
		mem, err := h1b.LoadMemorySource(cfg.SeedFile)
		if err != nil {
			return nil, noop, err
		}
		logger.InfoContext(ctx, "loaded seed records", "file", cfg.SeedFile, "records", mem.Len())
		src = mem
	default:
		return nil, noop, fmt.Errorf("unknown h1b source %q", cfg.SourceKind)
	}

	return h1b.NewBreakerSource(src, circuitbreaker.Config{
		Name:             "h1b_" + cfg.SourceKind,
		FailureThreshold: cfg.BreakerFailureThreshold,
		Timeout:          cfg.BreakerTimeout,
	}), closeFn, nil
}

// NewService builds the cache-aware facade with the TTLs and caps in cfg.
func NewService(cfg *config.Config, store *cache.Store, src h1b.Source) *service.Service {
	return service.New(store, src,
		service.WithTTLs(service.TTLs{
			Filtered:   cfg.TTLFiltered,
			Unique:     cfg.TTLUnique,
			Statistics: cfg.TTLStatistics,
			Export:     cfg.TTLExport,
			Prefetch:   cfg.TTLPrefetch,
		}),
		service.WithStatisticsSample(cfg.StatisticsSampleLimit),
		service.WithExportLimit(cfg.ExportLimit),
	)
}
