package server

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/offersplus/backend/internal/config"
	"github.com/offersplus/backend/internal/h1b"
)

func TestCacheOptions(t *testing.T) {
	cfg := &config.Config{CacheName: "c", CacheVersion: 3, CacheCollection: "rows", CacheHotTierMB: 8, CacheHotTierEntries: 100}
	opts := CacheOptions(cfg)
	assert.Equal(t, "c", opts.Name)
	assert.Equal(t, 3, opts.Version)
	assert.Equal(t, "rows", opts.Collection)
	require.NotNil(t, opts.HotTier)
	assert.Equal(t, int64(8), opts.HotTier.MaxSizeMB)

	cfg.CacheHotTierMB = 0
	assert.Nil(t, CacheOptions(cfg).HotTier)
}

func TestCacheOptionsNoHotTierForRedis(t *testing.T) {
	cfg := &config.Config{CacheBackend: config.BackendRedis, CacheHotTierMB: 64, CacheHotTierEntries: 10000}
	assert.Nil(t, CacheOptions(cfg).HotTier)

	cfg.CacheBackend = config.BackendBolt
	assert.NotNil(t, CacheOptions(cfg).HotTier)
}

func TestOpenStoreBackends(t *testing.T) {
	ctx := context.Background()
	for _, backend := range []string{config.BackendMemory, config.BackendBolt} {
		t.Run(backend, func(t *testing.T) {
			cfg := &config.Config{CacheBackend: backend, CachePath: filepath.Join(t.TempDir(), "cache", "h1b.db")}
			store, err := OpenStore(ctx, cfg)
			require.NoError(t, err)
			defer store.Close()
			require.NoError(t, store.Set(ctx, "ns", map[string]int{"a": 1}, "v", 0))
			assert.True(t, store.Contains(ctx, "ns", map[string]int{"a": 1}))
		})
	}

	_, err := OpenStore(ctx, &config.Config{CacheBackend: "floppy"})
	assert.ErrorContains(t, err, "unknown cache backend")
}

func TestOpenMemorySourceFromSeed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seed.json")
	require.NoError(t, os.WriteFile(path, []byte(`[{"id":7,"case_number":"I-7","case_status":"CERTIFIED","employer_name":"Initech","job_title":"Engineer"}]`), 0o644))

	cfg := &config.Config{SourceKind: config.SourceMemory, SeedFile: path, BreakerFailureThreshold: 2}
	src, closeFn, err := OpenSource(context.Background(), cfg)
	require.NoError(t, err)
	defer closeFn()
	_, ok := src.(*h1b.BreakerSource)
	assert.True(t, ok, "sources are wrapped in a breaker")

	page, err := src.QueryPage(context.Background(), h1b.Filters{Employer: "init"}, h1b.Pagination{})
	require.NoError(t, err)
	assert.Equal(t, 1, page.TotalRecords)
}

func TestOpenSourceUnknownKind(t *testing.T) {
	src, closeFn, err := OpenSource(context.Background(), &config.Config{SourceKind: "ftp"})
	assert.Nil(t, src)
	assert.NotNil(t, closeFn)
	assert.ErrorContains(t, err, "unknown h1b source")
}
