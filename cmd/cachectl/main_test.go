package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/offersplus/backend/internal/cache"
	"github.com/offersplus/backend/internal/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	seed := filepath.Join(t.TempDir(), "seed.json")
	require.NoError(t, os.WriteFile(seed, []byte(`[
		{"id":1,"case_number":"I-1","case_status":"CERTIFIED","employer_name":"Google LLC","job_title":"Software Engineer","wage_rate_of_pay_from":150000},
		{"id":2,"case_number":"I-2","case_status":"DENIED","employer_name":"Acme","job_title":"Analyst"}
	]`), 0o644))
	return &config.Config{
		CacheBackend: config.BackendBolt,
		CachePath:    filepath.Join(t.TempDir(), "cache.db"),
		SourceKind:   config.SourceMemory,
		SeedFile:     seed,
	}
}

func TestWarmThenStatsThenClear(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)

	var out bytes.Buffer
	require.NoError(t, run(ctx, cfg, []string{"warm"}, &out))
	assert.Contains(t, out.String(), "fetched 7, skipped 0, failed 0")

	out.Reset()
	require.NoError(t, run(ctx, cfg, []string{"stats"}, &out))
	var st cache.Stats
	require.NoError(t, json.Unmarshal(out.Bytes(), &st))
	assert.Equal(t, 7, st.TotalEntries)

	out.Reset()
	require.NoError(t, run(ctx, cfg, []string{"warm"}, &out))
	assert.Contains(t, out.String(), "fetched 0, skipped 7")

	out.Reset()
	require.NoError(t, run(ctx, cfg, []string{"clear"}, &out))
	out.Reset()
	require.NoError(t, run(ctx, cfg, []string{"cleanup"}, &out))
	assert.Equal(t, "removed 0 expired entries\n", out.String())
}

func TestUnknownCommand(t *testing.T) {
	var out bytes.Buffer
	err := run(context.Background(), testConfig(t), []string{"defrag"}, &out)
	assert.ErrorIs(t, err, errUsage)
	assert.Contains(t, out.String(), "usage: cachectl")

	err = run(context.Background(), testConfig(t), nil, &out)
	assert.ErrorIs(t, err, errUsage)
}
