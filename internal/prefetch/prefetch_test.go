package prefetch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/offersplus/backend/internal/cache"
	"github.com/offersplus/backend/internal/h1b"
)

func newStore(t *testing.T) *cache.Store {
	t.Helper()
	s, err := cache.Open(context.Background(), cache.DefaultOptions(), cache.MemoryOpener(cache.NewMemoryBackend()))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func constTarget(name string, calls *atomic.Int32, v any, err error) Target {
	return Target{
		Name:      name,
		Namespace: "filtered_apps",
		Params:    map[string]string{"name": name},
		TTL:       time.Minute,
		Fetch: func(context.Context) (any, error) {
			calls.Add(1)
			return v, err
		},
	}
}

func TestRunFetchesAndCaches(t *testing.T) {
	store := newStore(t)
	var calls atomic.Int32
	p := New(store, []Target{
		constTarget("a", &calls, []int{1}, nil),
		constTarget("b", &calls, []int{2}, nil),
	}, Options{})

	r := p.Run(context.Background())
	assert.Equal(t, Report{Fetched: 2}, r)

	var got []int
	require.True(t, store.Get(context.Background(), "filtered_apps", map[string]string{"name": "b"}, &got))
	assert.Equal(t, []int{2}, got)

	r = p.Run(context.Background())
	assert.Equal(t, Report{Skipped: 2}, r)
	assert.Equal(t, int32(2), calls.Load())
}

func TestRunSwallowsFailures(t *testing.T) {
	store := newStore(t)
	var calls atomic.Int32
	p := New(store, []Target{
		constTarget("broken", &calls, nil, errors.New("remote down")),
		constTarget("ok", &calls, "fine", nil),
		{Name: "panics", Namespace: "x", Params: 1, Fetch: func(context.Context) (any, error) { panic("bad fetcher") }},
	}, Options{Concurrency: 1})

	r := p.Run(context.Background())
	assert.Equal(t, Report{Fetched: 1, Failed: 2}, r)
	assert.True(t, store.Contains(context.Background(), "filtered_apps", map[string]string{"name": "ok"}))
	assert.False(t, store.Contains(context.Background(), "filtered_apps", map[string]string{"name": "broken"}))
	// prefetch lookups do not count as misses
	assert.Equal(t, uint64(0), store.Counters().Misses)
}

func TestStartRunsAfterDelay(t *testing.T) {
	store := newStore(t)
	var calls atomic.Int32
	p := New(store, []Target{constTarget("a", &calls, 1, nil)}, Options{Delay: 20 * time.Millisecond})

	p.Start(context.Background())
	p.Start(context.Background())
	assert.Equal(t, int32(0), calls.Load())
	assert.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	p.Stop()
	assert.Equal(t, int32(1), calls.Load())
}

func TestStopBeforeDelayCancels(t *testing.T) {
	var calls atomic.Int32
	p := New(newStore(t), []Target{constTarget("a", &calls, 1, nil)}, Options{Delay: time.Hour})
	p.Start(context.Background())
	p.Stop()
	p.Stop()
	assert.Equal(t, int32(0), calls.Load())
}

func TestStopCancelsInFlightFetch(t *testing.T) {
	started := make(chan struct{})
	var once sync.Once
	p := New(newStore(t), []Target{{
		Name: "slow", Namespace: "n", Params: 1,
		Fetch: func(ctx context.Context) (any, error) {
			once.Do(func() { close(started) })
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}}, Options{})
	p.Start(context.Background())
	<-started
	done := make(chan struct{})
	go func() { p.Stop(); close(done) }()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not cancel the in-flight fetch")
	}
}

func TestDefaultSpecs(t *testing.T) {
	specs := DefaultSpecs()
	require.Len(t, specs, 7)
	for _, s := range specs {
		assert.Equal(t, h1b.Pagination{PageSize: 20, Page: 1, SortBy: "id", SortOrder: "desc"}, s.Pagination(), s.Name)
	}
	assert.Equal(t, "Google", specs[0].Filters.Filters().Employer)
	assert.Equal(t, 100000.0, *specs[5].Filters.Filters().MinSalary)
	assert.True(t, specs[6].Filters.Filters().IsZero())
}

func TestLoadSpecs(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "targets.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
targets:
  - name: netflix
    filters:
      employer: Netflix
      minSalary: 200000
    pageSize: 50
  - filters:
      status: DENIED
`), 0o600))

	specs, err := LoadSpecs(path)
	require.NoError(t, err)
	require.Len(t, specs, 2)
	assert.Equal(t, "netflix", specs[0].Name)
	assert.Equal(t, 200000.0, *specs[0].Filters.MinSalary)
	assert.Equal(t, 50, specs[0].Pagination().PageSize)
	assert.Equal(t, "target-2", specs[1].Name)
	assert.Equal(t, 1, specs[1].Pagination().Page)

	require.NoError(t, os.WriteFile(path, []byte("targets:\n  - employer: typo\n"), 0o600))
	_, err = LoadSpecs(path)
	assert.Error(t, err)

	_, err = LoadSpecs(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}
