package cache

import (
	"github.com/dgraph-io/ristretto"
)

// HotTierOptions sizes the in-process tier kept in front of the backend.
type HotTierOptions struct {
	MaxSizeMB  int64
	MaxEntries int64
}

// hotTier is a size-bounded LRU of recently read or written entries, backed
// by ristretto. It only ever holds entries that are also in the backend, so
// dropping any item is always safe.
type hotTier struct {
	cache *ristretto.Cache
	clock Clock
}

// HotTierStats reports ristretto counters for the hot tier.
type HotTierStats struct {
	Hits      uint64 `json:"hits"`
	Misses    uint64 `json:"misses"`
	KeysAdded uint64 `json:"keysAdded"`
	Evictions uint64 `json:"evictions"`
	SizeBytes int64  `json:"sizeBytes"`
}

func newHotTier(opts HotTierOptions, clock Clock) (*hotTier, error) {
	// NumCounters should be ~10x the number of entries for optimal performance
	numCounters := opts.MaxEntries * 10
	if numCounters < 1000 {
		numCounters = 1000
	}
	c, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: numCounters,
		MaxCost:     opts.MaxSizeMB * 1024 * 1024,
		BufferItems: 64,
		Metrics:     true,
	})
	if err != nil {
		return nil, err
	}
	return &hotTier{cache: c, clock: clock}, nil
}

func (h *hotTier) get(key string) (*Entry, bool) {
	val, found := h.cache.Get(key)
	if !found {
		return nil, false
	}
	e, ok := val.(*Entry)
	if !ok {
		h.cache.Del(key)
		return nil, false
	}
	if !e.Valid(h.clock.Now()) {
		h.cache.Del(key)
		return nil, false
	}
	return e, true
}

func (h *hotTier) set(e *Entry) {
	// Cost is the stored payload size; a rejected Set just means a backend read later.
	_ = h.cache.Set(e.Key, e, int64(len(e.Data)+len(e.Key)))
	h.cache.Wait()
}

func (h *hotTier) del(key string) { h.cache.Del(key) }

func (h *hotTier) clear() { h.cache.Clear() }

func (h *hotTier) stats() HotTierStats {
	m := h.cache.Metrics
	return HotTierStats{
		Hits:      m.Hits(),
		Misses:    m.Misses(),
		KeysAdded: m.KeysAdded(),
		Evictions: m.KeysEvicted(),
		SizeBytes: int64(m.CostAdded() - m.CostEvicted()),
	}
}

func (h *hotTier) close() { h.cache.Close() }
