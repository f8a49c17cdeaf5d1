package cache

import (
	"sync/atomic"
	"time"
)

// Counters holds the session accounting for a Store. All methods are safe
// for concurrent use and never block cache operations.
type Counters struct {
	hits    atomic.Uint64
	misses  atomic.Uint64
	sets    atomic.Uint64
	deletes atomic.Uint64
}

// CounterSnapshot is a point-in-time copy of Counters.
type CounterSnapshot struct {
	Hits    uint64 `json:"hits"`
	Misses  uint64 `json:"misses"`
	Sets    uint64 `json:"sets"`
	Deletes uint64 `json:"deletes"`
}

func (c *Counters) Snapshot() CounterSnapshot {
	return CounterSnapshot{
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
		Sets:    c.sets.Load(),
		Deletes: c.deletes.Load(),
	}
}

func (c *Counters) reset() {
	c.hits.Store(0)
	c.misses.Store(0)
	c.sets.Store(0)
	c.deletes.Store(0)
}

// HitRate returns hits / (hits + misses) * 100, or 0 before any lookup.
func (s CounterSnapshot) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total) * 100
}

// MissRate returns misses / (hits + misses) * 100, or 0 before any lookup.
func (s CounterSnapshot) MissRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Misses) / float64(total) * 100
}

// Stats summarizes live entries and session counters.
type Stats struct {
	TotalEntries   int             `json:"totalEntries"`
	TotalSizeBytes int64           `json:"totalSize"`
	HitRate        float64         `json:"hitRate"`
	MissRate       float64         `json:"missRate"`
	OldestEntry    time.Time       `json:"oldestEntry"`
	NewestEntry    time.Time       `json:"newestEntry"`
	Counters       CounterSnapshot `json:"counters"`
	HotTier        *HotTierStats   `json:"hotTier,omitempty"`
}
