package cache

import (
	"testing"
	"time"
)

func newTestHotTier(t *testing.T, clock Clock) *hotTier {
	t.Helper()
	h, err := newHotTier(HotTierOptions{MaxSizeMB: 10, MaxEntries: 100}, clock)
	if err != nil {
		t.Fatalf("Failed to create hot tier: %v", err)
	}
	t.Cleanup(h.close)
	return h
}

func hotEntry(key string, clock Clock, ttl time.Duration) *Entry {
	return &Entry{
		Key:       key,
		Data:      `"payload"`,
		Timestamp: clock.Now().UnixMilli(),
		TTL:       ttl.Milliseconds(),
	}
}

func TestHotTier_SetAndGet(t *testing.T) {
	clock := newFakeClock()
	h := newTestHotTier(t, clock)

	h.set(hotEntry("test-key", clock, time.Minute))

	got, found := h.get("test-key")
	if !found {
		t.Fatal("Expected to find cached entry")
	}
	if got.Data != `"payload"` {
		t.Errorf("Expected payload, got %s", got.Data)
	}
}

func TestHotTier_GetNonExistent(t *testing.T) {
	h := newTestHotTier(t, newFakeClock())

	if _, found := h.get("nonexistent"); found {
		t.Error("Expected not to find nonexistent key")
	}
}

func TestHotTier_Expiration(t *testing.T) {
	clock := newFakeClock()
	h := newTestHotTier(t, clock)

	h.set(hotEntry("expiring-key", clock, 100*time.Millisecond))
	if _, found := h.get("expiring-key"); !found {
		t.Error("Expected to find entry immediately after set")
	}

	clock.Advance(150 * time.Millisecond)
	if _, found := h.get("expiring-key"); found {
		t.Error("Expected entry to be expired")
	}
}

func TestHotTier_DeleteAndClear(t *testing.T) {
	clock := newFakeClock()
	h := newTestHotTier(t, clock)

	h.set(hotEntry("key1", clock, time.Minute))
	h.set(hotEntry("key2", clock, time.Minute))

	h.del("key1")
	if _, found := h.get("key1"); found {
		t.Error("Expected key1 to be deleted")
	}

	h.clear()
	if _, found := h.get("key2"); found {
		t.Error("Expected key2 to be cleared")
	}
}

func TestHotTier_Stats(t *testing.T) {
	clock := newFakeClock()
	h := newTestHotTier(t, clock)

	h.set(hotEntry("key1", clock, time.Minute))
	h.get("key1")
	h.get("missing")

	// ristretto counters are approximate; only check they are readable.
	_ = h.stats()
}
