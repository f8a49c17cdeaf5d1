// Package session holds the per-client filter state behind a live view:
// filters, the current page and the latest result, refreshed through the
// cache-aware facade.
package session

import (
	"sync"
	"time"
)

// Debouncer runs only the last of a burst of scheduled calls. It is idle
// until Schedule arms it and pending until the delay elapses or Cancel
// runs.
type Debouncer struct {
	mu    sync.Mutex
	timer *time.Timer
	seq   uint64
}

// Schedule replaces any pending call with fn, to run after delay.
func (d *Debouncer) Schedule(delay time.Duration, fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
	}
	d.seq++
	seq := d.seq
	d.timer = time.AfterFunc(delay, func() {
		d.mu.Lock()
		if d.seq != seq || d.timer == nil {
			d.mu.Unlock()
			return
		}
		d.timer = nil
		d.mu.Unlock()
		fn()
	})
}

// Cancel drops the pending call, reporting whether there was one.
func (d *Debouncer) Cancel() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer == nil {
		return false
	}
	d.timer.Stop()
	d.timer = nil
	d.seq++
	return true
}

// Pending reports whether a call is armed.
func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.timer != nil
}
