package binding

import (
	"sync"
	"time"
)

// DefaultDebounce delays re-resolution after a configuration change.
const DefaultDebounce = 50 * time.Millisecond

// Debouncer is a single-slot scheduler: at most one run is pending, and
// triggers arriving while it is pending coalesce into it.
type Debouncer struct {
	mu      sync.Mutex
	delay   time.Duration
	timer   *time.Timer
	pending bool
	closed  bool
	fn      func()
}

// NewDebouncer creates a debouncer that calls fn delay after a trigger.
func NewDebouncer(delay time.Duration, fn func()) *Debouncer {
	if delay <= 0 {
		delay = DefaultDebounce
	}
	return &Debouncer{delay: delay, fn: fn}
}

// Trigger schedules a run unless one is already pending. It reports whether
// a new run was scheduled.
func (d *Debouncer) Trigger() bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed || d.pending {
		return false
	}
	d.pending = true
	d.timer = time.AfterFunc(d.delay, d.fire)
	return true
}

// Pending reports whether a run is scheduled.
func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pending
}

// Cancel drops the pending run, if any.
func (d *Debouncer) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopLocked()
}

// Close cancels the pending run and rejects further triggers.
func (d *Debouncer) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	d.stopLocked()
}

func (d *Debouncer) stopLocked() {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.pending = false
}

func (d *Debouncer) fire() {
	d.mu.Lock()
	if d.closed || !d.pending {
		d.mu.Unlock()
		return
	}
	d.pending = false
	d.timer = nil
	d.mu.Unlock()

	d.fn()
}
