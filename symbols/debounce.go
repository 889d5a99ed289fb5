package symbols

import (
	"sync"
	"time"
)

// Debouncer runs the most recently scheduled function once the caller has
// been idle for the configured delay. A zero delay runs it immediately on
// the calling goroutine.
type Debouncer struct {
	mu    sync.Mutex
	delay time.Duration
	timer *time.Timer
}

// NewDebouncer returns a Debouncer with the given idle delay.
func NewDebouncer(delay time.Duration) *Debouncer {
	return &Debouncer{delay: delay}
}

// Schedule replaces any pending call with fn.
func (d *Debouncer) Schedule(fn func()) {
	if d.delay <= 0 {
		fn()
		return
	}
	d.mu.Lock()
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.delay, fn)
	d.mu.Unlock()
}

// Stop cancels the pending call, if any. It reports whether one was
// cancelled before it ran.
func (d *Debouncer) Stop() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer == nil {
		return false
	}
	stopped := d.timer.Stop()
	d.timer = nil
	return stopped
}
