package engine

import (
	"sync"
	"time"

	"github.com/roach88/projector/internal/clock"
)

// DefaultRestoreDebounce is the window in which restore requests coalesce.
const DefaultRestoreDebounce = 500 * time.Millisecond

// Debouncer runs at most one scheduled func at a time. Scheduling again
// cancels the pending func; the newest request wins.
type Debouncer struct {
	clk   clock.Clock
	delay time.Duration

	mu    sync.Mutex
	timer clock.Timer
	gen   uint64
}

// NewDebouncer returns a debouncer firing delay after the last Schedule.
// A non-positive delay selects DefaultRestoreDebounce.
func NewDebouncer(clk clock.Clock, delay time.Duration) *Debouncer {
	if delay <= 0 {
		delay = DefaultRestoreDebounce
	}
	return &Debouncer{clk: clk, delay: delay}
}

// Schedule arms fn, replacing any pending func. Reports whether a pending
// func was superseded.
func (d *Debouncer) Schedule(fn func()) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	superseded := d.stopLocked()
	d.gen++
	gen := d.gen
	d.timer = d.clk.AfterFunc(d.delay, func() {
		d.mu.Lock()
		if gen != d.gen {
			// Superseded after the timer already started firing.
			d.mu.Unlock()
			return
		}
		d.timer = nil
		d.mu.Unlock()
		fn()
	})
	return superseded
}

// Cancel drops the pending func. Reports whether one was pending.
func (d *Debouncer) Cancel() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer == nil {
		return false
	}
	d.gen++
	return d.stopLocked()
}

// Pending reports whether a func is armed.
func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.timer != nil
}

func (d *Debouncer) stopLocked() bool {
	if d.timer == nil {
		return false
	}
	d.timer.Stop()
	d.timer = nil
	return true
}
