// Package debounce coalesces bursts of writes into a single delayed call.
package debounce

import (
	"sync"
	"time"
)

// Debouncer delays fn until Schedule has not been called for the configured
// delay, then calls it once with the most recent value. Calls to fn never
// overlap and run in schedule order.
type Debouncer[T any] struct {
	fn func(T)

	// run serializes fn; held across the call.
	run sync.Mutex

	mu      sync.Mutex
	delay   time.Duration
	timer   *time.Timer
	value   T
	pending bool
	gen     uint64
	stopped bool
}

func New[T any](delay time.Duration, fn func(T)) *Debouncer[T] {
	if delay < 0 {
		delay = 0
	}
	return &Debouncer[T]{delay: delay, fn: fn}
}

// Schedule replaces the pending value with v and restarts the timer.
// It is a no-op after Stop.
func (d *Debouncer[T]) Schedule(v T) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	d.value = v
	d.pending = true
	d.gen++
	gen := d.gen
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.delay, func() { d.fire(gen) })
}

func (d *Debouncer[T]) fire(gen uint64) {
	d.run.Lock()
	defer d.run.Unlock()

	v, ok := d.take(gen)
	if ok {
		d.fn(v)
	}
}

// take pops the pending value. gen == 0 takes whatever is pending.
func (d *Debouncer[T]) take(gen uint64) (T, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var zero T
	if !d.pending || (gen != 0 && gen != d.gen) {
		return zero, false
	}
	v := d.value
	d.value = zero
	d.pending = false
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	return v, true
}

// Flush runs fn immediately with the pending value, if any, and reports
// whether it did.
func (d *Debouncer[T]) Flush() bool {
	d.run.Lock()
	defer d.run.Unlock()

	v, ok := d.take(0)
	if ok {
		d.fn(v)
	}
	return ok
}

// Cancel drops the pending value without calling fn.
func (d *Debouncer[T]) Cancel() bool {
	_, ok := d.take(0)
	return ok
}

func (d *Debouncer[T]) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pending
}

// SetDelay changes the delay used by later Schedule calls.
func (d *Debouncer[T]) SetDelay(delay time.Duration) {
	if delay < 0 {
		delay = 0
	}
	d.mu.Lock()
	d.delay = delay
	d.mu.Unlock()
}

func (d *Debouncer[T]) Delay() time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.delay
}

// Stop flushes the pending value and rejects further schedules.
func (d *Debouncer[T]) Stop() {
	d.mu.Lock()
	d.stopped = true
	d.mu.Unlock()
	d.Flush()
}
