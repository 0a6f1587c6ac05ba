package changefeed

import (
	"sync"
	"time"
)

// Debouncer coalesces bursts per key and runs only the last callback once the
// key has been quiet for the delay.
type Debouncer struct {
	delay time.Duration

	mu      sync.Mutex
	pending map[string]*pendingCall
	stopped bool
}

type pendingCall struct {
	gen   uint64
	timer *time.Timer
	fn    func()
}

// NewDebouncer constructs a trailing-edge debouncer. A non-positive delay runs
// callbacks synchronously.
func NewDebouncer(delay time.Duration) *Debouncer {
	return &Debouncer{delay: delay, pending: make(map[string]*pendingCall)}
}

// Trigger schedules fn for key, replacing any callback still waiting.
func (d *Debouncer) Trigger(key string, fn func()) {
	if fn == nil {
		return
	}
	if d.delay <= 0 {
		d.mu.Lock()
		stopped := d.stopped
		d.mu.Unlock()
		if !stopped {
			fn()
		}
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	call, ok := d.pending[key]
	if !ok {
		call = &pendingCall{}
		d.pending[key] = call
	} else if call.timer != nil {
		call.timer.Stop()
	}
	call.gen++
	call.fn = fn
	gen := call.gen
	call.timer = time.AfterFunc(d.delay, func() { d.fire(key, gen) })
}

func (d *Debouncer) fire(key string, gen uint64) {
	d.mu.Lock()
	call, ok := d.pending[key]
	if !ok || call.gen != gen || d.stopped {
		d.mu.Unlock()
		return
	}
	delete(d.pending, key)
	fn := call.fn
	d.mu.Unlock()
	fn()
}

// Pending returns the number of keys waiting to fire.
func (d *Debouncer) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

// Stop cancels every pending callback. Later triggers are ignored.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	for key, call := range d.pending {
		if call.timer != nil {
			call.timer.Stop()
		}
		delete(d.pending, key)
	}
}
