package preview

import (
	"sync"
	"time"

	"github.com/bep/debounce"
)

// DefaultDebounce is the quiet period after the last window resize before a
// re-render.
const DefaultDebounce = 120 * time.Millisecond

// Debouncer calls fn once after Trigger has not been called for delay. Once
// stopped it never calls fn again.
type Debouncer struct {
	debounced func(func())
	fn        func()

	mu      sync.Mutex
	pending bool
	stopped bool
}

// NewDebouncer returns a Debouncer for fn. A non-positive delay uses
// DefaultDebounce.
func NewDebouncer(delay time.Duration, fn func()) *Debouncer {
	if delay <= 0 {
		delay = DefaultDebounce
	}
	return &Debouncer{debounced: debounce.New(delay), fn: fn}
}

// Trigger (re)starts the quiet period.
func (d *Debouncer) Trigger() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.pending = true
	d.mu.Unlock()

	d.debounced(d.fire)
}

// Stop cancels a pending call and disables the Debouncer. It reports whether
// a call was pending.
func (d *Debouncer) Stop() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	pending := d.pending
	d.pending = false
	d.stopped = true
	return pending
}

// fire runs when the library's timer expires. The timer itself cannot be
// cancelled, so a stopped Debouncer drops the call here.
func (d *Debouncer) fire() {
	d.mu.Lock()
	run := d.pending && !d.stopped
	d.pending = false
	d.mu.Unlock()

	if run {
		d.fn()
	}
}
