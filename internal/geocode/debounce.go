package geocode

import (
	"sync"
	"time"
)

// DefaultDebounce is how long the search bar waits after the last
// keystroke before firing a query.
const DefaultDebounce = 350 * time.Millisecond

type timer interface {
	Stop() bool
}

// Debouncer coalesces rapid Trigger calls so only the last one fires
// after the quiet period.
type Debouncer struct {
	mu      sync.Mutex
	delay   time.Duration
	pending timer

	after func(time.Duration, func()) timer // test seam
}

func NewDebouncer(delay time.Duration) *Debouncer {
	if delay <= 0 {
		delay = DefaultDebounce
	}
	return &Debouncer{
		delay: delay,
		after: func(d time.Duration, fn func()) timer {
			return time.AfterFunc(d, fn)
		},
	}
}

// Trigger schedules fn, replacing any not-yet-fired call.
func (d *Debouncer) Trigger(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.pending != nil {
		d.pending.Stop()
	}
	d.pending = d.after(d.delay, fn)
}

// Cancel drops the pending call, if any.
func (d *Debouncer) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.pending != nil {
		d.pending.Stop()
		d.pending = nil
	}
}
