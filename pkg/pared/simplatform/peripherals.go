package simplatform

import (
	"sync/atomic"
	"time"
)

// Timer is a real-clock pared.Timer; there is no reason to fake monotonic
// time in tests, only to fake the long cooldown durations (see
// pared.LongCooldown, overridden directly by tests).
type Timer struct{}

func (Timer) Now() time.Time        { return time.Now() }
func (Timer) Sleep(d time.Duration) { time.Sleep(d) }

// Button is a software-controlled pared.Button: Press() sets the debounced
// edge latch the same way a GPIO interrupt would, and Pressed() polls and
// clears it, matching spec.md §5's one exception to the single-threaded
// rule.
type Button struct {
	edge int32
}

// Press sets the edge latch, simulating a debounced press.
func (b *Button) Press() { atomic.StoreInt32(&b.edge, 1) }

func (b *Button) Pressed() bool {
	return atomic.SwapInt32(&b.edge, 0) == 1
}

// LED is a software LED that just remembers its last state, for
// assertions in tests.
type LED struct {
	on int32
}

func (l *LED) Set(on bool) {
	v := int32(0)
	if on {
		v = 1
	}
	atomic.StoreInt32(&l.on, v)
}

func (l *LED) On() bool { return atomic.LoadInt32(&l.on) == 1 }
