package domain

import (
	"time"

	"github.com/jonboulle/clockwork"
)

// clock is the package time source. Comparisons resolve "now" through it so
// tests can freeze time with SetClock.
var clock = clockwork.NewRealClock()

// SetClock swaps the package time source. Pass nil to restore the real clock.
func SetClock(c clockwork.Clock) {
	if c == nil {
		clock = clockwork.NewRealClock()
		return
	}
	clock = c
}

// Now returns the current instant from the package clock, in UTC.
func Now() time.Time {
	return clock.Now().UTC()
}
