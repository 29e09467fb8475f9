package domain

import "time"

// DefaultMinPulseInterval is the shortest gap a magnetic switch can physically
// produce on the reference rotor.
const DefaultMinPulseInterval = 150 * time.Millisecond

// Debouncer suppresses pulses that arrive faster than a minimum interval.
type Debouncer struct {
	minInterval time.Duration
	last        time.Time
}

// NewDebouncer creates a Debouncer. A non-positive interval uses the default.
func NewDebouncer(minInterval time.Duration) *Debouncer {
	if minInterval <= 0 {
		minInterval = DefaultMinPulseInterval
	}
	return &Debouncer{minInterval: minInterval}
}

// Accept validates a trigger observed at the given time. The first
// observation is always accepted. Rejected observations leave the
// last-accepted timestamp unchanged.
func (d *Debouncer) Accept(at time.Time) (PulseEvent, bool) {
	if !d.last.IsZero() && at.Sub(d.last) <= d.minInterval {
		return PulseEvent{}, false
	}
	d.last = at
	return PulseEvent{At: at}, true
}

// Last returns the timestamp of the most recently accepted pulse.
func (d *Debouncer) Last() time.Time {
	return d.last
}
