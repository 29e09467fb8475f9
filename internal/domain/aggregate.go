package domain

import "time"

// Bucket holds the smoothed wind speeds observed during one wall-clock second.
type Bucket struct {
	Second time.Time
	Sum    float64
	Count  int
}

// Mean returns the average of the bucket. Callers check Count first.
func (b Bucket) Mean() float64 {
	if b.Count == 0 {
		return 0
	}
	return b.Sum / float64(b.Count)
}

// SecondAggregator buckets samples by wall-clock second. Seconds are compared
// on the truncated timestamp, not on the seconds-of-minute field, so a gap of
// exactly one minute still closes the bucket. It only moves forward: a sample
// stamped before the open second is counted in the open second, and a closed
// second is never reopened.
type SecondAggregator struct {
	open   Bucket
	active bool
}

// NewSecondAggregator creates an aggregator with no open second.
func NewSecondAggregator() *SecondAggregator {
	return &SecondAggregator{}
}

// Advance moves the aggregator to the second containing now. When that closes
// a non-empty bucket, the closed bucket is returned with ok=true. Empty
// seconds close silently.
func (a *SecondAggregator) Advance(now time.Time) (closed Bucket, ok bool) {
	second := now.Truncate(time.Second)
	if a.active && !second.After(a.open.Second) {
		return Bucket{}, false
	}

	closed = a.open
	ok = a.active && closed.Count > 0

	a.open = Bucket{Second: second}
	a.active = true
	return closed, ok
}

// Add records a smoothed wind speed in the second containing now (or the open
// second, if now is older), advancing first if needed. Any bucket closed by that advance is returned.
func (a *SecondAggregator) Add(now time.Time, windSpeed float64) (closed Bucket, ok bool) {
	closed, ok = a.Advance(now)
	a.open.Sum += windSpeed
	a.open.Count++
	return closed, ok
}

// Flush force-closes the open second. It returns ok=false when the bucket is empty.
func (a *SecondAggregator) Flush() (Bucket, bool) {
	closed := a.open
	ok := a.active && closed.Count > 0
	a.open = Bucket{Second: closed.Second}
	return closed, ok
}

// Open returns a copy of the bucket currently being collected.
func (a *SecondAggregator) Open() Bucket {
	return a.open
}
