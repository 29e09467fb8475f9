package domain

// Trigger decides whether a raw reading is a pulse candidate.
type Trigger interface {
	Observe(r Reading) bool
}

// SwitchTrigger fires when the switch closes. Polls that keep seeing the
// magnet during the same pass do not fire again, however long it dwells;
// bounce after the switch opens is left to the Debouncer.
type SwitchTrigger struct {
	closed bool
}

// NewSwitchTrigger creates a trigger with the switch open.
func NewSwitchTrigger() *SwitchTrigger {
	return &SwitchTrigger{}
}

func (t *SwitchTrigger) Observe(r Reading) bool {
	rising := r.Active && !t.closed
	t.closed = r.Active
	return rising
}

// ThresholdTrigger turns analog readings into rising-edge events.
type ThresholdTrigger struct {
	Margin float64

	baseline float64
	learned  bool
	latched  bool
}

// NewThresholdTrigger creates a trigger that learns its baseline from the
// first reading it sees.
func NewThresholdTrigger(margin float64) *ThresholdTrigger {
	return &ThresholdTrigger{Margin: margin}
}

// NewThresholdTriggerWithBaseline creates a trigger with a fixed baseline.
func NewThresholdTriggerWithBaseline(baseline, margin float64) *ThresholdTrigger {
	return &ThresholdTrigger{Margin: margin, baseline: baseline, learned: true}
}

// Baseline returns the resting level and whether it has been established.
func (t *ThresholdTrigger) Baseline() (float64, bool) {
	return t.baseline, t.learned
}

// Observe returns true only on the reading where the signal first rises above
// baseline+margin. The signal must fall back below the threshold before the
// next rise counts.
func (t *ThresholdTrigger) Observe(r Reading) bool {
	if !t.learned {
		t.baseline = r.Value
		t.learned = true
		return false
	}

	active := r.Value > t.baseline+t.Margin
	if !active {
		t.latched = false
		return false
	}
	if t.latched {
		return false
	}
	t.latched = true
	return true
}
