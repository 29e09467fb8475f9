package domain

import "time"

// SpeedEstimator converts pulse intervals into wheel and wind speed.
type SpeedEstimator struct {
	circumference float64
}

// NewSpeedEstimator creates an estimator for the given rotor.
func NewSpeedEstimator(g RotationGeometry) SpeedEstimator {
	return SpeedEstimator{circumference: g.Circumference()}
}

// Estimate derives a sample from the previous accepted pulse time and the
// current pulse. A zero previous time yields ErrFirstPulse.
func (e SpeedEstimator) Estimate(previous time.Time, current PulseEvent, factor float64) (SpeedSample, error) {
	if previous.IsZero() {
		return SpeedSample{}, ErrFirstPulse
	}
	interval := current.At.Sub(previous)
	if interval <= 0 {
		return SpeedSample{}, ErrInvalidInterval
	}

	wheel := e.circumference / interval.Seconds()
	return SpeedSample{
		At:         current.At,
		WheelSpeed: wheel,
		WindSpeed:  wheel * factor,
		Interval:   interval,
		Factor:     factor,
	}, nil
}
