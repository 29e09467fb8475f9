package domain

import (
	"errors"
	"math"
)

// RotationGeometry describes the rotor the pulses come from. Fixed for a run.
type RotationGeometry struct {
	ArmRadius           float64 `yaml:"arm_radius"`   // metres, hub to cup centre
	RadiusRatio         float64 `yaml:"radius_ratio"` // effective radius correction
	PulsesPerRevolution int     `yaml:"pulses_per_revolution"`
}

// Circumference returns the distance travelled by the cup per pulse.
func (g RotationGeometry) Circumference() float64 {
	ppr := g.PulsesPerRevolution
	if ppr < 1 {
		ppr = 1
	}
	return 2 * math.Pi * g.ArmRadius * g.RadiusRatio / float64(ppr)
}

// Validate reports geometry that would produce meaningless speeds.
func (g RotationGeometry) Validate() error {
	if g.ArmRadius <= 0 {
		return errors.New("arm radius must be positive")
	}
	if g.RadiusRatio <= 0 {
		return errors.New("radius ratio must be positive")
	}
	if g.PulsesPerRevolution < 1 {
		return errors.New("pulses per revolution must be at least 1")
	}
	return nil
}
