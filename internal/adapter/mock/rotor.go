// Package mock simulates a rotating anemometer for bench runs without hardware.
package mock

import (
	"context"
	"fmt"
	"time"

	"github.com/couchcryptid/anemometer-calibration/internal/domain"
	"github.com/jonboulle/clockwork"
)

// Analog levels reported alongside the switch state, so the rotor also
// exercises threshold detection.
const (
	RestLevel   = 512
	MagnetLevel = 700
)

// Defaults for contact bounce: a second closure bounceDelay after each pass.
const (
	minDwell    = 20 * time.Millisecond
	bounceDelay = 40 * time.Millisecond
	bounceDwell = 10 * time.Millisecond
)

// Config describes the simulated rotor.
type Config struct {
	WindSpeed float64 // rim speed in m/s
	Geometry  domain.RotationGeometry
	Bounce    bool
}

// Rotor reports a magnet pass every time the rotor covers one pulse arc.
// The state is a pure function of the clock, so a fake clock gives an exact,
// repeatable pulse train.
type Rotor struct {
	clock  clockwork.Clock
	start  time.Time
	period time.Duration
	dwell  time.Duration
	bounce bool
}

// NewRotor creates a rotor whose first magnet pass is at the current clock time.
func NewRotor(cfg Config, clock clockwork.Clock) (*Rotor, error) {
	if cfg.WindSpeed <= 0 {
		return nil, fmt.Errorf("mock wind speed must be positive, got %g", cfg.WindSpeed)
	}
	if err := cfg.Geometry.Validate(); err != nil {
		return nil, err
	}

	period := time.Duration(cfg.Geometry.Circumference() / cfg.WindSpeed * float64(time.Second))
	dwell := period / 10
	if dwell < minDwell {
		dwell = minDwell
	}
	if dwell >= period {
		return nil, fmt.Errorf("mock wind speed %g m/s too fast to simulate", cfg.WindSpeed)
	}

	return &Rotor{
		clock:  clock,
		start:  clock.Now(),
		period: period,
		dwell:  dwell,
		bounce: cfg.Bounce && bounceDelay+bounceDwell < period,
	}, nil
}

// Period returns the time between magnet passes.
func (r *Rotor) Period() time.Duration { return r.period }

// Read reports whether the magnet is over the sensor right now.
func (r *Rotor) Read(_ context.Context) (domain.Reading, bool, error) {
	now := r.clock.Now()
	if r.magnetAt(now) {
		return domain.Reading{At: now, Active: true, Value: MagnetLevel}, true, nil
	}
	return domain.Reading{At: now, Value: RestLevel}, true, nil
}

// Close is a no-op.
func (r *Rotor) Close() error { return nil }

func (r *Rotor) magnetAt(now time.Time) bool {
	elapsed := now.Sub(r.start)
	if elapsed < 0 {
		return false
	}
	phase := elapsed % r.period
	if phase < r.dwell {
		return true
	}
	return r.bounce && phase >= bounceDelay && phase < bounceDelay+bounceDwell
}
