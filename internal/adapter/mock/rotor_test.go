package mock

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/couchcryptid/anemometer-calibration/internal/domain"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var geometry = domain.RotationGeometry{ArmRadius: 0.03, RadiusRatio: 1, PulsesPerRevolution: 1}

// edges counts rising edges of the switch level over d, polling every step.
func edges(t *testing.T, r *Rotor, clock *clockwork.FakeClock, d, step time.Duration) int {
	t.Helper()
	n := 0
	prev := false
	for elapsed := time.Duration(0); elapsed < d; elapsed += step {
		reading, ok, err := r.Read(context.Background())
		require.NoError(t, err)
		require.True(t, ok)
		if reading.Active && !prev {
			n++
		}
		prev = reading.Active
		clock.Advance(step)
	}
	return n
}

func TestRotor_Period(t *testing.T) {
	clock := clockwork.NewFakeClock()
	r, err := NewRotor(Config{WindSpeed: 2 * math.Pi * 0.03 / 0.2, Geometry: geometry}, clock)
	require.NoError(t, err)
	assert.InDelta(t, float64(200*time.Millisecond), float64(r.Period()), float64(time.Microsecond))
}

func TestRotor_PulseTrain(t *testing.T) {
	clock := clockwork.NewFakeClock()
	r, err := NewRotor(Config{WindSpeed: 2 * math.Pi * 0.03 / 0.25, Geometry: geometry}, clock)
	require.NoError(t, err)

	assert.Equal(t, 4, edges(t, r, clock, time.Second, time.Millisecond))
}

func TestRotor_BounceAddsEdges(t *testing.T) {
	clock := clockwork.NewFakeClock()
	r, err := NewRotor(Config{WindSpeed: 2 * math.Pi * 0.03 / 0.25, Geometry: geometry, Bounce: true}, clock)
	require.NoError(t, err)

	assert.Equal(t, 8, edges(t, r, clock, time.Second, time.Millisecond))
}

func TestRotor_AnalogLevels(t *testing.T) {
	clock := clockwork.NewFakeClock()
	r, err := NewRotor(Config{WindSpeed: 1, Geometry: geometry}, clock)
	require.NoError(t, err)

	reading, _, _ := r.Read(context.Background())
	assert.Equal(t, float64(MagnetLevel), reading.Value)

	clock.Advance(r.Period() / 2)
	reading, _, _ = r.Read(context.Background())
	assert.False(t, reading.Active)
	assert.Equal(t, float64(RestLevel), reading.Value)
	assert.NoError(t, r.Close())
}

func TestNewRotor_Invalid(t *testing.T) {
	clock := clockwork.NewFakeClock()
	_, err := NewRotor(Config{WindSpeed: 0, Geometry: geometry}, clock)
	require.Error(t, err)

	_, err = NewRotor(Config{WindSpeed: 1000, Geometry: geometry}, clock)
	require.Error(t, err)

	_, err = NewRotor(Config{WindSpeed: 5}, clock)
	require.Error(t, err)
}
