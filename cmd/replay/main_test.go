package main

import (
	"math"
	"testing"
	"time"

	"github.com/couchcryptid/anemometer-calibration/internal/domain"
	"github.com/couchcryptid/anemometer-calibration/internal/pipeline"
	"github.com/couchcryptid/anemometer-calibration/internal/trace"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func steadyTrace(interval, length time.Duration) trace.Trace {
	var t trace.Trace
	for d := time.Duration(0); d <= length; d += interval {
		t.Pulses = append(t.Pulses, d)
	}
	return t
}

func replayOptions(reference float64) options {
	return options{
		settings: pipeline.Settings{
			Run:              domain.RunInfo{ReferenceSpeed: reference, Location: "replay"},
			Geometry:         domain.RotationGeometry{ArmRadius: 0.03, RadiusRatio: 1, PulsesPerRevolution: 1},
			MinPulseInterval: domain.DefaultMinPulseInterval,
			DropTolerance:    domain.DefaultDropTolerance,
			Window:           domain.DefaultMovingAverageWindow,
			PollInterval:     10 * time.Millisecond,
			ConversionFactor: 1,
			Adaptive:         true,
		},
		settle:   3,
		logLevel: "error",
	}
}

func TestReplay_ConvergesOnReference(t *testing.T) {
	wheel := 2 * math.Pi * 0.03 / 0.2
	o := replayOptions(2 * wheel)

	records, err := replay(o, steadyTrace(200*time.Millisecond, 20*time.Second))
	require.NoError(t, err)

	seconds := calibrations(records)
	require.Len(t, seconds, 21)

	assert.InDelta(t, -50.0, seconds[0].DeviationPercent, 1e-6, "first second reads half the reference")
	assert.InDelta(t, 2.0, seconds[0].NewConversionFactor, 1e-6)

	dev, ok := settledDeviation(seconds, o.settle)
	require.True(t, ok)
	assert.Less(t, dev, 1.0, "smoothing lag settles within twenty seconds")
	assert.InDelta(t, 2.0, seconds[len(seconds)-1].NewConversionFactor, 0.01)
}

func TestSettledDeviation(t *testing.T) {
	_, ok := settledDeviation(nil, 3)
	assert.False(t, ok)

	seconds := []domain.CalibrationRecord{{DeviationPercent: 50}, {DeviationPercent: -2}, {DeviationPercent: 4}}
	dev, ok := settledDeviation(seconds, 2)
	require.True(t, ok)
	assert.Equal(t, 3.0, dev)

	dev, _ = settledDeviation(seconds, 10)
	assert.InDelta(t, 56.0/3, dev, 1e-12)
}
