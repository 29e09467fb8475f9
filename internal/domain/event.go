package domain

import (
	"time"
)

// Reading is one raw observation taken from a sensor source.
type Reading struct {
	At     time.Time
	Active bool    // switch sources: magnet present
	Value  float64 // analog sources: raw ADC counts
}

// PulseEvent is a validated rotation pulse.
type PulseEvent struct {
	At time.Time
}

// SpeedSample is the speed derived from two consecutive accepted pulses.
type SpeedSample struct {
	At         time.Time     `json:"timestamp"`
	WheelSpeed float64       `json:"wheel_speed"`
	WindSpeed  float64       `json:"wind_speed"`
	Interval   time.Duration `json:"-"`
	Factor     float64       `json:"conversion_factor"`
	Smoothed   float64       `json:"smoothed_wind_speed"`
}

// IntervalSeconds returns the pulse interval in seconds.
func (s SpeedSample) IntervalSeconds() float64 {
	return s.Interval.Seconds()
}

// CalibrationRecord summarizes one closed wall-clock second.
type CalibrationRecord struct {
	Second              time.Time `json:"timestamp"`
	AverageWindSpeed    float64   `json:"average_wind_speed"`
	DeviationPercent    float64   `json:"deviation"`
	PriorFactor         float64   `json:"prior_conversion_factor"`
	NewConversionFactor float64   `json:"new_conversion_factor"`
	Samples             int       `json:"samples"`
	Final               bool      `json:"final,omitempty"`
}

// RecordKind distinguishes per-pulse from per-second records.
type RecordKind string

const (
	KindPulse  RecordKind = "pulse"
	KindSecond RecordKind = "second"
	KindRaw    RecordKind = "raw"
)

// Record is the unit handed to time-series sinks and to the export.
// Exactly one of Sample, Calibration or Raw is meaningful, selected by Kind.
type Record struct {
	Kind        RecordKind
	Sample      SpeedSample
	Calibration CalibrationRecord
	Raw         Reading
}

// PulseRecord wraps an accepted speed sample.
func PulseRecord(s SpeedSample) Record {
	return Record{Kind: KindPulse, Sample: s}
}

// SecondRecord wraps a calibration record.
func SecondRecord(c CalibrationRecord) Record {
	return Record{Kind: KindSecond, Calibration: c}
}

// RawRecord wraps an analog reading mirrored to the sinks.
func RawRecord(r Reading) Record {
	return Record{Kind: KindRaw, Raw: r}
}

// Time returns the timestamp the record is indexed by.
func (r Record) Time() time.Time {
	switch r.Kind {
	case KindSecond:
		return r.Calibration.Second
	case KindRaw:
		return r.Raw.At
	default:
		return r.Sample.At
	}
}

// RunInfo carries the constants of one calibration run that tag every record.
type RunInfo struct {
	ReferenceSpeed float64
	Location       string
}
