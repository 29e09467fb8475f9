// Package wire defines the payload shape shared by the time-series sinks.
package wire

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/couchcryptid/anemometer-calibration/internal/domain"
)

// Influx measurement names, kept from the bench scripts' schema.
const (
	MeasurementPulse  = "sensor_data"
	MeasurementSecond = "wind"
	MeasurementRaw    = "wind_raw"
)

// Payload is the JSON document published by the message-bus sinks.
type Payload struct {
	Kind      domain.RecordKind  `json:"kind"`
	Location  string             `json:"location"`
	TestSpeed float64            `json:"test_speed"`
	Timestamp time.Time          `json:"timestamp"`
	Fields    map[string]float64 `json:"fields"`
}

// Measurement returns the influx measurement for a record kind.
func Measurement(kind domain.RecordKind) string {
	switch kind {
	case domain.KindSecond:
		return MeasurementSecond
	case domain.KindRaw:
		return MeasurementRaw
	default:
		return MeasurementPulse
	}
}

// Tags returns the per-run tags attached to every point.
func Tags(run domain.RunInfo) map[string]string {
	return map[string]string{
		"location":   run.Location,
		"test_speed": fmt.Sprintf("%g", run.ReferenceSpeed),
	}
}

// Fields flattens a record into named numeric fields.
func Fields(rec domain.Record) map[string]float64 {
	if rec.Kind == domain.KindRaw {
		return map[string]float64{"value": rec.Raw.Value}
	}
	if rec.Kind == domain.KindSecond {
		c := rec.Calibration
		return map[string]float64{
			"average_wind_speed":    c.AverageWindSpeed,
			"deviation":             c.DeviationPercent,
			"new_conversion_factor": c.NewConversionFactor,
		}
	}
	s := rec.Sample
	return map[string]float64{
		"wheel_speed":   s.WheelSpeed,
		"wind_speed":    s.WindSpeed,
		"time_interval": s.IntervalSeconds(),
	}
}

// Encode builds the JSON payload for rec.
func Encode(run domain.RunInfo, rec domain.Record) ([]byte, error) {
	data, err := json.Marshal(Payload{
		Kind:      rec.Kind,
		Location:  run.Location,
		TestSpeed: run.ReferenceSpeed,
		Timestamp: rec.Time(),
		Fields:    Fields(rec),
	})
	if err != nil {
		return nil, fmt.Errorf("serialize %s record: %w", rec.Kind, err)
	}
	return data, nil
}
