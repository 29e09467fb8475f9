// Package export appends a run's records to tabular storage at shutdown.
package export

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/couchcryptid/anemometer-calibration/internal/config"
	"github.com/couchcryptid/anemometer-calibration/internal/domain"
	"github.com/couchcryptid/anemometer-calibration/internal/pipeline"
)

// Columns is the export header, shared by every format.
var Columns = []string{
	"Time",
	"Location",
	"Test Speed",
	"Kind",
	"Wheel Speed",
	"Wind Speed",
	"Time Interval",
	"Average Wind Speed",
	"Deviation",
	"New Conversion Factor",
}

// New returns the exporter selected by EXPORT_FORMAT.
func New(cfg *config.Config) (pipeline.Exporter, error) {
	switch cfg.ExportFormat {
	case config.ExportCSV:
		return NewCSV(cfg.ExportPath, cfg.Run()), nil
	case config.ExportSQLite:
		return NewSQLite(cfg.ExportPath, cfg.Run()), nil
	case config.ExportNone:
		return Discard{}, nil
	default:
		return nil, fmt.Errorf("unknown export format %q", cfg.ExportFormat)
	}
}

// Discard drops every record.
type Discard struct{}

// Export does nothing.
func (Discard) Export(context.Context, []domain.Record) error { return nil }

// row holds one record flattened to export columns. Cells that do not apply
// to the record kind are nil.
type row struct {
	time      time.Time
	location  string
	testSpeed float64
	kind      domain.RecordKind
	values    [6]*float64 // wheel, wind, interval, average, deviation, factor
}

func toRow(run domain.RunInfo, rec domain.Record) row {
	r := row{time: rec.Time(), location: run.Location, testSpeed: run.ReferenceSpeed, kind: rec.Kind}
	if rec.Kind == domain.KindSecond {
		c := rec.Calibration
		r.values[3] = &c.AverageWindSpeed
		r.values[4] = &c.DeviationPercent
		r.values[5] = &c.NewConversionFactor
		return r
	}
	s := rec.Sample
	interval := s.IntervalSeconds()
	r.values[0] = &s.WheelSpeed
	r.values[1] = &s.WindSpeed
	r.values[2] = &interval
	return r
}

func (r row) strings() []string {
	out := []string{
		r.time.Format(time.RFC3339Nano),
		r.location,
		formatFloat(r.testSpeed),
		string(r.kind),
	}
	for _, v := range r.values {
		if v == nil {
			out = append(out, "")
			continue
		}
		out = append(out, formatFloat(*v))
	}
	return out
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
