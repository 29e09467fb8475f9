// Package trace stores recorded or synthetic pulse timings and replays them as
// a sensor source.
package trace

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"slices"
	"strconv"
	"time"
)

const header = "offset_seconds"

// Trace is an ordered list of switch closures relative to the start of a run.
type Trace struct {
	Pulses []time.Duration
}

// Duration returns the offset of the last pulse.
func (t Trace) Duration() time.Duration {
	if len(t.Pulses) == 0 {
		return 0
	}
	return t.Pulses[len(t.Pulses)-1]
}

// Write encodes the trace as a single-column CSV.
func Write(w io.Writer, t Trace) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{header}); err != nil {
		return err
	}
	for _, p := range t.Pulses {
		if err := cw.Write([]string{strconv.FormatFloat(p.Seconds(), 'f', 6, 64)}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// Read decodes a trace written by Write. Pulses are sorted on read.
func Read(r io.Reader) (Trace, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = 1

	rows, err := cr.ReadAll()
	if err != nil {
		return Trace{}, fmt.Errorf("read trace: %w", err)
	}
	if len(rows) == 0 || rows[0][0] != header {
		return Trace{}, errors.New("read trace: missing offset_seconds header")
	}

	pulses := make([]time.Duration, 0, len(rows)-1)
	for i, row := range rows[1:] {
		s, err := strconv.ParseFloat(row[0], 64)
		if err != nil {
			return Trace{}, fmt.Errorf("read trace line %d: %w", i+2, err)
		}
		if s < 0 {
			return Trace{}, fmt.Errorf("read trace line %d: negative offset %g", i+2, s)
		}
		pulses = append(pulses, time.Duration(s*float64(time.Second)).Round(time.Microsecond))
	}
	slices.Sort(pulses)
	return Trace{Pulses: pulses}, nil
}
