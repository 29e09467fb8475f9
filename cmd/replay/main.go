// Command replay runs a recorded or synthetic pulse trace through the full
// calibration pipeline on a simulated clock and reports the per-second
// calibration records. It exits non-zero when the settled deviation exceeds
// -max-deviation.
//
// Usage:
//
//	go run ./cmd/replay \
//	  -trace data/traces/steady_8ms.csv \
//	  -reference 8 -settle 5 -max-deviation 2
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"math"
	"os"
	"time"

	"github.com/couchcryptid/anemometer-calibration/internal/config"
	"github.com/couchcryptid/anemometer-calibration/internal/domain"
	"github.com/couchcryptid/anemometer-calibration/internal/observability"
	"github.com/couchcryptid/anemometer-calibration/internal/pipeline"
	"github.com/couchcryptid/anemometer-calibration/internal/trace"
	"github.com/jonboulle/clockwork"
)

var runStart = time.Date(2024, time.May, 14, 10, 30, 0, 0, time.UTC)

type options struct {
	tracePath    string
	settings     pipeline.Settings
	settle       int
	maxDeviation float64
	logLevel     string
}

// collector keeps every record the loop emits.
type collector struct {
	records []domain.Record
}

func (c *collector) Emit(rec domain.Record) { c.records = append(c.records, rec) }

func main() {
	var o options
	s := &o.settings
	flag.StringVar(&o.tracePath, "trace", "", "pulse trace CSV (from gentrace or a recorded run)")
	flag.Float64Var(&s.Run.ReferenceSpeed, "reference", 0, "reference wind speed in m/s")
	flag.StringVar(&s.Run.Location, "location", "replay", "location tag")
	flag.Float64Var(&s.Geometry.ArmRadius, "arm-radius", 0.03, "arm radius in metres")
	flag.Float64Var(&s.Geometry.RadiusRatio, "radius-ratio", 0.66, "effective radius ratio")
	flag.IntVar(&s.Geometry.PulsesPerRevolution, "pulses-per-rev", 1, "pulses per revolution")
	flag.DurationVar(&s.MinPulseInterval, "min-pulse-interval", domain.DefaultMinPulseInterval, "debounce interval")
	flag.Float64Var(&s.DropTolerance, "drop-tolerance", domain.DefaultDropTolerance, "outlier drop tolerance")
	flag.IntVar(&s.Window, "window", domain.DefaultMovingAverageWindow, "moving average window")
	flag.DurationVar(&s.PollInterval, "poll", 10*time.Millisecond, "simulated poll interval")
	flag.Float64Var(&s.ConversionFactor, "factor", 1, "initial conversion factor")
	flag.BoolVar(&s.Adaptive, "adaptive", true, "apply each new conversion factor")
	flag.IntVar(&o.settle, "settle", 5, "number of trailing seconds used for the verdict")
	flag.Float64Var(&o.maxDeviation, "max-deviation", 2, "allowed mean absolute deviation in percent")
	flag.StringVar(&o.logLevel, "log-level", "warn", "log level")
	flag.Parse()

	if o.tracePath == "" || s.Run.ReferenceSpeed <= 0 {
		flag.Usage()
		os.Exit(1)
	}

	os.Exit(run(o))
}

func run(o options) int {
	f, err := os.Open(o.tracePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: open trace: %v\n", err)
		return 1
	}
	t, err := trace.Read(f)
	f.Close() //nolint:errcheck // read-only
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
		return 1
	}

	records, err := replay(o, t)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: replay: %v\n", err)
		return 1
	}

	seconds := calibrations(records)
	printTable(seconds)

	dev, ok := settledDeviation(seconds, o.settle)
	fmt.Println()
	fmt.Printf("Pulses: %d trace, %d samples, %d calibrated seconds\n", len(t.Pulses), len(records)-len(seconds), len(seconds))
	if !ok {
		fmt.Println("\033[31mFAIL\033[0m no calibrated seconds")
		return 1
	}
	final := seconds[len(seconds)-1]
	fmt.Printf("Final conversion factor: %.6f\n", final.NewConversionFactor)
	fmt.Printf("Mean |deviation| over last %d s: %.3f%%\n", min(o.settle, len(seconds)), dev)
	if dev > o.maxDeviation {
		fmt.Printf("\033[31mFAIL\033[0m exceeds %.3f%%\n", o.maxDeviation)
		return 1
	}
	fmt.Println("\033[32mPASS\033[0m")
	return 0
}

// replay drives the sampling loop with a fake clock until the trace is
// exhausted plus one second, so the last second closes naturally.
func replay(o options, t trace.Trace) ([]domain.Record, error) {
	clock := clockwork.NewFakeClockAt(runStart)
	logger := observability.NewLogger(&config.Config{LogLevel: o.logLevel, LogFormat: "text"})
	out := &collector{}

	p := pipeline.New(o.settings, trace.NewSource(t, clock), domain.NewSwitchTrigger(), out, clock, logger, observability.NewMetrics())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	end := t.Duration() + time.Second
	for clock.Since(runStart) < end {
		if err := waitForPoll(ctx, clock); err != nil {
			return nil, err
		}
		clock.Advance(o.settings.PollInterval)
	}
	if err := waitForPoll(ctx, clock); err != nil {
		return nil, err
	}
	cancel()

	if err := <-done; err != nil {
		return nil, err
	}
	return out.records, nil
}

func waitForPoll(ctx context.Context, clock *clockwork.FakeClock) error {
	waitCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := clock.BlockUntilContext(waitCtx, 1); err != nil {
		return errors.New("sampling loop stalled")
	}
	return nil
}

func calibrations(records []domain.Record) []domain.CalibrationRecord {
	var out []domain.CalibrationRecord
	for _, rec := range records {
		if rec.Kind == domain.KindSecond {
			out = append(out, rec.Calibration)
		}
	}
	return out
}

// settledDeviation averages |deviation| over the trailing n seconds.
func settledDeviation(seconds []domain.CalibrationRecord, n int) (float64, bool) {
	if len(seconds) == 0 {
		return 0, false
	}
	if n < 1 || n > len(seconds) {
		n = len(seconds)
	}
	var sum float64
	for _, c := range seconds[len(seconds)-n:] {
		sum += math.Abs(c.DeviationPercent)
	}
	return sum / float64(n), true
}

func printTable(seconds []domain.CalibrationRecord) {
	fmt.Printf("  %-8s %8s %12s %12s %12s\n", "second", "samples", "avg m/s", "deviation %", "new factor")
	for _, c := range seconds {
		marker := ""
		if c.Final {
			marker = " (final)"
		}
		fmt.Printf("  %-8s %8d %12.4f %12.3f %12.6f%s\n",
			c.Second.Sub(runStart).String(), c.Samples, c.AverageWindSpeed, c.DeviationPercent, c.NewConversionFactor, marker)
	}
}
