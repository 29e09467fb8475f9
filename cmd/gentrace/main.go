// Command gentrace writes a synthetic pulse trace for a rotor turning in a
// steady or gusting wind. The output feeds cmd/replay and the pipeline tests.
//
// Usage:
//
//	go run ./cmd/gentrace \
//	  -speed 8 -duration 60s -gust 0.2 -bounce 0.05 \
//	  -out data/traces/steady_8ms.csv
package main

import (
	"flag"
	"fmt"
	"log"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"time"

	"github.com/couchcryptid/anemometer-calibration/internal/domain"
	"github.com/couchcryptid/anemometer-calibration/internal/trace"
)

// bounceDelay is how long after a closure a bouncing reed contact re-closes.
const bounceDelay = 30 * time.Millisecond

type options struct {
	speed       float64
	duration    time.Duration
	gust        float64
	gustPeriod  time.Duration
	jitter      time.Duration
	bounce      float64
	seed        uint64
	geometry    domain.RotationGeometry
	slipPercent float64
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	var o options
	flag.Float64Var(&o.speed, "speed", 8, "mean wind speed in m/s")
	flag.DurationVar(&o.duration, "duration", time.Minute, "trace length")
	flag.Float64Var(&o.gust, "gust", 0, "gust amplitude as a fraction of -speed")
	flag.DurationVar(&o.gustPeriod, "gust-period", 7*time.Second, "gust cycle length")
	flag.DurationVar(&o.jitter, "jitter", 0, "standard deviation of per-pulse timing noise")
	flag.Float64Var(&o.bounce, "bounce", 0, "probability that a closure bounces")
	flag.Float64Var(&o.slipPercent, "slip", 0, "percentage the rotor rim lags the wind")
	flag.Uint64Var(&o.seed, "seed", 1, "random seed")
	flag.Float64Var(&o.geometry.ArmRadius, "arm-radius", 0.03, "arm radius in metres")
	flag.Float64Var(&o.geometry.RadiusRatio, "radius-ratio", 0.66, "effective radius ratio")
	flag.IntVar(&o.geometry.PulsesPerRevolution, "pulses-per-rev", 1, "pulses per revolution")
	out := flag.String("out", "", "output CSV path")
	flag.Parse()

	if *out == "" {
		flag.Usage()
		return fmt.Errorf("missing required flag: -out")
	}
	if o.speed <= 0 || o.duration <= 0 {
		return fmt.Errorf("-speed and -duration must be positive")
	}
	if err := o.geometry.Validate(); err != nil {
		return err
	}

	t := generate(o)
	if err := writeTrace(*out, t); err != nil {
		return fmt.Errorf("writing trace: %w", err)
	}

	log.Printf("wrote %d pulses over %s to %s", len(t.Pulses), t.Duration().Round(time.Millisecond), *out)
	return nil
}

// generate walks the rotor forward one pulse arc at a time at the
// instantaneous rim speed.
func generate(o options) trace.Trace {
	rng := rand.New(rand.NewPCG(o.seed, o.seed^0x9e3779b97f4a7c15))
	arc := o.geometry.Circumference()
	slip := 1 - o.slipPercent/100

	var pulses []time.Duration
	var elapsed time.Duration
	for elapsed <= o.duration {
		pulses = append(pulses, elapsed)
		if o.bounce > 0 && rng.Float64() < o.bounce {
			pulses = append(pulses, elapsed+bounceDelay)
		}

		speed := o.speed * slip
		if o.gust > 0 {
			phase := 2 * math.Pi * elapsed.Seconds() / o.gustPeriod.Seconds()
			speed *= 1 + o.gust*math.Sin(phase)
		}
		step := time.Duration(arc / speed * float64(time.Second))
		if o.jitter > 0 {
			step += time.Duration(rng.NormFloat64() * float64(o.jitter))
		}
		if step < time.Millisecond {
			step = time.Millisecond
		}
		elapsed += step
	}
	return trace.Trace{Pulses: pulses}
}

func writeTrace(path string, t trace.Trace) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := trace.Write(f, t); err != nil {
		f.Close() //nolint:errcheck // write error takes precedence
		return err
	}
	return f.Close()
}
