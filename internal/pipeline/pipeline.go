package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/anemometer-calibration/internal/domain"
	"github.com/couchcryptid/anemometer-calibration/internal/observability"
	"github.com/jonboulle/clockwork"
)

// Source yields raw sensor readings. Read must not block beyond a single
// hardware transaction; ok=false means nothing was available this poll.
type Source interface {
	Read(ctx context.Context) (r domain.Reading, ok bool, err error)
	Close() error
}

// QueuedSource is implemented by sources that buffer readings between polls,
// such as a microcontroller streaming over serial. Read on such a source
// returns ok=false once its queue is empty, and the loop drains it on every
// iteration instead of taking one reading per poll.
type QueuedSource interface {
	Source
	Queued() bool
}

// maxDrain bounds the readings taken from a queued source in one iteration.
const maxDrain = 4096

// Emitter receives every record the loop produces, in order.
type Emitter interface {
	Emit(rec domain.Record)
}

// Emitters fans a record out to several emitters.
type Emitters []Emitter

// Emit forwards rec to each emitter in order.
func (es Emitters) Emit(rec domain.Record) {
	for _, e := range es {
		e.Emit(rec)
	}
}

// Settings are the tuning constants of one sampling run.
type Settings struct {
	Run              domain.RunInfo
	Geometry         domain.RotationGeometry
	MinPulseInterval time.Duration
	DropTolerance    float64
	Window           int
	PollInterval     time.Duration
	ConversionFactor float64
	Adaptive         bool
	// MirrorRaw emits every non-zero analog reading as a raw record.
	MirrorRaw bool
}

// Snapshot is the live calibration state published for readers outside the loop.
type Snapshot struct {
	ReferenceSpeed    float64                   `json:"reference_speed"`
	Location          string                    `json:"location"`
	ConversionFactor  float64                   `json:"conversion_factor"`
	Calibrations      int                       `json:"calibrations"`
	SmoothingWindow   []float64                 `json:"smoothing_window"`
	ThresholdBaseline *float64                  `json:"threshold_baseline,omitempty"`
	Latest            *domain.CalibrationRecord `json:"latest,omitempty"`
}

// baseliner is implemented by triggers that compare against a resting level.
type baseliner interface {
	Baseline() (float64, bool)
}

// Pipeline is the sampling loop. It owns all calibration state; nothing else
// mutates the debouncer, filter, bucket or conversion factor.
type Pipeline struct {
	source  Source
	trigger domain.Trigger
	out     Emitter
	clock   clockwork.Clock
	logger  *slog.Logger
	metrics *observability.Metrics

	poll       time.Duration
	run        domain.RunInfo
	mirrorRaw  bool
	debouncer  *domain.Debouncer
	estimator  domain.SpeedEstimator
	guard      *domain.OutlierGuard
	average    *domain.MovingAverage
	aggregator *domain.SecondAggregator
	calibrator *domain.Calibrator

	calibrations int
	lastTick     time.Time
	ready        atomic.Bool
	snapshot     atomic.Pointer[Snapshot]
}

// New creates a Pipeline reading from src and detecting pulses with trig.
func New(s Settings, src Source, trig domain.Trigger, out Emitter, clock clockwork.Clock, logger *slog.Logger, metrics *observability.Metrics) *Pipeline {
	p := &Pipeline{
		source:     src,
		trigger:    trig,
		out:        out,
		clock:      clock,
		logger:     logger,
		metrics:    metrics,
		poll:       s.PollInterval,
		run:        s.Run,
		mirrorRaw:  s.MirrorRaw,
		debouncer:  domain.NewDebouncer(s.MinPulseInterval),
		estimator:  domain.NewSpeedEstimator(s.Geometry),
		guard:      domain.NewOutlierGuard(s.DropTolerance),
		average:    domain.NewMovingAverage(s.Window),
		aggregator: domain.NewSecondAggregator(),
		calibrator: domain.NewCalibrator(s.Run.ReferenceSpeed, s.ConversionFactor, s.Adaptive),
	}
	p.publish(nil)
	return p
}

// CheckReadiness returns nil once the loop has read the source at least once.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if !p.ready.Load() {
		return errors.New("sampling loop has not read the sensor yet")
	}
	return nil
}

// Snapshot returns the latest calibration state. It is safe to call from any goroutine.
func (p *Pipeline) Snapshot() Snapshot {
	return *p.snapshot.Load()
}

// Run polls the source until ctx is cancelled, then force-closes the open
// second and returns nil. The caller closes the source afterwards.
func (p *Pipeline) Run(ctx context.Context) error {
	p.logger.Info("sampling loop started",
		"reference_speed", p.calibrator.Reference(),
		"location", p.run.Location,
		"poll_interval", p.poll,
		"conversion_factor", p.calibrator.Factor(),
	)
	p.metrics.LoopRunning.Set(1)
	defer p.metrics.LoopRunning.Set(0)
	p.metrics.ConversionFactor.Set(p.calibrator.Factor())

	// Exponential backoff on read errors: start at 200ms, double, cap at 5s.
	backoff := initialBackoff

	for {
		if ctx.Err() != nil {
			p.flush()
			p.logger.Info("sampling loop stopping", "reason", ctx.Err(), "calibrations", p.calibrations)
			return nil
		}

		wait := p.poll
		if err := p.step(ctx); err != nil {
			if ctx.Err() == nil {
				p.metrics.ReadErrors.Inc()
				p.logger.Error("sensor read failed", "error", err, "retry_in", backoff)
				wait = backoff
				backoff = nextBackoff(backoff, maxBackoff)
			}
		} else {
			backoff = initialBackoff
		}

		select {
		case <-ctx.Done():
		case <-p.clock.After(wait):
		}
	}
}

const (
	initialBackoff = 200 * time.Millisecond
	maxBackoff     = 5 * time.Second
)

// step runs one loop iteration: every reading available this poll is bucketed
// by its own timestamp, then the second boundary is checked against loop time
// so that idle seconds still close on time.
func (p *Pipeline) step(ctx context.Context) error {
	now := p.clock.Now()
	if !p.lastTick.IsZero() {
		p.metrics.LoopLag.Observe(now.Sub(p.lastTick).Seconds())
	}
	p.lastTick = now

	err := p.read(ctx, now)
	p.advance(now)
	return err
}

// read takes one reading, or drains a queued source.
func (p *Pipeline) read(ctx context.Context, now time.Time) error {
	q, queued := p.source.(QueuedSource)
	queued = queued && q.Queued()

	for range maxDrain {
		r, ok, err := p.source.Read(ctx)
		if err != nil {
			return err
		}
		p.ready.Store(true)
		if !ok {
			return nil
		}
		p.metrics.Readings.Inc()
		if r.At.IsZero() {
			r.At = now
		}
		p.observe(r)
		if !queued {
			return nil
		}
	}
	p.logger.Warn("reading backlog exceeds one poll", "drained", maxDrain)
	return nil
}

func (p *Pipeline) advance(at time.Time) {
	if b, ok := p.aggregator.Advance(at); ok {
		p.closeSecond(b, false)
	}
}

// observe pushes one reading through trigger, debouncer, estimator, guard,
// moving average and aggregator.
func (p *Pipeline) observe(r domain.Reading) {
	p.advance(r.At)

	if r.Value != 0 {
		p.logger.Debug("wind_raw", "value", r.Value, "at", r.At)
		if p.mirrorRaw {
			p.out.Emit(domain.RawRecord(r))
		}
	}
	if !p.trigger.Observe(r) {
		return
	}

	previous := p.debouncer.Last()
	pulse, ok := p.debouncer.Accept(r.At)
	if !ok {
		p.metrics.PulsesDebounced.Inc()
		return
	}
	p.metrics.PulsesAccepted.Inc()

	sample, err := p.estimator.Estimate(previous, pulse, p.calibrator.Factor())
	switch {
	case errors.Is(err, domain.ErrFirstPulse):
		p.metrics.SamplesRejected.WithLabelValues("first_pulse").Inc()
		p.logger.Debug("first pulse", "at", pulse.At)
		return
	case err != nil:
		p.metrics.SamplesRejected.WithLabelValues("invalid_interval").Inc()
		p.logger.Debug("sample dropped", "error", err, "at", pulse.At)
		return
	}

	if !p.guard.Accept(sample.WheelSpeed) {
		prev, _ := p.guard.Previous()
		p.metrics.SamplesRejected.WithLabelValues("outlier").Inc()
		p.logger.Debug("sample dropped",
			"error", domain.ErrOutlierRejected,
			"wheel_speed", sample.WheelSpeed,
			"previous_wheel_speed", prev,
		)
		return
	}

	sample.Smoothed = p.average.Push(sample.WindSpeed)
	p.metrics.SamplesAccepted.Inc()
	p.logger.Debug("pulse",
		"wheel_speed", sample.WheelSpeed,
		"wind_speed", sample.WindSpeed,
		"smoothed_wind_speed", sample.Smoothed,
		"time_interval", sample.IntervalSeconds(),
		"window", p.average.Len(),
	)
	p.out.Emit(domain.PulseRecord(sample))

	if b, ok := p.aggregator.Add(r.At, sample.Smoothed); ok {
		p.closeSecond(b, false)
	}
}

// flush closes the open second on shutdown through the same path as a
// regular boundary.
func (p *Pipeline) flush() {
	if b, ok := p.aggregator.Flush(); ok {
		p.closeSecond(b, true)
	}
}

func (p *Pipeline) closeSecond(b domain.Bucket, final bool) {
	rec, err := p.calibrator.Close(b, final)
	if err != nil {
		p.metrics.ZeroAverages.Inc()
		p.logger.Warn("conversion factor unchanged", "error", err, "second", rec.Second)
	}

	p.calibrations++
	p.metrics.Calibrations.Inc()
	p.metrics.AverageWindSpeed.Set(rec.AverageWindSpeed)
	p.metrics.DeviationPercent.Set(rec.DeviationPercent)
	p.metrics.ConversionFactor.Set(p.calibrator.Factor())
	p.publish(&rec)

	p.logger.Info("calibration",
		"second", rec.Second,
		"average_wind_speed", rec.AverageWindSpeed,
		"deviation_percent", rec.DeviationPercent,
		"new_conversion_factor", rec.NewConversionFactor,
		"samples", rec.Samples,
		"final", final,
	)
	p.out.Emit(domain.SecondRecord(rec))
}

func (p *Pipeline) publish(latest *domain.CalibrationRecord) {
	snap := &Snapshot{
		ReferenceSpeed:   p.calibrator.Reference(),
		Location:         p.run.Location,
		ConversionFactor: p.calibrator.Factor(),
		Calibrations:     p.calibrations,
		SmoothingWindow:  p.average.Values(),
		Latest:           latest,
	}
	if b, ok := p.trigger.(baseliner); ok {
		if v, learned := b.Baseline(); learned {
			snap.ThresholdBaseline = &v
		}
	}
	p.snapshot.Store(snap)
}

func nextBackoff(current, maxBackoff time.Duration) time.Duration {
	next := current * 2
	if next > maxBackoff {
		return maxBackoff
	}
	return next
}
