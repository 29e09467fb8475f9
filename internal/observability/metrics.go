package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "anemometer"

// Metrics holds the Prometheus counters, histograms, and gauges for the sampling loop.
type Metrics struct {
	Readings         prometheus.Counter
	ReadErrors       prometheus.Counter
	PulsesAccepted   prometheus.Counter
	PulsesDebounced  prometheus.Counter
	SamplesAccepted  prometheus.Counter
	SamplesRejected  *prometheus.CounterVec // labels: reason={first_pulse,invalid_interval,outlier}
	Calibrations     prometheus.Counter
	ZeroAverages     prometheus.Counter
	ConversionFactor prometheus.Gauge
	DeviationPercent prometheus.Gauge
	AverageWindSpeed prometheus.Gauge
	LoopRunning      prometheus.Gauge
	LoopLag          prometheus.Histogram

	// Sink metrics.
	SinkWrites      *prometheus.CounterVec // labels: sink, kind
	SinkErrors      *prometheus.CounterVec // labels: sink, kind
	SinkDropped     prometheus.Counter
	SinkWriteTiming *prometheus.HistogramVec // labels: sink

	HistoryEvicted prometheus.Counter
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(m.collectors()...)
	return m
}

// NewMetricsForTesting creates Metrics without registering them, to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		Readings: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "readings_total",
			Help:      "Total raw sensor readings taken.",
		}),
		ReadErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "read_errors_total",
			Help:      "Total failed sensor reads.",
		}),
		PulsesAccepted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pulses_accepted_total",
			Help:      "Pulses that passed the debouncer.",
		}),
		PulsesDebounced: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pulses_debounced_total",
			Help:      "Trigger observations suppressed by the minimum pulse interval.",
		}),
		SamplesAccepted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "samples_accepted_total",
			Help:      "Speed samples that entered the moving average.",
		}),
		SamplesRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "samples_rejected_total",
			Help:      "Pulses that produced no speed sample, by reason.",
		}, []string{"reason"}),
		Calibrations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "calibrations_total",
			Help:      "Calibration records emitted.",
		}),
		ZeroAverages: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "zero_average_seconds_total",
			Help:      "Closed seconds whose average was not positive; factor left unchanged.",
		}),
		ConversionFactor: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "conversion_factor",
			Help:      "Conversion factor applied to new samples.",
		}),
		DeviationPercent: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "deviation_percent",
			Help:      "Deviation of the last closed second from the reference speed.",
		}),
		AverageWindSpeed: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "average_wind_speed_mps",
			Help:      "Average wind speed of the last closed second.",
		}),
		LoopRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "loop_running",
			Help:      "1 when the sampling loop is active, 0 when shut down.",
		}),
		LoopLag: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "loop_iteration_seconds",
			Help:      "Wall time between consecutive sampling loop iterations.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.015, 0.025, 0.05, 0.1, 0.5},
		}),
		SinkWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sink_writes_total",
			Help:      "Records written to time-series sinks, by sink and record kind.",
		}, []string{"sink", "kind"}),
		SinkErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sink_write_errors_total",
			Help:      "Failed time-series writes, by sink and record kind.",
		}, []string{"sink", "kind"}),
		SinkDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sink_dropped_total",
			Help:      "Records dropped because the publish buffer was full.",
		}),
		SinkWriteTiming: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sink_write_duration_seconds",
			Help:      "Time-series write duration in seconds.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"sink"}),
		HistoryEvicted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "history_evicted_total",
			Help:      "Records evicted from the export history ring buffer.",
		}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.Readings,
		m.ReadErrors,
		m.PulsesAccepted,
		m.PulsesDebounced,
		m.SamplesAccepted,
		m.SamplesRejected,
		m.Calibrations,
		m.ZeroAverages,
		m.ConversionFactor,
		m.DeviationPercent,
		m.AverageWindSpeed,
		m.LoopRunning,
		m.LoopLag,
		m.SinkWrites,
		m.SinkErrors,
		m.SinkDropped,
		m.SinkWriteTiming,
		m.HistoryEvicted,
	}
}
