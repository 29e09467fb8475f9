package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/couchcryptid/anemometer-calibration/internal/domain"
	"github.com/couchcryptid/anemometer-calibration/internal/observability"
)

// Sink writes records to an external time-series store.
type Sink interface {
	Name() string
	Write(ctx context.Context, rec domain.Record) error
	Close() error
}

// Publisher decouples sink writes from the sampling loop. The loop is the only
// producer and a single goroutine consumes, so records reach every sink in
// emission order. Failed writes are logged and counted, never retried.
type Publisher struct {
	sinks   []Sink
	records chan domain.Record
	timeout time.Duration
	logger  *slog.Logger
	metrics *observability.Metrics

	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
	startOnce sync.Once
	closeOnce sync.Once
}

// NewPublisher creates a Publisher with a buffer of bufferSize records.
func NewPublisher(sinks []Sink, bufferSize int, timeout time.Duration, logger *slog.Logger, metrics *observability.Metrics) *Publisher {
	if bufferSize < 1 {
		bufferSize = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Publisher{
		sinks:   sinks,
		records: make(chan domain.Record, bufferSize),
		timeout: timeout,
		logger:  logger,
		metrics: metrics,
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
}

// Start launches the consumer goroutine.
func (p *Publisher) Start() {
	p.startOnce.Do(func() { go p.consume() })
}

// Emit queues rec without blocking. A full buffer drops the record.
func (p *Publisher) Emit(rec domain.Record) {
	select {
	case p.records <- rec:
	default:
		p.metrics.SinkDropped.Inc()
		p.logger.Warn("sink buffer full, record dropped", "kind", rec.Kind, "timestamp", rec.Time())
	}
}

func (p *Publisher) consume() {
	defer close(p.done)
	for rec := range p.records {
		p.write(rec)
	}
}

func (p *Publisher) write(rec domain.Record) {
	kind := string(rec.Kind)
	for _, s := range p.sinks {
		ctx, cancel := context.WithTimeout(p.ctx, p.timeout)
		start := time.Now()
		err := s.Write(ctx, rec)
		cancel()
		p.metrics.SinkWriteTiming.WithLabelValues(s.Name()).Observe(time.Since(start).Seconds())

		if err != nil {
			p.metrics.SinkErrors.WithLabelValues(s.Name(), kind).Inc()
			p.logger.Warn("sink write failed", "sink", s.Name(), "error", fmt.Errorf("write %s %s: %w", s.Name(), kind, err))
			continue
		}
		p.metrics.SinkWrites.WithLabelValues(s.Name(), kind).Inc()
	}
}

// Close stops accepting records, drains the buffer until ctx expires and then
// closes every sink. Emit must not be called after Close.
func (p *Publisher) Close(ctx context.Context) error {
	var errs []error
	p.closeOnce.Do(func() {
		p.Start()
		close(p.records)

		select {
		case <-p.done:
		case <-ctx.Done():
			p.logger.Warn("sink drain timed out", "pending", len(p.records))
			p.cancel()
			<-p.done
		}
		p.cancel()

		for _, s := range p.sinks {
			if err := s.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close %s: %w", s.Name(), err))
			}
		}
	})
	return errors.Join(errs...)
}
