package nats

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/anemometer-calibration/internal/adapter/wire"
	"github.com/couchcryptid/anemometer-calibration/internal/config"
	"github.com/couchcryptid/anemometer-calibration/internal/domain"
	"github.com/nats-io/nats.go"
)

// conn is the subset of *nats.Conn the sink uses.
type conn interface {
	PublishMsg(m *nats.Msg) error
	FlushWithContext(ctx context.Context) error
	Drain() error
}

// Writer publishes records to "<subject>.pulse" and "<subject>.second".
// It implements pipeline.Sink.
type Writer struct {
	nc      conn
	subject string
	run     domain.RunInfo
	logger  *slog.Logger
}

// NewWriter connects to the configured NATS server.
func NewWriter(cfg *config.Config, logger *slog.Logger) (*Writer, error) {
	nc, err := nats.Connect(
		cfg.NATSURL,
		nats.Name("anemometer-calibration"),
		nats.Timeout(3*time.Second),
		nats.ReconnectWait(500*time.Millisecond),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats %s: %w", cfg.NATSURL, err)
	}
	return &Writer{nc: nc, subject: cfg.NATSSubject, run: cfg.Run(), logger: logger}, nil
}

// Name identifies the sink in logs and metrics.
func (w *Writer) Name() string { return config.SinkNATS }

// Write publishes one record and waits for the server to acknowledge the flush.
func (w *Writer) Write(ctx context.Context, rec domain.Record) error {
	data, err := wire.Encode(w.run, rec)
	if err != nil {
		return err
	}

	msg := nats.NewMsg(w.subject + "." + string(rec.Kind))
	msg.Data = data
	msg.Header.Set("Location", w.run.Location)
	msg.Header.Set("Record-Kind", string(rec.Kind))

	if err := w.nc.PublishMsg(msg); err != nil {
		return err
	}
	return w.nc.FlushWithContext(ctx)
}

// Close drains pending messages and closes the connection.
func (w *Writer) Close() error {
	return w.nc.Drain()
}
