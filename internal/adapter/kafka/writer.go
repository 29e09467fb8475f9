package kafka

import (
	"context"
	"log/slog"
	"time"

	"github.com/couchcryptid/anemometer-calibration/internal/adapter/wire"
	"github.com/couchcryptid/anemometer-calibration/internal/config"
	"github.com/couchcryptid/anemometer-calibration/internal/domain"
	kafkago "github.com/segmentio/kafka-go"
)

// Writer produces calibration records to a Kafka topic.
// It implements pipeline.Sink.
type Writer struct {
	writer *kafkago.Writer
	run    domain.RunInfo
	logger *slog.Logger
}

// NewWriter creates a Kafka producer for the configured topic.
func NewWriter(cfg *config.Config, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaTopic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireOne,
		BatchTimeout: 10 * time.Millisecond,
	}
	return &Writer{writer: w, run: cfg.Run(), logger: logger}
}

// Name identifies the sink in logs and metrics.
func (w *Writer) Name() string { return config.SinkKafka }

// Write publishes one record. Records share a partition per kind so each
// stream stays ordered.
func (w *Writer) Write(ctx context.Context, rec domain.Record) error {
	msg, err := serializeToMessage(w.run, rec)
	if err != nil {
		return err
	}
	return w.writer.WriteMessages(ctx, msg)
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// serializeToMessage marshals a record into a Kafka message.
func serializeToMessage(run domain.RunInfo, rec domain.Record) (kafkago.Message, error) {
	data, err := wire.Encode(run, rec)
	if err != nil {
		return kafkago.Message{}, err
	}
	return kafkago.Message{
		Key:   []byte(rec.Kind),
		Value: data,
		Time:  rec.Time(),
		Headers: []kafkago.Header{
			{Key: "record_kind", Value: []byte(rec.Kind)},
			{Key: "location", Value: []byte(run.Location)},
		},
	}, nil
}
