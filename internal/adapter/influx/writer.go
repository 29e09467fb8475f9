package influx

import (
	"context"
	"log/slog"

	"github.com/couchcryptid/anemometer-calibration/internal/adapter/wire"
	"github.com/couchcryptid/anemometer-calibration/internal/config"
	"github.com/couchcryptid/anemometer-calibration/internal/domain"
	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// pointWriter is the subset of api.WriteAPIBlocking the sink uses.
type pointWriter interface {
	WritePoint(ctx context.Context, point ...*write.Point) error
}

// Writer stores records as InfluxDB points: pulses in "sensor_data", closed
// seconds in "wind", both tagged with location and test_speed.
// It implements pipeline.Sink.
type Writer struct {
	client influxdb2.Client
	api    pointWriter
	run    domain.RunInfo
	logger *slog.Logger
}

// NewWriter creates a blocking InfluxDB writer for the configured bucket.
func NewWriter(cfg *config.Config, logger *slog.Logger) *Writer {
	client := influxdb2.NewClient(cfg.InfluxURL, cfg.InfluxToken)
	return &Writer{
		client: client,
		api:    client.WriteAPIBlocking(cfg.InfluxOrg, cfg.InfluxBucket),
		run:    cfg.Run(),
		logger: logger,
	}
}

// Name identifies the sink in logs and metrics.
func (w *Writer) Name() string { return config.SinkInflux }

// Write stores one record as a single point.
func (w *Writer) Write(ctx context.Context, rec domain.Record) error {
	return w.api.WritePoint(ctx, toPoint(w.run, rec))
}

// Close releases the HTTP client.
func (w *Writer) Close() error {
	if w.client != nil {
		w.client.Close()
	}
	return nil
}

func toPoint(run domain.RunInfo, rec domain.Record) *write.Point {
	fields := make(map[string]any)
	for k, v := range wire.Fields(rec) {
		fields[k] = v
	}
	return influxdb2.NewPoint(wire.Measurement(rec.Kind), wire.Tags(run), fields, rec.Time())
}
