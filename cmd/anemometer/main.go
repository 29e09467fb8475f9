package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/couchcryptid/anemometer-calibration/internal/adapter/export"
	"github.com/couchcryptid/anemometer-calibration/internal/adapter/gpio"
	httpadapter "github.com/couchcryptid/anemometer-calibration/internal/adapter/http"
	"github.com/couchcryptid/anemometer-calibration/internal/adapter/influx"
	kafkaadapter "github.com/couchcryptid/anemometer-calibration/internal/adapter/kafka"
	"github.com/couchcryptid/anemometer-calibration/internal/adapter/mock"
	mqttadapter "github.com/couchcryptid/anemometer-calibration/internal/adapter/mqtt"
	natsadapter "github.com/couchcryptid/anemometer-calibration/internal/adapter/nats"
	"github.com/couchcryptid/anemometer-calibration/internal/adapter/serial"
	"github.com/couchcryptid/anemometer-calibration/internal/config"
	"github.com/couchcryptid/anemometer-calibration/internal/domain"
	"github.com/couchcryptid/anemometer-calibration/internal/observability"
	"github.com/couchcryptid/anemometer-calibration/internal/pipeline"
	"github.com/jonboulle/clockwork"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()
	clock := clockwork.NewRealClock()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	source, err := openSource(cfg, clock, logger)
	if err != nil {
		logger.Error("failed to open sensor", "source", cfg.Source, "error", err)
		os.Exit(1)
	}

	exporter, err := export.New(cfg)
	if err != nil {
		logger.Error("failed to configure export", "error", err)
		os.Exit(1)
	}

	publisher := pipeline.NewPublisher(openSinks(ctx, cfg, logger), cfg.SinkBufferSize, cfg.SinkWriteTimeout, logger, metrics)
	history := pipeline.NewHistory(cfg.HistoryCapacity, metrics)

	p := pipeline.New(settings(cfg), source, trigger(cfg), pipeline.Emitters{history, publisher}, clock, logger, metrics)

	srv := httpadapter.NewServer(cfg.HTTPAddr, p, logger)

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	publisher.Start()

	// Run blocks until the signal, then flushes the open second.
	if err := p.Run(ctx); err != nil {
		logger.Error("sampling loop error", "error", err)
	}
	logger.Info("shutting down")
	shutdown(cfg, source, exporter, history, publisher, srv, logger)
	logger.Info("shutdown complete")
}

type drainer interface {
	Close(ctx context.Context) error
}

type stopper interface {
	Shutdown(ctx context.Context) error
}

// shutdown releases the run in order: sensor, export, sinks, HTTP. Each step
// has its own deadline, and the export runs before the sink drain, so an
// unreachable sink cannot cost the run its tabular record.
func shutdown(cfg *config.Config, source pipeline.Source, exporter pipeline.Exporter, history *pipeline.History, publisher drainer, srv stopper, logger *slog.Logger) {
	if err := source.Close(); err != nil {
		logger.Error("sensor close error", "error", err)
	}

	exportCtx, cancelExport := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancelExport()
	if err := exporter.Export(exportCtx, history.Records()); err != nil {
		logger.Error("export failed", "format", cfg.ExportFormat, "path", cfg.ExportPath, "error", err)
	} else {
		logger.Info("export written", "format", cfg.ExportFormat, "path", cfg.ExportPath,
			"records", history.Len(), "evicted", history.Evicted())
	}

	drainCtx, cancelDrain := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancelDrain()
	if err := publisher.Close(drainCtx); err != nil {
		logger.Error("sink close error", "error", err)
	}

	httpCtx, cancelHTTP := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancelHTTP()
	if err := srv.Shutdown(httpCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
}

func settings(cfg *config.Config) pipeline.Settings {
	return pipeline.Settings{
		Run:              cfg.Run(),
		Geometry:         cfg.Geometry,
		MinPulseInterval: cfg.MinPulseInterval,
		DropTolerance:    cfg.DropTolerance,
		Window:           cfg.MovingAverageWindow,
		PollInterval:     cfg.PollInterval,
		ConversionFactor: cfg.ConversionFactor,
		Adaptive:         cfg.AdaptiveFactor,
		MirrorRaw:        cfg.MirrorRaw,
	}
}

func trigger(cfg *config.Config) domain.Trigger {
	if cfg.DetectionMode == config.DetectSwitch {
		return domain.NewSwitchTrigger()
	}
	if cfg.Threshold.HasBaseline {
		return domain.NewThresholdTriggerWithBaseline(cfg.Threshold.Baseline, cfg.Threshold.Margin)
	}
	return domain.NewThresholdTrigger(cfg.Threshold.Margin)
}

func openSource(cfg *config.Config, clock clockwork.Clock, logger *slog.Logger) (pipeline.Source, error) {
	switch cfg.Source {
	case config.SourceGPIO:
		return gpio.OpenSwitch(cfg.GPIOPin)
	case config.SourceADC:
		return gpio.OpenADC(cfg.SPIPort, cfg.ADCChannel)
	case config.SourceSerial:
		return serial.Open(cfg.SerialPort, cfg.SerialBaud, clock, logger)
	case config.SourceMock:
		return mock.NewRotor(mock.Config{WindSpeed: cfg.MockWindSpeed, Geometry: cfg.Geometry, Bounce: cfg.MockBounce}, clock)
	default:
		return nil, fmt.Errorf("unknown sensor source %q", cfg.Source)
	}
}

// openSinks connects every configured sink. A sink that cannot connect is
// skipped so a missing broker does not stop a calibration run.
func openSinks(ctx context.Context, cfg *config.Config, logger *slog.Logger) []pipeline.Sink {
	var sinks []pipeline.Sink
	for _, name := range cfg.Sinks {
		var (
			s   pipeline.Sink
			err error
		)
		switch name {
		case config.SinkInflux:
			s = influx.NewWriter(cfg, logger)
		case config.SinkKafka:
			s = kafkaadapter.NewWriter(cfg, logger)
		case config.SinkNATS:
			s, err = natsadapter.NewWriter(cfg, logger)
		case config.SinkMQTT:
			s, err = mqttadapter.NewWriter(ctx, cfg, logger)
		}
		if err != nil {
			logger.Warn("sink unavailable, continuing without it", "sink", name, "error", err)
			continue
		}
		logger.Info("sink enabled", "sink", name)
		sinks = append(sinks, s)
	}
	return sinks
}
