//go:build integration

package integration_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/couchcryptid/anemometer-calibration/internal/adapter/kafka"
	"github.com/couchcryptid/anemometer-calibration/internal/adapter/mock"
	"github.com/couchcryptid/anemometer-calibration/internal/adapter/wire"
	"github.com/couchcryptid/anemometer-calibration/internal/config"
	"github.com/couchcryptid/anemometer-calibration/internal/domain"
	"github.com/couchcryptid/anemometer-calibration/internal/observability"
	"github.com/couchcryptid/anemometer-calibration/internal/pipeline"
	"github.com/jonboulle/clockwork"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tckafka "github.com/testcontainers/testcontainers-go/modules/kafka"
)

const testTopic = "test-calibration"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func startKafka(ctx context.Context, t *testing.T) string {
	t.Helper()
	container, err := tckafka.Run(ctx, "confluentinc/confluent-local:7.5.0", tckafka.WithClusterID("anemometer-test"))
	require.NoError(t, err, "start kafka container")
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	brokers, err := container.Brokers(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, brokers)
	return brokers[0]
}

func createTopic(t *testing.T, broker, topic string) {
	t.Helper()
	conn, err := kafkago.Dial("tcp", broker)
	require.NoError(t, err)
	defer conn.Close()

	controller, err := conn.Controller()
	require.NoError(t, err)
	cc, err := kafkago.Dial("tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	require.NoError(t, err)
	defer cc.Close()

	require.NoError(t, cc.CreateTopics(kafkago.TopicConfig{
		Topic:             topic,
		NumPartitions:     1,
		ReplicationFactor: 1,
	}))
}

type received struct {
	Payload wire.Payload
	Key     string
	Headers map[string]string
}

func readRecord(ctx context.Context, t *testing.T, consumer *kafkago.Reader) received {
	t.Helper()
	readCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	msg, err := consumer.ReadMessage(readCtx)
	require.NoError(t, err, "read from topic")

	headers := make(map[string]string, len(msg.Headers))
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	var p wire.Payload
	require.NoError(t, json.Unmarshal(msg.Value, &p), "unmarshal message")
	return received{Payload: p, Key: string(msg.Key), Headers: headers}
}

func newConsumer(t *testing.T, broker string) *kafkago.Reader {
	t.Helper()
	consumer := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     []string{broker},
		Topic:       testTopic,
		GroupID:     fmt.Sprintf("test-consumer-%d", time.Now().UnixNano()),
		StartOffset: kafkago.FirstOffset,
	})
	t.Cleanup(func() { _ = consumer.Close() })
	return consumer
}

// TestKafkaWriter verifies a pulse and a second record reach the topic with
// their keys, headers and fields.
func TestKafkaWriter(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testTopic)

	cfg := &config.Config{
		ReferenceSpeed: 6,
		Location:       "tunnel-1",
		KafkaBrokers:   []string{broker},
		KafkaTopic:     testTopic,
	}
	writer := kafka.NewWriter(cfg, discardLogger())
	t.Cleanup(func() { _ = writer.Close() })

	at := time.Date(2024, time.May, 14, 10, 30, 0, 250_000_000, time.UTC)
	pulse := domain.PulseRecord(domain.SpeedSample{At: at, WheelSpeed: 3, WindSpeed: 6, Interval: 250 * time.Millisecond, Factor: 2})
	second := domain.SecondRecord(domain.CalibrationRecord{Second: at.Truncate(time.Second), AverageWindSpeed: 5.7, DeviationPercent: -5, NewConversionFactor: 2.1})

	require.NoError(t, writer.Write(ctx, pulse))
	require.NoError(t, writer.Write(ctx, second))

	consumer := newConsumer(t, broker)

	got := readRecord(ctx, t, consumer)
	assert.Equal(t, "pulse", got.Key)
	assert.Equal(t, "pulse", got.Headers["record_kind"])
	assert.Equal(t, "tunnel-1", got.Headers["location"])
	assert.Equal(t, 6.0, got.Payload.TestSpeed)
	assert.True(t, at.Equal(got.Payload.Timestamp))
	assert.Equal(t, 3.0, got.Payload.Fields["wheel_speed"])
	assert.Equal(t, 0.25, got.Payload.Fields["time_interval"])

	got = readRecord(ctx, t, consumer)
	assert.Equal(t, "second", got.Key)
	assert.Equal(t, domain.KindSecond, got.Payload.Kind)
	assert.Equal(t, 2.1, got.Payload.Fields["new_conversion_factor"])
	assert.Equal(t, -5.0, got.Payload.Fields["deviation"])
}

// TestPipelineEndToEnd runs the sampling loop against the simulated rotor on
// the real clock and checks the published stream through Kafka.
func TestPipelineEndToEnd(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testTopic)

	cfg := &config.Config{
		ReferenceSpeed: 2,
		Location:       "bench",
		KafkaBrokers:   []string{broker},
		KafkaTopic:     testTopic,
	}
	geometry := domain.RotationGeometry{ArmRadius: 0.03, RadiusRatio: 1, PulsesPerRevolution: 1}
	clock := clockwork.NewRealClock()

	rotor, err := mock.NewRotor(mock.Config{WindSpeed: 1, Geometry: geometry}, clock)
	require.NoError(t, err)

	metrics := observability.NewMetricsForTesting()
	writer := kafka.NewWriter(cfg, discardLogger())
	publisher := pipeline.NewPublisher([]pipeline.Sink{writer}, 256, 10*time.Second, discardLogger(), metrics)
	publisher.Start()

	p := pipeline.New(pipeline.Settings{
		Run:              cfg.Run(),
		Geometry:         geometry,
		MinPulseInterval: 50 * time.Millisecond,
		DropTolerance:    0.5,
		Window:           5,
		PollInterval:     2 * time.Millisecond,
		ConversionFactor: 1,
		Adaptive:         true,
	}, rotor, domain.NewSwitchTrigger(), publisher, clock, discardLogger(), metrics)

	runCtx, stop := context.WithTimeout(ctx, 2500*time.Millisecond)
	defer stop()
	require.NoError(t, p.Run(runCtx))
	require.NoError(t, publisher.Close(ctx))

	snap := p.Snapshot()
	require.GreaterOrEqual(t, snap.Calibrations, 2)

	consumer := newConsumer(t, broker)
	var pulses, seconds []received
	for len(seconds) < snap.Calibrations {
		r := readRecord(ctx, t, consumer)
		switch r.Payload.Kind {
		case domain.KindPulse:
			pulses = append(pulses, r)
		case domain.KindSecond:
			seconds = append(seconds, r)
		}
	}

	assert.GreaterOrEqual(t, len(pulses), 8, "roughly five passes per second")
	for i := 1; i < len(pulses); i++ {
		assert.False(t, pulses[i].Payload.Timestamp.Before(pulses[i-1].Payload.Timestamp), "pulses arrive in order")
	}
	for _, s := range seconds {
		assert.Equal(t, "bench", s.Headers["location"])
		assert.Contains(t, s.Payload.Fields, "average_wind_speed")
	}
	assert.InDelta(t, snap.ConversionFactor, seconds[len(seconds)-1].Payload.Fields["new_conversion_factor"], 1e-9)
}
