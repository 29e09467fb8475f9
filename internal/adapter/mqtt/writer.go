package mqtt

import (
	"context"
	"fmt"
	"log/slog"
	"net"

	"github.com/couchcryptid/anemometer-calibration/internal/adapter/wire"
	"github.com/couchcryptid/anemometer-calibration/internal/config"
	"github.com/couchcryptid/anemometer-calibration/internal/domain"
	"github.com/eclipse/paho.golang/paho"
)

const keepAlive = 30 // seconds

// client is the subset of *paho.Client the sink uses.
type client interface {
	Publish(ctx context.Context, p *paho.Publish) (*paho.PublishResponse, error)
	Disconnect(d *paho.Disconnect) error
}

// Writer publishes records over MQTT v5 to "<topic>/pulse" and
// "<topic>/second" at QoS 1. It implements pipeline.Sink.
type Writer struct {
	client client
	topic  string
	run    domain.RunInfo
	logger *slog.Logger
}

// NewWriter dials the broker and completes the MQTT CONNECT handshake.
func NewWriter(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Writer, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", cfg.MQTTBroker)
	if err != nil {
		return nil, fmt.Errorf("dial mqtt %s: %w", cfg.MQTTBroker, err)
	}

	c := paho.NewClient(paho.ClientConfig{
		ClientID: cfg.MQTTClientID,
		Conn:     conn,
		OnClientError: func(err error) {
			logger.Warn("mqtt client error", "error", err)
		},
	})

	ack, err := c.Connect(ctx, &paho.Connect{
		ClientID:   cfg.MQTTClientID,
		KeepAlive:  keepAlive,
		CleanStart: true,
	})
	if err != nil {
		conn.Close() //nolint:errcheck // connect already failed
		return nil, fmt.Errorf("connect mqtt %s: %w", cfg.MQTTBroker, err)
	}
	if ack.ReasonCode != 0 {
		conn.Close() //nolint:errcheck // connect already failed
		return nil, fmt.Errorf("connect mqtt %s: reason code %d", cfg.MQTTBroker, ack.ReasonCode)
	}

	return &Writer{client: c, topic: cfg.MQTTTopic, run: cfg.Run(), logger: logger}, nil
}

// Name identifies the sink in logs and metrics.
func (w *Writer) Name() string { return config.SinkMQTT }

// Write publishes one record and waits for PUBACK.
func (w *Writer) Write(ctx context.Context, rec domain.Record) error {
	payload, err := wire.Encode(w.run, rec)
	if err != nil {
		return err
	}
	_, err = w.client.Publish(ctx, toPublish(w.topic, w.run, rec, payload))
	return err
}

// Close sends DISCONNECT.
func (w *Writer) Close() error {
	return w.client.Disconnect(&paho.Disconnect{ReasonCode: 0})
}

func toPublish(topic string, run domain.RunInfo, rec domain.Record, payload []byte) *paho.Publish {
	return &paho.Publish{
		QoS:     1,
		Topic:   topic + "/" + string(rec.Kind),
		Payload: payload,
		Properties: &paho.PublishProperties{
			ContentType: "application/json",
			User: paho.UserProperties{
				{Key: "location", Value: run.Location},
				{Key: "record_kind", Value: string(rec.Kind)},
			},
		},
	}
}
