package kafka

import (
	"testing"
	"time"

	"github.com/couchcryptid/anemometer-calibration/internal/config"
	"github.com/couchcryptid/anemometer-calibration/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSerializeToMessage(t *testing.T) {
	second := time.Date(2024, 5, 14, 10, 30, 0, 0, time.UTC)
	run := domain.RunInfo{ReferenceSpeed: 10, Location: "roof"}
	rec := domain.SecondRecord(domain.CalibrationRecord{
		Second:              second,
		AverageWindSpeed:    9.5,
		DeviationPercent:    -5,
		NewConversionFactor: 1.05,
	})

	msg, err := serializeToMessage(run, rec)
	require.NoError(t, err)

	assert.Equal(t, []byte("second"), msg.Key)
	assert.Equal(t, second, msg.Time)
	assert.Contains(t, string(msg.Value), `"average_wind_speed":9.5`)
	assert.Contains(t, string(msg.Value), `"location":"roof"`)
	require.Len(t, msg.Headers, 2)
	assert.Equal(t, "record_kind", msg.Headers[0].Key)
	assert.Equal(t, []byte("second"), msg.Headers[0].Value)
	assert.Equal(t, "location", msg.Headers[1].Key)
	assert.Equal(t, []byte("roof"), msg.Headers[1].Value)
}

func TestSerializeToMessage_Pulse(t *testing.T) {
	at := time.Date(2024, 5, 14, 10, 30, 0, 400_000_000, time.UTC)
	rec := domain.PulseRecord(domain.SpeedSample{At: at, WheelSpeed: 0.94, WindSpeed: 0.94, Interval: 200 * time.Millisecond})

	msg, err := serializeToMessage(domain.RunInfo{ReferenceSpeed: 10, Location: "roof"}, rec)
	require.NoError(t, err)

	assert.Equal(t, []byte("pulse"), msg.Key)
	assert.Equal(t, at, msg.Time)
	assert.Contains(t, string(msg.Value), `"time_interval":0.2`)
}

func TestNewWriter(t *testing.T) {
	cfg := &config.Config{
		KafkaBrokers:   []string{"localhost:9092"},
		KafkaTopic:     "anemometer-calibration",
		ReferenceSpeed: 10,
		Location:       "roof",
	}
	w := NewWriter(cfg, nil)
	defer w.Close() //nolint:errcheck // nothing was written

	assert.Equal(t, "kafka", w.Name())
	assert.Equal(t, "anemometer-calibration", w.writer.Topic)
	assert.Equal(t, domain.RunInfo{ReferenceSpeed: 10, Location: "roof"}, w.run)
}
