package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const defaultBroker = "localhost:9092"

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("REFERENCE_SPEED", "8")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8.0, cfg.ReferenceSpeed)
	assert.Equal(t, "test_location", cfg.Location)
	assert.Equal(t, SourceGPIO, cfg.Source)
	assert.Equal(t, DetectSwitch, cfg.DetectionMode)
	assert.Equal(t, "GPIO17", cfg.GPIOPin)
	assert.Equal(t, 0.03, cfg.Geometry.ArmRadius)
	assert.Equal(t, 0.66, cfg.Geometry.RadiusRatio)
	assert.Equal(t, 1, cfg.Geometry.PulsesPerRevolution)
	assert.Equal(t, 150*time.Millisecond, cfg.MinPulseInterval)
	assert.Equal(t, 0.5, cfg.DropTolerance)
	assert.Equal(t, 5, cfg.MovingAverageWindow)
	assert.Equal(t, 10*time.Millisecond, cfg.PollInterval)
	assert.Equal(t, 1.0, cfg.ConversionFactor)
	assert.True(t, cfg.AdaptiveFactor)
	assert.Equal(t, []string{SinkInflux}, cfg.Sinks)
	assert.False(t, cfg.MirrorRaw)
	assert.Equal(t, "http://localhost:8086", cfg.InfluxURL)
	assert.Equal(t, "a1203", cfg.InfluxBucket)
	assert.Equal(t, []string{defaultBroker}, cfg.KafkaBrokers)
	assert.Equal(t, "anemometer-calibration", cfg.KafkaTopic)
	assert.Equal(t, 1024, cfg.SinkBufferSize)
	assert.Equal(t, 2*time.Second, cfg.SinkWriteTimeout)
	assert.Equal(t, ExportCSV, cfg.ExportFormat)
	assert.Equal(t, "a1203.csv", cfg.ExportPath)
	assert.Equal(t, 100000, cfg.HistoryCapacity)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, 8.0, cfg.MockWindSpeed, "mock speed follows the reference")
}

func TestLoad_CustomEnv(t *testing.T) {
	t.Setenv("REFERENCE_SPEED", "12.5")
	t.Setenv("LOCATION", "tunnel-2")
	t.Setenv("SENSOR_SOURCE", "adc")
	t.Setenv("ADC_CHANNEL", "3")
	t.Setenv("THRESHOLD_MARGIN", "80")
	t.Setenv("THRESHOLD_BASELINE", "410")
	t.Setenv("PULSES_PER_REV", "2")
	t.Setenv("MIN_PULSE_INTERVAL", "80ms")
	t.Setenv("DROP_TOLERANCE", "0.35")
	t.Setenv("MOVING_AVERAGE_WINDOW", "8")
	t.Setenv("POLL_INTERVAL", "1ms")
	t.Setenv("ADAPTIVE_FACTOR", "false")
	t.Setenv("SINKS", "kafka, NATS ,mqtt")
	t.Setenv("KAFKA_BROKERS", "broker1:9092,broker2:9092")
	t.Setenv("MIRROR_RAW", "true")
	t.Setenv("EXPORT_FORMAT", "sqlite")
	t.Setenv("EXPORT_PATH", "/tmp/run.db")
	t.Setenv("LOG_FORMAT", "text")
	t.Setenv("SHUTDOWN_TIMEOUT", "30s")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 12.5, cfg.ReferenceSpeed)
	assert.Equal(t, "tunnel-2", cfg.Location)
	assert.Equal(t, SourceADC, cfg.Source)
	assert.Equal(t, DetectThreshold, cfg.DetectionMode, "adc defaults to threshold detection")
	assert.Equal(t, 1.0, cfg.Geometry.RadiusRatio, "threshold rig has no radius correction")
	assert.Equal(t, 3, cfg.ADCChannel)
	assert.Equal(t, ThresholdConfig{Margin: 80, Baseline: 410, HasBaseline: true}, cfg.Threshold)
	assert.Equal(t, 2, cfg.Geometry.PulsesPerRevolution)
	assert.Equal(t, 80*time.Millisecond, cfg.MinPulseInterval)
	assert.Equal(t, 0.35, cfg.DropTolerance)
	assert.Equal(t, 8, cfg.MovingAverageWindow)
	assert.Equal(t, time.Millisecond, cfg.PollInterval)
	assert.False(t, cfg.AdaptiveFactor)
	assert.Equal(t, []string{SinkKafka, SinkNATS, SinkMQTT}, cfg.Sinks)
	assert.Equal(t, []string{"broker1:9092", "broker2:9092"}, cfg.KafkaBrokers)
	assert.True(t, cfg.MirrorRaw)
	assert.Equal(t, ExportSQLite, cfg.ExportFormat)
	assert.Equal(t, "/tmp/run.db", cfg.ExportPath)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, 30*time.Second, cfg.ShutdownTimeout)
}

func TestLoad_ReferenceSpeedRequired(t *testing.T) {
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "REFERENCE_SPEED")
}

func TestLoad_InvalidReferenceSpeed(t *testing.T) {
	for _, v := range []string{"0", "-3", "fast"} {
		t.Run(v, func(t *testing.T) {
			t.Setenv("REFERENCE_SPEED", v)
			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), "REFERENCE_SPEED")
		})
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		key   string
		value string
	}{
		{"SENSOR_SOURCE", "laser"},
		{"DETECTION_MODE", "optical"},
		{"RADIUS_RATIO", "0"},
		{"PULSES_PER_REV", "two"},
		{"MIN_PULSE_INTERVAL", "soon"},
		{"DROP_TOLERANCE", "1.5"},
		{"MOVING_AVERAGE_WINDOW", "0"},
		{"POLL_INTERVAL", "-1ms"},
		{"CONVERSION_FACTOR", "0"},
		{"ADAPTIVE_FACTOR", "maybe"},
		{"MIRROR_RAW", "sometimes"},
		{"SINKS", "influx,carrier-pigeon"},
		{"SINK_BUFFER_SIZE", "0"},
		{"EXPORT_FORMAT", "xlsx"},
		{"HISTORY_CAPACITY", "0"},
		{"SHUTDOWN_TIMEOUT", "not-a-duration"},
	}
	for _, tc := range tests {
		t.Run(tc.key, func(t *testing.T) {
			t.Setenv("REFERENCE_SPEED", "10")
			t.Setenv(tc.key, tc.value)
			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.key)
		})
	}
}

func TestLoad_GPIORequiresSwitchDetection(t *testing.T) {
	t.Setenv("REFERENCE_SPEED", "10")
	t.Setenv("SENSOR_SOURCE", "gpio")
	t.Setenv("DETECTION_MODE", "threshold")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DETECTION_MODE")
}

func TestLoad_SensorProfile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hall.yaml")
	profile := `
source: serial
detection_mode: threshold
threshold_margin: 35
threshold_baseline: 498
min_pulse_interval: 120ms
geometry:
  arm_radius: 0.045
  radius_ratio: 0.9
  pulses_per_revolution: 2
`
	require.NoError(t, os.WriteFile(path, []byte(profile), 0o600))

	t.Setenv("REFERENCE_SPEED", "10")
	t.Setenv("SENSOR_PROFILE", path)
	t.Setenv("PULSES_PER_REV", "4") // env wins over the profile

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, SourceSerial, cfg.Source)
	assert.Equal(t, DetectThreshold, cfg.DetectionMode)
	assert.Equal(t, ThresholdConfig{Margin: 35, Baseline: 498, HasBaseline: true}, cfg.Threshold)
	assert.Equal(t, 120*time.Millisecond, cfg.MinPulseInterval)
	assert.Equal(t, 0.045, cfg.Geometry.ArmRadius)
	assert.Equal(t, 0.9, cfg.Geometry.RadiusRatio)
	assert.Equal(t, 4, cfg.Geometry.PulsesPerRevolution)
}

func TestLoad_MissingSensorProfile(t *testing.T) {
	t.Setenv("REFERENCE_SPEED", "10")
	t.Setenv("SENSOR_PROFILE", filepath.Join(t.TempDir(), "missing.yaml"))
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SENSOR_PROFILE")
}

func TestProfile_SaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reed.yaml")
	p := Profile{Source: SourceGPIO, DetectionMode: DetectSwitch, GPIOPin: "GPIO27", Geometry: GeometryProfile{ArmRadius: 0.03, RadiusRatio: 0.66}}
	require.NoError(t, p.Save(path))

	got, err := loadProfile(path)
	require.NoError(t, err)
	assert.Equal(t, p, got)
}

func TestConfig_Run(t *testing.T) {
	cfg := &Config{ReferenceSpeed: 7, Location: "roof"}
	run := cfg.Run()
	assert.Equal(t, 7.0, run.ReferenceSpeed)
	assert.Equal(t, "roof", run.Location)
}
