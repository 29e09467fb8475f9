package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/anemometer-calibration/internal/domain"
	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// Sensor sources.
const (
	SourceGPIO   = "gpio"
	SourceADC    = "adc"
	SourceSerial = "serial"
	SourceMock   = "mock"
)

// Detection modes.
const (
	DetectSwitch    = "switch"
	DetectThreshold = "threshold"
)

// Sink names accepted in SINKS.
const (
	SinkInflux = "influx"
	SinkKafka  = "kafka"
	SinkNATS   = "nats"
	SinkMQTT   = "mqtt"
)

// Export formats.
const (
	ExportCSV    = "csv"
	ExportSQLite = "sqlite"
	ExportNone   = "none"
)

// Config holds all service settings, populated from environment variables
// and an optional YAML sensor profile.
type Config struct {
	ReferenceSpeed float64
	Location       string

	Source        string
	DetectionMode string
	GPIOPin       string
	SPIPort       string
	ADCChannel    int
	Threshold     ThresholdConfig
	SerialPort    string
	SerialBaud    int
	MockWindSpeed float64
	MockBounce    bool

	Geometry            domain.RotationGeometry
	MinPulseInterval    time.Duration
	DropTolerance       float64
	MovingAverageWindow int
	PollInterval        time.Duration
	ConversionFactor    float64
	AdaptiveFactor      bool

	Sinks            []string
	MirrorRaw        bool
	SinkBufferSize   int
	SinkWriteTimeout time.Duration

	InfluxURL    string
	InfluxToken  string
	InfluxOrg    string
	InfluxBucket string

	KafkaBrokers []string
	KafkaTopic   string

	NATSURL     string
	NATSSubject string

	MQTTBroker   string
	MQTTTopic    string
	MQTTClientID string

	ExportFormat    string
	ExportPath      string
	HistoryCapacity int

	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration
}

// ThresholdConfig configures analog threshold detection.
type ThresholdConfig struct {
	Margin float64
	// Baseline is learned from the first reading when HasBaseline is false.
	Baseline    float64
	HasBaseline bool
}

// Load reads configuration from environment variables, applying defaults where
// unset. When SENSOR_PROFILE names a YAML file, its values replace the
// defaults and environment variables still take precedence.
func Load() (*Config, error) {
	profile, err := loadProfile(os.Getenv("SENSOR_PROFILE"))
	if err != nil {
		return nil, err
	}

	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	refStr := os.Getenv("REFERENCE_SPEED")
	if refStr == "" {
		return nil, errors.New("REFERENCE_SPEED is required")
	}
	reference, err := strconv.ParseFloat(refStr, 64)
	if err != nil || reference <= 0 {
		return nil, errors.New("invalid REFERENCE_SPEED: must be a positive number")
	}

	source := strings.ToLower(sharedcfg.EnvOrDefault("SENSOR_SOURCE", profile.sourceOr(SourceGPIO)))
	mode := strings.ToLower(sharedcfg.EnvOrDefault("DETECTION_MODE", profile.detectionOr(defaultDetection(source))))

	cfg := &Config{
		ReferenceSpeed: reference,
		Location:       sharedcfg.EnvOrDefault("LOCATION", "test_location"),

		Source:        source,
		DetectionMode: mode,
		GPIOPin:       sharedcfg.EnvOrDefault("GPIO_PIN", profile.gpioPinOr("GPIO17")),
		SPIPort:       sharedcfg.EnvOrDefault("SPI_PORT", profile.SPIPort),
		SerialPort:    sharedcfg.EnvOrDefault("SERIAL_PORT", "/dev/ttyACM0"),

		KafkaBrokers: sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaTopic:   sharedcfg.EnvOrDefault("KAFKA_TOPIC", "anemometer-calibration"),

		InfluxURL:    sharedcfg.EnvOrDefault("INFLUX_URL", "http://localhost:8086"),
		InfluxToken:  os.Getenv("INFLUX_TOKEN"),
		InfluxOrg:    os.Getenv("INFLUX_ORG"),
		InfluxBucket: sharedcfg.EnvOrDefault("INFLUX_BUCKET", "a1203"),

		NATSURL:     sharedcfg.EnvOrDefault("NATS_URL", "nats://127.0.0.1:4222"),
		NATSSubject: sharedcfg.EnvOrDefault("NATS_SUBJECT", "anemometer"),

		MQTTBroker:   sharedcfg.EnvOrDefault("MQTT_BROKER", "localhost:1883"),
		MQTTTopic:    sharedcfg.EnvOrDefault("MQTT_TOPIC", "anemometer"),
		MQTTClientID: sharedcfg.EnvOrDefault("MQTT_CLIENT_ID", "anemometer-calibration"),

		ExportFormat: strings.ToLower(sharedcfg.EnvOrDefault("EXPORT_FORMAT", ExportCSV)),
		ExportPath:   sharedcfg.EnvOrDefault("EXPORT_PATH", "a1203.csv"),

		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,
	}

	cfg.Sinks = parseList(sharedcfg.EnvOrDefault("SINKS", SinkInflux))

	// Numeric settings. Each parser names its variable in the error.
	var errs []error
	collect := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	cfg.ADCChannel, err = envInt("ADC_CHANNEL", profile.ADCChannel)
	collect(err)
	cfg.SerialBaud, err = envInt("SERIAL_BAUD", 115200)
	collect(err)
	cfg.Threshold.Margin, err = envFloat("THRESHOLD_MARGIN", profile.thresholdMarginOr(50))
	collect(err)
	if s := os.Getenv("THRESHOLD_BASELINE"); s != "" {
		cfg.Threshold.Baseline, err = strconv.ParseFloat(s, 64)
		if err != nil {
			collect(errors.New("invalid THRESHOLD_BASELINE"))
		}
		cfg.Threshold.HasBaseline = err == nil
	} else if profile.ThresholdBaseline != nil {
		cfg.Threshold.Baseline = *profile.ThresholdBaseline
		cfg.Threshold.HasBaseline = true
	}
	cfg.MockWindSpeed, err = envFloat("MOCK_WIND_SPEED", reference)
	collect(err)
	cfg.MockBounce, err = envBool("MOCK_BOUNCE", false)
	collect(err)

	cfg.Geometry.ArmRadius, err = envFloat("ARM_RADIUS", profile.Geometry.armRadiusOr(0.03))
	collect(err)
	cfg.Geometry.RadiusRatio, err = envFloat("RADIUS_RATIO", profile.Geometry.radiusRatioOr(defaultRadiusRatio(mode)))
	collect(err)
	cfg.Geometry.PulsesPerRevolution, err = envInt("PULSES_PER_REV", profile.Geometry.pulsesOr(1))
	collect(err)

	cfg.MinPulseInterval, err = envDuration("MIN_PULSE_INTERVAL", profile.minIntervalOr(domain.DefaultMinPulseInterval))
	collect(err)
	cfg.DropTolerance, err = envFloat("DROP_TOLERANCE", domain.DefaultDropTolerance)
	collect(err)
	cfg.MovingAverageWindow, err = envInt("MOVING_AVERAGE_WINDOW", domain.DefaultMovingAverageWindow)
	collect(err)
	cfg.PollInterval, err = envDuration("POLL_INTERVAL", 10*time.Millisecond)
	collect(err)
	cfg.ConversionFactor, err = envFloat("CONVERSION_FACTOR", 1.0)
	collect(err)
	cfg.AdaptiveFactor, err = envBool("ADAPTIVE_FACTOR", true)
	collect(err)

	cfg.MirrorRaw, err = envBool("MIRROR_RAW", false)
	collect(err)
	cfg.SinkBufferSize, err = envInt("SINK_BUFFER_SIZE", 1024)
	collect(err)
	cfg.SinkWriteTimeout, err = envDuration("SINK_WRITE_TIMEOUT", 2*time.Second)
	collect(err)
	cfg.HistoryCapacity, err = envInt("HISTORY_CAPACITY", 100000)
	collect(err)

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Run returns the tags shared by every record of this run.
func (c *Config) Run() domain.RunInfo {
	return domain.RunInfo{ReferenceSpeed: c.ReferenceSpeed, Location: c.Location}
}

func (c *Config) validate() error {
	switch c.Source {
	case SourceGPIO, SourceADC, SourceSerial, SourceMock:
	default:
		return fmt.Errorf("invalid SENSOR_SOURCE %q", c.Source)
	}
	switch c.DetectionMode {
	case DetectSwitch, DetectThreshold:
	default:
		return fmt.Errorf("invalid DETECTION_MODE %q", c.DetectionMode)
	}
	if c.Source == SourceADC && c.DetectionMode != DetectThreshold {
		return errors.New("DETECTION_MODE must be threshold for SENSOR_SOURCE=adc")
	}
	if c.Source == SourceGPIO && c.DetectionMode != DetectSwitch {
		return errors.New("DETECTION_MODE must be switch for SENSOR_SOURCE=gpio")
	}
	if err := c.Geometry.Validate(); err != nil {
		return fmt.Errorf("invalid ARM_RADIUS/RADIUS_RATIO/PULSES_PER_REV: %w", err)
	}
	if c.ADCChannel < 0 || c.ADCChannel > 7 {
		return errors.New("invalid ADC_CHANNEL: must be 0-7")
	}
	if c.MinPulseInterval <= 0 {
		return errors.New("invalid MIN_PULSE_INTERVAL: must be positive")
	}
	if c.DropTolerance <= 0 || c.DropTolerance >= 1 {
		return errors.New("invalid DROP_TOLERANCE: must be between 0 and 1")
	}
	if c.MovingAverageWindow < 1 {
		return errors.New("invalid MOVING_AVERAGE_WINDOW: must be at least 1")
	}
	if c.PollInterval <= 0 {
		return errors.New("invalid POLL_INTERVAL: must be positive")
	}
	if c.ConversionFactor <= 0 {
		return errors.New("invalid CONVERSION_FACTOR: must be positive")
	}
	if c.Source == SourceMock && c.MockWindSpeed <= 0 {
		return errors.New("invalid MOCK_WIND_SPEED: must be positive")
	}
	for _, s := range c.Sinks {
		switch s {
		case SinkInflux, SinkKafka, SinkNATS, SinkMQTT:
		default:
			return fmt.Errorf("invalid SINKS entry %q", s)
		}
	}
	if c.SinkBufferSize < 1 {
		return errors.New("invalid SINK_BUFFER_SIZE: must be at least 1")
	}
	if c.SinkWriteTimeout <= 0 {
		return errors.New("invalid SINK_WRITE_TIMEOUT: must be positive")
	}
	if c.hasSink(SinkKafka) && len(c.KafkaBrokers) == 0 {
		return errors.New("KAFKA_BROKERS is required when SINKS includes kafka")
	}
	switch c.ExportFormat {
	case ExportCSV, ExportSQLite, ExportNone:
	default:
		return fmt.Errorf("invalid EXPORT_FORMAT %q", c.ExportFormat)
	}
	if c.ExportFormat != ExportNone && c.ExportPath == "" {
		return errors.New("EXPORT_PATH is required when export is enabled")
	}
	if c.HistoryCapacity < 1 {
		return errors.New("invalid HISTORY_CAPACITY: must be at least 1")
	}
	return nil
}

func (c *Config) hasSink(name string) bool {
	for _, s := range c.Sinks {
		if s == name {
			return true
		}
	}
	return false
}

func defaultDetection(source string) string {
	switch source {
	case SourceADC, SourceSerial:
		return DetectThreshold
	default:
		return DetectSwitch
	}
}

// defaultRadiusRatio keeps the two rigs' geometry apart: the reed rig was
// characterized with a 0.66 effective-radius correction, the hall rig without.
func defaultRadiusRatio(mode string) float64 {
	if mode == DetectThreshold {
		return 1.0
	}
	return 0.66
}

func parseList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.ToLower(strings.TrimSpace(part))
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func envInt(key string, def int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func envFloat(key string, def float64) (float64, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return f, nil
}

func envBool(key string, def bool) (bool, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return b, nil
}

func envDuration(key string, def time.Duration) (time.Duration, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
