package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Profile is a YAML sensor description. It pins down the rig a run is
// calibrating so geometry and detection are never guessed.
//
//	source: adc
//	detection_mode: threshold
//	adc_channel: 0
//	threshold_margin: 50
//	min_pulse_interval: 150ms
//	geometry:
//	  arm_radius: 0.03
//	  radius_ratio: 1.0
//	  pulses_per_revolution: 1
type Profile struct {
	Source            string          `yaml:"source"`
	DetectionMode     string          `yaml:"detection_mode"`
	GPIOPin           string          `yaml:"gpio_pin"`
	SPIPort           string          `yaml:"spi_port"`
	ADCChannel        int             `yaml:"adc_channel"`
	ThresholdMargin   float64         `yaml:"threshold_margin"`
	ThresholdBaseline *float64        `yaml:"threshold_baseline"`
	MinPulseInterval  time.Duration   `yaml:"min_pulse_interval"`
	Geometry          GeometryProfile `yaml:"geometry"`
}

// GeometryProfile mirrors domain.RotationGeometry with zero meaning "unset".
type GeometryProfile struct {
	ArmRadius           float64 `yaml:"arm_radius"`
	RadiusRatio         float64 `yaml:"radius_ratio"`
	PulsesPerRevolution int     `yaml:"pulses_per_revolution"`
}

// loadProfile reads a sensor profile. An empty path yields an empty profile.
func loadProfile(path string) (Profile, error) {
	var p Profile
	if path == "" {
		return p, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return p, fmt.Errorf("read SENSOR_PROFILE: %w", err)
	}
	if err := yaml.Unmarshal(data, &p); err != nil {
		return p, fmt.Errorf("parse SENSOR_PROFILE: %w", err)
	}
	return p, nil
}

// Save writes the profile as YAML.
func (p Profile) Save(path string) error {
	data, err := yaml.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal profile: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write profile: %w", err)
	}
	return nil
}

func (p Profile) sourceOr(def string) string {
	if p.Source != "" {
		return p.Source
	}
	return def
}

func (p Profile) detectionOr(def string) string {
	if p.DetectionMode != "" {
		return p.DetectionMode
	}
	return def
}

func (p Profile) gpioPinOr(def string) string {
	if p.GPIOPin != "" {
		return p.GPIOPin
	}
	return def
}

func (p Profile) thresholdMarginOr(def float64) float64 {
	if p.ThresholdMargin != 0 {
		return p.ThresholdMargin
	}
	return def
}

func (p Profile) minIntervalOr(def time.Duration) time.Duration {
	if p.MinPulseInterval != 0 {
		return p.MinPulseInterval
	}
	return def
}

func (g GeometryProfile) armRadiusOr(def float64) float64 {
	if g.ArmRadius != 0 {
		return g.ArmRadius
	}
	return def
}

func (g GeometryProfile) radiusRatioOr(def float64) float64 {
	if g.RadiusRatio != 0 {
		return g.RadiusRatio
	}
	return def
}

func (g GeometryProfile) pulsesOr(def int) int {
	if g.PulsesPerRevolution != 0 {
		return g.PulsesPerRevolution
	}
	return def
}
