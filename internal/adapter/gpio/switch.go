// Package gpio reads rotation sensors wired to a Raspberry Pi header through
// periph.io: a reed switch on a GPIO pin or an analog hall sensor behind an
// MCP3008 ADC on SPI.
package gpio

import (
	"context"
	"fmt"
	"sync"

	"github.com/couchcryptid/anemometer-calibration/internal/domain"
	"periph.io/x/periph/conn/gpio"
	"periph.io/x/periph/conn/gpio/gpioreg"
	"periph.io/x/periph/host"
)

var (
	hostOnce sync.Once
	hostErr  error
)

// initHost loads the periph drivers once per process.
func initHost() error {
	hostOnce.Do(func() {
		_, hostErr = host.Init()
	})
	return hostErr
}

// SwitchSource reads a reed switch wired between a GPIO pin and ground. The
// pin is pulled up, so a closed switch (magnet present) reads low.
type SwitchSource struct {
	pin gpio.PinIn
}

// OpenSwitch configures the named pin as a pulled-up input.
func OpenSwitch(name string) (*SwitchSource, error) {
	if err := initHost(); err != nil {
		return nil, fmt.Errorf("init periph host: %w", err)
	}
	pin := gpioreg.ByName(name)
	if pin == nil {
		return nil, fmt.Errorf("gpio pin %q not found", name)
	}
	return NewSwitchSource(pin)
}

// NewSwitchSource wraps an already resolved pin.
func NewSwitchSource(pin gpio.PinIn) (*SwitchSource, error) {
	if err := pin.In(gpio.PullUp, gpio.NoEdge); err != nil {
		return nil, fmt.Errorf("configure %s as input: %w", pin, err)
	}
	return &SwitchSource{pin: pin}, nil
}

// Read samples the pin level.
func (s *SwitchSource) Read(_ context.Context) (domain.Reading, bool, error) {
	return domain.Reading{Active: s.pin.Read() == gpio.Low}, true, nil
}

// Close halts the pin.
func (s *SwitchSource) Close() error {
	return s.pin.Halt()
}
