package gpio

import (
	"context"
	"fmt"

	"github.com/couchcryptid/anemometer-calibration/internal/domain"
	"periph.io/x/periph/conn/physic"
	"periph.io/x/periph/conn/spi"
	"periph.io/x/periph/conn/spi/spireg"
)

// mcp3008Clock is well under the 1.35MHz the chip supports at 2.7V.
const mcp3008Clock = 1 * physic.MegaHertz

// transceiver is the part of spi.Conn the ADC needs.
type transceiver interface {
	Tx(w, r []byte) error
}

// ADCSource reads one single-ended channel of an MCP3008.
type ADCSource struct {
	port    spi.PortCloser
	conn    transceiver
	channel int
}

// OpenADC opens an SPI port ("" picks the first one) and binds channel 0-7.
func OpenADC(portName string, channel int) (*ADCSource, error) {
	if channel < 0 || channel > 7 {
		return nil, fmt.Errorf("mcp3008 channel %d out of range 0-7", channel)
	}
	if err := initHost(); err != nil {
		return nil, fmt.Errorf("init periph host: %w", err)
	}
	port, err := spireg.Open(portName)
	if err != nil {
		return nil, fmt.Errorf("open spi port %q: %w", portName, err)
	}
	c, err := port.Connect(mcp3008Clock, spi.Mode0, 8)
	if err != nil {
		port.Close() //nolint:errcheck // connect already failed
		return nil, fmt.Errorf("connect spi port %q: %w", portName, err)
	}
	return &ADCSource{port: port, conn: c, channel: channel}, nil
}

// Read performs one conversion.
func (a *ADCSource) Read(_ context.Context) (domain.Reading, bool, error) {
	v, err := readMCP3008(a.conn, a.channel)
	if err != nil {
		return domain.Reading{}, false, err
	}
	return domain.Reading{Value: float64(v)}, true, nil
}

// Close releases the SPI port.
func (a *ADCSource) Close() error {
	if a.port == nil {
		return nil
	}
	return a.port.Close()
}

// readMCP3008 sends the start bit, single-ended mode and channel, and
// assembles the 10-bit result from the last two bytes.
func readMCP3008(c transceiver, channel int) (int, error) {
	w := []byte{1, byte(8+channel) << 4, 0}
	r := make([]byte, len(w))
	if err := c.Tx(w, r); err != nil {
		return 0, fmt.Errorf("mcp3008 channel %d: %w", channel, err)
	}
	return int(r[1]&3)<<8 | int(r[2]), nil
}
