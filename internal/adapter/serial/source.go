// Package serial reads pulse or ADC readings streamed by a microcontroller
// over a USB serial port, one reading per line.
package serial

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/couchcryptid/anemometer-calibration/internal/domain"
	"github.com/jonboulle/clockwork"
	"go.bug.st/serial"
)

// DefaultBufferSize bounds readings waiting for the sampling loop.
const DefaultBufferSize = 256

// ErrClosed is returned once the serial stream has ended.
var ErrClosed = errors.New("serial stream closed")

// Source turns a line stream into readings. A reader goroutine timestamps each
// line on arrival and hands it to the loop through an ordered channel.
type Source struct {
	port     io.ReadCloser
	clock    clockwork.Clock
	logger   *slog.Logger
	readings chan domain.Reading

	ctx    context.Context
	cancel context.CancelFunc

	mu  sync.Mutex
	err error

	closeOnce sync.Once
}

// Open opens the serial device and starts reading.
func Open(name string, baud int, clock clockwork.Clock, logger *slog.Logger) (*Source, error) {
	port, err := serial.Open(name, &serial.Mode{BaudRate: baud})
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", name, err)
	}
	return NewSource(port, clock, logger), nil
}

// NewSource starts reading lines from port.
func NewSource(port io.ReadCloser, clock clockwork.Clock, logger *slog.Logger) *Source {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Source{
		port:     port,
		clock:    clock,
		logger:   logger,
		readings: make(chan domain.Reading, DefaultBufferSize),
		ctx:      ctx,
		cancel:   cancel,
	}
	go s.readLines()
	return s
}

// Read returns the next buffered reading without blocking.
func (s *Source) Read(_ context.Context) (domain.Reading, bool, error) {
	select {
	case r, open := <-s.readings:
		if !open {
			return domain.Reading{}, false, s.streamErr()
		}
		return r, true, nil
	default:
		return domain.Reading{}, false, nil
	}
}

// Queued reports that readings are buffered between polls and should be
// drained on every loop iteration.
func (s *Source) Queued() bool { return true }

// Close stops the reader goroutine and closes the port.
func (s *Source) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.cancel()
		err = s.port.Close()
	})
	return err
}

func (s *Source) streamErr() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return fmt.Errorf("%w: %w", ErrClosed, s.err)
	}
	return ErrClosed
}

func (s *Source) readLines() {
	defer close(s.readings)

	scanner := bufio.NewScanner(s.port)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		r, err := parseLine(line)
		if err != nil {
			s.logger.Warn("skipping serial line", "line", line, "error", err)
			continue
		}
		r.At = s.clock.Now()

		select {
		case s.readings <- r:
		case <-s.ctx.Done():
			return
		}
	}

	if err := scanner.Err(); err != nil && s.ctx.Err() == nil {
		s.mu.Lock()
		s.err = err
		s.mu.Unlock()
		s.logger.Error("serial read failed", "error", err)
	}
}

// parseLine accepts a switch level ("0"/"1") or a raw ADC count.
func parseLine(line string) (domain.Reading, error) {
	v, err := strconv.ParseFloat(line, 64)
	if err != nil {
		return domain.Reading{}, fmt.Errorf("invalid reading: %w", err)
	}
	if v < 0 {
		return domain.Reading{}, fmt.Errorf("invalid reading: negative value %g", v)
	}
	return domain.Reading{Active: v != 0, Value: v}, nil
}
