package trace

import (
	"context"
	"time"

	"github.com/couchcryptid/anemometer-calibration/internal/domain"
	"github.com/jonboulle/clockwork"
)

// Source replays a trace against a clock. Every pulse that fell due since the
// previous poll is queued as a switch closure at the pulse's exact offset
// followed by its release, so pulses closer together than the poll interval
// are all replayed.
type Source struct {
	clock  clockwork.Clock
	start  time.Time
	pulses []time.Duration
	next   int
	queue  []domain.Reading
}

// NewSource starts the trace at the clock's current time.
func NewSource(t Trace, clock clockwork.Clock) *Source {
	return &Source{clock: clock, start: clock.Now(), pulses: t.Pulses}
}

// Read returns the next queued reading, or ok=false when nothing is due.
func (s *Source) Read(_ context.Context) (domain.Reading, bool, error) {
	if len(s.queue) == 0 {
		s.fill()
	}
	if len(s.queue) == 0 {
		return domain.Reading{}, false, nil
	}
	r := s.queue[0]
	s.queue = s.queue[1:]
	return r, true, nil
}

func (s *Source) fill() {
	elapsed := s.clock.Since(s.start)
	for s.next < len(s.pulses) && s.pulses[s.next] <= elapsed {
		at := s.start.Add(s.pulses[s.next])
		s.queue = append(s.queue,
			domain.Reading{At: at, Active: true},
			domain.Reading{At: at},
		)
		s.next++
	}
}

// Queued reports that due pulses are drained on every loop iteration.
func (s *Source) Queued() bool { return true }

// Done reports whether every pulse has been replayed.
func (s *Source) Done() bool { return s.next >= len(s.pulses) && len(s.queue) == 0 }

// Close is a no-op.
func (s *Source) Close() error { return nil }
