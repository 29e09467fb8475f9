package pipeline

import (
	"github.com/couchcryptid/anemometer-calibration/internal/domain"
	"github.com/couchcryptid/anemometer-calibration/internal/observability"
)

// History retains the most recent records for the shutdown export. It is a
// fixed-capacity ring: once full, each new record evicts the oldest one.
// Only the sampling loop writes to it.
type History struct {
	buf     []domain.Record
	head    int
	size    int
	evicted int
	metrics *observability.Metrics
}

// NewHistory creates a History holding at most capacity records.
func NewHistory(capacity int, metrics *observability.Metrics) *History {
	if capacity < 1 {
		capacity = 1
	}
	return &History{buf: make([]domain.Record, capacity), metrics: metrics}
}

// Emit appends rec, evicting the oldest record when full. Raw readings are
// mirrored to the sinks only and never retained.
func (h *History) Emit(rec domain.Record) {
	if rec.Kind == domain.KindRaw {
		return
	}
	idx := (h.head + h.size) % len(h.buf)
	h.buf[idx] = rec
	if h.size < len(h.buf) {
		h.size++
		return
	}
	h.head = (h.head + 1) % len(h.buf)
	h.evicted++
	h.metrics.HistoryEvicted.Inc()
}

// Records returns the retained records, oldest first.
func (h *History) Records() []domain.Record {
	out := make([]domain.Record, 0, h.size)
	for i := 0; i < h.size; i++ {
		out = append(out, h.buf[(h.head+i)%len(h.buf)])
	}
	return out
}

// Len returns the number of retained records.
func (h *History) Len() int { return h.size }

// Evicted returns how many records were dropped to stay within capacity.
func (h *History) Evicted() int { return h.evicted }
