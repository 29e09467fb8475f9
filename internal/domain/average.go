package domain

// DefaultMovingAverageWindow is the number of wind-speed samples smoothed together.
const DefaultMovingAverageWindow = 5

// MovingAverage is a fixed-capacity FIFO of the most recent samples.
// The window grows from 1 to its capacity before it starts evicting, so early
// outputs are means over a partial window.
type MovingAverage struct {
	values []float64
	next   int
	size   int
	sum    float64
}

// NewMovingAverage creates a filter. A non-positive window uses the default.
func NewMovingAverage(window int) *MovingAverage {
	if window <= 0 {
		window = DefaultMovingAverageWindow
	}
	return &MovingAverage{values: make([]float64, window)}
}

// Push inserts v, evicting the oldest value when full, and returns the mean
// of the window after insertion.
func (m *MovingAverage) Push(v float64) float64 {
	if m.size == len(m.values) {
		m.sum -= m.values[m.next]
	} else {
		m.size++
	}
	m.values[m.next] = v
	m.sum += v
	m.next = (m.next + 1) % len(m.values)

	// Re-sum on every wrap to keep float drift bounded.
	if m.next == 0 {
		m.sum = 0
		for i := 0; i < m.size; i++ {
			m.sum += m.values[i]
		}
	}
	return m.sum / float64(m.size)
}

// Len returns how many samples are in the window.
func (m *MovingAverage) Len() int {
	return m.size
}

// Values returns the window contents from oldest to newest.
func (m *MovingAverage) Values() []float64 {
	out := make([]float64, m.size)
	start := 0
	if m.size == len(m.values) {
		start = m.next
	}
	for i := 0; i < m.size; i++ {
		out[i] = m.values[(start+i)%len(m.values)]
	}
	return out
}
