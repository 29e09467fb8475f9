package domain

// DefaultDropTolerance is the fraction a speed may fall between consecutive
// samples before it is treated as a bounce artifact.
const DefaultDropTolerance = 0.5

// IsOutlier reports whether candidate dropped below previous*(1-tolerance).
// Increases are never outliers: gusts are physical, near-zero readings
// after a fast one are not.
func IsOutlier(candidate, previous, tolerance float64) bool {
	return candidate < previous*(1-tolerance)
}

// OutlierGuard tracks the last accepted speed and rejects sudden drops.
type OutlierGuard struct {
	tolerance float64
	previous  float64
	has       bool
}

// NewOutlierGuard creates a guard with the given drop tolerance.
func NewOutlierGuard(tolerance float64) *OutlierGuard {
	return &OutlierGuard{tolerance: tolerance}
}

// Accept returns true and remembers speed when it is not an outlier against
// the last accepted speed. A rejected speed does not update state.
func (g *OutlierGuard) Accept(speed float64) bool {
	if g.has && IsOutlier(speed, g.previous, g.tolerance) {
		return false
	}
	g.previous = speed
	g.has = true
	return true
}

// Previous returns the last accepted speed, if any.
func (g *OutlierGuard) Previous() (float64, bool) {
	return g.previous, g.has
}
