package domain

import "errors"

var (
	// ErrFirstPulse is returned when a pulse has no predecessor to form an interval with.
	ErrFirstPulse = errors.New("first pulse has no interval")

	// ErrInvalidInterval marks a non-positive gap between two pulses.
	ErrInvalidInterval = errors.New("invalid pulse interval")

	// ErrOutlierRejected marks a speed that dropped further than the tolerated fraction.
	ErrOutlierRejected = errors.New("speed drop exceeds tolerance")

	// ErrZeroAverageSpeed marks a closed second whose mean wind speed is not positive.
	ErrZeroAverageSpeed = errors.New("average wind speed is not positive")
)
