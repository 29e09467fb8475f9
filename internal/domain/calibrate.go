package domain

// Calibrator owns the conversion factor and turns closed seconds into
// CalibrationRecords.
type Calibrator struct {
	reference float64
	factor    float64
	adaptive  bool
}

// NewCalibrator creates a calibrator. When adaptive is false the factor stays
// at initialFactor for the whole run and new factors are only reported.
func NewCalibrator(reference, initialFactor float64, adaptive bool) *Calibrator {
	if initialFactor <= 0 {
		initialFactor = 1
	}
	return &Calibrator{reference: reference, factor: initialFactor, adaptive: adaptive}
}

// Factor returns the conversion factor applied to new samples.
func (c *Calibrator) Factor() float64 {
	return c.factor
}

// Reference returns the operator-supplied reference speed.
func (c *Calibrator) Reference() float64 {
	return c.reference
}

// Close computes the calibration record for a closed bucket. The same path
// serves regular second boundaries and the termination flush (final=true).
// The returned error is ErrZeroAverageSpeed when the factor was left unchanged
// because the average was not positive; the record is still valid.
func (c *Calibrator) Close(b Bucket, final bool) (CalibrationRecord, error) {
	avg := b.Mean()
	deviation, next, err := Calibrate(avg, c.reference, c.factor)

	rec := CalibrationRecord{
		Second:              b.Second,
		AverageWindSpeed:    avg,
		DeviationPercent:    deviation,
		PriorFactor:         c.factor,
		NewConversionFactor: next,
		Samples:             b.Count,
		Final:               final,
	}
	if c.adaptive {
		c.factor = next
	}
	return rec, err
}

// Calibrate returns the percentage deviation of average from reference and the
// factor that would have mapped the underlying wheel speed onto reference.
func Calibrate(average, reference, factor float64) (deviation, newFactor float64, err error) {
	deviation = (average - reference) / reference * 100
	if average <= 0 {
		return deviation, factor, ErrZeroAverageSpeed
	}
	return deviation, reference / (average / factor), nil
}
