// Package domain models the rotation-sensor to wind-speed calibration chain.
//
// # Sensor Conventions
//
// A cup or propeller wheel carries one or more magnets past a fixed sensor.
// Each pass is a pulse. Two detection strategies exist and are chosen per run:
//
//	switch:    a reed/hall switch wired to a GPIO pin. The pin reads active for
//	           as long as the magnet dwells near the sensor, so the same pass is
//	           observed on several consecutive polls. The debouncer's minimum
//	           interval collapses those repeats into one pulse.
//	threshold: an analog hall sensor sampled through an ADC. The first reading
//	           is the resting baseline; a reading above baseline+margin is
//	           "active". Only the inactive->active transition fires.
//
// # Geometry
//
//	circumference = 2 * pi * armRadius * radiusRatio / pulsesPerRevolution
//
// radiusRatio corrects the effective cup radius (0.66 for the A1203 reed rig,
// 1.0 for the MCP3008 hall rig). Both are explicit configuration values.
//
// # Speeds
//
//	wheelSpeed = circumference / interval       (m/s)
//	windSpeed  = wheelSpeed * conversionFactor  (m/s)
//
// # Calibration
//
// Smoothed wind speeds are bucketed per wall-clock second. When a second
// closes with at least one sample:
//
//	average   = mean(bucket)
//	deviation = (average - reference) / reference * 100
//	factor'   = reference / (average / factor)    when average > 0
//
// A zero average leaves the factor unchanged. The same closure runs at
// termination for the still-open second.
package domain
