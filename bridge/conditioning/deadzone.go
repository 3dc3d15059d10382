// Package conditioning turns raw controller axes into bus-ready values: deadzone
// suppression, 8-bit scaling and the curvature engine that derives a turning
// radius and a low-pass filtered curvature from steering and trigger inputs.
package conditioning

import "math"

// Deadzone returns 0 when |v| is below threshold and v unchanged otherwise.
// Each axis is filtered on its own; there is no radial coupling between channels.
func Deadzone(v, threshold float64) float64 {
	if math.Abs(v) < threshold {
		return 0
	}
	return v
}

// ClampFloat clamps value between min and max
func ClampFloat(value, min, max float64) float64 {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}

// finiteOr replaces NaN and ±Inf with fallback.
func finiteOr(v, fallback float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fallback
	}
	return v
}
