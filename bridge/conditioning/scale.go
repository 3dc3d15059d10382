package conditioning

import "math"

// ScaleAxis maps a normalized axis value in [-1,1] onto 0..255.
// -1 maps to 0, 1 maps to 255 and 0 to 128. Out-of-range input saturates;
// NaN is sent as centre.
func ScaleAxis(v float64) uint8 {
	if math.IsNaN(v) {
		v = 0
	}
	return uint8(ClampFloat(math.Round((v+1)*127.5), 0, 255))
}

// ScaleTrigger uses the axis convention: -1 released, 1 fully pressed.
func ScaleTrigger(v float64) uint8 {
	return ScaleAxis(v)
}

// ScaleButton encodes a button state as 0 or 1.
func ScaleButton(pressed bool) uint8 {
	if pressed {
		return 1
	}
	return 0
}

// ScaleWheel maps a steering wheel angle in [-1,1] onto -32767..32767.
func ScaleWheel(v float64) int16 {
	return int16(math.Round(ClampFloat(finiteOr(v, 0), -1, 1) * math.MaxInt16))
}

// ScalePedal maps a pedal travel in [0,1] (0 released) onto 0..255.
func ScalePedal(v float64) uint8 {
	return uint8(math.Round(ClampFloat(finiteOr(v, 0), 0, 1) * 255))
}

// NormalizeTrigger maps the -1..1 trigger convention to 0..1.
func NormalizeTrigger(v float64) float64 {
	return (v + 1) / 2
}

// NormalizeRawAxis converts a raw joystick axis (-32768..32767) to -1..1.
func NormalizeRawAxis(raw int16) float64 {
	return ClampFloat(float64(raw)/math.MaxInt16, -1, 1)
}
