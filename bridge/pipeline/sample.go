package pipeline

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNoDevice is returned when no input device can be opened. It is fatal at startup.
	ErrNoDevice = errors.New("no input device detected")

	// ErrSourceDone ends the tick loop cleanly, e.g. when a replay profile has finished.
	ErrSourceDone = errors.New("input source finished")
)

const (
	ButtonA = iota
	ButtonB
	ButtonX
	ButtonY
	NumButtons
)

var buttonNames = [NumButtons]string{"a", "b", "x", "y"}

// ParseButton maps a face button name (a, b, x, y) to its index.
func ParseButton(name string) (int, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	for i, b := range buttonNames {
		if b == n {
			return i, nil
		}
	}
	return 0, fmt.Errorf("unknown button %q (want a, b, x or y)", name)
}

// Sample is one tick of controller input. Sticks are in [-1,1]; triggers use
// the same range with -1 released and 1 fully pressed. Wheel is in [-1,1];
// pedals are in [0,1] with 0 released.
type Sample struct {
	LeftX, LeftY   float64
	RightX, RightY float64

	LeftTrigger  float64
	RightTrigger float64

	Buttons [NumButtons]bool

	Wheel    float64
	Throttle float64
	Brake    float64
	Clutch   float64
}

// NeutralSample is a controller at rest: sticks centred, triggers released.
func NeutralSample() Sample {
	return Sample{LeftTrigger: -1, RightTrigger: -1}
}

// Sampler yields one Sample per call. Implementations are polled from the tick
// loop's goroutine only.
type Sampler interface {
	Sample() (Sample, error)
	Close() error
}

// Unmapped marks a channel with no device axis or button behind it.
const Unmapped int32 = -1

// AxisMapping assigns device axis and button indices to controller channels.
// Unmapped channels read as at rest.
type AxisMapping struct {
	LeftX        int32             `mapstructure:"left_x"`
	LeftY        int32             `mapstructure:"left_y"`
	RightX       int32             `mapstructure:"right_x"`
	RightY       int32             `mapstructure:"right_y"`
	LeftTrigger  int32             `mapstructure:"left_trigger"`
	RightTrigger int32             `mapstructure:"right_trigger"`
	Buttons      [NumButtons]int32 `mapstructure:"buttons"` // A, B, X, Y

	Wheel        int32 `mapstructure:"wheel"`
	Throttle     int32 `mapstructure:"throttle"`
	Brake        int32 `mapstructure:"brake"`
	Clutch       int32 `mapstructure:"clutch"`
	InvertPedals bool  `mapstructure:"invert_pedals"` // pedals read +1 when released
}

// DefaultAxisMapping is the XInput layout as SDL reports it, with no wheel.
func DefaultAxisMapping() AxisMapping {
	return AxisMapping{
		LeftX: 0, LeftY: 1, RightX: 2, RightY: 3,
		LeftTrigger: 4, RightTrigger: 5,
		Buttons: [NumButtons]int32{0, 1, 2, 3},
		Wheel:   Unmapped, Throttle: Unmapped, Brake: Unmapped, Clutch: Unmapped,
	}
}

// Axes lists the axis indices in Sample field order, Unmapped included.
func (m AxisMapping) Axes() []int32 {
	return []int32{
		m.LeftX, m.LeftY, m.RightX, m.RightY, m.LeftTrigger, m.RightTrigger,
		m.Wheel, m.Throttle, m.Brake, m.Clutch,
	}
}
