package pipeline

import (
	"errors"
	"fmt"

	"go.einride.tech/can"

	"pad2can/bridge/conditioning"
	"pad2can/utils"
)

// ErrUnknownFrame is returned by Decode for frames that carry no role.
var ErrUnknownFrame = errors.New("not a bridge frame")

// Role tags the frames sent every tick.
type Role int

const (
	RoleSticks Role = iota
	RoleTriggers
	RoleCurvature
	RoleWheel // optional; sent only when a wheel frame is configured
	numRoles
)

// Roles lists all roles in transmit order.
var Roles = []Role{RoleSticks, RoleTriggers, RoleCurvature, RoleWheel}

func (r Role) String() string {
	switch r {
	case RoleSticks:
		return "sticks"
	case RoleTriggers:
		return "triggers"
	case RoleCurvature:
		return "curvature"
	case RoleWheel:
		return "wheel"
	default:
		return "unknown"
	}
}

func (r Role) optional() bool { return r == RoleWheel }

// payloadSize is the DLC each role's frame must have.
func (r Role) payloadSize() int {
	switch r {
	case RoleSticks:
		return 4
	case RoleTriggers:
		return 6
	case RoleCurvature, RoleWheel:
		return 8
	default:
		return 0
	}
}

// Signal names each role's frame must define.
const (
	SigLeftX        = "left_x"
	SigLeftY        = "left_y"
	SigRightX       = "right_x"
	SigRightY       = "right_y"
	SigLeftTrigger  = "left_trigger"
	SigRightTrigger = "right_trigger"
	SigButtonA      = "button_a"
	SigButtonB      = "button_b"
	SigButtonX      = "button_x"
	SigButtonY      = "button_y"
	SigCurveRadius  = "curve_radius"
	SigCurvature    = "curvature"
	SigWheel        = "steering"
	SigThrottle     = "throttle"
	SigBrake        = "brake"
	SigClutch       = "clutch"
)

// rpm and gear in the wheel frame are optional and keep their map defaults.
var roleSignals = map[Role][]string{
	RoleSticks:    {SigLeftX, SigLeftY, SigRightX, SigRightY},
	RoleTriggers:  {SigLeftTrigger, SigRightTrigger, SigButtonA, SigButtonB, SigButtonX, SigButtonY},
	RoleCurvature: {SigCurveRadius, SigCurvature},
	RoleWheel:     {SigWheel, SigThrottle, SigBrake, SigClutch},
}

// FrameNames selects the CAN map frame used for each role. An empty Wheel
// disables the wheel frame.
type FrameNames struct {
	Sticks    string `mapstructure:"sticks"`
	Triggers  string `mapstructure:"triggers"`
	Curvature string `mapstructure:"curvature"`
	Wheel     string `mapstructure:"wheel"`
}

func DefaultFrameNames() FrameNames {
	return FrameNames{
		Sticks:    "PAD_STICKS",
		Triggers:  "PAD_TRIGGERS_BUTTONS",
		Curvature: "PAD_CURVATURE",
	}
}

func (n FrameNames) forRole(r Role) string {
	switch r {
	case RoleSticks:
		return n.Sticks
	case RoleTriggers:
		return n.Triggers
	case RoleWheel:
		return n.Wheel
	default:
		return n.Curvature
	}
}

// WheelPedals holds the bus-ready wheel frame values.
type WheelPedals struct {
	Steering int16
	Throttle uint8
	Brake    uint8
	Clutch   uint8
}

// Conditioned holds the bus-ready values of one tick.
type Conditioned struct {
	Sticks   [4]uint8 // left_x, left_y, right_x, right_y
	Triggers [2]uint8 // left, right
	Buttons  [NumButtons]uint8
	Curve    conditioning.Result
	Wheel    WheelPedals
}

// RoleFrame is an encoded frame tagged with its role.
type RoleFrame struct {
	Role  Role
	Frame can.Frame
}

// Encoder packs conditioned values into the frames named by FrameNames.
type Encoder struct {
	cmap   *utils.CANMap
	roles  []Role
	frames [numRoles]*utils.FrameDef
}

// NewEncoder checks that the map has a frame of the right size with the
// expected signals for every enabled role.
func NewEncoder(cmap *utils.CANMap, names FrameNames) (*Encoder, error) {
	e := &Encoder{cmap: cmap}
	for _, r := range Roles {
		name := names.forRole(r)
		if name == "" && r.optional() {
			continue
		}
		fd, err := cmap.FrameByName(name)
		if err != nil {
			return nil, fmt.Errorf("%s frame: %w", r, err)
		}
		if fd.DLC != r.payloadSize() {
			return nil, fmt.Errorf("%s frame %s: dlc %d, want %d", r, fd.Name, fd.DLC, r.payloadSize())
		}
		for _, sig := range roleSignals[r] {
			if _, ok := fd.Signal(sig); !ok {
				return nil, fmt.Errorf("%s frame %s: missing signal %q", r, fd.Name, sig)
			}
		}
		e.frames[r] = fd
		e.roles = append(e.roles, r)
	}
	return e, nil
}

// Roles returns the enabled roles in transmit order.
func (e *Encoder) Roles() []Role {
	return append([]Role(nil), e.roles...)
}

// Frame returns the frame definition used for a role, or nil if it is disabled.
func (e *Encoder) Frame(r Role) *utils.FrameDef {
	return e.frames[r]
}

// CheckEngine verifies that every radius and curvature the engine can
// produce fits the curvature frame's signals without saturating.
func (e *Encoder) CheckEngine(engine *conditioning.CurvatureEngine) error {
	fd := e.frames[RoleCurvature]
	bounds := []struct {
		signal string
		max    float64
	}{
		{SigCurveRadius, engine.RadiusLimit()},
		{SigCurvature, engine.MaxCurvature()},
	}
	for _, b := range bounds {
		sig, _ := fd.Signal(b.signal)
		lo, hi := sig.Range()
		if b.max > hi || -b.max < lo {
			return fmt.Errorf("%s frame %s: signal %s carries [%g, %g], engine produces up to ±%g",
				RoleCurvature, fd.Name, b.signal, lo, hi, b.max)
		}
	}
	return nil
}

func (e *Encoder) values(r Role, c Conditioned) map[string]float64 {
	switch r {
	case RoleSticks:
		return map[string]float64{
			SigLeftX:  float64(c.Sticks[0]),
			SigLeftY:  float64(c.Sticks[1]),
			SigRightX: float64(c.Sticks[2]),
			SigRightY: float64(c.Sticks[3]),
		}
	case RoleTriggers:
		return map[string]float64{
			SigLeftTrigger:  float64(c.Triggers[0]),
			SigRightTrigger: float64(c.Triggers[1]),
			SigButtonA:      float64(c.Buttons[ButtonA]),
			SigButtonB:      float64(c.Buttons[ButtonB]),
			SigButtonX:      float64(c.Buttons[ButtonX]),
			SigButtonY:      float64(c.Buttons[ButtonY]),
		}
	case RoleWheel:
		return map[string]float64{
			SigWheel:    float64(c.Wheel.Steering),
			SigThrottle: float64(c.Wheel.Throttle),
			SigBrake:    float64(c.Wheel.Brake),
			SigClutch:   float64(c.Wheel.Clutch),
		}
	default:
		return map[string]float64{
			SigCurveRadius: c.Curve.Radius,
			SigCurvature:   c.Curve.Curvature,
		}
	}
}

// Encode returns the frames of a tick in transmit order.
func (e *Encoder) Encode(c Conditioned) ([]RoleFrame, error) {
	out := make([]RoleFrame, 0, len(e.roles))
	for _, r := range e.roles {
		f, err := e.cmap.EncodeEinrideFrame(e.frames[r].Name, e.values(r, c))
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", r, err)
		}
		out = append(out, RoleFrame{Role: r, Frame: f})
	}
	return out, nil
}

// Decode maps a received frame back to its role and signal values.
func (e *Encoder) Decode(f can.Frame) (Role, map[string]float64, error) {
	for _, r := range e.roles {
		if e.frames[r].ID != f.ID {
			continue
		}
		values, err := e.cmap.DecodeFrame(f.ID, f.Data[:f.Length])
		if err != nil {
			return r, nil, fmt.Errorf("decode %s: %w", r, err)
		}
		return r, values, nil
	}
	return 0, nil, fmt.Errorf("%w: 0x%X", ErrUnknownFrame, f.ID)
}
