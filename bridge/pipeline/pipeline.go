package pipeline

import (
	"fmt"

	"pad2can/bridge/conditioning"
)

// Pipeline applies deadzone, scaling and the curvature engine to a Sample.
//
// Steering is the left stick X axis after the deadzone. The right trigger
// sets damping (maximum radius) and the left trigger sets filter strength.
// Triggers, wheel and pedals are not deadzoned.
type Pipeline struct {
	deadzone float64
	engine   *conditioning.CurvatureEngine
}

func New(deadzone float64, engine *conditioning.CurvatureEngine) (*Pipeline, error) {
	if deadzone < 0 || deadzone >= 1 {
		return nil, fmt.Errorf("deadzone must be in [0,1), got %g", deadzone)
	}
	if engine == nil {
		return nil, fmt.Errorf("nil curvature engine")
	}
	return &Pipeline{deadzone: deadzone, engine: engine}, nil
}

// Step conditions one sample. It advances the engine's filter state, so
// samples must be passed in time order.
func (p *Pipeline) Step(s Sample) Conditioned {
	lx := conditioning.Deadzone(s.LeftX, p.deadzone)
	ly := conditioning.Deadzone(s.LeftY, p.deadzone)
	rx := conditioning.Deadzone(s.RightX, p.deadzone)
	ry := conditioning.Deadzone(s.RightY, p.deadzone)

	var c Conditioned
	c.Sticks = [4]uint8{
		conditioning.ScaleAxis(lx),
		conditioning.ScaleAxis(ly),
		conditioning.ScaleAxis(rx),
		conditioning.ScaleAxis(ry),
	}
	c.Triggers = [2]uint8{
		conditioning.ScaleTrigger(s.LeftTrigger),
		conditioning.ScaleTrigger(s.RightTrigger),
	}
	for i, pressed := range s.Buttons {
		c.Buttons[i] = conditioning.ScaleButton(pressed)
	}
	c.Wheel = WheelPedals{
		Steering: conditioning.ScaleWheel(s.Wheel),
		Throttle: conditioning.ScalePedal(s.Throttle),
		Brake:    conditioning.ScalePedal(s.Brake),
		Clutch:   conditioning.ScalePedal(s.Clutch),
	}
	c.Curve = p.engine.Update(lx, s.RightTrigger, s.LeftTrigger)
	return c
}

// Reset restarts the curvature filter.
func (p *Pipeline) Reset() {
	p.engine.Reset()
}
