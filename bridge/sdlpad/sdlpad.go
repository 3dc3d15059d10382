// Package sdlpad reads a game controller through the SDL3 joystick API.
//
// SDL requires joystick calls to come from the thread that initialized it,
// so a Sampler must be opened, polled and closed on one locked OS thread.
package sdlpad

import (
	"errors"
	"fmt"

	"github.com/jupiterrider/purego-sdl3/sdl"

	"pad2can/bridge/conditioning"
	"pad2can/bridge/pipeline"
	"pad2can/utils"
)

var errDisconnected = errors.New("joystick disconnected")

type Sampler struct {
	log      *utils.Logger
	mapping  pipeline.AxisMapping
	joystick *sdl.Joystick
	id       sdl.JoystickID
	name     string
	lost     bool
}

// Open initializes SDL and opens the joystick in the given slot. It returns
// an error wrapping pipeline.ErrNoDevice when fewer joysticks are connected.
func Open(slot int, mapping pipeline.AxisMapping, log *utils.Logger) (*Sampler, error) {
	if !sdl.Init(sdl.InitJoystick) {
		return nil, fmt.Errorf("sdl init: %s", sdl.GetError())
	}

	ids := sdl.GetJoysticks()
	log.Debug("SDL reports %d joystick(s)", len(ids))
	if slot < 0 || slot >= len(ids) {
		sdl.Quit()
		return nil, fmt.Errorf("%w: %d connected, slot %d requested", pipeline.ErrNoDevice, len(ids), slot)
	}

	js := sdl.OpenJoystick(ids[slot])
	if js == nil {
		err := fmt.Errorf("%w: open slot %d: %s", pipeline.ErrNoDevice, slot, sdl.GetError())
		sdl.Quit()
		return nil, err
	}

	s := &Sampler{
		log:      log,
		mapping:  mapping,
		joystick: js,
		id:       sdl.GetJoystickID(js),
		name:     sdl.GetJoystickName(js),
	}

	numAxes := sdl.GetNumJoystickAxes(js)
	numButtons := sdl.GetNumJoystickButtons(js)
	for _, idx := range mapping.Axes() {
		if idx != pipeline.Unmapped && (idx < 0 || idx >= numAxes) {
			s.Close()
			return nil, fmt.Errorf("axis index %d out of range: %s has %d axes", idx, s.name, numAxes)
		}
	}
	for _, idx := range mapping.Buttons {
		if idx < 0 || idx >= numButtons {
			s.Close()
			return nil, fmt.Errorf("button index %d out of range: %s has %d buttons", idx, s.name, numButtons)
		}
	}

	log.Info("Joystick connected: %s (VID=%04X PID=%04X) axes=%d buttons=%d",
		s.name, sdl.GetJoystickVendor(js), sdl.GetJoystickProduct(js), numAxes, numButtons)
	return s, nil
}

func (s *Sampler) Name() string { return s.name }

// pump drains the SDL event queue, which also refreshes joystick state.
func (s *Sampler) pump() {
	var event sdl.Event
	for sdl.PollEvent(&event) {
		switch event.Type() {
		case sdl.EventJoystickRemoved:
			if event.JDevice().Which == s.id {
				s.log.Warn("Joystick disconnected: %s", s.name)
				s.lost = true
			}
		case sdl.EventJoystickButtonDown:
			be := event.JButton()
			s.log.Trace("button down: index=%d", be.Button)
		}
	}
}

// axis reads a mapped axis; unmapped axes read rest.
func (s *Sampler) axis(idx int32, rest float64) float64 {
	if idx == pipeline.Unmapped {
		return rest
	}
	return conditioning.NormalizeRawAxis(sdl.GetJoystickAxis(s.joystick, idx))
}

// pedal reads a pedal axis as 0 released .. 1 pressed.
func (s *Sampler) pedal(idx int32) float64 {
	if idx == pipeline.Unmapped {
		return 0
	}
	v := s.axis(idx, -1)
	if s.mapping.InvertPedals {
		v = -v
	}
	return conditioning.NormalizeTrigger(v)
}

// Sample returns the current controller state. After the device has been
// removed it keeps returning an error; the runner substitutes a neutral sample.
func (s *Sampler) Sample() (pipeline.Sample, error) {
	s.pump()
	if s.lost || !sdl.JoystickConnected(s.joystick) {
		return pipeline.Sample{}, fmt.Errorf("%s: %w", s.name, errDisconnected)
	}

	m := s.mapping
	out := pipeline.Sample{
		LeftX:        s.axis(m.LeftX, 0),
		LeftY:        s.axis(m.LeftY, 0),
		RightX:       s.axis(m.RightX, 0),
		RightY:       s.axis(m.RightY, 0),
		LeftTrigger:  s.axis(m.LeftTrigger, -1),
		RightTrigger: s.axis(m.RightTrigger, -1),
		Wheel:        s.axis(m.Wheel, 0),
		Throttle:     s.pedal(m.Throttle),
		Brake:        s.pedal(m.Brake),
		Clutch:       s.pedal(m.Clutch),
	}
	for i, idx := range m.Buttons {
		out.Buttons[i] = sdl.GetJoystickButton(s.joystick, idx)
	}
	return out, nil
}

func (s *Sampler) Close() error {
	if s.joystick != nil {
		sdl.CloseJoystick(s.joystick)
		s.joystick = nil
	}
	sdl.Quit()
	return nil
}
