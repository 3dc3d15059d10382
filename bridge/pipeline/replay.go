package pipeline

import (
	"fmt"
	"math"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Channels sets some or all controller channels. Nil fields are left as they are.
type Channels struct {
	LeftX        *float64 `yaml:"left_x,omitempty"`
	LeftY        *float64 `yaml:"left_y,omitempty"`
	RightX       *float64 `yaml:"right_x,omitempty"`
	RightY       *float64 `yaml:"right_y,omitempty"`
	LeftTrigger  *float64 `yaml:"left_trigger,omitempty"`
	RightTrigger *float64 `yaml:"right_trigger,omitempty"`
	Buttons      []string `yaml:"buttons,omitempty"` // pressed buttons; nil keeps, empty releases all
	Wheel        *float64 `yaml:"wheel,omitempty"`
	Throttle     *float64 `yaml:"throttle,omitempty"` // pedals in [0,1]
	Brake        *float64 `yaml:"brake,omitempty"`
	Clutch       *float64 `yaml:"clutch,omitempty"`
}

// ProfileSegment holds Set over [T0, T1). If RampTo sets a channel, that
// channel moves linearly from its Set (or default) value to the RampTo value
// across the segment.
type ProfileSegment struct {
	T0      float64  `yaml:"t0"`
	T1      float64  `yaml:"t1"` // negative: until the end of the profile
	Set     Channels `yaml:"set"`
	RampTo  Channels `yaml:"ramp_to"`
	Comment string   `yaml:"comment,omitempty"`
}

// Profile is a scripted controller input used for bench runs without a device.
type Profile struct {
	Name      string           `yaml:"name"`
	DurationS float64          `yaml:"duration_s"`
	Loop      bool             `yaml:"loop"`
	Defaults  Channels         `yaml:"defaults"`
	Segments  []ProfileSegment `yaml:"segments"`
}

func LoadProfile(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	return ParseProfile(data)
}

func ParseProfile(data []byte) (*Profile, error) {
	var p Profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("unmarshal: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

func (p *Profile) Validate() error {
	if !(p.DurationS > 0) {
		return fmt.Errorf("invalid duration_s: %f", p.DurationS)
	}
	if err := p.Defaults.validate(); err != nil {
		return fmt.Errorf("defaults: %w", err)
	}
	for i, seg := range p.Segments {
		if seg.T0 < 0 || (seg.T1 >= 0 && seg.T1 <= seg.T0) {
			return fmt.Errorf("segment %d: invalid window [%g, %g)", i, seg.T0, seg.T1)
		}
		if err := seg.Set.validate(); err != nil {
			return fmt.Errorf("segment %d set: %w", i, err)
		}
		if err := seg.RampTo.validate(); err != nil {
			return fmt.Errorf("segment %d ramp_to: %w", i, err)
		}
	}
	return nil
}

func (c Channels) fields() []*float64 {
	return []*float64{
		c.LeftX, c.LeftY, c.RightX, c.RightY, c.LeftTrigger, c.RightTrigger,
		c.Wheel, c.Throttle, c.Brake, c.Clutch,
	}
}

func (c Channels) validate() error {
	for _, v := range c.fields() {
		if v != nil && (math.IsNaN(*v) || *v < -1 || *v > 1) {
			return fmt.Errorf("channel value %g outside [-1,1]", *v)
		}
	}
	for _, v := range []*float64{c.Throttle, c.Brake, c.Clutch} {
		if v != nil && *v < 0 {
			return fmt.Errorf("pedal value %g outside [0,1]", *v)
		}
	}
	for _, b := range c.Buttons {
		if _, err := ParseButton(b); err != nil {
			return err
		}
	}
	return nil
}

func sampleFields(s *Sample) []*float64 {
	return []*float64{
		&s.LeftX, &s.LeftY, &s.RightX, &s.RightY, &s.LeftTrigger, &s.RightTrigger,
		&s.Wheel, &s.Throttle, &s.Brake, &s.Clutch,
	}
}

func (c Channels) apply(s *Sample) {
	dst := sampleFields(s)
	for i, v := range c.fields() {
		if v != nil {
			*dst[i] = *v
		}
	}
	if c.Buttons != nil {
		s.Buttons = [NumButtons]bool{}
		for _, name := range c.Buttons {
			if idx, err := ParseButton(name); err == nil {
				s.Buttons[idx] = true
			}
		}
	}
}

// ramp moves channels set in c from their current value toward the target by frac.
func (c Channels) ramp(s *Sample, frac float64) {
	dst := sampleFields(s)
	for i, v := range c.fields() {
		if v != nil {
			*dst[i] += (*v - *dst[i]) * frac
		}
	}
}

// Eval returns the input at time t seconds into the profile.
func (p *Profile) Eval(t float64) Sample {
	s := NeutralSample()
	p.Defaults.apply(&s)

	for _, seg := range p.Segments {
		t1 := seg.T1
		if t1 < 0 {
			t1 = p.DurationS
		}
		if t >= seg.T0 && t < t1 {
			seg.Set.apply(&s)
			seg.RampTo.ramp(&s, (t-seg.T0)/(t1-seg.T0))
			break
		}
	}
	return s
}

// ReplaySampler plays a Profile against the wall clock, starting at the first Sample call.
type ReplaySampler struct {
	profile *Profile
	now     func() time.Time
	start   time.Time
}

func NewReplaySampler(p *Profile) *ReplaySampler {
	return &ReplaySampler{profile: p, now: time.Now}
}

func (r *ReplaySampler) Sample() (Sample, error) {
	now := r.now()
	if r.start.IsZero() {
		r.start = now
	}
	t := now.Sub(r.start).Seconds()
	if t >= r.profile.DurationS {
		if !r.profile.Loop {
			return Sample{}, ErrSourceDone
		}
		t = math.Mod(t, r.profile.DurationS)
	}
	return r.profile.Eval(t), nil
}

func (r *ReplaySampler) Close() error { return nil }
