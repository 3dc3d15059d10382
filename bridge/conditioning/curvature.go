package conditioning

import (
	"fmt"
	"math"
	"sync"
)

const (
	// DefaultRadiusLimit bounds |curve radius| in metres. Zero steering is sent as this radius.
	DefaultRadiusLimit = 100000.0

	// PT1 smoothing factors. PT1Min applies with the filter trigger released,
	// PT1Max fully pressed; the larger value reacts faster.
	DefaultPT1Min = 1.0 / 3.0
	DefaultPT1Max = 1.0 / 60.0
)

// EngineConfig parameterizes a CurvatureEngine.
type EngineConfig struct {
	RadiusTable []Point `mapstructure:"radius_table"`
	RadiusLimit float64 `mapstructure:"radius_limit"`
	PT1Min      float64 `mapstructure:"pt1_min"`
	PT1Max      float64 `mapstructure:"pt1_max"`
}

func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		RadiusTable: append([]Point(nil), DefaultRadiusTable...),
		RadiusLimit: DefaultRadiusLimit,
		PT1Min:      DefaultPT1Min,
		PT1Max:      DefaultPT1Max,
	}
}

// FilterState is the memory of the PT1 curvature filter: the previous output.
type FilterState struct {
	Last float64
}

// Step blends in with the previous output and stores the result.
func (s *FilterState) Step(alpha, in float64) float64 {
	s.Last = alpha*in + (1-alpha)*s.Last
	return s.Last
}

// Result is the outcome of one engine tick.
//
// Radius is clamped but not filtered; Curvature is the filtered value.
// The curvature frame carries exactly this pair.
type Result struct {
	Radius    float64
	Curvature float64

	// Diagnostics.
	Steering     float64 // as used: clamped, NaN as 0
	MaxRadius    float64
	RawCurvature float64
	Alpha        float64
	Damping      float64
	FilterRatio  float64
	Singular     bool
}

// CurvatureEngine derives (radius, curvature) from steering and two trigger
// channels. It owns its filter state; use one engine per steering channel.
// Updates are serialized, but callers must submit ticks in time order.
type CurvatureEngine struct {
	table  *InterpolationTable
	limit  float64
	pt1Min float64
	pt1Max float64

	mu       sync.Mutex
	state    FilterState
	lastSign float64
}

func NewCurvatureEngine(cfg EngineConfig) (*CurvatureEngine, error) {
	points := cfg.RadiusTable
	if len(points) == 0 {
		points = DefaultRadiusTable
	}
	table, err := NewInterpolationTable(points)
	if err != nil {
		return nil, err
	}
	for _, p := range points {
		if !(p.Y > 0) {
			return nil, fmt.Errorf("radius table values must be positive, got %g at x=%g", p.Y, p.X)
		}
	}
	if !(cfg.RadiusLimit > 0) || math.IsInf(cfg.RadiusLimit, 0) {
		return nil, fmt.Errorf("radius limit must be positive and finite, got %g", cfg.RadiusLimit)
	}
	for _, a := range []float64{cfg.PT1Min, cfg.PT1Max} {
		if !(a > 0 && a <= 1) {
			return nil, fmt.Errorf("pt1 factors must be in (0,1], got %g", a)
		}
	}
	return &CurvatureEngine{
		table:    table,
		limit:    cfg.RadiusLimit,
		pt1Min:   cfg.PT1Min,
		pt1Max:   cfg.PT1Max,
		lastSign: 1,
	}, nil
}

// Alpha returns the PT1 factor for a normalized filter ratio in [0,1].
func (e *CurvatureEngine) Alpha(filterRatio float64) float64 {
	return (e.pt1Max-e.pt1Min)*ClampFloat(filterRatio, 0, 1) + e.pt1Min
}

// MaxRadius looks up the radius table for a normalized damping value.
func (e *CurvatureEngine) MaxRadius(damping float64) float64 {
	return e.table.Lookup(damping)
}

// RadiusLimit is the largest |Radius| Update returns.
func (e *CurvatureEngine) RadiusLimit() float64 { return e.limit }

// MaxCurvature bounds |RawCurvature| and therefore the filtered Curvature,
// which starts at 0 and only blends raw values.
func (e *CurvatureEngine) MaxCurvature() float64 {
	minRadius := e.limit
	for _, p := range e.table.Points() {
		minRadius = math.Min(minRadius, p.Y)
	}
	return 1 / minRadius
}

// Update runs one tick. steering is the post-deadzone axis in [-1,1];
// dampingTrigger and filterTrigger use the -1 released / 1 pressed convention.
//
// Zero steering has no finite radius. It is reported as the radius limit with
// the sign of the last nonzero steering (positive until one has been seen).
func (e *CurvatureEngine) Update(steering, dampingTrigger, filterTrigger float64) Result {
	steering = ClampFloat(finiteOr(steering, 0), -1, 1)
	damping := NormalizeTrigger(finiteOr(dampingTrigger, -1))
	filterRatio := NormalizeTrigger(finiteOr(filterTrigger, -1))

	e.mu.Lock()
	defer e.mu.Unlock()

	res := Result{
		Steering:    steering,
		Damping:     damping,
		FilterRatio: filterRatio,
		MaxRadius:   e.table.Lookup(ClampFloat(damping, 0, 1)),
	}

	var radius float64
	if steering == 0 {
		radius = e.lastSign * e.limit
		res.Singular = true
	} else {
		e.lastSign = math.Copysign(1, steering)
		radius = res.MaxRadius / steering
	}
	radius = ClampFloat(radius, -e.limit, e.limit)

	res.Radius = radius
	res.RawCurvature = 1 / radius
	res.Alpha = e.Alpha(filterRatio)
	res.Curvature = e.state.Step(res.Alpha, res.RawCurvature)
	return res
}

// State returns a copy of the filter state.
func (e *CurvatureEngine) State() FilterState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Reset restarts the engine: filter output back to 0, sign convention back to positive.
func (e *CurvatureEngine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state = FilterState{}
	e.lastSign = 1
}
