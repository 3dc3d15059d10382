package conditioning

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/interp"
)

// Point is one control point of an InterpolationTable.
type Point struct {
	X float64 `mapstructure:"x" yaml:"x"`
	Y float64 `mapstructure:"y" yaml:"y"`
}

// DefaultRadiusTable maps damping (0..1) to the maximum curve radius in metres:
// more damping gives a tighter maximum radius.
var DefaultRadiusTable = []Point{
	{X: 0, Y: 190},
	{X: 0.5, Y: 60},
	{X: 1, Y: 10},
}

// InterpolationTable is a piecewise-linear lookup over a closed domain.
// Lookups outside the domain are clamped to its ends; there is no extrapolation.
type InterpolationTable struct {
	points []Point
	fn     interp.PiecewiseLinear
}

func NewInterpolationTable(points []Point) (*InterpolationTable, error) {
	if len(points) < 2 {
		return nil, errors.New("interpolation table needs at least two points")
	}
	xs := make([]float64, len(points))
	ys := make([]float64, len(points))
	for i, p := range points {
		if i > 0 && p.X <= points[i-1].X {
			return nil, fmt.Errorf("interpolation table x values must be strictly increasing (x[%d]=%g, x[%d]=%g)",
				i-1, points[i-1].X, i, p.X)
		}
		xs[i], ys[i] = p.X, p.Y
	}

	t := &InterpolationTable{points: append([]Point(nil), points...)}
	if err := t.fn.Fit(xs, ys); err != nil {
		return nil, fmt.Errorf("fit interpolation table: %w", err)
	}
	return t, nil
}

// Domain returns the first and last x of the table.
func (t *InterpolationTable) Domain() (lo, hi float64) {
	return t.points[0].X, t.points[len(t.points)-1].X
}

func (t *InterpolationTable) Lookup(x float64) float64 {
	lo, hi := t.Domain()
	return t.fn.Predict(ClampFloat(finiteOr(x, lo), lo, hi))
}

// Points returns a copy of the control points.
func (t *InterpolationTable) Points() []Point {
	return append([]Point(nil), t.points...)
}
