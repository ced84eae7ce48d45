package trajectory

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// StraightLinePropagator moves a state along its momentum direction,
// ignoring the field. It is exact for neutral particles or a zero field.
type StraightLinePropagator struct {
	Settings Settings
}

// Propagate implements Propagator.
func (p StraightLinePropagator) Propagate(state FreeState, surface Surface) SurfaceState {
	return propagate(state, surface, state.Field, p.Settings, p.solve, stepLine)
}

func (p StraightLinePropagator) solve(state FreeState, surf Surface) (float64, error) {
	cands, err := lineIntersections(state, surf)
	if err != nil {
		return 0, err
	}
	return selectPath(cands, p.Settings.Direction, p.Settings.Tolerance)
}

// lineIntersections returns every path length at which the straight line
// through state meets surf.
func lineIntersections(state FreeState, surf Surface) ([]float64, error) {
	u := state.Direction()
	if u == (r3.Vec{}) {
		return nil, ErrZeroMomentum
	}
	x := state.Position

	switch s := surfaceValue(surf).(type) {
	case Plane:
		denom := r3.Dot(s.Normal, u)
		if math.Abs(denom) < 1e-12 {
			return nil, ErrNoIntersection
		}
		return []float64{r3.Dot(s.Normal, r3.Sub(s.Origin, x)) / denom}, nil

	case Cylinder:
		a := u.X*u.X + u.Y*u.Y
		if a < 1e-15 {
			return nil, ErrNoIntersection
		}
		b := 2 * (x.X*u.X + x.Y*u.Y)
		c := x.X*x.X + x.Y*x.Y - s.Radius*s.Radius
		disc := b*b - 4*a*c
		if disc < 0 {
			return nil, ErrNoIntersection
		}
		sq := math.Sqrt(disc)
		return []float64{(-b - sq) / (2 * a), (-b + sq) / (2 * a)}, nil

	default:
		return nil, ErrUnsupportedSurface
	}
}

func stepLine(dst, v []float64, _ int, path float64) {
	p := math.Sqrt(v[3]*v[3] + v[4]*v[4] + v[5]*v[5])
	for i := 0; i < 3; i++ {
		dst[i] = v[i] + path*v[i+3]/p
		dst[i+3] = v[i+3]
	}
}
