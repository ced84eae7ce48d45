package trajectory

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// HelixPropagator moves a charged state along a helix in a uniform field
// Bz = Field. Cylinders are intersected analytically; planes by Newton
// iteration on the path length.
type HelixPropagator struct {
	Field    float64 // Tesla
	Settings Settings
}

// Propagate implements Propagator.
func (p HelixPropagator) Propagate(state FreeState, surface Surface) SurfaceState {
	return propagate(state, surface, p.Field, p.Settings, p.solve, p.step)
}

// omega is the turning rate per unit path length; zero for a straight line.
func (p HelixPropagator) omega(charge int, pmag float64) float64 {
	if charge == 0 || p.Field == 0 || pmag == 0 {
		return 0
	}
	return float64(charge) * SpeedOfLight * p.Field / pmag
}

func (p HelixPropagator) step(dst, v []float64, charge int, path float64) {
	pmag := math.Sqrt(v[3]*v[3] + v[4]*v[4] + v[5]*v[5])
	w := p.omega(charge, pmag)
	if math.Abs(w*path) < 1e-12 {
		stepLine(dst, v, charge, path)
		return
	}
	k := w * pmag
	sin, cos := math.Sincos(w * path)
	px, py, pz := v[3], v[4], v[5]

	dst[0] = v[0] + (px*sin+py*(1-cos))/k
	dst[1] = v[1] + (py*sin-px*(1-cos))/k
	dst[2] = v[2] + pz*path/pmag
	dst[3] = px*cos + py*sin
	dst[4] = py*cos - px*sin
	dst[5] = pz
}

func (p HelixPropagator) solve(state FreeState, surf Surface) (float64, error) {
	w := p.omega(state.Charge, state.P())
	if w == 0 {
		cands, err := lineIntersections(state, surf)
		if err != nil {
			return 0, err
		}
		return selectPath(cands, p.Settings.Direction, p.Settings.Tolerance)
	}

	switch s := surfaceValue(surf).(type) {
	case Cylinder:
		cands, err := p.cylinderIntersections(state, s, w)
		if err != nil {
			return 0, err
		}
		return selectPath(cands, p.Settings.Direction, p.Settings.Tolerance)
	case Plane:
		return p.planePath(state, s)
	default:
		return 0, ErrUnsupportedSurface
	}
}

// cylinderIntersections intersects the transverse circle of the helix with
// the cylinder and converts each crossing into path lengths one turn apart.
func (p HelixPropagator) cylinderIntersections(state FreeState, cyl Cylinder, w float64) ([]float64, error) {
	k := w * state.P()
	px, py := state.Momentum.X, state.Momentum.Y
	pt := math.Hypot(px, py)
	if pt == 0 {
		// Moving along z: the transverse position never changes.
		return nil, ErrNoIntersection
	}

	cx := state.Position.X + py/k
	cy := state.Position.Y - px/k
	rh := pt / math.Abs(k)
	d := math.Hypot(cx, cy)
	r := cyl.Radius

	if d < 1e-12 || d > r+rh || d < math.Abs(r-rh) {
		return nil, ErrNoIntersection
	}

	a := (r*r - rh*rh + d*d) / (2 * d)
	h := math.Sqrt(math.Max(0, r*r-a*a))
	bx, by := a*cx/d, a*cy/d
	ox, oy := -cy/d*h, cx/d*h

	// Radius vector from the centre to the start point; it rotates by -w·s.
	v0x, v0y := state.Position.X-cx, state.Position.Y-cy
	period := 2 * math.Pi / math.Abs(w)

	var cands []float64
	for _, sign := range []float64{1, -1} {
		qx, qy := bx+sign*ox-cx, by+sign*oy-cy
		alpha := math.Atan2(v0x*qy-v0y*qx, v0x*qx+v0y*qy)
		s0 := -alpha / w
		cands = append(cands, s0-period, s0, s0+period)
	}
	return cands, nil
}

// planePath finds the helix path to a plane by Newton iteration, seeded
// with the straight-line solution.
func (p HelixPropagator) planePath(state FreeState, pl Plane) (float64, error) {
	s := 0.0
	if cands, err := lineIntersections(state, pl); err == nil {
		if seed, err := selectPath(cands, p.Settings.Direction, p.Settings.Tolerance); err == nil {
			s = seed
		}
	}

	x := state.Vector()
	y := make([]float64, FreeDim)
	for i := 0; i < p.Settings.MaxIterations; i++ {
		p.step(y, x, state.Charge, s)
		pos := r3.Vec{X: y[0], Y: y[1], Z: y[2]}
		f := pl.SignedDistance(pos)
		if math.Abs(f) < p.Settings.Tolerance {
			if p.Settings.Direction == Forward && s < -p.Settings.Tolerance {
				return 0, ErrNoIntersection
			}
			return s, nil
		}
		dir := r3.Unit(r3.Vec{X: y[3], Y: y[4], Z: y[5]})
		fp := r3.Dot(pl.Normal, dir)
		if math.Abs(fp) < 1e-12 {
			return 0, ErrNoIntersection
		}
		s -= f / fp
		if math.Abs(s) > 2*p.Settings.MaxPathLength {
			return 0, fmt.Errorf("%w: newton iteration diverged", ErrMaxPathExceeded)
		}
	}
	return 0, fmt.Errorf("%w: no convergence after %d iterations", ErrNoIntersection, p.Settings.MaxIterations)
}
