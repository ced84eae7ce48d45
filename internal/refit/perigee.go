package refit

import (
	"fmt"
	"math"

	"github.com/banshee-data/trackrefit/internal/trajectory"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

// Perigee parameter indices.
const (
	PerigeeRho   = iota // signed transverse curvature, 1/m
	PerigeeTheta        // polar angle
	PerigeePhi          // azimuth at the point of closest approach
	PerigeeD0           // signed transverse impact parameter, m
	PerigeeZ0           // longitudinal impact parameter, m

	PerigeeDim = 5
)

// Perigee is a leaf state in the perigee parametrization
// (rho, theta, phi, d0, z0), expressed with respect to a reference point,
// typically the fitted vertex.
//
// The curvature carries the sign of the bending: rho = -q·c·Bz/pT.
// Converting to a free state therefore needs a non-zero field.
type Perigee struct {
	leaf

	params *mat.VecDense
	cov    *mat.SymDense
	ref    r3.Vec
}

// NewPerigee builds a perigee state around ref in a field of Bz tesla.
// cov may be nil when no error information is available.
func NewPerigee(params mat.Vector, cov mat.Symmetric, ref r3.Vec, field float64, opts ...Option) (*Ref, error) {
	p, err := checkVector("perigee parameters", params, PerigeeDim)
	if err != nil {
		return nil, err
	}
	c, err := checkCovariance(cov, PerigeeDim)
	if err != nil {
		return nil, err
	}
	if err := checkPoint("reference point", ref); err != nil {
		return nil, err
	}
	if math.IsNaN(field) || math.IsInf(field, 0) {
		return nil, fmt.Errorf("%w: field = %g", ErrNotFinite, field)
	}

	o := collectOptions(opts)
	s := &Perigee{
		leaf:   newLeaf(field, o),
		params: p,
		cov:    c,
		ref:    ref,
	}
	return NewRef(s, o.refOpts...), nil
}

func (p *Perigee) hasCovariance() bool { return p.cov != nil }

// Parameters implements State.
func (p *Perigee) Parameters() *mat.VecDense { return cloneVec(p.params) }

// Covariance implements State.
func (p *Perigee) Covariance() *mat.SymDense { return covarianceOrZero(p.cov, PerigeeDim) }

// Position implements State; it is the reference point.
func (p *Perigee) Position() r3.Vec { return p.ref }

// MomentumVector implements State: (rho, theta, phi).
func (p *Perigee) MomentumVector() *mat.VecDense {
	return mat.NewVecDense(3, []float64{
		p.params.AtVec(PerigeeRho),
		p.params.AtVec(PerigeeTheta),
		p.params.AtVec(PerigeePhi),
	})
}

// StateWithNewWeight implements State.
func (p *Perigee) StateWithNewWeight(weight float64) *Ref {
	cp := *p
	cp.weight = weight
	return NewRef(&cp)
}

// TrajectoryStateOnSurface implements State.
func (p *Perigee) TrajectoryStateOnSurface(surface trajectory.Surface, prop trajectory.Propagator) trajectory.SurfaceState {
	return p.onSurface(p.FreeTrajectoryState, surface, prop)
}

// FreeTrajectoryState implements State. The free state sits at the point
// of closest approach to the reference point.
func (p *Perigee) FreeTrajectoryState() (trajectory.FreeState, error) {
	rho := p.params.AtVec(PerigeeRho)
	theta := p.params.AtVec(PerigeeTheta)
	phi := p.params.AtVec(PerigeePhi)
	d0 := p.params.AtVec(PerigeeD0)
	z0 := p.params.AtVec(PerigeeZ0)

	switch {
	case p.field == 0:
		return trajectory.FreeState{}, fmt.Errorf("%w: curvature needs a non-zero field", ErrInsufficientState)
	case rho == 0:
		return trajectory.FreeState{}, fmt.Errorf("%w: zero curvature", ErrInsufficientState)
	case theta <= 0 || theta >= math.Pi:
		return trajectory.FreeState{}, fmt.Errorf("%w: theta %g outside (0, pi)", ErrInsufficientState, theta)
	}

	pt := trajectory.SpeedOfLight * math.Abs(p.field/rho)
	charge := 1
	if rho*p.field > 0 {
		charge = -1
	}

	sinPhi, cosPhi := math.Sincos(phi)
	sinTheta, cosTheta := math.Sincos(theta)
	px, py, pz := pt*cosPhi, pt*sinPhi, pt*cosTheta/sinTheta

	// d(x, y, z, px, py, pz) / d(rho, theta, phi, d0, z0)
	jac := mat.NewDense(trajectory.FreeDim, PerigeeDim, []float64{
		0, 0, -d0 * cosPhi, -sinPhi, 0,
		0, 0, -d0 * sinPhi, cosPhi, 0,
		0, 0, 0, 0, 1,
		-px / rho, 0, -py, 0, 0,
		-py / rho, 0, px, 0, 0,
		-pz / rho, -pt / (sinTheta * sinTheta), 0, 0, 0,
	})

	fs := trajectory.FreeState{
		Position: r3.Vec{
			X: p.ref.X - d0*sinPhi,
			Y: p.ref.Y + d0*cosPhi,
			Z: p.ref.Z + z0,
		},
		Momentum: r3.Vec{X: px, Y: py, Z: pz},
		Charge:   charge,
		Field:    p.field,
	}
	if p.cov != nil {
		fs.Cov = trajectory.Transport(jac, p.cov)
	}
	return fs, nil
}

func (p *Perigee) angularIndices() (params, momentum []int) {
	return []int{PerigeePhi}, []int{2}
}

// PerigeeFromFree expresses a free state in perigee parameters with
// respect to ref, treating the track as locally straight around the point
// of closest approach. The free state's covariance is not converted; cov
// is used as given.
func PerigeeFromFree(fs trajectory.FreeState, ref r3.Vec, cov mat.Symmetric, opts ...Option) (*Ref, error) {
	pt := fs.Pt()
	if pt == 0 || fs.Charge == 0 || fs.Field == 0 {
		return nil, fmt.Errorf("%w: need transverse momentum, charge and field", ErrInsufficientState)
	}
	phi := math.Atan2(fs.Momentum.Y, fs.Momentum.X)
	theta := math.Atan2(pt, fs.Momentum.Z)
	rho := -float64(fs.Charge) * trajectory.SpeedOfLight * fs.Field / pt

	sinPhi, cosPhi := math.Sincos(phi)
	dx := r3.Sub(fs.Position, ref)
	d0 := -dx.X*sinPhi + dx.Y*cosPhi
	// Slide along the direction of flight to the point of closest approach.
	along := dx.X*cosPhi + dx.Y*sinPhi
	z0 := dx.Z - along*math.Cos(theta)/math.Sin(theta)

	params := mat.NewVecDense(PerigeeDim, []float64{rho, theta, phi, d0, z0})
	return NewPerigee(params, cov, ref, fs.Field, opts...)
}
