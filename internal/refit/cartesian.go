package refit

import (
	"fmt"
	"math"

	"github.com/banshee-data/trackrefit/internal/trajectory"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

// CartesianDim is the length of a Cartesian parameter vector
// (x, y, z, px, py, pz).
const CartesianDim = trajectory.FreeDim

// Cartesian is a leaf state parametrized by position and momentum. It maps
// one-to-one onto a free trajectory state.
type Cartesian struct {
	leaf

	params *mat.VecDense
	cov    *mat.SymDense
	charge int
}

// NewCartesian builds a Cartesian state from (x, y, z, px, py, pz) and its
// covariance. cov may be nil when no error information is available.
func NewCartesian(params mat.Vector, cov mat.Symmetric, charge int, field float64, opts ...Option) (*Ref, error) {
	p, err := checkVector("cartesian parameters", params, CartesianDim)
	if err != nil {
		return nil, err
	}
	c, err := checkCovariance(cov, CartesianDim)
	if err != nil {
		return nil, err
	}
	if math.IsNaN(field) || math.IsInf(field, 0) {
		return nil, fmt.Errorf("%w: field = %g", ErrNotFinite, field)
	}

	o := collectOptions(opts)
	s := &Cartesian{
		leaf:   newLeaf(field, o),
		params: p,
		cov:    c,
		charge: charge,
	}
	return NewRef(s, o.refOpts...), nil
}

// CartesianFromFree wraps a free state. The free state's field is kept.
func CartesianFromFree(fs trajectory.FreeState, opts ...Option) (*Ref, error) {
	var cov mat.Symmetric
	if fs.Cov != nil {
		cov = fs.Cov
	}
	return NewCartesian(mat.NewVecDense(CartesianDim, fs.Vector()), cov, fs.Charge, fs.Field, opts...)
}

// Charge returns the particle charge in units of e.
func (c *Cartesian) Charge() int { return c.charge }

func (c *Cartesian) hasCovariance() bool { return c.cov != nil }

// Parameters implements State.
func (c *Cartesian) Parameters() *mat.VecDense { return cloneVec(c.params) }

// Covariance implements State.
func (c *Cartesian) Covariance() *mat.SymDense { return covarianceOrZero(c.cov, CartesianDim) }

// Position implements State.
func (c *Cartesian) Position() r3.Vec {
	return r3.Vec{X: c.params.AtVec(0), Y: c.params.AtVec(1), Z: c.params.AtVec(2)}
}

// MomentumVector implements State: (px, py, pz).
func (c *Cartesian) MomentumVector() *mat.VecDense {
	return mat.NewVecDense(3, []float64{c.params.AtVec(3), c.params.AtVec(4), c.params.AtVec(5)})
}

// StateWithNewWeight implements State.
func (c *Cartesian) StateWithNewWeight(weight float64) *Ref {
	cp := *c
	cp.weight = weight
	return NewRef(&cp)
}

// FreeTrajectoryState implements State.
func (c *Cartesian) FreeTrajectoryState() (trajectory.FreeState, error) {
	mom := r3.Vec{X: c.params.AtVec(3), Y: c.params.AtVec(4), Z: c.params.AtVec(5)}
	if r3.Norm(mom) == 0 {
		return trajectory.FreeState{}, fmt.Errorf("%w: zero momentum", ErrInsufficientState)
	}
	return trajectory.FreeState{
		Position: c.Position(),
		Momentum: mom,
		Charge:   c.charge,
		Field:    c.field,
		Cov:      cloneSym(c.cov),
	}, nil
}

// TrajectoryStateOnSurface implements State.
func (c *Cartesian) TrajectoryStateOnSurface(surface trajectory.Surface, prop trajectory.Propagator) trajectory.SurfaceState {
	return c.onSurface(c.FreeTrajectoryState, surface, prop)
}
