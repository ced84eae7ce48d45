package refit

import (
	"fmt"
	"math"

	"github.com/banshee-data/trackrefit/internal/trajectory"
	"github.com/google/uuid"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

// leaf holds what every single-hypothesis variant shares.
type leaf struct {
	weight     float64
	trackID    string
	field      float64 // Bz in Tesla
	propagator trajectory.Propagator
}

func newLeaf(field float64, o options) leaf {
	l := leaf{
		weight:     1,
		trackID:    o.trackID,
		field:      field,
		propagator: o.propagator,
	}
	if o.hasWeight {
		l.weight = o.weight
	}
	if l.trackID == "" {
		l.trackID = uuid.NewString()
	}
	if l.propagator == nil {
		l.propagator = trajectory.DefaultPropagator(field)
	}
	return l
}

// Weight implements State.
func (l leaf) Weight() float64 { return l.weight }

// Components implements State; leaves have none.
func (l leaf) Components() []*Ref { return nil }

// TrackID returns the ID of the refitted track.
func (l leaf) TrackID() string { return l.trackID }

// Field returns the magnetic field the state was refitted in.
func (l leaf) Field() float64 { return l.field }

// onSurface converts through the free state and propagates it.
func (l leaf) onSurface(free func() (trajectory.FreeState, error), surface trajectory.Surface, prop trajectory.Propagator) trajectory.SurfaceState {
	fs, err := free()
	if err != nil {
		return trajectory.Invalid(surface, err)
	}
	if prop == nil {
		prop = l.propagator
	}
	ss := prop.Propagate(fs, surface)
	if ss.IsValid() {
		ss.Weight = l.weight
	}
	return ss
}

func checkVector(name string, v mat.Vector, n int) (*mat.VecDense, error) {
	if v == nil || v.Len() != n {
		got := 0
		if v != nil {
			got = v.Len()
		}
		return nil, fmt.Errorf("%w: %s has length %d, want %d", ErrDimension, name, got, n)
	}
	out := mat.NewVecDense(n, nil)
	out.CloneFromVec(v)
	for i := 0; i < n; i++ {
		if x := out.AtVec(i); math.IsNaN(x) || math.IsInf(x, 0) {
			return nil, fmt.Errorf("%w: %s[%d] = %g", ErrNotFinite, name, i, x)
		}
	}
	return out, nil
}

// checkCovariance copies c. A nil c means no error information and stays
// nil.
func checkCovariance(c mat.Symmetric, n int) (*mat.SymDense, error) {
	if c == nil {
		return nil, nil
	}
	if c.SymmetricDim() != n {
		return nil, fmt.Errorf("%w: covariance dimension %d, want %d", ErrDimension, c.SymmetricDim(), n)
	}
	out := mat.NewSymDense(n, nil)
	out.CopySym(c)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			if x := out.At(i, j); math.IsNaN(x) || math.IsInf(x, 0) {
				return nil, fmt.Errorf("%w: covariance[%d][%d] = %g", ErrNotFinite, i, j, x)
			}
		}
	}
	return out, nil
}

func checkPoint(name string, p r3.Vec) error {
	for _, x := range []float64{p.X, p.Y, p.Z} {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return fmt.Errorf("%w: %s = (%g, %g, %g)", ErrNotFinite, name, p.X, p.Y, p.Z)
		}
	}
	return nil
}

func cloneVec(v *mat.VecDense) *mat.VecDense {
	out := mat.NewVecDense(v.Len(), nil)
	out.CloneFromVec(v)
	return out
}

// cloneSym copies s; nil stays nil.
func cloneSym(s *mat.SymDense) *mat.SymDense {
	if s == nil {
		return nil
	}
	out := mat.NewSymDense(s.SymmetricDim(), nil)
	out.CopySym(s)
	return out
}

// covarianceOrZero copies s, or returns an n×n zero matrix when the state
// carries no error information.
func covarianceOrZero(s *mat.SymDense, n int) *mat.SymDense {
	if s == nil {
		return mat.NewSymDense(n, nil)
	}
	return cloneSym(s)
}
