package trajectory

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

// SpeedOfLight converts field × curvature radius into transverse momentum:
// pT [GeV/c] = SpeedOfLight × |B| [T] × R [m].
const SpeedOfLight = 0.299792458

// FreeDim is the dimension of the Cartesian free-state vector
// (x, y, z, px, py, pz).
const FreeDim = 6

var (
	// ErrNoIntersection means the trajectory never reaches the surface in
	// the allowed direction.
	ErrNoIntersection = errors.New("trajectory: no intersection with surface")
	// ErrMaxPathExceeded means the surface lies beyond the allowed path length.
	ErrMaxPathExceeded = errors.New("trajectory: path length exceeds limit")
	// ErrUnsupportedSurface means the propagator cannot handle the surface type.
	ErrUnsupportedSurface = errors.New("trajectory: unsupported surface")
	// ErrZeroMomentum means the state has no direction to propagate along.
	ErrZeroMomentum = errors.New("trajectory: zero momentum")
	// ErrNoState is reported by the zero SurfaceState.
	ErrNoState = errors.New("trajectory: empty surface state")
)

// FreeState is a trajectory state not tied to any surface: a point, the
// momentum there, the charge, and optionally the 6×6 covariance over
// (x, y, z, px, py, pz).
type FreeState struct {
	Position r3.Vec
	Momentum r3.Vec
	Charge   int
	Field    float64 // Bz in Tesla where the state was defined

	// Cov is nil when no error information is available.
	Cov *mat.SymDense
}

// HasError reports whether the state carries a covariance.
func (f FreeState) HasError() bool {
	return f.Cov != nil
}

// P returns the momentum magnitude.
func (f FreeState) P() float64 {
	return r3.Norm(f.Momentum)
}

// Pt returns the transverse momentum.
func (f FreeState) Pt() float64 {
	return math.Hypot(f.Momentum.X, f.Momentum.Y)
}

// Direction returns the unit momentum direction, or the zero vector for a
// state at rest.
func (f FreeState) Direction() r3.Vec {
	p := f.P()
	if p == 0 {
		return r3.Vec{}
	}
	return r3.Scale(1/p, f.Momentum)
}

// Vector returns (x, y, z, px, py, pz).
func (f FreeState) Vector() []float64 {
	return []float64{
		f.Position.X, f.Position.Y, f.Position.Z,
		f.Momentum.X, f.Momentum.Y, f.Momentum.Z,
	}
}

func (f FreeState) withVector(v []float64) FreeState {
	f.Position = r3.Vec{X: v[0], Y: v[1], Z: v[2]}
	f.Momentum = r3.Vec{X: v[3], Y: v[4], Z: v[5]}
	return f
}

// String implements fmt.Stringer.
func (f FreeState) String() string {
	return fmt.Sprintf("free{pos=(%.4g,%.4g,%.4g) p=(%.4g,%.4g,%.4g) q=%d}",
		f.Position.X, f.Position.Y, f.Position.Z,
		f.Momentum.X, f.Momentum.Y, f.Momentum.Z, f.Charge)
}

// SurfaceState is a trajectory state bound to a surface. A propagation
// that fails still yields a SurfaceState; callers must check IsValid
// before reading Free.
//
// A mixture propagated onto a surface yields a SurfaceState whose Free is
// the collapsed state and whose Components hold the per-component results.
type SurfaceState struct {
	Free       FreeState
	Surface    Surface
	PathLength float64 // signed path length travelled to reach Surface
	Weight     float64
	Components []SurfaceState

	err error
}

// Invalid returns a SurfaceState that records why surf was not reached.
func Invalid(surf Surface, err error) SurfaceState {
	if err == nil {
		err = ErrNoState
	}
	return SurfaceState{Surface: surf, err: err}
}

// IsValid reports whether the state was successfully placed on its surface.
func (s SurfaceState) IsValid() bool {
	return s.err == nil && s.Surface != nil
}

// Err returns the reason an invalid state could not be produced, or nil.
func (s SurfaceState) Err() error {
	if s.err != nil {
		return s.err
	}
	if s.Surface == nil {
		return ErrNoState
	}
	return nil
}

// Transport returns J·C·Jᵀ as a symmetric matrix. It is used both for
// parameter conversions and for covariance propagation.
func Transport(j mat.Matrix, c mat.Symmetric) *mat.SymDense {
	r, _ := j.Dims()
	var jc, out mat.Dense
	jc.Mul(j, c)
	out.Mul(&jc, j.T())

	sym := mat.NewSymDense(r, nil)
	for i := 0; i < r; i++ {
		for k := i; k < r; k++ {
			sym.SetSym(i, k, 0.5*(out.At(i, k)+out.At(k, i)))
		}
	}
	return sym
}
