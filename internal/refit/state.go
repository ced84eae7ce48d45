package refit

import (
	"errors"

	"github.com/banshee-data/trackrefit/internal/trajectory"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

var (
	// ErrInsufficientState means a state lacks the information needed to
	// build a free or surface-bound representation.
	ErrInsufficientState = errors.New("refit: insufficient state for conversion")
	// ErrDimension means a parameter vector or covariance has the wrong size.
	ErrDimension = errors.New("refit: dimension mismatch")
	// ErrInvalidWeight means a mixture component weight is out of range.
	ErrInvalidWeight = errors.New("refit: invalid weight")
	// ErrNotFinite means a parameter, covariance entry or point is NaN or Inf.
	ErrNotFinite = errors.New("refit: non-finite value")
)

// State is a refitted track state. Every variant implements all methods
// with the same semantics, so callers never need to know which variant
// they hold.
type State interface {
	// FreeTrajectoryState converts the state into a free trajectory state.
	// Errors wrap ErrInsufficientState.
	FreeTrajectoryState() (trajectory.FreeState, error)

	// TrajectoryStateOnSurface re-expresses the state on surface using
	// propagator, or the state's default propagator when propagator is
	// nil. Failures come back as an invalid SurfaceState.
	TrajectoryStateOnSurface(surface trajectory.Surface, propagator trajectory.Propagator) trajectory.SurfaceState

	// Parameters returns a copy of the parameters in the variant's native
	// parametrization.
	Parameters() *mat.VecDense

	// Covariance returns a copy of the parameter covariance.
	Covariance() *mat.SymDense

	// Position returns the point at which the momentum is defined.
	Position() r3.Vec

	// MomentumVector returns a copy of the parameters describing the
	// momentum at Position.
	MomentumVector() *mat.VecDense

	// Weight is the state's weight in a mixture; 1 for a standalone leaf.
	Weight() float64

	// StateWithNewWeight returns a new state of the same variant that
	// differs only in its weight. The receiver is unchanged.
	StateWithNewWeight(weight float64) *Ref

	// Components returns the direct sub-states of a mixture, in order.
	// Leaves return no components.
	Components() []*Ref
}

// angular is implemented by variants whose parametrization contains
// angles that must be averaged on the circle.
type angular interface {
	angularIndices() (params, momentum []int)
}

// covarianceCarrier is implemented by variants that can be built without
// error information.
type covarianceCarrier interface {
	hasCovariance() bool
}

// carriesCovariance reports whether s carries error information. Covariance
// returns a zero matrix for states that do not.
func carriesCovariance(s State) bool {
	if r, ok := s.(*Ref); ok {
		s = r.State
	}
	c, ok := s.(covarianceCarrier)
	return !ok || c.hasCovariance()
}

// options collects constructor options for every variant.
type options struct {
	weight     float64
	hasWeight  bool
	trackID    string
	propagator trajectory.Propagator
	refOpts    []RefOption
}

// Option configures a state constructor.
type Option func(*options)

// WithWeight sets the state's weight. Leaves and mixtures default to 1.
func WithWeight(w float64) Option {
	return func(o *options) {
		o.weight = w
		o.hasWeight = true
	}
}

// WithTrackID labels the state with the ID of the track it refits.
// A random UUID is used when unset.
func WithTrackID(id string) Option {
	return func(o *options) { o.trackID = id }
}

// WithDefaultPropagator replaces the propagator used when
// TrajectoryStateOnSurface is called with a nil propagator.
func WithDefaultPropagator(p trajectory.Propagator) Option {
	return func(o *options) { o.propagator = p }
}

// WithReleaseHook registers fn to run once when the last holder of the
// returned Ref releases it.
func WithReleaseHook(fn func(State)) Option {
	return func(o *options) { o.refOpts = append(o.refOpts, ReleaseHook(fn)) }
}

func collectOptions(opts []Option) options {
	var o options
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}
