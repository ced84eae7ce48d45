package refit

import (
	"errors"
	"fmt"
	"math"

	"github.com/banshee-data/trackrefit/internal/monitoring"
	"github.com/banshee-data/trackrefit/internal/trajectory"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

// ErrEmptyMixture is returned when a mixture is built without components.
var ErrEmptyMixture = errors.New("refit: mixture needs at least one component")

// Mixture is a weighted combination of refitted states, produced by
// multi-hypothesis or Gaussian-sum fits. Components may themselves be
// mixtures.
//
// Collapse rule: wherever a mixture has to act as a single state
// (Parameters, Covariance, Position, MomentumVector, FreeTrajectoryState
// and the Free part of TrajectoryStateOnSurface) its components are merged
// into their weighted mean, with weights normalized by their sum, and the
// covariance Σ ŵᵢ(Cᵢ + dᵢdᵢᵀ) of the Gaussian mixture. Angles are averaged
// on the circle. Free states are merged in Cartesian space.
//
// A mixture holds a share of each component and releases it when its own
// last holder releases. The Refs returned by Components belong to the
// mixture: Share them to keep one.
type Mixture struct {
	components []*Ref
	weight     float64
	trackID    string
	propagator trajectory.Propagator // nil: each component's own default

	params      *mat.VecDense
	cov         *mat.SymDense
	pos         r3.Vec
	mom         *mat.VecDense
	paramAngles []int
	momAngles   []int
}

// NewMixture combines components. Every component weight must lie in
// [0, 1] and at least one must be positive; all components must share a
// parameter dimension. The mixture weight defaults to 1, like a leaf, so
// the result can be nested in another mixture as is; component weights are
// relative and only their ratios enter the collapse.
func NewMixture(components []*Ref, opts ...Option) (*Ref, error) {
	if len(components) == 0 {
		return nil, ErrEmptyMixture
	}

	weights := make([]float64, len(components))
	dim := -1
	for i, c := range components {
		if c == nil || c.State == nil {
			return nil, fmt.Errorf("refit: mixture component %d is nil", i)
		}
		if c.Released() {
			return nil, fmt.Errorf("refit: mixture component %d was already released", i)
		}
		w := c.Weight()
		if math.IsNaN(w) || w < 0 || w > 1 {
			return nil, fmt.Errorf("%w: component %d has weight %g, want [0, 1]", ErrInvalidWeight, i, w)
		}
		weights[i] = w

		n := c.Parameters().Len()
		if dim < 0 {
			dim = n
		} else if n != dim {
			return nil, fmt.Errorf("%w: component %d has %d parameters, want %d", ErrDimension, i, n, dim)
		}
	}
	norm, err := normalizeWeights(weights)
	if err != nil {
		return nil, err
	}

	o := collectOptions(opts)
	m := &Mixture{
		weight:     1,
		trackID:    o.trackID,
		propagator: o.propagator,
	}
	if o.hasWeight {
		m.weight = o.weight
	}
	if a, ok := components[0].State.(angular); ok {
		m.paramAngles, m.momAngles = a.angularIndices()
	}
	m.collapse(components, norm)

	m.components = make([]*Ref, len(components))
	for i, c := range components {
		m.components[i] = c.Share()
	}
	return NewRef(m, o.refOpts...), nil
}

// collapse computes the merged single-state view once; the mixture is
// immutable so it never changes.
func (m *Mixture) collapse(components []*Ref, w []float64) {
	params := make([]*mat.VecDense, len(components))
	covs := make([]*mat.SymDense, len(components))
	moms := make([]*mat.VecDense, len(components))
	withCov := true
	for i, c := range components {
		params[i] = c.Parameters()
		covs[i] = c.Covariance()
		moms[i] = c.MomentumVector()
		withCov = withCov && carriesCovariance(c)

		p := c.Position()
		m.pos = r3.Add(m.pos, r3.Scale(w[i], p))
	}
	m.params = weightedMean(params, w, m.paramAngles)
	m.mom = weightedMean(moms, w, m.momAngles)
	if withCov {
		m.cov = weightedCovariance(params, covs, w, m.params, m.paramAngles)
	}
}

// TrackID returns the ID given at construction, if any.
func (m *Mixture) TrackID() string { return m.trackID }

// Weight implements State.
func (m *Mixture) Weight() float64 { return m.weight }

// Components implements State.
func (m *Mixture) Components() []*Ref {
	return append([]*Ref(nil), m.components...)
}

func (m *Mixture) hasCovariance() bool { return m.cov != nil }

// Parameters implements State; it returns the collapsed parameters.
func (m *Mixture) Parameters() *mat.VecDense { return cloneVec(m.params) }

// Covariance implements State; it returns the collapsed covariance.
func (m *Mixture) Covariance() *mat.SymDense { return covarianceOrZero(m.cov, m.params.Len()) }

// Position implements State; it returns the weighted mean position.
func (m *Mixture) Position() r3.Vec { return m.pos }

// MomentumVector implements State; it returns the collapsed momentum parameters.
func (m *Mixture) MomentumVector() *mat.VecDense { return cloneVec(m.mom) }

// StateWithNewWeight implements State. The new mixture shares the
// receiver's components.
func (m *Mixture) StateWithNewWeight(weight float64) *Ref {
	cp := *m
	cp.weight = weight
	cp.components = make([]*Ref, len(m.components))
	for i, c := range m.components {
		cp.components[i] = c.Share()
	}
	return NewRef(&cp)
}

// FreeTrajectoryState implements State. Components that cannot be
// converted are dropped and the rest collapsed.
func (m *Mixture) FreeTrajectoryState() (trajectory.FreeState, error) {
	states := make([]trajectory.FreeState, 0, len(m.components))
	weights := make([]float64, 0, len(m.components))
	for i, c := range m.components {
		fs, err := c.FreeTrajectoryState()
		if err != nil {
			monitoring.Logf("refit: mixture %s: dropping component %d from free state: %v", m.label(), i, err)
			continue
		}
		states = append(states, fs)
		weights = append(weights, c.Weight())
	}
	if len(states) == 0 {
		return trajectory.FreeState{}, fmt.Errorf("%w: no mixture component could be converted", ErrInsufficientState)
	}
	return collapseFree(states, weights)
}

// TrajectoryStateOnSurface implements State. Every component is
// propagated; those that miss the surface are dropped. The result carries
// the surviving component states and their collapse.
func (m *Mixture) TrajectoryStateOnSurface(surface trajectory.Surface, prop trajectory.Propagator) trajectory.SurfaceState {
	if prop == nil {
		prop = m.propagator
	}

	var (
		valid    []trajectory.SurfaceState
		firstErr error
	)
	for i, c := range m.components {
		ss := c.TrajectoryStateOnSurface(surface, prop)
		if !ss.IsValid() {
			monitoring.Logf("refit: mixture %s: component %d missed %v: %v", m.label(), i, surface, ss.Err())
			if firstErr == nil {
				firstErr = ss.Err()
			}
			continue
		}
		valid = append(valid, ss)
	}
	if len(valid) == 0 {
		return trajectory.Invalid(surface, fmt.Errorf("refit: no mixture component reached %v: %w", surface, firstErr))
	}

	frees := make([]trajectory.FreeState, len(valid))
	weights := make([]float64, len(valid))
	for i, ss := range valid {
		frees[i] = ss.Free
		weights[i] = ss.Weight
	}
	w, err := normalizeWeights(weights)
	if err != nil {
		return trajectory.Invalid(surface, fmt.Errorf("%w: %v", ErrInsufficientState, err))
	}
	free, err := collapseFree(frees, w)
	if err != nil {
		return trajectory.Invalid(surface, err)
	}

	var path float64
	for i, ss := range valid {
		path += w[i] * ss.PathLength
	}

	return trajectory.SurfaceState{
		Free:       free,
		Surface:    surface,
		PathLength: path,
		Weight:     m.weight,
		Components: valid,
	}
}

func (m *Mixture) angularIndices() (params, momentum []int) {
	return m.paramAngles, m.momAngles
}

func (m *Mixture) releaseOwned() {
	for _, c := range m.components {
		c.Release()
	}
}

func (m *Mixture) label() string {
	if m.trackID == "" {
		return fmt.Sprintf("(%d components)", len(m.components))
	}
	return m.trackID
}
