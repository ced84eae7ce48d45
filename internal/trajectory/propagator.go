package trajectory

import (
	"fmt"
	"math"
	"sort"

	"github.com/banshee-data/trackrefit/internal/config"
	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/mat"
)

// Propagator carries a free state to a surface. A propagation failure is
// returned as an invalid SurfaceState, never as a panic.
type Propagator interface {
	Propagate(state FreeState, surface Surface) SurfaceState
}

// Direction restricts which intersections a propagator may select.
type Direction int

const (
	// Forward accepts only non-negative path lengths.
	Forward Direction = iota
	// AnyDirection takes the intersection with the shortest |path|.
	AnyDirection
)

func (d Direction) String() string {
	switch d {
	case Forward:
		return config.DirectionForward
	case AnyDirection:
		return config.DirectionAny
	default:
		return fmt.Sprintf("direction(%d)", int(d))
	}
}

// Settings are shared by all propagators. Settings is comparable, so two
// propagators built from equal settings compare equal.
type Settings struct {
	Direction     Direction
	MaxPathLength float64 // metres
	Tolerance     float64 // metres
	MaxIterations int
	JacobianStep  float64
}

// DefaultSettings returns the built-in propagation settings. They match
// config.DefaultRefitConfig.
func DefaultSettings() Settings {
	return SettingsFromConfig(config.EmptyRefitConfig())
}

// SettingsFromConfig derives propagation settings from a loaded RefitConfig.
func SettingsFromConfig(cfg *config.RefitConfig) Settings {
	dir := Forward
	if cfg.GetDirection() == config.DirectionAny {
		dir = AnyDirection
	}
	return Settings{
		Direction:     dir,
		MaxPathLength: cfg.GetMaxPathLength(),
		Tolerance:     cfg.GetIntersectionTolerance(),
		MaxIterations: cfg.GetMaxIterations(),
		JacobianStep:  cfg.GetJacobianStep(),
	}
}

// DefaultPropagator returns the propagator used when a caller does not
// supply one: a helix in a non-zero field, a straight line otherwise, both
// with DefaultSettings.
func DefaultPropagator(field float64) Propagator {
	if field != 0 {
		return HelixPropagator{Field: field, Settings: DefaultSettings()}
	}
	return StraightLinePropagator{Settings: DefaultSettings()}
}

// PropagatorFromConfig builds the propagator named by cfg.
func PropagatorFromConfig(cfg *config.RefitConfig) Propagator {
	set := SettingsFromConfig(cfg)
	switch cfg.GetPropagator() {
	case config.PropagatorStraight:
		return StraightLinePropagator{Settings: set}
	case config.PropagatorHelix:
		return HelixPropagator{Field: cfg.GetFieldTesla(), Settings: set}
	default:
		if cfg.GetFieldTesla() != 0 {
			return HelixPropagator{Field: cfg.GetFieldTesla(), Settings: set}
		}
		return StraightLinePropagator{Settings: set}
	}
}

// solveFunc finds the path length from state to surf.
type solveFunc func(state FreeState, surf Surface) (float64, error)

// stepFunc advances the free vector v of a particle with the given charge
// by path, writing the result into dst.
type stepFunc func(dst, v []float64, charge int, path float64)

// propagate is the common driver: solve for the path, step the state, and
// transport the covariance with a numerical Jacobian of the whole
// state-to-surface map.
func propagate(state FreeState, surf Surface, field float64, set Settings, solve solveFunc, step stepFunc) SurfaceState {
	if surf == nil {
		return Invalid(nil, ErrUnsupportedSurface)
	}
	if state.P() == 0 {
		return Invalid(surf, ErrZeroMomentum)
	}

	path, err := solve(state, surf)
	if err != nil {
		return Invalid(surf, err)
	}
	if math.Abs(path) > set.MaxPathLength {
		return Invalid(surf, fmt.Errorf("%w: %.4g m > %.4g m", ErrMaxPathExceeded, math.Abs(path), set.MaxPathLength))
	}

	x := state.Vector()
	out := make([]float64, FreeDim)
	step(out, x, state.Charge, path)

	result := state.withVector(out)
	result.Field = field
	result.Cov = nil

	if state.Cov != nil {
		jac := mat.NewDense(FreeDim, FreeDim, nil)
		branch := 1e-3 * math.Max(1, math.Abs(path))
		fd.Jacobian(jac, func(y, v []float64) {
			s, err := solve(state.withVector(v), surf)
			if err != nil || math.Abs(s-path) > branch {
				// Perturbation left the solution branch; hold the path fixed.
				s = path
			}
			step(y, v, state.Charge, s)
		}, x, &fd.JacobianSettings{
			Formula: fd.Central,
			Step:    set.JacobianStep,
		})
		result.Cov = Transport(jac, state.Cov)
	}

	return SurfaceState{
		Free:       result,
		Surface:    surf,
		PathLength: path,
		Weight:     1,
	}
}

// selectPath picks the intersection allowed by dir from the candidates.
func selectPath(candidates []float64, dir Direction, tol float64) (float64, error) {
	if len(candidates) == 0 {
		return 0, ErrNoIntersection
	}
	sorted := append([]float64(nil), candidates...)
	if dir == AnyDirection {
		sort.Slice(sorted, func(i, j int) bool { return math.Abs(sorted[i]) < math.Abs(sorted[j]) })
		return sorted[0], nil
	}
	sort.Float64s(sorted)
	for _, s := range sorted {
		if s >= -tol {
			return math.Max(s, 0), nil
		}
	}
	return 0, ErrNoIntersection
}
