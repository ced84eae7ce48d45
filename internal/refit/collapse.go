package refit

import (
	"fmt"
	"math"

	"github.com/banshee-data/trackrefit/internal/trajectory"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

// normalizeWeights returns w scaled to sum to one.
func normalizeWeights(w []float64) ([]float64, error) {
	sum := floats.Sum(w)
	if !(sum > 0) || math.IsInf(sum, 0) {
		return nil, fmt.Errorf("%w: component weights sum to %g", ErrInvalidWeight, sum)
	}
	out := append([]float64(nil), w...)
	floats.Scale(1/sum, out)
	return out, nil
}

// wrapAngle maps a into (-pi, pi].
func wrapAngle(a float64) float64 {
	a = math.Remainder(a, 2*math.Pi)
	if a <= -math.Pi {
		a += 2 * math.Pi
	}
	return a
}

func contains(idx []int, i int) bool {
	for _, j := range idx {
		if j == i {
			return true
		}
	}
	return false
}

// weightedMean returns Σ wᵢ·vᵢ for normalized w. Entries listed in angles
// are averaged on the circle.
func weightedMean(vecs []*mat.VecDense, w []float64, angles []int) *mat.VecDense {
	n := vecs[0].Len()
	mean := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		if contains(angles, i) {
			var s, c float64
			for k, v := range vecs {
				sin, cos := math.Sincos(v.AtVec(i))
				s += w[k] * sin
				c += w[k] * cos
			}
			mean.SetVec(i, math.Atan2(s, c))
			continue
		}
		var acc float64
		for k, v := range vecs {
			acc += w[k] * v.AtVec(i)
		}
		mean.SetVec(i, acc)
	}
	return mean
}

// weightedCovariance returns Σ wᵢ·(Cᵢ + dᵢ·dᵢᵀ) with dᵢ = vᵢ - mean, the
// covariance of the Gaussian mixture. A nil covs treats every Cᵢ as zero.
func weightedCovariance(vecs []*mat.VecDense, covs []*mat.SymDense, w []float64, mean *mat.VecDense, angles []int) *mat.SymDense {
	n := mean.Len()
	out := mat.NewSymDense(n, nil)
	var scaled mat.SymDense
	d := mat.NewVecDense(n, nil)
	for k, v := range vecs {
		if covs != nil {
			scaled.ScaleSym(w[k], covs[k])
			out.AddSym(out, &scaled)
		}
		d.SubVec(v, mean)
		for _, i := range angles {
			d.SetVec(i, wrapAngle(d.AtVec(i)))
		}
		out.SymRankOne(out, w[k], d)
	}
	return out
}

// collapseFree merges weighted free states into one. All states must share
// a charge; the covariance is kept only if every state has one.
func collapseFree(states []trajectory.FreeState, weights []float64) (trajectory.FreeState, error) {
	if len(states) == 0 {
		return trajectory.FreeState{}, fmt.Errorf("%w: nothing to collapse", ErrInsufficientState)
	}
	for _, fs := range states[1:] {
		if fs.Charge != states[0].Charge {
			return trajectory.FreeState{}, fmt.Errorf("%w: components disagree on charge (%d vs %d)",
				ErrInsufficientState, states[0].Charge, fs.Charge)
		}
	}
	w, err := normalizeWeights(weights)
	if err != nil {
		return trajectory.FreeState{}, fmt.Errorf("%w: %v", ErrInsufficientState, err)
	}

	vecs := make([]*mat.VecDense, len(states))
	covs := make([]*mat.SymDense, len(states))
	withCov := true
	for i, fs := range states {
		vecs[i] = mat.NewVecDense(trajectory.FreeDim, fs.Vector())
		covs[i] = fs.Cov
		withCov = withCov && fs.HasError()
	}

	mean := weightedMean(vecs, w, nil)
	out := trajectory.FreeState{
		Position: r3.Vec{X: mean.AtVec(0), Y: mean.AtVec(1), Z: mean.AtVec(2)},
		Momentum: r3.Vec{X: mean.AtVec(3), Y: mean.AtVec(4), Z: mean.AtVec(5)},
		Charge:   states[0].Charge,
		Field:    states[0].Field,
	}
	if withCov {
		out.Cov = weightedCovariance(vecs, covs, w, mean, nil)
	}
	return out, nil
}
