package refit

import (
	"fmt"
	"sync"
	"testing"

	"github.com/banshee-data/trackrefit/internal/monitoring"
	"github.com/banshee-data/trackrefit/internal/trajectory"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

const testField = 3.8

var testRef = r3.Vec{X: 0.001, Y: -0.002, Z: 0.05}

func perigeeCov() *mat.SymDense {
	c := mat.NewSymDense(PerigeeDim, nil)
	for i, v := range []float64{1e-6, 1e-6, 1e-6, 1e-5, 1e-5} {
		c.SetSym(i, i, v)
	}
	c.SetSym(PerigeeRho, PerigeePhi, 2e-7)
	return c
}

// newTestPerigee builds a perigee state; rho = -0.3/m gives a positive
// track of pT ≈ 3.8 GeV with a 3.3 m bending radius in 3.8 T.
func newTestPerigee(t *testing.T, params []float64, opts ...Option) *Ref {
	t.Helper()
	if params == nil {
		params = []float64{-0.3, 1.2, 0.4, 0.01, -0.02}
	}
	r, err := NewPerigee(mat.NewVecDense(PerigeeDim, params), perigeeCov(), testRef, testField, opts...)
	require.NoError(t, err)
	return r
}

func newTestCartesian(t *testing.T, params []float64, field float64, opts ...Option) *Ref {
	t.Helper()
	if params == nil {
		params = []float64{0.01, 0.02, 0.03, 1.5, -0.5, 0.8}
	}
	cov := mat.NewSymDense(CartesianDim, nil)
	for i := 0; i < CartesianDim; i++ {
		cov.SetSym(i, i, 1e-4*float64(i+1))
	}
	r, err := NewCartesian(mat.NewVecDense(CartesianDim, params), cov, 1, field, opts...)
	require.NoError(t, err)
	return r
}

func newTestMixture(t *testing.T, opts ...Option) *Ref {
	t.Helper()
	a := newTestPerigee(t, []float64{-0.3, 1.2, 0.4, 0.01, -0.02})
	b := newTestPerigee(t, []float64{-0.28, 1.21, 0.41, 0.012, -0.018})
	defer a.Release()
	defer b.Release()

	wa := a.StateWithNewWeight(0.25)
	wb := b.StateWithNewWeight(0.75)
	defer wa.Release()
	defer wb.Release()

	m, err := NewMixture([]*Ref{wa, wb}, opts...)
	require.NoError(t, err)
	return m
}

func mustCylinder(t *testing.T, r float64) trajectory.Cylinder {
	t.Helper()
	c, err := trajectory.NewCylinder(r)
	require.NoError(t, err)
	return c
}

// logCapture collects monitoring output until restore is called.
type logCapture struct {
	mu   sync.Mutex
	msgs []string
}

func captureLogs(t *testing.T) *logCapture {
	t.Helper()
	lc := &logCapture{}
	restore := monitoring.Swap(func(format string, v ...interface{}) {
		lc.mu.Lock()
		defer lc.mu.Unlock()
		lc.msgs = append(lc.msgs, fmt.Sprintf(format, v...))
	})
	t.Cleanup(restore)
	return lc
}

func (lc *logCapture) messages() []string {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	return append([]string(nil), lc.msgs...)
}
