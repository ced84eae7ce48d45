package refit

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/banshee-data/trackrefit/internal/trajectory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

type variant struct {
	name string
	leaf bool
	make func(t *testing.T, opts ...Option) *Ref
}

func variants() []variant {
	return []variant{
		{"perigee", true, func(t *testing.T, opts ...Option) *Ref { return newTestPerigee(t, nil, opts...) }},
		{"cartesian", true, func(t *testing.T, opts ...Option) *Ref { return newTestCartesian(t, nil, testField, opts...) }},
		{"mixture", false, newTestMixture},
	}
}

func TestAccessorsAreStable(t *testing.T) {
	t.Parallel()
	for _, v := range variants() {
		v := v
		t.Run(v.name, func(t *testing.T) {
			t.Parallel()
			s := v.make(t)
			for i := 0; i < 3; i++ {
				assert.True(t, mat.Equal(s.Parameters(), s.Parameters()))
				assert.True(t, mat.Equal(s.Covariance(), s.Covariance()))
				assert.True(t, mat.Equal(s.MomentumVector(), s.MomentumVector()))
				assert.Equal(t, s.Position(), s.Position())
				assert.Equal(t, s.Weight(), s.Weight())
				assert.Equal(t, len(s.Components()), len(s.Components()))
			}
		})
	}
}

func TestStateWithNewWeightIsolation(t *testing.T) {
	t.Parallel()
	for _, v := range variants() {
		v := v
		t.Run(v.name, func(t *testing.T) {
			t.Parallel()
			s := v.make(t)
			before := s.Weight()

			s2 := s.StateWithNewWeight(0.37)
			assert.Equal(t, 0.37, s2.Weight())
			assert.Equal(t, before, s.Weight())
			assert.IsType(t, s.State, s2.State)
			assert.NotSame(t, s.State, s2.State)
			assert.Equal(t, int64(1), s2.Refs(), "re-weighted state is independently owned")

			assert.True(t, mat.Equal(s.Parameters(), s2.Parameters()))
			assert.True(t, mat.Equal(s.Covariance(), s2.Covariance()))
			assert.True(t, mat.Equal(s.MomentumVector(), s2.MomentumVector()))
			assert.Equal(t, s.Position(), s2.Position())
			assert.Equal(t, len(s.Components()), len(s2.Components()))
		})
	}
}

func TestLeafScenario(t *testing.T) {
	t.Parallel()
	params := []float64{-0.3, 1.2, 0.4, 0.01, -0.02}
	s := newTestPerigee(t, params)
	require.Equal(t, 1.0, s.Weight())
	require.Empty(t, s.Components())

	s2 := s.StateWithNewWeight(0.37)
	assert.Equal(t, 0.37, s2.Weight())
	assert.Equal(t, params, s2.Parameters().RawVector().Data)
	assert.Equal(t, 1.0, s.Weight())
}

func TestLeavesHaveNoComponents(t *testing.T) {
	t.Parallel()
	for _, v := range variants() {
		if !v.leaf {
			continue
		}
		s := v.make(t)
		assert.Empty(t, s.Components(), v.name)
		assert.Empty(t, s.StateWithNewWeight(0.2).Components(), v.name)
	}
}

func TestDefaultPropagatorConsistency(t *testing.T) {
	t.Parallel()
	cyl := mustCylinder(t, 0.5)
	for _, v := range variants() {
		v := v
		t.Run(v.name, func(t *testing.T) {
			t.Parallel()
			s := v.make(t)
			implicit := s.TrajectoryStateOnSurface(cyl, nil)
			explicit := s.TrajectoryStateOnSurface(cyl, trajectory.DefaultPropagator(testField))
			require.True(t, implicit.IsValid(), "err: %v", implicit.Err())
			assert.Equal(t, explicit, implicit)
		})
	}
}

func TestConcurrentReadsWhileReleasing(t *testing.T) {
	t.Parallel()
	for _, v := range variants() {
		v := v
		t.Run(v.name, func(t *testing.T) {
			t.Parallel()
			var hooks atomic.Int32
			s := v.make(t, WithReleaseHook(func(State) { hooks.Add(1) }))

			wantParams := s.Parameters()
			wantCov := s.Covariance()
			wantPos := s.Position()
			wantWeight := s.Weight()

			const readers = 32
			handles := make([]*Ref, readers)
			for i := range handles {
				handles[i] = s.Share()
			}

			var wg sync.WaitGroup
			start := make(chan struct{})
			for _, h := range handles {
				wg.Add(1)
				go func(h *Ref) {
					defer wg.Done()
					defer h.Release()
					<-start
					for i := 0; i < 20; i++ {
						if !mat.Equal(wantParams, h.Parameters()) ||
							!mat.Equal(wantCov, h.Covariance()) ||
							wantPos != h.Position() ||
							wantWeight != h.Weight() {
							t.Error("concurrent read diverged")
							return
						}
						_, _ = h.FreeTrajectoryState()
					}
				}(h)
			}
			close(start)
			s.Release()
			wg.Wait()

			assert.Equal(t, int32(1), hooks.Load())
			assert.Equal(t, int64(0), s.Refs())
		})
	}
}
