package refit

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRefShareRelease(t *testing.T) {
	var released atomic.Int32
	var got State
	r := newTestCartesian(t, nil, 0, WithReleaseHook(func(s State) {
		released.Add(1)
		got = s
	}))
	assert.Equal(t, int64(1), r.Refs())

	s := r.Share()
	assert.Equal(t, int64(2), r.Refs())
	assert.Same(t, r.State, s.State)

	s.Release()
	s.Release() // second release of the same handle is ignored
	assert.True(t, s.Released())
	assert.Equal(t, int64(1), r.Refs())
	assert.Zero(t, released.Load())

	r.Release()
	assert.Equal(t, int64(0), r.Refs())
	assert.Equal(t, int32(1), released.Load())
	assert.Same(t, r.State, got)

	// Reads through a released handle still see the state.
	assert.Equal(t, 1.0, r.Weight())
}

func TestRefShareAfterReleasePanics(t *testing.T) {
	r := newTestCartesian(t, nil, 0)
	r.Release()
	assert.Panics(t, func() { r.Share() })
}

func TestRefNilRelease(t *testing.T) {
	var r *Ref
	assert.NotPanics(t, func() { r.Release() })
}

func TestRefHookPanicIsLogged(t *testing.T) {
	logs := captureLogs(t)

	second := false
	r := NewRef(nil,
		ReleaseHook(func(State) { panic("boom") }),
		ReleaseHook(func(State) { second = true }),
		ReleaseHook(nil),
	)
	require.NotPanics(t, r.Release)
	assert.True(t, second, "hooks after a panicking hook still run")

	msgs := logs.messages()
	require.NotEmpty(t, msgs)
	assert.Contains(t, msgs[0], "boom")
}

func TestRefConcurrentRelease(t *testing.T) {
	var released atomic.Int32
	r := newTestPerigee(t, nil, WithReleaseHook(func(State) { released.Add(1) }))
	want := r.Parameters()

	const holders = 64
	handles := make([]*Ref, holders)
	for i := range handles {
		handles[i] = r.Share()
	}

	var wg sync.WaitGroup
	start := make(chan struct{})
	for _, h := range handles {
		wg.Add(1)
		go func(h *Ref) {
			defer wg.Done()
			<-start
			p := h.Parameters()
			assert.Equal(t, want.RawVector().Data, p.RawVector().Data)
			h.Release()
		}(h)
	}
	close(start)
	r.Release()
	wg.Wait()

	assert.Equal(t, int32(1), released.Load())
	assert.Equal(t, int64(0), r.Refs())
}
