package refit

import (
	"sync/atomic"

	"github.com/banshee-data/trackrefit/internal/monitoring"
)

// Ref is a shared-ownership handle to a State. Every holder owns its own
// Ref; Share hands out another one and Release gives one up. When the last
// holder releases, the release hooks run once and any sub-states the state
// owns are released in turn.
//
// Ref embeds State, so a *Ref is itself a State and all queries go through
// it directly. Queries remain valid after Release for goroutines that
// already hold the *Ref; only the hooks observe the end of life.
//
// A single *Ref must not be shared and released concurrently by different
// goroutines. Give each goroutine its own handle via Share.
type Ref struct {
	State

	shared   *sharedCount
	released atomic.Bool
}

type sharedCount struct {
	holders atomic.Int64
	hooks   []func(State)
}

// RefOption configures NewRef.
type RefOption func(*sharedCount)

// ReleaseHook runs fn once when the last holder releases.
func ReleaseHook(fn func(State)) RefOption {
	return func(c *sharedCount) {
		if fn != nil {
			c.hooks = append(c.hooks, fn)
		}
	}
}

// owner is implemented by states that hold Refs of their own.
type owner interface {
	releaseOwned()
}

// NewRef wraps s in a handle with a single holder.
func NewRef(s State, opts ...RefOption) *Ref {
	c := &sharedCount{}
	for _, opt := range opts {
		opt(c)
	}
	c.holders.Store(1)
	return &Ref{State: s, shared: c}
}

// Share registers another holder and returns its handle. Sharing a
// released handle is a programming error and panics.
func (r *Ref) Share() *Ref {
	if r.released.Load() {
		panic("refit: Share called on a released Ref")
	}
	if r.shared.holders.Add(1) <= 1 {
		panic("refit: Share called on a Ref with no holders")
	}
	return &Ref{State: r.State, shared: r.shared}
}

// Release gives up this handle's hold. Calling it more than once on the
// same handle has no further effect. Release on a nil Ref is a no-op.
func (r *Ref) Release() {
	if r == nil || !r.released.CompareAndSwap(false, true) {
		return
	}
	n := r.shared.holders.Add(-1)
	switch {
	case n > 0:
		return
	case n < 0:
		panic("refit: holder count went negative")
	}

	for _, hook := range r.shared.hooks {
		runHook(hook, r.State)
	}
	if o, ok := r.State.(owner); ok {
		o.releaseOwned()
	}
}

// Refs returns the number of live holders of the underlying state.
func (r *Ref) Refs() int64 {
	return r.shared.holders.Load()
}

// Released reports whether this handle has been released.
func (r *Ref) Released() bool {
	return r.released.Load()
}

func runHook(hook func(State), s State) {
	defer func() {
		if p := recover(); p != nil {
			monitoring.Logf("refit: release hook panicked: %v", p)
		}
	}()
	hook(s)
}
