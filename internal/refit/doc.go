// Package refit holds refitted track states: the outcome of refitting a
// track under a vertex (or other) constraint.
//
// Responsibilities: the State contract shared by every parametrization,
// the reference-counted Ref handle through which states are held, the
// leaf variants (Perigee, Cartesian) and the weighted Mixture variant.
// Key types: State, Ref, Perigee, Cartesian, Mixture.
//
// States are immutable. Re-weighting returns a new state; accessors return
// copies. A State is therefore safe for concurrent reads without locking.
//
// Dependency rule: refit depends on internal/trajectory for the free and
// surface-bound representations, never the reverse. No fitting happens
// here; fitters construct states and hand out Refs.
package refit
