// Package trajectory holds the trajectory representations that refitted
// states convert into.
//
// Responsibilities: free (surface-independent) states, states bound to a
// surface, the plane and cylinder surfaces, and the straight-line and
// helix propagators that carry a free state onto a surface.
// Key types: FreeState, SurfaceState, Surface, Propagator.
//
// Units: metres, GeV/c and Tesla. The field is uniform and along z.
//
// Dependency rule: trajectory never depends on internal/refit.
package trajectory
