package trajectory

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// Surface is a propagation target. Surfaces are immutable once built.
type Surface interface {
	// SignedDistance returns how far p lies from the surface. Zero means p
	// is on the surface.
	SignedDistance(p r3.Vec) float64
	fmt.Stringer
}

// Plane is an infinite plane through Origin with unit Normal.
type Plane struct {
	Origin r3.Vec
	Normal r3.Vec
}

// NewPlane builds a plane, normalising normal.
func NewPlane(origin, normal r3.Vec) (Plane, error) {
	n := r3.Norm(normal)
	if n == 0 || math.IsNaN(n) || math.IsInf(n, 0) {
		return Plane{}, errors.New("trajectory: plane normal must be a finite non-zero vector")
	}
	return Plane{Origin: origin, Normal: r3.Scale(1/n, normal)}, nil
}

// SignedDistance is positive on the side Normal points to.
func (p Plane) SignedDistance(x r3.Vec) float64 {
	return r3.Dot(p.Normal, r3.Sub(x, p.Origin))
}

func (p Plane) String() string {
	return fmt.Sprintf("plane{o=(%.4g,%.4g,%.4g) n=(%.4g,%.4g,%.4g)}",
		p.Origin.X, p.Origin.Y, p.Origin.Z, p.Normal.X, p.Normal.Y, p.Normal.Z)
}

// Cylinder is an infinite cylinder of the given radius around the z axis,
// the usual shape of a barrel detector layer.
type Cylinder struct {
	Radius float64
}

// NewCylinder builds a cylinder; radius must be positive and finite.
func NewCylinder(radius float64) (Cylinder, error) {
	if !(radius > 0) || math.IsInf(radius, 0) {
		return Cylinder{}, fmt.Errorf("trajectory: cylinder radius must be positive, got %g", radius)
	}
	return Cylinder{Radius: radius}, nil
}

// SignedDistance is positive outside the cylinder.
func (c Cylinder) SignedDistance(x r3.Vec) float64 {
	return math.Hypot(x.X, x.Y) - c.Radius
}

func (c Cylinder) String() string {
	return fmt.Sprintf("cylinder{r=%.4g}", c.Radius)
}

// surfaceValue strips a pointer so propagators can switch on value types.
func surfaceValue(s Surface) Surface {
	switch v := s.(type) {
	case *Plane:
		if v != nil {
			return *v
		}
	case *Cylinder:
		if v != nil {
			return *v
		}
	default:
		return s
	}
	return nil
}
