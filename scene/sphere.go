package scene

import "github.com/achilleasa/prism/types"

// A sphere centered at the origin of its local space.
type Sphere struct {
	Radius float32
	Color  types.Vec3
}

func NewSphere(radius float32, color types.Vec3) *Sphere {
	return &Sphere{Radius: radius, Color: color}
}

// Get the local space bounding box of the sphere.
func (s *Sphere) Bounds() (min, max types.Vec3) {
	r := s.Radius
	return types.XYZ(-r, -r, -r), types.XYZ(r, r, r)
}
