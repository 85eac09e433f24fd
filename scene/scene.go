// Package scene describes the geometry rendered by the tracer: flat colored
// triangle meshes, procedural spheres and an optional camera.
package scene

import (
	"fmt"

	"github.com/achilleasa/prism/types"
)

type Scene struct {
	Camera *Camera

	Meshes  []*TriangleMesh
	Spheres []*Sphere
}

func NewScene() *Scene {
	return &Scene{
		Meshes:  make([]*TriangleMesh, 0),
		Spheres: make([]*Sphere, 0),
	}
}

// Attach a camera to the scene.
func (s *Scene) SetCamera(camera *Camera) {
	s.Camera = camera
}

// Add a mesh to the scene.
func (s *Scene) AddMesh(mesh *TriangleMesh) error {
	for _, m := range s.Meshes {
		if m == mesh {
			return fmt.Errorf("%w: mesh %q", ErrDuplicateAsset, mesh.Name)
		}
	}
	s.Meshes = append(s.Meshes, mesh)
	return nil
}

// Add a sphere to the scene.
func (s *Scene) AddSphere(sphere *Sphere) error {
	for _, sp := range s.Spheres {
		if sp == sphere {
			return fmt.Errorf("%w: sphere", ErrDuplicateAsset)
		}
	}
	s.Spheres = append(s.Spheres, sphere)
	return nil
}

// Check that the scene contains renderable geometry and that every index
// triplet references a valid vertex.
func (s *Scene) Validate() error {
	if len(s.Meshes) == 0 && len(s.Spheres) == 0 {
		return fmt.Errorf("%w: scene contains no geometry", ErrInvalidScene)
	}

	for meshIndex, mesh := range s.Meshes {
		if mesh == nil {
			return fmt.Errorf("%w: mesh %d is nil", ErrInvalidScene, meshIndex)
		}
		if len(mesh.Vertices) == 0 || len(mesh.Indices) == 0 {
			return fmt.Errorf("%w: mesh %d (%s) has no triangles", ErrInvalidScene, meshIndex, mesh.Name)
		}
		for triIndex, tri := range mesh.Indices {
			for _, vertexIndex := range tri {
				if vertexIndex < 0 || int(vertexIndex) >= len(mesh.Vertices) {
					return fmt.Errorf("%w: mesh %d (%s) triangle %d references vertex %d; mesh has %d vertices", ErrInvalidScene, meshIndex, mesh.Name, triIndex, vertexIndex, len(mesh.Vertices))
				}
			}
		}
	}

	for sphereIndex, sphere := range s.Spheres {
		if sphere == nil {
			return fmt.Errorf("%w: sphere %d is nil", ErrInvalidScene, sphereIndex)
		}
		if !(sphere.Radius > 0) {
			return fmt.Errorf("%w: sphere %d has invalid radius %f", ErrInvalidScene, sphereIndex, sphere.Radius)
		}
	}

	return nil
}

// Get the bounding box of all scene geometry.
func (s *Scene) Bounds() (min, max types.Vec3) {
	first := true
	extend := func(bmin, bmax types.Vec3) {
		if first {
			min, max, first = bmin, bmax, false
			return
		}
		min, max = types.MinVec3(min, bmin), types.MaxVec3(max, bmax)
	}

	for _, mesh := range s.Meshes {
		if len(mesh.Vertices) != 0 {
			extend(mesh.Bounds())
		}
	}
	for _, sphere := range s.Spheres {
		extend(sphere.Bounds())
	}
	return min, max
}
