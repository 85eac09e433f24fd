package scene

import "github.com/achilleasa/prism/types"

// Build the scene rendered when no scene file is specified: a unit cube in
// front of a unit sphere, viewed from (0, 0, 5).
func DemoScene() *Scene {
	sc := NewScene()

	cube := NewMesh("cube", types.XYZ(0.2, 0.8, 0.2))
	cube.AddUnitCube(types.XYZ(-1, 0, 1))
	sc.AddMesh(cube)

	sc.AddSphere(NewSphere(1, types.XYZ(0, 0.5, 1)))

	sc.SetCamera(NewCamera(types.XYZ(0, 0, 5), types.XYZ(0, 0, 0), types.XYZ(0, 1, 0)))
	return sc
}
