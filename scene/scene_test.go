package scene

import (
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/achilleasa/prism/types"
)

func TestValidate(t *testing.T) {
	cube := NewMesh("cube", types.XYZ(1, 1, 1))
	cube.AddUnitCube(types.XYZ(0, 0, 0))

	badIndex := NewMesh("bad", types.XYZ(1, 1, 1))
	badIndex.Vertices = []types.Vec3{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}}
	badIndex.Indices = []types.Vec3i{{0, 1, 3}}

	negIndex := NewMesh("neg", types.XYZ(1, 1, 1))
	negIndex.Vertices = []types.Vec3{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}}
	negIndex.Indices = []types.Vec3i{{-1, 1, 2}}

	type spec struct {
		meshes  []*TriangleMesh
		spheres []*Sphere
		valid   bool
	}

	specs := []spec{
		{nil, nil, false},
		{[]*TriangleMesh{cube}, nil, true},
		{nil, []*Sphere{NewSphere(1, types.XYZ(1, 0, 0))}, true},
		{[]*TriangleMesh{cube}, []*Sphere{NewSphere(1, types.XYZ(1, 0, 0))}, true},
		{[]*TriangleMesh{badIndex}, nil, false},
		{[]*TriangleMesh{negIndex}, nil, false},
		{[]*TriangleMesh{NewMesh("empty", types.XYZ(1, 1, 1))}, nil, false},
		{nil, []*Sphere{NewSphere(-1, types.XYZ(1, 0, 0))}, false},
		{nil, []*Sphere{NewSphere(0, types.XYZ(1, 0, 0))}, false},
		{nil, []*Sphere{NewSphere(float32(math.NaN()), types.XYZ(1, 0, 0))}, false},
	}

	for index, s := range specs {
		sc := &Scene{Meshes: s.meshes, Spheres: s.spheres}
		err := sc.Validate()
		if s.valid && err != nil {
			t.Errorf("[spec %d] expected scene to be valid; got %v", index, err)
		}
		if !s.valid && !errors.Is(err, ErrInvalidScene) {
			t.Errorf("[spec %d] expected ErrInvalidScene; got %v", index, err)
		}
	}
}

func TestAddDuplicates(t *testing.T) {
	sc := NewScene()
	mesh := NewMesh("m", types.XYZ(1, 1, 1))
	sphere := NewSphere(1, types.XYZ(1, 1, 1))

	if err := sc.AddMesh(mesh); err != nil {
		t.Fatal(err)
	}
	if err := sc.AddMesh(mesh); !errors.Is(err, ErrDuplicateAsset) {
		t.Fatalf("expected ErrDuplicateAsset; got %v", err)
	}
	if err := sc.AddSphere(sphere); err != nil {
		t.Fatal(err)
	}
	if err := sc.AddSphere(sphere); !errors.Is(err, ErrDuplicateAsset) {
		t.Fatalf("expected ErrDuplicateAsset; got %v", err)
	}
}

func TestCube(t *testing.T) {
	mesh := NewMesh("cube", types.XYZ(1, 1, 1))
	mesh.AddUnitCube(types.XYZ(0, 0, 0))
	mesh.AddCube(types.XYZ(5, 0, 0), 2)

	if exp := 16; len(mesh.Vertices) != exp {
		t.Fatalf("expected %d vertices; got %d", exp, len(mesh.Vertices))
	}
	if exp := 24; len(mesh.Indices) != exp {
		t.Fatalf("expected %d triangles; got %d", exp, len(mesh.Indices))
	}

	// The second cube references its own vertices
	for _, tri := range mesh.Indices[12:] {
		for _, vertexIndex := range tri {
			if vertexIndex < 8 || vertexIndex >= 16 {
				t.Fatalf("expected second cube to reference vertices [8, 16); got %d", vertexIndex)
			}
		}
	}

	min, max := mesh.Bounds()
	if expMin := types.XYZ(-0.5, -1, -1); min != expMin {
		t.Fatalf("expected min bounds %v; got %v", expMin, min)
	}
	if expMax := types.XYZ(6, 1, 1); max != expMax {
		t.Fatalf("expected max bounds %v; got %v", expMax, max)
	}
}

func TestSceneBounds(t *testing.T) {
	sc := DemoScene()
	min, max := sc.Bounds()
	if expMin := types.XYZ(-1.5, -1, -1); min != expMin {
		t.Fatalf("expected min bounds %v; got %v", expMin, min)
	}
	if expMax := types.XYZ(1, 1, 1.5); max != expMax {
		t.Fatalf("expected max bounds %v; got %v", expMax, max)
	}
}

func TestCameraMove(t *testing.T) {
	cam := NewCamera(types.XYZ(0, 0, 5), types.XYZ(0, 0, 0), types.XYZ(0, 1, 0))

	type spec struct {
		dir     CameraDirection
		expFrom types.Vec3
	}

	specs := []spec{
		{Forward, types.XYZ(0, 0, 4)},
		{Backward, types.XYZ(0, 0, 5)},
		{Right, types.XYZ(1, 0, 5)},
		{Left, types.XYZ(0, 0, 5)},
	}

	for index, s := range specs {
		cam.Move(s.dir, 1)
		if !types.ApproxEqual(cam.From, s.expFrom, 1e-5) {
			t.Fatalf("[spec %d] expected camera position %v; got %v", index, s.expFrom, cam.From)
		}
		if dir := cam.Direction(); !types.ApproxEqual(dir, types.XYZ(0, 0, -1), 1e-5) {
			t.Fatalf("[spec %d] expected camera direction to be preserved; got %v", index, dir)
		}
	}
}

func TestCameraRotate(t *testing.T) {
	cam := NewCamera(types.XYZ(0, 0, 5), types.XYZ(0, 0, 0), types.XYZ(0, 1, 0))
	cam.Rotate(math.Pi/2, 0)

	if dist := cam.At.Sub(cam.From).Len(); math.Abs(float64(dist-5)) > 1e-4 {
		t.Fatalf("expected look-at distance to be preserved; got %f", dist)
	}
	if dir := cam.Direction(); math.Abs(float64(dir[1])) > 1e-5 || math.Abs(float64(dir[2])) > 1e-5 {
		t.Fatalf("expected yaw of 90 degrees to point the camera along the x axis; got %v", dir)
	}

	cam = NewCamera(types.XYZ(0, 0, 5), types.XYZ(0, 0, 0), types.XYZ(0, 1, 0))
	cam.Rotate(0, 0.3)
	if dir := cam.Direction(); math.Abs(float64(dir[0])) > 1e-5 || math.Abs(float64(dir[1])) < 0.1 {
		t.Fatalf("expected pitch to tilt the camera around the x axis; got %v", dir)
	}
}

func TestStats(t *testing.T) {
	out := DemoScene().Stats()
	for _, exp := range []string{"cube", "12 tris", "Spheres"} {
		if !strings.Contains(out, exp) {
			t.Errorf("expected stats to contain %q; got:\n%s", exp, out)
		}
	}
}
