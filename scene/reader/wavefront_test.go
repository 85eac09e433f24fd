package reader

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/achilleasa/prism/types"
)

func TestFloat32Parser(t *testing.T) {
	expError := "unsupported syntax for 'v'; expected 1 argument; got 0"
	_, err := parseFloat32([]string{"v"})
	if err == nil || err.Error() != expError {
		t.Fatalf("expected to get %s; got %v", expError, err)
	}

	_, err = parseFloat32([]string{"v", "not-a-float"})
	if err == nil {
		t.Fatal("expected to get a parse error")
	}

	v, err := parseFloat32([]string{"v", "3.14"})
	if err != nil {
		t.Fatal(err)
	}

	if v != 3.14 {
		t.Fatalf("expected parsed value to be 3.14; got %f", v)
	}
}

func TestVec3Parser(t *testing.T) {
	expError := "unsupported syntax for 'v'; expected 3 arguments; got 0"
	_, err := parseVec3([]string{"v"})
	if err == nil || err.Error() != expError {
		t.Fatalf("expected to get %s; got %v", expError, err)
	}

	_, err = parseVec3([]string{"v", "not-a-float", "2", "3"})
	if err == nil {
		t.Fatal("expected to get a parse error")
	}

	v, err := parseVec3([]string{"v", "3.14", "0", "0.4"})
	if err != nil {
		t.Fatal(err)
	}

	expVal := types.Vec3{3.14, 0, 0.4}
	if !reflect.DeepEqual(v, expVal) {
		t.Fatalf("expected parsed value to be %v; got %v", expVal, v)
	}
}

func TestSelectFaceCoordinate(t *testing.T) {
	expError := "index out of bounds"
	type spec struct {
		in       string
		listLen  int
		out      int
		expError string
	}
	specs := []spec{
		{"2", 1, -1, expError},
		{"-2", 1, -1, expError},
		{"1", 10, 0, ""}, // indices are 1-based
		{"-1", 10, 9, ""},
	}

	for idx, s := range specs {
		v, err := selectFaceCoordIndex(s.in, s.listLen)
		if s.expError != "" && (err == nil || err.Error() != s.expError) {
			t.Fatalf("[spec %d] expected error %s; got %v", idx, s.expError, err)
		} else if v != s.out {
			t.Fatalf("[spec %d] expected index to be %d; got %d", idx, s.out, v)
		}
	}
}

func TestParseSingleFacedObject(t *testing.T) {
	payload := `
o testObj
v 0 0 0
v 1 0 0
v 0 1 0
vn 1 0 0
vt 0 0
# Comment
f 1/1/1 2/1/1 -1/1/1
`

	res := mockResource(payload)
	r := newWavefrontReader()
	sc, err := r.Read(res)
	if err != nil {
		t.Fatal(err)
	}

	expMeshes := 1
	if len(sc.Meshes) != expMeshes {
		t.Fatalf("expected %d meshes to be parsed; got %d", expMeshes, len(sc.Meshes))
	}

	mesh0 := sc.Meshes[0]
	expName := "testObj"
	if mesh0.Name != expName {
		t.Fatalf("expected mesh[0] name to be '%s'; got %s", expName, mesh0.Name)
	}
	if !reflect.DeepEqual(mesh0.Color, defaultColor) {
		t.Fatalf("expected mesh[0] to use the default color %v; got %v", defaultColor, mesh0.Color)
	}

	expPoints := []types.Vec3{
		{0, 0, 0},
		{1, 0, 0},
		{0, 1, 0},
	}
	if !reflect.DeepEqual(mesh0.Vertices, expPoints) {
		t.Fatalf("expected vertices to be %v; got %v", expPoints, mesh0.Vertices)
	}
	expIndices := []types.Vec3i{{0, 1, 2}}
	if !reflect.DeepEqual(mesh0.Indices, expIndices) {
		t.Fatalf("expected indices to be %v; got %v", expIndices, mesh0.Indices)
	}
	if sc.Camera != nil {
		t.Fatalf("expected scene without camera directives to have no camera; got %v", sc.Camera)
	}
}

func TestVertexRemapping(t *testing.T) {
	payload := `
v 0 0 0
v 1 0 0
v 0 1 0
v 5 5 5
o first
f 1 2 3
o second
f 4 1 2
f 4 2 3
`

	sc, err := newWavefrontReader().Read(mockResource(payload))
	if err != nil {
		t.Fatal(err)
	}

	if len(sc.Meshes) != 2 {
		t.Fatalf("expected 2 meshes; got %d", len(sc.Meshes))
	}

	second := sc.Meshes[1]
	expPoints := []types.Vec3{{5, 5, 5}, {0, 0, 0}, {1, 0, 0}, {0, 1, 0}}
	if !reflect.DeepEqual(second.Vertices, expPoints) {
		t.Fatalf("expected second mesh vertices to be %v; got %v", expPoints, second.Vertices)
	}
	expIndices := []types.Vec3i{{0, 1, 2}, {0, 2, 3}}
	if !reflect.DeepEqual(second.Indices, expIndices) {
		t.Fatalf("expected second mesh indices to be %v; got %v", expIndices, second.Indices)
	}
}

func TestSpheresColorsAndCamera(t *testing.T) {
	payload := `
camera_eye 0 0 5
camera_look 0 0 0
camera_up 0 1 0

color 1 0 0
o red
v 0 0 0
v 1 0 0
v 0 1 0
f 1 2 3
color 0 0 1
f 3 2 1

sphere 1.5 0 1 0
`

	sc, err := newWavefrontReader().Read(mockResource(payload))
	if err != nil {
		t.Fatal(err)
	}

	// The color change splits the mesh
	type spec struct {
		name  string
		color types.Vec3
		tris  int
	}
	specs := []spec{
		{"red", types.Vec3{1, 0, 0}, 1},
		{"red.1", types.Vec3{0, 0, 1}, 1},
	}
	if len(sc.Meshes) != len(specs) {
		t.Fatalf("expected %d meshes; got %d", len(specs), len(sc.Meshes))
	}
	for index, s := range specs {
		mesh := sc.Meshes[index]
		if mesh.Name != s.name || mesh.Color != s.color || len(mesh.Indices) != s.tris {
			t.Errorf("[spec %d] expected mesh %q with color %v and %d triangles; got %q with color %v and %d triangles", index, s.name, s.color, s.tris, mesh.Name, mesh.Color, len(mesh.Indices))
		}
	}

	if len(sc.Spheres) != 1 {
		t.Fatalf("expected 1 sphere; got %d", len(sc.Spheres))
	}
	if sp := sc.Spheres[0]; sp.Radius != 1.5 || sp.Color != (types.Vec3{0, 1, 0}) {
		t.Fatalf("expected sphere with radius 1.5 and color (0, 1, 0); got %+v", sp)
	}

	if sc.Camera == nil {
		t.Fatal("expected scene camera to be defined")
	}
	if sc.Camera.From != (types.Vec3{0, 0, 5}) || sc.Camera.At != (types.Vec3{0, 0, 0}) || sc.Camera.Up != (types.Vec3{0, 1, 0}) {
		t.Fatalf("expected camera eye (0,0,5) look (0,0,0) up (0,1,0); got %s", sc.Camera)
	}
}

func TestParseErrors(t *testing.T) {
	type spec struct {
		payload  string
		expError string
	}

	specs := []spec{
		{"v 0 0", "[embedded: 1] error: unsupported syntax for 'v'; expected 3 arguments; got 2"},
		{"v 0 0 0\nv 1 0 0\nv 0 1 0\nv 1 1 0\nf 1 2 3 4", "[embedded: 5] error: unsupported syntax for 'f'; expected 3 arguments for triangular face; got 4. Select the triangulation option in your exporter."},
		{"v 0 0 0\nf 1 2 3", "[embedded: 2] error: could not parse vertex coord for face argument 1: index out of bounds"},
		{"v 0 0 0\nv 1 0 0\nv 0 1 0\nf 1/1 2 3", "[embedded: 4] error: expected each face argument to contain 2 indices; arg 1 contains 1 indices"},
		{"\n\nsphere 1 0 0", "[embedded: 3] error: unsupported syntax for 'sphere'; expected 4 arguments: radius r g b; got 3"},
		{"sphere -1 0 0 0", "[embedded: 1] error: sphere radius must be positive; got -1.000000"},
		{"usemtl foo", "[embedded: 1] error: undefined material with name 'foo'"},
		{"camera_eye 0 0", "[embedded: 1] error: unsupported syntax for 'camera_eye'; expected 3 arguments; got 2"},
		{"o", "[embedded: 1] error: unsupported syntax for 'o'; expected 1 argument for object name; got 0"},
	}

	for index, s := range specs {
		_, err := newWavefrontReader().Read(mockResource(s.payload))
		if err == nil || err.Error() != s.expError {
			t.Errorf("[spec %d] expected error:\n%s\ngot:\n%v", index, s.expError, err)
		}
	}
}

func TestEmptySceneIsInvalid(t *testing.T) {
	_, err := newWavefrontReader().Read(mockResource("o empty\nv 0 0 0\n"))
	if err == nil || !strings.Contains(err.Error(), "scene contains no geometry") {
		t.Fatalf("expected empty scene to be rejected; got %v", err)
	}
}

func TestMaterialLoaderMissingNewMaterialCommand(t *testing.T) {
	payload := `Kd 1.0 1.0 1.0`
	res := mockResource(payload)
	err := newWavefrontReader().parseMaterials(res)

	expError := "[embedded: 1] error: got 'Kd' without a 'newmtl'"
	if err == nil || err.Error() != expError {
		t.Fatalf("expected to get error: %s; got %v", expError, err)
	}
}

func TestMaterialLoaderInvalidVec3Param(t *testing.T) {
	payload := `
	newmtl foo
	Kd 1.0`
	res := mockResource(payload)
	err := newWavefrontReader().parseMaterials(res)

	expError := "[embedded: 3] error: unsupported syntax for 'Kd'; expected 3 arguments; got 1"
	if err == nil || err.Error() != expError {
		t.Fatalf("expected to get error: %s; got %v", expError, err)
	}
}

func TestMaterialLoaderSuccess(t *testing.T) {
	payload := `
	# comment
	newmtl foo
	Kd 1.0 0.5 0.25
	Ks 0.1 0.2 0.3
	Ni 2.5
	newmtl bar`
	res := mockResource(payload)
	r := newWavefrontReader()
	err := r.parseMaterials(res)
	if err != nil {
		t.Fatal(err)
	}

	if len(r.matNameToColor) != 2 {
		t.Fatalf("expected to parse 2 materials; got %d", len(r.matNameToColor))
	}

	expVec3 := types.Vec3{1, 0.5, 0.25}
	if kd := r.matNameToColor["foo"]; !reflect.DeepEqual(kd, expVec3) {
		t.Fatalf("expected Kd to be %v; got %v", expVec3, kd)
	}
	if kd := r.matNameToColor["bar"]; !reflect.DeepEqual(kd, defaultColor) {
		t.Fatalf("expected material without Kd to use the default color %v; got %v", defaultColor, kd)
	}
}

func TestRemoteSceneWithMaterialLibrary(t *testing.T) {
	serverFn := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/scenes/scene.obj":
			w.Write([]byte("mtllib materials/lib.mtl\no tri\nusemtl green\nv 0 0 0\nv 1 0 0\nv 0 1 0\nf 1 2 3\n"))
		case "/scenes/materials/lib.mtl":
			w.Write([]byte("newmtl green\nKd 0 1 0\n"))
		default:
			http.NotFound(w, r)
		}
	})
	server := httptest.NewServer(serverFn)
	defer server.Close()

	sc, err := ReadScene(server.URL + "/scenes/scene.obj")
	if err != nil {
		t.Fatal(err)
	}
	if len(sc.Meshes) != 1 {
		t.Fatalf("expected 1 mesh; got %d", len(sc.Meshes))
	}
	if exp := (types.Vec3{0, 1, 0}); sc.Meshes[0].Color != exp {
		t.Fatalf("expected mesh color %v; got %v", exp, sc.Meshes[0].Color)
	}
}

func TestIncludedFileErrorsReportCallStack(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "main.obj"), []byte("# main\ncall child.obj\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "child.obj"), []byte("v 0 0\n"), 0644); err != nil {
		t.Fatal(err)
	}

	_, err := ReadScene(filepath.Join(dir, "main.obj"))
	if err == nil {
		t.Fatal("expected parse error")
	}

	lines := strings.Split(err.Error(), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected error with 2 lines; got %q", err.Error())
	}
	if !strings.HasSuffix(lines[0], "child.obj: 1] error: unsupported syntax for 'v'; expected 3 arguments; got 2") {
		t.Fatalf("expected first error line to reference child.obj:1; got %q", lines[0])
	}
	if !strings.HasSuffix(lines[1], "main.obj:2 [call]") {
		t.Fatalf("expected second error line to reference main.obj:2; got %q", lines[1])
	}
}
