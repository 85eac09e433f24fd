package reader

import (
	"bufio"
	"fmt"
	"strconv"
	"strings"

	"github.com/achilleasa/prism/scene"
	"github.com/achilleasa/prism/types"
)

var defaultColor = types.Vec3{0.7, 0.7, 0.7}

type wavefrontSceneReader struct {
	// The parsed scene.
	sceneGraph *scene.Scene

	// A map of material names to diffuse colors.
	matNameToColor map[string]types.Vec3

	// Currently selected color.
	curColor types.Vec3

	// The mesh that receives parsed faces and its name. Global vertex
	// indices are remapped to per-mesh indices when faces are added.
	curMesh       *scene.TriangleMesh
	curMeshName   string
	curMeshSplits int
	vertexRemap   map[int]int32

	// Global vertex list.
	vertexList []types.Vec3

	// An error stack that provides additional error information when
	// scene files include other files (models, mat libs e.t.c)
	errStack []string
}

// Create a new text scene reader.
func newWavefrontReader() *wavefrontSceneReader {
	return &wavefrontSceneReader{
		sceneGraph:     scene.NewScene(),
		matNameToColor: make(map[string]types.Vec3),
		curColor:       defaultColor,
		vertexList:     make([]types.Vec3, 0),
		errStack:       make([]string, 0),
	}
}

// Read scene definition.
func (r *wavefrontSceneReader) Read(sceneRes *resource) (*scene.Scene, error) {
	if err := r.parse(sceneRes); err != nil {
		return nil, err
	}

	// Drop objects that did not define any faces
	meshes := r.sceneGraph.Meshes[:0]
	for _, mesh := range r.sceneGraph.Meshes {
		if len(mesh.Indices) != 0 {
			meshes = append(meshes, mesh)
		}
	}
	r.sceneGraph.Meshes = meshes

	if err := r.sceneGraph.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", sceneRes.Path(), err)
	}

	return r.sceneGraph, nil
}

// Generate an error message that also includes any data in the error stack.
func (r *wavefrontSceneReader) emitError(file string, line int, msgFormat string, args ...interface{}) error {
	msg := fmt.Sprintf(msgFormat, args...)

	var errMsg string
	if file != "" {
		errMsg = strings.Trim(
			fmt.Sprintf("[%s: %d] error: %s\n%s", file, line, msg, strings.Join(r.errStack, "\n")),
			"\n",
		)
	} else {
		errMsg = strings.Trim(
			fmt.Sprintf("error: %s\n%s", msg, strings.Join(r.errStack, "\n")),
			"\n",
		)
	}

	return fmt.Errorf("%s", errMsg)
}

// Push a frame to the error stack.
func (r *wavefrontSceneReader) pushFrame(msg string) {
	r.errStack = append([]string{msg}, r.errStack...)
}

// Pop a frame from the error stack.
func (r *wavefrontSceneReader) popFrame() {
	r.errStack = r.errStack[1:]
}

// Start a new mesh. Faces are appended to it until the next object
// definition.
func (r *wavefrontSceneReader) beginMesh(name string) {
	r.curMeshName = name
	r.curMeshSplits = 0
	r.curMesh = scene.NewMesh(name, r.curColor)
	r.vertexRemap = make(map[int]int32)
	r.sceneGraph.AddMesh(r.curMesh)
}

// Select a new color. Meshes have a single flat color so a color change
// after faces have been added to the current mesh continues it in a new
// mesh.
func (r *wavefrontSceneReader) setColor(color types.Vec3) {
	r.curColor = color
	if r.curMesh == nil {
		return
	}
	if len(r.curMesh.Indices) == 0 {
		r.curMesh.Color = color
		return
	}

	r.curMeshSplits++
	name, splits := r.curMeshName, r.curMeshSplits
	r.beginMesh(fmt.Sprintf("%s.%d", name, splits))
	r.curMeshName, r.curMeshSplits = name, splits
}

// Parse wavefront object scene format.
func (r *wavefrontSceneReader) parse(res *resource) error {
	var lineNum int = 0
	var err error

	scanner := bufio.NewScanner(res)
	for scanner.Scan() {
		lineNum++
		lineTokens := strings.Fields(scanner.Text())
		if len(lineTokens) == 0 || strings.HasPrefix(lineTokens[0], "#") {
			continue
		}

		switch lineTokens[0] {
		case "call", "mtllib":
			if len(lineTokens) != 2 {
				return r.emitError(res.Path(), lineNum, "unsupported syntax for '%s'; expected 1 argument; got %d", lineTokens[0], len(lineTokens)-1)
			}

			r.pushFrame(fmt.Sprintf("referenced from %s:%d [%s]", res.Path(), lineNum, lineTokens[0]))

			incRes, err := newResource(lineTokens[1], res)
			if err != nil {
				return r.emitError(res.Path(), lineNum, "%s", err.Error())
			}

			switch lineTokens[0] {
			case "call":
				err = r.parse(incRes)
			case "mtllib":
				err = r.parseMaterials(incRes)
			}
			incRes.Close()

			if err != nil {
				return err
			}
			r.popFrame()
		case "usemtl":
			if len(lineTokens) != 2 {
				return r.emitError(res.Path(), lineNum, "unsupported syntax for 'usemtl'; expected 1 argument; got %d", len(lineTokens)-1)
			}

			// Lookup material
			matName := lineTokens[1]
			color, exists := r.matNameToColor[matName]
			if !exists {
				return r.emitError(res.Path(), lineNum, "undefined material with name '%s'", matName)
			}
			r.setColor(color)
		case "color":
			color, err := parseVec3(lineTokens)
			if err != nil {
				return r.emitError(res.Path(), lineNum, "%s", err.Error())
			}
			r.setColor(color)
		case "v":
			v, err := parseVec3(lineTokens)
			if err != nil {
				return r.emitError(res.Path(), lineNum, "%s", err.Error())
			}
			r.vertexList = append(r.vertexList, v)
		case "g", "o":
			if len(lineTokens) < 2 {
				return r.emitError(res.Path(), lineNum, "unsupported syntax for '%s'; expected 1 argument for object name; got %d", lineTokens[0], len(lineTokens)-1)
			}
			r.beginMesh(lineTokens[1])
		case "f":
			// If no object has been defined create a default one
			if r.curMesh == nil {
				r.beginMesh("default")
			}
			if err = r.parseFace(lineTokens); err != nil {
				return r.emitError(res.Path(), lineNum, "%s", err.Error())
			}
		case "sphere":
			sphere, err := parseSphere(lineTokens)
			if err != nil {
				return r.emitError(res.Path(), lineNum, "%s", err.Error())
			}
			r.sceneGraph.AddSphere(sphere)
		case "camera_eye", "camera_look", "camera_up":
			v, err := parseVec3(lineTokens)
			if err != nil {
				return r.emitError(res.Path(), lineNum, "%s", err.Error())
			}

			cam := r.camera()
			switch lineTokens[0] {
			case "camera_eye":
				cam.From = v
			case "camera_look":
				cam.At = v
			case "camera_up":
				cam.Up = v
			}
		}
	}

	return scanner.Err()
}

// Get the scene camera, creating one with default settings if required.
func (r *wavefrontSceneReader) camera() *scene.Camera {
	if r.sceneGraph.Camera == nil {
		r.sceneGraph.SetCamera(scene.NewCamera(
			types.Vec3{0, 0, 0},
			types.Vec3{0, 0, -1},
			types.Vec3{0, 1, 0},
		))
	}
	return r.sceneGraph.Camera
}

// Parse face definition. Each face definitions consists of 3 arguments,
// one for each vertex. Each one of the vertex arguments is comprised of
// 1, 2 or 3 args separated by a slash character. The following formats are
// supported:
// - vertexIndex
// - vertexIndex/uvIndex
// - vertexIndex//normalIndex
// - vertexIndex/uvIndex/normalIndex
//
// Only the vertex index is used. Indices start from 1 and may be negative
// to indicate an offset off the end of the vertex list.
//
// This method only works with triangular faces and will return an error if a
// face with more than 3 vertices is encountered.
func (r *wavefrontSceneReader) parseFace(lineTokens []string) error {
	if len(lineTokens) != 4 {
		return fmt.Errorf("unsupported syntax for 'f'; expected 3 arguments for triangular face; got %d. Select the triangulation option in your exporter.", len(lineTokens)-1)
	}

	var tri types.Vec3i
	expIndices := 0
	for arg := 0; arg < 3; arg++ {
		vTokens := strings.Split(lineTokens[arg+1], "/")

		// The first arg defines the format for the following args
		if arg == 0 {
			expIndices = len(vTokens)
		} else if len(vTokens) != expIndices {
			return fmt.Errorf("expected each face argument to contain %d indices; arg %d contains %d indices", expIndices, arg, len(vTokens))
		}

		// Faces must at least define a vertex coord
		if vTokens[0] == "" {
			return fmt.Errorf("face argument %d does not include a vertex index", arg)
		}

		vOffset, err := selectFaceCoordIndex(vTokens[0], len(r.vertexList))
		if err != nil {
			return fmt.Errorf("could not parse vertex coord for face argument %d: %s", arg, err.Error())
		}

		meshIndex, exists := r.vertexRemap[vOffset]
		if !exists {
			meshIndex = int32(len(r.curMesh.Vertices))
			r.curMesh.Vertices = append(r.curMesh.Vertices, r.vertexList[vOffset])
			r.vertexRemap[vOffset] = meshIndex
		}
		tri[arg] = meshIndex
	}

	r.curMesh.Indices = append(r.curMesh.Indices, tri)
	return nil
}

// Parse a sphere definition using the format: sphere radius r g b
func parseSphere(lineTokens []string) (*scene.Sphere, error) {
	if len(lineTokens) != 5 {
		return nil, fmt.Errorf("unsupported syntax for 'sphere'; expected 4 arguments: radius r g b; got %d", len(lineTokens)-1)
	}

	radius, err := parseFloat32(lineTokens[:2])
	if err != nil {
		return nil, err
	}
	if radius <= 0 {
		return nil, fmt.Errorf("sphere radius must be positive; got %f", radius)
	}

	color, err := parseVec3(append([]string{lineTokens[0]}, lineTokens[2:]...))
	if err != nil {
		return nil, err
	}

	return scene.NewSphere(radius, color), nil
}

// Parse a wavefront material library. Only the diffuse color of each
// material is used.
func (r *wavefrontSceneReader) parseMaterials(res *resource) error {
	var lineNum int = 0

	scanner := bufio.NewScanner(res)

	var matName string = ""

	for scanner.Scan() {
		lineNum++
		lineTokens := strings.Fields(scanner.Text())
		if len(lineTokens) == 0 || strings.HasPrefix(lineTokens[0], "#") {
			continue
		}

		switch lineTokens[0] {
		case "newmtl":
			if len(lineTokens) != 2 {
				return r.emitError(res.Path(), lineNum, "unsupported syntax for 'newmtl'; expected 1 argument; got %d", len(lineTokens)-1)
			}

			matName = lineTokens[1]
			if _, exists := r.matNameToColor[matName]; exists {
				return r.emitError(res.Path(), lineNum, "material '%s' already defined", matName)
			}
			r.matNameToColor[matName] = defaultColor
		case "Kd":
			if matName == "" {
				return r.emitError(res.Path(), lineNum, "got '%s' without a 'newmtl'", lineTokens[0])
			}

			kd, err := parseVec3(lineTokens)
			if err != nil {
				return r.emitError(res.Path(), lineNum, "%s", err.Error())
			}
			r.matNameToColor[matName] = kd
		default:
			if matName == "" {
				return r.emitError(res.Path(), lineNum, "got '%s' without a 'newmtl'", lineTokens[0])
			}
		}
	}

	return scanner.Err()
}

// Given an index for a face coord type (vertex, normal, tex) calculate the
// proper offset into the coord list. Wavefront format can also use negative
// indices to reference elements from the end of the coord list.
func selectFaceCoordIndex(indexToken string, coordListLen int) (int, error) {
	index, err := strconv.ParseInt(indexToken, 10, 32)
	if err != nil {
		return -1, err
	}

	var vOffset int = 0
	if index < 0 {
		vOffset = coordListLen + int(index)
	} else {
		vOffset = int(index - 1)
	}
	if vOffset < 0 || vOffset >= coordListLen {
		return -1, fmt.Errorf("index out of bounds")
	}
	return vOffset, nil
}

// Parse a float scalar value.
func parseFloat32(lineTokens []string) (float32, error) {
	if len(lineTokens) < 2 {
		return 0, fmt.Errorf("unsupported syntax for '%s'; expected 1 argument; got %d", lineTokens[0], len(lineTokens)-1)
	}

	val, err := strconv.ParseFloat(lineTokens[1], 32)
	if err != nil {
		return 0, err
	}

	return float32(val), nil
}

// Parse a Vec3 row.
func parseVec3(lineTokens []string) (types.Vec3, error) {
	if len(lineTokens) < 4 {
		return types.Vec3{}, fmt.Errorf("unsupported syntax for '%s'; expected 3 arguments; got %d", lineTokens[0], len(lineTokens)-1)
	}

	v := types.Vec3{}
	for tokIdx := 1; tokIdx <= 3; tokIdx++ {
		coord, err := strconv.ParseFloat(lineTokens[tokIdx], 32)
		if err != nil {
			return v, err
		}
		v[tokIdx-1] = float32(coord)
	}
	return v, nil
}
