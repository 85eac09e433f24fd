package scene

import "github.com/achilleasa/prism/types"

// A triangle mesh with a flat color.
type TriangleMesh struct {
	Name     string
	Vertices []types.Vec3
	Indices  []types.Vec3i
	Color    types.Vec3
}

func NewMesh(name string, color types.Vec3) *TriangleMesh {
	return &TriangleMesh{
		Name:     name,
		Vertices: make([]types.Vec3, 0),
		Indices:  make([]types.Vec3i, 0),
		Color:    color,
	}
}

// Get the mesh bounding box. The mesh must contain at least one vertex.
func (m *TriangleMesh) Bounds() (min, max types.Vec3) {
	min, max = m.Vertices[0], m.Vertices[0]
	for _, v := range m.Vertices[1:] {
		min = types.MinVec3(min, v)
		max = types.MaxVec3(max, v)
	}
	return min, max
}

// The corners of the unit cube [0,1]^3 and its 12 triangles.
var (
	unitCubeVertices = []types.Vec3{
		{0, 0, 0}, {1, 0, 0}, {0, 1, 0}, {1, 1, 0},
		{0, 0, 1}, {1, 0, 1}, {0, 1, 1}, {1, 1, 1},
	}
	unitCubeIndices = []types.Vec3i{
		{0, 1, 3}, {2, 3, 0},
		{5, 7, 6}, {5, 6, 4},
		{0, 4, 5}, {0, 5, 1},
		{2, 3, 7}, {2, 7, 6},
		{1, 5, 7}, {1, 7, 3},
		{4, 0, 2}, {4, 2, 6},
	}
)

// Append an axis-aligned cube with the given center and edge size.
func (m *TriangleMesh) AddCube(center types.Vec3, size float32) {
	offset := int32(len(m.Vertices))
	origin := center.Sub(types.XYZ(0.5, 0.5, 0.5).Mul(size))
	for _, v := range unitCubeVertices {
		m.Vertices = append(m.Vertices, origin.Add(v.Mul(size)))
	}
	for _, tri := range unitCubeIndices {
		m.Indices = append(m.Indices, types.IJK(tri[0]+offset, tri[1]+offset, tri[2]+offset))
	}
}

// Append an axis-aligned unit cube centered at center.
func (m *TriangleMesh) AddUnitCube(center types.Vec3) {
	m.AddCube(center, 1)
}
