package scene

import (
	"bytes"
	"fmt"
	"strings"
	"unsafe"

	"github.com/olekukonko/tablewriter"

	"github.com/achilleasa/prism/types"
)

// Build a tabular representation of scene statistics.
func (s *Scene) Stats() string {
	var (
		buf                     bytes.Buffer
		vertices, triangles     int
		vertexBytes, indexBytes int
		sphereBytes             = len(s.Spheres) * int(unsafe.Sizeof(types.Vec3{})) * 2
	)

	table := tablewriter.NewWriter(&buf)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetAutoFormatHeaders(false)
	table.SetHeader([]string{"Asset Type", "Asset", "Elements", "Size"})

	table.Append([]string{"Meshes", "---", fmt.Sprintf("%d", len(s.Meshes)), ""})
	for _, mesh := range s.Meshes {
		meshVertexBytes := len(mesh.Vertices) * int(unsafe.Sizeof(types.Vec3{}))
		meshIndexBytes := len(mesh.Indices) * int(unsafe.Sizeof(types.Vec3i{}))
		table.Append([]string{
			"",
			mesh.Name,
			fmt.Sprintf("%d tris", len(mesh.Indices)),
			fmtSize(meshVertexBytes + meshIndexBytes),
		})

		vertices += len(mesh.Vertices)
		triangles += len(mesh.Indices)
		vertexBytes += meshVertexBytes
		indexBytes += meshIndexBytes
	}
	table.Append([]string{" ", " ", " ", " "})
	table.Append([]string{"Geometry", "Vertices", fmt.Sprintf("%d", vertices), fmtSize(vertexBytes)})
	table.Append([]string{"", "Triangles", fmt.Sprintf("%d", triangles), fmtSize(indexBytes)})
	table.Append([]string{"", "Spheres", fmt.Sprintf("%d", len(s.Spheres)), fmtSize(sphereBytes)})
	table.SetFooter([]string{"Total", " ", " ", strings.TrimLeft(fmtSize(vertexBytes+indexBytes+sphereBytes), " ")})

	table.Render()
	return buf.String()
}

// Format a byte count using the appropriate byte/kb/mb unit.
func fmtSize(totalBytes int) string {
	switch {
	case totalBytes < 1e3:
		return fmt.Sprintf("%3d bytes", totalBytes)
	case totalBytes < 1e6:
		return fmt.Sprintf("%3.1f kb", float32(totalBytes)/1e3)
	}
	return fmt.Sprintf("%3.1f mb", float32(totalBytes)/1e6)
}
