package devicecode

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/achilleasa/prism/rtx"
	"github.com/achilleasa/prism/types"
)

var byteOrder = binary.LittleEndian

// Ray types.
const (
	RayTypeSurface uint32 = iota
	RayTypeCount
)

type FrameParams struct {
	ColorBuffer rtx.DevicePtr
	Size        [2]int32
}

type CameraParams struct {
	Position   types.Vec3
	Direction  types.Vec3
	Horizontal types.Vec3
	Vertical   types.Vec3
}

// The launch parameter block shared by the host and the device programs.
type LaunchParams struct {
	Frame       FrameParams
	Camera      CameraParams
	Traversable rtx.TraversableHandle
}

// Encode params using the device layout.
func (p *LaunchParams) Encode() []byte {
	var buf bytes.Buffer
	binary.Write(&buf, byteOrder, p)
	return buf.Bytes()
}

// Decode params from their device layout.
func DecodeLaunchParams(data []byte) (LaunchParams, error) {
	var p LaunchParams
	err := binary.Read(bytes.NewReader(data), byteOrder, &p)
	return p, err
}

// The kind of geometry a hitgroup record describes.
type GeometryKind uint32

const (
	GeometryMesh GeometryKind = iota
	GeometrySphere
)

func (k GeometryKind) String() string {
	switch k {
	case GeometryMesh:
		return "mesh"
	case GeometrySphere:
		return "sphere"
	}
	return fmt.Sprintf("GeometryKind(%d)", uint32(k))
}

type MeshData struct {
	Vertex rtx.DevicePtr
	Index  rtx.DevicePtr
}

type SphereData struct {
	Radius float32
}

// The payload of a hitgroup record. Kind selects which of Mesh and Sphere
// is valid; both share the same bytes in the device layout.
type HitgroupData struct {
	Kind   GeometryKind
	Color  types.Vec3
	Mesh   MeshData
	Sphere SphereData
}

const (
	hitgroupHeaderSize = 16
	hitgroupUnionSize  = 16

	// Encoded size of HitgroupData.
	HitgroupDataSize = hitgroupHeaderSize + hitgroupUnionSize
)

func (h *HitgroupData) Encode() []byte {
	out := make([]byte, HitgroupDataSize)
	byteOrder.PutUint32(out[0:], uint32(h.Kind))
	putVec3(out[4:], h.Color)

	union := out[hitgroupHeaderSize:]
	switch h.Kind {
	case GeometryMesh:
		byteOrder.PutUint64(union[0:], uint64(h.Mesh.Vertex))
		byteOrder.PutUint64(union[8:], uint64(h.Mesh.Index))
	case GeometrySphere:
		putFloat(union[0:], h.Sphere.Radius)
	}
	return out
}

func DecodeHitgroupData(data []byte) (HitgroupData, error) {
	var h HitgroupData
	if len(data) < HitgroupDataSize {
		return h, fmt.Errorf("devicecode: hitgroup data has %d bytes; need %d", len(data), HitgroupDataSize)
	}

	h.Kind = GeometryKind(byteOrder.Uint32(data[0:]))
	h.Color = getVec3(data[4:])

	union := data[hitgroupHeaderSize:]
	switch h.Kind {
	case GeometryMesh:
		h.Mesh.Vertex = rtx.DevicePtr(byteOrder.Uint64(union[0:]))
		h.Mesh.Index = rtx.DevicePtr(byteOrder.Uint64(union[8:]))
	case GeometrySphere:
		h.Sphere.Radius = getFloat(union[0:])
	default:
		return h, fmt.Errorf("devicecode: unknown geometry kind %d", uint32(h.Kind))
	}
	return h, nil
}
