// Package devicecode contains the device programs of the renderer and the
// module manifest that exports them.
package devicecode

import (
	_ "embed"
	"math"

	"github.com/achilleasa/prism/rtx"
	"github.com/achilleasa/prism/types"
)

// The name of the module as it appears in the manifest.
const ModuleName = "osc"

// Exported entry points.
const (
	EntryRaygen       = "__raygen__renderFrame"
	EntryMiss         = "__miss__radiance"
	EntryClosestHit   = "__closesthit__radiance"
	EntryAnyHit       = "__anyhit__radiance"
	EntryIntersection = "__intersection__is"

	LaunchParamsVariable = "optixLaunchParams"
)

// The module manifest passed to rtx.Context.ModuleCreate.
//
//go:embed osc.module
var Module []byte

var background = types.XYZ(1, 1, 1)

func init() {
	rtx.RegisterModule(ModuleName, map[string]rtx.Program{
		EntryRaygen:       renderFrame,
		EntryMiss:         missRadiance,
		EntryClosestHit:   closestHitRadiance,
		EntryAnyHit:       anyHitRadiance,
		EntryIntersection: intersectSphere,
	})
}

// Payload slots 0-2 carry the RGB color of the traced ray.
func setPayloadColor(d rtx.DeviceContext, c types.Vec3) {
	d.SetPayload(0, math.Float32bits(c[0]))
	d.SetPayload(1, math.Float32bits(c[1]))
	d.SetPayload(2, math.Float32bits(c[2]))
}

// Trace a primary ray through the pixel center and write its packed color.
// Row 0 is the top row of the image.
func renderFrame(d rtx.DeviceContext) {
	params, err := DecodeLaunchParams(d.LaunchParams())
	if err != nil {
		panic(err)
	}

	index := d.LaunchIndex()
	width, height := params.Frame.Size[0], params.Frame.Size[1]
	sx := (float32(index[0]) + 0.5) / float32(width)
	sy := (float32(index[1]) + 0.5) / float32(height)

	cam := params.Camera
	dir := cam.Direction.
		Add(cam.Horizontal.Mul(sx - 0.5)).
		Add(cam.Vertical.Mul(0.5 - sy)).
		Normalize()

	payload := make([]uint32, 3)
	d.Trace(
		params.Traversable,
		cam.Position, dir,
		0, 1e20,
		255,
		rtx.RayFlagDisableAnyHit,
		RayTypeSurface, RayTypeCount, RayTypeSurface,
		payload,
	)

	color := types.XYZ(
		math.Float32frombits(payload[0]),
		math.Float32frombits(payload[1]),
		math.Float32frombits(payload[2]),
	)

	var pixel [4]byte
	byteOrder.PutUint32(pixel[:], color.PackRGBA())
	offset := 4 * (uint64(index[1])*uint64(width) + uint64(index[0]))
	d.Store(params.Frame.ColorBuffer+rtx.DevicePtr(offset), pixel[:])
}

func missRadiance(d rtx.DeviceContext) {
	setPayloadColor(d, background)
}

// Flat color scaled by a facing ratio term.
func closestHitRadiance(d rtx.DeviceContext) {
	data, err := DecodeHitgroupData(d.SbtData())
	if err != nil {
		panic(err)
	}

	var normal types.Vec3
	switch data.Kind {
	case GeometryMesh:
		normal = triangleNormal(d, data.Mesh)
	case GeometrySphere:
		hit := d.ObjectRayOrigin().Add(d.ObjectRayDirection().Mul(d.RayTmax()))
		normal = hit
	}
	normal = d.TransformNormalFromObjectToWorld(normal).Normalize()

	rayDir := d.WorldRayDirection().Normalize()
	cosDN := 0.2 + 0.8*float32(math.Abs(float64(rayDir.Dot(normal))))
	setPayloadColor(d, data.Color.Mul(cosDN))
}

func triangleNormal(d rtx.DeviceContext, mesh MeshData) types.Vec3 {
	var buf [12]byte
	d.Load(mesh.Index+rtx.DevicePtr(12*uint64(d.PrimitiveIndex())), buf[:])
	var v [3]types.Vec3
	for i := range v {
		vertexIndex := byteOrder.Uint32(buf[4*i:])
		var vbuf [12]byte
		d.Load(mesh.Vertex+rtx.DevicePtr(12*uint64(vertexIndex)), vbuf[:])
		v[i] = getVec3(vbuf[:])
	}
	return v[1].Sub(v[0]).Cross(v[2].Sub(v[0]))
}

func anyHitRadiance(d rtx.DeviceContext) {}

// Ray/sphere intersection for a sphere centered at the local origin.
func intersectSphere(d rtx.DeviceContext) {
	data, err := DecodeHitgroupData(d.SbtData())
	if err != nil {
		panic(err)
	}

	origin, dir := d.ObjectRayOrigin(), d.ObjectRayDirection()
	a := dir.Dot(dir)
	b := origin.Dot(dir)
	c := origin.Dot(origin) - data.Sphere.Radius*data.Sphere.Radius
	disc := b*b - a*c
	if disc < 0 || a == 0 {
		return
	}

	sqrtDisc := float32(math.Sqrt(float64(disc)))
	tmin, tmax := d.RayTmin(), d.RayTmax()
	for _, t := range []float32{(-b - sqrtDisc) / a, (-b + sqrtDisc) / a} {
		if t >= tmin && t <= tmax {
			d.ReportIntersection(t, 0)
			return
		}
	}
}
