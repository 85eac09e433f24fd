package rtx

import "github.com/achilleasa/prism/types"

// A device program entry point.
type Program func(DeviceContext)

// DeviceContext exposes the device intrinsics available to a running
// program. Calling an intrinsic from a program kind that does not support
// it, or violating a pipeline limit, aborts the launch with an error.
type DeviceContext interface {
	LaunchIndex() [3]uint32
	LaunchDimensions() [3]uint32

	// The launch parameter block captured when the launch started.
	LaunchParams() []byte

	// The payload that follows the header of the SBT record that selected
	// the running program.
	SbtData() []byte

	// Access global device memory.
	Load(ptr DevicePtr, dst []byte)
	Store(ptr DevicePtr, src []byte)

	// Trace a ray against a traversable. Payload values are visible to the
	// invoked hit and miss programs and receive their updates.
	Trace(handle TraversableHandle, origin, direction types.Vec3, tmin, tmax float32, visibilityMask uint8, flags RayFlags, sbtOffset, sbtStride, missIndex uint32, payload []uint32)

	Payload(slot int) uint32
	SetPayload(slot int, value uint32)

	// Intersection programs report candidate hits; the return value
	// indicates whether the hit was accepted.
	ReportIntersection(t float32, hitKind uint32, attributes ...uint32) bool
	Attribute(slot int) uint32

	// Any-hit only. Both calls do not return.
	IgnoreIntersection()
	TerminateRay()

	PrimitiveIndex() uint32
	InstanceID() uint32
	InstanceIndex() uint32
	SbtGASIndex() uint32
	HitKind() uint32

	RayTmin() float32
	RayTmax() float32
	RayFlags() RayFlags
	WorldRayOrigin() types.Vec3
	WorldRayDirection() types.Vec3
	ObjectRayOrigin() types.Vec3
	ObjectRayDirection() types.Vec3

	TriangleBarycentrics() types.Vec2
	TransformPointFromObjectToWorld(p types.Vec3) types.Vec3
	TransformNormalFromObjectToWorld(n types.Vec3) types.Vec3
}
