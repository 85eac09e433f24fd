package cpu

import (
	"fmt"
	"math"

	"github.com/achilleasa/prism/rtx"
	"github.com/achilleasa/prism/types"
)

type stage uint8

const (
	stageRaygen stage = iota
	stageMiss
	stageClosestHit
	stageAnyHit
	stageIntersection
)

func (s stage) String() string {
	switch s {
	case stageRaygen:
		return "raygen"
	case stageMiss:
		return "miss"
	case stageClosestHit:
		return "closest-hit"
	case stageAnyHit:
		return "any-hit"
	case stageIntersection:
		return "intersection"
	}
	return "unknown"
}

// The instance that leads to the geometry currently being traversed.
type instanceContext struct {
	id        uint32
	index     uint32
	sbtOffset uint32
	flags     rtx.InstanceFlags

	objectToWorld types.Mat3x4
	worldToObject types.Mat3x4
}

var rootInstance = instanceContext{
	objectToWorld: types.Ident3x4(),
	worldToObject: types.Ident3x4(),
}

// A candidate or committed intersection.
type hitInfo struct {
	t         float32
	kind      uint32
	attrs     [rtx.MaxAttributeValues]uint32
	triangle  bool
	primIndex uint32
	gasIndex  uint32
	geomFlags rtx.GeometryFlags
	inst      instanceContext
	objOrigin types.Vec3
	objDir    types.Vec3
	record    *record
}

// The state of a ray while it is being traced.
type rayState struct {
	origin     types.Vec3
	dir        types.Vec3
	tmin, tmax float32
	flags      rtx.RayFlags
	mask       uint8
	sbtOffset  uint32
	sbtStride  uint32
	missIndex  uint32
	payload    []uint32

	hit        hitInfo
	hasHit     bool
	terminated bool
}

type anyHitSignal int

const (
	anyHitAccept anyHitSignal = iota
	anyHitIgnore
	anyHitTerminate
)

// A single launch invocation. thread implements rtx.DeviceContext.
type thread struct {
	launch *launchState
	index  [3]uint32
	depth  uint32

	stage stage
	data  []byte
	ray   *rayState
	hit   *hitInfo
}

type threadState struct {
	depth uint32
	stage stage
	data  []byte
	ray   *rayState
	hit   *hitInfo
}

func (t *thread) save() threadState {
	return threadState{t.depth, t.stage, t.data, t.ray, t.hit}
}

func (t *thread) restore(s threadState) {
	t.depth, t.stage, t.data, t.ray, t.hit = s.depth, s.stage, s.data, s.ray, s.hit
}

func (t *thread) fail(err error, format string, args ...interface{}) {
	panic(fmt.Errorf("%w: %s", err, fmt.Sprintf(format, args...)))
}

// Abort the launch unless the running program is one of the given kinds.
func (t *thread) require(intrinsic string, stages ...stage) {
	for _, s := range stages {
		if t.stage == s {
			return
		}
	}
	t.fail(ErrLaunchFailed, "%s is not available in %s programs", intrinsic, t.stage)
}

func (t *thread) LaunchIndex() [3]uint32 {
	return t.index
}

func (t *thread) LaunchDimensions() [3]uint32 {
	return t.launch.dims
}

func (t *thread) LaunchParams() []byte {
	return t.launch.params
}

func (t *thread) SbtData() []byte {
	return t.data
}

func (t *thread) Load(ptr rtx.DevicePtr, dst []byte) {
	if err := t.launch.ctx.mem.read(dst, ptr); err != nil {
		panic(err)
	}
}

func (t *thread) Store(ptr rtx.DevicePtr, src []byte) {
	if err := t.launch.ctx.mem.write(ptr, src); err != nil {
		panic(err)
	}
}

func (t *thread) Trace(handle rtx.TraversableHandle, origin, direction types.Vec3, tmin, tmax float32, visibilityMask uint8, flags rtx.RayFlags, sbtOffset, sbtStride, missIndex uint32, payload []uint32) {
	t.require("Trace", stageRaygen, stageClosestHit, stageMiss)

	p := t.launch.pipeline
	if len(payload) > p.compileOpts.NumPayloadValues {
		t.fail(ErrLaunchFailed, "trace with %d payload values; pipeline supports %d", len(payload), p.compileOpts.NumPayloadValues)
	}
	if t.depth+1 > p.linkOpts.MaxTraceDepth {
		t.fail(ErrTraceDepthExceeded, "trace at depth %d; pipeline max trace depth is %d", t.depth+1, p.linkOpts.MaxTraceDepth)
	}

	a, err := t.launch.ctx.resolveAccel(handle)
	if err != nil {
		panic(err)
	}
	t.checkGraph(a)

	rs := &rayState{
		origin:    origin,
		dir:       direction,
		tmin:      tmin,
		tmax:      tmax,
		flags:     flags,
		mask:      visibilityMask,
		sbtOffset: sbtOffset,
		sbtStride: sbtStride,
		missIndex: missIndex,
		payload:   payload,
	}

	saved := t.save()
	defer t.restore(saved)
	t.depth++

	t.traverse(a, rs, rootInstance)

	if rs.hasHit {
		ch := rs.hit.record.group.ch
		if ch == nil || flags&rtx.RayFlagDisableClosestHit != 0 {
			return
		}
		t.stage, t.ray, t.hit, t.data = stageClosestHit, rs, &rs.hit, rs.hit.record.data
		ch.fn(t)
		return
	}

	misses := t.launch.miss
	if len(misses) == 0 {
		return
	}
	if int(missIndex) >= len(misses) {
		t.fail(ErrInvalidSbt, "miss record %d out of range (%d records)", missIndex, len(misses))
	}
	rec := &misses[missIndex]
	if rec.group.miss == nil {
		return
	}
	t.stage, t.ray, t.hit, t.data = stageMiss, rs, nil, rec.data
	rec.group.miss.fn(t)
}

// Check the traversable against the pipeline graph flags and depth.
func (t *thread) checkGraph(a *accel) {
	p := t.launch.pipeline
	depth := a.header.Depth
	if depth > p.maxTraversableGraphDepth {
		t.fail(ErrTraversableGraph, "traversable has %d instance levels; pipeline allows %d", depth, p.maxTraversableGraphDepth)
	}

	graphFlags := p.compileOpts.TraversableGraphFlags
	if graphFlags == rtx.TraversableGraphFlagAllowAny {
		return
	}
	if graphFlags&rtx.TraversableGraphFlagAllowSingleGAS != 0 && depth == 0 {
		return
	}
	if graphFlags&rtx.TraversableGraphFlagAllowSingleLevelInstancing != 0 && depth == 1 {
		return
	}
	t.fail(ErrTraversableGraph, "traversable with %d instance levels is not allowed by graph flags 0x%x", depth, uint32(graphFlags))
}

func (t *thread) Payload(slot int) uint32 {
	t.checkPayloadSlot(slot)
	return t.ray.payload[slot]
}

func (t *thread) SetPayload(slot int, value uint32) {
	t.checkPayloadSlot(slot)
	t.ray.payload[slot] = value
}

func (t *thread) checkPayloadSlot(slot int) {
	t.require("Payload", stageMiss, stageClosestHit, stageAnyHit, stageIntersection)
	if slot < 0 || slot >= len(t.ray.payload) {
		t.fail(ErrLaunchFailed, "payload slot %d out of range (%d values traced)", slot, len(t.ray.payload))
	}
}

func (t *thread) ReportIntersection(tHit float32, hitKind uint32, attributes ...uint32) bool {
	t.require("ReportIntersection", stageIntersection)
	if len(attributes) > t.launch.pipeline.compileOpts.NumAttributeValues {
		t.fail(ErrLaunchFailed, "reported %d attribute values; pipeline supports %d", len(attributes), t.launch.pipeline.compileOpts.NumAttributeValues)
	}
	if hitKind > 127 {
		t.fail(ErrLaunchFailed, "hit kind %d out of range [0, 127]", hitKind)
	}

	cand := *t.hit
	cand.t = tHit
	cand.kind = hitKind
	copy(cand.attrs[:], attributes)
	return t.reportCandidate(t.ray, &cand)
}

func (t *thread) Attribute(slot int) uint32 {
	t.require("Attribute", stageClosestHit, stageAnyHit)
	if slot < 0 || slot >= t.launch.pipeline.compileOpts.NumAttributeValues {
		t.fail(ErrLaunchFailed, "attribute slot %d out of range", slot)
	}
	return t.hit.attrs[slot]
}

func (t *thread) IgnoreIntersection() {
	t.require("IgnoreIntersection", stageAnyHit)
	panic(anyHitIgnore)
}

func (t *thread) TerminateRay() {
	t.require("TerminateRay", stageAnyHit)
	panic(anyHitTerminate)
}

func (t *thread) PrimitiveIndex() uint32 {
	t.require("PrimitiveIndex", stageIntersection, stageAnyHit, stageClosestHit)
	return t.hit.primIndex
}

func (t *thread) InstanceID() uint32 {
	t.require("InstanceID", stageIntersection, stageAnyHit, stageClosestHit)
	return t.hit.inst.id
}

func (t *thread) InstanceIndex() uint32 {
	t.require("InstanceIndex", stageIntersection, stageAnyHit, stageClosestHit)
	return t.hit.inst.index
}

func (t *thread) SbtGASIndex() uint32 {
	t.require("SbtGASIndex", stageIntersection, stageAnyHit, stageClosestHit)
	return t.hit.gasIndex
}

func (t *thread) HitKind() uint32 {
	t.require("HitKind", stageAnyHit, stageClosestHit)
	return t.hit.kind
}

func (t *thread) RayTmin() float32 {
	t.require("RayTmin", stageMiss, stageClosestHit, stageAnyHit, stageIntersection)
	return t.ray.tmin
}

// In any-hit and closest-hit programs this is the distance to the current
// intersection; elsewhere it is the closest distance accepted so far.
func (t *thread) RayTmax() float32 {
	t.require("RayTmax", stageMiss, stageClosestHit, stageAnyHit, stageIntersection)
	if t.stage == stageAnyHit || t.stage == stageClosestHit {
		return t.hit.t
	}
	return t.ray.tmax
}

func (t *thread) RayFlags() rtx.RayFlags {
	t.require("RayFlags", stageMiss, stageClosestHit, stageAnyHit, stageIntersection)
	return t.ray.flags
}

func (t *thread) WorldRayOrigin() types.Vec3 {
	t.require("WorldRayOrigin", stageMiss, stageClosestHit, stageAnyHit, stageIntersection)
	return t.ray.origin
}

func (t *thread) WorldRayDirection() types.Vec3 {
	t.require("WorldRayDirection", stageMiss, stageClosestHit, stageAnyHit, stageIntersection)
	return t.ray.dir
}

func (t *thread) ObjectRayOrigin() types.Vec3 {
	t.require("ObjectRayOrigin", stageClosestHit, stageAnyHit, stageIntersection)
	return t.hit.objOrigin
}

func (t *thread) ObjectRayDirection() types.Vec3 {
	t.require("ObjectRayDirection", stageClosestHit, stageAnyHit, stageIntersection)
	return t.hit.objDir
}

func (t *thread) TriangleBarycentrics() types.Vec2 {
	t.require("TriangleBarycentrics", stageClosestHit, stageAnyHit)
	if !t.hit.triangle {
		t.fail(ErrLaunchFailed, "TriangleBarycentrics called for a custom primitive hit")
	}
	return types.Vec2{
		math.Float32frombits(t.hit.attrs[0]),
		math.Float32frombits(t.hit.attrs[1]),
	}
}

func (t *thread) TransformPointFromObjectToWorld(p types.Vec3) types.Vec3 {
	t.require("TransformPointFromObjectToWorld", stageClosestHit, stageAnyHit, stageIntersection)
	return t.hit.inst.objectToWorld.TransformPoint(p)
}

func (t *thread) TransformNormalFromObjectToWorld(n types.Vec3) types.Vec3 {
	t.require("TransformNormalFromObjectToWorld", stageClosestHit, stageAnyHit, stageIntersection)
	return t.hit.inst.worldToObject.TransformNormal(n)
}
