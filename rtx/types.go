package rtx

import (
	"encoding/binary"

	"github.com/achilleasa/prism/types"
)

// A device address. Device pointers support arithmetic within the bounds of
// the allocation they point into.
type DevicePtr uint64

// An opaque handle to an acceleration structure that can be passed to
// Launch through the launch parameters and to Trace from device code.
type TraversableHandle uint64

const (
	// Size of the opaque header that prefixes every shader binding table record.
	SbtRecordHeaderSize = 32

	// Required alignment for shader binding table records and their stride.
	SbtRecordAlignment = 16

	// Required alignment for acceleration structure output and temp buffers.
	AccelBufferByteAlignment = 128

	// Maximum number of 32-bit payload and attribute slots.
	MaxPayloadValues   = 8
	MaxAttributeValues = 8
)

// Hit kinds reported for built-in triangle intersections.
const (
	HitKindTriangleFrontFace uint32 = 0xFE
	HitKindTriangleBackFace  uint32 = 0xFF
)

type BuildFlags uint32

const (
	BuildFlagNone            BuildFlags = 0
	BuildFlagAllowUpdate     BuildFlags = 1 << 0
	BuildFlagAllowCompaction BuildFlags = 1 << 1
	BuildFlagPreferFastTrace BuildFlags = 1 << 2
	BuildFlagPreferFastBuild BuildFlags = 1 << 3
)

type BuildOperation uint32

const (
	BuildOperationBuild BuildOperation = iota
	BuildOperationUpdate
)

// Options shared by all inputs of an acceleration structure build.
type AccelBuildOptions struct {
	BuildFlags BuildFlags
	Operation  BuildOperation

	// The number of motion keys; values below 2 disable motion.
	MotionKeys uint16
}

type BuildInputType uint32

const (
	BuildInputTriangles BuildInputType = iota
	BuildInputCustomPrimitives
	BuildInputInstances
)

func (t BuildInputType) String() string {
	switch t {
	case BuildInputTriangles:
		return "triangles"
	case BuildInputCustomPrimitives:
		return "custom primitives"
	case BuildInputInstances:
		return "instances"
	}
	return "unknown"
}

type GeometryFlags uint32

const (
	GeometryFlagNone          GeometryFlags = 0
	GeometryFlagDisableAnyHit GeometryFlags = 1 << 0
)

type VertexFormat uint32

const (
	VertexFormatFloat3 VertexFormat = iota
)

type IndicesFormat uint32

const (
	IndicesFormatNone IndicesFormat = iota
	IndicesFormatUnsignedInt3
)

// A triangle build input. Vertices are packed float3 values and indices
// are packed uint3 triplets unless a stride is specified.
type TriangleArray struct {
	VertexBuffer        DevicePtr
	NumVertices         uint32
	VertexFormat        VertexFormat
	VertexStrideInBytes uint32

	IndexBuffer        DevicePtr
	NumIndexTriplets   uint32
	IndexFormat        IndicesFormat
	IndexStrideInBytes uint32

	// One entry per SBT record.
	Flags         []GeometryFlags
	NumSbtRecords uint32
}

// A custom primitive build input. Each primitive is described by an Aabb.
type CustomPrimitiveArray struct {
	AabbBuffer    DevicePtr
	NumPrimitives uint32
	StrideInBytes uint32

	Flags                []GeometryFlags
	NumSbtRecords        uint32
	PrimitiveIndexOffset uint32
}

// An instance build input. Instances points to an array of Instance values.
type InstanceArray struct {
	Instances    DevicePtr
	NumInstances uint32
}

// A single acceleration structure build input. Only the array matching Type
// is consulted.
type BuildInput struct {
	Type                 BuildInputType
	TriangleArray        TriangleArray
	CustomPrimitiveArray CustomPrimitiveArray
	InstanceArray        InstanceArray
}

// Memory requirements for an acceleration structure build.
type AccelBufferSizes struct {
	OutputSizeInBytes     uint64
	TempSizeInBytes       uint64
	TempUpdateSizeInBytes uint64
}

type AccelPropertyType uint32

const (
	PropertyCompactedSize AccelPropertyType = iota
	PropertyAabbs
)

// Requests a property to be written to device memory once a build completes.
// Compacted sizes are written as a uint64; Aabbs as a single Aabb.
type AccelEmitDesc struct {
	Type   AccelPropertyType
	Result DevicePtr
}

// An axis aligned bounding box as stored in device memory.
type Aabb struct {
	MinX, MinY, MinZ float32
	MaxX, MaxY, MaxZ float32
}

// Create an Aabb from its min and max corners.
func NewAabb(min, max types.Vec3) Aabb {
	return Aabb{min[0], min[1], min[2], max[0], max[1], max[2]}
}

// Min returns the min corner.
func (a Aabb) Min() types.Vec3 {
	return types.Vec3{a.MinX, a.MinY, a.MinZ}
}

// Max returns the max corner.
func (a Aabb) Max() types.Vec3 {
	return types.Vec3{a.MaxX, a.MaxY, a.MaxZ}
}

type InstanceFlags uint32

const (
	InstanceFlagNone                    InstanceFlags = 0
	InstanceFlagDisableTriangleFaceCull InstanceFlags = 1 << 0
	InstanceFlagDisableAnyHit           InstanceFlags = 1 << 3
)

// An instance of a bottom-level acceleration structure as stored in device
// memory.
type Instance struct {
	Transform         types.Mat3x4
	InstanceID        uint32
	SbtOffset         uint32
	VisibilityMask    uint32
	Flags             InstanceFlags
	TraversableHandle TraversableHandle
	Pad               [2]uint32
}

// Byte sizes of the structures stored in device memory.
var (
	AabbByteSize     = binary.Size(Aabb{})
	InstanceByteSize = binary.Size(Instance{})
)

type CompileOptimizationLevel uint32

const (
	CompileOptimizationDefault CompileOptimizationLevel = iota
	CompileOptimizationLevel0
	CompileOptimizationLevel3
)

type CompileDebugLevel uint32

const (
	CompileDebugLevelNone CompileDebugLevel = iota
	CompileDebugLevelLineInfo
	CompileDebugLevelFull
)

type ModuleCompileOptions struct {
	// Zero means unlimited.
	MaxRegisterCount int
	OptLevel         CompileOptimizationLevel
	DebugLevel       CompileDebugLevel
}

type TraversableGraphFlags uint32

const (
	TraversableGraphFlagAllowAny                   TraversableGraphFlags = 0
	TraversableGraphFlagAllowSingleGAS             TraversableGraphFlags = 1 << 0
	TraversableGraphFlagAllowSingleLevelInstancing TraversableGraphFlags = 1 << 1
)

type ExceptionFlags uint32

const (
	ExceptionFlagNone          ExceptionFlags = 0
	ExceptionFlagStackOverflow ExceptionFlags = 1 << 0
	ExceptionFlagTraceDepth    ExceptionFlags = 1 << 1
)

// Options that must be identical for every module and program group linked
// into the same pipeline.
type PipelineCompileOptions struct {
	UsesMotionBlur           bool
	TraversableGraphFlags    TraversableGraphFlags
	NumPayloadValues         int
	NumAttributeValues       int
	ExceptionFlags           ExceptionFlags
	LaunchParamsVariableName string
}

type PipelineLinkOptions struct {
	MaxTraceDepth uint32
	DebugLevel    CompileDebugLevel
}

type ProgramGroupKind uint32

const (
	ProgramGroupKindRaygen ProgramGroupKind = iota
	ProgramGroupKindMiss
	ProgramGroupKindException
	ProgramGroupKindHitgroup
)

func (k ProgramGroupKind) String() string {
	switch k {
	case ProgramGroupKindRaygen:
		return "raygen"
	case ProgramGroupKindMiss:
		return "miss"
	case ProgramGroupKindException:
		return "exception"
	case ProgramGroupKindHitgroup:
		return "hitgroup"
	}
	return "unknown"
}

// A single entry point inside a module.
type ProgramDesc struct {
	Module            Module
	EntryFunctionName string
}

// The up to three entry points that make up a hitgroup. Any of them may be
// left empty.
type HitgroupDesc struct {
	ModuleCH            Module
	EntryFunctionNameCH string
	ModuleAH            Module
	EntryFunctionNameAH string
	ModuleIS            Module
	EntryFunctionNameIS string
}

type ProgramGroupDesc struct {
	Kind      ProgramGroupKind
	Raygen    ProgramDesc
	Miss      ProgramDesc
	Exception ProgramDesc
	Hitgroup  HitgroupDesc
}

// Device addresses, strides and counts of the record arrays used by a launch.
type ShaderBindingTable struct {
	RaygenRecord    DevicePtr
	ExceptionRecord DevicePtr

	MissRecordBase          DevicePtr
	MissRecordStrideInBytes uint32
	MissRecordCount         uint32

	HitgroupRecordBase          DevicePtr
	HitgroupRecordStrideInBytes uint32
	HitgroupRecordCount         uint32
}

type RayFlags uint32

const (
	RayFlagNone                     RayFlags = 0
	RayFlagDisableAnyHit            RayFlags = 1 << 0
	RayFlagTerminateOnFirstHit      RayFlags = 1 << 2
	RayFlagDisableClosestHit        RayFlags = 1 << 3
	RayFlagCullBackFacingTriangles  RayFlags = 1 << 4
	RayFlagCullFrontFacingTriangles RayFlags = 1 << 5
)

// Describes a device exposed by a backend.
type DeviceInfo struct {
	Name              string
	Vendor            string
	ComputeUnits      int
	MemoryBytes       uint64
	MaxTraceDepth     uint32
	MaxInstanceID     uint32
	MaxPrimitiveCount uint32
}

// Receives diagnostic messages. Levels range from 1 (fatal) to 4 (print).
type LogCallback func(level int, tag, message string)

// AlignUp rounds v up to the next multiple of align which must be a power
// of 2.
func AlignUp(v, align uint64) uint64 {
	return (v + align - 1) &^ (align - 1)
}
