package tracer

import (
	"fmt"
	"time"

	"github.com/achilleasa/prism/log"
	"github.com/achilleasa/prism/rtx"
	"github.com/achilleasa/prism/scene"
	"github.com/achilleasa/prism/tracer/device"
	"github.com/achilleasa/prism/tracer/devicecode"
	"github.com/achilleasa/prism/types"
)

// A compacted bottom-level acceleration structure together with the
// hitgroup payloads for each of its build inputs.
type GeometryGroup struct {
	Name string
	Kind devicecode.GeometryKind

	Handle rtx.TraversableHandle
	Buffer *device.Buffer

	// One hitgroup record per build input, in build input order.
	RecordCount uint32
	Records     []devicecode.HitgroupData

	Transform      types.Mat3x4
	VisibilityMask uint8

	// Assigned by BuildInstances. Groups without records are not instanced
	// and keep a zero offset.
	InstanceID uint32
	SbtOffset  uint32
}

// Returns true if the group contains no geometry.
func (g *GeometryGroup) Empty() bool {
	return g.RecordCount == 0
}

// Build statistics for an acceleration structure.
type AccelStats struct {
	Name          string
	Inputs        int
	OutputSize    uint64
	TempSize      uint64
	CompactedSize uint64
	BuildTime     time.Duration
}

// AccelerationBuilder builds compacted acceleration structures. All buffers
// that back the compacted structures and the geometry they reference are
// owned by the builder and released by Release.
type AccelerationBuilder struct {
	logger  log.Logger
	ctx     rtx.Context
	buffers *bufferSet
	stats   []AccelStats
}

func NewAccelerationBuilder(ctx rtx.Context) *AccelerationBuilder {
	return &AccelerationBuilder{
		logger:  log.New("accel builder"),
		ctx:     ctx,
		buffers: newBufferSet(ctx),
	}
}

// Get the statistics for each structure built so far.
func (b *AccelerationBuilder) Stats() []AccelStats {
	return b.stats
}

// Get the total size of the device buffers owned by the builder.
func (b *AccelerationBuilder) MemoryUsage() uint64 {
	return b.buffers.Size()
}

// Release all buffers owned by the builder. Handles returned by the builder
// become invalid.
func (b *AccelerationBuilder) Release() error {
	return b.buffers.Release()
}

func newGroup(name string, kind devicecode.GeometryKind) *GeometryGroup {
	return &GeometryGroup{
		Name:           name,
		Kind:           kind,
		Transform:      types.Ident3x4(),
		VisibilityMask: 255,
	}
}

// Build a geometry group with one triangle build input per mesh. The mesh
// vertex and index buffers are kept alive as they are referenced by the
// hitgroup records.
func (b *AccelerationBuilder) BuildMeshGroup(meshes []*scene.TriangleMesh) (*GeometryGroup, error) {
	group := newGroup("meshes", devicecode.GeometryMesh)
	if len(meshes) == 0 {
		return group, nil
	}

	kept := newBufferSet(b.ctx)
	inputs := make([]rtx.BuildInput, len(meshes))
	for index, mesh := range meshes {
		vertices := kept.Buffer(fmt.Sprintf("mesh %d vertices", index))
		if err := vertices.AllocateAndUpload(mesh.Vertices); err != nil {
			kept.Release()
			return nil, fmt.Errorf("tracer: %w", err)
		}
		indices := kept.Buffer(fmt.Sprintf("mesh %d indices", index))
		if err := indices.AllocateAndUpload(mesh.Indices); err != nil {
			kept.Release()
			return nil, fmt.Errorf("tracer: %w", err)
		}

		inputs[index] = rtx.BuildInput{
			Type: rtx.BuildInputTriangles,
			TriangleArray: rtx.TriangleArray{
				VertexBuffer:        vertices.Address(),
				NumVertices:         uint32(len(mesh.Vertices)),
				VertexFormat:        rtx.VertexFormatFloat3,
				VertexStrideInBytes: 12,
				IndexBuffer:         indices.Address(),
				NumIndexTriplets:    uint32(len(mesh.Indices)),
				IndexFormat:         rtx.IndicesFormatUnsignedInt3,
				IndexStrideInBytes:  12,
				Flags:               []rtx.GeometryFlags{rtx.GeometryFlagNone},
				NumSbtRecords:       1,
			},
		}
		group.Records = append(group.Records, devicecode.HitgroupData{
			Kind:  devicecode.GeometryMesh,
			Color: mesh.Color,
			Mesh: devicecode.MeshData{
				Vertex: vertices.Address(),
				Index:  indices.Address(),
			},
		})
	}

	if err := b.build(group.Name, inputs, group, kept); err != nil {
		return nil, err
	}
	return group, nil
}

// Build a geometry group with one custom primitive build input per sphere.
// Each sphere is described by its local space bounding box.
func (b *AccelerationBuilder) BuildPrimitiveGroup(spheres []*scene.Sphere) (*GeometryGroup, error) {
	group := newGroup("spheres", devicecode.GeometrySphere)
	if len(spheres) == 0 {
		return group, nil
	}

	kept := newBufferSet(b.ctx)
	inputs := make([]rtx.BuildInput, len(spheres))
	for index, sphere := range spheres {
		min, max := sphere.Bounds()
		aabb := kept.Buffer(fmt.Sprintf("sphere %d aabb", index))
		if err := aabb.AllocateAndUpload(rtx.NewAabb(min, max)); err != nil {
			kept.Release()
			return nil, fmt.Errorf("tracer: %w", err)
		}

		inputs[index] = rtx.BuildInput{
			Type: rtx.BuildInputCustomPrimitives,
			CustomPrimitiveArray: rtx.CustomPrimitiveArray{
				AabbBuffer:    aabb.Address(),
				NumPrimitives: 1,
				Flags:         []rtx.GeometryFlags{rtx.GeometryFlagNone},
				NumSbtRecords: 1,
			},
		}
		group.Records = append(group.Records, devicecode.HitgroupData{
			Kind:   devicecode.GeometrySphere,
			Color:  sphere.Color,
			Sphere: devicecode.SphereData{Radius: sphere.Radius},
		})
	}

	if err := b.build(group.Name, inputs, group, kept); err != nil {
		return nil, err
	}
	return group, nil
}

// Build the top-level structure that instances the supplied groups. Each
// non-empty group becomes one instance whose id is the group index and
// whose SBT offset is the number of hitgroup records of the groups that
// precede it.
func (b *AccelerationBuilder) BuildInstances(groups ...*GeometryGroup) (rtx.TraversableHandle, error) {
	var (
		instances []rtx.Instance
		sbtOffset uint32
	)
	for index, group := range groups {
		if group == nil || group.Empty() {
			continue
		}

		group.InstanceID = uint32(index)
		group.SbtOffset = sbtOffset
		instances = append(instances, rtx.Instance{
			Transform:         group.Transform,
			InstanceID:        group.InstanceID,
			SbtOffset:         group.SbtOffset,
			VisibilityMask:    uint32(group.VisibilityMask),
			Flags:             rtx.InstanceFlagNone,
			TraversableHandle: group.Handle,
		})
		sbtOffset += group.RecordCount
	}
	if len(instances) == 0 {
		return 0, ErrNoGeometry
	}

	kept := newBufferSet(b.ctx)
	instanceBuf := kept.Buffer("instances")
	if err := instanceBuf.AllocateAndUpload(instances); err != nil {
		kept.Release()
		return 0, fmt.Errorf("tracer: %w", err)
	}

	inputs := []rtx.BuildInput{
		{
			Type: rtx.BuildInputInstances,
			InstanceArray: rtx.InstanceArray{
				Instances:    instanceBuf.Address(),
				NumInstances: uint32(len(instances)),
			},
		},
	}

	top := newGroup("instances", 0)
	if err := b.build(top.Name, inputs, top, kept); err != nil {
		return 0, err
	}
	return top.Handle, nil
}

// Build and compact an acceleration structure. Buffers in kept are adopted
// by the builder on success and released on failure; the uncompacted
// output, temp and compacted-size buffers are always released.
func (b *AccelerationBuilder) build(name string, inputs []rtx.BuildInput, group *GeometryGroup, kept *bufferSet) (err error) {
	scratch := newBufferSet(b.ctx)
	defer func() {
		if relErr := scratch.Release(); relErr != nil && err == nil {
			err = fmt.Errorf("tracer: %s: %w", name, relErr)
		}
		if err != nil {
			kept.Release()
		} else {
			b.buffers.Merge(kept)
		}
	}()

	start := time.Now()
	opts := &rtx.AccelBuildOptions{
		BuildFlags: rtx.BuildFlagAllowCompaction,
		Operation:  rtx.BuildOperationBuild,
		MotionKeys: 1,
	}

	sizes, err := b.ctx.AccelComputeMemoryUsage(opts, inputs)
	if err != nil {
		return fmt.Errorf("tracer: %s: could not compute acceleration structure memory usage: %w", name, err)
	}

	temp := scratch.Buffer(name + " temp")
	if err = temp.Allocate(sizes.TempSizeInBytes); err != nil {
		return fmt.Errorf("tracer: %s: %w", name, err)
	}
	output := scratch.Buffer(name + " output")
	if err = output.Allocate(sizes.OutputSizeInBytes); err != nil {
		return fmt.Errorf("tracer: %s: %w", name, err)
	}
	compactedSize := scratch.Buffer(name + " compacted size")
	if err = compactedSize.Allocate(8); err != nil {
		return fmt.Errorf("tracer: %s: %w", name, err)
	}

	handle, err := b.ctx.AccelBuild(
		opts, inputs,
		temp.Address(), temp.Size(),
		output.Address(), output.Size(),
		[]rtx.AccelEmitDesc{{Type: rtx.PropertyCompactedSize, Result: compactedSize.Address()}},
	)
	if err != nil {
		return fmt.Errorf("tracer: %s: acceleration structure build failed: %w", name, err)
	}
	if err = b.ctx.Synchronize(); err != nil {
		return fmt.Errorf("tracer: %s: acceleration structure build failed: %w", name, err)
	}

	var size uint64
	if err = compactedSize.Download(&size); err != nil {
		return fmt.Errorf("tracer: %s: %w", name, err)
	}

	compacted := kept.Buffer(name + " compacted")
	if err = compacted.Allocate(size); err != nil {
		return fmt.Errorf("tracer: %s: %w", name, err)
	}
	handle, err = b.ctx.AccelCompact(handle, compacted.Address(), compacted.Size())
	if err != nil {
		return fmt.Errorf("tracer: %s: acceleration structure compaction failed: %w", name, err)
	}
	if err = b.ctx.Synchronize(); err != nil {
		return fmt.Errorf("tracer: %s: acceleration structure compaction failed: %w", name, err)
	}

	group.Handle = handle
	group.Buffer = compacted
	group.RecordCount = uint32(len(inputs))
	if inputs[0].Type == rtx.BuildInputInstances {
		group.RecordCount = 0
	}

	stats := AccelStats{
		Name:          name,
		Inputs:        len(inputs),
		OutputSize:    sizes.OutputSizeInBytes,
		TempSize:      sizes.TempSizeInBytes,
		CompactedSize: size,
		BuildTime:     time.Since(start),
	}
	b.stats = append(b.stats, stats)
	b.logger.Debugf("built %s: %d inputs, %d bytes compacted to %d bytes in %d ms", name, stats.Inputs, stats.OutputSize, stats.CompactedSize, stats.BuildTime.Nanoseconds()/1000000)
	return nil
}
