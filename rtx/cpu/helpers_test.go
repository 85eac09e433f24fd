package cpu

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/achilleasa/prism/rtx"
	"github.com/achilleasa/prism/types"
)

func uploadData(t *testing.T, ctx *Context, data interface{}) rtx.DevicePtr {
	var buf bytes.Buffer
	if err := binary.Write(&buf, byteOrder, data); err != nil {
		t.Fatal(err)
	}
	ptr, err := ctx.Alloc(uint64(buf.Len()))
	if err != nil {
		t.Fatal(err)
	}
	if err = ctx.Upload(ptr, buf.Bytes()); err != nil {
		t.Fatal(err)
	}
	return ptr
}

// A quad in the z = 0 plane covering [-1, 1] on the x and y axes.
func quadInput(t *testing.T, ctx *Context) rtx.BuildInput {
	vertices := []types.Vec3{
		{-1, -1, 0}, {1, -1, 0}, {1, 1, 0}, {-1, 1, 0},
	}
	indices := []types.Vec3i{
		{0, 1, 2}, {0, 2, 3},
	}

	return rtx.BuildInput{
		Type: rtx.BuildInputTriangles,
		TriangleArray: rtx.TriangleArray{
			VertexBuffer:     uploadData(t, ctx, vertices),
			NumVertices:      uint32(len(vertices)),
			VertexFormat:     rtx.VertexFormatFloat3,
			IndexBuffer:      uploadData(t, ctx, indices),
			NumIndexTriplets: uint32(len(indices)),
			IndexFormat:      rtx.IndicesFormatUnsignedInt3,
			Flags:            []rtx.GeometryFlags{rtx.GeometryFlagNone},
			NumSbtRecords:    1,
		},
	}
}

func boxInput(t *testing.T, ctx *Context, boxes ...rtx.Aabb) rtx.BuildInput {
	return rtx.BuildInput{
		Type: rtx.BuildInputCustomPrimitives,
		CustomPrimitiveArray: rtx.CustomPrimitiveArray{
			AabbBuffer:    uploadData(t, ctx, boxes),
			NumPrimitives: uint32(len(boxes)),
			Flags:         []rtx.GeometryFlags{rtx.GeometryFlagNone},
			NumSbtRecords: 1,
		},
	}
}

func instanceInput(t *testing.T, ctx *Context, instances ...rtx.Instance) rtx.BuildInput {
	return rtx.BuildInput{
		Type: rtx.BuildInputInstances,
		InstanceArray: rtx.InstanceArray{
			Instances:    uploadData(t, ctx, instances),
			NumInstances: uint32(len(instances)),
		},
	}
}

type builtAccel struct {
	handle        rtx.TraversableHandle
	output        rtx.DevicePtr
	sizes         rtx.AccelBufferSizes
	compactedSize uint64
}

// Build an uncompacted structure and read back its compacted size.
func buildAccel(t *testing.T, ctx *Context, inputs ...rtx.BuildInput) builtAccel {
	opts := &rtx.AccelBuildOptions{BuildFlags: rtx.BuildFlagAllowCompaction}
	sizes, err := ctx.AccelComputeMemoryUsage(opts, inputs)
	if err != nil {
		t.Fatal(err)
	}

	temp, err := ctx.Alloc(sizes.TempSizeInBytes)
	if err != nil {
		t.Fatal(err)
	}
	defer ctx.Free(temp)
	output, err := ctx.Alloc(sizes.OutputSizeInBytes)
	if err != nil {
		t.Fatal(err)
	}
	compactedSizePtr, err := ctx.Alloc(8)
	if err != nil {
		t.Fatal(err)
	}
	defer ctx.Free(compactedSizePtr)

	handle, err := ctx.AccelBuild(
		opts, inputs,
		temp, sizes.TempSizeInBytes,
		output, sizes.OutputSizeInBytes,
		[]rtx.AccelEmitDesc{{Type: rtx.PropertyCompactedSize, Result: compactedSizePtr}},
	)
	if err != nil {
		t.Fatal(err)
	}
	if err = ctx.Synchronize(); err != nil {
		t.Fatal(err)
	}

	sizeData := make([]byte, 8)
	if err = ctx.Download(sizeData, compactedSizePtr); err != nil {
		t.Fatal(err)
	}

	return builtAccel{
		handle:        handle,
		output:        output,
		sizes:         sizes,
		compactedSize: byteOrder.Uint64(sizeData),
	}
}

// Build and compact a structure; the uncompacted buffer is released.
func buildCompactedAccel(t *testing.T, ctx *Context, inputs ...rtx.BuildInput) rtx.TraversableHandle {
	built := buildAccel(t, ctx, inputs...)
	compacted, err := ctx.Alloc(built.compactedSize)
	if err != nil {
		t.Fatal(err)
	}
	handle, err := ctx.AccelCompact(built.handle, compacted, built.compactedSize)
	if err != nil {
		t.Fatal(err)
	}
	if err = ctx.Synchronize(); err != nil {
		t.Fatal(err)
	}
	if err = ctx.Free(built.output); err != nil {
		t.Fatal(err)
	}
	return handle
}
