package cpu

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/achilleasa/prism/rtx"
	"github.com/achilleasa/prism/rtx/cpu/bvh"
	"github.com/achilleasa/prism/types"
)

const (
	accelMagic = 0x53415250 // PRAS

	// Leaves group up to this many primitives.
	minLeafItems = 2

	tempRecordSize = 48
)

var (
	byteOrder = binary.LittleEndian

	accelHeaderSize    = binary.Size(accelHeader{})
	bvhNodeSize        = binary.Size(bvh.Node{})
	triangleRecordSize = binary.Size(triangleRecord{})
	aabbRecordSize     = binary.Size(aabbRecord{})
	instanceRecordSize = binary.Size(instanceRecord{})
)

// The header of a serialized acceleration structure. The header is followed
// by the per-input geometry flags (padded to 16 bytes), NodeCapacity BVH
// nodes and NumPrims primitive records in leaf order.
type accelHeader struct {
	Magic        uint32
	Type         uint32
	NumInputs    uint32
	NumNodes     uint32
	NodeCapacity uint32
	NumPrims     uint32

	// The number of instance levels below and including this structure.
	Depth    uint32
	Reserved uint32
}

type triangleRecord struct {
	Input uint32
	Prim  uint32
	V     [3]types.Vec3
}

type aabbRecord struct {
	Input uint32
	Prim  uint32
	Box   rtx.Aabb
}

type instanceRecord struct {
	Instance rtx.Instance

	// Instance bounds in the space of the parent structure.
	Box rtx.Aabb

	// Position of the instance in the build input.
	Index    uint32
	Reserved uint32
}

type instance struct {
	instanceRecord

	worldToObject types.Mat3x4
	invertible    bool
}

// A decoded acceleration structure.
type accel struct {
	header     accelHeader
	inputFlags []rtx.GeometryFlags
	nodes      []bvh.Node
	triangles  []triangleRecord
	aabbs      []aabbRecord
	instances  []instance
}

func (a *accel) kind() rtx.BuildInputType {
	return rtx.BuildInputType(a.header.Type)
}

// The bounds of the structure root or an empty box.
func (a *accel) bounds() [2]types.Vec3 {
	if len(a.nodes) == 0 {
		return [2]types.Vec3{
			{math.MaxFloat32, math.MaxFloat32, math.MaxFloat32},
			{-math.MaxFloat32, -math.MaxFloat32, -math.MaxFloat32},
		}
	}
	return [2]types.Vec3{a.nodes[0].Min, a.nodes[0].Max}
}

// A registered traversable. The decoded structure is discarded whenever the
// backing memory is overwritten and lazily rebuilt on the next access.
type accelEntry struct {
	ptr   rtx.DevicePtr
	size  uint64
	accel *accel
}

// A primitive staged for BVH construction.
type primItem struct {
	index  int
	bbox   [2]types.Vec3
	center types.Vec3
}

func (p *primItem) BBox() [2]types.Vec3 {
	return p.bbox
}

func (p *primItem) Center() types.Vec3 {
	return p.center
}

func primRecordSize(inputType rtx.BuildInputType) int {
	switch inputType {
	case rtx.BuildInputTriangles:
		return triangleRecordSize
	case rtx.BuildInputCustomPrimitives:
		return aabbRecordSize
	default:
		return instanceRecordSize
	}
}

func inputTableSize(numInputs int) int {
	return int(rtx.AlignUp(uint64(numInputs*4), 16))
}

func serializedSize(inputType rtx.BuildInputType, numInputs, nodeCapacity, numPrims int) uint64 {
	return uint64(accelHeaderSize + inputTableSize(numInputs) + nodeCapacity*bvhNodeSize + numPrims*primRecordSize(inputType))
}

func maxNodes(numPrims int) int {
	if numPrims == 0 {
		return 0
	}
	return 2*numPrims - 1
}

// Validate build inputs and return their type and primitive count.
func validateBuildInputs(opts *rtx.AccelBuildOptions, inputs []rtx.BuildInput) (rtx.BuildInputType, int, error) {
	if opts == nil {
		return 0, 0, fmt.Errorf("%w: missing build options", ErrInvalidValue)
	}
	if opts.Operation != rtx.BuildOperationBuild {
		return 0, 0, fmt.Errorf("%w: acceleration structure updates", ErrNotSupported)
	}
	if opts.MotionKeys > 1 {
		return 0, 0, fmt.Errorf("%w: motion keys", ErrNotSupported)
	}
	if len(inputs) == 0 {
		return 0, 0, fmt.Errorf("%w: no build inputs", ErrInvalidValue)
	}

	inputType := inputs[0].Type
	numPrims := 0
	for index, input := range inputs {
		if input.Type != inputType {
			return 0, 0, fmt.Errorf("%w: build input %d has type %s; expected %s", ErrInvalidValue, index, input.Type, inputType)
		}

		switch input.Type {
		case rtx.BuildInputTriangles:
			tris := input.TriangleArray
			if err := checkSbtRecords(index, tris.NumSbtRecords, tris.Flags); err != nil {
				return 0, 0, err
			}
			if tris.VertexFormat != rtx.VertexFormatFloat3 {
				return 0, 0, fmt.Errorf("%w: build input %d vertex format", ErrNotSupported, index)
			}
			switch tris.IndexFormat {
			case rtx.IndicesFormatUnsignedInt3:
				numPrims += int(tris.NumIndexTriplets)
			case rtx.IndicesFormatNone:
				if tris.NumVertices%3 != 0 {
					return 0, 0, fmt.Errorf("%w: build input %d has %d non-indexed vertices", ErrInvalidValue, index, tris.NumVertices)
				}
				numPrims += int(tris.NumVertices / 3)
			default:
				return 0, 0, fmt.Errorf("%w: build input %d index format", ErrNotSupported, index)
			}
		case rtx.BuildInputCustomPrimitives:
			prims := input.CustomPrimitiveArray
			if err := checkSbtRecords(index, prims.NumSbtRecords, prims.Flags); err != nil {
				return 0, 0, err
			}
			if prims.StrideInBytes%8 != 0 {
				return 0, 0, fmt.Errorf("%w: build input %d aabb stride must be a multiple of 8", ErrMisalignedAddress, index)
			}
			numPrims += int(prims.NumPrimitives)
		case rtx.BuildInputInstances:
			if len(inputs) != 1 {
				return 0, 0, fmt.Errorf("%w: instance builds accept a single build input", ErrInvalidValue)
			}
			numPrims += int(input.InstanceArray.NumInstances)
		default:
			return 0, 0, fmt.Errorf("%w: build input %d has unknown type", ErrInvalidValue, index)
		}
	}

	if numPrims > maxPrimitiveCount {
		return 0, 0, fmt.Errorf("%w: %d primitives exceed the device limit", ErrInvalidValue, numPrims)
	}
	return inputType, numPrims, nil
}

func checkSbtRecords(index int, numRecords uint32, flags []rtx.GeometryFlags) error {
	if numRecords != 1 {
		return fmt.Errorf("%w: build input %d requests %d SBT records; only 1 is supported", ErrNotSupported, index, numRecords)
	}
	if len(flags) != int(numRecords) {
		return fmt.Errorf("%w: build input %d has %d geometry flags for %d SBT records", ErrInvalidValue, index, len(flags), numRecords)
	}
	return nil
}

func bufferSizes(inputType rtx.BuildInputType, numInputs, numPrims int) rtx.AccelBufferSizes {
	return rtx.AccelBufferSizes{
		OutputSizeInBytes: rtx.AlignUp(serializedSize(inputType, numInputs, maxNodes(numPrims), numPrims), rtx.AccelBufferByteAlignment),
		TempSizeInBytes:   rtx.AlignUp(uint64(numPrims*tempRecordSize)+1, rtx.AccelBufferByteAlignment),
	}
}

// Compute the memory requirements for building an acceleration structure.
func (c *Context) AccelComputeMemoryUsage(opts *rtx.AccelBuildOptions, inputs []rtx.BuildInput) (rtx.AccelBufferSizes, error) {
	if err := c.checkOpen(); err != nil {
		return rtx.AccelBufferSizes{}, err
	}
	inputType, numPrims, err := validateBuildInputs(opts, inputs)
	if err != nil {
		return rtx.AccelBufferSizes{}, err
	}
	return bufferSizes(inputType, len(inputs), numPrims), nil
}

// Queue an acceleration structure build. The returned handle becomes usable
// once the stream reaches the build; if the build fails the handle is
// invalidated and the error is reported by Synchronize.
func (c *Context) AccelBuild(opts *rtx.AccelBuildOptions, inputs []rtx.BuildInput, temp rtx.DevicePtr, tempSize uint64, output rtx.DevicePtr, outputSize uint64, emitted []rtx.AccelEmitDesc) (rtx.TraversableHandle, error) {
	if err := c.checkOpen(); err != nil {
		return 0, err
	}
	inputType, numPrims, err := validateBuildInputs(opts, inputs)
	if err != nil {
		return 0, err
	}

	sizes := bufferSizes(inputType, len(inputs), numPrims)
	if tempSize < sizes.TempSizeInBytes {
		return 0, fmt.Errorf("%w: temp buffer has %d bytes; build requires %d", ErrBufferTooSmall, tempSize, sizes.TempSizeInBytes)
	}
	if outputSize < sizes.OutputSizeInBytes {
		return 0, fmt.Errorf("%w: output buffer has %d bytes; build requires %d", ErrBufferTooSmall, outputSize, sizes.OutputSizeInBytes)
	}
	if err := c.checkAccelBuffer(temp, tempSize); err != nil {
		return 0, err
	}
	if err := c.checkAccelBuffer(output, outputSize); err != nil {
		return 0, err
	}
	for _, desc := range emitted {
		switch desc.Type {
		case rtx.PropertyCompactedSize:
			if desc.Result%8 != 0 {
				return 0, fmt.Errorf("%w: compacted size property at 0x%x", ErrMisalignedAddress, uint64(desc.Result))
			}
		case rtx.PropertyAabbs:
		default:
			return 0, fmt.Errorf("%w: unknown emitted property %d", ErrInvalidValue, desc.Type)
		}
	}

	// Snapshot the caller's slices; the build runs after this call returns.
	inputs = append([]rtx.BuildInput(nil), inputs...)
	emitted = append([]rtx.AccelEmitDesc(nil), emitted...)

	handle := rtx.TraversableHandle(output)
	c.registerAccel(handle, output, outputSize)
	c.stream.enqueue("accel build", func() error {
		if err := c.buildAccel(inputType, inputs, numPrims, temp, output, emitted); err != nil {
			c.unregisterAccel(handle)
			return fmt.Errorf("accel build: %w", err)
		}
		return nil
	})
	return handle, nil
}

// Queue the compaction of a built acceleration structure into output.
func (c *Context) AccelCompact(input rtx.TraversableHandle, output rtx.DevicePtr, outputSize uint64) (rtx.TraversableHandle, error) {
	if err := c.checkOpen(); err != nil {
		return 0, err
	}
	if !c.hasAccel(input) {
		return 0, fmt.Errorf("%w: 0x%x", ErrInvalidHandle, uint64(input))
	}
	if err := c.checkAccelBuffer(output, outputSize); err != nil {
		return 0, err
	}

	handle := rtx.TraversableHandle(output)
	c.registerAccel(handle, output, outputSize)
	c.stream.enqueue("accel compact", func() error {
		src, err := c.resolveAccel(input)
		if err != nil {
			c.unregisterAccel(handle)
			return fmt.Errorf("accel compact: %w", err)
		}

		data := src.serialize(len(src.nodes))
		if uint64(len(data)) > outputSize {
			c.unregisterAccel(handle)
			return fmt.Errorf("accel compact: %w: output buffer has %d bytes; compacted structure requires %d", ErrBufferTooSmall, outputSize, len(data))
		}
		if err := c.mem.write(output, data); err != nil {
			c.unregisterAccel(handle)
			return fmt.Errorf("accel compact: %w", err)
		}
		return nil
	})
	return handle, nil
}

func (c *Context) checkAccelBuffer(ptr rtx.DevicePtr, size uint64) error {
	if uint64(ptr)%rtx.AccelBufferByteAlignment != 0 {
		return fmt.Errorf("%w: acceleration buffer 0x%x must be aligned to %d bytes", ErrMisalignedAddress, uint64(ptr), rtx.AccelBufferByteAlignment)
	}
	return c.mem.check(ptr, size)
}

func (c *Context) registerAccel(handle rtx.TraversableHandle, ptr rtx.DevicePtr, size uint64) {
	c.accelMutex.Lock()
	c.accels[handle] = &accelEntry{ptr: ptr, size: size}
	c.accelMutex.Unlock()
}

func (c *Context) unregisterAccel(handle rtx.TraversableHandle) {
	c.accelMutex.Lock()
	delete(c.accels, handle)
	c.accelMutex.Unlock()
}

func (c *Context) hasAccel(handle rtx.TraversableHandle) bool {
	c.accelMutex.RLock()
	defer c.accelMutex.RUnlock()
	_, exists := c.accels[handle]
	return exists
}

// Invalidate traversables stored in [from, to). If remove is set the
// handles are dropped; otherwise they are decoded again on next use.
func (c *Context) dropAccels(from, to rtx.DevicePtr, remove bool) {
	c.accelMutex.Lock()
	defer c.accelMutex.Unlock()

	for handle, entry := range c.accels {
		entryEnd := entry.ptr + rtx.DevicePtr(entry.size)
		if entry.ptr >= to || entryEnd <= from {
			continue
		}
		if remove {
			delete(c.accels, handle)
			continue
		}
		entry.accel = nil
	}
}

// Look up a traversable, decoding it from device memory if required.
func (c *Context) resolveAccel(handle rtx.TraversableHandle) (*accel, error) {
	c.accelMutex.RLock()
	entry, exists := c.accels[handle]
	var a *accel
	if exists {
		a = entry.accel
	}
	c.accelMutex.RUnlock()

	if !exists {
		return nil, fmt.Errorf("%w: 0x%x", ErrInvalidHandle, uint64(handle))
	}
	if a != nil {
		return a, nil
	}

	a, err := c.decodeAccel(entry.ptr, entry.size)
	if err != nil {
		return nil, err
	}

	c.accelMutex.Lock()
	if current, exists := c.accels[handle]; exists && current == entry {
		entry.accel = a
	}
	c.accelMutex.Unlock()
	return a, nil
}

// Gather primitives, build the BVH and serialize it to the output buffer.
func (c *Context) buildAccel(inputType rtx.BuildInputType, inputs []rtx.BuildInput, numPrims int, temp, output rtx.DevicePtr, emitted []rtx.AccelEmitDesc) error {
	a := &accel{
		header: accelHeader{
			Magic:     accelMagic,
			Type:      uint32(inputType),
			NumInputs: uint32(len(inputs)),
			NumPrims:  uint32(numPrims),
		},
		inputFlags: make([]rtx.GeometryFlags, len(inputs)),
	}

	var (
		bounds []*primItem
		err    error
	)
	switch inputType {
	case rtx.BuildInputTriangles:
		bounds, err = c.gatherTriangles(a, inputs)
	case rtx.BuildInputCustomPrimitives:
		bounds, err = c.gatherAabbs(a, inputs)
	case rtx.BuildInputInstances:
		bounds, err = c.gatherInstances(a, inputs[0].InstanceArray)
	}
	if err != nil {
		return err
	}

	workList, err := c.stageBounds(temp, bounds)
	if err != nil {
		return err
	}

	// Assign primitives to leafs and reorder records to match leaf order.
	order := make([]int, 0, len(workList))
	if len(workList) != 0 {
		a.nodes, _ = bvh.Build(workList, minLeafItems, func(leaf *bvh.Node, items []bvh.BoundedVolume) {
			leaf.SetPrimitives(uint32(len(order)), uint32(len(items)))
			for _, item := range items {
				order = append(order, item.(*primItem).index)
			}
		}, bvh.SurfaceAreaHeuristic)
	}
	a.reorder(order)
	a.header.NumNodes = uint32(len(a.nodes))

	data := a.serialize(maxNodes(numPrims))
	if err = c.mem.write(output, data); err != nil {
		return err
	}

	for _, desc := range emitted {
		var prop bytes.Buffer
		switch desc.Type {
		case rtx.PropertyCompactedSize:
			compactedSize := rtx.AlignUp(serializedSize(inputType, len(inputs), len(a.nodes), numPrims), rtx.AccelBufferByteAlignment)
			binary.Write(&prop, byteOrder, compactedSize)
		case rtx.PropertyAabbs:
			bbox := a.bounds()
			binary.Write(&prop, byteOrder, rtx.NewAabb(bbox[0], bbox[1]))
		}
		if err = c.mem.write(desc.Result, prop.Bytes()); err != nil {
			return err
		}
	}
	return nil
}

// Write primitive bounds to the temp buffer and read them back as the BVH
// work list.
func (c *Context) stageBounds(temp rtx.DevicePtr, items []*primItem) ([]bvh.BoundedVolume, error) {
	var buf bytes.Buffer
	for _, item := range items {
		binary.Write(&buf, byteOrder, item.bbox)
		binary.Write(&buf, byteOrder, item.center)
		binary.Write(&buf, byteOrder, uint32(item.index))
		binary.Write(&buf, byteOrder, [2]uint32{})
	}
	if buf.Len() == 0 {
		return nil, nil
	}
	if err := c.mem.write(temp, buf.Bytes()); err != nil {
		return nil, err
	}

	staged := make([]byte, buf.Len())
	if err := c.mem.read(staged, temp); err != nil {
		return nil, err
	}

	r := bytes.NewReader(staged)
	workList := make([]bvh.BoundedVolume, len(items))
	for i := range workList {
		var (
			item primItem
			idx  uint32
			pad  [2]uint32
		)
		binary.Read(r, byteOrder, &item.bbox)
		binary.Read(r, byteOrder, &item.center)
		binary.Read(r, byteOrder, &idx)
		binary.Read(r, byteOrder, &pad)
		item.index = int(idx)
		workList[i] = &item
	}
	return workList, nil
}

func (c *Context) gatherTriangles(a *accel, inputs []rtx.BuildInput) ([]*primItem, error) {
	var bounds []*primItem
	for inputIndex, input := range inputs {
		tris := input.TriangleArray
		a.inputFlags[inputIndex] = tris.Flags[0]

		vertexStride := int(tris.VertexStrideInBytes)
		if vertexStride == 0 {
			vertexStride = 12
		}
		vertexData := make([]byte, int(tris.NumVertices)*vertexStride)
		if len(vertexData) != 0 {
			if err := c.mem.read(vertexData, tris.VertexBuffer); err != nil {
				return nil, fmt.Errorf("build input %d vertex buffer: %w", inputIndex, err)
			}
		}
		vertex := func(index uint32) types.Vec3 {
			offset := int(index) * vertexStride
			return types.Vec3{
				math.Float32frombits(byteOrder.Uint32(vertexData[offset:])),
				math.Float32frombits(byteOrder.Uint32(vertexData[offset+4:])),
				math.Float32frombits(byteOrder.Uint32(vertexData[offset+8:])),
			}
		}

		var triangles [][3]uint32
		if tris.IndexFormat == rtx.IndicesFormatUnsignedInt3 {
			indexStride := int(tris.IndexStrideInBytes)
			if indexStride == 0 {
				indexStride = 12
			}
			indexData := make([]byte, int(tris.NumIndexTriplets)*indexStride)
			if len(indexData) != 0 {
				if err := c.mem.read(indexData, tris.IndexBuffer); err != nil {
					return nil, fmt.Errorf("build input %d index buffer: %w", inputIndex, err)
				}
			}
			triangles = make([][3]uint32, tris.NumIndexTriplets)
			for triIndex := range triangles {
				offset := triIndex * indexStride
				for k := 0; k < 3; k++ {
					v := byteOrder.Uint32(indexData[offset+4*k:])
					if v >= tris.NumVertices {
						return nil, fmt.Errorf("%w: build input %d triangle %d references vertex %d of %d", ErrInvalidValue, inputIndex, triIndex, v, tris.NumVertices)
					}
					triangles[triIndex][k] = v
				}
			}
		} else {
			triangles = make([][3]uint32, tris.NumVertices/3)
			for triIndex := range triangles {
				base := uint32(triIndex * 3)
				triangles[triIndex] = [3]uint32{base, base + 1, base + 2}
			}
		}

		for triIndex, tri := range triangles {
			rec := triangleRecord{
				Input: uint32(inputIndex),
				Prim:  uint32(triIndex),
				V:     [3]types.Vec3{vertex(tri[0]), vertex(tri[1]), vertex(tri[2])},
			}
			min := types.MinVec3(types.MinVec3(rec.V[0], rec.V[1]), rec.V[2])
			max := types.MaxVec3(types.MaxVec3(rec.V[0], rec.V[1]), rec.V[2])
			bounds = append(bounds, &primItem{
				index:  len(a.triangles),
				bbox:   [2]types.Vec3{min, max},
				center: rec.V[0].Add(rec.V[1]).Add(rec.V[2]).Mul(1.0 / 3.0),
			})
			a.triangles = append(a.triangles, rec)
		}
	}
	return bounds, nil
}

func (c *Context) gatherAabbs(a *accel, inputs []rtx.BuildInput) ([]*primItem, error) {
	var bounds []*primItem
	for inputIndex, input := range inputs {
		prims := input.CustomPrimitiveArray
		a.inputFlags[inputIndex] = prims.Flags[0]

		stride := int(prims.StrideInBytes)
		if stride == 0 {
			stride = rtx.AabbByteSize
		}
		data := make([]byte, int(prims.NumPrimitives)*stride)
		if len(data) != 0 {
			if err := c.mem.read(data, prims.AabbBuffer); err != nil {
				return nil, fmt.Errorf("build input %d aabb buffer: %w", inputIndex, err)
			}
		}

		for primIndex := 0; primIndex < int(prims.NumPrimitives); primIndex++ {
			var box rtx.Aabb
			binary.Read(bytes.NewReader(data[primIndex*stride:]), byteOrder, &box)
			min, max := box.Min(), box.Max()
			if min[0] > max[0] || min[1] > max[1] || min[2] > max[2] {
				return nil, fmt.Errorf("%w: build input %d primitive %d has an inverted aabb", ErrInvalidValue, inputIndex, primIndex)
			}

			bounds = append(bounds, &primItem{
				index:  len(a.aabbs),
				bbox:   [2]types.Vec3{min, max},
				center: min.Add(max).Mul(0.5),
			})
			a.aabbs = append(a.aabbs, aabbRecord{
				Input: uint32(inputIndex),
				Prim:  uint32(primIndex) + prims.PrimitiveIndexOffset,
				Box:   box,
			})
		}
	}
	return bounds, nil
}

func (c *Context) gatherInstances(a *accel, array rtx.InstanceArray) ([]*primItem, error) {
	list := make([]rtx.Instance, array.NumInstances)
	if len(list) != 0 {
		data := make([]byte, len(list)*rtx.InstanceByteSize)
		if err := c.mem.read(data, array.Instances); err != nil {
			return nil, fmt.Errorf("instance buffer: %w", err)
		}
		binary.Read(bytes.NewReader(data), byteOrder, list)
	}

	var bounds []*primItem
	for index, inst := range list {
		if inst.InstanceID > maxInstanceID {
			return nil, fmt.Errorf("%w: instance %d id %d exceeds the device limit", ErrInvalidValue, index, inst.InstanceID)
		}
		child, err := c.resolveAccel(inst.TraversableHandle)
		if err != nil {
			return nil, fmt.Errorf("instance %d: %w", index, err)
		}
		if child.header.Depth+1 > a.header.Depth {
			a.header.Depth = child.header.Depth + 1
		}

		min, max := transformBounds(inst.Transform, child.bounds())
		a.instances = append(a.instances, instance{
			instanceRecord: instanceRecord{
				Instance: inst,
				Box:      rtx.NewAabb(min, max),
				Index:    uint32(index),
			},
		})
		bounds = append(bounds, &primItem{
			index:  index,
			bbox:   [2]types.Vec3{min, max},
			center: min.Add(max).Mul(0.5),
		})
	}
	return bounds, nil
}

// Transform the corners of a box and return the bounds of the result.
func transformBounds(xform types.Mat3x4, bbox [2]types.Vec3) (types.Vec3, types.Vec3) {
	min := types.Vec3{math.MaxFloat32, math.MaxFloat32, math.MaxFloat32}
	max := types.Vec3{-math.MaxFloat32, -math.MaxFloat32, -math.MaxFloat32}
	if bbox[0][0] > bbox[1][0] {
		return min, max
	}
	for corner := 0; corner < 8; corner++ {
		p := types.Vec3{bbox[corner&1][0], bbox[(corner>>1)&1][1], bbox[(corner>>2)&1][2]}
		p = xform.TransformPoint(p)
		min = types.MinVec3(min, p)
		max = types.MaxVec3(max, p)
	}
	return min, max
}

// Reorder primitive records to match the supplied leaf order.
func (a *accel) reorder(order []int) {
	switch a.kind() {
	case rtx.BuildInputTriangles:
		sorted := make([]triangleRecord, len(order))
		for i, index := range order {
			sorted[i] = a.triangles[index]
		}
		a.triangles = sorted
	case rtx.BuildInputCustomPrimitives:
		sorted := make([]aabbRecord, len(order))
		for i, index := range order {
			sorted[i] = a.aabbs[index]
		}
		a.aabbs = sorted
	case rtx.BuildInputInstances:
		sorted := make([]instance, len(order))
		for i, index := range order {
			sorted[i] = a.instances[index]
		}
		a.instances = sorted
	}
}

// Serialize the structure reserving space for nodeCapacity nodes. The
// returned buffer is padded to the acceleration buffer alignment.
func (a *accel) serialize(nodeCapacity int) []byte {
	header := a.header
	header.NumNodes = uint32(len(a.nodes))
	header.NodeCapacity = uint32(nodeCapacity)

	var buf bytes.Buffer
	binary.Write(&buf, byteOrder, header)

	flags := make([]uint32, inputTableSize(len(a.inputFlags))/4)
	for i, f := range a.inputFlags {
		flags[i] = uint32(f)
	}
	binary.Write(&buf, byteOrder, flags)

	binary.Write(&buf, byteOrder, a.nodes)
	buf.Write(make([]byte, (nodeCapacity-len(a.nodes))*bvhNodeSize))

	switch a.kind() {
	case rtx.BuildInputTriangles:
		binary.Write(&buf, byteOrder, a.triangles)
	case rtx.BuildInputCustomPrimitives:
		binary.Write(&buf, byteOrder, a.aabbs)
	case rtx.BuildInputInstances:
		for _, inst := range a.instances {
			binary.Write(&buf, byteOrder, inst.instanceRecord)
		}
	}

	buf.Write(make([]byte, int(rtx.AlignUp(uint64(buf.Len()), rtx.AccelBufferByteAlignment))-buf.Len()))
	return buf.Bytes()
}

// Decode a serialized structure from device memory.
func (c *Context) decodeAccel(ptr rtx.DevicePtr, size uint64) (*accel, error) {
	if size < uint64(accelHeaderSize) {
		return nil, fmt.Errorf("%w: buffer at 0x%x is too small", ErrCorruptAccel, uint64(ptr))
	}

	headerData := make([]byte, accelHeaderSize)
	if err := c.mem.read(headerData, ptr); err != nil {
		return nil, err
	}
	a := &accel{}
	binary.Read(bytes.NewReader(headerData), byteOrder, &a.header)
	if a.header.Magic != accelMagic {
		return nil, fmt.Errorf("%w: bad magic at 0x%x", ErrCorruptAccel, uint64(ptr))
	}

	inputType := a.kind()
	if inputType > rtx.BuildInputInstances || a.header.NumNodes > a.header.NodeCapacity {
		return nil, fmt.Errorf("%w: bad header at 0x%x", ErrCorruptAccel, uint64(ptr))
	}
	total := serializedSize(inputType, int(a.header.NumInputs), int(a.header.NodeCapacity), int(a.header.NumPrims))
	if total > size {
		return nil, fmt.Errorf("%w: structure at 0x%x requires %d bytes; buffer has %d", ErrCorruptAccel, uint64(ptr), total, size)
	}

	data := make([]byte, total)
	if err := c.mem.read(data, ptr); err != nil {
		return nil, err
	}
	r := bytes.NewReader(data[accelHeaderSize:])

	flags := make([]uint32, inputTableSize(int(a.header.NumInputs))/4)
	binary.Read(r, byteOrder, flags)
	a.inputFlags = make([]rtx.GeometryFlags, a.header.NumInputs)
	for i := range a.inputFlags {
		a.inputFlags[i] = rtx.GeometryFlags(flags[i])
	}

	a.nodes = make([]bvh.Node, a.header.NumNodes)
	binary.Read(r, byteOrder, a.nodes)
	r.Seek(int64((a.header.NodeCapacity-a.header.NumNodes)*uint32(bvhNodeSize)), io.SeekCurrent)

	switch inputType {
	case rtx.BuildInputTriangles:
		a.triangles = make([]triangleRecord, a.header.NumPrims)
		binary.Read(r, byteOrder, a.triangles)
	case rtx.BuildInputCustomPrimitives:
		a.aabbs = make([]aabbRecord, a.header.NumPrims)
		binary.Read(r, byteOrder, a.aabbs)
	case rtx.BuildInputInstances:
		records := make([]instanceRecord, a.header.NumPrims)
		binary.Read(r, byteOrder, records)
		a.instances = make([]instance, len(records))
		for i, rec := range records {
			inv, ok := rec.Instance.Transform.Inverse()
			a.instances[i] = instance{
				instanceRecord: rec,
				worldToObject:  inv,
				invertible:     ok,
			}
		}
	}
	return a, nil
}
