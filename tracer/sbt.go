package tracer

import (
	"fmt"

	"github.com/achilleasa/prism/rtx"
	"github.com/achilleasa/prism/tracer/devicecode"
)

// Record strides.
var (
	RaygenRecordStride   = rtx.AlignUp(rtx.SbtRecordHeaderSize, rtx.SbtRecordAlignment)
	MissRecordStride     = rtx.AlignUp(rtx.SbtRecordHeaderSize, rtx.SbtRecordAlignment)
	HitgroupRecordStride = rtx.AlignUp(rtx.SbtRecordHeaderSize+devicecode.HitgroupDataSize, rtx.SbtRecordAlignment)
)

// ShaderBindingTableBuilder packs and uploads the raygen, miss and hitgroup
// record arrays.
type ShaderBindingTableBuilder struct {
	ctx     rtx.Context
	buffers *bufferSet
	sbt     rtx.ShaderBindingTable
}

func NewShaderBindingTableBuilder(ctx rtx.Context) *ShaderBindingTableBuilder {
	return &ShaderBindingTableBuilder{
		ctx:     ctx,
		buffers: newBufferSet(ctx),
	}
}

// Pack a record with the header for group followed by payload.
func (b *ShaderBindingTableBuilder) packRecord(group rtx.ProgramGroup, payload []byte, stride uint64) ([]byte, error) {
	record := make([]byte, stride)
	if err := b.ctx.SbtRecordPackHeader(group, record[:rtx.SbtRecordHeaderSize]); err != nil {
		return nil, fmt.Errorf("tracer: could not pack %s record header: %w", group.Kind(), err)
	}
	copy(record[rtx.SbtRecordHeaderSize:], payload)
	return record, nil
}

// Build the shader binding table. Hitgroup records are emitted in group
// order so each group's records start at its SBT offset. Empty groups
// contribute no records.
func (b *ShaderBindingTableBuilder) Build(pipeline *PipelineAssembler, groups []*GeometryGroup) (sbt *rtx.ShaderBindingTable, err error) {
	if pipeline.Pipeline() == nil {
		return nil, ErrNotAssembled
	}

	defer func() {
		if err != nil {
			b.Release()
		}
	}()

	raygenRecord, err := b.packRecord(pipeline.RaygenGroup(), nil, RaygenRecordStride)
	if err != nil {
		return nil, err
	}
	raygen := b.buffers.Buffer("raygen records")
	if err = raygen.AllocateAndUpload(raygenRecord); err != nil {
		return nil, fmt.Errorf("tracer: %w", err)
	}

	missRecord, err := b.packRecord(pipeline.MissGroup(), nil, MissRecordStride)
	if err != nil {
		return nil, err
	}
	miss := b.buffers.Buffer("miss records")
	if err = miss.AllocateAndUpload(missRecord); err != nil {
		return nil, fmt.Errorf("tracer: %w", err)
	}

	var hitgroupRecords []byte
	for _, group := range groups {
		if group == nil || group.Empty() {
			continue
		}
		if uint32(len(hitgroupRecords))/uint32(HitgroupRecordStride) != group.SbtOffset {
			return nil, fmt.Errorf("tracer: group %s expects SBT offset %d; records start at %d", group.Name, group.SbtOffset, uint64(len(hitgroupRecords))/HitgroupRecordStride)
		}
		for _, data := range group.Records {
			record, err := b.packRecord(pipeline.HitgroupGroup(), data.Encode(), HitgroupRecordStride)
			if err != nil {
				return nil, err
			}
			hitgroupRecords = append(hitgroupRecords, record...)
		}
	}
	if len(hitgroupRecords) == 0 {
		return nil, ErrNoGeometry
	}
	hitgroup := b.buffers.Buffer("hitgroup records")
	if err = hitgroup.AllocateAndUpload(hitgroupRecords); err != nil {
		return nil, fmt.Errorf("tracer: %w", err)
	}

	b.sbt = rtx.ShaderBindingTable{
		RaygenRecord:                raygen.Address(),
		MissRecordBase:              miss.Address(),
		MissRecordStrideInBytes:     uint32(MissRecordStride),
		MissRecordCount:             1,
		HitgroupRecordBase:          hitgroup.Address(),
		HitgroupRecordStrideInBytes: uint32(HitgroupRecordStride),
		HitgroupRecordCount:         uint32(uint64(len(hitgroupRecords)) / HitgroupRecordStride),
	}
	return &b.sbt, nil
}

// Release the record buffers.
func (b *ShaderBindingTableBuilder) Release() error {
	b.sbt = rtx.ShaderBindingTable{}
	return b.buffers.Release()
}
