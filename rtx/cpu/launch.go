package cpu

import (
	"errors"
	"fmt"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/achilleasa/prism/rtx"
)

// A shader binding table record resolved to its program group.
type record struct {
	group *programGroup
	data  []byte
}

// Per-launch state shared by all invocations.
type launchState struct {
	ctx      *Context
	pipeline *pipeline
	params   []byte
	dims     [3]uint32

	raygen    record
	miss      []record
	hitgroups []record
}

// Queue a launch of a width x height x depth grid of raygen invocations.
func (c *Context) Launch(pl rtx.Pipeline, params rtx.DevicePtr, paramsSize uint64, sbt *rtx.ShaderBindingTable, width, height, depth uint32) error {
	if err := c.checkOpen(); err != nil {
		return err
	}
	p, ok := pl.(*pipeline)
	if !ok || p == nil {
		return fmt.Errorf("%w: unknown pipeline", ErrInvalidValue)
	}
	if atomic.LoadInt32(&p.destroyed) != 0 {
		return fmt.Errorf("%w: pipeline has been destroyed", ErrInvalidValue)
	}
	if paramsSize != p.paramsSize {
		return fmt.Errorf("%w: launch params size %d does not match the %d bytes declared by the pipeline modules", ErrInvalidValue, paramsSize, p.paramsSize)
	}
	if width == 0 || height == 0 || depth == 0 {
		return fmt.Errorf("%w: launch dimensions %dx%dx%d", ErrInvalidValue, width, height, depth)
	}
	if err := validateSbt(sbt); err != nil {
		return err
	}

	sbtCopy := *sbt
	c.stream.enqueue("launch", func() error {
		state, err := c.prepareLaunch(p, params, paramsSize, &sbtCopy, [3]uint32{width, height, depth})
		if err != nil {
			return fmt.Errorf("%w: %w", ErrLaunchFailed, err)
		}
		return state.run(c.workers)
	})
	return nil
}

func validateSbt(sbt *rtx.ShaderBindingTable) error {
	if sbt == nil {
		return fmt.Errorf("%w: missing shader binding table", ErrInvalidSbt)
	}
	if sbt.RaygenRecord == 0 {
		return fmt.Errorf("%w: missing raygen record", ErrInvalidSbt)
	}
	for _, ptr := range []rtx.DevicePtr{sbt.RaygenRecord, sbt.ExceptionRecord, sbt.MissRecordBase, sbt.HitgroupRecordBase} {
		if uint64(ptr)%rtx.SbtRecordAlignment != 0 {
			return fmt.Errorf("%w: record address 0x%x must be aligned to %d bytes", ErrMisalignedAddress, uint64(ptr), rtx.SbtRecordAlignment)
		}
	}

	type table struct {
		name   string
		base   rtx.DevicePtr
		stride uint32
		count  uint32
	}
	for _, t := range []table{
		{"miss", sbt.MissRecordBase, sbt.MissRecordStrideInBytes, sbt.MissRecordCount},
		{"hitgroup", sbt.HitgroupRecordBase, sbt.HitgroupRecordStrideInBytes, sbt.HitgroupRecordCount},
	} {
		if t.count == 0 {
			continue
		}
		if t.base == 0 {
			return fmt.Errorf("%w: %s record base is not set", ErrInvalidSbt, t.name)
		}
		if t.stride < rtx.SbtRecordHeaderSize || t.stride%rtx.SbtRecordAlignment != 0 {
			return fmt.Errorf("%w: %s record stride %d must be a multiple of %d and at least %d", ErrInvalidSbt, t.name, t.stride, rtx.SbtRecordAlignment, rtx.SbtRecordHeaderSize)
		}
	}
	return nil
}

// Snapshot launch parameters and SBT records from device memory.
func (c *Context) prepareLaunch(p *pipeline, params rtx.DevicePtr, paramsSize uint64, sbt *rtx.ShaderBindingTable, dims [3]uint32) (*launchState, error) {
	state := &launchState{
		ctx:      c,
		pipeline: p,
		params:   make([]byte, paramsSize),
		dims:     dims,
	}
	if err := c.mem.read(state.params, params); err != nil {
		return nil, fmt.Errorf("launch params: %w", err)
	}

	var err error
	if state.raygen, err = c.readRecord(p, sbt.RaygenRecord, rtx.SbtRecordHeaderSize); err != nil {
		return nil, fmt.Errorf("raygen record: %w", err)
	}
	if state.raygen.group.kind != rtx.ProgramGroupKindRaygen {
		return nil, fmt.Errorf("%w: raygen record references a %s program group", ErrInvalidSbt, state.raygen.group.kind)
	}

	if state.miss, err = c.readRecords(p, sbt.MissRecordBase, sbt.MissRecordStrideInBytes, sbt.MissRecordCount, rtx.ProgramGroupKindMiss); err != nil {
		return nil, fmt.Errorf("miss records: %w", err)
	}
	if state.hitgroups, err = c.readRecords(p, sbt.HitgroupRecordBase, sbt.HitgroupRecordStrideInBytes, sbt.HitgroupRecordCount, rtx.ProgramGroupKindHitgroup); err != nil {
		return nil, fmt.Errorf("hitgroup records: %w", err)
	}
	return state, nil
}

func (c *Context) readRecord(p *pipeline, ptr rtx.DevicePtr, size uint32) (record, error) {
	data := make([]byte, size)
	if err := c.mem.read(data, ptr); err != nil {
		return record{}, err
	}
	group, err := p.decodeRecordHeader(data[:rtx.SbtRecordHeaderSize])
	if err != nil {
		return record{}, err
	}
	return record{group: group, data: data[rtx.SbtRecordHeaderSize:]}, nil
}

func (c *Context) readRecords(p *pipeline, base rtx.DevicePtr, stride, count uint32, kind rtx.ProgramGroupKind) ([]record, error) {
	records := make([]record, count)
	for index := range records {
		rec, err := c.readRecord(p, base+rtx.DevicePtr(uint32(index)*stride), stride)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", index, err)
		}
		if rec.group.kind != kind {
			return nil, fmt.Errorf("%w: record %d references a %s program group", ErrInvalidSbt, index, rec.group.kind)
		}
		records[index] = rec
	}
	return records, nil
}

// Execute all invocations. Rows are distributed over a bounded number of
// goroutines; the first failing invocation aborts the launch.
func (s *launchState) run(workers int) error {
	var (
		g       errgroup.Group
		aborted int32
	)
	g.SetLimit(workers)

	for z := uint32(0); z < s.dims[2]; z++ {
		for y := uint32(0); y < s.dims[1]; y++ {
			if atomic.LoadInt32(&aborted) != 0 {
				break
			}
			y, z := y, z
			g.Go(func() error {
				for x := uint32(0); x < s.dims[0]; x++ {
					if atomic.LoadInt32(&aborted) != 0 {
						return nil
					}
					if err := s.invoke([3]uint32{x, y, z}); err != nil {
						atomic.StoreInt32(&aborted, 1)
						return err
					}
				}
				return nil
			})
		}
	}
	return g.Wait()
}

// Run the raygen program for a single launch index.
func (s *launchState) invoke(index [3]uint32) (err error) {
	t := &thread{
		launch: s,
		index:  index,
		stage:  stageRaygen,
		data:   s.raygen.data,
	}

	defer func() {
		if r := recover(); r != nil {
			var cause error
			switch v := r.(type) {
			case error:
				cause = v
			default:
				cause = fmt.Errorf("%v", v)
			}
			if !errors.Is(cause, ErrLaunchFailed) {
				cause = fmt.Errorf("%w: %w", ErrLaunchFailed, cause)
			}
			err = fmt.Errorf("launch index %v: %w", index, cause)
		}
	}()

	s.raygen.group.raygen.fn(t)
	return nil
}
