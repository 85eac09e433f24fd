package tracer

import (
	"github.com/achilleasa/prism/rtx"
	"github.com/achilleasa/prism/tracer/device"
)

// A list of device buffers that are released together.
type bufferSet struct {
	ctx     rtx.Context
	buffers []*device.Buffer
}

func newBufferSet(ctx rtx.Context) *bufferSet {
	return &bufferSet{ctx: ctx}
}

// Create a new unallocated buffer and add it to the set.
func (s *bufferSet) Buffer(name string) *device.Buffer {
	buf := device.NewBuffer(s.ctx, name)
	s.buffers = append(s.buffers, buf)
	return buf
}

// Move all buffers from other into this set.
func (s *bufferSet) Merge(other *bufferSet) {
	s.buffers = append(s.buffers, other.buffers...)
	other.buffers = nil
}

// Total size of allocated buffers in the set.
func (s *bufferSet) Size() uint64 {
	var total uint64
	for _, buf := range s.buffers {
		total += buf.Size()
	}
	return total
}

// Release all buffers in reverse allocation order. Every buffer is released
// even if some of them fail; the first error is returned.
func (s *bufferSet) Release() error {
	var firstErr error
	for index := len(s.buffers) - 1; index >= 0; index-- {
		if err := s.buffers[index].Release(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	s.buffers = nil
	return firstErr
}
