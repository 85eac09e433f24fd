package cpu

import (
	"fmt"
	"sort"
	"sync"

	"github.com/achilleasa/prism/rtx"
)

const (
	// Device pointers start at this address so a zero pointer is never valid.
	baseAddress rtx.DevicePtr = 0x100000000

	// Allocations are aligned to this boundary.
	allocAlignment = 256
)

type allocation struct {
	base rtx.DevicePtr
	data []byte
}

func (a *allocation) end() rtx.DevicePtr {
	return a.base + rtx.DevicePtr(len(a.data))
}

// A flat device address space. Allocations are kept sorted by base address
// and never reuse addresses.
type memory struct {
	sync.RWMutex

	limit     uint64
	used      uint64
	nextAddr  rtx.DevicePtr
	allocList []*allocation
}

func newMemory(limit uint64) *memory {
	return &memory{
		limit:    limit,
		nextAddr: baseAddress,
	}
}

func (m *memory) alloc(size uint64) (rtx.DevicePtr, error) {
	if size == 0 {
		return 0, fmt.Errorf("%w: zero-sized allocation", ErrInvalidValue)
	}

	m.Lock()
	defer m.Unlock()

	if m.limit != 0 && m.used+size > m.limit {
		return 0, fmt.Errorf("%w: requested %d bytes with %d of %d bytes in use", ErrOutOfMemory, size, m.used, m.limit)
	}

	alloc := &allocation{
		base: m.nextAddr,
		data: make([]byte, size),
	}
	m.nextAddr = rtx.DevicePtr(rtx.AlignUp(uint64(alloc.end())+allocAlignment, allocAlignment))
	m.allocList = append(m.allocList, alloc)
	m.used += size
	return alloc.base, nil
}

// Release an allocation. The pointer must be the base address returned by
// alloc. The released range is returned so callers can drop state that
// refers to it.
func (m *memory) free(ptr rtx.DevicePtr) (rtx.DevicePtr, rtx.DevicePtr, error) {
	m.Lock()
	defer m.Unlock()

	index := m.find(ptr)
	if index < 0 || m.allocList[index].base != ptr {
		return 0, 0, fmt.Errorf("%w: free(0x%x)", ErrInvalidPointer, uint64(ptr))
	}

	alloc := m.allocList[index]
	m.allocList = append(m.allocList[:index], m.allocList[index+1:]...)
	m.used -= uint64(len(alloc.data))
	return alloc.base, alloc.end(), nil
}

// Return the index of the allocation containing ptr or -1. Must be called
// while holding the lock.
func (m *memory) find(ptr rtx.DevicePtr) int {
	index := sort.Search(len(m.allocList), func(i int) bool {
		return m.allocList[i].end() > ptr
	})
	if index == len(m.allocList) || m.allocList[index].base > ptr {
		return -1
	}
	return index
}

// Return a slice aliasing size bytes of device memory starting at ptr.
// The range must not cross an allocation boundary. Must be called while
// holding the lock.
func (m *memory) span(ptr rtx.DevicePtr, size uint64) ([]byte, error) {
	index := m.find(ptr)
	if index < 0 {
		return nil, fmt.Errorf("%w: address 0x%x is not mapped", ErrInvalidPointer, uint64(ptr))
	}
	alloc := m.allocList[index]
	offset := uint64(ptr - alloc.base)
	if offset+size > uint64(len(alloc.data)) {
		return nil, fmt.Errorf(
			"%w: access of %d bytes at 0x%x exceeds allocation 0x%x (%d bytes)",
			ErrInvalidPointer, size, uint64(ptr), uint64(alloc.base), len(alloc.data),
		)
	}
	return alloc.data[offset : offset+size], nil
}

// Copy len(dst) bytes from device memory.
func (m *memory) read(dst []byte, ptr rtx.DevicePtr) error {
	m.RLock()
	defer m.RUnlock()

	src, err := m.span(ptr, uint64(len(dst)))
	if err != nil {
		return err
	}
	copy(dst, src)
	return nil
}

// Copy src into device memory. Concurrent writers must target disjoint
// ranges.
func (m *memory) write(ptr rtx.DevicePtr, src []byte) error {
	m.RLock()
	defer m.RUnlock()

	dst, err := m.span(ptr, uint64(len(src)))
	if err != nil {
		return err
	}
	copy(dst, src)
	return nil
}

// Check that a range of device memory is mapped.
func (m *memory) check(ptr rtx.DevicePtr, size uint64) error {
	m.RLock()
	defer m.RUnlock()
	_, err := m.span(ptr, size)
	return err
}

func (m *memory) stats() (allocations int, bytes uint64) {
	m.RLock()
	defer m.RUnlock()
	return len(m.allocList), m.used
}

func (m *memory) release() {
	m.Lock()
	defer m.Unlock()
	m.allocList = nil
	m.used = 0
}
