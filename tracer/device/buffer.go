// Package device wraps raw allocations of an rtx.Context into named,
// sized buffers that encode and decode host data.
package device

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/achilleasa/prism/rtx"
)

// Host data is encoded in the device byte order.
var byteOrder = binary.LittleEndian

var (
	ErrNotAllocated    = errors.New("device: buffer is not allocated")
	ErrInsufficient    = errors.New("device: insufficient buffer space")
	ErrUnsupportedType = errors.New("device: unsupported data type")
)

type Buffer struct {
	// Context that owns the allocation.
	ctx rtx.Context

	// A name for identifying the buffer.
	name string

	// Device address; zero when the buffer is not allocated.
	ptr rtx.DevicePtr

	// Allocated size.
	size uint64
}

// Create an unallocated buffer.
func NewBuffer(ctx rtx.Context, name string) *Buffer {
	return &Buffer{ctx: ctx, name: name}
}

// Get buffer name.
func (b *Buffer) Name() string {
	return b.name
}

// Get buffer size.
func (b *Buffer) Size() uint64 {
	return b.size
}

// Get the device address of the buffer or 0 if it is not allocated.
func (b *Buffer) Address() rtx.DevicePtr {
	return b.ptr
}

// Allocate a buffer with the given size. Any previous allocation is released.
func (b *Buffer) Allocate(size uint64) error {
	if err := b.Release(); err != nil {
		return err
	}

	ptr, err := b.ctx.Alloc(size)
	if err != nil {
		return fmt.Errorf("device: could not allocate buffer %s of size %d: %w", b.name, size, err)
	}

	b.ptr, b.size = ptr, size
	return nil
}

// Allocate a buffer large enough to hold the encoded data and upload it.
// data must be a fixed-size value or a slice of fixed-size values as
// accepted by encoding/binary.
func (b *Buffer) AllocateAndUpload(data interface{}) error {
	encoded, err := encode(data)
	if err != nil {
		return fmt.Errorf("device: buffer %s: %w", b.name, err)
	}
	if err = b.Allocate(uint64(len(encoded))); err != nil {
		return err
	}
	if err = b.upload(encoded); err != nil {
		b.Release()
		return err
	}
	return nil
}

// Encode data and copy it to the start of the buffer.
func (b *Buffer) Upload(data interface{}) error {
	encoded, err := encode(data)
	if err != nil {
		return fmt.Errorf("device: buffer %s: %w", b.name, err)
	}
	return b.upload(encoded)
}

func (b *Buffer) upload(data []byte) error {
	if b.ptr == 0 {
		return fmt.Errorf("%w: %s", ErrNotAllocated, b.name)
	}
	if uint64(len(data)) > b.size {
		return fmt.Errorf("%w (%d) in %s for copying data of length %d", ErrInsufficient, b.size, b.name, len(data))
	}
	if err := b.ctx.Upload(b.ptr, data); err != nil {
		return fmt.Errorf("device: error copying host data to device buffer %s: %w", b.name, err)
	}
	return nil
}

// Copy the start of the buffer into dst which must be a pointer to a
// fixed-size value or a slice of fixed-size values. Downloads block until
// all previously queued device work completes.
func (b *Buffer) Download(dst interface{}) error {
	if b.ptr == 0 {
		return fmt.Errorf("%w: %s", ErrNotAllocated, b.name)
	}
	size := binary.Size(dst)
	if size < 0 {
		return fmt.Errorf("%w: %T", ErrUnsupportedType, dst)
	}
	if uint64(size) > b.size {
		return fmt.Errorf("%w (%d) in %s for reading data of length %d", ErrInsufficient, b.size, b.name, size)
	}

	data := make([]byte, size)
	if err := b.ctx.Download(data, b.ptr); err != nil {
		return fmt.Errorf("device: error copying device data from %s to host buffer: %w", b.name, err)
	}
	return binary.Read(bytes.NewReader(data), byteOrder, dst)
}

// Release the buffer. Releasing an unallocated buffer is a no-op.
func (b *Buffer) Release() error {
	if b.ptr == 0 {
		return nil
	}
	ptr := b.ptr
	b.ptr, b.size = 0, 0
	if err := b.ctx.Free(ptr); err != nil {
		return fmt.Errorf("device: could not release buffer %s: %w", b.name, err)
	}
	return nil
}

func encode(data interface{}) ([]byte, error) {
	if binary.Size(data) < 0 {
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedType, data)
	}
	var buf bytes.Buffer
	if err := binary.Write(&buf, byteOrder, data); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
