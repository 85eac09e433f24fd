// Package cpu implements the rtx backend API on the host. Device memory is
// emulated by a flat address space, the command stream is processed by a
// worker goroutine and launches are executed in parallel by a bounded pool
// of goroutines.
package cpu

import (
	"fmt"
	"runtime"
	"sync"

	"github.com/achilleasa/prism/log"
	"github.com/achilleasa/prism/rtx"
)

const (
	deviceName   = "prism software device"
	deviceVendor = "prism"

	maxTraceDepth     = 31
	maxInstanceID     = 1<<28 - 1
	maxPrimitiveCount = 1 << 29
)

func init() {
	rtx.Register("cpu", func() (rtx.Context, error) {
		return New()
	})
}

// Option configures a Context.
type Option func(*Context)

// Limit the number of goroutines that execute launch invocations. The
// default is the number of logical CPUs.
func WithWorkers(workers int) Option {
	return func(c *Context) {
		if workers > 0 {
			c.workers = workers
		}
	}
}

// Limit the amount of device memory that can be allocated. A zero limit
// disables the check.
func WithMemoryLimit(bytes uint64) Option {
	return func(c *Context) {
		c.memLimit = bytes
	}
}

// Context is a software implementation of rtx.Context.
type Context struct {
	logger log.Logger

	workers  int
	memLimit uint64

	mem    *memory
	stream *stream

	accelMutex sync.RWMutex
	accels     map[rtx.TraversableHandle]*accelEntry

	groupMutex  sync.RWMutex
	nextGroupID uint32
	groups      map[uint32]*programGroup

	logMutex sync.RWMutex
	logCb    rtx.LogCallback
	logLevel int

	closeOnce sync.Once
	closed    bool
}

// Create a new software device context.
func New(opts ...Option) (*Context, error) {
	c := &Context{
		logger:      log.New("rtx/cpu"),
		workers:     runtime.NumCPU(),
		accels:      make(map[rtx.TraversableHandle]*accelEntry),
		nextGroupID: 1,
		groups:      make(map[uint32]*programGroup),
	}
	for _, opt := range opts {
		opt(c)
	}

	c.mem = newMemory(c.memLimit)
	c.stream = newStream(c.logger)
	return c, nil
}

// Devices returns a single entry describing the host.
func (c *Context) Devices() []rtx.DeviceInfo {
	return []rtx.DeviceInfo{
		{
			Name:              deviceName,
			Vendor:            deviceVendor,
			ComputeUnits:      c.workers,
			MemoryBytes:       c.memLimit,
			MaxTraceDepth:     maxTraceDepth,
			MaxInstanceID:     maxInstanceID,
			MaxPrimitiveCount: maxPrimitiveCount,
		},
	}
}

// Install a diagnostics callback.
func (c *Context) SetLogCallback(cb rtx.LogCallback, level int) {
	c.logMutex.Lock()
	defer c.logMutex.Unlock()
	c.logCb = cb
	c.logLevel = level
}

func (c *Context) log(level int, tag, format string, args ...interface{}) {
	c.logMutex.RLock()
	cb, maxLevel := c.logCb, c.logLevel
	c.logMutex.RUnlock()

	if cb == nil || level > maxLevel {
		return
	}
	cb(level, tag, fmt.Sprintf(format, args...))
}

// MemoryStats returns the number of live allocations and the number of
// bytes they occupy.
func (c *Context) MemoryStats() (allocations int, bytes uint64) {
	return c.mem.stats()
}

// Close the context. Queued commands are allowed to complete.
func (c *Context) Close() error {
	c.closeOnce.Do(func() {
		c.stream.close()
		c.mem.release()

		c.accelMutex.Lock()
		c.accels = make(map[rtx.TraversableHandle]*accelEntry)
		c.accelMutex.Unlock()

		c.closed = true
	})
	return nil
}

func (c *Context) checkOpen() error {
	if c.closed {
		return ErrContextClosed
	}
	return nil
}

func (c *Context) Alloc(size uint64) (rtx.DevicePtr, error) {
	if err := c.checkOpen(); err != nil {
		return 0, err
	}
	return c.mem.alloc(size)
}

// Free waits for queued commands to complete before releasing the
// allocation. Acceleration structures stored in the allocation become
// invalid.
func (c *Context) Free(ptr rtx.DevicePtr) error {
	if err := c.checkOpen(); err != nil {
		return err
	}
	return c.stream.exec("free", func() error {
		from, to, err := c.mem.free(ptr)
		if err != nil {
			return err
		}
		c.dropAccels(from, to, true)
		return nil
	})
}

func (c *Context) Upload(dst rtx.DevicePtr, src []byte) error {
	if err := c.checkOpen(); err != nil {
		return err
	}
	return c.stream.exec("upload", func() error {
		if err := c.mem.write(dst, src); err != nil {
			return err
		}
		c.dropAccels(dst, dst+rtx.DevicePtr(len(src)), false)
		return nil
	})
}

func (c *Context) Download(dst []byte, src rtx.DevicePtr) error {
	if err := c.checkOpen(); err != nil {
		return err
	}
	return c.stream.exec("download", func() error {
		return c.mem.read(dst, src)
	})
}

func (c *Context) Synchronize() error {
	if err := c.checkOpen(); err != nil {
		return err
	}
	return c.stream.sync()
}
