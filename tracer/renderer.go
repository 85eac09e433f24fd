// Package tracer builds the acceleration structures, pipeline and shader
// binding table for a scene and renders frames with an rtx backend.
package tracer

import (
	"fmt"
	"image"

	"github.com/achilleasa/prism/log"
	"github.com/achilleasa/prism/rtx"
	"github.com/achilleasa/prism/scene"
	"github.com/achilleasa/prism/tracer/devicecode"
	"github.com/achilleasa/prism/types"
)

// The log level requested from backends.
const backendLogLevel = 4

// Renderer owns every device resource required for rendering a scene.
// Renderer methods are not safe for concurrent use.
type Renderer struct {
	logger log.Logger

	ctx         rtx.Context
	ownsContext bool

	scene  *scene.Scene
	device rtx.DeviceInfo

	accel    *AccelerationBuilder
	pipeline *PipelineAssembler
	sbtb     *ShaderBindingTableBuilder
	frame    *FrameController

	groups      []*GeometryGroup
	traversable rtx.TraversableHandle
	sbt         *rtx.ShaderBindingTable
}

// Open a context for the named backend and create a renderer for the scene.
// The context is closed together with the renderer.
func Open(backend string, sc *scene.Scene) (*Renderer, error) {
	ctx, err := rtx.Open(backend)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoDevice, err)
	}

	r, err := NewRenderer(ctx, sc)
	if err != nil {
		ctx.Close()
		return nil, err
	}
	r.ownsContext = true
	return r, nil
}

// Create a renderer for the scene using an existing context. The
// acceleration structures, pipeline and shader binding table are built
// before this function returns; on failure every allocated resource is
// released.
func NewRenderer(ctx rtx.Context, sc *scene.Scene) (_ *Renderer, err error) {
	if ctx == nil {
		return nil, ErrNoDevice
	}
	devices := ctx.Devices()
	if len(devices) == 0 {
		return nil, ErrNoDevice
	}
	if sc == nil {
		return nil, fmt.Errorf("tracer: %w: nil scene", scene.ErrInvalidScene)
	}
	if err = sc.Validate(); err != nil {
		return nil, fmt.Errorf("tracer: %w", err)
	}

	r := &Renderer{
		logger:   log.New("renderer"),
		ctx:      ctx,
		scene:    sc,
		device:   devices[0],
		accel:    NewAccelerationBuilder(ctx),
		pipeline: NewPipelineAssembler(ctx),
		sbtb:     NewShaderBindingTableBuilder(ctx),
	}
	defer func() {
		if err != nil {
			r.release()
		}
	}()

	ctx.SetLogCallback(log.BackendCallback(r.logger), backendLogLevel)
	r.logger.Noticef("using device %s (%s)", r.device.Name, r.device.Vendor)

	meshes, err := r.accel.BuildMeshGroup(sc.Meshes)
	if err != nil {
		return nil, err
	}
	spheres, err := r.accel.BuildPrimitiveGroup(sc.Spheres)
	if err != nil {
		return nil, err
	}
	r.groups = []*GeometryGroup{meshes, spheres}

	if r.traversable, err = r.accel.BuildInstances(r.groups...); err != nil {
		return nil, err
	}

	if err = r.pipeline.Assemble(devicecode.Module); err != nil {
		return nil, err
	}

	if r.sbt, err = r.sbtb.Build(r.pipeline, r.groups); err != nil {
		return nil, err
	}

	if r.frame, err = NewFrameController(ctx, r.pipeline.Pipeline(), r.sbt, r.traversable); err != nil {
		return nil, err
	}
	r.frame.SetCamera(DefaultCamera(sc))

	return r, nil
}

// Get the scene camera or, if the scene does not define one, a camera
// that looks at the scene center from the positive z axis.
func DefaultCamera(sc *scene.Scene) Camera {
	if sc.Camera != nil {
		return *sc.Camera
	}

	min, max := sc.Bounds()
	center := min.Add(max).Mul(0.5)
	radius := max.Sub(min).Len() * 0.5
	if radius == 0 {
		radius = 1
	}
	return Camera{
		From: center.Add(types.XYZ(0, 0, 2.5*radius)),
		At:   center,
		Up:   types.XYZ(0, 1, 0),
	}
}

// Get information about the device used by the renderer.
func (r *Renderer) Device() rtx.DeviceInfo {
	return r.device
}

// Get the rendered scene.
func (r *Renderer) Scene() *scene.Scene {
	return r.scene
}

// Get the geometry groups in instance order.
func (r *Renderer) Groups() []*GeometryGroup {
	return r.groups
}

// Get the top-level traversable handle.
func (r *Renderer) Traversable() rtx.TraversableHandle {
	return r.traversable
}

// Get the shader binding table used for launches.
func (r *Renderer) ShaderBindingTable() *rtx.ShaderBindingTable {
	return r.sbt
}

// Get the acceleration structure build statistics.
func (r *Renderer) AccelStats() []AccelStats {
	return r.accel.Stats()
}

// Get the stats for the last rendered frame.
func (r *Renderer) FrameStats() FrameStats {
	if r.frame == nil {
		return FrameStats{}
	}
	return r.frame.Stats()
}

// Get the frame controller.
func (r *Renderer) FrameController() *FrameController {
	return r.frame
}

// Resize the output frame.
func (r *Renderer) Resize(width, height int) error {
	if r.frame == nil {
		return ErrClosed
	}
	return r.frame.Resize(width, height)
}

// Get the output frame size.
func (r *Renderer) Size() (width, height int) {
	if r.frame == nil {
		return 0, 0
	}
	return r.frame.Size()
}

// Set the camera used for subsequent frames.
func (r *Renderer) SetCamera(camera Camera) error {
	if r.frame == nil {
		return ErrClosed
	}
	r.frame.SetCamera(camera)
	return nil
}

// Get the current camera.
func (r *Renderer) Camera() Camera {
	if r.frame == nil {
		return Camera{}
	}
	return r.frame.Camera()
}

// Render a frame. Rendering a 0x0 frame is a no-op.
func (r *Renderer) Render() error {
	if r.frame == nil {
		return ErrClosed
	}
	return r.frame.Render()
}

// Copy the last rendered frame into dst.
func (r *Renderer) DownloadPixels(dst []uint32) error {
	if r.frame == nil {
		return ErrClosed
	}
	return r.frame.DownloadPixels(dst)
}

// Download the last rendered frame as an image.
func (r *Renderer) Frame() (*image.RGBA, error) {
	if r.frame == nil {
		return nil, ErrClosed
	}
	return r.frame.Frame()
}

// Release all device resources. If the renderer opened its own context
// the context is closed too.
func (r *Renderer) Close() error {
	err := r.release()
	if r.ownsContext && r.ctx != nil {
		if closeErr := r.ctx.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
		r.ctx = nil
	}
	return err
}

// Release resources in the reverse order of their creation.
func (r *Renderer) release() error {
	var firstErr error
	keep := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if r.frame != nil {
		keep(r.frame.Release())
		r.frame = nil
	}
	if r.sbtb != nil {
		keep(r.sbtb.Release())
		r.sbt = nil
	}
	if r.pipeline != nil {
		keep(r.pipeline.Destroy())
	}
	if r.accel != nil {
		keep(r.accel.Release())
		r.traversable = 0
	}
	if r.ctx != nil {
		r.ctx.SetLogCallback(nil, 0)
	}
	return firstErr
}
