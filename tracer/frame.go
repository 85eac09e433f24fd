package tracer

import (
	"encoding/binary"
	"fmt"
	"image"
	"time"

	"github.com/achilleasa/prism/rtx"
	"github.com/achilleasa/prism/scene"
	"github.com/achilleasa/prism/tracer/device"
	"github.com/achilleasa/prism/tracer/devicecode"
	"github.com/achilleasa/prism/types"
)

// The camera used for rendering frames.
type Camera = scene.Camera

// Timing information for the last rendered frame.
type FrameStats struct {
	Width, Height int
	Frames        uint64
	UploadTime    time.Duration
	RenderTime    time.Duration
	DownloadTime  time.Duration
}

// FrameController owns the launch parameters and the color buffer and
// issues one launch per rendered frame.
//
// The controller starts with a 0x0 frame; Render is a no-op until Resize is
// called with a positive size.
type FrameController struct {
	ctx      rtx.Context
	pipeline rtx.Pipeline
	sbt      *rtx.ShaderBindingTable

	buffers     *bufferSet
	paramBuffer *device.Buffer
	colorBuffer *device.Buffer

	camera Camera
	params devicecode.LaunchParams
	stats  FrameStats
}

// Create a frame controller that launches pipeline over the supplied
// traversable.
func NewFrameController(ctx rtx.Context, pipeline rtx.Pipeline, sbt *rtx.ShaderBindingTable, traversable rtx.TraversableHandle) (*FrameController, error) {
	if pipeline == nil || sbt == nil {
		return nil, ErrNotAssembled
	}

	fc := &FrameController{
		ctx:      ctx,
		pipeline: pipeline,
		sbt:      sbt,
		buffers:  newBufferSet(ctx),
		camera: Camera{
			From: types.XYZ(0, 0, 0),
			At:   types.XYZ(0, 0, -1),
			Up:   types.XYZ(0, 1, 0),
		},
	}
	fc.params.Traversable = traversable
	fc.paramBuffer = fc.buffers.Buffer("launch params")
	fc.colorBuffer = fc.buffers.Buffer("color buffer")

	if err := fc.paramBuffer.Allocate(uint64(len(fc.params.Encode()))); err != nil {
		return nil, fmt.Errorf("tracer: %w", err)
	}
	fc.updateCamera()
	return fc, nil
}

// Get the current frame size.
func (fc *FrameController) Size() (width, height int) {
	return int(fc.params.Frame.Size[0]), int(fc.params.Frame.Size[1])
}

// Get a copy of the launch parameters that will be used by the next frame.
func (fc *FrameController) LaunchParams() devicecode.LaunchParams {
	return fc.params
}

// Get the current camera.
func (fc *FrameController) Camera() Camera {
	return fc.camera
}

// Get the stats for the last rendered frame.
func (fc *FrameController) Stats() FrameStats {
	return fc.stats
}

// Resize the frame and reallocate the color buffer. A zero or negative
// dimension releases the color buffer and resets the frame to 0x0.
func (fc *FrameController) Resize(width, height int) error {
	if width <= 0 || height <= 0 {
		fc.params.Frame.Size = [2]int32{0, 0}
		fc.params.Frame.ColorBuffer = 0
		fc.updateCamera()
		if err := fc.colorBuffer.Release(); err != nil {
			return fmt.Errorf("tracer: %w", err)
		}
		return nil
	}

	if err := fc.colorBuffer.Allocate(uint64(width) * uint64(height) * 4); err != nil {
		fc.params.Frame.Size = [2]int32{0, 0}
		fc.params.Frame.ColorBuffer = 0
		return fmt.Errorf("tracer: %w", err)
	}

	fc.params.Frame.Size = [2]int32{int32(width), int32(height)}
	fc.params.Frame.ColorBuffer = fc.colorBuffer.Address()
	fc.updateCamera()
	return nil
}

// Set the camera and recompute the camera basis.
func (fc *FrameController) SetCamera(camera Camera) {
	fc.camera = camera
	fc.updateCamera()
}

// Derive the camera basis from the camera and the frame aspect ratio.
func (fc *FrameController) updateCamera() {
	aspect := float32(1)
	if width, height := fc.Size(); width > 0 && height > 0 {
		aspect = float32(width) / float32(height)
	}

	const cosFovy = 0.66
	dir := fc.camera.Direction()
	horizontal := dir.Cross(fc.camera.Up).Normalize().Mul(cosFovy * aspect)
	fc.params.Camera = devicecode.CameraParams{
		Position:   fc.camera.From,
		Direction:  dir,
		Horizontal: horizontal,
		Vertical:   horizontal.Cross(dir).Normalize(),
	}
}

// Render a frame. The call blocks until the launch completes.
func (fc *FrameController) Render() error {
	width, height := fc.Size()
	if width == 0 || height == 0 {
		return nil
	}

	start := time.Now()
	if err := fc.paramBuffer.Upload(fc.params.Encode()); err != nil {
		return fmt.Errorf("tracer: %w", err)
	}
	uploaded := time.Now()

	err := fc.ctx.Launch(
		fc.pipeline,
		fc.paramBuffer.Address(), fc.paramBuffer.Size(),
		fc.sbt,
		uint32(width), uint32(height), 1,
	)
	if err != nil {
		return fmt.Errorf("tracer: launch failed: %w", err)
	}
	if err = fc.ctx.Synchronize(); err != nil {
		return fmt.Errorf("tracer: launch failed: %w", err)
	}

	fc.stats.Width, fc.stats.Height = width, height
	fc.stats.Frames++
	fc.stats.UploadTime = uploaded.Sub(start)
	fc.stats.RenderTime = time.Since(uploaded)
	return nil
}

// Copy the rendered pixels into dst. Each pixel is a packed RGBA value with
// red in the low byte; rows are stored top to bottom.
func (fc *FrameController) DownloadPixels(dst []uint32) error {
	width, height := fc.Size()
	if len(dst) != width*height {
		return fmt.Errorf("%w: got %d pixels; frame is %dx%d", ErrPixelBufferSize, len(dst), width, height)
	}
	if len(dst) == 0 {
		return nil
	}

	start := time.Now()
	if err := fc.colorBuffer.Download(dst); err != nil {
		return fmt.Errorf("tracer: %w", err)
	}
	fc.stats.DownloadTime = time.Since(start)
	return nil
}

// Download the rendered pixels into a new image.
func (fc *FrameController) Frame() (*image.RGBA, error) {
	width, height := fc.Size()
	pixels := make([]uint32, width*height)
	if err := fc.DownloadPixels(pixels); err != nil {
		return nil, err
	}

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for index, pixel := range pixels {
		binary.LittleEndian.PutUint32(img.Pix[index*4:], pixel)
	}
	return img, nil
}

// Release the launch parameter and color buffers.
func (fc *FrameController) Release() error {
	fc.params.Frame.Size = [2]int32{0, 0}
	fc.params.Frame.ColorBuffer = 0
	return fc.buffers.Release()
}
