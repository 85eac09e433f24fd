package renderer

import (
	"fmt"

	"github.com/achilleasa/prism/scene"
)

type Options struct {
	// Frame dims.
	FrameW uint32
	FrameH uint32

	// Frames are traced at Scale times the frame dims and downsampled.
	// Values below 2 disable supersampling.
	Scale uint32

	// The rtx backend to render with.
	Backend string

	// Overrides the scene camera if set.
	Camera *scene.Camera

	// Image file for rendered frames. The extension selects the format.
	OutFile string
}

// Check that the frame dims are usable.
func (o *Options) Validate() error {
	if o.FrameW == 0 || o.FrameH == 0 {
		return fmt.Errorf("%w: %dx%d", ErrInvalidFrameSize, o.FrameW, o.FrameH)
	}
	return nil
}

// Get the dims of the traced frame.
func (o *Options) TraceSize() (width, height int) {
	scale := o.Scale
	if scale < 2 {
		scale = 1
	}
	return int(o.FrameW * scale), int(o.FrameH * scale)
}
