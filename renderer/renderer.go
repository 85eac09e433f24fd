// Package renderer drives a tracer.Renderer to produce still frames or an
// interactive view of a scene.
package renderer

import (
	"time"

	"github.com/achilleasa/prism/log"
	"github.com/achilleasa/prism/scene"
	"github.com/achilleasa/prism/tracer"
)

type Renderer interface {
	// Render frame.
	Render() error

	// Shutdown renderer and release the tracer.
	Close() error

	// Get render statistics.
	Stats() tracer.FrameStats
}

// A renderer that traces a single frame and writes it to an image file.
type defaultRenderer struct {
	logger  log.Logger
	options Options
	tracer  *tracer.Renderer
}

// Create a renderer that writes frames to opts.OutFile.
func NewDefault(sc *scene.Scene, opts Options) (Renderer, error) {
	if opts.OutFile == "" {
		return nil, ErrOutputNotSpecified
	}
	base, err := newDefaultRenderer(sc, opts)
	if err != nil {
		return nil, err
	}

	width, height := opts.TraceSize()
	if err = base.tracer.Resize(width, height); err != nil {
		base.Close()
		return nil, err
	}
	return base, nil
}

func newDefaultRenderer(sc *scene.Scene, opts Options) (*defaultRenderer, error) {
	if sc == nil {
		return nil, ErrSceneNotDefined
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	logger := log.New("renderer")
	logger.Noticef("building acceleration structures and pipeline using backend %q", opts.Backend)
	start := time.Now()
	tr, err := tracer.Open(opts.Backend, sc)
	if err != nil {
		return nil, err
	}
	logger.Noticef("renderer ready in %d ms", time.Since(start).Nanoseconds()/1000000)
	logger.Infof("acceleration structures\n%s", AccelStatsTable(tr.AccelStats()))

	if opts.Camera != nil {
		tr.SetCamera(*opts.Camera)
	}

	return &defaultRenderer{
		logger:  logger,
		options: opts,
		tracer:  tr,
	}, nil
}

// Render a frame and write it to the output file.
func (r *defaultRenderer) Render() error {
	if err := r.tracer.Render(); err != nil {
		return err
	}

	frame, err := r.tracer.Frame()
	if err != nil {
		return err
	}
	frame = Downsample(frame, int(r.options.FrameW), int(r.options.FrameH))

	start := time.Now()
	if err = WriteFrame(frame, r.options.OutFile); err != nil {
		return err
	}
	r.logger.Noticef("wrote frame to %s in %d ms", r.options.OutFile, time.Since(start).Nanoseconds()/1000000)
	return nil
}

func (r *defaultRenderer) Stats() tracer.FrameStats {
	return r.tracer.FrameStats()
}

func (r *defaultRenderer) Close() error {
	if r.tracer == nil {
		return nil
	}
	err := r.tracer.Close()
	r.tracer = nil
	return err
}
