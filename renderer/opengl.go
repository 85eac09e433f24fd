package renderer

import (
	"fmt"
	"runtime"
	"sync"

	"github.com/achilleasa/prism/scene"
	"github.com/achilleasa/prism/tracer"
	"github.com/achilleasa/prism/types"
	"github.com/go-gl/gl/v2.1/gl"
	"github.com/go-gl/glfw/v3.1/glfw"
)

const (
	// Coefficients for converting delta cursor movements to yaw/pitch camera angles.
	mouseSensitivityX float32 = 0.005
	mouseSensitivityY float32 = 0.005

	// Camera movement speed
	cameraMoveSpeed float32 = 0.05

	// Height in pixels for stacked series widgets
	stackedSeriesHeight uint32 = 20
)

// An interactive opengl-based renderer. Camera updates from input callbacks
// and frame rendering are serialized by the embedded mutex.
type interactiveGLRenderer struct {
	*defaultRenderer

	// opengl handles
	window    *glfw.Window
	fbTexture uint32
	texFbo    uint32

	// state
	lastCursorPos types.Vec2
	mousePressed  bool
	camera        tracer.Camera
	cameraChanged bool

	sync.Mutex

	// Display options
	showUI          bool
	frameTimeSeries *stackedSeries
}

// Create a new interactive opengl renderer. The calling goroutine must
// also call Render and Close.
func NewInteractive(sc *scene.Scene, opts Options) (Renderer, error) {
	opts.Scale = 1
	base, err := newDefaultRenderer(sc, opts)
	if err != nil {
		return nil, err
	}
	if err = base.tracer.Resize(int(opts.FrameW), int(opts.FrameH)); err != nil {
		base.Close()
		return nil, err
	}

	r := &interactiveGLRenderer{
		defaultRenderer: base,
		camera:          base.tracer.Camera(),
	}

	if err = r.initGL(); err != nil {
		r.Close()
		return nil, err
	}
	r.initUI()

	return r, nil
}

func (r *interactiveGLRenderer) Close() error {
	if r.window != nil {
		r.window.Destroy()
		r.window = nil
		glfw.Terminate()
	}
	return r.defaultRenderer.Close()
}

func (r *interactiveGLRenderer) initGL() error {
	runtime.LockOSThread()

	var err error
	if err = glfw.Init(); err != nil {
		return fmt.Errorf("renderer: failed to initialize glfw: %w", err)
	}

	glfw.WindowHint(glfw.Resizable, glfw.False)
	glfw.WindowHint(glfw.ContextVersionMajor, 2)
	glfw.WindowHint(glfw.ContextVersionMinor, 1)
	r.window, err = glfw.CreateWindow(int(r.options.FrameW), int(r.options.FrameH), "prism", nil, nil)
	if err != nil {
		glfw.Terminate()
		return fmt.Errorf("renderer: could not create opengl window: %w", err)
	}
	r.window.MakeContextCurrent()

	if err = gl.Init(); err != nil {
		return fmt.Errorf("renderer: could not init opengl: %w", err)
	}

	// Setup texture for image data
	gl.GenTextures(1, &r.fbTexture)
	gl.ActiveTexture(gl.TEXTURE0)
	gl.BindTexture(gl.TEXTURE_2D, r.fbTexture)
	gl.TexImage2D(gl.TEXTURE_2D, 0, gl.RGBA8, int32(r.options.FrameW), int32(r.options.FrameH), 0, gl.RGBA, gl.UNSIGNED_BYTE, nil)

	// Attach texture to FBO
	gl.GenFramebuffers(1, &r.texFbo)
	gl.BindFramebuffer(gl.READ_FRAMEBUFFER, r.texFbo)
	gl.FramebufferTexture2D(gl.READ_FRAMEBUFFER, gl.COLOR_ATTACHMENT0, gl.TEXTURE_2D, r.fbTexture, 0)
	gl.BindFramebuffer(gl.READ_FRAMEBUFFER, 0)

	// Bind event callbacks
	r.window.SetInputMode(glfw.CursorMode, glfw.CursorNormal)
	r.window.SetKeyCallback(r.onKeyEvent)
	r.window.SetMouseButtonCallback(r.onMouseEvent)
	r.window.SetCursorPosCallback(r.onCursorPosEvent)

	return nil
}

// Render frames until the window is closed. Frames are only traced when the
// camera changes.
func (r *interactiveGLRenderer) Render() error {
	frameW, frameH := int32(r.options.FrameW), int32(r.options.FrameH)
	dirty := true
	for !r.window.ShouldClose() {
		glfw.PollEvents()

		r.Lock()
		if r.cameraChanged {
			r.tracer.SetCamera(r.camera)
			r.cameraChanged = false
			dirty = true
		}

		if dirty {
			if err := r.tracer.Render(); err != nil {
				r.Unlock()
				return err
			}
			frame, err := r.tracer.Frame()
			if err != nil {
				r.Unlock()
				return err
			}
			dirty = false

			gl.BindTexture(gl.TEXTURE_2D, r.fbTexture)
			gl.TexSubImage2D(gl.TEXTURE_2D, 0, 0, 0, frameW, frameH, gl.RGBA, gl.UNSIGNED_BYTE, gl.Ptr(&frame.Pix[0]))

			stats := r.tracer.FrameStats()
			r.frameTimeSeries.Append(0, float32(stats.RenderTime.Nanoseconds()))
			r.frameTimeSeries.Append(1, float32(stats.DownloadTime.Nanoseconds()))
		}

		// Row 0 of the frame is the top row so flip it while blitting
		gl.BindFramebuffer(gl.READ_FRAMEBUFFER, r.texFbo)
		gl.BlitFramebuffer(0, 0, frameW, frameH, 0, frameH, frameW, 0, gl.COLOR_BUFFER_BIT, gl.LINEAR)
		gl.BindFramebuffer(gl.READ_FRAMEBUFFER, 0)

		if r.showUI {
			r.frameTimeSeries.Render(r.options.FrameH-stackedSeriesHeight, stackedSeriesHeight)
		}

		r.window.SwapBuffers()
		r.Unlock()
	}

	r.logger.Noticef("last frame statistics\n%s", FrameStatsTable(r.Stats()))
	return nil
}

func (r *interactiveGLRenderer) initUI() {
	// Setup ortho projection for UI bits
	gl.Disable(gl.DEPTH_TEST)
	gl.MatrixMode(gl.PROJECTION)
	gl.LoadIdentity()
	gl.Ortho(0, float64(r.options.FrameW), float64(r.options.FrameH), 0, -1, 1)
	gl.Viewport(0, 0, int32(r.options.FrameW), int32(r.options.FrameH))
	gl.MatrixMode(gl.MODELVIEW)
	gl.LoadIdentity()

	r.frameTimeSeries = makeStackedSeries(
		int(r.options.FrameW),
		types.XYZ(0.2, 0.8, 0.2),
		types.XYZ(0.2, 0.2, 1.0),
	)
}

func (r *interactiveGLRenderer) onKeyEvent(w *glfw.Window, key glfw.Key, scancode int, action glfw.Action, mods glfw.ModifierKey) {
	if action != glfw.Press && action != glfw.Repeat {
		return
	}

	var moveDir scene.CameraDirection
	switch key {
	case glfw.KeyEscape:
		r.window.SetShouldClose(true)
		return
	case glfw.KeyUp:
		moveDir = scene.Forward
	case glfw.KeyDown:
		moveDir = scene.Backward
	case glfw.KeyLeft:
		moveDir = scene.Left
	case glfw.KeyRight:
		moveDir = scene.Right
	case glfw.KeyTab:
		r.Lock()
		r.showUI = !r.showUI
		if r.showUI {
			r.frameTimeSeries.Clear()
		}
		r.Unlock()
		return
	default:
		return
	}

	// Double speed if shift is pressed
	var speedScaler float32 = 1.0
	if (mods & glfw.ModShift) == glfw.ModShift {
		speedScaler = 2.0
	}

	r.Lock()
	r.camera.Move(moveDir, speedScaler*cameraMoveSpeed)
	r.cameraChanged = true
	r.Unlock()
}

func (r *interactiveGLRenderer) onMouseEvent(w *glfw.Window, button glfw.MouseButton, action glfw.Action, mod glfw.ModifierKey) {
	if button != glfw.MouseButtonLeft {
		return
	}

	r.mousePressed = action == glfw.Press
	if r.mousePressed {
		xPos, yPos := w.GetCursorPos()
		r.lastCursorPos[0], r.lastCursorPos[1] = float32(xPos), float32(yPos)
	}
}

func (r *interactiveGLRenderer) onCursorPosEvent(w *glfw.Window, xPos, yPos float64) {
	if !r.mousePressed {
		return
	}

	// Calculate delta movement and apply mouse sensitivity
	newPos := types.Vec2{float32(xPos), float32(yPos)}
	delta := r.lastCursorPos.Sub(newPos)
	delta[0] *= mouseSensitivityX
	delta[1] *= mouseSensitivityY
	r.lastCursorPos = newPos

	// The left mouse button rotates lookat around eye
	r.Lock()
	r.camera.Rotate(delta[0], delta[1])
	r.cameraChanged = true
	r.Unlock()
}

// A set of series drawn stacked on top of each other as vertical lines.
type stackedSeries struct {
	series [][]float32
	colors []types.Vec3
}

func makeStackedSeries(histCount int, colors ...types.Vec3) *stackedSeries {
	s := &stackedSeries{
		series: make([][]float32, len(colors)),
		colors: colors,
	}

	for sIndex := range s.series {
		s.series[sIndex] = make([]float32, histCount)
	}

	return s
}

// Clear series
func (s *stackedSeries) Clear() {
	histCount := len(s.series[0])
	for sIndex := 0; sIndex < len(s.series); sIndex++ {
		s.series[sIndex] = make([]float32, histCount)
	}
}

// Shift series values and append new value at the end.
func (s *stackedSeries) Append(seriesIndex int, val float32) {
	s.series[seriesIndex] = append(s.series[seriesIndex][1:], val)
}

func (s *stackedSeries) Render(rY, rHeight uint32) {
	gl.LineWidth(1.0)
	gl.Begin(gl.LINES)
	for x := 0; x < len(s.series[0]); x++ {
		var sum float32 = 0
		var scale float32 = 1.0
		for seriesIndex := 0; seriesIndex < len(s.series); seriesIndex++ {
			sum += s.series[seriesIndex][x]
		}
		if sum > 0.0 {
			scale = float32(rHeight) / sum
		}

		var y float32 = float32(rY)
		for seriesIndex := 0; seriesIndex < len(s.series); seriesIndex++ {
			sH := s.series[seriesIndex][x] * scale
			gl.Color3fv(&s.colors[seriesIndex][0])
			gl.Vertex2f(float32(x), y)
			gl.Vertex2f(float32(x), y+sH)
			y += sH
		}
	}
	gl.End()
}
