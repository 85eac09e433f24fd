package renderer

import (
	"errors"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	_ "github.com/achilleasa/prism/rtx/cpu"
	"github.com/achilleasa/prism/scene"
	"github.com/achilleasa/prism/tracer"
	"github.com/achilleasa/prism/types"
)

func TestRenderFrameToFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "frame.png")
	opts := Options{
		FrameW:  32,
		FrameH:  24,
		Scale:   2,
		Backend: "cpu",
		OutFile: file,
	}

	r, err := NewDefault(scene.DemoScene(), opts)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	if err = r.Render(); err != nil {
		t.Fatal(err)
	}

	stats := r.Stats()
	if stats.Frames != 1 || stats.Width != 64 || stats.Height != 48 {
		t.Fatalf("expected a single 64x48 traced frame; got %+v", stats)
	}

	f, err := os.Open(file)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	img, err := png.Decode(f)
	if err != nil {
		t.Fatal(err)
	}
	if img.Bounds().Dx() != 32 || img.Bounds().Dy() != 24 {
		t.Fatalf("expected 32x24 image; got %v", img.Bounds())
	}
}

func TestCameraOverride(t *testing.T) {
	cam := scene.NewCamera(types.XYZ(0, 5, 0), types.XYZ(0, 0, 0), types.XYZ(0, 0, -1))
	r, err := newDefaultRenderer(scene.DemoScene(), Options{FrameW: 4, FrameH: 4, Backend: "cpu", Camera: cam})
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	if got := r.tracer.Camera(); got != *cam {
		t.Fatalf("expected camera %s; got %s", cam, got)
	}
}

func TestRendererOptionErrors(t *testing.T) {
	type spec struct {
		scene    *scene.Scene
		opts     Options
		expError error
	}
	specs := []spec{
		{scene.DemoScene(), Options{FrameW: 4, FrameH: 4, Backend: "cpu"}, ErrOutputNotSpecified},
		{nil, Options{FrameW: 4, FrameH: 4, Backend: "cpu", OutFile: "out.png"}, ErrSceneNotDefined},
		{scene.DemoScene(), Options{FrameW: 0, FrameH: 4, Backend: "cpu", OutFile: "out.png"}, ErrInvalidFrameSize},
		{scene.DemoScene(), Options{FrameW: 4, FrameH: 4, Backend: "missing", OutFile: "out.png"}, tracer.ErrNoDevice},
	}

	for index, s := range specs {
		_, err := NewDefault(s.scene, s.opts)
		if !errors.Is(err, s.expError) {
			t.Fatalf("[spec %d] expected to get %v; got %v", index, s.expError, err)
		}
	}
}

func TestTraceSize(t *testing.T) {
	type spec struct {
		scale      uint32
		expW, expH int
	}
	specs := []spec{
		{0, 10, 20},
		{1, 10, 20},
		{3, 30, 60},
	}

	for index, s := range specs {
		opts := Options{FrameW: 10, FrameH: 20, Scale: s.scale}
		if w, h := opts.TraceSize(); w != s.expW || h != s.expH {
			t.Fatalf("[spec %d] expected trace size %dx%d; got %dx%d", index, s.expW, s.expH, w, h)
		}
	}
}
