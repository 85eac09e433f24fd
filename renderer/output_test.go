package renderer

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/achilleasa/prism/tracer"
	"github.com/ftrvxmtrx/tga"
	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
	"golang.org/x/image/webp"
)

func testImage(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, color.RGBA{uint8(x * 16), uint8(y * 16), uint8((x + y) * 8), 255})
		}
	}
	return img
}

func TestEncodeFormats(t *testing.T) {
	type spec struct {
		file   string
		decode func(io.Reader) (image.Image, error)
	}
	specs := []spec{
		{"frame.png", png.Decode},
		{"frame.PNG", png.Decode},
		{"frame.bmp", bmp.Decode},
		{"frame.tiff", tiff.Decode},
		{"frame.tif", tiff.Decode},
		{"frame.webp", webp.Decode},
		{"frame.tga", tga.Decode},
	}

	src := testImage(8, 6)
	for index, s := range specs {
		var buf bytes.Buffer
		if err := Encode(&buf, src, s.file); err != nil {
			t.Fatalf("[spec %d] %v", index, err)
		}

		decoded, err := s.decode(&buf)
		if err != nil {
			t.Fatalf("[spec %d] could not decode encoded image: %v", index, err)
		}
		if decoded.Bounds() != src.Bounds() {
			t.Fatalf("[spec %d] expected decoded bounds %v; got %v", index, src.Bounds(), decoded.Bounds())
		}
		for y := 0; y < 6; y++ {
			for x := 0; x < 8; x++ {
				er, eg, eb, ea := src.At(x, y).RGBA()
				r, g, b, a := decoded.At(x, y).RGBA()
				if er != r || eg != g || eb != b || ea != a {
					t.Fatalf("[spec %d] expected pixel (%d, %d) to be %v; got %v", index, x, y, src.At(x, y), decoded.At(x, y))
				}
			}
		}
	}
}

func TestUnsupportedFormat(t *testing.T) {
	var buf bytes.Buffer
	if err := Encode(&buf, testImage(1, 1), "frame.jpg"); !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("expected to get ErrUnsupportedFormat; got %v", err)
	}

	file := filepath.Join(t.TempDir(), "frame")
	if err := WriteFrame(testImage(1, 1), file); !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("expected to get ErrUnsupportedFormat; got %v", err)
	}
	if _, err := os.Stat(file); !os.IsNotExist(err) {
		t.Fatalf("expected no file to be created for an unsupported format; got %v", err)
	}
}

func TestWriteFrame(t *testing.T) {
	file := filepath.Join(t.TempDir(), "frame.png")
	if err := WriteFrame(testImage(4, 4), file); err != nil {
		t.Fatal(err)
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
	if img.Bounds().Dx() != 4 || img.Bounds().Dy() != 4 {
		t.Fatalf("expected 4x4 image; got %v", img.Bounds())
	}
}

func TestDownsample(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for index := range src.Pix {
		src.Pix[index] = 200
	}

	if out := Downsample(src, 8, 8); out != src {
		t.Fatal("expected downsampling to the same size to return the source image")
	}

	out := Downsample(src, 4, 2)
	if out.Bounds().Dx() != 4 || out.Bounds().Dy() != 2 {
		t.Fatalf("expected 4x2 image; got %v", out.Bounds())
	}
	for index, v := range out.Pix {
		if v < 199 || v > 201 {
			t.Fatalf("expected uniform image to stay uniform; got %d at offset %d", v, index)
		}
	}
}

func TestStatsTables(t *testing.T) {
	accel := AccelStatsTable([]tracer.AccelStats{
		{Name: "meshes", Inputs: 3, OutputSize: 4096, TempSize: 512, CompactedSize: 2048},
		{Name: "instances", Inputs: 1, OutputSize: 1024, TempSize: 128, CompactedSize: 640},
	})
	for _, exp := range []string{"Structure", "meshes", "instances", "4096", "2688", "TOTAL"} {
		if !strings.Contains(accel, exp) {
			t.Fatalf("expected accel stats table to contain %q; got\n%s", exp, accel)
		}
	}

	frame := FrameStatsTable(tracer.FrameStats{Width: 64, Height: 32, Frames: 7})
	for _, exp := range []string{"64x32", "7", "Download"} {
		if !strings.Contains(frame, exp) {
			t.Fatalf("expected frame stats table to contain %q; got\n%s", exp, frame)
		}
	}
}
