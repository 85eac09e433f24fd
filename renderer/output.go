package renderer

import (
	"fmt"
	"image"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/HugoSmits86/nativewebp"
	"github.com/ftrvxmtrx/tga"
	"golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	"golang.org/x/image/tiff"
)

// Supported output formats keyed by file extension.
var encoders = map[string]func(io.Writer, image.Image) error{
	".png":  png.Encode,
	".webp": encodeWebP,
	".bmp":  bmp.Encode,
	".tiff": encodeTIFF,
	".tif":  encodeTIFF,
	".tga":  tga.Encode,
}

func encodeWebP(w io.Writer, img image.Image) error {
	return nativewebp.Encode(w, img, nil)
}

func encodeTIFF(w io.Writer, img image.Image) error {
	return tiff.Encode(w, img, &tiff.Options{Compression: tiff.Deflate})
}

// Get the sorted list of supported image file extensions.
func SupportedFormats() []string {
	return []string{".bmp", ".png", ".tga", ".tif", ".tiff", ".webp"}
}

// Encode img using the format that matches the extension of file.
func Encode(w io.Writer, img image.Image, file string) error {
	ext := strings.ToLower(filepath.Ext(file))
	encoder, exists := encoders[ext]
	if !exists {
		return fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
	return encoder(w, img)
}

// Write img to file. The file extension selects the image format.
func WriteFrame(img image.Image, file string) error {
	ext := strings.ToLower(filepath.Ext(file))
	if _, exists := encoders[ext]; !exists {
		return fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}

	f, err := os.Create(file)
	if err != nil {
		return err
	}

	if err = Encode(f, img, file); err != nil {
		f.Close()
		return fmt.Errorf("renderer: could not encode %s: %w", file, err)
	}
	return f.Close()
}

// Downsample img to width x height.
func Downsample(img *image.RGBA, width, height int) *image.RGBA {
	b := img.Bounds()
	if b.Dx() == width && b.Dy() == height {
		return img
	}

	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}
