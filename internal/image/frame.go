// Package image provides detector frame loading and the read-only intensity
// source consumed by peak search and integration.
package image

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	_ "image/png"
	"math"
	"os"
	"path/filepath"
	"slices"
	"strings"

	_ "golang.org/x/image/tiff"
)

var (
	// ErrShape is returned when pixel data does not match the declared dimensions.
	ErrShape = errors.New("pixel data does not match frame shape")
	// ErrFormat is returned by Load for files that are not TIFF, PNG or JPEG.
	ErrFormat = errors.New("unsupported image format")
)

// Source supplies a row-major intensity array and its shape. Callers must not
// change the shape or contents while a calibration session is using it.
type Source interface {
	Pixels() []float64
	Shape() (width, height int)
}

// Frame is a 2D detector image held as row-major float64 intensities,
// origin top-left.
type Frame struct {
	Path   string // Original file path, empty for in-memory frames
	Width  int
	Height int
	Data   []float64
}

// New wraps existing pixel data. The slice is not copied.
func New(width, height int, data []float64) (*Frame, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrShape, width, height)
	}
	if len(data) != width*height {
		return nil, fmt.Errorf("%w: %d values for %dx%d", ErrShape, len(data), width, height)
	}
	return &Frame{Width: width, Height: height, Data: data}, nil
}

// Load decodes a TIFF, PNG or JPEG file into a Frame. 16-bit grayscale
// data keeps its full range.
func Load(path string) (*Frame, error) {
	if !IsSupportedFormat(path) {
		return nil, fmt.Errorf("%w: %s", ErrFormat, filepath.Ext(path))
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	defer file.Close()

	img, _, err := image.Decode(file)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	frame := FromImage(img)
	frame.Path = path
	return frame, nil
}

// FromImage converts a decoded image into intensities. Colour images are
// reduced to 16-bit luminance.
func FromImage(img image.Image) *Frame {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	data := make([]float64, w*h)

	switch src := img.(type) {
	case *image.Gray16:
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				data[y*w+x] = float64(src.Gray16At(bounds.Min.X+x, bounds.Min.Y+y).Y)
			}
		}
	case *image.Gray:
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				data[y*w+x] = float64(src.GrayAt(bounds.Min.X+x, bounds.Min.Y+y).Y)
			}
		}
	default:
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				g := color.Gray16Model.Convert(img.At(bounds.Min.X+x, bounds.Min.Y+y)).(color.Gray16)
				data[y*w+x] = float64(g.Y)
			}
		}
	}

	return &Frame{Width: w, Height: h, Data: data}
}

// Pixels returns the row-major intensity slice.
func (f *Frame) Pixels() []float64 {
	return f.Data
}

// Shape returns the image dimensions.
func (f *Frame) Shape() (int, int) {
	return f.Width, f.Height
}

// At returns the intensity at (x, y), or NaN outside the frame.
func (f *Frame) At(x, y int) float64 {
	if x < 0 || x >= f.Width || y < 0 || y >= f.Height {
		return math.NaN()
	}
	return f.Data[y*f.Width+x]
}

// Validate checks that a Source's pixel slice matches its shape.
func Validate(src Source) error {
	if src == nil {
		return fmt.Errorf("%w: nil source", ErrShape)
	}
	w, h := src.Shape()
	if w <= 0 || h <= 0 || len(src.Pixels()) != w*h {
		return fmt.Errorf("%w: %d values for %dx%d", ErrShape, len(src.Pixels()), w, h)
	}
	return nil
}

// Extensions lists the file extensions Load accepts.
func Extensions() []string {
	return []string{".tif", ".tiff", ".png", ".jpg", ".jpeg"}
}

// IsSupportedFormat reports whether path has an extension Load accepts.
func IsSupportedFormat(path string) bool {
	return slices.Contains(Extensions(), strings.ToLower(filepath.Ext(path)))
}
