package peaks

import (
	"math"

	"xrd-calib/internal/image"
	"xrd-calib/pkg/geometry"
)

// LocalMaximum returns the brightest pixel in the size x size window whose
// top-left corner is (round(x - size/2), round(y - size/2)). The window is
// clipped to the image. Ties go to the first pixel in row-major order and
// NaN pixels never win. A window with no overlap, or with no finite pixel,
// yields an empty result.
func LocalMaximum(src image.Source, x, y float64, size int) Result {
	if src == nil || size <= 0 {
		return Result{}
	}
	width, height := src.Shape()
	data := src.Pixels()
	win := geometry.Window(x, y, size).Clip(width, height)
	if win.Empty() {
		return Result{}
	}

	best := -1
	bestV := math.Inf(-1)
	for row := win.Y; row < win.Y+win.Height; row++ {
		for col := win.X; col < win.X+win.Width; col++ {
			i := row*width + col
			v := data[i]
			if math.IsNaN(v) {
				continue
			}
			if best < 0 || v > bestV {
				best, bestV = i, v
			}
		}
	}
	if best < 0 {
		return Result{}
	}
	return Result{Points: []geometry.Point2D{{X: float64(best % width), Y: float64(best / width)}}}
}
