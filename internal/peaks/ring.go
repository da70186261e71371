package peaks

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// SearchRing looks for peaks on the ring where |2θ - target| <= delta (all
// in radians), given the per-pixel 2θ map tth. Intensities above upperLimit
// are treated as saturated: they are ignored by the statistics and never
// selected. Pixels brighter than mean + std of the ring become the search
// area, ⌈√n⌉ peaks are kept from its n pixels, and peaks must exceed
// mean - std. Any failure yields an empty result.
func (f *Finder) SearchRing(tth []float64, target, delta, upperLimit float64, alg Algorithm) Result {
	n := len(f.data)
	if len(tth) != n || !(delta > 0) || math.IsNaN(target) {
		return Result{}
	}

	ring := make([]bool, n)
	values := make([]float64, 0, 1024)
	for i, t := range tth {
		if !(math.Abs(t-target) <= delta) {
			continue
		}
		ring[i] = true
		if v := f.data[i]; !math.IsNaN(v) && !(v > upperLimit) {
			values = append(values, v)
		}
	}
	if len(values) == 0 {
		return Result{}
	}

	mean, std := stat.PopMeanStdDev(values, nil)
	if math.IsNaN(mean) || math.IsNaN(std) {
		return Result{}
	}
	threshold := mean + std

	area := make([]bool, n)
	size := 0
	for i, in := range ring {
		if v := f.data[i]; in && v > threshold && v <= upperLimit {
			area[i] = true
			size++
		}
	}
	keep := int(math.Ceil(math.Sqrt(float64(size))))
	if keep == 0 {
		return Result{}
	}
	imin := mean - std

	switch alg {
	case Massif:
		return Result{Points: f.PeaksFromArea(Massif, area, imin, keep)}
	case Blob:
		// Blob detection runs on the image with everything off the ring
		// zeroed.
		masked := make([]float64, n)
		for i, in := range ring {
			if in {
				masked[i] = f.data[i]
			}
		}
		maxima, response, err := f.dogMaxima(masked)
		if err != nil {
			return Result{}
		}
		return Result{Points: f.blobPeaks(maxima, response, area, imin, keep)}
	}
	return Result{}
}
