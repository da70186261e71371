package peaks

import (
	"math"

	"xrd-calib/pkg/geometry"
)

// Blob returns up to keep difference-of-Gaussians maxima inside win whose
// source intensity exceeds imin, strongest response first.
func (f *Finder) Blob(win geometry.RectInt, imin float64, keep int) (Result, error) {
	win = win.Clip(f.width, f.height)
	if win.Empty() {
		return Result{}, nil
	}
	maxima, response, err := f.blobMaxima()
	if err != nil {
		return Result{}, err
	}
	mask := make([]bool, len(f.data))
	for y := win.Y; y < win.Y+win.Height; y++ {
		for x := win.X; x < win.X+win.Width; x++ {
			mask[y*f.width+x] = true
		}
	}
	return Result{Points: f.blobPeaks(maxima, response, mask, imin, keep)}, nil
}

// blobMaxima computes, once per Finder, the difference-of-Gaussians
// response of the image and its local maxima.
func (f *Finder) blobMaxima() ([]int, []float64, error) {
	if f.response != nil {
		return f.blobs, f.response, nil
	}
	maxima, response, err := f.dogMaxima(f.data)
	if err != nil {
		return nil, nil, err
	}
	f.blobs, f.response = maxima, response
	return maxima, response, nil
}

// dogMaxima returns the local maxima of the difference-of-Gaussians
// response of data, and the response itself.
func (f *Finder) dogMaxima(data []float64) ([]int, []float64, error) {
	response, err := differenceOfGaussians(f.width, f.height, data, f.params.BlobSigmaSmall, f.params.BlobSigmaLarge)
	if err != nil {
		return nil, nil, err
	}
	maxima, err := dilationMaxima(f.width, f.height, response)
	if err != nil {
		return nil, nil, err
	}
	return maxima, response, nil
}

// blobPeaks keeps the positive-response maxima inside mask whose source
// intensity exceeds imin.
func (f *Finder) blobPeaks(maxima []int, response []float64, mask []bool, imin float64, keep int) []geometry.Point2D {
	var candidates []int
	for _, i := range maxima {
		v := f.data[i]
		if mask[i] && !math.IsNaN(v) && v > imin && response[i] > 0 {
			candidates = append(candidates, i)
		}
	}
	return f.rank(candidates, response, keep)
}
