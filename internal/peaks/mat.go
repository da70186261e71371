package peaks

import (
	"encoding/binary"
	"fmt"
	"image"
	"math"

	"gocv.io/x/gocv"
)

// toMat copies row-major intensities into a single-channel float32 Mat.
// NaN pixels become 0 so that they do not spread through the filters.
func toMat(width, height int, data []float64) (gocv.Mat, error) {
	buf := make([]byte, 4*len(data))
	for i, v := range data {
		if math.IsNaN(v) {
			v = 0
		}
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(float32(v)))
	}
	m, err := gocv.NewMatFromBytes(height, width, gocv.MatTypeCV32F, buf)
	if err != nil {
		return gocv.NewMat(), fmt.Errorf("failed to build matrix: %w", err)
	}
	defer m.Close()
	return m.Clone(), nil
}

// floatsFromMat copies a float32 Mat back into a row-major slice.
func floatsFromMat(m gocv.Mat) ([]float64, error) {
	raw, err := m.DataPtrFloat32()
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(raw))
	for i, v := range raw {
		out[i] = float64(v)
	}
	return out, nil
}

// gaussian blurs src with an automatically sized kernel.
func gaussian(src gocv.Mat, sigma float64) gocv.Mat {
	dst := gocv.NewMat()
	gocv.GaussianBlur(src, &dst, image.Point{}, sigma, sigma, gocv.BorderDefault)
	return dst
}

// differenceOfGaussians returns G(small) - G(large) as float64 pixels.
// Bright blobs of radius about √2·small give positive responses.
func differenceOfGaussians(width, height int, data []float64, small, large float64) ([]float64, error) {
	src, err := toMat(width, height, data)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	narrow := gaussian(src, small)
	defer narrow.Close()
	wide := gaussian(src, large)
	defer wide.Close()

	dog := gocv.NewMat()
	defer dog.Close()
	gocv.Subtract(narrow, wide, &dog)
	return floatsFromMat(dog)
}

// dilationMaxima returns the indices of pixels that equal the 3x3 dilation
// of v, i.e. pixels no smaller than any neighbour.
func dilationMaxima(width, height int, v []float64) ([]int, error) {
	src, err := toMat(width, height, v)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	kernel := gocv.GetStructuringElement(gocv.MorphRect, image.Point{X: 3, Y: 3})
	defer kernel.Close()
	dilated := gocv.NewMat()
	defer dilated.Close()
	gocv.Dilate(src, &dilated, kernel)

	a, err := src.DataPtrFloat32()
	if err != nil {
		return nil, err
	}
	b, err := dilated.DataPtrFloat32()
	if err != nil {
		return nil, err
	}
	var out []int
	for i := range a {
		if a[i] >= b[i] {
			out = append(out, i)
		}
	}
	return out, nil
}
