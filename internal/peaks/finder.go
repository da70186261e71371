package peaks

import (
	"fmt"
	"math"
	"sort"

	"gocv.io/x/gocv"

	"xrd-calib/internal/image"
	"xrd-calib/pkg/geometry"
)

// Finder runs image-based peak searches on one image. The filtered images
// the searches need are computed once in NewFinder; the source pixels are
// only read.
type Finder struct {
	width, height int
	data          []float64 // source intensities, borrowed
	smooth        []float64 // Gaussian-smoothed intensities used for climbing
	labels        []int32   // massif component per pixel, 0 = background
	basin         []int32   // memoized climb target per pixel, -1 = unknown
	blobs         []int     // difference-of-Gaussians maxima, computed lazily
	response      []float64 // difference-of-Gaussians response of the full image
	params        Params
}

// NewFinder prepares the massif search: a smoothed copy of the image for
// hill climbing, and the connected components of the region where the
// median-filtered image rises above a broad Gaussian background.
func NewFinder(src image.Source, params Params) (*Finder, error) {
	if err := image.Validate(src); err != nil {
		return nil, err
	}
	width, height := src.Shape()
	data := src.Pixels()
	params = params.normalized()

	mat, err := toMat(width, height, data)
	if err != nil {
		return nil, err
	}
	defer mat.Close()

	smoothed := gaussian(mat, params.SmoothSigma)
	defer smoothed.Close()
	smooth, err := floatsFromMat(smoothed)
	if err != nil {
		return nil, fmt.Errorf("failed to read smoothed image: %w", err)
	}
	// Keep NaN pixels out of every basin.
	for i, v := range data {
		if math.IsNaN(v) {
			smooth[i] = math.Inf(-1)
		}
	}

	median := gocv.NewMat()
	defer median.Close()
	gocv.MedianBlur(mat, &median, params.MedianSize)

	valley := gaussian(mat, params.ValleySigma)
	defer valley.Close()

	massif := gocv.NewMat()
	defer massif.Close()
	gocv.Compare(median, valley, &massif, gocv.CompareGT)

	labelMat := gocv.NewMat()
	defer labelMat.Close()
	gocv.ConnectedComponents(massif, &labelMat)
	raw, err := labelMat.DataPtrInt32()
	if err != nil {
		return nil, fmt.Errorf("failed to read massif labels: %w", err)
	}
	labels := make([]int32, len(raw))
	copy(labels, raw)

	basin := make([]int32, width*height)
	for i := range basin {
		basin[i] = -1
	}

	return &Finder{
		width:  width,
		height: height,
		data:   data,
		smooth: smooth,
		labels: labels,
		basin:  basin,
		params: params,
	}, nil
}

// Params returns the effective search parameters.
func (f *Finder) Params() Params { return f.params }

// Massif finds the peaks of the coherent bright region nearest to seed:
// the seed climbs to its local maximum, the massif component holding that
// maximum becomes the search area, and every pixel of the area climbs to
// its own maximum. At most Params.MaxPeaks peaks are returned, strongest
// first.
func (f *Finder) Massif(seed geometry.Point2D) (Result, error) {
	start := seed.Round()
	if !start.In(f.width, f.height) {
		return Result{}, fmt.Errorf("%w: seed (%g, %g) in %dx%d image", ErrOutOfBounds, seed.X, seed.Y, f.width, f.height)
	}
	top := f.climb(start.Y*f.width + start.X)
	label := f.labels[top]
	if label == 0 {
		return Result{}, nil
	}

	region := make([]bool, len(f.labels))
	for i, l := range f.labels {
		region[i] = l == label
	}
	return Result{Points: f.PeaksFromArea(Massif, region, math.Inf(-1), f.params.MaxPeaks)}, nil
}

// FindPeaksAutomatic runs Massif and, when it finds nothing, falls back to
// blob detection in a window of Params.FallbackWindow pixels around seed.
func (f *Finder) FindPeaksAutomatic(seed geometry.Point2D) (Result, error) {
	res, err := f.Massif(seed)
	if err != nil || res.Found() {
		return res, err
	}
	win := geometry.Window(seed.X, seed.Y, f.params.FallbackWindow)
	return f.Blob(win, math.Inf(-1), f.params.MaxPeaks)
}

// PeaksFromArea collects up to keep distinct peaks inside mask whose
// intensity exceeds imin. For Massif every masked pixel climbs the smoothed
// image to its local maximum; for Blob the difference-of-Gaussians maxima
// are used. Peaks are ordered by descending strength, ties in row-major
// order, and positioned to sub-pixel precision with a 3x3 centroid.
func (f *Finder) PeaksFromArea(alg Algorithm, mask []bool, imin float64, keep int) []geometry.Point2D {
	if len(mask) != len(f.data) || keep <= 0 {
		return nil
	}
	switch alg {
	case Massif:
		seen := make(map[int]bool)
		var candidates []int
		for i, in := range mask {
			if !in {
				continue
			}
			top := f.climb(i)
			if seen[top] {
				continue
			}
			seen[top] = true
			if mask[top] && f.smooth[top] > imin {
				candidates = append(candidates, top)
			}
		}
		return f.rank(candidates, f.smooth, keep)

	case Blob:
		maxima, response, err := f.blobMaxima()
		if err != nil {
			return nil
		}
		return f.blobPeaks(maxima, response, mask, imin, keep)
	}
	return nil
}

// rank orders candidate pixels by descending strength (ties row-major),
// truncates to keep and refines each to sub-pixel precision.
func (f *Finder) rank(candidates []int, strength []float64, keep int) []geometry.Point2D {
	sort.Slice(candidates, func(a, b int) bool {
		sa, sb := strength[candidates[a]], strength[candidates[b]]
		if sa != sb {
			return sa > sb
		}
		return candidates[a] < candidates[b]
	})
	if len(candidates) > keep {
		candidates = candidates[:keep]
	}
	out := make([]geometry.Point2D, len(candidates))
	for k, i := range candidates {
		out[k] = f.centroid(i, f.smooth)
	}
	return out
}

// climb follows the steepest ascent on the smoothed image from pixel i and
// returns the index of the local maximum reached. Every pixel on the path is
// memoized.
func (f *Finder) climb(i int) int {
	var path []int
	cur := i
	for {
		if b := f.basin[cur]; b >= 0 {
			cur = int(b)
			break
		}
		path = append(path, cur)
		next := f.uphill(cur)
		if next == cur {
			break
		}
		cur = next
	}
	for _, p := range path {
		f.basin[p] = int32(cur)
	}
	return cur
}

// uphill returns the strictly brightest 8-neighbour of i, or i itself when
// no neighbour is brighter. Ties go to the first neighbour in row-major
// order.
func (f *Finder) uphill(i int) int {
	x, y := i%f.width, i/f.width
	best, bestV := i, f.smooth[i]
	for dy := -1; dy <= 1; dy++ {
		ny := y + dy
		if ny < 0 || ny >= f.height {
			continue
		}
		for dx := -1; dx <= 1; dx++ {
			nx := x + dx
			if (dx == 0 && dy == 0) || nx < 0 || nx >= f.width {
				continue
			}
			j := ny*f.width + nx
			if v := f.smooth[j]; v > bestV {
				best, bestV = j, v
			}
		}
	}
	return best
}

// centroid refines pixel i to the intensity-weighted centroid of its 3x3
// neighbourhood, using weights above the neighbourhood minimum.
func (f *Finder) centroid(i int, v []float64) geometry.Point2D {
	x, y := i%f.width, i/f.width
	pos := geometry.Point2D{X: float64(x), Y: float64(y)}

	lo := math.Inf(1)
	for dy := -1; dy <= 1; dy++ {
		for dx := -1; dx <= 1; dx++ {
			if w, ok := f.at(v, x+dx, y+dy); ok && w < lo {
				lo = w
			}
		}
	}
	var sx, sy, sw float64
	for dy := -1; dy <= 1; dy++ {
		for dx := -1; dx <= 1; dx++ {
			w, ok := f.at(v, x+dx, y+dy)
			if !ok {
				continue
			}
			w -= lo
			sx += w * float64(x+dx)
			sy += w * float64(y+dy)
			sw += w
		}
	}
	if !(sw > 0) || math.IsInf(sw, 0) {
		return pos
	}
	return geometry.Point2D{X: sx / sw, Y: sy / sw}
}

func (f *Finder) at(v []float64, x, y int) (float64, bool) {
	if x < 0 || y < 0 || x >= f.width || y >= f.height {
		return 0, false
	}
	w := v[y*f.width+x]
	if math.IsNaN(w) || math.IsInf(w, 0) {
		return 0, false
	}
	return w, true
}
