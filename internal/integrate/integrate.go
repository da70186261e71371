// Package integrate reduces 2D detector images to 1D powder patterns and 2D
// "cake" images by azimuthal integration over a calibrated geometry.
package integrate

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"xrd-calib/internal/detector"
	"xrd-calib/internal/image"
)

// ErrMaskShape is returned when the mask does not cover the image exactly.
var ErrMaskShape = errors.New("mask shape does not match image")

// Default bin counts.
const (
	DefaultBins          = 1400
	DefaultRadialBins    = 2024
	DefaultAzimuthalBins = 2024
)

// Options controls an integration.
type Options struct {
	Bins          int     // 1D radial bins
	RadialBins    int     // 2D radial bins
	AzimuthalBins int     // 2D azimuthal bins
	Mask          []bool  // true = pixel excluded; nil = no mask
	Polarization  float64 // Polarization factor f in [-1, 1]
	Unit          Unit
}

// DefaultOptions returns the defaults for a given polarization factor.
func DefaultOptions(polarization float64) Options {
	return Options{
		Bins:          DefaultBins,
		RadialBins:    DefaultRadialBins,
		AzimuthalBins: DefaultAzimuthalBins,
		Polarization:  polarization,
		Unit:          TwoThetaDeg,
	}
}

// Pattern is a 1D integration result. Radial holds bin centres.
type Pattern struct {
	Radial    []float64 `json:"radial" yaml:"radial"`
	Intensity []float64 `json:"intensity" yaml:"intensity"`
	Unit      Unit      `json:"unit" yaml:"unit"`
}

// Cake is a 2D integration result, Intensity[azimuthal][radial].
// Azimuthal holds bin centres in degrees over [-180, 180).
type Cake struct {
	Intensity [][]float64 `json:"intensity" yaml:"intensity"`
	Radial    []float64   `json:"radial" yaml:"radial"`
	Azimuthal []float64   `json:"azimuthal" yaml:"azimuthal"`
	Unit      Unit        `json:"unit" yaml:"unit"`
}

// pixels holds the per-pixel quantities shared by 1D and 2D integration.
type pixels struct {
	radial    []float64
	chi       []float64
	corrected []float64
	use       []bool
	lo, hi    float64
}

// prepare evaluates the geometry over the image and applies the mask and
// polarization correction.
func prepare(src image.Source, g detector.Geometry, opts Options) (*pixels, error) {
	if err := image.Validate(src); err != nil {
		return nil, err
	}
	if err := g.Validate(); err != nil {
		return nil, err
	}
	if opts.Unit.needsWavelength() && !(g.Wavelength > 0) {
		return nil, fmt.Errorf("%w: unit %s needs a wavelength", detector.ErrInvalidGeometry, opts.Unit)
	}
	w, h := src.Shape()
	data := src.Pixels()
	if opts.Mask != nil && len(opts.Mask) != w*h {
		return nil, fmt.Errorf("%w: %d mask pixels for %dx%d image", ErrMaskShape, len(opts.Mask), w, h)
	}

	tth, chi := g.AngleMaps(w, h)
	p := &pixels{
		radial:    make([]float64, w*h),
		chi:       chi,
		corrected: make([]float64, w*h),
		use:       make([]bool, w*h),
	}
	var used []float64
	for i, v := range data {
		if (opts.Mask != nil && opts.Mask[i]) || math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		pol := polarization(tth[i], chi[i], opts.Polarization)
		if !(pol > 0) {
			continue
		}
		p.radial[i] = opts.Unit.convert(g, tth[i])
		p.corrected[i] = v / pol
		p.use[i] = true
		used = append(used, p.radial[i])
	}
	if len(used) > 0 {
		p.lo, p.hi = floats.Min(used), floats.Max(used)
	}
	return p, nil
}

// polarization returns ½(1 + cos²2θ - f·cos2χ·(1 - cos²2θ)).
func polarization(tth, chi, f float64) float64 {
	c2 := math.Cos(tth)
	c2 *= c2
	return 0.5 * (1 + c2 - f*math.Cos(2*chi)*(1-c2))
}

// binIndex maps v in [lo, hi] to one of n bins.
func binIndex(v, lo, hi float64, n int) int {
	if hi <= lo {
		return 0
	}
	k := int((v - lo) / (hi - lo) * float64(n))
	if k >= n {
		k = n - 1
	}
	if k < 0 {
		k = 0
	}
	return k
}

func centres(lo, hi float64, n int) []float64 {
	out := make([]float64, n)
	step := (hi - lo) / float64(n)
	for k := range out {
		out[k] = lo + (float64(k)+0.5)*step
	}
	return out
}

// Integrate1D averages polarization-corrected intensities in Bins radial
// bins spanning the radial range of the contributing pixels. Empty bins
// are 0.
func Integrate1D(src image.Source, g detector.Geometry, opts Options) (*Pattern, error) {
	if opts.Bins <= 0 {
		opts.Bins = DefaultBins
	}
	u, err := opts.Unit.resolve()
	if err != nil {
		return nil, err
	}
	opts.Unit = u
	p, err := prepare(src, g, opts)
	if err != nil {
		return nil, err
	}

	n := opts.Bins
	sum := make([]float64, n)
	count := make([]float64, n)
	for i, ok := range p.use {
		if !ok {
			continue
		}
		k := binIndex(p.radial[i], p.lo, p.hi, n)
		sum[k] += p.corrected[i]
		count[k]++
	}
	for k := range sum {
		if count[k] > 0 {
			sum[k] /= count[k]
		}
	}
	return &Pattern{Radial: centres(p.lo, p.hi, n), Intensity: sum, Unit: opts.Unit}, nil
}

// Integrate2D averages polarization-corrected intensities on a
// RadialBins x AzimuthalBins grid; the azimuth axis covers [-180°, 180°).
// Masked pixels are excluded.
func Integrate2D(src image.Source, g detector.Geometry, opts Options) (*Cake, error) {
	if opts.RadialBins <= 0 {
		opts.RadialBins = DefaultRadialBins
	}
	if opts.AzimuthalBins <= 0 {
		opts.AzimuthalBins = DefaultAzimuthalBins
	}
	u, err := opts.Unit.resolve()
	if err != nil {
		return nil, err
	}
	opts.Unit = u
	p, err := prepare(src, g, opts)
	if err != nil {
		return nil, err
	}

	nr, na := opts.RadialBins, opts.AzimuthalBins
	sum := make([]float64, nr*na)
	count := make([]float64, nr*na)
	for i, ok := range p.use {
		if !ok {
			continue
		}
		kr := binIndex(p.radial[i], p.lo, p.hi, nr)
		ka := binIndex(p.chi[i]*180/math.Pi, -180, 180, na)
		sum[ka*nr+kr] += p.corrected[i]
		count[ka*nr+kr]++
	}

	rows := make([][]float64, na)
	for a := range rows {
		row := sum[a*nr : (a+1)*nr]
		for k := range row {
			if c := count[a*nr+k]; c > 0 {
				row[k] /= c
			}
		}
		rows[a] = row
	}
	return &Cake{
		Intensity: rows,
		Radial:    centres(p.lo, p.hi, nr),
		Azimuthal: centres(-180, 180, na),
		Unit:      opts.Unit,
	}, nil
}
