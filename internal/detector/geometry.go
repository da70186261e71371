// Package detector models a flat area detector in a monochromatic beam:
// the point of normal incidence (PONI) geometry, the scattering angles it
// assigns to each pixel, and its persisted form.
package detector

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidGeometry is returned for geometries that cannot map pixels to
// angles (non-positive distance or pixel size).
var ErrInvalidGeometry = errors.New("invalid detector geometry")

// Geometry holds the PONI parameters. Distances and pixel sizes are in
// metres, rotations in radians. Axis 1 runs along image rows (y), axis 2
// along columns (x).
type Geometry struct {
	Distance   float64 `json:"dist" yaml:"dist"`
	Poni1      float64 `json:"poni1" yaml:"poni1"`
	Poni2      float64 `json:"poni2" yaml:"poni2"`
	Rot1       float64 `json:"rot1" yaml:"rot1"`
	Rot2       float64 `json:"rot2" yaml:"rot2"`
	Rot3       float64 `json:"rot3" yaml:"rot3"`
	PixelSize1 float64 `json:"pixel1" yaml:"pixel1"`
	PixelSize2 float64 `json:"pixel2" yaml:"pixel2"`
	Wavelength float64 `json:"wavelength" yaml:"wavelength"`
}

// Validate checks that the geometry can be evaluated.
func (g Geometry) Validate() error {
	for name, v := range map[string]float64{
		"dist": g.Distance, "poni1": g.Poni1, "poni2": g.Poni2,
		"rot1": g.Rot1, "rot2": g.Rot2, "rot3": g.Rot3, "wavelength": g.Wavelength,
	} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: %s is %v", ErrInvalidGeometry, name, v)
		}
	}
	if !(g.Distance > 0) {
		return fmt.Errorf("%w: distance must be positive, got %v", ErrInvalidGeometry, g.Distance)
	}
	if !(g.PixelSize1 > 0) || !(g.PixelSize2 > 0) {
		return fmt.Errorf("%w: pixel sizes must be positive, got %v x %v", ErrInvalidGeometry, g.PixelSize1, g.PixelSize2)
	}
	return nil
}

// rotation caches the trigonometry shared by every pixel.
type rotation struct {
	c1, s1, c2, s2, c3, s3 float64
}

func (g Geometry) rotation() rotation {
	return rotation{
		c1: math.Cos(g.Rot1), s1: math.Sin(g.Rot1),
		c2: math.Cos(g.Rot2), s2: math.Sin(g.Rot2),
		c3: math.Cos(g.Rot3), s3: math.Sin(g.Rot3),
	}
}

// lab returns the laboratory-frame vector from the sample to pixel (x, y).
// u3 is along the beam.
func (g Geometry) lab(r rotation, x, y float64) (u1, u2, u3 float64) {
	t1 := (y+0.5)*g.PixelSize1 - g.Poni1
	t2 := (x+0.5)*g.PixelSize2 - g.Poni2
	t3 := g.Distance

	u1 = t1*r.c2*r.c3 + t2*(r.c3*r.s1*r.s2-r.c1*r.s3) - t3*(r.c1*r.c3*r.s2+r.s1*r.s3)
	u2 = t1*r.c2*r.s3 + t2*(r.c1*r.c3+r.s1*r.s2*r.s3) - t3*(-r.c3*r.s1+r.c1*r.s2*r.s3)
	u3 = t1*r.s2 - t2*r.c2*r.s1 + t3*r.c1*r.c2
	return u1, u2, u3
}

// TwoTheta returns the scattering angle (rad) at pixel position (x, y).
// Fractional positions are allowed; integer positions are pixel centres.
func (g Geometry) TwoTheta(x, y float64) float64 {
	u1, u2, u3 := g.lab(g.rotation(), x, y)
	return math.Atan2(math.Hypot(u1, u2), u3)
}

// Chi returns the azimuthal angle (rad, in [-π, π]) at pixel (x, y).
func (g Geometry) Chi(x, y float64) float64 {
	u1, u2, _ := g.lab(g.rotation(), x, y)
	return math.Atan2(u1, u2)
}

// TwoThetaChi returns both angles at once.
func (g Geometry) TwoThetaChi(x, y float64) (tth, chi float64) {
	u1, u2, u3 := g.lab(g.rotation(), x, y)
	return math.Atan2(math.Hypot(u1, u2), u3), math.Atan2(u1, u2)
}

// TwoThetaMap returns 2θ for every pixel of a width x height image, row-major.
func (g Geometry) TwoThetaMap(width, height int) []float64 {
	out := make([]float64, width*height)
	r := g.rotation()
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			u1, u2, u3 := g.lab(r, float64(x), float64(y))
			out[y*width+x] = math.Atan2(math.Hypot(u1, u2), u3)
		}
	}
	return out
}

// AngleMaps returns 2θ and χ for every pixel, row-major.
func (g Geometry) AngleMaps(width, height int) (tth, chi []float64) {
	tth = make([]float64, width*height)
	chi = make([]float64, width*height)
	r := g.rotation()
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			u1, u2, u3 := g.lab(r, float64(x), float64(y))
			i := y*width + x
			tth[i] = math.Atan2(math.Hypot(u1, u2), u3)
			chi[i] = math.Atan2(u1, u2)
		}
	}
	return tth, chi
}

// Q converts 2θ (rad) to scattering vector magnitude in nm⁻¹.
func (g Geometry) Q(tth float64) float64 {
	return 4e-9 * math.Pi * math.Sin(tth/2) / g.Wavelength
}

// R converts 2θ (rad) to the radial distance on a detector normal to the
// beam, in mm.
func (g Geometry) R(tth float64) float64 {
	return 1e3 * g.Distance * math.Tan(tth)
}
