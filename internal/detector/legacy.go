package detector

import (
	"errors"
	"fmt"
	"math"
)

// ErrNotDerivable is returned when the legacy view cannot represent a geometry.
var ErrNotDerivable = errors.New("legacy parameters not derivable")

// rot3Tolerance is the largest rot3 (rad) the legacy view silently drops.
const rot3Tolerance = 1e-9

// Legacy is the detector-centric (Fit2D) parameter view: direct beam
// centre on the detector, tilt of the detector plane and the rotation of
// the tilt plane.
type Legacy struct {
	DirectDistance    float64 `json:"directDist" yaml:"directDist"`                     // mm, sample to beam centre
	CenterX           float64 `json:"centerX" yaml:"centerX"`                           // px
	CenterY           float64 `json:"centerY" yaml:"centerY"`                           // px
	Tilt              float64 `json:"tilt" yaml:"tilt"`                                 // deg
	TiltPlaneRotation float64 `json:"tiltPlanRotation" yaml:"tiltPlanRotation"`         // deg
	PixelSizeX        float64 `json:"pixelX" yaml:"pixelX"`                             // µm
	PixelSizeY        float64 `json:"pixelY" yaml:"pixelY"`                             // µm
	Wavelength        float64 `json:"wavelength,omitempty" yaml:"wavelength,omitempty"` // m
}

// Legacy converts to the detector-centric view. It fails when the
// geometry is not fully determined or uses rot3, which that view lacks.
func (g Geometry) Legacy() (Legacy, error) {
	if err := g.Validate(); err != nil {
		return Legacy{}, fmt.Errorf("%w: %v", ErrNotDerivable, err)
	}
	if math.Abs(g.Rot3) > rot3Tolerance {
		return Legacy{}, fmt.Errorf("%w: rot3 = %g rad", ErrNotDerivable, g.Rot3)
	}

	cosTilt := math.Cos(g.Rot1) * math.Cos(g.Rot2)
	if cosTilt <= 0 {
		return Legacy{}, fmt.Errorf("%w: detector tilted beyond 90°", ErrNotDerivable)
	}
	sinTilt := math.Sqrt(math.Max(0, 1-cosTilt*cosTilt))

	cosTpr, sinTpr := 1.0, 0.0
	if sinTilt > 0 {
		cosTpr = clamp(-math.Cos(g.Rot2)*math.Sin(g.Rot1)/sinTilt, -1, 1)
		sinTpr = clamp(math.Sin(g.Rot2)/sinTilt, -1, 1)
	}

	offset := g.Distance * sinTilt / cosTilt
	return Legacy{
		DirectDistance:    1e3 * g.Distance / cosTilt,
		CenterX:           (g.Poni2 + offset*cosTpr) / g.PixelSize2,
		CenterY:           (g.Poni1 + offset*sinTpr) / g.PixelSize1,
		Tilt:              degrees(math.Acos(cosTilt)),
		TiltPlaneRotation: degrees(math.Atan2(sinTpr, cosTpr)),
		PixelSizeX:        g.PixelSize2 * 1e6,
		PixelSizeY:        g.PixelSize1 * 1e6,
		Wavelength:        g.Wavelength,
	}, nil
}

// FromLegacy builds a PONI geometry from the detector-centric view. Rot3 is
// always zero.
func FromLegacy(l Legacy) (Geometry, error) {
	if !(l.DirectDistance > 0) || !(l.PixelSizeX > 0) || !(l.PixelSizeY > 0) {
		return Geometry{}, fmt.Errorf("%w: distance and pixel sizes must be positive", ErrInvalidGeometry)
	}
	tilt := radians(l.Tilt)
	tpr := radians(l.TiltPlaneRotation)
	cosTilt, sinTilt := math.Cos(tilt), math.Sin(tilt)
	cosTpr, sinTpr := math.Cos(tpr), math.Sin(tpr)
	if cosTilt <= 0 {
		return Geometry{}, fmt.Errorf("%w: tilt must be below 90°", ErrInvalidGeometry)
	}

	pixel1 := l.PixelSizeY * 1e-6
	pixel2 := l.PixelSizeX * 1e-6
	dist := l.DirectDistance * 1e-3 * cosTilt
	offset := dist * sinTilt / cosTilt

	rot2 := math.Asin(clamp(sinTilt*sinTpr, -1, 1))
	rot1 := math.Asin(clamp(-sinTilt*cosTpr/math.Cos(rot2), -1, 1))

	return Geometry{
		Distance:   dist,
		Poni1:      l.CenterY*pixel1 - offset*sinTpr,
		Poni2:      l.CenterX*pixel2 - offset*cosTpr,
		Rot1:       rot1,
		Rot2:       rot2,
		PixelSize1: pixel1,
		PixelSize2: pixel2,
		Wavelength: l.Wavelength,
	}, nil
}

func degrees(rad float64) float64 { return rad * 180 / math.Pi }
func radians(deg float64) float64 { return deg * math.Pi / 180 }

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
