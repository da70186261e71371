package calibration

import (
	"fmt"
	"math"

	"xrd-calib/internal/detector"
)

// StartValues seed a calibration. Lengths are in metres.
type StartValues struct {
	Distance           float64 `json:"distance" yaml:"distance"`
	Wavelength         float64 `json:"wavelength" yaml:"wavelength"`
	PixelWidth         float64 `json:"pixel_width" yaml:"pixel_width"`
	PixelHeight        float64 `json:"pixel_height" yaml:"pixel_height"`
	PolarizationFactor float64 `json:"polarization_factor" yaml:"polarization_factor"`
}

// DefaultStartValues returns 0.4 m, 0.4133 Å, 200 µm square pixels and a
// polarization factor of 0.95.
func DefaultStartValues() StartValues {
	return StartValues{
		Distance:           400e-3,
		Wavelength:         0.4133e-10,
		PixelWidth:         200e-6,
		PixelHeight:        200e-6,
		PolarizationFactor: 0.95,
	}
}

// Validate checks that every value is a positive finite number.
func (v StartValues) Validate() error {
	for _, f := range []struct {
		name string
		val  float64
	}{
		{"distance", v.Distance},
		{"wavelength", v.Wavelength},
		{"pixel width", v.PixelWidth},
		{"pixel height", v.PixelHeight},
		{"polarization factor", v.PolarizationFactor},
	} {
		if !(f.val > 0) || math.IsInf(f.val, 0) {
			return fmt.Errorf("start value %s must be positive, got %v", f.name, f.val)
		}
	}
	return nil
}

// geometry returns the seed geometry: PONI at the origin, no rotations.
// Axis 1 runs along rows, so it takes the pixel height.
func (v StartValues) geometry() detector.Geometry {
	return detector.Geometry{
		Distance:   v.Distance,
		PixelSize1: v.PixelHeight,
		PixelSize2: v.PixelWidth,
		Wavelength: v.Wavelength,
	}
}

// Parameters is the exported view of a calibration.
type Parameters struct {
	Native       detector.Geometry `json:"native" yaml:"native"`
	Legacy       *detector.Legacy  `json:"legacy" yaml:"legacy"` // nil when not derivable
	Polarization float64           `json:"polarization_factor" yaml:"polarization_factor"`
	Wavelength   float64           `json:"wavelength" yaml:"wavelength"` // 0 when undetermined
}
