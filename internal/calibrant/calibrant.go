// Package calibrant provides reference substances and the diffraction angles
// of their rings at a given wavelength.
package calibrant

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

// ErrNotFound is returned when an identifier resolves to neither a built-in
// calibrant nor a loadable definition file.
var ErrNotFound = errors.New("calibrant not found")

// angstrom converts d-spacings (Å) to metres.
const angstrom = 1e-10

// Calibrant is an immutable reference substance: an ordered list of lattice
// d-spacings plus the 2θ angles they produce at one wavelength.
type Calibrant struct {
	name       string
	dSpacings  []float64 // Å, strictly descending
	wavelength float64   // m
	angles     []float64 // rad, ascending, one per observable ring
}

// New creates a calibrant from d-spacings in Å. The spacings are sorted
// descending and duplicates removed, so ring 0 is always the innermost ring.
func New(name string, dSpacings []float64, wavelength float64) (*Calibrant, error) {
	if len(dSpacings) == 0 {
		return nil, fmt.Errorf("calibrant %q has no d-spacings", name)
	}
	ds := make([]float64, 0, len(dSpacings))
	for _, d := range dSpacings {
		if !(d > 0) || math.IsInf(d, 0) {
			return nil, fmt.Errorf("calibrant %q: invalid d-spacing %v", name, d)
		}
		ds = append(ds, d)
	}
	sort.Sort(sort.Reverse(sort.Float64Slice(ds)))
	unique := ds[:1]
	for _, d := range ds[1:] {
		if math.Abs(d-unique[len(unique)-1]) > 1e-9 {
			unique = append(unique, d)
		}
	}
	if wavelength < 0 || math.IsNaN(wavelength) {
		return nil, fmt.Errorf("calibrant %q: invalid wavelength %v", name, wavelength)
	}

	return &Calibrant{
		name:       name,
		dSpacings:  unique,
		wavelength: wavelength,
		angles:     twoTheta(unique, wavelength),
	}, nil
}

// WithWavelength returns a copy of the calibrant whose angles are computed
// for the new wavelength (m).
func (c *Calibrant) WithWavelength(wavelength float64) *Calibrant {
	return &Calibrant{
		name:       c.name,
		dSpacings:  c.dSpacings,
		wavelength: wavelength,
		angles:     twoTheta(c.dSpacings, wavelength),
	}
}

// Name returns the calibrant identifier.
func (c *Calibrant) Name() string { return c.name }

// Wavelength returns the wavelength (m) the angles were computed for.
func (c *Calibrant) Wavelength() float64 { return c.wavelength }

// DSpacings returns a copy of the d-spacings in Å, largest first.
func (c *Calibrant) DSpacings() []float64 {
	out := make([]float64, len(c.dSpacings))
	copy(out, c.dSpacings)
	return out
}

// Angles returns a copy of the expected 2θ values (rad) of every ring
// observable at the current wavelength, innermost first.
func (c *Calibrant) Angles() []float64 {
	out := make([]float64, len(c.angles))
	copy(out, c.angles)
	return out
}

// RingCount returns the number of rings observable at the current wavelength.
func (c *Calibrant) RingCount() int {
	return len(c.angles)
}

// Angle returns the expected 2θ (rad) of one ring.
func (c *Calibrant) Angle(ring int) (float64, bool) {
	if ring < 0 || ring >= len(c.angles) {
		return 0, false
	}
	return c.angles[ring], true
}

// twoTheta applies Bragg's law. d is descending so the observable rings
// (λ < 2d) always form a prefix of the list.
func twoTheta(dSpacings []float64, wavelength float64) []float64 {
	if !(wavelength > 0) {
		return nil
	}
	angles := make([]float64, 0, len(dSpacings))
	for _, d := range dSpacings {
		s := wavelength / (2 * d * angstrom)
		if s >= 1 {
			break
		}
		angles = append(angles, 2*math.Asin(s))
	}
	return angles
}
