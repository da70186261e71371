// Package peaks locates diffraction peaks in detector images: single local
// maxima, whole-ring "massif" searches, blob detection and ring-constrained
// searches, plus the ordered set of observations fed to refinement.
package peaks

import (
	"errors"
	"fmt"
	"strings"

	"xrd-calib/internal/refine"
	"xrd-calib/pkg/geometry"
)

var (
	// ErrOutOfBounds is returned when a seed or peak lies outside the image.
	ErrOutOfBounds = errors.New("position outside image")
	// ErrRingIndex is returned when an observation names a ring the
	// calibrant does not have.
	ErrRingIndex = errors.New("ring index out of range")
	// ErrUnknownAlgorithm is returned by ParseAlgorithm.
	ErrUnknownAlgorithm = errors.New("unknown peak search algorithm")
)

// Algorithm selects how peaks are extracted from an area.
type Algorithm int

const (
	// Massif climbs every pixel of the area to its local maximum.
	Massif Algorithm = iota
	// Blob uses difference-of-Gaussians maxima.
	Blob
)

func (a Algorithm) String() string {
	switch a {
	case Massif:
		return "massif"
	case Blob:
		return "blob"
	default:
		return "unknown"
	}
}

// ParseAlgorithm accepts "massif" or "blob" in any case.
func ParseAlgorithm(s string) (Algorithm, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "massif":
		return Massif, nil
	case "blob":
		return Blob, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownAlgorithm, s)
	}
}

// Result holds the peaks found by one search, strongest first.
// An empty result means detection failed; it is not an error.
type Result struct {
	Points []geometry.Point2D
}

// Found reports whether any peak was detected.
func (r Result) Found() bool { return len(r.Points) > 0 }

// Observation is a batch of peak positions (x = column, y = row) that all
// belong to the same calibrant ring.
type Observation struct {
	Points []geometry.Point2D `json:"points" yaml:"points"`
	Ring   int                `json:"ring" yaml:"ring"`
}

// Set is the ordered collection of observations used for refinement.
// Insertion order is detection order.
type Set struct {
	obs []Observation
}

// Append validates o against the calibrant ring count and the image size
// and adds it. On error the set is left unchanged.
func (s *Set) Append(o Observation, ringCount, width, height int) error {
	if o.Ring < 0 || o.Ring >= ringCount {
		return fmt.Errorf("%w: ring %d, calibrant has %d", ErrRingIndex, o.Ring, ringCount)
	}
	for _, p := range o.Points {
		if !(p.X >= 0 && p.X < float64(width) && p.Y >= 0 && p.Y < float64(height)) {
			return fmt.Errorf("%w: (%g, %g) in %dx%d image", ErrOutOfBounds, p.X, p.Y, width, height)
		}
	}
	pts := make([]geometry.Point2D, len(o.Points))
	copy(pts, o.Points)
	s.obs = append(s.obs, Observation{Points: pts, Ring: o.Ring})
	return nil
}

// Clear removes every observation.
func (s *Set) Clear() { s.obs = nil }

// Len returns the number of observations (batches).
func (s *Set) Len() int { return len(s.obs) }

// PointCount returns the total number of points across all batches.
func (s *Set) PointCount() int {
	n := 0
	for _, o := range s.obs {
		n += len(o.Points)
	}
	return n
}

// Observations returns a copy of the observations in insertion order.
func (s *Set) Observations() []Observation {
	out := make([]Observation, len(s.obs))
	for i, o := range s.obs {
		out[i] = Observation{
			Points: append([]geometry.Point2D(nil), o.Points...),
			Ring:   o.Ring,
		}
	}
	return out
}

// Flatten returns one refinement triple per point; every point of a batch
// carries the batch's ring index.
func (s *Set) Flatten() []refine.Observation {
	out := make([]refine.Observation, 0, s.PointCount())
	for _, o := range s.obs {
		for _, p := range o.Points {
			out = append(out, refine.Observation{X: p.X, Y: p.Y, Ring: o.Ring})
		}
	}
	return out
}
