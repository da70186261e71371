package calibrant

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// Centering selects the reflection conditions of a cubic lattice.
type Centering string

const (
	CenteringPrimitive Centering = "P"
	CenteringBody      Centering = "I"
	CenteringFace      Centering = "F"
	CenteringDiamond   Centering = "diamond"
)

const (
	defaultMinDSpacing   = 0.5 // Å
	maxMillerIndexSearch = 64
)

// ParseCentering accepts the usual lattice letters case-insensitively.
func ParseCentering(s string) (Centering, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "p", "primitive", "":
		return CenteringPrimitive, nil
	case "i", "bcc", "body":
		return CenteringBody, nil
	case "f", "fcc", "face":
		return CenteringFace, nil
	case "diamond", "d":
		return CenteringDiamond, nil
	}
	return "", fmt.Errorf("unknown lattice centering %q", s)
}

// Cubic describes a cubic lattice with parameter A in Å.
type Cubic struct {
	A         float64
	Centering Centering
}

// allowed reports whether reflection hkl is not systematically absent.
func (c Cubic) allowed(h, k, l int) bool {
	switch c.Centering {
	case CenteringBody:
		return (h+k+l)%2 == 0
	case CenteringFace:
		return sameParity(h, k, l)
	case CenteringDiamond:
		if !sameParity(h, k, l) {
			return false
		}
		if h%2 != 0 {
			return true
		}
		return (h+k+l)%4 == 0
	default:
		return true
	}
}

func sameParity(h, k, l int) bool {
	return h%2 == k%2 && k%2 == l%2
}

// DSpacings lists the distinct d-spacings (Å) down to dMin, largest first.
func (c Cubic) DSpacings(dMin float64) ([]float64, error) {
	if !(c.A > 0) {
		return nil, fmt.Errorf("lattice parameter must be positive, got %v", c.A)
	}
	if !(dMin > 0) {
		dMin = defaultMinDSpacing
	}
	// d = a / sqrt(N) >= dMin  =>  N <= (a/dMin)^2
	maxN := int(math.Floor((c.A / dMin) * (c.A / dMin)))
	limit := int(math.Sqrt(float64(maxN))) + 1
	if limit > maxMillerIndexSearch {
		limit = maxMillerIndexSearch
	}

	seen := make(map[int]bool)
	for h := 0; h <= limit; h++ {
		for k := 0; k <= h; k++ {
			for l := 0; l <= k; l++ {
				n := h*h + k*k + l*l
				if n == 0 || n > maxN || seen[n] {
					continue
				}
				if c.allowed(h, k, l) {
					seen[n] = true
				}
			}
		}
	}

	ns := make([]int, 0, len(seen))
	for n := range seen {
		ns = append(ns, n)
	}
	sort.Ints(ns)

	ds := make([]float64, len(ns))
	for i, n := range ns {
		ds[i] = c.A / math.Sqrt(float64(n))
	}
	return ds, nil
}
