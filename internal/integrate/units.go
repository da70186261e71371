package integrate

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"xrd-calib/internal/detector"
)

// ErrUnknownUnit is returned for radial unit names outside Units.
var ErrUnknownUnit = errors.New("unknown radial unit")

// Unit is the radial axis of an integration result.
type Unit string

const (
	TwoThetaDeg Unit = "2th_deg"
	TwoThetaRad Unit = "2th_rad"
	QNm         Unit = "q_nm^-1"
	QA          Unit = "q_A^-1"
	RMm         Unit = "r_mm"
)

// Units lists every supported radial unit.
func Units() []Unit {
	return []Unit{TwoThetaDeg, TwoThetaRad, QNm, QA, RMm}
}

// ParseUnit accepts the unit names used in pyFAI-style configuration.
func ParseUnit(s string) (Unit, error) {
	s = strings.TrimSpace(s)
	for _, u := range Units() {
		if strings.EqualFold(s, string(u)) {
			return u, nil
		}
	}
	return "", fmt.Errorf("%w %q", ErrUnknownUnit, s)
}

// resolve returns the canonical spelling of u. The zero Unit means 2θ in
// degrees.
func (u Unit) resolve() (Unit, error) {
	if u == "" {
		return TwoThetaDeg, nil
	}
	return ParseUnit(string(u))
}

// convert maps 2θ (rad) to this unit under geometry g.
func (u Unit) convert(g detector.Geometry, tth float64) float64 {
	switch u {
	case TwoThetaRad:
		return tth
	case QNm:
		return g.Q(tth)
	case QA:
		return g.Q(tth) / 10
	case RMm:
		return g.R(tth)
	default:
		return tth * 180 / math.Pi
	}
}

// needsWavelength reports whether converting to u depends on the wavelength.
func (u Unit) needsWavelength() bool {
	return u == QNm || u == QA
}
