package refine

import (
	"errors"
	"fmt"
	"math"

	"xrd-calib/internal/detector"
)

// ErrRingIndex is returned when an observation refers to a ring the
// calibrant does not have, or one that is not observable at the current
// wavelength.
var ErrRingIndex = errors.New("ring index has no observable reflection")

// Observation is a single detected peak position (pixel coordinates, x =
// column, y = row) and the calibrant ring it belongs to.
type Observation struct {
	X, Y float64
	Ring int
}

// Report summarises a geometry fit.
type Report struct {
	Iterations  int
	InitialCost float64
	FinalCost   float64
	RMS         float64 // Root mean square 2θ residual (rad)
	Converged   bool
}

// Wavelengths are carried in Å inside the parameter vector so that every
// free parameter is of order 1e-2..1.
const angstrom = 1e-10

// Fit refines g so that each observation's 2θ matches the Bragg angle of its
// ring. Distance, both PONI coordinates, rot1 and rot2 are always free;
// wavelength is free only when fitWavelength is set. rot3 and the pixel
// sizes are kept from g.
func Fit(g detector.Geometry, obs []Observation, dSpacings []float64, fitWavelength bool, opts Options) (detector.Geometry, Report, error) {
	if len(obs) == 0 {
		return g, Report{}, fmt.Errorf("no observations to fit")
	}
	if err := g.Validate(); err != nil {
		return g, Report{}, err
	}
	if !(g.Wavelength > 0) {
		return g, Report{}, fmt.Errorf("%w: wavelength must be positive, got %v", detector.ErrInvalidGeometry, g.Wavelength)
	}
	for _, o := range obs {
		if o.Ring < 0 || o.Ring >= len(dSpacings) {
			return g, Report{}, fmt.Errorf("%w: ring %d of %d", ErrRingIndex, o.Ring, len(dSpacings))
		}
		if g.Wavelength/(2*dSpacings[o.Ring]*angstrom) >= 1 {
			return g, Report{}, fmt.Errorf("%w: ring %d (d = %g Å) at λ = %g m", ErrRingIndex, o.Ring, dSpacings[o.Ring], g.Wavelength)
		}
	}

	x0 := pack(g, fitWavelength)
	residuals := func(x, r []float64) bool {
		trial := unpack(g, x, fitWavelength)
		if !(trial.Distance > 0) || !(trial.Wavelength > 0) {
			return false
		}
		for i, o := range obs {
			s := trial.Wavelength / (2 * dSpacings[o.Ring] * angstrom)
			if s >= 1 {
				return false
			}
			r[i] = trial.TwoTheta(o.X, o.Y) - 2*math.Asin(s)
		}
		return true
	}

	res, err := Minimize(residuals, x0, len(obs), opts)
	if err != nil {
		return g, Report{}, err
	}
	fitted := unpack(g, res.X, fitWavelength)
	if err := fitted.Validate(); err != nil {
		return g, Report{}, fmt.Errorf("%w: %v", ErrDivergence, err)
	}
	if !(fitted.Wavelength > 0) || math.IsNaN(res.Cost) {
		return g, Report{}, fmt.Errorf("%w: non-physical result", ErrDivergence)
	}
	if !res.Converged {
		return g, Report{}, fmt.Errorf("%w: no convergence after %d iterations", ErrDivergence, res.Iterations)
	}

	return fitted, Report{
		Iterations:  res.Iterations,
		InitialCost: res.InitialCost,
		FinalCost:   res.Cost,
		RMS:         math.Sqrt(res.Cost / float64(len(obs))),
		Converged:   res.Converged,
	}, nil
}

func pack(g detector.Geometry, fitWavelength bool) []float64 {
	x := []float64{g.Distance, g.Poni1, g.Poni2, g.Rot1, g.Rot2}
	if fitWavelength {
		x = append(x, g.Wavelength/angstrom)
	}
	return x
}

func unpack(seed detector.Geometry, x []float64, fitWavelength bool) detector.Geometry {
	g := seed
	g.Distance, g.Poni1, g.Poni2, g.Rot1, g.Rot2 = x[0], x[1], x[2], x[3], x[4]
	if fitWavelength {
		g.Wavelength = x[5] * angstrom
	}
	return g
}
