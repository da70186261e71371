// Package refine fits detector geometries to observed ring positions using
// non-linear least squares.
package refine

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// ErrDivergence is returned when a fit fails to converge to a finite,
// physical solution.
var ErrDivergence = errors.New("refinement diverged")

// Residuals fills r with the residual vector at x. It reports false when x
// lies outside the model's domain; such points are treated as infinitely bad.
type Residuals func(x, r []float64) bool

// Options controls the Levenberg-Marquardt iteration.
type Options struct {
	MaxIterations  int     // Outer iterations (Jacobian evaluations)
	Tolerance      float64 // Stop when the relative cost decrease falls below this
	StepTolerance  float64 // Stop when the step is this small relative to x
	InitialDamping float64 // Starting λ
}

// DefaultOptions returns settings suitable for geometry refinement.
func DefaultOptions() Options {
	return Options{
		MaxIterations:  200,
		Tolerance:      1e-15,
		StepTolerance:  1e-14,
		InitialDamping: 1e-3,
	}
}

// Result holds the outcome of a minimisation.
type Result struct {
	X           []float64
	InitialCost float64 // Sum of squared residuals at x0
	Cost        float64 // Sum of squared residuals at X
	Iterations  int
	Converged   bool
}

const (
	maxDamping     = 1e16
	dampingFactor  = 10.0
	jacobianStep   = 1e-6
	scalingFloor   = 1e-9
	maxInnerTrials = 40
)

// Minimize runs Levenberg-Marquardt on m residuals over len(x0) parameters.
// Each step solves the damped system [J; √λ·D] δ = [-r; 0] in the least
// squares sense with a QR factorisation. The iteration is deterministic.
func Minimize(f Residuals, x0 []float64, m int, opts Options) (Result, error) {
	n := len(x0)
	if n == 0 || m == 0 {
		return Result{}, fmt.Errorf("nothing to fit: %d parameters, %d residuals", n, m)
	}
	if opts.MaxIterations <= 0 {
		opts.MaxIterations = DefaultOptions().MaxIterations
	}
	if opts.InitialDamping <= 0 {
		opts.InitialDamping = DefaultOptions().InitialDamping
	}

	x := make([]float64, n)
	copy(x, x0)
	r := make([]float64, m)
	if !f(x, r) {
		return Result{}, fmt.Errorf("%w: start point outside model domain", ErrDivergence)
	}
	cost := floats.Dot(r, r)
	if math.IsNaN(cost) || math.IsInf(cost, 0) {
		return Result{}, fmt.Errorf("%w: non-finite start cost", ErrDivergence)
	}

	result := Result{InitialCost: cost}
	lambda := opts.InitialDamping
	J := mat.NewDense(m, n, nil)
	A := mat.NewDense(m+n, n, nil)
	b := mat.NewVecDense(m+n, nil)
	trial := make([]float64, n)
	rTrial := make([]float64, m)
	scale := make([]float64, n)

	for iter := 0; iter < opts.MaxIterations; iter++ {
		result.Iterations = iter + 1
		if cost == 0 {
			result.Converged = true
			break
		}
		if err := jacobian(f, x, J); err != nil {
			return Result{}, err
		}
		columnScale(J, scale)

		accepted := false
		var newCost float64
		for trialNo := 0; trialNo < maxInnerTrials; trialNo++ {
			A.Zero()
			A.Slice(0, m, 0, n).(*mat.Dense).Copy(J)
			sq := math.Sqrt(lambda)
			for j := 0; j < n; j++ {
				A.Set(m+j, j, sq*scale[j])
			}
			for i := 0; i < m; i++ {
				b.SetVec(i, -r[i])
			}
			for j := 0; j < n; j++ {
				b.SetVec(m+j, 0)
			}

			var qr mat.QR
			qr.Factorize(A)
			var delta mat.VecDense
			if err := qr.SolveVecTo(&delta, false, b); err != nil {
				lambda *= dampingFactor
				if lambda > maxDamping {
					break
				}
				continue
			}

			for j := 0; j < n; j++ {
				trial[j] = x[j] + delta.AtVec(j)
			}
			if f(trial, rTrial) {
				newCost = floats.Dot(rTrial, rTrial)
				if newCost < cost {
					accepted = true
					stepNorm := floats.Norm(delta.RawVector().Data, 2)
					xNorm := floats.Norm(x, 2)
					decrease := cost - newCost

					copy(x, trial)
					copy(r, rTrial)
					cost = newCost
					lambda = math.Max(lambda/dampingFactor, 1e-15)

					if decrease <= opts.Tolerance*cost || stepNorm <= opts.StepTolerance*(xNorm+opts.StepTolerance) {
						result.Converged = true
					}
					break
				}
			}
			lambda *= dampingFactor
			if lambda > maxDamping {
				break
			}
		}

		if !accepted {
			// No downhill step exists at any damping: x is a minimum to
			// working precision.
			result.Converged = true
			break
		}
		if result.Converged {
			break
		}
	}

	result.X = x
	result.Cost = cost
	return result, nil
}

// jacobian fills J with central differences, falling back to one-sided
// differences at the edge of the model domain.
func jacobian(f Residuals, x []float64, J *mat.Dense) error {
	m, n := J.Dims()
	xp := make([]float64, len(x))
	xm := make([]float64, len(x))
	rp := make([]float64, m)
	rm := make([]float64, m)
	r0 := make([]float64, m)
	haveR0 := false

	for j := 0; j < n; j++ {
		h := jacobianStep * math.Max(math.Abs(x[j]), 1)
		copy(xp, x)
		copy(xm, x)
		xp[j] += h
		xm[j] -= h
		okP := f(xp, rp)
		okM := f(xm, rm)

		switch {
		case okP && okM:
			for i := 0; i < m; i++ {
				J.Set(i, j, (rp[i]-rm[i])/(2*h))
			}
		case okP || okM:
			if !haveR0 {
				if !f(x, r0) {
					return fmt.Errorf("%w: model undefined at current estimate", ErrDivergence)
				}
				haveR0 = true
			}
			for i := 0; i < m; i++ {
				if okP {
					J.Set(i, j, (rp[i]-r0[i])/h)
				} else {
					J.Set(i, j, (r0[i]-rm[i])/h)
				}
			}
		default:
			return fmt.Errorf("%w: model undefined around parameter %d", ErrDivergence, j)
		}
	}
	return nil
}

// columnScale computes Marquardt's diagonal scaling: the Jacobian column
// norms, floored so that parameters with no influence keep a finite penalty.
func columnScale(J *mat.Dense, scale []float64) {
	m, n := J.Dims()
	largest := 0.0
	for j := 0; j < n; j++ {
		s := 0.0
		for i := 0; i < m; i++ {
			v := J.At(i, j)
			s += v * v
		}
		scale[j] = math.Sqrt(s)
		largest = math.Max(largest, scale[j])
	}
	floor := scalingFloor * largest
	if floor == 0 {
		floor = 1
	}
	for j := range scale {
		if scale[j] < floor {
			scale[j] = floor
		}
	}
}
