package refine

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"xrd-calib/internal/detector"
	"xrd-calib/pkg/geometry"
)

// minCirclePoints is the number of innermost-ring points needed before a
// circle fit is trusted over the plain centroid.
const minCirclePoints = 5

// GuessPONI derives a starting geometry from the observations on the
// innermost observed ring. angles holds the expected 2θ per ring index.
// With enough points the beam centre and distance come from a circle fit;
// otherwise the PONI is placed at the centroid of those points and the
// distance is kept. Rotations are reset to zero.
func GuessPONI(seed detector.Geometry, obs []Observation, angles []float64) detector.Geometry {
	g := seed
	g.Rot1, g.Rot2, g.Rot3 = 0, 0, 0

	inner := -1
	for _, o := range obs {
		if o.Ring < 0 || o.Ring >= len(angles) {
			continue
		}
		if inner < 0 || angles[o.Ring] < angles[inner] {
			inner = o.Ring
		}
	}
	if inner < 0 {
		return g
	}

	// Positions in metres along axis 1 (rows) and axis 2 (columns).
	var pts []geometry.Point2D
	for _, o := range obs {
		if o.Ring == inner {
			pts = append(pts, geometry.Point2D{
				X: (o.X + 0.5) * seed.PixelSize2,
				Y: (o.Y + 0.5) * seed.PixelSize1,
			})
		}
	}

	if len(pts) >= minCirclePoints {
		center, radius, err := fitCircle(pts)
		tth := angles[inner]
		if err == nil && tth > 0 && tth < math.Pi/2 {
			dist := radius / math.Tan(tth)
			if dist > 0 && !math.IsInf(dist, 0) {
				g.Poni1, g.Poni2 = center.Y, center.X
				g.Distance = dist
				return g
			}
		}
	}

	c := geometry.Centroid(pts)
	g.Poni1, g.Poni2 = c.Y, c.X
	return g
}

// fitCircle solves the algebraic (Kåsa) circle fit
// x² + y² + D·x + E·y + F = 0 in the least squares sense.
func fitCircle(pts []geometry.Point2D) (geometry.Point2D, float64, error) {
	n := len(pts)
	if n < 3 {
		return geometry.Point2D{}, 0, fmt.Errorf("need at least 3 points, got %d", n)
	}

	// Centre the coordinates to keep the system well conditioned.
	mean := geometry.Centroid(pts)
	A := mat.NewDense(n, 3, nil)
	B := mat.NewVecDense(n, nil)
	for i, p := range pts {
		x, y := p.X-mean.X, p.Y-mean.Y
		A.Set(i, 0, x)
		A.Set(i, 1, y)
		A.Set(i, 2, 1)
		B.SetVec(i, -(x*x + y*y))
	}

	var qr mat.QR
	qr.Factorize(A)
	var params mat.VecDense
	if err := qr.SolveVecTo(&params, false, B); err != nil {
		return geometry.Point2D{}, 0, err
	}

	cx := -params.AtVec(0) / 2
	cy := -params.AtVec(1) / 2
	r2 := cx*cx + cy*cy - params.AtVec(2)
	if !(r2 > 0) {
		return geometry.Point2D{}, 0, fmt.Errorf("degenerate circle fit")
	}
	return geometry.Point2D{X: cx + mean.X, Y: cy + mean.Y}, math.Sqrt(r2), nil
}
