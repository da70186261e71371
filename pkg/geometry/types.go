// Package geometry holds the pixel-space types shared by peak search and
// refinement: sub-pixel points, integer pixels and clipped search windows.
package geometry

import (
	"math"
)

// Point2D is a sub-pixel image position. X is the column and Y the row,
// origin top-left.
type Point2D struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

// Round returns the pixel containing p's nearest integer position.
func (p Point2D) Round() PointInt {
	return PointInt{X: int(math.Round(p.X)), Y: int(math.Round(p.Y))}
}

// PointInt is a pixel index.
type PointInt struct {
	X int `json:"x" yaml:"x"`
	Y int `json:"y" yaml:"y"`
}

// In reports whether the pixel lies inside a width x height image.
func (p PointInt) In(width, height int) bool {
	return p.X >= 0 && p.X < width && p.Y >= 0 && p.Y < height
}

// RectInt is a block of pixels; columns X..X+Width-1, rows Y..Y+Height-1.
type RectInt struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Window returns the size x size search window centred on (cx, cy). Its
// top-left corner is the rounded (cx - size/2, cy - size/2).
func Window(cx, cy float64, size int) RectInt {
	half := float64(size) * 0.5
	return RectInt{
		X:      int(math.Round(cx - half)),
		Y:      int(math.Round(cy - half)),
		Width:  size,
		Height: size,
	}
}

// Empty reports whether the rectangle covers no pixels.
func (r RectInt) Empty() bool {
	return r.Width <= 0 || r.Height <= 0
}

// Clip limits the rectangle to a width x height image. A window entirely
// outside the image clips to the zero RectInt.
func (r RectInt) Clip(width, height int) RectInt {
	x0, y0 := max(r.X, 0), max(r.Y, 0)
	x1, y1 := min(r.X+r.Width, width), min(r.Y+r.Height, height)
	if x1 <= x0 || y1 <= y0 {
		return RectInt{}
	}
	return RectInt{X: x0, Y: y0, Width: x1 - x0, Height: y1 - y0}
}

// Centroid returns the mean position of points, or the origin for none.
func Centroid(points []Point2D) Point2D {
	if len(points) == 0 {
		return Point2D{}
	}
	var c Point2D
	for _, p := range points {
		c.X += p.X
		c.Y += p.Y
	}
	n := float64(len(points))
	return Point2D{X: c.X / n, Y: c.Y / n}
}
