// Package coords holds the affine geometry shared by the content-stream
// tracer, the text locator and the rasteriser.
package coords

import (
	"math"
)

// Matrix is a PDF transformation matrix [a b c d e f].
type Matrix [6]float64

func Identity() Matrix { return Matrix{1, 0, 0, 1, 0, 0} }

// Multiply returns m*o: apply m first, then o.
func (m Matrix) Multiply(o Matrix) Matrix {
	return Matrix{
		m[0]*o[0] + m[1]*o[2],
		m[0]*o[1] + m[1]*o[3],
		m[2]*o[0] + m[3]*o[2],
		m[2]*o[1] + m[3]*o[3],
		m[4]*o[0] + m[5]*o[2] + o[4],
		m[4]*o[1] + m[5]*o[3] + o[5],
	}
}

type Point struct{ X, Y float64 }

func (m Matrix) Transform(p Point) Point {
	return Point{X: m[0]*p.X + m[2]*p.Y + m[4], Y: m[1]*p.X + m[3]*p.Y + m[5]}
}

func Translate(tx, ty float64) Matrix { return Matrix{1, 0, 0, 1, tx, ty} }
func Scale(sx, sy float64) Matrix     { return Matrix{sx, 0, 0, sy, 0, 0} }
func Rotate(angle float64) Matrix {
	c, s := math.Cos(angle), math.Sin(angle)
	return Matrix{c, s, -s, c, 0, 0}
}

// Rect is an axis-aligned rectangle in PDF user space (y grows upwards).
type Rect struct {
	LLX, LLY, URX, URY float64
}

// NewRect normalises two corners into a rectangle.
func NewRect(x0, y0, x1, y1 float64) Rect {
	return Rect{math.Min(x0, x1), math.Min(y0, y1), math.Max(x0, x1), math.Max(y0, y1)}
}

func (r Rect) Width() float64  { return r.URX - r.LLX }
func (r Rect) Height() float64 { return r.URY - r.LLY }
func (r Rect) Empty() bool     { return r.URX <= r.LLX || r.URY <= r.LLY }

// Union returns the smallest rectangle containing r and o. An empty r yields o.
func (r Rect) Union(o Rect) Rect {
	if r.Empty() {
		return o
	}
	if o.Empty() {
		return r
	}
	return Rect{math.Min(r.LLX, o.LLX), math.Min(r.LLY, o.LLY), math.Max(r.URX, o.URX), math.Max(r.URY, o.URY)}
}

// Intersect returns the overlapping area, which is empty when r and o are disjoint.
func (r Rect) Intersect(o Rect) Rect {
	out := Rect{math.Max(r.LLX, o.LLX), math.Max(r.LLY, o.LLY), math.Min(r.URX, o.URX), math.Min(r.URY, o.URY)}
	if out.Empty() {
		return Rect{}
	}
	return out
}

// Overlaps reports whether the rectangles share a region of positive area.
func (r Rect) Overlaps(o Rect) bool { return !r.Intersect(o).Empty() }

// Contains reports whether p lies inside r, edges included.
func (r Rect) Contains(p Point) bool {
	return p.X >= r.LLX && p.X <= r.URX && p.Y >= r.LLY && p.Y <= r.URY
}

// Inset grows (positive d) or shrinks (negative d) the rectangle on all sides.
func (r Rect) Inset(d float64) Rect {
	return Rect{r.LLX - d, r.LLY - d, r.URX + d, r.URY + d}
}

// TransformRect maps the four corners of r through m and returns their
// bounding box.
func (m Matrix) TransformRect(r Rect) Rect {
	pts := [4]Point{
		m.Transform(Point{r.LLX, r.LLY}),
		m.Transform(Point{r.URX, r.LLY}),
		m.Transform(Point{r.LLX, r.URY}),
		m.Transform(Point{r.URX, r.URY}),
	}
	out := Rect{pts[0].X, pts[0].Y, pts[0].X, pts[0].Y}
	for _, p := range pts[1:] {
		out.LLX = math.Min(out.LLX, p.X)
		out.LLY = math.Min(out.LLY, p.Y)
		out.URX = math.Max(out.URX, p.X)
		out.URY = math.Max(out.URY, p.Y)
	}
	return out
}
