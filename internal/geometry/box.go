// Package geometry provides the axis-aligned box type shared by every stage
// of the score pipeline.
package geometry

import (
	"fmt"
	"image"
	"math"
)

// Point is a 2D point with floating-point coordinates.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Distance returns the Euclidean distance to another point.
func (p Point) Distance(other Point) float64 {
	dx := p.X - other.X
	dy := p.Y - other.Y
	return math.Sqrt(dx*dx + dy*dy)
}

// Box is an axis-aligned rectangle in page pixel coordinates.
//
// (X, Y) is the top-left corner. All fields are real-valued so that template
// sizes can be scaled by fractional factors without rounding.
type Box struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// NewBox creates a Box.
func NewBox(x, y, w, h float64) Box {
	return Box{X: x, Y: y, W: w, H: h}
}

// FromRect converts an integer image rectangle to a Box.
func FromRect(r image.Rectangle) Box {
	return Box{
		X: float64(r.Min.X),
		Y: float64(r.Min.Y),
		W: float64(r.Dx()),
		H: float64(r.Dy()),
	}
}

// Pt1 returns the top-left corner.
func (b Box) Pt1() Point {
	return Point{X: b.X, Y: b.Y}
}

// Pt2 returns the bottom-right corner.
func (b Box) Pt2() Point {
	return Point{X: b.X + b.W, Y: b.Y + b.H}
}

// Middle returns the center point.
func (b Box) Middle() Point {
	return Point{X: b.X + b.W/2, Y: b.Y + b.H/2}
}

// Area returns W*H.
func (b Box) Area() float64 {
	return b.W * b.H
}

// Valid reports whether the box has positive width and height.
func (b Box) Valid() bool {
	return b.W > 0 && b.H > 0
}

// OverlapRatio returns the intersection area divided by the area of b.
//
// The ratio is deliberately asymmetric: a small box fully inside a large one
// has ratio 1 against the large box, while the large box has a small ratio
// against the small one. Callers that want "either overlaps the other" must
// check both directions. A zero-area receiver yields 0.
func (b Box) OverlapRatio(other Box) float64 {
	area := b.Area()
	if area <= 0 {
		return 0
	}
	ix := math.Min(b.X+b.W, other.X+other.W) - math.Max(b.X, other.X)
	iy := math.Min(b.Y+b.H, other.Y+other.H) - math.Max(b.Y, other.Y)
	if ix <= 0 || iy <= 0 {
		return 0
	}
	return ix * iy / area
}

// Distance returns the Euclidean distance between the middles of two boxes.
func (b Box) Distance(other Box) float64 {
	return b.Middle().Distance(other.Middle())
}

// Merge returns the smallest box bounding both boxes.
func (b Box) Merge(other Box) Box {
	x1 := math.Min(b.X, other.X)
	y1 := math.Min(b.Y, other.Y)
	x2 := math.Max(b.X+b.W, other.X+other.W)
	y2 := math.Max(b.Y+b.H, other.Y+other.H)
	return Box{X: x1, Y: y1, W: x2 - x1, H: y2 - y1}
}

// Contains reports whether other lies entirely inside b (edges inclusive).
func (b Box) Contains(other Box) bool {
	return other.X >= b.X && other.Y >= b.Y &&
		other.X+other.W <= b.X+b.W && other.Y+other.H <= b.Y+b.H
}

// Translate returns the box shifted by (dx, dy).
func (b Box) Translate(dx, dy float64) Box {
	return Box{X: b.X + dx, Y: b.Y + dy, W: b.W, H: b.H}
}

// Rect returns the smallest integer rectangle covering the box.
func (b Box) Rect() image.Rectangle {
	return image.Rect(
		int(math.Floor(b.X)),
		int(math.Floor(b.Y)),
		int(math.Ceil(b.X+b.W)),
		int(math.Ceil(b.Y+b.H)),
	)
}

// Clamp returns the box intersected with r. The result may be invalid if the
// box lies outside r.
func (b Box) Clamp(r image.Rectangle) Box {
	x1 := math.Max(b.X, float64(r.Min.X))
	y1 := math.Max(b.Y, float64(r.Min.Y))
	x2 := math.Min(b.X+b.W, float64(r.Max.X))
	y2 := math.Min(b.Y+b.H, float64(r.Max.Y))
	return Box{X: x1, Y: y1, W: x2 - x1, H: y2 - y1}
}

func (b Box) String() string {
	return fmt.Sprintf("(%.1f,%.1f %.1fx%.1f)", b.X, b.Y, b.W, b.H)
}
