package plan

import "math"

// Bounds represents a rectangular bounding box in pixel coordinates.
type Bounds struct {
	X1 float64 `json:"x1"` // Left edge (inclusive)
	Y1 float64 `json:"y1"` // Top edge (inclusive)
	X2 float64 `json:"x2"` // Right edge (exclusive)
	Y2 float64 `json:"y2"` // Bottom edge (exclusive)
}

// Width returns the horizontal extent, or 0 for an inverted box.
func (b Bounds) Width() float64 {
	return math.Max(0, b.X2-b.X1)
}

// Height returns the vertical extent, or 0 for an inverted box.
func (b Bounds) Height() float64 {
	return math.Max(0, b.Y2-b.Y1)
}

// Area returns Width * Height.
func (b Bounds) Area() float64 {
	return b.Width() * b.Height()
}

// Empty reports whether the box encloses no pixels.
func (b Bounds) Empty() bool {
	return b.Width() == 0 || b.Height() == 0
}

// LongSide returns the larger of Width and Height.
func (b Bounds) LongSide() float64 {
	return math.Max(b.Width(), b.Height())
}

// ShortSide returns the smaller of Width and Height.
func (b Bounds) ShortSide() float64 {
	return math.Min(b.Width(), b.Height())
}

// Center returns the box midpoint.
func (b Bounds) Center() (float64, float64) {
	return (b.X1 + b.X2) / 2, (b.Y1 + b.Y2) / 2
}

// Translate shifts the box by (dx, dy).
func (b Bounds) Translate(dx, dy float64) Bounds {
	return Bounds{X1: b.X1 + dx, Y1: b.Y1 + dy, X2: b.X2 + dx, Y2: b.Y2 + dy}
}

// Normalize swaps inverted corners so that X1 <= X2 and Y1 <= Y2.
func (b Bounds) Normalize() Bounds {
	if b.X1 > b.X2 {
		b.X1, b.X2 = b.X2, b.X1
	}
	if b.Y1 > b.Y2 {
		b.Y1, b.Y2 = b.Y2, b.Y1
	}
	return b
}

// Clamp restricts the box to [0, width) x [0, height).
func (b Bounds) Clamp(width, height float64) Bounds {
	b = b.Normalize()
	b.X1 = clampFloat(b.X1, 0, width)
	b.X2 = clampFloat(b.X2, 0, width)
	b.Y1 = clampFloat(b.Y1, 0, height)
	b.Y2 = clampFloat(b.Y2, 0, height)
	return b
}

// Intersect returns the overlapping region of two boxes. The result is empty
// when the boxes do not overlap.
func (b Bounds) Intersect(o Bounds) Bounds {
	r := Bounds{
		X1: math.Max(b.X1, o.X1),
		Y1: math.Max(b.Y1, o.Y1),
		X2: math.Min(b.X2, o.X2),
		Y2: math.Min(b.Y2, o.Y2),
	}
	if r.X1 >= r.X2 || r.Y1 >= r.Y2 {
		return Bounds{}
	}
	return r
}

// IOU returns the intersection-over-union ratio of two boxes in [0, 1].
func (b Bounds) IOU(o Bounds) float64 {
	inter := b.Intersect(o).Area()
	if inter == 0 {
		return 0
	}
	union := b.Area() + o.Area() - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
