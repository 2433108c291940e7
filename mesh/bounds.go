package mesh

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// Bounds is an axis-aligned bounding box. The zero value is a degenerate box
// at the origin; use EmptyBounds to start an accumulation.
type Bounds struct {
	Min mgl64.Vec3 `json:"min"`
	Max mgl64.Vec3 `json:"max"`
}

func EmptyBounds() Bounds {
	inf := math.Inf(1)
	return Bounds{
		Min: mgl64.Vec3{inf, inf, inf},
		Max: mgl64.Vec3{-inf, -inf, -inf},
	}
}

func NewBounds(min, max mgl64.Vec3) Bounds {
	return Bounds{Min: MinVec(min, max), Max: MaxVec(min, max)}
}

// IsValid reports whether the bounds contain at least one point.
func (b Bounds) IsValid() bool {
	return b.Min[0] <= b.Max[0] && b.Min[1] <= b.Max[1] && b.Min[2] <= b.Max[2]
}

func (b Bounds) Extend(p mgl64.Vec3) Bounds {
	return Bounds{Min: MinVec(b.Min, p), Max: MaxVec(b.Max, p)}
}

func (b Bounds) Union(o Bounds) Bounds {
	if !o.IsValid() {
		return b
	}
	if !b.IsValid() {
		return o
	}
	return Bounds{Min: MinVec(b.Min, o.Min), Max: MaxVec(b.Max, o.Max)}
}

func (b Bounds) Size() mgl64.Vec3 {
	return b.Max.Sub(b.Min)
}

func (b Bounds) Center() mgl64.Vec3 {
	return b.Min.Add(b.Max).Mul(0.5)
}

func (b Bounds) Expand(amount float64) Bounds {
	d := mgl64.Vec3{amount, amount, amount}
	return Bounds{Min: b.Min.Sub(d), Max: b.Max.Add(d)}
}

// Intersects reports whether both boxes overlap once inflated by tolerance.
func (b Bounds) Intersects(o Bounds, tolerance float64) bool {
	for i := 0; i < 3; i++ {
		if b.Min[i]-tolerance > o.Max[i] || o.Min[i]-tolerance > b.Max[i] {
			return false
		}
	}
	return true
}

func (b Bounds) Contains(p mgl64.Vec3) bool {
	return p[0] >= b.Min[0] && p[0] <= b.Max[0] &&
		p[1] >= b.Min[1] && p[1] <= b.Max[1] &&
		p[2] >= b.Min[2] && p[2] <= b.Max[2]
}

// Bounds2 is a 2D axis-aligned rectangle, used for projections on a plane.
type Bounds2 struct {
	Min mgl64.Vec2 `json:"min"`
	Max mgl64.Vec2 `json:"max"`
}

func EmptyBounds2() Bounds2 {
	inf := math.Inf(1)
	return Bounds2{
		Min: mgl64.Vec2{inf, inf},
		Max: mgl64.Vec2{-inf, -inf},
	}
}

func (b Bounds2) IsValid() bool {
	return b.Min[0] <= b.Max[0] && b.Min[1] <= b.Max[1]
}

func (b Bounds2) Extend(p mgl64.Vec2) Bounds2 {
	return Bounds2{
		Min: mgl64.Vec2{math.Min(b.Min[0], p[0]), math.Min(b.Min[1], p[1])},
		Max: mgl64.Vec2{math.Max(b.Max[0], p[0]), math.Max(b.Max[1], p[1])},
	}
}

func (b Bounds2) Union(o Bounds2) Bounds2 {
	if !o.IsValid() {
		return b
	}
	if !b.IsValid() {
		return o
	}
	return b.Extend(o.Min).Extend(o.Max)
}

// Overlaps reports whether both rectangles overlap once inflated by
// tolerance.
func (b Bounds2) Overlaps(o Bounds2, tolerance float64) bool {
	if !b.IsValid() || !o.IsValid() {
		return false
	}
	return b.Min[0]-tolerance <= o.Max[0] && o.Min[0]-tolerance <= b.Max[0] &&
		b.Min[1]-tolerance <= o.Max[1] && o.Min[1]-tolerance <= b.Max[1]
}
