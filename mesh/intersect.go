package mesh

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// RayHit is the outcome of a strict ray/triangle test.
type RayHit int

const (
	RayMiss RayHit = iota
	RayHitInside
	// RayHitGrazing means the ray passes within Epsilon of an edge or a
	// vertex. Such hits are rejected by the strict test and the caller is
	// expected to cast again from a slightly different origin.
	RayHitGrazing
)

// IntersectRayTriangle runs a Möller-Trumbore test rejecting hits on the
// triangle edges and vertices. t is the distance along dir and is only
// meaningful for RayHitInside.
func IntersectRayTriangle(origin, dir, a, b, c mgl64.Vec3) (RayHit, float64) {
	e1 := b.Sub(a)
	e2 := c.Sub(a)

	p := dir.Cross(e2)
	det := e1.Dot(p)
	if math.Abs(det) <= Epsilon {
		return RayMiss, -1
	}
	invDet := 1 / det

	s := origin.Sub(a)
	u := s.Dot(p) * invDet
	if u < -Epsilon || u > 1+Epsilon {
		return RayMiss, -1
	}

	q := s.Cross(e1)
	v := dir.Dot(q) * invDet
	if v < -Epsilon || u+v > 1+Epsilon {
		return RayMiss, -1
	}

	t := e2.Dot(q) * invDet
	if t <= Epsilon {
		return RayMiss, -1
	}

	if u <= Epsilon || u >= 1-Epsilon || v <= Epsilon || u+v >= 1-Epsilon {
		return RayHitGrazing, t
	}
	return RayHitInside, t
}
