package adjacency

import (
	"math"

	"github.com/aukilabs/brotna/mesh"
	"github.com/go-gl/mathgl/mgl64"
)

// minIntersectEpsilon is the smallest tolerance used by the 2D tests.
const minIntersectEpsilon = 1e-4

// BoundaryTriangle is a triangle lying on a division plane, projected to the
// plane U/V coordinates.
type BoundaryTriangle struct {
	P      [3]mgl64.Vec2
	Bounds mesh.Bounds2
}

// BoundaryTriangles returns the triangles of triIDs whose three vertices are
// within planeTol of the plane and whose projection overlaps the plane
// rectangle inflated by rectTol, along with their union bounds. Invalid
// triangle ids are skipped.
func BoundaryTriangles(m *mesh.Mesh, triIDs []int, p Plane, planeTol, rectTol float64) ([]BoundaryTriangle, mesh.Bounds2) {
	bounds := mesh.EmptyBounds2()
	if m.IsEmpty() || len(triIDs) == 0 {
		return nil, bounds
	}

	if p.Normal.LenSqr() == 0 || p.AxisU.LenSqr() == 0 || p.AxisV.LenSqr() == 0 {
		return nil, bounds
	}
	p.Normal = p.Normal.Normalize()
	p.AxisU = p.AxisU.Normalize()
	p.AxisV = p.AxisV.Normalize()

	planeTol = math.Abs(planeTol)
	rectTol = math.Abs(rectTol)
	rect := mesh.Bounds2{
		Min: mgl64.Vec2{-math.Abs(p.HalfExtents[0]), -math.Abs(p.HalfExtents[1])},
		Max: mgl64.Vec2{math.Abs(p.HalfExtents[0]), math.Abs(p.HalfExtents[1])},
	}

	var tris []BoundaryTriangle
	for _, id := range triIDs {
		if id < 0 || id >= len(m.Triangles) {
			continue
		}

		var t BoundaryTriangle
		onPlane := true
		for i, v := range m.Triangles[id] {
			uv, dist := p.Project(m.Vertices[v])
			if math.Abs(dist) > planeTol {
				onPlane = false
				break
			}
			t.P[i] = uv
		}
		if !onPlane {
			continue
		}

		t.Bounds = mesh.EmptyBounds2().Extend(t.P[0]).Extend(t.P[1]).Extend(t.P[2])
		if !t.Bounds.Overlaps(rect, rectTol) {
			continue
		}

		tris = append(tris, t)
		bounds = bounds.Union(t.Bounds)
	}
	return tris, bounds
}

// AreNodesConnectedByPlane reports whether two cells still touch through the
// plane: both have boundary triangles and at least one pair of them
// intersects in the plane.
func AreNodesConnectedByPlane(a *mesh.Mesh, trisA []int, b *mesh.Mesh, trisB []int, p Plane, planeTol, rectTol float64) bool {
	boundaryA, boundsA := BoundaryTriangles(a, trisA, p, planeTol, rectTol)
	if len(boundaryA) == 0 {
		return false
	}

	boundaryB, boundsB := BoundaryTriangles(b, trisB, p, planeTol, rectTol)
	if len(boundaryB) == 0 {
		return false
	}

	if !boundsA.Overlaps(boundsB, 0) {
		return false
	}

	eps := math.Max(rectTol, minIntersectEpsilon)
	for _, ta := range boundaryA {
		for _, tb := range boundaryB {
			if !ta.Bounds.Overlaps(tb.Bounds, 0) {
				continue
			}
			if TrianglesIntersect2D(ta.P, tb.P, eps) {
				return true
			}
		}
	}
	return false
}

// TrianglesIntersect2D reports whether two triangles overlap or touch: an
// edge of one crosses an edge of the other, or a vertex of one lies inside
// the other.
func TrianglesIntersect2D(a, b [3]mgl64.Vec2, eps float64) bool {
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			if segmentsIntersect2D(a[i], a[(i+1)%3], b[j], b[(j+1)%3], eps) {
				return true
			}
		}
	}

	for i := 0; i < 3; i++ {
		if pointInTriangle2D(a[i], b, eps) || pointInTriangle2D(b[i], a, eps) {
			return true
		}
	}
	return false
}

func cross2D(a, b mgl64.Vec2) float64 {
	return a[0]*b[1] - a[1]*b[0]
}

func orient2D(a, b, c mgl64.Vec2) float64 {
	return cross2D(b.Sub(a), c.Sub(a))
}

func pointOnSegmentBounds2D(a, b, p mgl64.Vec2, eps float64) bool {
	return p[0] >= math.Min(a[0], b[0])-eps &&
		p[0] <= math.Max(a[0], b[0])+eps &&
		p[1] >= math.Min(a[1], b[1])-eps &&
		p[1] <= math.Max(a[1], b[1])+eps
}

func segmentsIntersect2D(a, b, c, d mgl64.Vec2, eps float64) bool {
	o1 := orient2D(a, b, c)
	o2 := orient2D(a, b, d)
	o3 := orient2D(c, d, a)
	o4 := orient2D(c, d, b)

	if o1*o2 < 0 && o3*o4 < 0 {
		return true
	}

	return (math.Abs(o1) <= eps && pointOnSegmentBounds2D(a, b, c, eps)) ||
		(math.Abs(o2) <= eps && pointOnSegmentBounds2D(a, b, d, eps)) ||
		(math.Abs(o3) <= eps && pointOnSegmentBounds2D(c, d, a, eps)) ||
		(math.Abs(o4) <= eps && pointOnSegmentBounds2D(c, d, b, eps))
}

func pointInTriangle2D(p mgl64.Vec2, t [3]mgl64.Vec2, eps float64) bool {
	o1 := orient2D(t[0], t[1], p)
	o2 := orient2D(t[1], t[2], p)
	o3 := orient2D(t[2], t[0], p)

	neg := o1 < -eps || o2 < -eps || o3 < -eps
	pos := o1 > eps || o2 > eps || o3 > eps
	return !(neg && pos)
}
