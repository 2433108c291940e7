package mesh

import (
	"github.com/aukilabs/brotna/spatial"
	"github.com/go-gl/mathgl/mgl64"
)

// Origin offsets, in units of the tester scale, tried when a +X ray grazes an
// edge or a vertex. They are unequal so that a face diagonal cannot be hit
// again after the offset.
var rayOffsets = []mgl64.Vec2{
	{0.00123, -0.00071},
	{-0.00097, 0.00113},
	{0.00071, 0.00161},
	{-0.00149, -0.00089},
}

var rayDir = mgl64.Vec3{1, 0, 0}

// InsideTester answers point-in-mesh queries by parity ray casting along +X.
// Triangles are bucketed by their Y/Z bounds so that a ray only tests the
// triangles of the bucket it starts in.
type InsideTester struct {
	mesh  *Mesh
	grid  *spatial.Grid
	scale float64
}

// NewInsideTester indexes m. scale is the size of the smallest feature of
// interest (the voxel size when voxelizing) and drives the origin offsets.
func NewInsideTester(m *Mesh, scale float64) *InsideTester {
	b := m.Bounds()
	if scale <= 0 {
		scale = b.Size().Len() * 1e-3
	}

	grid := spatial.NewGridForBounds(
		mgl64.Vec2{b.Min.Y(), b.Min.Z()},
		mgl64.Vec2{b.Max.Y(), b.Max.Z()},
		gridCellsPerAxis(m.TriangleCount()),
	)

	for i := range m.Triangles {
		tb := m.TriangleBounds(i)
		grid.Insert(i,
			mgl64.Vec2{tb.Min.Y() - Epsilon, tb.Min.Z() - Epsilon},
			mgl64.Vec2{tb.Max.Y() + Epsilon, tb.Max.Z() + Epsilon},
		)
	}

	return &InsideTester{
		mesh:  m,
		grid:  grid,
		scale: scale,
	}
}

// Contains reports whether p is inside the closed mesh.
func (t *InsideTester) Contains(p mgl64.Vec3) bool {
	hits, grazing := t.castX(p)
	if !grazing {
		return hits%2 == 1
	}

	strictHits := hits
	for _, o := range rayOffsets {
		origin := mgl64.Vec3{p.X(), p.Y() + o.X()*t.scale, p.Z() + o.Y()*t.scale}
		if hits, grazing = t.castX(origin); !grazing {
			return hits%2 == 1
		}
	}
	return strictHits%2 == 1
}

// GetDebugInfo describes the triangle buckets.
func (t *InsideTester) GetDebugInfo() spatial.DebugInfo {
	return t.grid.GetDebugInfo()
}

func (t *InsideTester) castX(origin mgl64.Vec3) (hits int, grazing bool) {
	for _, id := range t.grid.Query(mgl64.Vec2{origin.Y(), origin.Z()}) {
		a, b, c := t.mesh.TriangleVertices(id)
		switch hit, _ := IntersectRayTriangle(origin, rayDir, a, b, c); hit {
		case RayHitInside:
			hits++
		case RayHitGrazing:
			grazing = true
		}
	}
	return hits, grazing
}

func gridCellsPerAxis(triangleCount int) int {
	switch {
	case triangleCount < 64:
		return 4
	case triangleCount < 4096:
		return 16
	default:
		return 64
	}
}
