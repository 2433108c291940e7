package adjacency

import (
	"github.com/aukilabs/brotna/mesh"
	"github.com/go-gl/mathgl/mgl64"
)

// Plane is the finite rectangle shared by two grid neighbouring chunks.
type Plane struct {
	Origin      mgl64.Vec3 `json:"origin"`
	Normal      mgl64.Vec3 `json:"normal"`
	Center      mgl64.Vec3 `json:"center"`
	AxisU       mgl64.Vec3 `json:"axis_u"`
	AxisV       mgl64.Vec3 `json:"axis_v"`
	HalfExtents mgl64.Vec2 `json:"half_extents"`
	ChunkA      int        `json:"chunk_a"`
	ChunkB      int        `json:"chunk_b"`
}

// Touches reports whether the plane separates the given chunk from another.
func (p Plane) Touches(chunkID int) bool {
	return p.ChunkA == chunkID || p.ChunkB == chunkID
}

// Project returns the U/V coordinates of v relative to the rectangle centre
// and its signed distance to the plane.
func (p Plane) Project(v mgl64.Vec3) (uv mgl64.Vec2, distance float64) {
	local := v.Sub(p.Center)
	return mgl64.Vec2{local.Dot(p.AxisU), local.Dot(p.AxisV)}, v.Sub(p.Origin).Dot(p.Normal)
}

// planeAxes lists, per normal axis, the axes spanning the rectangle.
var planeAxes = [3][2]int{
	{1, 2},
	{0, 2},
	{0, 1},
}

func unitVec(axis int) mgl64.Vec3 {
	var v mgl64.Vec3
	v[axis] = 1
	return v
}

// BuildDivisionPlanes returns the rectangles between grid neighbouring chunks
// of a regular slicing of bounds. Planes come X first, then Y, then Z. Grid
// cells mapped to -1 have no chunk and produce no plane.
func BuildDivisionPlanes(bounds mesh.Bounds, count mesh.SliceCount, chunkIDByGridIndex []int) []Plane {
	if count[0] <= 0 || count[1] <= 0 || count[2] <= 0 || len(chunkIDByGridIndex) < count.Total() {
		return nil
	}

	size := bounds.Size()
	if !bounds.IsValid() || size.X() <= 0 || size.Y() <= 0 || size.Z() <= 0 {
		return nil
	}

	cell := mgl64.Vec3{
		size.X() / float64(count[0]),
		size.Y() / float64(count[1]),
		size.Z() / float64(count[2]),
	}

	var planes []Plane
	for axis := 0; axis < 3; axis++ {
		u, v := planeAxes[axis][0], planeAxes[axis][1]

		for i := 1; i < count[axis]; i++ {
			for j := 0; j < count[u]; j++ {
				for k := 0; k < count[v]; k++ {
					var b [3]int
					b[axis], b[u], b[v] = i, j, k
					a := b
					a[axis]--

					chunkA := chunkIDByGridIndex[count.GridIndex(a[0], a[1], a[2])]
					chunkB := chunkIDByGridIndex[count.GridIndex(b[0], b[1], b[2])]
					if chunkA == -1 || chunkB == -1 {
						continue
					}

					var origin mgl64.Vec3
					origin[axis] = bounds.Min[axis] + cell[axis]*float64(i)
					origin[u] = bounds.Min[u] + cell[u]*(float64(j)+0.5)
					origin[v] = bounds.Min[v] + cell[v]*(float64(k)+0.5)

					planes = append(planes, Plane{
						Origin:      origin,
						Normal:      unitVec(axis),
						Center:      origin,
						AxisU:       unitVec(u),
						AxisV:       unitVec(v),
						HalfExtents: mgl64.Vec2{cell[u] / 2, cell[v] / 2},
						ChunkA:      chunkA,
						ChunkB:      chunkB,
					})
				}
			}
		}
	}
	return planes
}
